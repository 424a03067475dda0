// Package archive encodes snapshots as tar.zst bundles. Each bundle holds
// every file of a deployed snapshot so the exact generated code behind a
// preview can be reconstructed or audited later. Output is deterministic:
// entries are written in sorted path order with fixed metadata, so the same
// snapshot always produces the same bytes.
package archive

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/klauspost/compress/zstd"
)

// Write encodes files as a tar stream wrapped in zstd and writes it to w.
func Write(w io.Writer, files map[string]string) error {
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	tw := tar.NewWriter(zw)

	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		content := files[p]
		hdr := &tar.Header{
			Name: p,
			Mode: 0o644,
			Size: int64(len(content)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			zw.Close()
			return fmt.Errorf("write tar header for %s: %w", p, err)
		}
		if _, err := io.WriteString(tw, content); err != nil {
			zw.Close()
			return fmt.Errorf("write tar data for %s: %w", p, err)
		}
	}

	if err := tw.Close(); err != nil {
		zw.Close()
		return fmt.Errorf("close tar: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close zstd: %w", err)
	}
	return nil
}

// Encode returns the tar.zst encoding of files as a byte slice.
func Encode(files map[string]string) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, files); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Read decodes a tar.zst stream back into a path-to-content map.
func Read(r io.Reader) (map[string]string, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("create zstd reader: %w", err)
	}
	defer zr.Close()

	files := make(map[string]string)
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read tar header: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("read tar data for %s: %w", hdr.Name, err)
		}
		files[hdr.Name] = string(data)
	}
	return files, nil
}
