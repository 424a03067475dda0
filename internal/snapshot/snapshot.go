// Package snapshot models one full-state tick of the agent workspace: a
// path -> content map replaced wholesale on every update, plus the derived
// values the rest of the engine keys off (structural signature, content
// hash, deployability).
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
	"sort"
	"strings"

	"github.com/openpreview/openpreview/pkg/types"
)

const (
	// memoryPrefix marks agent-internal paths. They stay in the raw
	// snapshot but never appear in trees, change records, or deploy
	// payloads.
	memoryPrefix = "memory/"

	// appPrefix is the workspace root for application code. It is
	// stripped when building deploy payloads.
	appPrefix = "app/"
)

// Snapshot is an immutable view of the workspace at one tick. The zero
// value is an empty snapshot.
type Snapshot struct {
	files map[string]string
}

// New normalizes a raw update into a Snapshot: paths lose any leading
// slash, content arrives already flattened by the wire union.
func New(files map[string]types.FileState) Snapshot {
	m := make(map[string]string, len(files))
	for p, f := range files {
		m[NormalizePath(p)] = f.Content
	}
	return Snapshot{files: m}
}

// FromContents builds a Snapshot from plain contents. Paths are normalized
// the same way as New.
func FromContents(files map[string]string) Snapshot {
	m := make(map[string]string, len(files))
	for p, c := range files {
		m[NormalizePath(p)] = c
	}
	return Snapshot{files: m}
}

// NormalizePath trims the leading slash so "/app/page.tsx" and
// "app/page.tsx" name the same file.
func NormalizePath(p string) string {
	return strings.TrimPrefix(p, "/")
}

// IsMemoryPath reports whether a normalized path is agent memory.
func IsMemoryPath(p string) bool {
	return strings.HasPrefix(p, memoryPrefix)
}

// StripAppPrefix rewrites a workspace path to its project-relative form.
func StripAppPrefix(p string) string {
	return strings.TrimPrefix(p, appPrefix)
}

// Len returns the total number of files, memory paths included.
func (s Snapshot) Len() int {
	return len(s.files)
}

// Get returns the content of one file by normalized path.
func (s Snapshot) Get(p string) (string, bool) {
	c, ok := s.files[NormalizePath(p)]
	return c, ok
}

// VisiblePaths returns the sorted non-memory paths.
func (s Snapshot) VisiblePaths() []string {
	out := make([]string, 0, len(s.files))
	for p := range s.files {
		if IsMemoryPath(p) {
			continue
		}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// VisibleCount returns the number of non-memory files.
func (s Snapshot) VisibleCount() int {
	n := 0
	for p := range s.files {
		if !IsMemoryPath(p) {
			n++
		}
	}
	return n
}

// Signature is the structural identity of the snapshot: the sorted visible
// paths joined with "|". Two snapshots with equal signatures differ at most
// in file contents.
func (s Snapshot) Signature() string {
	return strings.Join(s.VisiblePaths(), "|")
}

// Hash digests both structure and content of the visible files. It is the
// dedup key for auto-deploy triggering.
func (s Snapshot) Hash() string {
	h := sha256.New()
	for _, p := range s.VisiblePaths() {
		h.Write([]byte(p))
		h.Write([]byte{0})
		h.Write([]byte(s.files[p]))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// DeployComplete reports whether the snapshot holds a deployable project:
// at least one package manifest and at least one UI component source file.
func (s Snapshot) DeployComplete() bool {
	var manifest, component bool
	for p := range s.files {
		if IsMemoryPath(p) {
			continue
		}
		if path.Base(p) == "package.json" {
			manifest = true
		}
		switch path.Ext(p) {
		case ".tsx", ".jsx":
			component = true
		}
		if manifest && component {
			return true
		}
	}
	return false
}

// Diff returns the sorted visible paths that differ from base: added,
// removed, or changed content.
func (s Snapshot) Diff(base Snapshot) []string {
	changed := make(map[string]bool)
	for p, c := range s.files {
		if IsMemoryPath(p) {
			continue
		}
		if bc, ok := base.files[p]; !ok || bc != c {
			changed[p] = true
		}
	}
	for p := range base.files {
		if IsMemoryPath(p) {
			continue
		}
		if _, ok := s.files[p]; !ok {
			changed[p] = true
		}
	}
	out := make([]string, 0, len(changed))
	for p := range changed {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// VisibleContents copies the visible files into a plain map. Deploy
// preparation and archival consume this form.
func (s Snapshot) VisibleContents() map[string]string {
	out := make(map[string]string, len(s.files))
	for p, c := range s.files {
		if IsMemoryPath(p) {
			continue
		}
		out[p] = c
	}
	return out
}
