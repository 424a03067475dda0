package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"testing"
)

type fakeBlobStore struct {
	objects map[string][]byte
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{objects: make(map[string][]byte)}
}

func (f *fakeBlobStore) Upload(_ context.Context, key string, data []byte) error {
	f.objects[key] = append([]byte(nil), data...)
	return nil
}

func (f *fakeBlobStore) Download(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("no such object: %s", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeBlobStore) Delete(_ context.Context, key string) error {
	delete(f.objects, key)
	return nil
}

func TestSnapshotKey(t *testing.T) {
	got := SnapshotKey("thread-1", "dpl_abc")
	if got != "snapshots/thread-1/dpl_abc.tar.zst" {
		t.Fatalf("SnapshotKey = %q", got)
	}
}

func TestSnapshotArchiver_RoundTrip(t *testing.T) {
	blobs := newFakeBlobStore()
	arch := NewSnapshotArchiver(blobs)

	files := map[string]string{
		"app/package.json": `{"name":"preview"}`,
		"app/src/page.tsx": "export default function Page() {}",
	}
	if err := arch.ArchiveSnapshot(context.Background(), "t1", "dpl_1", files); err != nil {
		t.Fatalf("ArchiveSnapshot: %v", err)
	}
	if _, ok := blobs.objects["snapshots/t1/dpl_1.tar.zst"]; !ok {
		t.Fatal("archive not uploaded under expected key")
	}

	got, err := arch.FetchSnapshot(context.Background(), "t1", "dpl_1")
	if err != nil {
		t.Fatalf("FetchSnapshot: %v", err)
	}
	if len(got) != 2 || got["app/package.json"] != files["app/package.json"] {
		t.Fatalf("unexpected snapshot contents: %#v", got)
	}
}

func TestSnapshotArchiver_FetchMissing(t *testing.T) {
	arch := NewSnapshotArchiver(newFakeBlobStore())
	if _, err := arch.FetchSnapshot(context.Background(), "t1", "nope"); err == nil {
		t.Fatal("expected error for missing archive")
	}
}
