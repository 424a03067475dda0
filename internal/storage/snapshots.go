package storage

import (
	"context"
	"fmt"
	"log"

	"github.com/openpreview/openpreview/internal/archive"
)

// SnapshotArchiver bundles deployed snapshots as tar.zst and uploads them
// to a blob store. It satisfies the engine's archiver hook.
type SnapshotArchiver struct {
	blobs BlobStore
}

// NewSnapshotArchiver creates an archiver on top of the given blob store.
func NewSnapshotArchiver(blobs BlobStore) *SnapshotArchiver {
	return &SnapshotArchiver{blobs: blobs}
}

// ArchiveSnapshot encodes files and uploads the bundle under the thread's
// deployment key.
func (a *SnapshotArchiver) ArchiveSnapshot(ctx context.Context, threadID, deploymentID string, files map[string]string) error {
	data, err := archive.Encode(files)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot archive: %w", err)
	}

	key := SnapshotKey(threadID, deploymentID)
	if err := a.blobs.Upload(ctx, key, data); err != nil {
		return err
	}
	log.Printf("storage: archived snapshot %s (%d files, %d bytes)", key, len(files), len(data))
	return nil
}

// FetchSnapshot downloads and decodes one archived snapshot.
func (a *SnapshotArchiver) FetchSnapshot(ctx context.Context, threadID, deploymentID string) (map[string]string, error) {
	rc, err := a.blobs.Download(ctx, SnapshotKey(threadID, deploymentID))
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	files, err := archive.Read(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to decode snapshot archive: %w", err)
	}
	return files, nil
}
