// Package storage persists snapshot archives in object storage. Every
// successful deploy uploads a tar.zst bundle of the deployed file set so the
// generated code behind a preview URL can be recovered after the thread's
// in-memory state is gone.
package storage

import (
	"context"
	"fmt"
	"io"
)

// BlobStore is a minimal object storage client. S3-compatible and Azure
// Blob backends implement it.
type BlobStore interface {
	Upload(ctx context.Context, key string, data []byte) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// SnapshotKey returns the object key for one deployed snapshot archive.
func SnapshotKey(threadID, deploymentID string) string {
	return fmt.Sprintf("snapshots/%s/%s.tar.zst", threadID, deploymentID)
}
