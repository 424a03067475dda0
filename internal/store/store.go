// Package store persists per-thread deployment state. Four backends share
// one interface: in-memory for tests, SQLite for single-node runs,
// Postgres for the full service, Redis for key-value setups. Record blobs
// pass through the crypto envelope, so at-rest encryption is a config
// concern rather than a backend one.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openpreview/openpreview/internal/crypto"
	"github.com/openpreview/openpreview/pkg/types"
)

// ErrNotFound is returned when a thread has no persisted deployment.
var ErrNotFound = errors.New("not found")

// defaultEventLimit caps event history reads when the caller passes no
// limit.
const defaultEventLimit = 50

// Store is the persistence surface the engine and API depend on. The
// engine is the only writer of deployment records.
type Store interface {
	SaveDeployment(ctx context.Context, threadID string, rec *types.PersistedDeployment) error
	GetDeployment(ctx context.Context, threadID string) (*types.PersistedDeployment, error)
	DeleteDeployment(ctx context.Context, threadID string) error
	ListDeployments(ctx context.Context) ([]types.ThreadInfo, error)

	RecordEvent(ctx context.Context, ev *types.DeploymentEvent) error
	ListEvents(ctx context.Context, threadID string, limit int) ([]types.DeploymentEvent, error)

	Close() error
}

// encodeRecord serializes a record and runs it through the state
// envelope.
func encodeRecord(rec *types.PersistedDeployment) (string, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("marshal deployment record: %w", err)
	}
	return crypto.Seal(string(data))
}

// decodeRecord reverses encodeRecord.
func decodeRecord(blob string) (*types.PersistedDeployment, error) {
	plain, err := crypto.Open(blob)
	if err != nil {
		return nil, fmt.Errorf("open deployment record: %w", err)
	}
	var rec types.PersistedDeployment
	if err := json.Unmarshal([]byte(plain), &rec); err != nil {
		return nil, fmt.Errorf("unmarshal deployment record: %w", err)
	}
	return &rec, nil
}
