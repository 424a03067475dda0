package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openpreview/openpreview/pkg/types"
)

// Memory is an in-process Store for tests and throwaway runs. Nothing
// survives a restart.
type Memory struct {
	mu      sync.RWMutex
	records map[string]types.PersistedDeployment
	events  map[string][]types.DeploymentEvent
}

func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]types.PersistedDeployment),
		events:  make(map[string][]types.DeploymentEvent),
	}
}

func (m *Memory) SaveDeployment(ctx context.Context, threadID string, rec *types.PersistedDeployment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[threadID] = *rec
	return nil
}

func (m *Memory) GetDeployment(ctx context.Context, threadID string) (*types.PersistedDeployment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[threadID]
	if !ok {
		return nil, ErrNotFound
	}
	out := rec
	return &out, nil
}

func (m *Memory) DeleteDeployment(ctx context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, threadID)
	return nil
}

func (m *Memory) ListDeployments(ctx context.Context) ([]types.ThreadInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.ThreadInfo, 0, len(m.records))
	for id, rec := range m.records {
		out = append(out, types.ThreadInfo{
			ThreadID:    id,
			ProjectName: rec.ProjectName,
			URL:         rec.URL,
			UpdatedAt:   time.UnixMilli(rec.Timestamp),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ThreadID < out[j].ThreadID
	})
	return out, nil
}

func (m *Memory) RecordEvent(ctx context.Context, ev *types.DeploymentEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *ev
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	// Newest first, matching the durable backends' read order.
	m.events[ev.ThreadID] = append([]types.DeploymentEvent{stored}, m.events[ev.ThreadID]...)
	return nil
}

func (m *Memory) ListEvents(ctx context.Context, threadID string, limit int) ([]types.DeploymentEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		limit = defaultEventLimit
	}
	evs := m.events[threadID]
	if len(evs) > limit {
		evs = evs[:limit]
	}
	out := make([]types.DeploymentEvent, len(evs))
	copy(out, evs)
	return out, nil
}

func (m *Memory) Close() error {
	return nil
}
