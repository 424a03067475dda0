// Package engine drives the deploy lifecycle of every conversation
// thread: it folds snapshot ticks into the tree and change tracker,
// gates the auto-deploy countdown, runs deployments against the
// provider, and owns the persisted per-thread record.
package engine

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/openpreview/openpreview/internal/metrics"
	"github.com/openpreview/openpreview/internal/store"
	"github.com/openpreview/openpreview/internal/template"
	"github.com/openpreview/openpreview/internal/vercel"
	"github.com/openpreview/openpreview/pkg/types"
)

// Publisher fans engine lifecycle events out to the event pipeline.
// Implementations must not block; publish failures are theirs to log.
type Publisher interface {
	Publish(ev *types.DeploymentEvent)
}

// Analytics receives deploy outcome tracking. errKind is empty on
// success.
type Analytics interface {
	TrackDeploy(threadID string, success bool, errKind string, duration time.Duration)
}

// Archiver stores a copy of the file set that reached the provider.
type Archiver interface {
	ArchiveSnapshot(ctx context.Context, threadID, deploymentID string, files map[string]string) error
}

// Config wires the engine's collaborators. Client nil means no provider
// is configured: ticks still maintain trees and change sessions, but
// every deploy path reports a configuration error and auto-triggering
// stays off. Publisher, Analytics and Archiver are optional.
type Config struct {
	Client   *vercel.Client
	Store    store.Store
	Registry *template.Registry

	Framework     string // preset name, defaults to the registry default
	ProjectPrefix string // provider project name prefix
	Target        string // provider deploy target, e.g. "production"

	CountdownDelay time.Duration // auto-deploy countdown length
	PollInterval   time.Duration // provider status poll interval
	MaxWait        time.Duration // provider poll window

	Publisher Publisher
	Analytics Analytics
	Archiver  Archiver
}

// DefaultCountdownDelay is the auto-deploy countdown used when the
// config carries none.
const DefaultCountdownDelay = 10 * time.Second

// Engine holds one Session per conversation thread.
type Engine struct {
	cfg Config

	mu       sync.RWMutex
	sessions map[string]*Session
}

func New(cfg Config) *Engine {
	if cfg.Store == nil {
		cfg.Store = store.NewMemory()
	}
	if cfg.Registry == nil {
		cfg.Registry = template.NewRegistry()
	}
	if cfg.Framework == "" {
		cfg.Framework = template.DefaultPreset
	}
	if cfg.ProjectPrefix == "" {
		cfg.ProjectPrefix = "preview"
	}
	if cfg.CountdownDelay <= 0 {
		cfg.CountdownDelay = DefaultCountdownDelay
	}
	return &Engine{
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

// Configured reports whether a deployment provider is available.
func (e *Engine) Configured() bool {
	return e.cfg.Client != nil
}

// Thread returns the session for a thread, creating it on first use. A
// new session restores the thread's persisted deployment record, so a
// reload shows the last ready preview without a network call.
func (e *Engine) Thread(threadID string) *Session {
	e.mu.RLock()
	s, ok := e.sessions[threadID]
	e.mu.RUnlock()
	if ok {
		return s
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.sessions[threadID]; ok {
		return s
	}
	s = newSession(e, threadID)
	s.restore()
	e.sessions[threadID] = s
	metrics.ThreadsActive.Set(float64(len(e.sessions)))
	return s
}

// Registry exposes the framework preset registry.
func (e *Engine) Registry() *template.Registry {
	return e.cfg.Registry
}

// Lookup returns an existing session without creating one.
func (e *Engine) Lookup(threadID string) (*Session, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.sessions[threadID]
	return s, ok
}

// ListThreads merges persisted deployment rows with live sessions that
// have not deployed yet. Live state wins over the stored row.
func (e *Engine) ListThreads(ctx context.Context) ([]types.ThreadInfo, error) {
	infos, err := e.cfg.Store.ListDeployments(ctx)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]int, len(infos))
	for i, info := range infos {
		byID[info.ThreadID] = i
	}

	e.mu.RLock()
	for id, s := range e.sessions {
		st := s.Status()
		if i, ok := byID[id]; ok {
			infos[i].State = st.State
			if st.ProjectName != "" {
				infos[i].ProjectName = st.ProjectName
			}
			continue
		}
		info := types.ThreadInfo{
			ThreadID:    id,
			ProjectName: st.ProjectName,
			State:       st.State,
		}
		if st.Record != nil {
			info.URL = st.Record.URL
			info.UpdatedAt = st.Record.CreatedAt
		}
		infos = append(infos, info)
	}
	e.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		if !infos[i].UpdatedAt.Equal(infos[j].UpdatedAt) {
			return infos[i].UpdatedAt.After(infos[j].UpdatedAt)
		}
		return infos[i].ThreadID < infos[j].ThreadID
	})
	return infos, nil
}

// Events returns a thread's persisted deployment event history, newest
// first.
func (e *Engine) Events(ctx context.Context, threadID string, limit int) ([]types.DeploymentEvent, error) {
	return e.cfg.Store.ListEvents(ctx, threadID, limit)
}

// Close stops every session's timers and abandons in-flight deploys.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, s := range e.sessions {
		s.shutdown()
		delete(e.sessions, id)
	}
	log.Printf("engine: closed")
}
