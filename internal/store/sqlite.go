package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/openpreview/openpreview/pkg/types"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS deployments (
    thread_id TEXT PRIMARY KEY,
    record TEXT NOT NULL,
    project_name TEXT NOT NULL DEFAULT '',
    url TEXT NOT NULL DEFAULT '',
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS deployment_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    event_id TEXT NOT NULL,
    thread_id TEXT NOT NULL,
    type TEXT NOT NULL,
    state TEXT,
    payload TEXT,
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_deployment_events_thread ON deployment_events(thread_id, id DESC);
`

// SQLite is a single-file Store for single-node deployments. The record
// column holds the sealed envelope; project_name and url are kept beside
// it in the clear so listings never need the encryption key.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database at path.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply sqlite schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) SaveDeployment(ctx context.Context, threadID string, rec *types.PersistedDeployment) error {
	blob, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO deployments (thread_id, record, project_name, url, updated_at)
		VALUES (?, ?, ?, ?, datetime('now'))
		ON CONFLICT(thread_id) DO UPDATE SET
			record = excluded.record,
			project_name = excluded.project_name,
			url = excluded.url,
			updated_at = excluded.updated_at`,
		threadID, blob, rec.ProjectName, rec.URL)
	if err != nil {
		return fmt.Errorf("failed to save deployment: %w", err)
	}
	return nil
}

func (s *SQLite) GetDeployment(ctx context.Context, threadID string) (*types.PersistedDeployment, error) {
	var blob string
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM deployments WHERE thread_id = ?`, threadID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get deployment: %w", err)
	}
	return decodeRecord(blob)
}

func (s *SQLite) DeleteDeployment(ctx context.Context, threadID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM deployments WHERE thread_id = ?`, threadID); err != nil {
		return fmt.Errorf("failed to delete deployment: %w", err)
	}
	return nil
}

func (s *SQLite) ListDeployments(ctx context.Context) ([]types.ThreadInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT thread_id, project_name, url, updated_at FROM deployments ORDER BY thread_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list deployments: %w", err)
	}
	defer rows.Close()

	var out []types.ThreadInfo
	for rows.Next() {
		var info types.ThreadInfo
		var updatedAt string
		if err := rows.Scan(&info.ThreadID, &info.ProjectName, &info.URL, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan deployment row: %w", err)
		}
		info.UpdatedAt, _ = time.Parse("2006-01-02 15:04:05", updatedAt)
		out = append(out, info)
	}
	return out, rows.Err()
}

func (s *SQLite) RecordEvent(ctx context.Context, ev *types.DeploymentEvent) error {
	eventID := ev.ID
	if eventID == "" {
		eventID = uuid.NewString()
	}
	payload := sql.NullString{}
	if len(ev.Payload) > 0 {
		payload = sql.NullString{String: string(ev.Payload), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO deployment_events (event_id, thread_id, type, state, payload) VALUES (?, ?, ?, ?, ?)`,
		eventID, ev.ThreadID, ev.Type, ev.State, payload)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

func (s *SQLite) ListEvents(ctx context.Context, threadID string, limit int) ([]types.DeploymentEvent, error) {
	if limit <= 0 {
		limit = defaultEventLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id, thread_id, type, state, payload, created_at
		 FROM deployment_events WHERE thread_id = ? ORDER BY id DESC LIMIT ?`,
		threadID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var out []types.DeploymentEvent
	for rows.Next() {
		var ev types.DeploymentEvent
		var payload sql.NullString
		var createdAt string
		if err := rows.Scan(&ev.ID, &ev.ThreadID, &ev.Type, &ev.State, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		if payload.Valid {
			ev.Payload = []byte(payload.String)
		}
		ev.CreatedAt, _ = time.Parse("2006-01-02 15:04:05", createdAt)
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
