package store

import (
	"context"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openpreview/openpreview/pkg/types"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Postgres is the full-service Store. Beyond the Store interface it
// carries the dashboard's org, user, session and API key tables, which
// the other backends do not have.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Postgres store with a connection pool.
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// Migrate runs database migrations.
func (p *Postgres) Migrate(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var currentVersion int
	err = p.pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	migrations := []struct {
		version  int
		filename string
	}{
		{1, "migrations/001_deployments.up.sql"},
		{2, "migrations/002_deployment_events.up.sql"},
		{3, "migrations/003_dashboard_auth.up.sql"},
	}

	for _, m := range migrations {
		if currentVersion >= m.version {
			continue
		}
		sql, err := migrationsFS.ReadFile(m.filename)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", m.filename, err)
		}
		tx, err := p.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", m.version, err)
		}
		defer tx.Rollback(ctx)

		if _, err := tx.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("failed to apply migration %03d: %w", m.version, err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.version); err != nil {
			return fmt.Errorf("failed to record migration %03d: %w", m.version, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit migration %03d: %w", m.version, err)
		}
	}

	return nil
}

// --- Deployment record operations ---

func (p *Postgres) SaveDeployment(ctx context.Context, threadID string, rec *types.PersistedDeployment) error {
	blob, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO deployments (thread_id, record, project_name, url, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (thread_id) DO UPDATE SET
			record = EXCLUDED.record,
			project_name = EXCLUDED.project_name,
			url = EXCLUDED.url,
			updated_at = now()`,
		threadID, blob, rec.ProjectName, rec.URL)
	if err != nil {
		return fmt.Errorf("failed to save deployment: %w", err)
	}
	return nil
}

func (p *Postgres) GetDeployment(ctx context.Context, threadID string) (*types.PersistedDeployment, error) {
	var blob string
	err := p.pool.QueryRow(ctx,
		`SELECT record FROM deployments WHERE thread_id = $1`, threadID).Scan(&blob)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get deployment: %w", err)
	}
	return decodeRecord(blob)
}

func (p *Postgres) DeleteDeployment(ctx context.Context, threadID string) error {
	if _, err := p.pool.Exec(ctx,
		`DELETE FROM deployments WHERE thread_id = $1`, threadID); err != nil {
		return fmt.Errorf("failed to delete deployment: %w", err)
	}
	return nil
}

func (p *Postgres) ListDeployments(ctx context.Context) ([]types.ThreadInfo, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT thread_id, project_name, url, updated_at FROM deployments ORDER BY updated_at DESC, thread_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list deployments: %w", err)
	}
	defer rows.Close()

	var out []types.ThreadInfo
	for rows.Next() {
		var info types.ThreadInfo
		if err := rows.Scan(&info.ThreadID, &info.ProjectName, &info.URL, &info.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan deployment row: %w", err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// --- Event operations ---

func (p *Postgres) RecordEvent(ctx context.Context, ev *types.DeploymentEvent) error {
	eventID := ev.ID
	if eventID == "" {
		eventID = uuid.NewString()
	}
	createdAt := ev.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	var payload []byte
	if len(ev.Payload) > 0 {
		payload = ev.Payload
	}
	_, err := p.pool.Exec(ctx,
		`INSERT INTO deployment_events (id, thread_id, type, state, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		eventID, ev.ThreadID, ev.Type, ev.State, payload, createdAt)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

func (p *Postgres) ListEvents(ctx context.Context, threadID string, limit int) ([]types.DeploymentEvent, error) {
	if limit <= 0 {
		limit = defaultEventLimit
	}
	rows, err := p.pool.Query(ctx,
		`SELECT id, thread_id, type, state, payload, created_at
		 FROM deployment_events WHERE thread_id = $1 ORDER BY created_at DESC LIMIT $2`,
		threadID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var out []types.DeploymentEvent
	for rows.Next() {
		var ev types.DeploymentEvent
		var payload []byte
		if err := rows.Scan(&ev.ID, &ev.ThreadID, &ev.Type, &ev.State, &payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		if len(payload) > 0 {
			ev.Payload = payload
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// --- Org operations ---

type Org struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"createdAt"`
}

// orgColumns is the list of columns returned by all Org queries.
const orgColumns = `id, name, slug, created_at`

func scanOrg(row pgx.Row) (*Org, error) {
	org := &Org{}
	if err := row.Scan(&org.ID, &org.Name, &org.Slug, &org.CreatedAt); err != nil {
		return nil, err
	}
	return org, nil
}

func (p *Postgres) CreateOrg(ctx context.Context, name, slug string) (*Org, error) {
	org, err := scanOrg(p.pool.QueryRow(ctx,
		`INSERT INTO orgs (name, slug) VALUES ($1, $2) RETURNING `+orgColumns,
		name, slug))
	if err != nil {
		return nil, fmt.Errorf("failed to create org: %w", err)
	}
	return org, nil
}

func (p *Postgres) GetOrgBySlug(ctx context.Context, slug string) (*Org, error) {
	org, err := scanOrg(p.pool.QueryRow(ctx,
		`SELECT `+orgColumns+` FROM orgs WHERE slug = $1`, slug))
	if err != nil {
		return nil, fmt.Errorf("org not found: %w", err)
	}
	return org, nil
}

// --- User operations ---

type User struct {
	ID        uuid.UUID `json:"id"`
	OrgID     uuid.UUID `json:"orgId"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

func (p *Postgres) CreateUser(ctx context.Context, orgID uuid.UUID, email, name, role string) (*User, error) {
	user := &User{}
	err := p.pool.QueryRow(ctx,
		`INSERT INTO users (org_id, email, name, role) VALUES ($1, $2, $3, $4)
		 RETURNING id, org_id, email, name, role, created_at`,
		orgID, email, name, role,
	).Scan(&user.ID, &user.OrgID, &user.Email, &user.Name, &user.Role, &user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

func (p *Postgres) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	user := &User{}
	err := p.pool.QueryRow(ctx,
		`SELECT id, org_id, email, name, role, created_at FROM users WHERE email = $1`, email,
	).Scan(&user.ID, &user.OrgID, &user.Email, &user.Name, &user.Role, &user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("user not found: %w", err)
	}
	return user, nil
}

// --- User session (access token) operations ---

// StoreAccessToken stores a WorkOS access token mapped to a user ID.
// Replaces any existing token for the user.
func (p *Postgres) StoreAccessToken(ctx context.Context, userID uuid.UUID, accessToken string) error {
	_, _ = p.pool.Exec(ctx, `DELETE FROM user_sessions WHERE user_id = $1`, userID)
	_, err := p.pool.Exec(ctx,
		`INSERT INTO user_sessions (user_id, access_token) VALUES ($1, $2)`,
		userID, accessToken)
	return err
}

// GetUserByAccessToken looks up a user by their active access token.
func (p *Postgres) GetUserByAccessToken(ctx context.Context, accessToken string) (*User, error) {
	user := &User{}
	err := p.pool.QueryRow(ctx,
		`SELECT u.id, u.org_id, u.email, u.name, u.role, u.created_at
		 FROM users u
		 INNER JOIN user_sessions s ON s.user_id = u.id
		 WHERE s.access_token = $1 AND s.expires_at > now()`,
		accessToken,
	).Scan(&user.ID, &user.OrgID, &user.Email, &user.Name, &user.Role, &user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("session not found or expired: %w", err)
	}
	return user, nil
}

// DeleteAccessTokensForUser removes all sessions for a user (logout).
func (p *Postgres) DeleteAccessTokensForUser(ctx context.Context, userID uuid.UUID) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM user_sessions WHERE user_id = $1`, userID)
	return err
}

// --- API key operations ---

type APIKey struct {
	ID        uuid.UUID  `json:"id"`
	OrgID     uuid.UUID  `json:"orgId"`
	CreatedBy *uuid.UUID `json:"createdBy,omitempty"`
	KeyPrefix string     `json:"keyPrefix"`
	Name      string     `json:"name"`
	LastUsed  *time.Time `json:"lastUsed,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// HashAPIKey returns the SHA-256 hash of a plaintext API key.
func HashAPIKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}

func (p *Postgres) CreateAPIKey(ctx context.Context, orgID uuid.UUID, createdBy *uuid.UUID, keyHash, keyPrefix, name string) (*APIKey, error) {
	apiKey := &APIKey{}
	err := p.pool.QueryRow(ctx,
		`INSERT INTO api_keys (org_id, created_by, key_hash, key_prefix, name)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, org_id, created_by, key_prefix, name, created_at`,
		orgID, createdBy, keyHash, keyPrefix, name,
	).Scan(&apiKey.ID, &apiKey.OrgID, &apiKey.CreatedBy, &apiKey.KeyPrefix, &apiKey.Name, &apiKey.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create API key: %w", err)
	}
	return apiKey, nil
}

// ValidateAPIKey looks up an API key by hash and returns the associated org ID.
func (p *Postgres) ValidateAPIKey(ctx context.Context, keyPlaintext string) (uuid.UUID, error) {
	hash := HashAPIKey(keyPlaintext)
	var orgID uuid.UUID
	var expiresAt *time.Time
	err := p.pool.QueryRow(ctx,
		`SELECT org_id, expires_at FROM api_keys WHERE key_hash = $1`, hash,
	).Scan(&orgID, &expiresAt)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid API key")
	}
	if expiresAt != nil && expiresAt.Before(time.Now()) {
		return uuid.Nil, fmt.Errorf("API key expired")
	}
	_, _ = p.pool.Exec(ctx, `UPDATE api_keys SET last_used = now() WHERE key_hash = $1`, hash)
	return orgID, nil
}

func (p *Postgres) ListAPIKeys(ctx context.Context, orgID uuid.UUID) ([]APIKey, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, org_id, created_by, key_prefix, name, last_used, expires_at, created_at
		 FROM api_keys WHERE org_id = $1 ORDER BY created_at DESC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list API keys: %w", err)
	}
	defer rows.Close()

	var keys []APIKey
	for rows.Next() {
		var k APIKey
		if err := rows.Scan(&k.ID, &k.OrgID, &k.CreatedBy, &k.KeyPrefix, &k.Name,
			&k.LastUsed, &k.ExpiresAt, &k.CreatedAt); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// DeleteAPIKeyForOrg deletes an API key only if it belongs to the given org.
func (p *Postgres) DeleteAPIKeyForOrg(ctx context.Context, id uuid.UUID, orgID uuid.UUID) error {
	result, err := p.pool.Exec(ctx, `DELETE FROM api_keys WHERE id = $1 AND org_id = $2`, id, orgID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("api key not found or not owned by this org")
	}
	return nil
}
