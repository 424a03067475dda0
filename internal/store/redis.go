package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/openpreview/openpreview/pkg/types"
)

const (
	deploymentKeyPrefix = "openpreview:deployment:"
	eventsKeyPrefix     = "openpreview:events:"

	// eventHistoryLimit caps the per-thread event list via LTRIM.
	eventHistoryLimit = 200
)

// Redis is a key-value Store. Records live under
// openpreview:deployment:<thread>, event history as a capped list under
// openpreview:events:<thread>.
type Redis struct {
	rdb *redis.Client
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(redisURL string) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Redis{rdb: rdb}, nil
}

func (r *Redis) SaveDeployment(ctx context.Context, threadID string, rec *types.PersistedDeployment) error {
	blob, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	if err := r.rdb.Set(ctx, deploymentKeyPrefix+threadID, blob, 0).Err(); err != nil {
		return fmt.Errorf("failed to save deployment: %w", err)
	}
	return nil
}

func (r *Redis) GetDeployment(ctx context.Context, threadID string) (*types.PersistedDeployment, error) {
	blob, err := r.rdb.Get(ctx, deploymentKeyPrefix+threadID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get deployment: %w", err)
	}
	return decodeRecord(blob)
}

func (r *Redis) DeleteDeployment(ctx context.Context, threadID string) error {
	if err := r.rdb.Del(ctx, deploymentKeyPrefix+threadID).Err(); err != nil {
		return fmt.Errorf("failed to delete deployment: %w", err)
	}
	return nil
}

func (r *Redis) ListDeployments(ctx context.Context) ([]types.ThreadInfo, error) {
	var out []types.ThreadInfo
	var cursor uint64
	for {
		keys, nextCursor, err := r.rdb.Scan(ctx, cursor, deploymentKeyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan deployments: %w", err)
		}
		for _, key := range keys {
			blob, err := r.rdb.Get(ctx, key).Result()
			if err != nil {
				continue
			}
			rec, err := decodeRecord(blob)
			if err != nil {
				continue
			}
			out = append(out, types.ThreadInfo{
				ThreadID:    strings.TrimPrefix(key, deploymentKeyPrefix),
				ProjectName: rec.ProjectName,
				URL:         rec.URL,
				UpdatedAt:   time.UnixMilli(rec.Timestamp),
			})
		}
		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}
	return out, nil
}

func (r *Redis) RecordEvent(ctx context.Context, ev *types.DeploymentEvent) error {
	stored := *ev
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	key := eventsKeyPrefix + ev.ThreadID
	pipe := r.rdb.Pipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, eventHistoryLimit-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

func (r *Redis) ListEvents(ctx context.Context, threadID string, limit int) ([]types.DeploymentEvent, error) {
	if limit <= 0 {
		limit = defaultEventLimit
	}
	raw, err := r.rdb.LRange(ctx, eventsKeyPrefix+threadID, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	out := make([]types.DeploymentEvent, 0, len(raw))
	for _, item := range raw {
		var ev types.DeploymentEvent
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
