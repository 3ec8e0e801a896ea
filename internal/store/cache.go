package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Checker-Finance/yield-aggregator/pkg/model"
)

// LatestSnapshotKey holds the most recently published snapshot.
const LatestSnapshotKey = "yield:snapshot:latest"

// ErrNoSnapshot is returned by Load when nothing has been cached yet.
var ErrNoSnapshot = errors.New("no cached snapshot")

// SnapshotCache keeps the latest snapshot in Redis so a restarted process
// can serve stale data if its first refresh fails.
type SnapshotCache struct {
	redis  *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewSnapshotCache connects to Redis and verifies the connection.
func NewSnapshotCache(ctx context.Context, addr string, db int, ttl time.Duration, logger *zap.Logger) (*SnapshotCache, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: db})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return newSnapshotCache(rdb, ttl, logger), nil
}

func newSnapshotCache(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *SnapshotCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotCache{redis: rdb, ttl: ttl, logger: logger}
}

func (c *SnapshotCache) Name() string { return "redis" }

// Push stores snap as the latest snapshot.
func (c *SnapshotCache) Push(ctx context.Context, snap *model.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := c.redis.Set(ctx, LatestSnapshotKey, data, c.ttl).Err(); err != nil {
		c.logger.Error("store.redis.set_failed", zap.Error(err))
		return err
	}
	return nil
}

// Load returns the cached snapshot or ErrNoSnapshot.
func (c *SnapshotCache) Load(ctx context.Context) (*model.Snapshot, error) {
	data, err := c.redis.Get(ctx, LatestSnapshotKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSnapshot
	} else if err != nil {
		return nil, err
	}

	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode cached snapshot: %w", err)
	}
	return &snap, nil
}

func (c *SnapshotCache) HealthCheck(ctx context.Context) error {
	if c.redis == nil {
		return fmt.Errorf("redis not initialized")
	}
	if err := c.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (c *SnapshotCache) Close() error {
	if c.redis != nil {
		return c.redis.Close()
	}
	return nil
}
