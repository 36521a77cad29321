package workload

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisSnapshotCache caches workload snapshots in Redis with a short TTL.
// Keys are namespaced: medassign:workload:{doctor_id}
type RedisSnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisSnapshotCache creates a Redis-backed snapshot cache.
func NewRedisSnapshotCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisSnapshotCache {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisSnapshotCache{client: client, ttl: ttl, logger: logger}
}

func (c *RedisSnapshotCache) key(doctorID uuid.UUID) string {
	return fmt.Sprintf("medassign:workload:%s", doctorID)
}

// Get returns the cached snapshot, if present. Cache errors degrade to a
// miss; the directory remains the source of truth.
func (c *RedisSnapshotCache) Get(ctx context.Context, doctorID uuid.UUID) (*DoctorWorkloadSnapshot, bool) {
	val, err := c.client.Get(ctx, c.key(doctorID)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("workload cache read failed", "doctor_id", doctorID, "error", err)
		return nil, false
	}

	var snap DoctorWorkloadSnapshot
	if err := json.Unmarshal(val, &snap); err != nil {
		c.logger.Warn("workload cache entry corrupt", "doctor_id", doctorID, "error", err)
		return nil, false
	}
	return &snap, true
}

// Set stores the snapshot with the configured TTL.
func (c *RedisSnapshotCache) Set(ctx context.Context, snap *DoctorWorkloadSnapshot) {
	payload, err := json.Marshal(snap)
	if err != nil {
		c.logger.Warn("workload cache marshal failed", "doctor_id", snap.DoctorID, "error", err)
		return
	}
	if err := c.client.Set(ctx, c.key(snap.DoctorID), payload, c.ttl).Err(); err != nil {
		c.logger.Warn("workload cache write failed", "doctor_id", snap.DoctorID, "error", err)
	}
}

// Invalidate drops the cached snapshot after a counter adjustment.
func (c *RedisSnapshotCache) Invalidate(ctx context.Context, doctorID uuid.UUID) {
	if err := c.client.Del(ctx, c.key(doctorID)).Err(); err != nil {
		c.logger.Warn("workload cache invalidate failed", "doctor_id", doctorID, "error", err)
	}
}
