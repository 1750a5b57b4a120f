// Package cache keeps the most recent fused record per device in Redis so
// the poll endpoint can answer without touching Postgres.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hbenali/sensor-hub/internal/storage"
)

// LatestCache stores the newest record per device as JSON with a TTL.
type LatestCache struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewLatestCache creates a cache on top of an existing Redis client.
func NewLatestCache(client *redis.Client, ttl time.Duration) *LatestCache {
	return &LatestCache{redis: client, ttl: ttl}
}

func key(deviceID string) string {
	return fmt.Sprintf("latest_record:%s", deviceID)
}

// Set stores rec as the device's latest record.
func (c *LatestCache) Set(ctx context.Context, rec *storage.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	if err := c.redis.Set(ctx, key(rec.DeviceID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache record: %w", err)
	}
	return nil
}

// Get returns the device's latest cached record, or nil on a miss.
func (c *LatestCache) Get(ctx context.Context, deviceID string) (*storage.Record, error) {
	data, err := c.redis.Get(ctx, key(deviceID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache: %w", err)
	}

	var rec storage.Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached record: %w", err)
	}
	return &rec, nil
}
