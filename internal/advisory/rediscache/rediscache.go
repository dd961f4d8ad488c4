// Package rediscache provides a Redis-backed advisory cache, letting
// replicas share assessments and giving operators an evicting backend.
package rediscache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arogyalabs/sahay/internal/triage"
)

// Cache implements advisory.Cache over a Redis client. Keys are hashed:
// symptom text is patient input and does not belong in key space.
type Cache struct {
	redis *redis.Client
	ttl   time.Duration
}

// New creates a cache. ttl <= 0 stores entries without expiry, matching
// the in-process cache's lifetime semantics.
func New(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{redis: client, ttl: ttl}
}

func redisKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return "advisory:" + hex.EncodeToString(sum[:])
}

// Get retrieves a cached assessment.
func (c *Cache) Get(ctx context.Context, key string) (*triage.Assessment, bool, error) {
	data, err := c.redis.Get(ctx, redisKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var a triage.Assessment
	if err := json.Unmarshal([]byte(data), &a); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached assessment: %w", err)
	}
	return &a, true, nil
}

// Set stores an assessment.
func (c *Cache) Set(ctx context.Context, key string, a *triage.Assessment) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal assessment: %w", err)
	}
	if err := c.redis.Set(ctx, redisKey(key), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
