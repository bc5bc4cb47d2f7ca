package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"sales_pipeline_backend/internal/sla/domain"
)

const defaultDedupTTL = 30 * 24 * time.Hour

// Deduper records which threshold crossings have already been announced.
// MarkNotified returns true only for the first caller of a key.
type Deduper interface {
	MarkNotified(ctx context.Context, key DedupKey) (bool, error)
}

// DedupKey identifies one crossing. A new activity timestamp produces a new
// key, so an entity that goes stale again is announced again.
type DedupKey struct {
	TenantID       uuid.UUID
	EntityType     domain.EntityType
	EntityID       uuid.UUID
	Level          domain.Level
	LastActivityAt time.Time
}

func (k DedupKey) String() string {
	return fmt.Sprintf("sla:notified:%s:%s:%s:%s:%d",
		k.TenantID, k.EntityType, k.EntityID, k.Level, k.LastActivityAt.UTC().UnixMilli())
}

// RedisDeduper stores crossing keys in Redis with a TTL so dedup state is
// shared by every instance and survives restarts.
type RedisDeduper struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisDeduper creates a deduper. A non-positive ttl selects 30 days.
func NewRedisDeduper(client redis.UniversalClient, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = defaultDedupTTL
	}
	return &RedisDeduper{client: client, ttl: ttl}
}

var _ Deduper = (*RedisDeduper)(nil)

func (d *RedisDeduper) MarkNotified(ctx context.Context, key DedupKey) (bool, error) {
	ok, err := d.client.SetNX(ctx, key.String(), time.Now().UTC().Format(time.RFC3339), d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark sla notified: %w", err)
	}
	return ok, nil
}

// NewRedisClient builds a go-redis client from a redis:// or rediss:// URL.
func NewRedisClient(redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opt), nil
}
