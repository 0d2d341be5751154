// Package rediscache puts a Redis read-through cache in front of a
// shortener.MappingStore.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MagnunAVF/shorturls/internal/logger"
	"github.com/MagnunAVF/shorturls/internal/shortener"
)

const (
	DefaultTTL = time.Hour
	keyPrefix  = "mapping:"
)

type entry struct {
	Code      string    `json:"code"`
	TargetURL string    `json:"target_url"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// MappingCache serves lookups from Redis and falls back to the wrapped store.
// Redis failures are logged and never surface to callers.
type MappingCache struct {
	next shortener.MappingStore
	rdb  redis.Cmdable
	ttl  time.Duration
}

func New(next shortener.MappingStore, rdb redis.Cmdable, ttl time.Duration) *MappingCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MappingCache{next: next, rdb: rdb, ttl: ttl}
}

func Key(code string) string { return keyPrefix + code }

func (c *MappingCache) InsertMapping(ctx context.Context, m *shortener.Mapping) error {
	if err := c.next.InsertMapping(ctx, m); err != nil {
		return err
	}
	c.store(ctx, m)
	return nil
}

func (c *MappingCache) FindMapping(ctx context.Context, code string) (*shortener.Mapping, error) {
	if m, ok := c.load(ctx, code); ok {
		return m, nil
	}
	m, err := c.next.FindMapping(ctx, code)
	if err != nil {
		return nil, err
	}
	c.store(ctx, m)
	return m, nil
}

func (c *MappingCache) load(ctx context.Context, code string) (*shortener.Mapping, bool) {
	raw, err := c.rdb.Get(ctx, Key(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		logger.FromContext(ctx).Warn("cache read failed", "code", code, "err", err)
		return nil, false
	}
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		logger.FromContext(ctx).Warn("cache entry corrupt", "code", code, "err", err)
		return nil, false
	}
	return &shortener.Mapping{
		Code:      e.Code,
		TargetURL: e.TargetURL,
		CreatedAt: e.CreatedAt.UTC(),
		ExpiresAt: e.ExpiresAt.UTC(),
	}, true
}

func (c *MappingCache) store(ctx context.Context, m *shortener.Mapping) {
	raw, err := json.Marshal(entry{
		Code:      m.Code,
		TargetURL: m.TargetURL,
		CreatedAt: m.CreatedAt,
		ExpiresAt: m.ExpiresAt,
	})
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, Key(m.Code), raw, c.ttl).Err(); err != nil {
		logger.FromContext(ctx).Warn("cache write failed", "code", m.Code, "err", err)
	}
}

var _ shortener.MappingStore = (*MappingCache)(nil)
