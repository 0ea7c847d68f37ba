// Package cache provides a small string cache with in-process and Redis
// backends. The pipeline uses it for TLD price lookups and the dashboard
// uses it for stats responses.
package cache

import (
	"context"
	"errors"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// Cache stores string values with a per-entry TTL.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Memory is the in-process backend.
type Memory struct {
	c *gocache.Cache
}

var _ Cache = (*Memory)(nil)

// NewMemory creates an in-process cache. Expired entries are swept every
// five minutes.
func NewMemory() *Memory {
	return &Memory{c: gocache.New(gocache.NoExpiration, 5*time.Minute)}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := m.c.Get(key)
	if !ok {
		return "", false, nil
	}
	s, ok := v.(string)
	return s, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	m.c.Set(key, value, ttl)
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.c.Delete(key)
	return nil
}

func (m *Memory) Close() error { return nil }

// Redis is the shared backend for multi-process deployments.
type Redis struct {
	rdb *redis.Client
}

var _ Cache = (*Redis)(nil)

// NewRedis connects to addr and pings it.
func NewRedis(ctx context.Context, addr, password string, db int) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, eris.Wrap(err, "cache: ping redis")
	}
	return &Redis{rdb: rdb}, nil
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, eris.Wrapf(err, "cache: get %s", key)
	}
	return v, true, nil
}

func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return eris.Wrapf(err, "cache: set %s", key)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.rdb.Del(ctx, key).Err(); err != nil {
		return eris.Wrapf(err, "cache: delete %s", key)
	}
	return nil
}

func (r *Redis) Close() error { return r.rdb.Close() }
