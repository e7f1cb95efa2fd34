// Package cache keeps a short-lived Redis copy of the upcoming-classes list.
//
// The list is a display path: a stale copy is acceptable, and the booking
// service drops the entry after each committed change. Availability shown to
// clients is therefore at most one TTL behind and usually current.
package cache

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/Shivanand-hulikatti/fitness-class-booking/internal/config"
	"github.com/Shivanand-hulikatti/fitness-class-booking/internal/model"
)

const upcomingKey = "classes:upcoming"

// NewRedisClient connects to Redis and pings it with a short timeout.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig, useTLS bool) (*redis.Client, error) {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if useTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// ClassCache caches the class list returned by the registry. A nil
// *ClassCache is valid and caches nothing.
type ClassCache struct {
	rdb   *redis.Client
	ttl   time.Duration
	group singleflight.Group
}

// NewClassCache wraps rdb. It returns nil when rdb is nil.
func NewClassCache(rdb *redis.Client, ttl time.Duration) *ClassCache {
	if rdb == nil {
		return nil
	}
	return &ClassCache{rdb: rdb, ttl: ttl}
}

// Upcoming returns the cached list, or calls load, stores its result and
// returns it. Concurrent misses share one load. Redis failures fall back to
// load.
func (c *ClassCache) Upcoming(ctx context.Context, load func(context.Context) ([]model.FitnessClass, error)) ([]model.FitnessClass, error) {
	if c == nil {
		return load(ctx)
	}

	if bs, err := c.rdb.Get(ctx, upcomingKey).Bytes(); err == nil {
		var classes []model.FitnessClass
		if err := json.Unmarshal(bs, &classes); err == nil {
			return classes, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		return load(ctx)
	}

	v, err, _ := c.group.Do(upcomingKey, func() (any, error) {
		classes, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if bs, err := json.Marshal(classes); err == nil {
			_ = c.rdb.Set(context.WithoutCancel(ctx), upcomingKey, bs, c.ttl).Err()
		}
		return classes, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]model.FitnessClass), nil
}

// Invalidate drops the cached list.
func (c *ClassCache) Invalidate(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if err := c.rdb.Del(ctx, upcomingKey).Err(); err != nil {
		return fmt.Errorf("redis: invalidate %s: %w", upcomingKey, err)
	}
	return nil
}
