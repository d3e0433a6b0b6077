package repository

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/corolair/moodle-bridge/internal/core/ports"
)

// configTTL bounds staleness when an invalidation is lost, e.g. a config write
// done directly in the Moodle admin UI.
const configTTL = 5 * time.Minute

const cachePrefix = "corolair:cfg:"

// CachedHostStore wraps a HostStore with a Redis read-through cache for
// plugin configuration. The apikey setting is read on every page view and on
// every privacy sweep; everything else goes straight to the database.
type CachedHostStore struct {
	ports.HostStore
	rdb    *redis.Client
	logger *zap.Logger
}

// NewCachedHostStore wraps inner with a plugin-config cache backed by rdb.
func NewCachedHostStore(inner ports.HostStore, rdb *redis.Client, logger *zap.Logger) *CachedHostStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedHostStore{HostStore: inner, rdb: rdb, logger: logger}
}

func (c *CachedHostStore) GetPluginConfig(ctx context.Context, name string) (string, error) {
	cached, err := c.rdb.Get(ctx, cachePrefix+name).Result()
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, redis.Nil) {
		// A cache outage must never take down config reads.
		c.logger.Warn("config cache read failed", zap.Error(err))
	}

	value, err := c.HostStore.GetPluginConfig(ctx, name)
	if err != nil {
		return "", err
	}
	if setErr := c.rdb.Set(ctx, cachePrefix+name, value, configTTL).Err(); setErr != nil {
		c.logger.Warn("config cache write failed", zap.Error(setErr))
	}
	return value, nil
}

func (c *CachedHostStore) SetPluginConfig(ctx context.Context, name, value string) error {
	if err := c.HostStore.SetPluginConfig(ctx, name, value); err != nil {
		return err
	}
	if err := c.rdb.Del(ctx, cachePrefix+name).Err(); err != nil {
		c.logger.Warn("config cache invalidation failed", zap.String("name", name), zap.Error(err))
	}
	return nil
}

func (c *CachedHostStore) DeletePluginConfig(ctx context.Context) error {
	if err := c.HostStore.DeletePluginConfig(ctx); err != nil {
		return err
	}
	iter := c.rdb.Scan(ctx, 0, cachePrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			c.logger.Warn("config cache invalidation failed", zap.String("key", iter.Val()), zap.Error(err))
		}
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn("config cache scan failed", zap.Error(err))
	}
	return nil
}
