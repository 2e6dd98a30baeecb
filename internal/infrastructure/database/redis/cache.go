package redis

import (
	"context"
	"encoding/json"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/turtacn/MorphoScreen/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MorphoScreen/pkg/errors"
)

// ErrCacheMiss marks a key not present in the cache.
var ErrCacheMiss = errors.New(errors.ErrCodeNotFound, "cache miss")

// Cache is a JSON value cache in front of the ranking store. Concurrent
// loads of the same key are collapsed through singleflight.
type Cache struct {
	client     *Client
	defaultTTL time.Duration
	logger     logging.Logger
	group      singleflight.Group
}

// NewCache creates a Cache. A zero defaultTTL means entries never expire.
func NewCache(client *Client, defaultTTL time.Duration, logger logging.Logger) *Cache {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Cache{client: client, defaultTTL: defaultTTL, logger: logger}
}

// Get unmarshals the cached value at key into dest. Returns ErrCacheMiss
// when the key is absent.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, err := c.client.rdb.Get(ctx, c.client.key("cache", key)).Bytes()
	if err == goredis.Nil {
		return ErrCacheMiss
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "cache get")
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "decode cached value")
	}
	return nil
}

// Set stores value at key with the default TTL.
func (c *Cache) Set(ctx context.Context, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "encode cache value")
	}
	if err := c.client.rdb.Set(ctx, c.client.key("cache", key), raw, c.defaultTTL).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "cache set")
	}
	return nil
}

// Delete removes keys from the cache.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.client.key("cache", k)
	}
	if err := c.client.rdb.Del(ctx, full...).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "cache delete")
	}
	return nil
}

// GetOrSet returns the cached value at key, loading and caching it on a
// miss. Only one loader per key runs at a time.
func (c *Cache) GetOrSet(ctx context.Context, key string, dest interface{}, loader func(ctx context.Context) (interface{}, error)) error {
	if err := c.Get(ctx, key, dest); err == nil {
		return nil
	} else if !errors.IsCode(err, errors.ErrCodeNotFound) {
		c.logger.Warn("cache read failed, falling through to loader",
			logging.String("key", key), logging.Err(err))
	}

	raw, err, _ := c.group.Do(key, func() (interface{}, error) {
		value, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "encode loaded value")
		}
		if err := c.client.rdb.Set(ctx, c.client.key("cache", key), encoded, c.defaultTTL).Err(); err != nil {
			c.logger.Warn("cache backfill failed", logging.String("key", key), logging.Err(err))
		}
		return encoded, nil
	})
	if err != nil {
		return err
	}
	return json.Unmarshal(raw.([]byte), dest)
}
