// Package redis provides the Redis client, the JSON result cache and the
// ranking leaderboard.
package redis

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/turtacn/MorphoScreen/internal/config"
	"github.com/turtacn/MorphoScreen/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MorphoScreen/pkg/errors"
)

// Client wraps the go-redis client with the configured key prefix.
type Client struct {
	rdb    *goredis.Client
	prefix string
	logger logging.Logger
}

// NewClient connects to Redis and verifies the connection with a ping.
func NewClient(ctx context.Context, cfg config.RedisConfig, logger logging.Logger) (*Client, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, errors.ErrCodeCacheError, "redis connection failed")
	}

	logger.Info("connected to Redis", logging.String("addr", cfg.Addr))
	return &Client{rdb: rdb, prefix: cfg.KeyPrefix, logger: logger}, nil
}

// NewClientFromRedis wraps an existing go-redis client, used by tests
// backed by miniredis or a container.
func NewClientFromRedis(rdb *goredis.Client, prefix string, logger logging.Logger) *Client {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Client{rdb: rdb, prefix: prefix, logger: logger}
}

// Raw exposes the underlying go-redis client.
func (c *Client) Raw() *goredis.Client {
	return c.rdb
}

func (c *Client) key(parts ...string) string {
	out := c.prefix
	for _, p := range parts {
		if out != "" {
			out += ":"
		}
		out += p
	}
	return out
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "redis health check failed")
	}
	return nil
}

// Close shuts the client down.
func (c *Client) Close() error {
	return c.rdb.Close()
}
