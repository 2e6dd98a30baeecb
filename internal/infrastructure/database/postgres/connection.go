// Package postgres manages the pgx connection pool and schema migrations.
package postgres

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/turtacn/MorphoScreen/internal/config"
	"github.com/turtacn/MorphoScreen/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MorphoScreen/pkg/errors"
)

// Connection manages the PostgreSQL connection pool.
type Connection struct {
	pool   *pgxpool.Pool
	cfg    config.DatabaseConfig
	logger logging.Logger
	once   sync.Once
}

// NewConnection opens a pool and verifies it with a ping.
func NewConnection(ctx context.Context, cfg config.DatabaseConfig, logger logging.Logger) (*Connection, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	poolCfg, err := pgxpool.ParseConfig(BuildDSN(cfg))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "parse database config")
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = int32(cfg.MinConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "create connection pool")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "database connection failed")
	}

	logger.Info("connected to PostgreSQL",
		logging.String("host", cfg.Host),
		logging.Int("port", cfg.Port),
		logging.String("database", cfg.DBName),
	)
	return &Connection{pool: pool, cfg: cfg, logger: logger}, nil
}

// Pool returns the underlying pgx pool.
func (c *Connection) Pool() *pgxpool.Pool {
	return c.pool
}

// HealthCheck pings the database.
func (c *Connection) HealthCheck(ctx context.Context) error {
	if err := c.pool.Ping(ctx); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "database health check failed")
	}
	return nil
}

// Close shuts the pool down. Safe to call more than once.
func (c *Connection) Close() {
	c.once.Do(func() {
		c.pool.Close()
		c.logger.Info("closed PostgreSQL connection pool")
	})
}

// BuildDSN renders the connection URL for the pool and the migrator.
func BuildDSN(cfg config.DatabaseConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:     cfg.DBName,
		RawQuery: url.Values{"sslmode": []string{sslMode}}.Encode(),
	}
	return u.String()
}
