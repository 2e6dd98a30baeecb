// Package config defines all configuration structures for the MorphoScreen
// platform. No I/O or parsing logic lives here, only plain data types and
// validation.
package config

import (
	"fmt"
	"time"
)

// ServerConfig holds HTTP server tunables.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // "debug" | "release" | "test"
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"db_name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int           `mapstructure:"max_conns"`
	MinConns        int           `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationPath   string        `mapstructure:"migration_path"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	DefaultTTL   time.Duration `mapstructure:"default_ttl"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// KafkaConfig holds Kafka producer/consumer parameters.
type KafkaConfig struct {
	Brokers         []string      `mapstructure:"brokers"`
	GroupID         string        `mapstructure:"group_id"`
	AutoOffsetReset string        `mapstructure:"auto_offset_reset"` // "earliest" | "latest"
	ProducerRetries int           `mapstructure:"producer_retries"`
	BatchTimeout    time.Duration `mapstructure:"batch_timeout"`
}

// MinIOConfig holds MinIO / S3-compatible object-storage parameters.
type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// WorkerConfig holds background-worker execution parameters.
type WorkerConfig struct {
	Concurrency    int           `mapstructure:"concurrency"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryBackoff   time.Duration `mapstructure:"retry_backoff"`
	HandlerTimeout time.Duration `mapstructure:"handler_timeout"`
}

// LogConfig holds structured-logging parameters.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // "debug" | "info" | "warn" | "error"
	Format string `mapstructure:"format"` // "json" | "console"
	Output string `mapstructure:"output"`
}

// PipelineConfig holds the statistical-pipeline parameters. Every knob the
// analysis accepts is configured here rather than hard-coded; Validate
// rejects out-of-range values before any computation begins.
type PipelineConfig struct {
	// Alpha is the significance threshold for the signature partition.
	// Features with p-value strictly below Alpha join the "on" set;
	// p-value ≥ Alpha (including exact equality) is "off".
	Alpha float64 `mapstructure:"alpha"`

	// Weighting selects the CDF weighting scheme for the two-sample test:
	// "uniform" weights all quantiles equally, "tail" emphasises the
	// distributional tails where state-specific effects concentrate.
	Weighting string `mapstructure:"weighting"`

	// MinTestSamples is the minimum number of non-missing observations
	// required per group before a feature can be tested.
	MinTestSamples int `mapstructure:"min_test_samples"`

	// ReducedDims is the dimensionality of the projection used for
	// cluster discovery. The projection is never used for scoring.
	ReducedDims int `mapstructure:"reduced_dims"`

	// Epsilon is the DBSCAN neighbourhood radius in the reduced space.
	Epsilon float64 `mapstructure:"epsilon"`

	// MinSamples is the DBSCAN core-point threshold.
	MinSamples int `mapstructure:"min_samples"`

	// MinClusterSize drops any discovered cluster with fewer cells.
	MinClusterSize int `mapstructure:"min_cluster_size"`

	// MinClusterFrac additionally drops clusters smaller than this
	// fraction of their population. Zero disables the fractional check.
	MinClusterFrac float64 `mapstructure:"min_cluster_frac"`

	// HistogramBins is the number of bins used for the per-feature
	// empirical distributions in the divergence computation.
	HistogramBins int `mapstructure:"histogram_bins"`

	// SmoothingFloor is the pseudo-count probability floor applied to
	// every histogram bin so the directional KL divergence stays finite
	// when a control cluster assigns zero density to an occupied region.
	SmoothingFloor float64 `mapstructure:"smoothing_floor"`

	// ClusterAggregation reduces the per-cluster maxima of one compound
	// into its scalar score: "sum" | "mean" | "max". Sum penalises
	// compounds that induce multiple distinct aberrant states.
	ClusterAggregation string `mapstructure:"cluster_aggregation"`

	// RankStrategy combines on-score and off-score into the final order:
	// "weighted_sum" | "rank_product" | "pareto".
	RankStrategy string `mapstructure:"rank_strategy"`

	// OnWeight and OffWeight are the weighted_sum coefficients.
	OnWeight  float64 `mapstructure:"on_weight"`
	OffWeight float64 `mapstructure:"off_weight"`

	// Seed fixes the random source used by the projection so identical
	// inputs and parameters always reproduce identical labels.
	Seed int64 `mapstructure:"seed"`
}

// Config is the root configuration structure for the entire platform.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Log      LogConfig      `mapstructure:"log"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
}

// Validate performs semantic validation of the fully-populated Config.
// It returns the first error encountered; callers must treat any error as
// fatal and refuse to start.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d is out of range [1, 65535]", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("config: server.mode %q is invalid; expected debug|release|test", c.Server.Mode)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("config: database.host is required")
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("config: database.port %d is out of range [1, 65535]", c.Database.Port)
	}
	if c.Database.User == "" {
		return fmt.Errorf("config: database.user is required")
	}
	if c.Database.DBName == "" {
		return fmt.Errorf("config: database.db_name is required")
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("config: database.max_conns must be >= 1, got %d", c.Database.MaxConns)
	}

	if c.Redis.Addr == "" {
		return fmt.Errorf("config: redis.addr is required")
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("config: redis.db must be >= 0, got %d", c.Redis.DB)
	}

	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("config: kafka.brokers must contain at least one broker address")
	}
	if c.Kafka.GroupID == "" {
		return fmt.Errorf("config: kafka.group_id is required")
	}

	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("config: worker.concurrency must be >= 1, got %d", c.Worker.Concurrency)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	return c.Pipeline.Validate()
}

// Validate checks the statistical-pipeline parameters. These checks run
// before any data is loaded; an invalid threshold never reaches the
// analysis code.
func (p *PipelineConfig) Validate() error {
	if p.Alpha < 0 || p.Alpha > 1 {
		return fmt.Errorf("config: pipeline.alpha %g is out of range [0, 1]", p.Alpha)
	}
	switch p.Weighting {
	case "uniform", "tail":
	default:
		return fmt.Errorf("config: pipeline.weighting %q is invalid; expected uniform|tail", p.Weighting)
	}
	if p.MinTestSamples < 2 {
		return fmt.Errorf("config: pipeline.min_test_samples must be >= 2, got %d", p.MinTestSamples)
	}
	if p.ReducedDims < 1 {
		return fmt.Errorf("config: pipeline.reduced_dims must be >= 1, got %d", p.ReducedDims)
	}
	if p.Epsilon <= 0 {
		return fmt.Errorf("config: pipeline.epsilon must be > 0, got %g", p.Epsilon)
	}
	if p.MinSamples < 1 {
		return fmt.Errorf("config: pipeline.min_samples must be >= 1, got %d", p.MinSamples)
	}
	if p.MinClusterSize < 1 {
		return fmt.Errorf("config: pipeline.min_cluster_size must be >= 1, got %d", p.MinClusterSize)
	}
	if p.MinClusterFrac < 0 || p.MinClusterFrac >= 1 {
		return fmt.Errorf("config: pipeline.min_cluster_frac %g is out of range [0, 1)", p.MinClusterFrac)
	}
	if p.HistogramBins < 2 {
		return fmt.Errorf("config: pipeline.histogram_bins must be >= 2, got %d", p.HistogramBins)
	}
	if p.SmoothingFloor <= 0 {
		return fmt.Errorf("config: pipeline.smoothing_floor must be > 0, got %g", p.SmoothingFloor)
	}
	switch p.ClusterAggregation {
	case "sum", "mean", "max":
	default:
		return fmt.Errorf("config: pipeline.cluster_aggregation %q is invalid; expected sum|mean|max", p.ClusterAggregation)
	}
	switch p.RankStrategy {
	case "weighted_sum", "rank_product", "pareto":
	default:
		return fmt.Errorf("config: pipeline.rank_strategy %q is invalid; expected weighted_sum|rank_product|pareto", p.RankStrategy)
	}
	if p.OnWeight < 0 || p.OffWeight < 0 {
		return fmt.Errorf("config: pipeline.on_weight and off_weight must be >= 0")
	}
	if p.OnWeight == 0 && p.OffWeight == 0 {
		return fmt.Errorf("config: pipeline.on_weight and off_weight must not both be zero")
	}
	return nil
}
