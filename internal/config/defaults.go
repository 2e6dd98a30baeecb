package config

import "time"

// Default values applied to unset fields before validation.
const (
	DefaultServerPort = 8080
	DefaultServerMode = "release"

	DefaultDBHost     = "localhost"
	DefaultDBPort     = 5432
	DefaultDBUser     = "postgres"
	DefaultDBName     = "morphoscreen"
	DefaultDBMaxConns = 25

	DefaultRedisAddr = "localhost:6379"

	DefaultKafkaBroker  = "localhost:9092"
	DefaultKafkaGroupID = "morphoscreen-workers"

	DefaultMinIOEndpoint = "localhost:9000"
	DefaultMinIOBucket   = "profiles"

	DefaultWorkerConcurrency = 4

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	// Pipeline defaults. Alpha follows the conventional 0.05 cut-off;
	// the smoothing floor of 1e-9 keeps directional KL finite while
	// perturbing well-populated bins by far less than sampling noise.
	DefaultAlpha              = 0.05
	DefaultWeighting          = "tail"
	DefaultMinTestSamples     = 2
	DefaultReducedDims        = 2
	DefaultEpsilon            = 0.5
	DefaultMinSamples         = 5
	DefaultMinClusterSize     = 20
	DefaultHistogramBins      = 32
	DefaultSmoothingFloor     = 1e-9
	DefaultClusterAggregation = "sum"
	DefaultRankStrategy       = "weighted_sum"
	DefaultOnWeight           = 1.0
	DefaultOffWeight          = 1.0
	DefaultSeed               = 42
)

// ApplyDefaults fills every zero-value field in cfg with the platform
// default. Fields already set by the caller are left unchanged so explicit
// configuration always wins. It must be called after unmarshalling and
// before Validate so optional-but-defaulted fields are never seen as
// missing.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = DefaultServerMode
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}

	if cfg.Database.Host == "" {
		cfg.Database.Host = DefaultDBHost
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = DefaultDBPort
	}
	if cfg.Database.User == "" {
		cfg.Database.User = DefaultDBUser
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = DefaultDBName
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = DefaultDBMaxConns
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 30 * time.Minute
	}
	if cfg.Database.MigrationPath == "" {
		cfg.Database.MigrationPath = "internal/infrastructure/database/postgres/migrations"
	}

	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.DefaultTTL == 0 {
		cfg.Redis.DefaultTTL = time.Hour
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "mscreen"
	}

	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = DefaultKafkaGroupID
	}
	if cfg.Kafka.AutoOffsetReset == "" {
		cfg.Kafka.AutoOffsetReset = "earliest"
	}
	if cfg.Kafka.BatchTimeout == 0 {
		cfg.Kafka.BatchTimeout = 100 * time.Millisecond
	}

	if cfg.MinIO.Endpoint == "" {
		cfg.MinIO.Endpoint = DefaultMinIOEndpoint
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = DefaultMinIOBucket
	}

	if cfg.Worker.Concurrency == 0 {
		cfg.Worker.Concurrency = DefaultWorkerConcurrency
	}
	if cfg.Worker.MaxRetries == 0 {
		cfg.Worker.MaxRetries = 3
	}
	if cfg.Worker.RetryBackoff == 0 {
		cfg.Worker.RetryBackoff = time.Second
	}
	if cfg.Worker.HandlerTimeout == 0 {
		cfg.Worker.HandlerTimeout = 5 * time.Minute
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}

	applyPipelineDefaults(&cfg.Pipeline)
}

// applyPipelineDefaults fills unset analysis parameters. Alpha = 0 is a
// legal explicit value but indistinguishable from "not set"; zero is
// treated as unset, which matches every practical use of the threshold.
func applyPipelineDefaults(p *PipelineConfig) {
	if p.Alpha == 0 {
		p.Alpha = DefaultAlpha
	}
	if p.Weighting == "" {
		p.Weighting = DefaultWeighting
	}
	if p.MinTestSamples == 0 {
		p.MinTestSamples = DefaultMinTestSamples
	}
	if p.ReducedDims == 0 {
		p.ReducedDims = DefaultReducedDims
	}
	if p.Epsilon == 0 {
		p.Epsilon = DefaultEpsilon
	}
	if p.MinSamples == 0 {
		p.MinSamples = DefaultMinSamples
	}
	if p.MinClusterSize == 0 {
		p.MinClusterSize = DefaultMinClusterSize
	}
	if p.HistogramBins == 0 {
		p.HistogramBins = DefaultHistogramBins
	}
	if p.SmoothingFloor == 0 {
		p.SmoothingFloor = DefaultSmoothingFloor
	}
	if p.ClusterAggregation == "" {
		p.ClusterAggregation = DefaultClusterAggregation
	}
	if p.RankStrategy == "" {
		p.RankStrategy = DefaultRankStrategy
	}
	if p.OnWeight == 0 && p.OffWeight == 0 {
		p.OnWeight = DefaultOnWeight
		p.OffWeight = DefaultOffWeight
	}
	if p.Seed == 0 {
		p.Seed = DefaultSeed
	}
}
