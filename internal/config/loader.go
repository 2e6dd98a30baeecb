// Package config provides configuration loading, defaults, and validation
// for the MorphoScreen platform.
package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// envPrefix is the environment variable prefix used by all platform
// settings.
const envPrefix = "MSCREEN"

// newViper builds a pre-configured Viper instance: YAML file type, MSCREEN_
// env prefix, automatic env binding, and a key replacer mapping "." → "_"
// so that nested keys like "pipeline.alpha" resolve to
// "MSCREEN_PIPELINE_ALPHA".
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	registerKeys(v)
	return v
}

// registerKeys declares every configuration key to viper. AutomaticEnv only
// overrides keys viper already knows about, so without this an MSCREEN_*
// variable for a key absent from the config file would be silently ignored
// by Unmarshal.
func registerKeys(v *viper.Viper) {
	for _, key := range []string{
		"server.port", "server.mode", "server.read_timeout",
		"server.write_timeout", "server.shutdown_timeout",
		"database.host", "database.port", "database.user",
		"database.password", "database.db_name", "database.ssl_mode",
		"database.max_conns", "database.min_conns",
		"database.conn_max_lifetime", "database.migration_path",
		"redis.addr", "redis.password", "redis.db", "redis.pool_size",
		"redis.dial_timeout", "redis.read_timeout", "redis.write_timeout",
		"redis.default_ttl", "redis.key_prefix",
		"kafka.brokers", "kafka.group_id", "kafka.auto_offset_reset",
		"kafka.producer_retries", "kafka.batch_timeout",
		"minio.endpoint", "minio.access_key", "minio.secret_key",
		"minio.bucket", "minio.use_ssl",
		"worker.concurrency", "worker.max_retries", "worker.retry_backoff",
		"worker.handler_timeout",
		"log.level", "log.format", "log.output",
		"pipeline.alpha", "pipeline.weighting", "pipeline.min_test_samples",
		"pipeline.reduced_dims", "pipeline.epsilon", "pipeline.min_samples",
		"pipeline.min_cluster_size", "pipeline.min_cluster_frac",
		"pipeline.histogram_bins", "pipeline.smoothing_floor",
		"pipeline.cluster_aggregation", "pipeline.rank_strategy",
		"pipeline.on_weight", "pipeline.off_weight", "pipeline.seed",
	} {
		if !v.IsSet(key) {
			v.SetDefault(key, nil)
		}
	}
}

// Load reads the YAML file at configPath, merges MSCREEN_* environment
// variable overrides, applies defaults for unset fields, and validates the
// result. It returns a fully-populated *Config or a descriptive error.
// Only the .yaml/.yml extensions are accepted.
func Load(configPath string) (*Config, error) {
	if !strings.HasSuffix(configPath, ".yaml") && !strings.HasSuffix(configPath, ".yml") {
		return nil, fmt.Errorf("config: unsupported file format %q, expected .yaml", configPath)
	}

	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: failed to read config file %q: %w", configPath, err)
	}

	return unmarshalAndFinalize(v)
}

// LoadFromEnv builds a Config entirely from MSCREEN_* environment
// variables, with no config file required. This is the preferred loading
// strategy for containerised deployments.
func LoadFromEnv() (*Config, error) {
	v := newViper()
	return unmarshalAndFinalize(v)
}

func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal configuration: %w", err)
	}

	ApplyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return cfg, nil
}

// Watch monitors configPath for changes and invokes onChange with the newly
// parsed Config whenever the file is modified on disk. Intended for
// hot-reloading non-critical settings such as the log level; pipeline
// parameters of an already-running analysis are never changed mid-run.
//
// Watch is non-blocking; it starts a background goroutine managed by
// viper. A changed file that fails to parse or validate does not invoke
// onChange.
func Watch(configPath string, onChange func(*Config)) {
	v := newViper()
	v.SetConfigFile(configPath)

	// Initial read; callers should have called Load first.
	_ = v.ReadInConfig()

	v.WatchConfig()
	v.OnConfigChange(func(_ fsnotify.Event) {
		cfg, err := unmarshalAndFinalize(v)
		if err != nil {
			// An invalid edit must not push the application into a
			// broken state; keep the previous configuration.
			return
		}
		onChange(cfg)
	})
}

// MustLoad is a convenience wrapper around Load that panics on any error.
// Intended for main() where a config-load failure is always fatal.
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}
