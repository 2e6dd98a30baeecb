package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

func TestApplyDefaults(t *testing.T) {
	cfg := validConfig()

	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, DefaultDBUser, cfg.Database.User)
	assert.Equal(t, DefaultDBName, cfg.Database.DBName)
	assert.Equal(t, []string{DefaultKafkaBroker}, cfg.Kafka.Brokers)
	assert.Equal(t, DefaultAlpha, cfg.Pipeline.Alpha)
	assert.Equal(t, DefaultWeighting, cfg.Pipeline.Weighting)
	assert.Equal(t, DefaultSmoothingFloor, cfg.Pipeline.SmoothingFloor)
	assert.Equal(t, DefaultRankStrategy, cfg.Pipeline.RankStrategy)
	assert.EqualValues(t, DefaultSeed, cfg.Pipeline.Seed)
}

func TestApplyDefaults_ExplicitValuesWin(t *testing.T) {
	cfg := &Config{}
	cfg.Pipeline.Alpha = 0.01
	cfg.Pipeline.Epsilon = 1.25
	ApplyDefaults(cfg)

	assert.Equal(t, 0.01, cfg.Pipeline.Alpha)
	assert.Equal(t, 1.25, cfg.Pipeline.Epsilon)
}

func TestValidate_OK(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidate_PipelineBounds(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*PipelineConfig)
	}{
		{"alpha_negative", func(p *PipelineConfig) { p.Alpha = -0.01 }},
		{"alpha_above_one", func(p *PipelineConfig) { p.Alpha = 1.01 }},
		{"unknown_weighting", func(p *PipelineConfig) { p.Weighting = "quantile" }},
		{"min_test_samples_too_small", func(p *PipelineConfig) { p.MinTestSamples = 1 }},
		{"epsilon_zero", func(p *PipelineConfig) { p.Epsilon = -1 }},
		{"min_samples_zero", func(p *PipelineConfig) { p.MinSamples = -5 }},
		{"negative_min_cluster_size", func(p *PipelineConfig) { p.MinClusterSize = -1 }},
		{"histogram_bins_too_small", func(p *PipelineConfig) { p.HistogramBins = 1 }},
		{"smoothing_floor_zero", func(p *PipelineConfig) { p.SmoothingFloor = -1e-9 }},
		{"unknown_aggregation", func(p *PipelineConfig) { p.ClusterAggregation = "median" }},
		{"unknown_rank_strategy", func(p *PipelineConfig) { p.RankStrategy = "lexicographic" }},
		{"negative_weight", func(p *PipelineConfig) { p.OnWeight = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg.Pipeline)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_ZeroWeights(t *testing.T) {
	cfg := validConfig()
	cfg.Pipeline.OnWeight = 0
	cfg.Pipeline.OffWeight = 0
	assert.Error(t, cfg.Validate())
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
server:
  port: 9090
pipeline:
  alpha: 0.01
  rank_strategy: rank_product
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 0.01, cfg.Pipeline.Alpha)
	assert.Equal(t, "rank_product", cfg.Pipeline.RankStrategy)
	// Unset fields still receive defaults.
	assert.Equal(t, DefaultEpsilon, cfg.Pipeline.Epsilon)
}

func TestLoad_RejectsUnsupportedExtension(t *testing.T) {
	_, err := Load("config.toml")
	assert.Error(t, err)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pipeline:\n  alpha: 2.0\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("MSCREEN_PIPELINE_ALPHA", "0.10")
	t.Setenv("MSCREEN_SERVER_PORT", "7070")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 0.10, cfg.Pipeline.Alpha)
	assert.Equal(t, 7070, cfg.Server.Port)
}
