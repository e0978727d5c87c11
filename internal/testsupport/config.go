package testsupport

import (
	"path/filepath"
	"testing"

	"trackforge/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.WarehouseDir = filepath.Join(base, "warehouse")
	cfg.Paths.StagingDir = filepath.Join(base, "staging")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Spotify.ClientID = "test-client"
	cfg.Spotify.ClientSecret = "test-secret"

	// Keep retries short so failure-path tests stay fast.
	cfg.Enrichment.Retry.BaseDelayMS = 1
	cfg.Enrichment.Retry.MaxDelayMS = 5
	cfg.Writer.Retry.BaseDelayMS = 1
	cfg.Writer.Retry.MaxDelayMS = 5

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithEnrichmentBatchSize overrides the audio-features batch size.
func WithEnrichmentBatchSize(size int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Enrichment.BatchSize = size
	}
}

// WithEnrichmentWorkers overrides the enrichment worker count.
func WithEnrichmentWorkers(workers int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Enrichment.Workers = workers
	}
}

// WithCommitRetries overrides the partition commit retry budget.
func WithCommitRetries(retries int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Writer.CommitRetries = retries
	}
}
