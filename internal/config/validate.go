package config

import (
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateEnrichment(); err != nil {
		return err
	}
	if err := c.validateWriter(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.WarehouseDir) == "" {
		return fmt.Errorf("paths.warehouse_dir is required")
	}
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		return fmt.Errorf("paths.staging_dir is required")
	}
	if c.Paths.WarehouseDir == c.Paths.StagingDir {
		return fmt.Errorf("paths.staging_dir must differ from paths.warehouse_dir")
	}
	return nil
}

func (c *Config) validateEnrichment() error {
	if c.Enrichment.BatchSize < 1 || c.Enrichment.BatchSize > 100 {
		return fmt.Errorf("enrichment.batch_size must be between 1 and 100, got %d", c.Enrichment.BatchSize)
	}
	if c.Enrichment.Workers < 1 {
		return fmt.Errorf("enrichment.workers must be at least 1, got %d", c.Enrichment.Workers)
	}
	if c.Enrichment.RequestsPerSecond <= 0 {
		return fmt.Errorf("enrichment.requests_per_second must be positive, got %v", c.Enrichment.RequestsPerSecond)
	}
	if c.Enrichment.Burst < 1 {
		return fmt.Errorf("enrichment.burst must be at least 1, got %d", c.Enrichment.Burst)
	}
	if c.Enrichment.CallTimeoutSeconds < 1 {
		return fmt.Errorf("enrichment.call_timeout_seconds must be at least 1, got %d", c.Enrichment.CallTimeoutSeconds)
	}
	return validateRetry("enrichment.retry", c.Enrichment.Retry)
}

func (c *Config) validateWriter() error {
	if c.Writer.LeaseTimeoutSeconds < 1 {
		return fmt.Errorf("writer.lease_timeout_seconds must be at least 1, got %d", c.Writer.LeaseTimeoutSeconds)
	}
	if c.Writer.CommitRetries < 0 {
		return fmt.Errorf("writer.commit_retries must not be negative, got %d", c.Writer.CommitRetries)
	}
	if c.Writer.StaleStagingHours < 1 {
		return fmt.Errorf("writer.stale_staging_hours must be at least 1, got %d", c.Writer.StaleStagingHours)
	}
	return validateRetry("writer.retry", c.Writer.Retry)
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}

func validateRetry(section string, r Retry) error {
	if r.MaxAttempts < 1 {
		return fmt.Errorf("%s.max_attempts must be at least 1, got %d", section, r.MaxAttempts)
	}
	if r.BaseDelayMS < 0 {
		return fmt.Errorf("%s.base_delay_ms must not be negative, got %d", section, r.BaseDelayMS)
	}
	if r.MaxDelayMS < r.BaseDelayMS {
		return fmt.Errorf("%s.max_delay_ms must be at least base_delay_ms, got %d", section, r.MaxDelayMS)
	}
	if r.Jitter < 0 || r.Jitter > 1 {
		return fmt.Errorf("%s.jitter must be between 0 and 1, got %v", section, r.Jitter)
	}
	return nil
}
