package config

const (
	defaultWarehouseDir = "~/.local/share/trackforge/warehouse"
	defaultStagingDir   = "~/.local/share/trackforge/staging"
	defaultLogDir       = "~/.local/share/trackforge/logs"

	defaultSpotifyTokenURL = "https://accounts.spotify.com/api/token"

	defaultLogFormat = "console"
	defaultLogLevel  = "info"

	// Spotify caps the audio-features endpoint at 100 ids per call.
	defaultEnrichmentBatchSize   = 100
	defaultEnrichmentWorkers     = 4
	defaultEnrichmentRate        = 10.0
	defaultEnrichmentBurst       = 10
	defaultEnrichmentCallTimeout = 30

	defaultRetryMaxAttempts = 4
	defaultRetryBaseDelayMS = 500
	defaultRetryMaxDelayMS  = 8000
	defaultRetryJitter      = 0.2

	defaultLeaseTimeoutSeconds = 30
	defaultCommitRetries       = 3
	defaultStaleStagingHours   = 24
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WarehouseDir: defaultWarehouseDir,
			StagingDir:   defaultStagingDir,
			LogDir:       defaultLogDir,
		},
		Spotify: Spotify{
			TokenURL: defaultSpotifyTokenURL,
		},
		Enrichment: Enrichment{
			BatchSize:          defaultEnrichmentBatchSize,
			Workers:            defaultEnrichmentWorkers,
			RequestsPerSecond:  defaultEnrichmentRate,
			Burst:              defaultEnrichmentBurst,
			CallTimeoutSeconds: defaultEnrichmentCallTimeout,
			Retry: Retry{
				MaxAttempts: defaultRetryMaxAttempts,
				BaseDelayMS: defaultRetryBaseDelayMS,
				MaxDelayMS:  defaultRetryMaxDelayMS,
				Jitter:      defaultRetryJitter,
			},
		},
		Writer: Writer{
			LeaseTimeoutSeconds: defaultLeaseTimeoutSeconds,
			CommitRetries:       defaultCommitRetries,
			StaleStagingHours:   defaultStaleStagingHours,
			Retry: Retry{
				MaxAttempts: defaultRetryMaxAttempts,
				BaseDelayMS: defaultRetryBaseDelayMS,
				MaxDelayMS:  defaultRetryMaxDelayMS,
				Jitter:      defaultRetryJitter,
			},
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
