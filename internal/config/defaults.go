package config

const (
	// DriverSQLite selects the embedded modernc SQLite store.
	DriverSQLite = "sqlite"
	// DriverMySQL selects a MySQL 8 store.
	DriverMySQL = "mysql"
)

const (
	defaultDataDir                 = "~/.local/share/larder"
	defaultLogDir                  = "~/.local/share/larder/logs"
	defaultSQLiteFile              = "match_queue.db"
	defaultClaimLimit              = 25
	defaultLeaseSeconds            = 180
	defaultReclaimIntervalSeconds  = 30
	defaultReclaimBatchLimit       = 100
	defaultReclaimMaxAttempts      = 5
	defaultReclaimErrorMessage     = "lease expired before resolution"
	defaultBackfillIntervalSeconds = 3600
	defaultWorkerConcurrency       = 2
	defaultWorkerReviewMode        = "any"
	defaultWorkerSource            = "any"
	defaultWorkerMinConfidence     = 0.75
	defaultWorkerPollSeconds       = 5
	defaultWorkerErrorRetrySeconds = 10
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Store: Store{
			Driver: DriverSQLite,
		},
		Claim: Claim{
			DefaultLimit: defaultClaimLimit,
			LeaseSeconds: defaultLeaseSeconds,
		},
		Reclaim: Reclaim{
			IntervalSeconds: defaultReclaimIntervalSeconds,
			BatchLimit:      defaultReclaimBatchLimit,
			MaxAttempts:     defaultReclaimMaxAttempts,
			ErrorMessage:    defaultReclaimErrorMessage,
		},
		Backfill: Backfill{
			Enabled:         true,
			IntervalSeconds: defaultBackfillIntervalSeconds,
		},
		Worker: Worker{
			Concurrency:         defaultWorkerConcurrency,
			BatchSize:           defaultClaimLimit,
			ReviewMode:          defaultWorkerReviewMode,
			Source:              defaultWorkerSource,
			MinConfidence:       defaultWorkerMinConfidence,
			PollIntervalSeconds: defaultWorkerPollSeconds,
			ErrorRetrySeconds:   defaultWorkerErrorRetrySeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
