package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains data and log directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// Store selects the SQL backend holding the match queue table.
type Store struct {
	Driver     string `toml:"driver"`
	SQLitePath string `toml:"sqlite_path"`
	MySQLDSN   string `toml:"mysql_dsn"`
}

// Claim contains defaults for claim calls and the strategy selection policy.
type Claim struct {
	DefaultLimit   int  `toml:"default_limit"`
	LeaseSeconds   int  `toml:"lease_seconds"`
	AllowFallback  bool `toml:"allow_fallback"`
	InlineBackfill bool `toml:"inline_backfill"`
}

// Reclaim contains settings for the expired-lease sweep.
type Reclaim struct {
	IntervalSeconds int    `toml:"interval_seconds"`
	BatchLimit      int    `toml:"batch_limit"`
	MaxAttempts     int    `toml:"max_attempts"`
	ErrorMessage    string `toml:"error_message"`
}

// Backfill contains scheduling for the legacy review-flag backfill job.
type Backfill struct {
	Enabled         bool `toml:"enabled"`
	IntervalSeconds int  `toml:"interval_seconds"`
}

// Worker contains settings for the in-process worker pool.
type Worker struct {
	ResolverID          string  `toml:"resolver_id"`
	Concurrency         int     `toml:"concurrency"`
	BatchSize           int     `toml:"batch_size"`
	ReviewMode          string  `toml:"review_mode"`
	Source              string  `toml:"source"`
	MinConfidence       float64 `toml:"min_confidence"`
	PollIntervalSeconds int     `toml:"poll_interval_seconds"`
	ErrorRetrySeconds   int     `toml:"error_retry_seconds"`
	CatalogPath         string  `toml:"catalog_path"`
}

// Daemon contains settings for the long-running reclaim host.
type Daemon struct {
	// APIBind enables the read-only HTTP status API when set, e.g. "127.0.0.1:7487".
	APIBind string `toml:"api_bind"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for larder.
//
// Configuration sections by subsystem:
//   - Paths: data and log directories
//   - Store: SQL driver and connection settings
//   - Claim: claim defaults and fallback policy
//   - Reclaim: expired lease sweep
//   - Backfill: legacy review flag migration job
//   - Worker: worker pool and matcher catalog
//   - Daemon: status API
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	Store    Store    `toml:"store"`
	Claim    Claim    `toml:"claim"`
	Reclaim  Reclaim  `toml:"reclaim"`
	Backfill Backfill `toml:"backfill"`
	Worker   Worker   `toml:"worker"`
	Daemon   Daemon   `toml:"daemon"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/larder/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		info, err := os.Stat(expanded)
		if err != nil {
			if os.IsNotExist(err) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config %q: %w", expanded, err)
		}
		if info.IsDir() {
			return "", false, fmt.Errorf("config path %q is a directory", expanded)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("larder.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the data and log directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.Paths.LogDir}
	if c.Store.Driver == DriverSQLite {
		dirs = append(dirs, filepath.Dir(c.Store.SQLitePath))
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LeaseDuration returns the configured default claim lease.
func (c *Config) LeaseDuration() time.Duration {
	return time.Duration(c.Claim.LeaseSeconds) * time.Second
}

// ReclaimInterval returns how often the daemon sweeps expired leases.
func (c *Config) ReclaimInterval() time.Duration {
	return time.Duration(c.Reclaim.IntervalSeconds) * time.Second
}

// BackfillInterval returns how often the daemon reruns the legacy backfill.
// Zero means the job only runs once at daemon start.
func (c *Config) BackfillInterval() time.Duration {
	return time.Duration(c.Backfill.IntervalSeconds) * time.Second
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "larder-daemon.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the config as TOML.
func (c *Config) Encode() ([]byte, error) {
	out, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return out, nil
}
