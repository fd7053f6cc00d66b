package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeStore(); err != nil {
		return err
	}
	c.normalizeClaim()
	c.normalizeReclaim()
	if err := c.normalizeWorker(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.DataDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeStore() error {
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	switch c.Store.Driver {
	case "", "sqlite3":
		c.Store.Driver = DriverSQLite
	case "mariadb":
		c.Store.Driver = DriverMySQL
	}

	if c.Store.MySQLDSN == "" {
		if value, ok := os.LookupEnv("LARDER_MYSQL_DSN"); ok {
			c.Store.MySQLDSN = strings.TrimSpace(value)
		}
	}

	if strings.TrimSpace(c.Store.SQLitePath) == "" {
		c.Store.SQLitePath = filepath.Join(c.Paths.DataDir, defaultSQLiteFile)
	}
	var err error
	if c.Store.SQLitePath, err = expandPath(c.Store.SQLitePath); err != nil {
		return fmt.Errorf("store.sqlite_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeClaim() {
	if c.Claim.DefaultLimit <= 0 {
		c.Claim.DefaultLimit = defaultClaimLimit
	}
	if c.Claim.LeaseSeconds <= 0 {
		c.Claim.LeaseSeconds = defaultLeaseSeconds
	}
}

func (c *Config) normalizeReclaim() {
	if c.Reclaim.IntervalSeconds <= 0 {
		c.Reclaim.IntervalSeconds = defaultReclaimIntervalSeconds
	}
	if c.Reclaim.BatchLimit <= 0 {
		c.Reclaim.BatchLimit = defaultReclaimBatchLimit
	}
	c.Reclaim.ErrorMessage = strings.TrimSpace(c.Reclaim.ErrorMessage)
}

func (c *Config) normalizeWorker() error {
	if c.Worker.ResolverID == "" {
		if value, ok := os.LookupEnv("LARDER_RESOLVER_ID"); ok {
			c.Worker.ResolverID = value
		}
	}
	c.Worker.ResolverID = strings.TrimSpace(c.Worker.ResolverID)
	if c.Worker.ResolverID == "" {
		c.Worker.ResolverID = defaultResolverID()
	}
	if c.Worker.Concurrency <= 0 {
		c.Worker.Concurrency = defaultWorkerConcurrency
	}
	if c.Worker.BatchSize <= 0 {
		c.Worker.BatchSize = c.Claim.DefaultLimit
	}
	c.Worker.ReviewMode = strings.ToLower(strings.TrimSpace(c.Worker.ReviewMode))
	if c.Worker.ReviewMode == "" {
		c.Worker.ReviewMode = defaultWorkerReviewMode
	}
	c.Worker.Source = strings.ToLower(strings.TrimSpace(c.Worker.Source))
	if c.Worker.Source == "" {
		c.Worker.Source = defaultWorkerSource
	}
	if c.Worker.PollIntervalSeconds <= 0 {
		c.Worker.PollIntervalSeconds = defaultWorkerPollSeconds
	}
	if c.Worker.ErrorRetrySeconds <= 0 {
		c.Worker.ErrorRetrySeconds = defaultWorkerErrorRetrySeconds
	}
	if strings.TrimSpace(c.Worker.CatalogPath) != "" {
		var err error
		if c.Worker.CatalogPath, err = expandPath(c.Worker.CatalogPath); err != nil {
			return fmt.Errorf("worker.catalog_path: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

// defaultResolverID returns <hostname>-<8 hex chars> so concurrent hosts never
// share an identity.
func defaultResolverID() string {
	host, err := os.Hostname()
	if err != nil || strings.TrimSpace(host) == "" {
		host = "larder"
	}
	return host + "-" + uuid.NewString()[:8]
}
