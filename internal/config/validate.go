package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateClaim(); err != nil {
		return err
	}
	if err := c.validateReclaim(); err != nil {
		return err
	}
	if err := c.validateWorker(); err != nil {
		return err
	}
	if err := c.validateDaemon(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Driver {
	case DriverSQLite:
		if strings.TrimSpace(c.Store.SQLitePath) == "" {
			return errors.New("store.sqlite_path must be set when store.driver is sqlite")
		}
	case DriverMySQL:
		if strings.TrimSpace(c.Store.MySQLDSN) == "" {
			return errors.New("store.mysql_dsn is required when store.driver is mysql (or set LARDER_MYSQL_DSN)")
		}
	default:
		return fmt.Errorf("store.driver: unsupported value %q (want sqlite or mysql)", c.Store.Driver)
	}
	return nil
}

func (c *Config) validateClaim() error {
	if c.Claim.DefaultLimit > 1000 {
		return errors.New("claim.default_limit must be at most 1000")
	}
	return nil
}

func (c *Config) validateReclaim() error {
	if c.Reclaim.MaxAttempts < 0 {
		return errors.New("reclaim.max_attempts must be >= 0 (0 disables the ceiling)")
	}
	return nil
}

func (c *Config) validateWorker() error {
	switch c.Worker.ReviewMode {
	case "ingredient", "unit", "any":
	default:
		return fmt.Errorf("worker.review_mode: unsupported value %q", c.Worker.ReviewMode)
	}
	switch c.Worker.Source {
	case "scraper", "recipe", "any":
	default:
		return fmt.Errorf("worker.source: unsupported value %q", c.Worker.Source)
	}
	if c.Worker.MinConfidence < 0 || c.Worker.MinConfidence > 1 {
		return errors.New("worker.min_confidence must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateDaemon() error {
	bind := strings.TrimSpace(c.Daemon.APIBind)
	if bind == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(bind); err != nil {
		return fmt.Errorf("daemon.api_bind: %w", err)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}
