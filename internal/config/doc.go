// Package config loads, normalizes, and validates larder configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// LARDER_MYSQL_DSN. The Config type centralizes every knob the worker pool,
// the reclaim daemon, and the CLI need, so the queue store and claim policy
// are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths and clear validation errors.
package config
