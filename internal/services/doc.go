// Package services defines shared utilities consumed by the worker pool, the
// claim coordinator, and the CLI.
//
// Key responsibilities:
//   - Context helpers that stamp row IDs, resolver identities, review modes,
//     and correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that turn matcher and
//     write failures into consistent last_error text.
package services
