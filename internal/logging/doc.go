// Package logging assembles structured slog loggers and formatting helpers used
// across larder.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so claim and resolution code can
// tag log lines with row IDs, resolver identities, and correlation IDs.
// WarnWithContext and ErrorWithContext keep warnings actionable by always
// attaching event_type, error_hint, and impact fields.
package logging
