package logging

import (
	"context"
	"log/slog"

	"larder/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldRowID is the standardized structured logging key for match queue row identifiers.
	FieldRowID = "row_id"
	// FieldResolver is the standardized structured logging key for the resolver identity holding a lease.
	FieldResolver = "resolver"
	// FieldReviewMode is the standardized structured logging key for the claim review filter.
	FieldReviewMode = "review_mode"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldEventType classifies warnings and errors for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint carries the next step an operator should take.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := services.RowIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRowID, id))
	}
	if resolver, ok := services.ResolverFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldResolver, resolver))
	}
	if mode, ok := services.ReviewModeFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldReviewMode, mode))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
