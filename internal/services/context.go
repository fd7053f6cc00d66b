package services

import "context"

type contextKey string

const (
	rowIDKey      contextKey = "row_id"
	resolverKey   contextKey = "resolver"
	reviewModeKey contextKey = "review_mode"
	requestIDKey  contextKey = "request_id"
)

// WithRowID annotates context with the match queue row identifier.
func WithRowID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, rowIDKey, id)
}

// RowIDFromContext extracts the row identifier if present.
func RowIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(rowIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithResolver annotates context with the resolver identity holding the lease.
func WithResolver(ctx context.Context, resolver string) context.Context {
	if resolver == "" {
		return ctx
	}
	return context.WithValue(ctx, resolverKey, resolver)
}

// ResolverFromContext returns the resolver identity if present.
func ResolverFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(resolverKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithReviewMode annotates context with the claim review filter.
func WithReviewMode(ctx context.Context, mode string) context.Context {
	if mode == "" {
		return ctx
	}
	return context.WithValue(ctx, reviewModeKey, mode)
}

// ReviewModeFromContext returns the review filter if present.
func ReviewModeFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(reviewModeKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
