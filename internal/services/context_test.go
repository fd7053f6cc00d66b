package services_test

import (
	"context"
	"testing"

	"larder/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithRowID(ctx, "row-42")
	ctx = services.WithResolver(ctx, "worker-1")
	ctx = services.WithReviewMode(ctx, "ingredient")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.RowIDFromContext(ctx); !ok || id != "row-42" {
		t.Fatalf("unexpected row id: %v %v", id, ok)
	}
	if resolver, ok := services.ResolverFromContext(ctx); !ok || resolver != "worker-1" {
		t.Fatalf("unexpected resolver: %v %v", resolver, ok)
	}
	if mode, ok := services.ReviewModeFromContext(ctx); !ok || mode != "ingredient" {
		t.Fatalf("unexpected review mode: %v %v", mode, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithRowID(ctx, "")
	ctx = services.WithResolver(ctx, "")
	if _, ok := services.RowIDFromContext(ctx); ok {
		t.Fatal("expected no row id value")
	}
	if _, ok := services.ResolverFromContext(ctx); ok {
		t.Fatal("expected no resolver value")
	}
}
