package claim

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"larder/internal/config"
	"larder/internal/queue"
)

// Two callers that both page before either stamps receive the same row.
// The atomic strategy exists to rule this out.
func TestFallbackInterleavingCanDoubleClaim(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = base
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Store.SQLitePath = filepath.Join(base, "q.db")
	store, err := queue.Open(&cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	row, _, err := store.Insert(ctx, queue.NewRow{RawName: "shallot", Source: queue.SourceScraper, NeedsIngredientReview: true})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	s := fallbackStrategy{store: store}
	reqA := queue.ClaimRequest{ResolverID: "a", Lease: time.Minute}.Normalize()
	reqB := queue.ClaimRequest{ResolverID: "b", Lease: time.Minute}.Normalize()

	idsA, err := s.collect(ctx, reqA)
	if err != nil {
		t.Fatalf("collect a: %v", err)
	}
	idsB, err := s.collect(ctx, reqB)
	if err != nil {
		t.Fatalf("collect b: %v", err)
	}
	rowsA, err := s.markProcessing(ctx, idsA, reqA)
	if err != nil {
		t.Fatalf("mark a: %v", err)
	}
	rowsB, err := s.markProcessing(ctx, idsB, reqB)
	if err != nil {
		t.Fatalf("mark b: %v", err)
	}
	if len(rowsA) != 1 || len(rowsB) != 1 || rowsA[0].ID != row.ID || rowsB[0].ID != row.ID {
		t.Fatalf("expected both callers to receive %s, got %d and %d rows", row.ID, len(rowsA), len(rowsB))
	}
	if rowsB[0].ResolvedBy != "b" {
		t.Fatalf("second stamp should win: %+v", rowsB[0])
	}
}
