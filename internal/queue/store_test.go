package queue_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"larder/internal/queue"
	"larder/internal/testsupport"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func TestOpenAppliesMigrations(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	row := testsupport.MustEnqueue(t, store, "Roma Tomato 1lb", queue.SourceScraper, true, true)
	if row.ID == "" {
		t.Fatal("expected row ID to be assigned")
	}
	if row.Status != queue.StatusPending {
		t.Fatalf("expected pending, got %s", row.Status)
	}

	fetched, err := store.GetByID(ctx, row.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.RawName != "Roma Tomato 1lb" || !fetched.NeedsIngredientReview || !fetched.NeedsUnitReview {
		t.Fatalf("unexpected fetched row: %#v", fetched)
	}

	version, err := store.SchemaVersion(ctx)
	if err != nil || version != "0001_init" {
		t.Fatalf("unexpected schema version %q err=%v", version, err)
	}

	// Reopening must not reapply migrations.
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	reopened := testsupport.MustOpenStore(t, cfg)
	if _, err := reopened.GetByID(ctx, row.ID); err != nil {
		t.Fatalf("row lost after reopen: %v", err)
	}
}

func TestGetByIDNotFound(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	_, err := store.GetByID(context.Background(), "missing")
	if !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInsertDeduplicatesOpenRows(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	in := queue.NewRow{RawName: "Yellow Onion", DedupKey: "scraper:yellow onion", Source: queue.SourceScraper, NeedsIngredientReview: true}
	first, created, err := store.Insert(ctx, in)
	if err != nil || !created {
		t.Fatalf("first insert: created=%v err=%v", created, err)
	}
	second, created, err := store.Insert(ctx, in)
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if created || second.ID != first.ID {
		t.Fatalf("expected existing row %s, got %s created=%v", first.ID, second.ID, created)
	}

	// A resolved row no longer blocks a fresh insert.
	if err := store.MarkResolved(ctx, first.ID, queue.Resolution{IngredientID: ptr("onion-yellow")}); err != nil {
		t.Fatalf("MarkResolved: %v", err)
	}
	third, created, err := store.Insert(ctx, in)
	if err != nil || !created || third.ID == first.ID {
		t.Fatalf("expected new row after resolution, created=%v err=%v", created, err)
	}
}

func TestInsertValidation(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	cases := []queue.NewRow{
		{RawName: "", Source: queue.SourceScraper},
		{RawName: "milk", Source: queue.SourceAny},
		{RawName: "milk", Source: "manual"},
	}
	for _, in := range cases {
		if _, _, err := store.Insert(ctx, in); !errors.Is(err, queue.ErrValidation) {
			t.Fatalf("Insert(%+v): expected ErrValidation, got %v", in, err)
		}
	}
}

func TestClaimAtomicStampsLease(t *testing.T) {
	clock := testsupport.NewClock(epoch)
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t), queue.WithClock(clock.Now))
	ctx := context.Background()

	row := testsupport.MustEnqueue(t, store, "whole milk 1 gal", queue.SourceScraper, true, false)
	if err := store.MarkFailed(ctx, testsupport.MustEnqueue(t, store, "other", queue.SourceScraper, true, false).ID, "", "seed"); err != nil {
		t.Fatalf("seed failed row: %v", err)
	}

	claimed, err := store.ClaimAtomic(ctx, queue.ClaimRequest{ResolverID: "worker-1", Lease: 90 * time.Second})
	if err != nil {
		t.Fatalf("ClaimAtomic: %v", err)
	}
	if len(claimed) != 1 || claimed[0].ID != row.ID {
		t.Fatalf("expected only the pending row, got %d rows", len(claimed))
	}
	got := claimed[0]
	if got.Status != queue.StatusProcessing {
		t.Fatalf("expected processing, got %s", got.Status)
	}
	if got.ProcessingStartedAt == nil || got.ProcessingLeaseExpiresAt == nil {
		t.Fatal("expected both lease timestamps")
	}
	if !got.ProcessingStartedAt.Equal(epoch) {
		t.Fatalf("unexpected start %v", got.ProcessingStartedAt)
	}
	if !got.ProcessingLeaseExpiresAt.After(*got.ProcessingStartedAt) {
		t.Fatal("lease must expire after it starts")
	}
	if got.ProcessingLeaseExpiresAt.Sub(*got.ProcessingStartedAt) != 90*time.Second {
		t.Fatalf("unexpected lease length %s", got.ProcessingLeaseExpiresAt.Sub(*got.ProcessingStartedAt))
	}
	if got.ResolvedBy != "worker-1" {
		t.Fatalf("expected resolver stamped, got %q", got.ResolvedBy)
	}
	if !got.LeaseActive(clock.Now()) {
		t.Fatal("expected lease to be active")
	}

	again, err := store.ClaimAtomic(ctx, queue.ClaimRequest{ResolverID: "worker-2"})
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("processing rows must not be claimed again, got %d", len(again))
	}
}

func TestClaimAtomicOrdersOldestFirstAndHonoursLimit(t *testing.T) {
	clock := testsupport.NewClock(epoch)
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t), queue.WithClock(clock.Tick(time.Second)))

	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, testsupport.MustEnqueue(t, store, fmt.Sprintf("item %d", i), queue.SourceScraper, true, false).ID)
	}

	claimed, err := store.ClaimAtomic(context.Background(), queue.ClaimRequest{Limit: 3, ResolverID: "w"})
	if err != nil {
		t.Fatalf("ClaimAtomic: %v", err)
	}
	if len(claimed) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(claimed))
	}
	for i, row := range claimed {
		if row.ID != ids[i] {
			t.Fatalf("position %d: expected %s got %s", i, ids[i], row.ID)
		}
	}
}

func TestClaimAtomicFiltersSource(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	scraper := testsupport.MustEnqueue(t, store, "scraped", queue.SourceScraper, true, false)
	recipe := testsupport.MustEnqueue(t, store, "imported", queue.SourceRecipe, true, false)

	claimed, err := store.ClaimAtomic(ctx, queue.ClaimRequest{Source: queue.SourceRecipe, ResolverID: "w"})
	if err != nil {
		t.Fatalf("ClaimAtomic: %v", err)
	}
	if len(claimed) != 1 || claimed[0].ID != recipe.ID {
		t.Fatalf("expected recipe row only, got %v", claimed)
	}
	row, _ := store.GetByID(ctx, scraper.ID)
	if row.Status != queue.StatusPending {
		t.Fatalf("scraper row should stay pending, got %s", row.Status)
	}
}

func TestClaimAtomicIsExclusiveAcrossConcurrentCallers(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	const total = 60
	for i := 0; i < total; i++ {
		testsupport.MustEnqueue(t, store, fmt.Sprintf("name %02d", i), queue.SourceScraper, true, true)
	}

	const workers = 6
	var (
		mu   sync.Mutex
		seen = make(map[string]string)
		wg   sync.WaitGroup
		errs = make(chan error, workers)
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(worker string) {
			defer wg.Done()
			for {
				rows, err := store.ClaimAtomic(ctx, queue.ClaimRequest{Limit: 4, ResolverID: worker})
				if err != nil {
					errs <- err
					return
				}
				if len(rows) == 0 {
					return
				}
				mu.Lock()
				for _, row := range rows {
					if owner, dup := seen[row.ID]; dup {
						mu.Unlock()
						errs <- fmt.Errorf("row %s claimed by %s and %s", row.ID, owner, worker)
						return
					}
					seen[row.ID] = worker
				}
				mu.Unlock()
			}
		}(fmt.Sprintf("worker-%d", w))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
	if len(seen) != total {
		t.Fatalf("expected %d claimed rows, got %d", total, len(seen))
	}
}

func TestReviewModeFiltering(t *testing.T) {
	combos := []struct {
		name            string
		needsIngredient bool
		needsUnit       bool
	}{
		{"both", true, true},
		{"ingredient-only", true, false},
		{"unit-only", false, true},
		{"neither", false, false},
	}
	cases := []struct {
		mode queue.ReviewMode
		want map[string]bool
	}{
		{queue.ReviewUnit, map[string]bool{"both": true, "unit-only": true}},
		{queue.ReviewIngredient, map[string]bool{"both": true, "ingredient-only": true}},
		{queue.ReviewAny, map[string]bool{"both": true, "ingredient-only": true, "unit-only": true, "neither": true}},
	}

	for _, tc := range cases {
		t.Run(string(tc.mode), func(t *testing.T) {
			store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
			names := make(map[string]string)
			for _, combo := range combos {
				row := testsupport.MustEnqueue(t, store, combo.name, queue.SourceScraper, combo.needsIngredient, combo.needsUnit)
				names[row.ID] = combo.name
			}

			claimed, err := store.ClaimAtomic(context.Background(), queue.ClaimRequest{Mode: tc.mode, Limit: 10, ResolverID: "w"})
			if err != nil {
				t.Fatalf("ClaimAtomic: %v", err)
			}
			got := make(map[string]bool)
			for _, row := range claimed {
				got[names[row.ID]] = true
				if !tc.mode.Matches(row) {
					t.Fatalf("client filter disagrees with SQL for %s", names[row.ID])
				}
			}
			if len(got) != len(tc.want) {
				t.Fatalf("mode %s: got %v want %v", tc.mode, got, tc.want)
			}
			for name := range tc.want {
				if !got[name] {
					t.Fatalf("mode %s: missing %s (got %v)", tc.mode, name, got)
				}
			}
		})
	}
}

func TestMarkResolvedIsIdempotent(t *testing.T) {
	clock := testsupport.NewClock(epoch)
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t), queue.WithClock(clock.Now))
	ctx := context.Background()

	row := testsupport.MustEnqueue(t, store, "plum tomato", queue.SourceScraper, true, true)
	if _, err := store.ClaimAtomic(ctx, queue.ClaimRequest{ResolverID: "worker-1"}); err != nil {
		t.Fatalf("claim: %v", err)
	}

	res := queue.Resolution{
		IngredientID:   ptr("tomato-roma"),
		Unit:           ptr("lb"),
		Quantity:       ptr(1.0),
		UnitConfidence: ptr(0.9),
		ResolvedBy:     "worker-1",
	}
	clock.Advance(5 * time.Second)
	if err := store.MarkResolved(ctx, row.ID, res); err != nil {
		t.Fatalf("first MarkResolved: %v", err)
	}
	first, _ := store.GetByID(ctx, row.ID)

	clock.Advance(time.Minute)
	if err := store.MarkResolved(ctx, row.ID, res); err != nil {
		t.Fatalf("second MarkResolved: %v", err)
	}
	second, _ := store.GetByID(ctx, row.ID)

	if first.ResolvedAt == nil || second.ResolvedAt == nil || !first.ResolvedAt.Equal(*second.ResolvedAt) {
		t.Fatalf("resolved_at changed: %v -> %v", first.ResolvedAt, second.ResolvedAt)
	}
	if fmt.Sprintf("%+v", rowState(first)) != fmt.Sprintf("%+v", rowState(second)) {
		t.Fatalf("row state changed:\n%+v\n%+v", rowState(first), rowState(second))
	}
	if second.Status != queue.StatusResolved || second.ProcessingStartedAt != nil || second.ProcessingLeaseExpiresAt != nil {
		t.Fatalf("unexpected resolved row %+v", second)
	}
	if second.NeedsIngredientReview || second.NeedsUnitReview {
		t.Fatal("expected review flags cleared")
	}
}

type snapshot struct {
	Status       queue.Status
	Ingredient   string
	Unit         string
	Quantity     float64
	UnitConf     float64
	ResolvedBy   string
	NeedsIng     bool
	NeedsUnit    bool
	LastError    string
	AttemptCount int
}

func rowState(r *queue.Row) snapshot {
	s := snapshot{
		Status:       r.Status,
		Ingredient:   r.ResolvedIngredientID,
		Unit:         r.ResolvedUnit,
		ResolvedBy:   r.ResolvedBy,
		NeedsIng:     r.NeedsIngredientReview,
		NeedsUnit:    r.NeedsUnitReview,
		LastError:    r.LastError,
		AttemptCount: r.AttemptCount,
	}
	if r.ResolvedQuantity != nil {
		s.Quantity = *r.ResolvedQuantity
	}
	if r.UnitConfidence != nil {
		s.UnitConf = *r.UnitConfidence
	}
	return s
}

func TestMarkResolvedPartialUpdateKeepsUnsetFields(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	row := testsupport.MustEnqueue(t, store, "roma tomato", queue.SourceScraper, true, true)
	if err := store.MarkIngredientResolvedPendingUnit(ctx, row.ID, "tomato-roma", "roma tomato", 0.92, "worker-1"); err != nil {
		t.Fatalf("pending unit: %v", err)
	}
	if err := store.MarkResolved(ctx, row.ID, queue.Resolution{Unit: ptr("lb"), ResolvedBy: "worker-2", KeepIngredientReview: true}); err != nil {
		t.Fatalf("MarkResolved: %v", err)
	}
	got, _ := store.GetByID(ctx, row.ID)
	if got.ResolvedIngredientID != "tomato-roma" {
		t.Fatalf("ingredient should be untouched, got %q", got.ResolvedIngredientID)
	}
	if got.BestFuzzyMatch != "roma tomato" || got.FuzzyScore == nil || *got.FuzzyScore != 0.92 {
		t.Fatalf("match score should be untouched, got %q %v", got.BestFuzzyMatch, got.FuzzyScore)
	}
	if got.ResolvedUnit != "lb" || got.ResolvedBy != "worker-2" {
		t.Fatalf("unexpected unit/resolver %q %q", got.ResolvedUnit, got.ResolvedBy)
	}
	if got.NeedsIngredientReview {
		t.Fatal("ingredient flag was already clear and must stay clear")
	}
	if got.NeedsUnitReview {
		t.Fatal("unit flag should be cleared")
	}
}

func TestMarkResolvedKeepsRequestedFlags(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	row := testsupport.MustEnqueue(t, store, "brown onion", queue.SourceRecipe, true, true)
	if err := store.MarkResolved(ctx, row.ID, queue.Resolution{IngredientID: ptr("onion-yellow"), KeepUnitReview: true}); err != nil {
		t.Fatalf("MarkResolved: %v", err)
	}
	got, _ := store.GetByID(ctx, row.ID)
	if got.NeedsIngredientReview || !got.NeedsUnitReview {
		t.Fatalf("expected only ingredient flag cleared, got ing=%v unit=%v", got.NeedsIngredientReview, got.NeedsUnitReview)
	}
}

func TestMarkResolvedErrors(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	if err := store.MarkResolved(ctx, "missing", queue.Resolution{IngredientID: ptr("x")}); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	row := testsupport.MustEnqueue(t, store, "mystery", queue.SourceScraper, true, false)
	if err := store.MarkResolved(ctx, row.ID, queue.Resolution{ResolvedBy: "w"}); !errors.Is(err, queue.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	got, _ := store.GetByID(ctx, row.ID)
	if got.Status != queue.StatusPending {
		t.Fatalf("rejected resolution must not change status, got %s", got.Status)
	}
}

func TestTwoStageResolutionScenario(t *testing.T) {
	clock := testsupport.NewClock(epoch)
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t), queue.WithClock(clock.Now))
	ctx := context.Background()

	row, created, err := store.Insert(ctx, queue.NewRow{
		RawName:               "Roma Tomato 1lb",
		Source:                queue.SourceScraper,
		NeedsIngredientReview: true,
		NeedsUnitReview:       true,
	})
	if err != nil || !created {
		t.Fatalf("insert: created=%v err=%v", created, err)
	}

	claimed, err := store.ClaimAtomic(ctx, queue.ClaimRequest{Mode: queue.ReviewIngredient, Limit: 1, ResolverID: "worker-1", Lease: 180 * time.Second})
	if err != nil || len(claimed) != 1 || claimed[0].ID != row.ID {
		t.Fatalf("ingredient claim: %v rows=%d", err, len(claimed))
	}
	if got := claimed[0].ProcessingLeaseExpiresAt.Sub(epoch); got != 180*time.Second {
		t.Fatalf("expected 180s lease, got %s", got)
	}

	if err := store.MarkIngredientResolvedPendingUnit(ctx, row.ID, "tomato-roma", "roma tomato", 0.92, "worker-1"); err != nil {
		t.Fatalf("MarkIngredientResolvedPendingUnit: %v", err)
	}
	mid, _ := store.GetByID(ctx, row.ID)
	if mid.Status != queue.StatusPending || !mid.NeedsUnitReview || mid.NeedsIngredientReview || mid.ResolvedIngredientID != "tomato-roma" {
		t.Fatalf("unexpected intermediate row %+v", mid)
	}
	if mid.ProcessingStartedAt != nil || mid.ProcessingLeaseExpiresAt != nil || mid.ResolvedAt != nil {
		t.Fatal("expected lease and resolved_at cleared in pending-unit state")
	}
	if !mid.PendingUnit() {
		t.Fatal("expected PendingUnit to report the intermediate state")
	}

	ingredientAgain, err := store.ClaimAtomic(ctx, queue.ClaimRequest{Mode: queue.ReviewIngredient, ResolverID: "worker-1"})
	if err != nil || len(ingredientAgain) != 0 {
		t.Fatalf("ingredient-mode claim should skip the row: %v rows=%d", err, len(ingredientAgain))
	}

	unitClaim, err := store.ClaimAtomic(ctx, queue.ClaimRequest{Mode: queue.ReviewUnit, ResolverID: "worker-2"})
	if err != nil || len(unitClaim) != 1 || unitClaim[0].ID != row.ID {
		t.Fatalf("unit claim: %v rows=%d", err, len(unitClaim))
	}

	if err := store.MarkResolved(ctx, row.ID, queue.Resolution{Unit: ptr("lb"), Quantity: ptr(1.0), UnitConfidence: ptr(0.88), ResolvedBy: "worker-2"}); err != nil {
		t.Fatalf("MarkResolved: %v", err)
	}
	final, _ := store.GetByID(ctx, row.ID)
	if final.Status != queue.StatusResolved || final.ResolvedAt == nil {
		t.Fatalf("expected resolved row, got %+v", final)
	}
	if final.ResolvedIngredientID != "tomato-roma" || final.ResolvedUnit != "lb" || *final.ResolvedQuantity != 1 || *final.UnitConfidence != 0.88 {
		t.Fatalf("unexpected resolution outputs %+v", final)
	}
}

func TestMarkIngredientResolvedPendingUnitRejectsTerminalRows(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	row := testsupport.MustEnqueue(t, store, "x", queue.SourceScraper, true, true)
	if err := store.MarkFailed(ctx, row.ID, "w", "boom"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	err := store.MarkIngredientResolvedPendingUnit(ctx, row.ID, "tomato-roma", "", 0.9, "w")
	if !errors.Is(err, queue.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if err := store.MarkIngredientResolvedPendingUnit(ctx, "missing", "tomato-roma", "", 0.9, "w"); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRequeueExpiredScenario(t *testing.T) {
	clock := testsupport.NewClock(epoch)
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t), queue.WithClock(clock.Now))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		testsupport.MustEnqueue(t, store, fmt.Sprintf("row %d", i), queue.SourceRecipe, true, false)
	}
	claimed, err := store.ClaimAtomic(ctx, queue.ClaimRequest{Limit: 5, Lease: time.Second, ResolverID: "worker-1"})
	if err != nil || len(claimed) != 5 {
		t.Fatalf("claim: %v rows=%d", err, len(claimed))
	}

	clock.Advance(2 * time.Second)
	result, err := store.RequeueExpired(ctx, queue.RequeueRequest{Limit: 100})
	if err != nil {
		t.Fatalf("RequeueExpired: %v", err)
	}
	if result.Requeued != 5 || result.Exhausted != 0 {
		t.Fatalf("expected 5 requeued, got %+v", result)
	}
	for _, row := range claimed {
		got, _ := store.GetByID(ctx, row.ID)
		if got.Status != queue.StatusPending {
			t.Fatalf("row %s: expected pending, got %s", row.ID, got.Status)
		}
		if got.ProcessingStartedAt != nil || got.ProcessingLeaseExpiresAt != nil {
			t.Fatalf("row %s: expected lease cleared", row.ID)
		}
		if got.AttemptCount != 1 {
			t.Fatalf("row %s: expected attempt count 1, got %d", row.ID, got.AttemptCount)
		}
	}
}

func TestRequeueExpiredSkipsLiveLeases(t *testing.T) {
	clock := testsupport.NewClock(epoch)
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t), queue.WithClock(clock.Now))
	ctx := context.Background()

	short := testsupport.MustEnqueue(t, store, "short", queue.SourceScraper, true, false)
	if _, err := store.MarkProcessing(ctx, []string{short.ID}, "w1", 10*time.Second); err != nil {
		t.Fatalf("MarkProcessing short: %v", err)
	}
	long := testsupport.MustEnqueue(t, store, "long", queue.SourceScraper, true, false)
	if _, err := store.MarkProcessing(ctx, []string{long.ID}, "w2", time.Hour); err != nil {
		t.Fatalf("MarkProcessing long: %v", err)
	}

	// Exactly at expiry the lease is not yet strictly in the past.
	clock.Advance(10 * time.Second)
	result, err := store.RequeueExpired(ctx, queue.RequeueRequest{Limit: 100, ErrorMessage: "lease expired"})
	if err != nil {
		t.Fatalf("RequeueExpired: %v", err)
	}
	if result.Total() != 0 {
		t.Fatalf("expected nothing at the boundary, got %+v", result)
	}

	clock.Advance(time.Nanosecond)
	result, err = store.RequeueExpired(ctx, queue.RequeueRequest{Limit: 100, ErrorMessage: "lease expired"})
	if err != nil {
		t.Fatalf("RequeueExpired: %v", err)
	}
	if result.Requeued != 1 || len(result.IDs) != 1 || result.IDs[0] != short.ID {
		t.Fatalf("expected only the short lease requeued, got %+v", result)
	}
	gotShort, _ := store.GetByID(ctx, short.ID)
	if gotShort.LastError != "lease expired" {
		t.Fatalf("expected last_error recorded, got %q", gotShort.LastError)
	}
	gotLong, _ := store.GetByID(ctx, long.ID)
	if gotLong.Status != queue.StatusProcessing || gotLong.AttemptCount != 0 {
		t.Fatalf("live lease touched: %+v", gotLong)
	}
}

func TestRequeueExpiredHonoursLimit(t *testing.T) {
	clock := testsupport.NewClock(epoch)
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t), queue.WithClock(clock.Now))
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		testsupport.MustEnqueue(t, store, fmt.Sprintf("r%d", i), queue.SourceScraper, true, false)
	}
	if _, err := store.ClaimAtomic(ctx, queue.ClaimRequest{Limit: 4, Lease: time.Second, ResolverID: "w"}); err != nil {
		t.Fatalf("claim: %v", err)
	}
	clock.Advance(time.Minute)
	result, err := store.RequeueExpired(ctx, queue.RequeueRequest{Limit: 3})
	if err != nil || result.Requeued != 3 {
		t.Fatalf("expected 3, got %+v err=%v", result, err)
	}
	result, err = store.RequeueExpired(ctx, queue.RequeueRequest{Limit: 3})
	if err != nil || result.Requeued != 1 {
		t.Fatalf("expected remaining 1, got %+v err=%v", result, err)
	}
}

func TestRequeueExpiredFailsExhaustedRows(t *testing.T) {
	clock := testsupport.NewClock(epoch)
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t), queue.WithClock(clock.Now))
	ctx := context.Background()

	row := testsupport.MustEnqueue(t, store, "flaky", queue.SourceScraper, true, false)
	for attempt := 1; attempt <= 3; attempt++ {
		claimed, err := store.ClaimAtomic(ctx, queue.ClaimRequest{Lease: time.Second, ResolverID: "w"})
		if err != nil || len(claimed) != 1 {
			t.Fatalf("attempt %d claim: %v rows=%d", attempt, err, len(claimed))
		}
		clock.Advance(2 * time.Second)
		result, err := store.RequeueExpired(ctx, queue.RequeueRequest{Limit: 10, MaxAttempts: 3, ErrorMessage: "worker vanished"})
		if err != nil {
			t.Fatalf("attempt %d requeue: %v", attempt, err)
		}
		if attempt < 3 && result.Requeued != 1 {
			t.Fatalf("attempt %d: expected requeue, got %+v", attempt, result)
		}
		if attempt == 3 && result.Exhausted != 1 {
			t.Fatalf("attempt %d: expected exhaustion, got %+v", attempt, result)
		}
	}

	got, _ := store.GetByID(ctx, row.ID)
	if got.Status != queue.StatusFailed || got.AttemptCount != 3 || got.ResolvedAt == nil {
		t.Fatalf("expected failed row after 3 attempts, got %+v", got)
	}
	if got.LastError != "lease expired after 3 attempts: worker vanished" {
		t.Fatalf("unexpected last_error %q", got.LastError)
	}
	if got.ProcessingStartedAt != nil || got.ProcessingLeaseExpiresAt != nil {
		t.Fatal("expected lease cleared on exhausted row")
	}
}

func TestMarkFailedIsTerminalUntilRetried(t *testing.T) {
	clock := testsupport.NewClock(epoch)
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t), queue.WithClock(clock.Now))
	ctx := context.Background()

	row := testsupport.MustEnqueue(t, store, "unknown thing", queue.SourceScraper, true, false)
	if _, err := store.ClaimAtomic(ctx, queue.ClaimRequest{ResolverID: "w"}); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.MarkFailed(ctx, row.ID, "w", "low confidence 0.40"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	failed, _ := store.GetByID(ctx, row.ID)
	if failed.Status != queue.StatusFailed || failed.LastError != "low confidence 0.40" || failed.ResolvedAt == nil {
		t.Fatalf("unexpected failed row %+v", failed)
	}
	if failed.ProcessingLeaseExpiresAt != nil {
		t.Fatal("expected lease cleared")
	}

	claimed, _ := store.ClaimAtomic(ctx, queue.ClaimRequest{ResolverID: "w"})
	if len(claimed) != 0 {
		t.Fatal("failed rows must not be claimable")
	}

	clock.Advance(time.Minute)
	if err := store.MarkFailed(ctx, row.ID, "w", "low confidence 0.40"); err != nil {
		t.Fatalf("repeat MarkFailed: %v", err)
	}
	again, _ := store.GetByID(ctx, row.ID)
	if !again.ResolvedAt.Equal(*failed.ResolvedAt) {
		t.Fatal("repeat MarkFailed changed resolved_at")
	}

	n, err := store.RetryFailed(ctx, row.ID)
	if err != nil || n != 1 {
		t.Fatalf("RetryFailed: n=%d err=%v", n, err)
	}
	retried, _ := store.GetByID(ctx, row.ID)
	if retried.Status != queue.StatusPending || retried.ResolvedAt != nil || retried.LastError != "" {
		t.Fatalf("unexpected retried row %+v", retried)
	}
}

func TestMarkFailedRejectsResolvedRows(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	row := testsupport.MustEnqueue(t, store, "milk", queue.SourceScraper, true, false)
	if err := store.MarkResolved(ctx, row.ID, queue.Resolution{IngredientID: ptr("milk-whole")}); err != nil {
		t.Fatalf("MarkResolved: %v", err)
	}
	if err := store.MarkFailed(ctx, row.ID, "w", "late"); !errors.Is(err, queue.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestStaleResolverCannotWriteOverNewLease(t *testing.T) {
	clock := testsupport.NewClock(epoch)
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t), queue.WithClock(clock.Now))
	ctx := context.Background()

	row := testsupport.MustEnqueue(t, store, "cremini mushrooms", queue.SourceScraper, true, false)
	if claimed, err := store.ClaimAtomic(ctx, queue.ClaimRequest{ResolverID: "worker-a", Lease: time.Second}); err != nil || len(claimed) != 1 {
		t.Fatalf("claim a: %v rows=%d", err, len(claimed))
	}
	clock.Advance(2 * time.Second)
	if result, err := store.RequeueExpired(ctx, queue.RequeueRequest{Limit: 10}); err != nil || result.Requeued != 1 {
		t.Fatalf("requeue: %+v err=%v", result, err)
	}
	if claimed, err := store.ClaimAtomic(ctx, queue.ClaimRequest{ResolverID: "worker-b", Lease: time.Minute}); err != nil || len(claimed) != 1 {
		t.Fatalf("claim b: %v rows=%d", err, len(claimed))
	}

	if err := store.MarkFailed(ctx, row.ID, "worker-a", "matcher timeout"); !errors.Is(err, queue.ErrInvalidTransition) {
		t.Fatalf("stale MarkFailed: expected ErrInvalidTransition, got %v", err)
	}
	if err := store.MarkIngredientResolvedPendingUnit(ctx, row.ID, "mushroom-cremini", "", 0.9, "worker-a"); !errors.Is(err, queue.ErrInvalidTransition) {
		t.Fatalf("stale pending unit: expected ErrInvalidTransition, got %v", err)
	}
	if err := store.MarkResolved(ctx, row.ID, queue.Resolution{IngredientID: ptr("mushroom-cremini"), ResolvedBy: "worker-a"}); !errors.Is(err, queue.ErrInvalidTransition) {
		t.Fatalf("stale MarkResolved: expected ErrInvalidTransition, got %v", err)
	}
	leased, _ := store.GetByID(ctx, row.ID)
	if leased.Status != queue.StatusProcessing || leased.ResolvedBy != "worker-b" || leased.ProcessingLeaseExpiresAt == nil {
		t.Fatalf("worker-b lease must survive stale writes, got %+v", leased)
	}

	if err := store.MarkResolved(ctx, row.ID, queue.Resolution{IngredientID: ptr("mushroom-cremini"), ResolvedBy: "worker-b"}); err != nil {
		t.Fatalf("owner MarkResolved: %v", err)
	}
	got, _ := store.GetByID(ctx, row.ID)
	if got.Status != queue.StatusResolved || got.LastError != "" || got.ResolvedBy != "worker-b" {
		t.Fatalf("unexpected resolved row %+v", got)
	}
}

func TestMarkResolvedRejectsFailedRows(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	row := testsupport.MustEnqueue(t, store, "dragon fruit", queue.SourceScraper, true, false)
	if err := store.MarkFailed(ctx, row.ID, "w", "no catalog match"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if err := store.MarkResolved(ctx, row.ID, queue.Resolution{IngredientID: ptr("pitaya")}); !errors.Is(err, queue.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	got, _ := store.GetByID(ctx, row.ID)
	if got.Status != queue.StatusFailed || got.LastError != "no catalog match" {
		t.Fatalf("failed row must stay failed, got %+v", got)
	}
}

func TestMarkProcessingReleasesAndSkipsTerminalRows(t *testing.T) {
	clock := testsupport.NewClock(epoch)
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t), queue.WithClock(clock.Now))
	ctx := context.Background()

	pending := testsupport.MustEnqueue(t, store, "a", queue.SourceScraper, true, false)
	resolved := testsupport.MustEnqueue(t, store, "b", queue.SourceScraper, true, false)
	if err := store.MarkResolved(ctx, resolved.ID, queue.Resolution{IngredientID: ptr("b")}); err != nil {
		t.Fatalf("MarkResolved: %v", err)
	}

	rows, err := store.MarkProcessing(ctx, []string{pending.ID, resolved.ID, pending.ID}, "w1", 30*time.Second)
	if err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != pending.ID {
		t.Fatalf("expected only the pending row stamped, got %d rows", len(rows))
	}

	clock.Advance(20 * time.Second)
	rows, err = store.MarkProcessing(ctx, []string{pending.ID}, "w1", 30*time.Second)
	if err != nil || len(rows) != 1 {
		t.Fatalf("re-lease: %v rows=%d", err, len(rows))
	}
	want := epoch.Add(50 * time.Second)
	if !rows[0].ProcessingLeaseExpiresAt.Equal(want) {
		t.Fatalf("expected lease extended to %v, got %v", want, rows[0].ProcessingLeaseExpiresAt)
	}
}

func TestBackfillLegacyIngredientFlags(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	legacy := testsupport.MustEnqueue(t, store, "legacy recipe line", queue.SourceRecipe, false, false)
	scraper := testsupport.MustEnqueue(t, store, "scraper row", queue.SourceScraper, false, false)
	pendingUnit := testsupport.MustEnqueue(t, store, "half done", queue.SourceRecipe, true, true)
	if err := store.MarkIngredientResolvedPendingUnit(ctx, pendingUnit.ID, "onion-yellow", "yellow onion", 0.9, "w"); err != nil {
		t.Fatalf("pending unit: %v", err)
	}

	n, err := store.BackfillLegacyIngredientFlags(ctx)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 backfilled row, got %d err=%v", n, err)
	}
	if n, err := store.BackfillLegacyIngredientFlags(ctx); err != nil || n != 0 {
		t.Fatalf("second run should be a no-op, got %d err=%v", n, err)
	}

	if got, _ := store.GetByID(ctx, legacy.ID); !got.NeedsIngredientReview {
		t.Fatal("legacy recipe row should need ingredient review")
	}
	if got, _ := store.GetByID(ctx, scraper.ID); got.NeedsIngredientReview {
		t.Fatal("scraper rows are not backfilled")
	}
	if got, _ := store.GetByID(ctx, pendingUnit.ID); got.NeedsIngredientReview {
		t.Fatal("rows with a resolved ingredient are not backfilled")
	}
}

func TestHealthCounts(t *testing.T) {
	clock := testsupport.NewClock(epoch)
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t), queue.WithClock(clock.Now))
	ctx := context.Background()

	a := testsupport.MustEnqueue(t, store, "a", queue.SourceScraper, true, true)
	b := testsupport.MustEnqueue(t, store, "b", queue.SourceScraper, true, false)
	c := testsupport.MustEnqueue(t, store, "c", queue.SourceScraper, true, false)
	testsupport.MustEnqueue(t, store, "d", queue.SourceScraper, true, false)

	if err := store.MarkIngredientResolvedPendingUnit(ctx, a.ID, "x", "x", 0.9, "w"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.MarkProcessing(ctx, []string{b.ID}, "w", time.Second); err != nil {
		t.Fatal(err)
	}
	if err := store.MarkFailed(ctx, c.ID, "w", "nope"); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Minute)

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if health.Total != 4 || health.Pending != 2 || health.PendingUnit != 1 || health.Processing != 1 || health.Expired != 1 || health.Failed != 1 {
		t.Fatalf("unexpected health %+v", health)
	}
	if health.OldestLeased == nil || !health.OldestLeased.Equal(epoch) {
		t.Fatalf("unexpected oldest lease %v", health.OldestLeased)
	}

	db, err := store.CheckHealth(ctx)
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if !db.DatabaseExists || !db.DatabaseReadable || !db.TableExists || !db.IntegrityCheck {
		t.Fatalf("unexpected db health %+v", db)
	}
	if len(db.MissingColumns) != 0 || db.TotalRows != 4 || db.Driver != "sqlite" {
		t.Fatalf("unexpected db health %+v", db)
	}
}

func TestListFilters(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	testsupport.MustEnqueue(t, store, "a", queue.SourceScraper, true, false)
	b := testsupport.MustEnqueue(t, store, "b", queue.SourceRecipe, true, false)
	if err := store.MarkFailed(ctx, b.ID, "", "x"); err != nil {
		t.Fatal(err)
	}

	all, err := store.List(ctx, queue.ListFilter{})
	if err != nil || len(all) != 2 {
		t.Fatalf("List all: %v n=%d", err, len(all))
	}
	failed, err := store.List(ctx, queue.ListFilter{Statuses: []queue.Status{queue.StatusFailed}})
	if err != nil || len(failed) != 1 || failed[0].ID != b.ID {
		t.Fatalf("List failed: %v %v", err, failed)
	}
	scraper, err := store.List(ctx, queue.ListFilter{Source: queue.SourceScraper, Limit: 5})
	if err != nil || len(scraper) != 1 || scraper[0].Source != queue.SourceScraper {
		t.Fatalf("List scraper: %v %v", err, scraper)
	}
}
