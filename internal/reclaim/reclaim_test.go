package reclaim_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"larder/internal/logging"
	"larder/internal/queue"
	"larder/internal/reclaim"
	"larder/internal/testsupport"
)

type scriptedRequeuer struct {
	results []queue.RequeueResult
	calls   int
	err     error
}

func (s *scriptedRequeuer) RequeueExpired(_ context.Context, req queue.RequeueRequest) (queue.RequeueResult, error) {
	s.calls++
	if s.err != nil {
		return queue.RequeueResult{}, s.err
	}
	if len(s.results) == 0 {
		return queue.RequeueResult{}, nil
	}
	next := s.results[0]
	s.results = s.results[1:]
	return next, nil
}

func TestSweepDrainsFullBatches(t *testing.T) {
	stub := &scriptedRequeuer{results: []queue.RequeueResult{
		{Requeued: 2, IDs: []string{"a", "b"}},
		{Requeued: 1, Exhausted: 1, IDs: []string{"c", "d"}},
		{Requeued: 1, IDs: []string{"e"}},
	}}
	r := reclaim.New(stub, reclaim.Options{Limit: 2}, logging.NewNop())
	result, err := r.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if stub.calls != 3 {
		t.Fatalf("expected 3 rounds, got %d", stub.calls)
	}
	if result.Requeued != 4 || result.Exhausted != 1 || len(result.IDs) != 5 {
		t.Fatalf("unexpected totals %+v", result)
	}
}

func TestSweepStopsAtRoundLimit(t *testing.T) {
	full := make([]queue.RequeueResult, 20)
	for i := range full {
		full[i] = queue.RequeueResult{Requeued: 1, IDs: []string{"x"}}
	}
	stub := &scriptedRequeuer{results: full}
	if _, err := reclaim.New(stub, reclaim.Options{Limit: 1}, logging.NewNop()).Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if stub.calls != 10 {
		t.Fatalf("expected sweep to stop after 10 rounds, got %d", stub.calls)
	}
}

func TestSweepReturnsStoreError(t *testing.T) {
	stub := &scriptedRequeuer{err: errors.New("locked")}
	if _, err := reclaim.New(stub, reclaim.Options{}, logging.NewNop()).Sweep(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestSweepAgainstStore(t *testing.T) {
	clock := testsupport.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t), queue.WithClock(clock.Now))
	ctx := context.Background()

	var ids []string
	for _, name := range []string{"basil", "thyme", "sage"} {
		ids = append(ids, testsupport.MustEnqueue(t, store, name, queue.SourceScraper, true, false).ID)
	}
	if _, err := store.MarkProcessing(ctx, ids, "w", time.Second); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	clock.Advance(2 * time.Second)

	r := reclaim.New(store, reclaim.Options{Limit: 2, ErrorMessage: "lease expired", MaxAttempts: 5}, logging.NewNop())
	result, err := r.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if result.Requeued != 3 || result.Exhausted != 0 {
		t.Fatalf("unexpected result %+v", result)
	}
	for _, id := range ids {
		row, err := store.GetByID(ctx, id)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if row.Status != queue.StatusPending || row.LastError != "lease expired" || row.ProcessingLeaseExpiresAt != nil {
			t.Fatalf("row not requeued: %+v", row)
		}
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	stub := &scriptedRequeuer{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		reclaim.New(stub, reclaim.Options{Interval: time.Millisecond}, logging.NewNop()).Run(ctx)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
