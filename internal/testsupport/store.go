package testsupport

import (
	"context"
	"sync"
	"testing"
	"time"

	"larder/internal/config"
	"larder/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config, opts ...queue.Option) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg, opts...)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustEnqueue inserts a pending row and fails the test on error.
func MustEnqueue(t testing.TB, store *queue.Store, raw string, source queue.Source, needsIngredient, needsUnit bool) *queue.Row {
	t.Helper()

	row, _, err := store.Insert(context.Background(), queue.NewRow{
		RawName:               raw,
		Source:                source,
		NeedsIngredientReview: needsIngredient,
		NeedsUnitReview:       needsUnit,
	})
	if err != nil {
		t.Fatalf("store.Insert(%q): %v", raw, err)
	}
	return row
}

// Clock is a manually advanced time source for lease tests.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock fixed at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start.UTC()}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Tick advances the clock by d and returns the new time. Useful as a store
// clock when every call should observe a distinct, increasing timestamp.
func (c *Clock) Tick(d time.Duration) func() time.Time {
	return func() time.Time {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.now = c.now.Add(d)
		return c.now
	}
}
