package daemon_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"larder/internal/config"
	"larder/internal/daemon"
	"larder/internal/logging"
	"larder/internal/queue"
	"larder/internal/testsupport"
)

func newDaemon(t *testing.T, cfg *config.Config, opts ...queue.Option) (*daemon.Daemon, *queue.Store) {
	t.Helper()
	store := testsupport.MustOpenStore(t, cfg, opts...)
	d, err := daemon.New(cfg, store, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)
	return d, store
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, _ := newDaemon(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("expected daemon running")
	}
	if status.LockFilePath != cfg.LockPath() {
		t.Fatalf("unexpected lock path %q", status.LockFilePath)
	}
	if status.StoreDriver != config.DriverSQLite || status.StartedAt.IsZero() {
		t.Fatalf("unexpected status %+v", status)
	}
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second Start to fail while running")
	}

	d.Stop()
	if d.Status(ctx).Running {
		t.Fatal("expected daemon stopped")
	}
	if d.APIAddr() != "" {
		t.Fatalf("api should be disabled, got %q", d.APIAddr())
	}
}

func TestDaemonSingleInstanceLock(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first, _ := newDaemon(t, cfg)
	second, _ := newDaemon(t, cfg)

	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	err := second.Start(ctx)
	if err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected lock contention error, got %v", err)
	}

	first.Stop()
	if err := second.Start(ctx); err != nil {
		t.Fatalf("second Start after release: %v", err)
	}
}

func TestDaemonSweepNowTracksTotals(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Reclaim.MaxAttempts = 1
	clock := testsupport.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	d, store := newDaemon(t, cfg, queue.WithClock(clock.Now))
	ctx := context.Background()

	retry := testsupport.MustEnqueue(t, store, "2 cups flour", queue.SourceRecipe, true, false)
	if _, err := store.MarkProcessing(ctx, []string{retry.ID}, "w", time.Second); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	clock.Advance(2 * time.Second)

	result, err := d.SweepNow(ctx)
	if err != nil {
		t.Fatalf("SweepNow: %v", err)
	}
	if result.Total() != 1 {
		t.Fatalf("expected one swept row, got %+v", result)
	}

	status := d.Status(ctx)
	if status.LastSweepAt == nil {
		t.Fatal("expected last sweep time")
	}
	if status.RequeuedTotal+status.ExhaustedTotal != 1 {
		t.Fatalf("unexpected totals %+v", status)
	}
	if status.LastSweepError != "" {
		t.Fatalf("unexpected sweep error %q", status.LastSweepError)
	}
}

func TestDaemonCloseClosesStore(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, store := newDaemon(t, cfg)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := store.Stats(context.Background()); err == nil {
		t.Fatal("expected closed store to reject queries")
	}
}

func TestNewRequiresStore(t *testing.T) {
	if _, err := daemon.New(testsupport.NewConfig(t), nil, nil); err == nil {
		t.Fatal("expected error without store")
	}
}
