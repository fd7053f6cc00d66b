package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"larder/internal/backfill"
	"larder/internal/config"
	"larder/internal/logging"
	"larder/internal/queue"
	"larder/internal/reclaim"
)

// Daemon coordinates background maintenance and enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *queue.Store

	reclaimer *reclaim.Reclaimer
	backfill  *backfill.Job
	api       *apiServer

	lockPath string
	lock     *flock.Flock

	mu        sync.Mutex
	running   atomic.Bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startedAt time.Time

	lastSweepAt    atomic.Pointer[time.Time]
	lastSweepError atomic.Pointer[string]
	requeued       atomic.Int64
	exhausted      atomic.Int64
	backfilled     atomic.Int64
}

// Status represents daemon runtime information.
type Status struct {
	Running         bool
	PID             int
	StartedAt       time.Time
	LockFilePath    string
	StoreDriver     string
	StoreLocation   string
	LastSweepAt     *time.Time
	LastSweepError  string
	RequeuedTotal   int64
	ExhaustedTotal  int64
	BackfilledTotal int64
	Queue           queue.HealthSummary
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("daemon requires config and store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.reclaimer = reclaim.New(&sweepRecorder{store: store, d: d}, reclaim.Options{
		Interval:     cfg.ReclaimInterval(),
		Limit:        cfg.Reclaim.BatchLimit,
		ErrorMessage: cfg.Reclaim.ErrorMessage,
		MaxAttempts:  cfg.Reclaim.MaxAttempts,
	}, logger)
	d.backfill = backfill.New(&backfillRecorder{store: store, d: d}, logger)

	api, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = api
	return d, nil
}

// Start acquires the daemon lock and launches the reclaimer and backfill schedule.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another larder daemon instance is already running (lock %s)", d.lockPath)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.api.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start api server: %w", err)
	}
	d.cancel = cancel
	d.startedAt = time.Now()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.reclaimer.Run(runCtx)
	}()
	if d.cfg.Backfill.Enabled {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.backfill.Schedule(runCtx, d.cfg.BackfillInterval())
		}()
	}

	d.running.Store(true)
	d.logger.Info("larder daemon started",
		logging.String("lock", d.lockPath),
		logging.String("store", d.store.Driver()),
		logging.Duration("reclaim_interval", d.cfg.ReclaimInterval()),
		logging.Bool("backfill", d.cfg.Backfill.Enabled),
	)
	return nil
}

// Stop stops background work and releases the daemon lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	d.api.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("larder daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// SweepNow runs one reclaim sweep outside the schedule.
func (d *Daemon) SweepNow(ctx context.Context) (queue.RequeueResult, error) {
	return d.reclaimer.Sweep(ctx)
}

// APIAddr returns the bound API address, or "" when the API is disabled.
func (d *Daemon) APIAddr() string {
	return d.api.addr()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:         d.running.Load(),
		PID:             os.Getpid(),
		LockFilePath:    d.lockPath,
		StoreDriver:     d.store.Driver(),
		StoreLocation:   d.store.Location(),
		LastSweepAt:     d.lastSweepAt.Load(),
		RequeuedTotal:   d.requeued.Load(),
		ExhaustedTotal:  d.exhausted.Load(),
		BackfilledTotal: d.backfilled.Load(),
	}
	if status.Running {
		status.StartedAt = d.startedAt
	}
	if msg := d.lastSweepError.Load(); msg != nil {
		status.LastSweepError = *msg
	}
	if summary, err := d.store.Health(ctx); err == nil {
		status.Queue = summary
	} else {
		d.logger.Warn("queue health unavailable", logging.Error(err))
	}
	return status
}

// sweepRecorder counts sweep results for Status.
type sweepRecorder struct {
	store reclaim.Requeuer
	d     *Daemon
}

func (r *sweepRecorder) RequeueExpired(ctx context.Context, req queue.RequeueRequest) (queue.RequeueResult, error) {
	result, err := r.store.RequeueExpired(ctx, req)
	now := time.Now()
	r.d.lastSweepAt.Store(&now)
	if err != nil {
		msg := err.Error()
		r.d.lastSweepError.Store(&msg)
		return result, err
	}
	r.d.lastSweepError.Store(nil)
	r.d.requeued.Add(int64(result.Requeued))
	r.d.exhausted.Add(int64(result.Exhausted))
	return result, nil
}

type backfillRecorder struct {
	store backfill.Store
	d     *Daemon
}

func (r *backfillRecorder) BackfillLegacyIngredientFlags(ctx context.Context) (int64, error) {
	n, err := r.store.BackfillLegacyIngredientFlags(ctx)
	if err == nil {
		r.d.backfilled.Add(n)
	}
	return n, err
}
