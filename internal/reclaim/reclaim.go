// Package reclaim returns rows with expired processing leases to the pending
// pool, failing rows that have used up their attempts.
package reclaim

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"larder/internal/logging"
	"larder/internal/queue"
)

const maxSweepRounds = 10

// Requeuer is the store operation the reclaimer drives.
type Requeuer interface {
	RequeueExpired(ctx context.Context, req queue.RequeueRequest) (queue.RequeueResult, error)
}

// Options configures a Reclaimer.
type Options struct {
	Interval     time.Duration
	Limit        int
	ErrorMessage string
	MaxAttempts  int
}

// Reclaimer sweeps expired leases on an interval.
type Reclaimer struct {
	store  Requeuer
	opts   Options
	logger *slog.Logger
}

// New returns a Reclaimer. Zero options fall back to a 30s interval and a
// batch of 100.
func New(store Requeuer, opts Options, logger *slog.Logger) *Reclaimer {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.Limit <= 0 {
		opts.Limit = 100
	}
	return &Reclaimer{store: store, opts: opts, logger: logging.NewComponentLogger(logger, "reclaim")}
}

// Sweep requeues expired rows in batches until a batch comes back short or
// the round limit is hit.
func (r *Reclaimer) Sweep(ctx context.Context) (queue.RequeueResult, error) {
	var total queue.RequeueResult
	for round := 0; round < maxSweepRounds; round++ {
		result, err := r.store.RequeueExpired(ctx, queue.RequeueRequest{
			Limit:        r.opts.Limit,
			ErrorMessage: r.opts.ErrorMessage,
			MaxAttempts:  r.opts.MaxAttempts,
		})
		if err != nil {
			return total, err
		}
		total.Requeued += result.Requeued
		total.Exhausted += result.Exhausted
		total.IDs = append(total.IDs, result.IDs...)
		if result.Total() < r.opts.Limit {
			break
		}
	}
	if total.Requeued > 0 {
		r.logger.Info("requeued expired leases", logging.Int("count", total.Requeued))
	}
	if total.Exhausted > 0 {
		logging.WarnWithContext(r.logger, "rows exceeded attempt ceiling", "lease_attempts_exhausted",
			logging.Int("count", total.Exhausted),
			logging.Int("max_attempts", r.opts.MaxAttempts),
			logging.String(logging.FieldImpact, "rows marked failed; use retry to requeue them"),
		)
	}
	return total, nil
}

// Run sweeps immediately and then on every tick until ctx is cancelled.
func (r *Reclaimer) Run(ctx context.Context) {
	r.sweepLogged(ctx)
	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweepLogged(ctx)
		}
	}
}

func (r *Reclaimer) sweepLogged(ctx context.Context) {
	if _, err := r.Sweep(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			r.logger.Info("reclaim sweep cancelled during shutdown")
			return
		}
		r.logger.Warn("reclaim sweep failed", logging.Error(err))
	}
}
