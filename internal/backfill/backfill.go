// Package backfill re-flags legacy recipe rows so ingredient-mode claims can
// see them.
package backfill

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"larder/internal/logging"
)

// Store runs the backfill statement.
type Store interface {
	BackfillLegacyIngredientFlags(ctx context.Context) (int64, error)
}

// Job wraps a Store with logging. It satisfies claim.Backfiller.
type Job struct {
	store  Store
	logger *slog.Logger
}

// New returns a backfill job.
func New(store Store, logger *slog.Logger) *Job {
	return &Job{store: store, logger: logging.NewComponentLogger(logger, "backfill")}
}

// Run performs one backfill pass and returns the number of rows updated.
func (j *Job) Run(ctx context.Context) (int64, error) {
	n, err := j.store.BackfillLegacyIngredientFlags(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		j.logger.Info("backfilled legacy ingredient review flags", logging.Int64("rows", n))
	}
	return n, nil
}

// Schedule runs once immediately and then every interval until ctx is done.
// A non-positive interval runs once and returns.
func (j *Job) Schedule(ctx context.Context, interval time.Duration) {
	j.runLogged(ctx)
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.runLogged(ctx)
		}
	}
}

func (j *Job) runLogged(ctx context.Context) {
	if _, err := j.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			j.logger.Info("backfill cancelled during shutdown")
			return
		}
		logging.WarnWithContext(j.logger, "legacy flag backfill failed", "backfill_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "legacy recipe rows stay hidden from ingredient claims"),
			logging.String(logging.FieldErrorHint, "retried on the next interval"),
		)
	}
}
