package claim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"larder/internal/logging"
	"larder/internal/queue"
	"larder/internal/services"
)

var (
	// ErrAtomicClaimUnavailable is returned by New when the probe fails and
	// fallback claims are not allowed.
	ErrAtomicClaimUnavailable = errors.New("atomic claim unavailable")
	// ErrNotExclusive is returned when a request requires exclusivity but the
	// coordinator runs the fallback strategy.
	ErrNotExclusive = errors.New("claim strategy is not exclusive")
)

// Backfiller runs the legacy review-flag backfill.
type Backfiller interface {
	Run(ctx context.Context) (int64, error)
}

// Options controls strategy selection.
type Options struct {
	// AllowFallback permits the non-exclusive strategy when the atomic probe fails.
	AllowFallback bool
	// InlineBackfill runs Backfill before ingredient-mode claims that can see
	// recipe rows. Nil disables it.
	InlineBackfill Backfiller
}

// Coordinator claims rows with the strategy selected at construction.
type Coordinator struct {
	strategy Strategy
	backfill Backfiller
	logger   *slog.Logger
}

// New probes the store once and selects a strategy.
func New(ctx context.Context, store Store, opts Options, logger *slog.Logger) (*Coordinator, error) {
	if store == nil {
		return nil, errors.New("claim coordinator requires a store")
	}
	logger = logging.NewComponentLogger(logger, "claim")

	c := &Coordinator{backfill: opts.InlineBackfill, logger: logger}
	probeErr := store.ProbeAtomicClaim(ctx)
	switch {
	case probeErr == nil:
		c.strategy = NewAtomicStrategy(store)
		logger.Debug("atomic claim available", logging.String("strategy", StrategyAtomic))
	case opts.AllowFallback:
		c.strategy = NewFallbackStrategy(store)
		logging.WarnWithContext(logger, "atomic claim unavailable; using fallback claims", "claim_fallback_selected",
			logging.Error(probeErr),
			logging.String("strategy", StrategyFallback),
			logging.String(logging.FieldImpact, "claims are not exclusive; two workers can process the same row"),
			logging.String(logging.FieldErrorHint, "check the store supports the claim transaction, then restart without claim.allow_fallback"),
		)
	default:
		return nil, fmt.Errorf("%w: %w", ErrAtomicClaimUnavailable, probeErr)
	}
	return c, nil
}

// NewWithStrategy builds a coordinator around an explicit strategy.
func NewWithStrategy(strategy Strategy, backfill Backfiller, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		strategy: strategy,
		backfill: backfill,
		logger:   logging.NewComponentLogger(logger, "claim"),
	}
}

// Strategy returns the active strategy.
func (c *Coordinator) Strategy() Strategy {
	return c.strategy
}

// Claim returns up to req.Limit rows leased to req.ResolverID.
func (c *Coordinator) Claim(ctx context.Context, req queue.ClaimRequest) ([]*queue.Row, error) {
	req = req.Normalize()
	if req.RequireExclusive && !c.strategy.Exclusive() {
		return nil, fmt.Errorf("%w: %s", ErrNotExclusive, c.strategy.Name())
	}
	ctx = services.WithResolver(ctx, req.ResolverID)
	ctx = services.WithReviewMode(ctx, string(req.Mode))
	logger := logging.WithContext(ctx, c.logger)

	if c.backfill != nil && req.Mode == queue.ReviewIngredient && req.Source != queue.SourceScraper {
		if n, err := c.backfill.Run(ctx); err != nil {
			logging.WarnWithContext(logger, "legacy flag backfill failed", "backfill_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "legacy recipe rows stay unclaimable until the next backfill"),
			)
		} else if n > 0 {
			logger.Info("legacy flag backfill updated rows", logging.Int64("rows", n))
		}
	}

	rows, err := c.strategy.Claim(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(rows) > 0 {
		logger.Debug("claimed rows",
			logging.String("strategy", c.strategy.Name()),
			logging.Int("count", len(rows)),
			logging.Duration("lease", req.Lease),
		)
	}
	return rows, nil
}
