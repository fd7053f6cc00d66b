package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"larder/internal/logging"
	"larder/internal/matcher"
	"larder/internal/queue"
	"larder/internal/services"
)

// Claimer hands out leased batches. *claim.Coordinator satisfies it.
type Claimer interface {
	Claim(ctx context.Context, req queue.ClaimRequest) ([]*queue.Row, error)
}

// Writer records outcomes. *queue.Store satisfies it.
type Writer interface {
	MarkResolved(ctx context.Context, id string, res queue.Resolution) error
	MarkIngredientResolvedPendingUnit(ctx context.Context, id, ingredientID, canonicalName string, confidence float64, resolverID string) error
	MarkFailed(ctx context.Context, id, resolverID, errorMessage string) error
}

// Outcome is what happened to one row.
type Outcome string

const (
	OutcomeResolved    Outcome = "resolved"
	OutcomePendingUnit Outcome = "pending_unit"
	OutcomeFailed      Outcome = "failed"
	// OutcomeSkipped means the row was left for lease expiry.
	OutcomeSkipped Outcome = "skipped"
)

// BatchResult summarizes one claimed batch.
type BatchResult struct {
	CorrelationID string
	Claimed       int
	Outcomes      map[Outcome]int
}

// Stats are cumulative counters across every loop of a pool.
type Stats struct {
	Batches     int64
	Claimed     int64
	Resolved    int64
	PendingUnit int64
	Failed      int64
	Skipped     int64
}

// Pool runs concurrent claim loops.
type Pool struct {
	claimer Claimer
	writer  Writer
	matcher matcher.Matcher
	opts    Options
	logger  *slog.Logger

	batches     atomic.Int64
	claimed     atomic.Int64
	resolved    atomic.Int64
	pendingUnit atomic.Int64
	failed      atomic.Int64
	skipped     atomic.Int64
}

// New builds a pool.
func New(claimer Claimer, writer Writer, m matcher.Matcher, opts Options, logger *slog.Logger) (*Pool, error) {
	if claimer == nil || writer == nil || m == nil {
		return nil, errors.New("worker pool requires a claimer, writer and matcher")
	}
	return &Pool{
		claimer: claimer,
		writer:  writer,
		matcher: m,
		opts:    opts.withDefaults(),
		logger:  logging.NewComponentLogger(logger, "worker"),
	}, nil
}

// ResolverID returns the resolver id used by loop n.
func (p *Pool) ResolverID(n int) string {
	return fmt.Sprintf("%s-%d", p.opts.ResolverID, n)
}

// Run starts the loops and blocks until ctx is cancelled or a loop fails.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.Info("worker pool starting",
		logging.Int("concurrency", p.opts.Concurrency),
		logging.Int("batch_size", p.opts.BatchSize),
		logging.String(logging.FieldReviewMode, string(p.opts.Mode)),
		logging.String("source", string(p.opts.Source)),
		logging.Duration("lease", p.opts.Lease),
	)
	group, gctx := errgroup.WithContext(ctx)
	for i := 1; i <= p.opts.Concurrency; i++ {
		resolver := p.ResolverID(i)
		group.Go(func() error {
			return p.loop(gctx, resolver)
		})
	}
	err := group.Wait()
	stats := p.Stats()
	p.logger.Info("worker pool stopped",
		logging.Int64("batches", stats.Batches),
		logging.Int64("resolved", stats.Resolved),
		logging.Int64("pending_unit", stats.PendingUnit),
		logging.Int64("failed", stats.Failed),
		logging.Int64("skipped", stats.Skipped),
	)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (p *Pool) loop(ctx context.Context, resolver string) error {
	logger := p.logger.With(logging.String(logging.FieldResolver, resolver))
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		result, err := p.ProcessBatch(ctx, resolver)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil
		case err != nil:
			logging.ErrorWithContext(logger, "claim failed", "claim_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check queue database access"),
				logging.String(logging.FieldImpact, "worker idle until the next retry"),
			)
			if !sleep(ctx, p.opts.ErrorRetryInterval) {
				return nil
			}
		case result.Claimed == 0:
			if !sleep(ctx, p.opts.PollInterval) {
				return nil
			}
		case result.Outcomes[OutcomeSkipped] == result.Claimed:
			logging.WarnWithContext(logger, "every claimed row was skipped", "batch_skipped",
				logging.Int("claimed", result.Claimed),
				logging.String(logging.FieldErrorHint, "check the matcher backend"),
				logging.String(logging.FieldImpact, "skipped rows wait for lease expiry"),
			)
			if !sleep(ctx, p.opts.ErrorRetryInterval) {
				return nil
			}
		}
	}
}

// ProcessBatch claims one batch under resolver and processes every row.
func (p *Pool) ProcessBatch(ctx context.Context, resolver string) (BatchResult, error) {
	result := BatchResult{CorrelationID: uuid.NewString(), Outcomes: make(map[Outcome]int)}
	ctx = services.WithRequestID(ctx, result.CorrelationID)
	ctx = services.WithResolver(ctx, resolver)

	rows, err := p.claimer.Claim(ctx, queue.ClaimRequest{
		Limit:      p.opts.BatchSize,
		ResolverID: resolver,
		Lease:      p.opts.Lease,
		Mode:       p.opts.Mode,
		Source:     p.opts.Source,
	})
	if err != nil {
		return result, err
	}
	result.Claimed = len(rows)
	if len(rows) == 0 {
		return result, nil
	}
	p.batches.Add(1)
	p.claimed.Add(int64(len(rows)))

	for _, row := range rows {
		if ctx.Err() != nil {
			break
		}
		outcome := p.process(services.WithRowID(ctx, row.ID), row, resolver)
		result.Outcomes[outcome]++
		p.count(outcome)
	}
	logging.WithContext(ctx, p.logger).Info("batch processed",
		logging.Int("claimed", result.Claimed),
		logging.Int("resolved", result.Outcomes[OutcomeResolved]),
		logging.Int("pending_unit", result.Outcomes[OutcomePendingUnit]),
		logging.Int("failed", result.Outcomes[OutcomeFailed]),
		logging.Int("skipped", result.Outcomes[OutcomeSkipped]),
	)
	return result, nil
}

// Stats returns cumulative counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Batches:     p.batches.Load(),
		Claimed:     p.claimed.Load(),
		Resolved:    p.resolved.Load(),
		PendingUnit: p.pendingUnit.Load(),
		Failed:      p.failed.Load(),
		Skipped:     p.skipped.Load(),
	}
}

func (p *Pool) count(outcome Outcome) {
	switch outcome {
	case OutcomeResolved:
		p.resolved.Add(1)
	case OutcomePendingUnit:
		p.pendingUnit.Add(1)
	case OutcomeFailed:
		p.failed.Add(1)
	default:
		p.skipped.Add(1)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
