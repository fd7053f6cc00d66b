package claim

import (
	"context"
	"fmt"
	"time"

	"larder/internal/queue"
)

const (
	// StrategyAtomic names the single-transaction claim.
	StrategyAtomic = "atomic"
	// StrategyFallback names the two-step page-then-stamp claim.
	StrategyFallback = "fallback"

	fallbackMinPageSize = 100
	fallbackMaxPages    = 20
)

// Store is the slice of queue.Store the strategies need.
type Store interface {
	ClaimAtomic(ctx context.Context, req queue.ClaimRequest) ([]*queue.Row, error)
	ProbeAtomicClaim(ctx context.Context) error
	ListPending(ctx context.Context, offset, limit int) ([]*queue.Row, error)
	MarkProcessing(ctx context.Context, ids []string, resolverID string, lease time.Duration) ([]*queue.Row, error)
}

// Strategy claims a batch of rows.
type Strategy interface {
	Name() string
	// Exclusive reports whether concurrent callers are guaranteed disjoint batches.
	Exclusive() bool
	Claim(ctx context.Context, req queue.ClaimRequest) ([]*queue.Row, error)
}

// NewAtomicStrategy returns the exclusive single-transaction strategy.
func NewAtomicStrategy(store Store) Strategy {
	return atomicStrategy{store: store}
}

// NewFallbackStrategy returns the non-exclusive two-step strategy.
func NewFallbackStrategy(store Store) Strategy {
	return fallbackStrategy{store: store}
}

type atomicStrategy struct {
	store Store
}

func (atomicStrategy) Name() string    { return StrategyAtomic }
func (atomicStrategy) Exclusive() bool { return true }

func (s atomicStrategy) Claim(ctx context.Context, req queue.ClaimRequest) ([]*queue.Row, error) {
	return s.store.ClaimAtomic(ctx, req.Normalize())
}

type fallbackStrategy struct {
	store Store
}

func (fallbackStrategy) Name() string    { return StrategyFallback }
func (fallbackStrategy) Exclusive() bool { return false }

func (s fallbackStrategy) Claim(ctx context.Context, req queue.ClaimRequest) ([]*queue.Row, error) {
	req = req.Normalize()
	ids, err := s.collect(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.markProcessing(ctx, ids, req)
}

// collect pages pending rows oldest first and keeps up to req.Limit that pass
// the review and source filters.
func (s fallbackStrategy) collect(ctx context.Context, req queue.ClaimRequest) ([]string, error) {
	pageSize := req.Limit * 2
	if pageSize < fallbackMinPageSize {
		pageSize = fallbackMinPageSize
	}

	ids := make([]string, 0, req.Limit)
	for page := 0; page < fallbackMaxPages && len(ids) < req.Limit; page++ {
		rows, err := s.store.ListPending(ctx, page*pageSize, pageSize)
		if err != nil {
			return nil, fmt.Errorf("fallback claim: page %d: %w", page, err)
		}
		for _, row := range rows {
			if !req.Source.Matches(row.Source) || !req.Mode.Matches(row) {
				continue
			}
			ids = append(ids, row.ID)
			if len(ids) == req.Limit {
				break
			}
		}
		if len(rows) < pageSize {
			break
		}
	}
	return ids, nil
}

func (s fallbackStrategy) markProcessing(ctx context.Context, ids []string, req queue.ClaimRequest) ([]*queue.Row, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.store.MarkProcessing(ctx, ids, req.ResolverID, req.Lease)
	if err != nil {
		return nil, fmt.Errorf("fallback claim: %w", err)
	}
	return rows, nil
}
