package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ClaimAtomic selects up to req.Limit pending rows matching the source and
// review filters, moves them to processing under a fresh lease, and returns
// them, all inside one write transaction. Concurrent callers never receive the
// same row.
func (s *Store) ClaimAtomic(ctx context.Context, req ClaimRequest) ([]*Row, error) {
	req = req.Normalize()
	ctx = ensureContext(ctx)

	var claimed []*Row
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		claimed = nil
		now := s.clock()
		where, args := pendingFilter(req.Mode, req.Source)
		args = append(args, req.Limit)

		ids, err := selectIDs(ctx, tx,
			"SELECT id FROM ingredient_match_queue WHERE "+where+" ORDER BY created_at, id LIMIT ?"+s.dialect.claimLock,
			args...,
		)
		if err != nil {
			return fmt.Errorf("select claimable rows: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}

		if err := stampProcessing(ctx, tx, ids, req.ResolverID, now, req.Lease, StatusPending); err != nil {
			return err
		}

		rows, err := tx.QueryContext(ctx,
			"SELECT "+rowColumns+" FROM ingredient_match_queue WHERE id IN ("+makePlaceholders(len(ids))+") ORDER BY created_at, id",
			stringArgs(ids)...,
		)
		if err != nil {
			return fmt.Errorf("reload claimed rows: %w", err)
		}
		claimed, err = scanRows(rows)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("claim rows: %w", err)
	}
	return claimed, nil
}

// ProbeAtomicClaim checks that the backend accepts the claim transaction and
// its locking clause without touching any row.
func (s *Store) ProbeAtomicClaim(ctx context.Context) error {
	ctx = ensureContext(ctx)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("probe claim: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	where, args := pendingFilter(ReviewIngredient, SourceAny)
	rows, err := tx.QueryContext(ctx,
		"SELECT id FROM ingredient_match_queue WHERE "+where+" ORDER BY created_at, id LIMIT 0"+s.dialect.claimLock,
		args...,
	)
	if err != nil {
		return fmt.Errorf("probe claim: %w", err)
	}
	if err := rows.Close(); err != nil {
		return fmt.Errorf("probe claim: %w", err)
	}
	return nil
}

// MarkProcessing stamps claim fields on the given rows when they are pending
// or already processing (a re-lease). It is not atomic with whatever selected
// the ids: two callers that collected the same id will both succeed. Returns
// the rows that are processing after the update.
func (s *Store) MarkProcessing(ctx context.Context, ids []string, resolverID string, lease time.Duration) ([]*Row, error) {
	ids = dedupStrings(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	if lease <= 0 {
		lease = DefaultLease
	}
	ctx = ensureContext(ctx)

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		return stampProcessing(ctx, tx, ids, resolverID, s.clock(), lease, StatusPending, StatusProcessing)
	})
	if err != nil {
		return nil, fmt.Errorf("mark processing: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+rowColumns+" FROM ingredient_match_queue WHERE status = ? AND id IN ("+makePlaceholders(len(ids))+") ORDER BY created_at, id",
		append([]any{string(StatusProcessing)}, stringArgs(ids)...)...,
	)
	if err != nil {
		return nil, fmt.Errorf("reload processing rows: %w", err)
	}
	return scanRows(rows)
}

func stampProcessing(ctx context.Context, tx *sql.Tx, ids []string, resolverID string, now time.Time, lease time.Duration, from ...Status) error {
	started := formatTime(now)
	expires := formatTime(now.Add(lease))

	args := []any{string(StatusProcessing), started, expires, nullableString(resolverID), started}
	args = append(args, stringArgs(ids)...)
	for _, status := range from {
		args = append(args, string(status))
	}

	_, err := tx.ExecContext(ctx,
		`UPDATE ingredient_match_queue
		 SET status = ?,
		     processing_started_at = ?,
		     processing_lease_expires_at = ?,
		     last_error = NULL,
		     resolved_by = COALESCE(?, resolved_by),
		     updated_at = ?
		 WHERE id IN (`+makePlaceholders(len(ids))+`) AND status IN (`+makePlaceholders(len(from))+`)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("stamp lease: %w", err)
	}
	return nil
}

func selectIDs(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]string, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
