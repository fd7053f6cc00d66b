package queue

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// RequeueExpired returns processing rows whose lease is strictly in the past to
// pending, in one write transaction. Each touched row has attempt_count
// incremented; with req.MaxAttempts > 0, rows reaching the ceiling are failed
// instead of requeued. Rows holding a future lease are never selected.
func (s *Store) RequeueExpired(ctx context.Context, req RequeueRequest) (RequeueResult, error) {
	if req.Limit <= 0 {
		req.Limit = 100
	}
	message := strings.TrimSpace(req.ErrorMessage)
	ctx = ensureContext(ctx)

	var result RequeueResult
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result = RequeueResult{}
		now := s.clock()
		stamp := formatTime(now)

		rows, err := tx.QueryContext(ctx,
			`SELECT id, attempt_count FROM ingredient_match_queue
			 WHERE status = ? AND processing_lease_expires_at IS NOT NULL AND processing_lease_expires_at < ?
			 ORDER BY processing_lease_expires_at, id
			 LIMIT ?`+s.dialect.claimLock,
			string(StatusProcessing), stamp, req.Limit,
		)
		if err != nil {
			return fmt.Errorf("select expired leases: %w", err)
		}
		var requeue, exhausted []string
		for rows.Next() {
			var (
				id       string
				attempts int
			)
			if err := rows.Scan(&id, &attempts); err != nil {
				_ = rows.Close()
				return fmt.Errorf("scan expired lease: %w", err)
			}
			if req.MaxAttempts > 0 && attempts+1 >= req.MaxAttempts {
				exhausted = append(exhausted, id)
			} else {
				requeue = append(requeue, id)
			}
		}
		if err := rows.Close(); err != nil {
			return err
		}
		if err := rows.Err(); err != nil {
			return err
		}

		if len(requeue) > 0 {
			args := []any{string(StatusPending), nullableString(message), stamp}
			args = append(args, stringArgs(requeue)...)
			args = append(args, string(StatusProcessing))
			res, err := tx.ExecContext(ctx,
				`UPDATE ingredient_match_queue
				 SET status = ?,
				     processing_started_at = NULL,
				     processing_lease_expires_at = NULL,
				     attempt_count = attempt_count + 1,
				     last_error = COALESCE(?, last_error),
				     updated_at = ?
				 WHERE id IN (`+makePlaceholders(len(requeue))+`) AND status = ?`,
				args...,
			)
			if err != nil {
				return fmt.Errorf("requeue expired rows: %w", err)
			}
			affected, _ := res.RowsAffected()
			result.Requeued = int(affected)
		}

		if len(exhausted) > 0 {
			reason := fmt.Sprintf("lease expired after %d attempts", req.MaxAttempts)
			if message != "" {
				reason += ": " + message
			}
			args := []any{string(StatusFailed), reason, stamp, stamp}
			args = append(args, stringArgs(exhausted)...)
			args = append(args, string(StatusProcessing))
			res, err := tx.ExecContext(ctx,
				`UPDATE ingredient_match_queue
				 SET status = ?,
				     processing_started_at = NULL,
				     processing_lease_expires_at = NULL,
				     attempt_count = attempt_count + 1,
				     last_error = ?,
				     resolved_at = ?,
				     updated_at = ?
				 WHERE id IN (`+makePlaceholders(len(exhausted))+`) AND status = ?`,
				args...,
			)
			if err != nil {
				return fmt.Errorf("fail exhausted rows: %w", err)
			}
			affected, _ := res.RowsAffected()
			result.Exhausted = int(affected)
		}

		result.IDs = append(append([]string{}, requeue...), exhausted...)
		return nil
	})
	if err != nil {
		return RequeueResult{}, fmt.Errorf("requeue expired: %w", err)
	}
	return result, nil
}

// RetryFailed returns failed rows to pending with a fresh attempt budget. With
// no ids every failed row is retried. Returns the number of rows updated.
func (s *Store) RetryFailed(ctx context.Context, ids ...string) (int64, error) {
	ids = dedupStrings(ids)
	now := formatTime(s.clock())
	query := `UPDATE ingredient_match_queue
		SET status = ?,
		    resolved_at = NULL,
		    last_error = NULL,
		    attempt_count = 0,
		    updated_at = ?
		WHERE status = ?`
	args := []any{string(StatusPending), now, string(StatusFailed)}
	if len(ids) > 0 {
		query += " AND id IN (" + makePlaceholders(len(ids)) + ")"
		args = append(args, stringArgs(ids)...)
	}
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry failed rows: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("retry failed rows: %w", err)
	}
	return affected, nil
}

// BackfillLegacyIngredientFlags marks pending recipe rows that predate the
// review flags as needing ingredient review. Rows written before the flag
// existed carry 0 or NULL with no resolved ingredient. Safe to repeat; returns
// the number of rows updated.
func (s *Store) BackfillLegacyIngredientFlags(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE ingredient_match_queue
		 SET needs_ingredient_review = 1,
		     updated_at = ?
		 WHERE source = ?
		   AND status = ?
		   AND resolved_ingredient_id IS NULL
		   AND (needs_ingredient_review IS NULL OR needs_ingredient_review = 0)`,
		formatTime(s.clock()), string(SourceRecipe), string(StatusPending),
	)
	if err != nil {
		return 0, fmt.Errorf("backfill ingredient flags: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("backfill ingredient flags: %w", err)
	}
	return affected, nil
}
