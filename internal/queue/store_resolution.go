package queue

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// MarkResolved records a full or partial resolution and moves the row to
// resolved. Nil fields in res keep their stored values. Calling it again with
// the same arguments leaves the row unchanged, including resolved_at. Failed
// rows must go through RetryFailed first.
func (s *Store) MarkResolved(ctx context.Context, id string, res Resolution) error {
	ctx = ensureContext(ctx)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getByIDTx(ctx, tx, s.dialect, id)
		if err != nil {
			return err
		}
		if current.Status == StatusFailed {
			return fmt.Errorf("%w: row is failed", ErrInvalidTransition)
		}
		now := s.clock()
		if err := ensureLeaseOwner(current, res.ResolvedBy, now); err != nil {
			return err
		}
		next := applyResolution(*current, res)
		if next.ResolvedIngredientID == "" && next.ResolvedUnit == "" {
			return fmt.Errorf("%w: row %s needs a resolved ingredient or unit", ErrValidation, id)
		}

		resolvedAt := now
		if current.Status == StatusResolved && current.ResolvedAt != nil {
			resolvedAt = *current.ResolvedAt
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE ingredient_match_queue
			 SET resolved_at = ?,
			     status = ?,
			     resolved_ingredient_id = ?,
			     resolved_unit = ?,
			     resolved_quantity = ?,
			     best_fuzzy_match = ?,
			     fuzzy_score = ?,
			     unit_confidence = ?,
			     quantity_confidence = ?,
			     resolved_by = ?,
			     needs_ingredient_review = ?,
			     needs_unit_review = ?,
			     processing_started_at = NULL,
			     processing_lease_expires_at = NULL,
			     last_error = NULL,
			     updated_at = ?
			 WHERE id = ?`,
			formatTime(resolvedAt),
			string(StatusResolved),
			nullableString(next.ResolvedIngredientID),
			nullableString(next.ResolvedUnit),
			nullableFloat(next.ResolvedQuantity),
			nullableString(next.BestFuzzyMatch),
			nullableFloat(next.FuzzyScore),
			nullableFloat(next.UnitConfidence),
			nullableFloat(next.QuantityConfidence),
			nullableString(next.ResolvedBy),
			boolToInt(next.NeedsIngredientReview),
			boolToInt(next.NeedsUnitReview),
			formatTime(now),
			id,
		)
		if err != nil {
			return fmt.Errorf("update row: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("mark resolved %s: %w", id, err)
	}
	return nil
}

func applyResolution(row Row, res Resolution) Row {
	if res.IngredientID != nil {
		row.ResolvedIngredientID = strings.TrimSpace(*res.IngredientID)
	}
	if res.Unit != nil {
		row.ResolvedUnit = strings.TrimSpace(*res.Unit)
	}
	if res.Quantity != nil {
		row.ResolvedQuantity = res.Quantity
	}
	if res.BestFuzzyMatch != nil {
		row.BestFuzzyMatch = *res.BestFuzzyMatch
	}
	if res.FuzzyScore != nil {
		row.FuzzyScore = res.FuzzyScore
	}
	if res.UnitConfidence != nil {
		row.UnitConfidence = res.UnitConfidence
	}
	if res.QuantityConfidence != nil {
		row.QuantityConfidence = res.QuantityConfidence
	}
	if resolver := strings.TrimSpace(res.ResolvedBy); resolver != "" {
		row.ResolvedBy = resolver
	}
	if !res.KeepIngredientReview {
		row.NeedsIngredientReview = false
	}
	if !res.KeepUnitReview {
		row.NeedsUnitReview = false
	}
	return row
}

// MarkIngredientResolvedPendingUnit records the ingredient identity and
// returns the row to pending so a unit-mode claimer can finish it.
func (s *Store) MarkIngredientResolvedPendingUnit(ctx context.Context, id, ingredientID, canonicalName string, confidence float64, resolverID string) error {
	ingredientID = strings.TrimSpace(ingredientID)
	if ingredientID == "" {
		return fmt.Errorf("mark pending unit %s: %w: ingredient id is required", id, ErrValidation)
	}
	ctx = ensureContext(ctx)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getByIDTx(ctx, tx, s.dialect, id)
		if err != nil {
			return err
		}
		if current.Status != StatusPending && current.Status != StatusProcessing {
			return fmt.Errorf("%w: row is %s", ErrInvalidTransition, current.Status)
		}
		now := s.clock()
		if err := ensureLeaseOwner(current, resolverID, now); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE ingredient_match_queue
			 SET status = ?,
			     resolved_ingredient_id = ?,
			     best_fuzzy_match = COALESCE(?, best_fuzzy_match),
			     fuzzy_score = ?,
			     resolved_by = COALESCE(?, resolved_by),
			     needs_ingredient_review = 0,
			     needs_unit_review = 1,
			     processing_started_at = NULL,
			     processing_lease_expires_at = NULL,
			     last_error = NULL,
			     resolved_at = NULL,
			     updated_at = ?
			 WHERE id = ?`,
			string(StatusPending),
			ingredientID,
			nullableString(strings.TrimSpace(canonicalName)),
			confidence,
			nullableString(strings.TrimSpace(resolverID)),
			formatTime(now),
			id,
		)
		if err != nil {
			return fmt.Errorf("update row: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("mark pending unit %s: %w", id, err)
	}
	return nil
}

// MarkFailed moves a row to the terminal failed state. Resolved rows cannot be
// failed, and neither can rows another resolver holds under a live lease. Repeating the call keeps the original resolved_at.
func (s *Store) MarkFailed(ctx context.Context, id, resolverID, errorMessage string) error {
	ctx = ensureContext(ctx)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getByIDTx(ctx, tx, s.dialect, id)
		if err != nil {
			return err
		}
		if current.Status == StatusResolved {
			return fmt.Errorf("%w: row is already resolved", ErrInvalidTransition)
		}
		now := s.clock()
		if err := ensureLeaseOwner(current, resolverID, now); err != nil {
			return err
		}
		failedAt := now
		if current.Status == StatusFailed && current.ResolvedAt != nil {
			failedAt = *current.ResolvedAt
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE ingredient_match_queue
			 SET status = ?,
			     resolved_at = ?,
			     resolved_by = COALESCE(?, resolved_by),
			     last_error = ?,
			     processing_started_at = NULL,
			     processing_lease_expires_at = NULL,
			     updated_at = ?
			 WHERE id = ?`,
			string(StatusFailed),
			formatTime(failedAt),
			nullableString(strings.TrimSpace(resolverID)),
			nullableString(strings.TrimSpace(errorMessage)),
			formatTime(now),
			id,
		)
		if err != nil {
			return fmt.Errorf("update row: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("mark failed %s: %w", id, err)
	}
	return nil
}

// ensureLeaseOwner rejects a write from resolverID while a different resolver
// holds an unexpired lease on row. An empty resolverID skips the check.
func ensureLeaseOwner(row *Row, resolverID string, now time.Time) error {
	resolverID = strings.TrimSpace(resolverID)
	if resolverID == "" || row.Status != StatusProcessing {
		return nil
	}
	if row.ProcessingLeaseExpiresAt == nil || !row.ProcessingLeaseExpiresAt.After(now) {
		return nil
	}
	if row.ResolvedBy == "" || row.ResolvedBy == resolverID {
		return nil
	}
	return fmt.Errorf("%w: row is leased by %s until %s", ErrInvalidTransition,
		row.ResolvedBy, row.ProcessingLeaseExpiresAt.UTC().Format(time.RFC3339))
}
