package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Insert adds a pending row unless a pending or processing row with the same
// dedup key already exists. The second return value reports whether a new row
// was created; when false the existing row is returned.
func (s *Store) Insert(ctx context.Context, in NewRow) (*Row, bool, error) {
	in.RawName = strings.TrimSpace(in.RawName)
	in.CleanedName = strings.TrimSpace(in.CleanedName)
	in.DedupKey = strings.TrimSpace(in.DedupKey)
	if in.RawName == "" {
		return nil, false, fmt.Errorf("%w: raw name is required", ErrValidation)
	}
	if !in.Source.Concrete() {
		return nil, false, fmt.Errorf("%w: source must be scraper or recipe, got %q", ErrValidation, in.Source)
	}
	if in.CleanedName == "" {
		in.CleanedName = in.RawName
	}
	if in.DedupKey == "" {
		in.DedupKey = string(in.Source) + ":" + strings.ToLower(in.CleanedName)
	}

	ctx = ensureContext(ctx)
	var (
		id      string
		created bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		created = false
		var existing string
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM ingredient_match_queue
			 WHERE dedup_key = ? AND status IN (?, ?)
			 ORDER BY created_at, id LIMIT 1`+s.dialect.rowLock,
			in.DedupKey, string(StatusPending), string(StatusProcessing),
		).Scan(&existing)
		switch {
		case err == nil:
			id = existing
			return nil
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("lookup dedup key: %w", err)
		}

		id = uuid.NewString()
		now := formatTime(s.clock())
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ingredient_match_queue (
				id, raw_name, cleaned_name, dedup_key, source, status,
				needs_ingredient_review, needs_unit_review, attempt_count,
				created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
			id, in.RawName, in.CleanedName, in.DedupKey, string(in.Source), string(StatusPending),
			boolToInt(in.NeedsIngredientReview), boolToInt(in.NeedsUnitReview),
			now, now,
		); err != nil {
			return fmt.Errorf("insert row: %w", err)
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("enqueue %q: %w", in.RawName, err)
	}

	row, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return row, created, nil
}

// GetByID fetches a single row by id.
func (s *Store) GetByID(ctx context.Context, id string) (*Row, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		"SELECT "+rowColumns+" FROM ingredient_match_queue WHERE id = ?", id,
	)
	r, err := scanRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get row %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get row %s: %w", id, err)
	}
	return r, nil
}

func getByIDTx(ctx context.Context, tx *sql.Tx, d dialect, id string) (*Row, error) {
	row := tx.QueryRowContext(ctx,
		"SELECT "+rowColumns+" FROM ingredient_match_queue WHERE id = ?"+d.rowLock, id,
	)
	r, err := scanRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("row %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load row %s: %w", id, err)
	}
	return r, nil
}

// GetByIDs fetches rows in creation order. Unknown ids are skipped.
func (s *Store) GetByIDs(ctx context.Context, ids []string) ([]*Row, error) {
	ids = dedupStrings(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		"SELECT "+rowColumns+" FROM ingredient_match_queue WHERE id IN ("+makePlaceholders(len(ids))+") ORDER BY created_at, id",
		stringArgs(ids)...,
	)
	if err != nil {
		return nil, fmt.Errorf("get rows: %w", err)
	}
	return scanRows(rows)
}

// List returns rows filtered by status and source, newest first.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]*Row, error) {
	var (
		clauses []string
		args    []any
	)
	if len(filter.Statuses) > 0 {
		clauses = append(clauses, "status IN ("+makePlaceholders(len(filter.Statuses))+")")
		for _, status := range filter.Statuses {
			args = append(args, string(status))
		}
	}
	if filter.Source.Concrete() {
		clauses = append(clauses, "source = ?")
		args = append(args, string(filter.Source))
	}

	query := "SELECT " + rowColumns + " FROM ingredient_match_queue"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list rows: %w", err)
	}
	return scanRows(rows)
}

// ListPending pages through pending rows oldest first without review or source
// filtering. The fallback claim path filters the page client-side.
func (s *Store) ListPending(ctx context.Context, offset, limit int) ([]*Row, error) {
	if limit <= 0 {
		limit = DefaultClaimLimit
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		"SELECT "+rowColumns+" FROM ingredient_match_queue WHERE status = ? ORDER BY created_at, id LIMIT ? OFFSET ?",
		string(StatusPending), limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending rows: %w", err)
	}
	return scanRows(rows)
}
