package queue

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// expectedColumns lists every column the store reads or writes.
var expectedColumns = []string{
	"id",
	"raw_name",
	"cleaned_name",
	"dedup_key",
	"source",
	"status",
	"needs_ingredient_review",
	"needs_unit_review",
	"best_fuzzy_match",
	"fuzzy_score",
	"resolved_ingredient_id",
	"resolved_unit",
	"resolved_quantity",
	"unit_confidence",
	"quantity_confidence",
	"resolved_by",
	"processing_started_at",
	"processing_lease_expires_at",
	"attempt_count",
	"last_error",
	"created_at",
	"updated_at",
	"resolved_at",
}

var rowColumns = strings.Join(expectedColumns, ", ")

func (s *Store) tableColumns(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.columnsQuery)
	if err != nil {
		return nil, fmt.Errorf("list table columns: %w", err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan column name: %w", err)
		}
		columns = append(columns, strings.ToLower(name))
	}
	return columns, rows.Err()
}

func missingColumns(present []string) []string {
	have := make(map[string]struct{}, len(present))
	for _, col := range present {
		have[col] = struct{}{}
	}
	var missing []string
	for _, col := range expectedColumns {
		if _, ok := have[col]; !ok {
			missing = append(missing, col)
		}
	}
	sort.Strings(missing)
	return missing
}

// verifySchema fails when a pre-existing table lacks columns this build needs.
func (s *Store) verifySchema(ctx context.Context) error {
	columns, err := s.tableColumns(ctx)
	if err != nil {
		return err
	}
	if missing := missingColumns(columns); len(missing) > 0 {
		return fmt.Errorf("%w: %s is missing columns %s", ErrSchemaMismatch, tableName, strings.Join(missing, ", "))
	}
	return nil
}
