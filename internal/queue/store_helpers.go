package queue

import (
	"database/sql"
	"errors"
	"strings"
	"time"
)

// timeLayout is fixed width so text comparison in SQL matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func scanRow(scanner interface{ Scan(dest ...any) error }) (*Row, error) {
	var (
		id                 string
		rawName            string
		cleanedName        string
		dedupKey           string
		sourceStr          string
		statusStr          string
		needsIngredient    sql.NullInt64
		needsUnit          sql.NullInt64
		bestFuzzyMatch     sql.NullString
		fuzzyScore         sql.NullFloat64
		ingredientID       sql.NullString
		unit               sql.NullString
		quantity           sql.NullFloat64
		unitConfidence     sql.NullFloat64
		quantityConfidence sql.NullFloat64
		resolvedBy         sql.NullString
		startedRaw         sql.NullString
		leaseRaw           sql.NullString
		attemptCount       int
		lastError          sql.NullString
		createdRaw         string
		updatedRaw         string
		resolvedRaw        sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&rawName,
		&cleanedName,
		&dedupKey,
		&sourceStr,
		&statusStr,
		&needsIngredient,
		&needsUnit,
		&bestFuzzyMatch,
		&fuzzyScore,
		&ingredientID,
		&unit,
		&quantity,
		&unitConfidence,
		&quantityConfidence,
		&resolvedBy,
		&startedRaw,
		&leaseRaw,
		&attemptCount,
		&lastError,
		&createdRaw,
		&updatedRaw,
		&resolvedRaw,
	); err != nil {
		return nil, err
	}

	row := &Row{
		ID:                       id,
		RawName:                  rawName,
		CleanedName:              cleanedName,
		DedupKey:                 dedupKey,
		Source:                   Source(sourceStr),
		Status:                   Status(statusStr),
		NeedsIngredientReview:    !needsIngredient.Valid || needsIngredient.Int64 != 0,
		NeedsUnitReview:          needsUnit.Valid && needsUnit.Int64 != 0,
		BestFuzzyMatch:           bestFuzzyMatch.String,
		FuzzyScore:               floatPtr(fuzzyScore),
		ResolvedIngredientID:     ingredientID.String,
		ResolvedUnit:             unit.String,
		ResolvedQuantity:         floatPtr(quantity),
		UnitConfidence:           floatPtr(unitConfidence),
		QuantityConfidence:       floatPtr(quantityConfidence),
		ResolvedBy:               resolvedBy.String,
		ProcessingStartedAt:      timePtr(startedRaw),
		ProcessingLeaseExpiresAt: timePtr(leaseRaw),
		AttemptCount:             attemptCount,
		LastError:                lastError.String,
		ResolvedAt:               timePtr(resolvedRaw),
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		row.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		row.UpdatedAt = updated
	}
	return row, nil
}

func scanRows(rows *sql.Rows) ([]*Row, error) {
	defer rows.Close()
	var out []*Row
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func floatPtr(value sql.NullFloat64) *float64 {
	if !value.Valid {
		return nil
	}
	v := value.Float64
	return &v
}

func timePtr(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	t, err := parseTimeString(value.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableFloat(value *float64) any {
	if value == nil {
		return nil
	}
	return *value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return formatTime(*value)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC(), nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

// reviewClause returns the SQL form of ReviewMode.Matches.
func reviewClause(mode ReviewMode) string {
	switch mode {
	case ReviewIngredient:
		return "(needs_ingredient_review IS NULL OR needs_ingredient_review <> 0)"
	case ReviewUnit:
		return "needs_unit_review = 1"
	default:
		return ""
	}
}

// pendingFilter builds the WHERE clause shared by claims and listings.
func pendingFilter(mode ReviewMode, source Source) (string, []any) {
	clauses := []string{"status = ?"}
	args := []any{string(StatusPending)}
	if source.Concrete() {
		clauses = append(clauses, "source = ?")
		args = append(args, string(source))
	}
	if clause := reviewClause(mode); clause != "" {
		clauses = append(clauses, clause)
	}
	return strings.Join(clauses, " AND "), args
}

func dedupStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
