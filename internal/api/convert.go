package api

import (
	"time"

	"larder/internal/preflight"
	"larder/internal/queue"
)

// FromRow converts a queue row to its API representation.
func FromRow(row *queue.Row) QueueRow {
	if row == nil {
		return QueueRow{}
	}
	return QueueRow{
		ID:                    row.ID,
		RawName:               row.RawName,
		CleanedName:           row.CleanedName,
		Source:                string(row.Source),
		Status:                string(row.Status),
		NeedsIngredientReview: row.NeedsIngredientReview,
		NeedsUnitReview:       row.NeedsUnitReview,
		PendingUnit:           row.PendingUnit(),
		BestFuzzyMatch:        row.BestFuzzyMatch,
		FuzzyScore:            row.FuzzyScore,
		ResolvedIngredientID:  row.ResolvedIngredientID,
		ResolvedUnit:          row.ResolvedUnit,
		ResolvedQuantity:      row.ResolvedQuantity,
		UnitConfidence:        row.UnitConfidence,
		QuantityConfidence:    row.QuantityConfidence,
		ResolvedBy:            row.ResolvedBy,
		ProcessingStartedAt:   formatTimePtr(row.ProcessingStartedAt),
		LeaseExpiresAt:        formatTimePtr(row.ProcessingLeaseExpiresAt),
		AttemptCount:          row.AttemptCount,
		LastError:             row.LastError,
		CreatedAt:             formatTime(row.CreatedAt),
		UpdatedAt:             formatTime(row.UpdatedAt),
		ResolvedAt:            formatTimePtr(row.ResolvedAt),
	}
}

// FromRows converts a slice of queue rows into API DTOs.
func FromRows(rows []*queue.Row) []QueueRow {
	out := make([]QueueRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, FromRow(row))
	}
	return out
}

// MergeQueueStats converts status-keyed counts into string keys, including
// zero entries for every known status.
func MergeQueueStats(stats map[queue.Status]int) map[string]int {
	out := make(map[string]int, len(queue.AllStatuses()))
	for _, status := range queue.AllStatuses() {
		out[string(status)] = 0
	}
	for status, count := range stats {
		out[string(status)] = count
	}
	return out
}

// FromHealthSummary converts queue counters.
func FromHealthSummary(h queue.HealthSummary) QueueHealth {
	return QueueHealth{
		Total:        h.Total,
		Pending:      h.Pending,
		PendingUnit:  h.PendingUnit,
		Processing:   h.Processing,
		Expired:      h.Expired,
		Resolved:     h.Resolved,
		Failed:       h.Failed,
		MaxAttempts:  h.MaxAttempts,
		OldestLeased: formatTimePtr(h.OldestLeased),
	}
}

// FromDatabaseHealth converts store diagnostics.
func FromDatabaseHealth(h queue.DatabaseHealth) DatabaseHealth {
	return DatabaseHealth{
		Driver:           h.Driver,
		Location:         h.Location,
		DatabaseExists:   h.DatabaseExists,
		DatabaseReadable: h.DatabaseReadable,
		SchemaVersion:    h.SchemaVersion,
		TableExists:      h.TableExists,
		MissingColumns:   h.MissingColumns,
		IntegrityCheck:   h.IntegrityCheck,
		TotalRows:        h.TotalRows,
		Error:            h.Error,
	}
}

// FromPreflight converts preflight results.
func FromPreflight(results []preflight.Result) []CheckResult {
	if len(results) == 0 {
		return nil
	}
	out := make([]CheckResult, 0, len(results))
	for _, r := range results {
		out = append(out, CheckResult{Name: r.Name, Passed: r.Passed, Optional: r.Optional, Detail: r.Detail})
	}
	return out
}

// FromRequeueResult converts a sweep result.
func FromRequeueResult(r queue.RequeueResult) RequeueResponse {
	ids := r.IDs
	if ids == nil {
		ids = []string{}
	}
	return RequeueResponse{Requeued: r.Requeued, Exhausted: r.Exhausted, IDs: ids}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

// FormatTimestamp renders t the way API payloads carry timestamps. Zero and
// nil times render as "".
func FormatTimestamp(t *time.Time) string {
	return formatTimePtr(t)
}
