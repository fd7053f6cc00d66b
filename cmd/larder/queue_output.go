package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"larder/internal/api"
	"larder/internal/queue"
	"larder/internal/textutil"
)

func buildQueueStatusRows(counts map[string]int) [][]string {
	rows := make([][]string, 0, len(counts))
	total := 0
	for _, status := range queue.AllStatuses() {
		count := counts[string(status)]
		total += count
		rows = append(rows, []string{titleStatus(string(status)), strconv.Itoa(count)})
	}
	if total == 0 {
		return nil
	}
	return rows
}

func titleStatus(status string) string {
	if status == "" {
		return ""
	}
	return strings.ToUpper(status[:1]) + status[1:]
}

func buildQueueListRows(rows []api.QueueRow) [][]string {
	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, []string{
			row.ID,
			textutil.FirstNonEmpty(row.CleanedName, row.RawName),
			row.Source,
			row.Status,
			reviewLabel(row),
			textutil.FirstNonEmpty(row.ResolvedIngredientID, "-"),
			strconv.Itoa(row.AttemptCount),
		})
	}
	return out
}

func reviewLabel(row api.QueueRow) string {
	switch {
	case row.NeedsIngredientReview && row.NeedsUnitReview:
		return "ingredient+unit"
	case row.NeedsIngredientReview:
		return "ingredient"
	case row.NeedsUnitReview:
		return "unit"
	default:
		return "-"
	}
}

var queueListHeaders = []string{"ID", "Name", "Source", "Status", "Review", "Ingredient", "Attempts"}

var queueListAligns = []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight}

func printRowDetail(out io.Writer, row api.QueueRow) {
	field := func(label, value string) {
		if value == "" {
			return
		}
		fmt.Fprintf(out, "%-22s %s\n", label+":", value)
	}
	field("ID", row.ID)
	field("Raw name", row.RawName)
	field("Cleaned name", row.CleanedName)
	field("Source", row.Source)
	field("Status", row.Status)
	field("Ingredient review", yesNo(row.NeedsIngredientReview))
	field("Unit review", yesNo(row.NeedsUnitReview))
	field("Best fuzzy match", row.BestFuzzyMatch)
	field("Fuzzy score", formatFloat(row.FuzzyScore))
	field("Ingredient", row.ResolvedIngredientID)
	field("Unit", row.ResolvedUnit)
	field("Quantity", formatFloat(row.ResolvedQuantity))
	field("Unit confidence", formatFloat(row.UnitConfidence))
	field("Quantity confidence", formatFloat(row.QuantityConfidence))
	field("Resolved by", row.ResolvedBy)
	field("Processing started", row.ProcessingStartedAt)
	field("Lease expires", row.LeaseExpiresAt)
	field("Attempts", strconv.Itoa(row.AttemptCount))
	field("Last error", row.LastError)
	field("Created", row.CreatedAt)
	field("Updated", row.UpdatedAt)
	field("Resolved", row.ResolvedAt)
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func printRetryResult(out io.Writer, result api.RetryRowsResult) {
	for _, row := range result.Rows {
		switch row.Outcome {
		case api.RetryRowUpdated:
			fmt.Fprintf(out, "Row %s returned to pending\n", row.ID)
		case api.RetryRowNotFound:
			fmt.Fprintf(out, "Row %s not found\n", row.ID)
		case api.RetryRowNotFailed:
			fmt.Fprintf(out, "Row %s is %s, not failed\n", row.ID, row.PriorStatus)
		}
	}
	fmt.Fprintf(out, "Retried %d failed rows\n", result.UpdatedCount)
}
