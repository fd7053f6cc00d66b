package api

import (
	"context"

	"larder/internal/queue"
)

// QueueActionService captures queue operations needed by per-row retry workflows.
type QueueActionService interface {
	Describe(ctx context.Context, id string) (*QueueRow, error)
	Retry(ctx context.Context, ids ...string) (int64, error)
}

type RetryRowOutcome string

const (
	RetryRowUpdated   RetryRowOutcome = "retried"
	RetryRowNotFound  RetryRowOutcome = "not_found"
	RetryRowNotFailed RetryRowOutcome = "not_failed"
)

type RetryRowResult struct {
	ID          string          `json:"id"`
	Outcome     RetryRowOutcome `json:"outcome"`
	PriorStatus string          `json:"priorStatus,omitempty"`
}

type RetryRowsResult struct {
	UpdatedCount int64            `json:"updatedCount"`
	Rows         []RetryRowResult `json:"rows"`
}

// RetryFailedRowsByID validates IDs and retries only failed rows.
func RetryFailedRowsByID(ctx context.Context, service QueueActionService, ids []string) (RetryRowsResult, error) {
	result := RetryRowsResult{Rows: make([]RetryRowResult, 0, len(ids))}
	for _, id := range ids {
		row, err := service.Describe(ctx, id)
		if err != nil {
			return RetryRowsResult{}, err
		}
		if row == nil {
			result.Rows = append(result.Rows, RetryRowResult{ID: id, Outcome: RetryRowNotFound})
			continue
		}
		status, ok := queue.ParseStatus(row.Status)
		if !ok || status != queue.StatusFailed {
			result.Rows = append(result.Rows, RetryRowResult{ID: id, Outcome: RetryRowNotFailed, PriorStatus: row.Status})
			continue
		}
		updated, err := service.Retry(ctx, id)
		if err != nil {
			return RetryRowsResult{}, err
		}
		if updated > 0 {
			result.UpdatedCount += updated
			result.Rows = append(result.Rows, RetryRowResult{ID: id, Outcome: RetryRowUpdated, PriorStatus: row.Status})
			continue
		}
		result.Rows = append(result.Rows, RetryRowResult{ID: id, Outcome: RetryRowNotFailed, PriorStatus: row.Status})
	}
	return result, nil
}

// StoreActions adapts a QueueService and a store's RetryFailed to QueueActionService.
type StoreActions struct {
	*QueueService
	RetryFunc func(ctx context.Context, ids ...string) (int64, error)
}

// Retry calls RetryFunc.
func (a StoreActions) Retry(ctx context.Context, ids ...string) (int64, error) {
	return a.RetryFunc(ctx, ids...)
}
