package api

import (
	"context"
	"errors"

	"larder/internal/queue"
)

// QueueReader abstracts queue persistence interactions needed for API queries.
type QueueReader interface {
	List(ctx context.Context, filter queue.ListFilter) ([]*queue.Row, error)
	Stats(ctx context.Context) (map[queue.Status]int, error)
	GetByID(ctx context.Context, id string) (*queue.Row, error)
	Health(ctx context.Context) (queue.HealthSummary, error)
	CheckHealth(ctx context.Context) (queue.DatabaseHealth, error)
}

// QueueService exposes read-only queue operations returning API DTOs.
type QueueService struct {
	store QueueReader
}

// NewQueueService constructs a QueueService around the provided reader.
func NewQueueService(store QueueReader) *QueueService {
	if store == nil {
		return nil
	}
	return &QueueService{store: store}
}

// List returns queue rows matching filter.
func (s *QueueService) List(ctx context.Context, filter queue.ListFilter) ([]QueueRow, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	rows, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return FromRows(rows), nil
}

// Stats returns queue summary counts keyed by status string.
func (s *QueueService) Stats(ctx context.Context) (map[string]int, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return MergeQueueStats(stats), nil
}

// Describe fetches a single queue row. A missing row returns nil without error.
func (s *QueueService) Describe(ctx context.Context, id string) (*QueueRow, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	row, err := s.store.GetByID(ctx, id)
	if errors.Is(err, queue.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	dto := FromRow(row)
	return &dto, nil
}

// Health returns queue counters and store diagnostics.
func (s *QueueService) Health(ctx context.Context) (HealthResponse, error) {
	if s == nil || s.store == nil {
		return HealthResponse{}, nil
	}
	summary, err := s.store.Health(ctx)
	if err != nil {
		return HealthResponse{}, err
	}
	db, err := s.store.CheckHealth(ctx)
	resp := HealthResponse{Queue: FromHealthSummary(summary), Database: FromDatabaseHealth(db)}
	if err != nil && resp.Database.Error == "" {
		resp.Database.Error = err.Error()
	}
	return resp, nil
}
