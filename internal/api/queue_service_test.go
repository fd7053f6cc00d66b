package api

import (
	"context"
	"errors"
	"testing"
	"time"

	"larder/internal/queue"
)

type mockQueueReader struct {
	rows     []*queue.Row
	stats    map[queue.Status]int
	rowErr   error
	statsErr error
}

func (m *mockQueueReader) List(context.Context, queue.ListFilter) ([]*queue.Row, error) {
	return m.rows, m.rowErr
}

func (m *mockQueueReader) Stats(context.Context) (map[queue.Status]int, error) {
	return m.stats, m.statsErr
}

func (m *mockQueueReader) GetByID(_ context.Context, id string) (*queue.Row, error) {
	if m.rowErr != nil {
		return nil, m.rowErr
	}
	for _, row := range m.rows {
		if row.ID == id {
			return row, nil
		}
	}
	return nil, queue.ErrNotFound
}

func (m *mockQueueReader) Health(context.Context) (queue.HealthSummary, error) {
	return queue.HealthSummary{Total: len(m.rows), Pending: len(m.rows)}, m.statsErr
}

func (m *mockQueueReader) CheckHealth(context.Context) (queue.DatabaseHealth, error) {
	return queue.DatabaseHealth{Driver: "sqlite", TableExists: true}, nil
}

func TestQueueService_List(t *testing.T) {
	now := time.Now().UTC()
	qty := 2.0
	reader := &mockQueueReader{
		rows: []*queue.Row{{
			ID:               "r1",
			RawName:          "2 roma tomatoes",
			Source:           queue.SourceScraper,
			Status:           queue.StatusPending,
			ResolvedQuantity: &qty,
			CreatedAt:        now,
			UpdatedAt:        now,
		}},
	}
	svc := NewQueueService(reader)
	got, err := svc.List(context.Background(), queue.ListFilter{})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("unexpected row count: %d", len(got))
	}
	if got[0].RawName != "2 roma tomatoes" || got[0].Status != "pending" || got[0].Source != "scraper" {
		t.Fatalf("unexpected row: %+v", got[0])
	}
	if got[0].CreatedAt == "" || got[0].UpdatedAt == "" || got[0].ResolvedAt != "" {
		t.Fatalf("unexpected timestamps: %+v", got[0])
	}
	if got[0].ResolvedQuantity == nil || *got[0].ResolvedQuantity != 2 {
		t.Fatal("expected quantity to pass through")
	}
}

func TestQueueService_StatsIncludesZeroCounts(t *testing.T) {
	svc := NewQueueService(&mockQueueReader{stats: map[queue.Status]int{queue.StatusPending: 3}})
	got, err := svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats returned error: %v", err)
	}
	if got["pending"] != 3 {
		t.Fatalf("unexpected pending count: %d", got["pending"])
	}
	if _, ok := got["failed"]; !ok {
		t.Fatal("expected zero entry for failed")
	}
}

func TestQueueService_DescribeMissingRow(t *testing.T) {
	svc := NewQueueService(&mockQueueReader{})
	got, err := svc.Describe(context.Background(), "missing")
	if err != nil || got != nil {
		t.Fatalf("expected nil row without error, got %+v %v", got, err)
	}
}

func TestQueueService_PropagatesErrors(t *testing.T) {
	svc := NewQueueService(&mockQueueReader{rowErr: errors.New("boom"), statsErr: errors.New("boom")})
	if _, err := svc.List(context.Background(), queue.ListFilter{}); err == nil {
		t.Fatal("expected list error")
	}
	if _, err := svc.Stats(context.Background()); err == nil {
		t.Fatal("expected stats error")
	}
	if _, err := svc.Describe(context.Background(), "x"); err == nil {
		t.Fatal("expected describe error")
	}
}

func TestQueueService_NilSafe(t *testing.T) {
	var svc *QueueService
	if rows, err := svc.List(context.Background(), queue.ListFilter{}); rows != nil || err != nil {
		t.Fatal("nil service should return nothing")
	}
	if NewQueueService(nil) != nil {
		t.Fatal("expected nil service for nil reader")
	}
}
