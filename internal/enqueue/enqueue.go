// Package enqueue is the producer side of the match queue. Scrapers and recipe
// importers call it to add raw ingredient lines as pending rows; lines already
// waiting in the queue are not inserted twice.
package enqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"larder/internal/logging"
	"larder/internal/queue"
	"larder/internal/textutil"
)

// Inserter is the store call the enqueuer needs.
type Inserter interface {
	Insert(ctx context.Context, in queue.NewRow) (*queue.Row, bool, error)
}

// Request describes one ingredient line to queue.
type Request struct {
	RawName               string
	CleanedName           string
	Source                queue.Source
	NeedsIngredientReview bool
	NeedsUnitReview       bool
}

// Result reports the outcome for one request in a batch.
type Result struct {
	Row     *queue.Row
	Created bool
	Err     error
}

// Enqueuer inserts pending rows.
type Enqueuer struct {
	store  Inserter
	logger *slog.Logger
}

// New returns an Enqueuer writing to store.
func New(store Inserter, logger *slog.Logger) *Enqueuer {
	return &Enqueuer{store: store, logger: logging.NewComponentLogger(logger, "enqueue")}
}

// DedupKey returns the natural key used to detect a line already waiting in
// the queue.
func DedupKey(source queue.Source, cleaned string) string {
	return string(source) + ":" + textutil.FoldName(cleaned)
}

// Enqueue inserts req as a pending row. When a pending or processing row with
// the same dedup key exists it is returned with created=false.
func (e *Enqueuer) Enqueue(ctx context.Context, req Request) (*queue.Row, bool, error) {
	raw := strings.TrimSpace(req.RawName)
	if raw == "" {
		return nil, false, fmt.Errorf("%w: raw name is required", queue.ErrValidation)
	}
	if !req.Source.Concrete() {
		return nil, false, fmt.Errorf("%w: source must be scraper or recipe, got %q", queue.ErrValidation, req.Source)
	}
	cleaned := textutil.CleanName(req.CleanedName)
	if cleaned == "" {
		cleaned = textutil.CleanName(raw)
	}

	row, created, err := e.store.Insert(ctx, queue.NewRow{
		RawName:               raw,
		CleanedName:           cleaned,
		DedupKey:              DedupKey(req.Source, cleaned),
		Source:                req.Source,
		NeedsIngredientReview: req.NeedsIngredientReview,
		NeedsUnitReview:       req.NeedsUnitReview,
	})
	if err != nil {
		return nil, false, err
	}
	if created {
		e.logger.Debug("queued ingredient line",
			logging.String(logging.FieldRowID, row.ID),
			logging.String("source", string(row.Source)),
			logging.String("cleaned_name", row.CleanedName),
		)
	}
	return row, created, nil
}

// EnqueueBatch queues each request independently. A failure on one line does
// not stop the rest; the joined error lists every failure.
func (e *Enqueuer) EnqueueBatch(ctx context.Context, reqs []Request) ([]Result, error) {
	results := make([]Result, len(reqs))
	var errs []error
	created := 0
	for i, req := range reqs {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		row, isNew, err := e.Enqueue(ctx, req)
		results[i] = Result{Row: row, Created: isNew, Err: err}
		if err != nil {
			errs = append(errs, fmt.Errorf("line %d %q: %w", i+1, req.RawName, err))
			continue
		}
		if isNew {
			created++
		}
	}
	e.logger.Info("enqueue batch complete",
		logging.Int("lines", len(reqs)),
		logging.Int("created", created),
		logging.Int("deduplicated", len(reqs)-created-len(errs)),
		logging.Int("failed", len(errs)),
	)
	return results, errors.Join(errs...)
}
