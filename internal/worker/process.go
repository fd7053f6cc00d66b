package worker

import (
	"context"
	"errors"
	"fmt"

	"larder/internal/logging"
	"larder/internal/matcher"
	"larder/internal/queue"
	"larder/internal/services"
)

const (
	stageIngredient = "ingredient"
	stageUnit       = "unit"
)

// process decides and writes the outcome for one claimed row.
func (p *Pool) process(ctx context.Context, row *queue.Row, resolver string) Outcome {
	logger := logging.WithContext(ctx, p.logger)
	req := matcher.Request{
		RowID:                row.ID,
		RawName:              row.RawName,
		CleanedName:          row.CleanedName,
		Source:               string(row.Source),
		ResolvedIngredientID: row.ResolvedIngredientID,
	}

	var (
		outcome Outcome
		err     error
	)
	switch {
	case row.NeedsIngredientReview:
		req.ResolvedIngredientID = ""
		outcome, err = p.resolveIngredient(ctx, row, req, resolver)
	case row.NeedsUnitReview:
		outcome, err = p.resolveUnit(ctx, row, req, resolver)
	case row.ResolvedIngredientID != "":
		outcome, err = OutcomeResolved, p.writer.MarkResolved(ctx, row.ID, queue.Resolution{ResolvedBy: resolver})
	default:
		outcome, err = p.fail(ctx, row, resolver, services.Wrap(services.ErrValidation, "", "", "nothing to resolve", nil))
	}
	if err != nil {
		if ctx.Err() == nil {
			logging.WarnWithContext(logger, "failed to record outcome", "resolution_write_failed",
				logging.Error(err),
				logging.String("outcome", string(outcome)),
				logging.String(logging.FieldImpact, "row stays leased until the reclaimer requeues it"),
			)
		}
		return OutcomeSkipped
	}
	if outcome == OutcomeFailed {
		logger.Debug("row failed", logging.String("raw_name", row.RawName))
	}
	return outcome
}

func (p *Pool) resolveIngredient(ctx context.Context, row *queue.Row, req matcher.Request, resolver string) (Outcome, error) {
	res, err := p.matcher.Match(ctx, req)
	if err != nil {
		return p.matchFailed(ctx, row, resolver, stageIngredient, err)
	}
	if res.IngredientID == "" {
		return p.fail(ctx, row, resolver, services.Wrap(services.ErrNoMatch, stageIngredient, "match", "matcher returned no ingredient", nil))
	}
	if res.Confidence < p.opts.MinConfidence {
		msg := fmt.Sprintf("confidence %.2f below %.2f for %q", res.Confidence, p.opts.MinConfidence, res.CanonicalName)
		return p.fail(ctx, row, resolver, services.Wrap(services.ErrLowConfidence, stageIngredient, "match", msg, nil))
	}

	if row.NeedsUnitReview && !res.HasUnit() {
		err := p.writer.MarkIngredientResolvedPendingUnit(ctx, row.ID, res.IngredientID, res.CanonicalName, res.Confidence, resolver)
		return OutcomePendingUnit, err
	}

	resolution := queue.Resolution{
		IngredientID:   &res.IngredientID,
		BestFuzzyMatch: nonEmpty(res.CanonicalName),
		FuzzyScore:     &res.Confidence,
		ResolvedBy:     resolver,
	}
	if row.NeedsUnitReview {
		applyMeasure(&resolution, res)
	}
	return OutcomeResolved, p.writer.MarkResolved(ctx, row.ID, resolution)
}

func (p *Pool) resolveUnit(ctx context.Context, row *queue.Row, req matcher.Request, resolver string) (Outcome, error) {
	res, err := p.matcher.Match(ctx, req)
	if err != nil {
		return p.matchFailed(ctx, row, resolver, stageUnit, err)
	}
	if !res.HasUnit() {
		msg := fmt.Sprintf("no unit found in %q", row.RawName)
		return p.fail(ctx, row, resolver, services.Wrap(services.ErrNoMatch, stageUnit, "parse", msg, nil))
	}
	resolution := queue.Resolution{ResolvedBy: resolver}
	if row.ResolvedIngredientID == "" && res.IngredientID != "" {
		resolution.IngredientID = &res.IngredientID
	}
	applyMeasure(&resolution, res)
	return OutcomeResolved, p.writer.MarkResolved(ctx, row.ID, resolution)
}

func (p *Pool) matchFailed(ctx context.Context, row *queue.Row, resolver, stage string, err error) (Outcome, error) {
	if services.Retryable(err) {
		logging.WarnWithContext(logging.WithContext(ctx, p.logger), "matcher unavailable; leaving row for lease expiry", "matcher_transient",
			logging.Error(err),
			logging.String("stage", stage),
			logging.String(logging.FieldImpact, "row is retried after the lease expires"),
		)
		return OutcomeSkipped, nil
	}
	marker := services.ErrMatcher
	if errors.Is(err, matcher.ErrNoMatch) {
		marker = services.ErrNoMatch
	}
	return p.fail(ctx, row, resolver, services.Wrap(marker, stage, "match", "", err))
}

func (p *Pool) fail(ctx context.Context, row *queue.Row, resolver string, cause error) (Outcome, error) {
	return OutcomeFailed, p.writer.MarkFailed(ctx, row.ID, resolver, cause.Error())
}

func applyMeasure(resolution *queue.Resolution, res matcher.Result) {
	resolution.Unit = res.Unit
	resolution.Quantity = res.Quantity
	resolution.UnitConfidence = res.UnitConfidence
	resolution.QuantityConfidence = res.QuantityConfidence
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
