package queue

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle of a match queue row.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusResolved   Status = "resolved"
	StatusFailed     Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusResolved,
	StatusFailed,
}

// AllStatuses returns the lifecycle states in display order.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseStatus converts a string into a Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

// Source tags where a row came from.
type Source string

const (
	SourceScraper Source = "scraper"
	SourceRecipe  Source = "recipe"
	// SourceAny is a filter value only; rows never carry it.
	SourceAny Source = "any"
)

// ParseSource converts a string into a Source. An empty value means SourceAny.
func ParseSource(value string) (Source, error) {
	switch Source(strings.ToLower(strings.TrimSpace(value))) {
	case "", SourceAny:
		return SourceAny, nil
	case SourceScraper:
		return SourceScraper, nil
	case SourceRecipe:
		return SourceRecipe, nil
	default:
		return "", fmt.Errorf("%w: unknown source %q", ErrValidation, value)
	}
}

// Concrete reports whether the source can be stored on a row.
func (s Source) Concrete() bool {
	return s == SourceScraper || s == SourceRecipe
}

// Matches reports whether a row with the given source passes this filter.
func (s Source) Matches(row Source) bool {
	return s == SourceAny || s == "" || s == row
}

// ReviewMode selects which half of a row's resolution a claimer is asking for.
type ReviewMode string

const (
	// ReviewIngredient claims rows whose ingredient identity is not explicitly settled.
	ReviewIngredient ReviewMode = "ingredient"
	// ReviewUnit claims rows that still need a unit and quantity.
	ReviewUnit ReviewMode = "unit"
	// ReviewAny claims every pending row.
	ReviewAny ReviewMode = "any"
)

// ParseReviewMode converts a string into a ReviewMode. An empty value means ReviewAny.
func ParseReviewMode(value string) (ReviewMode, error) {
	switch ReviewMode(strings.ToLower(strings.TrimSpace(value))) {
	case "", ReviewAny:
		return ReviewAny, nil
	case ReviewIngredient:
		return ReviewIngredient, nil
	case ReviewUnit:
		return ReviewUnit, nil
	default:
		return "", fmt.Errorf("%w: unknown review mode %q", ErrValidation, value)
	}
}

// Matches is the client-side review filter. The SQL claim applies the same rule.
func (m ReviewMode) Matches(row *Row) bool {
	if row == nil {
		return false
	}
	switch m {
	case ReviewIngredient:
		return row.NeedsIngredientReview
	case ReviewUnit:
		return row.NeedsUnitReview
	default:
		return true
	}
}

// Row is one entry in the ingredient match queue.
type Row struct {
	ID          string
	RawName     string
	CleanedName string
	DedupKey    string
	Source      Source
	Status      Status

	// NeedsIngredientReview reads true when the column is NULL; only an
	// explicit 0 excludes a row from ingredient-mode claims.
	NeedsIngredientReview bool
	NeedsUnitReview       bool

	BestFuzzyMatch string
	FuzzyScore     *float64

	ResolvedIngredientID string
	ResolvedUnit         string
	ResolvedQuantity     *float64
	UnitConfidence       *float64
	QuantityConfidence   *float64
	ResolvedBy           string

	ProcessingStartedAt      *time.Time
	ProcessingLeaseExpiresAt *time.Time
	AttemptCount             int
	LastError                string

	CreatedAt  time.Time
	UpdatedAt  time.Time
	ResolvedAt *time.Time
}

// LeaseActive reports whether the row is processing under an unexpired lease.
func (r *Row) LeaseActive(now time.Time) bool {
	if r == nil || r.Status != StatusProcessing || r.ProcessingLeaseExpiresAt == nil {
		return false
	}
	return r.ProcessingLeaseExpiresAt.After(now)
}

// PendingUnit reports whether the row sits in the resolved-pending-unit state.
func (r *Row) PendingUnit() bool {
	return r != nil &&
		r.Status == StatusPending &&
		!r.NeedsIngredientReview &&
		r.NeedsUnitReview &&
		r.ResolvedIngredientID != ""
}

// NewRow describes a row to insert.
type NewRow struct {
	RawName               string
	CleanedName           string
	DedupKey              string
	Source                Source
	NeedsIngredientReview bool
	NeedsUnitReview       bool
}

const (
	// DefaultClaimLimit is the batch size used when a claim does not set one.
	DefaultClaimLimit = 25
	// DefaultLease is the lease used when a claim does not set one.
	DefaultLease = 180 * time.Second
	// MaxClaimLimit bounds a single claim batch.
	MaxClaimLimit = 1000
)

// ClaimRequest describes one claim call.
type ClaimRequest struct {
	Limit      int
	ResolverID string
	Lease      time.Duration
	Mode       ReviewMode
	Source     Source
	// RequireExclusive rejects claim strategies that cannot guarantee
	// disjoint batches across concurrent callers.
	RequireExclusive bool
}

// Normalize fills defaults for unset fields.
func (r ClaimRequest) Normalize() ClaimRequest {
	if r.Limit <= 0 {
		r.Limit = DefaultClaimLimit
	}
	if r.Limit > MaxClaimLimit {
		r.Limit = MaxClaimLimit
	}
	if r.Lease <= 0 {
		r.Lease = DefaultLease
	}
	if r.Mode == "" {
		r.Mode = ReviewAny
	}
	if r.Source == "" {
		r.Source = SourceAny
	}
	r.ResolverID = strings.TrimSpace(r.ResolverID)
	return r
}

// Resolution carries the outputs written by MarkResolved. Nil pointer fields
// leave the stored value untouched.
type Resolution struct {
	IngredientID       *string
	Unit               *string
	Quantity           *float64
	BestFuzzyMatch     *string
	FuzzyScore         *float64
	UnitConfidence     *float64
	QuantityConfidence *float64
	ResolvedBy         string

	// KeepIngredientReview and KeepUnitReview leave the matching review flag
	// as stored instead of clearing it.
	KeepIngredientReview bool
	KeepUnitReview       bool
}

// RequeueRequest describes one expired-lease sweep.
type RequeueRequest struct {
	Limit        int
	ErrorMessage string
	// MaxAttempts fails rows whose attempt count reaches this value instead of
	// returning them to pending. Zero disables the ceiling.
	MaxAttempts int
}

// RequeueResult reports what a sweep changed.
type RequeueResult struct {
	Requeued  int
	Exhausted int
	IDs       []string
}

// Total returns every row the sweep touched.
func (r RequeueResult) Total() int {
	return r.Requeued + r.Exhausted
}

// ListFilter narrows List results.
type ListFilter struct {
	Statuses []Status
	Source   Source
	Limit    int
}

// DatabaseHealth captures diagnostic information about the queue database.
type DatabaseHealth struct {
	Driver           string
	Location         string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    string
	TableExists      bool
	ColumnsPresent   []string
	MissingColumns   []string
	IntegrityCheck   bool
	TotalRows        int
	Error            string
}

// HealthSummary describes aggregated queue counts per lifecycle state.
type HealthSummary struct {
	Total        int
	Pending      int
	PendingUnit  int
	Processing   int
	Expired      int
	Resolved     int
	Failed       int
	MaxAttempts  int
	OldestLeased *time.Time
}
