// Package matcher defines the contract between workers and whatever resolves
// a raw ingredient line to a catalog entry, plus Catalog, an exact-lookup
// reference implementation backed by a TOML file.
package matcher

import (
	"context"
	"errors"
)

// ErrNoMatch is returned when a matcher has no candidate for a line.
var ErrNoMatch = errors.New("no matching ingredient")

// Request is one line handed to a matcher.
type Request struct {
	RowID       string
	RawName     string
	CleanedName string
	Source      string
	// ResolvedIngredientID is set when the ingredient stage already ran and
	// only the unit is outstanding.
	ResolvedIngredientID string
}

// Result is a matcher's answer. Nil pointers mean the matcher produced no
// value for that field.
type Result struct {
	IngredientID       string
	CanonicalName      string
	Confidence         float64
	Unit               *string
	Quantity           *float64
	UnitConfidence     *float64
	QuantityConfidence *float64
}

// HasUnit reports whether the result carries a unit.
func (r Result) HasUnit() bool {
	return r.Unit != nil && *r.Unit != ""
}

// Matcher resolves one line.
type Matcher interface {
	Match(ctx context.Context, req Request) (Result, error)
}

// Func adapts a function to Matcher.
type Func func(ctx context.Context, req Request) (Result, error)

// Match calls f.
func (f Func) Match(ctx context.Context, req Request) (Result, error) {
	return f(ctx, req)
}
