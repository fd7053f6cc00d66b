package preflight

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"larder/internal/config"
	"larder/internal/queue"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
	// Optional results are reported but never fail a run.
	Optional bool
}

// Store is the subset of queue.Store the checks use.
type Store interface {
	CheckHealth(ctx context.Context) (queue.DatabaseHealth, error)
	ProbeAtomicClaim(ctx context.Context) error
}

// RunAll executes every applicable check. store may be nil when the caller
// only wants filesystem checks.
func RunAll(ctx context.Context, cfg *config.Config, store Store) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	if strings.TrimSpace(cfg.Worker.CatalogPath) != "" {
		results = append(results, CheckFileReadable("Ingredient catalog", cfg.Worker.CatalogPath))
	}
	if store != nil {
		results = append(results, CheckStore(ctx, store))
		claim := CheckAtomicClaim(ctx, store)
		claim.Optional = cfg.Claim.AllowFallback
		results = append(results, claim)
	}
	return results
}

// Err joins every failed required check into one error, or returns nil.
func Err(results []Result) error {
	var errs []error
	for _, r := range results {
		if r.Passed || r.Optional {
			continue
		}
		errs = append(errs, fmt.Errorf("%s: %s", r.Name, r.Detail))
	}
	return errors.Join(errs...)
}
