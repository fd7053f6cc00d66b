package worker

import (
	"fmt"
	"time"

	"larder/internal/config"
	"larder/internal/queue"
)

// Options configures a Pool.
type Options struct {
	Concurrency        int
	BatchSize          int
	Lease              time.Duration
	Mode               queue.ReviewMode
	Source             queue.Source
	ResolverID         string
	MinConfidence      float64
	PollInterval       time.Duration
	ErrorRetryInterval time.Duration
}

// OptionsFromConfig maps the [worker] and [claim] sections onto Options.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	mode, err := queue.ParseReviewMode(cfg.Worker.ReviewMode)
	if err != nil {
		return Options{}, fmt.Errorf("worker review mode: %w", err)
	}
	source, err := queue.ParseSource(cfg.Worker.Source)
	if err != nil {
		return Options{}, fmt.Errorf("worker source: %w", err)
	}
	return Options{
		Concurrency:        cfg.Worker.Concurrency,
		BatchSize:          cfg.Worker.BatchSize,
		Lease:              cfg.LeaseDuration(),
		Mode:               mode,
		Source:             source,
		ResolverID:         cfg.Worker.ResolverID,
		MinConfidence:      cfg.Worker.MinConfidence,
		PollInterval:       time.Duration(cfg.Worker.PollIntervalSeconds) * time.Second,
		ErrorRetryInterval: time.Duration(cfg.Worker.ErrorRetrySeconds) * time.Second,
	}, nil
}

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.BatchSize <= 0 {
		o.BatchSize = queue.DefaultClaimLimit
	}
	if o.Lease <= 0 {
		o.Lease = queue.DefaultLease
	}
	if o.Mode == "" {
		o.Mode = queue.ReviewAny
	}
	if o.Source == "" {
		o.Source = queue.SourceAny
	}
	if o.ResolverID == "" {
		o.ResolverID = "worker"
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 5 * time.Second
	}
	if o.ErrorRetryInterval <= 0 {
		o.ErrorRetryInterval = 10 * time.Second
	}
	return o
}
