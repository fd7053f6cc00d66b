package main

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"larder/internal/backfill"
	"larder/internal/claim"
	"larder/internal/matcher"
	"larder/internal/preflight"
	"larder/internal/queue"
	"larder/internal/textutil"
	"larder/internal/worker"
)

func newWorkerCommand(ctx *commandContext) *cobra.Command {
	var catalogPath string
	var concurrency int
	var mode string
	var source string
	var once bool

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the worker pool against the ingredient catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			path := textutil.FirstNonEmpty(catalogPath, cfg.Worker.CatalogPath)
			if path == "" {
				return errors.New("no catalog configured; set worker.catalog_path or pass --catalog")
			}
			catalog, err := matcher.LoadCatalog(path)
			if err != nil {
				return err
			}

			opts, err := worker.OptionsFromConfig(cfg)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("concurrency") {
				opts.Concurrency = concurrency
			}
			if flags.Changed("mode") {
				if opts.Mode, err = queue.ParseReviewMode(mode); err != nil {
					return err
				}
			}
			if flags.Changed("source") {
				if opts.Source, err = queue.ParseSource(source); err != nil {
					return err
				}
			}

			logger, closeLog, err := ctx.logger("larder-worker")
			if err != nil {
				return err
			}
			defer closeLog()

			return ctx.withStore(func(store *queue.Store) error {
				if err := preflight.Err(preflight.RunAll(runCtx, cfg, store)); err != nil {
					return fmt.Errorf("preflight: %w", err)
				}
				claimOpts := claim.Options{AllowFallback: cfg.Claim.AllowFallback}
				if cfg.Claim.InlineBackfill {
					claimOpts.InlineBackfill = backfill.New(store, logger)
				}
				coordinator, err := claim.New(runCtx, store, claimOpts, logger)
				if err != nil {
					return err
				}
				pool, err := worker.New(coordinator, store, catalog, opts, logger)
				if err != nil {
					return err
				}
				if !once {
					return pool.Run(runCtx)
				}

				result, err := pool.ProcessBatch(runCtx, pool.ResolverID(1))
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, result)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Batch %s claimed %d rows\n", result.CorrelationID, result.Claimed)
				for _, outcome := range []worker.Outcome{worker.OutcomeResolved, worker.OutcomePendingUnit, worker.OutcomeFailed, worker.OutcomeSkipped} {
					fmt.Fprintf(out, "  %-12s %d\n", outcome, result.Outcomes[outcome])
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&catalogPath, "catalog", "", "Catalog TOML file (defaults to worker.catalog_path)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Parallel claim loops")
	cmd.Flags().StringVar(&mode, "mode", "", "Review mode (ingredient, unit, any)")
	cmd.Flags().StringVar(&source, "source", "", "Source filter (scraper, recipe, any)")
	cmd.Flags().BoolVar(&once, "once", false, "Process a single batch and exit")
	return cmd
}
