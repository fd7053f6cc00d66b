package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"larder/internal/api"
	"larder/internal/backfill"
	"larder/internal/claim"
	"larder/internal/enqueue"
	"larder/internal/queue"
	"larder/internal/textutil"
)

func newQueueEnqueueCommand(ctx *commandContext) *cobra.Command {
	var source string
	var ingredientReview bool
	var unitReview bool
	var fromStdin bool

	cmd := &cobra.Command{
		Use:   "enqueue [raw name...]",
		Short: "Queue ingredient lines for resolution",
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := queue.ParseSource(source)
			if err != nil {
				return err
			}
			if !src.Concrete() {
				return errors.New("--source must be scraper or recipe")
			}
			names := append([]string(nil), args...)
			if fromStdin {
				scanner := bufio.NewScanner(cmd.InOrStdin())
				for scanner.Scan() {
					if line := strings.TrimSpace(scanner.Text()); line != "" {
						names = append(names, line)
					}
				}
				if err := scanner.Err(); err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
			}
			if len(names) == 0 {
				return errors.New("provide at least one raw name or --stdin")
			}

			reqs := make([]enqueue.Request, 0, len(names))
			for _, name := range names {
				reqs = append(reqs, enqueue.Request{
					RawName:               name,
					Source:                src,
					NeedsIngredientReview: ingredientReview,
					NeedsUnitReview:       unitReview,
				})
			}

			logger, closeLog, err := ctx.logger("")
			if err != nil {
				return err
			}
			defer closeLog()
			return ctx.withStore(func(store *queue.Store) error {
				results, batchErr := enqueue.New(store, logger).EnqueueBatch(cmd.Context(), reqs)
				if ctx.JSONMode() {
					rows := make([]api.QueueRow, 0, len(results))
					for _, res := range results {
						if res.Row != nil {
							rows = append(rows, api.FromRow(res.Row))
						}
					}
					if err := writeJSON(cmd, api.QueueListResponse{Rows: rows}); err != nil {
						return err
					}
					return batchErr
				}
				out := cmd.OutOrStdout()
				for i, res := range results {
					switch {
					case res.Err != nil:
						fmt.Fprintf(out, "%-40q error: %v\n", names[i], res.Err)
					case res.Row == nil:
						continue
					default:
						fmt.Fprintf(out, "%-40q %s %s\n", names[i], textutil.Ternary(res.Created, "queued  ", "existing"), res.Row.ID)
					}
				}
				return batchErr
			})
		},
	}

	cmd.Flags().StringVar(&source, "source", string(queue.SourceRecipe), "Row source (scraper or recipe)")
	cmd.Flags().BoolVar(&ingredientReview, "ingredient-review", true, "Mark rows as needing ingredient resolution")
	cmd.Flags().BoolVar(&unitReview, "unit-review", false, "Mark rows as needing unit and quantity resolution")
	cmd.Flags().BoolVar(&fromStdin, "stdin", false, "Read one raw name per line from stdin")
	return cmd
}

func newQueueClaimCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var resolver string
	var leaseSeconds int
	var mode string
	var source string
	var exclusive bool

	cmd := &cobra.Command{
		Use:   "claim",
		Short: "Lease pending rows to a resolver",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			reviewMode, err := queue.ParseReviewMode(mode)
			if err != nil {
				return err
			}
			src, err := queue.ParseSource(source)
			if err != nil {
				return err
			}
			logger, closeLog, err := ctx.logger("")
			if err != nil {
				return err
			}
			defer closeLog()
			req := queue.ClaimRequest{
				Limit:            textutil.Ternary(limit > 0, limit, cfg.Claim.DefaultLimit),
				ResolverID:       textutil.FirstNonEmpty(resolver, cfg.Worker.ResolverID),
				Lease:            textutil.Ternary(leaseSeconds > 0, time.Duration(leaseSeconds)*time.Second, cfg.LeaseDuration()),
				Mode:             reviewMode,
				Source:           src,
				RequireExclusive: exclusive,
			}

			return ctx.withStore(func(store *queue.Store) error {
				opts := claim.Options{AllowFallback: cfg.Claim.AllowFallback}
				if cfg.Claim.InlineBackfill {
					opts.InlineBackfill = backfill.New(store, logger)
				}
				coordinator, err := claim.New(cmd.Context(), store, opts, logger)
				if err != nil {
					return err
				}
				rows, err := coordinator.Claim(cmd.Context(), req)
				if err != nil {
					return err
				}
				dtos := api.FromRows(rows)
				if ctx.JSONMode() {
					return writeJSON(cmd, api.QueueListResponse{Rows: dtos})
				}
				if len(dtos) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No rows available")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Claimed %d rows for %s (%s strategy)\n", len(dtos), req.ResolverID, coordinator.Strategy().Name())
				fmt.Fprint(cmd.OutOrStdout(), renderTable(queueListHeaders, buildQueueListRows(dtos), queueListAligns))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Rows to claim (defaults to claim.default_limit)")
	cmd.Flags().StringVar(&resolver, "resolver", "", "Resolver identity stamped on claimed rows")
	cmd.Flags().IntVar(&leaseSeconds, "lease", 0, "Lease length in seconds (defaults to claim.lease_seconds)")
	cmd.Flags().StringVar(&mode, "mode", string(queue.ReviewAny), "Review mode (ingredient, unit, any)")
	cmd.Flags().StringVar(&source, "source", string(queue.SourceAny), "Source filter (scraper, recipe, any)")
	cmd.Flags().BoolVar(&exclusive, "exclusive", false, "Refuse to claim unless the atomic strategy is active")
	return cmd
}

func newQueueResolveCommand(ctx *commandContext) *cobra.Command {
	var (
		ingredientID       string
		unit               string
		quantity           float64
		unitConfidence     float64
		quantityConfidence float64
		fuzzyMatch         string
		fuzzyScore         float64
		resolver           string
		keepIngredient     bool
		keepUnit           bool
	)

	cmd := &cobra.Command{
		Use:   "resolve <id>",
		Short: "Mark a row resolved; only the flags given are written",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			res := queue.Resolution{
				ResolvedBy:           resolver,
				KeepIngredientReview: keepIngredient,
				KeepUnitReview:       keepUnit,
			}
			if flags.Changed("ingredient") {
				res.IngredientID = &ingredientID
			}
			if flags.Changed("unit") {
				res.Unit = &unit
			}
			if flags.Changed("quantity") {
				res.Quantity = &quantity
			}
			if flags.Changed("unit-confidence") {
				res.UnitConfidence = &unitConfidence
			}
			if flags.Changed("quantity-confidence") {
				res.QuantityConfidence = &quantityConfidence
			}
			if flags.Changed("fuzzy-match") {
				res.BestFuzzyMatch = &fuzzyMatch
			}
			if flags.Changed("fuzzy-score") {
				res.FuzzyScore = &fuzzyScore
			}
			return ctx.withStore(func(store *queue.Store) error {
				if err := store.MarkResolved(cmd.Context(), args[0], res); err != nil {
					return err
				}
				return reportRow(cmd, ctx, store, args[0], "resolved")
			})
		},
	}

	cmd.Flags().StringVar(&ingredientID, "ingredient", "", "Resolved ingredient id")
	cmd.Flags().StringVar(&unit, "unit", "", "Resolved unit")
	cmd.Flags().Float64Var(&quantity, "quantity", 0, "Resolved quantity")
	cmd.Flags().Float64Var(&unitConfidence, "unit-confidence", 0, "Unit confidence in [0,1]")
	cmd.Flags().Float64Var(&quantityConfidence, "quantity-confidence", 0, "Quantity confidence in [0,1]")
	cmd.Flags().StringVar(&fuzzyMatch, "fuzzy-match", "", "Best fuzzy candidate name")
	cmd.Flags().Float64Var(&fuzzyScore, "fuzzy-score", 0, "Best fuzzy candidate score")
	cmd.Flags().StringVar(&resolver, "resolver", "", "Resolver identity recorded on the row")
	cmd.Flags().BoolVar(&keepIngredient, "keep-ingredient-review", false, "Leave needs_ingredient_review set")
	cmd.Flags().BoolVar(&keepUnit, "keep-unit-review", false, "Leave needs_unit_review set")
	return cmd
}

func newQueueResolveIngredientCommand(ctx *commandContext) *cobra.Command {
	var canonicalName string
	var confidence float64
	var resolver string

	cmd := &cobra.Command{
		Use:   "resolve-ingredient <id> <ingredient-id>",
		Short: "Record the ingredient and return the row to pending for unit resolution",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := textutil.FirstNonEmpty(canonicalName, args[1])
			return ctx.withStore(func(store *queue.Store) error {
				if err := store.MarkIngredientResolvedPendingUnit(cmd.Context(), args[0], args[1], name, confidence, resolver); err != nil {
					return err
				}
				return reportRow(cmd, ctx, store, args[0], "waiting for unit resolution")
			})
		},
	}

	cmd.Flags().StringVar(&canonicalName, "name", "", "Canonical ingredient name (defaults to the id)")
	cmd.Flags().Float64Var(&confidence, "confidence", 1, "Match confidence in [0,1]")
	cmd.Flags().StringVar(&resolver, "resolver", "", "Resolver identity recorded on the row")
	return cmd
}

func newQueueFailCommand(ctx *commandContext) *cobra.Command {
	var message string
	var resolver string

	cmd := &cobra.Command{
		Use:   "fail <id>",
		Short: "Mark a row failed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				if err := store.MarkFailed(cmd.Context(), args[0], resolver, message); err != nil {
					return err
				}
				return reportRow(cmd, ctx, store, args[0], "failed")
			})
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "Error recorded in last_error")
	cmd.Flags().StringVar(&resolver, "resolver", "", "Resolver identity recorded on the row")
	return cmd
}

func reportRow(cmd *cobra.Command, ctx *commandContext, store *queue.Store, id, verb string) error {
	row, err := store.GetByID(cmd.Context(), id)
	if err != nil {
		return err
	}
	dto := api.FromRow(row)
	if ctx.JSONMode() {
		return writeJSON(cmd, api.QueueRowResponse{Row: dto})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Row %s %s\n", id, verb)
	return nil
}
