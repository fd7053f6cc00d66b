package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"larder/internal/api"
	"larder/internal/backfill"
	"larder/internal/config"
	"larder/internal/preflight"
	"larder/internal/queue"
	"larder/internal/textutil"
)

func newQueueRequeueCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var message string
	var maxAttempts int

	cmd := &cobra.Command{
		Use:   "requeue",
		Short: "Return rows with expired leases to pending",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			req := queue.RequeueRequest{
				Limit:        textutil.Ternary(limit > 0, limit, cfg.Reclaim.BatchLimit),
				ErrorMessage: textutil.FirstNonEmpty(message, cfg.Reclaim.ErrorMessage),
				MaxAttempts:  textutil.Ternary(cmd.Flags().Changed("max-attempts"), maxAttempts, cfg.Reclaim.MaxAttempts),
			}
			return ctx.withStore(func(store *queue.Store) error {
				result, err := store.RequeueExpired(cmd.Context(), req)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, api.FromRequeueResult(result))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d rows, failed %d rows out of attempts\n", result.Requeued, result.Exhausted)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum rows to sweep (defaults to reclaim.batch_limit)")
	cmd.Flags().StringVarP(&message, "message", "m", "", "last_error text for requeued rows")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "Fail rows at this attempt count (0 disables)")
	return cmd
}

func newQueueBackfillCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "backfill",
		Short: "Set needs_ingredient_review on legacy recipe rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, closeLog, err := ctx.logger("")
			if err != nil {
				return err
			}
			defer closeLog()
			return ctx.withStore(func(store *queue.Store) error {
				n, err := backfill.New(store, logger).Run(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]int64{"updated": n})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Backfilled %d rows\n", n)
				return nil
			})
		},
	}
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [id...]",
		Short: "Return failed rows to pending (all failed rows when no id is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				if len(args) == 0 {
					n, err := store.RetryFailed(cmd.Context())
					if err != nil {
						return err
					}
					if ctx.JSONMode() {
						return writeJSON(cmd, api.RetryRowsResult{UpdatedCount: n, Rows: []api.RetryRowResult{}})
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Retried %d failed rows\n", n)
					return nil
				}
				actions := api.StoreActions{QueueService: api.NewQueueService(store), RetryFunc: store.RetryFailed}
				result, err := api.RetryFailedRowsByID(cmd.Context(), actions, args)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, result)
				}
				printRetryResult(cmd.OutOrStdout(), result)
				return nil
			})
		},
	}
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check store schema, claim support and queue counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *queue.Store) error {
				resp, err := api.NewQueueService(store).Health(cmd.Context())
				if err != nil {
					return err
				}
				results := preflight.RunAll(cmd.Context(), cfg, store)
				resp.Checks = api.FromPreflight(results)
				if ctx.JSONMode() {
					if err := writeJSON(cmd, resp); err != nil {
						return err
					}
					return preflight.Err(results)
				}
				printHealth(cmd, resp)
				return preflight.Err(results)
			})
		},
	}
}

func printHealth(cmd *cobra.Command, resp api.HealthResponse) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	fmt.Fprintln(out, renderSectionHeader("Store", colorize))
	db := resp.Database
	fmt.Fprintln(out, renderStatusLine("Driver", statusInfo, db.Driver+" "+db.Location, colorize))
	fmt.Fprintln(out, renderStatusLine("Readable", textutil.Ternary(db.DatabaseReadable, statusOK, statusError), yesNo(db.DatabaseReadable), colorize))
	fmt.Fprintln(out, renderStatusLine("Schema version", statusInfo, textutil.FirstNonEmpty(db.SchemaVersion, "unknown"), colorize))
	fmt.Fprintln(out, renderStatusLine("Queue table", textutil.Ternary(db.TableExists, statusOK, statusError), yesNo(db.TableExists), colorize))
	if len(db.MissingColumns) > 0 {
		fmt.Fprintln(out, renderStatusLine("Missing columns", statusError, fmt.Sprint(db.MissingColumns), colorize))
	}
	if db.Driver == config.DriverSQLite {
		fmt.Fprintln(out, renderStatusLine("Integrity check", textutil.Ternary(db.IntegrityCheck, statusOK, statusError), yesNo(db.IntegrityCheck), colorize))
	}
	if db.Error != "" {
		fmt.Fprintln(out, renderStatusLine("Error", statusError, db.Error, colorize))
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, renderSectionHeader("Queue", colorize))
	q := resp.Queue
	fmt.Fprintln(out, renderStatusLine("Total", statusInfo, fmt.Sprint(q.Total), colorize))
	fmt.Fprintln(out, renderStatusLine("Pending", statusInfo, fmt.Sprintf("%d (%d awaiting unit)", q.Pending, q.PendingUnit), colorize))
	fmt.Fprintln(out, renderStatusLine("Processing", statusInfo, fmt.Sprint(q.Processing), colorize))
	fmt.Fprintln(out, renderStatusLine("Expired leases", textutil.Ternary(q.Expired > 0, statusWarn, statusOK), fmt.Sprint(q.Expired), colorize))
	fmt.Fprintln(out, renderStatusLine("Resolved", statusInfo, fmt.Sprint(q.Resolved), colorize))
	fmt.Fprintln(out, renderStatusLine("Failed", textutil.Ternary(q.Failed > 0, statusWarn, statusOK), fmt.Sprint(q.Failed), colorize))

	fmt.Fprintln(out)
	fmt.Fprintln(out, renderSectionHeader("Checks", colorize))
	for _, check := range resp.Checks {
		kind := statusOK
		if !check.Passed {
			kind = textutil.Ternary(check.Optional, statusWarn, statusError)
		}
		fmt.Fprintln(out, renderStatusLine(check.Name, kind, check.Detail, colorize))
	}
}
