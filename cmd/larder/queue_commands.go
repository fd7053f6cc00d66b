package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"larder/internal/api"
	"larder/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the ingredient match queue",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))
	queueCmd.AddCommand(newQueueLeaseCommand(ctx))
	queueCmd.AddCommand(newQueueEnqueueCommand(ctx))
	queueCmd.AddCommand(newQueueClaimCommand(ctx))
	queueCmd.AddCommand(newQueueResolveCommand(ctx))
	queueCmd.AddCommand(newQueueResolveIngredientCommand(ctx))
	queueCmd.AddCommand(newQueueFailCommand(ctx))
	queueCmd.AddCommand(newQueueRequeueCommand(ctx))
	queueCmd.AddCommand(newQueueBackfillCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueHealthCommand(ctx))

	return queueCmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue status summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				counts, err := api.NewQueueService(store).Stats(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, api.QueueStatsResponse{Counts: counts})
				}
				rows := buildQueueStatusRows(counts)
				if len(rows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var source string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queue rows, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := queue.ListFilter{Limit: limit}
			for _, value := range statuses {
				status, ok := queue.ParseStatus(value)
				if !ok {
					return fmt.Errorf("unknown status %q", value)
				}
				filter.Statuses = append(filter.Statuses, status)
			}
			parsed, err := queue.ParseSource(source)
			if err != nil {
				return err
			}
			filter.Source = parsed

			return ctx.withStore(func(store *queue.Store) error {
				rows, err := api.NewQueueService(store).List(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, api.QueueListResponse{Rows: rows})
				}
				if len(rows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(queueListHeaders, buildQueueListRows(rows), queueListAligns))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (repeatable)")
	cmd.Flags().StringVar(&source, "source", "", "Filter by source (scraper, recipe)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum rows to show (0 for all)")
	return cmd
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show every field of a queue row",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				row, err := api.NewQueueService(store).Describe(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if row == nil {
					return fmt.Errorf("queue row %s not found", args[0])
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, api.QueueRowResponse{Row: *row})
				}
				printRowDetail(cmd.OutOrStdout(), *row)
				return nil
			})
		},
	}
}

func newQueueLeaseCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "lease",
		Short: "Show processing rows with their lease holder and expiry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				rows, err := store.List(cmd.Context(), queue.ListFilter{Statuses: []queue.Status{queue.StatusProcessing}})
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, api.QueueListResponse{Rows: api.FromRows(rows)})
				}
				if len(rows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No rows are leased")
					return nil
				}
				now := time.Now()
				table := make([][]string, 0, len(rows))
				for _, row := range rows {
					expires := "-"
					remaining := "expired"
					if row.ProcessingLeaseExpiresAt != nil {
						expires = row.ProcessingLeaseExpiresAt.Local().Format(time.DateTime)
						if row.LeaseActive(now) {
							remaining = row.ProcessingLeaseExpiresAt.Sub(now).Round(time.Second).String()
						}
					}
					table = append(table, []string{row.ID, row.ResolvedBy, expires, remaining, fmt.Sprintf("%d", row.AttemptCount)})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Resolver", "Expires", "Remaining", "Attempts"},
					table,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight},
				))
				return nil
			})
		},
	}
}
