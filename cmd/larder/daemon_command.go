package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"larder/internal/api"
	"larder/internal/config"
	"larder/internal/daemon"
	"larder/internal/logging"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the lease reclaimer and backfill scheduler in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), ctx)
		},
	}
	cmd.AddCommand(newDaemonStatusCommand(ctx))
	return cmd
}

func runDaemon(parent context.Context, ctx *commandContext) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	runCtx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, closeLog, err := ctx.logger("larder-daemon")
	if err != nil {
		return err
	}
	defer closeLog()
	store, err := ctx.openStore()
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return err
	}

	d, err := daemon.New(cfg, store, logger)
	if err != nil {
		store.Close()
		return err
	}
	defer d.Close()

	if err := d.Start(runCtx); err != nil {
		return err
	}
	<-runCtx.Done()
	logger.Info("shutdown signal received")
	return nil
}

func newDaemonStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether a daemon holds the lock, with live stats when the API is enabled",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if strings.TrimSpace(cfg.Daemon.APIBind) != "" {
				status, err := fetchDaemonStatus(cmd.Context(), cfg.Daemon.APIBind)
				if err == nil {
					if ctx.JSONMode() {
						return writeJSON(cmd, status)
					}
					printDaemonStatus(cmd, status)
					return nil
				}
				if !ctx.JSONMode() {
					fmt.Fprintf(cmd.ErrOrStderr(), "warn: status api unreachable: %v\n", err)
				}
			}

			running, err := lockHeld(cfg)
			if err != nil {
				return err
			}
			status := api.DaemonStatus{Running: running, LockFilePath: cfg.LockPath()}
			if ctx.JSONMode() {
				return writeJSON(cmd, status)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Daemon running: %s (lock %s)\n", yesNo(running), status.LockFilePath)
			return nil
		},
	}
}

// lockHeld probes the daemon lock without keeping it.
func lockHeld(cfg *config.Config) (bool, error) {
	lock := flock.New(cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("probe daemon lock: %w", err)
	}
	if ok {
		_ = lock.Unlock()
		return false, nil
	}
	return true, nil
}

func fetchDaemonStatus(ctx context.Context, bind string) (api.DaemonStatus, error) {
	var status api.DaemonStatus
	host, port, err := net.SplitHostPort(bind)
	if err != nil {
		return status, err
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	reqCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, "http://"+net.JoinHostPort(host, port)+"/api/status", nil)
	if err != nil {
		return status, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return status, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return status, errors.New(resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return status, fmt.Errorf("decode status: %w", err)
	}
	return status, nil
}

func printDaemonStatus(cmd *cobra.Command, status api.DaemonStatus) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	fmt.Fprintln(out, renderSectionHeader("Daemon", colorize))
	runKind := statusError
	if status.Running {
		runKind = statusOK
	}
	fmt.Fprintln(out, renderStatusLine("Running", runKind, fmt.Sprintf("%s (pid %d)", yesNo(status.Running), status.PID), colorize))
	if status.StartedAt != "" {
		fmt.Fprintln(out, renderStatusLine("Started", statusInfo, status.StartedAt, colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Store", statusInfo, status.StoreDriver+" "+status.StoreLocation, colorize))
	if status.LastSweepAt != "" {
		fmt.Fprintln(out, renderStatusLine("Last sweep", statusInfo, status.LastSweepAt, colorize))
	}
	if status.LastSweepError != "" {
		fmt.Fprintln(out, renderStatusLine("Sweep error", statusError, status.LastSweepError, colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Requeued", statusInfo, fmt.Sprint(status.RequeuedTotal), colorize))
	fmt.Fprintln(out, renderStatusLine("Out of attempts", statusInfo, fmt.Sprint(status.ExhaustedTotal), colorize))
	fmt.Fprintln(out, renderStatusLine("Backfilled", statusInfo, fmt.Sprint(status.BackfilledTotal), colorize))
	fmt.Fprintln(out, renderStatusLine("Pending", statusInfo, fmt.Sprint(status.Queue.Pending), colorize))
	fmt.Fprintln(out, renderStatusLine("Processing", statusInfo, fmt.Sprint(status.Queue.Processing), colorize))
}
