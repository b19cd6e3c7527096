package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/devilmonastery/fedmet/internal/pkg/lockfile"
	"github.com/devilmonastery/fedmet/internal/pkg/metrics"
)

func newRefreshCommand(configPath *string) *cobra.Command {
	var (
		federation string
		force      bool
	)

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Fetch and reconcile federation metadata",
		Long:  "Fetches every federation's metadata document, skips unchanged ones, and reconciles changed documents against the entity catalog. Designed to run from cron; a lock file prevents overlapping runs.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRefresh(*configPath, federation, force)
		},
	}

	cmd.Flags().StringVar(&federation, "federation", "", "Refresh only the federation with this slug")
	cmd.Flags().BoolVar(&force, "force", false, "Process documents even when the fingerprint is unchanged")

	return cmd
}

func runRefresh(configPath, federation string, force bool) error {
	rt, err := openRuntime(configPath)
	if err != nil {
		return err
	}
	defer rt.Close()

	lock, err := lockfile.Acquire(rt.cfg.LockFile)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			rt.log.Error("failed to release lock file", slog.String("error", err.Error()))
		}
	}()

	report, err := rt.refresh.Refresh(context.Background(), federation, force)
	if err != nil {
		return err
	}

	// the process exits before any scrape could happen, so the run's
	// counters go out through the pushgateway
	if err := metrics.Push(rt.cfg.Metrics.PushGateway, rt.cfg.Metrics.Job); err != nil {
		rt.log.Error("failed to push metrics", slog.String("error", err.Error()))
	}

	fmt.Printf("Refreshed: %d  Unchanged: %d  Failed: %d\n",
		len(report.Refreshed), len(report.Unchanged), len(report.Failures))
	for _, slug := range report.Refreshed {
		if outcome := report.Outcomes[slug]; outcome != nil {
			fmt.Printf("  %s: %d updated, %d removed, %d orphaned\n",
				slug, outcome.Updated, outcome.Removed, len(outcome.Orphans))
		}
	}
	for slug, msg := range report.Failures {
		fmt.Printf("  %s: %s\n", slug, msg)
	}

	if report.Failed() {
		return fmt.Errorf("%d federation(s) failed to refresh", len(report.Failures))
	}
	return nil
}
