package main

import (
	"errors"
	"time"

	"github.com/quickshadows/scripts/backend"
	"github.com/quickshadows/scripts/benchmark"
	"github.com/quickshadows/scripts/report"
	"github.com/spf13/cobra"
)

func newCleanupCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Abort multipart uploads left behind under the prefix",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.ValidateStorage(); err != nil {
				return err
			}
			cmd.SilenceUsage = true

			janitor, err := newJanitor(cmd, a)
			if err != nil {
				return err
			}
			res, err := janitor.AbortStale(cmd.Context(), a.cfg.Prefix)
			report.DisplayCleanup(cmd.OutOrStdout(), "CLEANUP", res)
			return err
		},
	}
	addJanitorFlags(cmd)
	cmd.Flags().Duration("older-than", 0, "Only abort uploads initiated at least this long ago")
	return cmd
}

func newPurgeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete every object under the prefix",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.ValidateStorage(); err != nil {
				return err
			}
			if benchmark.NormalizePrefix(a.cfg.Prefix) == "" {
				return errors.New("refusing to purge the whole bucket: set a non-empty --prefix")
			}
			cmd.SilenceUsage = true

			janitor, err := newJanitor(cmd, a)
			if err != nil {
				return err
			}
			res, err := janitor.Purge(cmd.Context(), a.cfg.Prefix)
			report.DisplayCleanup(cmd.OutOrStdout(), "PURGE", res)
			return err
		},
	}
	addJanitorFlags(cmd)
	return cmd
}

func addJanitorFlags(cmd *cobra.Command) {
	cmd.Flags().Int("concurrency", 16, "Concurrent abort/delete requests")
	cmd.Flags().Bool("dry-run", false, "List what would be removed without removing it")
	cmd.Flags().Bool("progress-bar", true, "Draw a terminal progress bar")
}

func newJanitor(cmd *cobra.Command, a *app) (*benchmark.Janitor, error) {
	store, err := backend.New(cmd.Context(), storageConfig(a.cfg))
	if err != nil {
		return nil, err
	}

	concurrency, _ := cmd.Flags().GetInt("concurrency")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	var olderThan time.Duration
	if f := cmd.Flags().Lookup("older-than"); f != nil {
		olderThan, _ = cmd.Flags().GetDuration("older-than")
	}

	return benchmark.NewJanitor(store, benchmark.JanitorOptions{
		Bucket:       a.cfg.Bucket,
		Concurrency:  concurrency,
		OlderThan:    olderThan,
		DryRun:       dryRun,
		ShowProgress: a.cfg.ProgressBar,
		Logger:       a.logger,
	}), nil
}
