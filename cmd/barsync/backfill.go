package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rickgao/barsync/internal/backfill"
)

func newBackfillCmd(a *app) *cobra.Command {
	var (
		target   int64
		maxPages int
	)

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Page history backward until the series holds the target row count",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore(cmd)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			cfg := backfill.Config{
				Series:   a.cfg.Series(),
				Target:   a.cfg.Backfill.TargetRows,
				PageSize: a.cfg.Backfill.PageSize,
				MaxPages: a.cfg.Backfill.MaxPages,
			}
			if cmd.Flags().Changed("target") {
				cfg.Target = target
			}
			if cmd.Flags().Changed("max-pages") {
				cfg.MaxPages = maxPages
			}

			res, err := backfill.New(cfg, a.fetcher(), st, a.logger).Run(cmd.Context())
			if err != nil {
				return fmt.Errorf("backfill %s: %w", cfg.Series, err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "[backfill] series=%s start_count=%d end_count=%d\n", cfg.Series, res.StartCount, res.EndCount)
			fmt.Fprintf(out, "[backfill] pages=%d fetched=%d skipped=%d written=%d cursor=%d stop=%s duration=%s\n",
				res.Pages, res.Fetched, res.Skipped, res.Written, res.Cursor, res.StopReason, res.Duration.Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().Int64Var(&target, "target", 0, "target row count (overrides backfill.target_rows)")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "stop after this many requests, 0 = unbounded")

	return cmd
}
