package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rickgao/barsync/internal/gaps"
	"github.com/rickgao/barsync/internal/model"
)

// exitIrregular is the status of a scan that found holes or anomalies.
const exitIrregular = 2

func newGapsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gaps",
		Short: "Detect and repair irregular spacing in the stored series",
	}
	cmd.AddCommand(newGapsCheckCmd(a), newGapsFillCmd(a))
	return cmd
}

func newGapsCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Report holes and anomalies; exits 2 when any exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore(cmd)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			series := a.cfg.Series()
			report, err := gaps.Scan(cmd.Context(), st, series)
			if err != nil {
				return fmt.Errorf("scan %s: %w", series, err)
			}

			printReport(cmd.OutOrStdout(), series, report, a.cfg.Gaps.ReportLimit)
			return irregular(report)
		},
	}
}

func newGapsFillCmd(a *app) *cobra.Command {
	var verify bool

	cmd := &cobra.Command{
		Use:   "fill",
		Short: "Fetch history for each hole and upsert it",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore(cmd)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			series := a.cfg.Series()

			report, err := gaps.Scan(ctx, st, series)
			if err != nil {
				return fmt.Errorf("scan %s: %w", series, err)
			}
			fmt.Fprintf(out, "[fill] series=%s holes=%d missing=%d\n", series, len(report.Holes), report.Missing())

			filler := gaps.NewFiller(gaps.FillConfig{
				Series:    series,
				MaxHoles:  a.cfg.Gaps.MaxHoles,
				MaxRounds: a.cfg.Gaps.MaxRounds,
				PageSize:  a.cfg.Gaps.PageSize,
			}, a.fetcher(), st, a.logger)

			res, err := filler.Fill(ctx, report.Holes)
			for i, hr := range res.Holes {
				fmt.Fprintf(out, "  %02d. prev=%d next=%d missing=%d rounds=%d written=%d skipped=%d stop=%s\n",
					i+1, hr.Hole.PrevTS, hr.Hole.NextTS, hr.Hole.Missing, hr.Rounds, hr.Written, hr.Skipped, hr.StopReason)
			}
			if err != nil {
				return fmt.Errorf("fill %s: %w", series, err)
			}
			if res.Skipped > 0 {
				fmt.Fprintf(out, "[fill] %d holes skipped; run again to continue\n", res.Skipped)
			}
			fmt.Fprintf(out, "[fill] written=%d\n", res.Written)

			if !verify {
				fmt.Fprintln(out, "[fill] done; run gaps check to verify")
				return nil
			}

			after, err := gaps.Scan(ctx, st, series)
			if err != nil {
				return fmt.Errorf("verify %s: %w", series, err)
			}
			printReport(out, series, after, a.cfg.Gaps.ReportLimit)
			return irregular(after)
		},
	}

	cmd.Flags().BoolVar(&verify, "verify", false, "rescan after filling and exit 2 if anything remains")

	return cmd
}

// printReport writes a summary line and up to limit findings, holes first.
func printReport(w io.Writer, series model.Series, r gaps.Report, limit int) {
	fmt.Fprintf(w, "[gaps] series=%s rows=%d holes=%d anomalies=%d missing=%d step_ms=%d\n",
		series, r.Rows, len(r.Holes), len(r.Anomalies), r.Missing(), r.Step)

	if r.Rows < 2 {
		fmt.Fprintln(w, "[gaps] not enough rows to compare")
		return
	}

	n := 0
	for _, h := range r.Holes {
		if limit > 0 && n == limit {
			return
		}
		n++
		fmt.Fprintf(w, "  %02d. MISSING prev=%d next=%d diff=%d missing_bars=%d\n", n, h.PrevTS, h.NextTS, h.Diff, h.Missing)
	}
	for _, an := range r.Anomalies {
		if limit > 0 && n == limit {
			return
		}
		n++
		fmt.Fprintf(w, "  %02d. ANOMALY prev=%d next=%d diff=%d kind=%s\n", n, an.PrevTS, an.NextTS, an.Diff, an.Kind)
	}
}

func irregular(r gaps.Report) error {
	if r.Clean() {
		return nil
	}
	return &exitError{
		code: exitIrregular,
		msg:  fmt.Sprintf("%d holes, %d anomalies", len(r.Holes), len(r.Anomalies)),
	}
}
