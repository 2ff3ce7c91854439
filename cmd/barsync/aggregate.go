package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rickgao/barsync/internal/aggregate"
	"github.com/rickgao/barsync/internal/model"
)

func newAggregateCmd(a *app) *cobra.Command {
	var (
		from    string
		to      string
		fromTS  int64
		toTS    int64
		limit   int
		dryRun  bool
		partial bool
	)

	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Roll stored bars up into a coarser timeframe",
		Example: `  barsync aggregate --from 1m --to 4h --dry-run
  barsync aggregate --to 1d --from-ts 1704067200000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			series := a.cfg.Series()
			if from != "" {
				tf, err := model.ParseTimeframe(from)
				if err != nil {
					return err
				}
				series.Timeframe = tf
			}
			target, err := model.ParseTimeframe(to)
			if err != nil {
				return err
			}

			st, err := a.openStore(cmd)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			res, err := aggregate.NewJob(st, a.logger).Run(cmd.Context(), aggregate.Request{
				Series:       series,
				Target:       target,
				From:         fromTS,
				To:           toTS,
				Limit:        limit,
				DryRun:       dryRun,
				CompleteOnly: !partial,
			})
			if err != nil {
				return fmt.Errorf("aggregate %s to %s: %w", series, target, err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "[agg] series=%s %s_rows=%d -> %s_rows=%d\n",
				series, series.Timeframe, res.SourceRows, target, len(res.Bars))
			printBars(out, res.Bars)
			if dryRun {
				fmt.Fprintln(out, "[agg] dry run, nothing written")
				return nil
			}
			fmt.Fprintf(out, "[agg] upserted=%d latest_ts=%d\n", res.Written, res.LatestTS)
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "source timeframe (default: market.timeframe)")
	cmd.Flags().StringVar(&to, "to", "", "target timeframe, e.g. 4h")
	cmd.Flags().Int64Var(&fromTS, "from-ts", 0, "first source bar ts in ms, inclusive")
	cmd.Flags().Int64Var(&toTS, "to-ts", 0, "last source bar ts in ms, inclusive")
	cmd.Flags().IntVar(&limit, "limit", 0, "max source bars read, 0 = all")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "compute without writing")
	cmd.Flags().BoolVar(&partial, "partial", false, "also emit buckets missing source bars")
	cmd.MarkFlagRequired("to")

	return cmd
}

// printBars writes the first and last three bars.
func printBars(w io.Writer, bars []model.Bar) {
	show := func(b model.Bar) {
		fmt.Fprintf(w, "  ts=%d open=%g high=%g low=%g close=%g volume=%g\n",
			b.TS, b.Open, b.High, b.Low, b.Close, b.Volume)
	}
	if len(bars) <= 6 {
		for _, b := range bars {
			show(b)
		}
		return
	}
	for _, b := range bars[:3] {
		show(b)
	}
	fmt.Fprintf(w, "  ... %d more\n", len(bars)-6)
	for _, b := range bars[len(bars)-3:] {
		show(b)
	}
}
