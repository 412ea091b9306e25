package main

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/4thel00z/clipfind/internal"
	"github.com/spf13/cobra"
)

var defaultBenchQueries = []string{
	"a photo of a dog",
	"sunset over the sea",
	"people at a party",
}

func NewStatsCmd(open libraryOpener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats [query...]",
		Short: "Benchmark search latency",
		Long: `Run each query several times and report per-stage latency
(tokenize, text inference, ranking) over the most recent samples.`,
		RunE: makeStatsRunner(open),
	}

	cmd.Flags().Int("runs", 5, "Repetitions per query")
	cmd.Flags().Bool("sync", false, "Sync before benchmarking")
	return cmd
}

type statsReport struct {
	Operations []internal.Summary `json:"operations"`
	Counters   map[string]float64 `json:"counters"`
}

func makeStatsRunner(open libraryOpener) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		runs, _ := cmd.Flags().GetInt("runs")
		doSync, _ := cmd.Flags().GetBool("sync")

		if runs <= 0 {
			return fmt.Errorf("runs must be positive")
		}
		queries := args
		if len(queries) == 0 {
			queries = defaultBenchQueries
		}

		lib, err := open(cmd)
		if err != nil {
			return err
		}
		defer lib.Close()

		if doSync {
			if _, err := lib.Sync(cmd.Context(), newProgressPrinter(cmd, "Embedding")); err != nil {
				return fmt.Errorf("sync: %w", err)
			}
		}

		for i := 0; i < runs; i++ {
			for _, q := range queries {
				if _, err := lib.SearchText(cmd.Context(), q, 0); err != nil {
					return fmt.Errorf("search %q: %w", q, err)
				}
			}
		}

		report, err := buildStatsReport(lib.Stats())
		if err != nil {
			return err
		}
		if wantJSON(cmd) {
			return printJSON(cmd, report)
		}
		printStatsReport(cmd, report)
		return nil
	}
}

func buildStatsReport(stats *internal.Stats) (statsReport, error) {
	report := statsReport{
		Operations: stats.Summaries(),
		Counters:   make(map[string]float64),
	}

	families, err := stats.Registry().Gather()
	if err != nil {
		return report, fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if c := m.GetCounter(); c != nil {
				report.Counters[strings.TrimPrefix(mf.GetName(), "clipfind_")] += c.GetValue()
			}
		}
	}
	return report, nil
}

func printStatsReport(cmd *cobra.Command, report statsReport) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "OPERATION\tCOUNT\tMEAN ms\tMEDIAN ms\tSTDDEV ms")
	for _, s := range report.Operations {
		fmt.Fprintf(w, "%s\t%d\t%.2f\t%.2f\t%.2f\n", s.Op, s.Count, s.Mean, s.Median, s.StdDev)
	}
	_ = w.Flush()

	if len(report.Counters) == 0 {
		return
	}
	fmt.Fprintln(cmd.OutOrStdout())
	for _, name := range slices.Sorted(maps.Keys(report.Counters)) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %.0f\n", name, report.Counters[name])
	}
}
