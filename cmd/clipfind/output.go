package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/4thel00z/clipfind/internal"
	"github.com/spf13/cobra"
)

func wantJSON(cmd *cobra.Command) bool {
	asJSON, _ := cmd.Flags().GetBool("json")
	return asJSON
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printResults(cmd *cobra.Command, results []internal.ScoredPhoto) error {
	if wantJSON(cmd) {
		return printJSON(cmd, results)
	}

	if len(results) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No matches.")
		return nil
	}
	for _, r := range results {
		fmt.Fprintf(cmd.OutOrStdout(), "%.4f  %s\n", r.Score, r.ID)
	}
	return nil
}

// progressPrinter renders pipeline progress as a single updating line.
type progressPrinter struct {
	w     io.Writer
	label string
	mu    sync.Mutex
	shown bool
}

func newProgressPrinter(cmd *cobra.Command, label string) internal.Progress {
	if wantJSON(cmd) {
		return internal.ProgressFuncs{}
	}
	return &progressPrinter{w: cmd.ErrOrStderr(), label: label}
}

func (p *progressPrinter) Update(fraction float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shown = true
	fmt.Fprintf(p.w, "\r%s %3.0f%%", p.label, fraction*100)
}

func (p *progressPrinter) Done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shown {
		fmt.Fprintln(p.w)
	}
}

func printSyncResult(cmd *cobra.Command, res internal.SyncResult) error {
	if wantJSON(cmd) {
		return printJSON(cmd, res)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d photos (%d embedded, %d failed, %d evicted) in %s\n",
		res.Indexed, res.Embedded, res.Failed, res.Evicted, res.Elapsed.Round(1e6))
	return nil
}
