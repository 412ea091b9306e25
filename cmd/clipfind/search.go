package main

import (
	"bufio"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/4thel00z/clipfind/internal"
	"github.com/spf13/cobra"
)

func NewSearchCmd(open libraryOpener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search [text]",
		Short: "Search photos by description",
		Long: `Rank the library against a natural-language description.

With --interactive, queries are read line by line from stdin and debounced
as if typed into a search box; only the latest query's results are shown.`,
		RunE: makeSearchRunner(open),
	}

	cmd.Flags().IntP("number", "n", 0, "Maximum results (default from config)")
	cmd.Flags().BoolP("interactive", "i", false, "Read queries from stdin")
	return cmd
}

func makeSearchRunner(open libraryOpener) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("number")
		interactive, _ := cmd.Flags().GetBool("interactive")

		if limit != 0 && !internal.ValidTopK(limit) {
			return fmt.Errorf("invalid result limit %d (max %d)", limit, slices.Max(internal.TopKCeilings))
		}
		if !interactive && len(args) == 0 {
			return fmt.Errorf("%w: provide search text or use --interactive", internal.ErrEmptyQuery)
		}

		lib, err := open(cmd)
		if err != nil {
			return err
		}
		defer lib.Close()

		if interactive {
			return runInteractiveSearch(cmd, lib, limit)
		}

		results, err := lib.SearchText(cmd.Context(), strings.Join(args, " "), limit)
		if err != nil {
			return fmt.Errorf("search: %w", err)
		}
		return printResults(cmd, results)
	}
}

func runInteractiveSearch(cmd *cobra.Command, lib *internal.LibraryService, limit int) error {
	var (
		mu            sync.Mutex
		finalID       string
		lastDelivered string
		eof           bool
		final         = make(chan struct{})
	)

	deliver := func(r internal.QueryResult) {
		mu.Lock()
		defer mu.Unlock()

		printQueryResult(cmd, r)
		lastDelivered = r.RequestID
		if eof && r.RequestID == finalID {
			close(final)
		}
	}

	q := lib.TextQueries(cmd.Context(), limit, deliver)
	defer q.Close()

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for scanner.Scan() {
		id := q.Submit(scanner.Text())
		mu.Lock()
		finalID = id
		mu.Unlock()
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read queries: %w", err)
	}

	mu.Lock()
	eof = true
	settled := finalID == "" || lastDelivered == finalID
	mu.Unlock()
	if settled {
		return nil
	}

	wait := lib.Config().Search.Debounce + lib.Config().Model.Timeout + time.Second
	select {
	case <-final:
	case <-time.After(wait):
		return fmt.Errorf("search: timed out waiting for results")
	case <-cmd.Context().Done():
	}
	return nil
}

func printQueryResult(cmd *cobra.Command, r internal.QueryResult) {
	if wantJSON(cmd) {
		_ = printJSON(cmd, struct {
			internal.QueryResult
			Error string `json:"error,omitempty"`
		}{r, errString(r.Err)})
		return
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "> %s\n", r.Text)
	if r.Err != nil {
		fmt.Fprintf(out, "  error: %v\n", r.Err)
		return
	}
	for _, id := range r.IDs {
		fmt.Fprintf(out, "  %s\n", id)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
