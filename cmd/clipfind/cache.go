package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewCacheCmd(open libraryOpener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or reset the embedding cache",
	}

	cmd.AddCommand(newCacheStatusCmd(open), newCacheClearCmd(open))
	return cmd
}

func newCacheStatusCmd(open libraryOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show cache and index state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			lib, err := open(cmd)
			if err != nil {
				return err
			}
			defer lib.Close()

			st := lib.Status(cmd.Context())
			if wantJSON(cmd) {
				return printJSON(cmd, st)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Scope:    %s (%s)\n", st.Scope, st.Root)
			fmt.Fprintf(out, "Backend:  %s\n", st.Backend)
			if st.Model != "" {
				fmt.Fprintf(out, "Model:    %s\n", st.Model)
			}
			fmt.Fprintf(out, "Cached:   %d\n", st.Cached)
			fmt.Fprintf(out, "Indexed:  %d\n", st.Indexed)
			if st.Vocab {
				fmt.Fprintln(out, "Vocab:    ok")
			} else {
				fmt.Fprintln(out, "Vocab:    missing (run 'clipfind vocab fetch')")
			}
			return nil
		},
	}
}

func newCacheClearCmd(open libraryOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Drop every cached embedding and re-embed the library",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			lib, err := open(cmd)
			if err != nil {
				return err
			}
			defer lib.Close()

			res, err := lib.ClearCache(cmd.Context(), newProgressPrinter(cmd, "Re-embedding"))
			if err != nil {
				return fmt.Errorf("clear cache: %w", err)
			}
			return printSyncResult(cmd, res)
		},
	}
}
