package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewSyncCmd(open libraryOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Bring the index up to date with the library",
		Long:  `Embed new photos, evict deleted ones and rebuild the search snapshot.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			lib, err := open(cmd)
			if err != nil {
				return err
			}
			defer lib.Close()

			res, err := lib.Sync(cmd.Context(), newProgressPrinter(cmd, "Embedding"))
			if err != nil {
				return fmt.Errorf("sync: %w", err)
			}
			return printSyncResult(cmd, res)
		},
	}
}
