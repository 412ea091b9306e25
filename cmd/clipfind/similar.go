package main

import (
	"fmt"
	"time"

	"github.com/4thel00z/clipfind/internal"
	"github.com/spf13/cobra"
)

func NewSimilarCmd(open libraryOpener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "similar <image> [frame...]",
		Short: "Find photos that look like an image",
		Long: `Rank the library against an example image.

Given several images, they are replayed as a live frame feed: a frame that
arrives while the previous one is still being searched is dropped.`,
		Args: cobra.MinimumNArgs(1),
		RunE: makeSimilarRunner(open),
	}

	cmd.Flags().IntP("number", "n", 0, "Maximum results (default from config)")
	cmd.Flags().Duration("interval", 100*time.Millisecond, "Delay between replayed frames")
	return cmd
}

func makeSimilarRunner(open libraryOpener) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("number")
		interval, _ := cmd.Flags().GetDuration("interval")

		if limit != 0 && !internal.ValidTopK(limit) {
			return fmt.Errorf("invalid result limit %d", limit)
		}

		lib, err := open(cmd)
		if err != nil {
			return err
		}
		defer lib.Close()

		if len(args) == 1 {
			img, err := internal.DecodeImageFile(args[0])
			if err != nil {
				return err
			}
			results, err := lib.SearchImage(cmd.Context(), img, limit)
			if err != nil {
				return fmt.Errorf("similar: %w", err)
			}
			return printResults(cmd, results)
		}

		return replayFrames(cmd, lib, args, limit, interval)
	}
}

func replayFrames(cmd *cobra.Command, lib *internal.LibraryService, frames []string, limit int, interval time.Duration) error {
	results := make(chan internal.QueryResult, len(frames))
	q := lib.ImageQueries(cmd.Context(), limit, func(r internal.QueryResult) {
		results <- r
	})

	dropped := 0
	for i, path := range frames {
		img, err := internal.DecodeImageFile(path)
		if err != nil {
			q.Wait()
			return err
		}
		if !q.Submit(img) {
			dropped++
		}
		if i < len(frames)-1 {
			select {
			case <-time.After(interval):
			case <-cmd.Context().Done():
				q.Reset()
				q.Wait()
				return cmd.Context().Err()
			}
		}
	}
	q.Wait()
	close(results)

	for r := range results {
		printQueryResult(cmd, r)
	}
	if !wantJSON(cmd) {
		fmt.Fprintf(cmd.OutOrStdout(), "%d of %d frames searched, %d dropped\n",
			len(frames)-dropped, len(frames), dropped)
	}
	return nil
}
