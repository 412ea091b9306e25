package main

import (
	"fmt"

	"github.com/4thel00z/clipfind/internal"
	"github.com/spf13/cobra"
)

func NewVocabCmd(resolver *internal.ScopeResolver) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vocab",
		Short: "Manage the tokenizer vocabulary",
	}

	cmd.AddCommand(newVocabFetchCmd(resolver), newVocabInfoCmd(resolver))
	return cmd
}

func newVocabFetchCmd(resolver *internal.ScopeResolver) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download the BPE merges file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			url, _ := cmd.Flags().GetString("url")

			scope, cfg, err := loadScope(cmd, resolver)
			if err != nil {
				return err
			}
			if url == "" {
				url = cfg.Tokenizer.VocabURL
			}

			dl := internal.NewDownloader(scope.DataPath)
			path, err := dl.EnsureVocab(cmd.Context(), url, cfg.Tokenizer.VocabFile, func(written, total int64) {
				if total > 0 && !wantJSON(cmd) {
					fmt.Fprintf(cmd.ErrOrStderr(), "\rDownloading %3.0f%%", float64(written)/float64(total)*100)
				}
			})
			if err != nil {
				return fmt.Errorf("fetch vocabulary: %w", err)
			}

			if wantJSON(cmd) {
				return printJSON(cmd, map[string]string{"path": path})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\nVocabulary ready at %s\n", path)
			return nil
		},
	}

	cmd.Flags().String("url", "", "Download from this URL instead of the configured one")
	return cmd
}

func newVocabInfoCmd(resolver *internal.ScopeResolver) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show vocabulary details",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			scope, cfg, err := loadScope(cmd, resolver)
			if err != nil {
				return err
			}

			path := scope.VocabPath(cfg.Tokenizer.VocabFile)
			tok, err := internal.NewTokenizer(path, internal.WithContextLength(cfg.Tokenizer.ContextLength))
			if err != nil {
				return err
			}

			info := map[string]any{
				"path":           path,
				"vocab_size":     tok.VocabSize(),
				"context_length": tok.ContextLength(),
				"start_token":    tok.StartToken(),
				"end_token":      tok.EndToken(),
			}
			if wantJSON(cmd) {
				return printJSON(cmd, info)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Path:            %s\n", path)
			fmt.Fprintf(out, "Vocabulary size: %d\n", tok.VocabSize())
			fmt.Fprintf(out, "Context length:  %d\n", tok.ContextLength())
			fmt.Fprintf(out, "Markers:         %d %d\n", tok.StartToken(), tok.EndToken())
			return nil
		},
	}
}
