package main

import (
	"fmt"
	"strings"

	"github.com/4thel00z/clipfind/internal"
	"github.com/spf13/cobra"
)

func NewTokenizeCmd(resolver *internal.ScopeResolver) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokenize <text>",
		Short: "Show the token ids for a query",
		Args:  cobra.MinimumNArgs(1),
		RunE:  makeTokenizeRunner(resolver),
	}

	cmd.Flags().Bool("full", false, "Print the full padded sequence")
	return cmd
}

func makeTokenizeRunner(resolver *internal.ScopeResolver) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		full, _ := cmd.Flags().GetBool("full")

		scope, cfg, err := loadScope(cmd, resolver)
		if err != nil {
			return err
		}

		tok, err := internal.NewTokenizer(scope.VocabPath(cfg.Tokenizer.VocabFile),
			internal.WithContextLength(cfg.Tokenizer.ContextLength))
		if err != nil {
			return fmt.Errorf("%w (run 'clipfind vocab fetch')", err)
		}

		text := strings.Join(args, " ")
		seq := tok.Tokenize([]string{text})[0]
		if !full {
			seq = trimSequence(seq, tok.EndToken())
		}

		if wantJSON(cmd) {
			return printJSON(cmd, map[string]any{
				"text":    text,
				"decoded": tok.Decode(seq),
				"tokens":  seq,
			})
		}

		parts := make([]string, len(seq))
		for i, id := range seq {
			parts[i] = fmt.Sprint(id)
		}
		fmt.Fprintln(cmd.OutOrStdout(), strings.Join(parts, " "))
		return nil
	}
}

// trimSequence cuts the padding after the end marker.
func trimSequence(seq internal.TokenSequence, eot int32) internal.TokenSequence {
	for i, id := range seq {
		if id == eot {
			return seq[:i+1]
		}
	}
	return seq
}
