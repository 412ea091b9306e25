package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/4thel00z/clipfind/internal"
	"github.com/spf13/cobra"
)

// libraryOpener opens the library selected by the command's flags. The
// caller closes it.
type libraryOpener func(cmd *cobra.Command) (*internal.LibraryService, error)

type app struct {
	resolver *internal.ScopeResolver
	open     libraryOpener
}

func newApp() *app {
	resolver := internal.NewScopeResolver()
	return &app{
		resolver: resolver,
		open: func(cmd *cobra.Command) (*internal.LibraryService, error) {
			scope, cfg, err := loadScope(cmd, resolver)
			if err != nil {
				return nil, err
			}
			return internal.OpenLibrary(cmd.Context(), scope, cfg, slog.Default())
		},
	}
}

func loadScope(cmd *cobra.Command, resolver *internal.ScopeResolver) (internal.Scope, *internal.Config, error) {
	scopeHint, _ := cmd.Flags().GetString("scope")
	scope := resolver.Resolve(scopeHint)

	if _, err := os.Stat(scope.DataPath); os.IsNotExist(err) {
		return scope, nil, fmt.Errorf("%w: run 'clipfind init' first (%s)", internal.ErrNotInitialized, scope.DataPath)
	}

	cfg, err := internal.LoadConfig(scope)
	if err != nil {
		return scope, nil, err
	}
	return scope, cfg, nil
}

func setupLogging(cmd *cobra.Command) {
	level := slog.LevelWarn
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}
