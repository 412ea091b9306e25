package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/4thel00z/clipfind/internal"
	"github.com/spf13/cobra"
)

func NewInitCmd(resolver *internal.ScopeResolver) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a photo library",
		Long:  `Create a .clipfind directory in the current directory, making it a searchable photo library.`,
		RunE:  makeInitRunner(resolver),
	}

	cmd.Flags().Bool("global", false, "Initialize the global library (~/.clipfind, indexing ~/Pictures)")
	cmd.Flags().String("backend", internal.BackendBadger, "Cache backend (badger|sqlite)")
	cmd.Flags().String("device", string(internal.DeviceAuto), "Model device hint (auto|cpu|cuda|mps)")
	return cmd
}

func makeInitRunner(resolver *internal.ScopeResolver) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		isGlobal, _ := cmd.Flags().GetBool("global")
		backend, _ := cmd.Flags().GetString("backend")
		device, _ := cmd.Flags().GetString("device")

		var scope internal.Scope
		if isGlobal {
			scope = resolver.Global()
		} else {
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("get working directory: %w", err)
			}
			scope = internal.Scope{
				Type:     internal.ScopeProject,
				Path:     cwd,
				DataPath: filepath.Join(cwd, internal.DataDirname),
			}
		}

		if _, err := os.Stat(scope.DataPath); err == nil {
			return fmt.Errorf("already initialized at %s", scope.DataPath)
		}

		cfg := internal.DefaultConfig()
		cfg.Cache.Backend = backend
		cfg.Model.Device = internal.Device(device)
		if err := cfg.Validate(); err != nil {
			return err
		}

		if err := os.MkdirAll(scope.CachePath(), 0755); err != nil {
			return fmt.Errorf("create cache directory: %w", err)
		}

		if err := internal.SaveConfig(scope, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Initialized photo library at %s\n", scope.DataPath)
		return nil
	}
}
