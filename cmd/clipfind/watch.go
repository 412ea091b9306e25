package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/4thel00z/clipfind/internal"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

func NewWatchCmd(open libraryOpener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the index in sync as photos change",
		Long:  `Sync once, then watch the library for added, changed or removed photos and sync again after each burst of changes.`,
		Args:  cobra.NoArgs,
		RunE:  makeWatchRunner(open),
	}

	cmd.Flags().Duration("debounce", 2*time.Second, "Quiet period before re-syncing")
	return cmd
}

func makeWatchRunner(open libraryOpener) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		debounce, _ := cmd.Flags().GetDuration("debounce")

		lib, err := open(cmd)
		if err != nil {
			return err
		}
		defer lib.Close()

		root, dataPath := lib.Scope().Path, lib.Scope().DataPath

		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("create watcher: %w", err)
		}
		defer watcher.Close()

		if err := addWatchDirs(watcher, root, dataPath); err != nil {
			return fmt.Errorf("add watch dirs: %w", err)
		}

		resync := func() {
			res, err := lib.Sync(cmd.Context(), nil)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "sync error: %v\n", err)
				return
			}
			_ = printSyncResult(cmd, res)
		}

		resync()
		fmt.Fprintf(cmd.OutOrStdout(), "Watching %s for changes...\n", root)

		timer := time.NewTimer(0)
		if !timer.Stop() {
			<-timer.C
		}
		pending := false

		for {
			select {
			case <-cmd.Context().Done():
				return nil
			case event, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if event.Op&fsnotify.Create != 0 {
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
						_ = addWatchDirs(watcher, event.Name, dataPath)
						continue
					}
				}
				if shouldIgnoreEvent(event, dataPath) {
					continue
				}
				if !pending {
					timer.Reset(debounce)
					pending = true
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "watch error: %v\n", err)
			case <-timer.C:
				pending = false
				resync()
			}
		}
	}
}

func addWatchDirs(watcher *fsnotify.Watcher, root, dataPath string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path == dataPath || (strings.HasPrefix(d.Name(), ".") && path != root) {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}

// shouldIgnoreEvent drops events that cannot change the set of photos.
func shouldIgnoreEvent(event fsnotify.Event, dataPath string) bool {
	if strings.HasPrefix(event.Name, dataPath) {
		return true
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return true
	}
	// A removed directory may have held photos.
	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		return false
	}
	if filepath.Base(event.Name) == internal.IgnoreFilename {
		return false
	}
	return !internal.IsPhotoFile(event.Name)
}
