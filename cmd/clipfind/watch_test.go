package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/4thel00z/clipfind/internal"
	"github.com/fsnotify/fsnotify"
)

func TestShouldIgnoreEvent(t *testing.T) {
	dataPath := filepath.Join("lib", internal.DataDirname)

	tests := []struct {
		name   string
		event  fsnotify.Event
		ignore bool
	}{
		{"new photo", fsnotify.Event{Name: "lib/a.jpg", Op: fsnotify.Create}, false},
		{"edited photo", fsnotify.Event{Name: "lib/b.PNG", Op: fsnotify.Write}, false},
		{"removed dir", fsnotify.Event{Name: "lib/trip", Op: fsnotify.Remove}, false},
		{"ignore file", fsnotify.Event{Name: "lib/" + internal.IgnoreFilename, Op: fsnotify.Write}, false},
		{"text file", fsnotify.Event{Name: "lib/notes.txt", Op: fsnotify.Write}, true},
		{"chmod", fsnotify.Event{Name: "lib/a.jpg", Op: fsnotify.Chmod}, true},
		{"data dir", fsnotify.Event{Name: filepath.Join(dataPath, "cache", "x.jpg"), Op: fsnotify.Create}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shouldIgnoreEvent(tt.event, dataPath); got != tt.ignore {
				t.Errorf("shouldIgnoreEvent = %v, want %v", got, tt.ignore)
			}
		})
	}
}

func TestAddWatchDirs(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{"trip", "trip/day1", internal.DataDirname, ".hidden"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		t.Fatalf("watcher: %v", err)
	}
	defer watcher.Close()

	if err := addWatchDirs(watcher, root, filepath.Join(root, internal.DataDirname)); err != nil {
		t.Fatalf("addWatchDirs: %v", err)
	}

	watched := watcher.WatchList()
	if len(watched) != 3 {
		t.Errorf("expected root and two trip dirs, got %v", watched)
	}
	for _, w := range watched {
		if strings.Contains(w, internal.DataDirname) || strings.Contains(w, ".hidden") {
			t.Errorf("unexpected watch on %s", w)
		}
	}
}

func TestWatchCmdInitialSync(t *testing.T) {
	svc := newTestService(t, defaultPhotos())

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	cmd := NewWatchCmd(openerFor(svc))
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{})

	if err := cmd.ExecuteContext(ctx); err != nil {
		t.Fatalf("watch: %v", err)
	}
	if !strings.Contains(out.String(), "Indexed 2 photos") {
		t.Errorf("missing initial sync in %q", out.String())
	}
	if !strings.Contains(out.String(), "Watching") {
		t.Errorf("missing watch banner in %q", out.String())
	}
}
