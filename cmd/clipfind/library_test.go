package main

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/4thel00z/clipfind/internal"
	"github.com/spf13/cobra"
)

const testMerges = "#version: 0.2\nh e\nl l\nll o</w>\nhe llo</w>\n"

var (
	red   = color.RGBA{R: 255, A: 255}
	green = color.RGBA{G: 255, A: 255}
)

// colorSource serves solid-colour photos.
type colorSource struct {
	photos map[internal.PhotoID]color.RGBA
}

func (s *colorSource) ListIDs(ctx context.Context) ([]internal.PhotoID, error) {
	ids := make([]internal.PhotoID, 0, len(s.photos))
	for id := range s.photos {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *colorSource) LoadPixels(ctx context.Context, id internal.PhotoID, size int) *image.RGBA {
	c, ok := s.photos[id]
	if !ok {
		return nil
	}
	return solid(size, c)
}

func solid(size int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

// colorModel embeds an image as its first pixel's red and green channels.
type colorModel struct{}

func (colorModel) InputSize() int { return 4 }

func (colorModel) EmbedImages(ctx context.Context, imgs []*image.RGBA) ([]internal.Embedding, error) {
	out := make([]internal.Embedding, len(imgs))
	for i, img := range imgs {
		out[i] = internal.NewEmbedding([]float32{float32(img.Pix[0]) / 255, float32(img.Pix[1]) / 255})
	}
	return out, nil
}

// wordModel embeds queries mentioning "red" as red and everything else as
// green.
type wordModel struct {
	tok *internal.Tokenizer
}

func (m wordModel) EmbedTokens(ctx context.Context, tokens internal.TokenSequence) (internal.Embedding, error) {
	if strings.Contains(m.tok.Decode(tokens), "red") {
		return internal.NewEmbedding([]float32{1, 0}), nil
	}
	return internal.NewEmbedding([]float32{0, 1}), nil
}

func newTestService(t *testing.T, photos map[internal.PhotoID]color.RGBA) *internal.LibraryService {
	t.Helper()

	dir := t.TempDir()
	store, err := internal.NewBadgerStore(filepath.Join(dir, "cache"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	tok, err := internal.NewTokenizerFromReader(strings.NewReader(testMerges))
	if err != nil {
		t.Fatalf("tokenizer: %v", err)
	}

	cfg := internal.DefaultConfig()
	cfg.Model.Dimension = 2
	cfg.Search.Debounce = 10 * time.Millisecond

	return internal.NewLibraryService(internal.LibraryDeps{
		Scope:     internal.Scope{Type: internal.ScopeProject, Path: dir, DataPath: filepath.Join(dir, internal.DataDirname)},
		Config:    cfg,
		Cache:     internal.NewEmbeddingCache(store, internal.WithCacheDimension(2)),
		Source:    &colorSource{photos: photos},
		Images:    colorModel{},
		Text:      wordModel{tok: tok},
		Tokenizer: tok,
		Stats:     internal.NewStats(),
	})
}

func defaultPhotos() map[internal.PhotoID]color.RGBA {
	return map[internal.PhotoID]color.RGBA{
		"red.png":   red,
		"green.png": green,
	}
}

// syncedService returns a service whose index already holds the photos.
func syncedService(t *testing.T) *internal.LibraryService {
	t.Helper()
	svc := newTestService(t, defaultPhotos())
	if _, err := svc.Sync(context.Background(), nil); err != nil {
		t.Fatalf("sync: %v", err)
	}
	return svc
}

func openerFor(svc *internal.LibraryService) libraryOpener {
	return func(*cobra.Command) (*internal.LibraryService, error) {
		return svc, nil
	}
}

// runRoot executes args against a root command whose library commands use
// svc.
func runRoot(t *testing.T, svc *internal.LibraryService, stdin string, args ...string) (string, error) {
	t.Helper()

	a := &app{
		resolver: internal.NewScopeResolverWithHome(t.TempDir()),
		open:     openerFor(svc),
	}
	cmd := NewRootCmd("test", a)

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

func writePNG(t *testing.T, path string, c color.RGBA) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, solid(8, c)); err != nil {
		t.Fatalf("encode: %v", err)
	}
}

// initLibrary creates a project scope in a fresh working directory with the
// test vocabulary installed.
func initLibrary(t *testing.T) internal.Scope {
	t.Helper()
	dir := chdirTemp(t)
	scope := internal.Scope{Type: internal.ScopeProject, Path: dir, DataPath: filepath.Join(dir, internal.DataDirname)}

	if err := os.MkdirAll(scope.DataPath, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	cfg := internal.DefaultConfig()
	cfg.Tokenizer.VocabFile = "vocab.txt"
	if err := internal.SaveConfig(scope, cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}
	if err := os.WriteFile(scope.VocabPath("vocab.txt"), []byte(testMerges), 0644); err != nil {
		t.Fatalf("write vocab: %v", err)
	}
	return scope
}
