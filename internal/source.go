package internal

import (
	"context"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/webp"
)

// PhotoSource enumerates a photo collection and loads pixels on demand.
type PhotoSource interface {
	ListIDs(ctx context.Context) ([]PhotoID, error)
	// LoadPixels returns the photo resampled to a size x size square, or nil
	// when it cannot be loaded.
	LoadPixels(ctx context.Context, id PhotoID, size int) *image.RGBA
}

var photoExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

func IsPhotoFile(path string) bool {
	return photoExtensions[strings.ToLower(filepath.Ext(path))]
}

var _ PhotoSource = (*DirSource)(nil)

// DirSource is a photo library rooted at a directory. A PhotoID is the
// slash-separated path relative to the root.
type DirSource struct {
	root   string
	skip   string
	ignore *IgnoreMatcher
	logger *slog.Logger
}

// NewDirSource reads the library's .clipignore. The scope's data directory
// is never listed.
func NewDirSource(scope Scope, logger *slog.Logger) (*DirSource, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ignore, err := NewIgnoreMatcher(scope.Path)
	if err != nil {
		return nil, err
	}

	return &DirSource{
		root:   scope.Path,
		skip:   scope.DataPath,
		ignore: ignore,
		logger: logger,
	}, nil
}

func (s *DirSource) Root() string {
	return s.root
}

func (s *DirSource) ListIDs(ctx context.Context) ([]PhotoID, error) {
	var ids []PhotoID

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			s.logger.Debug("skipping unreadable path", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == s.root {
			return nil
		}

		if d.IsDir() {
			if path == s.skip || d.Name() == DataDirname || d.Name() == ".git" || s.ignore.Match(path, true) {
				return fs.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() || !IsPhotoFile(path) || s.ignore.Match(path, false) {
			return nil
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return nil
		}
		ids = append(ids, PhotoID(filepath.ToSlash(rel)))
		return nil
	})
	if err != nil {
		return nil, err
	}

	return ids, nil
}

// Path maps an id back to its file.
func (s *DirSource) Path(id PhotoID) string {
	return filepath.Join(s.root, filepath.FromSlash(string(id)))
}

func (s *DirSource) LoadPixels(ctx context.Context, id PhotoID, size int) *image.RGBA {
	if ctx.Err() != nil {
		return nil
	}

	img, err := DecodeImageFile(s.Path(id))
	if err != nil {
		s.logger.Warn("failed to load photo", "id", id, "error", err)
		return nil
	}
	return AspectFill(img, size)
}

func DecodeImageFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	return img, err
}
