package v1

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/4thel00z/clipfind/internal"
)

// Client provides programmatic access to a photo library index.
type Client struct {
	lib *internal.LibraryService
}

// New opens the library of the resolved scope. The scope must have been
// initialized with `clipfind init`.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	scope := internal.NewScopeResolver().Resolve(cfg.scope)
	conf, err := internal.LoadConfig(scope)
	if err != nil {
		return nil, err
	}
	if cfg.modelURL != "" {
		conf.Model.BaseURL = cfg.modelURL
	}
	if cfg.backend != "" {
		conf.Cache.Backend = cfg.backend
	}
	if cfg.topK != 0 {
		conf.Search.TopK = cfg.topK
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	lib, err := internal.OpenLibrary(context.Background(), scope, conf, logger)
	if err != nil {
		return nil, err
	}
	return &Client{lib: lib}, nil
}

// Sync embeds new photos and evicts deleted ones.
func (c *Client) Sync(ctx context.Context) (SyncReport, error) {
	res, err := c.lib.Sync(ctx, nil)
	report := SyncReport{
		Photos:   res.Current,
		Embedded: res.Embedded,
		Failed:   res.Failed,
		Evicted:  res.Evicted,
		Indexed:  res.Indexed,
		Elapsed:  res.Elapsed,
	}
	if err != nil {
		return report, fmt.Errorf("sync: %w", err)
	}
	return report, nil
}

// Search ranks the library against text. k <= 0 uses the configured
// default.
func (c *Client) Search(ctx context.Context, text string, k int) ([]SearchResult, error) {
	scored, err := c.lib.SearchText(ctx, text, k)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return toResults(scored), nil
}

// SearchImage ranks the library against an example image.
func (c *Client) SearchImage(ctx context.Context, img image.Image, k int) ([]SearchResult, error) {
	scored, err := c.lib.SearchImage(ctx, img, k)
	if err != nil {
		return nil, fmt.Errorf("search image: %w", err)
	}
	return toResults(scored), nil
}

// SearchImageFile decodes the image at path and searches with it.
func (c *Client) SearchImageFile(ctx context.Context, path string, k int) ([]SearchResult, error) {
	img, err := internal.DecodeImageFile(path)
	if err != nil {
		return nil, err
	}
	return c.SearchImage(ctx, img, k)
}

func (c *Client) Status(ctx context.Context) Status {
	st := c.lib.Status(ctx)
	return Status{
		Scope:    string(st.Scope),
		Root:     st.Root,
		Backend:  st.Backend,
		Model:    st.Model,
		Cached:   st.Cached,
		Indexed:  st.Indexed,
		LastSync: st.LastSync,
	}
}

// Close releases the cache. The client must not be used afterwards.
func (c *Client) Close() error {
	return c.lib.Close()
}

func toResults(scored []internal.ScoredPhoto) []SearchResult {
	out := make([]SearchResult, len(scored))
	for i, s := range scored {
		out[i] = SearchResult{ID: string(s.ID), Score: s.Score}
	}
	return out
}
