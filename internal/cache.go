package internal

import (
	"context"
	"log/slog"
	"strconv"
	"time"
)

// EmbeddingCache is the persistent photo-to-embedding mapping. Every
// operation is best effort: storage failures are logged and reported as an
// empty or unchanged result.
type EmbeddingCache struct {
	store     Store
	model     string
	dimension int
	logger    *slog.Logger
	now       func() time.Time
}

type CacheOption func(*EmbeddingCache)

func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *EmbeddingCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithCacheModel tags stored vectors with the model that produced them.
func WithCacheModel(model string) CacheOption {
	return func(c *EmbeddingCache) {
		c.model = model
	}
}

// WithCacheDimension sets the expected vector width. Stored vectors of any
// other width read as missing.
func WithCacheDimension(dim int) CacheOption {
	return func(c *EmbeddingCache) {
		c.dimension = dim
	}
}

func NewEmbeddingCache(store Store, opts ...CacheOption) *EmbeddingCache {
	c := &EmbeddingCache{
		store:     store,
		dimension: DefaultDimension,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *EmbeddingCache) Get(ctx context.Context, id PhotoID) (Embedding, bool) {
	rec, err := c.store.Get(ctx, id)
	if err != nil {
		c.logger.Warn("cache read failed", "id", id, "error", err)
		return nil, false
	}
	if rec == nil || !c.fits(rec.Vector) {
		return nil, false
	}
	return rec.Vector, true
}

// GetAll returns every usable entry. A failed scan yields an empty map.
func (c *EmbeddingCache) GetAll(ctx context.Context) map[PhotoID]Embedding {
	records, err := c.store.GetAll(ctx)
	if err != nil {
		c.logger.Warn("cache scan failed", "error", err)
		return map[PhotoID]Embedding{}
	}

	out := make(map[PhotoID]Embedding, len(records))
	for _, rec := range records {
		if !c.fits(rec.Vector) {
			c.logger.Debug("skipping cached vector", "id", rec.ID, "dimension", rec.Vector.Dimension())
			continue
		}
		out[rec.ID] = rec.Vector
	}
	return out
}

// Keys returns the ids with a usable cached vector. Records of the wrong
// width or that fail to decode are left out so the next sync re-embeds them.
// A failed scan yields an empty set, which makes the next sync re-embed
// everything.
func (c *EmbeddingCache) Keys(ctx context.Context) IDSet {
	ids := NewIDSet()
	for id := range c.GetAll(ctx) {
		ids.Add(id)
	}
	return ids
}

// Unusable returns stored ids whose records Keys leaves out.
func (c *EmbeddingCache) Unusable(ctx context.Context) []PhotoID {
	stored, err := c.store.Keys(ctx)
	if err != nil {
		c.logger.Warn("cache key scan failed", "error", err)
		return nil
	}
	usable := c.Keys(ctx)

	var out []PhotoID
	for _, id := range stored {
		if !usable.Has(id) {
			out = append(out, id)
		}
	}
	return out
}

// Put stores e under id and reports whether it was stored. Vectors of the
// wrong width are rejected and write failures are logged.
func (c *EmbeddingCache) Put(ctx context.Context, id PhotoID, e Embedding) bool {
	if !c.fits(e) {
		c.logger.Warn("dropping embedding", "id", id, "error", ErrDimensionMismatch, "dimension", e.Dimension())
		return false
	}

	rec := &Record{ID: id, Vector: e, Model: c.model, UpdatedAt: c.now()}
	if err := c.store.Put(ctx, rec); err != nil {
		c.logger.Warn("cache write failed", "id", id, "error", err)
		return false
	}
	return true
}

func (c *EmbeddingCache) DeleteMany(ctx context.Context, ids []PhotoID) {
	if len(ids) == 0 {
		return
	}
	if err := c.store.DeleteMany(ctx, ids); err != nil {
		c.logger.Warn("cache delete failed", "count", len(ids), "error", err)
	}
}

func (c *EmbeddingCache) Clear(ctx context.Context) {
	if err := c.store.Clear(ctx); err != nil {
		c.logger.Warn("cache clear failed", "error", err)
	}
}

// Flush makes prior writes durable and stamps the producing model.
func (c *EmbeddingCache) Flush(ctx context.Context) {
	if ms, ok := c.store.(MetaStore); ok && c.model != "" {
		if err := ms.SetMeta(ctx, MetaModel, c.model); err != nil {
			c.logger.Warn("cache stamp failed", "error", err)
		}
		if err := ms.SetMeta(ctx, MetaDimension, strconv.Itoa(c.dimension)); err != nil {
			c.logger.Warn("cache stamp failed", "error", err)
		}
	}
	if err := c.store.Sync(ctx); err != nil {
		c.logger.Warn("cache flush failed", "error", err)
	}
}

// Meta returns the stamped store metadata, if the backend keeps any.
func (c *EmbeddingCache) Meta(ctx context.Context) map[string]string {
	ms, ok := c.store.(MetaStore)
	if !ok {
		return map[string]string{}
	}
	meta, err := ms.Meta(ctx)
	if err != nil {
		c.logger.Warn("cache meta read failed", "error", err)
		return map[string]string{}
	}
	return meta
}

func (c *EmbeddingCache) Dimension() int {
	return c.dimension
}

func (c *EmbeddingCache) Close() error {
	return c.store.Close()
}

func (c *EmbeddingCache) fits(e Embedding) bool {
	return c.dimension <= 0 || e.Dimension() == c.dimension
}
