package internal

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// LibraryService ties the index together: it reconciles the photo source
// with the cache, keeps the ranking snapshot current and answers searches.
type LibraryService struct {
	scope     Scope
	cfg       *Config
	cache     *EmbeddingCache
	source    PhotoSource
	images    ImageEmbedder
	text      TextEmbedder
	tokenizer *Tokenizer
	pipeline  *Pipeline
	snapshot  *SnapshotHolder
	stats     *Stats
	logger    *slog.Logger

	syncMu sync.Mutex

	mu       sync.RWMutex
	lastSync time.Time
	lastRun  SyncResult
}

// LibraryDeps are the collaborators of a LibraryService. Tokenizer may be
// nil, in which case text search reports ErrNotInitialized.
type LibraryDeps struct {
	Scope     Scope
	Config    *Config
	Cache     *EmbeddingCache
	Source    PhotoSource
	Images    ImageEmbedder
	Text      TextEmbedder
	Tokenizer *Tokenizer
	Stats     *Stats
	Logger    *slog.Logger
}

type SyncResult struct {
	Current  int           `json:"current"`
	Embedded int           `json:"embedded"`
	Failed   int           `json:"failed"`
	Evicted  int           `json:"evicted"`
	Indexed  int           `json:"indexed"`
	Elapsed  time.Duration `json:"elapsed"`
}

type LibraryStatus struct {
	Scope    ScopeType  `json:"scope"`
	Root     string     `json:"root"`
	Backend  string     `json:"backend"`
	Model    string     `json:"model,omitempty"`
	Cached   int        `json:"cached"`
	Indexed  int        `json:"indexed"`
	Vocab    bool       `json:"vocab"`
	LastSync *time.Time `json:"last_sync,omitempty"`
	LastRun  SyncResult `json:"last_run"`
}

func NewLibraryService(deps LibraryDeps) *LibraryService {
	cfg := deps.Config
	if cfg == nil {
		cfg = DefaultConfig()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &LibraryService{
		scope:     deps.Scope,
		cfg:       cfg,
		cache:     deps.Cache,
		source:    deps.Source,
		images:    deps.Images,
		text:      deps.Text,
		tokenizer: deps.Tokenizer,
		pipeline:  NewPipeline(deps.Cache, cfg.Pipeline, deps.Stats, logger),
		snapshot:  NewSnapshotHolder(),
		stats:     deps.Stats,
		logger:    logger,
	}
}

// OpenLibrary wires a service for an initialized scope using its config:
// the configured cache backend, the scope's directory as photo source and
// the HTTP model server. The snapshot is loaded from the cache.
func OpenLibrary(ctx context.Context, scope Scope, cfg *Config, logger *slog.Logger) (*LibraryService, error) {
	if _, err := os.Stat(scope.DataPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotInitialized, scope.DataPath)
	}
	if logger == nil {
		logger = slog.Default()
	}

	store, err := OpenStore(scope, cfg.Cache.Backend)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	cache := NewEmbeddingCache(store,
		WithCacheLogger(logger),
		WithCacheModel(cfg.Model.ImageModel),
		WithCacheDimension(cfg.Model.Dimension),
	)

	source, err := NewDirSource(scope, logger)
	if err != nil {
		_ = cache.Close()
		return nil, fmt.Errorf("open photo source: %w", err)
	}

	model, err := NewHTTPModel(HTTPModelConfig{
		BaseURL:    cfg.Model.BaseURL,
		ImageModel: cfg.Model.ImageModel,
		TextModel:  cfg.Model.TextModel,
		InputSize:  cfg.Model.InputSize,
		Device:     cfg.Model.Device.Resolve(),
		Normalize:  cfg.Model.Normalize,
		Timeout:    cfg.Model.Timeout,
		Logger:     logger,
	})
	if err != nil {
		_ = cache.Close()
		return nil, err
	}

	tok, err := NewTokenizer(scope.VocabPath(cfg.Tokenizer.VocabFile),
		WithContextLength(cfg.Tokenizer.ContextLength),
		WithCacheSize(cfg.Tokenizer.CacheSize))
	if err != nil {
		// Image search and sync still work without a vocabulary.
		logger.Debug("tokenizer unavailable", "error", err)
		tok = nil
	}

	svc := NewLibraryService(LibraryDeps{
		Scope:     scope,
		Config:    cfg,
		Cache:     cache,
		Source:    source,
		Images:    model,
		Text:      model,
		Tokenizer: tok,
		Stats:     NewStats(),
		Logger:    logger,
	})
	svc.snapshot.Rebuild(ctx, cache)
	return svc, nil
}

func (s *LibraryService) Scope() Scope {
	return s.scope
}

func (s *LibraryService) Config() *Config {
	return s.cfg
}

func (s *LibraryService) Stats() *Stats {
	return s.stats
}

func (s *LibraryService) Snapshot() *Snapshot {
	return s.snapshot.Load()
}

func (s *LibraryService) Tokenizer() *Tokenizer {
	return s.tokenizer
}

// Sync embeds photos missing from the cache, evicts cached photos that are
// gone from the source and rebuilds the snapshot.
func (s *LibraryService) Sync(ctx context.Context, progress Progress) (SyncResult, error) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	return s.reconcile(ctx, progress, s.cache.Keys(ctx))
}

// ClearCache drops every cached embedding and re-embeds the whole library.
func (s *LibraryService) ClearCache(ctx context.Context, progress Progress) (SyncResult, error) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	s.cache.Clear(ctx)
	s.snapshot.Store(NewSnapshot(nil))
	return s.reconcile(ctx, progress, NewIDSet())
}

func (s *LibraryService) reconcile(ctx context.Context, progress Progress, cached IDSet) (SyncResult, error) {
	if progress == nil {
		progress = ProgressFuncs{}
	}
	start := time.Now()

	current, err := s.source.ListIDs(ctx)
	if err != nil {
		return SyncResult{}, fmt.Errorf("list photos: %w", err)
	}

	currentSet := NewIDSet(current...)
	plan := Plan(currentSet, cached)

	// Unreadable records of current photos are overwritten by re-embedding;
	// the rest are dropped with the stale entries.
	evict := plan.ToEvict
	unusable := s.cache.Unusable(ctx)
	for _, id := range unusable {
		if !currentSet.Has(id) {
			evict = append(evict, id)
		}
	}

	s.logger.Info("reconciled library",
		"current", len(current), "cached", cached.Len(), "unusable", len(unusable),
		"embed", len(plan.ToEmbed), "evict", len(evict))

	s.cache.DeleteMany(ctx, evict)

	result := SyncResult{Current: len(current), Evicted: len(evict)}
	var runErr error
	if len(plan.ToEmbed) > 0 {
		if s.images == nil {
			return result, ErrNoModel
		}
		var res PipelineResult
		res, runErr = s.pipeline.EmbedAll(ctx, plan.ToEmbed, s.source, s.images, progress)
		result.Embedded = res.Embedded
		result.Failed = res.Failed
	} else {
		if len(evict) > 0 {
			s.cache.Flush(ctx)
		}
		progress.Update(1)
		progress.Done()
	}

	snap := s.snapshot.Rebuild(context.WithoutCancel(ctx), s.cache)
	result.Indexed = snap.Len()
	result.Elapsed = time.Since(start)

	s.mu.Lock()
	s.lastSync = time.Now()
	s.lastRun = result
	s.mu.Unlock()

	return result, runErr
}

// SearchText ranks the library against a free-text query. Blank text or an
// empty library yields no results without calling the model.
func (s *LibraryService) SearchText(ctx context.Context, text string, k int) ([]ScoredPhoto, error) {
	if strings.TrimSpace(text) == "" {
		return []ScoredPhoto{}, nil
	}
	snap := s.snapshot.Load()
	if snap.Len() == 0 {
		return []ScoredPhoto{}, nil
	}
	if s.tokenizer == nil {
		return nil, fmt.Errorf("%w: vocabulary missing", ErrNotInitialized)
	}
	if s.text == nil {
		return nil, ErrNoModel
	}

	start := time.Now()
	tokens := s.tokenizer.Tokenize([]string{text})[0]
	s.stats.Observe(OpTokenize, time.Since(start))

	start = time.Now()
	query, err := s.text.EmbedTokens(ctx, tokens)
	s.stats.Observe(OpTextInference, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	return s.rank(query, snap, k), nil
}

// SearchImage ranks the library against an example image.
func (s *LibraryService) SearchImage(ctx context.Context, img image.Image, k int) ([]ScoredPhoto, error) {
	if img == nil {
		return nil, ErrEmptyQuery
	}
	snap := s.snapshot.Load()
	if snap.Len() == 0 {
		return []ScoredPhoto{}, nil
	}
	if s.images == nil {
		return nil, ErrNoModel
	}

	start := time.Now()
	vecs, err := s.images.EmbedImages(ctx, []*image.RGBA{AspectFill(img, s.images.InputSize())})
	s.stats.Observe(OpImageInference, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed query: model returned %d embeddings", len(vecs))
	}

	return s.rank(vecs[0], snap, k), nil
}

func (s *LibraryService) rank(query Embedding, snap *Snapshot, k int) []ScoredPhoto {
	if k <= 0 {
		k = s.cfg.Search.TopK
	}
	if query.Dimension() != snap.Dimension() {
		s.logger.Warn("query dimension mismatch", "query", query.Dimension(), "index", snap.Dimension())
		return []ScoredPhoto{}
	}

	defer s.stats.Time(OpRank, time.Now())
	return TopKScored(query, snap, k)
}

// TextQueries returns a debounced text query coordinator bound to this
// library.
func (s *LibraryService) TextQueries(ctx context.Context, k int, deliver func(QueryResult)) *TextQueries {
	return NewTextQueries(ctx, func(ctx context.Context, text string) ([]PhotoID, error) {
		return photoIDs(s.SearchText(ctx, text, k))
	}, deliver, s.cfg.Search.Debounce)
}

// ImageQueries returns an admission-controlled image query coordinator bound
// to this library.
func (s *LibraryService) ImageQueries(ctx context.Context, k int, deliver func(QueryResult)) *ImageQueries {
	return NewImageQueries(ctx, func(ctx context.Context, img image.Image) ([]PhotoID, error) {
		return photoIDs(s.SearchImage(ctx, img, k))
	}, deliver, s.stats)
}

func photoIDs(scored []ScoredPhoto, err error) ([]PhotoID, error) {
	if err != nil {
		return nil, err
	}
	ids := make([]PhotoID, len(scored))
	for i, sp := range scored {
		ids[i] = sp.ID
	}
	return ids, nil
}

func (s *LibraryService) Status(ctx context.Context) LibraryStatus {
	st := LibraryStatus{
		Scope:   s.scope.Type,
		Root:    s.scope.Path,
		Backend: s.cfg.Cache.Backend,
		Model:   s.cache.Meta(ctx)[MetaModel],
		Cached:  s.cache.Keys(ctx).Len(),
		Indexed: s.snapshot.Load().Len(),
		Vocab:   s.tokenizer != nil,
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.lastSync.IsZero() {
		t := s.lastSync
		st.LastSync = &t
	}
	st.LastRun = s.lastRun
	return st
}

func (s *LibraryService) Close() error {
	if err := s.cache.Close(); err != nil {
		return fmt.Errorf("close cache: %w", err)
	}
	return nil
}
