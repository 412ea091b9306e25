package internal

import (
	"context"
	"image"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultBatchSize        = 256
	DefaultProgressInterval = 250 * time.Millisecond
)

// Progress receives the fraction of photos processed during a pipeline run.
type Progress interface {
	Update(fraction float64)
	Done()
}

// ProgressFuncs adapts plain functions to Progress. Nil fields are skipped.
type ProgressFuncs struct {
	OnUpdate func(fraction float64)
	OnDone   func()
}

func (p ProgressFuncs) Update(fraction float64) {
	if p.OnUpdate != nil {
		p.OnUpdate(fraction)
	}
}

func (p ProgressFuncs) Done() {
	if p.OnDone != nil {
		p.OnDone()
	}
}

type PipelineResult struct {
	Total    int `json:"total"`
	Embedded int `json:"embedded"`
	Failed   int `json:"failed"`
}

// Pipeline embeds photos in batches and writes the results to the cache.
type Pipeline struct {
	cache  *EmbeddingCache
	cfg    PipelineConfig
	stats  *Stats
	logger *slog.Logger
	now    func() time.Time
}

func NewPipeline(cache *EmbeddingCache, cfg PipelineConfig, stats *Stats, logger *slog.Logger) *Pipeline {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.LoadWorkers <= 0 {
		cfg.LoadWorkers = DefaultLoadWorkers()
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = DefaultProgressInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{cache: cache, cfg: cfg, stats: stats, logger: logger, now: time.Now}
}

// EmbedAll loads, embeds and caches every id. Batches run one after another;
// a failed load or model call drops the affected photos and the run
// continues. The store is flushed and progress.Done called before returning,
// including on cancellation, which stops the run between batches.
func (p *Pipeline) EmbedAll(ctx context.Context, ids []PhotoID, source PhotoSource, model ImageEmbedder, progress Progress) (result PipelineResult, err error) {
	if progress == nil {
		progress = ProgressFuncs{}
	}
	result.Total = len(ids)

	defer func() {
		result.Failed = result.Total - result.Embedded
		p.stats.AddEmbedded(result.Embedded)
		p.stats.AddFailed(result.Failed)
		p.cache.Flush(context.WithoutCancel(ctx))
		progress.Done()
	}()

	if len(ids) == 0 {
		progress.Update(1)
		return result, nil
	}

	var (
		processed   int
		lastPublish time.Time
	)
	for start := 0; start < len(ids); start += p.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			p.logger.Info("pipeline cancelled", "processed", processed, "total", len(ids))
			return result, err
		}

		batch := ids[start:min(start+p.cfg.BatchSize, len(ids))]
		result.Embedded += p.embedBatch(ctx, batch, source, model)
		processed += len(batch)

		if processed == len(ids) {
			progress.Update(1)
		} else if now := p.now(); now.Sub(lastPublish) >= p.cfg.ProgressInterval {
			lastPublish = now
			progress.Update(float64(processed) / float64(len(ids)))
		}
	}

	return result, nil
}

func (p *Pipeline) embedBatch(ctx context.Context, batch []PhotoID, source PhotoSource, model ImageEmbedder) int {
	defer p.stats.Time(OpBatch, time.Now())

	size := model.InputSize()
	pixels := make([]*image.RGBA, len(batch))

	var g errgroup.Group
	g.SetLimit(p.cfg.LoadWorkers)
	for i, id := range batch {
		g.Go(func() error {
			pixels[i] = source.LoadPixels(ctx, id, size)
			return nil
		})
	}
	_ = g.Wait()

	loadedIDs := make([]PhotoID, 0, len(batch))
	images := make([]*image.RGBA, 0, len(batch))
	for i, img := range pixels {
		if img == nil {
			continue
		}
		loadedIDs = append(loadedIDs, batch[i])
		images = append(images, img)
	}
	if dropped := len(batch) - len(images); dropped > 0 {
		p.logger.Debug("skipped unloadable photos", "count", dropped)
	}
	if len(images) == 0 {
		return 0
	}

	inferStart := time.Now()
	vecs, err := model.EmbedImages(ctx, images)
	p.stats.Observe(OpImageInference, time.Since(inferStart))
	if err != nil {
		p.logger.Warn("batch embedding failed", "batch", len(images), "error", err)
		return 0
	}
	if len(vecs) != len(images) {
		p.logger.Warn("batch embedding failed", "batch", len(images), "results", len(vecs))
		return 0
	}

	embedded := 0
	for i, vec := range vecs {
		if p.cache.Put(ctx, loadedIDs[i], vec) {
			embedded++
		}
	}
	return embedded
}
