package internal

import (
	"context"
	"errors"
	"image"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultDebounce is how long text input must be quiet before a query runs.
const DefaultDebounce = 300 * time.Millisecond

// QueryResult is the outcome of one submitted query.
type QueryResult struct {
	RequestID string        `json:"request_id"`
	Text      string        `json:"text,omitempty"`
	IDs       []PhotoID     `json:"ids"`
	Err       error         `json:"-"`
	Elapsed   time.Duration `json:"elapsed"`
}

type TextSearchFunc func(ctx context.Context, text string) ([]PhotoID, error)

type ImageSearchFunc func(ctx context.Context, img image.Image) ([]PhotoID, error)

// TextQueries debounces free-text queries. Each Submit supersedes the
// previous one: a pending query is never started and a running one is
// cancelled, so only the latest request is delivered.
type TextQueries struct {
	parent   context.Context
	search   TextSearchFunc
	deliver  func(QueryResult)
	debounce time.Duration

	mu         sync.Mutex
	generation uint64
	timer      *time.Timer
	cancel     context.CancelFunc
	closed     bool

	deliverMu sync.Mutex
}

func NewTextQueries(ctx context.Context, search TextSearchFunc, deliver func(QueryResult), debounce time.Duration) *TextQueries {
	if debounce < 0 {
		debounce = 0
	}
	return &TextQueries{
		parent:   ctx,
		search:   search,
		deliver:  deliver,
		debounce: debounce,
	}
}

// Submit schedules text and returns its request id. Blank text is answered
// at once with an empty result.
func (q *TextQueries) Submit(text string) string {
	id := uuid.NewString()

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return id
	}
	q.generation++
	gen := q.generation
	q.stopLocked()

	if strings.TrimSpace(text) == "" {
		q.mu.Unlock()
		q.publish(gen, QueryResult{RequestID: id, Text: text, IDs: []PhotoID{}})
		return id
	}

	q.timer = time.AfterFunc(q.debounce, func() { q.run(gen, id, text) })
	q.mu.Unlock()
	return id
}

// Close cancels pending and running work. Later submissions are ignored.
func (q *TextQueries) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.generation++
	q.stopLocked()
}

func (q *TextQueries) stopLocked() {
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	if q.cancel != nil {
		q.cancel()
		q.cancel = nil
	}
}

func (q *TextQueries) run(gen uint64, id, text string) {
	q.mu.Lock()
	if gen != q.generation {
		q.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(q.parent)
	q.cancel = cancel
	q.mu.Unlock()
	defer cancel()

	start := time.Now()
	ids, err := q.search(ctx, text)
	if errors.Is(err, context.Canceled) {
		return
	}
	q.publish(gen, QueryResult{RequestID: id, Text: text, IDs: ids, Err: err, Elapsed: time.Since(start)})
}

// publish delivers res only if no newer request has been submitted.
func (q *TextQueries) publish(gen uint64, res QueryResult) {
	q.deliverMu.Lock()
	defer q.deliverMu.Unlock()

	q.mu.Lock()
	current := gen == q.generation
	if current {
		q.cancel = nil
	}
	q.mu.Unlock()

	if current && q.deliver != nil {
		q.deliver(res)
	}
}

// ImageQueries admits at most one image query at a time. Frames offered
// while one is running are dropped.
type ImageQueries struct {
	parent  context.Context
	search  ImageSearchFunc
	deliver func(QueryResult)
	stats   *Stats

	mu         sync.Mutex
	running    bool
	generation uint64
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

func NewImageQueries(ctx context.Context, search ImageSearchFunc, deliver func(QueryResult), stats *Stats) *ImageQueries {
	return &ImageQueries{parent: ctx, search: search, deliver: deliver, stats: stats}
}

// Submit starts a query for frame unless one is already in flight, in which
// case the frame is dropped and false returned.
func (q *ImageQueries) Submit(frame image.Image) bool {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		q.stats.DroppedFrame()
		return false
	}
	q.running = true
	gen := q.generation
	ctx, cancel := context.WithCancel(q.parent)
	q.cancel = cancel
	q.wg.Add(1)
	q.mu.Unlock()

	id := uuid.NewString()
	go func() {
		defer q.wg.Done()
		defer cancel()

		start := time.Now()
		ids, err := q.search(ctx, frame)

		q.mu.Lock()
		q.running = false
		q.cancel = nil
		current := gen == q.generation
		q.mu.Unlock()

		if current && !errors.Is(err, context.Canceled) && q.deliver != nil {
			q.deliver(QueryResult{RequestID: id, IDs: ids, Err: err, Elapsed: time.Since(start)})
		}
	}()
	return true
}

// Busy reports whether a query is in flight.
func (q *ImageQueries) Busy() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

// Reset supersedes the in-flight query; its result is discarded.
func (q *ImageQueries) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.generation++
	if q.cancel != nil {
		q.cancel()
	}
}

// Wait blocks until no query is in flight.
func (q *ImageQueries) Wait() {
	q.wg.Wait()
}
