package internal

import (
	"math"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Timed operations.
const (
	OpTokenize       = "tokenize"
	OpTextInference  = "text_inference"
	OpImageInference = "image_inference"
	OpRank           = "rank"
	OpBatch          = "batch"
)

const statsWindow = 100

// Stats records operation timings and pipeline counters. A nil *Stats
// discards everything.
type Stats struct {
	registry *prometheus.Registry

	durations     *prometheus.HistogramVec
	embedded      prometheus.Counter
	failed        prometheus.Counter
	droppedFrames prometheus.Counter

	mu      sync.Mutex
	samples map[string][]time.Duration
}

// Summary describes the recent samples of one operation, in milliseconds.
type Summary struct {
	Op     string  `json:"op"`
	Count  int     `json:"count"`
	Mean   float64 `json:"mean_ms"`
	Median float64 `json:"median_ms"`
	StdDev float64 `json:"stddev_ms"`
}

func NewStats() *Stats {
	s := &Stats{
		registry: prometheus.NewRegistry(),
		durations: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "clipfind_operation_seconds",
				Help:    "Duration of index and search operations",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16),
			},
			[]string{"op"},
		),
		embedded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clipfind_photos_embedded_total",
			Help: "Photos embedded and cached",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clipfind_photos_failed_total",
			Help: "Photos that could not be loaded or embedded",
		}),
		droppedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clipfind_frames_dropped_total",
			Help: "Image queries dropped while another was in flight",
		}),
		samples: make(map[string][]time.Duration),
	}
	s.registry.MustRegister(s.durations, s.embedded, s.failed, s.droppedFrames)
	return s
}

func (s *Stats) Registry() *prometheus.Registry {
	if s == nil {
		return nil
	}
	return s.registry
}

func (s *Stats) Observe(op string, d time.Duration) {
	if s == nil {
		return
	}
	s.durations.WithLabelValues(op).Observe(d.Seconds())

	s.mu.Lock()
	defer s.mu.Unlock()
	buf := append(s.samples[op], d)
	if len(buf) > statsWindow {
		buf = buf[len(buf)-statsWindow:]
	}
	s.samples[op] = buf
}

// Time observes the time since start. Use with defer.
func (s *Stats) Time(op string, start time.Time) {
	s.Observe(op, time.Since(start))
}

func (s *Stats) AddEmbedded(n int) {
	if s == nil || n <= 0 {
		return
	}
	s.embedded.Add(float64(n))
}

func (s *Stats) AddFailed(n int) {
	if s == nil || n <= 0 {
		return
	}
	s.failed.Add(float64(n))
}

func (s *Stats) DroppedFrame() {
	if s == nil {
		return
	}
	s.droppedFrames.Inc()
}

func (s *Stats) Summary(op string) Summary {
	sum := Summary{Op: op}
	if s == nil {
		return sum
	}

	s.mu.Lock()
	ms := make([]float64, len(s.samples[op]))
	for i, d := range s.samples[op] {
		ms[i] = float64(d) / float64(time.Millisecond)
	}
	s.mu.Unlock()

	sum.Count = len(ms)
	if sum.Count == 0 {
		return sum
	}

	var total float64
	for _, v := range ms {
		total += v
	}
	sum.Mean = total / float64(len(ms))

	var variance float64
	for _, v := range ms {
		variance += (v - sum.Mean) * (v - sum.Mean)
	}
	sum.StdDev = math.Sqrt(variance / float64(len(ms)))

	slices.Sort(ms)
	mid := len(ms) / 2
	if len(ms)%2 == 0 {
		sum.Median = (ms[mid-1] + ms[mid]) / 2
	} else {
		sum.Median = ms[mid]
	}
	return sum
}

// Summaries returns a summary for every operation with samples, sorted by
// name.
func (s *Stats) Summaries() []Summary {
	if s == nil {
		return nil
	}

	s.mu.Lock()
	ops := make([]string, 0, len(s.samples))
	for op := range s.samples {
		ops = append(ops, op)
	}
	s.mu.Unlock()
	slices.Sort(ops)

	out := make([]Summary, 0, len(ops))
	for _, op := range ops {
		out = append(out, s.Summary(op))
	}
	return out
}
