package internal

import (
	"context"
	"sort"
	"sync/atomic"
	"time"
)

// DefaultTopK is how many results a search returns unless asked otherwise.
const DefaultTopK = 48

// Snapshot is an immutable view of the cache used for ranking. Rows are
// ordered by PhotoID ascending.
type Snapshot struct {
	ids       []PhotoID
	dimension int
	matrix    []float32 // len(ids) rows of dimension columns
	builtAt   time.Time
}

// NewSnapshot copies entries into a flat matrix. Entries whose width
// differs from the first entry's are skipped.
func NewSnapshot(entries map[PhotoID]Embedding) *Snapshot {
	ids := make([]PhotoID, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	s := &Snapshot{builtAt: time.Now()}
	for _, id := range ids {
		e := entries[id]
		if s.dimension == 0 {
			s.dimension = e.Dimension()
		}
		if e.Dimension() != s.dimension || s.dimension == 0 {
			continue
		}
		s.ids = append(s.ids, id)
		for _, v := range e {
			s.matrix = append(s.matrix, v.Float32())
		}
	}
	return s
}

func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.ids)
}

func (s *Snapshot) Dimension() int {
	if s == nil {
		return 0
	}
	return s.dimension
}

func (s *Snapshot) BuiltAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.builtAt
}

func (s *Snapshot) IDs() []PhotoID {
	if s == nil {
		return nil
	}
	return append([]PhotoID(nil), s.ids...)
}

// ScoredPhoto is one ranked result.
type ScoredPhoto struct {
	ID    PhotoID `json:"id"`
	Score float32 `json:"score"`
}

// TopKScored ranks every snapshot entry by dot product with query and
// returns the best k. Equal scores keep PhotoID order.
func TopKScored(query Embedding, snapshot *Snapshot, k int) []ScoredPhoto {
	if k <= 0 || snapshot.Len() == 0 || query.Dimension() != snapshot.dimension {
		return []ScoredPhoto{}
	}

	q := query.Float32()
	dim := snapshot.dimension
	scored := make([]ScoredPhoto, len(snapshot.ids))
	for i, id := range snapshot.ids {
		scored[i] = ScoredPhoto{ID: id, Score: dot(snapshot.matrix[i*dim:(i+1)*dim], q)}
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	return scored[:min(k, len(scored))]
}

// TopK returns the ids of the k most similar photos, best first.
func TopK(query Embedding, snapshot *Snapshot, k int) []PhotoID {
	scored := TopKScored(query, snapshot, k)
	ids := make([]PhotoID, len(scored))
	for i, s := range scored {
		ids[i] = s.ID
	}
	return ids
}

// SnapshotHolder publishes the current snapshot. Readers never observe a
// partially built one.
type SnapshotHolder struct {
	current atomic.Pointer[Snapshot]
}

func NewSnapshotHolder() *SnapshotHolder {
	h := &SnapshotHolder{}
	h.current.Store(NewSnapshot(nil))
	return h
}

func (h *SnapshotHolder) Load() *Snapshot {
	return h.current.Load()
}

func (h *SnapshotHolder) Store(s *Snapshot) {
	h.current.Store(s)
}

// Rebuild materializes a fresh snapshot from the cache and swaps it in.
func (h *SnapshotHolder) Rebuild(ctx context.Context, cache *EmbeddingCache) *Snapshot {
	s := NewSnapshot(cache.GetAll(ctx))
	h.current.Store(s)
	return s
}
