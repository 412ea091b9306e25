package internal

import (
	"errors"
	"sort"
)

var (
	ErrNotInitialized    = errors.New("library not initialized")
	ErrVocabulary        = errors.New("invalid vocabulary")
	ErrEmptyQuery        = errors.New("empty query")
	ErrBusy              = errors.New("query already in flight")
	ErrDimensionMismatch = errors.New("dimension mismatch")
	ErrNoModel           = errors.New("embedding model not configured")
)

// PhotoID identifies one photo in the source collection.
type PhotoID string

func (id PhotoID) String() string {
	return string(id)
}

// IDSet is an unordered set of photo identifiers.
type IDSet map[PhotoID]struct{}

func NewIDSet(ids ...PhotoID) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s IDSet) Add(id PhotoID) {
	s[id] = struct{}{}
}

func (s IDSet) Has(id PhotoID) bool {
	_, ok := s[id]
	return ok
}

func (s IDSet) Len() int {
	return len(s)
}

// Sorted returns the members in ascending order.
func (s IDSet) Sorted() []PhotoID {
	out := make([]PhotoID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
