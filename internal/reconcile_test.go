package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlan(t *testing.T) {
	tests := []struct {
		name      string
		current   IDSet
		cached    IDSet
		wantEmbed []PhotoID
		wantEvict []PhotoID
	}{
		{
			name:      "disjoint overlap",
			current:   NewIDSet("y", "z"),
			cached:    NewIDSet("x", "y"),
			wantEmbed: []PhotoID{"z"},
			wantEvict: []PhotoID{"x"},
		},
		{
			name:      "in sync",
			current:   NewIDSet("a", "b"),
			cached:    NewIDSet("a", "b"),
			wantEmbed: []PhotoID{},
			wantEvict: []PhotoID{},
		},
		{
			name:      "empty cache",
			current:   NewIDSet("c", "a", "b"),
			cached:    NewIDSet(),
			wantEmbed: []PhotoID{"a", "b", "c"},
			wantEvict: []PhotoID{},
		},
		{
			name:      "empty source",
			current:   NewIDSet(),
			cached:    NewIDSet("a"),
			wantEmbed: []PhotoID{},
			wantEvict: []PhotoID{"a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := Plan(tt.current, tt.cached)
			assert.Equal(t, tt.wantEmbed, plan.ToEmbed)
			assert.Equal(t, tt.wantEvict, plan.ToEvict)

			for _, id := range plan.ToEmbed {
				assert.False(t, tt.cached.Has(id))
			}
			for _, id := range plan.ToEvict {
				assert.True(t, tt.cached.Has(id))
			}
		})
	}
}

func TestPlanEmpty(t *testing.T) {
	assert.True(t, Plan(NewIDSet("a"), NewIDSet("a")).Empty())
	assert.False(t, Plan(NewIDSet("a"), NewIDSet()).Empty())
}
