package store

import (
	"context"
	"sync"

	"github.com/joeblew999/plat-survey/internal/proximity"
)

// Memory keeps completion sets in process. Used by tests and previews.
type Memory struct {
	mu   sync.RWMutex
	sets map[string]proximity.CompletionSet
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{sets: make(map[string]proximity.CompletionSet)}
}

func (m *Memory) Get(ctx context.Context, taskID string) (proximity.CompletionSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sets[taskID], nil
}

func (m *Memory) Put(ctx context.Context, taskID string, set proximity.CompletionSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets[taskID] = proximity.NewCompletionSet(mergeIDs(m.sets[taskID].IDs(), set)...)
	return nil
}

// mergeIDs returns the sorted union of prev and set.
func mergeIDs(prev []string, set proximity.CompletionSet) []string {
	merged := set
	for _, id := range prev {
		if !merged.Has(id) {
			merged = merged.With(id)
		}
	}
	return merged.IDs()
}

func (m *Memory) Close() error { return nil }
