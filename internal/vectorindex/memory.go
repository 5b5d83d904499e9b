package vectorindex

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process brute-force index. It is the default backend:
// catalogs are small enough that exact scan beats the operational cost
// of an external index.
type Memory struct {
	dim int

	mu    sync.RWMutex
	items map[string]memoryItem
}

type memoryItem struct {
	vector   []float32
	metadata map[string]string
}

// NewMemory creates an empty in-memory index. dim of 0 disables
// dimension checking.
func NewMemory(dim int) *Memory {
	return &Memory{
		dim:   dim,
		items: make(map[string]memoryItem),
	}
}

// Upsert inserts or replaces items. Vectors are normalized on write;
// re-upserting the same ID overwrites the previous entry.
func (m *Memory) Upsert(_ context.Context, items []Item) error {
	for i := range items {
		if err := checkDim(len(items[i].Vector), m.dim); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range items {
		meta := make(map[string]string, len(it.Metadata))
		for k, v := range it.Metadata {
			meta[k] = v
		}
		m.items[it.ID] = memoryItem{
			vector:   Normalize(it.Vector),
			metadata: meta,
		}
	}
	return nil
}

// Delete removes an item by ID. Deleting an absent ID is a no-op.
func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
	return nil
}

// Search returns the top-k items by cosine similarity, ties broken by
// ascending ID so results are deterministic.
func (m *Memory) Search(_ context.Context, vector []float32, k int, filters Filters) ([]Match, error) {
	if err := checkDim(len(vector), m.dim); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	q := Normalize(vector)

	m.mu.RLock()
	matches := make([]Match, 0, len(m.items))
	for id, it := range m.items {
		if !matchesFilters(it.metadata, filters) {
			continue
		}
		// copy metadata so callers cannot mutate stored state
		meta := make(map[string]string, len(it.metadata))
		for k, v := range it.metadata {
			meta[k] = v
		}
		matches = append(matches, Match{
			ID:       id,
			Score:    clamp01(dot(q, it.vector)),
			Metadata: meta,
		})
	}
	m.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})

	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Size returns the number of indexed items.
func (m *Memory) Size(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items), nil
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
