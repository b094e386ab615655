package vectorstore

import (
	"context"
	"sort"
	"sync"
)

// Memory is a linear-scan backend over unit vectors. Similarity is a
// plain dot product, which equals cosine similarity for normalized
// input.
type Memory struct {
	mu          sync.RWMutex
	collections map[string][]Point
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{collections: make(map[string][]Point)}
}

// Upsert replaces points by ID within the collection.
func (m *Memory) Upsert(_ context.Context, collection string, points []Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.collections[collection]
	byID := make(map[uint64]int, len(existing))
	for i, p := range existing {
		byID[p.ID] = i
	}
	for _, p := range points {
		if i, ok := byID[p.ID]; ok {
			existing[i] = p
		} else {
			byID[p.ID] = len(existing)
			existing = append(existing, p)
		}
	}
	m.collections[collection] = existing
	return nil
}

// Query scores every point against the query vector and returns the
// top limit hits, score descending, ties broken by ascending ID so
// results are stable across runs.
func (m *Memory) Query(_ context.Context, collection string, vector []float32, limit int) ([]Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	points := m.collections[collection]
	hits := make([]Hit, 0, len(points))
	for _, p := range points {
		hits = append(hits, Hit{ID: p.ID, Score: Dot(vector, p.Vector)})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})

	if limit > 0 && limit < len(hits) {
		hits = hits[:limit]
	}
	return hits, nil
}

// Dot computes the dot product of two equal-length vectors; mismatched
// lengths score zero.
func Dot(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
