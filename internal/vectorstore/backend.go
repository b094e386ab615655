// Package vectorstore abstracts vector similarity search behind a
// capability interface with an external (Qdrant) and an in-memory
// implementation. Callers depend only on the interface and never branch
// on which backend is present.
package vectorstore

import (
	"context"
	"errors"
)

var (
	// ErrBackendUnreachable reports that the external store could not
	// be reached; callers degrade to in-memory search.
	ErrBackendUnreachable = errors.New("vector backend unreachable")

	// ErrDimensionMismatch reports a vector whose width differs from
	// the collection's configured dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Point is one stored vector. ID is the chunk's position in the index's
// fragment sequence, which keeps backend hits trivially mappable back
// to fragments.
type Point struct {
	ID     uint64
	Vector []float32
	Path   string
}

// Hit is one similarity search result, higher score = more similar.
type Hit struct {
	ID    uint64
	Score float32
}

// Backend stores vectors per collection and answers nearest-neighbor
// queries. Implementations must return hits ordered by score descending
// with ties broken by ascending ID.
type Backend interface {
	Upsert(ctx context.Context, collection string, points []Point) error
	Query(ctx context.Context, collection string, vector []float32, limit int) ([]Hit, error)
}
