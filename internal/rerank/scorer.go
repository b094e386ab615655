// Package rerank scores (query, text) pairs for the second stage of the
// retrieval funnel, more precisely than embedding similarity alone.
package rerank

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrUnavailable reports that no scorer could be constructed. Callers
// degrade by keeping the broad-recall order; this is never surfaced as
// a retrieval failure.
var ErrUnavailable = errors.New("reranker unavailable")

// Scorer assigns a relevance score to each text for the query, higher =
// more relevant. No ordering guarantee is required of implementations;
// sorting is the retrieval engine's responsibility.
type Scorer interface {
	Score(ctx context.Context, query string, texts []string) ([]float64, error)
}

// Factory constructs a Scorer, typically loading a model handle.
type Factory func() (Scorer, error)

// Lazy defers scorer construction to first use and performs it exactly
// once, even under concurrent callers. A failed construction is
// remembered and reported as ErrUnavailable on every call.
type Lazy struct {
	once    sync.Once
	factory Factory
	scorer  Scorer
	err     error
}

// NewLazy wraps factory in a once-guarded scorer.
func NewLazy(factory Factory) *Lazy {
	return &Lazy{factory: factory}
}

// Score initializes the underlying scorer on first call and delegates.
func (l *Lazy) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	l.once.Do(func() {
		l.scorer, l.err = l.factory()
	})
	if l.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, l.err)
	}
	return l.scorer.Score(ctx, query, texts)
}
