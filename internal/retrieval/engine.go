// Package retrieval selects a token-budgeted, deduplicated, ranked set
// of fragments for a query through a three-stage funnel: broad vector
// search, pairwise re-rank, graph-neighbor expansion.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/codescout/codescout/internal/chunker"
	"github.com/codescout/codescout/internal/embedding"
	"github.com/codescout/codescout/internal/graph"
	"github.com/codescout/codescout/internal/index"
	"github.com/codescout/codescout/internal/rerank"
	"github.com/codescout/codescout/internal/vectorstore"
)

// Options are the retrieval tunables. Zero values take the defaults.
type Options struct {
	// TopK is the number of re-ranked fragments selected before graph
	// expansion.
	TopK int
	// BroadFactor multiplies TopK for the first-stage candidate pool,
	// trading recall for re-rank cost.
	BroadFactor int
	// TokenBudget bounds the estimated size of the packed result.
	TokenBudget int
	// ExpandTop is how many top fragments seed graph expansion.
	ExpandTop int
	// Estimator prices fragments against the budget; nil uses the
	// fixed-ratio fallback.
	Estimator TokenEstimator
}

func (o Options) withDefaults() Options {
	if o.TopK <= 0 {
		o.TopK = 6
	}
	if o.BroadFactor <= 0 {
		o.BroadFactor = 5
	}
	if o.TokenBudget <= 0 {
		o.TokenBudget = 6000
	}
	if o.ExpandTop <= 0 {
		o.ExpandTop = 3
	}
	if o.Estimator == nil {
		o.Estimator = RatioEstimator{CharsPerToken: DefaultCharsPerToken}
	}
	return o
}

// Engine runs the retrieval funnel over a built index. The embedder
// must be the one the index was built with; scorer, backend and graphs
// are optional capabilities the engine degrades without.
type Engine struct {
	embedder embedding.Embedder
	backend  vectorstore.Backend
	graphs   *graph.Cache
	scorer   rerank.Scorer
	opts     Options
	logger   *slog.Logger
}

// NewEngine creates a retrieval engine. backend, graphs and scorer may
// each be nil: search then degrades to an in-memory scan, no expansion,
// and broad-recall ordering respectively.
func NewEngine(
	embedder embedding.Embedder,
	backend vectorstore.Backend,
	graphs *graph.Cache,
	scorer rerank.Scorer,
	opts Options,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		embedder: embedder,
		backend:  backend,
		graphs:   graphs,
		scorer:   scorer,
		opts:     opts.withDefaults(),
		logger:   logger,
	}
}

// Retrieve returns fragments for query ordered by relevance descending
// and truncated to the token budget. Fragments are excluded wholesale,
// never cut mid-content, so citation line ranges stay valid. An empty
// index yields an empty result and no error. repoRoot may be empty to
// skip graph expansion.
func (e *Engine) Retrieve(ctx context.Context, query string, idx *index.Index, repoRoot string) ([]chunker.Fragment, error) {
	if idx.Empty() {
		return nil, nil
	}

	queryVectors, err := e.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	queryVector := queryVectors[0]

	broadLimit := e.opts.TopK * e.opts.BroadFactor
	candidates := e.broadRecall(ctx, queryVector, idx, broadLimit)
	candidates = e.rerankCandidates(ctx, query, idx, candidates)
	// Dedup before the cut so duplicates never eat TopK slots.
	candidates = dedupByIdentity(candidates, idx)

	selected := candidates
	if len(selected) > e.opts.TopK {
		selected = selected[:e.opts.TopK]
	}
	selected = e.expandByGraph(repoRoot, idx, selected)

	return e.packBudget(selected, idx), nil
}

// broadRecall returns candidate chunk ids ordered by vector similarity,
// via the external backend when the index is mirrored there and the
// backend answers, else by direct dot product over the index vectors.
func (e *Engine) broadRecall(ctx context.Context, queryVector []float32, idx *index.Index, limit int) []int {
	if e.backend != nil && idx.Collection != "" {
		hits, err := e.backend.Query(ctx, idx.Collection, queryVector, limit)
		if err == nil {
			ids := make([]int, 0, len(hits))
			for _, h := range hits {
				if h.ID < uint64(len(idx.Fragments)) {
					ids = append(ids, int(h.ID))
				}
			}
			return ids
		}
		e.logger.Warn("vector backend query failed, scanning in memory",
			"collection", idx.Collection, "error", err)
	}

	type scored struct {
		id    int
		score float32
	}
	all := make([]scored, len(idx.Vectors))
	for i, v := range idx.Vectors {
		all[i] = scored{id: i, score: vectorstore.Dot(queryVector, v)}
	}
	// Stable sort keeps original chunk order for bit-equal scores.
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].score > all[j].score
	})
	if limit < len(all) {
		all = all[:limit]
	}
	ids := make([]int, len(all))
	for i, s := range all {
		ids[i] = s.id
	}
	return ids
}

// rerankCandidates reorders candidates by pairwise relevance. Scorer
// absence or failure keeps the broad-recall order; this is a soft
// degradation, not an error.
func (e *Engine) rerankCandidates(ctx context.Context, query string, idx *index.Index, candidates []int) []int {
	if e.scorer == nil || len(candidates) == 0 {
		return candidates
	}

	texts := make([]string, len(candidates))
	for i, id := range candidates {
		texts[i] = idx.Fragments[id].Text
	}

	scores, err := e.scorer.Score(ctx, query, texts)
	if err != nil || len(scores) != len(candidates) {
		e.logger.Warn("re-rank skipped, keeping broad-recall order", "error", err)
		return candidates
	}

	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	reranked := make([]int, len(candidates))
	for i, o := range order {
		reranked[i] = candidates[o]
	}
	return reranked
}

// expandByGraph appends fragments from files structurally related to
// the top selected fragments, context pure similarity search would
// miss. Selected results keep priority over expansion results.
func (e *Engine) expandByGraph(repoRoot string, idx *index.Index, selected []int) []int {
	if e.graphs == nil || repoRoot == "" || len(selected) == 0 {
		return selected
	}

	g, err := e.graphs.Get(repoRoot)
	if err != nil {
		e.logger.Warn("graph unavailable, skipping expansion", "repo", repoRoot, "error", err)
		return selected
	}

	related := make(map[string]struct{})
	seedPaths := make(map[string]struct{})
	for _, id := range selected {
		path := idx.Fragments[id].Path
		if _, seen := seedPaths[path]; seen {
			continue
		}
		if len(seedPaths) >= e.opts.ExpandTop {
			break
		}
		seedPaths[path] = struct{}{}
		for _, neighbor := range g.RelatedFiles(path) {
			related[neighbor] = struct{}{}
		}
	}

	chosen := make(map[int]struct{}, len(selected))
	for _, id := range selected {
		chosen[id] = struct{}{}
	}
	for id := range idx.Fragments {
		if _, ok := chosen[id]; ok {
			continue
		}
		if _, ok := related[idx.Fragments[id].Path]; ok {
			selected = append(selected, id)
		}
	}
	return selected
}

// fragmentKey identifies a fragment by provenance; two ids with equal
// keys are the same chunk for selection purposes.
type fragmentKey struct {
	path  string
	start int
}

// dedupByIdentity drops ids whose (path, start line) was already seen,
// first occurrence winning, preserving order.
func dedupByIdentity(ids []int, idx *index.Index) []int {
	seen := make(map[fragmentKey]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		f := idx.Fragments[id]
		k := fragmentKey{path: f.Path, start: f.StartLine}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, id)
	}
	return out
}

// packBudget walks the prioritized ids, deduplicates by (path, start
// line) with first occurrence winning, and accumulates fragments until
// the next one would exceed the token budget.
func (e *Engine) packBudget(ids []int, idx *index.Index) []chunker.Fragment {
	seen := make(map[fragmentKey]struct{}, len(ids))

	var packed []chunker.Fragment
	used := 0
	for _, id := range ids {
		f := idx.Fragments[id]
		k := fragmentKey{path: f.Path, start: f.StartLine}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}

		cost := e.opts.Estimator.EstimateTokens(f.Text) + chunkOverheadTokens
		if used+cost > e.opts.TokenBudget {
			break
		}
		used += cost
		packed = append(packed, f)
	}
	return packed
}
