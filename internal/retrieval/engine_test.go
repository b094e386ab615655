package retrieval

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codescout/codescout/internal/chunker"
	"github.com/codescout/codescout/internal/graph"
	"github.com/codescout/codescout/internal/index"
	"github.com/codescout/codescout/internal/vectorstore"
)

// mapEmbedder returns a preset vector per text, falling back to a
// default, so tests control similarity exactly.
type mapEmbedder struct {
	vectors  map[string][]float32
	fallback []float32
}

func (m mapEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := m.vectors[t]; ok {
			out[i] = v
		} else {
			out[i] = m.fallback
		}
	}
	return out, nil
}

func (m mapEmbedder) Dimension() int { return len(m.fallback) }

type stubScorer struct {
	scores map[string]float64
	err    error
}

func (s stubScorer) Score(_ context.Context, _ string, texts []string) ([]float64, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]float64, len(texts))
	for i, t := range texts {
		out[i] = s.scores[t]
	}
	return out, nil
}

func fragment(path string, start int, text string) chunker.Fragment {
	lines := strings.Count(text, "\n") + 1
	return chunker.Fragment{Path: path, StartLine: start, EndLine: start + lines - 1, Text: text}
}

func TestRetrieve_EmptyIndex(t *testing.T) {
	engine := NewEngine(mapEmbedder{fallback: []float32{1, 0}}, nil, nil, nil, Options{}, nil)

	fragments, err := engine.Retrieve(context.Background(), "anything", &index.Index{}, "")
	require.NoError(t, err)
	assert.Empty(t, fragments)

	fragments, err = engine.Retrieve(context.Background(), "anything", nil, "")
	require.NoError(t, err)
	assert.Empty(t, fragments)
}

// TestRetrieve_IdenticalTextIsTopResult verifies that querying with a
// chunk's exact text returns that chunk first.
func TestRetrieve_IdenticalTextIsTopResult(t *testing.T) {
	target := "def handler(request):\n    return respond(request)"
	idx := &index.Index{
		Fragments: []chunker.Fragment{
			fragment("other.py", 1, "unrelated content"),
			fragment("handler.py", 1, target),
		},
		Vectors: [][]float32{{0, 1}, {1, 0}},
	}
	emb := mapEmbedder{
		vectors:  map[string][]float32{target: {1, 0}},
		fallback: []float32{0.1, 0.9},
	}
	engine := NewEngine(emb, nil, nil, nil, Options{}, nil)

	fragments, err := engine.Retrieve(context.Background(), target, idx, "")
	require.NoError(t, err)
	require.NotEmpty(t, fragments)
	assert.Equal(t, "handler.py", fragments[0].Path)
}

// TestRetrieve_BudgetNeverExceeded verifies greedy packing: the packed
// set fits the budget and the first excluded fragment would not.
func TestRetrieve_BudgetNeverExceeded(t *testing.T) {
	text := strings.Repeat("x", 400) // 100 tokens + 12 overhead
	idx := &index.Index{
		Fragments: []chunker.Fragment{
			fragment("a.py", 1, text),
			fragment("b.py", 1, text),
			fragment("c.py", 1, text),
		},
		Vectors: [][]float32{{1, 0}, {1, 0}, {1, 0}},
	}
	emb := mapEmbedder{fallback: []float32{1, 0}}
	opts := Options{TokenBudget: 250}
	engine := NewEngine(emb, nil, nil, nil, opts, nil)

	fragments, err := engine.Retrieve(context.Background(), "query", idx, "")
	require.NoError(t, err)
	require.Len(t, fragments, 2, "third fragment would exceed the budget")

	estimator := RatioEstimator{CharsPerToken: DefaultCharsPerToken}
	used := 0
	for _, f := range fragments {
		used += estimator.EstimateTokens(f.Text) + chunkOverheadTokens
	}
	assert.LessOrEqual(t, used, 250)
	nextCost := estimator.EstimateTokens(text) + chunkOverheadTokens
	assert.Greater(t, used+nextCost, 250, "packing should be maximal under the greedy rule")
}

// TestRetrieve_TieBreakStable verifies bit-equal scores keep original
// chunk order.
func TestRetrieve_TieBreakStable(t *testing.T) {
	same := []float32{1, 0}
	idx := &index.Index{
		Fragments: []chunker.Fragment{
			fragment("first.py", 1, "alpha"),
			fragment("second.py", 1, "beta"),
			fragment("third.py", 1, "gamma"),
		},
		Vectors: [][]float32{same, same, same},
	}
	engine := NewEngine(mapEmbedder{fallback: same}, nil, nil, nil, Options{}, nil)

	fragments, err := engine.Retrieve(context.Background(), "query", idx, "")
	require.NoError(t, err)
	require.Len(t, fragments, 3)
	assert.Equal(t, "first.py", fragments[0].Path)
	assert.Equal(t, "second.py", fragments[1].Path)
	assert.Equal(t, "third.py", fragments[2].Path)
}

func TestRetrieve_DeduplicatesByPathAndStart(t *testing.T) {
	dup := fragment("a.py", 1, "duplicate content")
	idx := &index.Index{
		Fragments: []chunker.Fragment{dup, dup, fragment("b.py", 1, "other")},
		Vectors:   [][]float32{{1, 0}, {1, 0}, {0, 1}},
	}
	engine := NewEngine(mapEmbedder{fallback: []float32{1, 0}}, nil, nil, nil, Options{}, nil)

	fragments, err := engine.Retrieve(context.Background(), "query", idx, "")
	require.NoError(t, err)

	count := 0
	for _, f := range fragments {
		if f.Path == "a.py" && f.StartLine == 1 {
			count++
		}
	}
	assert.Equal(t, 1, count, "first occurrence wins, duplicates dropped")
}

// TestRetrieve_DuplicatesDoNotEatTopKSlots verifies dedup happens
// before the TopK cut: duplicated top candidates must not shrink the
// selection below TopK distinct fragments.
func TestRetrieve_DuplicatesDoNotEatTopKSlots(t *testing.T) {
	dup := fragment("a.py", 1, "duplicate content")
	idx := &index.Index{
		Fragments: []chunker.Fragment{dup, dup, fragment("b.py", 1, "runner up")},
		Vectors:   [][]float32{{1, 0}, {1, 0}, {0.8, 0.6}},
	}
	engine := NewEngine(mapEmbedder{fallback: []float32{1, 0}}, nil, nil, nil, Options{TopK: 2}, nil)

	fragments, err := engine.Retrieve(context.Background(), "query", idx, "")
	require.NoError(t, err)

	require.Len(t, fragments, 2)
	assert.Equal(t, "a.py", fragments[0].Path)
	assert.Equal(t, "b.py", fragments[1].Path)
}

func TestRetrieve_RerankReorders(t *testing.T) {
	idx := &index.Index{
		Fragments: []chunker.Fragment{
			fragment("close.py", 1, "vector favorite"),
			fragment("relevant.py", 1, "scorer favorite"),
		},
		Vectors: [][]float32{{1, 0}, {0.9, 0.1}},
	}
	scorer := stubScorer{scores: map[string]float64{
		"vector favorite": 2.0,
		"scorer favorite": 9.0,
	}}
	engine := NewEngine(mapEmbedder{fallback: []float32{1, 0}}, nil, nil, scorer, Options{}, nil)

	fragments, err := engine.Retrieve(context.Background(), "query", idx, "")
	require.NoError(t, err)
	require.Len(t, fragments, 2)
	assert.Equal(t, "relevant.py", fragments[0].Path, "re-rank should override vector order")
}

func TestRetrieve_ScorerFailureKeepsBroadOrder(t *testing.T) {
	idx := &index.Index{
		Fragments: []chunker.Fragment{
			fragment("close.py", 1, "vector favorite"),
			fragment("far.py", 1, "vector stranger"),
		},
		Vectors: [][]float32{{1, 0}, {0, 1}},
	}
	scorer := stubScorer{err: errors.New("model load failed")}
	engine := NewEngine(mapEmbedder{fallback: []float32{1, 0}}, nil, nil, scorer, Options{}, nil)

	fragments, err := engine.Retrieve(context.Background(), "query", idx, "")
	require.NoError(t, err, "scorer failure is a soft degradation")
	require.Len(t, fragments, 2)
	assert.Equal(t, "close.py", fragments[0].Path)
}

// TestRetrieve_GraphExpansion verifies chunks from files related to the
// top results are appended after the funnel's own picks.
func TestRetrieve_GraphExpansion(t *testing.T) {
	root := t.TempDir()
	writeRepoFile(t, root, "a.py", "import b\n")
	writeRepoFile(t, root, "b.py", "value = 42\n")

	idx := &index.Index{
		Fragments: []chunker.Fragment{
			fragment("a.py", 1, "import b"),
			fragment("b.py", 1, "value = 42"),
		},
		Vectors: [][]float32{{1, 0}, {0, 1}},
	}

	graphs := graph.NewCache(graph.NewBuilder(0, nil), 0)
	opts := Options{TopK: 1}
	engine := NewEngine(mapEmbedder{fallback: []float32{1, 0}}, nil, graphs, nil, opts, nil)

	fragments, err := engine.Retrieve(context.Background(), "query", idx, root)
	require.NoError(t, err)
	require.Len(t, fragments, 2)
	assert.Equal(t, "a.py", fragments[0].Path, "similarity pick stays first")
	assert.Equal(t, "b.py", fragments[1].Path, "graph neighbor appended")
}

func TestRetrieve_UsesBackendWhenMirrored(t *testing.T) {
	backend := vectorstore.NewMemory()
	ctx := context.Background()

	idx := &index.Index{
		Fragments: []chunker.Fragment{
			fragment("a.py", 1, "alpha"),
			fragment("b.py", 1, "beta"),
		},
		Vectors:    [][]float32{{1, 0}, {0, 1}},
		Collection: "repo_test",
	}
	require.NoError(t, backend.Upsert(ctx, "repo_test", []vectorstore.Point{
		{ID: 0, Vector: idx.Vectors[0], Path: "a.py"},
		{ID: 1, Vector: idx.Vectors[1], Path: "b.py"},
	}))

	engine := NewEngine(mapEmbedder{fallback: []float32{0, 1}}, backend, nil, nil, Options{}, nil)
	fragments, err := engine.Retrieve(ctx, "query", idx, "")
	require.NoError(t, err)
	require.NotEmpty(t, fragments)
	assert.Equal(t, "b.py", fragments[0].Path)
}

type failingBackend struct{}

func (failingBackend) Upsert(context.Context, string, []vectorstore.Point) error {
	return vectorstore.ErrBackendUnreachable
}

func (failingBackend) Query(context.Context, string, []float32, int) ([]vectorstore.Hit, error) {
	return nil, vectorstore.ErrBackendUnreachable
}

func TestRetrieve_BackendFailureFallsBackToScan(t *testing.T) {
	idx := &index.Index{
		Fragments:  []chunker.Fragment{fragment("a.py", 1, "alpha")},
		Vectors:    [][]float32{{1, 0}},
		Collection: "repo_test",
	}
	engine := NewEngine(mapEmbedder{fallback: []float32{1, 0}}, failingBackend{}, nil, nil, Options{}, nil)

	fragments, err := engine.Retrieve(context.Background(), "query", idx, "")
	require.NoError(t, err, "backend failure degrades to in-memory search")
	require.Len(t, fragments, 1)
	assert.Equal(t, "a.py", fragments[0].Path)
}

func TestFormatFragments(t *testing.T) {
	fragments := []chunker.Fragment{
		{Path: "src/app.py", StartLine: 10, EndLine: 12, Text: "def main():\n    run()"},
	}
	out := FormatFragments(fragments)
	assert.Contains(t, out, `<FILE path="src/app.py" lines="10-12">`)
	assert.Contains(t, out, "def main():")
	assert.Contains(t, out, "</FILE>")
}

func TestCitations(t *testing.T) {
	fragments := []chunker.Fragment{
		{Path: "a.py", StartLine: 1, EndLine: 5},
		{Path: "b.py", StartLine: 3, EndLine: 9},
	}
	citations := Citations(fragments)
	require.Len(t, citations, 2)
	assert.Equal(t, Citation{Path: "b.py", StartLine: 3, EndLine: 9}, citations[1])
}

func TestRatioEstimator(t *testing.T) {
	est := RatioEstimator{CharsPerToken: 4}
	assert.Equal(t, 0, est.EstimateTokens(""))
	assert.Equal(t, 1, est.EstimateTokens("ab"))
	assert.Equal(t, 100, est.EstimateTokens(strings.Repeat("x", 400)))
}

func writeRepoFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}
