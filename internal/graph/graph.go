// Package graph builds an undirected file-adjacency relation from
// import statements, used to pull structurally related files into
// retrieval results.
package graph

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/codescout/codescout/internal/chunker"
)

// Graph maps each file path to the set of files it imports or is
// imported by. Edges are symmetric by construction: a file that imports
// another is relevant context when viewing either side.
type Graph struct {
	adjacency map[string]map[string]struct{}
}

// RelatedFiles returns the deduplicated, sorted neighbors of path.
// An unknown path yields an empty set, not an error.
func (g *Graph) RelatedFiles(path string) []string {
	neighbors, ok := g.adjacency[path]
	if !ok {
		return nil
	}
	related := make([]string, 0, len(neighbors))
	for n := range neighbors {
		related = append(related, n)
	}
	sort.Strings(related)
	return related
}

// Nodes returns all file paths known to the graph, sorted.
func (g *Graph) Nodes() []string {
	nodes := make([]string, 0, len(g.adjacency))
	for n := range g.adjacency {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)
	return nodes
}

func (g *Graph) addEdge(a, b string) {
	if a == b {
		return
	}
	g.adjacency[a][b] = struct{}{}
	g.adjacency[b][a] = struct{}{}
}

// Builder scans a repository and produces its dependency graph using a
// set of per-language resolvers.
type Builder struct {
	resolvers   []Resolver
	maxFileSize int64
	logger      *slog.Logger
}

// NewBuilder creates a builder with the standard resolvers (Python,
// JavaScript/TypeScript, Go). maxFileSize must match the ceiling the
// index was chunked with so both see the same node set; zero or less
// uses the default.
func NewBuilder(maxFileSize int64, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	if maxFileSize <= 0 {
		maxFileSize = chunker.DefaultMaxFileSize
	}
	return &Builder{
		resolvers: []Resolver{
			PythonResolver{},
			JavaScriptResolver{},
			GoResolver{},
		},
		maxFileSize: maxFileSize,
		logger:      logger,
	}
}

// Build walks repoRoot, collects file nodes, then resolves each file's
// import candidates against the collected node set. File contents are
// never assumed to be syntactically valid; a candidate that resolves to
// no node is dropped silently.
func (b *Builder) Build(repoRoot string) (*Graph, error) {
	walker := chunker.NewWalker(repoRoot, b.maxFileSize, b.logger)
	paths, err := walker.Walk()
	if err != nil {
		return nil, err
	}

	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)

	g := &Graph{adjacency: make(map[string]map[string]struct{}, len(sorted))}
	for _, p := range sorted {
		g.adjacency[p] = make(map[string]struct{})
	}

	for _, path := range sorted {
		resolver := b.resolverFor(path)
		if resolver == nil {
			continue
		}
		content, err := os.ReadFile(filepath.Join(repoRoot, filepath.FromSlash(path)))
		if err != nil {
			b.logger.Warn("skipping unreadable file in graph build", "path", path, "error", err)
			continue
		}
		for _, candidate := range resolver.Candidates(path, string(content)) {
			if target, ok := resolveCandidate(candidate, sorted, g.adjacency); ok {
				g.addEdge(path, target)
			}
		}
	}

	return g, nil
}

func (b *Builder) resolverFor(path string) Resolver {
	ext := strings.ToLower(filepath.Ext(path))
	for _, r := range b.resolvers {
		if r.Handles(ext) {
			return r
		}
	}
	return nil
}

// resolveCandidate matches a candidate against the known node set.
// A node matches only if its path equals one of the candidate's guesses
// or ends with "/" + guess: full final-segment matching, which avoids
// binding "utils.py" to "other_utils.py". Nodes are probed in sorted
// order so resolution is deterministic when several nodes share a
// suffix.
func resolveCandidate(c Candidate, sorted []string, nodes map[string]map[string]struct{}) (string, bool) {
	for _, guess := range c.Guesses() {
		if _, ok := nodes[guess]; ok {
			return guess, true
		}
		suffix := "/" + guess
		for _, node := range sorted {
			if strings.HasSuffix(node, suffix) {
				return node, true
			}
		}
	}
	return "", false
}
