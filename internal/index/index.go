// Package index builds and persists the aligned pair of chunk metadata
// and embedding vectors for one repository snapshot under one embedding
// configuration.
package index

import (
	"crypto/sha256"
	"fmt"

	"github.com/codescout/codescout/internal/chunker"
	"github.com/codescout/codescout/internal/embedding"
)

// Index is the searchable product of a build: fragments and their
// vectors, aligned positionally. An Index is immutable once built;
// rebuilding produces a new Index.
type Index struct {
	Fragments []chunker.Fragment
	Vectors   [][]float32

	// Collection names the external vector-store collection mirroring
	// this index, when one is configured. Empty means in-memory only.
	Collection string

	// BuildID identifies the build that produced this index.
	BuildID string
}

// Empty reports whether the index holds no fragments, the normal
// "nothing ingested yet" case.
func (idx *Index) Empty() bool {
	return idx == nil || len(idx.Fragments) == 0
}

// KnownPaths returns the set of file paths present in the index, the
// vocabulary provenance validation checks citations against.
func (idx *Index) KnownPaths() map[string]struct{} {
	if idx == nil {
		return nil
	}
	paths := make(map[string]struct{})
	for _, f := range idx.Fragments {
		paths[f.Path] = struct{}{}
	}
	return paths
}

// Config is the indexing configuration that participates in cache
// addressing. Two configs with any differing field never share a cache
// entry.
type Config struct {
	RepoURL string
	Model   string
	Params  chunker.Params
}

// DefaultConfig returns the standard indexing configuration.
func DefaultConfig() Config {
	return Config{
		Model:  embedding.Model,
		Params: chunker.DefaultParams(),
	}
}

// Fingerprint derives the deterministic cache key for repoRoot under
// this configuration. Stale file content is deliberately not part of
// the key; callers force a rebuild when sources change.
func (c Config) Fingerprint(repoRoot string) string {
	payload := fmt.Sprintf("%s:%s:%s:%d:%d",
		repoRoot, c.RepoURL, c.Model, c.Params.MaxLines, c.Params.OverlapLines)
	return fmt.Sprintf("%x", sha256.Sum256([]byte(payload)))
}

// CollectionName derives the vector-store collection mirroring the
// cache entry for repoRoot.
func (c Config) CollectionName(repoRoot string) string {
	return "repo_" + c.Fingerprint(repoRoot)
}
