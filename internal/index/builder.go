package index

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/codescout/codescout/internal/chunker"
	"github.com/codescout/codescout/internal/embedding"
	"github.com/codescout/codescout/internal/vectorstore"
)

// Builder turns a repository into an Index: chunk every eligible file,
// embed every chunk in one batched call, normalize, and optionally
// mirror the vectors into an external backend.
type Builder struct {
	config   Config
	embedder embedding.Embedder
	backend  vectorstore.Backend
	logger   *slog.Logger
}

// NewBuilder creates a builder. backend may be nil, in which case the
// index is searched in memory only.
func NewBuilder(config Config, embedder embedding.Embedder, backend vectorstore.Backend, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		config:   config,
		embedder: embedder,
		backend:  backend,
		logger:   logger,
	}
}

// Build chunks and embeds repoRoot. A repository with zero eligible
// files yields a valid empty Index, not an error; an unavailable
// embedding model is a hard failure, since a silently empty index would
// be worse.
func (b *Builder) Build(ctx context.Context, repoRoot string) (*Index, error) {
	fragments, err := chunker.ChunkRepo(repoRoot, b.config.Params, b.logger)
	if err != nil {
		return nil, fmt.Errorf("chunk repository: %w", err)
	}

	idx := &Index{
		Fragments: fragments,
		Vectors:   make([][]float32, 0, len(fragments)),
		BuildID:   uuid.New().String(),
	}
	if len(fragments) == 0 {
		b.logger.Info("no eligible files, built empty index", "repo", repoRoot)
		return idx, nil
	}

	// Prefix each chunk with its path to bias the embedding toward
	// file identity.
	texts := make([]string, len(fragments))
	for i, f := range fragments {
		texts[i] = f.Path + "\n" + f.Text
	}

	vectors, err := b.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed %d chunks: %w", len(texts), err)
	}
	if len(vectors) != len(fragments) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(fragments))
	}
	idx.Vectors = vectors

	if b.backend != nil {
		idx.Collection = b.config.CollectionName(repoRoot)
		if err := b.mirror(ctx, idx); err != nil {
			// The in-memory index is complete; search degrades to a
			// linear scan.
			b.logger.Warn("vector backend unavailable, continuing without mirror",
				"collection", idx.Collection, "error", err)
			idx.Collection = ""
		}
	}

	b.logger.Info("index built",
		"repo", repoRoot, "chunks", len(idx.Fragments), "build_id", idx.BuildID)
	return idx, nil
}

// mirror upserts the index's vectors into the backend, addressed by
// chunk position.
func (b *Builder) mirror(ctx context.Context, idx *Index) error {
	points := make([]vectorstore.Point, len(idx.Fragments))
	for i, f := range idx.Fragments {
		points[i] = vectorstore.Point{
			ID:     uint64(i),
			Vector: idx.Vectors[i],
			Path:   f.Path,
		}
	}
	return b.backend.Upsert(ctx, idx.Collection, points)
}
