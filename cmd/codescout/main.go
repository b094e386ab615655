// Package main provides the codescout CLI for indexing and querying
// repositories.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/codescout/codescout/internal/answer"
	"github.com/codescout/codescout/internal/chunker"
	"github.com/codescout/codescout/internal/embedding"
	"github.com/codescout/codescout/internal/graph"
	"github.com/codescout/codescout/internal/index"
	"github.com/codescout/codescout/internal/rerank"
	"github.com/codescout/codescout/internal/retrieval"
	"github.com/codescout/codescout/internal/vectorstore"
)

var (
	flagRepo        string
	flagRepoURL     string
	flagMaxLines    int
	flagOverlap     int
	flagMaxFileSize int64
	flagTopK        int
	flagTokenBudget int
	flagRebuild     bool
)

var rootCmd = &cobra.Command{
	Use:   "codescout",
	Short: "Repository question answering from the command line",
	Long: `Chunks a repository, embeds it, and answers questions about it
with file-and-line citations.

Environment variables:
  OPENAI_API_KEY OpenAI API key for embeddings and answers (required)
  QDRANT_HOST    Qdrant hostname (default: localhost)
  QDRANT_PORT    Qdrant gRPC port (default: 6334)

Qdrant is optional: when unreachable, search falls back to an
in-memory scan over the local index.`,
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build (or refresh) the index for a repository",
	RunE:  runIndex,
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Retrieve the most relevant code fragments for a query",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question about the repository with citations",
	Args:  cobra.ExactArgs(1),
	RunE:  runAsk,
}

var graphCmd = &cobra.Command{
	Use:   "graph [file]",
	Short: "Show the import-adjacency graph, or one file's neighbors",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runGraph,
}

var invalidateCmd = &cobra.Command{
	Use:   "invalidate",
	Short: "Delete the cached index for a repository",
	RunE:  runInvalidate,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagRepo, "repo", ".", "repository root to operate on")
	rootCmd.PersistentFlags().StringVar(&flagRepoURL, "repo-url", "", "origin URL recorded in the index fingerprint")
	rootCmd.PersistentFlags().IntVar(&flagMaxLines, "max-lines", 0, "maximum lines per chunk (0 = default)")
	rootCmd.PersistentFlags().IntVar(&flagOverlap, "overlap", -1, "overlapping lines between chunks (-1 = default)")
	rootCmd.PersistentFlags().Int64Var(&flagMaxFileSize, "max-file-size", 0, "per-file byte ceiling for indexing and graphing (0 = default)")
	rootCmd.PersistentFlags().BoolVar(&flagRebuild, "rebuild", false, "ignore the cached index and rebuild")

	searchCmd.Flags().IntVar(&flagTopK, "top-k", 0, "fragments to select before graph expansion (0 = default)")
	searchCmd.Flags().IntVar(&flagTokenBudget, "token-budget", 0, "token budget for packed results (0 = default)")
	askCmd.Flags().IntVar(&flagTopK, "top-k", 0, "fragments to select before graph expansion (0 = default)")
	askCmd.Flags().IntVar(&flagTokenBudget, "token-budget", 0, "token budget for packed results (0 = default)")

	rootCmd.AddCommand(indexCmd, searchCmd, askCmd, graphCmd, invalidateCmd)
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// chunkParams applies the CLI overrides to the default chunking
// parameters.
func chunkParams() chunker.Params {
	p := chunker.DefaultParams()
	if flagMaxLines > 0 {
		p.MaxLines = flagMaxLines
	}
	if flagOverlap >= 0 {
		p.OverlapLines = flagOverlap
	}
	if flagMaxFileSize > 0 {
		p.MaxFileSize = flagMaxFileSize
	}
	return p
}

func repoRoot() (string, error) {
	root, err := filepath.Abs(flagRepo)
	if err != nil {
		return "", fmt.Errorf("resolve repo path: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return "", fmt.Errorf("repo path: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("repo path %s is not a directory", root)
	}
	return root, nil
}

// connectBackend dials Qdrant from the environment. An unreachable
// backend is not fatal: the caller continues with in-memory search.
func connectBackend(ctx context.Context) *vectorstore.Qdrant {
	host := getEnv("QDRANT_HOST", "localhost")
	port := getEnvInt("QDRANT_PORT", 6334)

	q, err := vectorstore.NewQdrant(host, port, embedding.Dimension)
	if err != nil {
		slog.Warn("vector backend unavailable, using in-memory search",
			"host", host, "port", port, "error", err)
		return nil
	}
	if err := q.Health(ctx); err != nil {
		slog.Warn("vector backend unhealthy, using in-memory search",
			"host", host, "port", port, "error", err)
		_ = q.Close()
		return nil
	}
	return q
}

// loadOrBuildIndex returns the cached index when the fingerprint still
// matches, otherwise chunks and embeds the repository and caches the
// result. A failed cache write is logged, not fatal.
func loadOrBuildIndex(ctx context.Context, root string, cfg index.Config, embedder embedding.Embedder, backend *vectorstore.Qdrant) (*index.Index, error) {
	if !flagRebuild {
		if idx, ok := index.Load(root, cfg); ok {
			fmt.Printf("Loaded cached index (%d chunks)\n", len(idx.Fragments))
			return idx, nil
		}
	}

	var b vectorstore.Backend
	if backend != nil {
		collection := cfg.CollectionName(root)
		if err := backend.EnsureCollection(ctx, collection); err != nil {
			slog.Warn("could not ensure collection, skipping mirror",
				"collection", collection, "error", err)
		} else {
			b = backend
		}
	}

	idx, err := index.NewBuilder(cfg, embedder, b, slog.Default()).Build(ctx, root)
	if err != nil {
		return nil, err
	}
	if err := index.Save(root, cfg, idx); err != nil {
		slog.Warn("could not cache index", "error", err)
	}
	return idx, nil
}

func newEngine(backend *vectorstore.Qdrant, client *embedding.Client, opts retrieval.Options) *retrieval.Engine {
	embedder := embedding.NewOpenAIEmbedder(client, 0)
	scorer := rerank.NewLazy(func() (rerank.Scorer, error) {
		return rerank.NewLLMScorer(client.Client()), nil
	})
	graphs := graph.NewCache(graph.NewBuilder(chunkParams().MaxFileSize, slog.Default()), graph.DefaultCacheCapacity)

	var b vectorstore.Backend
	if backend != nil {
		b = backend
	}
	return retrieval.NewEngine(embedder, b, graphs, scorer, opts, slog.Default())
}

func engineOptions() retrieval.Options {
	return retrieval.Options{
		TopK:        flagTopK,
		TokenBudget: flagTokenBudget,
	}
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	start := time.Now()

	root, err := repoRoot()
	if err != nil {
		return err
	}
	cfg := index.Config{RepoURL: flagRepoURL, Model: embedding.Model, Params: chunkParams()}

	client, err := embedding.NewClient()
	if err != nil {
		return err
	}
	embedder := embedding.NewOpenAIEmbedder(client, 0)

	backend := connectBackend(ctx)
	if backend != nil {
		defer backend.Close()
	}

	fmt.Printf("Indexing %s...\n", root)
	idx, err := loadOrBuildIndex(ctx, root, cfg, embedder, backend)
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}

	fmt.Println()
	fmt.Println("Index ready")
	fmt.Printf("  Chunks:     %d\n", len(idx.Fragments))
	fmt.Printf("  Files:      %d\n", len(idx.KnownPaths()))
	if idx.Collection != "" {
		fmt.Printf("  Collection: %s\n", idx.Collection)
	} else {
		fmt.Println("  Collection: (in-memory only)")
	}
	fmt.Printf("  Duration:   %s\n", time.Since(start).Round(time.Millisecond))
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	query := args[0]

	root, err := repoRoot()
	if err != nil {
		return err
	}
	cfg := index.Config{RepoURL: flagRepoURL, Model: embedding.Model, Params: chunkParams()}

	client, err := embedding.NewClient()
	if err != nil {
		return err
	}
	backend := connectBackend(ctx)
	if backend != nil {
		defer backend.Close()
	}

	idx, err := loadOrBuildIndex(ctx, root, cfg, embedding.NewOpenAIEmbedder(client, 0), backend)
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}

	engine := newEngine(backend, client, engineOptions())
	fragments, err := engine.Retrieve(ctx, query, idx, root)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	if len(fragments) == 0 {
		fmt.Println("No results.")
		return nil
	}

	for i, f := range fragments {
		fmt.Printf("%d. %s:%d-%d\n", i+1, f.Path, f.StartLine, f.EndLine)
	}
	fmt.Println()
	fmt.Println(retrieval.FormatFragments(fragments))
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	question := args[0]

	root, err := repoRoot()
	if err != nil {
		return err
	}
	cfg := index.Config{RepoURL: flagRepoURL, Model: embedding.Model, Params: chunkParams()}

	client, err := embedding.NewClient()
	if err != nil {
		return err
	}
	backend := connectBackend(ctx)
	if backend != nil {
		defer backend.Close()
	}

	idx, err := loadOrBuildIndex(ctx, root, cfg, embedding.NewOpenAIEmbedder(client, 0), backend)
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}

	engine := newEngine(backend, client, engineOptions())
	assistant := answer.NewAssistant(engine, answer.NewOpenAICompleter(client.Client()), slog.Default())

	resp, err := assistant.Ask(ctx, question, idx, root, nil)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	fmt.Println(resp.Answer)
	if len(resp.Citations) > 0 {
		fmt.Println()
		fmt.Println("Sources:")
		for _, c := range resp.Citations {
			fmt.Printf("  %s:%d-%d\n", c.Path, c.StartLine, c.EndLine)
		}
	}
	return nil
}

func runGraph(cmd *cobra.Command, args []string) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}

	g, err := graph.NewBuilder(chunkParams().MaxFileSize, slog.Default()).Build(root)
	if err != nil {
		return fmt.Errorf("build graph: %w", err)
	}

	if len(args) == 1 {
		related := g.RelatedFiles(args[0])
		if len(related) == 0 {
			fmt.Printf("%s: no known neighbors\n", args[0])
			return nil
		}
		for _, r := range related {
			fmt.Println(r)
		}
		return nil
	}

	for _, node := range g.Nodes() {
		related := g.RelatedFiles(node)
		if len(related) == 0 {
			continue
		}
		fmt.Printf("%s\n", node)
		for _, r := range related {
			fmt.Printf("  -> %s\n", r)
		}
	}
	return nil
}

func runInvalidate(cmd *cobra.Command, args []string) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}
	if err := index.Invalidate(root); err != nil {
		return fmt.Errorf("invalidate index: %w", err)
	}
	fmt.Printf("Removed cached index for %s\n", root)
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		var i int
		if _, err := fmt.Sscanf(v, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}
