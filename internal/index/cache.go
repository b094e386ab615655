package index

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/codescout/codescout/internal/chunker"
)

// CacheDirName is the directory under the repository root holding
// persisted index entries.
const CacheDirName = ".codescout"

// cacheVersion guards the on-disk layout; entries written by another
// version load as cache-absent.
const cacheVersion = 1

// cacheEntry is the durable representation of an Index.
type cacheEntry struct {
	Version    int                `json:"version"`
	BuildID    string             `json:"build_id"`
	Model      string             `json:"model"`
	Collection string             `json:"collection,omitempty"`
	Fragments  []chunker.Fragment `json:"chunks"`
	Vectors    [][]float32        `json:"vectors"`
}

// Save persists idx under the fingerprint for repoRoot and cfg. The
// entry is written to a temp file and renamed so readers never observe
// a partially-written entry.
func Save(repoRoot string, cfg Config, idx *Index) error {
	dir := filepath.Join(repoRoot, CacheDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	entry := cacheEntry{
		Version:    cacheVersion,
		BuildID:    idx.BuildID,
		Model:      cfg.Model,
		Collection: idx.Collection,
		Fragments:  idx.Fragments,
		Vectors:    idx.Vectors,
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	compressed := encoder.EncodeAll(raw, nil)
	encoder.Close()

	path := entryPath(repoRoot, cfg)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, compressed, 0o644); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("publish cache entry: %w", err)
	}
	return nil
}

// Load reads the cache entry for repoRoot under cfg. A missing, corrupt
// or mismatched entry is reported as absent (nil, false), never as an
// error; the caller falls back to Build.
func Load(repoRoot string, cfg Config) (*Index, bool) {
	compressed, err := os.ReadFile(entryPath(repoRoot, cfg))
	if err != nil {
		return nil, false
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, false
	}
	defer decoder.Close()
	raw, err := decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, false
	}

	var entry cacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, false
	}
	if entry.Version != cacheVersion || entry.Model != cfg.Model {
		return nil, false
	}
	if len(entry.Fragments) != len(entry.Vectors) {
		return nil, false
	}

	return &Index{
		Fragments:  entry.Fragments,
		Vectors:    entry.Vectors,
		Collection: entry.Collection,
		BuildID:    entry.BuildID,
	}, true
}

// Invalidate deletes all persisted entries for repoRoot. The next load
// misses and triggers a rebuild from current disk state.
func Invalidate(repoRoot string) error {
	dir := filepath.Join(repoRoot, CacheDirName)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove cache dir: %w", err)
	}
	return nil
}

func entryPath(repoRoot string, cfg Config) string {
	return filepath.Join(repoRoot, CacheDirName, cfg.Fingerprint(repoRoot)+".json.zst")
}
