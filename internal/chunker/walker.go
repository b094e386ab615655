package chunker

import (
	"bufio"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// DefaultIgnorePatterns prunes version-control metadata, dependency
// directories, build output and virtual environments during traversal.
var DefaultIgnorePatterns = []string{
	".git",
	"node_modules",
	"__pycache__",
	".venv",
	"venv",
	"dist",
	"build",
	"vendor",
	"target",
	".idea",
	".vscode",
	".codescout",
	"repomix-output.txt",
	"repomix-output.xml",
}

// Walker discovers eligible files under a repository root, pruning
// excluded directories at traversal time rather than per file.
type Walker struct {
	root    string
	matcher gitignore.IgnoreParser
	maxSize int64
	logger  *slog.Logger
}

// NewWalker builds a walker for repoRoot. Patterns from the repository's
// root .gitignore are honored in addition to the default prune list.
func NewWalker(repoRoot string, maxFileSize int64, logger *slog.Logger) *Walker {
	if logger == nil {
		logger = slog.Default()
	}
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}

	patterns := make([]string, 0, len(DefaultIgnorePatterns)+8)
	patterns = append(patterns, DefaultIgnorePatterns...)
	patterns = append(patterns, readGitignore(filepath.Join(repoRoot, ".gitignore"))...)

	return &Walker{
		root:    repoRoot,
		matcher: gitignore.CompileIgnoreLines(patterns...),
		maxSize: maxFileSize,
		logger:  logger,
	}
}

// Walk returns the relative paths of all eligible files, in traversal
// order. Unreadable entries are skipped, never fatal.
func (w *Walker) Walk() ([]string, error) {
	var paths []string

	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.logger.Warn("skipping unreadable entry", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(w.root, path)
		if err != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if w.matcher.MatchesPath(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			w.logger.Warn("skipping unstattable file", "path", rel, "error", err)
			return nil
		}
		if info.Size() > w.maxSize {
			w.logger.Debug("skipping oversized file", "path", rel, "size", info.Size())
			return nil
		}

		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}

// ChunkRepo walks repoRoot and chunks every eligible file. A file that
// cannot be read or converted yields no fragments; the build continues.
func ChunkRepo(repoRoot string, p Params, logger *slog.Logger) ([]Fragment, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	walker := NewWalker(repoRoot, p.MaxFileSize, logger)
	paths, err := walker.Walk()
	if err != nil {
		return nil, err
	}

	var fragments []Fragment
	for _, rel := range paths {
		text, err := readFileText(filepath.Join(repoRoot, rel), rel)
		if err != nil {
			logger.Warn("skipping file", "path", rel, "error", err)
			continue
		}
		chunks, err := Chunk(rel, text, p)
		if err != nil {
			return nil, err
		}
		fragments = append(fragments, chunks...)
	}
	return fragments, nil
}

// readFileText loads a file as UTF-8 text, converting known binary
// formats with extractable text first.
func readFileText(fullPath, relPath string) (string, error) {
	if strings.EqualFold(filepath.Ext(relPath), ".pdf") {
		return extractPDFText(fullPath)
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// readGitignore reads non-comment pattern lines; a missing file yields
// no patterns.
func readGitignore(path string) []string {
	file, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}
