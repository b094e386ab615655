// Package chunker splits repository files into overlapping line-bounded
// fragments, the unit of retrieval for the rest of the system.
package chunker

import (
	"errors"
	"fmt"
	"strings"
)

// Fragment is a contiguous line range of a single file.
// StartLine and EndLine are 1-based and inclusive; Text is the trimmed
// concatenation of exactly those source lines.
type Fragment struct {
	Path      string `json:"path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Text      string `json:"text"`
}

const (
	// DefaultMaxLines is the window size used when none is configured.
	DefaultMaxLines = 200

	// DefaultOverlapLines is the number of lines shared between
	// consecutive windows.
	DefaultOverlapLines = 40

	// DefaultMaxFileSize is the size ceiling in bytes above which a file
	// is treated as binary or generated and skipped.
	DefaultMaxFileSize = 200_000
)

// ErrInvalidParams reports a chunking configuration that could never
// terminate or produce valid fragments.
var ErrInvalidParams = errors.New("invalid chunk parameters")

// Params configures line-window chunking.
type Params struct {
	MaxLines     int
	OverlapLines int
	MaxFileSize  int64
}

// DefaultParams returns the standard chunking configuration.
func DefaultParams() Params {
	return Params{
		MaxLines:     DefaultMaxLines,
		OverlapLines: DefaultOverlapLines,
		MaxFileSize:  DefaultMaxFileSize,
	}
}

// Validate checks the window/overlap relationship. Overlap must be
// non-negative and strictly smaller than the window, otherwise the walk
// below would never advance.
func (p Params) Validate() error {
	if p.MaxLines <= 0 {
		return fmt.Errorf("%w: max lines must be positive, got %d", ErrInvalidParams, p.MaxLines)
	}
	if p.OverlapLines < 0 || p.OverlapLines >= p.MaxLines {
		return fmt.Errorf("%w: overlap must satisfy 0 <= overlap < %d, got %d",
			ErrInvalidParams, p.MaxLines, p.OverlapLines)
	}
	return nil
}

// Chunk splits text into fragments of at most maxLines lines, with
// consecutive fragments sharing overlapLines lines. Every line of the
// input is covered by at least one fragment; windows that trim to empty
// are dropped. The last window may be shorter than maxLines.
func Chunk(path, text string, p Params) ([]Fragment, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	lines := splitLines(text)
	total := len(lines)

	var fragments []Fragment
	start := 0
	for start < total {
		end := min(start+p.MaxLines, total)

		chunkText := strings.TrimSpace(strings.Join(lines[start:end], "\n"))
		if chunkText != "" {
			fragments = append(fragments, Fragment{
				Path:      path,
				StartLine: start + 1,
				EndLine:   end,
				Text:      chunkText,
			})
		}

		// Reaching end-of-file terminates even when the window was
		// shorter than maxLines.
		if end == total {
			break
		}
		start = max(end-p.OverlapLines, 0)
	}

	return fragments, nil
}

// splitLines splits on newlines without introducing a phantom empty line
// for text that ends with a trailing newline.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
