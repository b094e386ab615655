package graph

import (
	"path"
	"regexp"
	"strings"
)

// Kind tags how an import candidate should be resolved to file nodes.
type Kind int

const (
	// KindModule is a dotted module import (Python "import a.b").
	KindModule Kind = iota
	// KindRelative is a path-relative import (JS/TS "from './x'").
	KindRelative
	// KindPackage is a slash-separated package import path (Go).
	KindPackage
)

// Candidate is one import target extracted from a file, tagged with the
// resolution strategy its language uses.
type Candidate struct {
	Kind       Kind
	Target     string
	Extensions []string
}

// Guesses expands the candidate into the file paths it could denote.
// Every guess is matched against the node set with the shared
// final-segment discipline; false negatives are acceptable.
func (c Candidate) Guesses() []string {
	switch c.Kind {
	case KindModule:
		base := strings.ReplaceAll(c.Target, ".", "/")
		guesses := make([]string, 0, 2*len(c.Extensions))
		for _, ext := range c.Extensions {
			guesses = append(guesses, base+ext, base+"/__init__"+ext)
		}
		return guesses
	case KindRelative:
		base := path.Base(c.Target)
		guesses := make([]string, 0, len(c.Extensions))
		for _, ext := range c.Extensions {
			guesses = append(guesses, base+ext)
		}
		return guesses
	case KindPackage:
		pkg := path.Base(c.Target)
		guesses := make([]string, 0, 2*len(c.Extensions))
		for _, ext := range c.Extensions {
			guesses = append(guesses, pkg+ext, pkg+"/"+pkg+ext)
		}
		return guesses
	}
	return nil
}

// Resolver extracts import candidates for one language family. No full
// parse is attempted: a lightweight pattern over raw content suffices,
// and content is never assumed to be valid source.
type Resolver interface {
	Handles(ext string) bool
	Candidates(path, content string) []Candidate
}

var pythonImportPattern = regexp.MustCompile(`(?m)^(?:from|import)\s+([\w.]+)`)

// PythonResolver extracts "import x" and "from x import y" targets.
type PythonResolver struct{}

func (PythonResolver) Handles(ext string) bool { return ext == ".py" }

func (PythonResolver) Candidates(_, content string) []Candidate {
	var candidates []Candidate
	for _, m := range pythonImportPattern.FindAllStringSubmatch(content, -1) {
		candidates = append(candidates, Candidate{
			Kind:       KindModule,
			Target:     m[1],
			Extensions: []string{".py"},
		})
	}
	return candidates
}

var jsImportPattern = regexp.MustCompile(`from\s+['"]([^'"]+)['"]`)

// JavaScriptResolver extracts relative "from './x'" targets for the
// JS/TS family. Bare module specifiers (npm packages) are ignored.
type JavaScriptResolver struct{}

func (JavaScriptResolver) Handles(ext string) bool {
	switch ext {
	case ".js", ".jsx", ".ts", ".tsx":
		return true
	}
	return false
}

func (JavaScriptResolver) Candidates(_, content string) []Candidate {
	var candidates []Candidate
	for _, m := range jsImportPattern.FindAllStringSubmatch(content, -1) {
		if !strings.HasPrefix(m[1], ".") {
			continue
		}
		candidates = append(candidates, Candidate{
			Kind:       KindRelative,
			Target:     m[1],
			Extensions: []string{".ts", ".tsx", ".js", ".jsx"},
		})
	}
	return candidates
}

var goQuotedPattern = regexp.MustCompile(`"([^"]+)"`)

// GoResolver extracts quoted import paths from single import lines and
// import blocks. The final path segment is guessed as a file name,
// which finds the common package layout where a package directory
// contains a file named after it.
type GoResolver struct{}

func (GoResolver) Handles(ext string) bool { return ext == ".go" }

func (GoResolver) Candidates(_, content string) []Candidate {
	var candidates []Candidate
	inBlock := false
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case inBlock:
			if trimmed == ")" {
				inBlock = false
				continue
			}
			candidates = appendGoCandidate(candidates, trimmed)
		case strings.HasPrefix(trimmed, "import ("):
			inBlock = true
		case strings.HasPrefix(trimmed, "import "):
			candidates = appendGoCandidate(candidates, trimmed)
		}
	}
	return candidates
}

func appendGoCandidate(candidates []Candidate, line string) []Candidate {
	m := goQuotedPattern.FindStringSubmatch(line)
	if m == nil {
		return candidates
	}
	return append(candidates, Candidate{
		Kind:       KindPackage,
		Target:     m[1],
		Extensions: []string{".go"},
	})
}
