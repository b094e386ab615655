package provenance

import (
	"strings"
	"testing"

	"github.com/codescout/codescout/internal/chunker"
)

func known(paths ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		m[p] = struct{}{}
	}
	return m
}

func TestValidate_NoMermaidPassthrough(t *testing.T) {
	text := "The handler lives in backend/main.py:10-42 and dispatches requests."
	if got := Validate(text, known("backend/main.py")); got != text {
		t.Errorf("text without mermaid blocks must pass through unchanged, got %q", got)
	}
}

// TestValidate_FabricatedLabelAnnotated covers the contract scenario:
// a node labeled with a path absent from the context gets a warning.
func TestValidate_FabricatedLabelAnnotated(t *testing.T) {
	text := "Architecture:\n\n```mermaid\ngraph TD\n  A[missing/file.py] --> B[backend/main.py]\n```\n\nDone.\n"

	got := Validate(text, known("backend/main.py"))

	if !strings.Contains(got, "missing/file.py") || !strings.Contains(got, "fabrication") {
		t.Errorf("expected fabrication warning naming missing/file.py, got:\n%s", got)
	}
	if !strings.Contains(got, "```mermaid\ngraph TD") {
		t.Error("diagram block must be preserved, not deleted")
	}
	if !strings.Contains(got, "Done.") {
		t.Error("text after the block must be preserved")
	}
	// The warning lands after the block, not inside it.
	block := got[strings.Index(got, "```mermaid"):]
	closing := strings.Index(block[10:], "```") + 10
	if strings.Contains(block[:closing], "fabrication") {
		t.Error("warning must follow the closing fence")
	}
}

func TestValidate_KnownLabelUnannotated(t *testing.T) {
	text := "```mermaid\ngraph LR\n  A[backend/main.py] --> B[services/retrieval.py]\n```\n"

	got := Validate(text, known("backend/main.py", "services/retrieval.py"))
	if got != text {
		t.Errorf("diagram with only known paths should be untouched, got:\n%s", got)
	}
}

func TestValidate_BadHeaderAnnotated(t *testing.T) {
	text := "```mermaid\npie title Nope\n  \"a\": 1\n```\n"

	got := Validate(text, known())
	if !strings.Contains(got, "Mermaid validation failed") {
		t.Errorf("unsupported diagram type should be flagged, got:\n%s", got)
	}
	if !strings.Contains(got, "pie title Nope") {
		t.Error("invalid block must still be preserved")
	}
}

func TestValidate_BadNodeTokenAnnotated(t *testing.T) {
	text := "```mermaid\ngraph TD\n  bad-id! --> B\n```\n"

	got := Validate(text, known())
	if !strings.Contains(got, "Mermaid validation failed") {
		t.Errorf("non-alphanumeric node id should be flagged, got:\n%s", got)
	}
}

func TestValidate_EmptyBlockAnnotatedAfterFence(t *testing.T) {
	text := "intro\n\n```mermaid\n```\n\nDone.\n"

	got := Validate(text, known())
	if !strings.Contains(got, "Mermaid validation failed") {
		t.Errorf("empty diagram should be flagged, got:\n%s", got)
	}
	// The warning lands after the closing fence, never between the
	// fences of the (empty) block.
	if !strings.Contains(got, "```mermaid\n```") {
		t.Errorf("empty block must be preserved intact, got:\n%s", got)
	}
	warn := strings.Index(got, "Mermaid validation failed")
	closing := strings.Index(got, "```mermaid\n```") + len("```mermaid\n```")
	if warn < closing {
		t.Errorf("warning must follow the closing fence, got:\n%s", got)
	}
	if !strings.Contains(got, "Done.") {
		t.Error("text after the block must be preserved")
	}
}

func TestValidate_KeywordsAndCommentsAccepted(t *testing.T) {
	text := "```mermaid\ngraph TD\n  %% wiring\n  subgraph api\n    handler --> router\n  end\n```\n"

	got := Validate(text, known())
	if got != text {
		t.Errorf("keywords and comments are valid syntax, got:\n%s", got)
	}
}

func TestValidate_MultipleBlocks(t *testing.T) {
	text := "```mermaid\ngraph TD\n  A[a.py] --> B[b.py]\n```\n\nmiddle\n\n```mermaid\ngraph LR\n  C[ghost.py] --> D[a.py]\n```\n"

	got := Validate(text, known("a.py", "b.py"))

	if strings.Count(got, "fabrication") != 1 {
		t.Errorf("exactly one block should be annotated, got:\n%s", got)
	}
	if !strings.Contains(got, "ghost.py") {
		t.Error("warning should name the fabricated path")
	}
	if !strings.Contains(got, "middle") {
		t.Error("prose between blocks must survive")
	}
}

func TestHasCitations(t *testing.T) {
	if !HasCitations("see backend/main.py:10-42 for details") {
		t.Error("expected citation to be detected")
	}
	if HasCitations("no citations here") {
		t.Error("expected no citation")
	}
}

func TestKnownPaths(t *testing.T) {
	fragments := []chunker.Fragment{
		{Path: "a.py"}, {Path: "a.py"}, {Path: "b/c.ts"},
	}
	paths := KnownPaths(fragments)
	if len(paths) != 2 {
		t.Fatalf("expected 2 unique paths, got %d", len(paths))
	}
	if _, ok := paths["b/c.ts"]; !ok {
		t.Error("missing b/c.ts")
	}
}
