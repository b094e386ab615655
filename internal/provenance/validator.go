// Package provenance checks LLM-generated mermaid diagrams against the
// file paths actually supplied as context, annotating references that
// cannot be verified. Blocks are annotated in place, never deleted, so
// the caller decides whether to surface or suppress warnings.
package provenance

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gtext "github.com/yuin/goldmark/text"

	"github.com/codescout/codescout/internal/chunker"
)

var (
	// pathLabelPattern matches file-path-looking labels inside node
	// label brackets or parentheses, e.g. [backend/main.py].
	pathLabelPattern = regexp.MustCompile(`[\[(]([\w/.-]+\.\w+)[\])]`)

	// citationPattern matches path:start-end citations in prose.
	citationPattern = regexp.MustCompile(`\b[\w./-]+:\d+-\d+\b`)
)

// mermaidKeywords are tokens that are diagram syntax, not node ids.
var mermaidKeywords = map[string]struct{}{
	"graph":           {},
	"flowchart":       {},
	"sequenceDiagram": {},
	"subgraph":        {},
	"end":             {},
	"participant":     {},
	"TD":              {},
	"LR":              {},
	"RL":              {},
	"BT":              {},
}

// KnownPaths builds the verification vocabulary from the fragments that
// were supplied as model context.
func KnownPaths(fragments []chunker.Fragment) map[string]struct{} {
	paths := make(map[string]struct{}, len(fragments))
	for _, f := range fragments {
		paths[f.Path] = struct{}{}
	}
	return paths
}

// Validate scans generated text for mermaid diagram blocks, checks
// baseline syntax and compares file-path labels against knownPaths.
// Offending blocks gain an inline warning after their closing fence;
// text without mermaid blocks passes through unchanged.
func Validate(text string, knownPaths map[string]struct{}) string {
	if !strings.Contains(text, "```mermaid") {
		return text
	}

	src := []byte(text)
	doc := goldmark.New().Parser().Parse(gtext.NewReader(src))

	type annotation struct {
		pos int
		msg string
	}
	var annotations []annotation

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || n.Kind() != ast.KindFencedCodeBlock {
			return ast.WalkContinue, nil
		}
		fence := n.(*ast.FencedCodeBlock)
		if fence.Info == nil || !strings.EqualFold(string(fence.Info.Text(src)), "mermaid") {
			return ast.WalkContinue, nil
		}

		content, end := fenceContent(fence, src)
		if msg := checkBlock(content, knownPaths); msg != "" {
			annotations = append(annotations, annotation{pos: end, msg: msg})
		}
		return ast.WalkContinue, nil
	})

	if len(annotations) == 0 {
		return text
	}

	var out bytes.Buffer
	prev := 0
	for _, a := range annotations {
		out.Write(src[prev:a.pos])
		out.WriteString(a.msg)
		prev = a.pos
	}
	out.Write(src[prev:])
	return out.String()
}

// HasCitations reports whether text carries at least one path:start-end
// citation. Computed as a soft signal; absence is not an error.
func HasCitations(text string) bool {
	return citationPattern.MatchString(text)
}

// fenceContent extracts a fenced block's body and the byte offset just
// past its closing fence line, where annotations are inserted.
func fenceContent(fence *ast.FencedCodeBlock, src []byte) (string, int) {
	var buf bytes.Buffer
	lines := fence.Lines()
	// Seed from the info string so a block with no content lines still
	// searches for its closing fence past the opening one.
	stop := 0
	if fence.Info != nil {
		stop = fence.Info.Segment.Stop
	}
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(src))
		stop = seg.Stop
	}

	// The closing fence follows the last content line; annotate after
	// the end of that line (or at EOF for an unterminated block).
	rest := src[stop:]
	if i := bytes.Index(rest, []byte("```")); i >= 0 {
		end := stop + i + 3
		if j := bytes.IndexByte(src[end:], '\n'); j >= 0 {
			end += j + 1
		} else {
			end = len(src)
		}
		return buf.String(), end
	}
	return buf.String(), len(src)
}

// checkBlock validates one mermaid block, returning an annotation
// message or empty when the block is clean.
func checkBlock(content string, knownPaths map[string]struct{}) string {
	if !isMermaidValid(content) {
		return "\n> ⚠️ Mermaid validation failed: expected `graph TD`/`graph LR`/`flowchart`/`sequenceDiagram` with single-word alphanumeric/underscore node IDs.\n"
	}

	var fabricated []string
	seen := make(map[string]struct{})
	for _, m := range pathLabelPattern.FindAllStringSubmatch(content, -1) {
		label := m[1]
		if _, dup := seen[label]; dup {
			continue
		}
		seen[label] = struct{}{}
		if _, ok := knownPaths[label]; !ok {
			fabricated = append(fabricated, label)
		}
	}
	if len(fabricated) > 0 {
		sort.Strings(fabricated)
		return fmt.Sprintf("\n> ⚠️ Diagram references files not present in the retrieved context: %s. This may be a fabrication.\n",
			strings.Join(fabricated, ", "))
	}
	return ""
}

// isMermaidValid checks the diagram-type header and that every
// node-identifier token is alphanumeric/underscore. Quoted strings and
// reserved keywords are exempt; bracket/paren label content is stripped
// before the check.
func isMermaidValid(content string) bool {
	var lines []string
	for _, line := range strings.Split(content, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	if len(lines) == 0 {
		return false
	}
	header := lines[0]
	if !strings.HasPrefix(header, "graph ") &&
		!strings.HasPrefix(header, "flowchart ") &&
		!strings.HasPrefix(header, "sequenceDiagram") {
		return false
	}

	arrows := strings.NewReplacer("-->", " ", "-.->", " ", "==>", " ", "---", " ", "|", " ")
	for _, line := range lines[1:] {
		if strings.HasPrefix(line, "%%") {
			continue
		}
		for _, token := range strings.Fields(arrows.Replace(line)) {
			if !validNodeToken(token) {
				return false
			}
		}
	}
	return true
}

func validNodeToken(token string) bool {
	// Keep only the id part preceding any label bracket.
	for _, sep := range []string{"[", "(", "{"} {
		if i := strings.Index(token, sep); i >= 0 {
			token = token[:i]
		}
	}
	if token == "" {
		return true
	}
	if _, ok := mermaidKeywords[token]; ok {
		return true
	}
	// Quoted content is a string label, not an identifier.
	if strings.Contains(token, `"`) {
		return true
	}
	for _, r := range token {
		if r != '_' && !isAlnum(r) {
			return false
		}
	}
	return true
}

func isAlnum(r rune) bool {
	return r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z'
}
