package retrieval

import (
	"fmt"
	"strings"

	"github.com/codescout/codescout/internal/chunker"
)

// FormatFragments renders fragments as delimited blocks carrying path
// and inclusive line range, so a consuming model can cite
// path:start-end.
func FormatFragments(fragments []chunker.Fragment) string {
	blocks := make([]string, 0, len(fragments))
	for _, f := range fragments {
		blocks = append(blocks, fmt.Sprintf("<FILE path=%q lines=\"%d-%d\">\n%s\n</FILE>",
			f.Path, f.StartLine, f.EndLine, f.Text))
	}
	return strings.Join(blocks, "\n\n")
}

// Citation is the provenance record of one retrieved fragment.
type Citation struct {
	Path      string `json:"path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

// Citations extracts the provenance records for a retrieved set.
func Citations(fragments []chunker.Fragment) []Citation {
	citations := make([]Citation, len(fragments))
	for i, f := range fragments {
		citations[i] = Citation{Path: f.Path, StartLine: f.StartLine, EndLine: f.EndLine}
	}
	return citations
}
