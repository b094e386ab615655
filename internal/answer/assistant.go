package answer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/codescout/codescout/internal/index"
	"github.com/codescout/codescout/internal/provenance"
	"github.com/codescout/codescout/internal/retrieval"
)

// Turn is one prior exchange in a conversation.
type Turn struct {
	Role    string // "user" or "assistant"
	Content string
}

// Response carries the validated answer together with the provenance
// of every fragment that was handed to the model.
type Response struct {
	Answer    string
	Citations []retrieval.Citation
}

// Assistant answers questions about a repository using retrieved
// fragments as grounding and validates generated diagrams against the
// paths that were actually supplied.
type Assistant struct {
	engine    *retrieval.Engine
	completer Completer
	logger    *slog.Logger
}

// NewAssistant wires the retrieval engine to a completion backend.
func NewAssistant(engine *retrieval.Engine, completer Completer, logger *slog.Logger) *Assistant {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assistant{
		engine:    engine,
		completer: completer,
		logger:    logger,
	}
}

// Ask retrieves context for question, generates an answer and annotates
// any diagram references that cannot be verified against the retrieved
// paths.
func (a *Assistant) Ask(ctx context.Context, question string, idx *index.Index, repoRoot string, history []Turn) (*Response, error) {
	fragments, err := a.engine.Retrieve(ctx, question, idx, repoRoot)
	if err != nil {
		return nil, fmt.Errorf("retrieve context: %w", err)
	}

	prompt := buildPrompt(question, retrieval.FormatFragments(fragments), history)
	raw, err := a.completer.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	validated := provenance.Validate(raw, provenance.KnownPaths(fragments))
	if validated != raw {
		a.logger.Warn("answer contained unverifiable diagram references")
	}

	return &Response{
		Answer:    validated,
		Citations: retrieval.Citations(fragments),
	}, nil
}

// buildPrompt assembles the grounding context, conversation history and
// task into a single prompt.
func buildPrompt(question, context string, history []Turn) string {
	var sb strings.Builder

	sb.WriteString(`You are a senior software engineer answering questions about a codebase.

Rules:
- Answer ONLY from the provided codebase context.
- Cite exact files and lines as path:start-end for factual claims.
- For diagrams use mermaid graph TD or graph LR with single-word alphanumeric/underscore node IDs and file paths in node labels.

`)

	if context != "" {
		sb.WriteString("Codebase context:\n")
		sb.WriteString(context)
		sb.WriteString("\n\n")
	} else {
		sb.WriteString("Codebase context: (nothing retrieved)\n\n")
	}

	if len(history) > 0 {
		sb.WriteString("Conversation so far:\n")
		for _, turn := range history {
			label := "User"
			if turn.Role == "assistant" {
				label = "Assistant"
			}
			fmt.Fprintf(&sb, "%s: %s\n", label, turn.Content)
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "Question: %s\n", question)
	return sb.String()
}
