package rerank

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
)

// scoreModel is the chat model used for pairwise relevance scoring.
const scoreModel = openai.ChatModelGPT4oMini

// maxTextChars truncates passages before scoring; relevance judgments
// rarely need more than the opening of a chunk.
const maxTextChars = 2000

// LLMScorer scores pairs with a chat completion returning one relevance
// score per passage in JSON.
type LLMScorer struct {
	client *openai.Client
}

// NewLLMScorer creates a scorer over an existing OpenAI client.
func NewLLMScorer(client *openai.Client) *LLMScorer {
	return &LLMScorer{client: client}
}

// Score asks the model for a 0-10 relevance score per passage and
// returns them in input order.
func (s *LLMScorer) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, `Rate how relevant each passage is to the query on a 0-10 scale.

Query: %s

`, query)
	for i, text := range texts {
		if len(text) > maxTextChars {
			text = text[:maxTextChars]
		}
		fmt.Fprintf(&sb, "Passage %d:\n%s\n\n", i, text)
	}
	fmt.Fprintf(&sb, `Respond in JSON format with one score per passage, in order:
{"scores": [7.5, 2.0, ...]}

The array must contain exactly %d numbers.`, len(texts))

	resp, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(sb.String()),
		},
		Model: scoreModel,
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{
				Type: "json_object",
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("score completion failed: %w", err)
	}

	var parsed struct {
		Scores []float64 `json:"scores"`
	}
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &parsed); err != nil {
		return nil, fmt.Errorf("parse scores: %w", err)
	}
	if len(parsed.Scores) != len(texts) {
		return nil, fmt.Errorf("model returned %d scores for %d passages", len(parsed.Scores), len(texts))
	}
	return parsed.Scores, nil
}
