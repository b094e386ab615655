// Package answer turns retrieved context and a question into a
// provenance-validated response. The language model itself is an
// external collaborator behind the Completer interface.
package answer

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
)

// Completer is the opaque LLM boundary: prompt in, text out.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// chatModel is the model used for answer generation.
const chatModel = openai.ChatModelGPT4o

// OpenAICompleter implements Completer over the OpenAI chat API.
type OpenAICompleter struct {
	client *openai.Client
}

// NewOpenAICompleter creates a completer over an existing client.
func NewOpenAICompleter(client *openai.Client) *OpenAICompleter {
	return &OpenAICompleter{client: client}
}

// Complete sends the prompt as a single user message.
func (c *OpenAICompleter) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model: chatModel,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	return resp.Choices[0].Message.Content, nil
}
