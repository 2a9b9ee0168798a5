// Client - non-streaming chat completions through the provider registry.

package llm

import (
	"context"
	"log/slog"

	"github.com/richinex/llmbridge/internal/slogx"
)

// Client runs non-streaming completions against the provider selected by a
// flag value, resolving a fresh provider on every call.
type Client struct {
	registry     *Registry
	providerFlag string
}

// NewClient creates a client bound to a registry and provider flag. An
// empty flag defers to LLM_PROVIDER and then the default provider.
func NewClient(registry *Registry, providerFlag string) *Client {
	return &Client{registry: registry, providerFlag: providerFlag}
}

// ChatCompletion sends messages and returns the completion text. An empty
// model selects the provider's default.
func (c *Client) ChatCompletion(ctx context.Context, model string, messages []ChatMessage) (string, error) {
	provider, err := c.registry.Resolve(c.providerFlag)
	if err != nil {
		slog.Error("failed to resolve provider", slogx.Error(err))
		return "", err
	}

	content, err := provider.CreateChatCompletion(ctx, ChatCompletionParams{
		Model:    model,
		Messages: messages,
	})
	if err != nil {
		slog.Error("chat completion request failed", slogx.Provider(provider.Name()), slogx.Error(err))
		return "", err
	}
	return content, nil
}
