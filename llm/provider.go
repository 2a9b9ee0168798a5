// Package llm provides LLM provider abstractions.
//
// LLM Provider interface - the abstract interface for LLM providers.
// Each provider implementation hides:
// - API client initialization and authentication
// - Request/response format conversion
// - Translation of the native stream into chat-completion chunks

package llm

import (
	"context"
)

// Provider defines the abstract interface for LLM providers.
// Implementations hide provider-specific details while exposing
// one streaming surface and one non-streaming surface.
type Provider interface {
	// Name returns the provider identifier (for logging/debugging).
	Name() string

	// DefaultModel returns the model used when the caller names none.
	// It is static and performs no I/O.
	DefaultModel() string

	// ListModels returns the backend's native model-list response.
	ListModels(ctx context.Context) (any, error)

	// CreateStream starts a streaming completion and returns the
	// normalized event stream. The caller must Close it.
	CreateStream(ctx context.Context, params StreamParams) (*EventStream, error)

	// CreateChatCompletion runs a non-streaming completion and returns the
	// first choice's text, or "" when the backend returned no content.
	CreateChatCompletion(ctx context.Context, params ChatCompletionParams) (string, error)
}
