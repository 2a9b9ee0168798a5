// OpenAI-compatible Provider implementation using go-openai library.
//
// Information Hiding:
// - API endpoint and authentication
// - Request/response format for the Chat Completions API
// - Per-backend request knobs (OpenAI, Groq, DeepSeek)
// - Streaming via go-openai library

package llm

import (
	"context"
	"log/slog"

	"github.com/richinex/llmbridge/internal/slogx"
	openai "github.com/sashabaranov/go-openai"
)

const (
	openaiBaseURL   = "https://api.openai.com/v1"
	groqBaseURL     = "https://api.groq.com/openai/v1"
	deepseekBaseURL = "https://api.deepseek.com/v1"
)

// OpenAIProvider implements the Provider interface for any backend that
// speaks the OpenAI Chat Completions API.
type OpenAIProvider struct {
	client       *openai.Client
	name         string
	defaultModel string
	maxTokens    int

	// parallelToolCalls is sent as parallel_tool_calls when non-nil.
	parallelToolCalls any
	// toolChoice is sent as tool_choice when non-nil.
	toolChoice any
	// legacyMaxTokens sends max_tokens instead of max_completion_tokens.
	legacyMaxTokens bool
}

// NewOpenAIProvider creates the OpenAI provider. Parallel tool calls are
// disabled so each response carries at most one call.
func NewOpenAIProvider(cfg ProviderConfig) *OpenAIProvider {
	p := newCompatProvider(ProviderOpenAI.String(), ModelOpenAIO4Mini, openaiBaseURL, cfg)
	p.parallelToolCalls = false
	return p
}

// NewGroqProvider creates the Groq provider.
func NewGroqProvider(cfg ProviderConfig) *OpenAIProvider {
	p := newCompatProvider(ProviderGroq.String(), ModelGroqLlama33Versatile, groqBaseURL, cfg)
	p.toolChoice = "auto"
	return p
}

// NewDeepSeekProvider creates the DeepSeek provider.
func NewDeepSeekProvider(cfg ProviderConfig) *OpenAIProvider {
	p := newCompatProvider(ProviderDeepSeek.String(), ModelDeepSeekChat, deepseekBaseURL, cfg)
	p.legacyMaxTokens = true
	return p
}

func newCompatProvider(name, defaultModel, baseURL string, cfg ProviderConfig) *OpenAIProvider {
	config := openai.DefaultConfig(cfg.APIKey)
	config.BaseURL = baseURL
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	config.HTTPClient = newHTTPClient(cfg)

	return &OpenAIProvider{
		client:       openai.NewClientWithConfig(config),
		name:         name,
		defaultModel: defaultModel,
		maxTokens:    int(cfg.MaxTokens),
	}
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return p.name
}

// DefaultModel returns the provider's default model.
func (p *OpenAIProvider) DefaultModel() string {
	return p.defaultModel
}

// ListModels returns the backend's openai.ModelsList.
func (p *OpenAIProvider) ListModels(ctx context.Context) (any, error) {
	return p.client.ListModels(ctx)
}

// CreateStream starts a streaming chat completion with the requested tools
// advertised.
func (p *OpenAIProvider) CreateStream(ctx context.Context, params StreamParams) (*EventStream, error) {
	req := p.request(params.Model, ToChatMessages(params.Input, params.Instructions))
	req.Stream = true
	if tools := params.ToolDefinitions(); len(tools) > 0 {
		// Backends reject tool options on requests without tools.
		req.Tools = convertToOpenAITools(tools)
		req.ParallelToolCalls = p.parallelToolCalls
		req.ToolChoice = p.toolChoice
	}
	if params.Reasoning != nil && params.Reasoning.Effort != "" {
		req.ReasoningEffort = params.Reasoning.Effort
	}

	slog.Debug("creating stream",
		slogx.Provider(p.name),
		slog.String("model", req.Model),
		slog.Int("messages", len(req.Messages)))

	stream, err := p.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, err
	}
	return NewEventStream(p.name, stream), nil
}

// CreateChatCompletion sends a non-streaming chat completion request.
func (p *OpenAIProvider) CreateChatCompletion(ctx context.Context, params ChatCompletionParams) (string, error) {
	req := p.request(params.Model, params.Messages)

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		slog.Error("chat completion failed", slogx.Provider(p.name), slogx.Error(err))
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *OpenAIProvider) request(model string, messages []ChatMessage) openai.ChatCompletionRequest {
	if model == "" {
		model = p.defaultModel
	}
	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: convertToOpenAIMessages(messages),
	}
	if p.legacyMaxTokens {
		req.MaxTokens = p.maxTokens
	} else {
		req.MaxCompletionTokens = p.maxTokens
	}
	return req
}

// convertToOpenAIMessages handles plain turns, replayed tool calls and
// tool responses.
func convertToOpenAIMessages(messages []ChatMessage) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		oaiMsg := openai.ChatCompletionMessage{
			Role:       msg.Role,
			Content:    msg.Content,
			Name:       msg.Name,
			ToolCallID: msg.ToolCallID,
		}
		for _, tc := range msg.ToolCalls {
			oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		result[i] = oaiMsg
	}
	return result
}

// convertToOpenAITools converts tool definitions to OpenAI format.
func convertToOpenAITools(tools []ToolDefinition) []openai.Tool {
	result := make([]openai.Tool, len(tools))
	for i, t := range tools {
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		}
	}
	return result
}

// Verify OpenAIProvider implements Provider
var _ Provider = (*OpenAIProvider)(nil)
