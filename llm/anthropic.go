// Anthropic Provider implementation using official anthropic-sdk-go.
//
// Information Hiding:
// - API endpoint and authentication
// - Request/response format for Anthropic Messages API
// - Translation of Messages stream events into chat-completion chunks

package llm

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	json "github.com/goccy/go-json"
	"github.com/richinex/llmbridge/internal/slogx"
	openai "github.com/sashabaranov/go-openai"
)

const defaultMaxTokens = 4096

// AnthropicProvider implements the Provider interface for Anthropic Claude.
type AnthropicProvider struct {
	client    anthropic.Client
	maxTokens int64
}

// NewAnthropicProvider creates a new Anthropic provider.
func NewAnthropicProvider(cfg ProviderConfig) *AnthropicProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(newHTTPClient(cfg)),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	for key, value := range cfg.Headers {
		opts = append(opts, option.WithHeader(key, value))
	}

	maxTokens := int64(cfg.MaxTokens)
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	return &AnthropicProvider{
		client:    anthropic.NewClient(opts...),
		maxTokens: maxTokens,
	}
}

// Name returns the provider name.
func (p *AnthropicProvider) Name() string {
	return ProviderAnthropic.String()
}

// DefaultModel returns the provider's default model.
func (p *AnthropicProvider) DefaultModel() string {
	return ModelAnthropicSonnet4
}

// ListModels returns the first page of the Models API.
func (p *AnthropicProvider) ListModels(ctx context.Context) (any, error) {
	return p.client.Models.List(ctx, anthropic.ModelListParams{})
}

// CreateStream starts a streaming Messages request with the requested tools
// advertised.
func (p *AnthropicProvider) CreateStream(ctx context.Context, params StreamParams) (*EventStream, error) {
	req := p.request(params.Model, ToChatMessages(params.Input, params.Instructions))
	req.Tools = convertToAnthropicTools(params.ToolDefinitions())

	slog.Debug("creating stream",
		slogx.Provider(p.Name()),
		slog.String("model", string(req.Model)),
		slog.Int("messages", len(req.Messages)))

	stream := p.client.Messages.NewStreaming(ctx, req)
	return NewEventStream(p.Name(), newAnthropicChunkReader(stream)), nil
}

// CreateChatCompletion sends a non-streaming Messages request.
func (p *AnthropicProvider) CreateChatCompletion(ctx context.Context, params ChatCompletionParams) (string, error) {
	message, err := p.client.Messages.New(ctx, p.request(params.Model, params.Messages))
	if err != nil {
		slog.Error("chat completion failed", slogx.Provider(p.Name()), slogx.Error(err))
		return "", err
	}

	var content strings.Builder
	for _, block := range message.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			content.WriteString(variant.Text)
		}
	}
	return content.String(), nil
}

func (p *AnthropicProvider) request(model string, messages []ChatMessage) anthropic.MessageNewParams {
	if model == "" {
		model = p.DefaultModel()
	}
	anthropicMessages, systemPrompt := convertToAnthropicMessages(messages)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: p.maxTokens,
		Messages:  anthropicMessages,
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: systemPrompt},
		}
	}
	return params
}

// convertToAnthropicMessages converts chat messages to Anthropic format,
// including replayed tool calls and tool results. The system message is
// returned separately.
func convertToAnthropicMessages(messages []ChatMessage) ([]anthropic.MessageParam, string) {
	var anthropicMessages []anthropic.MessageParam
	var systemPrompt string

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			systemPrompt = msg.Content
		case RoleUser:
			anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		case RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				anthropicMessages = append(anthropicMessages, anthropic.NewAssistantMessage(
					anthropic.NewTextBlock(msg.Content),
				))
				continue
			}
			content := anthropic.MessageParam{Role: anthropic.MessageParamRoleAssistant}
			if msg.Content != "" {
				content.Content = append(content.Content, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				var input map[string]any
				if err := json.Unmarshal([]byte(tc.Arguments), &input); err != nil || input == nil {
					input = map[string]any{}
				}
				content.Content = append(content.Content, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						ID:    tc.ID,
						Name:  tc.Name,
						Input: input,
					},
				})
			}
			anthropicMessages = append(anthropicMessages, content)
		case RoleTool:
			anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false),
			))
		}
	}

	return anthropicMessages, systemPrompt
}

// convertToAnthropicTools converts tool definitions to Anthropic format.
func convertToAnthropicTools(tools []ToolDefinition) []anthropic.ToolUnionParam {
	result := make([]anthropic.ToolUnionParam, len(tools))
	for i, t := range tools {
		properties, _ := t.Parameters["properties"].(map[string]any)
		required, _ := t.Parameters["required"].([]string)

		toolParam := anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: properties,
				Required:   required,
			},
		}
		result[i] = anthropic.ToolUnionParam{OfTool: &toolParam}
	}
	return result
}

// anthropicEventStream is the subset of the SDK's SSE stream the reader uses.
type anthropicEventStream interface {
	Next() bool
	Current() anthropic.MessageStreamEventUnion
	Err() error
	Close() error
}

// anthropicChunkReader translates Messages stream events into
// chat-completion chunks: text deltas become content, tool_use blocks and
// input_json deltas become tool-call fragments keyed by block index, and
// the stop reason becomes the finish reason.
type anthropicChunkReader struct {
	stream anthropicEventStream
}

func newAnthropicChunkReader(stream anthropicEventStream) *anthropicChunkReader {
	return &anthropicChunkReader{stream: stream}
}

func (r *anthropicChunkReader) Recv() (openai.ChatCompletionStreamResponse, error) {
	for r.stream.Next() {
		if chunk, ok := translateAnthropicEvent(r.stream.Current()); ok {
			return chunk, nil
		}
	}
	if err := r.stream.Err(); err != nil {
		return openai.ChatCompletionStreamResponse{}, err
	}
	return openai.ChatCompletionStreamResponse{}, io.EOF
}

func (r *anthropicChunkReader) Close() error {
	return r.stream.Close()
}

func translateAnthropicEvent(event anthropic.MessageStreamEventUnion) (openai.ChatCompletionStreamResponse, bool) {
	switch variant := event.AsAny().(type) {
	case anthropic.ContentBlockStartEvent:
		if variant.ContentBlock.Type != "tool_use" {
			return openai.ChatCompletionStreamResponse{}, false
		}
		index := int(variant.Index)
		return deltaChunk(openai.ChatCompletionStreamChoiceDelta{
			ToolCalls: []openai.ToolCall{{
				Index: &index,
				ID:    variant.ContentBlock.ID,
				Type:  openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name: variant.ContentBlock.Name,
				},
			}},
		}, ""), true

	case anthropic.ContentBlockDeltaEvent:
		switch delta := variant.Delta.AsAny().(type) {
		case anthropic.TextDelta:
			if delta.Text == "" {
				return openai.ChatCompletionStreamResponse{}, false
			}
			return deltaChunk(openai.ChatCompletionStreamChoiceDelta{Content: delta.Text}, ""), true
		case anthropic.InputJSONDelta:
			if delta.PartialJSON == "" {
				return openai.ChatCompletionStreamResponse{}, false
			}
			index := int(variant.Index)
			return deltaChunk(openai.ChatCompletionStreamChoiceDelta{
				ToolCalls: []openai.ToolCall{{
					Index:    &index,
					Function: openai.FunctionCall{Arguments: delta.PartialJSON},
				}},
			}, ""), true
		}

	case anthropic.MessageDeltaEvent:
		reason := anthropicFinishReason(variant.Delta.StopReason)
		if reason == "" {
			return openai.ChatCompletionStreamResponse{}, false
		}
		return deltaChunk(openai.ChatCompletionStreamChoiceDelta{}, reason), true
	}

	return openai.ChatCompletionStreamResponse{}, false
}

func anthropicFinishReason(reason anthropic.StopReason) openai.FinishReason {
	switch reason {
	case anthropic.StopReasonEndTurn, anthropic.StopReasonStopSequence:
		return openai.FinishReasonStop
	case anthropic.StopReasonToolUse:
		return openai.FinishReasonToolCalls
	case anthropic.StopReasonMaxTokens:
		return openai.FinishReasonLength
	case anthropic.StopReasonRefusal:
		return openai.FinishReasonContentFilter
	default:
		return ""
	}
}

func deltaChunk(delta openai.ChatCompletionStreamChoiceDelta, reason openai.FinishReason) openai.ChatCompletionStreamResponse {
	return openai.ChatCompletionStreamResponse{
		Choices: []openai.ChatCompletionStreamChoice{{
			Delta:        delta,
			FinishReason: reason,
		}},
	}
}

// Verify AnthropicProvider implements Provider
var _ Provider = (*AnthropicProvider)(nil)
