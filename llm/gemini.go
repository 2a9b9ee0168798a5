// Google Gemini Provider implementation using official google.golang.org/genai SDK.
//
// Information Hiding:
// - API authentication and client creation
// - Request/response format for Gemini API
// - System instruction handling via config
// - Translation of the SDK iterator into chat-completion chunks

package llm

import (
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/richinex/llmbridge/internal/slogx"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

// GeminiProvider implements the Provider interface for Google Gemini.
type GeminiProvider struct {
	client    *genai.Client
	maxTokens int32
	initErr   error // Stores client initialization error for deferred reporting
}

// NewGeminiProvider creates a new Gemini provider.
// If client initialization fails, the error is stored and returned on first use.
func NewGeminiProvider(cfg ProviderConfig) *GeminiProvider {
	clientConfig := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: newHTTPClient(cfg),
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions.BaseURL = cfg.BaseURL
	}

	client, err := genai.NewClient(context.Background(), clientConfig)
	if err != nil {
		return &GeminiProvider{
			maxTokens: int32(cfg.MaxTokens),
			initErr:   fmt.Errorf("failed to initialize Gemini client: %w", err),
		}
	}

	return &GeminiProvider{
		client:    client,
		maxTokens: int32(cfg.MaxTokens),
	}
}

// Name returns the provider name.
func (p *GeminiProvider) Name() string {
	return ProviderGemini.String()
}

// DefaultModel returns the provider's default model.
func (p *GeminiProvider) DefaultModel() string {
	return ModelGeminiFlash25
}

// ListModels returns the available model names with the "models/" prefix
// removed.
func (p *GeminiProvider) ListModels(ctx context.Context) (any, error) {
	if p.initErr != nil {
		return nil, p.initErr
	}

	var names []string
	for model, err := range p.client.Models.All(ctx) {
		if err != nil {
			return nil, err
		}
		names = append(names, strings.TrimPrefix(model.Name, "models/"))
	}
	return names, nil
}

// CreateStream starts a streaming generation with the requested tools declared.
func (p *GeminiProvider) CreateStream(ctx context.Context, params StreamParams) (*EventStream, error) {
	if p.initErr != nil {
		return nil, p.initErr
	}

	model, contents, config := p.request(params.Model, ToChatMessages(params.Input, params.Instructions))
	config.Tools = convertToGeminiTools(params.ToolDefinitions())

	slog.Debug("creating stream",
		slogx.Provider(p.Name()),
		slog.String("model", model),
		slog.Int("contents", len(contents)))

	seq := p.client.Models.GenerateContentStream(ctx, model, contents, config)
	return NewEventStream(p.Name(), newGeminiChunkReader(seq)), nil
}

// CreateChatCompletion sends a non-streaming generation request.
func (p *GeminiProvider) CreateChatCompletion(ctx context.Context, params ChatCompletionParams) (string, error) {
	if p.initErr != nil {
		slog.Error("chat completion failed", slogx.Provider(p.Name()), slogx.Error(p.initErr))
		return "", p.initErr
	}

	model, contents, config := p.request(params.Model, params.Messages)
	response, err := p.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		slog.Error("chat completion failed", slogx.Provider(p.Name()), slogx.Error(err))
		return "", err
	}
	return response.Text(), nil
}

func (p *GeminiProvider) request(model string, messages []ChatMessage) (string, []*genai.Content, *genai.GenerateContentConfig) {
	if model == "" {
		model = p.DefaultModel()
	}
	contents, systemInstruction := convertToGeminiMessages(messages)

	config := &genai.GenerateContentConfig{}
	if p.maxTokens > 0 {
		config.MaxOutputTokens = p.maxTokens
	}
	if systemInstruction != "" {
		config.SystemInstruction = genai.NewContentFromText(systemInstruction, genai.RoleUser)
	}
	return model, contents, config
}

// convertToGeminiMessages converts chat messages to Gemini contents,
// including replayed tool calls and tool responses. Gemini names function
// responses by function name, so call ids are mapped back to the name of
// the call that produced them.
func convertToGeminiMessages(messages []ChatMessage) ([]*genai.Content, string) {
	var contents []*genai.Content
	var systemInstruction string
	callNames := make(map[string]string)

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			systemInstruction = msg.Content
		case RoleUser:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		case RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
				continue
			}
			content := &genai.Content{Role: genai.RoleModel}
			if msg.Content != "" {
				content.Parts = append(content.Parts, &genai.Part{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				var args map[string]any
				_ = json.Unmarshal([]byte(tc.Arguments), &args)
				callNames[tc.ID] = tc.Name
				content.Parts = append(content.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{
						ID:   tc.ID,
						Name: tc.Name,
						Args: args,
					},
				})
			}
			contents = append(contents, content)
		case RoleTool:
			var result map[string]any
			_ = json.Unmarshal([]byte(msg.Content), &result)
			if result == nil {
				result = map[string]any{"result": msg.Content}
			}
			name := callNames[msg.ToolCallID]
			if name == "" {
				name = msg.ToolCallID
			}
			contents = append(contents, &genai.Content{
				Role: genai.RoleUser, // Gemini expects tool results as user
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{
						ID:       msg.ToolCallID,
						Name:     name,
						Response: result,
					},
				}},
			})
		}
	}

	return contents, systemInstruction
}

// convertToGeminiTools converts tool definitions to Gemini format.
func convertToGeminiTools(tools []ToolDefinition) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}

	var declarations []*genai.FunctionDeclaration
	for _, t := range tools {
		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  convertToGeminiSchema(t.Parameters),
		})
	}

	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

// convertToGeminiSchema recursively converts a JSON schema map to Gemini
// format. Arrays always get an items schema since Gemini requires one.
func convertToGeminiSchema(params map[string]any) *genai.Schema {
	schema := &genai.Schema{Type: genai.TypeObject}

	if t, ok := params["type"].(string); ok {
		schema.Type = mapToGeminiType(t)
	}
	if d, ok := params["description"].(string); ok {
		schema.Description = d
	}

	switch req := params["required"].(type) {
	case []string:
		schema.Required = req
	case []any:
		for _, r := range req {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}

	if schema.Type == genai.TypeArray {
		if items, ok := params["items"].(map[string]any); ok {
			schema.Items = convertToGeminiSchema(items)
		} else {
			schema.Items = &genai.Schema{Type: genai.TypeString}
		}
	}

	if props, ok := params["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			if propMap, ok := prop.(map[string]any); ok {
				schema.Properties[name] = convertToGeminiSchema(propMap)
			}
		}
	}

	return schema
}

// mapToGeminiType maps JSON schema type to Gemini type.
func mapToGeminiType(t string) genai.Type {
	switch t {
	case "string":
		return genai.TypeString
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}

// geminiChunkReader pulls the SDK's push iterator and translates each
// response into a chat-completion chunk. Function calls arrive whole, so
// each one becomes a single fragment with its own index and id.
type geminiChunkReader struct {
	next      func() (*genai.GenerateContentResponse, error, bool)
	stop      func()
	callIndex int
}

func newGeminiChunkReader(seq iter.Seq2[*genai.GenerateContentResponse, error]) *geminiChunkReader {
	next, stop := iter.Pull2(seq)
	return &geminiChunkReader{next: next, stop: stop}
}

func (r *geminiChunkReader) Recv() (openai.ChatCompletionStreamResponse, error) {
	for {
		response, err, ok := r.next()
		if !ok {
			return openai.ChatCompletionStreamResponse{}, io.EOF
		}
		if err != nil {
			return openai.ChatCompletionStreamResponse{}, err
		}
		if chunk, ok := r.translate(response); ok {
			return chunk, nil
		}
	}
}

func (r *geminiChunkReader) Close() error {
	r.stop()
	return nil
}

func (r *geminiChunkReader) translate(response *genai.GenerateContentResponse) (openai.ChatCompletionStreamResponse, bool) {
	if response == nil || len(response.Candidates) == 0 {
		return openai.ChatCompletionStreamResponse{}, false
	}
	candidate := response.Candidates[0]

	var delta openai.ChatCompletionStreamChoiceDelta
	if candidate.Content != nil {
		var text strings.Builder
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			if part.Text != "" && !part.Thought {
				text.WriteString(part.Text)
			}
			if part.FunctionCall != nil {
				delta.ToolCalls = append(delta.ToolCalls, r.toolCall(part.FunctionCall))
			}
		}
		delta.Content = text.String()
	}

	reason := geminiFinishReason(candidate.FinishReason)
	if delta.Content == "" && len(delta.ToolCalls) == 0 && reason == "" {
		return openai.ChatCompletionStreamResponse{}, false
	}
	return deltaChunk(delta, reason), true
}

func (r *geminiChunkReader) toolCall(call *genai.FunctionCall) openai.ToolCall {
	index := r.callIndex
	r.callIndex++

	id := call.ID
	if id == "" {
		id = newCallID()
	}
	arguments := "{}"
	if len(call.Args) > 0 {
		if encoded, err := json.Marshal(call.Args); err == nil {
			arguments = string(encoded)
		}
	}

	return openai.ToolCall{
		Index: &index,
		ID:    id,
		Type:  openai.ToolTypeFunction,
		Function: openai.FunctionCall{
			Name:      call.Name,
			Arguments: arguments,
		},
	}
}

func geminiFinishReason(reason genai.FinishReason) openai.FinishReason {
	switch reason {
	case "", genai.FinishReasonUnspecified:
		return ""
	case genai.FinishReasonStop:
		return openai.FinishReasonStop
	case genai.FinishReasonMaxTokens:
		return openai.FinishReasonLength
	case genai.FinishReasonSafety, genai.FinishReasonRecitation, genai.FinishReasonBlocklist,
		genai.FinishReasonProhibitedContent, genai.FinishReasonSPII:
		return openai.FinishReasonContentFilter
	default:
		return openai.FinishReasonStop
	}
}

// Verify GeminiProvider implements Provider
var _ Provider = (*GeminiProvider)(nil)
