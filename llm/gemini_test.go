package llm

import (
	"errors"
	"iter"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func geminiSeq(responses []*genai.GenerateContentResponse, err error) iter.Seq2[*genai.GenerateContentResponse, error] {
	return func(yield func(*genai.GenerateContentResponse, error) bool) {
		for _, response := range responses {
			if !yield(response, nil) {
				return
			}
		}
		if err != nil {
			yield(nil, err)
		}
	}
}

func geminiResponse(reason genai.FinishReason, parts ...*genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      &genai.Content{Role: genai.RoleModel, Parts: parts},
			FinishReason: reason,
		}},
	}
}

func TestGeminiChunkReader_Text(t *testing.T) {
	reader := newGeminiChunkReader(geminiSeq([]*genai.GenerateContentResponse{
		geminiResponse("", &genai.Part{Text: "thinking...", Thought: true}, &genai.Part{Text: "Hello"}),
		geminiResponse(genai.FinishReasonStop, &genai.Part{Text: " world"}),
	}, nil))
	stream := NewEventStream("gemini", reader)
	defer stream.Close()

	events := collect(t, stream)
	require.Len(t, events, 2)
	assert.Equal(t, "Hello world", events[0].Item.Text())
	assert.Equal(t, StatusCompleted, events[0].Item.Status)
}

func TestGeminiChunkReader_FunctionCalls(t *testing.T) {
	reader := newGeminiChunkReader(geminiSeq([]*genai.GenerateContentResponse{
		geminiResponse(genai.FinishReasonStop,
			&genai.Part{FunctionCall: &genai.FunctionCall{Name: "shell", Args: map[string]any{"command": []any{"pwd"}}}},
			&genai.Part{FunctionCall: &genai.FunctionCall{ID: "fc-2", Name: "shell", Args: map[string]any{"command": []any{"ls"}}}},
		),
	}, nil))
	stream := NewEventStream("gemini", reader)
	defer stream.Close()

	events := collect(t, stream)
	require.Len(t, events, 3)

	first := events[0].Item
	assert.Equal(t, ItemTypeFunctionCall, first.Type)
	assert.True(t, strings.HasPrefix(first.CallID, "call_"))
	assert.JSONEq(t, `{"command":["pwd"]}`, first.Arguments)

	second := events[1].Item
	assert.Equal(t, "fc-2", second.CallID)
	assert.JSONEq(t, `{"command":["ls"]}`, second.Arguments)
}

func TestGeminiChunkReader_MaxTokensIsIncomplete(t *testing.T) {
	reader := newGeminiChunkReader(geminiSeq([]*genai.GenerateContentResponse{
		geminiResponse(genai.FinishReasonMaxTokens, &genai.Part{Text: "cut"}),
	}, nil))
	stream := NewEventStream("gemini", reader)
	defer stream.Close()

	events := collect(t, stream)
	require.Len(t, events, 2)
	assert.Equal(t, StatusIncomplete, events[1].Response.Status)
}

func TestGeminiChunkReader_SkipsEmptyResponses(t *testing.T) {
	reader := newGeminiChunkReader(geminiSeq([]*genai.GenerateContentResponse{
		{},
		geminiResponse(""),
		geminiResponse(genai.FinishReasonStop, &genai.Part{Text: "ok"}),
	}, nil))
	defer reader.Close()

	chunk, err := reader.Recv()
	require.NoError(t, err)
	require.Len(t, chunk.Choices, 1)
	assert.Equal(t, "ok", chunk.Choices[0].Delta.Content)
	assert.Equal(t, openai.FinishReasonStop, chunk.Choices[0].FinishReason)
}

func TestGeminiChunkReader_ErrorPassthrough(t *testing.T) {
	boom := errors.New("quota exceeded")
	reader := newGeminiChunkReader(geminiSeq(nil, boom))
	defer reader.Close()

	_, err := reader.Recv()
	assert.ErrorIs(t, err, boom)
}

func TestGeminiFinishReason(t *testing.T) {
	cases := map[genai.FinishReason]openai.FinishReason{
		"":                            "",
		genai.FinishReasonUnspecified: "",
		genai.FinishReasonStop:        openai.FinishReasonStop,
		genai.FinishReasonMaxTokens:   openai.FinishReasonLength,
		genai.FinishReasonSafety:      openai.FinishReasonContentFilter,
		genai.FinishReasonRecitation:  openai.FinishReasonContentFilter,
		genai.FinishReasonOther:       openai.FinishReasonStop,
	}
	for reason, want := range cases {
		assert.Equal(t, want, geminiFinishReason(reason), string(reason))
	}
}

func TestConvertToGeminiMessages_ToolResponseUsesCallName(t *testing.T) {
	messages := ToChatMessages([]InputItem{
		UserInput("where am I"),
		FunctionCallInput("call_1", "shell", `{"command":["pwd"]}`),
		FunctionCallOutput("call_1", `{"output":"/tmp"}`),
	}, "be brief")

	contents, system := convertToGeminiMessages(messages)
	assert.Equal(t, "be brief", system)
	require.Len(t, contents, 3)

	call := contents[1].Parts[0].FunctionCall
	require.NotNil(t, call)
	assert.Equal(t, "shell", call.Name)
	assert.Equal(t, map[string]any{"command": []any{"pwd"}}, call.Args)

	response := contents[2].Parts[0].FunctionResponse
	require.NotNil(t, response)
	assert.Equal(t, "shell", response.Name)
	assert.Equal(t, "call_1", response.ID)
	assert.Equal(t, map[string]any{"output": "/tmp"}, response.Response)
}

func TestConvertToGeminiSchema_ShellTool(t *testing.T) {
	schema := convertToGeminiSchema(ShellToolDefinition().Parameters)

	assert.Equal(t, genai.TypeObject, schema.Type)
	assert.Equal(t, []string{"command"}, schema.Required)
	require.Contains(t, schema.Properties, "command")
	command := schema.Properties["command"]
	assert.Equal(t, genai.TypeArray, command.Type)
	require.NotNil(t, command.Items)
	assert.Equal(t, genai.TypeString, command.Items.Type)
	assert.Equal(t, genai.TypeNumber, schema.Properties["timeout"].Type)
}
