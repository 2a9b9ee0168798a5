package llm

import (
	"errors"
	"io"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChunkReader replays a fixed list of chunks, then err (io.EOF when nil).
type fakeChunkReader struct {
	chunks []openai.ChatCompletionStreamResponse
	err    error
	closed bool
}

func (r *fakeChunkReader) Recv() (openai.ChatCompletionStreamResponse, error) {
	if len(r.chunks) == 0 {
		if r.err != nil {
			return openai.ChatCompletionStreamResponse{}, r.err
		}
		return openai.ChatCompletionStreamResponse{}, io.EOF
	}
	chunk := r.chunks[0]
	r.chunks = r.chunks[1:]
	return chunk, nil
}

func (r *fakeChunkReader) Close() error {
	r.closed = true
	return nil
}

func textChunk(text string, reason openai.FinishReason) openai.ChatCompletionStreamResponse {
	return deltaChunk(openai.ChatCompletionStreamChoiceDelta{Content: text}, reason)
}

func toolChunk(id, name, arguments string, index *int, reason openai.FinishReason) openai.ChatCompletionStreamResponse {
	return deltaChunk(openai.ChatCompletionStreamChoiceDelta{
		ToolCalls: []openai.ToolCall{{
			Index: index,
			ID:    id,
			Function: openai.FunctionCall{
				Name:      name,
				Arguments: arguments,
			},
		}},
	}, reason)
}

func intPtr(i int) *int { return &i }

func collect(t *testing.T, stream *EventStream) []Event {
	t.Helper()
	var events []Event
	for event, err := range stream.All() {
		require.NoError(t, err)
		events = append(events, event)
	}
	return events
}

func TestEventStream_TextRoundTrip(t *testing.T) {
	reader := &fakeChunkReader{chunks: []openai.ChatCompletionStreamResponse{
		textChunk("Hel", ""),
		textChunk("lo", ""),
		textChunk("", openai.FinishReasonStop),
	}}
	stream := NewEventStream("openai", reader)

	events := collect(t, stream)
	require.Len(t, events, 2)

	assert.Equal(t, EventOutputItemDone, events[0].Type)
	require.NotNil(t, events[0].Item)
	item := events[0].Item
	assert.Equal(t, ItemTypeMessage, item.Type)
	assert.Equal(t, RoleAssistant, item.Role)
	assert.Equal(t, "Hello", item.Text())
	assert.Equal(t, StatusCompleted, item.Status)
	assert.Equal(t, stream.ResponseID(), item.ID)
	require.Len(t, item.Content, 1)
	assert.Equal(t, ContentOutputText, item.Content[0].Type)
	assert.NotNil(t, item.Content[0].Annotations)

	assert.Equal(t, EventResponseCompleted, events[1].Type)
	require.NotNil(t, events[1].Response)
	assert.Equal(t, StatusCompleted, events[1].Response.Status)
	assert.Equal(t, []ResponseItem{*item}, events[1].Response.Output)
}

func TestEventStream_ResponseIDPrefixedWithProvider(t *testing.T) {
	stream := NewEventStream("groq", &fakeChunkReader{})
	assert.True(t, strings.HasPrefix(stream.ResponseID(), "groq-"))
}

func TestEventStream_TrimsMessageText(t *testing.T) {
	stream := NewEventStream("openai", &fakeChunkReader{chunks: []openai.ChatCompletionStreamResponse{
		textChunk("  \nanswer\n ", openai.FinishReasonStop),
	}})

	events := collect(t, stream)
	require.Len(t, events, 2)
	assert.Equal(t, "answer", events[0].Item.Text())
}

func TestEventStream_ToolCallAcrossFragments(t *testing.T) {
	stream := NewEventStream("openai", &fakeChunkReader{chunks: []openai.ChatCompletionStreamResponse{
		toolChunk("c1", "shell", `{"comm`, nil, ""),
		toolChunk("c1", "", `and":["l`, nil, ""),
		toolChunk("c1", "", `s"]}`, nil, openai.FinishReasonToolCalls),
	}})

	events := collect(t, stream)
	require.Len(t, events, 2)

	item := events[0].Item
	require.NotNil(t, item)
	assert.Equal(t, ItemTypeFunctionCall, item.Type)
	assert.Equal(t, "shell", item.Name)
	assert.Equal(t, "c1", item.CallID)
	assert.Equal(t, `{"command":["ls"]}`, item.Arguments)
	assert.Equal(t, stream.ResponseID()+"_c1", item.ID)
	assert.Equal(t, StatusCompleted, item.Status)

	require.NotNil(t, events[1].Response)
	require.Len(t, events[1].Response.Output, 1)
	assert.Equal(t, *item, events[1].Response.Output[0])
}

func TestEventStream_ToolCallsWinOverText(t *testing.T) {
	stream := NewEventStream("openai", &fakeChunkReader{chunks: []openai.ChatCompletionStreamResponse{
		textChunk("let me check", ""),
		toolChunk("c1", "shell", `{}`, nil, openai.FinishReasonToolCalls),
	}})

	events := collect(t, stream)
	require.Len(t, events, 2)
	assert.Equal(t, ItemTypeFunctionCall, events[0].Item.Type)
}

func TestEventStream_MultipleCallsKeepCreationOrder(t *testing.T) {
	stream := NewEventStream("openai", &fakeChunkReader{chunks: []openai.ChatCompletionStreamResponse{
		toolChunk("a", "shell", `{"command":`, intPtr(0), ""),
		toolChunk("b", "shell", `{"command":`, intPtr(1), ""),
		toolChunk("", "", `["pwd"]}`, intPtr(0), ""),
		toolChunk("", "", `["ls"]}`, intPtr(1), openai.FinishReasonToolCalls),
	}})

	events := collect(t, stream)
	require.Len(t, events, 3)
	assert.Equal(t, "a", events[0].Item.CallID)
	assert.Equal(t, `{"command":["pwd"]}`, events[0].Item.Arguments)
	assert.Equal(t, "b", events[1].Item.CallID)
	assert.Equal(t, `{"command":["ls"]}`, events[1].Item.Arguments)
	assert.Len(t, events[2].Response.Output, 2)
}

func TestEventStream_IDLessCallsSplitByIndex(t *testing.T) {
	stream := NewEventStream("groq", &fakeChunkReader{chunks: []openai.ChatCompletionStreamResponse{
		toolChunk("", "shell", `{"command":["pwd"]}`, intPtr(0), ""),
		toolChunk("", "shell", `{"command":["ls"]}`, intPtr(1), openai.FinishReasonToolCalls),
	}})

	events := collect(t, stream)
	require.Len(t, events, 3)
	assert.Equal(t, `{"command":["pwd"]}`, events[0].Item.Arguments)
	assert.Equal(t, `{"command":["ls"]}`, events[1].Item.Arguments)
	assert.NotEqual(t, events[0].Item.CallID, events[1].Item.CallID)
	assert.True(t, strings.HasPrefix(events[1].Item.CallID, "call_"))
	assert.Len(t, events[2].Response.Output, 2)
}

func TestEventStream_FragmentWithoutIDOrIndexJoinsLatestCall(t *testing.T) {
	stream := NewEventStream("openai", &fakeChunkReader{chunks: []openai.ChatCompletionStreamResponse{
		toolChunk("c1", "shell", `{"a":`, nil, ""),
		toolChunk("", "", `1}`, nil, openai.FinishReasonToolCalls),
	}})

	events := collect(t, stream)
	require.Len(t, events, 2)
	assert.Equal(t, `{"a":1}`, events[0].Item.Arguments)
}

func TestEventStream_GeneratesMissingCallID(t *testing.T) {
	stream := NewEventStream("openai", &fakeChunkReader{chunks: []openai.ChatCompletionStreamResponse{
		toolChunk("", "shell", `{}`, nil, openai.FinishReasonToolCalls),
	}})

	events := collect(t, stream)
	require.Len(t, events, 2)
	callID := events[0].Item.CallID
	assert.True(t, strings.HasPrefix(callID, "call_"))
	assert.Len(t, callID, len("call_")+8)
}

func TestEventStream_LaterNameOverwrites(t *testing.T) {
	stream := NewEventStream("openai", &fakeChunkReader{chunks: []openai.ChatCompletionStreamResponse{
		toolChunk("c1", "she", ``, nil, ""),
		toolChunk("c1", "shell", `{}`, nil, openai.FinishReasonStop),
	}})

	events := collect(t, stream)
	require.Len(t, events, 2)
	assert.Equal(t, "shell", events[0].Item.Name)
}

func TestEventStream_ResetsBetweenCompletions(t *testing.T) {
	stream := NewEventStream("openai", &fakeChunkReader{chunks: []openai.ChatCompletionStreamResponse{
		textChunk("first", openai.FinishReasonStop),
		textChunk("second", openai.FinishReasonStop),
	}})

	events := collect(t, stream)
	require.Len(t, events, 4)
	assert.Equal(t, "first", events[0].Item.Text())
	assert.Equal(t, "second", events[2].Item.Text())
}

func TestEventStream_ToolCallsDoNotLeakIntoNextCompletion(t *testing.T) {
	stream := NewEventStream("openai", &fakeChunkReader{chunks: []openai.ChatCompletionStreamResponse{
		toolChunk("c1", "shell", `{"command":["pwd"]}`, intPtr(0), openai.FinishReasonToolCalls),
		textChunk("all done", openai.FinishReasonStop),
	}})

	events := collect(t, stream)
	require.Len(t, events, 4)
	assert.Equal(t, ItemTypeFunctionCall, events[0].Item.Type)
	require.Len(t, events[1].Response.Output, 1)

	require.NotNil(t, events[2].Item)
	assert.Equal(t, ItemTypeMessage, events[2].Item.Type)
	assert.Equal(t, "all done", events[2].Item.Text())

	require.NotNil(t, events[3].Response)
	require.Len(t, events[3].Response.Output, 1)
	assert.Equal(t, ItemTypeMessage, events[3].Response.Output[0].Type)
}

func TestEventStream_LengthFlushesIncomplete(t *testing.T) {
	stream := NewEventStream("openai", &fakeChunkReader{chunks: []openai.ChatCompletionStreamResponse{
		textChunk("partial", openai.FinishReasonLength),
	}})

	events := collect(t, stream)
	require.Len(t, events, 2)
	assert.Equal(t, "partial", events[0].Item.Text())
	assert.Equal(t, StatusIncomplete, events[0].Item.Status)
	assert.Equal(t, StatusIncomplete, events[1].Response.Status)
}

func TestEventStream_ContentFilterFlushesIncomplete(t *testing.T) {
	stream := NewEventStream("openai", &fakeChunkReader{chunks: []openai.ChatCompletionStreamResponse{
		toolChunk("c1", "shell", `{"comm`, nil, openai.FinishReasonContentFilter),
	}})

	events := collect(t, stream)
	require.Len(t, events, 2)
	assert.Equal(t, StatusIncomplete, events[0].Item.Status)
	assert.Equal(t, `{"comm`, events[0].Item.Arguments)
}

func TestEventStream_NoFinishReasonProducesNothing(t *testing.T) {
	stream := NewEventStream("openai", &fakeChunkReader{chunks: []openai.ChatCompletionStreamResponse{
		textChunk("dangling", ""),
		textChunk("", openai.FinishReasonNull),
	}})

	events := collect(t, stream)
	assert.Empty(t, events)
}

func TestEventStream_IgnoresEmptyChoices(t *testing.T) {
	stream := NewEventStream("openai", &fakeChunkReader{chunks: []openai.ChatCompletionStreamResponse{
		{},
		textChunk("ok", ""),
		{Choices: []openai.ChatCompletionStreamChoice{}},
		textChunk("", openai.FinishReasonStop),
	}})

	events := collect(t, stream)
	require.Len(t, events, 2)
	assert.Equal(t, "ok", events[0].Item.Text())
}

func TestEventStream_EmptyStream(t *testing.T) {
	stream := NewEventStream("openai", &fakeChunkReader{})

	_, err := stream.Next()
	assert.ErrorIs(t, err, io.EOF)
	_, err = stream.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestEventStream_ErrorPassthrough(t *testing.T) {
	boom := errors.New("connection reset")
	stream := NewEventStream("openai", &fakeChunkReader{
		chunks: []openai.ChatCompletionStreamResponse{textChunk("done", openai.FinishReasonStop)},
		err:    boom,
	})

	var events []Event
	var got error
	for event, err := range stream.All() {
		if err != nil {
			got = err
			break
		}
		events = append(events, event)
	}

	assert.Len(t, events, 2)
	assert.ErrorIs(t, got, boom)
}

func TestEventStream_Close(t *testing.T) {
	reader := &fakeChunkReader{}
	stream := NewEventStream("openai", reader)

	require.NoError(t, stream.Close())
	assert.True(t, reader.closed)
}
