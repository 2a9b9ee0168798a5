// Stream adapter: chat-completion chunks in, Responses-style events out.
//
// Information Hiding:
// - Text and tool-call accumulation across partial deltas
// - Finish-reason handling and per-completion reset
// - Item and response identifiers

package llm

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/richinex/llmbridge/internal/slogx"
	openai "github.com/sashabaranov/go-openai"
)

// ChunkReader yields native chat-completion chunks. Recv returns io.EOF
// once the stream is exhausted. *openai.ChatCompletionStream satisfies it,
// and non-OpenAI providers translate their native events into the same
// chunk shape.
type ChunkReader interface {
	Recv() (openai.ChatCompletionStreamResponse, error)
	Close() error
}

// pendingToolCall is a tool call still receiving argument fragments.
type pendingToolCall struct {
	id        string
	callType  string
	name      string
	arguments strings.Builder
	index     *int
}

// EventStream adapts a ChunkReader into normalized events. Events are only
// produced at completion boundaries; intermediate deltas are accumulated.
//
// EventStream is single-use and not safe for concurrent use.
type EventStream struct {
	reader     ChunkReader
	provider   string
	responseID string

	text  []string
	calls []*pendingToolCall

	pending []Event
	done    bool
}

// NewEventStream wraps reader. provider names the backend and prefixes the
// generated response id.
func NewEventStream(provider string, reader ChunkReader) *EventStream {
	return &EventStream{
		reader:     reader,
		provider:   provider,
		responseID: fmt.Sprintf("%s-%s", provider, uuid.NewString()),
	}
}

// ResponseID returns the identifier stamped on every item of this stream.
func (s *EventStream) ResponseID() string {
	return s.responseID
}

// Next returns the next normalized event. It returns io.EOF when the
// underlying reader is exhausted; any other reader error is returned
// unchanged.
//
// The caller should process events in a loop:
//
//	for {
//	    event, err := stream.Next()
//	    if err == io.EOF {
//	        break
//	    }
//	    if err != nil {
//	        return err
//	    }
//	    // process event
//	}
func (s *EventStream) Next() (Event, error) {
	for len(s.pending) == 0 {
		if s.done {
			return Event{}, io.EOF
		}

		chunk, err := s.reader.Recv()
		if errors.Is(err, io.EOF) {
			s.done = true
			if len(s.text) > 0 || len(s.calls) > 0 {
				slog.Debug("stream ended without finish reason, dropping partial output",
					slogx.Provider(s.provider),
					slog.Int("tool_calls", len(s.calls)))
			}
			s.reset()
			continue
		}
		if err != nil {
			return Event{}, err
		}

		s.consume(chunk)
	}

	event := s.pending[0]
	s.pending = s.pending[1:]
	return event, nil
}

// All returns an iterator over the remaining events. Iteration stops after
// the first error, which is yielded with a zero Event.
func (s *EventStream) All() iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		for {
			event, err := s.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(Event{}, err)
				return
			}
			if !yield(event, nil) {
				return
			}
		}
	}
}

// Close releases the underlying reader.
func (s *EventStream) Close() error {
	return s.reader.Close()
}

func (s *EventStream) consume(chunk openai.ChatCompletionStreamResponse) {
	if len(chunk.Choices) == 0 {
		return
	}
	choice := chunk.Choices[0]
	delta := choice.Delta

	if delta.Content != "" {
		s.text = append(s.text, delta.Content)
	}

	for _, fragment := range delta.ToolCalls {
		s.accumulate(fragment)
	}

	switch choice.FinishReason {
	case openai.FinishReasonStop, openai.FinishReasonToolCalls, openai.FinishReasonFunctionCall:
		s.finalize(StatusCompleted)
	case openai.FinishReasonLength, openai.FinishReasonContentFilter:
		s.finalize(StatusIncomplete)
	}
}

func (s *EventStream) accumulate(fragment openai.ToolCall) {
	existing := s.lookup(fragment)
	if existing == nil {
		call := &pendingToolCall{
			id:       fragment.ID,
			callType: string(fragment.Type),
			name:     fragment.Function.Name,
			index:    fragment.Index,
		}
		if call.id == "" {
			call.id = newCallID()
		}
		if call.callType == "" {
			call.callType = string(openai.ToolTypeFunction)
		}
		call.arguments.WriteString(fragment.Function.Arguments)
		s.calls = append(s.calls, call)
		return
	}

	existing.arguments.WriteString(fragment.Function.Arguments)
	if fragment.Function.Name != "" {
		existing.name = fragment.Function.Name
	}
}

// lookup finds the accumulated call a fragment belongs to. Fragments carry
// their id on the first delta only for some backends, so id-less fragments
// fall back to the tool-call index, and fragments with neither id nor index
// join the most recent call.
func (s *EventStream) lookup(fragment openai.ToolCall) *pendingToolCall {
	if fragment.ID != "" {
		for _, call := range s.calls {
			if call.id == fragment.ID {
				return call
			}
		}
		return nil
	}
	if fragment.Index != nil {
		for _, call := range s.calls {
			if call.index != nil && *call.index == *fragment.Index {
				return call
			}
		}
		// A new index starts a new call.
		return nil
	}
	if len(s.calls) > 0 {
		return s.calls[len(s.calls)-1]
	}
	return nil
}

func (s *EventStream) finalize(status string) {
	var output []ResponseItem

	if len(s.calls) > 0 {
		output = make([]ResponseItem, 0, len(s.calls))
		for _, call := range s.calls {
			output = append(output, ResponseItem{
				ID:        s.responseID + "_" + call.id,
				Type:      ItemTypeFunctionCall,
				Role:      RoleAssistant,
				Name:      call.name,
				CallID:    call.id,
				Arguments: call.arguments.String(),
				Status:    status,
			})
		}
	} else {
		output = []ResponseItem{{
			ID:   s.responseID,
			Type: ItemTypeMessage,
			Role: RoleAssistant,
			Content: []OutputContent{{
				Type:        ContentOutputText,
				Text:        strings.TrimSpace(strings.Join(s.text, "")),
				Annotations: []any{},
			}},
			Status: status,
		}}
	}

	for i := range output {
		item := output[i]
		s.pending = append(s.pending, Event{Type: EventOutputItemDone, Item: &item})
	}
	s.pending = append(s.pending, Event{
		Type: EventResponseCompleted,
		Response: &Response{
			ID:     s.responseID,
			Output: output,
			Status: status,
		},
	})

	s.reset()
}

// newCallID generates a call identifier for backends that omit one.
func newCallID() string {
	return "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func (s *EventStream) reset() {
	s.text = nil
	s.calls = nil
}
