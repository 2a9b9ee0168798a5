// Package llm provides shared data models for LLM providers.
package llm

// Conversation roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Input item kinds.
const (
	ItemTypeMessage            = "message"
	ItemTypeFunctionCall       = "function_call"
	ItemTypeFunctionCallOutput = "function_call_output"
)

// Content part kinds.
const (
	ContentInputText  = "input_text"
	ContentOutputText = "output_text"
)

// Item and response statuses.
const (
	StatusCompleted  = "completed"
	StatusIncomplete = "incomplete"
)

// ChatMessage represents a chat message with role and content.
type ChatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`   // For assistant messages with tool calls
	ToolCallID string     `json:"tool_call_id,omitempty"` // For tool result messages
}

// ToolCall represents a tool call from the LLM.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDefinition defines a tool that the LLM can call.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// ContentPart is one typed piece of a message turn.
type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// InputItem is one conversation turn handed to CreateStream.
//
// Message turns use Role and Content. Function-call turns replay a call the
// model made (CallID, Name, Arguments); function-call-output turns carry the
// tool result (CallID, Output).
type InputItem struct {
	Type      string        `json:"type"`
	Role      string        `json:"role,omitempty"`
	Content   []ContentPart `json:"content,omitempty"`
	Name      string        `json:"name,omitempty"`
	CallID    string        `json:"call_id,omitempty"`
	Arguments string        `json:"arguments,omitempty"`
	Output    string        `json:"output,omitempty"`
}

// UserInput creates a user message turn.
func UserInput(text string) InputItem {
	return InputItem{
		Type:    ItemTypeMessage,
		Role:    RoleUser,
		Content: []ContentPart{{Type: ContentInputText, Text: text}},
	}
}

// AssistantInput creates an assistant message turn, used when replaying history.
func AssistantInput(text string) InputItem {
	return InputItem{
		Type:    ItemTypeMessage,
		Role:    RoleAssistant,
		Content: []ContentPart{{Type: ContentOutputText, Text: text}},
	}
}

// FunctionCallInput replays a function call the model made.
func FunctionCallInput(callID, name, arguments string) InputItem {
	return InputItem{
		Type:      ItemTypeFunctionCall,
		CallID:    callID,
		Name:      name,
		Arguments: arguments,
	}
}

// FunctionCallOutput creates a tool result turn for the given call.
func FunctionCallOutput(callID, output string) InputItem {
	return InputItem{
		Type:   ItemTypeFunctionCallOutput,
		CallID: callID,
		Output: output,
	}
}

// ReasoningConfig controls reasoning effort on backends that support it.
type ReasoningConfig struct {
	Effort string `json:"effort,omitempty"`
}

// StreamParams are the inputs to Provider.CreateStream.
type StreamParams struct {
	Model              string
	Instructions       string
	PreviousResponseID string
	Input              []InputItem
	Reasoning          *ReasoningConfig
	// Tools are advertised to the model. Nil advertises the shell tool.
	Tools []ToolDefinition
}

// ToolDefinitions returns the tools to advertise for a stream request.
func (p StreamParams) ToolDefinitions() []ToolDefinition {
	if p.Tools == nil {
		return []ToolDefinition{ShellToolDefinition()}
	}
	return p.Tools
}

// ChatCompletionParams are the inputs to Provider.CreateChatCompletion.
type ChatCompletionParams struct {
	Model    string
	Messages []ChatMessage
}

// OutputContent is a content part of a finalized message item.
type OutputContent struct {
	Type        string `json:"type"`
	Text        string `json:"text"`
	Annotations []any  `json:"annotations"`
}

// ResponseItem is a finalized output item: an assistant message or a
// function call.
type ResponseItem struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Role      string          `json:"role"`
	Content   []OutputContent `json:"content,omitempty"`
	Name      string          `json:"name,omitempty"`
	CallID    string          `json:"call_id,omitempty"`
	Arguments string          `json:"arguments,omitempty"`
	Status    string          `json:"status"`
}

// Text returns the concatenated output text of a message item.
func (i ResponseItem) Text() string {
	var text string
	for _, part := range i.Content {
		if part.Type == ContentOutputText {
			text += part.Text
		}
	}
	return text
}

// Response summarizes one completed response.
type Response struct {
	ID     string         `json:"id"`
	Output []ResponseItem `json:"output"`
	Status string         `json:"status"`
}

// EventType tags a normalized stream event.
type EventType string

const (
	// EventOutputItemDone wraps one finalized output item.
	EventOutputItemDone EventType = "response.output_item.done"
	// EventResponseCompleted wraps the full output list of a response.
	EventResponseCompleted EventType = "response.completed"
)

// Event is a normalized stream event. Exactly one of Item and Response is
// set, depending on Type.
type Event struct {
	Type     EventType     `json:"type"`
	Item     *ResponseItem `json:"item,omitempty"`
	Response *Response     `json:"response,omitempty"`
}
