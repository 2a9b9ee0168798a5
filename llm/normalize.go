package llm

// ToChatMessages flattens conversation turns into the role/content message
// list chat-completion APIs expect. A non-empty instructions string becomes
// the leading system message.
//
// Message turns contribute their first input_text or output_text part and
// nothing at all when they have none. Function-call outputs become tool
// messages linked by call id. Consecutive function-call turns are folded
// into one assistant message carrying the calls, which must precede the
// matching tool messages.
func ToChatMessages(input []InputItem, instructions string) []ChatMessage {
	messages := make([]ChatMessage, 0, len(input)+1)

	if instructions != "" {
		messages = append(messages, ChatMessage{Role: RoleSystem, Content: instructions})
	}

	for _, item := range input {
		switch item.Type {
		case ItemTypeMessage:
			if text, ok := firstText(item.Content); ok {
				messages = append(messages, ChatMessage{Role: item.Role, Content: text})
			}
		case ItemTypeFunctionCall:
			call := ToolCall{ID: item.CallID, Name: item.Name, Arguments: item.Arguments}
			if n := len(messages); n > 0 && messages[n-1].Role == RoleAssistant && len(messages[n-1].ToolCalls) > 0 {
				messages[n-1].ToolCalls = append(messages[n-1].ToolCalls, call)
				continue
			}
			messages = append(messages, ChatMessage{Role: RoleAssistant, ToolCalls: []ToolCall{call}})
		case ItemTypeFunctionCallOutput:
			messages = append(messages, ChatMessage{
				Role:       RoleTool,
				Content:    item.Output,
				ToolCallID: item.CallID,
			})
		}
	}

	return messages
}

func firstText(parts []ContentPart) (string, bool) {
	for _, part := range parts {
		if part.Type == ContentInputText || part.Type == ContentOutputText {
			return part.Text, true
		}
	}
	return "", false
}
