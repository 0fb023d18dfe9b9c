package models

// Conversation roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one role-tagged entry of a run transcript. Assistant messages may
// carry tool calls; tool messages carry the call id they answer.
type Message struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []FunctionCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolName   string         `json:"tool_name,omitempty"`
}

// Chat_Turn is a prior role/content pair supplied by the caller.
type Chat_Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

func NewAssistantMessage(content string, calls []FunctionCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: calls}
}

// NewToolMessage folds a tool result back into the transcript.
func NewToolMessage(result Tool_Result) Message {
	return Message{
		Role:       RoleTool,
		Content:    result.Tool_Output,
		ToolCallID: result.Tool_ID,
		ToolName:   result.Tool_Name,
	}
}

// HasToolCalls reports whether an assistant message requested tools.
func (m Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}
