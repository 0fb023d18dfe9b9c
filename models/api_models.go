package models

import "time"

// ChatMessageResponse defines the structure for messages returned by the chat history API endpoint.
type ChatMessageResponse struct {
	ID             uint           `json:"id"`
	CreatedAt      time.Time      `json:"created_at"`
	ConversationID string         `json:"conversation_id"`
	Sequence       int            `json:"sequence"`
	Role           string         `json:"role"` // "system", "user", "assistant", "tool"
	Type           string         `json:"type"` // "user_message", "model_message", "function_call", "function_response"
	ToolCallID     string         `json:"tool_call_id,omitempty"`
	ToolName       string         `json:"tool_name,omitempty"`
	Text           string         `json:"text,omitempty"`
	ToolCalls      []FunctionCall `json:"tool_calls,omitempty"`
}

// Tool_Step is the observability view of one resolved tool call.
type Tool_Step struct {
	Tool      string `json:"tool"`
	CallID    string `json:"call_id"`
	Output    string `json:"output"` // truncated
	Succeeded bool   `json:"succeeded"`
}

// Agent_Run_Response is returned by every non-streaming run route.
type Agent_Run_Response struct {
	Output            string                 `json:"output"`
	IntermediateSteps []Tool_Step            `json:"intermediate_steps"`
	ToolCallsCount    int                    `json:"tool_calls_count"`
	Metadata          map[string]interface{} `json:"metadata"`
	Error             *string                `json:"error"`
}

// Stream event types.
const (
	EventToken     = "token"
	EventToolStart = "tool_start"
	EventToolEnd   = "tool_end"
	EventDone      = "done"
	EventError     = "error"
)

// Stream_Event is one entry of a streamed run. Exactly one done or error
// event terminates a stream.
type Stream_Event struct {
	Type    string                 `json:"type"`
	Content string                 `json:"content,omitempty"`
	Tool    string                 `json:"tool,omitempty"`
	Input   map[string]interface{} `json:"input,omitempty"`
	Output  string                 `json:"output,omitempty"`
	Message string                 `json:"message,omitempty"`
}

// Terminal reports whether e ends a stream.
func (e Stream_Event) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}

type ModelInfo struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Provider       string   `json:"provider"`
	RecommendedFor []string `json:"recommended_for"`
}

type AgentInfo struct {
	Type         string   `json:"type"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	DefaultModel string   `json:"default_model"`
	Tools        []string `json:"tools"`
}
