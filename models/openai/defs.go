package openai

import "github.com/Desarso/opsagent/models"

// Chat-completions request/response types shared by every OpenAI-compatible
// endpoint (OpenAI, xAI, Ollama, OpenRouter, Groq, Cerebras).

// Request types

type ChatRequest struct {
	Model       string      `json:"model"`
	Messages    []Message   `json:"messages"`
	Tools       []Tool      `json:"tools,omitempty"`
	ToolChoice  interface{} `json:"tool_choice,omitempty"` // "auto", "none", or specific tool
	Stream      bool        `json:"stream,omitempty"`
	MaxTokens   *int        `json:"max_tokens,omitempty"`
	Temperature *float64    `json:"temperature,omitempty"`
}

type Message struct {
	Role       string      `json:"role"`              // "system", "user", "assistant", "tool"
	Content    interface{} `json:"content,omitempty"` // string; null for tool-call-only assistant turns
	ToolCalls  []ToolCall  `json:"tool_calls,omitempty"`
	ToolCallID *string     `json:"tool_call_id,omitempty"`
}

type Tool struct {
	Type     string       `json:"type"` // "function"
	Function ToolFunction `json:"function"`
}

type ToolFunction struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  interface{} `json:"parameters"` // JSON Schema object
}

type ToolCall struct {
	Index    *int             `json:"index,omitempty"` // only present in stream deltas
	ID       string           `json:"id,omitempty"`
	Type     string           `json:"type,omitempty"` // "function"
	Function ToolCallFunction `json:"function"`
}

type ToolCallFunction struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments"` // JSON string of arguments
}

// Response types

type ChatResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"` // "chat.completion" or "chat.completion.chunk"
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

type Choice struct {
	Index        int      `json:"index"`
	Message      Message  `json:"message,omitempty"` // For non-streaming
	Delta        *Message `json:"delta,omitempty"`   // For streaming
	FinishReason *string  `json:"finish_reason,omitempty"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Error response
type ErrorResponse struct {
	Error APIError `json:"error"`
}

type APIError struct {
	Message string      `json:"message"`
	Type    string      `json:"type"`
	Param   interface{} `json:"param,omitempty"`
	Code    interface{} `json:"code,omitempty"`
}

// SanitizedParameters ensures the parameters object has proper structure for strict APIs like xAI/Grok
// Some APIs require properties to be an object (not null) and required to be an array (not null)
type SanitizedParameters struct {
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties"`
	Required   []string               `json:"required"`
}

// ConvertTool converts a FunctionDeclaration to the chat-completions tool format.
func ConvertTool(fd models.FunctionDeclaration) Tool {
	params := SanitizedParameters{
		Type:       fd.Parameters.Type,
		Properties: fd.Parameters.Properties,
		Required:   fd.Parameters.Required,
	}
	if params.Properties == nil {
		params.Properties = make(map[string]interface{})
	}
	if params.Required == nil {
		params.Required = []string{}
	}
	if params.Type == "" {
		params.Type = "object"
	}

	return Tool{
		Type: "function",
		Function: ToolFunction{
			Name:        fd.Name,
			Description: fd.Description,
			Parameters:  params,
		},
	}
}

func ConvertTools(fds []models.FunctionDeclaration) []Tool {
	if len(fds) == 0 {
		return nil
	}
	tools := make([]Tool, len(fds))
	for i, fd := range fds {
		tools[i] = ConvertTool(fd)
	}
	return tools
}
