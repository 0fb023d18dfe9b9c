package models

// Agent_Run_Request is the body accepted by the general run and stream routes.
type Agent_Run_Request struct {
	Message      string                 `json:"message"`
	Model        string                 `json:"model,omitempty"`
	Temperature  *float64               `json:"temperature,omitempty"`
	SystemPrompt string                 `json:"system_prompt,omitempty"`
	Tools        []string               `json:"tools,omitempty"`
	ChatHistory  []Chat_Turn            `json:"chat_history,omitempty"`
	Stream       bool                   `json:"stream,omitempty"`
	Context      map[string]interface{} `json:"context,omitempty"`
	ThreadID     string                 `json:"thread_id,omitempty"`
}

// Specialized_Agent_Request is the body accepted by the docs, sheet, email and
// multi agent routes. Tools are fixed by the agent kind.
type Specialized_Agent_Request struct {
	Message     string                 `json:"message"`
	Model       string                 `json:"model,omitempty"`
	Temperature *float64               `json:"temperature,omitempty"`
	ChatHistory []Chat_Turn            `json:"chat_history,omitempty"`
	Context     map[string]interface{} `json:"context,omitempty"`
	ThreadID    string                 `json:"thread_id,omitempty"`
}

type Tool_Result struct {
	Tool_ID     string `json:"tool_id"` // The tool call ID to match with the tool call
	Tool_Name   string `json:"tool_name"`
	Tool_Output string `json:"tool_output"`
	Succeeded   bool   `json:"succeeded"`
}
