package models

import (
	"context"
	"encoding/json"
	"fmt"
)

type FunctionDeclaration struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Parameters  Parameters `json:"parameters"`
}

// Parameters defines the JSON Schema for function parameters
type Parameters struct {
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties"`
	Required   []string               `json:"required"`
}

// Tool is a named function the model may request. Invoke receives the decoded
// call arguments and the opaque run context supplied by the caller.
type Tool interface {
	Declaration() FunctionDeclaration
	Invoke(ctx context.Context, args map[string]interface{}, runContext map[string]interface{}) (ToolOutput, error)
}

// ToolOutput is the typed result of a successful tool invocation. It is only
// converted to text when it is folded back into the transcript.
type ToolOutput struct {
	Payload interface{}
}

// String renders the payload: strings pass through, everything else is JSON.
func (o ToolOutput) String() string {
	switch v := o.Payload.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	}
	b, err := json.Marshal(o.Payload)
	if err != nil {
		return fmt.Sprintf("%v", o.Payload)
	}
	return string(b)
}
