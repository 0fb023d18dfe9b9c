package common_tools

import (
	"context"
	"fmt"

	"github.com/Desarso/opsagent/models"
	"github.com/mitchellh/mapstructure"
)

// ContextKeys are arguments that fall back to the run context when the model
// omits them.
var ContextKeys = []string{"project_id", "team_id", "account_id"}

// Handler executes a tool with its decoded request.
type Handler[Req any] func(ctx context.Context, req Req) (interface{}, error)

// TypedTool adapts a Handler to models.Tool.
type TypedTool[Req any] struct {
	decl    models.FunctionDeclaration
	handler Handler[Req]
}

// NewTool creates a tool whose arguments are decoded into Req using the
// request's json tags.
func NewTool[Req any](decl models.FunctionDeclaration, handler Handler[Req]) *TypedTool[Req] {
	if decl.Parameters.Type == "" {
		decl.Parameters.Type = "object"
	}
	if decl.Parameters.Properties == nil {
		decl.Parameters.Properties = map[string]interface{}{}
	}
	return &TypedTool[Req]{decl: decl, handler: handler}
}

func (t *TypedTool[Req]) Declaration() models.FunctionDeclaration {
	return t.decl
}

func (t *TypedTool[Req]) Invoke(ctx context.Context, args map[string]interface{}, runContext map[string]interface{}) (models.ToolOutput, error) {
	merged := t.withContextDefaults(args, runContext)

	for _, name := range t.decl.Parameters.Required {
		if v, ok := merged[name]; !ok || v == nil || v == "" {
			return models.ToolOutput{}, fmt.Errorf("missing required argument: %s", name)
		}
	}

	var req Req
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           &req,
	})
	if err != nil {
		return models.ToolOutput{}, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(merged); err != nil {
		return models.ToolOutput{}, fmt.Errorf("invalid arguments for %s: %w", t.decl.Name, err)
	}

	payload, err := t.handler(ctx, req)
	if err != nil {
		return models.ToolOutput{}, err
	}
	return models.ToolOutput{Payload: payload}, nil
}

// withContextDefaults copies args and fills declared context keys from the
// run context.
func (t *TypedTool[Req]) withContextDefaults(args, runContext map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(args)+len(ContextKeys))
	for k, v := range args {
		merged[k] = v
	}
	for _, key := range ContextKeys {
		if _, declared := t.decl.Parameters.Properties[key]; !declared {
			continue
		}
		if v, ok := merged[key]; ok && v != nil && v != "" {
			continue
		}
		if v, ok := runContext[key]; ok && v != nil && v != "" {
			merged[key] = v
		}
	}
	return merged
}
