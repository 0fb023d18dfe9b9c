package gemini

import (
	"github.com/Desarso/opsagent/models"
	"google.golang.org/genai"
)

// toGeminiContents splits the transcript into a system instruction and the
// alternating user/model contents. Consecutive entries of the same Gemini
// role are merged so parallel function responses share one turn.
func toGeminiContents(messages []models.Message) (*genai.Content, []*genai.Content) {
	var system *genai.Content
	contents := make([]*genai.Content, 0, len(messages))

	for _, msg := range messages {
		if msg.Role == models.RoleSystem {
			if msg.Content == "" {
				continue
			}
			if system == nil {
				system = &genai.Content{}
			}
			system.Parts = append(system.Parts, genai.NewPartFromText(msg.Content))
			continue
		}

		content := messageToGeminiContent(msg)
		if content == nil {
			continue
		}
		if n := len(contents); n > 0 && contents[n-1].Role == content.Role {
			contents[n-1].Parts = append(contents[n-1].Parts, content.Parts...)
			continue
		}
		contents = append(contents, content)
	}
	return system, contents
}

// messageToGeminiContent converts a single message to Gemini Content format.
func messageToGeminiContent(msg models.Message) *genai.Content {
	role := "user"
	if msg.Role == models.RoleAssistant {
		role = "model"
	}

	parts := make([]*genai.Part, 0)

	switch msg.Role {
	case models.RoleTool:
		parts = append(parts, &genai.Part{
			FunctionResponse: &genai.FunctionResponse{
				ID:       msg.ToolCallID,
				Name:     msg.ToolName,
				Response: map[string]any{"output": msg.Content},
			},
		})
	default:
		if msg.Content != "" {
			parts = append(parts, genai.NewPartFromText(msg.Content))
		}
		for _, call := range msg.ToolCalls {
			parts = append(parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{
					ID:   call.ID,
					Name: call.Name,
					Args: call.Args,
				},
			})
		}
	}

	if len(parts) == 0 {
		return nil
	}
	return &genai.Content{Role: role, Parts: parts}
}

func toGeminiTools(tools []models.FunctionDeclaration) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}

	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  toGeminiSchema(t.Parameters),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func toGeminiSchema(params models.Parameters) *genai.Schema {
	schema := &genai.Schema{Type: genai.TypeObject}
	if len(params.Properties) > 0 {
		schema.Properties = make(map[string]*genai.Schema, len(params.Properties))
		for name, prop := range params.Properties {
			if m, ok := prop.(map[string]interface{}); ok {
				schema.Properties[name] = propertySchema(m)
			}
		}
	}
	if len(params.Required) > 0 {
		schema.Required = params.Required
	}
	return schema
}

// propertySchema converts one JSON-schema property map.
func propertySchema(prop map[string]interface{}) *genai.Schema {
	typ, _ := prop["type"].(string)
	s := &genai.Schema{Type: toGeminiType(typ)}
	if desc, ok := prop["description"].(string); ok {
		s.Description = desc
	}
	switch enum := prop["enum"].(type) {
	case []string:
		s.Enum = enum
	case []interface{}:
		for _, v := range enum {
			if str, ok := v.(string); ok {
				s.Enum = append(s.Enum, str)
			}
		}
	}
	if items, ok := prop["items"].(map[string]interface{}); ok {
		s.Items = propertySchema(items)
	}
	if nested, ok := prop["properties"].(map[string]interface{}); ok {
		s.Properties = make(map[string]*genai.Schema, len(nested))
		for name, p := range nested {
			if m, ok := p.(map[string]interface{}); ok {
				s.Properties[name] = propertySchema(m)
			}
		}
	}
	return s
}

// toGeminiType converts string type to Gemini Type.
func toGeminiType(typeStr string) genai.Type {
	switch typeStr {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}

// fromGeminiResponse converts the first candidate to a Model_Response.
// Thought parts are skipped.
func fromGeminiResponse(resp *genai.GenerateContentResponse) models.Model_Response {
	out := models.Model_Response{}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return out
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		if part.Text != "" {
			out.Parts = append(out.Parts, models.TextPart(part.Text))
		}
		if part.FunctionCall != nil {
			args := part.FunctionCall.Args
			if args == nil {
				args = map[string]any{}
			}
			out.Parts = append(out.Parts, models.CallPart(models.FunctionCall{
				ID:   part.FunctionCall.ID,
				Name: part.FunctionCall.Name,
				Args: args,
			}))
		}
	}
	return out
}
