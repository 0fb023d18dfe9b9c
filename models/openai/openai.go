package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/Desarso/opsagent/models"
)

const (
	OpenAIBaseURL     = "https://api.openai.com/v1/chat/completions"
	XAIBaseURL        = "https://api.x.ai/v1/chat/completions"
	OllamaBaseURL     = "http://localhost:11434/v1/chat/completions"
	OpenRouterBaseURL = "https://openrouter.ai/api/v1/chat/completions"
	GroqBaseURL       = "https://api.groq.com/openai/v1/chat/completions"
	CerebrasBaseURL   = "https://api.cerebras.ai/v1/chat/completions"
	DefaultModel      = "gpt-4o"
)

// OpenAI_Model implements models.Model for any OpenAI-compatible
// chat-completions endpoint.
type OpenAI_Model struct {
	Model        string // Model identifier (e.g., "gpt-4o", "grok-3-fast", "llama3.2")
	Temperature  *float64
	MaxTokens    *int
	SystemPrompt string       // Optional: used when the transcript carries no system message
	BaseURL      string       // Optional: defaults to OpenAIBaseURL
	APIKeyEnv    string       // Optional: defaults to OPENAI_API_KEY
	APIKey       string       // Optional: takes precedence over APIKeyEnv
	HTTPClient   *http.Client `json:"-"`
}

// Model_Request sends one non-streaming completion request.
func (o *OpenAI_Model) Model_Request(ctx context.Context, messages []models.Message, tools []models.FunctionDeclaration) (models.Model_Response, error) {
	body := o.createRequest(messages, tools, false)
	resp, err := o.do(ctx, body)
	if err != nil {
		return models.Model_Response{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Model_Response{}, fmt.Errorf("failed to read response body: %w", err)
	}

	var response ChatResponse
	if err := json.Unmarshal(raw, &response); err != nil {
		return models.Model_Response{}, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return toModelResponse(response), nil
}

// Stream_Model_Request streams text deltas immediately and emits the
// accumulated tool calls once the stream finishes.
func (o *OpenAI_Model) Stream_Model_Request(ctx context.Context, messages []models.Message, tools []models.FunctionDeclaration) (<-chan models.Model_Response, <-chan error) {
	respChan := make(chan models.Model_Response)
	errChan := make(chan error, 1)

	go func() {
		defer close(respChan)
		defer close(errChan)

		resp, err := o.do(ctx, o.createRequest(messages, tools, true))
		if err != nil {
			errChan <- err
			return
		}
		defer resp.Body.Close()

		send := func(r models.Model_Response) bool {
			select {
			case respChan <- r:
				return true
			case <-ctx.Done():
				errChan <- ctx.Err()
				return false
			}
		}

		// Tool call fragments are keyed by the delta's own index so parallel
		// calls inside one choice do not collapse into each other.
		acc := make(map[int]*ToolCall)
		flush := func() {
			if len(acc) == 0 {
				return
			}
			send(accumulatedCalls(acc))
		}

		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil && !(err == io.EOF && line != "") {
				if err == io.EOF {
					errChan <- fmt.Errorf("error reading stream: %w", io.ErrUnexpectedEOF)
					return
				}
				if ctx.Err() != nil {
					errChan <- ctx.Err()
					return
				}
				errChan <- fmt.Errorf("error reading stream: %w", err)
				return
			}

			line = strings.TrimSpace(line)
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				flush()
				return
			}

			var chunk ChatResponse
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				log.Printf("Warning: Failed to unmarshal stream chunk: %v, data: %s", err, data)
				continue
			}

			for _, choice := range chunk.Choices {
				if choice.Delta == nil {
					continue
				}
				if text, ok := choice.Delta.Content.(string); ok && text != "" {
					if !send(models.Model_Response{Parts: []models.Model_Part{models.TextPart(text)}}) {
						return
					}
				}
				for i, tc := range choice.Delta.ToolCalls {
					idx := i
					if tc.Index != nil {
						idx = *tc.Index
					}
					existing, ok := acc[idx]
					if !ok {
						acc[idx] = &ToolCall{ID: tc.ID, Type: tc.Type, Function: tc.Function}
						continue
					}
					if tc.ID != "" {
						existing.ID = tc.ID
					}
					if tc.Function.Name != "" {
						existing.Function.Name += tc.Function.Name
					}
					existing.Function.Arguments += tc.Function.Arguments
				}
			}
		}
	}()

	return respChan, errChan
}

func (o *OpenAI_Model) do(ctx context.Context, body ChatRequest) (*http.Response, error) {
	jsonBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	baseURL := o.BaseURL
	if baseURL == "" {
		baseURL = OpenAIBaseURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL, bytes.NewReader(jsonBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	o.setHeaders(req)

	client := o.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(resp.Body)
		var errResp ErrorResponse
		if err := json.Unmarshal(raw, &errResp); err == nil && errResp.Error.Message != "" {
			return nil, fmt.Errorf("chat completions API error: %s (type: %s)", errResp.Error.Message, errResp.Error.Type)
		}
		return nil, fmt.Errorf("chat completions API error: status %d, body: %s", resp.StatusCode, string(raw))
	}
	return resp, nil
}

// setHeaders sets bearer auth from APIKey or the configured environment variable.
func (o *OpenAI_Model) setHeaders(req *http.Request) {
	apiKey := o.APIKey
	if apiKey == "" {
		apiKeyEnv := o.APIKeyEnv
		if apiKeyEnv == "" {
			apiKeyEnv = "OPENAI_API_KEY"
		}
		apiKey = os.Getenv(apiKeyEnv)
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	req.Header.Set("Content-Type", "application/json")
}

func (o *OpenAI_Model) createRequest(messages []models.Message, tools []models.FunctionDeclaration, stream bool) ChatRequest {
	model := o.Model
	if model == "" {
		model = DefaultModel
	}

	req := ChatRequest{
		Model:       model,
		Messages:    o.convertMessages(messages),
		Tools:       ConvertTools(tools),
		Stream:      stream,
		MaxTokens:   o.MaxTokens,
		Temperature: o.Temperature,
	}
	if len(req.Tools) > 0 {
		req.ToolChoice = "auto"
	}
	return req
}

func (o *OpenAI_Model) convertMessages(messages []models.Message) []Message {
	out := make([]Message, 0, len(messages)+1)
	if o.SystemPrompt != "" && (len(messages) == 0 || messages[0].Role != models.RoleSystem) {
		out = append(out, Message{Role: models.RoleSystem, Content: o.SystemPrompt})
	}

	for _, m := range messages {
		switch m.Role {
		case models.RoleTool:
			id := m.ToolCallID
			out = append(out, Message{Role: "tool", Content: m.Content, ToolCallID: &id})
		case models.RoleAssistant:
			msg := Message{Role: "assistant"}
			if m.Content != "" || len(m.ToolCalls) == 0 {
				msg.Content = m.Content
			}
			for _, call := range m.ToolCalls {
				args, err := json.Marshal(call.Args)
				if err != nil || call.Args == nil {
					args = []byte("{}")
				}
				msg.ToolCalls = append(msg.ToolCalls, ToolCall{
					ID:       call.ID,
					Type:     "function",
					Function: ToolCallFunction{Name: call.Name, Arguments: string(args)},
				})
			}
			out = append(out, msg)
		default:
			out = append(out, Message{Role: m.Role, Content: m.Content})
		}
	}
	return out
}

// toModelResponse converts a chat-completions response to the standard Model_Response
func toModelResponse(response ChatResponse) models.Model_Response {
	modelResponse := models.Model_Response{}

	for _, choice := range response.Choices {
		if text, ok := choice.Message.Content.(string); ok && text != "" {
			modelResponse.Parts = append(modelResponse.Parts, models.TextPart(text))
		}
		for _, tc := range choice.Message.ToolCalls {
			if tc.Type != "" && tc.Type != "function" {
				continue
			}
			modelResponse.Parts = append(modelResponse.Parts, models.CallPart(toolCall(tc)))
		}
	}
	return modelResponse
}

func accumulatedCalls(acc map[int]*ToolCall) models.Model_Response {
	indexes := make([]int, 0, len(acc))
	for idx := range acc {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	resp := models.Model_Response{}
	for _, idx := range indexes {
		tc := acc[idx]
		resp.Parts = append(resp.Parts, models.CallPart(toolCall(*tc)))
	}
	return resp
}

// toolCall converts a provider tool call. Undecodable arguments leave Args
// empty and are reported through ArgsError.
func toolCall(tc ToolCall) models.FunctionCall {
	call := models.FunctionCall{ID: tc.ID, Name: tc.Function.Name}
	args, err := decodeArgs(tc.Function.Arguments)
	call.Args = args
	if err != nil {
		log.Printf("Warning: Failed to unmarshal tool call arguments for %s: %v", tc.Function.Name, err)
		call.ArgsError = err.Error()
	}
	return call
}

func decodeArgs(raw string) (map[string]interface{}, error) {
	args := map[string]interface{}{}
	if strings.TrimSpace(raw) == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return map[string]interface{}{}, err
	}
	return args, nil
}
