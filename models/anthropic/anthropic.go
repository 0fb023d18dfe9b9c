package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/Desarso/opsagent/models"
)

const (
	DefaultBaseURL    = "https://api.anthropic.com/v1/messages"
	DefaultAPIVersion = "2023-06-01"
	DefaultModel      = "claude-sonnet-4-20250514"
	DefaultMaxTokens  = 4096
)

// Anthropic_Model implements models.Model for the Anthropic Messages API.
type Anthropic_Model struct {
	Model        string
	Temperature  *float64
	MaxTokens    *int
	SystemPrompt string
	BaseURL      string       // Optional: custom API endpoint
	APIKeyEnv    string       // Optional: env var name for API key (defaults to ANTHROPIC_API_KEY)
	HTTPClient   *http.Client `json:"-"`
}

// Model_Request implements the Model interface for non-streaming requests.
func (a *Anthropic_Model) Model_Request(ctx context.Context, messages []models.Message, tools []models.FunctionDeclaration) (models.Model_Response, error) {
	anthropicReq, err := a.buildRequest(messages, tools, false)
	if err != nil {
		return models.Model_Response{}, err
	}

	resp, err := a.do(ctx, anthropicReq)
	if err != nil {
		return models.Model_Response{}, err
	}
	defer resp.Body.Close()

	var anthropicResp AnthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&anthropicResp); err != nil {
		return models.Model_Response{}, fmt.Errorf("failed to decode response: %w", err)
	}
	return toModelResponse(anthropicResp), nil
}

func (a *Anthropic_Model) Stream_Model_Request(ctx context.Context, messages []models.Message, tools []models.FunctionDeclaration) (<-chan models.Model_Response, <-chan error) {
	respChan := make(chan models.Model_Response)
	errChan := make(chan error, 1)

	go func() {
		defer close(respChan)
		defer close(errChan)

		anthropicReq, err := a.buildRequest(messages, tools, true)
		if err != nil {
			errChan <- err
			return
		}

		resp, err := a.do(ctx, anthropicReq)
		if err != nil {
			errChan <- err
			return
		}
		defer resp.Body.Close()

		if err := parseSSEStream(ctx, resp.Body, respChan); err != nil {
			errChan <- err
		}
	}()

	return respChan, errChan
}

func (a *Anthropic_Model) do(ctx context.Context, anthropicReq AnthropicRequest) (*http.Response, error) {
	jsonBytes, err := json.Marshal(anthropicReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	baseURL := a.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL, bytes.NewReader(jsonBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	a.setHeaders(req)

	client := a.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		var errResp ErrorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
			return nil, fmt.Errorf("Anthropic API error: %s (type: %s)", errResp.Error.Message, errResp.Error.Type)
		}
		return nil, fmt.Errorf("Anthropic API error: status %d, body: %s", resp.StatusCode, string(body))
	}
	return resp, nil
}

// parseSSEStream reads Anthropic SSE events and sends Model_Response chunks.
// Tool calls are emitted when their content block stops.
func parseSSEStream(ctx context.Context, r io.Reader, respChan chan<- models.Model_Response) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	type toolBlock struct {
		id   string
		name string
		json strings.Builder
	}
	toolBlocks := make(map[int]*toolBlock)

	send := func(resp models.Model_Response) error {
		select {
		case respChan <- resp:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		var raw struct {
			Type         string          `json:"type"`
			Index        int             `json:"index"`
			ContentBlock json.RawMessage `json:"content_block"`
			Delta        json.RawMessage `json:"delta"`
			Error        *struct {
				Type    string `json:"type"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal([]byte(data), &raw); err != nil {
			continue
		}

		switch raw.Type {
		case EventContentBlockStart:
			var block ContentBlock
			if raw.ContentBlock != nil && json.Unmarshal(raw.ContentBlock, &block) == nil && block.Type == "tool_use" {
				toolBlocks[raw.Index] = &toolBlock{id: block.ID, name: block.Name}
			}

		case EventContentBlockDelta:
			var delta struct {
				Type        string `json:"type"`
				Text        string `json:"text"`
				PartialJSON string `json:"partial_json"`
			}
			if raw.Delta == nil || json.Unmarshal(raw.Delta, &delta) != nil {
				continue
			}
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					if err := send(models.Model_Response{Parts: []models.Model_Part{models.TextPart(delta.Text)}}); err != nil {
						return err
					}
				}
			case "input_json_delta":
				if tb, ok := toolBlocks[raw.Index]; ok {
					tb.json.WriteString(delta.PartialJSON)
				}
			}

		case EventContentBlockStop:
			tb, ok := toolBlocks[raw.Index]
			if !ok {
				continue
			}
			call := models.FunctionCall{ID: tb.id, Name: tb.name, Args: map[string]interface{}{}}
			if tb.json.Len() > 0 {
				if err := json.Unmarshal([]byte(tb.json.String()), &call.Args); err != nil {
					call.Args = map[string]interface{}{}
					call.ArgsError = err.Error()
				}
			}
			delete(toolBlocks, raw.Index)
			if err := send(models.Model_Response{Parts: []models.Model_Part{models.CallPart(call)}}); err != nil {
				return err
			}

		case "error":
			if raw.Error != nil {
				return fmt.Errorf("Anthropic stream error: %s (type: %s)", raw.Error.Message, raw.Error.Type)
			}
			return fmt.Errorf("Anthropic stream error")

		case EventMessageStop:
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("error reading stream: %w", err)
	}
	return fmt.Errorf("error reading stream: %w", io.ErrUnexpectedEOF)
}

// toModelResponse converts an Anthropic response to a Model_Response.
func toModelResponse(resp AnthropicResponse) models.Model_Response {
	modelResp := models.Model_Response{}

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			if block.Text != "" {
				modelResp.Parts = append(modelResp.Parts, models.TextPart(block.Text))
			}
		case "tool_use":
			args := make(map[string]interface{})
			switch v := block.Input.(type) {
			case map[string]interface{}:
				args = v
			case nil:
			default:
				b, _ := json.Marshal(v)
				json.Unmarshal(b, &args)
			}
			modelResp.Parts = append(modelResp.Parts, models.CallPart(models.FunctionCall{
				ID:   block.ID,
				Name: block.Name,
				Args: args,
			}))
		}
	}

	return modelResp
}

// buildRequest constructs the Anthropic API request. System messages are
// hoisted into the top-level system field.
func (a *Anthropic_Model) buildRequest(transcript []models.Message, tools []models.FunctionDeclaration, stream bool) (AnthropicRequest, error) {
	var systemParts []string
	messages := []AnthropicMsg{}

	for _, m := range transcript {
		switch m.Role {
		case models.RoleSystem:
			if m.Content != "" {
				systemParts = append(systemParts, m.Content)
			}
		case models.RoleUser:
			messages = append(messages, AnthropicMsg{Role: "user", Content: []ContentBlock{{Type: "text", Text: m.Content}}})
		case models.RoleAssistant:
			var blocks []ContentBlock
			if m.Content != "" {
				blocks = append(blocks, ContentBlock{Type: "text", Text: m.Content})
			}
			for _, call := range m.ToolCalls {
				input := call.Args
				if input == nil {
					input = map[string]interface{}{}
				}
				blocks = append(blocks, ContentBlock{Type: "tool_use", ID: call.ID, Name: call.Name, Input: input})
			}
			if len(blocks) == 0 {
				continue
			}
			messages = append(messages, AnthropicMsg{Role: "assistant", Content: blocks})
		case models.RoleTool:
			messages = append(messages, AnthropicMsg{Role: "user", Content: []ContentBlock{{
				Type:      "tool_result",
				ToolUseID: m.ToolCallID,
				Content:   m.Content,
			}}})
		}
	}

	if len(messages) == 0 {
		return AnthropicRequest{}, fmt.Errorf("cannot create Anthropic request with no messages")
	}

	// Anthropic requires strictly alternating user/assistant roles.
	messages = mergeConsecutiveMessages(messages)

	maxTokens := DefaultMaxTokens
	if a.MaxTokens != nil {
		maxTokens = *a.MaxTokens
	}

	system := strings.Join(systemParts, "\n\n")
	if system == "" {
		system = a.SystemPrompt
	}

	model := a.Model
	if model == "" {
		model = DefaultModel
	}

	return AnthropicRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		Messages:    messages,
		System:      system,
		Tools:       ConvertToAnthropicTools(tools),
		Stream:      stream,
		Temperature: a.Temperature,
	}, nil
}

// mergeConsecutiveMessages merges consecutive messages with the same role.
func mergeConsecutiveMessages(messages []AnthropicMsg) []AnthropicMsg {
	if len(messages) <= 1 {
		return messages
	}

	var result []AnthropicMsg
	for _, msg := range messages {
		if len(result) > 0 && result[len(result)-1].Role == msg.Role {
			prev := &result[len(result)-1]
			prev.Content = append(toContentBlocks(prev.Content), toContentBlocks(msg.Content)...)
		} else {
			result = append(result, msg)
		}
	}
	return result
}

// toContentBlocks converts a message content (string or []ContentBlock) to []ContentBlock.
func toContentBlocks(content interface{}) []ContentBlock {
	switch v := content.(type) {
	case string:
		return []ContentBlock{{Type: "text", Text: v}}
	case []ContentBlock:
		return v
	default:
		b, _ := json.Marshal(v)
		var blocks []ContentBlock
		if json.Unmarshal(b, &blocks) == nil {
			return blocks
		}
		return nil
	}
}

// setHeaders sets required headers for Anthropic API requests.
func (a *Anthropic_Model) setHeaders(req *http.Request) {
	apiKeyEnv := a.APIKeyEnv
	if apiKeyEnv == "" {
		apiKeyEnv = "ANTHROPIC_API_KEY"
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", os.Getenv(apiKeyEnv))
	req.Header.Set("anthropic-version", DefaultAPIVersion)
}
