package gemini

import (
	"context"
	"fmt"
	"iter"
	"os"
	"sync"

	"github.com/Desarso/opsagent/models"
	"google.golang.org/genai"
)

const DefaultModel = "gemini-2.0-flash"

// GeminiClient is the subset of the genai SDK used by the adapter.
// *genai.Models satisfies it.
type GeminiClient interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
}

type Gemini_Model struct {
	Model        string   `json:"model"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	APIKeyEnv    string   `json:"-"` // defaults to GEMINI_API_KEY
	Client       GeminiClient

	mu sync.Mutex
}

func (g *Gemini_Model) Model_Request(ctx context.Context, messages []models.Message, tools []models.FunctionDeclaration) (models.Model_Response, error) {
	client, err := g.client(ctx)
	if err != nil {
		return models.Model_Response{}, err
	}

	contents, config := g.buildRequest(messages, tools)
	resp, err := client.GenerateContent(ctx, g.modelName(), contents, config)
	if err != nil {
		return models.Model_Response{}, fmt.Errorf("gemini request failed: %w", err)
	}
	return fromGeminiResponse(resp), nil
}

func (g *Gemini_Model) Stream_Model_Request(ctx context.Context, messages []models.Message, tools []models.FunctionDeclaration) (<-chan models.Model_Response, <-chan error) {
	respChan := make(chan models.Model_Response)
	errChan := make(chan error, 1)

	go func() {
		defer close(respChan)
		defer close(errChan)

		client, err := g.client(ctx)
		if err != nil {
			errChan <- err
			return
		}

		contents, config := g.buildRequest(messages, tools)
		for chunk, err := range client.GenerateContentStream(ctx, g.modelName(), contents, config) {
			if err != nil {
				errChan <- fmt.Errorf("gemini stream failed: %w", err)
				return
			}
			resp := fromGeminiResponse(chunk)
			if len(resp.Parts) == 0 {
				continue
			}
			select {
			case respChan <- resp:
			case <-ctx.Done():
				errChan <- ctx.Err()
				return
			}
		}
	}()

	return respChan, errChan
}

func (g *Gemini_Model) buildRequest(messages []models.Message, tools []models.FunctionDeclaration) ([]*genai.Content, *genai.GenerateContentConfig) {
	system, contents := toGeminiContents(messages)
	if system == nil && g.SystemPrompt != "" {
		system = &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(g.SystemPrompt)}}
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: system,
		Tools:             toGeminiTools(tools),
	}
	if g.Temperature != nil {
		t := float32(*g.Temperature)
		config.Temperature = &t
	}
	return contents, config
}

func (g *Gemini_Model) modelName() string {
	if g.Model == "" {
		return DefaultModel
	}
	return g.Model
}

// client lazily creates the SDK client from the configured API key.
func (g *Gemini_Model) client(ctx context.Context) (GeminiClient, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Client != nil {
		return g.Client, nil
	}

	keyEnv := g.APIKeyEnv
	if keyEnv == "" {
		keyEnv = "GEMINI_API_KEY"
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  os.Getenv(keyEnv),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	g.Client = c.Models
	return g.Client, nil
}
