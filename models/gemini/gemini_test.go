package gemini

import (
	"context"
	"errors"
	"iter"
	"testing"

	"github.com/Desarso/opsagent/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type mockClient struct {
	generate func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	chunks   []*genai.GenerateContentResponse
	streamErr error
}

func (m *mockClient) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return m.generate(ctx, model, contents, config)
}

func (m *mockClient) GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error] {
	return func(yield func(*genai.GenerateContentResponse, error) bool) {
		for _, c := range m.chunks {
			if !yield(c, nil) {
				return
			}
		}
		if m.streamErr != nil {
			yield(nil, m.streamErr)
		}
	}
}

func candidate(parts ...*genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Role: "model", Parts: parts}}},
	}
}

func TestModelRequestConvertsTranscriptAndResponse(t *testing.T) {
	var gotContents []*genai.Content
	var gotConfig *genai.GenerateContentConfig
	client := &mockClient{
		generate: func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			assert.Equal(t, DefaultModel, model)
			gotContents, gotConfig = contents, config
			return candidate(
				&genai.Part{Text: "thinking", Thought: true},
				&genai.Part{Text: "done"},
				&genai.Part{FunctionCall: &genai.FunctionCall{ID: "g1", Name: "calculator", Args: map[string]any{"expression": "2+2"}}},
			), nil
		},
	}
	temp := 0.2
	g := &Gemini_Model{Client: client, Temperature: &temp}

	resp, err := g.Model_Request(context.Background(), []models.Message{
		models.NewSystemMessage("sys"),
		models.NewUserMessage("hi"),
		models.NewAssistantMessage("", []models.FunctionCall{{ID: "a", Name: "x"}, {ID: "b", Name: "y"}}),
		models.NewToolMessage(models.Tool_Result{Tool_ID: "a", Tool_Name: "x", Tool_Output: "1"}),
		models.NewToolMessage(models.Tool_Result{Tool_ID: "b", Tool_Name: "y", Tool_Output: "2"}),
	}, []models.FunctionDeclaration{{
		Name: "calculator",
		Parameters: models.Parameters{
			Type:       "object",
			Properties: map[string]interface{}{"expression": map[string]interface{}{"type": "string"}},
			Required:   []string{"expression"},
		},
	}})
	require.NoError(t, err)

	assert.Equal(t, "done", resp.Text())
	require.Len(t, resp.FunctionCalls(), 1)

	require.NotNil(t, gotConfig.SystemInstruction)
	require.NotNil(t, gotConfig.Temperature)
	require.Len(t, gotConfig.Tools, 1)
	assert.Equal(t, genai.TypeString, gotConfig.Tools[0].FunctionDeclarations[0].Parameters.Properties["expression"].Type)

	require.Len(t, gotContents, 3)
	assert.Equal(t, "user", gotContents[2].Role)
	assert.Len(t, gotContents[2].Parts, 2, "parallel function responses share one turn")
}

func TestStreamForwardsChunksAndError(t *testing.T) {
	client := &mockClient{
		chunks:    []*genai.GenerateContentResponse{candidate(&genai.Part{Text: "par"}), candidate(&genai.Part{Text: "tial"})},
		streamErr: errors.New("quota exceeded"),
	}
	g := &Gemini_Model{Client: client}

	respChan, errChan := g.Stream_Model_Request(context.Background(), []models.Message{models.NewUserMessage("hi")}, nil)
	var text string
	for r := range respChan {
		text += r.Text()
	}
	err := <-errChan

	assert.Equal(t, "partial", text)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}
