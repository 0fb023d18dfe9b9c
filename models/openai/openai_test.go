package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Desarso/opsagent/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelRequestParsesTextAndToolCalls(t *testing.T) {
	var got ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"choices":[{"index":0,"message":{"role":"assistant","content":"checking","tool_calls":[
			{"id":"call_1","type":"function","function":{"name":"calculator","arguments":"{\"expression\":\"1+1\"}"}}]}}]}`)
	}))
	defer srv.Close()

	m := &OpenAI_Model{Model: "gpt-4o", BaseURL: srv.URL, APIKey: "test-key", SystemPrompt: "be brief"}
	decl := models.FunctionDeclaration{Name: "calculator", Description: "math"}
	resp, err := m.Model_Request(context.Background(), []models.Message{models.NewUserMessage("1+1?")}, []models.FunctionDeclaration{decl})
	require.NoError(t, err)

	assert.Equal(t, "checking", resp.Text())
	calls := resp.FunctionCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "call_1", calls[0].ID)
	assert.Equal(t, "1+1", calls[0].Args["expression"])

	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "auto", got.ToolChoice)
	require.Len(t, got.Tools, 1)
	assert.Equal(t, "calculator", got.Tools[0].Function.Name)
}

func TestModelRequestReportsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"bad key","type":"auth"}}`)
	}))
	defer srv.Close()

	m := &OpenAI_Model{BaseURL: srv.URL}
	_, err := m.Model_Request(context.Background(), []models.Message{models.NewUserMessage("hi")}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad key")
}

func TestStreamAccumulatesParallelToolCallsByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{
			`{"choices":[{"index":0,"delta":{"content":"Hel"}}]}`,
			`{"choices":[{"index":0,"delta":{"content":"lo"}}]}`,
			`{"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"a","type":"function","function":{"name":"web_search","arguments":"{\"query\":"}}]}}]}`,
			`{"choices":[{"index":0,"delta":{"tool_calls":[{"index":1,"id":"b","type":"function","function":{"name":"calculator","arguments":"{\"expression\":\"2*3\"}"}}]}}]}`,
			`{"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"go\"}"}}]}}]}`,
		}
		for _, c := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", c)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	m := &OpenAI_Model{BaseURL: srv.URL}
	respChan, errChan := m.Stream_Model_Request(context.Background(), []models.Message{models.NewUserMessage("hi")}, nil)

	var text string
	var calls []models.FunctionCall
	for r := range respChan {
		text += r.Text()
		calls = append(calls, r.FunctionCalls()...)
	}
	for err := range errChan {
		require.NoError(t, err)
	}

	assert.Equal(t, "Hello", text)
	require.Len(t, calls, 2)
	assert.Equal(t, "a", calls[0].ID)
	assert.Equal(t, "go", calls[0].Args["query"])
	assert.Equal(t, "b", calls[1].ID)
	assert.Equal(t, "2*3", calls[1].Args["expression"])
}

func TestStreamCutBeforeDoneIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"partial\"}}]}\n\n")
	}))
	defer srv.Close()

	m := &OpenAI_Model{BaseURL: srv.URL}
	respChan, errChan := m.Stream_Model_Request(context.Background(), []models.Message{models.NewUserMessage("hi")}, nil)

	var text string
	for r := range respChan {
		text += r.Text()
	}
	var streamErr error
	for err := range errChan {
		streamErr = err
	}

	assert.Equal(t, "partial", text)
	require.Error(t, streamErr)
	assert.True(t, errors.Is(streamErr, io.ErrUnexpectedEOF))
	assert.Contains(t, streamErr.Error(), "error reading stream")
}

func TestMalformedToolArgumentsAreReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[{"index":0,"message":{"role":"assistant","tool_calls":[
			{"id":"call_1","type":"function","function":{"name":"calculator","arguments":"{\"expression\": "}}]}}]}`)
	}))
	defer srv.Close()

	m := &OpenAI_Model{BaseURL: srv.URL}
	resp, err := m.Model_Request(context.Background(), []models.Message{models.NewUserMessage("1+1?")}, nil)
	require.NoError(t, err)

	calls := resp.FunctionCalls()
	require.Len(t, calls, 1)
	assert.Empty(t, calls[0].Args)
	assert.Contains(t, calls[0].ArgsError, "unexpected end of JSON input")
}

func TestConvertMessagesCarriesToolCycle(t *testing.T) {
	m := &OpenAI_Model{}
	out := m.convertMessages([]models.Message{
		models.NewUserMessage("hi"),
		models.NewAssistantMessage("", []models.FunctionCall{{ID: "c1", Name: "calculator", Args: map[string]interface{}{"expression": "1"}}}),
		models.NewToolMessage(models.Tool_Result{Tool_ID: "c1", Tool_Name: "calculator", Tool_Output: "1"}),
	})

	require.Len(t, out, 3)
	assert.Nil(t, out[1].Content)
	require.Len(t, out[1].ToolCalls, 1)
	assert.JSONEq(t, `{"expression":"1"}`, out[1].ToolCalls[0].Function.Arguments)
	require.NotNil(t, out[2].ToolCallID)
	assert.Equal(t, "c1", *out[2].ToolCallID)
}

func TestConvertToolSanitizesNilSchema(t *testing.T) {
	tool := ConvertTool(models.FunctionDeclaration{Name: "noop"})
	params, ok := tool.Function.Parameters.(SanitizedParameters)
	require.True(t, ok)
	assert.Equal(t, "object", params.Type)
	assert.NotNil(t, params.Properties)
	assert.NotNil(t, params.Required)
}
