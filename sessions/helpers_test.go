package sessions

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Desarso/opsagent/common_tools"
	"github.com/Desarso/opsagent/models"
	"github.com/stretchr/testify/require"
)

// scriptedModel replies with one scripted response per request and records
// the transcript it was given.
type scriptedModel struct {
	mu        sync.Mutex
	responses []models.Model_Response
	err       error
	calls     int
	requests  [][]models.Message
}

func (m *scriptedModel) next(msgs []models.Message) (models.Model_Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, append([]models.Message(nil), msgs...))
	m.calls++
	if m.err != nil {
		return models.Model_Response{}, m.err
	}
	if len(m.responses) == 0 {
		return models.Model_Response{Parts: []models.Model_Part{models.TextPart("done")}}, nil
	}
	resp := m.responses[0]
	m.responses = m.responses[1:]
	return resp, nil
}

func (m *scriptedModel) Model_Request(ctx context.Context, msgs []models.Message, tools []models.FunctionDeclaration) (models.Model_Response, error) {
	if err := ctx.Err(); err != nil {
		return models.Model_Response{}, err
	}
	return m.next(msgs)
}

// Stream_Model_Request emits every part of the scripted response separately.
func (m *scriptedModel) Stream_Model_Request(ctx context.Context, msgs []models.Message, tools []models.FunctionDeclaration) (<-chan models.Model_Response, <-chan error) {
	respCh := make(chan models.Model_Response)
	errCh := make(chan error, 1)
	go func() {
		defer close(respCh)
		defer close(errCh)
		resp, err := m.next(msgs)
		if err != nil {
			errCh <- err
			return
		}
		for _, p := range resp.Parts {
			select {
			case respCh <- models.Model_Response{Parts: []models.Model_Part{p}}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return respCh, errCh
}

func (m *scriptedModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func textResponse(s string) models.Model_Response {
	return models.Model_Response{Parts: []models.Model_Part{models.TextPart(s)}}
}

func callResponse(text string, calls ...models.FunctionCall) models.Model_Response {
	var parts []models.Model_Part
	if text != "" {
		parts = append(parts, models.TextPart(text))
	}
	for _, c := range calls {
		parts = append(parts, models.CallPart(c))
	}
	return models.Model_Response{Parts: parts}
}

// stubTool runs fn when invoked.
type stubTool struct {
	name string
	fn   func(ctx context.Context, args map[string]interface{}) (interface{}, error)
}

func (s stubTool) Declaration() models.FunctionDeclaration {
	return models.FunctionDeclaration{Name: s.name, Description: "stub", Parameters: models.Parameters{Type: "object"}}
}

func (s stubTool) Invoke(ctx context.Context, args map[string]interface{}, runContext map[string]interface{}) (models.ToolOutput, error) {
	out, err := s.fn(ctx, args)
	if err != nil {
		return models.ToolOutput{}, err
	}
	return models.ToolOutput{Payload: out}, nil
}

func echoTool(name string) stubTool {
	return stubTool{name: name, fn: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		return map[string]interface{}{"echo": args["value"]}, nil
	}}
}

func failingTool(name string) stubTool {
	return stubTool{name: name, fn: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		return nil, errors.New("backend unavailable")
	}}
}

func panickingTool(name string) stubTool {
	return stubTool{name: name, fn: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		panic("boom")
	}}
}

func newTestRegistry(t *testing.T, tools ...models.Tool) *common_tools.Registry {
	t.Helper()
	reg, err := common_tools.NewRegistry(tools...)
	require.NoError(t, err)
	return reg
}

func newTestController(t *testing.T, model models.Model, tools ...models.Tool) *Controller {
	t.Helper()
	inv := NewInvoker(newTestRegistry(t, tools...))
	inv.Logger = nil
	c := NewController(model, "test-model", inv)
	c.Logger = nil
	return c
}

func call(id, name string, args map[string]interface{}) models.FunctionCall {
	return models.FunctionCall{ID: id, Name: name, Args: args}
}

func collect(ch <-chan models.Stream_Event) []models.Stream_Event {
	var events []models.Stream_Event
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}
