package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Desarso/opsagent"
	"github.com/Desarso/opsagent/common_tools"
	"github.com/Desarso/opsagent/models"
	"github.com/Desarso/opsagent/stores"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// replayModel answers every request with the scripted responses in order,
// then with "done".
type replayModel struct {
	responses []models.Model_Response
	err       error
	requested []string
}

func (m *replayModel) Model_Request(ctx context.Context, msgs []models.Message, tools []models.FunctionDeclaration) (models.Model_Response, error) {
	if m.err != nil {
		return models.Model_Response{}, m.err
	}
	if len(m.responses) == 0 {
		return models.Model_Response{Parts: []models.Model_Part{models.TextPart("done")}}, nil
	}
	r := m.responses[0]
	m.responses = m.responses[1:]
	return r, nil
}

func (m *replayModel) Stream_Model_Request(ctx context.Context, msgs []models.Message, tools []models.FunctionDeclaration) (<-chan models.Model_Response, <-chan error) {
	respCh := make(chan models.Model_Response, 1)
	errCh := make(chan error, 1)
	resp, err := m.Model_Request(ctx, msgs, tools)
	if err != nil {
		errCh <- err
	} else {
		respCh <- resp
	}
	close(respCh)
	close(errCh)
	return respCh, errCh
}

type testServer struct {
	*Server
	model *replayModel
}

func newTestServer(t *testing.T, withStore bool) *testServer {
	t.Helper()
	db, err := stores.NewSQLiteStoreSimple(filepath.Join(t.TempDir(), "server.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ws, err := stores.NewWorkspaceStore(db.DB())
	require.NoError(t, err)
	catalog, err := common_tools.NewCatalog(common_tools.CatalogDeps{Workspace: ws})
	require.NoError(t, err)

	var store stores.MessageStore
	if withStore {
		store = db
	}
	ts := &testServer{model: &replayModel{}}
	ts.Server = New(opsagent.NewConfig(), catalog, store)
	ts.NewModel = func(name string, temperature *float64) (models.Model, error) {
		if name == "broken-model" {
			return nil, errors.New("no credentials for broken-model")
		}
		ts.model.requested = append(ts.model.requested, name)
		return ts.model, nil
	}
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.Router().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func sseFrames(t *testing.T, body *bytes.Buffer) []string {
	t.Helper()
	var frames []string
	for _, chunk := range strings.Split(body.String(), "\n\n") {
		if chunk == "" {
			continue
		}
		require.True(t, strings.HasPrefix(chunk, "data: "), "unexpected frame %q", chunk)
		frames = append(frames, strings.TrimPrefix(chunk, "data: "))
	}
	return frames
}

func TestRunRoute(t *testing.T) {
	ts := newTestServer(t, false)
	ts.model.responses = []models.Model_Response{
		{Parts: []models.Model_Part{models.CallPart(models.FunctionCall{ID: "c1", Name: "calculator", Args: map[string]interface{}{"expression": "2*21"}})}},
		{Parts: []models.Model_Part{models.TextPart("The answer is 42.")}},
	}

	w := ts.do(t, http.MethodPost, "/agents/run", `{"message":"what is 2*21?","tools":["calculator"]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	out := decode(t, w)
	assert.Equal(t, "The answer is 42.", out["output"])
	assert.EqualValues(t, 1, out["tool_calls_count"])
	assert.Nil(t, out["error"])
	steps := out["intermediate_steps"].([]interface{})
	require.Len(t, steps, 1)
	step := steps[0].(map[string]interface{})
	assert.Equal(t, "calculator", step["tool"])
	assert.Contains(t, step["output"], "42")
	assert.Equal(t, []string{opsagent.DefaultModel}, ts.model.requested)
}

func TestRunRouteReportsModelFailure(t *testing.T) {
	ts := newTestServer(t, false)
	ts.model.err = errors.New("quota exceeded")

	w := ts.do(t, http.MethodPost, "/agents/v2/run", `{"message":"hi"}`)
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	assert.Equal(t, "quota exceeded", out["error"])
	assert.Contains(t, out["output"], "Sorry, an error occurred")
}

func TestBadRequests(t *testing.T) {
	ts := newTestServer(t, false)

	w := ts.do(t, http.MethodPost, "/agents/run", `{"message":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPost, "/agents/create/sales/run", `{"message":"hi"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["error"], "unknown agent type")

	w = ts.do(t, http.MethodPost, "/agents/run", `{"message":"hi","model":"broken-model"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["error"], "no credentials")
}

func TestSpecializedRoutesUseDefaultModels(t *testing.T) {
	ts := newTestServer(t, false)

	for _, path := range []string{"/agents/docs/run", "/agents/sheet/run", "/agents/email/run", "/agents/multi/run", "/agents/create/email/run"} {
		w := ts.do(t, http.MethodPost, path, `{"message":"hello"}`)
		require.Equal(t, http.StatusOK, w.Code, path)
		assert.Equal(t, "done", decode(t, w)["output"])
	}
	assert.Equal(t, []string{"gpt-4o", "gpt-4o", "grok-3-fast", "gpt-4o", "grok-3-fast"}, ts.model.requested)
}

func TestStreamRoute(t *testing.T) {
	ts := newTestServer(t, false)
	ts.model.responses = []models.Model_Response{{Parts: []models.Model_Part{models.TextPart("streamed reply")}}}

	w := ts.do(t, http.MethodPost, "/agents/stream", `{"message":"hi"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	frames := sseFrames(t, w.Body)
	require.Len(t, frames, 3)
	assert.JSONEq(t, `{"type":"token","content":"streamed reply"}`, frames[0])
	assert.JSONEq(t, `{"type":"done","output":"streamed reply"}`, frames[1])
	assert.Equal(t, "[DONE]", frames[2])
}

func TestRunRouteStreamFlagSwitchesToSSE(t *testing.T) {
	ts := newTestServer(t, false)
	ts.model.err = errors.New("upstream 500")

	w := ts.do(t, http.MethodPost, "/agents/run", `{"message":"hi","stream":true}`)
	frames := sseFrames(t, w.Body)
	require.Len(t, frames, 2)
	assert.JSONEq(t, `{"type":"error","message":"upstream 500"}`, frames[0])
	assert.Equal(t, "[DONE]", frames[1])
}

func TestThreadsPersistAcrossRuns(t *testing.T) {
	ts := newTestServer(t, true)

	w := ts.do(t, http.MethodPost, "/agents/docs/run", `{"message":"first","thread_id":"t-42"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "t-42", decode(t, w)["metadata"].(map[string]interface{})["thread_id"])

	w = ts.do(t, http.MethodGet, "/agents/threads/t-42/messages", "")
	require.Equal(t, http.StatusOK, w.Code)
	msgs := decode(t, w)["messages"].([]interface{})
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].(map[string]interface{})["text"])

	noStore := newTestServer(t, false)
	w = noStore.do(t, http.MethodGet, "/agents/threads/t-42/messages", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestInfoRoutes(t *testing.T) {
	ts := newTestServer(t, true)

	w := ts.do(t, http.MethodGet, "/agents/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	health := decode(t, w)
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, Version, health["version"])
	features := health["features"].(map[string]interface{})
	assert.Equal(t, true, features["threads"])
	assert.EqualValues(t, len(common_tools.AllToolNames()), features["tools"])

	w = ts.do(t, http.MethodGet, "/agents/agents", "")
	assert.Len(t, decode(t, w)["agents"], 5)

	w = ts.do(t, http.MethodGet, "/agents/models", "")
	out := decode(t, w)
	assert.Equal(t, opsagent.DefaultModel, out["default"])
	assert.NotEmpty(t, out["models"])
}
