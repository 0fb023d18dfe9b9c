package sessions

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/Desarso/opsagent/models"
	"github.com/Desarso/opsagent/stores"
	"github.com/gorilla/websocket"
)

// AgentError represents errors that can occur during agent operations
type AgentError struct {
	Message string
	Fatal   bool
}

func (e *AgentError) Error() string {
	return e.Message
}

// RunInput is one caller request to the controller.
type RunInput struct {
	Message  string
	History  []models.Chat_Turn
	Context  map[string]interface{}
	ThreadID string
	// Prior is the persisted thread transcript, loaded by the session layer.
	Prior []models.Message
}

// RunResult is what a finished run reports. Error is non-empty iff the run
// went through the error path.
type RunResult struct {
	Output        string
	ToolResults   []models.Tool_Step
	ToolCallCount int
	Metadata      map[string]interface{}
	Error         string
	Messages      []models.Message
	// TurnStart indexes the user message of this run inside Messages.
	TurnStart int
}

// NewMessages returns the transcript entries produced by this run,
// starting with the user message.
func (r *RunResult) NewMessages() []models.Message {
	if r.TurnStart < 0 || r.TurnStart > len(r.Messages) {
		return nil
	}
	return r.Messages[r.TurnStart:]
}

// Response converts the result to the HTTP response body.
func (r *RunResult) Response() models.Agent_Run_Response {
	resp := models.Agent_Run_Response{
		Output:            r.Output,
		IntermediateSteps: r.ToolResults,
		ToolCallsCount:    r.ToolCallCount,
		Metadata:          r.Metadata,
	}
	if resp.IntermediateSteps == nil {
		resp.IntermediateSteps = []models.Tool_Step{}
	}
	if r.Error != "" {
		msg := r.Error
		resp.Error = &msg
	}
	return resp
}

// ConversationState is owned by exactly one run.
type ConversationState struct {
	Messages      []models.Message
	ToolCallCount int
	LastError     error
	Metadata      map[string]interface{}
}

func (s *ConversationState) append(msgs ...models.Message) {
	s.Messages = append(s.Messages, msgs...)
}

func (s *ConversationState) lastAssistant() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == models.RoleAssistant {
			return s.Messages[i].Content
		}
	}
	return ""
}

// Runner is implemented by the turn controller.
type Runner interface {
	Run(ctx context.Context, in RunInput) RunResult
	RunStream(ctx context.Context, in RunInput, emit func(models.Stream_Event) error) RunResult
}

// ToolApprover gates tool calls before they run.
type ToolApprover interface {
	Approve(ctx context.Context, call models.FunctionCall) (bool, error)
}

// TraceRecorder persists resolved tool calls.
type TraceRecorder interface {
	SaveTrace(trace *stores.ExecutionTrace) error
}

// SSEWriter handles Server-Sent Events writing
type SSEWriter interface {
	WriteSSE(data string) error
	WriteSSEError(err error) error
	Flush()
}

// WebSocketWriter handles all WebSocket communication
type WebSocketWriter struct {
	Conn             *websocket.Conn
	Logger           *log.Logger
	StartTime        time.Time
	FirstTokenTime   *time.Time
	FirstTokenLogged bool
	mu               sync.Mutex
}

func (w *WebSocketWriter) WriteEvent(ev models.Stream_Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if ev.Type == models.EventToken && !w.FirstTokenLogged && !w.StartTime.IsZero() {
		now := time.Now()
		w.FirstTokenTime = &now
		if w.Logger != nil {
			w.Logger.Printf("Time to first token: %v", now.Sub(w.StartTime))
		}
		w.FirstTokenLogged = true
	}
	return w.Conn.WriteJSON(ev)
}

func (w *WebSocketWriter) WriteError(message string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.Conn.WriteJSON(map[string]string{"type": models.EventError, "error": message})
}
