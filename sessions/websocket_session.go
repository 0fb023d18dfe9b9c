package sessions

import (
	"context"
	"time"

	"github.com/Desarso/opsagent/models"
	"github.com/gorilla/websocket"
)

// AgentSession streams turns over a WebSocket. Each inbound JSON request is
// one turn; its events are written as JSON frames.
type AgentSession struct {
	HTTPSession
	SessionID string
	Writer    *WebSocketWriter
}

// RunInteraction runs one turn, forwarding every event to the socket. A
// failed turn ends with an error frame instead of a done frame.
func (as *AgentSession) RunInteraction(ctx context.Context, req models.Agent_Run_Request) error {
	as.Writer.StartTime = time.Now()
	as.Writer.FirstTokenLogged = false
	as.Writer.FirstTokenTime = nil

	in := RunInput{
		Message:  req.Message,
		History:  req.ChatHistory,
		Context:  req.Context,
		ThreadID: req.ThreadID,
	}

	var writeErr error
	for ev := range as.Stream(ctx, in) {
		if writeErr != nil {
			continue
		}
		if ev.Type == models.EventError {
			writeErr = as.sendError(ev.Message, false)
			continue
		}
		if err := as.Writer.WriteEvent(ev); err != nil {
			as.Logger.Printf("Error writing event: %v", err)
			writeErr = &AgentError{Message: "connection lost", Fatal: true}
		}
	}
	return writeErr
}

// Serve reads requests until the connection closes or a fatal error occurs.
func (as *AgentSession) Serve(ctx context.Context) {
	for {
		var req models.Agent_Run_Request
		if err := as.Writer.Conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				as.Logger.Printf("WebSocket error: %v", err)
			}
			break
		}

		turnCtx, cancel := context.WithCancel(ctx)
		err := as.RunInteraction(turnCtx, req)
		cancel()
		if err != nil {
			if agentErr, ok := err.(*AgentError); ok && agentErr.Fatal {
				as.Logger.Printf("Fatal error: %v", err)
				break
			}
			as.Logger.Printf("Non-fatal error: %v", err)
		}
	}
	as.Logger.Printf("WebSocket session %s ended", as.SessionID)
}

// sendError sends an error message and returns an AgentError
func (as *AgentSession) sendError(message string, fatal bool) error {
	as.Logger.Printf("Error: %s (fatal: %v)", message, fatal)
	if err := as.Writer.WriteError(message); err != nil {
		return &AgentError{Message: "connection lost", Fatal: true}
	}
	return &AgentError{Message: message, Fatal: fatal}
}
