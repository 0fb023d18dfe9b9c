package opsagent

import (
	"github.com/Desarso/opsagent/sessions"
	"github.com/Desarso/opsagent/stores"
	"github.com/gorilla/websocket"
)

// Re-export session types so callers only need the root package
type AgentSession = sessions.AgentSession
type HTTPSession = sessions.HTTPSession
type WebSocketWriter = sessions.WebSocketWriter
type AgentError = sessions.AgentError
type SSEWriter = sessions.SSEWriter
type Runner = sessions.Runner
type RunInput = sessions.RunInput
type RunResult = sessions.RunResult

// Re-export constructor functions
func NewAgentSession(sessionID string, userID string, conn *websocket.Conn, runner Runner, store stores.MessageStore) *AgentSession {
	return sessions.NewAgentSession(sessionID, userID, conn, runner, store)
}

func NewHTTPSession(conversationID string, runner Runner, store stores.MessageStore) *HTTPSession {
	return sessions.NewHTTPSession(conversationID, runner, store)
}
