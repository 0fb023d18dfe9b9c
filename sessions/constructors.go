package sessions

import (
	"fmt"
	"log"
	"os"

	"github.com/Desarso/opsagent/stores"
	"github.com/gorilla/websocket"
)

// NewAgentSession creates a new WebSocket agent session
func NewAgentSession(sessionID, userID string, conn *websocket.Conn, runner Runner, store stores.MessageStore) *AgentSession {
	logger := log.New(os.Stdout, fmt.Sprintf("[WS %s] ", sessionID), log.LstdFlags)
	writer := &WebSocketWriter{
		Conn:   conn,
		Logger: logger,
	}

	return &AgentSession{
		HTTPSession: HTTPSession{
			Runner:         runner,
			ConversationID: sessionID,
			UserID:         userID,
			Store:          store,
			HistoryLimit:   DefaultHistoryLimit,
			Logger:         logger,
		},
		SessionID: sessionID,
		Writer:    writer,
	}
}

// NewHTTPSession creates a new HTTP session
func NewHTTPSession(conversationID string, runner Runner, store stores.MessageStore) *HTTPSession {
	logger := log.New(os.Stdout, fmt.Sprintf("[HTTP %s] ", conversationID), log.LstdFlags)

	return &HTTPSession{
		Runner:         runner,
		ConversationID: conversationID,
		Store:          store,
		HistoryLimit:   DefaultHistoryLimit,
		Logger:         logger,
	}
}
