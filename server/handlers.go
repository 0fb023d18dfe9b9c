package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/Desarso/opsagent"
	"github.com/Desarso/opsagent/models"
	"github.com/Desarso/opsagent/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func toRunInput(req models.Agent_Run_Request) sessions.RunInput {
	return sessions.RunInput{
		Message:  req.Message,
		History:  req.ChatHistory,
		Context:  req.Context,
		ThreadID: req.ThreadID,
	}
}

func (s *Server) handleRun(c *gin.Context) {
	var req models.Agent_Run_Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.serve(c, opsagent.AgentGeneral, req, req.Stream)
}

func (s *Server) handleStream(c *gin.Context) {
	var req models.Agent_Run_Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.serve(c, opsagent.AgentGeneral, req, true)
}

func (s *Server) handleSpecialized(kind string, stream bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.Specialized_Agent_Request
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s.serve(c, kind, models.Agent_Run_Request{
			Message:     req.Message,
			Model:       req.Model,
			Temperature: req.Temperature,
			ChatHistory: req.ChatHistory,
			Context:     req.Context,
			ThreadID:    req.ThreadID,
		}, stream)
	}
}

func (s *Server) handleCreate(c *gin.Context) {
	kind := c.Param("agent_type")
	if _, err := opsagent.LookupAgent(kind); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var req models.Agent_Run_Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.serve(c, kind, req, req.Stream)
}

// serve runs one request against a fresh agent, as JSON or as SSE.
func (s *Server) serve(c *gin.Context, kind string, req models.Agent_Run_Request, stream bool) {
	ctrl, err := s.agent(kind, req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	session := s.session(req.ThreadID, ctrl)
	ctx, cancel := s.runContext(c.Request.Context())
	defer cancel()

	if stream {
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Status(http.StatusOK)
		if err := session.RunSSE(ctx, toRunInput(req), &GinSSEWriter{Context: c}); err != nil {
			session.Logger.Printf("SSE stream ended early: %v", err)
		}
		return
	}

	res := session.Run(ctx, toRunInput(req))
	c.JSON(http.StatusOK, res.Response())
}

func (s *Server) handleModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"models": opsagent.Models(), "default": s.Config.ModelName})
}

func (s *Server) handleAgents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"agents": opsagent.Agents()})
}

func (s *Server) handleHealth(c *gin.Context) {
	tools := 0
	if s.Catalog != nil {
		tools = s.Catalog.Len()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"version": Version,
		"features": gin.H{
			"streaming":   true,
			"websocket":   true,
			"threads":     s.Store != nil,
			"agent_types": opsagent.AgentKinds(),
			"tools":       tools,
		},
	})
}

func (s *Server) handleThreadMessages(c *gin.Context) {
	threadID := c.Param("thread_id")
	if s.Store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "thread storage is not configured"})
		return
	}
	history, err := s.session(threadID, nil).GetChatHistory()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"thread_id": threadID, "messages": history})
}

// handleWebSocket upgrades the connection and serves turns until it closes.
// Query parameters: session_id, user_id, agent_type, model, tools (comma separated).
func (s *Server) handleWebSocket(c *gin.Context) {
	kind := c.DefaultQuery("agent_type", opsagent.AgentGeneral)
	req := models.Agent_Run_Request{Model: c.Query("model")}
	if tools := c.Query("tools"); tools != "" {
		req.Tools = strings.Split(tools, ",")
	}
	ctrl, err := s.agent(kind, req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sessionID := c.Query("session_id")
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	session := opsagent.NewAgentSession(sessionID, c.Query("user_id"), conn, ctrl, s.Store)
	if s.Config.HistoryLimit > 0 {
		session.HistoryLimit = s.Config.HistoryLimit
	}
	session.Serve(c.Request.Context())
}

// GinSSEWriter implements SSEWriter for Gin context
type GinSSEWriter struct {
	Context *gin.Context
}

func (w *GinSSEWriter) WriteSSE(data string) error {
	_, err := fmt.Fprintf(w.Context.Writer, "data: %s\n\n", data)
	return err
}

func (w *GinSSEWriter) WriteSSEError(err error) error {
	data, mErr := json.Marshal(models.Stream_Event{Type: models.EventError, Message: err.Error()})
	if mErr != nil {
		return mErr
	}
	return w.WriteSSE(string(data))
}

func (w *GinSSEWriter) Flush() {
	w.Context.Writer.Flush()
}
