// Package server exposes the agents over HTTP, Server-Sent Events and
// WebSocket using gin.
package server

import (
	"context"
	"log"
	"net/http"
	"os"

	"github.com/Desarso/opsagent"
	"github.com/Desarso/opsagent/common_tools"
	"github.com/Desarso/opsagent/models"
	"github.com/Desarso/opsagent/sessions"
	"github.com/Desarso/opsagent/stores"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Version is reported by GET /agents/health.
const Version = "2.0.0"

// Server wires the agent factory to gin routes.
type Server struct {
	Config   *opsagent.Config
	Catalog  *common_tools.Registry
	Store    stores.MessageStore // optional: enables threads
	Traces   sessions.TraceRecorder
	Approver sessions.ToolApprover
	Logger   *log.Logger

	// NewModel overrides opsagent.Create_Model.
	NewModel func(name string, temperature *float64) (models.Model, error)

	upgrader websocket.Upgrader
}

// New creates a server over an existing tool catalog.
func New(cfg *opsagent.Config, catalog *common_tools.Registry, store stores.MessageStore) *Server {
	if cfg == nil {
		cfg = opsagent.NewConfig()
	}
	return &Server{
		Config:  cfg,
		Catalog: catalog,
		Store:   store,
		Logger:  log.New(os.Stdout, "[SERVER] ", log.LstdFlags),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Router builds the gin engine with every route under /agents.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	s.Register(router.Group("/agents"))
	return router
}

// Register mounts the agent routes on g.
func (s *Server) Register(g *gin.RouterGroup) {
	g.POST("/run", s.handleRun)
	g.POST("/v2/run", s.handleRun)
	g.POST("/stream", s.handleStream)
	g.POST("/v2/stream", s.handleStream)

	for _, kind := range []string{opsagent.AgentDocs, opsagent.AgentSheet, opsagent.AgentEmail, opsagent.AgentMulti} {
		g.POST("/"+kind+"/run", s.handleSpecialized(kind, false))
		g.POST("/"+kind+"/stream", s.handleSpecialized(kind, true))
	}
	g.POST("/create/:agent_type/run", s.handleCreate)

	g.GET("/models", s.handleModels)
	g.GET("/agents", s.handleAgents)
	g.GET("/health", s.handleHealth)
	g.GET("/threads/:thread_id/messages", s.handleThreadMessages)
	g.GET("/ws", s.handleWebSocket)
}

// agent builds a controller for one request.
func (s *Server) agent(kind string, req models.Agent_Run_Request) (*sessions.Controller, error) {
	temperature := req.Temperature
	if temperature == nil {
		temperature = s.Config.Temperature
	}
	return opsagent.Create_Agent(kind, opsagent.AgentOptions{
		Model:         req.Model,
		Temperature:   temperature,
		SystemPrompt:  req.SystemPrompt,
		Tools:         req.Tools,
		DefaultModel:  s.Config.ModelName,
		MaxIterations: s.Config.MaxIterations,
		Catalog:       s.Catalog,
		Parallelism:   s.Config.ToolParallelism,
		Approver:      s.Approver,
		Traces:        s.Traces,
		NewModel:      s.NewModel,
	})
}

func (s *Server) session(threadID string, runner sessions.Runner) *sessions.HTTPSession {
	session := opsagent.NewHTTPSession(threadID, runner, s.Store)
	if s.Config.HistoryLimit > 0 {
		session.HistoryLimit = s.Config.HistoryLimit
	}
	return session
}

// runContext bounds a run by the configured timeout.
func (s *Server) runContext(parent context.Context) (context.Context, context.CancelFunc) {
	if s.Config.RunTimeout > 0 {
		return context.WithTimeout(parent, s.Config.RunTimeout)
	}
	return context.WithCancel(parent)
}
