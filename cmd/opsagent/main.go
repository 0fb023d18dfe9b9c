package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Desarso/opsagent"
	"github.com/Desarso/opsagent/common_tools"
	"github.com/Desarso/opsagent/server"
	"github.com/Desarso/opsagent/stores"
)

func main() {
	cfg, err := opsagent.LoadConfig()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	store, err := cfg.OpenStore()
	if err != nil {
		log.Fatalf("Failed to open %s store: %v", cfg.StoreType, err)
	}
	defer store.Close()

	traces, err := stores.NewGORMTraceStore(store.DB())
	if err != nil {
		log.Fatalf("Failed to migrate execution traces: %v", err)
	}
	workspace, err := stores.NewWorkspaceStore(store.DB())
	if err != nil {
		log.Fatalf("Failed to migrate workspace: %v", err)
	}

	deps := common_tools.CatalogDeps{Workspace: workspace, Search: &common_tools.BraveClient{}}
	if analysis, err := opsagent.Create_Model(cfg.AnalysisModel, nil); err != nil {
		log.Printf("Analysis tools disabled, model %s unavailable: %v", cfg.AnalysisModel, err)
	} else {
		deps.Completer = &common_tools.ModelCompleter{Model: analysis, Name: cfg.AnalysisModel}
	}
	catalog, err := common_tools.NewCatalog(deps)
	if err != nil {
		log.Fatal(err)
	}

	if cfg.RetentionDays > 0 {
		retention, err := stores.NewRetention(store, traces, cfg.RetentionWindow())
		if err != nil {
			log.Fatal(err)
		}
		if err := retention.Start(cfg.RetentionSchedule); err != nil {
			log.Fatalf("Failed to schedule retention: %v", err)
		}
		defer retention.Stop()
	}

	srv := server.New(cfg, catalog, store)
	srv.Traces = traces
	if len(cfg.DeniedTools) > 0 {
		srv.Approver = opsagent.NewToolApprover().Deny(cfg.DeniedTools...)
		log.Printf("Denied tools: %v", cfg.DeniedTools)
	}

	httpServer := &http.Server{Addr: cfg.Addr, Handler: srv.Router()}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Agent server listening on %s (default model %s, %d tools)", cfg.Addr, cfg.ModelName, catalog.Len())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Graceful shutdown failed: %v", err)
	}
}
