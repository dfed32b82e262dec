package main

import (
	"context"
	"fmt"

	"github.com/creatory/creatory/internal/api"
	"github.com/creatory/creatory/internal/auth"
	"github.com/creatory/creatory/internal/breaker"
	"github.com/creatory/creatory/internal/catalog"
	"github.com/creatory/creatory/internal/config"
	"github.com/creatory/creatory/internal/crypto"
	"github.com/creatory/creatory/internal/db"
	"github.com/creatory/creatory/internal/engine"
	"github.com/creatory/creatory/internal/mcpclient"
	"github.com/creatory/creatory/internal/metrics"
	"github.com/creatory/creatory/internal/nodes"
	"github.com/creatory/creatory/internal/rag"
	"github.com/creatory/creatory/internal/repository"
	"github.com/creatory/creatory/internal/services"
	"github.com/creatory/creatory/internal/worker"
)

// app is the fully wired process.
type app struct {
	server    *api.Server
	worker    *worker.Worker
	storeKind string
	close     func() error
}

func (a *app) Close() error {
	if a.close == nil {
		return nil
	}
	return a.close()
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{storeKind: "memory"}

	var store repository.Store = repository.NewMemory()
	if cfg.Database.URL != "" {
		conn, err := db.New(ctx, cfg.Database.URL, cfg.Database.MaxOpenConns)
		if err != nil {
			return nil, err
		}
		if err := conn.Migrate(ctx); err != nil {
			conn.Close()
			return nil, err
		}
		store, a.storeKind, a.close = conn, "postgres", conn.Close
	}

	cat, err := catalog.Builtin()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("load template catalog: %w", err)
	}
	sealer, err := crypto.NewEncryptor(crypto.KeyFromSecret(cfg.Auth.EncryptionSecret))
	if err != nil {
		a.Close()
		return nil, err
	}
	issuer, err := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		a.Close()
		return nil, err
	}
	failurePolicy, err := engine.ParseFailurePolicy(cfg.Workflow.FailurePolicy)
	if err != nil {
		a.Close()
		return nil, err
	}

	collector := metrics.NewCollector("creatory")
	events := engine.NewEventBus()
	events.Subscribe(collector.HandleEvent)

	retriever := rag.NewRetriever(store)
	retriever.SetObserver(collector)

	access := services.NewAccess(store)
	mcpSvc := services.NewMCPService(store, access, sealer,
		mcpclient.NewDialer("creatory", version, cfg.MCP.CallTimeout),
		services.MCPOptions{
			InvokeRate:  cfg.MCP.InvokeRate,
			InvokeBurst: cfg.MCP.InvokeBurst,
			Observer:    collector,
		})

	runner := engine.NewRunner(engine.Options{
		Breaker: breaker.Config{MaxSteps: cfg.Workflow.MaxSteps},
		Policy: engine.Policy{
			OnFailure:   failurePolicy,
			NodeTimeout: cfg.Workflow.NodeTimeout,
			Retry:       cfg.Workflow.Retry,
		},
		Executors: nodes.NewRegistry(nodes.Deps{
			Tools:       mcpSvc,
			Retriever:   retriever,
			PreferLocal: cfg.Workflow.PreferLocal,
		}),
		Store:  store,
		Events: events,
	})
	limiter := services.NewRunLimiter(cfg.Workflow.Concurrency)

	a.server = api.NewServer(api.Services{
		Workspaces: services.NewWorkspaceService(store, access, services.NewBootstrapper(store, store, cat)),
		Templates:  services.NewTemplateService(store, access),
		Runs:       services.NewRunService(store, store, access, runner, limiter),
		Knowledge:  services.NewKnowledgeService(store, access, retriever, cfg.RAG.ChunkSize),
		Agents:     services.NewAgentService(store, access),
		MCP:        mcpSvc,
	}, issuer, cfg.Server.APIPrefix)
	a.server.SetCORSOrigins(cfg.Server.CORSOrigins)
	a.server.SetRunLimiter(limiter)
	a.server.SetMetricsHandler(collector.Handler())

	a.worker, err = worker.New(cfg.Worker.Heartbeat, collector, limiter.Stats)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}
