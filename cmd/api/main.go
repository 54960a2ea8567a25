// Package main is the entry point for the API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/craftpad-ai/artifact-platform/internal/config"
	"github.com/craftpad-ai/artifact-platform/internal/gateway"
	"github.com/craftpad-ai/artifact-platform/internal/handler"
	"github.com/craftpad-ai/artifact-platform/internal/llm"
	"github.com/craftpad-ai/artifact-platform/internal/middleware"
	"github.com/craftpad-ai/artifact-platform/internal/mode"
	"github.com/craftpad-ai/artifact-platform/internal/orchestrator"
	"github.com/craftpad-ai/artifact-platform/internal/store"
	"github.com/craftpad-ai/artifact-platform/internal/tool"
	"github.com/craftpad-ai/artifact-platform/pkg/logger"
	"github.com/craftpad-ai/artifact-platform/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting API server")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "artifact-platform", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Conversation gateway: JetStream when NATS is reachable, otherwise an
	// in-memory gateway so local development works without a broker.
	var gw gateway.Gateway
	var natsClient *gateway.NATSClient

	natsClient, err = gateway.ConnectNATS(ctx, gateway.NATSConfig{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log)
	if err != nil {
		log.Warn("NATS unavailable, using in-memory conversation gateway", zap.Error(err))
		natsClient = nil
		gw = gateway.NewMemory()
	} else {
		defer natsClient.Close()
		js, err := gateway.NewJetStream(ctx, natsClient, log)
		if err != nil {
			log.Error("failed to initialize JetStream gateway", zap.Error(err))
			os.Exit(1)
		}
		gw = js
	}

	// Artifact store
	if err := os.MkdirAll(filepath.Dir(cfg.ArtifactDBPath), 0o755); err != nil {
		log.Error("failed to create artifact database directory", zap.Error(err))
		os.Exit(1)
	}
	artifacts, err := store.NewSQLiteStore(cfg.ArtifactDBPath)
	if err != nil {
		log.Error("failed to open artifact store", zap.Error(err))
		os.Exit(1)
	}
	defer artifacts.Close()

	// Tools and mode policy
	registry := tool.NewRegistry()
	tool.RegisterArtifactTools(registry, artifacts)
	executor := tool.NewExecutor(registry)
	policy := mode.NewPolicy(registry.ReadOnlyNames())

	// LLM client
	provider := llm.Provider(cfg.DefaultLLM)
	apiKey := cfg.AnthropicAPIKey
	if provider == llm.ProviderOpenAI || (apiKey == "" && cfg.OpenAIAPIKey != "") {
		provider = llm.ProviderOpenAI
		apiKey = cfg.OpenAIAPIKey
	}
	if apiKey == "" {
		log.Error("no LLM API key configured")
		os.Exit(1)
	}
	llmClient, err := llm.NewClient(provider, apiKey)
	if err != nil {
		log.Error("failed to create LLM client", zap.Error(err))
		os.Exit(1)
	}
	log.Info("LLM client ready", zap.String("provider", llmClient.Name()))

	// Stream orchestrator
	orch := orchestrator.New(gw, llmClient, registry, executor, policy, log, orchestrator.Options{
		SystemPrompt:   cfg.SystemPrompt,
		DefaultModel:   cfg.DefaultModel,
		HistoryWindow:  cfg.HistoryWindow,
		ConnectTimeout: cfg.LLMConnectTimeout,
		IdleTimeout:    cfg.StreamIdleTimeout,
		ToolTimeout:    cfg.ToolExecTimeout,
		MaxTokens:      cfg.MaxTokens,
	})

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(natsClient)
	conversationHandler := handler.NewConversationHandler(gw, log)
	messageHandler := handler.NewMessageHandler(gw, log)
	artifactHandler := handler.NewArtifactHandler(artifacts, log)
	chatHandler := handler.NewChatHandler(orch, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"Link", "X-Conversation-ID", "X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		// Conversations
		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", conversationHandler.Create)
			r.Get("/", conversationHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", conversationHandler.Get)
				r.Put("/", conversationHandler.Update)
				r.Delete("/", conversationHandler.Delete)

				// Messages
				r.Get("/messages", messageHandler.List)
			})
		})

		// Artifacts
		r.Route("/artifacts", func(r chi.Router) {
			r.Post("/", artifactHandler.Create)
			r.Get("/", artifactHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", artifactHandler.Get)
				r.Put("/", artifactHandler.Update)
				r.Delete("/", artifactHandler.Delete)
			})
		})

		// Streaming chat; tighter per-user budget since each turn holds an
		// upstream model stream open.
		r.Group(func(r chi.Router) {
			r.Use(middleware.UserRateLimit(cfg.RateLimitRequests/2+1, cfg.RateLimitWindow))
			r.Post("/chat/stream", chatHandler.Stream)
		})
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
