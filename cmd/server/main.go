// Chatbot backend - configurable agents, chat sessions, token rotation.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatbot-server/internal/agents"
	"chatbot-server/internal/api"
	"chatbot-server/internal/auth"
	"chatbot-server/internal/chat"
	"chatbot-server/internal/completion"
	"chatbot-server/internal/config"
	"chatbot-server/internal/middleware"
	"chatbot-server/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	completer := completion.NewClient(completion.ClientConfig{
		BaseURL:        cfg.Completion.BaseURL,
		APIKey:         cfg.Completion.APIKey,
		DefaultModel:   cfg.Completion.Model,
		RequestTimeout: cfg.Completion.Timeout,
	}, logger)

	// Initialize services.
	authSvc := auth.NewService(repo, []byte(cfg.JWTSecret), cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	agentSvc := agents.NewService(repo)
	chatSvc := chat.NewService(repo, completer)

	// Initialize handlers.
	authHandler := auth.NewHandler(authSvc, cfg.IsDevelopment())
	agentHandler := agents.NewHandler(agentSvc, authSvc)
	chatHandler := chat.NewHandler(chatSvc, authSvc)
	healthHandler := api.NewHealthHandler(repo)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))

	corsOrigins := []string{"*"}
	if cfg.FrontendURL != "" {
		corsOrigins = []string{cfg.FrontendURL}
	}
	r.Use(middleware.CORS(corsOrigins))

	// Routes. Each handler guards its own protected group.
	healthHandler.RegisterHealth(r)
	authHandler.RegisterRoutes(r)
	agentHandler.RegisterRoutes(r)
	chatHandler.RegisterRoutes(r)

	// Create server. Write timeout leaves headroom over the completion
	// timeout so slow upstream calls fail with CompletionFailed, not a
	// severed connection.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.Completion.Timeout + 15*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
