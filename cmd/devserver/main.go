// Development chat backend: session REST API, chat WebSocket and a gRPC
// health endpoint over a local SQLite database.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/warrior-ram/demo-ai-chatbot/internal/api"
	"github.com/warrior-ram/demo-ai-chatbot/internal/assistant"
	"github.com/warrior-ram/demo-ai-chatbot/internal/chatws"
	"github.com/warrior-ram/demo-ai-chatbot/internal/config"
	"github.com/warrior-ram/demo-ai-chatbot/internal/domain"
	"github.com/warrior-ram/demo-ai-chatbot/internal/middleware"
	"github.com/warrior-ram/demo-ai-chatbot/internal/store"
	"github.com/warrior-ram/demo-ai-chatbot/internal/sweeper"
)

// defaultBotID is the bot the widget uses when none is configured.
const defaultBotID = 1

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.LoadServer()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped successfully")
}

func run(cfg *config.ServerConfig, logger *slog.Logger) error {
	slog.Info("Starting server", "port", cfg.Port, "grpc_port", cfg.GRPCPort)

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		return fmt.Errorf("database health check: %w", err)
	}
	slog.Info("Database connected")

	if cfg.DefaultBot.Seed {
		if err := seedDefaultBot(context.Background(), repo, cfg.DefaultBot); err != nil {
			return err
		}
	}

	demo := assistant.NewDemoResponder()
	responder := newResponder(cfg.OpenAI, demo, logger)

	sm := chatws.NewSessionManager()
	apiHandler := api.NewHandler(repo, logger)
	wsHandler := chatws.NewHandler(repo, sm, responder, cfg.AllowedOrigins, logger)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	apiHandler.RegisterRoutes(r)
	r.Get("/ws/chat/{sessionID}", wsHandler.ServeHTTP)

	// WebSocket connections are long-lived, so there is no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	grpcLis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("listen on grpc port: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	sw := sweeper.New(repo, cfg.SessionRetention, cfg.SweepInterval, logger, sm.CloseSession, demo.Forget)
	g.Go(func() error { return sw.Run(gctx) })

	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		slog.Info("gRPC health listening", "addr", grpcLis.Addr().String())
		if err := grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")
		healthServer.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		grpcServer.GracefulStop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// seedDefaultBot creates the default bot if it does not exist yet. An
// existing bot is left as configured.
func seedDefaultBot(ctx context.Context, repo store.Repository, cfg config.DefaultBotConfig) error {
	existing, err := repo.GetBot(ctx, defaultBotID)
	if err != nil {
		return fmt.Errorf("get default bot: %w", err)
	}
	if existing != nil {
		return nil
	}

	bot := &domain.Bot{
		ID:             defaultBotID,
		Name:           cfg.Name,
		WelcomeMessage: cfg.WelcomeMessage,
		SystemPrompt:   cfg.SystemPrompt,
	}
	if err := repo.UpsertBot(ctx, bot); err != nil {
		return fmt.Errorf("seed default bot: %w", err)
	}
	slog.Info("Default bot seeded", "bot_id", bot.ID, "name", bot.Name)
	return nil
}

// newResponder prefers OpenAI when a key is configured and falls back to the
// keyword demo responder.
func newResponder(cfg config.OpenAIConfig, demo *assistant.DemoResponder, logger *slog.Logger) assistant.Responder {
	if !cfg.Enabled() {
		slog.Info("AI features running in demo mode (OPENAI_API_KEY not set)")
		return demo
	}

	var opts []assistant.OpenAIOption
	if cfg.BaseURL != "" {
		opts = append(opts, assistant.WithBaseURL(cfg.BaseURL))
	}
	slog.Info("OpenAI responder enabled", "model", cfg.Model)
	return &assistant.Fallback{
		Primary:   assistant.NewOpenAIResponder(cfg.APIKey, cfg.Model, logger, opts...),
		Secondary: demo,
		Logger:    logger,
	}
}
