// Bateson learning coach server
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/bateson-coach/internal/api"
	"github.com/ashureev/bateson-coach/internal/chart"
	"github.com/ashureev/bateson-coach/internal/coach"
	"github.com/ashureev/bateson-coach/internal/config"
	"github.com/ashureev/bateson-coach/internal/dialogue"
	"github.com/ashureev/bateson-coach/internal/health"
	"github.com/ashureev/bateson-coach/internal/identity"
	"github.com/ashureev/bateson-coach/internal/middleware"
	"github.com/ashureev/bateson-coach/internal/session"
	"github.com/ashureev/bateson-coach/internal/store"
	"github.com/ashureev/bateson-coach/internal/transcriptlog"
	"github.com/ashureev/bateson-coach/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	shutdownTimeout   = 10 * time.Second
	healthPollPeriod  = 30 * time.Second
	retentionInterval = 6 * time.Hour
)

func main() {
	healthcheck := flag.String("healthcheck", "", "probe the gRPC health service at `addr` and exit")
	flag.Parse()

	if *healthcheck != "" {
		os.Exit(probe(*healthcheck))
	}

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

	if err := run(cfg, logger); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped successfully")
}

func probe(addr string) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	status, err := health.Check(ctx, addr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Println(status)
	if status != healthpb.HealthCheckResponse_SERVING {
		return 1
	}
	return 0
}

//nolint:funlen // Startup wiring is intentionally sequential to keep dependency setup explicit.
func run(cfg *config.Config, logger *slog.Logger) error {
	slog.Info("Starting server", "port", cfg.Port, "grpc_port", cfg.GRPCPort, "dev", cfg.IsDevelopment())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies.
	journal, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer func() {
		if closeErr := journal.Close(); closeErr != nil {
			slog.Error("Failed to close journal", "error", closeErr)
		}
	}()
	if err := journal.Ping(ctx); err != nil {
		return fmt.Errorf("database health check: %w", err)
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	deck, err := coach.LoadDeck(cfg.Coach.Deck, cfg.Coach.DeckPath)
	if err != nil {
		return fmt.Errorf("load copy deck: %w", err)
	}
	slog.Info("Copy deck loaded", "deck", deck.Name, "override", cfg.Coach.DeckPath)

	replier, err := dialogue.NewClient(dialogue.Config{
		APIKey:     cfg.Dialogue.APIKey,
		BaseURL:    cfg.Dialogue.BaseURL,
		Model:      cfg.Dialogue.Model,
		Timeout:    cfg.Dialogue.Timeout,
		MaxRetries: cfg.Dialogue.MaxRetries,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize dialogue client: %w", err)
	}

	convLog, err := transcriptlog.New(transcriptlog.Config{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize conversation logger: %w", err)
	}
	defer func() {
		if closeErr := convLog.Close(); closeErr != nil {
			slog.Error("Failed to close conversation logger", "error", closeErr)
		}
	}()

	c, err := coach.New(coach.Options{
		Deck:     deck,
		Dialogue: replier,
		Journal:  journal,
		ConvLog:  convLog,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("initialize coach: %w", err)
	}

	renderer, err := chart.NewRenderer(chart.Config{FontPath: cfg.Coach.ChartFontPath}, chart.Labels{
		Title:  deck.Chart.Title,
		XLabel: deck.Chart.XLabel,
		YLabel: deck.Chart.YLabel,
	})
	if err != nil {
		return fmt.Errorf("initialize chart renderer: %w", err)
	}

	sessions := session.NewRegistry(c.NewSession)
	limiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute)
	limiter.StartEviction(ctx)

	sockets := api.NewSocketManager()

	session.StartSweeper(ctx, sessions, cfg.SessionTTL, cfg.SessionSweepInterval, func(sessionID string) {
		limiter.Forget(sessionID)
		sockets.CloseSession(sessionID)
	})
	store.StartRetentionWorker(ctx, journal, cfg.JournalRetention, retentionInterval)

	// Initialize handlers.
	baseHandler := api.NewHandler(api.Deps{
		Coach:     c,
		Sessions:  sessions,
		Simulator: coach.NewSimulator(deck, nil),
		Chart:     renderer,
		Journal:   journal,
		Limiter:   limiter,
		Model:     replier.Model(),
	})
	healthHandler := api.NewHealthHandler(journal)
	coachHandler := api.NewCoachHandler(baseHandler)
	wsHandler := api.NewWebSocketHandler(baseHandler, sockets, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins()))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	healthHandler.RegisterHealth(r)
	coachHandler.RegisterRoutes(r)
	r.Get("/ws/coach", wsHandler.ServeHTTP)

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// WriteTimeout stays above the dialogue timeout plus one retry.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2*cfg.Dialogue.Timeout + 15*time.Second,
		IdleTimeout:  120 * time.Second,
	}
	srv.RegisterOnShutdown(sockets.CloseAll)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	var healthSrv *health.Server
	if cfg.GRPCPort != "" {
		lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			return fmt.Errorf("listen grpc: %w", err)
		}
		healthSrv = health.NewServer(logger)
		healthSrv.Watch(gctx, journal, healthPollPeriod)
		g.Go(func() error { return healthSrv.Serve(lis) })
	}

	// Wait for a shutdown signal or a server failure.
	g.Go(func() error {
		<-gctx.Done()
		stop()
		slog.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if healthSrv != nil {
			healthSrv.Stop()
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		// Websocket turns must finish before the journal and conversation log close.
		if err := sockets.Drain(shutdownCtx); err != nil {
			return fmt.Errorf("drain coach sockets: %w", err)
		}
		return nil
	})

	return g.Wait()
}
