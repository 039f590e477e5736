package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"collab-relay/internal/api"
	"collab-relay/internal/config"
	"collab-relay/internal/db"
	"collab-relay/internal/repository"
	"collab-relay/internal/services"
	"collab-relay/internal/services/collaboration"
	"collab-relay/internal/telemetry"

	"go.uber.org/zap"
)

/*
LEARNING: SHUTDOWN ORDER

Resources are released in the reverse order of the data flow:

 1. HTTP server stops accepting new upgrades.
 2. Hub closes every socket; each read pump runs its disconnect path, so
    peers and the activity log see the departures.
 3. Activity pool drains whatever those departures queued.
 4. Tracer flushes the spans of all of the above.
 5. Logger syncs last.
*/

const serviceName = "collab-relay"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := telemetry.NewLogger(cfg.Env)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("🚀 Starting collaboration relay", zap.String("env", cfg.Env))

	jaegerShutdown, err := telemetry.InitJaeger(serviceName, cfg.JaegerEndpoint, log)
	if err != nil {
		log.Warn("⚠️  Failed to initialize Jaeger, continuing without tracing", zap.Error(err))
		jaegerShutdown = func(context.Context) error { return nil }
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := jaegerShutdown(ctx); err != nil {
			log.Warn("⚠️  Failed to shutdown Jaeger", zap.Error(err))
		}
	}()

	hub := collaboration.NewHub(log)
	coordinator := collaboration.NewCoordinator(hub, log)

	var (
		activityReader api.ActivityReader
		activitySvc    *services.ActivityService
	)
	if cfg.ActivityLogEnabled {
		database, err := db.NewGorm(cfg, log)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer func() { _ = database.Close() }()

		activityRepo := repository.NewActivityRepository(database.DB)
		activitySvc = services.NewActivityService(activityRepo, cfg.ActivityWorkers, cfg.ActivityQueueSize, log)
		activitySvc.Start()

		coordinator.SetActivityRecorder(activitySvc)
		activityReader = activityRepo
	} else {
		log.Info("Activity log disabled")
	}

	wsHandler := collaboration.NewWebSocketHandler(hub, coordinator, collaboration.GatewayConfig{
		AllowedOrigins:  cfg.AllowedOrigins,
		MaxMessageSize:  cfg.MaxMessageSize,
		SendBufferSize:  cfg.SendBufferSize,
		EventsPerSecond: cfg.EventsPerSecond,
		EventBurst:      cfg.EventBurst,
		PingInterval:    cfg.PingInterval,
		PongWait:        cfg.PongWait,
	}, log)

	handler := api.NewHandler(coordinator, activityReader, wsHandler, log)
	router := api.SetupRoutes(handler, cfg.AllowedOrigins, log)

	// No write timeout: WebSocket connections are long lived and the write
	// pump sets its own deadlines.
	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("🌐 Server listening",
			zap.String("addr", cfg.Addr()),
			zap.Strings("routes", []string{
				"GET /ws",
				"GET /api/health",
				"GET /api/rooms",
				"GET /api/rooms/{id}/members",
				"GET /api/rooms/{id}/activity",
				"GET /metrics",
			}),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info("🛑 Shutting down server...", zap.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("❌ Server error", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Warn("⚠️  Server forced to shutdown", zap.Error(err))
	}

	if err := hub.Shutdown(ctx); err != nil {
		log.Warn("⚠️  Connection hub did not drain", zap.Error(err))
	}

	if activitySvc != nil {
		if err := activitySvc.Shutdown(ctx); err != nil {
			log.Warn("⚠️  Activity log did not drain", zap.Error(err))
		}
	}

	log.Info("✓ Server shutdown complete")
	return nil
}
