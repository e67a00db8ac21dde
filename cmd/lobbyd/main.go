package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/incognita-games/lobbyd/internal/v1/bus"
	"github.com/incognita-games/lobbyd/internal/v1/config"
	"github.com/incognita-games/lobbyd/internal/v1/health"
	"github.com/incognita-games/lobbyd/internal/v1/logging"
	"github.com/incognita-games/lobbyd/internal/v1/middleware"
	"github.com/incognita-games/lobbyd/internal/v1/tracing"
	"github.com/incognita-games/lobbyd/internal/v1/transport"
)

// version is stamped by the build via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version number and then exit")
	port := flag.Int("port", config.DefaultPort, "listen on this port")
	flag.IntVar(port, "p", config.DefaultPort, "listen on this port (shorthand)")
	maxConns := flag.Int("max-connections", config.DefaultMaxConnections, "refuse connections beyond this many")
	flag.Parse()

	if *showVersion {
		fmt.Printf("lobbyd %s\n", version)
		return
	}

	// Load .env file for local development.
	// Try multiple paths to handle different ways of running the app
	envPaths := []string{".env", "../../.env"}
	var envLoaded bool
	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			slog.Info("Loaded environment from", "path", path)
			envLoaded = true
			break
		}
	}
	if !envLoaded {
		slog.Info("No .env file found, relying on environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Environment validation failed", "error", err)
		os.Exit(1)
	}

	// Explicit flags win over the environment.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "p", "port":
			cfg.Port = *port
		case "max-connections":
			cfg.MaxConnections = *maxConns
		}
	})
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid command-line overrides", "error", err)
		os.Exit(1)
	}

	if err := logging.Initialize(cfg.DevMode); err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Tracing (Optional) ---
	var shutdownTracing func(context.Context) error
	if cfg.OTLPEndpoint != "" {
		shutdownTracing, err = tracing.Init(ctx, cfg.OTLPEndpoint)
		if err != nil {
			slog.Error("Failed to initialise tracing, continuing without", "error", err)
			shutdownTracing = nil
		} else {
			slog.Info("✅ Trace export enabled", "endpoint", cfg.OTLPEndpoint)
		}
	}

	// --- Redis Bus Initialization (Optional) ---
	var busService *bus.Service
	if cfg.RedisEnabled {
		busService, err = bus.NewService(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			slog.Error("Failed to connect to Redis, running in single-instance mode", "error", err)
			busService = nil // Fallback to single-instance mode
		} else {
			slog.Info("✅ Redis event bus initialized", "addr", cfg.RedisAddr)
		}
	} else {
		slog.Info("Running in single-instance mode (Redis disabled)")
	}

	// --- Dispatcher and TCP Listener ---
	dispatcher := transport.NewDispatcher(cfg.MaxConnections, busService)
	dispatcherDone := make(chan struct{})
	go func() {
		defer close(dispatcherDone)
		dispatcher.Run(ctx)
	}()

	srv := transport.NewServer("0.0.0.0:"+strconv.Itoa(cfg.Port), dispatcher)
	if err := srv.Listen(); err != nil {
		slog.Error("Failed to bind lobby port", "port", cfg.Port, "error", err)
		os.Exit(1)
	}

	var serveFailed atomic.Bool
	go func() {
		slog.Info("Lobby server starting",
			"addr", srv.Addr().String(),
			"max_connections", cfg.MaxConnections,
			"version", version)
		if err := srv.Serve(ctx); err != nil {
			slog.Error("Failed to run server", "error", err)
			serveFailed.Store(true)
			syscall.Kill(os.Getpid(), syscall.SIGTERM)
		}
	}()

	// --- Ops Listener (Optional) ---
	var opsSrv *http.Server
	if cfg.OpsAddr != "" {
		router := gin.Default()
		router.Use(middleware.CorrelationID())

		// Prometheus metrics endpoint
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))

		// Health check endpoints
		healthHandler := health.NewHandler(busService, dispatcher)
		router.GET("/health/live", healthHandler.Liveness)
		router.GET("/health/ready", healthHandler.Readiness)

		opsSrv = &http.Server{
			Addr:    cfg.OpsAddr,
			Handler: router,
		}
		go func() {
			slog.Info("Ops server starting", "addr", cfg.OpsAddr)
			if err := opsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("Failed to run ops server", "error", err)
			}
		}()
	}

	// Wait for an interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	// Stop accepting and hang up live sessions, then let the dispatcher
	// drain what they already enqueued.
	cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Error during lobby shutdown:", "error", err)
	}
	select {
	case <-dispatcherDone:
	case <-shutdownCtx.Done():
		slog.Error("Dispatcher did not stop in time")
	}

	if opsSrv != nil {
		if err := opsSrv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Ops server forced to shutdown:", "error", err)
		}
	}

	// Close Redis connection if it was initialized
	if busService != nil {
		if err := busService.Close(); err != nil {
			slog.Error("Failed to close Redis connection:", "error", err)
		} else {
			slog.Info("Redis connection closed")
		}
	}

	if shutdownTracing != nil {
		flushCtx, cancelFlush := context.WithTimeout(context.Background(), 5*time.Second)
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Error("Failed to flush traces", "error", err)
		}
		cancelFlush()
	}

	slog.Info("Server exiting")
	if serveFailed.Load() {
		os.Exit(1)
	}
}
