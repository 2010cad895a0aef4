package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/garnizeh/interviewer/api"
	"github.com/garnizeh/interviewer/internal/app"
	"github.com/garnizeh/interviewer/internal/config"
	"github.com/garnizeh/interviewer/internal/logging"
	"github.com/garnizeh/interviewer/pkg/vapi"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	var configPath = flag.String("config", "", "Path to config YAML file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger := logging.InitStructureLogConfig(cfg.LogLevel)
	api.SetLogger(logger)
	vapi.SetLogger(logger)
	logger.Info("starting interviewer server", "version", version, "build_time", buildTime)

	ctx := context.Background()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", slog.Any(logging.ErrKey, err))
		os.Exit(1)
	}

	if n, err := a.Service.Resume(ctx); err != nil {
		logger.Error("failed to resume poll tasks", slog.Any(logging.ErrKey, err))
	} else if n > 0 {
		logger.Info("poll tasks resumed", "count", n)
	}

	handler := api.SetupRoutes(cfg, version, buildTime, api.Deps{
		Interviews: a.Repo,
		Results:    a.Repo,
		Operators:  a.Repo,
		Tasks:      a.Repo,
		Events:     a.Repo,
		Schemas:    a.Repo,
		Service:    a.Service,
		Loader:     a.Loader,
	})

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.APITimeout,
		WriteTimeout: cfg.Provider.Timeout + cfg.APITimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed to start", slog.Any(logging.ErrKey, err))
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", slog.Any(logging.ErrKey, err))
	}

	// polling tasks stay in the store and resume on the next start
	if err := a.Close(); err != nil {
		logger.Error("error closing app", slog.Any(logging.ErrKey, err))
	}

	logger.Info("server exited")
}
