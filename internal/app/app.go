// Package app assembles the reconciliation engine from configuration. It is
// shared by the HTTP server and the operator CLI.
package app

import (
	"context"
	"fmt"
	"log/slog"

	rootdb "github.com/garnizeh/interviewer/db"
	"github.com/garnizeh/interviewer/internal/config"
	"github.com/garnizeh/interviewer/internal/db"
	"github.com/garnizeh/interviewer/internal/evaluation"
	"github.com/garnizeh/interviewer/internal/matcher"
	"github.com/garnizeh/interviewer/internal/normalize"
	"github.com/garnizeh/interviewer/internal/reconcile"
	"github.com/garnizeh/interviewer/internal/repository/sqlite"
	"github.com/garnizeh/interviewer/pkg/vapi"
)

type App struct {
	DB      *db.DB
	Repo    *sqlite.SQLiteRepo
	Client  *vapi.Client
	Loader  *evaluation.Loader
	Service *reconcile.Service
}

// New opens and migrates the database and wires the engine. Poll tasks are
// not resumed; the caller decides whether to call Service.Resume.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	conn, err := db.New(ctx, cfg.DatabasePath, logger)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, conn, rootdb.Migrations, rootdb.SeedFiles); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	repo := sqlite.New(conn, logger)

	client, err := vapi.NewDefaultClient(cfg.Provider)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("vapi client: %w", err)
	}

	loader, err := evaluation.NewLoader(ctx, repo, logger)
	if err != nil {
		_ = client.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("evaluation schemas: %w", err)
	}

	svc := reconcile.NewService(reconcile.Deps{
		Interviews:  repo,
		Results:     repo,
		Store:       repo,
		Tasks:       repo,
		Events:      repo,
		Fetcher:     client,
		Normalizer:  normalize.New(cfg.Evaluation.Names, logger),
		Matcher:     matcher.New(repo, repo, cfg.Matching.AllowFallback, logger),
		Validator:   loader,
		Logger:      logger,
		Interval:    cfg.Reconcile.Interval,
		MaxAttempts: cfg.Reconcile.MaxAttempts,
		Concurrency: cfg.Reconcile.Concurrency,
	})

	return &App{DB: conn, Repo: repo, Client: client, Loader: loader, Service: svc}, nil
}

// Close stops poll tasks before closing the client and the database.
func (a *App) Close() error {
	a.Service.Stop()
	_ = a.Client.Close()
	return a.DB.Close()
}
