package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/garnizeh/interviewer/internal/app"
	"github.com/garnizeh/interviewer/internal/config"
	"github.com/garnizeh/interviewer/internal/logging"
	"github.com/garnizeh/interviewer/pkg/vapi"
)

const appName = "interviewctl"

var (
	// Used for flags.
	cfgFile  string
	logLevel string

	rootCmd = &cobra.Command{
		Use:          appName,
		Short:        "interviewctl manages the interview reconciliation service",
		SilenceUsage: true,
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config YAML file (defaults come from the environment)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn or error")

	rootCmd.AddCommand(migrateCmd, backupCmd, restoreCmd, operatorCmd,
		fetchResultsCmd, linkCallCmd, unresolvedCmd, retryUnresolvedCmd)
}

// loadConfig reads the config file and fills defaults. The JWT secret is not
// checked, the CLI never issues tokens.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}
	if cfg.DatabasePath == "" {
		return nil, errors.New("database_path must be set")
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

func newLogger(cmd *cobra.Command) *slog.Logger {
	l := logging.New(cmd.ErrOrStderr(), logLevel)
	vapi.SetLogger(l)
	return l
}

// withApp builds the engine for one command and tears it down afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := app.New(ctx, cfg, newLogger(cmd))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
