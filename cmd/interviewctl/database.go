package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/garnizeh/interviewer/internal/app"
	"github.com/garnizeh/interviewer/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and seed evaluation schemas",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			fmt.Fprintln(cmd.OutOrStdout(), "Database initialized successfully.")
			return nil
		})
	},
}

var backupCmd = &cobra.Command{
	Use:   "backup [destination]",
	Short: "Write a consistent copy of the database (default <database_path>.bak)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		dst := cfg.DatabasePath + ".bak"
		if len(args) == 1 {
			dst = args[0]
		}
		// VACUUM INTO refuses to overwrite
		if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove old backup: %w", err)
		}

		ctx := cmd.Context()
		conn, err := db.New(ctx, cfg.DatabasePath, newLogger(cmd))
		if err != nil {
			return err
		}
		defer conn.Close()

		if _, err := conn.Exec(ctx, `VACUUM INTO ?`, dst); err != nil {
			return fmt.Errorf("backup: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Database backup written to %s.\n", dst)
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore [source]",
	Short: "Replace the database with a backup (default <database_path>.bak); stop the server first",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		src := cfg.DatabasePath + ".bak"
		if len(args) == 1 {
			src = args[0]
		}
		if err := copyFile(src, cfg.DatabasePath); err != nil {
			return fmt.Errorf("restore: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Database restore completed.")
		return nil
	},
}

func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		_ = dstFile.Close()
		return err
	}
	return dstFile.Close()
}
