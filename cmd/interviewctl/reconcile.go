package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/garnizeh/interviewer/internal/app"
)

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid interview id %q", s)
	}
	return id, nil
}

var fetchResultsCmd = &cobra.Command{
	Use:   "fetch-results <interview-id>",
	Short: "Fetch the interview's call details from the provider once and store the evaluation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			res, err := a.Service.FetchResults(ctx, id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		})
	},
}

var linkCallCmd = &cobra.Command{
	Use:   "link-call <interview-id> <call-id>",
	Short: "Bind a provider call id to an interview, replacing any stored one",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			res, err := a.Service.LinkCall(ctx, id, args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		})
	},
}

var showResolved bool

var unresolvedCmd = &cobra.Command{
	Use:   "unresolved",
	Short: "List reconciliations that ran out of poll attempts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			rows, err := a.Repo.ListUnresolved(ctx, showResolved)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rows)
		})
	},
}

var retryUnresolvedCmd = &cobra.Command{
	Use:   "retry-unresolved",
	Short: "Run one manual fetch for every open unresolved reconciliation",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			report, err := a.Service.RetryUnresolved(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		})
	},
}

func init() {
	unresolvedCmd.Flags().BoolVar(&showResolved, "all", false, "include entries resolved since")
}
