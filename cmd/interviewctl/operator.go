package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/garnizeh/interviewer/internal/app"
	"github.com/garnizeh/interviewer/pkg/models"
)

var operatorCmd = &cobra.Command{
	Use:   "operator",
	Short: "Manage operator accounts",
}

var (
	operatorName     string
	operatorEmail    string
	operatorPassword string
)

var operatorAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create an operator account that can sign in to the API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if operatorName == "" || operatorEmail == "" || operatorPassword == "" {
			return errors.New("--name, --email and --password are required")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(operatorPassword), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			id, err := a.Repo.CreateOperator(ctx, &models.Operator{Name: operatorName, Email: operatorEmail, PasswordHash: string(hash)})
			if err != nil {
				return fmt.Errorf("create operator: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Operator %s created with id %d.\n", operatorEmail, id)
			return nil
		})
	},
}

func init() {
	operatorAddCmd.Flags().StringVar(&operatorName, "name", "", "operator display name")
	operatorAddCmd.Flags().StringVar(&operatorEmail, "email", "", "operator email, used to sign in")
	operatorAddCmd.Flags().StringVar(&operatorPassword, "password", "", "operator password")
	operatorCmd.AddCommand(operatorAddCmd)
}
