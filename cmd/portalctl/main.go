// Package main is the operator CLI: one-off maintenance runs against the
// configured store.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kylejryan/insurance-policy-portal/internal/app"
	"github.com/kylejryan/insurance-policy-portal/internal/config"
	"github.com/kylejryan/insurance-policy-portal/internal/logging"
	"github.com/kylejryan/insurance-policy-portal/internal/models"
	"github.com/kylejryan/insurance-policy-portal/internal/scheduler"
	"github.com/kylejryan/insurance-policy-portal/internal/users"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:          "portalctl",
		Short:        "Maintenance commands for the insurance portal",
		Version:      Version,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(fixStatusesCmd())
	rootCmd.AddCommand(drainOutboxCmd())
	rootCmd.AddCommand(createAdminCmd())
	rootCmd.AddCommand(exportContractsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withApp wires the services for one command run.
func withApp(cmd *cobra.Command, run func(ctx context.Context, a *app.App) error) error {
	env := config.MustLoad()
	log := logging.Must(env.LogLevel, "console", "portalctl")
	a, err := app.New(cmd.Context(), env, log)
	if err != nil {
		return err
	}
	defer a.Close()
	return run(cmd.Context(), a)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func fixStatusesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fix-statuses",
		Short: "Expire ended contracts and activate started ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				rep, err := a.Contracts.FixStatuses(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, rep)
			})
		},
	}
}

func drainOutboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drain-outbox",
		Short: "Deliver pending emails once",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				rep, err := a.Outbox.Drain(ctx, limit)
				if err != nil {
					return err
				}
				return printJSON(cmd, rep)
			})
		},
	}
	cmd.Flags().IntP("limit", "n", scheduler.DefaultBatch, "Maximum events to deliver")
	return cmd
}

func createAdminCmd() *cobra.Command {
	var in users.CreateInput
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator account",
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Role = string(models.RoleAdmin)
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				u, err := a.Users.Create(ctx, in)
				if err != nil {
					return err
				}
				a.Log.Info("admin created", zap.String("user_id", u.ID), zap.String("email", u.Email))
				return printJSON(cmd, u)
			})
		},
	}
	cmd.Flags().StringVar(&in.Email, "email", "", "Login email")
	cmd.Flags().StringVar(&in.Password, "password", "", "Initial password")
	cmd.Flags().StringVar(&in.Name, "name", "", "First name")
	cmd.Flags().StringVar(&in.Lastname, "lastname", "", "Last name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("lastname")
	return cmd
}

func exportContractsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export-contracts [file.xlsx]",
		Short: "Write the contracts workbook to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				f, err := os.Create(args[0])
				if err != nil {
					return err
				}
				if err := a.Dashboard.ExportContracts(ctx, f); err != nil {
					f.Close()
					return err
				}
				return f.Close()
			})
		},
	}
}
