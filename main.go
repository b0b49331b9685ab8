package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cppla/we-api/config"
	"github.com/cppla/we-api/utils"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "we-api",
		Short:         "Anonymous campus discussion board API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to the JSON config file")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), configPath, func(a *app) error {
				a.log.Info("database migrated")
				return nil
			})
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "role <username> <user|moderator|admin>",
		Short: "Change the role of a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), configPath, func(a *app) error {
				user, err := a.identity.SetRole(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", user.Username, user.Role)
				return nil
			})
		},
	})

	var limit int
	reports := &cobra.Command{
		Use:   "reports",
		Short: "List the most recent post reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), configPath, func(a *app) error {
				list, err := a.reports.ListReports(cmd.Context(), limit)
				if err != nil {
					return err
				}
				for _, r := range list {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\tpost=%s\tby=%s\t%s\n", r.CreatedAt.UTC().Format(time.RFC3339), r.PostID, r.UserID, r.Reason)
				}
				return nil
			})
		},
	}
	reports.Flags().IntVarP(&limit, "limit", "n", 50, "number of reports to show")
	root.AddCommand(reports)
	return root
}

func runServe(ctx context.Context, configPath string) error {
	return withApp(ctx, configPath, func(a *app) error {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		utils.StartJanitor(ctx, 5*time.Minute, a.log, a.pruners...)

		srv := utils.NewServer(":"+a.cfg.App.Port, a.router(), time.Duration(a.cfg.App.ShutdownTimeoutSec)*time.Second, a.log)
		if err := srv.Run(ctx); err != nil {
			a.log.Error("server stopped with error", zap.Error(err))
			return err
		}
		return nil
	})
}

// withApp loads configuration, builds the application, runs fn and releases resources.
func withApp(ctx context.Context, configPath string, fn func(*app) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := utils.NewLogger(cfg.Log)
	defer func() { _ = log.Sync() }()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", zap.Error(err))
		return err
	}
	defer a.close()
	return fn(a)
}
