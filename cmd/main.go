package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yungbote/quotebridge-backend/internal/app"
	"github.com/yungbote/quotebridge-backend/internal/platform/logger"
)

const appName = "quotebridge"

func main() {
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Proposal negotiation and versioning engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML); falls back to CONFIG_FILE")

	cmd.AddCommand(
		serveCmd(&configPath),
		migrateCmd(&configPath),
		recoverCmd(&configPath),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Printf("%s version %s\n", appName, app.Version)
			},
		},
	)
	return cmd
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log, cfg, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			defer log.Sync()

			a, err := app.New(ctx, log, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Serve(ctx); err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			log.Info("Shutdown complete")
			return nil
		},
	}
}

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the ledger schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, cfg, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			defer log.Sync()

			store, err := app.OpenStore(log, cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			log.Info("Migrations complete", "driver", store.Driver())
			return nil
		},
	}
}

func recoverCmd(configPath *string) *cobra.Command {
	var dispatch bool
	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Finish negotiation sessions interrupted by a crash, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log, cfg, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			defer log.Sync()

			a, err := app.New(ctx, log, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.Recover(ctx)
			if err != nil {
				return fmt.Errorf("recover: %w", err)
			}
			if dispatch {
				if err := a.DispatchOutbox(ctx); err != nil {
					return fmt.Errorf("dispatch outbox: %w", err)
				}
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(report)
		},
	}
	cmd.Flags().BoolVar(&dispatch, "dispatch", false, "Also drain due outbox notifications once")
	return cmd
}

func bootstrap(configPath string) (*logger.Logger, app.Config, error) {
	log, err := app.NewLogger()
	if err != nil {
		return nil, app.Config{}, err
	}
	cfg, err := app.LoadConfig(log, configPath)
	if err != nil {
		log.Sync()
		return nil, app.Config{}, fmt.Errorf("load config: %w", err)
	}
	return log, cfg, nil
}
