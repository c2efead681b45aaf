// Package main provides the intake agent binary: the local API that
// keeps ticket submission working while the ticket service is away.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/maher4real/support-ticket-system/internal/app"
	"github.com/maher4real/support-ticket-system/internal/config"
	"github.com/maher4real/support-ticket-system/internal/observability"
	"github.com/maher4real/support-ticket-system/internal/syncer"
)

const appName = "intake"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Offline-tolerant ticket intake agent",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), logLevel)
		},
	}
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")

	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the local API, connectivity probe and queue sync",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), logLevel)
		},
	})
	cmd.AddCommand(syncCmd(&logLevel), queueCmd(&logLevel))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			cfg, err := config.Load()
			version := "dev"
			if err == nil {
				version = cfg.App.Version
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, version)
		},
	})
	return cmd
}

func syncCmd(logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Probe the ticket service and flush the local queue once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), *logLevel, func(ctx context.Context, a *app.App) error {
				a.Connectivity.Probe(ctx)
				result := a.Syncer.Trigger(ctx, syncer.ReasonManual)
				if err := printJSON(cmd, result); err != nil {
					return err
				}
				return result.Err
			})
		},
	}
}

func queueCmd(logLevel *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect tickets saved on this device",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List tickets waiting to sync",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), *logLevel, func(ctx context.Context, a *app.App) error {
				items, err := a.Queue.List(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, items)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "drop <queue-id>",
		Short: "Remove a ticket waiting to sync",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), *logLevel, func(ctx context.Context, a *app.App) error {
				return a.Queue.Remove(ctx, args[0])
			})
		},
	})

	deadLetters := &cobra.Command{
		Use:   "dead-letters",
		Short: "List queued tickets the ticket service rejected",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), *logLevel, func(ctx context.Context, a *app.App) error {
				letters, err := a.DeadLetters.List(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, letters)
			})
		},
	}
	deadLetters.AddCommand(&cobra.Command{
		Use:   "drop <queue-id>",
		Short: "Discard a rejected ticket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), *logLevel, func(ctx context.Context, a *app.App) error {
				return a.DeadLetters.Remove(ctx, args[0])
			})
		},
	})
	cmd.AddCommand(deadLetters)
	return cmd
}

func serve(ctx context.Context, logLevel string) error {
	ctx, stop := signal.NotifyContext(contextOrBackground(ctx), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return withApp(ctx, logLevel, func(ctx context.Context, a *app.App) error {
		a.Logger.Info("starting intake agent",
			zap.String("remote", a.Config.Remote.BaseURL),
			zap.String("queue_backend", a.Config.Queue.Backend),
			zap.String("version", a.Config.App.Version))
		err := a.Serve(ctx)
		a.Logger.Info("shutting down")
		return err
	})
}

func withApp(ctx context.Context, logLevel string, fn func(context.Context, *app.App) error) error {
	ctx = contextOrBackground(ctx)
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logger.Level = logLevel
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("close", zap.Error(err))
		}
	}()
	return fn(ctx, a)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
