package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"line-status-backend/internal/api"
	"line-status-backend/internal/db"
	"line-status-backend/internal/scheduler"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "./config/config.yaml"
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           serviceName,
		Short:         "Production line status and OEE service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "path to the YAML configuration")

	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newEnforceCmd(&configPath))
	root.AddCommand(newResetCmd(&configPath, "reset-shift", "Zero the current-shift stopped time of every line"))
	root.AddCommand(newResetCmd(&configPath, "reset-daily", "Zero the daily stopped time of every line"))
	root.AddCommand(newMigrateCmd(&configPath))
	return root
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the scheduler and the notification workers",
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			a, err := newApp(ctx, *configPath, true)
			if err != nil {
				return err
			}
			defer a.close()
			return serve(ctx, cancel, a)
		},
	}
}

func serve(ctx context.Context, cancel context.CancelFunc, a *app) error {
	if a.workers != nil {
		a.workers.Start(ctx)
	}

	sched := scheduler.NewService(&a.cfg.Scheduler, a.cal, a.controller, a.log)
	go sched.Run(ctx)

	handler := api.NewHandler(a.controller, a.aggregator, a.db, a.webpush, a.log)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler: api.NewRouter(handler, &a.cfg.Server, a.responses),
	}

	serverErr := make(chan error, 1)
	go func() {
		a.log.Info("HTTP server starting", zap.Int("port", a.cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case <-stop:
		a.log.Info("shutdown signal received, stopping services")
	case err := <-serverErr:
		a.log.Error("HTTP server failed", zap.Error(err))
		cancel()
		return err
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown: %w", err)
	}

	a.log.Info("server gracefully stopped")
	return nil
}

func newEnforceCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "enforce",
		Short: "Stop every active line if no shift is running now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := context.Background()
			a, err := newApp(ctx, *configPath, false)
			if err != nil {
				return err
			}
			defer a.close()

			n, err := a.controller.EnforceShiftBoundaries(ctx, time.Now())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "stopped %d lines\n", n)
			return nil
		},
	}
}

func newResetCmd(configPath *string, use, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := context.Background()
			a, err := newApp(ctx, *configPath, false)
			if err != nil {
				return err
			}
			defer a.close()

			reset := a.controller.ResetShift
			if use == "reset-daily" {
				reset = a.controller.ResetDaily
			}
			n, err := reset(ctx, time.Now())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "reset %d lines\n", n)
			return nil
		},
	}
}

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			// Init migrates as part of opening the database.
			gormDB, err := db.Init(&cfg.Database, log)
			if err != nil {
				return err
			}
			if sqlDB, err := gormDB.DB(); err == nil {
				_ = sqlDB.Close()
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			return nil
		},
	}
}
