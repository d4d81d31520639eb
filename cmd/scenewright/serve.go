package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/scenewright/internal/api"
	"github.com/MikeSquared-Agency/scenewright/internal/config"
	"github.com/MikeSquared-Agency/scenewright/internal/hermes"
	"github.com/MikeSquared-Agency/scenewright/internal/processor"
)

func serveCmd() *cobra.Command {
	var indexOnStart bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the latest scene lists over HTTP and re-index on export events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			setupLogging(cfg.LogLevel)

			slog.Info("scenewright starting", "port", cfg.Port, "backup_dir", cfg.BackupDir)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			svc, err := setup(ctx, cfg, runnerConfig(cfg))
			if err != nil {
				return err
			}
			defer svc.Close()

			// Re-index whenever the exporter announces a fresh backup.
			if svc.bus != nil && cfg.WatchExports {
				proc := processor.New(svc.runner, cfg.BackupDir, slog.Default())
				if err := svc.bus.Subscribe(hermes.SubjectExportCompleted, proc.HandleExportCompleted); err != nil {
					return err
				}
			}

			var db api.RunStore
			if svc.db != nil {
				db = svc.db
			}
			srv := api.NewServer(cfg.Port, cfg.APIToken, svc.runner, db, slog.Default())
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					slog.Error("HTTP server error", "error", err)
					stop()
				}
			}()

			if indexOnStart {
				if err := svc.runner.Start(ctx); err != nil {
					slog.Warn("initial index not started", "error", err)
				}
			}

			slog.Info("scenewright ready", "port", cfg.Port)

			<-ctx.Done()
			slog.Info("shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Warn("HTTP shutdown", "error", err)
			}

			done := make(chan struct{})
			go func() {
				svc.runner.Wait()
				close(done)
			}()
			select {
			case <-done:
			case <-shutdownCtx.Done():
				slog.Warn("indexing run still active at shutdown")
			}

			slog.Info("scenewright stopped")
			return nil
		},
	}

	cmd.Flags().BoolVar(&indexOnStart, "index-on-start", false, "Start an indexing run as soon as the server is up")

	return cmd
}
