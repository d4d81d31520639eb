package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/scenewright/internal/config"
	"github.com/MikeSquared-Agency/scenewright/internal/runner"
)

func indexCmd() *cobra.Command {
	var backupDir string
	var workers int
	var force, dryRun bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Rebuild the scene lists of a backup",
		Long: `Runs every channel of the backup through the scene pipeline, writes
per-channel, per-category and global scene files and prints a summary.
Exits non-zero when any channel failed; successful channels are still written.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if backupDir != "" {
				cfg = cfg.WithBackupDir(backupDir)
			}
			setupLogging(cfg.LogLevel)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rcfg := runnerConfig(cfg)
			if workers > 0 {
				rcfg.Workers = workers
			}
			rcfg.Force = force
			rcfg.DryRun = dryRun

			svc, err := setup(ctx, cfg, rcfg)
			if err != nil {
				return err
			}
			defer svc.Close()

			res, err := svc.runner.Run(ctx)
			if err != nil {
				return err
			}
			res.WriteSummary(cmd.OutOrStdout())
			if dryRun {
				fmt.Fprintln(cmd.OutOrStdout(), "Mode: DRY RUN (nothing written)")
			}

			if res.Status == runner.StateFailed {
				return fmt.Errorf("%d channels failed", len(res.Global.Failures))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&backupDir, "backup", "", "Backup root (default $SCENEWRIGHT_BACKUP_DIR)")
	cmd.Flags().IntVar(&workers, "workers", 0, "Parallel channel pipelines (default $SCENEWRIGHT_WORKERS)")
	cmd.Flags().BoolVar(&force, "force", false, "Run even if the status file says another run is in progress")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Compute scenes without writing files, database rows or events")

	return cmd
}
