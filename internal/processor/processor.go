package processor

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"

	"github.com/MikeSquared-Agency/scenewright/internal/hermes"
	"github.com/MikeSquared-Agency/scenewright/internal/runner"
)

// Trigger starts an indexing run in the background. *runner.Runner
// satisfies it.
type Trigger interface {
	Start(ctx context.Context) error
}

// Processor reacts to bus events by re-indexing the backup.
type Processor struct {
	runs      Trigger
	backupDir string
	logger    *slog.Logger
}

func New(runs Trigger, backupDir string, logger *slog.Logger) *Processor {
	return &Processor{
		runs:      runs,
		backupDir: backupDir,
		logger:    logger,
	}
}

// HandleExportCompleted is the NATS handler for backup.export.completed.
func (p *Processor) HandleExportCompleted(subject string, data []byte) {
	evt, err := hermes.DecodeExportCompleted(data)
	if err != nil {
		p.logger.Error("failed to parse export event", "subject", subject, "error", err)
		return
	}

	if evt.BackupDir != "" && !sameDir(evt.BackupDir, p.backupDir) {
		p.logger.Info("ignoring export for another backup", "backup_dir", evt.BackupDir, "watching", p.backupDir)
		return
	}

	p.logger.Info("export completed, re-indexing scenes",
		"channels", evt.Channels,
		"exported_at", evt.ExportedAt,
	)

	err = p.runs.Start(context.Background())
	switch {
	case errors.Is(err, runner.ErrAlreadyRunning):
		p.logger.Warn("indexing already in progress, export skipped", "exported_at", evt.ExportedAt)
	case err != nil:
		p.logger.Error("failed to start indexing run", "error", err)
	}
}

func sameDir(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}
