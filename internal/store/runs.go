package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrNoRuns is returned when no run has been recorded yet.
var ErrNoRuns = errors.New("no runs recorded")

// RunRecord is one row of scene_runs.
type RunRecord struct {
	ID         uuid.UUID  `json:"id"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Channels   int        `json:"channels"`
	Scenes     int        `json:"scenes"`
	Review     int        `json:"review"`
	Failed     int        `json:"failed"`
}

// BeginRun records a run in the running state.
func (s *Store) BeginRun(ctx context.Context, id uuid.UUID, startedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scene_runs (id, status, started_at)
		VALUES ($1, 'running', $2)`,
		id, startedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinishRun stores the final status and counters of a run.
func (s *Store) FinishRun(ctx context.Context, rec RunRecord) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE scene_runs
		SET status = $2, finished_at = $3, channels = $4, scenes = $5, review = $6, failed = $7
		WHERE id = $1`,
		rec.ID, rec.Status, rec.FinishedAt, rec.Channels, rec.Scenes, rec.Review, rec.Failed,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update run %s: not found", rec.ID)
	}
	return nil
}

// LatestRun returns the most recently started run that has finished. Runs
// still in progress, or abandoned by a crashed process, are skipped: their
// scenes are a partial set.
func (s *Store) LatestRun(ctx context.Context) (*RunRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, status, started_at, finished_at, channels, scenes, review, failed
		FROM scene_runs
		WHERE finished_at IS NOT NULL
		ORDER BY started_at DESC
		LIMIT 1`)

	var r RunRecord
	err := row.Scan(&r.ID, &r.Status, &r.StartedAt, &r.FinishedAt, &r.Channels, &r.Scenes, &r.Review, &r.Failed)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoRuns
	}
	if err != nil {
		return nil, fmt.Errorf("query latest run: %w", err)
	}
	return &r, nil
}
