package store

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/scenewright/internal/scene"
)

// SaveChannel writes one channel's scenes and review entries in a single
// transaction, so a channel is either fully recorded for the run or not at all.
func (s *Store) SaveChannel(ctx context.Context, runID uuid.UUID, res *scene.ChannelResult) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, sc := range res.Scenes {
		_, err = tx.Exec(ctx, `
			INSERT INTO scenes (id, run_id, scene_id, channel_index, category, category_pos, channel,
				start_message_id, start_index, start_at, end_message_id, end_index, end_at, characters, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
			uuid.New(), runID, sc.ID, sc.Index, res.Category, res.Position.Category, res.Channel,
			sc.Start.ID, sc.Start.Index, sc.Start.Timestamp, sc.End.ID, sc.End.Index, sc.End.Timestamp,
			characterArray(sc.Characters), string(sc.Status),
		)
		if err != nil {
			return fmt.Errorf("insert scene %s: %w", sc.ID, err)
		}
	}

	for _, rv := range res.Review {
		_, err = tx.Exec(ctx, `
			INSERT INTO scene_review (id, run_id, category, channel, start_message_id, start_index, end_index, characters, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			uuid.New(), runID, res.Category, res.Channel, rv.Start.ID, rv.Start.Index, rv.End.Index,
			characterArray(rv.Characters), string(rv.Status),
		)
		if err != nil {
			return fmt.Errorf("insert review entry: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// SaveFailure records a channel that could not be indexed.
func (s *Store) SaveFailure(ctx context.Context, runID uuid.UUID, f scene.ChannelFailure) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scene_failures (id, run_id, channel, position, error)
		VALUES ($1, $2, $3, $4, $5)`,
		uuid.New(), runID, f.Channel, f.Position.String(), f.Message,
	)
	if err != nil {
		return fmt.Errorf("insert failure: %w", err)
	}
	return nil
}

// ListScenes returns a run's scenes ordered by start time, the order of the
// global rollup. Index carries the channel-level index.
func (s *Store) ListScenes(ctx context.Context, runID uuid.UUID) ([]scene.Scene, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT scene_id, channel_index, channel, start_message_id, start_index, start_at,
			end_message_id, end_index, end_at, characters, status
		FROM scenes
		WHERE run_id = $1
		ORDER BY start_at, scene_id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query scenes: %w", err)
	}
	defer rows.Close()

	var out []scene.Scene
	for rows.Next() {
		var (
			sc     scene.Scene
			chars  []int64
			status string
		)
		if err := rows.Scan(&sc.ID, &sc.Index, &sc.Channel, &sc.Start.ID, &sc.Start.Index, &sc.Start.Timestamp,
			&sc.End.ID, &sc.End.Index, &sc.End.Timestamp, &chars, &status); err != nil {
			return nil, fmt.Errorf("scan scene: %w", err)
		}
		sc.Characters = characterIDs(chars)
		sc.Status = scene.Status(status)
		out = append(out, sc)
	}
	return out, rows.Err()
}

// ListFailures returns the channels that did not contribute to a run, in
// position order.
func (s *Store) ListFailures(ctx context.Context, runID uuid.UUID) ([]scene.ChannelFailure, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT channel, position, error
		FROM scene_failures
		WHERE run_id = $1
		ORDER BY channel`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query failures: %w", err)
	}
	defer rows.Close()

	var out []scene.ChannelFailure
	for rows.Next() {
		var (
			f   scene.ChannelFailure
			pos string
		)
		if err := rows.Scan(&f.Channel, &pos, &f.Message); err != nil {
			return nil, fmt.Errorf("scan failure: %w", err)
		}
		if f.Position, err = scene.ParsePosition(pos); err != nil {
			return nil, err
		}
		f.Err = errors.New(f.Message)
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	slices.SortStableFunc(out, func(a, b scene.ChannelFailure) int {
		return cmp.Or(
			cmp.Compare(a.Position.Category, b.Position.Category),
			cmp.Compare(a.Position.Channel, b.Position.Channel),
			cmp.Compare(a.Position.Thread, b.Position.Thread),
		)
	})
	return out, nil
}
