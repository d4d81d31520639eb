package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MikeSquared-Agency/scenewright/internal/characters"
	"github.com/MikeSquared-Agency/scenewright/internal/config"
	"github.com/MikeSquared-Agency/scenewright/internal/hermes"
	"github.com/MikeSquared-Agency/scenewright/internal/runner"
	"github.com/MikeSquared-Agency/scenewright/internal/slack"
	"github.com/MikeSquared-Agency/scenewright/internal/store"
	"github.com/MikeSquared-Agency/scenewright/internal/tagger"
)

// services holds the optional backends and the runner wired to them.
type services struct {
	db     *store.Store
	bus    *hermes.Client
	runner *runner.Runner
}

func (s *services) Close() {
	if s.bus != nil {
		s.bus.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
}

func setup(ctx context.Context, cfg config.Config, rcfg runner.Config) (*services, error) {
	logger := slog.Default()
	s := &services{}

	provider, err := tagger.New(cfg.StartMarker, cfg.EndMarker)
	if err != nil {
		return nil, fmt.Errorf("scene markers: %w", err)
	}
	deps := runner.Deps{
		Provider: provider,
		Names:    characters.LoadOrEmpty(cfg.CharactersFile, logger),
	}

	// Database (optional)
	if cfg.DatabaseURL != "" {
		db, err := store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		s.db = db
		deps.Store = db
		slog.Info("database connected")
	}

	// NATS/Hermes (optional)
	if cfg.NatsURL != "" {
		bus, err := hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, logger)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.bus = bus
		deps.Publisher = bus
		slog.Info("NATS connected", "url", cfg.NatsURL)
	}

	// Slack poster (optional)
	if cfg.SlackBotToken != "" && cfg.SlackChannel != "" {
		deps.Notifier = slack.NewPoster(cfg.SlackBotToken, cfg.SlackChannel, logger)
		slog.Info("slack poster ready", "channel", cfg.SlackChannel)
	} else {
		slog.Warn("slack not configured, review summaries will be logged")
	}

	s.runner = runner.NewRunner(rcfg, deps, logger)
	return s, nil
}

func runnerConfig(cfg config.Config) runner.Config {
	return runner.Config{
		BackupDir:  cfg.BackupDir,
		StatusFile: cfg.StatusFile,
		Threshold:  cfg.CharacterThreshold,
		Workers:    cfg.Workers,
	}
}
