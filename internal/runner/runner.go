package runner

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MikeSquared-Agency/scenewright/internal/backup"
	"github.com/MikeSquared-Agency/scenewright/internal/hermes"
	"github.com/MikeSquared-Agency/scenewright/internal/metrics"
	"github.com/MikeSquared-Agency/scenewright/internal/scene"
	"github.com/MikeSquared-Agency/scenewright/internal/slack"
	"github.com/MikeSquared-Agency/scenewright/internal/store"
)

// Config holds the indexing run configuration.
type Config struct {
	BackupDir  string
	StatusFile string
	Threshold  int
	Workers    int
	Force      bool // ignore a status file left in the running state
	DryRun     bool // compute everything, write nothing
}

// Store persists run results. *store.Store satisfies it.
type Store interface {
	BeginRun(ctx context.Context, id uuid.UUID, startedAt time.Time) error
	SaveChannel(ctx context.Context, runID uuid.UUID, res *scene.ChannelResult) error
	SaveFailure(ctx context.Context, runID uuid.UUID, f scene.ChannelFailure) error
	FinishRun(ctx context.Context, rec store.RunRecord) error
}

// Publisher emits run events. *hermes.Client satisfies it.
type Publisher interface {
	PublishChannelIndexed(evt hermes.ChannelIndexed) error
	PublishChannelFailed(evt hermes.ChannelFailed) error
	PublishRunCompleted(evt hermes.RunCompleted) error
}

// Notifier posts the review summary. *slack.Poster satisfies it.
type Notifier interface {
	Post(ctx context.Context, text string) (string, error)
}

// Deps are the collaborators of a Runner. Store, Publisher and Notifier are
// optional.
type Deps struct {
	Provider  scene.TraceProvider
	Names     scene.NameResolver
	Store     Store
	Publisher Publisher
	Notifier  Notifier
}

// Runner orchestrates indexing runs over a backup tree. At most one run is
// active per Runner; the status file guards against other processes.
type Runner struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	latest  *Result
	wg      sync.WaitGroup
}

// NewRunner creates an indexing runner.
func NewRunner(cfg Config, deps Deps, logger *slog.Logger) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.StatusFile == "" {
		cfg.StatusFile = filepath.Join(cfg.BackupDir, "scene_status.json")
	}
	return &Runner{cfg: cfg, deps: deps, logger: logger}
}

// Run executes one indexing run and blocks until it finishes.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	if !r.acquire() {
		return nil, ErrAlreadyRunning
	}
	defer r.release()
	return r.run(ctx)
}

// Start launches a run in the background. It fails fast with
// ErrAlreadyRunning when a run is active in this process.
func (r *Runner) Start(ctx context.Context) error {
	if !r.acquire() {
		return ErrAlreadyRunning
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.release()
		if _, err := r.run(ctx); err != nil {
			r.logger.Error("background run failed", "error", err)
		}
	}()
	return nil
}

// Wait blocks until every run launched with Start has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Running reports whether a run is active in this process.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Latest returns the result of the last completed run, or nil.
func (r *Runner) Latest() *Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latest
}

// Ready consults the status file: nil when the scene files on disk are
// complete, ErrAlreadyRunning or ErrDataNotReady otherwise.
func (r *Runner) Ready() error {
	s, err := LoadStatus(r.cfg.StatusFile)
	if err != nil {
		return err
	}
	return s.Ready()
}

func (r *Runner) acquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return false
	}
	r.running = true
	return true
}

func (r *Runner) release() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
}

func (r *Runner) run(ctx context.Context) (*Result, error) {
	status, err := LoadStatus(r.cfg.StatusFile)
	if err != nil {
		return nil, fmt.Errorf("load status: %w", err)
	}
	if status.Main == StateRunning && !r.cfg.Force {
		return nil, fmt.Errorf("%w (run %s started %s)", ErrAlreadyRunning, status.RunID, status.StartedAt.Format(time.RFC3339))
	}

	runID := uuid.New()
	started := time.Now().UTC()
	status.Begin(runID.String(), started)
	if !r.cfg.DryRun {
		if err := status.Save(); err != nil {
			return nil, fmt.Errorf("save status: %w", err)
		}
	}

	persist := r.deps.Store
	if persist != nil && !r.cfg.DryRun {
		if err := persist.BeginRun(ctx, runID, started); err != nil {
			r.logger.Warn("failed to record run, continuing without database", "run_id", runID, "error", err)
			persist = nil
		}
	}
	if r.cfg.DryRun {
		persist = nil
	}

	r.logger.Info("indexing run started", "run_id", runID, "backup_dir", r.cfg.BackupDir, "workers", r.cfg.Workers)

	res, runErr := r.index(ctx, runID, persist)

	finished := time.Now().UTC()
	if res != nil {
		res.StartedAt = started
		res.FinishedAt = finished
		status.ChannelsProcessed = len(res.Channels) + len(res.Global.Failures)
		status.ScenesFound = res.SceneCount()
		status.ReviewEntries = res.ReviewCount()
		for _, f := range res.Global.Failures {
			status.AddFailure(f.Channel + ": " + f.Message)
		}
	}
	status.Finish(finished, runErr)
	if !r.cfg.DryRun {
		if err := status.Save(); err != nil {
			r.logger.Error("failed to save status", "error", err)
		}
	}
	metrics.RunDuration.Observe(finished.Sub(started).Seconds())

	if runErr != nil {
		metrics.RunsTotal.WithLabelValues("error").Inc()
		r.logger.Error("indexing run aborted", "run_id", runID, "error", runErr)
		if persist != nil {
			r.finishRecord(context.WithoutCancel(ctx), persist, runID, status)
		}
		return nil, runErr
	}

	res.Status = status.Main
	metrics.RunsTotal.WithLabelValues(string(status.Main)).Inc()

	if persist != nil {
		r.finishRecord(ctx, persist, runID, status)
	}
	r.publish(hermes.SubjectRunCompleted, func(p Publisher) error {
		return p.PublishRunCompleted(hermes.RunCompleted{
			RunID:          runID.String(),
			Status:         string(res.Status),
			Channels:       status.ChannelsProcessed,
			Scenes:         res.SceneCount(),
			Review:         res.ReviewCount(),
			FailedChannels: res.FailedChannels(),
			FinishedAt:     finished,
		})
	})
	r.notify(ctx, res)

	r.mu.Lock()
	r.latest = res
	r.mu.Unlock()

	r.logger.Info("indexing run complete",
		"run_id", runID,
		"status", res.Status,
		"channels", status.ChannelsProcessed,
		"scenes", res.SceneCount(),
		"review", res.ReviewCount(),
		"failed_channels", len(res.Global.Failures),
		"duration", finished.Sub(started).String(),
	)
	return res, nil
}

// job is one channel or thread scheduled for a run.
type job struct {
	cat  int
	file backup.ChannelFile
}

type outcome struct {
	result  *scene.ChannelResult
	failure *scene.ChannelFailure
}

func (r *Runner) index(ctx context.Context, runID uuid.UUID, persist Store) (*Result, error) {
	cats, err := backup.Discover(r.cfg.BackupDir)
	if err != nil {
		return nil, fmt.Errorf("discover backup: %w", err)
	}

	var jobs []job
	for ci, cat := range cats {
		for _, f := range cat.Channels {
			jobs = append(jobs, job{cat: ci, file: f})
		}
	}
	r.logger.Info("backup discovered", "categories", len(cats), "channels", len(jobs))

	pipeline := scene.NewPipeline(r.deps.Provider, r.deps.Names, r.cfg.Threshold, r.cfg.Workers, r.logger)
	outcomes := make([]outcome, len(jobs))

	g := new(errgroup.Group)
	g.SetLimit(r.cfg.Workers)
	for i, j := range jobs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			outcomes[i] = r.runChannel(ctx, pipeline, runID, cats[j.cat], j.file, persist)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("run interrupted: %w", err)
	}

	res := &Result{RunID: runID}
	for ci, cat := range cats {
		var (
			results  []scene.ChannelResult
			failures []scene.ChannelFailure
		)
		for i, j := range jobs {
			if j.cat != ci {
				continue
			}
			switch o := outcomes[i]; {
			case o.failure != nil:
				failures = append(failures, *o.failure)
			case o.result != nil:
				results = append(results, *o.result)
			}
		}
		res.Channels = append(res.Channels, results...)

		rollup := scene.RollUpCategory(cat.Name, cat.Position, results, failures)
		if !r.cfg.DryRun {
			if _, err := backup.WriteCategory(cat, rollup); err != nil {
				return nil, fmt.Errorf("write category %s: %w", cat.Name, err)
			}
		}
		if !rollup.Complete() {
			r.logger.Warn("category rollup incomplete", "category", cat.Name, "failed_channels", len(rollup.Failures))
		}
		res.Categories = append(res.Categories, rollup)
	}

	res.Global = scene.RollUpGlobal(filepath.Base(filepath.Clean(r.cfg.BackupDir)), res.Categories)
	if !r.cfg.DryRun {
		if _, err := backup.WriteGlobal(r.cfg.BackupDir, res.Global); err != nil {
			return nil, fmt.Errorf("write global scenes: %w", err)
		}
	}
	return res, nil
}

func (r *Runner) runChannel(ctx context.Context, p *scene.Pipeline, runID uuid.UUID, cat backup.Category, f backup.ChannelFile, persist Store) outcome {
	start := time.Now()
	defer func() {
		metrics.ChannelDuration.Observe(time.Since(start).Seconds())
	}()

	ch, err := backup.LoadChannel(f, cat.Name)
	if err != nil {
		return r.fail(ctx, runID, cat, scene.ChannelFailure{
			Channel:  f.Name,
			Position: f.Position,
			Err:      err,
			Message:  err.Error(),
		}, persist)
	}

	res, err := p.Run(ctx, ch)
	if err != nil {
		return r.fail(ctx, runID, cat, scene.NewChannelFailure(ch, err), persist)
	}

	if !r.cfg.DryRun {
		if _, err := backup.WriteChannel(cat, f, res); err != nil {
			err = fmt.Errorf("write scenes: %w", err)
			return r.fail(ctx, runID, cat, scene.NewChannelFailure(ch, err), persist)
		}
	}

	if persist != nil {
		dbStart := time.Now()
		if err := persist.SaveChannel(ctx, runID, res); err != nil {
			r.logger.Warn("failed to persist channel scenes", "channel", res.Channel, "error", err)
		}
		metrics.PostgresLatency.Observe(time.Since(dbStart).Seconds())
	}

	metrics.ChannelsProcessed.WithLabelValues("ok").Inc()
	metrics.ScenesIndexed.Add(float64(len(res.Scenes)))
	for _, s := range res.Review {
		metrics.ReviewEntries.WithLabelValues(string(s.Status)).Inc()
	}

	r.publish(hermes.SubjectChannelIndexed, func(p Publisher) error {
		return p.PublishChannelIndexed(hermes.ChannelIndexed{
			RunID:    runID.String(),
			Channel:  res.Channel,
			Category: cat.Name,
			Scenes:   len(res.Scenes),
			Review:   len(res.Review),
		})
	})
	return outcome{result: res}
}

func (r *Runner) fail(ctx context.Context, runID uuid.UUID, cat backup.Category, f scene.ChannelFailure, persist Store) outcome {
	r.logger.Error("channel failed", "channel", f.Channel, "category", cat.Name, "position", f.Position.String(), "error", f.Err)
	metrics.ChannelsProcessed.WithLabelValues("failed").Inc()

	if persist != nil {
		if err := persist.SaveFailure(ctx, runID, f); err != nil {
			r.logger.Warn("failed to persist channel failure", "channel", f.Channel, "error", err)
		}
	}
	r.publish(hermes.SubjectChannelFailed, func(p Publisher) error {
		return p.PublishChannelFailed(hermes.ChannelFailed{
			RunID:    runID.String(),
			Channel:  f.Channel,
			Category: cat.Name,
			Error:    f.Message,
		})
	})
	return outcome{failure: &f}
}

func (r *Runner) finishRecord(ctx context.Context, persist Store, runID uuid.UUID, status *Status) {
	finished := status.FinishedAt
	err := persist.FinishRun(ctx, store.RunRecord{
		ID:         runID,
		Status:     string(status.Main),
		StartedAt:  status.StartedAt,
		FinishedAt: &finished,
		Channels:   status.ChannelsProcessed,
		Scenes:     status.ScenesFound,
		Review:     status.ReviewEntries,
		Failed:     len(status.Failures),
	})
	if err != nil {
		r.logger.Warn("failed to record run outcome", "run_id", runID, "error", err)
	}
}

func (r *Runner) publish(subject string, send func(Publisher) error) {
	if r.deps.Publisher == nil || r.cfg.DryRun {
		return
	}
	if err := send(r.deps.Publisher); err != nil {
		r.logger.Warn("failed to publish event", "subject", subject, "error", err)
	}
}

// notify posts the review summary to Slack, or logs it when no notifier is
// configured. Clean runs are not posted.
func (r *Runner) notify(ctx context.Context, res *Result) {
	if res.ReviewCount() == 0 && len(res.Global.Failures) == 0 {
		return
	}

	text := slack.FormatReviewSummary(res.RunID.String(), res.Channels, res.Global.Failures)

	if r.deps.Notifier == nil || r.cfg.DryRun {
		r.logger.Info("review summary (no Slack configured)", "summary", text)
		return
	}
	if _, err := r.deps.Notifier.Post(ctx, text); err != nil {
		r.logger.Warn("failed to post review summary to Slack, logging instead",
			"error", err,
			"summary", text,
		)
	}
}
