package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MikeSquared-Agency/scenewright/internal/runner"
	"github.com/MikeSquared-Agency/scenewright/internal/scene"
	"github.com/MikeSquared-Agency/scenewright/internal/store"
)

// Runs is the view of the indexing runner the API needs. *runner.Runner
// satisfies it.
type Runs interface {
	Latest() *runner.Result
	Running() bool
	Ready() error
	Start(ctx context.Context) error
}

// RunStore serves results recorded by earlier processes. *store.Store
// satisfies it.
type RunStore interface {
	LatestRun(ctx context.Context) (*store.RunRecord, error)
	ListScenes(ctx context.Context, runID uuid.UUID) ([]scene.Scene, error)
	ListFailures(ctx context.Context, runID uuid.UUID) ([]scene.ChannelFailure, error)
}

type Server struct {
	router *chi.Mux
	runs   Runs
	db     RunStore
	logger *slog.Logger
	http   *http.Server
}

// NewServer wires the routes. db may be nil.
func NewServer(port int, apiToken string, runs Runs, db RunStore, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(Metrics)
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router: router,
		runs:   runs,
		db:     db,
		logger: logger,
		http: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}

	router.Get("/health", s.health)
	router.Handle("/metrics", promhttp.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/scenes", s.scenes)
		r.Get("/scenes/categories/{position}", s.category)
		r.Get("/review", s.review)
		r.Get("/runs/latest", s.latestRun)

		r.Group(func(r chi.Router) {
			r.Use(BearerAuthMiddleware(apiToken))
			r.Post("/runs", s.startRun)
		})
	})

	return s
}

func (s *Server) Start() error {
	s.logger.Info("API server starting", "addr", s.http.Addr)
	return s.http.ListenAndServe()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type scenesResponse struct {
	RunID    string                 `json:"run_id"`
	Status   string                 `json:"status"`
	Complete bool                   `json:"complete"`
	Name     string                 `json:"name,omitempty"`
	Scenes   []scene.Scene          `json:"scenes"`
	Failures []scene.ChannelFailure `json:"failures"`
}

func (s *Server) scenes(w http.ResponseWriter, r *http.Request) {
	res := s.runs.Latest()
	if res != nil {
		writeJSON(w, http.StatusOK, scenesResponse{
			RunID:    res.RunID.String(),
			Status:   string(res.Status),
			Complete: res.Global.Complete(),
			Name:     res.Global.Name,
			Scenes:   nonNil(res.Global.Scenes),
			Failures: nonNilFailures(res.Global.Failures),
		})
		return
	}

	if s.db != nil {
		rec, err := s.storedRun(r.Context())
		if err != nil {
			s.logger.Error("failed to load latest run", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to load latest run")
			return
		}
		if rec != nil {
			scenes, err := s.db.ListScenes(r.Context(), rec.ID)
			if err != nil {
				s.logger.Error("failed to list stored scenes", "run_id", rec.ID, "error", err)
				writeError(w, http.StatusInternalServerError, "failed to load scenes")
				return
			}
			failures, err := s.db.ListFailures(r.Context(), rec.ID)
			if err != nil {
				s.logger.Error("failed to list stored failures", "run_id", rec.ID, "error", err)
				writeError(w, http.StatusInternalServerError, "failed to load failures")
				return
			}
			for i := range scenes {
				scenes[i].Index = i + 1
			}
			writeJSON(w, http.StatusOK, scenesResponse{
				RunID:    rec.ID.String(),
				Status:   rec.Status,
				Complete: rec.Status == string(runner.StateSuccess) && rec.Failed == 0 && len(failures) == 0,
				Scenes:   nonNil(scenes),
				Failures: nonNilFailures(failures),
			})
			return
		}
	}

	s.unavailable(w)
}

// storedRun returns the latest finished run recorded in the database, or nil
// when there is none. Rows not in a final state hold a partial scene set.
func (s *Server) storedRun(ctx context.Context) (*store.RunRecord, error) {
	rec, err := s.db.LatestRun(ctx)
	if errors.Is(err, store.ErrNoRuns) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	switch runner.State(rec.Status) {
	case runner.StateSuccess, runner.StateFailed:
		return rec, nil
	default:
		return nil, nil
	}
}

func (s *Server) category(w http.ResponseWriter, r *http.Request) {
	pos, err := strconv.Atoi(chi.URLParam(r, "position"))
	if err != nil || pos <= 0 {
		writeError(w, http.StatusBadRequest, "category position must be a positive integer")
		return
	}

	res := s.runs.Latest()
	if res == nil {
		s.unavailable(w)
		return
	}

	cat, ok := res.Category(pos)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no category at position %d", pos))
		return
	}
	writeJSON(w, http.StatusOK, scenesResponse{
		RunID:    res.RunID.String(),
		Status:   string(res.Status),
		Complete: cat.Complete(),
		Name:     cat.Name,
		Scenes:   nonNil(cat.Scenes),
		Failures: nonNilFailures(cat.Failures),
	})
}

type reviewEntry struct {
	Channel  string         `json:"channel"`
	Category string         `json:"category"`
	Position scene.Position `json:"position"`
	Review   []scene.Scene  `json:"review"`
}

func (s *Server) review(w http.ResponseWriter, r *http.Request) {
	res := s.runs.Latest()
	if res == nil {
		s.unavailable(w)
		return
	}

	entries := []reviewEntry{}
	for _, c := range res.Channels {
		if len(c.Review) == 0 {
			continue
		}
		entries = append(entries, reviewEntry{
			Channel:  c.Channel,
			Category: c.Category,
			Position: c.Position,
			Review:   c.Review,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":  res.RunID.String(),
		"count":   res.ReviewCount(),
		"entries": entries,
	})
}

type runSummary struct {
	RunID      string                 `json:"run_id"`
	Status     string                 `json:"status"`
	Running    bool                   `json:"running"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt *time.Time             `json:"finished_at,omitempty"`
	Channels   int                    `json:"channels"`
	Scenes     int                    `json:"scenes"`
	Review     int                    `json:"review"`
	Failed     int                    `json:"failed"`
	Failures   []scene.ChannelFailure `json:"failures,omitempty"`
}

func (s *Server) latestRun(w http.ResponseWriter, r *http.Request) {
	running := s.runs.Running()

	if res := s.runs.Latest(); res != nil {
		finished := res.FinishedAt
		writeJSON(w, http.StatusOK, runSummary{
			RunID:      res.RunID.String(),
			Status:     string(res.Status),
			Running:    running,
			StartedAt:  res.StartedAt,
			FinishedAt: &finished,
			Channels:   len(res.Channels) + len(res.Global.Failures),
			Scenes:     res.SceneCount(),
			Review:     res.ReviewCount(),
			Failed:     len(res.Global.Failures),
			Failures:   res.Global.Failures,
		})
		return
	}

	if s.db != nil {
		rec, err := s.storedRun(r.Context())
		if err == nil && rec != nil {
			var failures []scene.ChannelFailure
			failures, err = s.db.ListFailures(r.Context(), rec.ID)
			if err == nil {
				writeJSON(w, http.StatusOK, runSummary{
					RunID:      rec.ID.String(),
					Status:     rec.Status,
					Running:    running,
					StartedAt:  rec.StartedAt,
					FinishedAt: rec.FinishedAt,
					Channels:   rec.Channels,
					Scenes:     rec.Scenes,
					Review:     rec.Review,
					Failed:     rec.Failed,
					Failures:   failures,
				})
				return
			}
		}
		if err != nil {
			s.logger.Error("failed to load latest run", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to load latest run")
			return
		}
	}

	s.unavailable(w)
}

func (s *Server) startRun(w http.ResponseWriter, r *http.Request) {
	err := s.runs.Start(context.WithoutCancel(r.Context()))
	switch {
	case errors.Is(err, runner.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, "a run is already in progress")
	case err != nil:
		s.logger.Error("failed to start run", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to start run")
	default:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
	}
}

// unavailable explains why no result can be served yet.
func (s *Server) unavailable(w http.ResponseWriter) {
	if s.runs.Running() {
		writeError(w, http.StatusConflict, runner.ErrAlreadyRunning.Error())
		return
	}
	switch err := s.runs.Ready(); {
	case errors.Is(err, runner.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, runner.ErrDataNotReady):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case err != nil:
		s.logger.Error("failed to read run status", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read run status")
	default:
		writeError(w, http.StatusNotFound, "no run recorded by this process")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func nonNil(s []scene.Scene) []scene.Scene {
	if s == nil {
		return []scene.Scene{}
	}
	return s
}

func nonNilFailures(f []scene.ChannelFailure) []scene.ChannelFailure {
	if f == nil {
		return []scene.ChannelFailure{}
	}
	return f
}
