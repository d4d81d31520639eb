package runner

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

var (
	// ErrAlreadyRunning is returned when another run owns the backup.
	ErrAlreadyRunning = errors.New("scene indexing already running")
	// ErrDataNotReady is returned when the last run did not produce a full
	// scene list.
	ErrDataNotReady = errors.New("scene data not ready")
)

// State is the main state of the run status file.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateSuccess State = "success"
	StateFailed  State = "failed"
)

// Status is the on-disk record of the last run, shared with anything else
// that reads the backup's scene files.
type Status struct {
	Main              State     `json:"main"`
	RunID             string    `json:"run_id,omitempty"`
	StartedAt         time.Time `json:"started_at"`
	FinishedAt        time.Time `json:"finished_at"`
	ChannelsProcessed int       `json:"channels_processed"`
	ScenesFound       int       `json:"scenes_found"`
	ReviewEntries     int       `json:"review_entries"`
	Failures          []string  `json:"failures"`
	Error             string    `json:"error,omitempty"`

	path string // not serialized
}

// LoadStatus reads the status file, or returns an idle status when it does
// not exist yet.
func LoadStatus(path string) (*Status, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Status{Main: StateIdle, path: path}, nil
		}
		return nil, fmt.Errorf("read status: %w", err)
	}

	var s Status
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse status: %w", err)
	}
	s.path = path
	return &s, nil
}

// Save persists the status atomically.
func (s *Status) Save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write status: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// Begin resets the counters and marks the status running.
func (s *Status) Begin(runID string, at time.Time) {
	s.Main = StateRunning
	s.RunID = runID
	s.StartedAt = at
	s.FinishedAt = time.Time{}
	s.ChannelsProcessed = 0
	s.ScenesFound = 0
	s.ReviewEntries = 0
	s.Failures = nil
	s.Error = ""
}

// AddFailure records a channel that could not be indexed.
func (s *Status) AddFailure(msg string) {
	s.Failures = append(s.Failures, msg)
}

// Finish marks the run success, or failed when any channel failed or err is
// non-nil.
func (s *Status) Finish(at time.Time, err error) {
	s.FinishedAt = at
	switch {
	case err != nil:
		s.Main = StateFailed
		s.Error = err.Error()
	case len(s.Failures) > 0:
		s.Main = StateFailed
	default:
		s.Main = StateSuccess
	}
}

// Ready reports whether the scene files on disk are complete and stable.
func (s *Status) Ready() error {
	switch s.Main {
	case StateSuccess:
		return nil
	case StateRunning:
		return ErrAlreadyRunning
	default:
		return ErrDataNotReady
	}
}
