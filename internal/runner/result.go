package runner

import (
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/scenewright/internal/scene"
)

// Result is everything one run produced.
type Result struct {
	RunID      uuid.UUID             `json:"run_id"`
	Status     State                 `json:"status"`
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt time.Time             `json:"finished_at"`
	Channels   []scene.ChannelResult `json:"channels"`
	Categories []scene.Rollup        `json:"categories"`
	Global     scene.Rollup          `json:"global"`
}

// SceneCount is the number of scenes in the global rollup.
func (r *Result) SceneCount() int {
	return len(r.Global.Scenes)
}

// ReviewCount is the number of review entries across all channels.
func (r *Result) ReviewCount() int {
	n := 0
	for _, c := range r.Channels {
		n += len(c.Review)
	}
	return n
}

// FailedChannels lists the names of the channels that failed.
func (r *Result) FailedChannels() []string {
	names := make([]string, 0, len(r.Global.Failures))
	for _, f := range r.Global.Failures {
		names = append(names, f.Channel)
	}
	return names
}

// Category returns the rollup of the category at the given position.
func (r *Result) Category(position int) (*scene.Rollup, bool) {
	for i := range r.Categories {
		if r.Categories[i].Position == position {
			return &r.Categories[i], true
		}
	}
	return nil, false
}

// WriteSummary prints a human-readable run summary.
func (r *Result) WriteSummary(w io.Writer) {
	fmt.Fprintf(w, "\n=== Scene Index Summary ===\n")
	fmt.Fprintf(w, "Run: %s\n", r.RunID)
	fmt.Fprintf(w, "Status: %s\n", r.Status)
	fmt.Fprintf(w, "Channels indexed: %d\n", len(r.Channels))
	fmt.Fprintf(w, "Scenes: %d\n", r.SceneCount())
	fmt.Fprintf(w, "Review entries: %d\n", r.ReviewCount())
	fmt.Fprintf(w, "Failed channels: %d\n", len(r.Global.Failures))
	for _, f := range r.Global.Failures {
		fmt.Fprintf(w, "  - %s [%s]: %s\n", f.Channel, f.Position, f.Message)
	}
	if !r.FinishedAt.IsZero() {
		fmt.Fprintf(w, "Duration: %s\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	}
}
