package hermes

import (
	"encoding/json"
	"fmt"
	"time"
)

// Subjects published by the indexer.
const (
	SubjectChannelIndexed = "scenes.channel.indexed"
	SubjectChannelFailed  = "scenes.channel.failed"
	SubjectRunCompleted   = "scenes.run.completed"
)

// SubjectExportCompleted is published by the backup exporter once a fresh
// export has been written to disk.
const SubjectExportCompleted = "backup.export.completed"

// ChannelIndexed is emitted after one channel's scenes are written.
type ChannelIndexed struct {
	RunID    string `json:"run_id"`
	Channel  string `json:"channel"`
	Category string `json:"category"`
	Scenes   int    `json:"scenes"`
	Review   int    `json:"review"`
}

// ChannelFailed is emitted when a channel could not be indexed.
type ChannelFailed struct {
	RunID    string `json:"run_id"`
	Channel  string `json:"channel"`
	Category string `json:"category"`
	Error    string `json:"error"`
}

// RunCompleted is emitted once every rollup has been written.
type RunCompleted struct {
	RunID          string    `json:"run_id"`
	Status         string    `json:"status"`
	Channels       int       `json:"channels"`
	Scenes         int       `json:"scenes"`
	Review         int       `json:"review"`
	FailedChannels []string  `json:"failed_channels"`
	FinishedAt     time.Time `json:"finished_at"`
}

// ExportCompleted announces a finished backup export. BackupDir is optional;
// an empty value means the configured backup root.
type ExportCompleted struct {
	BackupDir  string    `json:"backup_dir,omitempty"`
	Channels   int       `json:"channels,omitempty"`
	ExportedAt time.Time `json:"exported_at"`
}

// normalized fills the fields consumers rely on being present.
func (e RunCompleted) normalized(now time.Time) RunCompleted {
	if e.FinishedAt.IsZero() {
		e.FinishedAt = now
	}
	if e.FailedChannels == nil {
		e.FailedChannels = []string{}
	}
	return e
}

// DecodeExportCompleted parses an export event payload.
func DecodeExportCompleted(data []byte) (ExportCompleted, error) {
	var evt ExportCompleted
	if err := json.Unmarshal(data, &evt); err != nil {
		return ExportCompleted{}, fmt.Errorf("decode export event: %w", err)
	}
	return evt, nil
}
