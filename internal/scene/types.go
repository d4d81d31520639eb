package scene

import (
	"context"
	"slices"
	"time"
)

// DefaultCharacterThreshold separates character bots (ids below it) from
// ordinary accounts.
const DefaultCharacterThreshold = 1000

// CharacterID identifies a role-play character across the whole backup.
type CharacterID int

// MessageRef points at one message of a channel. Index is authoritative for
// ordering inside a channel; Timestamp is only used across channels.
type MessageRef struct {
	ID        string    `json:"id"`
	Index     int       `json:"index"`
	Timestamp time.Time `json:"timestamp"`
}

// Status is the classification tag carried by a scene.
type Status string

const (
	StatusOK              Status = "ok"
	StatusConsecutive     Status = "consecutive"
	StatusGap             Status = "gap"
	StatusLateStartMerged Status = "late-start-merged"
	StatusEarlyEndMerged  Status = "early-end-merged"
	StatusOverlap         Status = "overlap"
	StatusDegenerate      Status = "degenerate"
)

// Scene is a contiguous span of a channel attributed to a set of characters.
type Scene struct {
	ID         string        `json:"sceneId"`
	Index      int           `json:"index"`
	Channel    string        `json:"channel"`
	Start      MessageRef    `json:"start"`
	End        MessageRef    `json:"end"`
	Characters []CharacterID `json:"characters"`
	Status     Status        `json:"status"`
}

// Len is the number of messages spanned by the scene minus one.
func (s Scene) Len() int {
	return s.End.Index - s.Start.Index
}

// clone copies the scene so that later character merges do not leak into it.
func (s Scene) clone() Scene {
	s.Characters = slices.Clone(s.Characters)
	return s
}

// Author is the author block of an exported message.
type Author struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	IsBot bool   `json:"isBot"`
}

// Message is a single exported chat message.
type Message struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Content   string    `json:"content"`
	Author    Author    `json:"author"`
}

// Position locates a channel inside the backup. Thread is zero for plain
// channels.
type Position struct {
	Category int `json:"category"`
	Channel  int `json:"channel"`
	Thread   int `json:"thread,omitempty"`
}

// IsThread reports whether the position belongs to a thread.
func (p Position) IsThread() bool {
	return p.Thread > 0
}

// Channel is the read-only input of one pipeline run.
type Channel struct {
	Name     string    `json:"name"`
	Category string    `json:"category"`
	Position Position  `json:"position"`
	Messages []Message `json:"messages"`
}

// Ref builds the MessageRef of the message at index i.
func (c *Channel) Ref(i int) MessageRef {
	m := c.Messages[i]
	return MessageRef{ID: m.ID, Index: i, Timestamp: m.Timestamp}
}

// TraceProvider returns one character set's ordered scenes in a channel,
// starting at message index from. When deep is false the trace stops after
// the first scene. The int result is a resume index the engine ignores.
type TraceProvider interface {
	Trace(ctx context.Context, ch *Channel, characters []CharacterID, from int, deep bool) ([]Scene, int, error)
}

// NameResolver maps a character id to a display name for logging.
type NameResolver interface {
	Name(id CharacterID) (string, bool)
}

// ChannelResult is the output of one channel pipeline.
type ChannelResult struct {
	Channel  string   `json:"channel"`
	Category string   `json:"category"`
	Position Position `json:"position"`
	Scenes   []Scene  `json:"scenes"`
	Review   []Scene  `json:"review"`
}

// ChannelFailure records a channel that could not contribute to a rollup.
type ChannelFailure struct {
	Channel  string   `json:"channel"`
	Position Position `json:"position"`
	Err      error    `json:"-"`
	Message  string   `json:"error"`
}

// Rollup is a category or global scene list.
type Rollup struct {
	Name     string           `json:"name"`
	Position int              `json:"position,omitempty"`
	Scenes   []Scene          `json:"scenes"`
	Failures []ChannelFailure `json:"failures,omitempty"`
}

// Complete reports whether every contributing channel succeeded.
func (r *Rollup) Complete() bool {
	return len(r.Failures) == 0
}
