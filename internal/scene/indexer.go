package scene

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

const idSeparator = "-"

// SceneID composes the hierarchical id of a scene: category, channel,
// optional thread and the scene's sequence number, joined by idSeparator so
// that positions of different widths cannot collide.
func SceneID(pos Position, seq int) string {
	return pos.String() + idSeparator + strconv.Itoa(seq)
}

// String renders the position as "category-channel" or
// "category-channel-thread".
func (p Position) String() string {
	parts := []string{strconv.Itoa(p.Category), strconv.Itoa(p.Channel)}
	if p.IsThread() {
		parts = append(parts, strconv.Itoa(p.Thread))
	}
	return strings.Join(parts, idSeparator)
}

// ParsePosition is the inverse of Position.String.
func ParsePosition(s string) (Position, error) {
	parts := strings.Split(s, idSeparator)
	if len(parts) < 2 || len(parts) > 3 {
		return Position{}, fmt.Errorf("parse position %q: want 2 or 3 parts", s)
	}
	nums := make([]int, len(parts))
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return Position{}, fmt.Errorf("parse position %q: bad part %q", s, part)
		}
		nums[i] = n
	}
	pos := Position{Category: nums[0], Channel: nums[1]}
	if len(nums) == 3 {
		pos.Thread = nums[2]
	}
	return pos, nil
}

// Index sorts a channel's validated scenes by start index and stamps each one
// with a 1-based index and its hierarchical id.
func Index(scenes []Scene, pos Position) []Scene {
	out := slices.Clone(scenes)
	slices.SortStableFunc(out, func(x, y Scene) int {
		return cmp.Compare(x.Start.Index, y.Start.Index)
	})
	for i := range out {
		out[i].Index = i + 1
		out[i].ID = SceneID(pos, i+1)
	}
	return out
}

// renumber sorts scenes from different channels by start timestamp and
// assigns fresh 1-based indexes. Ids are left untouched.
func renumber(scenes []Scene) []Scene {
	slices.SortStableFunc(scenes, func(x, y Scene) int {
		return x.Start.Timestamp.Compare(y.Start.Timestamp)
	})
	for i := range scenes {
		scenes[i].Index = i + 1
	}
	return scenes
}

// RollUpCategory concatenates the channel results of one category, re-sorts
// them by start time and renumbers them. failures lists the channels that did
// not produce a result.
func RollUpCategory(name string, position int, results []ChannelResult, failures []ChannelFailure) Rollup {
	var all []Scene
	for _, r := range results {
		for _, s := range r.Scenes {
			all = append(all, s.clone())
		}
	}
	return Rollup{
		Name:     name,
		Position: position,
		Scenes:   renumber(all),
		Failures: slices.Clone(failures),
	}
}

// RollUpGlobal repeats the category rollup across categories.
func RollUpGlobal(name string, categories []Rollup) Rollup {
	var all []Scene
	var failures []ChannelFailure
	for _, c := range categories {
		for _, s := range c.Scenes {
			all = append(all, s.clone())
		}
		failures = append(failures, c.Failures...)
	}
	return Rollup{
		Name:     name,
		Scenes:   renumber(all),
		Failures: failures,
	}
}

// NewChannelFailure builds the failure record of a channel.
func NewChannelFailure(ch *Channel, err error) ChannelFailure {
	return ChannelFailure{
		Channel:  ch.Name,
		Position: ch.Position,
		Err:      err,
		Message:  err.Error(),
	}
}
