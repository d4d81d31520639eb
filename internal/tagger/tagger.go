package tagger

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strconv"

	"github.com/MikeSquared-Agency/scenewright/internal/scene"
)

// Default boundary markers, matched against the start of a message.
const (
	DefaultStartMarker = `(?i)^\s*\[\s*scene\s*start`
	DefaultEndMarker   = `(?i)^\s*\[\s*scene\s*end`
)

// Tagger traces scenes from explicit start/end markers that characters post.
type Tagger struct {
	start *regexp.Regexp
	end   *regexp.Regexp
}

// New compiles the start and end marker expressions. Empty patterns fall back
// to the defaults.
func New(startPattern, endPattern string) (*Tagger, error) {
	if startPattern == "" {
		startPattern = DefaultStartMarker
	}
	if endPattern == "" {
		endPattern = DefaultEndMarker
	}

	start, err := regexp.Compile(startPattern)
	if err != nil {
		return nil, fmt.Errorf("compile start marker: %w", err)
	}
	end, err := regexp.Compile(endPattern)
	if err != nil {
		return nil, fmt.Errorf("compile end marker: %w", err)
	}
	return &Tagger{start: start, end: end}, nil
}

// Trace walks the channel from index from and returns the scenes opened and
// closed by the given characters. Only messages authored by one of them are
// inspected. The second result is the index to resume a shallow scan from.
func (t *Tagger) Trace(ctx context.Context, ch *scene.Channel, characters []scene.CharacterID, from int, deep bool) ([]scene.Scene, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, from, err
	}
	if from < 0 {
		from = 0
	}

	own := make(map[scene.CharacterID]bool, len(characters))
	for _, c := range characters {
		own[c] = true
	}

	var (
		scenes  []scene.Scene
		open    = -1
		lastOwn = -1
	)
	emit := func(startIdx, endIdx int) {
		scenes = append(scenes, scene.Scene{
			Channel:    ch.Name,
			Start:      ch.Ref(startIdx),
			End:        ch.Ref(endIdx),
			Characters: slices.Clone(characters),
			Status:     scene.StatusOK,
		})
	}

	for i := from; i < len(ch.Messages); i++ {
		m := ch.Messages[i]
		id, err := strconv.Atoi(m.Author.ID)
		if err != nil || !own[scene.CharacterID(id)] {
			continue
		}

		isStart := t.start.MatchString(m.Content)
		isEnd := t.end.MatchString(m.Content)

		if open >= 0 && isStart {
			emit(open, lastOwn)
			open = -1
			if !deep {
				return scenes, i, nil
			}
		}
		if open < 0 && isStart {
			open = i
		}
		lastOwn = i
		if open >= 0 && isEnd {
			emit(open, i)
			open = -1
			if !deep {
				return scenes, i + 1, nil
			}
		}
	}

	if open >= 0 {
		emit(open, lastOwn)
	}
	return scenes, len(ch.Messages), nil
}
