package scene

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"
)

var base = time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ref builds the MessageRef of message i in a channel built by makeChannel.
func ref(i int) MessageRef {
	return MessageRef{ID: "m" + strconv.Itoa(i), Index: i, Timestamp: base.Add(time.Duration(i) * time.Minute)}
}

func sc(start, end int, chars ...CharacterID) Scene {
	return Scene{Start: ref(start), End: ref(end), Characters: chars, Status: StatusOK}
}

// makeChannel builds a channel of n messages whose authors cycle through
// authors.
func makeChannel(name string, n int, authors ...string) *Channel {
	ch := &Channel{Name: name, Category: "Roleplay", Position: Position{Category: 2, Channel: 5}}
	for i := 0; i < n; i++ {
		author := "900000000000000001"
		if len(authors) > 0 {
			author = authors[i%len(authors)]
		}
		ch.Messages = append(ch.Messages, Message{
			ID:        "m" + strconv.Itoa(i),
			Type:      "Default",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Author:    Author{ID: author},
		})
	}
	return ch
}

// fakeProvider returns canned traces per character.
type fakeProvider struct {
	traces map[CharacterID][]Scene
	errs   map[CharacterID]error
}

func (f *fakeProvider) Trace(_ context.Context, _ *Channel, chars []CharacterID, _ int, _ bool) ([]Scene, int, error) {
	if len(chars) != 1 {
		return nil, 0, fmt.Errorf("expected a single character, got %v", chars)
	}
	c := chars[0]
	if err := f.errs[c]; err != nil {
		return nil, 0, err
	}
	var out []Scene
	for _, s := range f.traces[c] {
		s.Characters = []CharacterID{c}
		out = append(out, s)
	}
	return out, 0, nil
}

type fakeNames map[CharacterID]string

func (f fakeNames) Name(id CharacterID) (string, bool) {
	n, ok := f[id]
	return n, ok
}

var errBoom = errors.New("boom")
