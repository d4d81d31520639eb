package characters

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/MikeSquared-Agency/scenewright/internal/scene"
)

type version struct {
	ID    scene.CharacterID `json:"id"`
	Names []string          `json:"names"`
}

type entry struct {
	version
	OtherVersions []version `json:"other_versions"`
}

// Resolver maps character ids to display names. The zero value resolves
// nothing.
type Resolver struct {
	names map[scene.CharacterID]string
}

// Load reads a character map file of the form
// [{"id": 3, "names": ["Aria"], "other_versions": [{"id": 7, "names": ["Aria (old)"]}]}].
func Load(path string) (*Resolver, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read character map: %w", err)
	}

	var entries []entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse character map: %w", err)
	}

	r := &Resolver{names: make(map[scene.CharacterID]string)}
	for _, e := range entries {
		r.add(e.version)
		for _, v := range e.OtherVersions {
			r.add(v)
		}
	}
	return r, nil
}

// LoadOrEmpty is Load that logs a failure and returns an empty resolver.
func LoadOrEmpty(path string, logger *slog.Logger) *Resolver {
	r, err := Load(path)
	if err != nil {
		logger.Warn("character map unavailable, logging ids only", "path", path, "error", err)
		return &Resolver{}
	}
	logger.Info("character map loaded", "path", path, "characters", r.Len())
	return r
}

func (r *Resolver) add(v version) {
	if len(v.Names) == 0 {
		return
	}
	if _, ok := r.names[v.ID]; ok {
		return
	}
	r.names[v.ID] = v.Names[0]
}

// Name returns the first listed name of the character or of the alternate
// version carrying that id.
func (r *Resolver) Name(id scene.CharacterID) (string, bool) {
	if r == nil || r.names == nil {
		return "", false
	}
	name, ok := r.names[id]
	return name, ok
}

// Len is the number of ids with a known name.
func (r *Resolver) Len() int {
	if r == nil {
		return 0
	}
	return len(r.names)
}
