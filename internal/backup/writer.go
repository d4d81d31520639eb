package backup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/MikeSquared-Agency/scenewright/internal/scene"
)

// WriteChannel saves a channel's scenes to
// "<category>/Scenes/<stem>_scenes.json" and, when anything was flagged, its
// review list next to it. It returns the scenes file path.
func WriteChannel(cat Category, f ChannelFile, res *scene.ChannelResult) (string, error) {
	dir := filepath.Join(cat.Dir, scenesDir)
	path := filepath.Join(dir, f.Stem()+"_scenes.json")

	if err := saveJSON(path, nonNil(res.Scenes)); err != nil {
		return "", err
	}

	reviewPath := filepath.Join(dir, f.Stem()+"_review.json")
	if len(res.Review) == 0 {
		if err := os.Remove(reviewPath); err != nil && !os.IsNotExist(err) {
			return "", fmt.Errorf("remove stale review: %w", err)
		}
		return path, nil
	}
	if err := saveJSON(reviewPath, res.Review); err != nil {
		return "", err
	}
	return path, nil
}

// WriteCategory saves a category rollup to "<category>/scenes.json". When a
// channel failed, the failures go to "<category>/scenes_failures.json".
func WriteCategory(cat Category, r scene.Rollup) (string, error) {
	return writeRollup(cat.Dir, r)
}

// WriteGlobal saves the backup-wide rollup to "<root>/scenes.json", with
// failures alongside as for categories.
func WriteGlobal(root string, r scene.Rollup) (string, error) {
	return writeRollup(root, r)
}

func writeRollup(dir string, r scene.Rollup) (string, error) {
	path := filepath.Join(dir, "scenes.json")
	if err := saveJSON(path, nonNil(r.Scenes)); err != nil {
		return "", err
	}

	failuresPath := filepath.Join(dir, failuresFile)
	if r.Complete() {
		if err := os.Remove(failuresPath); err != nil && !os.IsNotExist(err) {
			return "", fmt.Errorf("remove stale failures: %w", err)
		}
		return path, nil
	}
	if err := saveJSON(failuresPath, r.Failures); err != nil {
		return "", err
	}
	return path, nil
}

func nonNil(s []scene.Scene) []scene.Scene {
	if s == nil {
		return []scene.Scene{}
	}
	return s
}

func saveJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return os.Rename(tmp, path)
}
