package backup

import (
	"cmp"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/MikeSquared-Agency/scenewright/internal/scene"
)

const (
	threadsDir   = "Threads"
	scenesDir    = "Scenes"
	failuresFile = "scenes_failures.json"
)

var (
	positionedName = regexp.MustCompile(`^(\d+)# (.+)$`)
	threadName     = regexp.MustCompile(`^(\d+)-(\d+)# (.+)$`)
)

// ChannelFile is one exported channel or thread on disk.
type ChannelFile struct {
	Path     string
	Name     string
	Position scene.Position
}

// Stem is the file name without its extension.
func (f ChannelFile) Stem() string {
	return strings.TrimSuffix(filepath.Base(f.Path), filepath.Ext(f.Path))
}

// Category is a category folder with its channels and threads, sorted by
// channel position then thread position.
type Category struct {
	Name     string
	Position int
	Dir      string
	Channels []ChannelFile
}

// Discover walks a backup root laid out as
// "<pos># <category>/<pos># <channel>.json" with threads under
// "<pos># <category>/Threads/<chan>-<thread># <title>.json".
func Discover(root string) ([]Category, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read backup root: %w", err)
	}

	var cats []Category
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		m := positionedName.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		pos, _ := strconv.Atoi(m[1])
		cat := Category{
			Name:     m[2],
			Position: pos,
			Dir:      filepath.Join(root, e.Name()),
		}

		channels, err := discoverChannels(cat.Dir, pos)
		if err != nil {
			return nil, fmt.Errorf("category %s: %w", e.Name(), err)
		}
		threads, err := discoverThreads(filepath.Join(cat.Dir, threadsDir), pos)
		if err != nil {
			return nil, fmt.Errorf("category %s threads: %w", e.Name(), err)
		}
		cat.Channels = append(channels, threads...)
		slices.SortStableFunc(cat.Channels, func(a, b ChannelFile) int {
			if c := cmp.Compare(a.Position.Channel, b.Position.Channel); c != 0 {
				return c
			}
			return cmp.Compare(a.Position.Thread, b.Position.Thread)
		})

		cats = append(cats, cat)
	}

	slices.SortStableFunc(cats, func(a, b Category) int {
		return cmp.Compare(a.Position, b.Position)
	})
	return cats, nil
}

func discoverChannels(dir string, category int) ([]ChannelFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []ChannelFile
	for _, e := range entries {
		if e.IsDir() || !isChannelExport(e.Name()) {
			continue
		}
		m := positionedName.FindStringSubmatch(strings.TrimSuffix(e.Name(), ".json"))
		if m == nil {
			continue
		}
		pos, _ := strconv.Atoi(m[1])
		files = append(files, ChannelFile{
			Path:     filepath.Join(dir, e.Name()),
			Name:     m[2],
			Position: scene.Position{Category: category, Channel: pos},
		})
	}
	return files, nil
}

func discoverThreads(dir string, category int) ([]ChannelFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var files []ChannelFile
	for _, e := range entries {
		if e.IsDir() || !isChannelExport(e.Name()) {
			continue
		}
		m := threadName.FindStringSubmatch(strings.TrimSuffix(e.Name(), ".json"))
		if m == nil {
			continue
		}
		ch, _ := strconv.Atoi(m[1])
		th, _ := strconv.Atoi(m[2])
		files = append(files, ChannelFile{
			Path:     filepath.Join(dir, e.Name()),
			Name:     m[3],
			Position: scene.Position{Category: category, Channel: ch, Thread: th},
		})
	}
	return files, nil
}

func isChannelExport(name string) bool {
	return strings.HasSuffix(name, ".json") &&
		!strings.HasSuffix(name, "scenes.json") &&
		!strings.HasSuffix(name, "_review.json") &&
		!strings.HasSuffix(name, "_failures.json")
}

// exportFile is the subset of a DiscordChatExporter JSON export we read.
type exportFile struct {
	Channel struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"channel"`
	Messages []scene.Message `json:"messages"`
}

// LoadChannel reads one exported channel. The position comes from the file
// name, the channel name from the export itself when present.
func LoadChannel(f ChannelFile, category string) (*scene.Channel, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read channel: %w", err)
	}

	var exp exportFile
	if err := json.Unmarshal(data, &exp); err != nil {
		return nil, fmt.Errorf("parse channel %s: %w", f.Path, err)
	}

	name := exp.Channel.Name
	if name == "" {
		name = f.Name
	}

	return &scene.Channel{
		Name:     name,
		Category: category,
		Position: f.Position,
		Messages: exp.Messages,
	}, nil
}
