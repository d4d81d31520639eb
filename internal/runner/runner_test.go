package runner

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"go.uber.org/goleak"

	"github.com/MikeSquared-Agency/scenewright/internal/hermes"
	"github.com/MikeSquared-Agency/scenewright/internal/scene"
	"github.com/MikeSquared-Agency/scenewright/internal/store"
	"github.com/MikeSquared-Agency/scenewright/internal/tagger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var base = time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type post struct {
	author  string
	content string
}

// writeExport writes a channel export whose message i is timestamped
// offset+i minutes after base.
func writeExport(t *testing.T, path string, offset int, posts ...post) {
	t.Helper()
	var msgs []scene.Message
	for i, p := range posts {
		msgs = append(msgs, scene.Message{
			ID:        filepath.Base(path) + "-" + string(rune('a'+i)),
			Type:      "Default",
			Timestamp: base.Add(time.Duration(offset+i) * time.Minute),
			Content:   p.content,
			Author:    scene.Author{ID: p.author, IsBot: true},
		})
	}
	data, err := json.Marshal(map[string]any{"messages": msgs})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// buildBackup lays out two categories: The City with an overlapping pair of
// scenes in #tavern and a clean scene in #market, and The Wilds whose only
// channel is malformed.
func buildBackup(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	writeExport(t, filepath.Join(root, "1# The City", "1# tavern.json"), 0,
		post{"1", "[scene start]"},
		post{"2", "hi"},
		post{"1", "..."},
		post{"2", "[scene start]"},
		post{"1", "x"},
		post{"1", "[scene end]"},
		post{"2", "y"},
		post{"2", "z"},
		post{"2", "[scene end]"},
	)
	writeExport(t, filepath.Join(root, "1# The City", "2# market.json"), 2,
		post{"3", "[scene start]"},
		post{"3", "haggling"},
		post{"3", "[scene end]"},
	)
	writeExport(t, filepath.Join(root, "2# The Wilds", "1# docks.json"), 0,
		post{"", "who wrote this"},
	)
	return root
}

type fakeStore struct {
	mu       sync.Mutex
	begun    []uuid.UUID
	channels []string
	failures []string
	finished []store.RunRecord
}

func (f *fakeStore) BeginRun(_ context.Context, id uuid.UUID, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.begun = append(f.begun, id)
	return nil
}

func (f *fakeStore) SaveChannel(_ context.Context, _ uuid.UUID, res *scene.ChannelResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels = append(f.channels, res.Channel)
	return nil
}

func (f *fakeStore) SaveFailure(_ context.Context, _ uuid.UUID, fl scene.ChannelFailure) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, fl.Channel)
	return nil
}

func (f *fakeStore) FinishRun(_ context.Context, rec store.RunRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = append(f.finished, rec)
	return nil
}

type fakePublisher struct {
	mu        sync.Mutex
	subjects  map[string]int
	completed []hermes.RunCompleted
}

func (f *fakePublisher) record(subject string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subjects == nil {
		f.subjects = make(map[string]int)
	}
	f.subjects[subject]++
}

func (f *fakePublisher) PublishChannelIndexed(hermes.ChannelIndexed) error {
	f.record(hermes.SubjectChannelIndexed)
	return nil
}

func (f *fakePublisher) PublishChannelFailed(hermes.ChannelFailed) error {
	f.record(hermes.SubjectChannelFailed)
	return nil
}

func (f *fakePublisher) PublishRunCompleted(evt hermes.RunCompleted) error {
	f.record(hermes.SubjectRunCompleted)
	f.mu.Lock()
	f.completed = append(f.completed, evt)
	f.mu.Unlock()
	return nil
}

type fakeNotifier struct {
	posts []string
}

func (f *fakeNotifier) Post(_ context.Context, text string) (string, error) {
	f.posts = append(f.posts, text)
	return "1.0", nil
}

func newTagger(t *testing.T) *tagger.Tagger {
	t.Helper()
	tg, err := tagger.New("", "")
	if err != nil {
		t.Fatalf("tagger.New: %v", err)
	}
	return tg
}

func TestRun_EndToEnd(t *testing.T) {
	root := buildBackup(t)
	st := &fakeStore{}
	pub := &fakePublisher{}
	notifier := &fakeNotifier{}

	r := NewRunner(Config{BackupDir: root, Threshold: 1000, Workers: 3}, Deps{
		Provider:  newTagger(t),
		Store:     st,
		Publisher: pub,
		Notifier:  notifier,
	}, discardLogger())

	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Status != StateFailed {
		t.Errorf("status = %s, want failed (docks is malformed)", res.Status)
	}

	var ids []string
	for _, s := range res.Global.Scenes {
		ids = append(ids, s.ID)
	}
	if diff := cmp.Diff([]string{"1-1-1", "1-2-1", "1-1-2"}, ids); diff != "" {
		t.Errorf("global order mismatch (-want +got):\n%s", diff)
	}
	if res.ReviewCount() != 2 {
		t.Errorf("expected 2 review entries, got %d", res.ReviewCount())
	}
	if diff := cmp.Diff([]string{"docks"}, res.FailedChannels()); diff != "" {
		t.Errorf("failed channels mismatch (-want +got):\n%s", diff)
	}
	if !errors.Is(res.Global.Failures[0].Err, scene.ErrMalformedChannel) {
		t.Errorf("expected ErrMalformedChannel, got %v", res.Global.Failures[0].Err)
	}

	city, ok := res.Category(1)
	if !ok || !city.Complete() || len(city.Scenes) != 3 {
		t.Errorf("unexpected city rollup %+v", city)
	}
	wilds, ok := res.Category(2)
	if !ok || wilds.Complete() {
		t.Errorf("wilds rollup should be incomplete: %+v", wilds)
	}

	for _, p := range []string{
		filepath.Join(root, "1# The City", "Scenes", "1# tavern_scenes.json"),
		filepath.Join(root, "1# The City", "Scenes", "1# tavern_review.json"),
		filepath.Join(root, "1# The City", "Scenes", "2# market_scenes.json"),
		filepath.Join(root, "1# The City", "scenes.json"),
		filepath.Join(root, "2# The Wilds", "scenes.json"),
		filepath.Join(root, "scenes.json"),
	} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("expected %s: %v", p, err)
		}
	}
	if _, err := os.Stat(filepath.Join(root, "1# The City", "Scenes", "2# market_review.json")); !os.IsNotExist(err) {
		t.Error("clean channel should not get a review file")
	}
	for _, p := range []string{
		filepath.Join(root, "2# The Wilds", "scenes_failures.json"),
		filepath.Join(root, "scenes_failures.json"),
	} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("incomplete rollup should record its failures in %s: %v", p, err)
		}
	}
	if _, err := os.Stat(filepath.Join(root, "1# The City", "scenes_failures.json")); !os.IsNotExist(err) {
		t.Error("complete category should not get a failures file")
	}

	status, err := LoadStatus(filepath.Join(root, "scene_status.json"))
	if err != nil {
		t.Fatalf("LoadStatus: %v", err)
	}
	if status.Main != StateFailed || status.ScenesFound != 3 || status.ChannelsProcessed != 3 {
		t.Errorf("unexpected status %+v", status)
	}
	if !errors.Is(r.Ready(), ErrDataNotReady) {
		t.Errorf("Ready() = %v, want ErrDataNotReady", r.Ready())
	}

	if pub.subjects[hermes.SubjectChannelIndexed] != 2 ||
		pub.subjects[hermes.SubjectChannelFailed] != 1 ||
		pub.subjects[hermes.SubjectRunCompleted] != 1 {
		t.Errorf("unexpected events %v", pub.subjects)
	}
	if len(pub.completed) != 1 || pub.completed[0].Status != string(StateFailed) ||
		len(pub.completed[0].FailedChannels) != 1 {
		t.Errorf("unexpected run completed event %+v", pub.completed)
	}

	if len(st.begun) != 1 || len(st.channels) != 2 || len(st.failures) != 1 || len(st.finished) != 1 {
		t.Errorf("unexpected store calls %+v", st)
	}
	if st.finished[0].Status != "failed" || st.finished[0].Scenes != 3 {
		t.Errorf("unexpected run record %+v", st.finished[0])
	}

	if len(notifier.posts) != 1 || !strings.Contains(notifier.posts[0], "#tavern") {
		t.Errorf("unexpected slack posts %v", notifier.posts)
	}

	if r.Latest() != res {
		t.Error("Latest should return the last result")
	}
}

func TestRun_Deterministic(t *testing.T) {
	root := buildBackup(t)
	r := NewRunner(Config{BackupDir: root, Threshold: 1000, Workers: 4}, Deps{Provider: newTagger(t)}, discardLogger())

	first, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := r.Run(context.Background())
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if diff := cmp.Diff(first.Global.Scenes, again.Global.Scenes); diff != "" {
			t.Fatalf("run %d differs (-first +again):\n%s", i, diff)
		}
	}
}

func TestRun_StatusFileGuard(t *testing.T) {
	root := buildBackup(t)
	statusPath := filepath.Join(root, "scene_status.json")

	s, err := LoadStatus(statusPath)
	if err != nil {
		t.Fatalf("LoadStatus: %v", err)
	}
	s.Begin("other-process", base)
	if err := s.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	r := NewRunner(Config{BackupDir: root, Threshold: 1000}, Deps{Provider: newTagger(t)}, discardLogger())
	if _, err := r.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "scenes.json")); !os.IsNotExist(err) {
		t.Error("guarded run must not write anything")
	}

	forced := NewRunner(Config{BackupDir: root, Threshold: 1000, Force: true}, Deps{Provider: newTagger(t)}, discardLogger())
	if _, err := forced.Run(context.Background()); err != nil {
		t.Fatalf("forced Run: %v", err)
	}
}

func TestRun_DryRun(t *testing.T) {
	root := buildBackup(t)
	pub := &fakePublisher{}
	st := &fakeStore{}

	r := NewRunner(Config{BackupDir: root, Threshold: 1000, DryRun: true}, Deps{
		Provider:  newTagger(t),
		Store:     st,
		Publisher: pub,
	}, discardLogger())

	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.SceneCount() != 3 {
		t.Errorf("expected 3 scenes, got %d", res.SceneCount())
	}
	for _, p := range []string{"scenes.json", "scene_status.json", filepath.Join("1# The City", "Scenes")} {
		if _, err := os.Stat(filepath.Join(root, p)); !os.IsNotExist(err) {
			t.Errorf("dry run wrote %s", p)
		}
	}
	if len(pub.subjects) != 0 || len(st.begun) != 0 {
		t.Error("dry run must not publish or persist")
	}
}

func TestRun_MissingBackup(t *testing.T) {
	dir := t.TempDir()
	r := NewRunner(Config{BackupDir: filepath.Join(dir, "missing"), StatusFile: filepath.Join(dir, "status.json")},
		Deps{Provider: newTagger(t)}, discardLogger())

	if _, err := r.Run(context.Background()); err == nil {
		t.Fatal("expected discover error")
	}

	s, err := LoadStatus(filepath.Join(dir, "status.json"))
	if err != nil {
		t.Fatalf("LoadStatus: %v", err)
	}
	if s.Main != StateFailed || s.Error == "" {
		t.Errorf("expected failed status with error, got %+v", s)
	}
}

func TestRun_Cancelled(t *testing.T) {
	root := buildBackup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRunner(Config{BackupDir: root, Threshold: 1000}, Deps{Provider: newTagger(t)}, discardLogger())
	if _, err := r.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if r.Latest() != nil {
		t.Error("an interrupted run must not replace the latest result")
	}
}

// blockingProvider holds every trace until release is closed.
type blockingProvider struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingProvider) Trace(ctx context.Context, _ *scene.Channel, _ []scene.CharacterID, from int, _ bool) ([]scene.Scene, int, error) {
	b.once.Do(func() { close(b.started) })
	select {
	case <-b.release:
		return nil, from, nil
	case <-ctx.Done():
		return nil, from, ctx.Err()
	}
}

func TestStart_OneRunAtATime(t *testing.T) {
	root := buildBackup(t)
	bp := &blockingProvider{started: make(chan struct{}), release: make(chan struct{})}
	r := NewRunner(Config{BackupDir: root, Threshold: 1000, Workers: 2}, Deps{Provider: bp}, discardLogger())

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-bp.started

	if !r.Running() {
		t.Error("expected Running() while a run is active")
	}
	if err := r.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning from Start, got %v", err)
	}
	if _, err := r.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning from Run, got %v", err)
	}
	if !errors.Is(r.Ready(), ErrAlreadyRunning) {
		t.Errorf("status file should say running, got %v", r.Ready())
	}

	close(bp.release)
	r.Wait()

	if r.Running() {
		t.Error("run should be finished after Wait")
	}
	if r.Latest() == nil {
		t.Error("expected a result after the background run")
	}
}
