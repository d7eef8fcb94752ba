package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/raphaelgruber/inkwell-go/internal/db"
	"github.com/raphaelgruber/inkwell-go/internal/llm"
	"github.com/raphaelgruber/inkwell-go/internal/models"
	"github.com/raphaelgruber/inkwell-go/internal/pipeline"
	"github.com/raphaelgruber/inkwell-go/internal/retry"
	"github.com/raphaelgruber/inkwell-go/internal/search"
)

// fakeStore is an in-memory Store with the same CAS semantics as the real
// one.
type fakeStore struct {
	mu    sync.Mutex
	tasks map[string]models.TaskState
}

func newFakeStore() *fakeStore {
	return &fakeStore{tasks: make(map[string]models.TaskState)}
}

func (s *fakeStore) PutTaskState(ctx context.Context, state models.TaskState) (models.TaskState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[state.TaskID] = state
	return state, nil
}

func (s *fakeStore) GetTaskState(ctx context.Context, taskID string) (*models.TaskState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.tasks[taskID]
	if !ok || state.Expired(time.Now()) {
		return nil, nil
	}
	return &state, nil
}

func (s *fakeStore) UpdateTaskState(ctx context.Context, state models.TaskState) (models.TaskState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.tasks[state.TaskID]
	if !ok {
		return models.TaskState{}, db.ErrNotFound
	}
	if current.Version != state.Version {
		return models.TaskState{}, db.ErrVersionConflict
	}
	state.Version++
	s.tasks[state.TaskID] = state
	return state, nil
}

func (s *fakeStore) DeleteExpiredTasks(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for id, state := range s.tasks {
		if state.Expired(time.Now()) {
			delete(s.tasks, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *fakeStore) CountTasksByStatus(ctx context.Context) ([]db.StatusCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[string]int)
	for _, state := range s.tasks {
		counts[string(state.Status)]++
	}
	out := make([]db.StatusCount, 0, len(counts))
	for status, count := range counts {
		out = append(out, db.StatusCount{Status: status, Count: count})
	}
	return out, nil
}

// Fake pipeline stages. The grader passes unless given an error.

type fakeStages struct {
	graderErr error
}

func (f *fakeStages) GenerateOutline(ctx context.Context, topic, organization string) (models.Outline, error) {
	return models.Outline{
		Title: topic,
		Sections: []models.Section{
			{Index: 0, Title: "Introduction", Description: "frame"},
			{Index: 1, Title: "Body", Description: "substance", RequiresResearch: true},
			{Index: 2, Title: "Conclusion", Description: "wrap"},
		},
	}, nil
}

func (f *fakeStages) GenerateQueries(ctx context.Context, topic string, count int, organization string) ([]string, error) {
	return []string{"q1"}, nil
}

func (f *fakeStages) DraftSection(ctx context.Context, title, description, researchContext, existingDraft, guidelines string) (string, error) {
	return "content about " + title, nil
}

func (f *fakeStages) GradeSection(ctx context.Context, description, draft string) (models.Verdict, error) {
	if f.graderErr != nil {
		return models.Verdict{}, f.graderErr
	}
	return models.Verdict{Pass: true}, nil
}

func (f *fakeStages) ComposeAnnouncement(ctx context.Context, event, details, guidelines string) (string, error) {
	return "announcing " + event, nil
}

type fakeProvider struct{}

func (fakeProvider) Search(ctx context.Context, query string) ([]search.Result, error) {
	return []search.Result{{Title: "Hit", URL: "https://hit.example", Content: "facts"}}, nil
}

func newTestManager(stages *fakeStages, store Store) *Manager {
	bundle := pipeline.Stages{Outline: stages, Queries: stages, Drafter: stages, Grader: stages}
	researcher := pipeline.NewResearcher(fakeProvider{}, retry.Policy{MaxAttempts: 1}, 1000)
	writer := pipeline.NewWriter(bundle, researcher)
	announcer := pipeline.NewAnnouncer(stages, stages, stages)
	defaults := pipeline.Config{MaxSearchDepth: 2, NumberOfQueries: 1, SectionConcurrency: 2}
	return NewManager(store, writer, announcer, defaults, time.Hour, nil)
}

func TestGenerationLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	m := newTestManager(&fakeStages{}, store)

	state, cfg, err := m.CreateArticle(ctx, "remote work", GenerateOptions{})
	if err != nil {
		t.Fatalf("CreateArticle failed: %v", err)
	}
	if state.Status != models.TaskStarted {
		t.Errorf("initial status = %q, want started", state.Status)
	}
	if len(state.TaskID) != 8 {
		t.Errorf("expected short 8-char task ID, got %q", state.TaskID)
	}

	events, cancel := m.Broker().Subscribe(state.TaskID)
	var snapshots []models.TaskState
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for ev := range events {
			snapshots = append(snapshots, ev)
		}
	}()

	m.runGeneration(ctx, state.TaskID, cfg)
	cancel()
	<-drained

	final, err := m.GetTask(ctx, state.TaskID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if final.Status != models.TaskCompleted {
		t.Fatalf("final status = %q, want completed (error: %v)", final.Status, final.Error)
	}
	if final.Progress != 1 {
		t.Errorf("final progress = %v, want 1", final.Progress)
	}
	if final.Outline == nil || len(final.Outline.Sections) != 3 {
		t.Errorf("outline not persisted: %+v", final.Outline)
	}
	if len(final.Sections) != 3 {
		t.Errorf("expected 3 final sections, got %d", len(final.Sections))
	}
	if !strings.Contains(final.Document, "# remote work") {
		t.Errorf("document missing title:\n%s", final.Document)
	}

	// A watcher sees the intermediate states before completion.
	seen := map[models.TaskStatus]bool{}
	for _, ev := range snapshots {
		seen[ev.Status] = true
	}
	for _, want := range []models.TaskStatus{models.TaskOutlineReady, models.TaskGenerating, models.TaskCompleted} {
		if !seen[want] {
			t.Errorf("watcher never saw status %q (saw %v)", want, seen)
		}
	}
}

func TestProgressNeverDecreases(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	m := newTestManager(&fakeStages{}, store)

	state, cfg, err := m.CreateArticle(ctx, "topic", GenerateOptions{})
	if err != nil {
		t.Fatalf("CreateArticle failed: %v", err)
	}

	events, cancel := m.Broker().Subscribe(state.TaskID)
	var progress []float64
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for ev := range events {
			progress = append(progress, ev.Progress)
		}
	}()

	m.runGeneration(ctx, state.TaskID, cfg)
	cancel()
	<-drained

	last := -1.0
	for _, p := range progress {
		if p < last {
			t.Errorf("progress went backwards: %v after %v", p, last)
		}
		last = p
	}
}

func TestCreateArticleValidation(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(&fakeStages{}, newFakeStore())

	if _, _, err := m.CreateArticle(ctx, "   ", GenerateOptions{}); err == nil {
		t.Error("expected error for blank topic")
	}

	// Invalid defaults surface as a config error before any task exists.
	bad := newTestManager(&fakeStages{}, newFakeStore())
	bad.defaults = pipeline.Config{MaxSearchDepth: 0, NumberOfQueries: 1}
	_, _, err := bad.CreateArticle(ctx, "topic", GenerateOptions{})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestFailureClassifiedAndPersisted(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	stages := &fakeStages{graderErr: fmt.Errorf("grade: %w", llm.ErrThrottled)}
	m := newTestManager(stages, store)

	state, cfg, err := m.CreateArticle(ctx, "topic", GenerateOptions{})
	if err != nil {
		t.Fatalf("CreateArticle failed: %v", err)
	}
	m.runGeneration(ctx, state.TaskID, cfg)

	final, err := m.GetTask(ctx, state.TaskID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if final.Status != models.TaskError {
		t.Fatalf("status = %q, want error", final.Status)
	}
	if final.ErrorKind != models.ErrorKindThrottled {
		t.Errorf("error kind = %q, want throttled", final.ErrorKind)
	}
	if final.Error == nil || *final.Error == "" {
		t.Error("expected error message")
	}
}

func TestGetTaskMissing(t *testing.T) {
	m := newTestManager(&fakeStages{}, newFakeStore())

	_, err := m.GetTask(context.Background(), "nope")
	if !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestRegenerate(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	m := newTestManager(&fakeStages{}, store)

	state, cfg, err := m.CreateArticle(ctx, "topic", GenerateOptions{})
	if err != nil {
		t.Fatalf("CreateArticle failed: %v", err)
	}

	// Still running: regenerate is refused.
	if _, err := m.Regenerate(ctx, state.TaskID, GenerateOptions{}); !errors.Is(err, ErrTaskRunning) {
		t.Fatalf("expected ErrTaskRunning while in flight, got %v", err)
	}

	m.runGeneration(ctx, state.TaskID, cfg)

	reset, err := m.Regenerate(ctx, state.TaskID, GenerateOptions{})
	if err != nil {
		t.Fatalf("Regenerate failed: %v", err)
	}
	if reset.Status != models.TaskStarted {
		t.Errorf("regenerated status = %q, want started", reset.Status)
	}
	if reset.Progress != 0 || reset.Document != "" || reset.Outline != nil {
		t.Errorf("regenerate should reset the record: %+v", reset)
	}
	if reset.Topic != "topic" {
		t.Errorf("regenerate must keep the topic, got %q", reset.Topic)
	}

	// The background rerun finishes; poll the store briefly.
	deadline := time.Now().Add(3 * time.Second)
	for {
		final, err := m.GetTask(ctx, state.TaskID)
		if err != nil {
			t.Fatalf("GetTask failed: %v", err)
		}
		if final.Status == models.TaskCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("rerun never completed, status %q", final.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestAnnounce(t *testing.T) {
	m := newTestManager(&fakeStages{}, newFakeStore())

	text, verdict, err := m.Announce(context.Background(), "v2 launch", "faster", "")
	if err != nil {
		t.Fatalf("Announce failed: %v", err)
	}
	if text != "announcing v2 launch" {
		t.Errorf("unexpected text %q", text)
	}
	if !verdict.Pass {
		t.Errorf("expected passing verdict")
	}

	if _, _, err := m.Announce(context.Background(), "  ", "details", ""); err == nil {
		t.Error("expected error for blank event")
	}
}

func TestSweepRemovesExpired(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	m := newTestManager(&fakeStages{}, store)

	expired := models.TaskState{
		TaskID:    "old",
		Status:    models.TaskCompleted,
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	if _, err := store.PutTaskState(ctx, expired); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	deleted, err := m.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want models.ErrorKind
	}{
		{"throttled", fmt.Errorf("x: %w", llm.ErrThrottled), models.ErrorKindThrottled},
		{"malformed", fmt.Errorf("x: %w", llm.ErrMalformedOutput), models.ErrorKindMalformedOutput},
		{"search", fmt.Errorf("x: %w", search.ErrThrottled), models.ErrorKindSearchFailed},
		{"config", fmt.Errorf("x: %w", ErrInvalidConfig), models.ErrorKindConfig},
		{"other", errors.New("boom"), models.ErrorKindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %q, want %q", got, tt.want)
			}
		})
	}
}
