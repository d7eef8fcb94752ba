// Package service provides business logic for article generation jobs.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/raphaelgruber/inkwell-go/internal/db"
	"github.com/raphaelgruber/inkwell-go/internal/llm"
	"github.com/raphaelgruber/inkwell-go/internal/metrics"
	"github.com/raphaelgruber/inkwell-go/internal/models"
	"github.com/raphaelgruber/inkwell-go/internal/pipeline"
	"github.com/raphaelgruber/inkwell-go/internal/search"
)

// Service-level sentinel errors, mapped to HTTP statuses by the server.
var (
	// ErrTaskNotFound indicates the task does not exist or has expired.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskRunning indicates a regenerate was requested while the task is
	// still in flight.
	ErrTaskRunning = errors.New("task still running")

	// ErrInvalidConfig indicates the job configuration failed validation.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidRequest indicates bad caller input, like a blank topic.
	ErrInvalidRequest = errors.New("invalid request")
)

// Store is the durable task state backend. Implemented by db.Client.
type Store interface {
	PutTaskState(ctx context.Context, state models.TaskState) (models.TaskState, error)
	GetTaskState(ctx context.Context, taskID string) (*models.TaskState, error)
	UpdateTaskState(ctx context.Context, state models.TaskState) (models.TaskState, error)
	DeleteExpiredTasks(ctx context.Context) (int, error)
	CountTasksByStatus(ctx context.Context) ([]db.StatusCount, error)
}

// GenerateOptions are per-job overrides of the configured pipeline defaults.
// Zero values fall back to the defaults.
type GenerateOptions struct {
	MaxSearchDepth    int
	NumberOfQueries   int
	WritingGuidelines string
	Organization      string
}

// Manager owns the lifecycle of generation jobs: task records, the
// background pipeline run, progress persistence, and event fan-out.
type Manager struct {
	store     Store
	writer    *pipeline.Writer
	announcer *pipeline.Announcer
	defaults  pipeline.Config
	retention time.Duration
	broker    *Broker
	collector *metrics.Collector
}

// NewManager creates a job manager. The collector is shared with the
// pipeline stage decorators so all operation timings land in one place;
// pass nil to get a fresh one.
func NewManager(store Store, writer *pipeline.Writer, announcer *pipeline.Announcer, defaults pipeline.Config, retention time.Duration, collector *metrics.Collector) *Manager {
	if collector == nil {
		collector = metrics.NewCollector()
	}
	return &Manager{
		store:     store,
		writer:    writer,
		announcer: announcer,
		defaults:  defaults,
		retention: retention,
		broker:    NewBroker(),
		collector: collector,
	}
}

// Broker returns the event broker for task watchers.
func (m *Manager) Broker() *Broker {
	return m.broker
}

// Metrics returns the runtime metrics collector.
func (m *Manager) Metrics() *metrics.Collector {
	return m.collector
}

// effectiveConfig merges per-job overrides over the defaults.
func (m *Manager) effectiveConfig(opts GenerateOptions) pipeline.Config {
	cfg := m.defaults
	if opts.MaxSearchDepth > 0 {
		cfg.MaxSearchDepth = opts.MaxSearchDepth
	}
	if opts.NumberOfQueries > 0 {
		cfg.NumberOfQueries = opts.NumberOfQueries
	}
	if opts.WritingGuidelines != "" {
		cfg.WritingGuidelines = opts.WritingGuidelines
	}
	if opts.Organization != "" {
		cfg.Organization = opts.Organization
	}
	return cfg
}

// CreateArticle validates the request and persists the initial task record.
// The pipeline is not started; StartArticle is the usual entry point.
func (m *Manager) CreateArticle(ctx context.Context, topic string, opts GenerateOptions) (models.TaskState, pipeline.Config, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return models.TaskState{}, pipeline.Config{}, fmt.Errorf("%w: topic must not be empty", ErrInvalidRequest)
	}
	cfg := m.effectiveConfig(opts)
	if err := cfg.Validate(); err != nil {
		return models.TaskState{}, pipeline.Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	now := time.Now().UTC()
	state := models.TaskState{
		TaskID:    uuid.New().String()[:8], // Short ID for convenience
		Status:    models.TaskStarted,
		Topic:     topic,
		Step:      "queued",
		CreatedAt: now,
		ExpiresAt: now.Add(m.retention),
	}

	created, err := m.putState(ctx, state)
	if err != nil {
		return models.TaskState{}, pipeline.Config{}, fmt.Errorf("create task: %w", err)
	}

	slog.Info("task created", "task_id", created.TaskID, "topic", topic, "depth", cfg.MaxSearchDepth)
	return created, cfg, nil
}

// StartArticle creates the task and runs the pipeline in the background.
func (m *Manager) StartArticle(ctx context.Context, topic string, opts GenerateOptions) (models.TaskState, error) {
	state, cfg, err := m.CreateArticle(ctx, topic, opts)
	if err != nil {
		return models.TaskState{}, err
	}

	// The request context ends with the HTTP response; the job outlives it.
	go m.runGeneration(context.Background(), state.TaskID, cfg)
	return state, nil
}

// GetTask retrieves a task record.
func (m *Manager) GetTask(ctx context.Context, taskID string) (models.TaskState, error) {
	var state *models.TaskState
	err := m.collector.Time(metrics.OpStoreGet, func() error {
		var err error
		state, err = m.store.GetTaskState(ctx, taskID)
		return err
	})
	if err != nil {
		return models.TaskState{}, fmt.Errorf("get task: %w", err)
	}
	if state == nil {
		return models.TaskState{}, fmt.Errorf("task %q: %w", taskID, ErrTaskNotFound)
	}
	return *state, nil
}

// Regenerate restarts a finished task from scratch with the same topic.
// Returns ErrTaskRunning while the previous run is still in flight.
func (m *Manager) Regenerate(ctx context.Context, taskID string, opts GenerateOptions) (models.TaskState, error) {
	state, err := m.GetTask(ctx, taskID)
	if err != nil {
		return models.TaskState{}, err
	}
	if !state.Status.Terminal() {
		return models.TaskState{}, fmt.Errorf("task %q is %s: %w", taskID, state.Status, ErrTaskRunning)
	}
	cfg := m.effectiveConfig(opts)
	if err := cfg.Validate(); err != nil {
		return models.TaskState{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	// Reset to a fresh record, keeping identity and topic. The version
	// check fences out a concurrent regenerate of the same task.
	state.Status = models.TaskStarted
	state.Progress = 0
	state.Step = "queued"
	state.Error = nil
	state.ErrorKind = ""
	state.Outline = nil
	state.Sections = nil
	state.Document = ""
	state.ExpiresAt = time.Now().UTC().Add(m.retention)

	updated, err := m.store.UpdateTaskState(ctx, state)
	if err != nil {
		if errors.Is(err, db.ErrVersionConflict) {
			return models.TaskState{}, fmt.Errorf("task %q: %w", taskID, ErrTaskRunning)
		}
		return models.TaskState{}, fmt.Errorf("regenerate: %w", err)
	}
	m.broker.Publish(updated)

	slog.Info("task regenerating", "task_id", taskID, "topic", updated.Topic)
	go m.runGeneration(context.Background(), taskID, cfg)
	return updated, nil
}

// Announce composes a single-shot announcement. Synchronous; no task record
// is created.
func (m *Manager) Announce(ctx context.Context, event, details, guidelines string) (string, models.Verdict, error) {
	event = strings.TrimSpace(event)
	if event == "" {
		return "", models.Verdict{}, fmt.Errorf("%w: event must not be empty", ErrInvalidRequest)
	}
	return m.announcer.Compose(ctx, event, details, guidelines)
}

// Sweep deletes tasks past their retention window.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	return m.store.DeleteExpiredTasks(ctx)
}

// SweepLoop runs Sweep on an interval until the context ends.
func (m *Manager) SweepLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := m.Sweep(ctx)
			if err != nil {
				slog.Warn("retention sweep failed", "error", err)
				continue
			}
			if deleted > 0 {
				slog.Info("retention sweep", "deleted", deleted)
			}
		}
	}
}

// StatusCounts returns task counts by status for the stats endpoint.
func (m *Manager) StatusCounts(ctx context.Context) ([]db.StatusCount, error) {
	return m.store.CountTasksByStatus(ctx)
}

// runGeneration drives one job end to end: outline, concurrent section
// refinement, final assembly. Every stage transition is persisted, so a
// watcher sees the job move through outline_ready and generating before it
// lands on completed or error.
func (m *Manager) runGeneration(ctx context.Context, taskID string, cfg pipeline.Config) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("generation panicked", "task_id", taskID, "panic", r)
			m.fail(ctx, taskID, fmt.Errorf("internal panic: %v", r))
		}
	}()

	outline, err := m.planOutline(ctx, taskID, cfg)
	if err != nil {
		m.fail(ctx, taskID, err)
		return
	}

	if _, err := m.mutate(ctx, taskID, func(s models.TaskState) models.TaskState {
		s.Status = models.TaskOutlineReady
		s.Outline = &outline
		return s.WithProgress(0.1, "outline ready")
	}); err != nil {
		m.fail(ctx, taskID, err)
		return
	}

	if _, err := m.mutate(ctx, taskID, func(s models.TaskState) models.TaskState {
		s.Status = models.TaskGenerating
		return s.WithProgress(0.1, "generating sections")
	}); err != nil {
		m.fail(ctx, taskID, err)
		return
	}

	// Body generation accounts for the 0.1..0.9 progress span.
	onProgress := func(fraction float64, step string) {
		if _, err := m.mutate(ctx, taskID, func(s models.TaskState) models.TaskState {
			return s.WithProgress(0.1+0.8*fraction, step)
		}); err != nil {
			slog.Warn("progress update failed", "task_id", taskID, "error", err)
		}
	}
	body, err := m.writer.GenerateBody(ctx, outline, cfg, onProgress)
	if err != nil {
		m.fail(ctx, taskID, err)
		return
	}

	sections, document, err := m.writer.Finalize(ctx, outline, body, cfg, func(_ float64, step string) {
		if _, err := m.mutate(ctx, taskID, func(s models.TaskState) models.TaskState {
			return s.WithProgress(0.9, step)
		}); err != nil {
			slog.Warn("progress update failed", "task_id", taskID, "error", err)
		}
	})
	if err != nil {
		m.fail(ctx, taskID, err)
		return
	}

	final, err := m.mutate(ctx, taskID, func(s models.TaskState) models.TaskState {
		s.Status = models.TaskCompleted
		s.Sections = sections
		s.Document = document
		return s.WithProgress(1, "done")
	})
	if err != nil {
		m.fail(ctx, taskID, err)
		return
	}
	slog.Info("task completed", "task_id", taskID, "sections", len(final.Sections))
}

func (m *Manager) planOutline(ctx context.Context, taskID string, cfg pipeline.Config) (models.Outline, error) {
	state, err := m.GetTask(ctx, taskID)
	if err != nil {
		return models.Outline{}, err
	}
	if _, err := m.mutate(ctx, taskID, func(s models.TaskState) models.TaskState {
		return s.WithProgress(0.05, "planning outline")
	}); err != nil {
		return models.Outline{}, err
	}
	return m.writer.PlanOutline(ctx, state.Topic, cfg)
}

// mutate performs a read-modify-write on the task record, retrying version
// conflicts with a fresh read. The published snapshot is the one that
// actually landed.
func (m *Manager) mutate(ctx context.Context, taskID string, fn func(models.TaskState) models.TaskState) (models.TaskState, error) {
	const maxAttempts = 5

	for attempt := 1; ; attempt++ {
		state, err := m.GetTask(ctx, taskID)
		if err != nil {
			return models.TaskState{}, err
		}

		var updated models.TaskState
		err = m.collector.Time(metrics.OpStorePut, func() error {
			var err error
			updated, err = m.store.UpdateTaskState(ctx, fn(state))
			return err
		})
		if err == nil {
			m.broker.Publish(updated)
			return updated, nil
		}
		if !errors.Is(err, db.ErrVersionConflict) || attempt >= maxAttempts {
			return models.TaskState{}, fmt.Errorf("update task %q: %w", taskID, err)
		}
		slog.Debug("task update conflicted, retrying", "task_id", taskID, "attempt", attempt)
	}
}

func (m *Manager) putState(ctx context.Context, state models.TaskState) (models.TaskState, error) {
	var created models.TaskState
	err := m.collector.Time(metrics.OpStorePut, func() error {
		var err error
		created, err = m.store.PutTaskState(ctx, state)
		return err
	})
	if err != nil {
		return models.TaskState{}, err
	}
	m.broker.Publish(created)
	return created, nil
}

// fail moves the task to the error state with a classified kind.
func (m *Manager) fail(ctx context.Context, taskID string, cause error) {
	kind := Classify(cause)
	slog.Error("task failed", "task_id", taskID, "kind", kind, "error", cause)

	if _, err := m.mutate(ctx, taskID, func(s models.TaskState) models.TaskState {
		return s.WithError(kind, cause.Error())
	}); err != nil {
		slog.Error("failed to persist task failure", "task_id", taskID, "error", err)
	}
}

// Classify maps a pipeline error to the API-visible error kind.
func Classify(err error) models.ErrorKind {
	switch {
	case errors.Is(err, ErrInvalidConfig):
		return models.ErrorKindConfig
	case errors.Is(err, llm.ErrMalformedOutput):
		return models.ErrorKindMalformedOutput
	case errors.Is(err, llm.ErrThrottled):
		return models.ErrorKindThrottled
	case errors.Is(err, search.ErrThrottled):
		return models.ErrorKindSearchFailed
	default:
		return models.ErrorKindInternal
	}
}
