package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// TaskStatus enumerates the states of a generation job. Transitions are
// monotonic on the happy path; regenerate resets to TaskStarted.
type TaskStatus string

const (
	TaskStarted      TaskStatus = "started"
	TaskOutlineReady TaskStatus = "outline_ready"
	TaskGenerating   TaskStatus = "generating"
	TaskCompleted    TaskStatus = "completed"
	TaskError        TaskStatus = "error"
)

// Terminal reports whether no further progress will happen without a
// regenerate request.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskError
}

// ErrorKind classifies job failures for API consumers.
type ErrorKind string

const (
	ErrorKindThrottled       ErrorKind = "throttled"
	ErrorKindMalformedOutput ErrorKind = "malformed_output"
	ErrorKindSearchFailed    ErrorKind = "search_failed"
	ErrorKindConfig          ErrorKind = "config"
	ErrorKindInternal        ErrorKind = "internal"
)

// TaskState is the durable record of one end-to-end generation job. The
// whole record is written on every update; Version is a monotonic counter
// checked on compare-and-swap writes to detect clobbered updates.
type TaskState struct {
	ID        surrealmodels.RecordID `json:"id,omitempty"`
	TaskID    string                 `json:"task_id"`
	Status    TaskStatus             `json:"status"`
	Progress  float64                `json:"progress"`
	Step      string                 `json:"step,omitempty"`
	Error     *string                `json:"error,omitempty"`
	ErrorKind ErrorKind              `json:"error_kind,omitempty"`

	Topic    string    `json:"topic"`
	Outline  *Outline  `json:"outline,omitempty"`
	Sections []Section `json:"sections,omitempty"`
	Document string    `json:"document,omitempty"`

	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// WithProgress returns a copy with progress advanced and the step label
// replaced. Progress is clamped to [0,1] and never decreases.
func (t TaskState) WithProgress(progress float64, step string) TaskState {
	if progress < t.Progress {
		progress = t.Progress
	}
	if progress > 1 {
		progress = 1
	}
	t.Progress = progress
	t.Step = step
	return t
}

// WithError returns a copy in the error state carrying a descriptive
// message and classification.
func (t TaskState) WithError(kind ErrorKind, msg string) TaskState {
	t.Status = TaskError
	t.ErrorKind = kind
	t.Error = &msg
	return t
}

// Expired reports whether the record has outlived its retention window.
func (t TaskState) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && now.After(t.ExpiresAt)
}
