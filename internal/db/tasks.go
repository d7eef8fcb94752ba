package db

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/raphaelgruber/inkwell-go/internal/models"
)

// StatusCount represents a task status with its record count.
type StatusCount struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// PutTaskState writes the whole task record, creating it if absent. The
// write is unconditional; use UpdateTaskState for version-checked updates.
func (c *Client) PutTaskState(ctx context.Context, state models.TaskState) (models.TaskState, error) {
	state.ID = surrealmodels.NewRecordID("task_state", state.TaskID)

	results, err := surrealdb.Query[[]models.TaskState](ctx, c.db, `
		UPSERT type::record("task_state", $id) CONTENT $state
	`, map[string]any{
		"id":    state.TaskID,
		"state": state,
	})
	if err != nil {
		return models.TaskState{}, fmt.Errorf("put task state: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return models.TaskState{}, fmt.Errorf("put task state: empty result for %q", state.TaskID)
	}
	return (*results)[0].Result[0], nil
}

// GetTaskState retrieves a task by ID. Returns nil if the task does not
// exist or has outlived its retention window.
func (c *Client) GetTaskState(ctx context.Context, taskID string) (*models.TaskState, error) {
	results, err := surrealdb.Query[[]models.TaskState](ctx, c.db, `
		SELECT * FROM type::record("task_state", $id)
	`, map[string]any{"id": taskID})
	if err != nil {
		return nil, fmt.Errorf("get task state: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	state := (*results)[0].Result[0]
	if state.Expired(time.Now()) {
		return nil, nil
	}
	return &state, nil
}

// UpdateTaskState performs a compare-and-swap write: the record is replaced
// only if its stored version still matches state.Version, and the stored
// version is advanced by one. Returns ErrVersionConflict when a concurrent
// writer got there first, ErrNotFound when the record is gone.
func (c *Client) UpdateTaskState(ctx context.Context, state models.TaskState) (models.TaskState, error) {
	expected := state.Version
	state.Version = expected + 1
	state.ID = surrealmodels.NewRecordID("task_state", state.TaskID)

	results, err := surrealdb.Query[[]models.TaskState](ctx, c.db, `
		UPDATE type::record("task_state", $id) CONTENT $state WHERE version = $expected
	`, map[string]any{
		"id":       state.TaskID,
		"state":    state,
		"expected": expected,
	})
	if err != nil {
		return models.TaskState{}, fmt.Errorf("update task state: %w", wrapQueryError(err))
	}

	if results != nil && len(*results) > 0 && len((*results)[0].Result) > 0 {
		return (*results)[0].Result[0], nil
	}

	// No rows matched: either the record vanished or the version moved on.
	current, err := c.GetTaskState(ctx, state.TaskID)
	if err != nil {
		return models.TaskState{}, err
	}
	if current == nil {
		return models.TaskState{}, fmt.Errorf("update task %q: %w", state.TaskID, ErrNotFound)
	}
	return models.TaskState{}, fmt.Errorf("update task %q: stored version %d, expected %d: %w",
		state.TaskID, current.Version, expected, ErrVersionConflict)
}

// DeleteExpiredTasks removes every task past its retention window and
// returns how many were deleted.
func (c *Client) DeleteExpiredTasks(ctx context.Context) (int, error) {
	results, err := surrealdb.Query[[]models.TaskState](ctx, c.db, `
		DELETE task_state WHERE expires_at != NONE AND expires_at < time::now() RETURN BEFORE
	`, nil)
	if err != nil {
		return 0, fmt.Errorf("delete expired tasks: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 {
		return 0, nil
	}
	return len((*results)[0].Result), nil
}

// CountTasksByStatus returns task counts grouped by status, for the stats
// endpoint.
func (c *Client) CountTasksByStatus(ctx context.Context) ([]StatusCount, error) {
	results, err := surrealdb.Query[[]StatusCount](ctx, c.db, `
		SELECT status, count() AS count FROM task_state GROUP BY status ORDER BY count DESC
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("count tasks by status: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 {
		return []StatusCount{}, nil
	}
	return (*results)[0].Result, nil
}
