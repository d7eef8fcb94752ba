// Package db provides integration tests for SurrealDB operations.
package db

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/raphaelgruber/inkwell-go/internal/models"
)

var testDB *Client
var testContainer testcontainers.Container

// TestMain sets up and tears down the SurrealDB container for all tests.
func TestMain(m *testing.M) {
	// Disable ryuk (cleanup container) as it can cause issues in some environments
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()

	var err error
	testContainer, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "surrealdb/surrealdb:v3.0.0-beta.1",
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"start", "--log", "info", "--user", "root", "--pass", "root"},
			WaitingFor:   wait.ForLog("Started web server").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("Failed to start SurrealDB container: %v", err)
	}

	host, err := testContainer.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}
	// Workaround: testcontainers may return "null" as host in some environments
	if host == "" || host == "null" {
		host = "localhost"
	}
	mappedPort, err := testContainer.MappedPort(ctx, "8000")
	if err != nil {
		log.Fatalf("Failed to get mapped port: %v", err)
	}

	testDB, err = NewClient(ctx, Config{
		URL:       fmt.Sprintf("ws://%s:%s/rpc", host, mappedPort.Port()),
		Namespace: "test",
		Database:  "test",
		Username:  "root",
		Password:  "root",
		AuthLevel: "root",
	}, nil)
	if err != nil {
		log.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := testDB.InitSchema(ctx); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	code := m.Run()

	_ = testDB.Close(ctx)
	_ = testContainer.Terminate(ctx)

	os.Exit(code)
}

func testTask(taskID string) models.TaskState {
	return models.TaskState{
		TaskID:    taskID,
		Status:    models.TaskStarted,
		Topic:     "remote work",
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		ExpiresAt: time.Now().UTC().Add(time.Hour).Truncate(time.Second),
	}
}

func cleanup(t *testing.T, taskID string) {
	t.Helper()
	t.Cleanup(func() {
		_, _ = testDB.Query(context.Background(),
			`DELETE type::record("task_state", $id)`, map[string]any{"id": taskID})
	})
}

func TestPutAndGetTaskState(t *testing.T) {
	ctx := context.Background()
	cleanup(t, "put-get")

	created, err := testDB.PutTaskState(ctx, testTask("put-get"))
	if err != nil {
		t.Fatalf("PutTaskState failed: %v", err)
	}
	if created.TaskID != "put-get" {
		t.Errorf("Expected task_id 'put-get', got %q", created.TaskID)
	}

	fetched, err := testDB.GetTaskState(ctx, "put-get")
	if err != nil {
		t.Fatalf("GetTaskState failed: %v", err)
	}
	if fetched == nil {
		t.Fatal("GetTaskState returned nil for existing task")
	}
	if fetched.Status != models.TaskStarted {
		t.Errorf("Expected status started, got %q", fetched.Status)
	}
	if fetched.Topic != "remote work" {
		t.Errorf("Expected topic 'remote work', got %q", fetched.Topic)
	}
}

func TestGetTaskStateMissing(t *testing.T) {
	ctx := context.Background()

	fetched, err := testDB.GetTaskState(ctx, "does-not-exist")
	if err != nil {
		t.Fatalf("GetTaskState with missing ID should not error: %v", err)
	}
	if fetched != nil {
		t.Error("GetTaskState with missing ID should return nil")
	}
}

func TestPutTaskStateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	cleanup(t, "idempotent")

	state := testTask("idempotent")
	if _, err := testDB.PutTaskState(ctx, state); err != nil {
		t.Fatalf("First put failed: %v", err)
	}

	// Second put with the same ID replaces, never duplicates.
	state.Status = models.TaskGenerating
	state.Progress = 0.5
	if _, err := testDB.PutTaskState(ctx, state); err != nil {
		t.Fatalf("Second put failed: %v", err)
	}

	fetched, err := testDB.GetTaskState(ctx, "idempotent")
	if err != nil {
		t.Fatalf("GetTaskState failed: %v", err)
	}
	if fetched == nil {
		t.Fatal("GetTaskState returned nil")
	}
	if fetched.Status != models.TaskGenerating {
		t.Errorf("Expected replaced status generating, got %q", fetched.Status)
	}
	if fetched.Progress != 0.5 {
		t.Errorf("Expected replaced progress 0.5, got %v", fetched.Progress)
	}
}

func TestUpdateTaskStateCAS(t *testing.T) {
	ctx := context.Background()
	cleanup(t, "cas")

	created, err := testDB.PutTaskState(ctx, testTask("cas"))
	if err != nil {
		t.Fatalf("PutTaskState failed: %v", err)
	}

	// Version-checked update succeeds and advances the version.
	created.Status = models.TaskOutlineReady
	updated, err := testDB.UpdateTaskState(ctx, created)
	if err != nil {
		t.Fatalf("UpdateTaskState failed: %v", err)
	}
	if updated.Version != created.Version+1 {
		t.Errorf("Expected version %d, got %d", created.Version+1, updated.Version)
	}
	if updated.Status != models.TaskOutlineReady {
		t.Errorf("Expected status outline_ready, got %q", updated.Status)
	}

	// Re-using the stale snapshot must conflict.
	created.Status = models.TaskGenerating
	_, err = testDB.UpdateTaskState(ctx, created)
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("Expected ErrVersionConflict for stale version, got %v", err)
	}

	// The conflicting write must not have landed.
	fetched, err := testDB.GetTaskState(ctx, "cas")
	if err != nil {
		t.Fatalf("GetTaskState failed: %v", err)
	}
	if fetched == nil || fetched.Status != models.TaskOutlineReady {
		t.Errorf("Stale write should not land, got %+v", fetched)
	}
}

func TestUpdateTaskStateMissing(t *testing.T) {
	ctx := context.Background()

	state := testTask("update-missing")
	_, err := testDB.UpdateTaskState(ctx, state)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound for missing task, got %v", err)
	}
}

func TestExpiredTaskInvisible(t *testing.T) {
	ctx := context.Background()
	cleanup(t, "expired")

	state := testTask("expired")
	state.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	if _, err := testDB.PutTaskState(ctx, state); err != nil {
		t.Fatalf("PutTaskState failed: %v", err)
	}

	fetched, err := testDB.GetTaskState(ctx, "expired")
	if err != nil {
		t.Fatalf("GetTaskState failed: %v", err)
	}
	if fetched != nil {
		t.Error("Expired task should read as nil")
	}
}

func TestDeleteExpiredTasks(t *testing.T) {
	ctx := context.Background()
	cleanup(t, "sweep-live")
	cleanup(t, "sweep-dead")

	live := testTask("sweep-live")
	if _, err := testDB.PutTaskState(ctx, live); err != nil {
		t.Fatalf("PutTaskState failed: %v", err)
	}
	dead := testTask("sweep-dead")
	dead.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	if _, err := testDB.PutTaskState(ctx, dead); err != nil {
		t.Fatalf("PutTaskState failed: %v", err)
	}

	deleted, err := testDB.DeleteExpiredTasks(ctx)
	if err != nil {
		t.Fatalf("DeleteExpiredTasks failed: %v", err)
	}
	if deleted < 1 {
		t.Errorf("Expected at least 1 deleted task, got %d", deleted)
	}

	// The live task survives the sweep.
	fetched, err := testDB.GetTaskState(ctx, "sweep-live")
	if err != nil {
		t.Fatalf("GetTaskState failed: %v", err)
	}
	if fetched == nil {
		t.Error("Live task should survive the sweep")
	}
}

func TestTaskWithOutlineAndSectionsRoundTrip(t *testing.T) {
	ctx := context.Background()
	cleanup(t, "full-record")

	state := testTask("full-record")
	state.Status = models.TaskCompleted
	state.Progress = 1
	state.Outline = &models.Outline{
		Title: "Remote Work",
		Sections: []models.Section{
			{Index: 0, Title: "Introduction"},
			{Index: 1, Title: "Adoption", RequiresResearch: true},
		},
	}
	state.Sections = []models.Section{
		{
			Index: 1, Title: "Adoption", Content: "widely adopted",
			Iterations: 1, Termination: models.TerminationGradedPass,
			Sources: []models.Source{{Title: "Survey", URL: "https://survey.example", Date: "2025-03-01"}},
		},
	}
	state.Document = "# Remote Work\n\n## Adoption\n\nwidely adopted\n"

	if _, err := testDB.PutTaskState(ctx, state); err != nil {
		t.Fatalf("PutTaskState failed: %v", err)
	}

	fetched, err := testDB.GetTaskState(ctx, "full-record")
	if err != nil {
		t.Fatalf("GetTaskState failed: %v", err)
	}
	if fetched == nil {
		t.Fatal("GetTaskState returned nil")
	}
	if fetched.Outline == nil || len(fetched.Outline.Sections) != 2 {
		t.Fatalf("Outline did not round-trip: %+v", fetched.Outline)
	}
	if len(fetched.Sections) != 1 {
		t.Fatalf("Sections did not round-trip: %+v", fetched.Sections)
	}
	got := fetched.Sections[0]
	if got.Termination != models.TerminationGradedPass || got.Iterations != 1 {
		t.Errorf("Section fields lost: %+v", got)
	}
	if len(got.Sources) != 1 || got.Sources[0].URL != "https://survey.example" {
		t.Errorf("Sources lost: %+v", got.Sources)
	}
	if fetched.Document == "" {
		t.Error("Document lost")
	}
}

func TestCountTasksByStatus(t *testing.T) {
	ctx := context.Background()
	cleanup(t, "count-a")
	cleanup(t, "count-b")

	a := testTask("count-a")
	a.Status = models.TaskCompleted
	if _, err := testDB.PutTaskState(ctx, a); err != nil {
		t.Fatalf("PutTaskState failed: %v", err)
	}
	b := testTask("count-b")
	b.Status = models.TaskCompleted
	if _, err := testDB.PutTaskState(ctx, b); err != nil {
		t.Fatalf("PutTaskState failed: %v", err)
	}

	counts, err := testDB.CountTasksByStatus(ctx)
	if err != nil {
		t.Fatalf("CountTasksByStatus failed: %v", err)
	}
	var completed int
	for _, c := range counts {
		if c.Status == string(models.TaskCompleted) {
			completed = c.Count
		}
	}
	if completed < 2 {
		t.Errorf("Expected at least 2 completed tasks, got %d", completed)
	}
}
