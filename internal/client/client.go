// Package client provides a REST client for the inkwell server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Client talks to the inkwell REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new API client.
// If baseURL is empty, uses INKWELL_SERVER_URL env var or defaults to
// localhost:8686. Timeout can be configured via INKWELL_CLIENT_TIMEOUT
// (default 10m, generation jobs are slow).
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("INKWELL_SERVER_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8686"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	timeout := 10 * time.Minute
	if t := os.Getenv("INKWELL_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Outline mirrors the server's outline representation.
type Outline struct {
	Title    string    `json:"title"`
	Sections []Section `json:"sections"`
}

// Section mirrors the server's section representation.
type Section struct {
	Index            int      `json:"index"`
	Title            string   `json:"title"`
	Description      string   `json:"description,omitempty"`
	Content          string   `json:"content,omitempty"`
	Sources          []Source `json:"sources,omitempty"`
	RequiresResearch bool     `json:"requires_research"`
	Iterations       int      `json:"iterations"`
	Termination      string   `json:"termination,omitempty"`
}

// Source is one citation.
type Source struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Date  string `json:"date,omitempty"`
}

// Task is the wire representation of a generation job.
type Task struct {
	TaskID    string    `json:"task_id"`
	Status    string    `json:"status"`
	Progress  float64   `json:"progress"`
	Step      string    `json:"step,omitempty"`
	Error     *string   `json:"error,omitempty"`
	ErrorKind string    `json:"error_kind,omitempty"`
	Topic     string    `json:"topic"`
	Outline   *Outline  `json:"outline,omitempty"`
	Sections  []Section `json:"sections,omitempty"`
	Document  string    `json:"document,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Terminal reports whether the task has finished.
func (t Task) Terminal() bool {
	return t.Status == "completed" || t.Status == "error"
}

// GenerateRequest configures a generation job.
type GenerateRequest struct {
	Topic             string `json:"topic"`
	MaxSearchDepth    int    `json:"max_search_depth,omitempty"`
	NumberOfQueries   int    `json:"number_of_queries,omitempty"`
	WritingGuidelines string `json:"writing_guidelines,omitempty"`
	Organization      string `json:"organization,omitempty"`
}

// AnnounceRequest configures an announcement.
type AnnounceRequest struct {
	Event      string `json:"event"`
	Details    string `json:"details"`
	Guidelines string `json:"guidelines,omitempty"`
}

// Announcement is the composed announcement with its grade.
type Announcement struct {
	Text            string   `json:"text"`
	Pass            bool     `json:"pass"`
	FollowUpQueries []string `json:"follow_up_queries,omitempty"`
}

// Stats holds server-side runtime statistics.
type Stats struct {
	Tasks   map[string]int  `json:"tasks"`
	Metrics json.RawMessage `json:"metrics"`
}

type apiError struct {
	Error string `json:"error"`
}

// do executes one request and decodes the JSON response into result.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr apiError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server error (%d): %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server error: %s - %s", resp.Status, string(raw))
	}

	if result != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// CreateArticle starts a generation job.
func (c *Client) CreateArticle(ctx context.Context, req GenerateRequest) (*Task, error) {
	var task Task
	if err := c.do(ctx, http.MethodPost, "/v1/articles", req, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// GetArticle retrieves a job by task ID.
func (c *Client) GetArticle(ctx context.Context, taskID string) (*Task, error) {
	var task Task
	if err := c.do(ctx, http.MethodGet, "/v1/articles/"+taskID, nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// Regenerate restarts a finished job.
func (c *Client) Regenerate(ctx context.Context, taskID string, req GenerateRequest) (*Task, error) {
	var task Task
	if err := c.do(ctx, http.MethodPost, "/v1/articles/"+taskID+"/regenerate", req, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// Announce composes an announcement synchronously.
func (c *Client) Announce(ctx context.Context, req AnnounceRequest) (*Announcement, error) {
	var ann Announcement
	if err := c.do(ctx, http.MethodPost, "/v1/announcements", req, &ann); err != nil {
		return nil, err
	}
	return &ann, nil
}

// GetStats returns server runtime statistics.
func (c *Client) GetStats(ctx context.Context) (*Stats, error) {
	var stats Stats
	if err := c.do(ctx, http.MethodGet, "/v1/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Watch streams task snapshots over a WebSocket, invoking onSnapshot for
// each one. Returns when the task reaches a terminal state, the server
// closes the stream, or onSnapshot returns an error.
func (c *Client) Watch(ctx context.Context, taskID string, onSnapshot func(Task) error) error {
	wsURL := c.baseURL + "/v1/articles/" + taskID + "/events"
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)
	wsURL = strings.Replace(wsURL, "https://", "wss://", 1)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("task %q not found", taskID)
		}
		return fmt.Errorf("websocket connect: %w", err)
	}
	defer conn.Close()

	// Close the socket when the context ends so ReadJSON unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		var task Task
		if err := conn.ReadJSON(&task); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				return nil
			}
			return fmt.Errorf("read snapshot: %w", err)
		}
		if err := onSnapshot(task); err != nil {
			return err
		}
		if task.Terminal() {
			return nil
		}
	}
}
