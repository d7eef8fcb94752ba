package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/raphaelgruber/inkwell-go/internal/metrics"
	"github.com/raphaelgruber/inkwell-go/internal/models"
	"github.com/raphaelgruber/inkwell-go/internal/service"
)

// TaskView is the wire representation of a task record.
type TaskView struct {
	TaskID    string            `json:"task_id"`
	Status    models.TaskStatus `json:"status"`
	Progress  float64           `json:"progress"`
	Step      string            `json:"step,omitempty"`
	Error     *string           `json:"error,omitempty"`
	ErrorKind models.ErrorKind  `json:"error_kind,omitempty"`
	Topic     string            `json:"topic"`
	Outline   *models.Outline   `json:"outline,omitempty"`
	Sections  []models.Section  `json:"sections,omitempty"`
	Document  string            `json:"document,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	ExpiresAt time.Time         `json:"expires_at"`
}

func taskView(state models.TaskState) TaskView {
	return TaskView{
		TaskID:    state.TaskID,
		Status:    state.Status,
		Progress:  state.Progress,
		Step:      state.Step,
		Error:     state.Error,
		ErrorKind: state.ErrorKind,
		Topic:     state.Topic,
		Outline:   state.Outline,
		Sections:  state.Sections,
		Document:  state.Document,
		CreatedAt: state.CreatedAt,
		ExpiresAt: state.ExpiresAt,
	}
}

type createArticleRequest struct {
	Topic             string `json:"topic"`
	MaxSearchDepth    int    `json:"max_search_depth,omitempty"`
	NumberOfQueries   int    `json:"number_of_queries,omitempty"`
	WritingGuidelines string `json:"writing_guidelines,omitempty"`
	Organization      string `json:"organization,omitempty"`
}

func (r createArticleRequest) options() service.GenerateOptions {
	return service.GenerateOptions{
		MaxSearchDepth:    r.MaxSearchDepth,
		NumberOfQueries:   r.NumberOfQueries,
		WritingGuidelines: r.WritingGuidelines,
		Organization:      r.Organization,
	}
}

type announceRequest struct {
	Event      string `json:"event"`
	Details    string `json:"details"`
	Guidelines string `json:"guidelines,omitempty"`
}

type announceResponse struct {
	Text            string   `json:"text"`
	Pass            bool     `json:"pass"`
	FollowUpQueries []string `json:"follow_up_queries,omitempty"`
}

type statsResponse struct {
	Tasks   map[string]int   `json:"tasks"`
	Metrics metrics.Snapshot `json:"metrics"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleCreateArticle(w http.ResponseWriter, r *http.Request) {
	var req createArticleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	state, err := s.manager.StartArticle(r.Context(), req.Topic, req.options())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, taskView(state))
}

func (s *Server) handleGetArticle(w http.ResponseWriter, r *http.Request) {
	state, err := s.manager.GetTask(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, taskView(state))
}

func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	var req createArticleRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	state, err := s.manager.Regenerate(r.Context(), r.PathValue("id"), req.options())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, taskView(state))
}

func (s *Server) handleAnnounce(w http.ResponseWriter, r *http.Request) {
	var req announceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	text, verdict, err := s.manager.Announce(r.Context(), req.Event, req.Details, req.Guidelines)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, announceResponse{
		Text:            text,
		Pass:            verdict.Pass,
		FollowUpQueries: verdict.FollowUpQueries,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.manager.StatusCounts(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	tasks := make(map[string]int, len(counts))
	for _, c := range counts {
		tasks[c.Status] = c.Count
	}
	writeJSON(w, http.StatusOK, statsResponse{
		Tasks:   tasks,
		Metrics: s.manager.Metrics().Snapshot(),
	})
}

// writeServiceError maps service errors to HTTP statuses.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrTaskNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrTaskRunning):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInvalidConfig), errors.Is(err, service.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("request handling failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
