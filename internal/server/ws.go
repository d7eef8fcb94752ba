package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raphaelgruber/inkwell-go/internal/service"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local dev
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

const wsPingInterval = 10 * time.Second

// handleEvents streams task state snapshots over a WebSocket until the task
// reaches a terminal state or the client disconnects. The current state is
// sent immediately on connect, so late watchers of a finished task still
// get one snapshot.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")

	state, err := s.manager.GetTask(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, service.ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeServiceError(w, err)
		return
	}

	// Subscribe before the initial send so no transition is missed in
	// between.
	events, cancel := s.manager.Broker().Subscribe(taskID)
	defer cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "task_id", taskID, "error", err)
		return
	}
	defer conn.Close()

	// Reader goroutine: surfaces client disconnects.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(taskView(state)); err != nil {
		return
	}
	if state.Status.Terminal() {
		return
	}

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case snapshot, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(taskView(snapshot)); err != nil {
				return
			}
			if snapshot.Status.Terminal() {
				return
			}
		}
	}
}
