package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/flitsinc/go-taskfeed/internal/eventbus"
	"github.com/flitsinc/go-taskfeed/internal/feed"
	"github.com/flitsinc/go-taskfeed/internal/tasks"
)

// Feed is the controller surface the API reads session state from.
type Feed interface {
	Snapshot() feed.SessionSnapshot
}

type Server struct {
	Tasks     *tasks.Registry
	Bus       *eventbus.Bus
	Feed      Feed
	StartedAt time.Time
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/tasks", s.handleTasks)
	mux.HandleFunc("/api/tasks/", s.handleTaskItem)
	mux.HandleFunc("/api/events", s.handleEvents)
	mux.HandleFunc("/api/feed/status", s.handleFeedStatus)
	mux.HandleFunc("/api/streams/ws", s.handleStreamWS)

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "time": time.Now().UTC()})
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	status := r.URL.Query().Get("status")
	limit := parseInt(r.URL.Query().Get("limit"), 100)
	items, err := s.Tasks.List(r.Context(), tasks.ListFilter{
		Status: tasks.Status(status),
		Limit:  limit,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleTaskItem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/tasks/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, errNotFound("task"))
		return
	}
	task, err := s.Tasks.Get(r.Context(), id)
	if errors.Is(err, tasks.ErrNotFound) {
		writeError(w, http.StatusNotFound, errNotFound("task"))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	stream := r.URL.Query().Get("stream")
	if stream == "" {
		writeError(w, http.StatusBadRequest, errStreamRequired)
		return
	}
	limit := parseInt(r.URL.Query().Get("limit"), 50)
	order := r.URL.Query().Get("order")
	items, err := s.Bus.List(r.Context(), stream, eventbus.ListOptions{Limit: limit, Order: order})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleFeedStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	if s.Feed == nil {
		writeError(w, http.StatusInternalServerError, errNotFound("feed controller"))
		return
	}
	snapshot := s.Feed.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"feed":       snapshot,
		"started_at": s.StartedAt,
		"uptime":     time.Since(s.StartedAt).String(),
	})
}

var errStreamRequired = errors.New("stream query parameter is required")

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
}

func parseInt(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitComma(value string) []string {
	parts := strings.Split(value, ",")
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

type notFoundError struct {
	msg string
}

func (e notFoundError) Error() string {
	return e.msg
}

func errNotFound(target string) error {
	return notFoundError{msg: target + " not found"}
}
