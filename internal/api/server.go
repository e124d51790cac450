// Package api exposes the HTTP surface of the Pitchdrill server: live
// feedback and statistics for the coaching overlay, connection control,
// finished-session review, and the usual health and metrics endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pitchdrill/pitchdrill/internal/coach"
	"github.com/pitchdrill/pitchdrill/internal/live"
	"github.com/pitchdrill/pitchdrill/internal/observe"
	"github.com/pitchdrill/pitchdrill/internal/store"
)

// checkTimeout is the maximum time a single readiness check may take before
// the context is cancelled.
const checkTimeout = 5 * time.Second

// Coach is the read side of the analysis engine consumed by the API.
type Coach interface {
	ListFeedback() []coach.FeedbackItem
	CurrentStats() coach.SessionStats
	Transcript() []coach.TranscriptTurn
	Duration() time.Duration
}

// Connection controls the session channel lifecycle.
type Connection interface {
	Start(ctx context.Context) error
	Stop() error
	Status() live.Status
}

// SessionReader serves finished-session review. May be unavailable when no
// storage backend is configured.
type SessionReader interface {
	ListSessions(ctx context.Context, limit int) ([]store.SessionRecord, error)
	GetSession(ctx context.Context, id string) (store.SessionRecord, error)
}

// Checker is a named readiness check. Check must respect context
// cancellation and return nil when the dependency is healthy.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// Server wires the coaching engine, the connection state machine, and the
// optional session store into an HTTP handler.
type Server struct {
	coach    Coach
	conn     Connection
	sessions SessionReader
	metrics  *observe.Metrics
	checkers []Checker
}

// Config holds the Server dependencies.
type Config struct {
	Coach   Coach
	Conn    Connection
	Metrics *observe.Metrics

	// Sessions enables the /v1/sessions endpoints. May be nil.
	Sessions SessionReader

	// Checkers are evaluated by /readyz, in order.
	Checkers []Checker
}

// New creates a Server.
func New(cfg Config) *Server {
	return &Server{
		coach:    cfg.Coach,
		conn:     cfg.Conn,
		sessions: cfg.Sessions,
		metrics:  cfg.Metrics,
		checkers: cfg.Checkers,
	}
}

// Handler returns the fully routed HTTP handler with observability
// middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /v1/feedback", s.handleFeedback)
	mux.HandleFunc("GET /v1/stats", s.handleStats)
	mux.HandleFunc("GET /v1/transcript", s.handleTranscript)
	mux.HandleFunc("GET /v1/connection", s.handleConnectionStatus)
	mux.HandleFunc("POST /v1/connection/start", s.handleConnectionStart)
	mux.HandleFunc("POST /v1/connection/stop", s.handleConnectionStop)
	mux.HandleFunc("GET /v1/sessions", s.handleListSessions)
	mux.HandleFunc("GET /v1/sessions/{id}", s.handleGetSession)

	if s.metrics != nil {
		return observe.Middleware(s.metrics)(mux)
	}
	return mux
}

// handleHealthz is a liveness probe that always returns 200 OK. A running
// process that can serve HTTP is considered alive.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz returns 200 only when every registered [Checker] passes.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(s.checkers))
	status := http.StatusOK
	overall := "ok"

	for _, c := range s.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()

		if err != nil {
			checks[c.Name] = "fail: " + err.Error()
			overall = "fail"
			status = http.StatusServiceUnavailable
		} else {
			checks[c.Name] = "ok"
		}
	}

	writeJSON(w, status, map[string]any{"status": overall, "checks": checks})
}

func (s *Server) handleFeedback(w http.ResponseWriter, _ *http.Request) {
	items := s.coach.ListFeedback()
	if items == nil {
		items = []coach.FeedbackItem{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"feedback": items})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.coach.CurrentStats())
}

func (s *Server) handleTranscript(w http.ResponseWriter, _ *http.Request) {
	turns := s.coach.Transcript()
	if turns == nil {
		turns = []coach.TranscriptTurn{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"turns":    turns,
		"duration": s.coach.Duration().Seconds(),
	})
}

// connectionStatus is the JSON shape of a connection status response.
type connectionStatus struct {
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}

func (s *Server) handleConnectionStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusBody(s.conn.Status()))
}

func (s *Server) handleConnectionStart(w http.ResponseWriter, r *http.Request) {
	if err := s.conn.Start(r.Context()); err != nil {
		status := http.StatusBadGateway
		switch {
		case errors.Is(err, live.ErrPermissionDenied):
			status = http.StatusForbidden
		case errors.Is(err, live.ErrHandshakeTimeout):
			status = http.StatusGatewayTimeout
		}
		slog.Warn("api: connection start failed", "err", err)
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, statusBody(s.conn.Status()))
}

func (s *Server) handleConnectionStop(w http.ResponseWriter, _ *http.Request) {
	if err := s.conn.Stop(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, statusBody(s.conn.Status()))
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeError(w, http.StatusNotImplemented, "session storage is not configured")
		return
	}
	recs, err := s.sessions.ListSessions(r.Context(), 50)
	if err != nil {
		slog.Error("api: list sessions", "err", err)
		writeError(w, http.StatusInternalServerError, "listing sessions failed")
		return
	}
	if recs == nil {
		recs = []store.SessionRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": recs})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeError(w, http.StatusNotImplemented, "session storage is not configured")
		return
	}
	rec, err := s.sessions.GetSession(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		slog.Error("api: get session", "err", err)
		writeError(w, http.StatusInternalServerError, "loading session failed")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func statusBody(st live.Status) connectionStatus {
	body := connectionStatus{State: string(st.State)}
	if st.LastError != nil {
		body.Error = st.LastError.Error()
	}
	return body
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("api: encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
