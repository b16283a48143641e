// Package bridge exposes the report/signal store over a loopback HTTP
// listener so workers running outside this process can post their results.
// The bridge never decides anything: it validates a posting, writes it to
// the store, and lets the orchestrator's wait loop observe the effect.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kingrea/relay/internal/sequencer"
	"github.com/kingrea/relay/internal/store"
	"github.com/kingrea/relay/internal/task"
)

// ServerStatus reports runtime lifecycle states for the HTTP server.
type ServerStatus string

const (
	StatusStarting ServerStatus = "starting"
	StatusReady    ServerStatus = "ready"
	StatusDraining ServerStatus = "draining"
)

var errServerDisabled = errors.New("bridge: server disabled")

// StateViewer returns the persisted snapshot of one task.
type StateViewer interface {
	View(taskID string) (task.State, error)
}

// Server wraps the HTTP listener and handlers backing the signal bridge.
type Server struct {
	settings Settings
	store    store.Store
	states   StateViewer
	logger   zerolog.Logger
	clock    func() time.Time

	mu        sync.RWMutex
	server    *http.Server
	listener  net.Listener
	status    ServerStatus
	startTime time.Time
}

// Option customizes server construction.
type Option func(*Server)

// WithStateViewer enables the GET /tasks/{id} snapshot endpoint.
func WithStateViewer(v StateViewer) Option {
	return func(s *Server) {
		if v != nil {
			s.states = v
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithClock allows tests to control timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Server) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewServer prepares a bridge server writing to the given store.
func NewServer(settings Settings, st store.Store, opts ...Option) (*Server, error) {
	if st == nil {
		return nil, fmt.Errorf("bridge: store is required")
	}
	s := &Server{
		settings: settings,
		store:    st,
		logger:   zerolog.Nop(),
		clock:    func() time.Time { return time.Now().UTC() },
		status:   StatusStarting,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Start binds the TCP listener and begins serving HTTP traffic.
func (s *Server) Start(ctx context.Context) error {
	if !s.settings.Enabled {
		return errServerDisabled
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return fmt.Errorf("bridge: server already started")
	}
	addr := s.settings.Address()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("bridge: listen %s: %w", addr, err)
	}
	s.listener = listener
	s.startTime = s.clock()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/signals", s.handleSignals)
	mux.HandleFunc("/reports", s.handleReports)
	mux.HandleFunc("/tasks/", s.handleTask)
	server := &http.Server{
		Handler:      mux,
		ReadTimeout:  s.settings.ReadTimeout,
		WriteTimeout: s.settings.WriteTimeout,
		IdleTimeout:  s.settings.IdleTimeout,
	}
	if ctx != nil {
		server.BaseContext = func(net.Listener) context.Context { return ctx }
	}
	s.server = server
	s.status = StatusReady
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("bridge serve error")
		}
	}()
	s.logger.Info().Str("addr", listener.Addr().String()).Msg("bridge listening")
	return nil
}

// Shutdown stops accepting new connections and waits for in-flight requests
// to exit.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil || s.server == nil {
		return nil
	}
	s.status = StatusDraining
	deadline := ctx
	if deadline == nil {
		var cancel context.CancelFunc
		deadline, cancel = context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
	}
	if err := s.server.Shutdown(deadline); err != nil {
		return err
	}
	s.listener = nil
	s.server = nil
	return nil
}

// Addr returns the bound TCP address once the server has started.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// BaseURL returns the HTTP base URL for the running server.
func (s *Server) BaseURL() string {
	addr := s.Addr()
	if addr == "" {
		return s.settings.URL()
	}
	return "http://" + addr
}

// Status reports the server's lifecycle state.
func (s *Server) Status() ServerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Server) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock().UTC()
}

func (s *Server) uptimeSeconds() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.startTime.IsZero() {
		return 0
	}
	return int64(time.Since(s.startTime).Seconds())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", fmt.Sprintf("%s, %s", http.MethodGet, http.MethodHead))
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	resp := healthResponse{
		Status:        string(s.Status()),
		Version:       ProtocolVersion,
		UptimeSeconds: s.uptimeSeconds(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	var posting SignalPosting
	if err := json.Unmarshal(body, &posting); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	posting.Normalize()
	if err := posting.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := s.store.PutSignal(posting.TaskID, posting.SignalType, posting.Signal()); err != nil {
		if errors.Is(err, store.ErrInvalidStatus) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		s.logger.Error().Err(err).Str("task_id", posting.TaskID).Msg("bridge signal write failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "signal write failed"})
		return
	}
	writeJSON(w, http.StatusAccepted, acceptedResponse{Status: "accepted", ServerTime: s.now()})
}

func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	var posting ReportPosting
	if err := json.Unmarshal(body, &posting); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	posting.Normalize()
	if err := posting.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := s.store.PutReport(posting.TaskID, posting.ReportType, posting.Content); err != nil {
		s.logger.Error().Err(err).Str("task_id", posting.TaskID).Msg("bridge report write failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "report write failed"})
		return
	}
	writeJSON(w, http.StatusAccepted, acceptedResponse{Status: "accepted", ServerTime: s.now()})
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if s.states == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "task snapshots not exposed"})
		return
	}
	taskID := strings.TrimPrefix(r.URL.Path, "/tasks/")
	if taskID == "" || strings.Contains(taskID, "/") {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found"})
		return
	}
	state, err := s.states.View(taskID)
	if err != nil {
		if errors.Is(err, sequencer.ErrStateNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found"})
			return
		}
		s.logger.Error().Err(err).Str("task_id", taskID).Msg("bridge state read failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "state read failed"})
		return
	}
	writeJSON(w, http.StatusOK, taskResponse{
		TaskID:        state.TaskID,
		PlanID:        state.Plan.ID,
		Status:        string(state.Status),
		StatusReason:  state.StatusReason,
		Cursor:        state.Cursor,
		LastStep:      state.LastDispatched(),
		RetryCounts:   state.RetryCounts,
		TimeoutCounts: state.TimeoutCounts,
		UpdatedAt:     state.UpdatedAt,
	})
}

// readBody enforces the POST method and the body size limit shared by the
// posting endpoints.
func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return nil, false
	}
	if r.Body == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "empty body"})
		return nil, false
	}
	reader := http.MaxBytesReader(w, r.Body, s.settings.MaxBodyBytes)
	defer reader.Close()
	body, err := io.ReadAll(reader)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "payload exceeds limit"})
			return nil, false
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unable to read body"})
		return nil, false
	}
	return body, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
