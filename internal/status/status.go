// Package status serves the agent's local health, status and metrics endpoints.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/afroash/climate-agent/internal/control"
	"github.com/afroash/climate-agent/internal/metrics"
	"github.com/afroash/climate-agent/internal/models"
	"github.com/afroash/climate-agent/internal/scheduler"
)

const shutdownTimeout = 5 * time.Second

// ArbiterView exposes the applied actuator state
type ArbiterView interface {
	State() control.Snapshot
}

// SchedulerView exposes the cycle loop
type SchedulerView interface {
	State() scheduler.State
	Cycles() int64
	Skipped() int64
}

// OverrideView exposes the active manual command
type OverrideView interface {
	Current() (models.ActuatorState, bool)
}

// ConnectionView reports control channel health
type ConnectionView interface {
	IsConnected() bool
}

// Sources are the components the status endpoint reads from.
// Connection is nil when no control channel is configured.
type Sources struct {
	AgentID    string
	Version    string
	Transport  string
	StartTime  time.Time
	Arbiter    ArbiterView
	Scheduler  SchedulerView
	Overrides  OverrideView
	Connection ConnectionView
}

// Report is the body of GET /status
type Report struct {
	AgentID          string                `json:"agent_id"`
	Version          string                `json:"version"`
	Uptime           string                `json:"uptime"`
	Actuators        control.Snapshot      `json:"actuators"`
	Override         *models.ActuatorState `json:"override,omitempty"`
	Scheduler        string                `json:"scheduler"`
	Cycles           int64                 `json:"cycles"`
	SkippedTicks     int64                 `json:"skipped_ticks"`
	ControlTransport string                `json:"control_transport"`
	ControlConnected bool                  `json:"control_connected"`
}

// Server is the local status HTTP server
type Server struct {
	src     Sources
	metrics *metrics.Metrics
	logger  zerolog.Logger
	server  *http.Server
	now     func() time.Time
}

// NewServer creates a status server listening on addr
func NewServer(addr string, src Sources, m *metrics.Metrics, logger zerolog.Logger) *Server {
	s := &Server{
		src:     src,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           handlers.LoggingHandler(logger.With().Str("component", "status").Logger(), s.Router()),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Router returns the status routes
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/status", s.handleStatus).Methods("GET")
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.server.Addr).Msg("Status server listening")
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// Report builds the current status
func (s *Server) Report() Report {
	rep := Report{
		AgentID:          s.src.AgentID,
		Version:          s.src.Version,
		ControlTransport: s.src.Transport,
	}
	if !s.src.StartTime.IsZero() {
		rep.Uptime = s.now().Sub(s.src.StartTime).Round(time.Second).String()
	}
	if s.src.Arbiter != nil {
		rep.Actuators = s.src.Arbiter.State()
	}
	if s.src.Overrides != nil {
		if state, ok := s.src.Overrides.Current(); ok {
			rep.Override = &state
		}
	}
	if s.src.Scheduler != nil {
		rep.Scheduler = s.src.Scheduler.State().String()
		rep.Cycles = s.src.Scheduler.Cycles()
		rep.SkippedTicks = s.src.Scheduler.Skipped()
	}
	if s.src.Connection != nil {
		rep.ControlConnected = s.src.Connection.IsConnected()
	}
	return rep
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Report())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
