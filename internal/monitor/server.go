// Package monitor serves the track service's HTTP surface: the observation
// set API, build and session status, Prometheus metrics and the debug
// charts under /debug/.
package monitor

import (
	"context"
	"errors"
	"net/http"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/slr.track/internal/httputil"
	"github.com/banshee-data/slr.track/internal/monitoring"
	"github.com/banshee-data/slr.track/internal/observation"
	"github.com/banshee-data/slr.track/internal/session"
	"github.com/banshee-data/slr.track/internal/version"
)

// SessionView is the read side of a running session.
type SessionView interface {
	Status() session.Status
	SpeedProfile() []float64
	SpeedRange() (float64, float64)
}

// Config wires the server to the rest of the service.
type Config struct {
	Registry *observation.Registry
	Sessions []SessionView
	// Metrics is optional; /metrics is only served when set.
	Metrics *monitoring.TrackCollector
}

// Server is the HTTP front of the track service.
type Server struct {
	registry *observation.Registry
	sessions []SessionView
	metrics  *monitoring.TrackCollector
	mux      *http.ServeMux
	logf     func(format string, v ...interface{})
}

// NewServer builds the route table. Other packages may add their own admin
// routes through Mux before the server starts.
func NewServer(cfg Config) *Server {
	s := &Server{
		registry: cfg.Registry,
		sessions: cfg.Sessions,
		metrics:  cfg.Metrics,
		mux:      http.NewServeMux(),
		logf:     monitoring.Tagged("HTTP"),
	}
	s.setupRoutes()
	return s
}

// Mux returns the route table.
func (s *Server) Mux() *http.ServeMux { return s.mux }

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/observations", s.handleObservations)
	s.mux.HandleFunc("/api/observations/clear", s.handleObservationClear)
	s.mux.HandleFunc("/api/observations/points", s.handleObservationPoints)
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/api/version", s.handleVersion)
	if s.metrics != nil {
		s.mux.Handle("/metrics", s.metrics.Handler())
	}

	debug := tsweb.Debugger(s.mux)
	debug.HandleFunc("trail/speed", "speed profile of the live trail (?station=)", s.handleSpeedChart)
	debug.HandleSilentFunc("observations/plot", s.handleObservationPlot)
}

// Start serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logf("starting HTTP server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logf("HTTP server shutdown error: %v", err)
		if err := srv.Close(); err != nil {
			s.logf("HTTP server force close error: %v", err)
		}
	}
	s.logf("HTTP server stopped")
	return nil
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	httputil.WriteJSONOK(w, version.Get())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	out := make([]session.Status, len(s.sessions))
	for i, sess := range s.sessions {
		out[i] = sess.Status()
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"sessions":     out,
		"observations": s.registry.Len(),
	})
}

// session returns the session for station, or the first one when station
// is empty.
func (s *Server) session(station string) SessionView {
	for _, sess := range s.sessions {
		if station == "" || sess.Status().StationID == station {
			return sess
		}
	}
	return nil
}
