package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/ensemble-tubing/internal/domain"
	"github.com/couchcryptid/ensemble-tubing/internal/tubing"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxSnapshotBytes bounds the body of a POST /v1/tubing request.
const maxSnapshotBytes = 64 << 20

// SnapshotComputer runs tubing on a parsed snapshot.
type SnapshotComputer interface {
	ComputeSnapshot(snap domain.Snapshot) (domain.TubingEvent, error)
}

// Server exposes health, readiness, metrics, and on-demand tubing endpoints.
type Server struct {
	httpServer *http.Server
	computer   SnapshotComputer
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics, and
// POST /v1/tubing routes.
func NewServer(addr string, ready sharedobs.ReadinessChecker, computer SnapshotComputer, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		computer: computer,
		logger:   logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /v1/tubing", s.handleTubing)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// handleTubing partitions a single snapshot posted as a RawSnapshot document.
func (s *Server) handleTubing(w http.ResponseWriter, r *http.Request) {
	var rec domain.RawSnapshot
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSnapshotBytes)).Decode(&rec); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	snap, err := domain.NewSnapshot(rec)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}

	event, err := s.computer.ComputeSnapshot(snap)
	if err != nil {
		s.logger.Info("tubing request rejected", "error", err, "variable", snap.Variable)
		writeError(w, statusFor(err), err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, event)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, tubing.ErrNotImplemented):
		return http.StatusNotImplemented
	case errors.Is(err, tubing.ErrInsufficientMembers),
		errors.Is(err, tubing.ErrGridMismatch),
		errors.Is(err, tubing.ErrEmptyExtent),
		errors.Is(err, tubing.ErrInvalidExtent),
		errors.Is(err, tubing.ErrInvalidThreshold):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	sharedobs.WriteJSON(w, status, map[string]string{"error": err.Error()})
}
