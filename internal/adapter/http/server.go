package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"github.com/couchcryptid/air-quality-etl/internal/pipeline"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RunController starts partition runs and reports on them.
type RunController interface {
	Start(p domain.PartitionKey) (pipeline.Run, error)
	Status(p domain.PartitionKey) (pipeline.Run, bool)
}

// Server exposes health, readiness, metrics, and partition replay endpoints.
type Server struct {
	httpServer *http.Server
	runs       RunController
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and the
// /partitions/{date}/{hour} routes.
func NewServer(addr string, ready sharedobs.ReadinessChecker, runs RunController, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		runs:   runs,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /partitions/{date}/{hour}/replay", s.handleReplay)
	mux.HandleFunc("GET /partitions/{date}/{hour}", s.handleStatus)

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

func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request) {
	p, err := partitionFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	run, err := s.runs.Start(p)
	switch {
	case errors.Is(err, pipeline.ErrRunInFlight):
		current, _ := s.runs.Status(p)
		sharedobs.WriteJSON(w, http.StatusConflict, map[string]any{
			"error": err.Error(),
			"run":   current,
		})
	case errors.Is(err, pipeline.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err)
	case err != nil:
		s.logger.Error("replay not started", "partition", p.String(), "error", err)
		writeError(w, http.StatusInternalServerError, err)
	default:
		s.logger.Info("replay started", "partition", p.String(), "run_id", run.ID)
		sharedobs.WriteJSON(w, http.StatusAccepted, run)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	p, err := partitionFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	run, ok := s.runs.Status(p)
	if !ok {
		sharedobs.WriteJSON(w, http.StatusNotFound, map[string]string{
			"error":     "no run recorded",
			"partition": p.String(),
		})
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, run)
}

func partitionFromPath(r *http.Request) (domain.PartitionKey, error) {
	hour, err := strconv.Atoi(r.PathValue("hour"))
	if err != nil {
		return domain.PartitionKey{}, errors.New("hour must be an integer")
	}
	return domain.NewPartitionKey(r.PathValue("date"), hour)
}

func writeError(w http.ResponseWriter, status int, err error) {
	sharedobs.WriteJSON(w, status, map[string]string{"error": err.Error()})
}
