// Package server exposes autoheal's read-only HTTP surface: health probes,
// Prometheus metrics and the deployment history.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/felixgeelhaar/autoheal/internal/deploy"
	"github.com/felixgeelhaar/autoheal/internal/errors"
	"github.com/felixgeelhaar/autoheal/internal/health"
	"github.com/felixgeelhaar/autoheal/internal/log"
	"github.com/felixgeelhaar/autoheal/internal/store"
)

// Records is the read side of the deployment store.
type Records interface {
	Get(ctx context.Context, id string) (*deploy.Record, error)
	List(ctx context.Context, f store.Filter) ([]*deploy.Record, error)
}

// Config holds listener settings.
type Config struct {
	Address         string        `koanf:"address" yaml:"address"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" yaml:"shutdown_timeout"`
	ReadTimeout     time.Duration `koanf:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout" yaml:"idle_timeout"`
}

func (c *Config) defaults() {
	if c.Address == "" {
		c.Address = ":8080"
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
}

// Server is the HTTP server.
type Server struct {
	httpServer      *http.Server
	router          *chi.Mux
	probes          *health.Probes
	records         Records
	inShutdown      atomic.Bool
	shutdownTimeout time.Duration
	logger          *log.Logger
}

// New creates a Server. metrics and records may be nil, in which case the
// matching routes are not mounted.
func New(cfg Config, probes *health.Probes, records Records, metrics http.Handler, logger *log.Logger) *Server {
	cfg.defaults()
	s := &Server{
		router:          chi.NewRouter(),
		probes:          probes,
		records:         records,
		shutdownTimeout: cfg.ShutdownTimeout,
		logger:          log.OrDefault(logger).WithComponent("server"),
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.requestLogger)

	s.router.Get("/health/live", s.handleLiveness)
	s.router.Get("/health/ready", s.handleReadiness)
	s.router.Get("/healthz", s.handleReadiness)
	if metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", metrics)
	}
	if records != nil {
		s.router.Route("/deployments", func(r chi.Router) {
			r.Get("/", s.handleListDeployments)
			r.Get("/{id}", s.handleGetDeployment)
		})
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start marks the server ready and serves until Shutdown. It returns
// http.ErrServerClosed after a graceful shutdown.
func (s *Server) Start() error {
	s.probes.MarkReady()
	s.logger.Info("listening", "address", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown fails readiness, then drains connections for up to the
// configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	s.inShutdown.Store(true)
	s.probes.MarkShutdown()
	s.httpServer.SetKeepAlivesEnabled(false)

	ctx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// IsShuttingDown reports whether Shutdown has been called.
func (s *Server) IsShuttingDown() bool {
	return s.inShutdown.Load()
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.probes.Liveness(r.Context()))
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	report := s.probes.Readiness(r.Context())
	status := http.StatusOK
	if report.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func (s *Server) handleListDeployments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.Filter{
		Platform:         q.Get("platform"),
		AffectedFunction: q.Get("function"),
		Status:           deploy.Status(q.Get("status")),
		FixHash:          q.Get("fix_hash"),
		Limit:            50,
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", raw))
			return
		}
		f.Limit = n
	}

	recs, err := s.records.List(r.Context(), f)
	if err != nil {
		s.logger.Error("list deployments failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list deployments")
		return
	}
	if recs == nil {
		recs = []*deploy.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"deployments": recs})
}

func (s *Server) handleGetDeployment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := s.records.Get(r.Context(), id)
	if err != nil {
		if code, ok := errors.Code(err); ok && code == errors.ErrCodeDeployRecordMissing {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.logger.Error("get deployment failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load deployment")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
