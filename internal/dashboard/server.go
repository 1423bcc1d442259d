package dashboard

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"loopctl/internal/logging"
)

// Server is the Dashboard's HTTP surface (spec §6.2), wiring a Registry
// and TieredMetrics store to a gorilla/mux router behind rs/cors —
// grounded on the teacher's orchestrator/run.go bootstrap (mux.NewRouter
// + cors.New as middleware + promhttp.Handler mounted alongside the JSON
// API, one http.Server wrapping it all).
type Server struct {
	addr     string
	httpSrv  *http.Server
	registry *Registry
	metrics  *TieredMetrics
	hub      *Hub
	tail     *tailer
	logger   *logging.Logger
}

// NewServer builds the router and wraps it with CORS. Call ListenAndServe
// to start accepting connections.
func NewServer(addr string, registry *Registry, metrics *TieredMetrics, hub *Hub) *Server {
	s := &Server{
		addr:     addr,
		registry: registry,
		metrics:  metrics,
		hub:      hub,
		tail:     newTailer(),
		logger:   logging.Get(logging.CategoryDashboard),
	}

	r := mux.NewRouter()
	r.HandleFunc("/api/sessions/summary", s.handleSessionsSummary).Methods(http.MethodGet)
	r.HandleFunc("/api/sessions/{id}", s.handleSessionDetail).Methods(http.MethodGet)
	r.HandleFunc("/api/sessions/{id}/pause", s.handleSessionControl(s.registry.Pause)).Methods(http.MethodPost)
	r.HandleFunc("/api/sessions/{id}/resume", s.handleSessionControl(s.registry.Resume)).Methods(http.MethodPost)
	r.HandleFunc("/api/sessions/{id}/skip-task", s.handleSessionControl(s.registry.SkipTask)).Methods(http.MethodPost)
	r.HandleFunc("/api/sessions/{id}/end", s.handleSessionControl(s.registry.End)).Methods(http.MethodPost)
	r.HandleFunc("/api/usage/limits", s.handleUsageLimits).Methods(http.MethodGet)
	r.HandleFunc("/api/events", s.handleEvents).Methods(http.MethodGet)
	r.HandleFunc("/api/logs/{sessionId}", s.handleLogs).Methods(http.MethodGet)
	r.HandleFunc("/api/metrics", s.handleMetrics).Methods(http.MethodGet)
	r.Handle("/prometheus", promhttp.Handler()).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      c.Handler(r),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // SSE handlers hold the connection open indefinitely
	}
	return s
}

// ListenAndServe blocks serving HTTP until the server is shut down.
func (s *Server) ListenAndServe() error {
	s.logger.Info("dashboard listening on %s", s.addr)
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server and the tiered metrics
// scheduler.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.metrics != nil {
		_ = s.metrics.Shutdown()
	}
	return s.httpSrv.Shutdown(ctx)
}
