// Package rest exposes the access management core over HTTP.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/altinn-access/go-core/internal/metrics"
	"github.com/altinn-access/go-core/internal/pap"
	"github.com/altinn-access/go-core/internal/pip"
	"github.com/altinn-access/go-core/internal/resolver"
)

// Config configures the REST server.
type Config struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	Version      string
}

// DefaultConfig returns default REST server configuration.
func DefaultConfig() Config {
	return Config{
		Port:         8080,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		Version:      "dev",
	}
}

// Server is the HTTP face of the administration point, information point
// and attribute resolver.
type Server struct {
	pap        *pap.PolicyAdministrationPoint
	pip        *pip.PolicyInformationPoint
	resolver   *resolver.Resolver
	metrics    *metrics.Metrics
	router     *mux.Router
	httpServer *http.Server
	logger     *zap.Logger
	config     Config
	startTime  time.Time
}

// NewServer wires the routes. metrics may be nil, in which case no
// scrape endpoint is registered.
func NewServer(
	administration *pap.PolicyAdministrationPoint,
	information *pip.PolicyInformationPoint,
	attributeResolver *resolver.Resolver,
	m *metrics.Metrics,
	config Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		pap:       administration,
		pip:       information,
		resolver:  attributeResolver,
		metrics:   m,
		router:    mux.NewRouter(),
		logger:    logger,
		config:    config,
		startTime: time.Now(),
	}
	s.routes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Port),
		Handler:      s.loggingMiddleware(s.router),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

func (s *Server) routes() {
	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/delegations/rules", s.addRulesHandler).Methods(http.MethodPost)
	v1.HandleFunc("/delegations/rules/delete", s.deleteRulesHandler).Methods(http.MethodPost)
	v1.HandleFunc("/delegations/policies/delete", s.deletePoliciesHandler).Methods(http.MethodPost)
	v1.HandleFunc("/delegations/rules/query", s.queryRulesHandler).Methods(http.MethodPost)
	v1.HandleFunc("/attributes/resolve", s.resolveAttributesHandler).Methods(http.MethodPost)

	s.router.HandleFunc("/healthz", s.healthHandler).Methods(http.MethodGet)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}
}

// Start begins serving; blocks until the listener stops.
func (s *Server) Start() error {
	s.logger.Info("Starting REST server", zap.Int("port", s.config.Port))
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("rest server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down REST server")
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": s.config.Version,
		"uptime":  time.Since(s.startTime).String(),
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		s.logger.Info("Request handled",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", recorder.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
