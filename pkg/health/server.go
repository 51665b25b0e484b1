package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/proofrail/proofrail-agent/pkg/circuitbreaker"
	"github.com/proofrail/proofrail-agent/pkg/logger"
)

// AgentStatus is the agent's view of its own progress
type AgentStatus struct {
	Address       string    `json:"agent_address"`
	Network       string    `json:"network"`
	Running       bool      `json:"running"`
	LastCycleAt   time.Time `json:"last_cycle_at,omitempty"`
	LastHeight    uint64    `json:"last_height"`
	LastJobsFound int       `json:"last_jobs_found"`
	JobsExecuted  uint64    `json:"jobs_executed"`
	FeesClaimed   uint64    `json:"fees_claimed"`
	LastError     string    `json:"last_error,omitempty"`
}

// StatusProvider reports the agent status
type StatusProvider interface {
	Status() AgentStatus
}

// Server represents a health check HTTP server
type Server struct {
	port          string
	agent         StatusProvider
	breaker       *circuitbreaker.CircuitBreaker
	metricsAPIKey string
	readyWindow   time.Duration
	logger        logger.Logger
	httpServer    *http.Server
	now           func() time.Time
}

// NewServer creates a new health check server. The agent is ready while it runs and
// has completed a cycle within readyWindow.
func NewServer(
	port, metricsAPIKey string,
	agent StatusProvider,
	breaker *circuitbreaker.CircuitBreaker,
	readyWindow time.Duration,
	logger logger.Logger,
) *Server {
	s := &Server{
		port:          port,
		agent:         agent,
		breaker:       breaker,
		metricsAPIKey: metricsAPIKey,
		readyWindow:   readyWindow,
		logger:        logger,
		now:           time.Now,
	}
	s.httpServer = &http.Server{
		Addr:              ":" + port,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// metricsAuthMiddleware is a middleware that checks for a valid API key
func (s *Server) metricsAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip auth if no API key is configured
		if s.metricsAPIKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		// Get API key from Authorization header
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Missing Authorization header", http.StatusUnauthorized)
			return
		}

		// Check if the header has the correct format
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
			return
		}

		// Validate API key
		if parts[1] != s.metricsAPIKey {
			http.Error(w, "Invalid API key", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Router builds the HTTP routes
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Get("/ready", s.handleReady)
	r.Get("/status", s.handleStatus)
	r.With(s.metricsAuthMiddleware).Post("/circuit/reset", s.handleCircuitReset)

	// Expose Prometheus metrics with API key authentication
	r.Method(http.MethodGet, "/metrics", s.metricsAuthMiddleware(promhttp.Handler()))
	return r
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	status := s.agent.Status()
	if !status.Running {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("Agent not running"))
		return
	}
	if status.LastCycleAt.IsZero() || s.now().Sub(status.LastCycleAt) > s.readyWindow {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("No recent cycle"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Ready"))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	body := struct {
		AgentStatus
		Circuit circuitbreaker.State `json:"circuit"`
	}{
		AgentStatus: s.agent.Status(),
		Circuit:     s.breaker.Snapshot(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("Error encoding status JSON: %v", err)
	}
}

// Circuit breaker admin control endpoint
func (s *Server) handleCircuitReset(w http.ResponseWriter, _ *http.Request) {
	s.breaker.Reset()
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Circuit breaker reset"))
}

// Start serves until Shutdown is called
func (s *Server) Start() {
	s.logger.Info("Starting health and metrics server on port %s", s.port)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("Health server error: %v", err)
	}
}

// Shutdown stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
