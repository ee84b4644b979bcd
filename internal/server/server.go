// Package server provides the HTTP server that wires all services together.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/scrutineering/scrutineer/internal/analysis"
	"github.com/scrutineering/scrutineer/internal/bus"
	"github.com/scrutineering/scrutineer/internal/config"
	"github.com/scrutineering/scrutineer/internal/metrics"
	pkgcontext "github.com/scrutineering/scrutineer/internal/pkg/context"
	apperrors "github.com/scrutineering/scrutineer/internal/pkg/errors"
	"github.com/scrutineering/scrutineer/internal/pkg/logger"
	"github.com/scrutineering/scrutineer/internal/pkg/middleware"
	"github.com/scrutineering/scrutineer/internal/pkg/security"
	"github.com/scrutineering/scrutineer/internal/voting"
)

// Server is the main HTTP server that wires all services together.
type Server struct {
	cfg        Config
	log        *logger.Logger
	httpServer *http.Server

	// Services
	bus       bus.Bus
	metrics   *metrics.Metrics
	collector *metrics.Collector
	analysis  *analysis.Service
	limiter   *middleware.RateLimiter

	// Handlers
	analysisHandler *AnalysisHandler
	healthHandler   *HealthHandler

	metricsPath string
	corsOrigins []string

	mu      sync.RWMutex
	started bool
}

// Config configures the server.
type Config struct {
	// Host is the address to bind to.
	Host string

	// Port is the HTTP port.
	Port int

	// Version is the application version.
	Version string

	// ReadTimeout is the HTTP read timeout.
	ReadTimeout time.Duration

	// WriteTimeout is the HTTP write timeout.
	WriteTimeout time.Duration

	// ShutdownTimeout is the graceful shutdown timeout.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns sensible server defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		Version:         "dev",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    60 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// New creates a new server with all dependencies.
func New(cfg Config, appCfg config.Config, log *logger.Logger) (*Server, error) {
	if cfg.Port == 0 {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = logger.Default()
	}

	s := &Server{
		cfg: cfg,
		log: log,
	}

	// Initialize metrics
	if appCfg.Metrics.Enabled {
		retention := time.Duration(appCfg.Metrics.Retention) * time.Hour
		s.metrics = metrics.NewWithConfig(appCfg.Metrics.History, appCfg.Metrics.RedisURL, retention)
		s.collector = metrics.NewCollector(s.metrics)
	}
	s.metricsPath = appCfg.Metrics.Path
	if s.metricsPath == "" {
		s.metricsPath = "/metrics"
	}

	// Initialize event bus
	eventBus, err := bus.NewBus(appCfg.Bus)
	if err != nil {
		return nil, fmt.Errorf("failed to create event bus: %w", err)
	}
	s.bus = eventBus
	if s.metrics != nil {
		s.bus = bus.NewInstrumentedBus(eventBus, s.metrics)
	}

	// Initialize the analysis service. A fixed seed makes random
	// tiebreaks reproducible across runs.
	picker := voting.NewTimePicker()
	if appCfg.Analysis.RandomSeed != 0 {
		picker = voting.NewPicker(appCfg.Analysis.RandomSeed)
	}
	orchestrator := analysis.NewOrchestrator(analysis.NewRegistry(picker), appCfg.Analysis.Consensus)
	s.analysis = analysis.NewService(orchestrator, s.bus, s.metrics, log)

	// Initialize per-client rate limiting
	if appCfg.Security.RateLimit > 0 {
		burst := appCfg.Security.RateBurst
		if burst <= 0 {
			burst = appCfg.Security.RateLimit * 2
		}
		s.limiter = middleware.NewRateLimiter(middleware.RateLimiterConfig{
			RequestsPerSecond: float64(appCfg.Security.RateLimit),
			Burst:             burst,
			CleanupInterval:   time.Minute,
		})
	}

	s.corsOrigins = splitOrigins(appCfg.Security.CORSOrigins)

	// Initialize handlers
	s.analysisHandler = NewAnalysisHandler(s.analysis, s.collector)
	healthChecker := NewHealthChecker(s.analysis.Registry(), s.bus, appCfg.Bus.Type)
	s.healthHandler = NewHealthHandler(healthChecker, cfg.Version)

	return s, nil
}

// splitOrigins parses a comma-separated origin list.
func splitOrigins(origins string) []string {
	if origins == "" {
		return []string{"*"}
	}

	parts := strings.Split(origins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("server already started")
	}
	s.started = true
	s.mu.Unlock()

	// Setup routes
	router := s.setupRoutes()

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.log.Info("Starting HTTP server",
		"addr", addr,
		"version", s.cfg.Version,
		"systems", len(s.analysis.Registry().Systems()),
	)
	return s.httpServer.ListenAndServe()
}

// Stop gracefully stops the server. In-flight requests get until the
// shutdown timeout to finish before the listener is torn down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Error("HTTP shutdown error", "error", err)
	}

	// Close services. The bus goes first so nothing records to the
	// metrics registry after it is closed.
	if s.bus != nil {
		if err := s.bus.Close(); err != nil {
			s.log.Error("bus close error", "error", err)
		}
	}
	if s.limiter != nil {
		s.limiter.Close()
	}
	if s.metrics != nil {
		if err := s.metrics.Close(); err != nil {
			s.log.Error("metrics close error", "error", err)
		}
	}

	s.started = false
	s.log.Info("Server stopped")

	return nil
}

// MetricsSummary returns a one-line summary of collected counters, or
// an empty string when metrics are disabled.
func (s *Server) MetricsSummary() string {
	if s.collector == nil {
		return ""
	}
	return s.collector.Summary()
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() http.Handler {
	r := chi.NewRouter()

	r.Use(s.recoverPanics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
		MaxAge:         300,
	}))
	r.Use(s.logRequests)
	if s.metrics != nil {
		r.Use(func(next http.Handler) http.Handler {
			return metrics.HTTPMiddleware(s.metrics, next)
		})
	}
	if s.limiter != nil {
		r.Use(s.limiter.Middleware)
	}
	r.Use(ResponseWrapperMiddleware)

	// Health endpoints
	r.Get("/healthz", s.healthHandler.HandleHealth)
	r.Get("/readyz", s.healthHandler.HandleReady)

	// Metrics endpoint
	if s.metrics != nil {
		r.Method(http.MethodGet, s.metricsPath, s.metrics.Handler())
	}

	// API endpoints
	r.Route("/v1", func(api chi.Router) {
		api.Post("/analyses", s.analysisHandler.HandleAnalyze)
		api.Get("/systems", s.analysisHandler.HandleSystems)
		api.Get("/version", s.healthHandler.HandleVersion)
		api.Get("/stats", s.analysisHandler.HandleStats)
	})

	return r
}

// recoverPanics converts handler panics into 500 responses instead of
// tearing down the connection.
func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error("panic in HTTP handler",
					"method", r.Method,
					"path", r.URL.Path,
					"panic", fmt.Sprintf("%v", rec),
				)
				apperrors.WriteError(w, apperrors.InternalError("internal server error", nil))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// logRequests logs each request with its status and duration. The
// request ID it mints is reused by the response wrapper.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ctx := pkgcontext.WithRequestID(r.Context(), GenerateRequestID())
		r = r.WithContext(ctx)

		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		s.log.WithContext(ctx).Debug("HTTP request",
			"method", r.Method,
			"path", security.SanitizeForLog(r.URL.Path),
			"status", wrapped.status,
			"duration", time.Since(start),
		)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Health returns the server health status.
func (s *Server) Health() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}
