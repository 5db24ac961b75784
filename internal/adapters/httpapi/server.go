// Package httpapi provides the HTTP server and handlers.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/jobrunner/verto/internal/application"
	"github.com/jobrunner/verto/internal/config"
	"github.com/jobrunner/verto/internal/ports/output"
)

// Server wraps the HTTP server with application handlers.
type Server struct {
	server        *http.Server
	router        *mux.Router
	grouper       *application.Grouper
	runner        *application.Runner
	preview       *application.PreviewService
	resolver      output.CrsResolver
	runs          *runStore
	logger        *slog.Logger
	config        config.ServerConfig
	engineVersion string
}

// NewServer creates a new HTTP server.
func NewServer(
	cfg config.ServerConfig,
	grouper *application.Grouper,
	runner *application.Runner,
	preview *application.PreviewService,
	resolver output.CrsResolver,
	logger *slog.Logger,
	engineVersion string,
) *Server {
	s := &Server{
		grouper:       grouper,
		runner:        runner,
		preview:       preview,
		resolver:      resolver,
		runs:          newRunStore(),
		logger:        logger,
		config:        cfg,
		engineVersion: engineVersion,
	}

	s.router = s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Address(),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() *mux.Router {
	r := mux.NewRouter()

	// Add middleware
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	// Add CORS middleware if configured
	if s.config.CORS.Enabled() {
		r.Use(s.corsMiddleware)
	}

	// Health endpoint
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	// API v1
	api := r.PathPrefix("/api/v1").Subrouter()

	// Format catalogue
	api.HandleFunc("/formats", s.handleFormats).Methods(http.MethodGet)

	// Conversion and preview
	api.HandleFunc("/convert", s.handleConvert).Methods(http.MethodPost)
	api.HandleFunc("/preview", s.handlePreview).Methods(http.MethodPost)
	api.HandleFunc("/preview/cache/clear", s.handlePreviewCacheClear).Methods(http.MethodPost)

	// Run results
	api.HandleFunc("/runs/{runId}", s.handleGetRun).Methods(http.MethodGet)
	api.HandleFunc("/runs/{runId}/report", s.handleGetReport).Methods(http.MethodGet)
	api.HandleFunc("/runs/{runId}/artifacts/{name}", s.handleGetArtifact).Methods(http.MethodGet)

	// OpenAPI spec
	r.HandleFunc("/openapi.json", s.handleOpenAPI).Methods(http.MethodGet)

	return r
}

// Router returns the mux router.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "address", s.config.Address())
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs incoming requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration", time.Since(start),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// recoveryMiddleware recovers from panics.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered", "error", err, "path", r.URL.Path)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
