package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/raysh454/patternshield/internal/app"
	"github.com/raysh454/patternshield/internal/assessor"
	"github.com/raysh454/patternshield/internal/fetcher"
	"github.com/raysh454/patternshield/internal/logging"
	"github.com/raysh454/patternshield/internal/store"
)

const (
	maxBodyBytes = 5 << 20
	maxLogBody   = 512
)

// Server is the HTTP + WebSocket API surface for patternshield.
type Server struct {
	cfg      Config
	app      *app.Application
	router   chi.Router
	upgrader websocket.Upgrader
	logger   logging.Logger
}

// NewServer creates a new Server with its own Application.
func NewServer(cfg Config) (*Server, error) {
	if cfg.AppConfig == nil {
		cfg.AppConfig = app.DefaultConfig()
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = cfg.AppConfig.Server.ListenAddr
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewStdoutLogger("Server")
	}

	a, err := app.NewApplication(cfg.AppConfig, logger, cfg.AppOptions...)
	if err != nil {
		return nil, fmt.Errorf("creating application: %w", err)
	}

	s := &Server{
		cfg:    cfg,
		app:    a,
		router: chi.NewRouter(),
		logger: logger.With(logging.Field{Key: "component", Value: "server"}),
		upgrader: websocket.Upgrader{
			// Browser extensions connect from chrome-extension:// origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	s.routes()
	return s, nil
}

// App returns the underlying application for advanced use (tests, etc.).
func (s *Server) App() *app.Application {
	return s.app
}

func (s *Server) routes() {
	r := s.router

	r.Use(s.corsMiddleware)

	r.Route("/scans", func(r chi.Router) {
		r.Post("/page", s.handleScanPage)
		r.Post("/html", s.handleScanHTML)
		r.Post("/text", s.handleScanText)
		r.Post("/image", s.handleScanImage)
		r.Post("/url", s.handleScanURL)

		// History
		r.Get("/", s.handleListScans)
		r.Delete("/", s.handleClearScans)
		r.Get("/{scanID}", s.handleGetScan)
		r.Delete("/{scanID}", s.handleDeleteScan)
		r.Get("/{scanID}/report", s.handleScanReport)
		r.Get("/{scanID}/alerts", s.handleScanAlerts)
	})

	r.Route("/sites", func(r chi.Router) {
		r.Get("/blocked", s.handleListBlocked)
		r.Get("/{site}", s.handleGetSite)
		r.Put("/{site}/block", s.handleBlockSite)
		r.Delete("/{site}/block", s.handleUnblockSite)
	})

	r.Route("/patterns", func(r chi.Router) {
		r.Post("/", s.handleSubmitPattern)
		r.Get("/", s.handleListPatterns)
		r.Post("/validate", s.handleValidatePattern)
		r.Get("/search", s.handleSearchPatterns)
		r.Get("/{patternID}", s.handleGetPattern)
		r.Put("/{patternID}/status", s.handleSetPatternStatus)
		r.Post("/{patternID}/votes", s.handleVote)
		r.Get("/{patternID}/comments", s.handleListComments)
		r.Post("/{patternID}/comments", s.handleAddComment)
	})

	r.Get("/stats", s.handleStats)
	r.Get("/companies", s.handleCompanies)
	r.Get("/rules", s.handleRules)

	r.Get("/advisories", s.handleListAdvisories)
	r.Delete("/advisories", s.handleDismissAdvisory)

	// Jobs over REST
	r.Post("/jobs/crawl", s.handleStartCrawlJob)
	r.Post("/jobs/watch", s.handleStartWatchJob)
	r.Post("/jobs/batch", s.handleStartBatchJob)
	r.Get("/jobs", s.handleListJobs)
	r.Get("/jobs/{jobID}", s.handleGetJob)
	r.Delete("/jobs/{jobID}", s.handleCancelJob)

	// WebSockets
	r.Get("/ws/events", s.handleEventsWS)
	r.Get("/ws/jobs/crawl", s.handleCrawlWS)
	r.Get("/ws/jobs/watch", s.handleWatchWS)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		// CORS preflight
		if r.Method == http.MethodOptions {
			s.optionsHandler("GET, POST, PUT, DELETE")(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) optionsHandler(methods string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Methods", methods)
		w.WriteHeader(http.StatusNoContent)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fields := []logging.Field{
		{Key: "method", Value: r.Method},
		{Key: "path", Value: r.URL.Path},
	}

	if q := r.URL.Query(); len(q) > 0 {
		fields = append(fields, logging.Field{Key: "query", Value: q})
	}

	if r.Body != nil && (r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch) {
		bodyBytes, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		logged := bodyBytes
		if len(logged) > maxLogBody {
			logged = logged[:maxLogBody]
		}
		fields = append(fields, logging.Field{Key: "body", Value: string(logged)})
		r.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	}

	s.logger.Info("http_request", fields...)

	s.router.ServeHTTP(w, r)
}

// Close shuts down running jobs and the application's resources.
func (s *Server) Close() {
	if s.app == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := s.app.Shutdown(ctx); err != nil {
		s.logger.Warn("application shutdown", logging.Field{Key: "error", Value: err.Error()})
	}
}

// HTTPServer creates an *http.Server ready to ListenAndServe.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // allow streaming
	}
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func decodeBody(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// errorStatus maps domain errors onto HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, store.ErrScanNotFound), errors.Is(err, store.ErrPatternNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInvalidInput), errors.Is(err, assessor.ErrInvalidURL),
		errors.Is(err, fetcher.ErrEmptyBatch):
		return http.StatusBadRequest
	case errors.Is(err, assessor.ErrFetchFailed):
		return http.StatusBadGateway
	case errors.Is(err, app.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	status := errorStatus(err)
	s.logger.Warn(op, logging.Field{Key: "error", Value: err.Error()}, logging.Field{Key: "status", Value: status})
	writeError(w, status, err.Error())
}

func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
