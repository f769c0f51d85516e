// Package httpserver provides the operational HTTP endpoints for the paper
// bot: liveness, readiness, and Prometheus metrics. All user traffic goes
// over the bot transport; nothing here serves conversation state.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/scholarpost/paperbot/internal/database"
	"github.com/scholarpost/paperbot/internal/domain"
	"github.com/scholarpost/paperbot/internal/repository"
)

// Server is the operational HTTP server.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	db         *database.DB
	usage      repository.UsageRepository
	logger     zerolog.Logger
}

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MetricsEnabled  bool
	MetricsPath     string
}

// NewServer creates a new operational HTTP server.
func NewServer(cfg Config, db *database.DB, usage repository.UsageRepository, logger zerolog.Logger) *Server {
	s := &Server{
		db:     db,
		usage:  usage,
		logger: logger.With().Str("component", "http-server").Logger(),
	}

	s.router = s.buildRouter(cfg)

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter(cfg Config) chi.Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health endpoints
	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)

	if s.usage != nil {
		r.Get("/usage", s.usageHandler)
	}

	if cfg.MetricsEnabled {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, promhttp.Handler())
	}

	return r
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// healthHandler returns basic liveness status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	health := s.db.Health(r.Context())
	if health.Status == "healthy" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": health.Status})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{
		"status":   "unhealthy",
		"database": health.Status,
		"error":    health.Error,
	})
}

// readinessHandler returns readiness status.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	health := s.db.Health(r.Context())
	if health.Status != "healthy" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "not_ready",
			"database": health.Status,
			"error":    health.Error,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ready",
		"database": "healthy",
	})
}

// usageHandler reports the download count and total bytes transferred in a
// UTC window. The window defaults to the current calendar day; "from" and
// "to" query parameters (RFC 3339) override it. A "user_id" parameter
// narrows the report to one user and adds their search count.
func (s *Server) usageHandler(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	start := domain.StartOfDay(now)
	end := start.Add(24 * time.Hour)

	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid from timestamp"})
			return
		}
		start = t.UTC()
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid to timestamp"})
			return
		}
		end = t.UTC()
	}

	if v := r.URL.Query().Get("user_id"); v != "" {
		userID, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user_id"})
			return
		}
		s.writeUserUsage(w, r, userID, start)
		return
	}

	count, totalBytes, err := s.usage.DownloadsInWindow(r.Context(), start, end)
	if err != nil {
		s.logger.Error().Err(err).Msg("usage report failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "usage store unavailable"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"from":        start.Format(time.RFC3339),
		"to":          end.Format(time.RFC3339),
		"downloads":   count,
		"total_bytes": totalBytes,
	})
}

// writeUserUsage reports one user's footprint since start: searches run,
// downloads made, and bytes consumed. The ledger queries are open-ended,
// so no "to" bound is reported here.
func (s *Server) writeUserUsage(w http.ResponseWriter, r *http.Request, userID int64, start time.Time) {
	searches, err := s.usage.CountSince(r.Context(), userID, domain.UsageKindSearch, start)
	if err != nil {
		s.logger.Error().Err(err).Int64("user_id", userID).Msg("usage report failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "usage store unavailable"})
		return
	}
	downloads, err := s.usage.CountSince(r.Context(), userID, domain.UsageKindDownload, start)
	if err != nil {
		s.logger.Error().Err(err).Int64("user_id", userID).Msg("usage report failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "usage store unavailable"})
		return
	}
	totalBytes, err := s.usage.BytesUsedSince(r.Context(), userID, start)
	if err != nil {
		s.logger.Error().Err(err).Int64("user_id", userID).Msg("usage report failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "usage store unavailable"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"from":        start.Format(time.RFC3339),
		"user_id":     userID,
		"searches":    searches,
		"downloads":   downloads,
		"total_bytes": totalBytes,
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Best-effort log; headers already sent.
		_ = err
	}
}
