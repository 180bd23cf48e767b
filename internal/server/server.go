// Package server implements the campd HTTP API: role, camp, and attendee
// CRUD over the registration store, document upload and presigned-URL routes
// backed by the provider registry, camp similarity search, and the usual
// health/readiness/metrics operational endpoints.
// The server is started by the `campd serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opencamphq/campd/internal/logging"
	"github.com/opencamphq/campd/internal/provider"
	"github.com/opencamphq/campd/internal/store"
)

// New constructs a Server over the given store, provider registry, and
// optional similarity index.
func New(st store.RegistrationStore, providers *provider.Registry, idx Searcher, cfg *Config) (*Server, error) {
	if st == nil {
		return nil, fmt.Errorf("server: store must not be nil")
	}
	if providers == nil {
		return nil, fmt.Errorf("server: provider registry must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must cover document uploads that block on ingestion.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	reg := cfg.MetricsRegistry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	s := &Server{
		store:     st,
		providers: providers,
		search:    idx,
		cfg:       cfg,
		log:       log,
		pingers:   cfg.Pingers,
		metrics:   newServerMetrics(reg),
	}

	if cfg.APIKey == "" {
		log.Warn("server: API authentication disabled (no API key configured)")
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, log)
	s.stopRL = stopRL

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/roles", s.instrument("roles", s.handleRoleList))
	mux.HandleFunc("POST /api/roles", s.instrument("roles", s.handleRoleCreate))
	mux.HandleFunc("GET /api/roles/{id}", s.instrument("roles", s.handleRoleGet))
	mux.HandleFunc("PUT /api/roles/{id}", s.instrument("roles", s.handleRoleUpdate))
	mux.HandleFunc("DELETE /api/roles/{id}", s.instrument("roles", s.handleRoleDelete))

	mux.HandleFunc("GET /api/camps", s.instrument("camps", s.handleCampList))
	mux.HandleFunc("POST /api/camps", s.instrument("camps", s.handleCampCreate))
	mux.HandleFunc("GET /api/camps/search", s.instrument("search", s.handleCampSearch))
	mux.HandleFunc("GET /api/camps/{id}", s.instrument("camps", s.handleCampGet))
	mux.HandleFunc("PUT /api/camps/{id}", s.instrument("camps", s.handleCampUpdate))
	mux.HandleFunc("DELETE /api/camps/{id}", s.instrument("camps", s.handleCampDelete))

	mux.HandleFunc("GET /api/camps/{id}/attendees", s.instrument("attendees", s.handleAttendeeList))
	mux.HandleFunc("POST /api/camps/{id}/attendees", s.instrument("attendees", s.handleAttendeeRegister))
	mux.HandleFunc("DELETE /api/camps/{id}/attendees/{attendeeID}", s.instrument("attendees", s.handleAttendeeRemove))

	mux.HandleFunc("GET /api/camps/{id}/documents", s.instrument("documents", s.handleDocumentList))
	mux.HandleFunc("POST /api/camps/{id}/documents", s.instrument("documents", s.handleDocumentUpload))
	mux.HandleFunc("GET /api/camps/{id}/documents/{docID}/url", s.instrument("documents", s.handleDocumentURL))
	mux.HandleFunc("DELETE /api/camps/{id}/documents/{docID}", s.instrument("documents", s.handleDocumentDelete))

	mux.HandleFunc("POST /api/uploads/presign", s.instrument("presign", s.handlePresignUpload))
	mux.HandleFunc("GET /api/providers", s.instrument("providers", s.handleProviders))

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	// Outermost to innermost: request logging, auth, per-IP rate limiting.
	handler := requestLogger(log, authMiddleware(cfg.APIKey, rl.middleware(mux)))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("campd server listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.stopRL()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// instrument wraps a handler func with the per-endpoint Prometheus counters.
func (s *Server) instrument(name string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		h(rw, r)
		elapsed := time.Since(start)

		s.metrics.httpRequestsTotal.WithLabelValues(r.Method, name, strconv.Itoa(rw.status)).Inc()
		s.metrics.httpDurationSeconds.WithLabelValues(r.Method, name).Observe(elapsed.Seconds())
	}
}

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error body with the given status.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeStoreError maps store sentinel errors onto HTTP statuses.
func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrCampFull):
		writeError(w, http.StatusConflict, "camp is at capacity")
	case errors.Is(err, store.ErrDuplicateEmail):
		writeError(w, http.StatusConflict, "email already registered for this camp")
	default:
		logging.FromContext(r.Context()).Error("store failure", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// writeProviderError maps a classified provider failure onto an HTTP status.
// Upstream vendor faults surface as gateway errors, caller mistakes as 4xx.
func writeProviderError(w http.ResponseWriter, r *http.Request, err error) {
	log := logging.FromContext(r.Context())

	var perr *provider.Error
	if !errors.As(err, &perr) {
		log.Error("unclassified provider failure", slog.Any("error", err))
		writeError(w, http.StatusBadGateway, "upstream provider failure")
		return
	}

	log.Warn("provider failure",
		slog.String("kind", string(perr.Kind)),
		slog.Int("upstream_status", perr.Status),
		slog.String("message", perr.Message),
	)

	switch perr.Kind {
	case provider.KindValidation:
		writeError(w, http.StatusBadRequest, perr.Message)
	case provider.KindNotFound:
		writeError(w, http.StatusNotFound, perr.Message)
	case provider.KindRateLimit, provider.KindQuota:
		writeError(w, http.StatusServiceUnavailable, "upstream provider is throttling")
	case provider.KindTimeout:
		writeError(w, http.StatusGatewayTimeout, "upstream provider timed out")
	case provider.KindConfiguration:
		writeError(w, http.StatusServiceUnavailable, "provider is not configured")
	default:
		// Authentication, Server, Unknown: the vendor relationship is broken,
		// not the caller's request.
		writeError(w, http.StatusBadGateway, "upstream provider failure")
	}
}

// pathID parses the named integer path value from a Go 1.22 route pattern.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}
