package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/opencamphq/campd/internal/provider"
	"github.com/opencamphq/campd/internal/search"
	"github.com/opencamphq/campd/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [slog.Default] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// MetricsRegistry is the Prometheus registry the server registers its
	// metrics with and serves on GET /metrics. A fresh registry is created
	// when nil so tests stay hermetic.
	MetricsRegistry *prometheus.Registry
}

// Searcher is the slice of the camp similarity index the handlers use.
// *search.Index satisfies it; tests inject a fake. A nil Searcher disables
// the /api/camps/search route wiring (503 on query).
type Searcher interface {
	IndexCamp(ctx context.Context, c store.Camp) error
	RemoveCamp(ctx context.Context, campID int64) error
	Search(ctx context.Context, query string, topK int) ([]search.Match, error)
}

// Server is the campd HTTP server: registration CRUD plus the provider-backed
// document, upload, and search surfaces.
type Server struct {
	// store persists roles, camps, attendees, and documents.
	store store.RegistrationStore
	// providers hands out the optional external capabilities.
	providers *provider.Registry
	// search is the camp similarity index, or nil when unconfigured.
	search Searcher
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
	// metrics holds the Prometheus instruments owned by this server.
	metrics *serverMetrics
}

// roleRequest is the JSON body for POST/PUT /api/roles.
type roleRequest struct {
	// Name is the unique role name.
	Name string `json:"name"`
	// Description is an optional explanation.
	Description string `json:"description,omitempty"`
}

// campRequest is the JSON body for POST/PUT /api/camps.
type campRequest struct {
	// Name is the camp's display name.
	Name string `json:"name"`
	// Description is free text, also fed to the similarity index.
	Description string `json:"description,omitempty"`
	// Location is where the camp takes place.
	Location string `json:"location,omitempty"`
	// Capacity is the maximum number of attendees.
	Capacity int `json:"capacity"`
	// StartDate and EndDate bound the camp, as YYYY-MM-DD strings.
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
}

// attendeeRequest is the JSON body for POST /api/camps/{id}/attendees.
type attendeeRequest struct {
	// Name is the attendee's full name.
	Name string `json:"name"`
	// Email identifies the attendee; unique per camp.
	Email string `json:"email"`
	// RoleID is the optional role for this registration.
	RoleID int64 `json:"role_id,omitempty"`
}

// presignRequest is the JSON body for POST /api/uploads/presign.
type presignRequest struct {
	// Key is the object key the upload will land under.
	Key string `json:"key"`
	// ContentType is the MIME type the uploader will send.
	ContentType string `json:"content_type,omitempty"`
	// TTLSeconds bounds the URL's validity (default 900, max 3600).
	TTLSeconds int `json:"ttl_seconds,omitempty"`
}

// documentResponse is the JSON shape for uploaded documents.
type documentResponse struct {
	store.Document
	// IngestStatus is the terminal vector-store ingestion status for uploads
	// that went through the vector-store provider.
	IngestStatus string `json:"ingest_status,omitempty"`
}

// providersResponse is the JSON body for GET /api/providers.
type providersResponse struct {
	// Available lists the provider types that are configured and constructed.
	Available []provider.Type `json:"available"`
	// Providers maps every known type to its availability.
	Providers map[provider.Type]bool `json:"providers"`
}

// errorResponse is the JSON error body for all API failures.
type errorResponse struct {
	// Error is the human-readable failure description.
	Error string `json:"error"`
}
