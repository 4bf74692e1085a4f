package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/listing-search/pkg/health"
	"github.com/utafrali/listing-search/pkg/middleware"
)

// RouterConfig holds the HTTP surface settings. CacheMaxAge is in seconds.
type RouterConfig struct {
	ServiceName    string
	RequestTimeout time.Duration
	CORSOrigins    []string
	CacheMaxAge    int
	PprofEnabled   bool
	PprofAllowlist []string
}

// NewRouter creates a chi router with all search service routes registered.
func NewRouter(
	cfg RouterConfig,
	searchHandler *SearchHandler,
	adminHandler *AdminHandler,
	healthHandler *health.Handler,
	logger *slog.Logger,
) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing(cfg.ServiceName))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.PrometheusMetrics(cfg.ServiceName))
	r.Use(middleware.CORS(middleware.CORSConfig{AllowedOrigins: cfg.CORSOrigins}))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(cfg.RequestTimeout))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	if cfg.PprofEnabled {
		middleware.RegisterPprof(r, cfg.PprofAllowlist, logger)
	}

	r.Route("/api/v1/search", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.CacheControl(cfg.CacheMaxAge))
			r.Get("/", searchHandler.Search)
			r.Get("/suggest", searchHandler.Suggest)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.CacheControl(0))
			r.Put("/listings/{id}", adminHandler.IndexListing)
			r.Delete("/listings/{id}", adminHandler.RemoveListing)
			r.Post("/reindex", adminHandler.Reindex)
			r.Get("/reindex", adminHandler.ListReindexRuns)
			r.Get("/reindex/{runID}", adminHandler.GetReindexRun)
			r.Get("/index", adminHandler.IndexStats)
			r.Post("/index", adminHandler.EnsureIndex)
			r.Delete("/index", adminHandler.DropIndex)
		})
	})

	return r
}
