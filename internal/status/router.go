// Package status serves a small local HTTP surface reporting liveness, the
// reminder loop's counters and upstream provider health.
package status

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/trainreminder/trainreminder/internal/provider/resilience"
	"github.com/trainreminder/trainreminder/internal/transit"
)

// DefaultRateLimit is the number of requests per minute allowed per client IP.
const DefaultRateLimit = 60

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version   string
	BuildTime string
	Logger    zerolog.Logger
	Route     transit.Route
	Loop      LoopStats
	Registry  *resilience.Registry

	// RateLimit overrides DefaultRateLimit.
	RateLimit int

	// Now defaults to time.Now.
	Now func() time.Time
}

// NewRouter creates the status router.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	limit := cfg.RateLimit
	if limit == 0 {
		limit = DefaultRateLimit
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	r.Use(RequestID)
	r.Use(Logger(cfg.Logger))
	r.Use(Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(RateLimit(limit, time.Minute))

	h := &Handler{
		version:   cfg.Version,
		buildTime: cfg.BuildTime,
		route:     cfg.Route,
		loop:      cfg.Loop,
		registry:  cfg.Registry,
		now:       now,
	}

	r.Get("/health", h.HealthCheck)
	r.Get("/status", h.SystemStatus)

	return r
}
