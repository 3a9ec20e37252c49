package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"cityrater/internal/platform/metrics"
	"cityrater/internal/platform/middleware"
	rlmodels "cityrater/internal/ratelimit/models"
	dErrors "cityrater/pkg/domain-errors"
	"cityrater/pkg/platform/httputil"
	"cityrater/pkg/platform/middleware/metadata"
	"cityrater/pkg/platform/middleware/requesttime"
)

// VoteRoutes registers the vote endpoints split by rate-limit class.
type VoteRoutes interface {
	RegisterWrites(r chi.Router)
	RegisterReads(r chi.Router)
}

// Routes registers one group of endpoints.
type Routes interface {
	Register(r chi.Router)
}

// RateLimiter wraps handlers with a per-class budget.
type RateLimiter interface {
	RateLimit(class rlmodels.EndpointClass) func(http.Handler) http.Handler
}

// Deps is everything the router mounts.
type Deps struct {
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	Tokens         middleware.JWTValidator
	Limiter        RateLimiter
	Votes          VoteRoutes
	Rankings       Routes
	Identity       Routes
	Health         *HealthHandler
	RequestTimeout time.Duration
	CORSOrigins    []string
}

// NewRouter wires the middleware chain and every public endpoint.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(d.Logger))
	r.Use(middleware.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(middleware.Logger(d.Logger))
	r.Use(middleware.LatencyMiddleware(d.Metrics))
	r.Use(middleware.CORS(d.CORSOrigins))
	if d.RequestTimeout > 0 {
		r.Use(middleware.Timeout(d.RequestTimeout))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "route not found"))
	})

	if d.Health != nil {
		r.Get("/health", d.Health.ServeHTTP)
	}
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(api chi.Router) {
		api.Use(middleware.ContentTypeJSON)
		api.Use(middleware.OptionalAuth(d.Tokens, d.Logger))

		api.Group(func(reads chi.Router) {
			reads.Use(d.Limiter.RateLimit(rlmodels.ClassRead))
			d.Votes.RegisterReads(reads)
			d.Rankings.Register(reads)
		})
		api.Group(func(writes chi.Router) {
			writes.Use(d.Limiter.RateLimit(rlmodels.ClassWrite))
			d.Votes.RegisterWrites(writes)
		})
		api.Group(func(auth chi.Router) {
			auth.Use(d.Limiter.RateLimit(rlmodels.ClassAuth))
			d.Identity.Register(auth)
		})
	})
	return r
}
