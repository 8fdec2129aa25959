// Package restapi exposes the HTTP surface of the feed service: the shaped
// GTFS-RT snapshot endpoint, health, and the middleware stack around them.
package restapi

import (
	"net/http"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"metrolive.transitwatch.org/internal/app"
)

// RestAPI bundles the application container with HTTP-layer state.
type RestAPI struct {
	*app.Application

	rateLimiter *RateLimitMiddleware
}

// NewRestAPI creates the API around an application container.
func NewRestAPI(application *app.Application) *RestAPI {
	return &RestAPI{
		Application: application,
		rateLimiter: NewRateLimitMiddleware(
			application.Config.RateLimit,
			time.Second,
			application.Config.ApiKeys,
			application.Clock,
		),
	}
}

// Routes returns the fully assembled handler: routes plus the middleware
// chain (request id, logging, metrics, rate limit, gzip).
func (api *RestAPI) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /api/gtfs-rt", CacheControlMiddleware(15, http.HandlerFunc(api.gtfsRTHandler)))
	mux.HandleFunc("GET /api/health", api.healthHandler)

	if api.Metrics != nil {
		var metricsHandler http.Handler = promhttp.HandlerFor(api.Metrics.Registry, promhttp.HandlerOpts{})
		if len(api.Config.ApiKeys) > 0 {
			metricsHandler = api.requireAPIKey(metricsHandler)
		}
		mux.Handle("GET /metrics", metricsHandler)
	}

	var handler http.Handler = mux
	handler = api.rateLimiter.Handler()(handler)
	handler = MetricsHandler(api.Metrics)(handler)
	handler = NewRequestLoggingMiddleware(api.Logger)(handler)
	handler = RequestIDMiddleware(handler)
	handler = gzhttp.GzipHandler(handler)
	return handler
}

// Shutdown releases background resources held by the API layer.
func (api *RestAPI) Shutdown() {
	api.rateLimiter.Stop()
}
