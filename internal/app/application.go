// Package app wires the application's shared dependencies into one container
// passed to the HTTP layer.
package app

import (
	"log/slog"

	"metrolive.transitwatch.org/internal/appconf"
	"metrolive.transitwatch.org/internal/clock"
	"metrolive.transitwatch.org/internal/feed"
	"metrolive.transitwatch.org/internal/metrics"
)

// Application holds the dependencies for the HTTP handlers, helpers and
// middleware: configuration, logging, the feed cache, a clock and metrics.
type Application struct {
	Config    appconf.Config
	Logger    *slog.Logger
	FeedCache *feed.Cache
	Clock     clock.Clock
	Metrics   *metrics.Metrics
}
