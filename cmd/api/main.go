package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"metrolive.transitwatch.org/internal/app"
	"metrolive.transitwatch.org/internal/appconf"
	"metrolive.transitwatch.org/internal/clock"
	"metrolive.transitwatch.org/internal/feed"
	"metrolive.transitwatch.org/internal/metrics"
	"metrolive.transitwatch.org/internal/restapi"
)

func main() {
	// a missing .env file is fine; real deployments set the environment directly
	_ = godotenv.Load()

	cfg := appconf.FromEnv()

	application, err := BuildApplication(cfg)
	if err != nil {
		slog.Error("failed to build application", slog.Any("error", err))
		os.Exit(1)
	}

	if err := Run(application, cfg); err != nil {
		application.Logger.Error("server error", slog.Any("error", err))
		os.Exit(1)
	}
}

// BuildApplication assembles the shared application container: logger,
// metrics, the feed client and the cache in front of it.
func BuildApplication(cfg appconf.Config) (*app.Application, error) {
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	m := metrics.New()

	client := feed.NewClient(cfg.FeedAPIKey, cfg.FeedURL,
		feed.WithMetrics(m),
		feed.WithLogger(logger.With(slog.String("component", "feed_client"))),
	)

	cache := feed.NewCache(client,
		feed.WithCacheMetrics(m),
		feed.WithCacheLogger(logger.With(slog.String("component", "feed_cache"))),
	)

	if cfg.FeedAPIKey == "" || cfg.FeedURL == "" {
		logger.Warn("feed credentials not configured; /api/gtfs-rt will return 503",
			slog.String("hint", "set GTFS_RT_API_KEY and GTFS_RT_FEED_URL"))
	}

	return &app.Application{
		Config:    cfg,
		Logger:    logger,
		FeedCache: cache,
		Clock:     clock.RealClock{},
		Metrics:   m,
	}, nil
}

func newLogger(cfg appconf.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Env == appconf.Production {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler).With(slog.String("env", cfg.Env.String()))
}

// CreateServer builds the HTTP server around the API routes.
func CreateServer(application *app.Application, cfg appconf.Config) (*http.Server, *restapi.RestAPI) {
	api := restapi.NewRestAPI(application)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      api.Routes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return srv, api
}

// Run starts the server and blocks until SIGINT or SIGTERM, then shuts down
// gracefully with a 30 second drain window.
func Run(application *app.Application, cfg appconf.Config) error {
	srv, api := CreateServer(application, cfg)
	defer api.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		application.Logger.Info("starting server",
			slog.String("addr", srv.Addr),
			slog.String("env", cfg.Env.String()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	application.Logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
