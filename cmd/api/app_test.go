package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metrolive.transitwatch.org/internal/appconf"
)

func testConfig(port int) appconf.Config {
	return appconf.Config{
		Port:       port,
		Env:        appconf.Test,
		ApiKeys:    []string{"test"},
		RateLimit:  100,
		FeedAPIKey: "secret",
		FeedURL:    "https://transit.example.com/gtfs/VehiclePositions.pb",
	}
}

func TestBuildApplication(t *testing.T) {
	cfg := testConfig(4000)

	application, err := BuildApplication(cfg)

	require.NoError(t, err, "BuildApplication should not return an error")
	assert.NotNil(t, application, "Application should not be nil")
	assert.NotNil(t, application.Logger, "Logger should be initialized")
	assert.NotNil(t, application.FeedCache, "Feed cache should be initialized")
	assert.NotNil(t, application.Metrics, "Metrics should be initialized")
	assert.NotNil(t, application.Clock, "Clock should be initialized")
	assert.Equal(t, cfg, application.Config, "Config should match input")
}

func TestBuildApplicationWithoutFeedCredentials(t *testing.T) {
	cfg := testConfig(4000)
	cfg.FeedAPIKey = ""
	cfg.FeedURL = ""

	application, err := BuildApplication(cfg)

	require.NoError(t, err, "missing feed credentials are a runtime condition, not a startup failure")
	assert.NotNil(t, application.FeedCache)
}

func TestCreateServer(t *testing.T) {
	cfg := testConfig(8080)

	application, err := BuildApplication(cfg)
	require.NoError(t, err)

	srv, api := CreateServer(application, cfg)
	defer api.Shutdown()

	assert.NotNil(t, srv, "Server should not be nil")
	assert.Equal(t, ":8080", srv.Addr, "Server address should match port")
	assert.NotNil(t, srv.Handler, "Server handler should be set")
	assert.Equal(t, time.Minute, srv.IdleTimeout, "IdleTimeout should be 1 minute")
	assert.Equal(t, 5*time.Second, srv.ReadTimeout, "ReadTimeout should be 5 seconds")
	assert.Equal(t, 10*time.Second, srv.WriteTimeout, "WriteTimeout should be 10 seconds")
}

func TestCreateServerHandlerResponds(t *testing.T) {
	cfg := testConfig(8080)

	application, err := BuildApplication(cfg)
	require.NoError(t, err)

	srv, api := CreateServer(application, cfg)
	defer api.Shutdown()

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()

	srv.Handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code, "health endpoint should respond")
}

func TestServerShutsDownCleanly(t *testing.T) {
	cfg := testConfig(0)

	application, err := BuildApplication(cfg)
	require.NoError(t, err)

	srv, api := CreateServer(application, cfg)
	defer api.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err = srv.Shutdown(shutdownCtx)
	assert.NoError(t, err, "Server shutdown should succeed")
}
