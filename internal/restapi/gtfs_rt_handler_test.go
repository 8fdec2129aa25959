package restapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metrolive.transitwatch.org/internal/app"
	"metrolive.transitwatch.org/internal/appconf"
	"metrolive.transitwatch.org/internal/clock"
	"metrolive.transitwatch.org/internal/feed"
	"metrolive.transitwatch.org/internal/metrics"
)

type fetchFunc func(ctx context.Context) (*feed.FeedMessage, error)

func (f fetchFunc) FetchFeed(ctx context.Context) (*feed.FeedMessage, error) { return f(ctx) }

func healthyFetcher() fetchFunc {
	return func(ctx context.Context) (*feed.FeedMessage, error) {
		return &feed.FeedMessage{
			Timestamp: 1700000000,
			Entities:  []feed.Entity{{ID: "v1", Vehicle: &feed.VehiclePosition{}}},
		}, nil
	}
}

func failingFetcher(msg string) fetchFunc {
	return func(ctx context.Context) (*feed.FeedMessage, error) {
		return nil, errors.New(msg)
	}
}

func newTestAPI(t *testing.T, fetcher feed.Fetcher, mutate ...func(*appconf.Config)) (*RestAPI, *clock.MockClock) {
	t.Helper()
	clk := clock.NewMockClock(time.Unix(1700000000, 0))
	cfg := appconf.Config{
		Port:       4000,
		Env:        appconf.Test,
		ApiKeys:    []string{},
		RateLimit:  100,
		FeedAPIKey: "secret",
		FeedURL:    "https://transit.example.com/gtfs/VehiclePositions.pb",
	}
	for _, m := range mutate {
		m(&cfg)
	}

	application := &app.Application{
		Config:    cfg,
		Logger:    slog.Default(),
		FeedCache: feed.NewCache(fetcher, feed.WithCacheClock(clk)),
		Clock:     clk,
		Metrics:   metrics.New(),
	}
	api := NewRestAPI(application)
	t.Cleanup(api.Shutdown)
	return api, clk
}

func doRequest(api *RestAPI, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	api.Routes().ServeHTTP(w, req)
	return w
}

func TestGtfsRTHandlerMissThenHit(t *testing.T) {
	api, _ := newTestAPI(t, healthyFetcher())

	w := doRequest(api, "/api/gtfs-rt")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	assert.Equal(t, "public, max-age=15", w.Header().Get("Cache-Control"))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp feed.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(1700000000), resp.FeedTimestamp)
	assert.Len(t, resp.Vehicles, 1)
	assert.False(t, resp.Stale)

	w = doRequest(api, "/api/gtfs-rt")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
}

func TestGtfsRTHandlerStaleServe(t *testing.T) {
	healthy := true
	fetcher := fetchFunc(func(ctx context.Context) (*feed.FeedMessage, error) {
		if healthy {
			return healthyFetcher()(ctx)
		}
		return nil, errors.New("upstream down")
	})
	api, clk := newTestAPI(t, fetcher)

	doRequest(api, "/api/gtfs-rt")
	healthy = false
	clk.Advance(feed.DefaultTTL + time.Second)

	w := doRequest(api, "/api/gtfs-rt")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "STALE", w.Header().Get("X-Cache"))

	var resp feed.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Stale)
	assert.Equal(t, "upstream down", resp.Error)
	assert.Len(t, resp.Vehicles, 1, "stale responses keep the last snapshot")
}

func TestGtfsRTHandlerColdFailure(t *testing.T) {
	api, _ := newTestAPI(t, failingFetcher("upstream down"))

	w := doRequest(api, "/api/gtfs-rt")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "UNAVAILABLE", w.Header().Get("X-Cache"))
	// failures must never be cached by clients
	assert.Equal(t, "no-cache, no-store, must-revalidate", w.Header().Get("Cache-Control"))

	var resp feed.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "upstream down", resp.Error)
	assert.NotNil(t, resp.TripUpdates)
	assert.Empty(t, resp.TripUpdates)
}

func TestGtfsRTHandlerMissingConfig(t *testing.T) {
	client := feed.NewClient("", "")
	api, _ := newTestAPI(t, client, func(c *appconf.Config) {
		c.FeedAPIKey = ""
		c.FeedURL = ""
	})

	w := doRequest(api, "/api/gtfs-rt")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp feed.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error, "GTFS_RT_API_KEY and GTFS_RT_FEED_URL must be set")
}

func TestMetricsEndpointRequiresKeyWhenConfigured(t *testing.T) {
	api, _ := newTestAPI(t, healthyFetcher(), func(c *appconf.Config) {
		c.ApiKeys = []string{"ops-key"}
	})

	w := doRequest(api, "/metrics")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(api, "/metrics?key=ops-key")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "metrolive_")
}
