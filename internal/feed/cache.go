package feed

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"metrolive.transitwatch.org/internal/clock"
	"metrolive.transitwatch.org/internal/logging"
	"metrolive.transitwatch.org/internal/metrics"
)

// DefaultTTL matches the upstream feed cadence of roughly 15 to 30 seconds.
const DefaultTTL = 15 * time.Second

// CacheResult is exposed to clients via the X-Cache response header.
type CacheResult string

const (
	CacheHit         CacheResult = "HIT"
	CacheMiss        CacheResult = "MISS"
	CacheStale       CacheResult = "STALE"
	CacheUnavailable CacheResult = "UNAVAILABLE"
)

// Fetcher obtains a decoded feed. Implemented by Client; faked in tests.
type Fetcher interface {
	FetchFeed(ctx context.Context) (*FeedMessage, error)
}

// Response is a snapshot plus staleness markers. Stale and Error are only
// set when a fetch failed and a previous snapshot is being served instead.
type Response struct {
	Snapshot
	Stale bool   `json:"stale,omitempty"`
	Error string `json:"error,omitempty"`
}

// Cache holds the single most recent shaped snapshot and refreshes it at most
// once per TTL. Concurrent refreshes on an expired entry are coalesced into
// one upstream fetch; every waiter shares its outcome.
type Cache struct {
	fetcher Fetcher
	clock   clock.Clock
	ttl     time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics

	flight singleflight.Group

	mu        sync.RWMutex
	snapshot  *Snapshot
	fetchedAt time.Time
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithCacheTTL overrides the freshness window.
func WithCacheTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) { c.ttl = ttl }
}

// WithCacheClock injects a clock, mainly for tests.
func WithCacheClock(clk clock.Clock) CacheOption {
	return func(c *Cache) { c.clock = clk }
}

// WithCacheLogger sets the cache logger.
func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *Cache) { c.logger = logger }
}

// WithCacheMetrics attaches cache instrumentation.
func WithCacheMetrics(m *metrics.Metrics) CacheOption {
	return func(c *Cache) { c.metrics = m }
}

// NewCache creates a cache around a fetcher. The cache starts cold; nothing
// is fetched until the first Get.
func NewCache(fetcher Fetcher, opts ...CacheOption) *Cache {
	c := &Cache{
		fetcher: fetcher,
		clock:   clock.RealClock{},
		ttl:     DefaultTTL,
		logger:  slog.Default().With(slog.String("component", "feed_cache")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the current snapshot, its cache disposition, and the HTTP
// status the caller should serve it with. The contract:
//
//   - fresh entry: HIT, 200
//   - expired or cold, fetch succeeds: MISS, 200
//   - fetch fails with a previous snapshot: STALE, 200, markers set
//   - fetch fails cold: UNAVAILABLE, 503, error plus empty collections
func (c *Cache) Get(ctx context.Context) (*Response, CacheResult, int) {
	if snap, ok := c.fresh(); ok {
		c.countResult(CacheHit)
		return &Response{Snapshot: *snap}, CacheHit, http.StatusOK
	}

	v, err, _ := c.flight.Do("feed", func() (any, error) {
		// a concurrent refresh may have landed while this call queued
		if snap, ok := c.fresh(); ok {
			return snap, nil
		}
		return c.refresh(ctx)
	})
	if err == nil {
		c.countResult(CacheMiss)
		return &Response{Snapshot: *(v.(*Snapshot))}, CacheMiss, http.StatusOK
	}

	logging.LogError(c.logger, "feed refresh failed", err)

	c.mu.RLock()
	stale := c.snapshot
	c.mu.RUnlock()
	if stale != nil {
		c.countResult(CacheStale)
		return &Response{Snapshot: *stale, Stale: true, Error: err.Error()}, CacheStale, http.StatusOK
	}

	c.countResult(CacheUnavailable)
	return &Response{
		Snapshot: Snapshot{
			TripUpdates: []TripUpdateView{},
			Vehicles:    []VehicleView{},
			Alerts:      []AlertView{},
		},
		Error: err.Error(),
	}, CacheUnavailable, http.StatusServiceUnavailable
}

// Peek returns the cached snapshot and its fetch time without triggering a
// refresh. Used by health reporting; returns nil and a zero time when cold.
func (c *Cache) Peek() (*Snapshot, time.Time) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot, c.fetchedAt
}

func (c *Cache) fresh() (*Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snapshot == nil {
		return nil, false
	}
	if c.clock.Now().Sub(c.fetchedAt) >= c.ttl {
		return nil, false
	}
	return c.snapshot, true
}

func (c *Cache) refresh(ctx context.Context) (*Snapshot, error) {
	start := c.clock.Now()

	msg, err := c.fetcher.FetchFeed(ctx)
	if err != nil {
		return nil, err
	}

	snap := Shape(msg, start.Unix())
	c.mu.Lock()
	c.snapshot = snap
	c.fetchedAt = start
	c.mu.Unlock()

	logging.LogOperation(c.logger, "feed_refresh",
		slog.Duration("duration", c.clock.Now().Sub(start)),
		slog.Int("trip_updates", snap.Counts.TripUpdates),
		slog.Int("vehicles", snap.Counts.Vehicles),
		slog.Int("alerts", snap.Counts.Alerts))
	return snap, nil
}

func (c *Cache) countResult(result CacheResult) {
	if c.metrics != nil {
		c.metrics.CacheResultsTotal.WithLabelValues(string(result)).Inc()
	}
}
