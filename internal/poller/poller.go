// Package poller implements the client side of the feed API: a fixed-interval
// polling state machine over the cache-backed endpoint, with manual refresh,
// a display countdown and derived queries over the last snapshot.
package poller

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"metrolive.transitwatch.org/internal/clock"
	"metrolive.transitwatch.org/internal/feed"
	"metrolive.transitwatch.org/internal/logging"
)

// Status is the poller's connection state.
type Status string

const (
	StatusIdle        Status = "idle"
	StatusLoading     Status = "loading"
	StatusLive        Status = "live"
	StatusStale       Status = "stale"
	StatusError       Status = "error"
	StatusUnavailable Status = "unavailable"
)

// PollInterval matches the server cache TTL; polling faster only produces
// cache hits.
const PollInterval = 15 * time.Second

// unknownTimingSentinel sorts arrivals without any timing to the end.
const unknownTimingSentinel = 999

// Client polls the feed endpoint and holds the last received snapshot.
type Client struct {
	endpoint   string
	httpClient *http.Client
	clock      clock.Clock
	logger     *slog.Logger
	interval   time.Duration

	ctx context.Context

	mu        sync.Mutex
	status    Status
	snapshot  *feed.Response
	updatedAt time.Time
	timer     *time.Timer
	nextAt    time.Time
	countdown int
	started   bool

	stopOnce sync.Once
	stopChan chan struct{}
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithClock injects a clock.
func WithClock(clk clock.Clock) Option {
	return func(c *Client) { c.clock = clk }
}

// WithLogger sets the poller logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithInterval overrides the poll interval, mainly for tests.
func WithInterval(d time.Duration) Option {
	return func(c *Client) { c.interval = d }
}

// NewClient creates an idle poller against the given endpoint URL.
func NewClient(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		clock:      clock.RealClock{},
		logger:     slog.Default().With(slog.String("component", "poller")),
		interval:   PollInterval,
		status:     StatusIdle,
		countdown:  int(PollInterval / time.Second),
		stopChan:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start issues an immediate poll, then polls every interval. The countdown
// updates once per second until Stop or ctx cancellation.
func (c *Client) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.ctx = ctx
	c.mu.Unlock()

	go c.countdownLoop(ctx)
	c.poll(ctx)
}

// Refresh cancels any pending scheduled poll, polls immediately, and
// reschedules the interval from now. Safe to call concurrently; the timer is
// always cancelled before a new one is armed.
func (c *Client) Refresh() {
	c.mu.Lock()
	ctx := c.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.mu.Unlock()

	c.poll(ctx)
}

// Stop cancels the pending poll and the countdown. Safe to call more than
// once.
func (c *Client) Stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.mu.Unlock()
}

// poll runs one request cycle and arms the next timer.
func (c *Client) poll(ctx context.Context) {
	c.mu.Lock()
	c.status = StatusLoading
	c.mu.Unlock()

	resp, err := c.fetchOnce(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		logging.LogError(c.logger, "poll failed", err)
		if c.snapshot != nil {
			c.status = StatusStale
		} else {
			c.status = StatusUnavailable
		}
	} else {
		c.snapshot = resp
		c.updatedAt = c.clock.Now()
		switch {
		case resp.Stale:
			c.status = StatusStale
		case resp.Error != "":
			c.status = StatusError
		default:
			c.status = StatusLive
		}
	}

	c.scheduleLocked()
}

// scheduleLocked arms the next poll. Callers must hold mu; any existing timer
// is cancelled first so two schedules can never coexist.
func (c *Client) scheduleLocked() {
	select {
	case <-c.stopChan:
		return
	default:
	}

	if c.timer != nil {
		c.timer.Stop()
	}
	c.nextAt = c.clock.Now().Add(c.interval)
	c.timer = time.AfterFunc(c.interval, func() {
		c.mu.Lock()
		ctx := c.ctx
		c.mu.Unlock()
		if ctx == nil {
			ctx = context.Background()
		}
		if ctx.Err() != nil {
			return
		}
		c.poll(ctx)
	})
}

func (c *Client) fetchOnce(ctx context.Context) (*feed.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Cache-Control", "no-store")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer logging.SafeCloseWithLogging(httpResp.Body, c.logger, "poll_response_body")

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}

	// a 503 with a decodable error payload still counts as a response; only
	// undecodable bodies are treated as transport failures
	var resp feed.Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) countdownLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.recomputeCountdown()
		case <-ctx.Done():
			return
		case <-c.stopChan:
			return
		}
	}
}

// recomputeCountdown derives the display countdown from the scheduled next
// poll rather than decrementing, so missed ticks self-correct. Floored at
// zero once nextAt has passed.
func (c *Client) recomputeCountdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	remaining := float64(c.nextAt.Sub(c.clock.Now())) / float64(time.Second)
	c.countdown = int(math.Max(0, math.Round(remaining)))
}

// Status returns the current state.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Snapshot returns the last received response, or nil. Consumers must treat
// it as read-only.
func (c *Client) Snapshot() *feed.Response {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// LastUpdated reports when the last response was received.
func (c *Client) LastUpdated() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updatedAt
}

// Countdown returns the seconds until the next scheduled poll, for display
// only.
func (c *Client) Countdown() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.countdown
}

// ArrivalsForStop flattens every trip update's stop-time updates for the
// given stop id and sorts them soonest first. Entries without any timing sort
// last; the sort is stable so feed order breaks ties.
func (c *Client) ArrivalsForStop(stopID string) []feed.StopTimeUpdateView {
	c.mu.Lock()
	snap := c.snapshot
	c.mu.Unlock()

	if snap == nil {
		return []feed.StopTimeUpdateView{}
	}

	results := []feed.StopTimeUpdateView{}
	for _, trip := range snap.TripUpdates {
		for _, stu := range trip.StopTimeUpdates {
			if stu.StopID == stopID {
				results = append(results, stu)
			}
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return sortKey(results[i]) < sortKey(results[j])
	})
	return results
}

func sortKey(stu feed.StopTimeUpdateView) int {
	if stu.Departure != nil && stu.Departure.MinutesAway != nil {
		return *stu.Departure.MinutesAway
	}
	if stu.Arrival != nil && stu.Arrival.MinutesAway != nil {
		return *stu.Arrival.MinutesAway
	}
	return unknownTimingSentinel
}

// VehiclesForRoute selects vehicles whose route id equals the argument or
// starts with it, which matches branch and suffixed route ids.
func (c *Client) VehiclesForRoute(routeID string) []feed.VehicleView {
	c.mu.Lock()
	snap := c.snapshot
	c.mu.Unlock()

	if snap == nil {
		return []feed.VehicleView{}
	}

	results := []feed.VehicleView{}
	for _, v := range snap.Vehicles {
		if v.RouteID == routeID || strings.HasPrefix(v.RouteID, routeID) {
			results = append(results, v)
		}
	}
	return results
}
