package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"metrolive.transitwatch.org/internal/logging"
	"metrolive.transitwatch.org/internal/metrics"
)

// maxBodySize caps upstream response reads. Real feeds are well under a
// megabyte; anything larger is a misbehaving endpoint.
const maxBodySize = 25 * 1024 * 1024

// newFeedHTTPClient builds a dedicated HTTP client for feed fetching with
// explicit timeouts and transport limits, avoiding the pitfalls of
// http.DefaultClient (no timeout, shared global state). The transport is
// cloned from http.DefaultTransport to preserve its defaults
// (ProxyFromEnvironment, DialContext, HTTP/2, keepalives).
func newFeedHTTPClient() *http.Client {
	var transport *http.Transport
	if t, ok := http.DefaultTransport.(*http.Transport); ok {
		transport = t.Clone()
	} else {
		transport = &http.Transport{}
	}
	transport.MaxIdleConns = 50
	transport.MaxIdleConnsPerHost = 10
	transport.IdleConnTimeout = 90 * time.Second
	transport.TLSHandshakeTimeout = 10 * time.Second
	transport.ExpectContinueTimeout = 1 * time.Second

	return &http.Client{
		Timeout:   10 * time.Second,
		Transport: transport,
	}
}

// Client fetches and decodes the upstream GTFS-RT feed. It resolves the
// configured URL into an ordered candidate list and tries them one-shot, in
// order; this is not a retry loop.
type Client struct {
	httpClient *http.Client
	apiKey     string
	feedURL    string
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithMetrics attaches fetch instrumentation.
func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithHTTPClient overrides the underlying HTTP client, mainly for tests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a feed client. Missing configuration is not an error
// here: it is reported per fetch, so operators can fix the environment
// without a restart loop masking the real problem.
func NewClient(apiKey, feedURL string, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: newFeedHTTPClient(),
		apiKey:     apiKey,
		feedURL:    feedURL,
		logger:     slog.Default().With(slog.String("component", "feed_client")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchFeed obtains the freshest raw feed bytes and decodes them.
// Candidates are tried strictly in order; a 404 advances to the next
// candidate, any other failure aborts immediately so auth and rate-limit
// errors are never masked by alternate paths.
func (c *Client) FetchFeed(ctx context.Context) (*FeedMessage, error) {
	if c.apiKey == "" || c.feedURL == "" {
		var missing []string
		if c.apiKey == "" {
			missing = append(missing, "GTFS_RT_API_KEY")
		}
		if c.feedURL == "" {
			missing = append(missing, "GTFS_RT_FEED_URL")
		}
		return nil, &ConfigError{Missing: missing}
	}

	candidates, err := buildFeedURLCandidates(c.feedURL, c.apiKey)
	if err != nil {
		return nil, err
	}

	var attempts []FetchAttempt
	for _, candidate := range candidates {
		msg, attempt, fatal := c.fetchOne(ctx, candidate)
		if msg != nil {
			return msg, nil
		}
		if fatal != nil {
			c.countFetch("failure")
			return nil, fatal
		}
		attempts = append(attempts, *attempt)
		if attempt.Status != 0 && attempt.Status != http.StatusNotFound {
			break
		}
		if attempt.Status == 0 {
			// transport-level failure: no point trying alternate paths
			break
		}
	}

	c.countFetch("failure")
	return nil, &FetchError{Attempts: attempts}
}

// fetchOne returns exactly one of: a decoded message, a non-nil attempt
// describing a candidate failure, or a fatal error that must abort the cycle.
func (c *Client) fetchOne(ctx context.Context, candidate string) (*FeedMessage, *FetchAttempt, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, candidate, nil)
	if err != nil {
		return nil, &FetchAttempt{URL: candidate, Reason: err.Error()}, nil
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Accept", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &FetchAttempt{URL: candidate, Reason: err.Error()}, nil
	}
	defer logging.SafeCloseWithLogging(resp.Body, c.logger, "feed_response_body")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchAttempt{URL: candidate, Status: resp.StatusCode, Reason: http.StatusText(resp.StatusCode)}, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, &FetchAttempt{URL: candidate, Reason: err.Error()}, nil
	}
	if int64(len(body)) > maxBodySize {
		return nil, &FetchAttempt{URL: candidate, Reason: fmt.Sprintf("response exceeds size limit of %d bytes", maxBodySize)}, nil
	}

	msg, err := DecodeFeed(body)
	if err != nil {
		// malformed bytes abort the whole cycle; no candidate fallback
		c.countDecodeFailure()
		return nil, nil, err
	}

	if c.metrics != nil {
		c.metrics.FeedFetchDuration.Observe(time.Since(start).Seconds())
		c.metrics.FeedEntitiesDecoded.Set(float64(len(msg.Entities)))
	}
	c.countFetch("success")
	return msg, nil, nil
}

func (c *Client) countFetch(outcome string) {
	if c.metrics != nil {
		c.metrics.FeedFetchesTotal.WithLabelValues(outcome).Inc()
	}
}

func (c *Client) countDecodeFailure() {
	if c.metrics != nil {
		c.metrics.FeedDecodeFailures.Inc()
	}
}

// Legacy path aliases seen in older provider docs and snippets. Order
// matters: the Feed-suffixed form must be rewritten before its prefix.
var legacyPathRewrites = []struct {
	pattern     *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`(?i)VehiclePositionFeed\b`), "VehiclePositions.pb"},
	{regexp.MustCompile(`(?i)VehiclePosition\b`), "VehiclePositions.pb"},
	{regexp.MustCompile(`(?i)TripUpdateFeed\b`), "TripUpdates.pb"},
	{regexp.MustCompile(`(?i)TripUpdate\b`), "TripUpdates.pb"},
	{regexp.MustCompile(`(?i)AlertFeed\b`), "Alerts.pb"},
	{regexp.MustCompile(`(?i)Alert\b`), "Alerts.pb"},
}

var realtimeBaseRE = regexp.MustCompile(`(?i)^https?://[^/]+/api/realtime/?$`)

// buildFeedURLCandidates generates the ordered, deduplicated candidate list:
// the URL as configured, the URL with legacy path aliases corrected, and a
// VehiclePositions.pb default when only a bare realtime base was configured.
func buildFeedURLCandidates(feedURL, apiKey string) ([]string, error) {
	seen := make(map[string]bool)
	var candidates []string
	add := func(u string) {
		if !seen[u] {
			seen[u] = true
			candidates = append(candidates, u)
		}
	}

	primary, err := buildFeedURL(feedURL, apiKey)
	if err != nil {
		return nil, err
	}
	add(primary)

	rewritten, err := buildFeedURL(rewriteLegacyFeedPath(feedURL), apiKey)
	if err != nil {
		return nil, err
	}
	add(rewritten)

	if realtimeBaseRE.MatchString(feedURL) {
		base := strings.TrimRight(feedURL, "/")
		fallback, err := buildFeedURL(base+"/VehiclePositions.pb", apiKey)
		if err != nil {
			return nil, err
		}
		add(fallback)
	}

	return candidates, nil
}

func rewriteLegacyFeedPath(feedURL string) string {
	for _, rw := range legacyPathRewrites {
		feedURL = replaceFirst(rw.pattern, feedURL, rw.replacement)
	}
	return feedURL
}

func replaceFirst(re *regexp.Regexp, s, replacement string) string {
	loc := re.FindStringIndex(s)
	if loc == nil {
		return s
	}
	return s[:loc[0]] + replacement + s[loc[1]:]
}

// buildFeedURL injects the API key into a feed URL: a literal {API_KEY}
// placeholder if present, otherwise a `key` query parameter, overwriting only
// when the existing value differs.
func buildFeedURL(feedURL, apiKey string) (string, error) {
	if strings.Contains(feedURL, "{API_KEY}") {
		return strings.ReplaceAll(feedURL, "{API_KEY}", url.QueryEscape(apiKey)), nil
	}

	u, err := url.Parse(feedURL)
	if err != nil {
		return "", fmt.Errorf("invalid feed URL %q: %w", feedURL, err)
	}

	q := u.Query()
	if q.Get("key") != apiKey {
		q.Set("key", apiKey)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
