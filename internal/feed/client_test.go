package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
)

func minimalFeedBytes(t *testing.T) []byte {
	t.Helper()
	return encodeFeed(t, &gtfsrt.FeedMessage{
		Header: feedHeader(1700000000),
		Entity: []*gtfsrt.FeedEntity{{
			Id:      proto.String("vp-1"),
			Vehicle: &gtfsrt.VehiclePosition{StopId: proto.String("stop-7")},
		}},
	})
}

func TestFetchFeedMissingConfig(t *testing.T) {
	_, err := NewClient("", "").FetchFeed(context.Background())
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, []string{"GTFS_RT_API_KEY", "GTFS_RT_FEED_URL"}, cfgErr.Missing)
	assert.Contains(t, err.Error(), "GTFS_RT_API_KEY and GTFS_RT_FEED_URL must be set")

	_, err = NewClient("secret", "").FetchFeed(context.Background())
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, []string{"GTFS_RT_FEED_URL"}, cfgErr.Missing)
}

func TestFetchFeedSuccess(t *testing.T) {
	feedBytes := minimalFeedBytes(t)
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		assert.Equal(t, "application/octet-stream", r.Header.Get("Accept"))
		assert.Equal(t, "secret", r.URL.Query().Get("key"))
		w.Write(feedBytes)
	}))
	defer srv.Close()

	client := NewClient("secret", srv.URL+"/gtfs/VehiclePositions.pb")
	msg, err := client.FetchFeed(context.Background())
	require.NoError(t, err)
	require.Len(t, msg.Entities, 1)
	assert.Equal(t, int32(1), requests.Load())
}

func TestFetchFeedAPIKeyPlaceholder(t *testing.T) {
	feedBytes := minimalFeedBytes(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "s3cr3t&", r.URL.Query().Get("token"))
		w.Write(feedBytes)
	}))
	defer srv.Close()

	client := NewClient("s3cr3t&", srv.URL+"/gtfs?token={API_KEY}")
	_, err := client.FetchFeed(context.Background())
	require.NoError(t, err)
}

func TestFetchFeedFallsBackOn404(t *testing.T) {
	feedBytes := minimalFeedBytes(t)
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if r.URL.Path != "/api/realtime/VehiclePositions.pb" {
			http.NotFound(w, r)
			return
		}
		w.Write(feedBytes)
	}))
	defer srv.Close()

	client := NewClient("secret", srv.URL+"/api/realtime/VehiclePosition")
	msg, err := client.FetchFeed(context.Background())
	require.NoError(t, err)
	assert.Len(t, msg.Entities, 1)
	assert.Equal(t, []string{"/api/realtime/VehiclePosition", "/api/realtime/VehiclePositions.pb"}, paths)
}

func TestFetchFeedBareRealtimeBase(t *testing.T) {
	feedBytes := minimalFeedBytes(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/realtime/VehiclePositions.pb" {
			http.NotFound(w, r)
			return
		}
		w.Write(feedBytes)
	}))
	defer srv.Close()

	client := NewClient("secret", srv.URL+"/api/realtime")
	msg, err := client.FetchFeed(context.Background())
	require.NoError(t, err)
	assert.Len(t, msg.Entities, 1)
}

func TestFetchFeedAbortsOnAuthFailure(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	// the legacy path gives two candidates, but a 401 must not try the second
	client := NewClient("wrong", srv.URL+"/api/realtime/VehiclePosition")
	_, err := client.FetchFeed(context.Background())

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Len(t, fetchErr.Attempts, 1)
	assert.Equal(t, http.StatusUnauthorized, fetchErr.Attempts[0].Status)
	assert.Contains(t, err.Error(), "401 Unauthorized @ ")
	assert.Equal(t, int32(1), requests.Load())
}

func TestFetchFeedTransportErrorAborts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	client := NewClient("secret", srv.URL+"/api/realtime/VehiclePosition")
	_, err := client.FetchFeed(context.Background())

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Len(t, fetchErr.Attempts, 1)
	assert.Zero(t, fetchErr.Attempts[0].Status)
}

func TestFetchFeedDecodeFailureNoFallback(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write([]byte{0x0a, 0x40}) // truncated length-delimited field
	}))
	defer srv.Close()

	client := NewClient("secret", srv.URL+"/api/realtime/VehiclePosition")
	_, err := client.FetchFeed(context.Background())

	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, int32(1), requests.Load(), "malformed bytes must not trigger candidate fallback")
}

func TestBuildFeedURLCandidates(t *testing.T) {
	tests := []struct {
		name    string
		feedURL string
		want    []string
	}{
		{
			name:    "canonical url passes through",
			feedURL: "https://transit.example.com/gtfs/VehiclePositions.pb",
			want:    []string{"https://transit.example.com/gtfs/VehiclePositions.pb?key=k"},
		},
		{
			name:    "legacy vehicle position path",
			feedURL: "https://transit.example.com/api/realtime/vehicleposition",
			want: []string{
				"https://transit.example.com/api/realtime/vehicleposition?key=k",
				"https://transit.example.com/api/realtime/VehiclePositions.pb?key=k",
			},
		},
		{
			name:    "legacy trip update feed path",
			feedURL: "https://transit.example.com/api/realtime/TripUpdateFeed",
			want: []string{
				"https://transit.example.com/api/realtime/TripUpdateFeed?key=k",
				"https://transit.example.com/api/realtime/TripUpdates.pb?key=k",
			},
		},
		{
			name:    "bare realtime base gets vehicle positions default",
			feedURL: "https://transit.example.com/api/realtime/",
			want: []string{
				"https://transit.example.com/api/realtime/?key=k",
				"https://transit.example.com/api/realtime/VehiclePositions.pb?key=k",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildFeedURLCandidates(tt.feedURL, "k")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRewriteLegacyFeedPathFirstOccurrenceOnly(t *testing.T) {
	assert.Equal(t,
		"https://x.test/Alerts.pb/Alert",
		rewriteLegacyFeedPath("https://x.test/Alert/Alert"))
	assert.Equal(t,
		"https://x.test/feed/TripUpdates.pb",
		rewriteLegacyFeedPath("https://x.test/feed/TripUpdate"))
}

func TestBuildFeedURLKeepsExistingKey(t *testing.T) {
	got, err := buildFeedURL("https://x.test/feed?key=k&other=1", "k")
	require.NoError(t, err)
	assert.Equal(t, "https://x.test/feed?key=k&other=1", got)
}
