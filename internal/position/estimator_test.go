package position

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metrolive.transitwatch.org/internal/clock"
	"metrolive.transitwatch.org/internal/topology"
)

// kmPerDegreeLat at the test latitude; one degree of latitude is ~111.19km.
const kmPerDegreeLat = 111.19

func latPlusKm(lat, km float64) float64 {
	return lat + km/kmPerDegreeLat
}

// Stations on a straight meridian, ~1.11km apart.
func straightPath() *topology.Path {
	return topology.PathFromWaypoints([]topology.Waypoint{
		{ID: "s1", Name: "Central", Lat: 59.4370, Lng: 24.7536},
		{ID: "s2", Name: "Harbor", Lat: 59.4470, Lng: 24.7536},
		{ID: "s3", Name: "North Gate", Lat: 59.4570, Lng: 24.7536},
		{ID: "s4", Name: "Terminus", Lat: 59.4670, Lng: 24.7536},
	})
}

func newTestEstimator(t *testing.T) (*Estimator, *clock.MockClock) {
	t.Helper()
	clk := clock.NewMockClock(time.Unix(1700000000, 0))
	e := NewEstimator(WithClock(clk))
	e.SetPath(straightPath())
	return e, clk
}

func TestOfferFixFirstAlwaysAccepted(t *testing.T) {
	e, _ := newTestEstimator(t)

	assert.True(t, e.OfferFix(59.4370, 24.7536))
	est := e.Estimate()
	assert.Equal(t, ModeGps, est.Mode)
	require.NotNil(t, est.Coordinate)
	assert.Equal(t, 59.4370, est.Coordinate.Lat)
}

func TestOfferFixDebounce(t *testing.T) {
	base := 59.4370

	t.Run("near and soon is rejected", func(t *testing.T) {
		e, clk := newTestEstimator(t)
		require.True(t, e.OfferFix(base, 24.7536))

		clk.Advance(1000 * time.Millisecond)
		assert.False(t, e.OfferFix(latPlusKm(base, 0.01), 24.7536))
	})

	t.Run("near but late is accepted", func(t *testing.T) {
		e, clk := newTestEstimator(t)
		require.True(t, e.OfferFix(base, 24.7536))

		clk.Advance(3000 * time.Millisecond)
		assert.True(t, e.OfferFix(latPlusKm(base, 0.01), 24.7536))
	})

	t.Run("far but soon is accepted", func(t *testing.T) {
		e, clk := newTestEstimator(t)
		require.True(t, e.OfferFix(base, 24.7536))

		clk.Advance(500 * time.Millisecond)
		assert.True(t, e.OfferFix(latPlusKm(base, 0.03), 24.7536))
	})
}

func TestSpeedSmoothing(t *testing.T) {
	e, clk := newTestEstimator(t)
	base := 59.4370

	require.True(t, e.OfferFix(base, 24.7536))
	assert.Zero(t, e.Estimate().SmoothedSpeedKmh)

	// 20 km/h over 2.5s covers ~13.9m
	clk.Advance(2500 * time.Millisecond)
	require.True(t, e.OfferFix(latPlusKm(base, 20.0*2.5/3600), 24.7536))
	assert.InDelta(t, 20, e.Estimate().SmoothedSpeedKmh, 0.1)

	// next sample at 30 km/h folds in with weight 0.35
	clk.Advance(2500 * time.Millisecond)
	require.True(t, e.OfferFix(latPlusKm(base, (20.0+30.0)*2.5/3600), 24.7536))
	assert.InDelta(t, 20*0.65+30*0.35, e.Estimate().SmoothedSpeedKmh, 0.2)
}

// driveToSpeed feeds two fixes so the smoothed speed lands near kmh.
func driveToSpeed(t *testing.T, e *Estimator, clk *clock.MockClock, lat float64, kmh float64) float64 {
	t.Helper()
	require.True(t, e.OfferFix(lat, 24.7536))
	clk.Advance(2500 * time.Millisecond)
	lat = latPlusKm(lat, kmh*2.5/3600)
	require.True(t, e.OfferFix(lat, 24.7536))
	require.InDelta(t, kmh, e.Estimate().SmoothedSpeedKmh, 0.1)
	return lat
}

func TestTickFreshFixStaysGps(t *testing.T) {
	e, clk := newTestEstimator(t)
	driveToSpeed(t, e, clk, 59.4370, 20)

	clk.Advance(GpsStaleAfterMs*time.Millisecond - time.Second)
	e.Tick()
	assert.Equal(t, ModeGps, e.Estimate().Mode)
	assert.Nil(t, e.Estimate().Predicted)
}

func TestTickStaleAndMovingPredicts(t *testing.T) {
	e, clk := newTestEstimator(t)
	driveToSpeed(t, e, clk, 59.4370, 20)

	clk.Advance(GpsStaleAfterMs * time.Millisecond)
	e.Tick()

	est := e.Estimate()
	assert.Equal(t, ModePredicted, est.Mode)
	require.NotNil(t, est.Predicted)
}

func TestTickPredictionWalksPath(t *testing.T) {
	e, clk := newTestEstimator(t)
	last := driveToSpeed(t, e, clk, 59.4370, 20)

	clk.Advance(GpsStaleAfterMs * time.Millisecond)
	e.Tick() // opens the prediction window at the nearest station

	// two minutes into the window at ~20 km/h is ~0.67km, inside segment one
	clk.Advance(2 * time.Minute)
	e.Tick()

	est := e.Estimate()
	require.Equal(t, ModePredicted, est.Mode)
	require.NotNil(t, est.Predicted)
	assert.Greater(t, est.Predicted.Lat, last)
	assert.Less(t, est.Predicted.Lat, 59.4470)
	assert.Equal(t, 24.7536, est.Predicted.Lng)
}

func TestTickPredictionWindowExpiry(t *testing.T) {
	e, clk := newTestEstimator(t)
	driveToSpeed(t, e, clk, 59.4370, 20)

	clk.Advance(GpsStaleAfterMs * time.Millisecond)
	e.Tick()
	require.Equal(t, ModePredicted, e.Estimate().Mode)

	clk.Advance(MaxPredictionWindowMs*time.Millisecond + time.Second)
	e.Tick()

	est := e.Estimate()
	assert.Equal(t, ModeStale, est.Mode)
	assert.Nil(t, est.Predicted, "expired predictions must be cleared")
}

func TestTickWaitingAtStationNeverPredicts(t *testing.T) {
	e, clk := newTestEstimator(t)
	driveToSpeed(t, e, clk, 59.4370, 20)
	e.SetWaitingAtStation(true)

	clk.Advance(GpsStaleAfterMs * time.Millisecond)
	e.Tick()

	est := e.Estimate()
	assert.Equal(t, ModeStale, est.Mode)
	assert.Nil(t, est.Predicted)
}

func TestTickSlowSpeedNeverPredicts(t *testing.T) {
	e, clk := newTestEstimator(t)
	driveToSpeed(t, e, clk, 59.4370, 5)

	clk.Advance(GpsStaleAfterMs * time.Millisecond)
	e.Tick()

	assert.Equal(t, ModeStale, e.Estimate().Mode)
}

func TestAcceptedFixResetsPrediction(t *testing.T) {
	e, clk := newTestEstimator(t)
	lat := driveToSpeed(t, e, clk, 59.4370, 20)

	clk.Advance(GpsStaleAfterMs * time.Millisecond)
	e.Tick()
	require.Equal(t, ModePredicted, e.Estimate().Mode)

	require.True(t, e.OfferFix(latPlusKm(lat, 0.1), 24.7536))
	est := e.Estimate()
	assert.Equal(t, ModeGps, est.Mode)
	assert.Nil(t, est.Predicted)
}

func TestTickNoFixIsNoop(t *testing.T) {
	e, _ := newTestEstimator(t)
	e.Tick()
	est := e.Estimate()
	assert.Equal(t, ModeGps, est.Mode)
	assert.Nil(t, est.Coordinate)
}

func TestSetPathResetsState(t *testing.T) {
	e, clk := newTestEstimator(t)
	driveToSpeed(t, e, clk, 59.4370, 20)

	e.SetPath(straightPath())

	est := e.Estimate()
	assert.Equal(t, ModeGps, est.Mode, "a new journey starts trusting the next fix")
	assert.Nil(t, est.Coordinate)
	assert.Zero(t, est.SmoothedSpeedKmh)
	assert.Equal(t, -1, est.NearestIndex)
}

func TestSetPathAfterStaleReturnsToGps(t *testing.T) {
	e, clk := newTestEstimator(t)
	driveToSpeed(t, e, clk, 59.4370, 5)

	// slow speed plus a stale fix leaves the estimator stale
	clk.Advance(20 * time.Second)
	e.Tick()
	require.Equal(t, ModeStale, e.Estimate().Mode)

	e.SetPath(straightPath())
	assert.Equal(t, ModeGps, e.Estimate().Mode)
}

func TestEstimateNearestIndex(t *testing.T) {
	e, _ := newTestEstimator(t)
	// a few meters from Harbor
	require.True(t, e.OfferFix(59.4471, 24.7536))
	assert.Equal(t, 1, e.Estimate().NearestIndex)
}

func TestWalkPathZeroLengthSegment(t *testing.T) {
	clk := clock.NewMockClock(time.Unix(1700000000, 0))
	e := NewEstimator(WithClock(clk))
	e.SetPath(topology.PathFromWaypoints([]topology.Waypoint{
		{ID: "a1", Lat: 59.4370, Lng: 24.7536},
		{ID: "a2", Lat: 59.4370, Lng: 24.7536},
		{ID: "b", Lat: 59.4470, Lng: 24.7536},
	}))
	driveToSpeed(t, e, clk, 59.4370, 20)

	clk.Advance(GpsStaleAfterMs * time.Millisecond)
	e.Tick()
	clk.Advance(time.Minute)
	e.Tick()

	// must not divide by the zero-length segment
	est := e.Estimate()
	assert.Equal(t, ModePredicted, est.Mode)
	require.NotNil(t, est.Predicted)
}
