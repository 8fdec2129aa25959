// Package position estimates a rider's coordinate from a noisy GPS fix
// stream. When the signal goes quiet it dead-reckons along the journey's
// station path instead of extrapolating in free 2-D space; trains cannot
// leave the track, which bounds the prediction error.
package position

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"metrolive.transitwatch.org/internal/clock"
	"metrolive.transitwatch.org/internal/topology"
	"metrolive.transitwatch.org/internal/utils"
)

// Mode reports how trustworthy the current coordinate is.
type Mode string

const (
	// ModeGps means a recent accepted fix is being used directly.
	ModeGps Mode = "gps"
	// ModePredicted means the coordinate is dead-reckoned along the path.
	ModePredicted Mode = "predicted"
	// ModeStale means the signal is lost and prediction is not justified.
	ModeStale Mode = "stale"
)

const (
	// MinMovementKm and MinUpdateIntervalMs define the fix debounce: a fix
	// is noise only when it is both nearby and soon after the previous one.
	MinMovementKm       = 0.025
	MinUpdateIntervalMs = 2500

	// GpsStaleAfterMs is how long an accepted fix stays trustworthy.
	GpsStaleAfterMs = 18000

	// MaxPredictionWindowMs bounds the dead-reckoning horizon.
	MaxPredictionWindowMs = 4 * 60 * 1000

	// Speed bounds for the travel budget. Smoothed speeds below
	// SlowSpeedCutoffKmh suppress prediction entirely.
	MinTrainSpeedKmh   = 12.0
	MaxTrainSpeedKmh   = 32.0
	SlowSpeedCutoffKmh = 8.0

	// StationDwellMs models the stop time at each station passed during a
	// predicted walk, charged as a distance-equivalent against the budget.
	StationDwellMs = 22000

	speedSmoothingOld = 0.65
	speedSmoothingNew = 0.35

	tickInterval = time.Second
)

// Coordinate is a WGS84 point.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Fix is one accepted GPS sample.
type Fix struct {
	Coordinate
	EpochMs int64
}

// Estimate is a snapshot of the estimator's current belief.
type Estimate struct {
	Mode Mode
	// Coordinate is the effective position: the predicted point when one
	// exists, otherwise the last accepted fix. Nil before any fix.
	Coordinate *Coordinate
	// Predicted is set only in ModePredicted.
	Predicted *Coordinate
	// SmoothedSpeedKmh is the exponentially smoothed ground speed.
	SmoothedSpeedKmh float64
	// NearestIndex is the path waypoint index nearest the last accepted
	// fix, or -1 when unknown.
	NearestIndex int
}

// Estimator consumes GPS fixes and produces per-second position estimates.
// All methods are safe for concurrent use.
type Estimator struct {
	clock  clock.Clock
	logger *slog.Logger

	mu               sync.Mutex
	path             *topology.Path
	lastFix          *Fix
	smoothedSpeedKmh float64
	waitingAtStation bool
	predictionStart  int64 // epoch ms, 0 when no window is open
	mode             Mode
	predicted        *Coordinate

	stopOnce sync.Once
	stopChan chan struct{}
}

// Option configures an Estimator.
type Option func(*Estimator)

// WithClock injects a clock, mainly for tests.
func WithClock(clk clock.Clock) Option {
	return func(e *Estimator) { e.clock = clk }
}

// WithLogger sets the estimator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Estimator) { e.logger = logger }
}

// NewEstimator creates an estimator with no path and no fixes.
func NewEstimator(opts ...Option) *Estimator {
	e := &Estimator{
		clock:    clock.RealClock{},
		logger:   slog.Default().With(slog.String("component", "position_estimator")),
		mode:     ModeGps,
		stopChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetPath replaces the journey path and resets all estimator state: a new
// journey invalidates fixes, speed and any open prediction window. The mode
// returns to gps, ready to trust the next fix; staleness only sets in once
// an accepted fix actually ages out.
func (e *Estimator) SetPath(path *topology.Path) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.path = path
	e.lastFix = nil
	e.smoothedSpeedKmh = 0
	e.waitingAtStation = false
	e.predictionStart = 0
	e.mode = ModeGps
	e.predicted = nil
}

// SetWaitingAtStation toggles the rider-supplied "waiting at a station" flag.
// While set, the estimator never extrapolates.
func (e *Estimator) SetWaitingAtStation(waiting bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.waitingAtStation = waiting
}

// OfferFix submits a raw GPS fix and reports whether it was accepted. A fix
// is rejected only when it is both closer than MinMovementKm to the previous
// accepted fix and earlier than MinUpdateIntervalMs after it.
func (e *Estimator) OfferFix(lat, lng float64) bool {
	now := e.clock.NowUnixMilli()

	e.mu.Lock()
	defer e.mu.Unlock()

	if prev := e.lastFix; prev != nil {
		movedKm := utils.HaversineKm(prev.Lat, prev.Lng, lat, lng)
		elapsedMs := now - prev.EpochMs
		if movedKm < MinMovementKm && elapsedMs < MinUpdateIntervalMs {
			return false
		}
		if elapsedMs > 0 {
			instantKmh := movedKm / (float64(elapsedMs) / (60 * 60 * 1000))
			if e.smoothedSpeedKmh == 0 {
				e.smoothedSpeedKmh = instantKmh
			} else {
				e.smoothedSpeedKmh = e.smoothedSpeedKmh*speedSmoothingOld + instantKmh*speedSmoothingNew
			}
		}
	}

	e.lastFix = &Fix{Coordinate: Coordinate{Lat: lat, Lng: lng}, EpochMs: now}
	e.predictionStart = 0
	e.predicted = nil
	e.mode = ModeGps
	return true
}

// Tick advances the estimator one step. Runs every second when started, but
// is exported so tests and callers can drive it directly.
func (e *Estimator) Tick() {
	now := e.clock.NowUnixMilli()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.lastFix == nil {
		return
	}

	staleForMs := now - e.lastFix.EpochMs
	if staleForMs < GpsStaleAfterMs {
		e.mode = ModeGps
		return
	}

	if e.waitingAtStation || e.smoothedSpeedKmh < SlowSpeedCutoffKmh {
		e.mode = ModeStale
		e.predicted = nil
		return
	}

	if e.predictionStart == 0 {
		e.predictionStart = now
	}
	predictionElapsed := now - e.predictionStart
	if predictionElapsed > MaxPredictionWindowMs {
		e.mode = ModeStale
		e.predicted = nil
		return
	}

	predicted, ok := e.walkPath(predictionElapsed)
	if !ok {
		e.mode = ModeStale
		e.predicted = nil
		return
	}
	e.mode = ModePredicted
	e.predicted = &predicted
}

// walkPath dead-reckons from the waypoint nearest the last fix, spending a
// clamped-speed travel budget segment by segment. Fully consumed segments
// also charge a dwell-equivalent distance for the station stop. The leftover
// budget interpolates linearly into the current segment.
func (e *Estimator) walkPath(predictionElapsedMs int64) (Coordinate, bool) {
	if e.path.Len() == 0 {
		return Coordinate{}, false
	}

	idx := e.path.Nearest(e.lastFix.Lat, e.lastFix.Lng)
	speed := utils.Clamp(e.smoothedSpeedKmh, MinTrainSpeedKmh, MaxTrainSpeedKmh)
	budgetKm := speed * (float64(predictionElapsedMs) / (60 * 60 * 1000))
	dwellKm := speed * (float64(StationDwellMs) / (60 * 60 * 1000))

	wp := e.path.At(idx)
	predicted := Coordinate{Lat: wp.Lat, Lng: wp.Lng}

	for budgetKm > 0 && idx < e.path.Len()-1 {
		segmentKm := e.path.SegmentKm(idx)

		if budgetKm <= segmentKm {
			ratio := 0.0
			if segmentKm != 0 {
				ratio = budgetKm / segmentKm
			}
			from, to := e.path.At(idx), e.path.At(idx+1)
			predicted.Lat, predicted.Lng = utils.InterpolateCoordinate(from.Lat, from.Lng, to.Lat, to.Lng, ratio)
			return predicted, true
		}

		budgetKm -= segmentKm
		budgetKm = max(0, budgetKm-dwellKm)

		idx++
		next := e.path.At(idx)
		predicted = Coordinate{Lat: next.Lat, Lng: next.Lng}
	}

	return predicted, true
}

// Estimate returns a snapshot of the current belief.
func (e *Estimator) Estimate() Estimate {
	e.mu.Lock()
	defer e.mu.Unlock()

	est := Estimate{
		Mode:             e.mode,
		SmoothedSpeedKmh: e.smoothedSpeedKmh,
		NearestIndex:     -1,
	}
	if e.predicted != nil {
		p := *e.predicted
		est.Predicted = &p
		est.Coordinate = &p
	} else if e.lastFix != nil {
		c := e.lastFix.Coordinate
		est.Coordinate = &c
	}
	if e.lastFix != nil && e.path.Len() > 0 {
		est.NearestIndex = e.path.Nearest(e.lastFix.Lat, e.lastFix.Lng)
	}
	return est
}

// Start runs the per-second tick loop until ctx is canceled or Stop is
// called.
func (e *Estimator) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.Tick()
			case <-ctx.Done():
				return
			case <-e.stopChan:
				return
			}
		}
	}()
}

// Stop terminates the tick loop. Safe to call more than once.
func (e *Estimator) Stop() {
	e.stopOnce.Do(func() { close(e.stopChan) })
}
