package restapi

import (
	"time"
)

// StaleDetector decides when a cached feed snapshot is old enough to flag in
// health reporting. The default threshold is generous next to the 15s cache
// TTL; tripping it means refreshes have been failing for a while.
type StaleDetector struct {
	threshold time.Duration
}

func NewStaleDetector() *StaleDetector {
	return &StaleDetector{
		threshold: 2 * time.Minute,
	}
}

func (d *StaleDetector) WithThreshold(threshold time.Duration) *StaleDetector {
	d.threshold = threshold
	return d
}

// Check reports whether a snapshot fetched at the given time is stale. A zero
// time means no snapshot exists yet and counts as stale.
func (d *StaleDetector) Check(fetchedAt time.Time, currentTime time.Time) bool {
	if fetchedAt.IsZero() {
		return true
	}
	return currentTime.Sub(fetchedAt) > d.threshold
}

// Age returns how old the snapshot is at currentTime.
func (d *StaleDetector) Age(fetchedAt time.Time, currentTime time.Time) time.Duration {
	if fetchedAt.IsZero() {
		return d.threshold + 1
	}
	return currentTime.Sub(fetchedAt)
}
