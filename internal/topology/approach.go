package topology

// DefaultApproachThreshold is the remaining-stop count at which the
// destination notification fires.
const DefaultApproachThreshold = 3

// ApproachMonitor tracks progress along a path and reports when the rider is
// within the approach threshold of the destination. It fires at most once per
// station: re-observing the same nearest waypoint stays silent until the
// nearest waypoint advances.
type ApproachMonitor struct {
	path      *Path
	threshold int
	notified  map[int]bool
}

// NewApproachMonitor creates a monitor over a path with the default
// three-stop threshold.
func NewApproachMonitor(path *Path) *ApproachMonitor {
	return &ApproachMonitor{
		path:      path,
		threshold: DefaultApproachThreshold,
		notified:  make(map[int]bool),
	}
}

// WithThreshold overrides the remaining-stop threshold.
func (m *ApproachMonitor) WithThreshold(threshold int) *ApproachMonitor {
	m.threshold = threshold
	return m
}

// Observe records the current nearest waypoint index and reports the
// remaining stop count plus whether the approach notification should fire
// now. Moving backwards (a noisy fix snapping to an earlier station) never
// re-arms stations already announced.
func (m *ApproachMonitor) Observe(nearestIdx int) (remaining int, fire bool) {
	if m.path.Len() == 0 || nearestIdx < 0 || nearestIdx >= m.path.Len() {
		return 0, false
	}

	remaining = m.path.RemainingStops(nearestIdx)

	if remaining == 0 || remaining > m.threshold {
		return remaining, false
	}
	if m.notified[nearestIdx] {
		return remaining, false
	}
	m.notified[nearestIdx] = true
	return remaining, true
}

// Reset clears announced stations, for reuse on a new journey over the same
// path.
func (m *ApproachMonitor) Reset() {
	m.notified = make(map[int]bool)
}
