// Package topology models the ordered station path of a journey. A Path is a
// fixed sequence of waypoints along the track; position estimation walks it
// one-dimensionally because trains cannot leave the rails.
package topology

import (
	"fmt"

	"github.com/twpayne/go-polyline"

	"metrolive.transitwatch.org/internal/utils"
)

// Waypoint is one station (or shape point) on a journey path.
type Waypoint struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

// Path is an ordered, immutable sequence of waypoints. Callers must not
// mutate it after construction; estimators share it across goroutines.
type Path struct {
	waypoints []Waypoint
}

// PathFromWaypoints builds a path from explicit waypoints, in travel order.
func PathFromWaypoints(waypoints []Waypoint) *Path {
	wps := make([]Waypoint, len(waypoints))
	copy(wps, waypoints)
	return &Path{waypoints: wps}
}

// PathFromPolyline decodes a Google encoded polyline into a path. Names, when
// provided, are assigned to waypoints in order; extra names are ignored and
// missing ones left empty.
func PathFromPolyline(encoded string, names []string) (*Path, error) {
	coords, rest, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, fmt.Errorf("invalid polyline: %w", err)
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("invalid polyline: %d trailing bytes", len(rest))
	}

	wps := make([]Waypoint, len(coords))
	for i, c := range coords {
		wps[i] = Waypoint{
			ID:  fmt.Sprintf("wp-%d", i),
			Lat: c[0],
			Lng: c[1],
		}
		if i < len(names) {
			wps[i].Name = names[i]
		}
	}
	return &Path{waypoints: wps}, nil
}

// Len returns the number of waypoints.
func (p *Path) Len() int {
	if p == nil {
		return 0
	}
	return len(p.waypoints)
}

// At returns the waypoint at index i.
func (p *Path) At(i int) Waypoint {
	return p.waypoints[i]
}

// Waypoints returns a copy of the path's waypoints.
func (p *Path) Waypoints() []Waypoint {
	wps := make([]Waypoint, len(p.waypoints))
	copy(wps, p.waypoints)
	return wps
}

// Nearest returns the index of the waypoint closest to the coordinate by
// great-circle distance, or -1 for an empty path. Ties keep the earliest
// index, which favors upstream stations when a fix sits between two.
func (p *Path) Nearest(lat, lng float64) int {
	if p.Len() == 0 {
		return -1
	}
	best := 0
	bestKm := utils.HaversineKm(lat, lng, p.waypoints[0].Lat, p.waypoints[0].Lng)
	for i := 1; i < len(p.waypoints); i++ {
		km := utils.HaversineKm(lat, lng, p.waypoints[i].Lat, p.waypoints[i].Lng)
		if km < bestKm {
			best = i
			bestKm = km
		}
	}
	return best
}

// SegmentKm returns the length of the segment starting at waypoint i.
func (p *Path) SegmentKm(i int) float64 {
	a, b := p.waypoints[i], p.waypoints[i+1]
	return utils.HaversineKm(a.Lat, a.Lng, b.Lat, b.Lng)
}

// RemainingStops returns how many stops remain after the given index,
// inclusive of the final destination. Used for approach alerting: three or
// fewer remaining triggers the destination notification.
func (p *Path) RemainingStops(idx int) int {
	if p.Len() == 0 || idx < 0 {
		return 0
	}
	if idx >= p.Len() {
		return 0
	}
	return p.Len() - 1 - idx
}
