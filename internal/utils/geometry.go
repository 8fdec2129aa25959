package utils

import "math"

const (
	// RadiusOfEarthInKm is the mean Earth radius used for great-circle math.
	RadiusOfEarthInKm = 6371.0
)

// HaversineKm returns the great-circle distance between two coordinates in
// kilometers. Distances in this codebase (fix debouncing, travel budgets,
// segment lengths) are all kilometer-denominated.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(x float64) float64 { return x * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)

	return RadiusOfEarthInKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// InterpolateCoordinate returns the point a fraction ratio of the way from
// (lat1, lon1) to (lat2, lon2). Linear interpolation is sufficient at
// station-to-station scale.
func InterpolateCoordinate(lat1, lon1, lat2, lon2, ratio float64) (float64, float64) {
	return lat1 + (lat2-lat1)*ratio, lon1 + (lon2-lon1)*ratio
}

// Clamp bounds v to the inclusive range [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
