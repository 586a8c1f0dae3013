package geospatial

import "math"

// Metric selects how distances between coordinates are measured.
type Metric int

const (
	// Geodesic treats coordinates as lon/lat degrees and returns metres.
	Geodesic Metric = iota
	// Planar treats coordinates as a projected CRS in metres.
	Planar
)

// ParseMetric maps a config value to a Metric; unknown values are geodesic.
func ParseMetric(s string) Metric {
	if s == "planar" {
		return Planar
	}
	return Geodesic
}

const (
	earthRadius     = 6371008.8
	metresPerDegLat = earthRadius * math.Pi / 180
)

// Distance returns the distance between two coordinates under m.
func (m Metric) Distance(lon1, lat1, lon2, lat2 float64) float64 {
	if m == Planar {
		return math.Hypot(lon2-lon1, lat2-lat1)
	}
	return haversine(lon1, lat1, lon2, lat2)
}

func haversine(lon1, lat1, lon2, lat2 float64) float64 {
	const rad = math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadius * math.Asin(math.Min(1, math.Sqrt(a)))
}
