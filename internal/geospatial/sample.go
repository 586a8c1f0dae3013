package geospatial

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/hazard-loss/internal/hazard"
)

// Sample is one hazard grid location with its intensity per scenario.
// Only the scenarios of Hazard are meaningful.
type Sample struct {
	LocationID string
	Hazard     hazard.Hazard
	Lon        float64
	Lat        float64
	Intensity  [hazard.NumScenarios]hazard.Quantity
}

// Eligible reports whether the sample can be associated for scenario s:
// it must belong to the scenario's hazard and carry a known, non-zero value.
func (s *Sample) Eligible(sc hazard.Scenario) bool {
	if sc.Hazard() != s.Hazard {
		return false
	}
	v, ok := s.Intensity[sc].Get()
	return ok && v != 0
}

// Point returns the sample location as a lon/lat point.
func (s *Sample) Point() *geom.Point {
	return NewPoint(s.Lon, s.Lat)
}

// NewPoint builds a lon/lat point with SRID 4326.
func NewPoint(lon, lat float64) *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{lon, lat}).SetSRID(4326)
}

// EncodePoint marshals a point to little-endian EWKB for PostGIS.
func EncodePoint(p *geom.Point) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	data, err := ewkb.Marshal(p, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "geospatial: encode point")
	}
	return data, nil
}

// DecodePoint parses an EWKB point as returned by PostGIS.
func DecodePoint(data []byte) (*geom.Point, error) {
	if len(data) == 0 {
		return nil, nil
	}
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return nil, eris.Wrap(err, "geospatial: decode point")
	}
	p, ok := g.(*geom.Point)
	if !ok {
		return nil, eris.Errorf("geospatial: expected point, got %T", g)
	}
	return p, nil
}
