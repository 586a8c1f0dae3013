package geospatial

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/hazard-loss/internal/hazard"
)

func floodSample(id string, lon, lat float64, depth hazard.Quantity) Sample {
	s := Sample{LocationID: id, Hazard: hazard.Flood, Lon: lon, Lat: lat}
	s.Intensity[hazard.Flood100] = depth
	s.Intensity[hazard.Flood50] = depth
	s.Intensity[hazard.Flood25] = depth
	return s
}

// metres east of (lon0, 0) expressed as degrees of longitude at the equator.
func east(m float64) float64 { return m / metresPerDegLat }

func TestIndex_NearestWithinThreshold(t *testing.T) {
	ix := NewIndex(hazard.Flood, []Sample{
		floodSample("far", east(650), 0, hazard.Known(1.2)),
		floodSample("near", east(100), 0, hazard.Known(0.4)),
	})

	m, ok := ix.Nearest(hazard.Flood50, 0, 0)
	require.True(t, ok)
	assert.Equal(t, "near", m.Sample.LocationID)
	assert.Equal(t, 1, m.Index)
	assert.InDelta(t, 100, m.Distance, 0.5)
}

func TestIndex_BeyondThreshold(t *testing.T) {
	ix := NewIndex(hazard.Flood, []Sample{
		floodSample("a", east(701), 0, hazard.Known(2)),
	})
	_, ok := ix.Nearest(hazard.Flood100, 0, 0)
	assert.False(t, ok)
}

func TestIndex_SkipsMissingAndZero(t *testing.T) {
	ix := NewIndex(hazard.Flood, []Sample{
		floodSample("null", east(10), 0, hazard.Missing),
		floodSample("zero", east(20), 0, hazard.Known(0)),
		floodSample("wet", east(300), 0, hazard.Known(0.5)),
	})
	m, ok := ix.Nearest(hazard.Flood25, 0, 0)
	require.True(t, ok)
	assert.Equal(t, "wet", m.Sample.LocationID)
}

func TestIndex_TieBreaksOnLowerID(t *testing.T) {
	ix := NewIndex(hazard.Flood, []Sample{
		floodSample("b", east(50), 0, hazard.Known(1)),
		floodSample("a", east(-50), 0, hazard.Known(1)),
	})
	m, ok := ix.Nearest(hazard.Flood25, 0, 0)
	require.True(t, ok)
	assert.Equal(t, "a", m.Sample.LocationID)
}

func TestIndex_ScenarioOfOtherHazard(t *testing.T) {
	ix := NewIndex(hazard.Flood, []Sample{floodSample("a", 0, 0, hazard.Known(1))})
	_, ok := ix.Nearest(hazard.EQ500, 0, 0)
	assert.False(t, ok)
}

func TestIndex_EarthquakeThresholdAcrossCells(t *testing.T) {
	s := Sample{LocationID: "eq", Hazard: hazard.Earthquake, Lon: 106.8 + east(9000), Lat: -6.2}
	s.Intensity[hazard.EQ500] = hazard.Known(8.1)
	ix := NewIndex(hazard.Earthquake, []Sample{s})

	m, ok := ix.Nearest(hazard.EQ500, 106.8, -6.2)
	require.True(t, ok)
	assert.Less(t, m.Distance, 9500.0)
	assert.Equal(t, 9500.0, ix.Threshold())
	assert.Equal(t, hazard.Earthquake, ix.Hazard())
	assert.Equal(t, 1, ix.Len())
}

func TestIndex_PlanarAndThresholdOverride(t *testing.T) {
	s := Sample{LocationID: "p", Hazard: hazard.Ashfall, Lon: 500_000, Lat: 9_300_400}
	s.Intensity[hazard.Ash100] = hazard.Known(3)
	ix := NewIndex(hazard.Ashfall, []Sample{s}, WithMetric(Planar))

	m, ok := ix.Nearest(hazard.Ash100, 500_000, 9_300_000)
	require.True(t, ok)
	assert.InDelta(t, 400, m.Distance, 1e-9)

	ix = NewIndex(hazard.Ashfall, []Sample{s}, WithMetric(Planar), WithThreshold(300))
	_, ok = ix.Nearest(hazard.Ash100, 500_000, 9_300_000)
	assert.False(t, ok)
}

func TestSample_Eligible(t *testing.T) {
	s := floodSample("x", 0, 0, hazard.Known(1))
	assert.True(t, s.Eligible(hazard.Flood25))
	assert.False(t, s.Eligible(hazard.Slide2))
}

func TestPointRoundTrip(t *testing.T) {
	data, err := EncodePoint(NewPoint(110.4, -7.8))
	require.NoError(t, err)
	p, err := DecodePoint(data)
	require.NoError(t, err)
	assert.Equal(t, 110.4, p.X())
	assert.Equal(t, -7.8, p.Y())
	assert.Equal(t, 4326, p.SRID())

	p, err = DecodePoint(nil)
	assert.NoError(t, err)
	assert.Nil(t, p)
}

func TestMetric_Distance(t *testing.T) {
	// One degree of latitude.
	assert.InDelta(t, 111195, Geodesic.Distance(0, 0, 0, 1), 1)
	assert.Equal(t, 5.0, Planar.Distance(0, 0, 3, 4))
	assert.Equal(t, Planar, ParseMetric("planar"))
	assert.Equal(t, Geodesic, ParseMetric("geodesic"))
	assert.Equal(t, Geodesic, ParseMetric(""))
}
