package hazard

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThreshold(t *testing.T) {
	assert.Equal(t, 9500.0, Earthquake.Threshold())
	assert.Equal(t, 700.0, Flood.Threshold())
	assert.Equal(t, 700.0, Landslide.Threshold())
	assert.Equal(t, 550.0, Ashfall.Threshold())
}

func TestScenarios_ByHazard(t *testing.T) {
	assert.Equal(t, []Scenario{EQ500, EQ250, EQ100}, Earthquake.Scenarios())
	assert.Equal(t, []Scenario{Flood100, Flood50, Flood25}, Flood.Scenarios())
	assert.Equal(t, []Scenario{Ash250, Ash100, Ash50}, Ashfall.Scenarios())
	assert.Equal(t, []Scenario{Slide5, Slide2}, Landslide.Scenarios())
}

func TestWeights(t *testing.T) {
	tests := []struct {
		s    Scenario
		want float64
	}{
		{EQ500, 0.002}, {EQ250, 0.004}, {EQ100, 0.010},
		{Flood100, 0.01}, {Flood50, 0.02}, {Flood25, 0.04},
		{Ash250, 0.004}, {Ash100, 0.01}, {Ash50, 0.02},
		{Slide5, 0.2}, {Slide2, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.s.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.s.Weight())
		})
	}
}

func TestColumns(t *testing.T) {
	assert.Equal(t, "direct_loss_flood_50", Flood50.DirectLossColumn())
	assert.Equal(t, "aal_earthquake_500_bmn", EQ500.AALColumn("bmn"))
	assert.Equal(t, "aal_landslide_2_total", Slide2.AALColumn("total"))
	assert.Equal(t, "kpa_250", Ash250.IntensityField())
}

func TestLookup(t *testing.T) {
	s, ok := Lookup(Flood, 25)
	require.True(t, ok)
	assert.Equal(t, Flood25, s)

	_, ok = Lookup(Flood, 500)
	assert.False(t, ok)
}

func TestParse(t *testing.T) {
	h, err := Parse("Longsor")
	require.NoError(t, err)
	assert.Equal(t, Landslide, h)

	h, err = Parse("gunungberapi")
	require.NoError(t, err)
	assert.Equal(t, Ashfall, h)

	_, err = Parse("tsunami")
	assert.Error(t, err)
}

func TestValues_Weighted(t *testing.T) {
	var v Values
	v[EQ100] = 1000
	v[Slide2] = 10
	w := v.Weighted()
	assert.InDelta(t, 10.0, w[EQ100], 1e-12)
	assert.InDelta(t, 5.0, w[Slide2], 1e-12)
	assert.Equal(t, 0.0, w[Flood25])

	d := v.Sub(v)
	assert.Equal(t, Values{}, d)
	assert.Equal(t, 2000.0, v.Add(v)[EQ100])
}

func TestQuantity(t *testing.T) {
	v, ok := Missing.Get()
	assert.False(t, ok)
	assert.Equal(t, 0.0, v)
	assert.True(t, Missing.IsMissing())
	assert.Equal(t, "missing", Missing.String())

	q := Known(0)
	assert.False(t, q.IsMissing())

	assert.Equal(t, 0.0, Known(math.NaN()).OrZero())
	assert.Equal(t, 0.0, Known(math.Inf(1)).OrZero())
	assert.Equal(t, 2.5, Known(2.5).OrZero())

	f := 3.0
	assert.Equal(t, Known(3), FromPtr(&f))
	assert.True(t, FromPtr(nil).IsMissing())
}

func TestHazard_JSON(t *testing.T) {
	b, err := json.Marshal([]Hazard{Ashfall, Landslide})
	require.NoError(t, err)
	assert.JSONEq(t, `["ashfall","landslide"]`, string(b))

	var got []Hazard
	require.NoError(t, json.Unmarshal([]byte(`["flood","gempa"]`), &got))
	assert.Equal(t, []Hazard{Flood, Earthquake}, got)

	var bad Hazard
	assert.Error(t, json.Unmarshal([]byte(`"tsunami"`), &bad))
	_, err = json.Marshal(Hazard(9))
	assert.Error(t, err)
}
