package vuln

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/hazard-loss/internal/hazard"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func known(t *testing.T, q hazard.Quantity) float64 {
	t.Helper()
	v, ok := q.Get()
	require.True(t, ok, "expected known quantity")
	return v
}

func TestNormalizeID(t *testing.T) {
	tests := []struct {
		h    hazard.Hazard
		raw  string
		want CurveID
	}{
		{hazard.Earthquake, "cr", CR},
		{hazard.Ashfall, "Light Wood", Lightwood},
		{hazard.Landslide, " mur ", MUR},
		{hazard.Flood, "1.0", FloodOneFloor},
		{hazard.Flood, "2", FloodTwoFloor},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := NormalizeID(tt.h, tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := NormalizeID(hazard.Flood, "1.5")
	assert.Error(t, err)
	_, err = NormalizeID(hazard.Earthquake, "  ")
	assert.Error(t, err)
}

func TestNewCurve_SortsAndDedups(t *testing.T) {
	c := NewCurve(hazard.Earthquake, CR, []Point{
		{X: 3, Y: 0.3},
		{X: 1, Y: 0.1},
		{X: 3, Y: 0.9},
		{X: 2, Y: 0.2},
	})
	assert.Equal(t, []float64{1, 2, 3}, c.X)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, c.Y)
	assert.NoError(t, c.FitErr())
	assert.Equal(t, 3, c.Len())
}

func TestInterpolate_MissingIntensity(t *testing.T) {
	c := NewCurve(hazard.Earthquake, CR, []Point{{5, 0}, {9, 1}})
	assert.True(t, Interpolate(c, ClampedCubic, hazard.Missing).IsMissing())
}

func TestInterpolate_EmptyAndSinglePoint(t *testing.T) {
	empty := NewCurve(hazard.Earthquake, CR, nil)
	assert.True(t, Interpolate(empty, ClampedCubic, hazard.Known(5)).IsMissing())
	assert.Error(t, empty.FitErr())

	single := NewCurve(hazard.Landslide, MUR, []Point{{2, 1.4}})
	assert.Equal(t, 1.0, known(t, Interpolate(single, LinearTail, hazard.Known(0))))
}

func TestInterpolate_ClampedCubicBounds(t *testing.T) {
	c := NewCurve(hazard.Earthquake, MUR, []Point{
		{5, 0}, {6, 0.05}, {7, 0.2}, {8, 0.5}, {9, 0.8}, {10, 0.95},
	})
	for _, v := range []float64{-10, 0, 5, 6.5, 8.2, 10, 14, 100} {
		r := known(t, Interpolate(c, ClampedCubic, hazard.Known(v)))
		assert.GreaterOrEqual(t, r, 0.0, "v=%v", v)
		assert.LessOrEqual(t, r, 1.0, "v=%v", v)
	}
	assert.InDelta(t, 0.2, known(t, Interpolate(c, ClampedCubic, hazard.Known(7))), 1e-9)
}

func TestInterpolate_LinearTail(t *testing.T) {
	c := NewCurve(hazard.Landslide, MUR, []Point{{1, 0.1}, {2, 0.3}, {3, 0.6}})

	assert.InDelta(t, 0.0, known(t, Interpolate(c, LinearTail, hazard.Known(0.5))), 1e-12)
	assert.Equal(t, 0.0, known(t, Interpolate(c, LinearTail, hazard.Known(0))))
	assert.InDelta(t, 0.75, known(t, Interpolate(c, LinearTail, hazard.Known(3.5))), 1e-12)
	assert.InDelta(t, 0.3, known(t, Interpolate(c, LinearTail, hazard.Known(2))), 1e-12)
	assert.Equal(t, 1.0, known(t, Interpolate(c, LinearTail, hazard.Known(10))))
}

func TestInterpolate_DegenerateFitIsMissing(t *testing.T) {
	c := &Curve{Hazard: hazard.Earthquake, ID: CR, X: []float64{1, 2}, Y: []float64{0, 1}, fitErr: errDegenerate}
	assert.True(t, Interpolate(c, ClampedCubic, hazard.Known(1.5)).IsMissing())
}

func TestPolicyFor(t *testing.T) {
	assert.Equal(t, LinearTail, PolicyFor(hazard.Landslide))
	assert.Equal(t, ClampedCubic, PolicyFor(hazard.Earthquake))
	assert.Equal(t, ClampedCubic, PolicyFor(hazard.Flood))
	assert.Equal(t, ClampedCubic, PolicyFor(hazard.Ashfall))
}

func TestEnforceOrdering(t *testing.T) {
	r := Ratios{
		CR:        hazard.Known(0.5),
		MCF:       hazard.Known(0.3),
		MUR:       hazard.Missing,
		Lightwood: hazard.Known(0.4),
	}
	EnforceOrdering(r)
	assert.Equal(t, 0.5, known(t, r[CR]))
	assert.Equal(t, 0.5, known(t, r[MCF]))
	assert.Equal(t, 0.5, known(t, r[MUR]))
	assert.Equal(t, 0.5, known(t, r[Lightwood]))
}

func TestEnforceOrdering_MissingTakesRunningMax(t *testing.T) {
	r := Ratios{
		CR:        hazard.Known(0.4),
		MCF:       hazard.Missing,
		MUR:       hazard.Known(0.4),
		Lightwood: hazard.Missing,
	}
	EnforceOrdering(r)
	assert.Equal(t, 0.4, known(t, r[MCF]))
	assert.Equal(t, 0.4, known(t, r[Lightwood]))
}

func TestEnforceOrdering_AbsentClassTakesRunningMax(t *testing.T) {
	r := Ratios{CR: hazard.Known(0.2), MCF: hazard.Known(0.6)}
	EnforceOrdering(r)
	assert.Equal(t, 0.6, known(t, r[MUR]))
	assert.Equal(t, 0.6, known(t, r[Lightwood]))
}

func TestEnforceOrdering_LeadingMissingStaysMissing(t *testing.T) {
	r := Ratios{CR: hazard.Missing, MCF: hazard.Known(0.3), MUR: hazard.Known(0.1)}
	EnforceOrdering(r)
	assert.True(t, r[CR].IsMissing())
	assert.Equal(t, 0.3, known(t, r[MUR]))
	assert.Equal(t, 0.3, known(t, r[Lightwood]))
}

func TestEnforceOrdering_AllMissingUnchanged(t *testing.T) {
	r := Ratios{CR: hazard.Missing, MCF: hazard.Missing}
	EnforceOrdering(r)
	assert.True(t, r[CR].IsMissing())
	assert.True(t, r[MCF].IsMissing())
	_, ok := r[MUR]
	assert.False(t, ok)
}

func TestEnforceOrdering_AlreadyOrdered(t *testing.T) {
	r := Ratios{CR: hazard.Known(0.1), MCF: hazard.Known(0.2), MUR: hazard.Known(0.3), Lightwood: hazard.Known(0.9)}
	EnforceOrdering(r)
	assert.Equal(t, 0.1, known(t, r[CR]))
	assert.Equal(t, 0.9, known(t, r[Lightwood]))
}

func TestCurveStore_EvaluateDegenerateReferenceTakesEarlierClass(t *testing.T) {
	s := NewCurveStore()
	s.Replace(hazard.Ashfall, []*Curve{
		NewCurve(hazard.Ashfall, CR, []Point{{0, 0}, {10, 0.8}}),
		NewCurve(hazard.Ashfall, Lightwood, []Point{{5, 0.5}}),
	})

	r := s.Evaluate(hazard.Ashfall, hazard.Known(5))
	cr := known(t, r.Get(CR))
	assert.InDelta(t, 0.4, cr, 1e-12)
	assert.InDelta(t, cr, known(t, r.Get(Lightwood)), 1e-12)
}

func TestCurveStore_Evaluate(t *testing.T) {
	s := NewCurveStore()
	s.Replace(hazard.Earthquake, []*Curve{
		NewCurve(hazard.Earthquake, CR, []Point{{5, 0}, {10, 0.8}}),
		NewCurve(hazard.Earthquake, MCF, []Point{{5, 0}, {10, 0.4}}),
		NewCurve(hazard.Earthquake, MUR, []Point{{5, 0}, {10, 0.6}}),
		NewCurve(hazard.Earthquake, Lightwood, []Point{{5, 0}, {10, 1}}),
	})

	assert.True(t, s.Has(hazard.Earthquake))
	assert.False(t, s.Has(hazard.Flood))
	assert.Equal(t, []CurveID{CR, Lightwood, MCF, MUR}, s.IDs(hazard.Earthquake))

	r := s.Evaluate(hazard.Earthquake, hazard.Known(7.5))
	cr := known(t, r.Get(CR))
	mcf := known(t, r.Get(MCF))
	mur := known(t, r.Get(MUR))
	lw := known(t, r.Get(Lightwood))
	assert.InDelta(t, 0.4, cr, 1e-12)
	assert.LessOrEqual(t, cr, mcf)
	assert.LessOrEqual(t, mcf, mur)
	assert.LessOrEqual(t, mur, lw)

	assert.True(t, r.Get("NOPE").IsMissing())

	c, ok := s.Get(hazard.Earthquake, CR)
	require.True(t, ok)
	assert.Equal(t, CR, c.ID)
}

func TestCurveStore_FloodNotReordered(t *testing.T) {
	s := NewCurveStore()
	s.Replace(hazard.Flood, []*Curve{
		NewCurve(hazard.Flood, FloodOneFloor, []Point{{0, 0}, {2, 0.8}}),
		NewCurve(hazard.Flood, FloodTwoFloor, []Point{{0, 0}, {2, 0.4}}),
	})
	r := s.Evaluate(hazard.Flood, hazard.Known(1))
	assert.InDelta(t, 0.4, known(t, r.Get(FloodOneFloor)), 1e-12)
	assert.InDelta(t, 0.2, known(t, r.Get(FloodTwoFloor)), 1e-12)
}
