// Package vuln holds vulnerability curves and turns hazard intensity into a
// damage ratio.
package vuln

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/hazard-loss/internal/hazard"
)

// CurveID names a curve within a hazard.
type CurveID string

// Construction class curves and flood floor-count variants.
const (
	CR        CurveID = "CR"
	MCF       CurveID = "MCF"
	MUR       CurveID = "MUR"
	Lightwood CurveID = "LIGHTWOOD"

	FloodOneFloor CurveID = "1"
	FloodTwoFloor CurveID = "2"
)

// ClassOrder is the required damage ordering, least to most vulnerable.
var ClassOrder = []CurveID{CR, MCF, MUR, Lightwood}

// Point is one (intensity, ratio) sample of a curve.
type Point struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
}

// Curve is a normalized vulnerability curve.
type Curve struct {
	Hazard hazard.Hazard
	ID     CurveID
	X      []float64
	Y      []float64

	fit    *spline
	fitErr error
}

// NormalizeID canonicalizes a raw curve identifier. Flood ids are floor
// counts and accept a decimal form ("1.0" becomes "1").
func NormalizeID(h hazard.Hazard, raw string) (CurveID, error) {
	id := strings.ToUpper(strings.Join(strings.Fields(raw), ""))
	if id == "" {
		return "", eris.New("vuln: empty curve id")
	}
	if h == hazard.Flood {
		f, err := strconv.ParseFloat(id, 64)
		if err != nil || f < 1 || f != math.Trunc(f) {
			return "", eris.Errorf("vuln: invalid flood curve id %q", raw)
		}
		return CurveID(strconv.Itoa(int(f))), nil
	}
	return CurveID(id), nil
}

// NewCurve sorts points by intensity, drops non-finite points and repeated
// intensities (first occurrence wins), and fits the spline. A failed fit is
// kept on the curve; interpolation through it yields Missing.
func NewCurve(h hazard.Hazard, id CurveID, pts []Point) *Curve {
	clean := make([]Point, 0, len(pts))
	for _, p := range pts {
		if isFinite(p.X) && isFinite(p.Y) {
			clean = append(clean, p)
		}
	}
	sort.SliceStable(clean, func(i, j int) bool { return clean[i].X < clean[j].X })

	c := &Curve{Hazard: h, ID: id}
	for i, p := range clean {
		if i > 0 && p.X == clean[i-1].X {
			continue
		}
		c.X = append(c.X, p.X)
		c.Y = append(c.Y, p.Y)
	}
	if len(c.X) >= 2 {
		c.fit, c.fitErr = fitSpline(c.X, c.Y)
	}
	return c
}

// Len returns the number of distinct samples.
func (c *Curve) Len() int { return len(c.X) }

// FitErr reports why the curve cannot be interpolated, if it cannot.
func (c *Curve) FitErr() error {
	if len(c.X) == 0 {
		return eris.Wrapf(errDegenerate, "vuln: %s/%s has no points", c.Hazard, c.ID)
	}
	return c.fitErr
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
