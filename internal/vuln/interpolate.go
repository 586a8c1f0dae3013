package vuln

import (
	"math"

	"github.com/sells-group/hazard-loss/internal/hazard"
)

// Policy selects how a curve behaves at and beyond its sampled range.
type Policy int

const (
	// ClampedCubic extrapolates the boundary cubic and clamps to [0,1].
	ClampedCubic Policy = iota
	// LinearTail extends the curve linearly with the boundary slope.
	LinearTail
)

// PolicyFor returns the interpolation policy used for h.
func PolicyFor(h hazard.Hazard) Policy {
	if h == hazard.Landslide {
		return LinearTail
	}
	return ClampedCubic
}

// Interpolate maps an intensity to a damage ratio in [0,1]. Missing
// intensity, an empty curve or a failed fit give Missing.
func Interpolate(c *Curve, p Policy, intensity hazard.Quantity) hazard.Quantity {
	v, ok := intensity.Get()
	if !ok || c == nil || len(c.X) == 0 || !isFinite(v) {
		return hazard.Missing
	}
	if len(c.X) == 1 {
		return clamp(c.Y[0])
	}
	if c.fit == nil {
		return hazard.Missing
	}

	n := len(c.X)
	var r float64
	switch {
	case p == LinearTail && v < c.X[0]:
		slope := (c.Y[1] - c.Y[0]) / (c.X[1] - c.X[0])
		r = c.Y[0] + slope*(v-c.X[0])
	case p == LinearTail && v > c.X[n-1]:
		slope := (c.Y[n-1] - c.Y[n-2]) / (c.X[n-1] - c.X[n-2])
		r = c.Y[n-1] + slope*(v-c.X[n-1])
	default:
		r = c.fit.at(v)
	}
	return clamp(r)
}

func clamp(r float64) hazard.Quantity {
	if math.IsNaN(r) {
		return hazard.Missing
	}
	return hazard.Known(math.Max(0, math.Min(1, r)))
}

// Ratios maps curve id to interpolated damage ratio for one intensity.
type Ratios map[CurveID]hazard.Quantity

// Get returns the ratio for id, Missing when absent.
func (r Ratios) Get(id CurveID) hazard.Quantity {
	q, ok := r[id]
	if !ok {
		return hazard.Missing
	}
	return q
}

// EnforceOrdering raises each class ratio to at least the largest known ratio
// of the classes before it in ClassOrder. A Missing or absent class takes
// that running maximum; it stays Missing only while no earlier class is
// known.
func EnforceOrdering(r Ratios) {
	floor, seen := 0.0, false
	for _, id := range ClassOrder {
		v, known := r.Get(id).Get()
		switch {
		case !known:
			if seen {
				r[id] = hazard.Known(floor)
			}
		case seen && v < floor:
			r[id] = hazard.Known(floor)
		default:
			floor, seen = v, true
		}
	}
}
