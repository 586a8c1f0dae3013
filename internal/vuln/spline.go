package vuln

import (
	"errors"
	"math"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"
)

// spline is a not-a-knot cubic spline stored as knot second derivatives.
type spline struct {
	x, y []float64
	m    []float64
}

var errDegenerate = eris.New("vuln: degenerate curve")

// fitSpline builds a not-a-knot cubic spline through strictly increasing x.
// Two points give a straight line, three give the interpolating parabola.
func fitSpline(x, y []float64) (*spline, error) {
	n := len(x)
	if n != len(y) || n < 2 {
		return nil, eris.Wrap(errDegenerate, "vuln: need at least two points")
	}
	h := make([]float64, n-1)
	s := make([]float64, n-1)
	for i := 0; i < n-1; i++ {
		h[i] = x[i+1] - x[i]
		if !(h[i] > 0) {
			return nil, eris.Wrapf(errDegenerate, "vuln: knots not increasing at %d", i)
		}
		s[i] = (y[i+1] - y[i]) / h[i]
	}

	m := make([]float64, n)
	switch n {
	case 2:
	case 3:
		c := 2 * (s[1] - s[0]) / (h[0] + h[1])
		m[0], m[1], m[2] = c, c, c
	default:
		a := mat.NewDense(n, n, nil)
		b := mat.NewVecDense(n, nil)

		a.Set(0, 0, -h[1])
		a.Set(0, 1, h[0]+h[1])
		a.Set(0, 2, -h[0])
		for i := 1; i < n-1; i++ {
			a.Set(i, i-1, h[i-1])
			a.Set(i, i, 2*(h[i-1]+h[i]))
			a.Set(i, i+1, h[i])
			b.SetVec(i, 6*(s[i]-s[i-1]))
		}
		a.Set(n-1, n-3, -h[n-2])
		a.Set(n-1, n-2, h[n-3]+h[n-2])
		a.Set(n-1, n-1, -h[n-3])

		var sol mat.VecDense
		if err := sol.SolveVec(a, b); err != nil {
			var cond mat.Condition
			if !errors.As(err, &cond) {
				return nil, eris.Wrap(errDegenerate, err.Error())
			}
		}
		for i := range m {
			m[i] = sol.AtVec(i)
			if math.IsNaN(m[i]) || math.IsInf(m[i], 0) {
				return nil, eris.Wrap(errDegenerate, "vuln: non-finite spline coefficient")
			}
		}
	}

	return &spline{x: x, y: y, m: m}, nil
}

// at evaluates the spline. Outside the knot range the boundary cubic is
// extended.
func (sp *spline) at(v float64) float64 {
	n := len(sp.x)
	i := segment(sp.x, v)
	if i > n-2 {
		i = n - 2
	}
	x0, x1 := sp.x[i], sp.x[i+1]
	h := x1 - x0
	a := x1 - v
	b := v - x0
	return sp.m[i]*a*a*a/(6*h) +
		sp.m[i+1]*b*b*b/(6*h) +
		(sp.y[i]/h-sp.m[i]*h/6)*a +
		(sp.y[i+1]/h-sp.m[i+1]*h/6)*b
}

// segment returns the index of the interval containing v, clamped to the
// first interval for values below the range.
func segment(x []float64, v float64) int {
	lo, hi := 0, len(x)-1
	if v <= x[0] {
		return 0
	}
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if x[mid] <= v {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo
}
