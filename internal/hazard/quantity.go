package hazard

import (
	"fmt"
	"math"
)

// Quantity is a value that may be missing. Missing is distinct from zero.
type Quantity struct {
	v     float64
	known bool
}

// Missing is the absent quantity.
var Missing = Quantity{}

// Known wraps a present value.
func Known(v float64) Quantity { return Quantity{v: v, known: true} }

// FromPtr converts a nullable database value.
func FromPtr(p *float64) Quantity {
	if p == nil {
		return Missing
	}
	return Known(*p)
}

// Get returns the value and whether it is present.
func (q Quantity) Get() (float64, bool) { return q.v, q.known }

// IsMissing reports whether the value is absent.
func (q Quantity) IsMissing() bool { return !q.known }

// OrZero returns the value, or 0 when missing or non-finite.
func (q Quantity) OrZero() float64 {
	if !q.known || math.IsNaN(q.v) || math.IsInf(q.v, 0) {
		return 0
	}
	return q.v
}

func (q Quantity) String() string {
	if !q.known {
		return "missing"
	}
	return fmt.Sprintf("%g", q.v)
}
