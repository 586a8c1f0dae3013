// Package asset describes insured buildings and their replacement value.
package asset

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// ErrInvalidClass is returned when an asset id carries no known class prefix.
var ErrInvalidClass = eris.New("asset: unknown class prefix")

// Class is the portfolio class an asset is aggregated under.
type Class int

const (
	BMN Class = iota
	FS
	FD

	// NumClasses is the number of portfolio classes.
	NumClasses = 3
)

// Classes lists every class in column order.
var Classes = [NumClasses]Class{BMN, FS, FD}

var classCodes = [NumClasses]string{"BMN", "FS", "FD"}

func (c Class) String() string {
	if c < 0 || int(c) >= NumClasses {
		return "UNKNOWN"
	}
	return classCodes[c]
}

// Suffix is the lowercase code used in aggregate column names.
func (c Class) Suffix() string { return strings.ToLower(c.String()) }

// ParseClass resolves a class code, case-insensitively.
func ParseClass(code string) (Class, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	for i, cc := range classCodes {
		if cc == code {
			return Class(i), nil
		}
	}
	return 0, eris.Wrapf(ErrInvalidClass, "asset: class %q", code)
}

// ClassFromID decodes the class from the id prefix before the first "_".
func ClassFromID(id string) (Class, error) {
	prefix, _, found := strings.Cut(id, "_")
	if !found {
		return 0, eris.Wrapf(ErrInvalidClass, "asset: id %q has no class prefix", id)
	}
	return ParseClass(prefix)
}

// Asset is a building exposed to hazards. The engine only reads assets.
type Asset struct {
	ID         string
	Location   *geom.Point
	FloorArea  float64
	FloorCount int
	Province   string
	City       string
	UnitCost   float64
	Taxonomy   string
}

// Class decodes the asset's portfolio class.
func (a *Asset) Class() (Class, error) {
	return ClassFromID(a.ID)
}

var floorCoefficients = [...]float64{1.000, 1.090, 1.120, 1.135, 1.162, 1.197, 1.236, 1.265}

// FloorCoefficient returns the multi-storey cost multiplier. Floor counts
// are clipped to [1, 8].
func FloorCoefficient(floors int) float64 {
	return floorCoefficients[clip(floors, 1, len(floorCoefficients))-1]
}

// ExposureValue is floor area × unit cost × floor coefficient.
func (a *Asset) ExposureValue() float64 {
	return a.FloorArea * a.UnitCost * FloorCoefficient(a.FloorCount)
}

// FloodFloors is the floor count used to pick a flood curve: 1 or 2.
func (a *Asset) FloodFloors() int {
	return clip(a.FloorCount, 1, 2)
}

func clip(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

var fold = cases.Fold()

// NormalizeProvince canonicalizes Unicode form and whitespace of a province
// name without changing its case.
func NormalizeProvince(name string) string {
	return strings.Join(strings.Fields(norm.NFC.String(name)), " ")
}

// ProvinceKey is the case-folded form used to match province names.
func ProvinceKey(name string) string {
	return fold.String(NormalizeProvince(name))
}
