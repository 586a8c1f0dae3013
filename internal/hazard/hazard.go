// Package hazard defines the closed set of hazards and return-period
// scenarios the loss engine works with.
package hazard

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Hazard identifies a natural hazard type.
type Hazard int

const (
	Earthquake Hazard = iota
	Flood
	Ashfall
	Landslide

	// NumHazards is the number of hazard types.
	NumHazards = 4
)

// All lists every hazard in storage order.
var All = [NumHazards]Hazard{Earthquake, Flood, Ashfall, Landslide}

var hazardSlugs = [NumHazards]string{"earthquake", "flood", "ashfall", "landslide"}

// String returns the lowercase slug used in column and config names.
func (h Hazard) String() string {
	if h < 0 || int(h) >= NumHazards {
		return "unknown"
	}
	return hazardSlugs[h]
}

// MarshalText encodes h as its slug.
func (h Hazard) MarshalText() ([]byte, error) {
	if h < 0 || int(h) >= NumHazards {
		return nil, eris.Errorf("hazard: cannot encode hazard %d", int(h))
	}
	return []byte(hazardSlugs[h]), nil
}

// UnmarshalText accepts anything Parse does.
func (h *Hazard) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*h = v
	return nil
}

// Threshold returns the association distance in metres.
func (h Hazard) Threshold() float64 {
	switch h {
	case Earthquake:
		return 9500
	case Flood, Landslide:
		return 700
	case Ashfall:
		return 550
	}
	return 0
}

// Scenarios returns the scenarios belonging to h, highest return period first.
func (h Hazard) Scenarios() []Scenario {
	var out []Scenario
	for s := Scenario(0); s < NumScenarios; s++ {
		if s.Hazard() == h {
			out = append(out, s)
		}
	}
	return out
}

// Parse resolves a hazard slug. Legacy Indonesian names are accepted.
func Parse(s string) (Hazard, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "earthquake", "eq", "gempa":
		return Earthquake, nil
	case "flood", "banjir":
		return Flood, nil
	case "ashfall", "ash", "gunungberapi", "volcanic":
		return Ashfall, nil
	case "landslide", "longsor":
		return Landslide, nil
	}
	return 0, eris.Errorf("hazard: unknown hazard %q", s)
}
