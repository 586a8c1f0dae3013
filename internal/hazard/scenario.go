package hazard

import "fmt"

// Scenario is one (hazard, return period) pair.
type Scenario int

const (
	EQ500 Scenario = iota
	EQ250
	EQ100
	Flood100
	Flood50
	Flood25
	Ash250
	Ash100
	Ash50
	Slide5
	Slide2

	// NumScenarios is the number of scenarios.
	NumScenarios = 11
)

type scenarioInfo struct {
	hazard       Hazard
	returnPeriod int
	field        string
	weight       float64
}

// Weights are annual exceedance probabilities, one per scenario. The same
// table is applied by batch, incremental and retract paths.
var scenarios = [NumScenarios]scenarioInfo{
	EQ500:    {Earthquake, 500, "mmi_500", 0.002},
	EQ250:    {Earthquake, 250, "mmi_250", 0.004},
	EQ100:    {Earthquake, 100, "mmi_100", 0.010},
	Flood100: {Flood, 100, "depth_100", 0.01},
	Flood50:  {Flood, 50, "depth_50", 0.02},
	Flood25:  {Flood, 25, "depth_25", 0.04},
	Ash250:   {Ashfall, 250, "kpa_250", 0.004},
	Ash100:   {Ashfall, 100, "kpa_100", 0.01},
	Ash50:    {Ashfall, 50, "kpa_50", 0.02},
	Slide5:   {Landslide, 5, "mflux_5", 0.2},
	Slide2:   {Landslide, 2, "mflux_2", 0.5},
}

// Hazard returns the hazard the scenario belongs to.
func (s Scenario) Hazard() Hazard { return scenarios[s].hazard }

// ReturnPeriod returns the return period in years.
func (s Scenario) ReturnPeriod() int { return scenarios[s].returnPeriod }

// Weight returns the annual probability weight used for AAL.
func (s Scenario) Weight() float64 { return scenarios[s].weight }

// IntensityField is the name of the raw intensity attribute, e.g. "mmi_500".
func (s Scenario) IntensityField() string { return scenarios[s].field }

func (s Scenario) String() string {
	return fmt.Sprintf("%s_%d", s.Hazard(), s.ReturnPeriod())
}

// DirectLossColumn is the per-asset result column, e.g. "direct_loss_flood_50".
func (s Scenario) DirectLossColumn() string {
	return "direct_loss_" + s.String()
}

// AALColumn is the province aggregate column for a class suffix or "total".
func (s Scenario) AALColumn(suffix string) string {
	return "aal_" + s.String() + "_" + suffix
}

// Lookup finds the scenario for a hazard and return period.
func Lookup(h Hazard, returnPeriod int) (Scenario, bool) {
	for s := Scenario(0); s < NumScenarios; s++ {
		if scenarios[s].hazard == h && scenarios[s].returnPeriod == returnPeriod {
			return s, true
		}
	}
	return 0, false
}

// Values holds one number per scenario.
type Values [NumScenarios]float64

// Add returns v + o.
func (v Values) Add(o Values) Values {
	for i := range v {
		v[i] += o[i]
	}
	return v
}

// Sub returns v - o.
func (v Values) Sub(o Values) Values {
	for i := range v {
		v[i] -= o[i]
	}
	return v
}

// Weighted returns each value multiplied by its scenario weight.
func (v Values) Weighted() Values {
	for i := range v {
		v[i] *= scenarios[i].weight
	}
	return v
}
