// Package loss converts damage ratios into per-asset monetary loss.
package loss

import (
	"math"
	"strings"

	"github.com/sells-group/hazard-loss/internal/asset"
	"github.com/sells-group/hazard-loss/internal/hazard"
	"github.com/sells-group/hazard-loss/internal/vuln"
)

// ClassSource selects which construction class curve applies to
// earthquake, ashfall and landslide.
type ClassSource int

const (
	// ReferenceClass uses one fixed class per hazard for every asset.
	ReferenceClass ClassSource = iota
	// TaxonomyClass uses the asset's own taxonomy when it names a known
	// class, falling back to the reference class.
	TaxonomyClass
)

// ParseClassSource maps a config value; anything but "taxonomy" is the
// reference class.
func ParseClassSource(s string) ClassSource {
	if strings.EqualFold(s, "taxonomy") {
		return TaxonomyClass
	}
	return ReferenceClass
}

// ReferenceCurve is the class curve applied to all assets for h.
func ReferenceCurve(h hazard.Hazard) vuln.CurveID {
	switch h {
	case hazard.Earthquake:
		return vuln.CR
	case hazard.Landslide:
		return vuln.MUR
	case hazard.Ashfall:
		return vuln.Lightwood
	}
	return ""
}

// CurveFor picks the curve id an asset is assessed with under h.
func CurveFor(a *asset.Asset, h hazard.Hazard, src ClassSource) vuln.CurveID {
	if h == hazard.Flood {
		if a.FloodFloors() == 1 {
			return vuln.FloodOneFloor
		}
		return vuln.FloodTwoFloor
	}
	if src == TaxonomyClass && a.Taxonomy != "" {
		if id, err := vuln.NormalizeID(h, a.Taxonomy); err == nil {
			for _, c := range vuln.ClassOrder {
				if c == id {
					return id
				}
			}
		}
	}
	return ReferenceCurve(h)
}

// Record is the direct loss of one asset for every scenario. Province and
// class are captured at computation time.
type Record struct {
	AssetID  string        `json:"asset_id"`
	Province string        `json:"province"`
	Class    asset.Class   `json:"class"`
	Losses   hazard.Values `json:"losses"`
}

// ScenarioRatios holds, per scenario, the damage ratios of the associated
// hazard sample; nil means no sample was associated.
type ScenarioRatios [hazard.NumScenarios]vuln.Ratios

// DirectLoss is exposure × ratio. A missing ratio contributes 0, and the
// result is always finite and non-negative.
func DirectLoss(exposure float64, ratio hazard.Quantity) float64 {
	v := exposure * ratio.OrZero()
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// Compute builds the loss record for a. The class must already be decoded
// from the asset id.
func Compute(a *asset.Asset, class asset.Class, ratios ScenarioRatios, src ClassSource) Record {
	rec := Record{
		AssetID:  a.ID,
		Province: asset.NormalizeProvince(a.Province),
		Class:    class,
	}
	exposure := a.ExposureValue()
	for sc := hazard.Scenario(0); sc < hazard.NumScenarios; sc++ {
		r := ratios[sc]
		if r == nil {
			continue
		}
		rec.Losses[sc] = DirectLoss(exposure, r.Get(CurveFor(a, sc.Hazard(), src)))
	}
	return rec
}
