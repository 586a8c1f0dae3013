package geospatial

import (
	"math"

	"github.com/sells-group/hazard-loss/internal/hazard"
)

// Match is the result of a nearest-sample lookup.
type Match struct {
	// Index is the position of the sample in the slice the Index was built from.
	Index    int
	Sample   *Sample
	Distance float64
}

type cell struct{ x, y int }

// Index answers nearest-eligible-sample queries for one hazard using a
// uniform grid sized to the association threshold.
type Index struct {
	hazard    hazard.Hazard
	metric    Metric
	threshold float64
	cellSize  float64
	samples   []Sample
	cells     map[cell][]int
}

// IndexOption configures an Index.
type IndexOption func(*Index)

// WithMetric sets the distance metric. The default is Geodesic.
func WithMetric(m Metric) IndexOption {
	return func(ix *Index) { ix.metric = m }
}

// WithThreshold overrides the hazard's association distance.
func WithThreshold(metres float64) IndexOption {
	return func(ix *Index) {
		if metres > 0 {
			ix.threshold = metres
		}
	}
}

// NewIndex builds an index over samples of hazard h. Samples of other
// hazards are kept but never matched.
func NewIndex(h hazard.Hazard, samples []Sample, opts ...IndexOption) *Index {
	ix := &Index{
		hazard:    h,
		metric:    Geodesic,
		threshold: h.Threshold(),
		samples:   samples,
		cells:     make(map[cell][]int),
	}
	for _, o := range opts {
		o(ix)
	}

	ix.cellSize = ix.threshold
	if ix.metric == Geodesic {
		ix.cellSize = ix.threshold / metresPerDegLat
	}
	if ix.cellSize <= 0 {
		ix.cellSize = 1
	}

	for i := range samples {
		if samples[i].Hazard != h {
			continue
		}
		c := ix.cellOf(samples[i].Lon, samples[i].Lat)
		ix.cells[c] = append(ix.cells[c], i)
	}
	return ix
}

// Hazard returns the indexed hazard.
func (ix *Index) Hazard() hazard.Hazard { return ix.hazard }

// Threshold returns the association distance in use.
func (ix *Index) Threshold() float64 { return ix.threshold }

// Len returns the number of samples.
func (ix *Index) Len() int { return len(ix.samples) }

// Sample returns the i-th sample.
func (ix *Index) Sample(i int) *Sample { return &ix.samples[i] }

func (ix *Index) cellOf(x, y float64) cell {
	return cell{int(math.Floor(x / ix.cellSize)), int(math.Floor(y / ix.cellSize))}
}

// Nearest returns the closest sample within the threshold whose intensity
// for sc is known and non-zero. Equal distances resolve to the lower
// location id. ok is false when nothing qualifies.
func (ix *Index) Nearest(sc hazard.Scenario, lon, lat float64) (Match, bool) {
	if sc.Hazard() != ix.hazard || math.IsNaN(lon) || math.IsNaN(lat) {
		return Match{}, false
	}

	rx, ry := 1, 1
	if ix.metric == Geodesic {
		span := math.Min(90, math.Abs(lat)+ix.cellSize)
		cos := math.Cos(span * math.Pi / 180)
		if cos < 1e-6 {
			return ix.scan(sc, lon, lat, ix.allCandidates())
		}
		rx = int(math.Ceil(1/cos)) + 1
	}
	if (2*rx+1)*(2*ry+1) > len(ix.cells) {
		return ix.scan(sc, lon, lat, ix.allCandidates())
	}

	center := ix.cellOf(lon, lat)
	var candidates []int
	for dx := -rx; dx <= rx; dx++ {
		for dy := -ry; dy <= ry; dy++ {
			candidates = append(candidates, ix.cells[cell{center.x + dx, center.y + dy}]...)
		}
	}
	return ix.scan(sc, lon, lat, candidates)
}

func (ix *Index) allCandidates() []int {
	out := make([]int, 0, len(ix.samples))
	for _, idx := range ix.cells {
		out = append(out, idx...)
	}
	return out
}

func (ix *Index) scan(sc hazard.Scenario, lon, lat float64, candidates []int) (Match, bool) {
	best := Match{Index: -1, Distance: math.Inf(1)}
	for _, i := range candidates {
		s := &ix.samples[i]
		if !s.Eligible(sc) {
			continue
		}
		d := ix.metric.Distance(lon, lat, s.Lon, s.Lat)
		if d > ix.threshold {
			continue
		}
		if d < best.Distance || (d == best.Distance && s.LocationID < best.Sample.LocationID) {
			best = Match{Index: i, Sample: s, Distance: d}
		}
	}
	if best.Sample == nil {
		return Match{}, false
	}
	return best, true
}
