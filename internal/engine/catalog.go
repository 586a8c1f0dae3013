package engine

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/hazard-loss/internal/asset"
	"github.com/sells-group/hazard-loss/internal/geospatial"
	"github.com/sells-group/hazard-loss/internal/hazard"
	"github.com/sells-group/hazard-loss/internal/loss"
	"github.com/sells-group/hazard-loss/internal/store"
	"github.com/sells-group/hazard-loss/internal/vuln"
)

// hazardEntry is the cached association data of one hazard.
type hazardEntry struct {
	index *geospatial.Index
	// ratios[i][sc] holds the damage ratios of sample i for scenario sc.
	ratios [][hazard.NumScenarios]vuln.Ratios
}

// Catalog is an immutable snapshot of curves and hazard indexes. Batch
// and incremental recomputes share it so both see the same associations.
type Catalog struct {
	curves   *vuln.CurveStore
	entries  [hazard.NumHazards]*hazardEntry
	skipped  []hazard.Hazard
	loadedAt time.Time
}

// Skipped lists hazards that had no curves when the catalog was built.
func (c *Catalog) Skipped() []hazard.Hazard { return c.skipped }

// Curves returns the curve store backing the catalog.
func (c *Catalog) Curves() *vuln.CurveStore { return c.curves }

// Index returns the sample index of h, or nil if h was skipped.
func (c *Catalog) Index(h hazard.Hazard) *geospatial.Index {
	if e := c.entries[h]; e != nil {
		return e.index
	}
	return nil
}

// LoadedAt is when the catalog was built.
func (c *Catalog) LoadedAt() time.Time { return c.loadedAt }

type catalogSource interface {
	store.HazardSource
	store.CurveSource
}

// buildCatalog loads curves and samples of every hazard in parallel.
func buildCatalog(ctx context.Context, src catalogSource, cfg Config, now time.Time) (*Catalog, error) {
	cat := &Catalog{curves: vuln.NewCurveStore(), loadedAt: now}

	var entries [hazard.NumHazards]*hazardEntry
	g, gctx := errgroup.WithContext(ctx)
	for _, h := range hazard.All {
		g.Go(func() error {
			curves, err := src.LoadCurves(gctx, h)
			if err != nil {
				return eris.Wrapf(err, "engine: load %s curves", h)
			}
			if len(curves) == 0 {
				zap.L().Warn("engine: no vulnerability curves, hazard skipped", zap.String("hazard", h.String()))
				return nil
			}
			cat.curves.Replace(h, curves)

			samples, err := src.LoadSamples(gctx, h)
			if err != nil {
				return eris.Wrapf(err, "engine: load %s samples", h)
			}
			entries[h] = newHazardEntry(cat.curves, h, samples, cfg)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	cat.entries = entries
	for _, h := range hazard.All {
		if entries[h] == nil {
			cat.skipped = append(cat.skipped, h)
		}
	}
	return cat, nil
}

func newHazardEntry(curves *vuln.CurveStore, h hazard.Hazard, samples []geospatial.Sample, cfg Config) *hazardEntry {
	opts := []geospatial.IndexOption{geospatial.WithMetric(cfg.Metric)}
	if t, ok := cfg.Thresholds[h]; ok {
		opts = append(opts, geospatial.WithThreshold(t))
	}
	e := &hazardEntry{
		index:  geospatial.NewIndex(h, samples, opts...),
		ratios: make([][hazard.NumScenarios]vuln.Ratios, len(samples)),
	}
	for i := range samples {
		for _, sc := range h.Scenarios() {
			if samples[i].Eligible(sc) {
				e.ratios[i][sc] = curves.Evaluate(h, samples[i].Intensity[sc])
			}
		}
	}
	return e
}

// associate fills the ratios of every scenario of h for one location. A
// scenario with no sample in range is left nil.
func (c *Catalog) associate(h hazard.Hazard, a *asset.Asset, out *loss.ScenarioRatios) {
	e := c.entries[h]
	if e == nil || a.Location == nil {
		return
	}
	lon, lat := a.Location.X(), a.Location.Y()
	for _, sc := range h.Scenarios() {
		if m, ok := e.index.Nearest(sc, lon, lat); ok {
			out[sc] = e.ratios[m.Index][sc]
		}
	}
}

// ratiosFor associates a against every hazard.
func (c *Catalog) ratiosFor(a *asset.Asset) loss.ScenarioRatios {
	var r loss.ScenarioRatios
	for _, h := range hazard.All {
		c.associate(h, a, &r)
	}
	return r
}
