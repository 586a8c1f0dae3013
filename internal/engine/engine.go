// Package engine runs loss recomputes: full batches that rebuild the
// direct-loss and AAL tables, and single-asset updates and retractions
// that patch them with weighted deltas.
package engine

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/hazard-loss/internal/aal"
	"github.com/sells-group/hazard-loss/internal/asset"
	"github.com/sells-group/hazard-loss/internal/geospatial"
	"github.com/sells-group/hazard-loss/internal/hazard"
	"github.com/sells-group/hazard-loss/internal/loss"
	"github.com/sells-group/hazard-loss/internal/monitoring"
	"github.com/sells-group/hazard-loss/internal/store"
)

// Backend is the storage the engine reads inputs from and writes results to.
type Backend interface {
	store.AssetRegistry
	store.HazardSource
	store.CurveSource
	store.ResultStore
}

// Config tunes association and loss selection.
type Config struct {
	// Workers bounds per-hazard asset fan-out in a batch.
	Workers int
	Metric  geospatial.Metric
	// Thresholds overrides per-hazard association distances in metres.
	Thresholds  map[hazard.Hazard]float64
	ClassSource loss.ClassSource
}

// Summary reports one batch recompute.
type Summary struct {
	RunID          string          `json:"run_id"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     time.Time       `json:"finished_at"`
	Assets         int             `json:"assets"`
	Records        int             `json:"records"`
	SkippedAssets  []string        `json:"skipped_assets,omitempty"`
	SkippedHazards []hazard.Hazard `json:"skipped_hazards,omitempty"`
	Provinces      int             `json:"provinces"`
	GrandTotal     aal.Row         `json:"grand_total"`
}

// Engine coordinates recomputes against a Backend. Batch runs exclude all
// other work of this engine, and the backend's Batch excludes updates of
// other engines; incremental calls run concurrently, serialized per
// province.
type Engine struct {
	backend Backend
	cfg     Config
	metrics *monitoring.Metrics
	clock   clockwork.Clock

	mu        sync.RWMutex
	catMu     sync.RWMutex
	catalog   *Catalog
	provinces *provinceLocks
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the time source used for summaries and durations.
func WithClock(c clockwork.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New returns an engine over backend. The catalog is loaded lazily.
func New(backend Backend, cfg Config, opts ...Option) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	e := &Engine{
		backend:   backend,
		cfg:       cfg,
		clock:     clockwork.NewRealClock(),
		provinces: newProvinceLocks(),
	}
	for _, o := range opts {
		o(e)
	}
	if e.metrics == nil {
		e.metrics = monitoring.NewMetricsForTesting()
	}
	return e
}

// Refresh rebuilds the catalog from the backend.
func (e *Engine) Refresh(ctx context.Context) error {
	_, err := e.refresh(ctx)
	return err
}

func (e *Engine) refresh(ctx context.Context) (*Catalog, error) {
	cat, err := buildCatalog(ctx, e.backend, e.cfg, e.clock.Now())
	if err != nil {
		return nil, classify("refresh", err)
	}
	for _, h := range hazard.All {
		if ix := cat.Index(h); ix != nil {
			e.metrics.CatalogSamples.WithLabelValues(h.String()).Set(float64(ix.Len()))
		} else {
			e.metrics.CatalogSamples.WithLabelValues(h.String()).Set(0)
			e.metrics.HazardsSkipped.WithLabelValues(h.String()).Inc()
		}
	}
	e.catMu.Lock()
	e.catalog = cat
	e.catMu.Unlock()

	zap.L().Info("engine: catalog loaded",
		zap.Int("hazards", hazard.NumHazards-len(cat.skipped)),
		zap.Int("skipped", len(cat.skipped)),
	)
	return cat, nil
}

// Catalog returns the current catalog, loading it on first use.
func (e *Engine) Catalog(ctx context.Context) (*Catalog, error) {
	e.catMu.RLock()
	cat := e.catalog
	e.catMu.RUnlock()
	if cat != nil {
		return cat, nil
	}
	return e.refresh(ctx)
}

func (e *Engine) observe(mode string, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	e.metrics.Recomputes.WithLabelValues(mode, outcome).Inc()
	e.metrics.RecomputeDuration.WithLabelValues(mode).Observe(e.clock.Since(start).Seconds())
}

// RecomputeAll rebuilds every direct-loss record and the AAL table from
// scratch. Inputs are read and both stored tables replaced inside one
// backend batch, which excludes incremental updates from every process
// sharing the backend.
func (e *Engine) RecomputeAll(ctx context.Context) (sum *Summary, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := e.clock.Now()
	defer func() { e.observe("all", start, err) }()

	sum = &Summary{RunID: uuid.NewString(), StartedAt: start}
	log := zap.L().With(zap.String("component", "engine"), zap.String("run_id", sum.RunID))

	cat, err := e.refresh(ctx)
	if err != nil {
		return nil, err
	}
	sum.SkippedHazards = cat.Skipped()

	var (
		records []loss.Record
		table   *aal.Table
	)
	err = e.backend.Batch(ctx, func(tx store.BatchTx) error {
		assets, err := tx.ListAssets(ctx)
		if err != nil {
			return err
		}
		provinces, err := tx.ListProvinces(ctx)
		if err != nil {
			return err
		}
		sum.Assets = len(assets)

		classes := make([]asset.Class, len(assets))
		valid := make([]bool, len(assets))
		for i := range assets {
			c, cerr := assets[i].Class()
			if cerr != nil {
				log.Warn("engine: asset skipped", zap.String("asset_id", assets[i].ID), zap.Error(cerr))
				sum.SkippedAssets = append(sum.SkippedAssets, assets[i].ID)
				continue
			}
			classes[i], valid[i] = c, true
		}

		ratios, err := e.associateAll(ctx, cat, assets)
		if err != nil {
			return err
		}

		records = make([]loss.Record, 0, len(assets))
		for i := range assets {
			if valid[i] {
				records = append(records, loss.Compute(&assets[i], classes[i], ratios[i], e.cfg.ClassSource))
			}
		}
		table = aal.Build(provinces, records)
		return tx.ReplaceResults(ctx, records, table)
	})
	if err != nil {
		return nil, classify("recompute all", err)
	}

	e.metrics.AssetsProcessed.Add(float64(len(records)))
	e.metrics.AssetsSkipped.Add(float64(len(sum.SkippedAssets)))

	sum.Records = len(records)
	sum.Provinces = table.Len()
	sum.GrandTotal = table.GrandTotal()
	sum.FinishedAt = e.clock.Now()
	log.Info("engine: batch recompute complete",
		zap.Int("assets", sum.Assets),
		zap.Int("records", sum.Records),
		zap.Int("skipped_assets", len(sum.SkippedAssets)),
		zap.Int("provinces", sum.Provinces),
		zap.Duration("elapsed", sum.FinishedAt.Sub(sum.StartedAt)),
	)
	return sum, nil
}

// associateAll runs nearest-sample association with hazards in parallel
// and assets fanned out within each hazard.
func (e *Engine) associateAll(ctx context.Context, cat *Catalog, assets []asset.Asset) ([]loss.ScenarioRatios, error) {
	var perHazard [hazard.NumHazards][]loss.ScenarioRatios

	g, gctx := errgroup.WithContext(ctx)
	for _, h := range hazard.All {
		if cat.Index(h) == nil {
			continue
		}
		part := make([]loss.ScenarioRatios, len(assets))
		perHazard[h] = part
		g.Go(func() error {
			inner, ictx := errgroup.WithContext(gctx)
			inner.SetLimit(e.cfg.Workers)
			const chunk = 256
			for lo := 0; lo < len(assets); lo += chunk {
				hi := min(lo+chunk, len(assets))
				inner.Go(func() error {
					if err := ictx.Err(); err != nil {
						return err
					}
					for i := lo; i < hi; i++ {
						cat.associate(h, &assets[i], &part[i])
					}
					return nil
				})
			}
			return inner.Wait()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]loss.ScenarioRatios, len(assets))
	for _, h := range hazard.All {
		part := perHazard[h]
		if part == nil {
			continue
		}
		for i := range out {
			for _, sc := range h.Scenarios() {
				out[i][sc] = part[i][sc]
			}
		}
	}
	return out, nil
}

// compute produces the current record of one asset.
func (e *Engine) compute(ctx context.Context, a *asset.Asset) (loss.Record, error) {
	class, err := a.Class()
	if err != nil {
		return loss.Record{}, err
	}
	cat, err := e.Catalog(ctx)
	if err != nil {
		return loss.Record{}, err
	}
	return loss.Compute(a, class, cat.ratiosFor(a), e.cfg.ClassSource), nil
}

// RecomputeOne recomputes a single asset and patches the AAL table with
// the weighted difference from its previous record. If the asset moved
// province or class, the old contribution is removed from the old cell.
func (e *Engine) RecomputeOne(ctx context.Context, id string) (rec *loss.Record, err error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	start := e.clock.Now()
	defer func() { e.observe("asset", start, err) }()

	a, err := e.backend.GetAsset(ctx, id)
	if err != nil {
		return nil, classify("recompute asset", err)
	}
	next, err := e.compute(ctx, a)
	if err != nil {
		return nil, classify("recompute asset", err)
	}

	unlock := e.provinces.lock(e.provincesOf(ctx, id, next.Province)...)
	defer unlock()

	err = e.backend.Update(ctx, func(tx store.ResultTx) error {
		prev, err := tx.DirectLoss(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.PutDirectLoss(ctx, next); err != nil {
			return err
		}
		return tx.ApplyDeltas(ctx, aal.Diff(prev, &next))
	})
	if err != nil {
		return nil, classify("recompute asset", err)
	}
	e.metrics.AssetsProcessed.Inc()
	zap.L().Debug("engine: asset recomputed", zap.String("asset_id", id), zap.String("province", next.Province))
	return &next, nil
}

// RetractOne removes an asset's direct-loss record and subtracts its
// weighted contribution from the AAL table. The asset itself need not
// exist anymore.
func (e *Engine) RetractOne(ctx context.Context, id string) (rec *loss.Record, err error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	start := e.clock.Now()
	defer func() { e.observe("retract", start, err) }()

	unlock := e.provinces.lock(e.provincesOf(ctx, id, "")...)
	defer unlock()

	var prev *loss.Record
	err = e.backend.Update(ctx, func(tx store.ResultTx) error {
		var err error
		prev, err = tx.DirectLoss(ctx, id)
		if err != nil {
			return err
		}
		if prev == nil {
			return eris.Wrapf(store.ErrNotFound, "engine: no direct loss for %q", id)
		}
		if err := tx.DeleteDirectLoss(ctx, id); err != nil {
			return err
		}
		return tx.ApplyDeltas(ctx, aal.Diff(prev, nil))
	})
	if err != nil {
		return nil, classify("retract asset", err)
	}
	zap.L().Debug("engine: asset retracted", zap.String("asset_id", id), zap.String("province", prev.Province))
	return prev, nil
}

// provincesOf lists the provinces an update of id may touch: its stored
// record's province and next.
func (e *Engine) provincesOf(ctx context.Context, id, next string) []string {
	out := []string{}
	if next != "" {
		out = append(out, next)
	}
	if prev, err := e.backend.DirectLoss(ctx, id); err == nil {
		out = append(out, prev.Province)
	}
	return out
}

// Report is the stored AAL table with its national total.
type Report struct {
	Rows       []aal.Row `json:"rows"`
	GrandTotal aal.Row   `json:"grand_total"`
}

// AAL reads the stored AAL table. The grand total is derived on read.
func (e *Engine) AAL(ctx context.Context) (*Report, error) {
	rows, err := e.backend.AALRows(ctx)
	if err != nil {
		return nil, classify("read aal", err)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Province < rows[j].Province })
	return &Report{Rows: rows, GrandTotal: aal.FromRows(rows).GrandTotal()}, nil
}

// DirectLoss reads the stored record of one asset.
func (e *Engine) DirectLoss(ctx context.Context, id string) (*loss.Record, error) {
	rec, err := e.backend.DirectLoss(ctx, id)
	if err != nil {
		return nil, classify("read direct loss", err)
	}
	return rec, nil
}

// NearestOptions returns the association settings the engine applies to
// h, for running the same lookup elsewhere.
func (e *Engine) NearestOptions(h hazard.Hazard) geospatial.NearestOptions {
	opts := geospatial.NearestOptions{Metric: e.cfg.Metric, Threshold: h.Threshold()}
	if t, ok := e.cfg.Thresholds[h]; ok {
		opts.Threshold = t
	}
	return opts
}

// Nearest looks up the sample an asset at (lon, lat) would be associated
// with for scenario sc, using the cached catalog.
func (e *Engine) Nearest(ctx context.Context, sc hazard.Scenario, lon, lat float64) (geospatial.Match, bool, error) {
	cat, err := e.Catalog(ctx)
	if err != nil {
		return geospatial.Match{}, false, err
	}
	ix := cat.Index(sc.Hazard())
	if ix == nil {
		return geospatial.Match{}, false, nil
	}
	m, ok := ix.Nearest(sc, lon, lat)
	return m, ok, nil
}
