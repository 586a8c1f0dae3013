package store

import (
	"context"
	"sort"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/hazard-loss/internal/aal"
	"github.com/sells-group/hazard-loss/internal/asset"
	"github.com/sells-group/hazard-loss/internal/geospatial"
	"github.com/sells-group/hazard-loss/internal/hazard"
	"github.com/sells-group/hazard-loss/internal/loss"
	"github.com/sells-group/hazard-loss/internal/vuln"
)

// MemoryStore keeps everything in process memory. Updates run against a
// copy that replaces the live state only when the callback succeeds.
type MemoryStore struct {
	// batchMu is held exclusively by Batch and shared by Update.
	batchMu   sync.RWMutex
	mu        sync.RWMutex
	assets    map[string]asset.Asset
	provinces []string
	samples   map[hazard.Hazard][]geospatial.Sample
	curves    map[hazard.Hazard][]*vuln.Curve
	direct    map[string]loss.Record
	table     *aal.Table
}

var _ Store = (*MemoryStore)(nil)

// NewMemory returns an empty store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		assets:  make(map[string]asset.Asset),
		samples: make(map[hazard.Hazard][]geospatial.Sample),
		curves:  make(map[hazard.Hazard][]*vuln.Curve),
		direct:  make(map[string]loss.Record),
		table:   aal.NewTable(nil),
	}
}

// PutAsset inserts or replaces an asset.
func (m *MemoryStore) PutAsset(a asset.Asset) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assets[a.ID] = a
}

// DeleteAsset removes an asset from the register.
func (m *MemoryStore) DeleteAsset(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.assets, id)
}

// SetProvinces sets the reference province list and makes sure each has an
// AAL row.
func (m *MemoryStore) SetProvinces(names []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.provinces = append([]string(nil), names...)
	for _, p := range names {
		m.table.AddProvince(p)
	}
}

func (m *MemoryStore) ListAssets(_ context.Context) ([]asset.Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]asset.Asset, 0, len(m.assets))
	for _, a := range m.assets {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) GetAsset(_ context.Context, id string) (*asset.Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.assets[id]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "memory: asset %q", id)
	}
	return &a, nil
}

func (m *MemoryStore) ListProvinces(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.provinces...), nil
}

func (m *MemoryStore) LoadSamples(_ context.Context, h hazard.Hazard) ([]geospatial.Sample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]geospatial.Sample(nil), m.samples[h]...), nil
}

func (m *MemoryStore) LoadCurves(_ context.Context, h hazard.Hazard) ([]*vuln.Curve, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*vuln.Curve(nil), m.curves[h]...), nil
}

func (m *MemoryStore) UpsertCurves(_ context.Context, curves []*vuln.Curve) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range curves {
		list := m.curves[c.Hazard]
		replaced := false
		for i := range list {
			if list[i].ID == c.ID {
				list[i] = c
				replaced = true
			}
		}
		if !replaced {
			list = append(list, c)
		}
		m.curves[c.Hazard] = list
	}
	return nil
}

func (m *MemoryStore) UpsertSamples(_ context.Context, samples []geospatial.Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range samples {
		list := m.samples[s.Hazard]
		replaced := false
		for i := range list {
			if list[i].LocationID == s.LocationID {
				list[i] = s
				replaced = true
			}
		}
		if !replaced {
			list = append(list, s)
		}
		m.samples[s.Hazard] = list
	}
	return nil
}

func (m *MemoryStore) Batch(ctx context.Context, fn func(tx BatchTx) error) error {
	m.batchMu.Lock()
	defer m.batchMu.Unlock()
	return fn(memoryBatchTx{m: m})
}

func (m *MemoryStore) ReplaceResults(ctx context.Context, records []loss.Record, table *aal.Table) error {
	return m.Batch(ctx, func(tx BatchTx) error {
		return tx.ReplaceResults(ctx, records, table)
	})
}

func (m *MemoryStore) replaceResults(records []loss.Record, table *aal.Table) {
	direct := make(map[string]loss.Record, len(records))
	for _, r := range records {
		direct[r.AssetID] = r
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.direct = direct
	m.table = aal.FromRows(table.Rows())
}

func (m *MemoryStore) Update(ctx context.Context, fn func(tx ResultTx) error) error {
	m.batchMu.RLock()
	defer m.batchMu.RUnlock()
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memoryTx{
		direct: make(map[string]loss.Record, len(m.direct)),
		table:  aal.FromRows(m.table.Rows()),
	}
	for k, v := range m.direct {
		tx.direct[k] = v
	}
	if err := fn(tx); err != nil {
		return err
	}
	m.direct = tx.direct
	m.table = tx.table
	return nil
}

func (m *MemoryStore) DirectLoss(_ context.Context, assetID string) (*loss.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.direct[assetID]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "memory: direct loss %q", assetID)
	}
	return &r, nil
}

func (m *MemoryStore) AALRows(_ context.Context) ([]aal.Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.table.Rows(), nil
}

func (m *MemoryStore) Ping(context.Context) error    { return nil }
func (m *MemoryStore) Migrate(context.Context) error { return nil }
func (m *MemoryStore) Close() error                  { return nil }

type memoryBatchTx struct {
	m *MemoryStore
}

func (tx memoryBatchTx) ListAssets(ctx context.Context) ([]asset.Asset, error) {
	return tx.m.ListAssets(ctx)
}

func (tx memoryBatchTx) ListProvinces(ctx context.Context) ([]string, error) {
	return tx.m.ListProvinces(ctx)
}

func (tx memoryBatchTx) ReplaceResults(_ context.Context, records []loss.Record, table *aal.Table) error {
	tx.m.replaceResults(records, table)
	return nil
}

type memoryTx struct {
	direct map[string]loss.Record
	table  *aal.Table
}

func (tx *memoryTx) DirectLoss(_ context.Context, assetID string) (*loss.Record, error) {
	r, ok := tx.direct[assetID]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (tx *memoryTx) PutDirectLoss(_ context.Context, rec loss.Record) error {
	tx.direct[rec.AssetID] = rec
	return nil
}

func (tx *memoryTx) DeleteDirectLoss(_ context.Context, assetID string) error {
	delete(tx.direct, assetID)
	return nil
}

func (tx *memoryTx) ApplyDeltas(_ context.Context, deltas []aal.Delta) error {
	return tx.table.Apply(deltas)
}
