package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/hazard-loss/internal/aal"
	"github.com/sells-group/hazard-loss/internal/asset"
	"github.com/sells-group/hazard-loss/internal/db"
	"github.com/sells-group/hazard-loss/internal/geospatial"
	"github.com/sells-group/hazard-loss/internal/hazard"
	"github.com/sells-group/hazard-loss/internal/loss"
	"github.com/sells-group/hazard-loss/internal/resilience"
	"github.com/sells-group/hazard-loss/internal/vuln"
)

// PostgresStore implements Store on PostgreSQL with PostGIS.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	retry   resilience.RetryConfig
}

var _ Store = (*PostgresStore)(nil)

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres opens a pool and verifies connectivity.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return NewPostgresWithPool(pool, pool.Close), nil
}

// NewPostgresWithPool wraps an existing pool. closeFn may be nil.
func NewPostgresWithPool(pool db.Pool, closeFn func()) *PostgresStore {
	retry := resilience.DefaultRetryConfig()
	retry.ShouldRetry = resilience.IsRetryableTx
	retry.OnRetry = resilience.RetryLogger("postgres", "result update")
	return &PostgresStore{pool: pool, closeFn: closeFn, retry: retry}
}

// WithRetry replaces the attempt and backoff settings of result updates.
// Error classification stays on serialization and deadlock failures.
func (s *PostgresStore) WithRetry(cfg resilience.RetryConfig) *PostgresStore {
	cfg.ShouldRetry = s.retry.ShouldRetry
	cfg.OnRetry = s.retry.OnRetry
	s.retry = cfg
	return s
}

// Pool returns the underlying pool for ad-hoc spatial queries.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	return geospatial.Migrate(ctx, s.pool)
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

const assetSelect = `SELECT a.id, ST_AsEWKB(a.geom), a.floor_area, a.floor_count, a.province,
	COALESCE(c.name, ''), COALESCE(c.unit_cost, 0), COALESCE(a.taxonomy, '')
FROM assets a LEFT JOIN cities c ON c.id = a.city_id`

func scanAsset(sc scanner) (*asset.Asset, error) {
	var a asset.Asset
	var wkb []byte
	if err := sc.Scan(&a.ID, &wkb, &a.FloorArea, &a.FloorCount, &a.Province, &a.City, &a.UnitCost, &a.Taxonomy); err != nil {
		return nil, err
	}
	p, err := geospatial.DecodePoint(wkb)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: asset %s location", a.ID)
	}
	a.Location = p
	return &a, nil
}

func (s *PostgresStore) ListAssets(ctx context.Context) ([]asset.Asset, error) {
	return listAssets(ctx, s.pool)
}

func listAssets(ctx context.Context, q db.Querier) ([]asset.Asset, error) {
	rows, err := q.Query(ctx, assetSelect+" ORDER BY a.id")
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list assets")
	}
	defer rows.Close()

	var out []asset.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan asset")
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate assets")
}

func (s *PostgresStore) GetAsset(ctx context.Context, id string) (*asset.Asset, error) {
	a, err := scanAsset(s.pool.QueryRow(ctx, assetSelect+" WHERE a.id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: asset %q", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get asset %q", id)
	}
	return a, nil
}

func (s *PostgresStore) ListProvinces(ctx context.Context) ([]string, error) {
	return listProvinces(ctx, s.pool)
}

func listProvinces(ctx context.Context, q db.Querier) ([]string, error) {
	rows, err := q.Query(ctx, "SELECT name FROM provinces ORDER BY name")
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list provinces")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "postgres: scan province")
		}
		out = append(out, name)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate provinces")
}

func (s *PostgresStore) LoadSamples(ctx context.Context, h hazard.Hazard) ([]geospatial.Sample, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT location_id, return_period, intensity, ST_X(geom), ST_Y(geom)
		FROM hazard_samples WHERE hazard = $1 ORDER BY location_id, return_period DESC`, h.String())
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load %s samples", h)
	}
	defer rows.Close()

	var raw []sampleRow
	for rows.Next() {
		var r sampleRow
		if err := rows.Scan(&r.LocationID, &r.ReturnPeriod, &r.Intensity, &r.Lon, &r.Lat); err != nil {
			return nil, eris.Wrap(err, "postgres: scan sample")
		}
		raw = append(raw, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate samples")
	}
	return pivotSamples(h, raw)
}

func (s *PostgresStore) LoadCurves(ctx context.Context, h hazard.Hazard) ([]*vuln.Curve, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT curve_id, x, y FROM vulnerability_curves WHERE hazard = $1 ORDER BY curve_id, x", h.String())
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load %s curves", h)
	}
	defer rows.Close()

	var raw []curveRow
	for rows.Next() {
		var r curveRow
		if err := rows.Scan(&r.ID, &r.X, &r.Y); err != nil {
			return nil, eris.Wrap(err, "postgres: scan curve point")
		}
		raw = append(raw, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate curves")
	}
	return buildCurves(h, raw)
}

func (s *PostgresStore) UpsertCurves(ctx context.Context, curves []*vuln.Curve) error {
	var rows [][]any
	for _, c := range curves {
		for i := range c.X {
			rows = append(rows, []any{c.Hazard.String(), string(c.ID), c.X[i], c.Y[i]})
		}
	}
	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "vulnerability_curves",
		Columns:      []string{"hazard", "curve_id", "x", "y"},
		ConflictKeys: []string{"hazard", "curve_id", "x"},
	}, rows)
	return eris.Wrap(err, "postgres: upsert curves")
}

func (s *PostgresStore) UpsertSamples(ctx context.Context, samples []geospatial.Sample) error {
	var rows [][]any
	for _, si := range sampleImportRows(samples) {
		wkb, err := geospatial.EncodePoint(si.sample.Point())
		if err != nil {
			return err
		}
		rows = append(rows, []any{si.sample.LocationID, si.sample.Hazard.String(), si.scenario.ReturnPeriod(), si.intensity, wkb})
	}
	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "hazard_samples",
		Columns:      []string{"location_id", "hazard", "return_period", "intensity", "geom"},
		ConflictKeys: []string{"location_id", "hazard", "return_period"},
	}, rows)
	return eris.Wrap(err, "postgres: upsert samples")
}

// resultsLockID is the transaction-level advisory lock guarding the result
// tables. Batch holds it exclusively, Update shares it.
const resultsLockID = 5_174_202

// Batch runs fn in one transaction holding the results lock exclusively, so
// the inputs fn reads and the tables it replaces are not interleaved with
// an Update from any process.
func (s *PostgresStore) Batch(ctx context.Context, fn func(tx BatchTx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: batch: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", resultsLockID); err != nil {
		return eris.Wrap(err, "postgres: batch: acquire results lock")
	}
	if err := fn(&pgBatchTx{tx: tx}); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: batch: commit tx")
}

func (s *PostgresStore) ReplaceResults(ctx context.Context, records []loss.Record, table *aal.Table) error {
	return s.Batch(ctx, func(tx BatchTx) error {
		return tx.ReplaceResults(ctx, records, table)
	})
}

type pgBatchTx struct {
	tx pgx.Tx
}

func (t *pgBatchTx) ListAssets(ctx context.Context) ([]asset.Asset, error) {
	return listAssets(ctx, t.tx)
}

func (t *pgBatchTx) ListProvinces(ctx context.Context) ([]string, error) {
	return listProvinces(ctx, t.tx)
}

func (t *pgBatchTx) ReplaceResults(ctx context.Context, records []loss.Record, table *aal.Table) error {
	direct := make([][]any, len(records))
	for i := range records {
		direct[i] = directLossRow(&records[i])
	}
	aalRows := table.Rows()
	agg := make([][]any, len(aalRows))
	for i := range aalRows {
		agg[i] = aalRow(&aalRows[i])
	}

	if _, err := db.ReplaceTable(ctx, t.tx, tableDirectLosses, directLossColumns(), direct); err != nil {
		return eris.Wrap(err, "postgres: replace direct losses")
	}
	if _, err := db.ReplaceTable(ctx, t.tx, tableAAL, aalColumns(), agg); err != nil {
		return eris.Wrap(err, "postgres: replace aal")
	}
	zap.L().Debug("postgres: results replaced",
		zap.Int("direct_losses", len(direct)),
		zap.Int("provinces", len(agg)),
	)
	return nil
}

// Update runs fn in a transaction sharing the results lock and retries it
// on serialization failures and deadlocks.
func (s *PostgresStore) Update(ctx context.Context, fn func(tx ResultTx) error) error {
	return resilience.Do(ctx, s.retry, func(ctx context.Context) error {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return eris.Wrap(err, "postgres: update: begin tx")
		}
		defer tx.Rollback(ctx) //nolint:errcheck

		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock_shared($1)", resultsLockID); err != nil {
			return eris.Wrap(err, "postgres: update: acquire results lock")
		}
		if err := fn(&pgResultTx{tx: tx}); err != nil {
			return err
		}
		return eris.Wrap(tx.Commit(ctx), "postgres: update: commit tx")
	})
}

var directLossSelect = "SELECT " + strings.Join(directLossColumns(), ", ") + " FROM " + tableDirectLosses + " WHERE asset_id = $1"

func (s *PostgresStore) DirectLoss(ctx context.Context, assetID string) (*loss.Record, error) {
	rec, err := scanDirectLoss(s.pool.QueryRow(ctx, directLossSelect, assetID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: direct loss %q", assetID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get direct loss %q", assetID)
	}
	return rec, nil
}

func (s *PostgresStore) AALRows(ctx context.Context) ([]aal.Row, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+strings.Join(aalColumns(), ", ")+" FROM "+tableAAL+" ORDER BY province")
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list aal")
	}
	defer rows.Close()

	var out []aal.Row
	for rows.Next() {
		r, err := scanAALRow(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan aal row")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate aal")
}

type pgResultTx struct {
	tx pgx.Tx
}

func (t *pgResultTx) DirectLoss(ctx context.Context, assetID string) (*loss.Record, error) {
	rec, err := scanDirectLoss(t.tx.QueryRow(ctx, directLossSelect+" FOR UPDATE", assetID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: read direct loss %q", assetID)
	}
	return rec, nil
}

var directLossUpsert = func() string {
	cols := directLossColumns()
	ph := make([]string, len(cols))
	var sets []string
	for i, c := range cols {
		ph[i] = fmt.Sprintf("$%d", i+1)
		if i > 0 {
			sets = append(sets, c+" = EXCLUDED."+c)
		}
	}
	sets = append(sets, "updated_at = now()")
	return "INSERT INTO " + tableDirectLosses + " (" + strings.Join(cols, ", ") + ") VALUES (" +
		strings.Join(ph, ", ") + ") ON CONFLICT (asset_id) DO UPDATE SET " + strings.Join(sets, ", ")
}()

func (t *pgResultTx) PutDirectLoss(ctx context.Context, rec loss.Record) error {
	_, err := t.tx.Exec(ctx, directLossUpsert, directLossRow(&rec)...)
	return eris.Wrapf(err, "postgres: write direct loss %q", rec.AssetID)
}

func (t *pgResultTx) DeleteDirectLoss(ctx context.Context, assetID string) error {
	_, err := t.tx.Exec(ctx, "DELETE FROM "+tableDirectLosses+" WHERE asset_id = $1", assetID)
	return eris.Wrapf(err, "postgres: delete direct loss %q", assetID)
}

func pgPlaceholder(n int) string { return fmt.Sprintf("$%d", n) }

// ApplyDeltas locks every target province row in name order, then applies
// the deltas. Province names match case-insensitively.
func (t *pgResultTx) ApplyDeltas(ctx context.Context, deltas []aal.Delta) error {
	keys := make([]string, 0, len(deltas))
	seen := make(map[string]bool)
	for _, d := range deltas {
		k := asset.ProvinceKey(d.Province)
		if !seen[k] {
			seen[k] = true
			keys = append(keys, d.Province)
		}
	}
	sort.Strings(keys)

	canonical := make(map[string]string, len(keys))
	for _, p := range keys {
		var name string
		err := t.tx.QueryRow(ctx,
			"SELECT province FROM "+tableAAL+" WHERE lower(province) = lower($1) FOR UPDATE", p,
		).Scan(&name)
		if errors.Is(err, pgx.ErrNoRows) {
			return eris.Wrapf(aal.ErrUnknownProvince, "postgres: province %q", p)
		}
		if err != nil {
			return eris.Wrapf(err, "postgres: lock province %q", p)
		}
		canonical[asset.ProvinceKey(p)] = name
	}

	for _, d := range deltas {
		name := canonical[asset.ProvinceKey(d.Province)]
		if _, err := t.tx.Exec(ctx, deltaUpdateSQL(d.Class, pgPlaceholder), deltaArgs(d, name)...); err != nil {
			return eris.Wrapf(err, "postgres: apply delta to %q", name)
		}
	}
	return nil
}
