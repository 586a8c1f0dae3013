package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/hazard-loss/internal/aal"
	"github.com/sells-group/hazard-loss/internal/asset"
	"github.com/sells-group/hazard-loss/internal/geospatial"
	"github.com/sells-group/hazard-loss/internal/hazard"
	"github.com/sells-group/hazard-loss/internal/loss"
	"github.com/sells-group/hazard-loss/internal/vuln"
)

// SQLiteStore implements Store on a local SQLite file. Locations are kept
// as plain lon/lat columns.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite opens a SQLite database and configures WAL mode. Writes are
// serialized through a single connection.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS provinces (
	name TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS cities (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	name      TEXT NOT NULL,
	province  TEXT NOT NULL REFERENCES provinces(name),
	unit_cost REAL,
	UNIQUE (province, name)
);

CREATE TABLE IF NOT EXISTS assets (
	id          TEXT PRIMARY KEY,
	lon         REAL NOT NULL,
	lat         REAL NOT NULL,
	floor_area  REAL NOT NULL DEFAULT 0,
	floor_count INTEGER NOT NULL DEFAULT 1,
	province    TEXT NOT NULL,
	city_id     INTEGER REFERENCES cities(id),
	taxonomy    TEXT,
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS hazard_samples (
	location_id   TEXT NOT NULL,
	hazard        TEXT NOT NULL,
	return_period INTEGER NOT NULL,
	intensity     REAL,
	lon           REAL NOT NULL,
	lat           REAL NOT NULL,
	PRIMARY KEY (location_id, hazard, return_period)
);

CREATE TABLE IF NOT EXISTS vulnerability_curves (
	hazard   TEXT NOT NULL,
	curve_id TEXT NOT NULL,
	x        REAL NOT NULL,
	y        REAL NOT NULL,
	PRIMARY KEY (hazard, curve_id, x)
);

CREATE TABLE IF NOT EXISTS direct_losses (
	asset_id   TEXT PRIMARY KEY,
	province   TEXT NOT NULL,
	class      TEXT NOT NULL,
	direct_loss_earthquake_500 REAL NOT NULL DEFAULT 0,
	direct_loss_earthquake_250 REAL NOT NULL DEFAULT 0,
	direct_loss_earthquake_100 REAL NOT NULL DEFAULT 0,
	direct_loss_flood_100 REAL NOT NULL DEFAULT 0,
	direct_loss_flood_50 REAL NOT NULL DEFAULT 0,
	direct_loss_flood_25 REAL NOT NULL DEFAULT 0,
	direct_loss_ashfall_250 REAL NOT NULL DEFAULT 0,
	direct_loss_ashfall_100 REAL NOT NULL DEFAULT 0,
	direct_loss_ashfall_50 REAL NOT NULL DEFAULT 0,
	direct_loss_landslide_5 REAL NOT NULL DEFAULT 0,
	direct_loss_landslide_2 REAL NOT NULL DEFAULT 0,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS aal_province (
	province TEXT PRIMARY KEY COLLATE NOCASE,
	aal_earthquake_500_bmn REAL NOT NULL DEFAULT 0,
	aal_earthquake_500_fs REAL NOT NULL DEFAULT 0,
	aal_earthquake_500_fd REAL NOT NULL DEFAULT 0,
	aal_earthquake_500_total REAL NOT NULL DEFAULT 0,
	aal_earthquake_250_bmn REAL NOT NULL DEFAULT 0,
	aal_earthquake_250_fs REAL NOT NULL DEFAULT 0,
	aal_earthquake_250_fd REAL NOT NULL DEFAULT 0,
	aal_earthquake_250_total REAL NOT NULL DEFAULT 0,
	aal_earthquake_100_bmn REAL NOT NULL DEFAULT 0,
	aal_earthquake_100_fs REAL NOT NULL DEFAULT 0,
	aal_earthquake_100_fd REAL NOT NULL DEFAULT 0,
	aal_earthquake_100_total REAL NOT NULL DEFAULT 0,
	aal_flood_100_bmn REAL NOT NULL DEFAULT 0,
	aal_flood_100_fs REAL NOT NULL DEFAULT 0,
	aal_flood_100_fd REAL NOT NULL DEFAULT 0,
	aal_flood_100_total REAL NOT NULL DEFAULT 0,
	aal_flood_50_bmn REAL NOT NULL DEFAULT 0,
	aal_flood_50_fs REAL NOT NULL DEFAULT 0,
	aal_flood_50_fd REAL NOT NULL DEFAULT 0,
	aal_flood_50_total REAL NOT NULL DEFAULT 0,
	aal_flood_25_bmn REAL NOT NULL DEFAULT 0,
	aal_flood_25_fs REAL NOT NULL DEFAULT 0,
	aal_flood_25_fd REAL NOT NULL DEFAULT 0,
	aal_flood_25_total REAL NOT NULL DEFAULT 0,
	aal_ashfall_250_bmn REAL NOT NULL DEFAULT 0,
	aal_ashfall_250_fs REAL NOT NULL DEFAULT 0,
	aal_ashfall_250_fd REAL NOT NULL DEFAULT 0,
	aal_ashfall_250_total REAL NOT NULL DEFAULT 0,
	aal_ashfall_100_bmn REAL NOT NULL DEFAULT 0,
	aal_ashfall_100_fs REAL NOT NULL DEFAULT 0,
	aal_ashfall_100_fd REAL NOT NULL DEFAULT 0,
	aal_ashfall_100_total REAL NOT NULL DEFAULT 0,
	aal_ashfall_50_bmn REAL NOT NULL DEFAULT 0,
	aal_ashfall_50_fs REAL NOT NULL DEFAULT 0,
	aal_ashfall_50_fd REAL NOT NULL DEFAULT 0,
	aal_ashfall_50_total REAL NOT NULL DEFAULT 0,
	aal_landslide_5_bmn REAL NOT NULL DEFAULT 0,
	aal_landslide_5_fs REAL NOT NULL DEFAULT 0,
	aal_landslide_5_fd REAL NOT NULL DEFAULT 0,
	aal_landslide_5_total REAL NOT NULL DEFAULT 0,
	aal_landslide_2_bmn REAL NOT NULL DEFAULT 0,
	aal_landslide_2_fs REAL NOT NULL DEFAULT 0,
	aal_landslide_2_fd REAL NOT NULL DEFAULT 0,
	aal_landslide_2_total REAL NOT NULL DEFAULT 0
);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteSchema)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteAssetSelect = `SELECT a.id, a.lon, a.lat, a.floor_area, a.floor_count, a.province,
	COALESCE(c.name, ''), COALESCE(c.unit_cost, 0), COALESCE(a.taxonomy, '')
FROM assets a LEFT JOIN cities c ON c.id = a.city_id`

func scanSQLiteAsset(sc scanner) (*asset.Asset, error) {
	var a asset.Asset
	var lon, lat float64
	if err := sc.Scan(&a.ID, &lon, &lat, &a.FloorArea, &a.FloorCount, &a.Province, &a.City, &a.UnitCost, &a.Taxonomy); err != nil {
		return nil, err
	}
	a.Location = geospatial.NewPoint(lon, lat)
	return &a, nil
}

func (s *SQLiteStore) ListAssets(ctx context.Context) ([]asset.Asset, error) {
	return listSQLiteAssets(ctx, s.db)
}

func listSQLiteAssets(ctx context.Context, q sqliteQuerier) ([]asset.Asset, error) {
	rows, err := q.QueryContext(ctx, sqliteAssetSelect+" ORDER BY a.id")
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list assets")
	}
	defer rows.Close() //nolint:errcheck

	var out []asset.Asset
	for rows.Next() {
		a, err := scanSQLiteAsset(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan asset")
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate assets")
}

func (s *SQLiteStore) GetAsset(ctx context.Context, id string) (*asset.Asset, error) {
	a, err := scanSQLiteAsset(s.db.QueryRowContext(ctx, sqliteAssetSelect+" WHERE a.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: asset %q", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get asset %q", id)
	}
	return a, nil
}

func (s *SQLiteStore) ListProvinces(ctx context.Context) ([]string, error) {
	return listSQLiteProvinces(ctx, s.db)
}

func listSQLiteProvinces(ctx context.Context, q sqliteQuerier) ([]string, error) {
	rows, err := q.QueryContext(ctx, "SELECT name FROM provinces ORDER BY name")
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list provinces")
	}
	defer rows.Close() //nolint:errcheck

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan province")
		}
		out = append(out, name)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate provinces")
}

func (s *SQLiteStore) LoadSamples(ctx context.Context, h hazard.Hazard) ([]geospatial.Sample, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT location_id, return_period, intensity, lon, lat
		FROM hazard_samples WHERE hazard = ? ORDER BY location_id, return_period DESC`, h.String())
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load %s samples", h)
	}
	defer rows.Close() //nolint:errcheck

	var raw []sampleRow
	for rows.Next() {
		var r sampleRow
		var intensity sql.NullFloat64
		if err := rows.Scan(&r.LocationID, &r.ReturnPeriod, &intensity, &r.Lon, &r.Lat); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan sample")
		}
		if intensity.Valid {
			v := intensity.Float64
			r.Intensity = &v
		}
		raw = append(raw, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate samples")
	}
	return pivotSamples(h, raw)
}

func (s *SQLiteStore) LoadCurves(ctx context.Context, h hazard.Hazard) ([]*vuln.Curve, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT curve_id, x, y FROM vulnerability_curves WHERE hazard = ? ORDER BY curve_id, x", h.String())
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load %s curves", h)
	}
	defer rows.Close() //nolint:errcheck

	var raw []curveRow
	for rows.Next() {
		var r curveRow
		if err := rows.Scan(&r.ID, &r.X, &r.Y); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan curve point")
		}
		raw = append(raw, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate curves")
	}
	return buildCurves(h, raw)
}

// inTx runs fn in a transaction, rolling back on error.
func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit tx")
}

// sqliteQuerier is satisfied by *sql.DB, *sql.Tx and *sql.Conn.
type sqliteQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// immediate runs fn in a BEGIN IMMEDIATE transaction on one connection.
// The database write lock is held before fn reads anything, so result
// transactions from other processes cannot interleave with it.
func (s *SQLiteStore) immediate(ctx context.Context, fn func(q sqliteQuerier) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return eris.Wrap(err, "sqlite: acquire conn")
	}
	defer conn.Close() //nolint:errcheck

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return eris.Wrap(err, "sqlite: begin immediate")
	}
	if err := fn(conn); err != nil {
		_, _ = conn.ExecContext(context.WithoutCancel(ctx), "ROLLBACK")
		return err
	}
	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		_, _ = conn.ExecContext(context.WithoutCancel(ctx), "ROLLBACK")
		return eris.Wrap(err, "sqlite: commit")
	}
	return nil
}

func (s *SQLiteStore) UpsertCurves(ctx context.Context, curves []*vuln.Curve) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, c := range curves {
			for i := range c.X {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO vulnerability_curves (hazard, curve_id, x, y) VALUES (?, ?, ?, ?)
					ON CONFLICT (hazard, curve_id, x) DO UPDATE SET y = excluded.y`,
					c.Hazard.String(), string(c.ID), c.X[i], c.Y[i],
				); err != nil {
					return eris.Wrapf(err, "sqlite: upsert curve %s/%s", c.Hazard, c.ID)
				}
			}
		}
		return nil
	})
}

func (s *SQLiteStore) UpsertSamples(ctx context.Context, samples []geospatial.Sample) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, si := range sampleImportRows(samples) {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO hazard_samples (location_id, hazard, return_period, intensity, lon, lat)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT (location_id, hazard, return_period) DO UPDATE SET
					intensity = excluded.intensity, lon = excluded.lon, lat = excluded.lat`,
				si.sample.LocationID, si.sample.Hazard.String(), si.scenario.ReturnPeriod(),
				si.intensity, si.sample.Lon, si.sample.Lat,
			); err != nil {
				return eris.Wrapf(err, "sqlite: upsert sample %s", si.sample.LocationID)
			}
		}
		return nil
	})
}

func insertSQL(table string, cols []string) string {
	ph := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	return "INSERT INTO " + table + " (" + strings.Join(cols, ", ") + ") VALUES (" + ph + ")"
}

func (s *SQLiteStore) Batch(ctx context.Context, fn func(tx BatchTx) error) error {
	return s.immediate(ctx, func(q sqliteQuerier) error {
		return fn(&sqliteBatchTx{q: q})
	})
}

func (s *SQLiteStore) ReplaceResults(ctx context.Context, records []loss.Record, table *aal.Table) error {
	return s.Batch(ctx, func(tx BatchTx) error {
		return tx.ReplaceResults(ctx, records, table)
	})
}

func (s *SQLiteStore) Update(ctx context.Context, fn func(tx ResultTx) error) error {
	return s.immediate(ctx, func(q sqliteQuerier) error {
		return fn(&sqliteResultTx{q: q})
	})
}

type sqliteBatchTx struct {
	q sqliteQuerier
}

func (t *sqliteBatchTx) ListAssets(ctx context.Context) ([]asset.Asset, error) {
	return listSQLiteAssets(ctx, t.q)
}

func (t *sqliteBatchTx) ListProvinces(ctx context.Context) ([]string, error) {
	return listSQLiteProvinces(ctx, t.q)
}

func (t *sqliteBatchTx) ReplaceResults(ctx context.Context, records []loss.Record, table *aal.Table) error {
	for _, name := range []string{tableDirectLosses, tableAAL} {
		if _, err := t.q.ExecContext(ctx, "DELETE FROM "+name); err != nil {
			return eris.Wrapf(err, "sqlite: clear %s", name)
		}
	}
	insDirect := insertSQL(tableDirectLosses, directLossColumns())
	for i := range records {
		if _, err := t.q.ExecContext(ctx, insDirect, directLossRow(&records[i])...); err != nil {
			return eris.Wrapf(err, "sqlite: insert direct loss %q", records[i].AssetID)
		}
	}
	insAAL := insertSQL(tableAAL, aalColumns())
	rows := table.Rows()
	for i := range rows {
		if _, err := t.q.ExecContext(ctx, insAAL, aalRow(&rows[i])...); err != nil {
			return eris.Wrapf(err, "sqlite: insert aal %q", rows[i].Province)
		}
	}
	return nil
}

var sqliteDirectLossSelect = "SELECT " + strings.Join(directLossColumns(), ", ") + " FROM " + tableDirectLosses + " WHERE asset_id = ?"

func (s *SQLiteStore) DirectLoss(ctx context.Context, assetID string) (*loss.Record, error) {
	rec, err := scanDirectLoss(s.db.QueryRowContext(ctx, sqliteDirectLossSelect, assetID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: direct loss %q", assetID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get direct loss %q", assetID)
	}
	return rec, nil
}

func (s *SQLiteStore) AALRows(ctx context.Context) ([]aal.Row, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+strings.Join(aalColumns(), ", ")+" FROM "+tableAAL+" ORDER BY province")
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list aal")
	}
	defer rows.Close() //nolint:errcheck

	var out []aal.Row
	for rows.Next() {
		r, err := scanAALRow(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan aal row")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate aal")
}

type sqliteResultTx struct {
	q sqliteQuerier
}

func (t *sqliteResultTx) DirectLoss(ctx context.Context, assetID string) (*loss.Record, error) {
	rec, err := scanDirectLoss(t.q.QueryRowContext(ctx, sqliteDirectLossSelect, assetID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: read direct loss %q", assetID)
	}
	return rec, nil
}

func (t *sqliteResultTx) PutDirectLoss(ctx context.Context, rec loss.Record) error {
	cols := directLossColumns()
	sets := make([]string, 0, len(cols))
	for _, c := range cols[1:] {
		sets = append(sets, c+" = excluded."+c)
	}
	sets = append(sets, "updated_at = datetime('now')")
	q := insertSQL(tableDirectLosses, cols) + " ON CONFLICT (asset_id) DO UPDATE SET " + strings.Join(sets, ", ")
	_, err := t.q.ExecContext(ctx, q, directLossRow(&rec)...)
	return eris.Wrapf(err, "sqlite: write direct loss %q", rec.AssetID)
}

func (t *sqliteResultTx) DeleteDirectLoss(ctx context.Context, assetID string) error {
	_, err := t.q.ExecContext(ctx, "DELETE FROM "+tableDirectLosses+" WHERE asset_id = ?", assetID)
	return eris.Wrapf(err, "sqlite: delete direct loss %q", assetID)
}

func sqlitePlaceholder(n int) string { return fmt.Sprintf("?%d", n) }

// ApplyDeltas checks every province first so a missing row leaves the
// transaction untouched.
func (t *sqliteResultTx) ApplyDeltas(ctx context.Context, deltas []aal.Delta) error {
	canonical := make(map[string]string)
	for _, d := range deltas {
		key := asset.ProvinceKey(d.Province)
		if _, ok := canonical[key]; ok {
			continue
		}
		var name string
		err := t.q.QueryRowContext(ctx, "SELECT province FROM "+tableAAL+" WHERE province = ?", d.Province).Scan(&name)
		if errors.Is(err, sql.ErrNoRows) {
			return eris.Wrapf(aal.ErrUnknownProvince, "sqlite: province %q", d.Province)
		}
		if err != nil {
			return eris.Wrapf(err, "sqlite: find province %q", d.Province)
		}
		canonical[key] = name
	}
	for _, d := range deltas {
		name := canonical[asset.ProvinceKey(d.Province)]
		if _, err := t.q.ExecContext(ctx, deltaUpdateSQL(d.Class, sqlitePlaceholder), deltaArgs(d, name)...); err != nil {
			return eris.Wrapf(err, "sqlite: apply delta to %q", name)
		}
	}
	return nil
}
