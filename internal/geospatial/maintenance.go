package geospatial

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/hazard-loss/internal/db"
)

// TableStats holds size and row count information for an engine table.
type TableStats struct {
	TableName  string `json:"table_name"`
	RowCount   int64  `json:"row_count"`
	TotalSize  string `json:"total_size"`
	IndexSize  string `json:"index_size"`
	HasSpatial bool   `json:"has_spatial"`
}

// engineTables lists the tables maintenance operates on.
var engineTables = []string{
	"provinces",
	"cities",
	"assets",
	"hazard_samples",
	"vulnerability_curves",
	"direct_losses",
	"aal_province",
}

// spatialIndexes maps each point table to its GIST index. Order is fixed so
// CLUSTER runs deterministically.
var spatialIndexes = [][2]string{
	{"hazard_samples", "idx_hazard_samples_geom"},
	{"assets", "idx_assets_geom"},
}

// VacuumAnalyze runs VACUUM ANALYZE on the engine tables. Run it after a
// large sample import so the nearest-sample plan uses the new statistics.
func VacuumAnalyze(ctx context.Context, pool db.Pool) error {
	for _, table := range engineTables {
		zap.L().Info("geospatial: vacuum analyze", zap.String("table", table))
		if _, err := pool.Exec(ctx, fmt.Sprintf("VACUUM ANALYZE %s", table)); err != nil {
			return eris.Wrapf(err, "geospatial: vacuum analyze %s", table)
		}
	}
	return nil
}

// ClusterSpatialIndexes physically reorders the point tables by their
// GIST index.
func ClusterSpatialIndexes(ctx context.Context, pool db.Pool) error {
	for _, ti := range spatialIndexes {
		zap.L().Info("geospatial: cluster", zap.String("table", ti[0]), zap.String("index", ti[1]))
		if _, err := pool.Exec(ctx, fmt.Sprintf("CLUSTER %s USING %s", ti[0], ti[1])); err != nil {
			return eris.Wrapf(err, "geospatial: cluster %s using %s", ti[0], ti[1])
		}
	}
	return nil
}

const tableStatsSQL = `
	SELECT
		relname AS table_name,
		n_live_tup AS row_count,
		pg_size_pretty(pg_total_relation_size(relid)) AS total_size,
		pg_size_pretty(pg_indexes_size(relid)) AS index_size,
		EXISTS (
			SELECT 1 FROM pg_indexes
			WHERE schemaname = s.schemaname AND tablename = s.relname
			AND indexdef LIKE '%USING gist%'
		) AS has_spatial
	FROM pg_stat_user_tables s
	WHERE relname = ANY($1)
	ORDER BY pg_total_relation_size(relid) DESC`

// GetTableStats returns size and row count statistics for the engine tables.
func GetTableStats(ctx context.Context, pool db.Pool) ([]TableStats, error) {
	rows, err := pool.Query(ctx, tableStatsSQL, engineTables)
	if err != nil {
		return nil, eris.Wrap(err, "geospatial: query table stats")
	}
	defer rows.Close()

	var stats []TableStats
	for rows.Next() {
		var s TableStats
		if err := rows.Scan(&s.TableName, &s.RowCount, &s.TotalSize, &s.IndexSize, &s.HasSpatial); err != nil {
			return nil, eris.Wrap(err, "geospatial: scan table stats row")
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "geospatial: iterate table stats rows")
	}
	return stats, nil
}
