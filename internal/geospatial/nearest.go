package geospatial

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/hazard-loss/internal/db"
	"github.com/sells-group/hazard-loss/internal/hazard"
)

// NearestResult is a sample found by NearestSample.
type NearestResult struct {
	LocationID string  `json:"location_id"`
	Intensity  float64 `json:"intensity"`
	Distance   float64 `json:"distance_m"`
	Lon        float64 `json:"lon"`
	Lat        float64 `json:"lat"`
}

const (
	geodesicNearestSQL = `SELECT location_id, intensity,
	ST_Distance(geom::geography, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography) AS dist,
	ST_X(geom), ST_Y(geom)
FROM hazard_samples
WHERE hazard = $3 AND return_period = $4
	AND intensity IS NOT NULL AND intensity <> 0
	AND ST_DWithin(geom::geography, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, $5)
ORDER BY dist, location_id
LIMIT 1`

	planarNearestSQL = `SELECT location_id, intensity,
	ST_Distance(geom, ST_SetSRID(ST_MakePoint($1, $2), ST_SRID(geom))) AS dist,
	ST_X(geom), ST_Y(geom)
FROM hazard_samples
WHERE hazard = $3 AND return_period = $4
	AND intensity IS NOT NULL AND intensity <> 0
	AND ST_DWithin(geom, ST_SetSRID(ST_MakePoint($1, $2), ST_SRID(geom)), $5)
ORDER BY dist, location_id
LIMIT 1`
)

// NearestOptions mirrors the association settings of the in-memory index.
// A zero Threshold means the hazard default.
type NearestOptions struct {
	Metric    Metric
	Threshold float64
}

// NearestSample runs the association query in PostGIS. It returns nil, nil
// when no eligible sample lies within the threshold.
func NearestSample(ctx context.Context, pool db.Pool, sc hazard.Scenario, lon, lat float64, opts NearestOptions) (*NearestResult, error) {
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = sc.Hazard().Threshold()
	}
	query := geodesicNearestSQL
	if opts.Metric == Planar {
		query = planarNearestSQL
	}

	var r NearestResult
	err := pool.QueryRow(ctx, query,
		lon, lat, sc.Hazard().String(), sc.ReturnPeriod(), threshold,
	).Scan(&r.LocationID, &r.Intensity, &r.Distance, &r.Lon, &r.Lat)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "geospatial: nearest %s sample", sc)
	}
	return &r, nil
}
