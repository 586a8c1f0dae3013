package geospatial

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/hazard-loss/internal/hazard"
)

func TestNearestSample_Found(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM hazard_samples").
		WithArgs(106.8, -6.2, "flood", 50, 700.0).
		WillReturnRows(pgxmock.NewRows([]string{"location_id", "intensity", "dist", "x", "y"}).
			AddRow("F-12", 0.8, 120.5, 106.801, -6.2))

	r, err := NearestSample(context.Background(), mock, hazard.Flood50, 106.8, -6.2, NearestOptions{})
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, "F-12", r.LocationID)
	assert.Equal(t, 0.8, r.Intensity)
	assert.Equal(t, 120.5, r.Distance)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNearestSample_None(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM hazard_samples").
		WithArgs(106.8, -6.2, "earthquake", 500, 9500.0).
		WillReturnError(pgx.ErrNoRows)

	r, err := NearestSample(context.Background(), mock, hazard.EQ500, 106.8, -6.2, NearestOptions{})
	require.NoError(t, err)
	assert.Nil(t, r)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNearestSample_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM hazard_samples").WillReturnError(fmt.Errorf("connection refused"))

	_, err = NearestSample(context.Background(), mock, hazard.Slide2, 1, 2, NearestOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nearest landslide_2 sample")
}

func TestNearestSample_ConfiguredThreshold(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`::geography`).
		WithArgs(106.8, -6.2, "earthquake", 500, 2000.0).
		WillReturnError(pgx.ErrNoRows)

	r, err := NearestSample(context.Background(), mock, hazard.EQ500, 106.8, -6.2, NearestOptions{Threshold: 2000})
	require.NoError(t, err)
	assert.Nil(t, r)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNearestSample_Planar(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`ST_Distance\(geom, ST_SetSRID\(ST_MakePoint\(\$1, \$2\), ST_SRID\(geom\)\)\)`).
		WithArgs(500100.0, 9100200.0, "flood", 25, 300.0).
		WillReturnRows(pgxmock.NewRows([]string{"location_id", "intensity", "dist", "x", "y"}).
			AddRow("F-3", 1.2, 150.0, 500000.0, 9100100.0))

	r, err := NearestSample(context.Background(), mock, hazard.Flood25, 500100, 9100200,
		NearestOptions{Metric: Planar, Threshold: 300})
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, "F-3", r.LocationID)
	assert.Equal(t, 150.0, r.Distance)
	assert.NoError(t, mock.ExpectationsWereMet())
}
