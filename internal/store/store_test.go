package store

import (
	"testing"

	"go.uber.org/zap"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/hazard-loss/internal/aal"
	"github.com/sells-group/hazard-loss/internal/asset"
	"github.com/sells-group/hazard-loss/internal/hazard"
	"github.com/sells-group/hazard-loss/internal/loss"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func testRecord(id, province string, class asset.Class, v float64) loss.Record {
	rec := loss.Record{AssetID: id, Province: province, Class: class}
	for s := range rec.Losses {
		rec.Losses[s] = v * float64(s+1)
	}
	return rec
}

func TestDirectLossColumns(t *testing.T) {
	cols := directLossColumns()
	assert.Len(t, cols, 3+hazard.NumScenarios)
	assert.Equal(t, "asset_id", cols[0])
	assert.Equal(t, "direct_loss_earthquake_500", cols[3])
	assert.Equal(t, "direct_loss_landslide_2", cols[len(cols)-1])
}

func TestAALColumns(t *testing.T) {
	cols := aalColumns()
	assert.Len(t, cols, 1+hazard.NumScenarios*4)
	assert.Equal(t, []string{"province", "aal_earthquake_500_bmn", "aal_earthquake_500_fs", "aal_earthquake_500_fd", "aal_earthquake_500_total"}, cols[:5])
}

func TestDeltaUpdateSQL(t *testing.T) {
	q := deltaUpdateSQL(asset.FS, pgPlaceholder)
	assert.Contains(t, q, "aal_flood_50_fs = aal_flood_50_fs + $5")
	assert.Contains(t, q, "aal_flood_50_total = aal_flood_50_bmn + (aal_flood_50_fs + $5) + aal_flood_50_fd")
	assert.Contains(t, q, "WHERE province = $12")
	assert.NotContains(t, q, "$13")

	args := deltaArgs(aal.Delta{Province: "Bali", Class: asset.FS}, "Bali")
	assert.Len(t, args, hazard.NumScenarios+1)
	assert.Equal(t, "Bali", args[len(args)-1])
}

func TestPivotSamples(t *testing.T) {
	v := 7.5
	rows := []sampleRow{
		{LocationID: "a", ReturnPeriod: 100, Intensity: &v, Lon: 106.8, Lat: -6.2},
		{LocationID: "a", ReturnPeriod: 50},
		{LocationID: "b", ReturnPeriod: 25, Intensity: &v},
	}
	samples, err := pivotSamples(hazard.Flood, rows)
	assert.NoError(t, err)
	assert.Len(t, samples, 2)
	assert.Equal(t, 7.5, samples[0].Intensity[hazard.Flood100].OrZero())
	assert.True(t, samples[0].Intensity[hazard.Flood50].IsMissing())
	assert.True(t, samples[0].Intensity[hazard.Flood25].IsMissing())
	assert.Equal(t, 106.8, samples[0].Lon)

	_, err = pivotSamples(hazard.Flood, []sampleRow{{LocationID: "x", ReturnPeriod: 500}})
	assert.Error(t, err)
}

func TestBuildCurves(t *testing.T) {
	curves, err := buildCurves(hazard.Earthquake, []curveRow{
		{ID: "cr", X: 5, Y: 0.1},
		{ID: "cr", X: 9, Y: 0.9},
		{ID: "MUR", X: 5, Y: 0.2},
	})
	assert.NoError(t, err)
	assert.Len(t, curves, 2)
	assert.Equal(t, "CR", string(curves[0].ID))
	assert.Equal(t, 2, curves[0].Len())
}
