package store

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/hazard-loss/internal/aal"
	"github.com/sells-group/hazard-loss/internal/asset"
	"github.com/sells-group/hazard-loss/internal/hazard"
	"github.com/sells-group/hazard-loss/internal/loss"
)

func TestMemoryStore_Assets(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.PutAsset(asset.Asset{ID: "FS_2", Province: "Bali"})
	m.PutAsset(asset.Asset{ID: "BMN_1", Province: "Aceh"})

	list, err := m.ListAssets(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "BMN_1", list[0].ID)

	m.DeleteAsset("BMN_1")
	_, err = m.GetAsset(ctx, "BMN_1")
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestMemoryStore_UpdateCommitsOnSuccess(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.SetProvinces([]string{"Bali"})

	rec := testRecord("BMN_1", "Bali", asset.BMN, 1000)
	err := m.Update(ctx, func(tx ResultTx) error {
		prev, err := tx.DirectLoss(ctx, rec.AssetID)
		require.NoError(t, err)
		assert.Nil(t, prev)
		if err := tx.PutDirectLoss(ctx, rec); err != nil {
			return err
		}
		return tx.ApplyDeltas(ctx, aal.Diff(nil, &rec))
	})
	require.NoError(t, err)

	got, err := m.DirectLoss(ctx, "BMN_1")
	require.NoError(t, err)
	assert.Equal(t, rec, *got)

	rows, err := m.AALRows(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.InDelta(t, 1000*hazard.EQ500.Weight(), rows[0].Cells[hazard.EQ500][asset.BMN], 1e-9)
}

func TestMemoryStore_UpdateRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.SetProvinces([]string{"Bali"})

	rec := testRecord("FD_1", "Papua", asset.FD, 10)
	err := m.Update(ctx, func(tx ResultTx) error {
		if err := tx.PutDirectLoss(ctx, rec); err != nil {
			return err
		}
		return tx.ApplyDeltas(ctx, aal.Diff(nil, &rec))
	})
	require.Error(t, err)
	assert.True(t, eris.Is(err, aal.ErrUnknownProvince))

	_, err = m.DirectLoss(ctx, "FD_1")
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestMemoryStore_ReplaceResults(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	records := []loss.Record{
		testRecord("BMN_1", "Bali", asset.BMN, 100),
		testRecord("FS_1", "Aceh", asset.FS, 50),
	}
	require.NoError(t, m.ReplaceResults(ctx, records, aal.Build([]string{"Aceh", "Bali", "Papua"}, records)))

	rows, err := m.AALRows(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	require.NoError(t, m.ReplaceResults(ctx, nil, aal.NewTable([]string{"Bali"})))
	_, err = m.DirectLoss(ctx, "BMN_1")
	assert.True(t, eris.Is(err, ErrNotFound))
}
