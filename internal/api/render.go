package api

import (
	"github.com/sells-group/hazard-loss/internal/aal"
	"github.com/sells-group/hazard-loss/internal/asset"
	"github.com/sells-group/hazard-loss/internal/hazard"
	"github.com/sells-group/hazard-loss/internal/loss"
)

// RecordJSON flattens a direct-loss record into its stored column names.
func RecordJSON(rec *loss.Record) map[string]any {
	out := map[string]any{
		"asset_id": rec.AssetID,
		"province": rec.Province,
		"class":    rec.Class.String(),
	}
	for s := hazard.Scenario(0); s < hazard.NumScenarios; s++ {
		out[s.DirectLossColumn()] = rec.Losses[s]
	}
	return out
}

// AALRowJSON flattens an AAL row into its stored column names.
func AALRowJSON(row *aal.Row) map[string]any {
	out := map[string]any{"province": row.Province}
	for s := hazard.Scenario(0); s < hazard.NumScenarios; s++ {
		for _, c := range asset.Classes {
			out[s.AALColumn(c.Suffix())] = row.Cells[s][c]
		}
		out[s.AALColumn("total")] = row.Totals[s]
	}
	return out
}
