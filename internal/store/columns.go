package store

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/hazard-loss/internal/aal"
	"github.com/sells-group/hazard-loss/internal/asset"
	"github.com/sells-group/hazard-loss/internal/geospatial"
	"github.com/sells-group/hazard-loss/internal/hazard"
	"github.com/sells-group/hazard-loss/internal/loss"
	"github.com/sells-group/hazard-loss/internal/vuln"
)

const (
	tableDirectLosses = "direct_losses"
	tableAAL          = "aal_province"
	totalSuffix       = "total"
)

// directLossColumns lists the direct_losses columns in storage order.
func directLossColumns() []string {
	cols := []string{"asset_id", "province", "class"}
	for s := hazard.Scenario(0); s < hazard.NumScenarios; s++ {
		cols = append(cols, s.DirectLossColumn())
	}
	return cols
}

// aalColumns lists the aal_province columns in storage order.
func aalColumns() []string {
	cols := []string{"province"}
	for s := hazard.Scenario(0); s < hazard.NumScenarios; s++ {
		for _, c := range asset.Classes {
			cols = append(cols, s.AALColumn(c.Suffix()))
		}
		cols = append(cols, s.AALColumn(totalSuffix))
	}
	return cols
}

func directLossRow(r *loss.Record) []any {
	row := make([]any, 0, 3+hazard.NumScenarios)
	row = append(row, r.AssetID, r.Province, r.Class.String())
	for _, v := range r.Losses {
		row = append(row, v)
	}
	return row
}

func aalRow(r *aal.Row) []any {
	row := make([]any, 0, 1+hazard.NumScenarios*(asset.NumClasses+1))
	row = append(row, r.Province)
	for s := range r.Cells {
		for _, c := range asset.Classes {
			row = append(row, r.Cells[s][c])
		}
		row = append(row, r.Totals[s])
	}
	return row
}

// scanner is satisfied by pgx.Row, pgx.Rows and *sql.Row(s).
type scanner interface {
	Scan(dest ...any) error
}

func scanDirectLoss(sc scanner) (*loss.Record, error) {
	var rec loss.Record
	var class string
	dest := []any{&rec.AssetID, &rec.Province, &class}
	for i := range rec.Losses {
		dest = append(dest, &rec.Losses[i])
	}
	if err := sc.Scan(dest...); err != nil {
		return nil, err
	}
	c, err := asset.ParseClass(class)
	if err != nil {
		return nil, err
	}
	rec.Class = c
	return &rec, nil
}

func scanAALRow(sc scanner) (aal.Row, error) {
	var r aal.Row
	dest := []any{&r.Province}
	for s := range r.Cells {
		for _, c := range asset.Classes {
			dest = append(dest, &r.Cells[s][c])
		}
		dest = append(dest, &r.Totals[s])
	}
	err := sc.Scan(dest...)
	return r, err
}

// deltaUpdateSQL builds the statement adding one class vector to a province
// row. Totals are rewritten as the sum of the updated class cells. ph
// renders the n-th placeholder; the province is the last argument.
func deltaUpdateSQL(class asset.Class, ph func(n int) string) string {
	var sets []string
	for s := hazard.Scenario(0); s < hazard.NumScenarios; s++ {
		p := ph(int(s) + 1)
		col := s.AALColumn(class.Suffix())
		sets = append(sets, col+" = "+col+" + "+p)

		terms := make([]string, 0, asset.NumClasses)
		for _, c := range asset.Classes {
			other := s.AALColumn(c.Suffix())
			if c == class {
				terms = append(terms, "("+other+" + "+p+")")
			} else {
				terms = append(terms, other)
			}
		}
		sets = append(sets, s.AALColumn(totalSuffix)+" = "+strings.Join(terms, " + "))
	}
	return "UPDATE " + tableAAL + " SET " + strings.Join(sets, ", ") +
		" WHERE province = " + ph(hazard.NumScenarios+1)
}

func deltaArgs(d aal.Delta, province string) []any {
	args := make([]any, 0, hazard.NumScenarios+1)
	for _, v := range d.Values {
		args = append(args, v)
	}
	return append(args, province)
}

// sampleRow is one long-format hazard_samples row.
type sampleRow struct {
	LocationID   string
	ReturnPeriod int
	Intensity    *float64
	Lon, Lat     float64
}

// pivotSamples folds long-format rows into one Sample per location.
func pivotSamples(h hazard.Hazard, rows []sampleRow) ([]geospatial.Sample, error) {
	byID := make(map[string]int)
	var out []geospatial.Sample
	for _, r := range rows {
		sc, ok := hazard.Lookup(h, r.ReturnPeriod)
		if !ok {
			return nil, eris.Errorf("store: %s has no %d-year scenario", h, r.ReturnPeriod)
		}
		i, seen := byID[r.LocationID]
		if !seen {
			i = len(out)
			byID[r.LocationID] = i
			out = append(out, geospatial.Sample{LocationID: r.LocationID, Hazard: h, Lon: r.Lon, Lat: r.Lat})
		}
		out[i].Intensity[sc] = hazard.FromPtr(r.Intensity)
	}
	return out, nil
}

type curveRow struct {
	ID   string
	X, Y float64
}

func buildCurves(h hazard.Hazard, rows []curveRow) ([]*vuln.Curve, error) {
	pts := make(map[vuln.CurveID][]vuln.Point)
	var order []vuln.CurveID
	for _, r := range rows {
		id, err := vuln.NormalizeID(h, r.ID)
		if err != nil {
			return nil, err
		}
		if _, ok := pts[id]; !ok {
			order = append(order, id)
		}
		pts[id] = append(pts[id], vuln.Point{X: r.X, Y: r.Y})
	}
	out := make([]*vuln.Curve, 0, len(order))
	for _, id := range order {
		out = append(out, vuln.NewCurve(h, id, pts[id]))
	}
	return out, nil
}

// sampleImportRows flattens samples to (location, hazard, return period,
// intensity, lon, lat) tuples, one per scenario of the sample's hazard.
func sampleImportRows(samples []geospatial.Sample) []sampleImport {
	var out []sampleImport
	for i := range samples {
		s := &samples[i]
		for _, sc := range s.Hazard.Scenarios() {
			var intensity *float64
			if v, ok := s.Intensity[sc].Get(); ok {
				intensity = &v
			}
			out = append(out, sampleImport{s, sc, intensity})
		}
	}
	return out
}

type sampleImport struct {
	sample    *geospatial.Sample
	scenario  hazard.Scenario
	intensity *float64
}
