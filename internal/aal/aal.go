// Package aal aggregates direct losses into province Average Annual Loss.
//
// Every cell is Σ loss × scenario weight over the assets of one province
// and class. A row's total for a scenario is always the sum of its class
// cells; mutators recompute it from the cells rather than accumulating it.
package aal

import (
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/hazard-loss/internal/asset"
	"github.com/sells-group/hazard-loss/internal/hazard"
	"github.com/sells-group/hazard-loss/internal/loss"
)

// ErrUnknownProvince is returned when a delta targets a province with no row.
var ErrUnknownProvince = eris.New("aal: unknown province")

// Row is the AAL of one province.
type Row struct {
	Province string                                        `json:"province"`
	Cells    [hazard.NumScenarios][asset.NumClasses]float64 `json:"cells"`
	Totals   hazard.Values                                 `json:"totals"`
}

// Class returns the AAL vector of one class.
func (r *Row) Class(c asset.Class) hazard.Values {
	var v hazard.Values
	for s := range v {
		v[s] = r.Cells[s][c]
	}
	return v
}

func (r *Row) add(c asset.Class, weighted hazard.Values) {
	for s := range weighted {
		r.Cells[s][c] += weighted[s]
		var sum float64
		for _, cls := range asset.Classes {
			sum += r.Cells[s][cls]
		}
		r.Totals[s] = sum
	}
}

// Delta is a weighted change to one (province, class) cell vector.
type Delta struct {
	Province string
	Class    asset.Class
	Values   hazard.Values
}

// Diff returns the cell changes that turn the contribution of prev into
// that of next. Either may be nil for a create or a delete. A record that
// moved province or class produces a removal and an addition.
func Diff(prev, next *loss.Record) []Delta {
	switch {
	case prev == nil && next == nil:
		return nil
	case prev == nil:
		return []Delta{{next.Province, next.Class, next.Losses.Weighted()}}
	case next == nil:
		return []Delta{{prev.Province, prev.Class, negate(prev.Losses.Weighted())}}
	case asset.ProvinceKey(prev.Province) == asset.ProvinceKey(next.Province) && prev.Class == next.Class:
		return []Delta{{next.Province, next.Class, next.Losses.Sub(prev.Losses).Weighted()}}
	}
	return []Delta{
		{prev.Province, prev.Class, negate(prev.Losses.Weighted())},
		{next.Province, next.Class, next.Losses.Weighted()},
	}
}

func negate(v hazard.Values) hazard.Values {
	for i := range v {
		v[i] = -v[i]
	}
	return v
}

// Table is the set of province rows.
type Table struct {
	rows map[string]*Row
}

// NewTable returns a table with a zero row for every province.
func NewTable(provinces []string) *Table {
	t := &Table{rows: make(map[string]*Row, len(provinces))}
	for _, p := range provinces {
		t.ensure(p)
	}
	return t
}

// FromRows wraps existing rows.
func FromRows(rows []Row) *Table {
	t := &Table{rows: make(map[string]*Row, len(rows))}
	for i := range rows {
		r := rows[i]
		t.rows[asset.ProvinceKey(r.Province)] = &r
	}
	return t
}

func (t *Table) ensure(province string) *Row {
	key := asset.ProvinceKey(province)
	r, ok := t.rows[key]
	if !ok {
		r = &Row{Province: asset.NormalizeProvince(province)}
		t.rows[key] = r
	}
	return r
}

// AddProvince adds a zero row for province if it has none.
func (t *Table) AddProvince(province string) {
	t.ensure(province)
}

// Build groups records by province and class and sums their weighted
// losses. Provinces without assets keep a zero row; provinces that only
// appear on records get one.
func Build(provinces []string, records []loss.Record) *Table {
	t := NewTable(provinces)
	for i := range records {
		r := &records[i]
		t.ensure(r.Province).add(r.Class, r.Losses.Weighted())
	}
	return t
}

// Row returns a copy of the row for province.
func (t *Table) Row(province string) (Row, bool) {
	r, ok := t.rows[asset.ProvinceKey(province)]
	if !ok {
		return Row{}, false
	}
	return *r, true
}

// Rows returns copies of all rows ordered by province name.
func (t *Table) Rows() []Row {
	out := make([]Row, 0, len(t.rows))
	for _, r := range t.rows {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Province < out[j].Province })
	return out
}

// Len returns the number of provinces.
func (t *Table) Len() int { return len(t.rows) }

// Apply adds the deltas. Every target province must already have a row;
// otherwise nothing is changed and ErrUnknownProvince is returned.
func (t *Table) Apply(deltas []Delta) error {
	for _, d := range deltas {
		if _, ok := t.rows[asset.ProvinceKey(d.Province)]; !ok {
			return eris.Wrapf(ErrUnknownProvince, "aal: province %q", d.Province)
		}
	}
	for _, d := range deltas {
		t.rows[asset.ProvinceKey(d.Province)].add(d.Class, d.Values)
	}
	return nil
}

// GrandTotal sums every row into one national row.
func (t *Table) GrandTotal() Row {
	total := Row{Province: "Total"}
	for _, r := range t.rows {
		for s := range r.Cells {
			for c := range r.Cells[s] {
				total.Cells[s][c] += r.Cells[s][c]
			}
			total.Totals[s] += r.Totals[s]
		}
	}
	return total
}
