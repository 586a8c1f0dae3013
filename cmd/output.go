package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sells-group/hazard-loss/internal/aal"
	"github.com/sells-group/hazard-loss/internal/engine"
	"github.com/sells-group/hazard-loss/internal/hazard"
	"github.com/sells-group/hazard-loss/internal/loss"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printRecord(w io.Writer, rec *loss.Record) {
	fmt.Fprintf(w, "asset %s  province=%s  class=%s\n", rec.AssetID, rec.Province, rec.Class)
	for s := hazard.Scenario(0); s < hazard.NumScenarios; s++ {
		fmt.Fprintf(w, "  %-18s %20.2f\n", s, rec.Losses[s])
	}
}

func printSummary(w io.Writer, sum *engine.Summary) {
	fmt.Fprintf(w, "run %s: %d assets, %d records, %d provinces in %s\n",
		sum.RunID, sum.Assets, sum.Records, sum.Provinces, sum.FinishedAt.Sub(sum.StartedAt).Round(time.Millisecond))
	if len(sum.SkippedAssets) > 0 {
		fmt.Fprintf(w, "skipped assets: %s\n", strings.Join(sum.SkippedAssets, ", "))
	}
	if len(sum.SkippedHazards) > 0 {
		names := make([]string, len(sum.SkippedHazards))
		for i, h := range sum.SkippedHazards {
			names[i] = h.String()
		}
		fmt.Fprintf(w, "skipped hazards (no curves): %s\n", strings.Join(names, ", "))
	}
}

// printAALTable prints the per-scenario totals of each province.
func printAALTable(w io.Writer, rep *engine.Report) {
	fmt.Fprintf(w, "%-28s", "Province")
	for s := hazard.Scenario(0); s < hazard.NumScenarios; s++ {
		fmt.Fprintf(w, " %16s", s)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("-", 28+17*hazard.NumScenarios))

	row := func(r *aal.Row) {
		fmt.Fprintf(w, "%-28s", r.Province)
		for _, v := range r.Totals {
			fmt.Fprintf(w, " %16.2f", v)
		}
		fmt.Fprintln(w)
	}
	for i := range rep.Rows {
		row(&rep.Rows[i])
	}
	fmt.Fprintln(w, strings.Repeat("-", 28+17*hazard.NumScenarios))
	row(&rep.GrandTotal)
}
