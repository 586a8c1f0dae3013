package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/hazard-loss/internal/geospatial"
	"github.com/sells-group/hazard-loss/internal/store"
)

var maintenanceCmd = &cobra.Command{
	Use:   "maintenance",
	Short: "Run PostGIS maintenance tasks",
	Long:  "Run VACUUM ANALYZE, CLUSTER by spatial index, and report table statistics for the engine tables.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("migrate"); err != nil {
			return err
		}

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		pg, ok := st.(*store.PostgresStore)
		if !ok {
			return eris.Errorf("maintenance needs the postgres store driver, have %s", cfg.Store.Driver)
		}
		pool := pg.Pool()

		vacuum, _ := cmd.Flags().GetBool("vacuum")
		cluster, _ := cmd.Flags().GetBool("cluster")
		stats, _ := cmd.Flags().GetBool("stats")

		// Default: show stats if no specific action requested.
		if !vacuum && !cluster && !stats {
			stats = true
		}

		if vacuum {
			zap.L().Info("running VACUUM ANALYZE")
			if err := geospatial.VacuumAnalyze(ctx, pool); err != nil {
				return eris.Wrap(err, "maintenance vacuum")
			}
		}

		if cluster {
			zap.L().Info("clustering point tables by spatial index")
			if err := geospatial.ClusterSpatialIndexes(ctx, pool); err != nil {
				return eris.Wrap(err, "maintenance cluster")
			}
		}

		if stats {
			tableStats, err := geospatial.GetTableStats(ctx, pool)
			if err != nil {
				return eris.Wrap(err, "maintenance stats")
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-24s %10s %12s %12s %8s\n", "Table", "Rows", "Total Size", "Index Size", "Spatial")
			fmt.Fprintln(out, "------------------------------------------------------------------------------")
			for _, s := range tableStats {
				spatial := "no"
				if s.HasSpatial {
					spatial = "yes"
				}
				fmt.Fprintf(out, "%-24s %10d %12s %12s %8s\n", s.TableName, s.RowCount, s.TotalSize, s.IndexSize, spatial)
			}
		}

		return nil
	},
}

func init() {
	maintenanceCmd.Flags().Bool("vacuum", false, "run VACUUM ANALYZE")
	maintenanceCmd.Flags().Bool("cluster", false, "CLUSTER point tables by their GIST index")
	maintenanceCmd.Flags().Bool("stats", false, "print table statistics")
	rootCmd.AddCommand(maintenanceCmd)
}
