package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/hazard-loss/internal/engine"
	"github.com/sells-group/hazard-loss/internal/geo"
	"github.com/sells-group/hazard-loss/internal/geospatial"
	"github.com/sells-group/hazard-loss/internal/hazard"
	"github.com/sells-group/hazard-loss/internal/store"
)

var hazardCmd = &cobra.Command{
	Use:   "hazard",
	Short: "Manage hazard samples",
}

var hazardImportCmd = &cobra.Command{
	Use:   "import <shapefile|zip|url>",
	Short: "Import hazard samples from a point shapefile",
	Long:  "Import hazard intensity samples. Intensity columns are named per scenario (mmi_500, depth_100, kpa_250, mflux_5, ...). Blank or no-data cells are stored as unmeasured.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("import"); err != nil {
			return err
		}
		name, _ := cmd.Flags().GetString("hazard")
		h, err := hazard.Parse(name)
		if err != nil {
			return err
		}

		opts := geo.ShapefileOptions{}
		opts.IDField, _ = cmd.Flags().GetString("id-field")
		if cmd.Flags().Changed("nodata") {
			v, _ := cmd.Flags().GetFloat64("nodata")
			opts.NoData = &v
		}

		tempDir, err := os.MkdirTemp("", "hazard-import-*")
		if err != nil {
			return eris.Wrap(err, "hazard import: temp dir")
		}
		defer os.RemoveAll(tempDir) //nolint:errcheck

		samples, err := geo.LoadSamples(ctx, args[0], h, tempDir, opts)
		if err != nil {
			return err
		}

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.UpsertSamples(ctx, samples); err != nil {
			return eris.Wrap(err, "hazard import")
		}
		zap.L().Info("hazard samples imported",
			zap.String("hazard", h.String()),
			zap.Int("samples", len(samples)),
		)

		if analyze, _ := cmd.Flags().GetBool("analyze"); analyze {
			if pg, ok := st.(*store.PostgresStore); ok {
				if err := geospatial.VacuumAnalyze(ctx, pg.Pool()); err != nil {
					return eris.Wrap(err, "hazard import: analyze")
				}
			}
		}
		return nil
	},
}

var hazardNearestCmd = &cobra.Command{
	Use:   "nearest",
	Short: "Find the sample a location would be associated with",
	RunE: func(cmd *cobra.Command, _ []string) error {
		name, _ := cmd.Flags().GetString("hazard")
		h, err := hazard.Parse(name)
		if err != nil {
			return err
		}
		rp, _ := cmd.Flags().GetInt("rp")
		sc, ok := hazard.Lookup(h, rp)
		if !ok {
			return eris.Errorf("no %s scenario with return period %d", h, rp)
		}
		lon, _ := cmd.Flags().GetFloat64("lon")
		lat, _ := cmd.Flags().GetFloat64("lat")
		usePostGIS, _ := cmd.Flags().GetBool("postgis")

		return withEngine(cmd, func(eng *engine.Engine, st store.Store) error {
			out := cmd.OutOrStdout()
			if usePostGIS {
				pg, ok := st.(*store.PostgresStore)
				if !ok {
					return eris.New("--postgis needs the postgres store driver")
				}
				opts := eng.NearestOptions(h)
				r, err := geospatial.NearestSample(cmd.Context(), pg.Pool(), sc, lon, lat, opts)
				if err != nil {
					return err
				}
				if r == nil {
					fmt.Fprintf(out, "no eligible %s sample within %.0f\n", sc, opts.Threshold)
					return nil
				}
				return printJSON(out, r)
			}

			m, found, err := eng.Nearest(cmd.Context(), sc, lon, lat)
			if err != nil {
				return err
			}
			if !found {
				fmt.Fprintf(out, "no eligible %s sample within threshold\n", sc)
				return nil
			}
			v, _ := m.Sample.Intensity[sc].Get()
			return printJSON(out, geospatial.NearestResult{
				LocationID: m.Sample.LocationID,
				Intensity:  v,
				Distance:   m.Distance,
				Lon:        m.Sample.Lon,
				Lat:        m.Sample.Lat,
			})
		})
	},
}

func init() {
	hazardImportCmd.Flags().String("hazard", "", "hazard of the samples")
	hazardImportCmd.Flags().String("id-field", "", "attribute holding the location id (default loc_id, id or fid)")
	hazardImportCmd.Flags().Float64("nodata", 0, "intensity value that marks an unmeasured cell")
	hazardImportCmd.Flags().Bool("analyze", false, "run VACUUM ANALYZE after import (postgres)")
	_ = hazardImportCmd.MarkFlagRequired("hazard")

	hazardNearestCmd.Flags().String("hazard", "", "hazard to search")
	hazardNearestCmd.Flags().Int("rp", 0, "return period")
	hazardNearestCmd.Flags().Float64("lon", 0, "longitude")
	hazardNearestCmd.Flags().Float64("lat", 0, "latitude")
	hazardNearestCmd.Flags().Bool("postgis", false, "query PostGIS instead of the in-memory index")
	for _, f := range []string{"hazard", "rp", "lon", "lat"} {
		_ = hazardNearestCmd.MarkFlagRequired(f)
	}

	hazardCmd.AddCommand(hazardImportCmd)
	hazardCmd.AddCommand(hazardNearestCmd)
	rootCmd.AddCommand(hazardCmd)
}
