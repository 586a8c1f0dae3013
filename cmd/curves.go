package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/hazard-loss/internal/geo"
	"github.com/sells-group/hazard-loss/internal/hazard"
)

var curvesCmd = &cobra.Command{
	Use:   "curves",
	Short: "Manage vulnerability curves",
}

var curvesImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import curves from a YAML file or a CSV table",
	Long:  "Import vulnerability curves. YAML files name their hazard; CSV tables need --hazard and hold the intensity in the first column and one curve per remaining column.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("import"); err != nil {
			return err
		}

		var want *hazard.Hazard
		if name, _ := cmd.Flags().GetString("hazard"); name != "" {
			h, err := hazard.Parse(name)
			if err != nil {
				return err
			}
			want = &h
		}

		curves, err := geo.LoadCurves(args[0], want)
		if err != nil {
			return err
		}
		for _, c := range curves {
			if err := c.FitErr(); err != nil {
				zap.L().Warn("curve cannot be interpolated",
					zap.String("hazard", c.Hazard.String()),
					zap.String("curve", string(c.ID)),
					zap.Error(err),
				)
			}
		}

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.UpsertCurves(ctx, curves); err != nil {
			return eris.Wrap(err, "curves import")
		}
		zap.L().Info("curves imported", zap.String("file", args[0]), zap.Int("curves", len(curves)))
		return nil
	},
}

var curvesShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the stored curves of a hazard",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("import"); err != nil {
			return err
		}
		name, _ := cmd.Flags().GetString("hazard")
		h, err := hazard.Parse(name)
		if err != nil {
			return err
		}

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		curves, err := st.LoadCurves(ctx, h)
		if err != nil {
			return eris.Wrap(err, "curves show")
		}
		out := cmd.OutOrStdout()
		if len(curves) == 0 {
			fmt.Fprintf(out, "no %s curves stored\n", h)
			return nil
		}
		for _, c := range curves {
			status := "ok"
			if err := c.FitErr(); err != nil {
				status = err.Error()
			}
			fmt.Fprintf(out, "%s/%s  points=%d  fit=%s\n", h, c.ID, c.Len(), status)
			for i := range c.X {
				fmt.Fprintf(out, "  %12.4f %8.4f\n", c.X[i], c.Y[i])
			}
		}
		return nil
	},
}

func init() {
	curvesImportCmd.Flags().String("hazard", "", "hazard of the curves (required for CSV)")
	curvesShowCmd.Flags().String("hazard", "", "hazard to show")
	_ = curvesShowCmd.MarkFlagRequired("hazard")

	curvesCmd.AddCommand(curvesImportCmd)
	curvesCmd.AddCommand(curvesShowCmd)
	rootCmd.AddCommand(curvesCmd)
}
