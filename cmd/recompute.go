package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/hazard-loss/internal/engine"
	"github.com/sells-group/hazard-loss/internal/monitoring"
	"github.com/sells-group/hazard-loss/internal/store"
)

var recomputeCmd = &cobra.Command{
	Use:   "recompute",
	Short: "Recompute direct losses and AAL aggregates",
}

var recomputeAllCmd = &cobra.Command{
	Use:   "all",
	Short: "Rebuild every direct loss and the AAL table from scratch",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withEngine(cmd, func(eng *engine.Engine, _ store.Store) error {
			sum, err := eng.RecomputeAll(cmd.Context())
			if err != nil {
				return eris.Wrap(err, "recompute all")
			}
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return printJSON(cmd.OutOrStdout(), sum)
			}
			printSummary(cmd.OutOrStdout(), sum)
			return nil
		})
	},
}

var recomputeAssetCmd = &cobra.Command{
	Use:   "asset <asset-id>",
	Short: "Recompute one asset and apply its AAL delta",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(eng *engine.Engine, _ store.Store) error {
			rec, err := eng.RecomputeOne(cmd.Context(), args[0])
			if err != nil {
				return eris.Wrap(err, "recompute asset")
			}
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return printJSON(cmd.OutOrStdout(), rec)
			}
			printRecord(cmd.OutOrStdout(), rec)
			return nil
		})
	},
}

var recomputeRetractCmd = &cobra.Command{
	Use:   "retract <asset-id>",
	Short: "Remove a deleted asset's loss and subtract it from the AAL table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(eng *engine.Engine, _ store.Store) error {
			rec, err := eng.RetractOne(cmd.Context(), args[0])
			if err != nil {
				return eris.Wrap(err, "retract asset")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "retracted %s from %s (%s)\n", rec.AssetID, rec.Province, rec.Class)
			return nil
		})
	},
}

// withEngine opens the configured store, builds an engine on it and runs fn.
func withEngine(cmd *cobra.Command, fn func(eng *engine.Engine, st store.Store) error) error {
	ctx := cmd.Context()

	if err := cfg.Validate("recompute"); err != nil {
		return err
	}

	st, err := initStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	eng, err := initEngine(st, cfg, monitoring.NewMetricsForTesting())
	if err != nil {
		return err
	}
	return fn(eng, st)
}

func init() {
	recomputeAllCmd.Flags().Bool("json", false, "print the run summary as JSON")
	recomputeAssetCmd.Flags().Bool("json", false, "print the record as JSON")

	recomputeCmd.AddCommand(recomputeAllCmd)
	recomputeCmd.AddCommand(recomputeAssetCmd)
	recomputeCmd.AddCommand(recomputeRetractCmd)
	rootCmd.AddCommand(recomputeCmd)
}
