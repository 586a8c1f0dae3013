package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/hazard-loss/internal/engine"
	"github.com/sells-group/hazard-loss/internal/store"
)

var aalCmd = &cobra.Command{
	Use:   "aal",
	Short: "Inspect province AAL aggregates",
}

var aalShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the stored AAL table with its national total",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withEngine(cmd, func(eng *engine.Engine, _ store.Store) error {
			rep, err := eng.AAL(cmd.Context())
			if err != nil {
				return eris.Wrap(err, "aal show")
			}
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return printJSON(cmd.OutOrStdout(), rep)
			}
			printAALTable(cmd.OutOrStdout(), rep)
			return nil
		})
	},
}

func init() {
	aalShowCmd.Flags().Bool("json", false, "print the report as JSON")
	aalCmd.AddCommand(aalShowCmd)
	rootCmd.AddCommand(aalCmd)
}
