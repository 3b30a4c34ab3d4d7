package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear stage progress so it runs again",
	Long:  "--step discover clears facet checkpoints (clinics stay). --step enrich clears enrichment results and locations so every clinic is enriched again.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		step, _ := cmd.Flags().GetString("step")
		if step != "discover" && step != "enrich" {
			return eris.Errorf("reset: --step must be discover or enrich, got %q", step)
		}

		if err := cfg.Validate("report"); err != nil {
			return err
		}
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		var n int64
		if step == "discover" {
			n, err = st.ResetDiscover(ctx)
		} else {
			n, err = st.ResetEnrich(ctx)
		}
		if err != nil {
			return eris.Wrapf(err, "reset %s", step)
		}

		fmt.Fprintf(os.Stdout, "Reset %s: %d rows cleared\n", step, n)
		return nil
	},
}

func init() {
	resetCmd.Flags().String("step", "", "stage to reset (discover, enrich)")
	_ = resetCmd.MarkFlagRequired("step")
	rootCmd.AddCommand(resetCmd)
}
