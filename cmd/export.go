package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/zl-scraper/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export enriched clinics",
	Long:  "Writes every enriched clinic with its locations and specializations as csv, json, xlsx or geojson.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		formatFlag, _ := cmd.Flags().GetString("format")
		format, err := export.ParseFormat(formatFlag)
		if err != nil {
			return err
		}
		output, _ := cmd.Flags().GetString("output")

		if err := cfg.Validate("report"); err != nil {
			return err
		}
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		clinics, err := st.EnrichedClinics(ctx)
		if err != nil {
			return eris.Wrap(err, "export")
		}
		if len(clinics) == 0 {
			fmt.Fprintln(os.Stderr, "No enriched clinics to export.")
			return nil
		}

		if output == "" {
			return export.Write(os.Stdout, format, clinics)
		}
		path, err := export.WriteFile(output, format, clinics)
		if err != nil {
			return err
		}
		zap.L().Info("export: written", zap.String("path", path), zap.Int("clinics", len(clinics)))
		return nil
	},
}

func init() {
	exportCmd.Flags().String("format", "csv", "output format (csv, json, xlsx, geojson)")
	exportCmd.Flags().String("output", "", "output file (default stdout)")
	rootCmd.AddCommand(exportCmd)
}
