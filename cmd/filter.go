package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/zl-scraper/internal/export"
	"github.com/sells-group/zl-scraper/internal/pipeline"
	"github.com/sells-group/zl-scraper/internal/registry"
)

var filterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Select enriched clinics by size and specialization",
	Long:  "Keeps enriched clinics with at least --min-doctors doctors and at least one specialization not matching an excluded keyword, then exports them largest first.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		keywords, _ := cmd.Flags().GetStringSlice("exclude")
		if len(keywords) == 0 {
			keywords = pipeline.DefaultExcludedKeywords
		}

		showExcluded, _ := cmd.Flags().GetBool("show-excluded")
		showAllowed, _ := cmd.Flags().GetBool("show-allowed")
		if showExcluded || showAllowed {
			facets, err := registry.LoadFacets(cfg.Discover.FacetsPath)
			if err != nil {
				return err
			}
			allowed, excluded := pipeline.PartitionFacets(facets, keywords)
			if showExcluded {
				printNames(os.Stdout, "Excluded specializations", excluded)
			}
			if showAllowed {
				printNames(os.Stdout, "Allowed specializations", allowed)
			}
			return nil
		}

		formatFlag, _ := cmd.Flags().GetString("format")
		format, err := export.ParseFormat(formatFlag)
		if err != nil {
			return err
		}

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
			return eris.Wrap(err, "filter")
		}

		minDoctors, _ := cmd.Flags().GetInt("min-doctors")
		res := pipeline.FilterClinics(clinics, pipeline.FilterCriteria{
			MinDoctors:       minDoctors,
			ExcludedKeywords: keywords,
		})
		formatFilterResult(os.Stderr, res, minDoctors)

		if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun || len(res.Matched) == 0 {
			return nil
		}

		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			return export.Write(os.Stdout, format, res.Matched)
		}
		path, err := export.WriteFile(output, format, res.Matched)
		if err != nil {
			return err
		}
		zap.L().Info("filter: written", zap.String("path", path), zap.Int("clinics", len(res.Matched)))
		return nil
	},
}

func init() {
	filterCmd.Flags().Int("min-doctors", pipeline.DefaultMinDoctors, "minimum number of doctors")
	filterCmd.Flags().StringSlice("exclude", nil, "excluded specialization keywords (default built-in list)")
	filterCmd.Flags().String("format", "csv", "output format (csv, json, xlsx, geojson)")
	filterCmd.Flags().String("output", "", "output file (default stdout)")
	filterCmd.Flags().Bool("dry-run", false, "print statistics only")
	filterCmd.Flags().Bool("show-excluded", false, "list specializations excluded by the keywords")
	filterCmd.Flags().Bool("show-allowed", false, "list specializations kept by the keywords")
	rootCmd.AddCommand(filterCmd)
}

func formatFilterResult(out io.Writer, r *pipeline.FilterResult, minDoctors int) {
	nip, site, li := r.Coverage()
	n := len(r.Matched)
	_, _ = fmt.Fprintf(out, "Enriched clinics:            %d\n", r.TotalEnriched)
	_, _ = fmt.Fprintf(out, "Rejected (< %d doctors):     %d\n", minDoctors, r.RejectedDoctors)
	_, _ = fmt.Fprintf(out, "Rejected (specialization):   %d\n", r.RejectedSpecialization)
	_, _ = fmt.Fprintf(out, "Matched:                     %d\n", n)
	if n == 0 {
		return
	}
	_, _ = fmt.Fprintf(out, "Doctors in matched:          %d (avg %.1f)\n", r.DoctorsInMatched(), r.AvgDoctors())
	_, _ = fmt.Fprintf(out, "With NIP:                    %d (%.1f%%)\n", nip, pct(nip, n))
	_, _ = fmt.Fprintf(out, "With website:                %d (%.1f%%)\n", site, pct(site, n))
	_, _ = fmt.Fprintf(out, "With LinkedIn:               %d (%.1f%%)\n", li, pct(li, n))
}

func printNames(out io.Writer, title string, names []string) {
	_, _ = fmt.Fprintf(out, "%s (%d):\n", title, len(names))
	for _, n := range names {
		_, _ = fmt.Fprintf(out, "  %s\n", n)
	}
	_, _ = fmt.Fprintln(out, strings.Repeat("-", 40))
}
