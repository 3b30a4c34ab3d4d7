package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/zl-scraper/internal/model"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show discovery and enrichment progress",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("report"); err != nil {
			return err
		}
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		stats, err := st.Stats(ctx)
		if err != nil {
			return eris.Wrap(err, "status")
		}
		formatStats(os.Stdout, stats)

		if byFacet, _ := cmd.Flags().GetBool("by-facet"); byFacet {
			facets, err := st.FacetSummaries(ctx)
			if err != nil {
				return eris.Wrap(err, "status by facet")
			}
			_, _ = fmt.Fprintln(os.Stdout)
			formatFacetSummaries(os.Stdout, facets)
		}

		if n, _ := cmd.Flags().GetInt("runs"); n > 0 {
			runs, err := st.ListRuns(ctx, n)
			if err != nil {
				return eris.Wrap(err, "status runs")
			}
			_, _ = fmt.Fprintln(os.Stdout)
			formatRuns(os.Stdout, runs)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().Bool("by-facet", false, "show per-specialization progress")
	statusCmd.Flags().Int("runs", 0, "show the N most recent runs")
	rootCmd.AddCommand(statusCmd)
}

func formatStats(out io.Writer, s *model.Stats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Specializations:\t%d (%d done, %d in progress)\n", s.Facets, s.FacetsDone, s.FacetsActive)
	_, _ = fmt.Fprintf(w, "Pages scraped:\t%d\n", s.PagesScraped)
	_, _ = fmt.Fprintf(w, "Clinics:\t%d (%d facet links)\n", s.Clinics, s.FacetLinks)
	_, _ = fmt.Fprintf(w, "Enriched:\t%d (%.1f%%)\n", s.Enriched, pct(s.Enriched, s.Clinics))
	_, _ = fmt.Fprintf(w, "Pending enrichment:\t%d\n", s.Unenriched)
	_, _ = fmt.Fprintf(w, "Locations:\t%d\n", s.Locations)
	_, _ = fmt.Fprintf(w, "Doctors:\t%d\n", s.Doctors)
	_ = w.Flush()
}

func formatFacetSummaries(out io.Writer, facets []model.FacetSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSPECIALIZATION\tSTATUS\tPAGES\tCLINICS\tSHARED")
	for _, f := range facets {
		total := "?"
		if f.TotalPages != nil {
			total = fmt.Sprintf("%d", *f.TotalPages)
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%d/%s\t%d\t%d\n",
			f.FacetID, f.Name, f.Status, f.LastPageScraped, total, f.Clinics, f.Shared)
	}
	_ = w.Flush()
}

func formatRuns(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTAGE\tSTATUS\tSTARTED\tDURATION")
	for _, r := range runs {
		dur := "-"
		if r.FinishedAt != nil {
			dur = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			shortID(r.ID), r.Stage, r.Status, r.StartedAt.Format("2006-01-02 15:04"), dur)
	}
	_ = w.Flush()
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) * 100 / float64(total)
}
