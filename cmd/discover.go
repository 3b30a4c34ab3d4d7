package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/zl-scraper/internal/pipeline"
	"github.com/sells-group/zl-scraper/internal/registry"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Collect clinic URLs from the catalog search",
	Long:  "Walks the search result pages of each specialization, records every clinic once and checkpoints progress per page. Finished specializations are never fetched again until reset.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		facetsPath, _ := cmd.Flags().GetString("facets")
		if facetsPath != "" {
			cfg.Discover.FacetsPath = facetsPath
		}
		if err := cfg.Validate("discover"); err != nil {
			return err
		}

		facets, err := registry.LoadFacets(cfg.Discover.FacetsPath)
		if err != nil {
			return err
		}

		proxyLevel, _ := cmd.Flags().GetString("proxy-level")
		client, err := initFetcher(proxyLevel)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		startMetrics(ctx)

		name, _ := cmd.Flags().GetString("spec-name")
		id, _ := cmd.Flags().GetInt("spec-id")
		offset, _ := cmd.Flags().GetInt("offset")
		limit, _ := cmd.Flags().GetInt("limit")
		maxPages, _ := cmd.Flags().GetInt("max-pages")

		d := pipeline.NewDiscoverer(st, client, pipeline.DiscoverConfig{
			BaseURL:     cfg.Catalog.BaseURL,
			Concurrency: cfg.Concurrency.Search,
			Retry:       cfg.RetryPolicy(),
			FacetPause:  cfg.FacetPause(),
		})

		summary, err := d.Run(ctx, facets, pipeline.DiscoverOptions{
			Filter:   registry.Filter{Name: name, ID: id, Offset: offset, Limit: limit},
			MaxPages: maxPages,
		})
		if summary != nil {
			formatDiscoverSummary(os.Stdout, summary)
		}
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			zap.L().Warn("discover: interrupted, progress saved")
		}
		return nil
	},
}

func init() {
	discoverCmd.Flags().String("spec-name", "", "only this specialization (exact name)")
	discoverCmd.Flags().Int("spec-id", 0, "only this specialization id")
	discoverCmd.Flags().Int("offset", 0, "skip the first N specializations")
	discoverCmd.Flags().Int("limit", 0, "process at most N specializations (0 = all)")
	discoverCmd.Flags().Int("max-pages", 0, "max search pages per specialization (0 = all)")
	discoverCmd.Flags().String("proxy-level", "", "starting proxy tier (none, datacenter, residential, unlocker)")
	discoverCmd.Flags().String("facets", "", "specialization list file (overrides discover.facets_path)")
	rootCmd.AddCommand(discoverCmd)
}

// formatDiscoverSummary writes per-facet results and totals to w.
func formatDiscoverSummary(out io.Writer, s *pipeline.DiscoverSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSPECIALIZATION\tSTATUS\tPAGES\tNEW\tDUP\tFAILED")
	for _, f := range s.Facets {
		status := string(f.Status)
		if f.Skipped {
			status = "skipped"
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%d/%d\t%d\t%d\t%d\n",
			f.FacetID, f.Name, status, f.LastPage, f.TotalPages, f.New, f.Duplicate, f.PagesFailed)
	}
	_ = w.Flush()

	_, _ = fmt.Fprintf(out, "\nRun %s: %d new, %d duplicate, %d pages ok, %d pages failed, %d facets skipped\n",
		shortID(s.RunID), s.New, s.Duplicate, s.PagesOK, s.PagesFailed, s.Skipped)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
