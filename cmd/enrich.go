package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/zl-scraper/internal/pipeline"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Fetch profile details for discovered clinics",
	Long:  "Fetches the profile page and doctors feed of every clinic not yet enriched and stores addresses, coordinates, contact links and doctors. Failed clinics are retried on the next run.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("enrich"); err != nil {
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

		limit, _ := cmd.Flags().GetInt("limit")
		batch, _ := cmd.Flags().GetInt("batch-size")
		if batch <= 0 {
			batch = cfg.Enrich.BatchSize
		}

		e := pipeline.NewEnricher(st, client, pipeline.EnrichConfig{
			BaseURL:     cfg.Catalog.BaseURL,
			Concurrency: cfg.Concurrency.Profile,
			BatchSize:   batch,
			Retry:       cfg.RetryPolicy(),
		})

		summary, err := e.Run(ctx, pipeline.EnrichOptions{Limit: limit})
		if summary != nil {
			formatEnrichSummary(os.Stdout, summary)
		}
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			zap.L().Warn("enrich: interrupted, progress saved")
		}
		return nil
	},
}

func init() {
	enrichCmd.Flags().Int("limit", 0, "enrich at most N clinics (0 = all)")
	enrichCmd.Flags().Int("batch-size", 0, "clinics loaded per batch (overrides enrich.batch_size)")
	enrichCmd.Flags().String("proxy-level", "", "starting proxy tier (none, datacenter, residential, unlocker)")
	rootCmd.AddCommand(enrichCmd)
}

func formatEnrichSummary(out io.Writer, s *pipeline.EnrichSummary) {
	_, _ = fmt.Fprintf(out, "Run %s: %d enriched, %d failed, %d skipped, %d total\n",
		shortID(s.RunID), s.Enriched, s.Failed, s.Skipped, s.Total)
}
