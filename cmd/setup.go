package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/zl-scraper/internal/fetcher"
	"github.com/sells-group/zl-scraper/internal/metrics"
	"github.com/sells-group/zl-scraper/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "zl.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore connects and applies the schema.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

// initFetcher builds the proxy waterfall. A non-empty proxyLevel overrides
// proxy.start_tier for this run.
func initFetcher(proxyLevel string) (*fetcher.WaterfallClient, error) {
	opts, err := cfg.WaterfallOptions()
	if err != nil {
		return nil, err
	}
	if proxyLevel != "" {
		tier, err := fetcher.ParseTier(proxyLevel)
		if err != nil {
			return nil, err
		}
		opts.StartTier = tier
	}

	client, err := fetcher.NewWaterfallClient(opts)
	if err != nil {
		return nil, err
	}

	path := make([]string, 0, len(client.Path()))
	for _, t := range client.Path() {
		path = append(path, t.String())
	}
	zap.L().Info("fetcher: tier path", zap.Strings("tiers", path))
	return client, nil
}

// startMetrics serves /metrics in the background until ctx is done.
func startMetrics(ctx context.Context) {
	if cfg.Metrics.Addr == "" {
		return
	}
	go func() {
		if err := metrics.Serve(ctx, cfg.Metrics.Addr); err != nil {
			zap.L().Error("metrics server failed", zap.Error(err))
		}
	}()
}
