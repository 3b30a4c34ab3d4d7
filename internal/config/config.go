package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/zl-scraper/internal/fetcher"
	"github.com/sells-group/zl-scraper/internal/resilience"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Proxy       ProxyConfig       `yaml:"proxy" mapstructure:"proxy"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit" mapstructure:"rate_limit"`
	Concurrency ConcurrencyConfig `yaml:"concurrency" mapstructure:"concurrency"`
	HTTP        HTTPConfig        `yaml:"http" mapstructure:"http"`
	Retry       RetryConfig       `yaml:"retry" mapstructure:"retry"`
	Discover    DiscoverConfig    `yaml:"discover" mapstructure:"discover"`
	Enrich      EnrichConfig      `yaml:"enrich" mapstructure:"enrich"`
	Catalog     CatalogConfig     `yaml:"catalog" mapstructure:"catalog"`
	Metrics     MetricsConfig     `yaml:"metrics" mapstructure:"metrics"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ProxyConfig holds the proxy endpoint for each tier.
type ProxyConfig struct {
	DatacenterURL  string `yaml:"datacenter_url" mapstructure:"datacenter_url"`
	ResidentialURL string `yaml:"residential_url" mapstructure:"residential_url"`
	UnlockerURL    string `yaml:"unlocker_url" mapstructure:"unlocker_url"`
	StartTier      string `yaml:"start_tier" mapstructure:"start_tier"`
}

// RateLimitConfig holds requests-per-minute budgets per tier.
type RateLimitConfig struct {
	Datacenter  int `yaml:"datacenter" mapstructure:"datacenter"`
	Residential int `yaml:"residential" mapstructure:"residential"`
	Unlocker    int `yaml:"unlocker" mapstructure:"unlocker"`
}

// ConcurrencyConfig bounds in-flight tasks per stage.
type ConcurrencyConfig struct {
	Search  int `yaml:"search" mapstructure:"search"`
	Profile int `yaml:"profile" mapstructure:"profile"`
}

// HTTPConfig configures outbound requests.
type HTTPConfig struct {
	TimeoutSecs        int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent          string `yaml:"user_agent" mapstructure:"user_agent"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify" mapstructure:"insecure_skip_verify"`
}

// RetryConfig configures per-request retries.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Jitter           float64 `yaml:"jitter" mapstructure:"jitter"`
}

// DiscoverConfig configures the discover stage.
type DiscoverConfig struct {
	FacetsPath     string `yaml:"facets_path" mapstructure:"facets_path"`
	FacetPauseSecs int    `yaml:"facet_pause_secs" mapstructure:"facet_pause_secs"`
}

// EnrichConfig configures the enrich stage.
type EnrichConfig struct {
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size"`
}

// CatalogConfig points at the scraped site.
type CatalogConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// MetricsConfig configures the Prometheus listener. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ZL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "zl.db")
	v.SetDefault("proxy.datacenter_url", "")
	v.SetDefault("proxy.residential_url", "")
	v.SetDefault("proxy.unlocker_url", "")
	v.SetDefault("proxy.start_tier", "datacenter")
	v.SetDefault("rate_limit.datacenter", 100)
	v.SetDefault("rate_limit.residential", 100)
	v.SetDefault("rate_limit.unlocker", 100)
	v.SetDefault("concurrency.search", 5)
	v.SetDefault("concurrency.profile", 15)
	v.SetDefault("http.timeout_secs", 10)
	v.SetDefault("http.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
	v.SetDefault("http.insecure_skip_verify", true)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.initial_backoff_ms", 2000)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("retry.jitter", 0.25)
	v.SetDefault("discover.facets_path", "facets.yaml")
	v.SetDefault("discover.facet_pause_secs", 15)
	v.SetDefault("enrich.batch_size", 30)
	v.SetDefault("catalog.base_url", "https://www.znanylekarz.pl")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs. mode is one of "discover",
// "enrich" or "report"; report commands only touch the store.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not one of sqlite, postgres", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	switch mode {
	case "report":
	case "discover", "enrich":
		if _, err := fetcher.ParseTier(c.Proxy.StartTier); err != nil {
			errs = append(errs, fmt.Sprintf("proxy.start_tier %q is not a known tier", c.Proxy.StartTier))
		}
		if c.Retry.MaxAttempts < 1 {
			errs = append(errs, "retry.max_attempts must be >= 1")
		}
		if c.Retry.Jitter < 0 || c.Retry.Jitter > 1 {
			errs = append(errs, "retry.jitter must be between 0 and 1")
		}
		if mode == "discover" {
			if c.Concurrency.Search < 1 {
				errs = append(errs, "concurrency.search must be >= 1")
			}
			if c.Discover.FacetsPath == "" {
				errs = append(errs, "discover.facets_path is required")
			}
		} else {
			if c.Concurrency.Profile < 1 {
				errs = append(errs, "concurrency.profile must be >= 1")
			}
			if c.Enrich.BatchSize < 1 {
				errs = append(errs, "enrich.batch_size must be >= 1")
			}
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ProxyURLs maps each tier to its configured endpoint.
func (c *Config) ProxyURLs() map[fetcher.Tier]string {
	return map[fetcher.Tier]string{
		fetcher.TierDatacenter:  c.Proxy.DatacenterURL,
		fetcher.TierResidential: c.Proxy.ResidentialURL,
		fetcher.TierUnlocker:    c.Proxy.UnlockerURL,
	}
}

// TierRPM maps each tier to its requests-per-minute budget. Direct
// requests share the datacenter budget.
func (c *Config) TierRPM() map[fetcher.Tier]int {
	return map[fetcher.Tier]int{
		fetcher.TierNone:        c.RateLimit.Datacenter,
		fetcher.TierDatacenter:  c.RateLimit.Datacenter,
		fetcher.TierResidential: c.RateLimit.Residential,
		fetcher.TierUnlocker:    c.RateLimit.Unlocker,
	}
}

// WaterfallOptions builds fetcher options from the proxy, rate limit and
// http sections.
func (c *Config) WaterfallOptions() (fetcher.WaterfallOptions, error) {
	start, err := fetcher.ParseTier(c.Proxy.StartTier)
	if err != nil {
		return fetcher.WaterfallOptions{}, eris.Wrap(err, "config: proxy.start_tier")
	}
	return fetcher.WaterfallOptions{
		ProxyURLs:          c.ProxyURLs(),
		StartTier:          start,
		Limiter:            fetcher.NewTierLimiter(c.TierRPM()),
		Timeout:            time.Duration(c.HTTP.TimeoutSecs) * time.Second,
		UserAgent:          c.HTTP.UserAgent,
		InsecureSkipVerify: c.HTTP.InsecureSkipVerify,
	}, nil
}

// RetryPolicy converts the retry section.
func (c *Config) RetryPolicy() resilience.RetryConfig {
	r := c.Retry
	return resilience.FromRetryConfig(r.MaxAttempts, r.InitialBackoffMs, r.MaxBackoffMs, r.Multiplier, r.Jitter)
}

// FacetPause is the pause between facets.
func (c *Config) FacetPause() time.Duration {
	return time.Duration(c.Discover.FacetPauseSecs) * time.Second
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
