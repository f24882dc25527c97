package config

import (
	"log/slog"
	"time"

	"github.com/dmitrijs2005/consentkeeper/internal/client/fetcher"
	"github.com/dmitrijs2005/consentkeeper/internal/client/models"
	"github.com/dmitrijs2005/consentkeeper/internal/client/pending"
	"github.com/dmitrijs2005/consentkeeper/internal/client/services"
	"github.com/dmitrijs2005/consentkeeper/internal/client/storage"
)

// Config holds runtime settings for the consent CLI.
type Config struct {
	Mode       string `env:"CONSENT_MODE"`
	BackendURL string `env:"CONSENT_BACKEND_URL"`
	APIVersion string `env:"CONSENT_API_VERSION"`
	Domain     string `env:"CONSENT_DOMAIN"`

	DatabaseDSN    string `env:"CONSENT_DATABASE_DSN"`
	StorageKey     string `env:"CONSENT_STORAGE_KEY"`
	CrossSubdomain bool   `env:"CONSENT_CROSS_SUBDOMAIN"`

	OnlineCheckInterval time.Duration `env:"CONSENT_ONLINE_CHECK_INTERVAL"`
	MaxRetries          int           `env:"CONSENT_MAX_RETRIES"`
	InitialDelay        time.Duration `env:"CONSENT_INITIAL_DELAY"`
	SettleDelay         time.Duration `env:"CONSENT_SETTLE_DELAY"`

	LogLevel    slog.Level `env:"CONSENT_LOG_LEVEL"`
	MetricsAddr string     `env:"CONSENT_METRICS_ADDR"`
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.Mode = string(services.ModeHosted)
	c.BackendURL = "http://127.0.0.1:8080"
	c.APIVersion = models.APIVersionV2
	c.Domain = "localhost"
	c.DatabaseDSN = "consent.db"
	c.StorageKey = storage.DefaultStorageKey
	c.CrossSubdomain = false
	c.OnlineCheckInterval = 3 * time.Second
	c.MaxRetries = fetcher.DefaultRetryPolicy().MaxRetries
	c.InitialDelay = fetcher.DefaultRetryPolicy().InitialDelay
	c.SettleDelay = pending.DefaultSettleDelay
	c.LogLevel = slog.LevelWarn
	c.MetricsAddr = ""
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present), the environment and command-line flags. Later sources
// take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseEnv(cfg)
	parseFlags(cfg)
	return cfg
}

// Services converts c into the consent service configuration.
func (c *Config) Services() services.Config {
	retry := fetcher.DefaultRetryPolicy().With(
		fetcher.WithMaxRetries(c.MaxRetries),
		fetcher.WithInitialDelay(c.InitialDelay),
	)

	sc := storage.DefaultConfig()
	sc.StorageKey = c.StorageKey
	sc.Domain = c.Domain
	sc.CrossSubdomain = c.CrossSubdomain

	pc := pending.DefaultConfig()
	pc.Prefix = c.StorageKey
	pc.SettleDelay = c.SettleDelay

	return services.Config{
		Mode:       services.Mode(c.Mode),
		BackendURL: c.BackendURL,
		APIVersion: c.APIVersion,
		Domain:     c.Domain,
		Storage:    sc,
		Pending:    pc,
		Retry:      &retry,
	}
}
