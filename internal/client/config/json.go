package config

import (
	"encoding/json"
	"log/slog"
	"os"

	"github.com/dmitrijs2005/consentkeeper/internal/flagx"
	"github.com/dmitrijs2005/consentkeeper/internal/timex"
)

// JsonConfig is the JSON shape of Config. Durations use timex.Duration.
type JsonConfig struct {
	Mode       string `json:"mode"`
	BackendURL string `json:"backend_url"`
	APIVersion string `json:"api_version"`
	Domain     string `json:"domain"`

	DatabaseDSN    string `json:"database_dsn"`
	StorageKey     string `json:"storage_key"`
	CrossSubdomain bool   `json:"cross_subdomain"`

	OnlineCheckInterval timex.Duration `json:"online_check_interval"`
	MaxRetries          int            `json:"max_retries"`
	InitialDelay        timex.Duration `json:"initial_delay"`
	SettleDelay         timex.Duration `json:"settle_delay"`

	LogLevel    slog.Level `json:"log_level"`
	MetricsAddr string     `json:"metrics_addr"`
}

// parseJson overlays Config with the file named by -c or -config. Keys
// missing from the file keep their current values. Read or unmarshal
// errors panic.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.ConfigFile()
	if jsonConfigFile == "" {
		return
	}

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	jc := JsonConfig{
		Mode:                cfg.Mode,
		BackendURL:          cfg.BackendURL,
		APIVersion:          cfg.APIVersion,
		Domain:              cfg.Domain,
		DatabaseDSN:         cfg.DatabaseDSN,
		StorageKey:          cfg.StorageKey,
		CrossSubdomain:      cfg.CrossSubdomain,
		OnlineCheckInterval: timex.Duration{Duration: cfg.OnlineCheckInterval},
		MaxRetries:          cfg.MaxRetries,
		InitialDelay:        timex.Duration{Duration: cfg.InitialDelay},
		SettleDelay:         timex.Duration{Duration: cfg.SettleDelay},
		LogLevel:            cfg.LogLevel,
		MetricsAddr:         cfg.MetricsAddr,
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	cfg.Mode = jc.Mode
	cfg.BackendURL = jc.BackendURL
	cfg.APIVersion = jc.APIVersion
	cfg.Domain = jc.Domain
	cfg.DatabaseDSN = jc.DatabaseDSN
	cfg.StorageKey = jc.StorageKey
	cfg.CrossSubdomain = jc.CrossSubdomain
	cfg.OnlineCheckInterval = jc.OnlineCheckInterval.Duration
	cfg.MaxRetries = jc.MaxRetries
	cfg.InitialDelay = jc.InitialDelay.Duration
	cfg.SettleDelay = jc.SettleDelay.Duration
	cfg.LogLevel = jc.LogLevel
	cfg.MetricsAddr = jc.MetricsAddr
}
