// Package config handles configuration for the consent backend,
// including defaults, JSON overlay, environment and command-line flags.
package config

import "time"

// Config holds runtime settings for the consent backend.
//
// Fields:
//   - EndpointAddr: bind address of the HTTP endpoint.
//   - FailureRate: share (0..1) of write requests answered with FailureStatus.
//   - FailureStatus: status code of injected failures.
//   - Latency: delay added to every request.
type Config struct {
	EndpointAddr  string        `env:"CONSENT_BACKEND_ADDR"`
	FailureRate   float64       `env:"CONSENT_BACKEND_FAILURE_RATE"`
	FailureStatus int           `env:"CONSENT_BACKEND_FAILURE_STATUS"`
	Latency       time.Duration `env:"CONSENT_BACKEND_LATENCY"`
}

// LoadDefaults populates Config with development defaults.
func (c *Config) LoadDefaults() {
	c.EndpointAddr = ":8080"
	c.FailureRate = 0
	c.FailureStatus = 503
	c.Latency = 0
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file, the environment and finally command-line
// flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseEnv(cfg)
	parseFlags(cfg)
	return cfg
}
