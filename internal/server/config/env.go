package config

import (
	"github.com/caarlos0/env/v11"
)

// parseEnv overlays the CONSENT_BACKEND_* variables that are set.
func parseEnv(config *Config) {
	if err := env.Parse(config); err != nil {
		panic(err)
	}
}
