package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/consentkeeper/internal/flagx"
	"github.com/dmitrijs2005/consentkeeper/internal/timex"
)

// JsonConfig is the JSON shape of Config. Latency accepts "250ms" as well
// as integer nanoseconds.
type JsonConfig struct {
	EndpointAddr  string         `json:"endpoint_addr"`
	FailureRate   float64        `json:"failure_rate"`
	FailureStatus int            `json:"failure_status"`
	Latency       timex.Duration `json:"latency"`
}

// parseJson overlays the file named by -c or -config. Keys missing from
// the file keep their current values. An unreadable or invalid file panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigFile()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{
		EndpointAddr:  config.EndpointAddr,
		FailureRate:   config.FailureRate,
		FailureStatus: config.FailureStatus,
		Latency:       timex.Duration{Duration: config.Latency},
	}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	config.EndpointAddr = c.EndpointAddr
	config.FailureRate = c.FailureRate
	config.FailureStatus = c.FailureStatus
	config.Latency = c.Latency.Duration
}
