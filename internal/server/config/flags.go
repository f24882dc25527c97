package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/consentkeeper/internal/flagx"
)

// parseFlags populates Config fields from command-line flags.
//
// Supported flags:
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-f float    share of write requests to fail
//	-s int      status code of injected failures
//	-l int      added latency, milliseconds
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-f", "-s", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddr, "a", config.EndpointAddr, "address and port to run server")
	fs.Float64Var(&config.FailureRate, "f", config.FailureRate, "share of write requests to fail (0..1)")
	fs.IntVar(&config.FailureStatus, "s", config.FailureStatus, "status code of injected failures")
	latency := fs.Int("l", int(config.Latency.Milliseconds()), "added latency (in milliseconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.Latency = time.Duration(*latency) * time.Millisecond
}
