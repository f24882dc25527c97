package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/consentkeeper/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags. See
// the package documentation for the list.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-m", "-v", "-n", "-d", "-i", "-r"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.BackendURL, "a", cfg.BackendURL, "backend base URL")
	fs.StringVar(&cfg.Mode, "m", cfg.Mode, "mode: hosted or offline")
	fs.StringVar(&cfg.APIVersion, "v", cfg.APIVersion, "backend API version")
	fs.StringVar(&cfg.Domain, "n", cfg.Domain, "site domain")
	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "SQLite database path")
	interval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online status check interval (in seconds)")
	fs.IntVar(&cfg.MaxRetries, "r", cfg.MaxRetries, "retries per request")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.OnlineCheckInterval = time.Duration(*interval) * time.Second
}
