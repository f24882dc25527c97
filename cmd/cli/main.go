package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrijs2005/consentkeeper/internal/client/cli"
	"github.com/dmitrijs2005/consentkeeper/internal/client/config"
	"github.com/dmitrijs2005/consentkeeper/internal/flagx"
	"github.com/dmitrijs2005/consentkeeper/internal/logging"
	"github.com/dmitrijs2005/consentkeeper/internal/metrics"
)

func main() {
	if err := godotenv.Load(flagx.EnvFile(".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("failed to load env file: %v", err)
	}

	ctx := context.Background()
	cfg := config.LoadConfig()
	logger := logging.NewConsole(os.Stderr, cfg.LogLevel)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, reg, logger)
	}

	app, err := cli.NewApp(ctx, cfg, logger, m)
	if err != nil {
		log.Fatalf("%v", err)
	}

	app.Run(ctx)
}

func serveMetrics(addr string, reg *prometheus.Registry, logger logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil {
		logger.Error(context.Background(), "metrics endpoint stopped", "err", err)
	}
}
