// Package server runs the consent backend used for local development and
// end-to-end checks of the SDK: an in-memory subject store behind the JSON
// HTTP API, with optional fault injection.
package server

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dmitrijs2005/consentkeeper/internal/logging"
	"github.com/dmitrijs2005/consentkeeper/internal/server/config"
	"github.com/dmitrijs2005/consentkeeper/internal/server/httpapi"
	"github.com/dmitrijs2005/consentkeeper/internal/server/subjects"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	handler *httpapi.Handler
}

func NewApp(c *config.Config, logger logging.Logger) *App {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	service := subjects.NewService(subjects.NewMemoryRepository())
	faults := httpapi.NewFaults(c.FailureRate, c.FailureStatus, c.Latency)

	return &App{
		config:  c,
		logger:  logger,
		handler: httpapi.NewHandler(service, faults, logger, reg),
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := httpapi.NewHTTPServer(app.config.EndpointAddr, app.handler.Routes(), app.logger)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run serves until ctx is cancelled or a termination signal arrives.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting consent backend...",
		"failure_rate", app.config.FailureRate,
		"latency", app.config.Latency)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()
}
