package cli

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/consentkeeper/internal/client/client"
	"github.com/dmitrijs2005/consentkeeper/internal/client/config"
	"github.com/dmitrijs2005/consentkeeper/internal/client/services"
	"github.com/dmitrijs2005/consentkeeper/internal/filex"
	"github.com/dmitrijs2005/consentkeeper/internal/logging"
	"github.com/dmitrijs2005/consentkeeper/internal/metrics"
)

type Mode string

const (
	ModeOffline  Mode = "offline"
	ModeOnline   Mode = "online"
	ModeDisabled Mode = "disabled"
)

type App struct {
	config  *config.Config
	db      *sql.DB
	service services.ConsentService
	logger  logging.Logger
	reader  *bufio.Reader
	out     io.Writer

	mu   sync.Mutex
	mode Mode
}

// NewApp opens the database and builds the consent service. The offline
// mode disables the network watcher.
func NewApp(ctx context.Context, c *config.Config, logger logging.Logger, m *metrics.Metrics) (*App, error) {
	if _, err := filex.EnsureParentDir(c.DatabaseDSN); err != nil {
		return nil, fmt.Errorf("error preparing database directory: %w", err)
	}

	db, err := client.InitDatabase(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error initializing database: %w", err)
	}

	svc, err := services.NewConsentService(ctx, c.Services(), services.Deps{
		DB:      db,
		Logger:  logger,
		Metrics: m,
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	mode := ModeOffline
	if services.Mode(c.Mode) == services.ModeOffline {
		mode = ModeDisabled
	}

	return &App{
		config:  c,
		db:      db,
		service: svc,
		logger:  logger,
		reader:  bufio.NewReader(os.Stdin),
		out:     os.Stdout,
		mode:    mode,
	}, nil
}

func (a *App) Mode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

// setMode records a connectivity change and reports whether it happened.
func (a *App) setMode(mode Mode) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mode == mode || a.mode == ModeDisabled {
		return false
	}
	a.mode = mode
	fmt.Fprintf(a.out, "Switched to %s mode\n", mode)
	return true
}

// Run starts the watcher and the REPL and releases everything on exit.
func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		if err := a.service.Close(); err != nil {
			a.logger.Error(ctx, "failed to close consent service", "err", err)
		}
		_ = a.db.Close()
	}()

	if a.Mode() != ModeDisabled {
		go a.StartOnlineStatusWatcher(ctx, a.config.OnlineCheckInterval)
	}

	fmt.Fprintln(a.out, "Welcome to consent CLI (type 'help' for commands)")
	runREPL(ctx, a, a.getStatus, a.reader, a.out)
}

func (a *App) getStatus() string {
	return fmt.Sprintf("(%s %s)", a.config.Domain, a.Mode())
}

// StartOnlineStatusWatcher pings the backend every interval. Coming back
// online replays the queued requests.
func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	a.checkOnline(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.checkOnline(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) checkOnline(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	err := a.service.Ping(pingCtx)
	cancel()

	if err != nil {
		a.setMode(ModeOffline)
		return
	}
	if !a.setMode(ModeOnline) {
		return
	}

	remaining, err := a.service.ReplayPending(ctx)
	if err != nil {
		a.logger.Warn(ctx, "replay after reconnect failed", "err", err)
		return
	}
	if len(remaining) > 0 {
		a.logger.Info(ctx, "requests still queued after reconnect", "count", len(remaining))
	}
}
