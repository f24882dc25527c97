package services

import (
	"context"

	"github.com/dmitrijs2005/consentkeeper/internal/client/models"
)

// Operation names reported to observers.
const (
	OpInit         = "init"
	OpSetConsent   = "set-consent"
	OpIdentifyUser = "identify-user"
	OpReplay       = "replay"
)

// Event describes a finished operation.
type Event struct {
	Op     string
	OK     bool
	Queued bool
	Record *models.ConsentRecord
	Err    error
}

// Observer is notified after operations finish. Notifications run on their
// own goroutine and never affect the operation result.
type Observer interface {
	OnEvent(ctx context.Context, e Event)
}

type ObserverFunc func(ctx context.Context, e Event)

func (f ObserverFunc) OnEvent(ctx context.Context, e Event) { f(ctx, e) }
