package client

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/dmitrijs2005/consentkeeper/internal/client/fetcher"
	"github.com/dmitrijs2005/consentkeeper/internal/client/models"
)

// API is the consent backend as seen by the SDK. Bodies are passed raw so a
// queued operation is replayed byte for byte.
type API interface {
	Init(ctx context.Context, headers http.Header) (*models.InitResponse, error)
	SetConsent(ctx context.Context, body json.RawMessage, opts ...fetcher.RetryOption) (*models.ConsentResult, error)
	Identify(ctx context.Context, subjectID string, body json.RawMessage, opts ...fetcher.RetryOption) (*models.IdentifyResult, error)
	Ping(ctx context.Context) error
	Close() error
}
