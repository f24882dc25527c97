package services

import (
	"github.com/dmitrijs2005/consentkeeper/internal/client/fetcher"
	"github.com/dmitrijs2005/consentkeeper/internal/client/models"
)

// Result is returned by the write operations.
type Result struct {
	OK bool
	// Record is the locally stored record after the operation.
	Record *models.ConsentRecord
	// Queued is set when delivery failed and the request waits in the
	// pending queue; the operation still counts as successful.
	Queued bool
	// Skipped is set when nothing had to be sent.
	Skipped bool
	Error   *fetcher.Error
}

func (r *Result) Err() error {
	if r == nil || r.Error == nil {
		return nil
	}
	return r.Error
}
