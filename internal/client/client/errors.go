package client

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/consentkeeper/internal/client/fetcher"
)

var (
	ErrUnavailable  = errors.New("consent backend unavailable")
	ErrUnauthorized = errors.New("unauthorized")
)

// mapError tags fetcher failures with the sentinel errors callers match on.
// The *fetcher.Error stays reachable through errors.As.
func mapError(err error) error {
	var fe *fetcher.Error
	if !errors.As(err, &fe) {
		return err
	}

	switch {
	case fe.Kind == fetcher.KindNetwork:
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	case fe.Status == http.StatusUnauthorized || fe.Status == http.StatusForbidden:
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	case fe.Status >= 500:
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	default:
		return err
	}
}
