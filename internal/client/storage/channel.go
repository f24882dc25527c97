package storage

import (
	"context"
	"errors"
)

var (
	// ErrCookieTooLarge is returned when an encoded record does not fit in a cookie.
	ErrCookieTooLarge = errors.New("cookie exceeds size limit")

	// ErrAllChannelsFailed is returned by Save and Delete when no channel succeeded.
	ErrAllChannelsFailed = errors.New("all storage channels failed")
)

// MaxCookieSize is the per-cookie limit browsers enforce on name plus value.
const MaxCookieSize = 4096

// Channel is one persistence medium for the consent record.
type Channel interface {
	Name() string
	Get(ctx context.Context, key string, scope Scope) (string, bool, error)
	Set(ctx context.Context, key, value string, scope Scope) error
	Delete(ctx context.Context, key string, scope Scope) error
}
