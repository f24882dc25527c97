package cookies

import (
	"context"
	"strings"
	"time"
)

// Cookie is a stored cookie. A zero ExpiresAt marks a session cookie and an
// empty Domain a cookie that applies to every host.
type Cookie struct {
	Name      string
	Value     string
	Domain    string
	Path      string
	ExpiresAt time.Time
	Secure    bool
	SameSite  string
}

// Expired reports whether c is past its expiry at now.
func (c Cookie) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// MatchesHost reports whether c would be sent to host.
func (c Cookie) MatchesHost(host string) bool {
	d := strings.TrimPrefix(strings.ToLower(c.Domain), ".")
	if d == "" {
		return true
	}
	host = strings.ToLower(host)
	return host == d || strings.HasSuffix(host, "."+d)
}

type Repository interface {
	Get(ctx context.Context, name, domain, path string) (*Cookie, error)
	Upsert(ctx context.Context, c Cookie) error
	Delete(ctx context.Context, name, domain, path string) error
	ListByName(ctx context.Context, name string) ([]Cookie, error)
	List(ctx context.Context) ([]Cookie, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
