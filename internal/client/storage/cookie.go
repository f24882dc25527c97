package storage

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/consentkeeper/internal/client/repositories/cookies"
	"github.com/dmitrijs2005/consentkeeper/internal/logging"
)

// CookieChannel keeps cookies in the cookies table. It doubles as an
// http.CookieJar, so the consent cookie travels with backend requests.
type CookieChannel struct {
	repo   cookies.Repository
	logger logging.Logger
	now    func() time.Time
}

func NewCookieChannel(repo cookies.Repository, logger logging.Logger) *CookieChannel {
	if logger == nil {
		logger = logging.Nop()
	}
	return &CookieChannel{repo: repo, logger: logger, now: time.Now}
}

func (c *CookieChannel) Name() string { return "cookie" }

// Get returns the most specific live cookie named key that applies to
// scope.Host.
func (c *CookieChannel) Get(ctx context.Context, key string, scope Scope) (string, bool, error) {
	list, err := c.repo.ListByName(ctx, key)
	if err != nil {
		return "", false, err
	}
	now := c.now()
	for _, ck := range list {
		if ck.Expired(now) {
			continue
		}
		if scope.Host != "" && !ck.MatchesHost(scope.Host) {
			continue
		}
		return ck.Value, true, nil
	}
	return "", false, nil
}

func (c *CookieChannel) Set(ctx context.Context, key, value string, scope Scope) error {
	if len(key)+1+len(value) > MaxCookieSize {
		return fmt.Errorf("%w: %d bytes", ErrCookieTooLarge, len(key)+1+len(value))
	}

	ck := cookies.Cookie{
		Name:     key,
		Value:    value,
		Domain:   scope.Domain,
		Path:     scope.Path,
		Secure:   scope.Secure,
		SameSite: sameSiteString(scope.SameSite),
	}
	if scope.MaxAge > 0 {
		ck.ExpiresAt = c.now().Add(scope.MaxAge)
	}
	return c.repo.Upsert(ctx, ck)
}

// Delete removes every cookie named key visible from scope.Host, so a
// host-only copy and a cross-subdomain copy both go away.
func (c *CookieChannel) Delete(ctx context.Context, key string, scope Scope) error {
	list, err := c.repo.ListByName(ctx, key)
	if err != nil {
		return err
	}
	for _, ck := range list {
		if scope.Host != "" && !ck.MatchesHost(scope.Host) {
			continue
		}
		if err := c.repo.Delete(ctx, ck.Name, ck.Domain, ck.Path); err != nil {
			return err
		}
	}
	return nil
}

// SetCookies implements http.CookieJar.
func (c *CookieChannel) SetCookies(u *url.URL, list []*http.Cookie) {
	ctx := context.Background()
	now := c.now()

	for _, hc := range list {
		domain := strings.TrimPrefix(strings.ToLower(hc.Domain), ".")
		if domain == "" {
			domain = u.Hostname()
		} else {
			domain = "." + domain
		}
		path := hc.Path
		if path == "" {
			path = "/"
		}

		if hc.MaxAge < 0 || (!hc.Expires.IsZero() && !hc.Expires.After(now)) {
			if err := c.repo.Delete(ctx, hc.Name, domain, path); err != nil {
				c.logger.Warn(ctx, "cookie jar delete failed", "name", hc.Name, "err", err)
			}
			continue
		}

		ck := cookies.Cookie{
			Name:     hc.Name,
			Value:    hc.Value,
			Domain:   domain,
			Path:     path,
			Secure:   hc.Secure,
			SameSite: sameSiteString(hc.SameSite),
		}
		switch {
		case hc.MaxAge > 0:
			ck.ExpiresAt = now.Add(time.Duration(hc.MaxAge) * time.Second)
		case !hc.Expires.IsZero():
			ck.ExpiresAt = hc.Expires
		}
		if err := c.repo.Upsert(ctx, ck); err != nil {
			c.logger.Warn(ctx, "cookie jar write failed", "name", hc.Name, "err", err)
		}
	}
}

// Cookies implements http.CookieJar.
func (c *CookieChannel) Cookies(u *url.URL) []*http.Cookie {
	ctx := context.Background()
	list, err := c.repo.List(ctx)
	if err != nil {
		c.logger.Warn(ctx, "cookie jar read failed", "err", err)
		return nil
	}

	now := c.now()
	host := u.Hostname()
	reqPath := u.EscapedPath()
	if reqPath == "" {
		reqPath = "/"
	}

	var out []*http.Cookie
	for _, ck := range list {
		if ck.Expired(now) || !ck.MatchesHost(host) || !pathMatch(reqPath, ck.Path) {
			continue
		}
		if ck.Secure && u.Scheme != "https" {
			continue
		}
		out = append(out, &http.Cookie{Name: ck.Name, Value: ck.Value})
	}
	return out
}

func pathMatch(reqPath, cookiePath string) bool {
	if cookiePath == "" || cookiePath == "/" || reqPath == cookiePath {
		return true
	}
	if !strings.HasPrefix(reqPath, cookiePath) {
		return false
	}
	return strings.HasSuffix(cookiePath, "/") || reqPath[len(cookiePath)] == '/'
}

func sameSiteString(s http.SameSite) string {
	switch s {
	case http.SameSiteLaxMode:
		return "Lax"
	case http.SameSiteStrictMode:
		return "Strict"
	case http.SameSiteNoneMode:
		return "None"
	}
	return ""
}

var _ http.CookieJar = (*CookieChannel)(nil)
