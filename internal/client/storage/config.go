package storage

import (
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

const (
	DefaultStorageKey       = "c15t"
	DefaultLegacyStorageKey = "privacy-consent-storage"
	DefaultPath             = "/"
	DefaultMaxAge           = 365 * 24 * time.Hour
)

// Config governs where and how a consent record is persisted.
type Config struct {
	StorageKey       string        `json:"storage_key"`
	LegacyStorageKey string        `json:"legacy_storage_key"`
	Domain           string        `json:"domain,omitempty"`
	CrossSubdomain   bool          `json:"cross_subdomain,omitempty"`
	Path             string        `json:"path"`
	MaxAge           time.Duration `json:"max_age"`
	Secure           bool          `json:"secure,omitempty"`
	SameSite         http.SameSite `json:"same_site,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		StorageKey:       DefaultStorageKey,
		LegacyStorageKey: DefaultLegacyStorageKey,
		Path:             DefaultPath,
		MaxAge:           DefaultMaxAge,
		SameSite:         http.SameSiteLaxMode,
	}
}

// withDefaults fills the zero fields of c from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.StorageKey == "" {
		c.StorageKey = d.StorageKey
	}
	if c.LegacyStorageKey == "" {
		c.LegacyStorageKey = d.LegacyStorageKey
	}
	if c.Path == "" {
		c.Path = d.Path
	}
	if c.MaxAge == 0 {
		c.MaxAge = d.MaxAge
	}
	if c.SameSite == 0 {
		c.SameSite = d.SameSite
	}
	return c
}

// Scope is the cookie placement derived from a Config.
type Scope struct {
	// Host is the host the record belongs to, as configured.
	Host string
	// Domain is the cookie Domain attribute; it differs from Host only for
	// cross-subdomain cookies.
	Domain   string
	Path     string
	MaxAge   time.Duration
	Secure   bool
	SameSite http.SameSite
}

func (c Config) scope() Scope {
	host := normalizeHost(c.Domain)
	return Scope{
		Host:     host,
		Domain:   CookieDomain(host, c.CrossSubdomain),
		Path:     c.Path,
		MaxAge:   c.MaxAge,
		Secure:   c.Secure,
		SameSite: c.SameSite,
	}
}

// CookieDomain returns the Domain attribute for host. With crossSubdomain
// set it is the registrable domain prefixed by a dot, so every subdomain
// sees the cookie; hosts without a registrable domain (localhost, IPs,
// bare public suffixes) are returned unchanged.
func CookieDomain(host string, crossSubdomain bool) string {
	host = normalizeHost(host)
	if host == "" || !crossSubdomain {
		return host
	}
	etld1, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return "." + etld1
}

func normalizeHost(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.TrimPrefix(h, ".")
	if host, _, err := net.SplitHostPort(h); err == nil {
		h = host
	}
	return h
}
