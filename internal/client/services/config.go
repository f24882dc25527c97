package services

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"slices"
	"strings"

	"github.com/dmitrijs2005/consentkeeper/internal/client/fetcher"
	"github.com/dmitrijs2005/consentkeeper/internal/client/pending"
	"github.com/dmitrijs2005/consentkeeper/internal/client/storage"
)

// Mode selects how the service reaches a backend.
type Mode string

const (
	// ModeHosted talks to the HTTP consent backend.
	ModeHosted Mode = "hosted"
	// ModeOffline keeps everything local and never touches the network.
	ModeOffline Mode = "offline"
	// ModeCustom uses a caller-supplied client.API.
	ModeCustom Mode = "custom"
)

type Config struct {
	Mode       Mode              `json:"mode"`
	BackendURL string            `json:"backend_url"`
	Origin     string            `json:"origin,omitempty"`
	APIVersion string            `json:"api_version,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`

	// Domain is the site the consent is given for.
	Domain      string `json:"domain"`
	ConsentType string `json:"consent_type,omitempty"`

	Storage storage.Config `json:"storage"`
	Pending pending.Config `json:"-"`

	// Retry replaces the default retry policy when set.
	Retry *fetcher.RetryPolicy `json:"-"`

	// ThrowOnError makes failed operations return an error next to the result.
	ThrowOnError bool `json:"throw_on_error,omitempty"`
}

func (c Config) withDefaults() Config {
	if c.Mode == "" {
		c.Mode = ModeHosted
	}
	if c.ConsentType == "" {
		c.ConsentType = "cookie_banner"
	}
	if c.Domain == "" {
		c.Domain = c.Storage.Domain
	}
	return c
}

// effectiveStorage is the storage config a service built from c uses.
func (c Config) effectiveStorage() storage.Config {
	sc := c.Storage
	if sc.Domain == "" {
		sc.Domain = c.Domain
	}
	return sc
}

// pendingPrefix is the key prefix of the service's pending queue.
func (c Config) pendingPrefix() string {
	if c.Pending.Prefix != "" {
		return c.Pending.Prefix
	}
	if c.Storage.StorageKey != "" {
		return c.Storage.StorageKey
	}
	return storage.DefaultStorageKey
}

// Fingerprint identifies the configurations that may share one service:
// mode, backend URL, headers, the effective storage config and the pending
// queue prefix.
func Fingerprint(c Config) string {
	c = c.withDefaults()

	headers := make([][2]string, 0, len(c.Headers))
	for k, v := range c.Headers {
		headers = append(headers, [2]string{k, v})
	}
	slices.SortFunc(headers, func(a, b [2]string) int { return strings.Compare(a[0], b[0]) })

	canonical := struct {
		Mode       Mode           `json:"mode"`
		BackendURL string         `json:"backendURL"`
		Origin     string         `json:"origin"`
		APIVersion string         `json:"apiVersion"`
		Headers    [][2]string    `json:"headers"`
		Storage    storage.Config `json:"storage"`
		Pending    string         `json:"pending"`
	}{c.Mode, c.BackendURL, c.Origin, c.APIVersion, headers, c.effectiveStorage(), c.pendingPrefix()}

	// the struct only holds strings, numbers and bools
	b, _ := json.Marshal(canonical)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
