package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/dmitrijs2005/consentkeeper/internal/client/fetcher"
	"github.com/dmitrijs2005/consentkeeper/internal/client/models"
)

// Backend paths.
const (
	PathInit       = "/init"
	PathSubjects   = "/subjects"
	PathConsentSet = "/consent/set"
	PathIdentify   = "/consent/identify"
	PathStatus     = "/status"
)

// HTTPClient talks to the consent backend over JSON HTTP.
type HTTPClient struct {
	f       *fetcher.Fetcher
	version string
}

// NewHTTPClient returns an API for the given protocol version ("v1" or "v2").
func NewHTTPClient(f *fetcher.Fetcher, version string) *HTTPClient {
	if version == "" {
		version = models.APIVersionV2
	}
	return &HTTPClient{f: f, version: version}
}

func (c *HTTPClient) Init(ctx context.Context, headers http.Header) (*models.InitResponse, error) {
	var out models.InitResponse
	res, _ := c.f.Do(ctx, fetcher.Request{
		Method:  http.MethodGet,
		Path:    PathInit,
		Headers: forwardHeaders(headers),
		Out:     &out,
	})
	if !res.OK {
		return nil, mapError(res.Err())
	}
	return &out, nil
}

func (c *HTTPClient) SetConsent(ctx context.Context, body json.RawMessage, opts ...fetcher.RetryOption) (*models.ConsentResult, error) {
	path := PathSubjects
	if c.version == models.APIVersionV1 {
		path = PathConsentSet
	}

	var out models.ConsentResult
	res, _ := c.f.Do(ctx, fetcher.Request{
		Method: http.MethodPost,
		Path:   path,
		Body:   body,
		Out:    &out,
		Retry:  opts,
	})
	if !res.OK {
		return nil, mapError(res.Err())
	}
	return &out, nil
}

func (c *HTTPClient) Identify(ctx context.Context, subjectID string, body json.RawMessage, opts ...fetcher.RetryOption) (*models.IdentifyResult, error) {
	method, path := http.MethodPatch, PathSubjects+"/"+url.PathEscape(subjectID)
	if c.version == models.APIVersionV1 {
		method, path = http.MethodPost, PathIdentify
	}

	var out models.IdentifyResult
	res, _ := c.f.Do(ctx, fetcher.Request{
		Method: method,
		Path:   path,
		Body:   body,
		Out:    &out,
		Retry:  opts,
	})
	if !res.OK {
		return nil, mapError(res.Err())
	}
	return &out, nil
}

// Ping makes a single status request.
func (c *HTTPClient) Ping(ctx context.Context) error {
	res, _ := c.f.Do(ctx, fetcher.Request{
		Method: http.MethodGet,
		Path:   PathStatus,
		Retry:  []fetcher.RetryOption{fetcher.NoRetry()},
	})
	return mapError(res.Err())
}

func (c *HTTPClient) Close() error { return nil }

// forwardHeaders keeps the headers the backend uses for location and language.
func forwardHeaders(h http.Header) map[string]string {
	out := map[string]string{}
	for _, k := range []string{"X-C15t-Country", "X-C15t-Region", "Accept-Language"} {
		if v := h.Get(k); v != "" {
			out[k] = v
		}
	}
	return out
}
