package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/consentkeeper/internal/client/fetcher"
	"github.com/dmitrijs2005/consentkeeper/internal/client/models"
)

type captured struct {
	method, path, body string
	header             http.Header
}

func newServer(t *testing.T, status int, reply string) (*httptest.Server, *captured) {
	t.Helper()
	c := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		c.method, c.path, c.body, c.header = r.Method, r.URL.Path, string(b), r.Header.Clone()
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

func noRetry() []fetcher.RetryOption { return []fetcher.RetryOption{fetcher.NoRetry()} }

func TestHTTPClient_InitForwardsLocationHeaders(t *testing.T) {
	srv, c := newServer(t, 200, `{"showConsentBanner":true,"jurisdiction":{"code":"GDPR","message":"m"},"location":{"countryCode":"DE"}}`)
	api := NewHTTPClient(fetcher.New(srv.URL+"/api/c15t"), "")

	h := http.Header{}
	h.Set("x-c15t-country", "DE")
	h.Set("Authorization", "secret")

	got, err := api.Init(context.Background(), h)
	require.NoError(t, err)
	assert.True(t, got.ShowConsentBanner)
	assert.Equal(t, "GDPR", got.Jurisdiction.Code)
	assert.False(t, got.Offline)

	assert.Equal(t, "/api/c15t/init", c.path)
	assert.Equal(t, "DE", c.header.Get("X-C15t-Country"))
	assert.Empty(t, c.header.Get("Authorization"))
}

func TestHTTPClient_SetConsentV2PostsSubjects(t *testing.T) {
	srv, c := newServer(t, 200, `{"id":"cns_1","subjectId":"sub_1"}`)
	api := NewHTTPClient(fetcher.New(srv.URL), models.APIVersionV2)

	body := json.RawMessage(`{"id":"sub_1","type":"cookie_banner"}`)
	got, err := api.SetConsent(context.Background(), body, noRetry()...)
	require.NoError(t, err)
	assert.Equal(t, "cns_1", got.ID)
	assert.Equal(t, http.MethodPost, c.method)
	assert.Equal(t, "/subjects", c.path)
	assert.JSONEq(t, string(body), c.body)
}

func TestHTTPClient_SetConsentV1(t *testing.T) {
	srv, c := newServer(t, 200, `{"id":"cns_1"}`)
	api := NewHTTPClient(fetcher.New(srv.URL), models.APIVersionV1)

	_, err := api.SetConsent(context.Background(), json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "/consent/set", c.path)
}

func TestHTTPClient_IdentifyPatchesSubject(t *testing.T) {
	srv, c := newServer(t, 200, `{"id":"sub 1","externalId":"u1","identified":true}`)
	api := NewHTTPClient(fetcher.New(srv.URL), "")

	got, err := api.Identify(context.Background(), "sub 1", json.RawMessage(`{"id":"sub 1","externalId":"u1"}`))
	require.NoError(t, err)
	assert.True(t, got.Identified)
	assert.Equal(t, http.MethodPatch, c.method)
	assert.Equal(t, "/subjects/sub 1", c.path)
}

func TestHTTPClient_ErrorsAreTagged(t *testing.T) {
	cases := []struct {
		status   int
		sentinel error
	}{
		{503, ErrUnavailable},
		{401, ErrUnauthorized},
		{403, ErrUnauthorized},
	}
	for _, tc := range cases {
		srv, _ := newServer(t, tc.status, `{"code":"X"}`)
		api := NewHTTPClient(fetcher.New(srv.URL), "")

		_, err := api.SetConsent(context.Background(), json.RawMessage(`{}`), noRetry()...)
		require.Error(t, err)
		assert.ErrorIs(t, err, tc.sentinel, "status %d", tc.status)

		var fe *fetcher.Error
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, tc.status, fe.Status)
	}
}

func TestHTTPClient_NotFoundIsPlainAPIError(t *testing.T) {
	srv, _ := newServer(t, 404, ``)
	api := NewHTTPClient(fetcher.New(srv.URL), "")

	_, err := api.SetConsent(context.Background(), json.RawMessage(`{}`))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnavailable))
	assert.Equal(t, fetcher.KindAPI, fetcher.KindOf(err))
}

func TestHTTPClient_NetworkErrorIsUnavailable(t *testing.T) {
	srv, _ := newServer(t, 200, `{}`)
	url := srv.URL
	srv.Close()

	api := NewHTTPClient(fetcher.New(url), "")
	err := api.Ping(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, fetcher.KindNetwork, fetcher.KindOf(err))
}

func TestHTTPClient_Ping(t *testing.T) {
	srv, c := newServer(t, 200, `{"status":"ok"}`)
	api := NewHTTPClient(fetcher.New(srv.URL), "")
	require.NoError(t, api.Ping(context.Background()))
	assert.Equal(t, "/status", c.path)
	require.NoError(t, api.Close())
}
