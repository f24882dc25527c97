package services

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/consentkeeper/internal/client/fetcher"
	"github.com/dmitrijs2005/consentkeeper/internal/client/models"
	"github.com/dmitrijs2005/consentkeeper/internal/client/pending"
	"github.com/dmitrijs2005/consentkeeper/internal/client/storage"
)

func TestFingerprint(t *testing.T) {
	base := Config{
		Mode:       ModeHosted,
		BackendURL: "https://consent.example.com/api/c15t",
		Headers:    map[string]string{"X-A": "1", "X-B": "2"},
		Storage:    storage.Config{StorageKey: "c15t"},
	}

	same := base
	same.Headers = map[string]string{"X-B": "2", "X-A": "1"}
	same.ThrowOnError = true
	same.Retry = &fetcher.RetryPolicy{MaxRetries: 9}
	assert.Equal(t, Fingerprint(base), Fingerprint(same))

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"mode", func(c *Config) { c.Mode = ModeOffline }},
		{"backend url", func(c *Config) { c.BackendURL = "https://other.example.com" }},
		{"header value", func(c *Config) { c.Headers = map[string]string{"X-A": "1", "X-B": "3"} }},
		{"storage key", func(c *Config) { c.Storage.StorageKey = "other" }},
		{"cross subdomain", func(c *Config) { c.Storage.CrossSubdomain = true }},
		{"consent domain", func(c *Config) { c.Domain = "b.example.com" }},
		{"storage domain", func(c *Config) { c.Storage.Domain = "b.example.com" }},
		{"pending prefix", func(c *Config) { c.Pending.Prefix = "tenant2" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			assert.NotEqual(t, Fingerprint(base), Fingerprint(c))
		})
	}
}

func TestRegistry_ReusesServicePerFingerprint(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	api := &fakeAPI{consentErr: &fetcher.Error{Kind: fetcher.KindNetwork}}

	// queue one submission before the registry exists
	seed := customService(t, db, api, func(c *Config, _ *Deps) { c.Pending.SettleDelay = time.Hour })
	_, err := seed.SetConsent(ctx, SetConsentInput{Consents: models.ConsentState{models.CategoryMarketing: true}})
	require.NoError(t, err)
	require.NoError(t, seed.Close())
	api.setConsentErr(nil)

	reg := NewRegistry(Deps{DB: db, API: api, Now: fixedNow})
	cfg := Config{Mode: ModeCustom, Domain: "example.com", Pending: fastPending()}
	cfg.Pending.SettleDelay = 20 * time.Millisecond

	a, err := reg.Get(ctx, cfg)
	require.NoError(t, err)
	b, err := reg.Get(ctx, cfg)
	require.NoError(t, err)
	assert.Same(t, a, b)

	other := cfg
	other.Storage.StorageKey = "tenant-b"
	c, err := reg.Get(ctx, other)
	require.NoError(t, err)
	assert.NotSame(t, a, c)
	assert.Equal(t, 2, reg.Len())

	require.Eventually(t, func() bool {
		ops, err := a.Pending(ctx)
		return err == nil && len(ops) == 0
	}, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	consentCalls, _ := api.calls()
	assert.Equal(t, 2, consentCalls, "one failed send plus exactly one replay")

	require.NoError(t, reg.Close())
	assert.Zero(t, reg.Len())
}

func TestRegistry_SeparatesDomainsAndQueuePrefixes(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(Deps{DB: newDB(t), Now: fixedNow})
	t.Cleanup(func() { _ = reg.Close() })

	get := func(cfg Config) ConsentService {
		t.Helper()
		s, err := reg.Get(ctx, cfg)
		require.NoError(t, err)
		return s
	}

	a := get(Config{Mode: ModeOffline, Domain: "a.com"})
	b := get(Config{Mode: ModeOffline, Domain: "b.com"})
	assert.NotSame(t, a, b)

	t1 := get(Config{Mode: ModeOffline, Domain: "a.com", Pending: pending.Config{Prefix: "tenant1"}})
	t2 := get(Config{Mode: ModeOffline, Domain: "a.com", Pending: pending.Config{Prefix: "tenant2"}})
	assert.NotSame(t, t1, t2)

	// an unset prefix falls back to the storage key
	assert.Same(t, a, get(Config{Mode: ModeOffline, Domain: "a.com", Pending: pending.Config{Prefix: storage.DefaultStorageKey}}))
	assert.Equal(t, 4, reg.Len())
}

func TestRegistry_PropagatesConstructionError(t *testing.T) {
	reg := NewRegistry(Deps{})
	_, err := reg.Get(context.Background(), Config{Mode: ModeOffline})
	require.ErrorIs(t, err, ErrNoDatabase)
	assert.Zero(t, reg.Len())
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) OnEvent(_ context.Context, e Event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func TestObserver(t *testing.T) {
	ctx := context.Background()
	log := &eventLog{}
	api := &fakeAPI{consentErr: &fetcher.Error{Kind: fetcher.KindAPI, Status: http.StatusBadGateway}}
	s, err := NewConsentService(ctx,
		Config{Mode: ModeCustom, Domain: "example.com", Pending: fastPending()},
		Deps{DB: newDB(t), API: api, Observer: log, Now: fixedNow})
	require.NoError(t, err)

	_, err = s.SetConsent(ctx, SetConsentInput{Consents: models.ConsentState{models.CategoryMarketing: true}})
	require.NoError(t, err)
	_, err = s.SetConsent(ctx, SetConsentInput{})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	log.mu.Lock()
	defer log.mu.Unlock()
	require.Len(t, log.events, 2)

	var queued, failed int
	for _, e := range log.events {
		assert.Equal(t, OpSetConsent, e.Op)
		if e.Queued {
			queued++
			assert.True(t, e.OK)
			assert.True(t, e.Record.Has(models.CategoryMarketing))
		}
		if e.Err != nil {
			failed++
			assert.False(t, e.OK)
		}
	}
	assert.Equal(t, 1, queued)
	assert.Equal(t, 1, failed)
}

func TestObserver_PanicDoesNotAffectResult(t *testing.T) {
	ctx := context.Background()
	s := customService(t, newDB(t), &fakeAPI{}, func(_ *Config, d *Deps) {
		d.Observer = ObserverFunc(func(context.Context, Event) { panic("observer bug") })
	})

	res, err := s.SetConsent(ctx, SetConsentInput{Consents: models.ConsentState{models.CategoryMarketing: true}})
	require.NoError(t, err)
	assert.True(t, res.OK)
}
