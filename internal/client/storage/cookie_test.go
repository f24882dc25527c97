package storage

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustURL(t *testing.T, s string) *url.URL {
	t.Helper()
	u, err := url.Parse(s)
	require.NoError(t, err)
	return u
}

func TestCookieJar_RoundTripsServerCookies(t *testing.T) {
	f := newFixture(t)
	jar := f.cookie

	jar.SetCookies(mustURL(t, "https://api.example.com/init"), []*http.Cookie{
		{Name: "session", Value: "abc", MaxAge: 60},
		{Name: "shared", Value: "1", Domain: "example.com"},
	})

	got := jar.Cookies(mustURL(t, "https://api.example.com/subjects"))
	names := map[string]string{}
	for _, c := range got {
		names[c.Name] = c.Value
	}
	assert.Equal(t, map[string]string{"session": "abc", "shared": "1"}, names)

	other := jar.Cookies(mustURL(t, "https://www.example.com/"))
	require.Len(t, other, 1)
	assert.Equal(t, "shared", other[0].Name)
}

func TestCookieJar_ExpiredAndDeletedCookiesAreDropped(t *testing.T) {
	f := newFixture(t)
	jar := f.cookie
	u := mustURL(t, "http://localhost:8080/")

	jar.SetCookies(u, []*http.Cookie{{Name: "a", Value: "1"}})
	jar.SetCookies(u, []*http.Cookie{{Name: "a", Value: "", MaxAge: -1}})
	jar.SetCookies(u, []*http.Cookie{{Name: "b", Value: "1", Expires: time.Now().Add(-time.Hour)}})

	assert.Empty(t, jar.Cookies(u))
}

func TestCookieJar_SecureOnlyOverHTTPS(t *testing.T) {
	f := newFixture(t)
	jar := f.cookie

	jar.SetCookies(mustURL(t, "https://example.com/"), []*http.Cookie{{Name: "s", Value: "1", Secure: true}})

	assert.Empty(t, jar.Cookies(mustURL(t, "http://example.com/")))
	assert.Len(t, jar.Cookies(mustURL(t, "https://example.com/")), 1)
}

func TestCookieJar_PathScoping(t *testing.T) {
	f := newFixture(t)
	jar := f.cookie

	jar.SetCookies(mustURL(t, "http://example.com/"), []*http.Cookie{{Name: "p", Value: "1", Path: "/api"}})

	assert.Len(t, jar.Cookies(mustURL(t, "http://example.com/api/init")), 1)
	assert.Empty(t, jar.Cookies(mustURL(t, "http://example.com/apis")))
	assert.Empty(t, jar.Cookies(mustURL(t, "http://example.com/")))
}

func TestCookieChannel_ExpiredValueIsInvisible(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now()
	f.cookie.now = func() time.Time { return now }

	require.NoError(t, f.cookie.Set(ctx, "c15t", "c.necessary:1,i.t:1", Scope{Path: "/", MaxAge: time.Minute}))
	_, ok, err := f.cookie.Get(ctx, "c15t", Scope{})
	require.NoError(t, err)
	assert.True(t, ok)

	f.cookie.now = func() time.Time { return now.Add(2 * time.Minute) }
	_, ok, err = f.cookie.Get(ctx, "c15t", Scope{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPathMatch(t *testing.T) {
	assert.True(t, pathMatch("/a/b", "/"))
	assert.True(t, pathMatch("/a/b", "/a"))
	assert.True(t, pathMatch("/a/b", "/a/"))
	assert.False(t, pathMatch("/ab", "/a"))
}
