package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/consentkeeper/internal/metrics"
)

// scripted replies with the given statuses in order, repeating the last one.
type scripted struct {
	mu       sync.Mutex
	statuses []int
	bodies   []string
	calls    int
	ids      []string
	bodiesIn []string
}

func (s *scripted) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	i := min(s.calls, len(s.statuses)-1)
	s.calls++
	s.ids = append(s.ids, r.Header.Get(RequestIDHeader))
	b, _ := io.ReadAll(r.Body)
	s.bodiesIn = append(s.bodiesIn, string(b))
	status := s.statuses[i]
	body := ""
	if i < len(s.bodies) {
		body = s.bodies[i]
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func (s *scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newTestFetcher(t *testing.T, h http.Handler, opts ...Option) (*Fetcher, *[]time.Duration) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	f := New(srv.URL+"/api/c15t", opts...)
	var waits []time.Duration
	f.wait = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return ctx.Err()
	}
	return f, &waits
}

func TestDo_AlwaysRetryableMakesNPlusOneAttempts(t *testing.T) {
	for _, n := range []int{0, 1, 2, 3, 5} {
		srv := &scripted{statuses: []int{http.StatusServiceUnavailable}}
		f, _ := newTestFetcher(t, srv)

		res, err := f.Do(context.Background(), Request{Path: "/init", Retry: []RetryOption{WithMaxRetries(n)}})
		require.NoError(t, err)

		assert.Equal(t, n+1, srv.Calls(), "maxRetries=%d", n)
		assert.False(t, res.OK)
		assert.Equal(t, n+1, res.Attempts)
		assert.Equal(t, KindAPI, res.Error.Kind)
		assert.ErrorIs(t, res.Err(), ErrRetriesExhausted)
	}
}

func TestDo_NonRetryableMakesSingleAttempt(t *testing.T) {
	for _, status := range []int{400, 401, 403, 404} {
		srv := &scripted{statuses: []int{status}}
		f, waits := newTestFetcher(t, srv)

		res, err := f.Do(context.Background(), Request{
			Method: http.MethodPost, Path: "/subjects", Body: map[string]string{"a": "b"},
			Retry: []RetryOption{WithMaxRetries(10), WithRetryableStatusCodes(status)},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, srv.Calls(), "status %d", status)
		assert.Empty(t, *waits)
		assert.Equal(t, status, res.Status)
		assert.False(t, res.Error.Exhausted)
	}
}

func TestDo_RecoversAfterTransientFailures(t *testing.T) {
	srv := &scripted{
		statuses: []int{503, 503, 200},
		bodies:   []string{"", "", `{"id":"cns_1"}`},
	}
	f, waits := newTestFetcher(t, srv)

	var out struct {
		ID string `json:"id"`
	}
	res, err := f.Do(context.Background(), Request{
		Method: http.MethodPost,
		Path:   "/subjects",
		Body:   map[string]any{"type": "cookie_banner"},
		Out:    &out,
		Retry: []RetryOption{
			WithMaxRetries(2),
			WithRetryableStatusCodes(503),
			WithInitialDelay(10 * time.Millisecond),
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, srv.Calls())
	assert.True(t, res.OK)
	assert.Equal(t, 200, res.Status)
	assert.Equal(t, "cns_1", out.ID)
	assert.JSONEq(t, `{"id":"cns_1"}`, string(res.Data))
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, *waits)
}

func TestDo_RequestIDStableAcrossAttempts(t *testing.T) {
	srv := &scripted{statuses: []int{502, 200}}
	f, _ := newTestFetcher(t, srv)

	res, err := f.Do(context.Background(), Request{Path: "/init"})
	require.NoError(t, err)
	require.True(t, res.OK)

	require.Len(t, srv.ids, 2)
	assert.NotEmpty(t, srv.ids[0])
	assert.Equal(t, srv.ids[0], srv.ids[1])
	assert.Equal(t, res.RequestID, srv.ids[0])

	res2, _ := f.Do(context.Background(), Request{Path: "/init"})
	assert.NotEqual(t, res.RequestID, res2.RequestID)
}

func TestDo_UnparseableSuccessBodyFailsWithoutRetry(t *testing.T) {
	srv := &scripted{statuses: []int{200}, bodies: []string{"<html>oops"}}
	f, _ := newTestFetcher(t, srv)

	res, err := f.Do(context.Background(), Request{Path: "/init"})
	require.NoError(t, err)
	assert.Equal(t, 1, srv.Calls())
	assert.False(t, res.OK)
	assert.Equal(t, KindParse, res.Error.Kind)
	assert.False(t, errors.Is(res.Err(), ErrRetriesExhausted))
}

func TestDo_EmptySuccessBodyIsSuccess(t *testing.T) {
	srv := &scripted{statuses: []int{204}}
	f, _ := newTestFetcher(t, srv)

	res, err := f.Do(context.Background(), Request{Method: http.MethodPatch, Path: "/subjects/x"})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Nil(t, res.Data)
}

func TestDo_ShouldRetryOverridesTable(t *testing.T) {
	srv := &scripted{statuses: []int{429, 429, 200}}
	f, _ := newTestFetcher(t, srv)

	var seen []int
	res, err := f.Do(context.Background(), Request{
		Path: "/init",
		Retry: []RetryOption{WithShouldRetry(func(info ResponseInfo, rc RetryContext) bool {
			seen = append(seen, rc.Attempt)
			return info.Status == http.StatusTooManyRequests
		})},
	})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, []int{0, 1}, seen)
}

func TestDo_ShouldRetryNotConsultedForNonRetryable(t *testing.T) {
	srv := &scripted{statuses: []int{404}}
	f, _ := newTestFetcher(t, srv)

	called := false
	_, _ = f.Do(context.Background(), Request{
		Path: "/init",
		Retry: []RetryOption{WithShouldRetry(func(ResponseInfo, RetryContext) bool {
			called = true
			return true
		})},
	})
	assert.False(t, called)
	assert.Equal(t, 1, srv.Calls())
}

func TestDo_ShouldRetryPanicFallsBackToTable(t *testing.T) {
	srv := &scripted{statuses: []int{503, 200}}
	f, _ := newTestFetcher(t, srv)

	res, err := f.Do(context.Background(), Request{
		Path: "/init",
		Retry: []RetryOption{WithShouldRetry(func(ResponseInfo, RetryContext) bool {
			panic("predicate bug")
		})},
	})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, 2, srv.Calls())
}

func TestDo_NetworkErrorRetriedOnlyWhenEnabled(t *testing.T) {
	var calls atomic.Int32
	failing := func(http.RoundTripper) http.RoundTripper {
		return roundTripFunc(func(*http.Request) (*http.Response, error) {
			calls.Add(1)
			return nil, errors.New("connection refused")
		})
	}

	f := New("http://backend.invalid", WithInterceptor(failing))
	f.wait = func(context.Context, time.Duration) error { return nil }

	res, _ := f.Do(context.Background(), Request{Path: "/init", Retry: []RetryOption{WithMaxRetries(2)}})
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, KindNetwork, res.Error.Kind)
	assert.True(t, res.Error.Exhausted)

	calls.Store(0)
	res, _ = f.Do(context.Background(), Request{Path: "/init", Retry: []RetryOption{WithMaxRetries(2), WithRetryOnNetworkError(false)}})
	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, res.Error.Exhausted)
}

func TestDo_ThrowOnErrorReturnsError(t *testing.T) {
	srv := &scripted{statuses: []int{400}, bodies: []string{`{"code":"INVALID_DOMAIN","message":"domain is required"}`}}
	f, _ := newTestFetcher(t, srv)

	res, err := f.Do(context.Background(), Request{Method: http.MethodPost, Path: "/subjects", ThrowOnError: true})
	require.Error(t, err)

	var fe *Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "INVALID_DOMAIN", fe.Code)
	assert.Equal(t, "domain is required", fe.Message)
	assert.Same(t, res.Error, fe)
}

func TestDo_ContextCancelStopsBackoff(t *testing.T) {
	srv := &scripted{statuses: []int{503}}
	f, _ := newTestFetcher(t, srv)
	f.wait = sleep

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	res, _ := f.Do(ctx, Request{Path: "/init", Retry: []RetryOption{WithInitialDelay(time.Hour)}})
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.False(t, res.OK)
	assert.Equal(t, 1, srv.Calls())
}

func TestDo_SendsHeadersAndJSONBody(t *testing.T) {
	var got http.Header
	var body map[string]any
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{}`))
	})
	f, _ := newTestFetcher(t, h, WithHeader("X-Tenant", "acme"))

	res, err := f.Do(context.Background(), Request{
		Method:  http.MethodPost,
		Path:    "/subjects",
		Headers: map[string]string{"X-Extra": "1"},
		Body:    json.RawMessage(`{"type":"cookie_banner"}`),
	})
	require.NoError(t, err)
	require.True(t, res.OK)

	assert.Equal(t, "acme", got.Get("X-Tenant"))
	assert.Equal(t, "1", got.Get("X-Extra"))
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.Equal(t, "cookie_banner", body["type"])
}

func TestDo_InterceptorsWrapInOrder(t *testing.T) {
	var order []string
	mark := func(name string) Interceptor {
		return func(next http.RoundTripper) http.RoundTripper {
			return roundTripFunc(func(r *http.Request) (*http.Response, error) {
				order = append(order, name)
				return next.RoundTrip(r)
			})
		}
	}
	f, _ := newTestFetcher(t, &scripted{statuses: []int{200}}, WithInterceptor(mark("outer")), WithInterceptor(mark("inner")))

	_, err := f.Do(context.Background(), Request{Path: "/init"})
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner"}, order)
}

func TestDo_RelativeBaseWithoutOriginIsValidationError(t *testing.T) {
	f := New("/api/c15t")
	res, err := f.Do(context.Background(), Request{Path: "/init", ThrowOnError: true})
	require.Error(t, err)
	assert.Equal(t, KindValidation, res.Error.Kind)
	assert.Equal(t, 0, res.Attempts)
}

func TestDo_RecordsMetrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	f, _ := newTestFetcher(t, &scripted{statuses: []int{500, 200}}, WithMetrics(m))

	_, err := f.Do(context.Background(), Request{Path: "/init"})
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchAttempts.WithLabelValues("GET", "status_500")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchAttempts.WithLabelValues("GET", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchResults.WithLabelValues("GET", "success")))
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
