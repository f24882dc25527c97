package fetcher

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, 3, p.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, p.InitialDelay)
	assert.Equal(t, 2.0, p.BackoffFactor)
	assert.ElementsMatch(t, []int{500, 502, 503, 504}, p.RetryableStatusCodes)
	assert.ElementsMatch(t, []int{400, 401, 403, 404}, p.NonRetryableStatusCodes)
	assert.True(t, p.RetryOnNetworkError)
}

func TestWith_DoesNotMutateBase(t *testing.T) {
	base := DefaultRetryPolicy()
	over := base.With(WithMaxRetries(7), WithRetryableStatusCodes(429))

	assert.Equal(t, 7, over.MaxRetries)
	assert.Equal(t, []int{429}, over.RetryableStatusCodes)
	assert.Equal(t, 3, base.MaxRetries)
	assert.Len(t, base.RetryableStatusCodes, 4)

	over.NonRetryableStatusCodes[0] = 999
	assert.Equal(t, 400, base.NonRetryableStatusCodes[0])
}

func TestWith_ClampsInvalidValues(t *testing.T) {
	p := DefaultRetryPolicy().With(WithMaxRetries(-2), WithBackoffFactor(0))
	assert.Equal(t, 0, p.MaxRetries)
	assert.Equal(t, 1.0, p.BackoffFactor)
}

func TestNextDelay_Exponential(t *testing.T) {
	p := DefaultRetryPolicy()
	d := p.InitialDelay
	var got []time.Duration
	for range 4 {
		got = append(got, d)
		d = p.nextDelay(d)
	}
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond}, got)
}

func TestRetryStatus_Order(t *testing.T) {
	always := func(ResponseInfo, RetryContext) bool { return true }
	never := func(ResponseInfo, RetryContext) bool { return false }

	cases := []struct {
		name   string
		status int
		fn     ShouldRetryFunc
		want   bool
	}{
		{"non-retryable beats predicate", http.StatusForbidden, always, false},
		{"predicate beats table", http.StatusServiceUnavailable, never, false},
		{"predicate enables unknown", http.StatusTooManyRequests, always, true},
		{"table retryable", http.StatusBadGateway, nil, true},
		{"unknown not retried", http.StatusConflict, nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := DefaultRetryPolicy().With(WithShouldRetry(tc.fn))
			assert.Equal(t, tc.want, p.retryStatus(ResponseInfo{Status: tc.status}, RetryContext{}))
		})
	}
}

func TestAPIError_ExtractsCodeAndMessage(t *testing.T) {
	e := apiError(422, []byte(`{"error":{"code":"BAD_PREFS","message":"unknown category"}}`))
	assert.Equal(t, "BAD_PREFS", e.Code)
	assert.Equal(t, "unknown category", e.Message)

	e = apiError(500, []byte(`not json`))
	assert.Equal(t, string(KindAPI), e.Code)
	assert.Equal(t, "Internal Server Error", e.Message)
	assert.Contains(t, e.Error(), "status 500")
}

func TestBuildURL(t *testing.T) {
	cases := []struct {
		name, base, origin, path, want string
	}{
		{"absolute base", "https://consent.example.com/api/c15t", "", "/init", "https://consent.example.com/api/c15t/init"},
		{"duplicate slashes", "https://consent.example.com/api//", "", "//subjects//abc", "https://consent.example.com/api/subjects/abc"},
		{"relative base", "/api/c15t", "https://shop.example.com", "init", "https://shop.example.com/api/c15t/init"},
		{"relative base without slash", "api", "https://shop.example.com/", "/init", "https://shop.example.com/api/init"},
		{"absolute path wins", "https://a.example.com", "", "https://b.example.com/x", "https://b.example.com/x"},
		{"path query kept", "https://a.example.com", "", "/init?lang=de", "https://a.example.com/init?lang=de"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := BuildURL(tc.base, tc.origin, tc.path, nil)
			assert.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestBuildURL_Query(t *testing.T) {
	got, err := BuildURL("https://a.example.com", "", "/subjects", map[string][]string{"limit": {"5"}})
	assert.NoError(t, err)
	assert.Equal(t, "https://a.example.com/subjects?limit=5", got)
}

func TestBuildURL_RelativeWithoutOrigin(t *testing.T) {
	_, err := BuildURL("/api", "", "/init", nil)
	assert.Equal(t, KindValidation, KindOf(err))
}
