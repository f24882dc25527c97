package fetcher

import (
	"net/http"
	"slices"
	"time"
)

// ResponseInfo is what a ShouldRetry predicate sees of a failed response.
type ResponseInfo struct {
	Status int
	Header http.Header
	Body   []byte
}

// RetryContext describes the attempt being classified.
type RetryContext struct {
	Method     string
	URL        string
	Attempt    int
	MaxRetries int
	NextDelay  time.Duration
}

type ShouldRetryFunc func(ResponseInfo, RetryContext) bool

// RetryPolicy governs retries of one logical request.
type RetryPolicy struct {
	MaxRetries              int
	InitialDelay            time.Duration
	BackoffFactor           float64
	RetryableStatusCodes    []int
	NonRetryableStatusCodes []int
	RetryOnNetworkError     bool
	ShouldRetry             ShouldRetryFunc
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:    3,
		InitialDelay:  100 * time.Millisecond,
		BackoffFactor: 2,
		RetryableStatusCodes: []int{
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		},
		NonRetryableStatusCodes: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
		RetryOnNetworkError: true,
	}
}

type RetryOption func(*RetryPolicy)

// With returns a copy of p with opts applied; p itself is not modified.
func (p RetryPolicy) With(opts ...RetryOption) RetryPolicy {
	out := p
	out.RetryableStatusCodes = slices.Clone(p.RetryableStatusCodes)
	out.NonRetryableStatusCodes = slices.Clone(p.NonRetryableStatusCodes)
	for _, o := range opts {
		o(&out)
	}
	if out.MaxRetries < 0 {
		out.MaxRetries = 0
	}
	if out.BackoffFactor <= 0 {
		out.BackoffFactor = 1
	}
	return out
}

func WithMaxRetries(n int) RetryOption {
	return func(p *RetryPolicy) { p.MaxRetries = n }
}

// NoRetry makes a single attempt.
func NoRetry() RetryOption {
	return WithMaxRetries(0)
}

func WithInitialDelay(d time.Duration) RetryOption {
	return func(p *RetryPolicy) { p.InitialDelay = d }
}

func WithBackoffFactor(f float64) RetryOption {
	return func(p *RetryPolicy) { p.BackoffFactor = f }
}

func WithRetryableStatusCodes(codes ...int) RetryOption {
	return func(p *RetryPolicy) { p.RetryableStatusCodes = slices.Clone(codes) }
}

func WithNonRetryableStatusCodes(codes ...int) RetryOption {
	return func(p *RetryPolicy) { p.NonRetryableStatusCodes = slices.Clone(codes) }
}

func WithRetryOnNetworkError(retry bool) RetryOption {
	return func(p *RetryPolicy) { p.RetryOnNetworkError = retry }
}

func WithShouldRetry(fn ShouldRetryFunc) RetryOption {
	return func(p *RetryPolicy) { p.ShouldRetry = fn }
}

// WithPolicy replaces the whole policy.
func WithPolicy(policy RetryPolicy) RetryOption {
	return func(p *RetryPolicy) {
		*p = policy
		p.RetryableStatusCodes = slices.Clone(policy.RetryableStatusCodes)
		p.NonRetryableStatusCodes = slices.Clone(policy.NonRetryableStatusCodes)
	}
}

// retryStatus decides whether a non-2xx response is retried.
func (p RetryPolicy) retryStatus(info ResponseInfo, rc RetryContext) bool {
	if slices.Contains(p.NonRetryableStatusCodes, info.Status) {
		return false
	}
	if p.ShouldRetry != nil {
		if retry, ok := p.callShouldRetry(info, rc); ok {
			return retry
		}
	}
	return slices.Contains(p.RetryableStatusCodes, info.Status)
}

// callShouldRetry reports ok=false when the predicate panicked.
func (p RetryPolicy) callShouldRetry(info ResponseInfo, rc RetryContext) (retry, ok bool) {
	defer func() {
		if recover() != nil {
			retry, ok = false, false
		}
	}()
	return p.ShouldRetry(info, rc), true
}

// nextDelay returns the delay that follows d.
func (p RetryPolicy) nextDelay(d time.Duration) time.Duration {
	return time.Duration(float64(d) * p.BackoffFactor)
}
