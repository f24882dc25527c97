package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmitrijs2005/consentkeeper/internal/logging"
	"github.com/dmitrijs2005/consentkeeper/internal/metrics"
)

// RequestIDHeader carries the id shared by every attempt of one request.
const RequestIDHeader = "X-Request-ID"

const tracerName = "github.com/dmitrijs2005/consentkeeper/internal/client/fetcher"

// maxBodySize bounds how much of a response body is read.
const maxBodySize = 1 << 20

// Interceptor wraps the transport used for every attempt.
type Interceptor func(http.RoundTripper) http.RoundTripper

type Fetcher struct {
	baseURL string
	origin  string
	headers http.Header
	policy  RetryPolicy
	client  *http.Client
	logger  logging.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	prop    propagation.TextMapPropagator

	// wait blocks for d or until ctx is done.
	wait func(ctx context.Context, d time.Duration) error
}

type options struct {
	origin       string
	headers      http.Header
	policy       RetryPolicy
	transport    http.RoundTripper
	interceptors []Interceptor
	jar          http.CookieJar
	timeout      time.Duration
	logger       logging.Logger
	metrics      *metrics.Metrics
	tp           trace.TracerProvider
}

type Option func(*options)

// WithOrigin sets the origin used to resolve a relative base URL.
func WithOrigin(origin string) Option {
	return func(o *options) { o.origin = origin }
}

// WithHeader adds a header sent with every request.
func WithHeader(key, value string) Option {
	return func(o *options) { o.headers.Add(key, value) }
}

// WithRetryPolicy sets the client-wide default policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(o *options) { o.policy = p.With() }
}

// WithTransport sets the innermost round tripper.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

// WithInterceptor wraps the transport. The first interceptor given is the
// outermost one.
func WithInterceptor(i Interceptor) Option {
	return func(o *options) { o.interceptors = append(o.interceptors, i) }
}

func WithCookieJar(jar http.CookieJar) Option {
	return func(o *options) { o.jar = jar }
}

// WithTimeout bounds a single attempt.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tp = tp }
}

// New returns a Fetcher for baseURL, which may be absolute or relative to
// the origin.
func New(baseURL string, opts ...Option) *Fetcher {
	o := options{
		headers:   http.Header{},
		policy:    DefaultRetryPolicy(),
		transport: http.DefaultTransport,
		logger:    logging.Nop(),
		timeout:   30 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.tp == nil {
		o.tp = otel.GetTracerProvider()
	}

	rt := o.transport
	for i := len(o.interceptors) - 1; i >= 0; i-- {
		rt = o.interceptors[i](rt)
	}

	return &Fetcher{
		baseURL: baseURL,
		origin:  o.origin,
		headers: o.headers,
		policy:  o.policy,
		client:  &http.Client{Transport: rt, Jar: o.jar, Timeout: o.timeout},
		logger:  o.logger.With("component", "fetcher"),
		metrics: o.metrics,
		tracer:  o.tp.Tracer(tracerName),
		prop:    otel.GetTextMapPropagator(),
		wait:    sleep,
	}
}

// Policy returns the client-wide default retry policy.
func (f *Fetcher) Policy() RetryPolicy {
	return f.policy.With()
}

// Request describes one logical request.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Headers map[string]string
	// Body is sent as JSON; []byte and json.RawMessage are sent verbatim.
	Body any
	// Out, when set, receives the decoded response body.
	Out   any
	Retry []RetryOption
	// ThrowOnError makes Do return the failure as an error as well.
	ThrowOnError bool
}

// Do runs req under the merged retry policy.
func (f *Fetcher) Do(ctx context.Context, req Request) (*Result, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	requestID := uuid.NewString()
	res := &Result{RequestID: requestID}

	ctx, span := f.tracer.Start(ctx, "consent.fetch "+req.Method+" "+req.Path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("consent.request_id", requestID),
		))
	defer span.End()

	f.run(ctx, req, res)

	span.SetAttributes(attribute.Int("consent.attempts", res.Attempts))
	if res.Status != 0 {
		span.SetAttributes(attribute.Int("http.response.status_code", res.Status))
	}
	if res.OK {
		span.SetStatus(codes.Ok, "")
		f.metrics.Result(req.Method, "success")
		return res, nil
	}

	span.RecordError(res.Error)
	span.SetStatus(codes.Error, string(res.Error.Kind))
	f.metrics.Result(req.Method, string(res.Error.Kind))

	if req.ThrowOnError {
		return res, res.Error
	}
	return res, nil
}

func (f *Fetcher) run(ctx context.Context, req Request, res *Result) {
	target, err := BuildURL(f.baseURL, f.origin, req.Path, req.Query)
	if err != nil {
		res.Error = asError(err)
		return
	}

	payload, err := encodeBody(req.Body)
	if err != nil {
		res.Error = ValidationError("failed to encode request body: %v", err)
		return
	}

	policy := f.policy.With(req.Retry...)
	delay := policy.InitialDelay
	log := f.logger.With("method", req.Method, "url", target, "request_id", res.RequestID)

	for n := 0; n <= policy.MaxRetries; n++ {
		res.Attempts = n + 1

		resp, body, err := f.attempt(ctx, req, target, payload, res.RequestID)
		var retry bool

		switch {
		case err != nil:
			res.Status = 0
			res.Error = networkError(err)
			retry = policy.RetryOnNetworkError && ctx.Err() == nil
			f.metrics.Attempt(req.Method, "network_error")

		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			res.Status = resp.StatusCode
			if perr := decodeBody(body, req.Out); perr != nil {
				res.Error = parseError(resp.StatusCode, perr)
				res.Error.Attempts = res.Attempts
				f.metrics.Attempt(req.Method, "parse_error")
				log.Warn(ctx, "unparseable response body", "status", resp.StatusCode, "err", perr)
				return
			}
			if len(bytes.TrimSpace(body)) > 0 {
				res.Data = json.RawMessage(body)
			}
			res.OK = true
			res.Error = nil
			f.metrics.Attempt(req.Method, "success")
			return

		default:
			res.Status = resp.StatusCode
			res.Error = apiError(resp.StatusCode, body)
			retry = policy.retryStatus(
				ResponseInfo{Status: resp.StatusCode, Header: resp.Header, Body: body},
				RetryContext{Method: req.Method, URL: target, Attempt: n, MaxRetries: policy.MaxRetries, NextDelay: delay},
			)
			f.metrics.Attempt(req.Method, fmt.Sprintf("status_%d", resp.StatusCode))
		}

		res.Error.Attempts = res.Attempts
		if !retry {
			return
		}
		if n == policy.MaxRetries {
			res.Error.Exhausted = true
			log.Debug(ctx, "retry budget exhausted", "attempts", res.Attempts, "err", res.Error)
			return
		}

		log.Debug(ctx, "retrying request", "attempt", res.Attempts, "delay", delay, "err", res.Error)
		if err := f.wait(ctx, delay); err != nil {
			return
		}
		delay = policy.nextDelay(delay)
	}
}

func (f *Fetcher) attempt(ctx context.Context, req Request, target string, payload []byte, requestID string) (*http.Response, []byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	hr, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, nil, err
	}
	for k, vs := range f.headers {
		for _, v := range vs {
			hr.Header.Add(k, v)
		}
	}
	for k, v := range req.Headers {
		hr.Header.Set(k, v)
	}
	hr.Header.Set("Accept", "application/json")
	if payload != nil {
		hr.Header.Set("Content-Type", "application/json")
	}
	hr.Header.Set(RequestIDHeader, requestID)
	f.prop.Inject(ctx, propagation.HeaderCarrier(hr.Header))

	resp, err := f.client.Do(hr)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, nil, err
	}
	return resp, data, nil
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return b, nil
	case []byte:
		return b, nil
	}
	return json.Marshal(body)
}

// decodeBody accepts an empty body; otherwise the body must be JSON and,
// when out is set, must decode into it.
func decodeBody(body []byte, out any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if out != nil {
		return json.Unmarshal(body, out)
	}
	if !json.Valid(body) {
		return errors.New("invalid JSON")
	}
	return nil
}

func asError(err error) *Error {
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	return ValidationError("%v", err)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
