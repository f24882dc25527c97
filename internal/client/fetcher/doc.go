// Package fetcher executes JSON HTTP requests against the consent backend
// with a configurable retry policy.
//
// Every logical request runs attempts 0..MaxRetries. A 2xx response with an
// empty or valid JSON body succeeds; a 2xx response with an unreadable body
// fails at once with a parse error. Other statuses consult the
// non-retryable table, then the optional ShouldRetry predicate, then the
// retryable table. Transport failures retry only when RetryOnNetworkError
// is set. Between attempts the fetcher waits, growing the delay by
// BackoffFactor each time.
//
// Do always returns a *Result. It returns a non-nil error only for failed
// requests made with ThrowOnError.
package fetcher
