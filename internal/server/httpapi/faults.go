package httpapi

import (
	"math/rand/v2"
	"net/http"
	"sync"
	"time"
)

// Faults makes the backend misbehave on purpose so clients can exercise
// their retry and queueing paths.
type Faults struct {
	mu sync.Mutex
	// scripted statuses are served first, one per write request
	scripted []int

	rate    float64
	status  int
	latency time.Duration
	rnd     func() float64
}

// NewFaults fails a share rate of write requests with status and delays
// every request by latency.
func NewFaults(rate float64, status int, latency time.Duration) *Faults {
	if status == 0 {
		status = http.StatusServiceUnavailable
	}
	return &Faults{rate: rate, status: status, latency: latency, rnd: rand.Float64}
}

// FailNext makes the next n write requests fail with status.
func (f *Faults) FailNext(n, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for range n {
		f.scripted = append(f.scripted, status)
	}
}

// next returns the status to fail the request with, or 0.
func (f *Faults) next() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.scripted) > 0 {
		status := f.scripted[0]
		f.scripted = f.scripted[1:]
		return status
	}
	if f.rate > 0 && f.rnd() < f.rate {
		return f.status
	}
	return 0
}

func (f *Faults) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if f.latency > 0 {
			select {
			case <-time.After(f.latency):
			case <-r.Context().Done():
				return
			}
		}
		if r.Method != http.MethodGet {
			if status := f.next(); status != 0 {
				writeError(w, status, "INJECTED_FAILURE", http.StatusText(status))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
