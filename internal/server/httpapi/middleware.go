package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/consentkeeper/internal/client/fetcher"
)

// requestID echoes the client's request id, or assigns one, and logs the
// request once it completes.
func (h *Handler) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(fetcher.RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(fetcher.RequestIDHeader, id)

		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		h.requests.WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).Inc()
		h.logger.Info(r.Context(), "request",
			"request_id", id,
			"method", r.Method,
			"route", route,
			"status", ww.Status(),
			"duration", time.Since(start))
	})
}
