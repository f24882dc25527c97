// Package httpapi exposes the consent backend over JSON HTTP: init,
// consent writes in both protocol versions, identify and status.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrijs2005/consentkeeper/internal/client/jurisdiction"
	"github.com/dmitrijs2005/consentkeeper/internal/client/models"
	"github.com/dmitrijs2005/consentkeeper/internal/common"
	"github.com/dmitrijs2005/consentkeeper/internal/logging"
	"github.com/dmitrijs2005/consentkeeper/internal/server/subjects"
)

const maxBodyBytes = 64 << 10

type Handler struct {
	subjects *subjects.Service
	faults   *Faults
	logger   logging.Logger
	gatherer prometheus.Gatherer
	requests *prometheus.CounterVec
}

// NewHandler builds the router. faults may be nil; reg may be nil, in
// which case /metrics serves a private registry.
func NewHandler(s *subjects.Service, faults *Faults, logger logging.Logger, reg *prometheus.Registry) *Handler {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	if faults == nil {
		faults = NewFaults(0, 0, 0)
	}
	return &Handler{
		subjects: s,
		faults:   faults,
		logger:   logger.With("module", "http_handler"),
		gatherer: reg,
		requests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "consentkeeper",
			Subsystem: "backend",
			Name:      "requests_total",
			Help:      "HTTP requests served by the consent backend.",
		}, []string{"method", "route", "status"}),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(h.requestID)

	r.Get("/status", h.handleStatus)
	r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(h.faults.middleware)
		r.Get("/init", h.handleInit)
		r.Post("/subjects", h.handleSetConsent)
		r.Patch("/subjects/{id}", h.handleIdentify)
		r.Post("/consent/set", h.handleSetConsent)
		r.Post("/consent/identify", h.handleIdentify)
	})
	return r
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleInit(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, jurisdiction.Resolve(r.Header))
}

func (h *Handler) handleSetConsent(w http.ResponseWriter, r *http.Request) {
	var sub models.ConsentSubmission
	if !h.decode(w, r, &sub) {
		return
	}

	res, err := h.subjects.RecordConsent(r.Context(), sub)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleIdentify(w http.ResponseWriter, r *http.Request) {
	var req models.IdentifyRequest
	if !h.decode(w, r, &req) {
		return
	}
	if id := chi.URLParam(r, "id"); id != "" {
		req.SubjectID = id
	}

	res, err := h.subjects.Identify(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, out any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(out); err != nil {
		h.logger.Warn(r.Context(), "invalid request body", "err", err)
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid request body")
		return false
	}
	return true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, common.ErrorValidation):
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, common.ErrorNotFound):
		writeError(w, http.StatusNotFound, "SUBJECT_NOT_FOUND", "subject not found")
	case errors.Is(err, common.ErrorConflict):
		writeError(w, http.StatusConflict, "CONFLICT", err.Error())
	default:
		h.logger.Error(r.Context(), "request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
	}
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
