// Package ingest accepts observations from acquisition subsystems over HTTP
// and Kafka and hands them to the detection engine.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"flock-sentinel/internal/engine"
	"flock-sentinel/internal/vocab"

	"github.com/google/uuid"
)

// Evaluator is the part of the engine the intake uses.
type Evaluator interface {
	Submit(ctx context.Context, obs *engine.Observation) []*engine.Anomaly
	Enqueue(obs *engine.Observation) error
}

// Handler handles HTTP observation intake.
type Handler struct {
	engine     Evaluator
	maxPayload int
	maxBatch   int
	startTime  time.Time
	now        func() time.Time

	budget     *RateLimiter
	trustProxy bool

	observationsTotal atomic.Uint64
	anomaliesTotal    atomic.Uint64
}

// NewHandler creates a new intake Handler.
func NewHandler(e Evaluator) *Handler {
	return &Handler{
		engine:     e,
		maxPayload: 4 * 1024 * 1024,
		maxBatch:   1000,
		startTime:  time.Now(),
		now:        time.Now,
	}
}

// WithMaxPayload sets the maximum payload size.
func (h *Handler) WithMaxPayload(size int) *Handler {
	h.maxPayload = size
	return h
}

// WithMaxBatch sets the maximum batch size.
func (h *Handler) WithMaxBatch(size int) *Handler {
	h.maxBatch = size
	return h
}

// WithObservationBudget charges every accepted batch against limiter, one
// unit per observation, keyed by client address.
func (h *Handler) WithObservationBudget(limiter *RateLimiter, trustProxy bool) *Handler {
	h.budget = limiter
	h.trustProxy = trustProxy
	return h
}

// Register adds the intake routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/observations", h.HandleObservations)
	mux.HandleFunc("GET /health", h.HealthCheck)
}

// IngestRequest is the request body for observation intake.
type IngestRequest struct {
	Observations []engine.Observation `json:"observations"`
}

// IngestResponse is the response for observation intake. Anomalies are
// only returned for synchronous evaluation.
type IngestResponse struct {
	Success   bool              `json:"success"`
	Accepted  int               `json:"accepted"`
	Rejected  int               `json:"rejected"`
	Errors    []string          `json:"errors,omitempty"`
	Anomalies []*engine.Anomaly `json:"anomalies,omitempty"`
	RequestID string            `json:"request_id"`
}

// HandleObservations handles POST /v1/observations. Observations are
// evaluated inline and the produced anomalies returned, unless the query
// parameter async=true is set, in which case they are queued.
func (h *Handler) HandleObservations(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()

	r.Body = http.MaxBytesReader(w, r.Body, int64(h.maxPayload))
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "payload too large", requestID)
			return
		}
		respondError(w, http.StatusBadRequest, "failed to read request body", requestID)
		return
	}

	var req IngestRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err), requestID)
		return
	}
	if len(req.Observations) == 0 {
		respondError(w, http.StatusBadRequest, "no observations provided", requestID)
		return
	}
	if len(req.Observations) > h.maxBatch {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("batch size exceeds maximum of %d", h.maxBatch), requestID)
		return
	}

	if h.budget != nil {
		allowed, remaining, reset := h.budget.AllowN(getClientIP(r, h.trustProxy), len(req.Observations))
		setLimitHeaders(w, h.budget.Limit(), remaining, reset)
		if !allowed {
			respondTooMany(w, "observation budget exhausted", h.budget.now(), reset)
			return
		}
	}

	async := r.URL.Query().Get("async") == "true"
	resp := IngestResponse{RequestID: requestID}

	for i := range req.Observations {
		obs := &req.Observations[i]
		if err := prepareObservation(obs, h.now); err != nil {
			resp.Rejected++
			resp.Errors = append(resp.Errors, fmt.Sprintf("observation[%d]: %s", i, err))
			continue
		}

		if async {
			if err := h.engine.Enqueue(obs); err != nil {
				resp.Rejected++
				resp.Errors = append(resp.Errors, fmt.Sprintf("observation[%d]: %s", i, err))
				continue
			}
		} else {
			anomalies := h.engine.Submit(r.Context(), obs)
			resp.Anomalies = append(resp.Anomalies, anomalies...)
			h.anomaliesTotal.Add(uint64(len(anomalies)))
		}
		resp.Accepted++
		h.observationsTotal.Add(1)
	}

	resp.Success = resp.Rejected == 0
	status := http.StatusOK
	switch {
	case resp.Accepted == 0:
		status = http.StatusBadRequest
		if async && allQueueFull(resp.Errors) {
			status = http.StatusServiceUnavailable
		}
	case resp.Rejected > 0:
		status = http.StatusMultiStatus
	case async:
		status = http.StatusAccepted
	}
	respondJSON(w, status, resp)
}

// prepare validates an observation and fills defaults.
// prepareObservation canonicalizes the domain and fills a missing id and
// timestamp. Both intake paths use it.
func prepareObservation(obs *engine.Observation, now func() time.Time) error {
	domain, err := vocab.ParseDomain(string(obs.Domain))
	if err != nil {
		return err
	}
	obs.Domain = domain
	if len(obs.Fields) == 0 {
		return errors.New("fields are required")
	}
	if obs.ID == "" {
		obs.ID = uuid.New().String()
	}
	if obs.Timestamp.IsZero() {
		obs.Timestamp = now().UTC()
	}
	return nil
}

func allQueueFull(errs []string) bool {
	suffix := ": " + engine.ErrQueueFull.Error()
	for _, e := range errs {
		if !strings.HasSuffix(e, suffix) {
			return false
		}
	}
	return len(errs) > 0
}

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":             "healthy",
		"observations_total": h.observationsTotal.Load(),
		"anomalies_total":    h.anomaliesTotal.Load(),
		"uptime_seconds":     int(time.Since(h.startTime).Seconds()),
	})
}

// respondJSON writes a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes a JSON error response.
func respondError(w http.ResponseWriter, status int, message string, requestID string) {
	respondJSON(w, status, map[string]any{
		"success":    false,
		"error":      message,
		"request_id": requestID,
	})
}
