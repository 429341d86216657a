// Package api exposes the engine over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/runbeat/runbeat/pkg/engine"
	"github.com/runbeat/runbeat/pkg/logging"
	"github.com/runbeat/runbeat/pkg/models"
	"github.com/runbeat/runbeat/pkg/ratelimit"
	"github.com/runbeat/runbeat/pkg/store"
)

// Handler handles job API requests
type Handler struct {
	engine  *engine.Engine
	store   store.Store
	metrics http.Handler
	limiter *ratelimit.Limiter
	log     *logging.Logger
}

// NewHandler creates a new API handler. metrics may be nil to disable the
// /metrics endpoint; limiter may be nil to disable rate limiting.
func NewHandler(e *engine.Engine, s store.Store, metrics http.Handler, limiter *ratelimit.Limiter, log *logging.Logger) *Handler {
	return &Handler{
		engine:  e,
		store:   s,
		metrics: metrics,
		limiter: limiter,
		log:     log,
	}
}

// RegisterRoutes registers all API routes. The mutating routes are rate
// limited per client IP when a limiter is configured.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	submit := http.Handler(http.HandlerFunc(h.SubmitJob))
	cancelJob := http.Handler(http.HandlerFunc(h.CancelJob))
	if h.limiter != nil {
		limit := h.limiter.Middleware(ratelimit.ClientIP)
		submit = limit(submit)
		cancelJob = limit(cancelJob)
	}

	r.Handle("/jobs", submit).Methods("POST")
	r.HandleFunc("/jobs", h.ListJobs).Methods("GET")
	r.HandleFunc("/jobs/{id}", h.GetJob).Methods("GET")
	r.HandleFunc("/jobs/{id}/status", h.GetJobStatus).Methods("GET")
	r.HandleFunc("/jobs/{id}/result", h.GetJobResult).Methods("GET")
	r.HandleFunc("/jobs/{id}/attempts", h.GetJobAttempts).Methods("GET")
	r.Handle("/jobs/{id}/cancel", cancelJob).Methods("POST")

	r.HandleFunc("/health", h.Health).Methods("GET")
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics).Methods("GET")
	}
}

// SubmitJob accepts job parameters and starts a job
func (h *Handler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	var params models.JobParameters
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	id, err := h.engine.Submit(params)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{
		"id":     id,
		"status": string(models.JobStatusPending),
	})
}

// ListJobs returns all known jobs
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.engine.ListJobs()
	if err != nil {
		h.log.Error("failed to list jobs", map[string]interface{}{"error": err.Error()})
		http.Error(w, "Failed to list jobs", http.StatusInternalServerError)
		return
	}

	// Optional ?status= filter
	if status := r.URL.Query().Get("status"); status != "" {
		filtered := jobs[:0]
		for _, job := range jobs {
			if job.Status == models.JobStatus(status) {
				filtered = append(filtered, job)
			}
		}
		jobs = filtered
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// GetJob returns the full snapshot of a job
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.engine.GetJob(mux.Vars(r)["id"])
	if err != nil {
		h.writeLookupError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(job)
}

// GetJobStatus returns just the status of a job
func (h *Handler) GetJobStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	status, err := h.engine.Status(id)
	if err != nil {
		h.writeLookupError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"id":     id,
		"status": string(status),
	})
}

// GetJobResult returns the execution result of a completed job. Unfinished
// jobs answer 409, failed or canceled jobs 410.
func (h *Handler) GetJobResult(w http.ResponseWriter, r *http.Request) {
	result, err := h.engine.Result(mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			http.Error(w, "Job not found", http.StatusNotFound)
			return
		}
		if errors.Is(err, engine.ErrJobNotFinished) {
			http.Error(w, "Job has not finished", http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusGone)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// GetJobAttempts returns the attempt count of a job
func (h *Handler) GetJobAttempts(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	attempts, err := h.engine.Attempts(id)
	if err != nil {
		h.writeLookupError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"id":       id,
		"attempts": attempts,
	})
}

// CancelJob requests cancellation of a job
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.engine.RequestCancellation(id); err != nil {
		h.writeLookupError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{
		"id":     id,
		"status": "cancellation requested",
	})
}

// Health returns engine health, including store connectivity
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.HealthCheck(); err != nil {
		http.Error(w, "Store unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (h *Handler) writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrJobNotFound) {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	h.log.Error("request failed", map[string]interface{}{"error": err.Error()})
	http.Error(w, "Internal error", http.StatusInternalServerError)
}
