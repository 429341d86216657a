// Package metrics exports Prometheus metrics for the job engine.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"

	"github.com/runbeat/runbeat/pkg/models"
	"github.com/runbeat/runbeat/pkg/store"
)

// Exporter exports Prometheus metrics at /metrics. Counters are recorded by
// the engine as attempts finish; per-status gauges are refreshed from the
// store at scrape time.
type Exporter struct {
	store     store.Store
	registry  *promclient.Registry
	startTime time.Time

	jobsSubmitted   promclient.Counter
	attemptsTotal   *promclient.CounterVec
	attemptDuration promclient.Histogram
	jobsByStatus    *promclient.GaugeVec
	uptimeSeconds   promclient.Gauge
}

// NewExporter creates an exporter with its own registry so tests can run
// several instances side by side.
func NewExporter(s store.Store) *Exporter {
	registry := promclient.NewRegistry()
	factory := promauto.With(registry)

	return &Exporter{
		store:     s,
		registry:  registry,
		startTime: time.Now(),

		jobsSubmitted: factory.NewCounter(promclient.CounterOpts{
			Name: "runbeat_jobs_submitted_total",
			Help: "Total number of jobs submitted",
		}),
		attemptsTotal: factory.NewCounterVec(promclient.CounterOpts{
			Name: "runbeat_attempts_total",
			Help: "Total launch attempts by outcome",
		}, []string{"outcome"}),
		attemptDuration: factory.NewHistogram(promclient.HistogramOpts{
			Name:    "runbeat_attempt_duration_seconds",
			Help:    "Duration of launch attempts in seconds",
			Buckets: promclient.ExponentialBuckets(0.1, 2, 12),
		}),
		jobsByStatus: factory.NewGaugeVec(promclient.GaugeOpts{
			Name: "runbeat_jobs_by_status",
			Help: "Number of jobs by status",
		}, []string{"status"}),
		uptimeSeconds: factory.NewGauge(promclient.GaugeOpts{
			Name: "runbeat_uptime_seconds",
			Help: "Engine uptime in seconds",
		}),
	}
}

// RecordSubmission records a new job submission
func (e *Exporter) RecordSubmission() {
	e.jobsSubmitted.Inc()
}

// RecordAttempt records one finished launch attempt. outcome is "success"
// for attempts that produced a result and the error kind otherwise.
func (e *Exporter) RecordAttempt(outcome string, duration time.Duration) {
	e.attemptsTotal.WithLabelValues(outcome).Inc()
	e.attemptDuration.Observe(duration.Seconds())
}

// ServeHTTP serves Prometheus-compatible metrics at /metrics
func (e *Exporter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	e.refreshGauges()

	metricFamilies, err := e.registry.Gather()
	if err != nil {
		http.Error(w, fmt.Sprintf("Error gathering metrics: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", string(expfmt.FmtText))
	encoder := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range metricFamilies {
		if err := encoder.Encode(mf); err != nil {
			fmt.Fprintf(w, "# Error encoding metric %s: %v\n", mf.GetName(), err)
		}
	}
}

// refreshGauges recomputes per-status job counts from the store. Every
// status is exported even at zero so dashboards see a continuous series.
func (e *Exporter) refreshGauges() {
	e.uptimeSeconds.Set(time.Since(e.startTime).Seconds())

	statuses := []models.JobStatus{
		models.JobStatusPending,
		models.JobStatusRunning,
		models.JobStatusCompleted,
		models.JobStatusCanceled,
		models.JobStatusError,
	}

	counts := make(map[models.JobStatus]int)
	jobs, err := e.store.GetAllJobs()
	if err == nil {
		for _, job := range jobs {
			counts[job.Status]++
		}
	}

	for _, status := range statuses {
		e.jobsByStatus.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}
