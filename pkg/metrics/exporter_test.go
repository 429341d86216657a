package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/runbeat/runbeat/pkg/models"
	"github.com/runbeat/runbeat/pkg/store"
)

func scrape(t *testing.T, e *Exporter) string {
	t.Helper()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	e.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("scrape returned %d: %s", rec.Code, rec.Body.String())
	}
	return rec.Body.String()
}

func TestExporterCountsSubmissions(t *testing.T) {
	e := NewExporter(store.NewMemoryStore())

	e.RecordSubmission()
	e.RecordSubmission()

	body := scrape(t, e)
	if !strings.Contains(body, "runbeat_jobs_submitted_total 2") {
		t.Errorf("submitted counter missing or wrong:\n%s", body)
	}
}

func TestExporterCountsAttemptsByOutcome(t *testing.T) {
	e := NewExporter(store.NewMemoryStore())

	e.RecordAttempt("success", 250*time.Millisecond)
	e.RecordAttempt("timeout", 5*time.Second)
	e.RecordAttempt("timeout", 5*time.Second)

	body := scrape(t, e)
	if !strings.Contains(body, `runbeat_attempts_total{outcome="success"} 1`) {
		t.Errorf("success attempt counter missing:\n%s", body)
	}
	if !strings.Contains(body, `runbeat_attempts_total{outcome="timeout"} 2`) {
		t.Errorf("timeout attempt counter missing:\n%s", body)
	}
	if !strings.Contains(body, "runbeat_attempt_duration_seconds_count 3") {
		t.Errorf("attempt duration histogram missing:\n%s", body)
	}
}

func TestExporterJobsByStatusFromStore(t *testing.T) {
	s := store.NewMemoryStore()
	for _, job := range []*models.Job{
		{ID: "a", Status: models.JobStatusRunning, CreatedAt: time.Now()},
		{ID: "b", Status: models.JobStatusRunning, CreatedAt: time.Now()},
		{ID: "c", Status: models.JobStatusCompleted, CreatedAt: time.Now()},
	} {
		if err := s.CreateJob(job); err != nil {
			t.Fatalf("CreateJob failed: %v", err)
		}
	}

	e := NewExporter(s)
	body := scrape(t, e)

	if !strings.Contains(body, `runbeat_jobs_by_status{status="running"} 2`) {
		t.Errorf("running gauge missing:\n%s", body)
	}
	if !strings.Contains(body, `runbeat_jobs_by_status{status="completed"} 1`) {
		t.Errorf("completed gauge missing:\n%s", body)
	}
	// Statuses with no jobs are still exported at zero
	if !strings.Contains(body, `runbeat_jobs_by_status{status="canceled"} 0`) {
		t.Errorf("zero-valued canceled gauge missing:\n%s", body)
	}
}
