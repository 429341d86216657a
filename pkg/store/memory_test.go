package store

import (
	"testing"
	"time"

	"github.com/runbeat/runbeat/pkg/models"
)

func sampleJob(id string, status models.JobStatus) *models.Job {
	return &models.Job{
		ID: id,
		Params: models.JobParameters{
			ExecutablePath: "/bin/true",
			TimeoutSec:     30,
		},
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}
}

func TestMemoryStoreCreateAndGet(t *testing.T) {
	s := NewMemoryStore()

	job := sampleJob("job-1", models.JobStatusPending)
	if err := s.CreateJob(job); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}

	got, err := s.GetJob("job-1")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.ID != "job-1" || got.Status != models.JobStatusPending {
		t.Errorf("got %s/%s, want job-1/pending", got.ID, got.Status)
	}
}

func TestMemoryStoreGetMissing(t *testing.T) {
	s := NewMemoryStore()

	if _, err := s.GetJob("nope"); err != ErrJobNotFound {
		t.Errorf("err = %v, want ErrJobNotFound", err)
	}
}

func TestMemoryStoreUpdate(t *testing.T) {
	s := NewMemoryStore()

	job := sampleJob("job-1", models.JobStatusPending)
	if err := s.CreateJob(job); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}

	job.Status = models.JobStatusRunning
	job.Attempts = 2
	if err := s.UpdateJob(job); err != nil {
		t.Fatalf("UpdateJob failed: %v", err)
	}

	got, err := s.GetJob("job-1")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.Status != models.JobStatusRunning || got.Attempts != 2 {
		t.Errorf("got %s/%d, want running/2", got.Status, got.Attempts)
	}
}

func TestMemoryStoreUpdateMissing(t *testing.T) {
	s := NewMemoryStore()

	if err := s.UpdateJob(sampleJob("ghost", models.JobStatusPending)); err != ErrJobNotFound {
		t.Errorf("err = %v, want ErrJobNotFound", err)
	}
}

// The store must hold snapshots: mutating a job after CreateJob must not
// change what GetJob returns.
func TestMemoryStoreIsolation(t *testing.T) {
	s := NewMemoryStore()

	job := sampleJob("job-1", models.JobStatusPending)
	if err := s.CreateJob(job); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}

	job.Status = models.JobStatusError
	job.Params.Args = append(job.Params.Args, "mutated")

	got, err := s.GetJob("job-1")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.Status != models.JobStatusPending {
		t.Errorf("stored status changed to %s after external mutation", got.Status)
	}
	if len(got.Params.Args) != 0 {
		t.Errorf("stored args changed after external mutation: %v", got.Params.Args)
	}
}

func TestMemoryStoreGetJobsInStatus(t *testing.T) {
	s := NewMemoryStore()

	for _, j := range []*models.Job{
		sampleJob("a", models.JobStatusPending),
		sampleJob("b", models.JobStatusRunning),
		sampleJob("c", models.JobStatusRunning),
		sampleJob("d", models.JobStatusCompleted),
	} {
		if err := s.CreateJob(j); err != nil {
			t.Fatalf("CreateJob failed: %v", err)
		}
	}

	running, err := s.GetJobsInStatus(models.JobStatusRunning)
	if err != nil {
		t.Fatalf("GetJobsInStatus failed: %v", err)
	}
	if len(running) != 2 {
		t.Errorf("running jobs = %d, want 2", len(running))
	}

	all, err := s.GetAllJobs()
	if err != nil {
		t.Fatalf("GetAllJobs failed: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("all jobs = %d, want 4", len(all))
	}
}
