package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/runbeat/runbeat/pkg/models"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	s := newTestSQLiteStore(t)

	started := time.Now().UTC().Truncate(time.Second)
	completed := started.Add(3 * time.Second)
	job := &models.Job{
		ID: "job-1",
		Params: models.JobParameters{
			ExecutablePath: "/usr/bin/rsync",
			Args:           []string{"-a", "src/", "dst/"},
			WorkingDir:     "/tmp",
			TimeoutSec:     120,
			Env:            map[string]string{"RSYNC_RSH": "ssh"},
			CaptureStdout:  true,
		},
		Status:        models.JobStatusCompleted,
		Attempts:      2,
		LastError:     "attempt exceeded timeout",
		LastErrorKind: models.KindTimeout,
		Result: &models.ExecutionResult{
			ExitCode:  0,
			Stdout:    "sent 1024 bytes",
			Duration:  3 * time.Second,
			StartedAt: started,
			EndedAt:   completed,
		},
		CreatedAt:   started,
		StartedAt:   &started,
		CompletedAt: &completed,
	}

	if err := s.CreateJob(job); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}

	got, err := s.GetJob("job-1")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}

	if got.Status != models.JobStatusCompleted || got.Attempts != 2 {
		t.Errorf("got %s/%d, want completed/2", got.Status, got.Attempts)
	}
	if got.LastErrorKind != models.KindTimeout {
		t.Errorf("LastErrorKind = %s, want %s", got.LastErrorKind, models.KindTimeout)
	}
	if got.Params.ExecutablePath != "/usr/bin/rsync" || len(got.Params.Args) != 3 {
		t.Errorf("params did not survive round trip: %+v", got.Params)
	}
	if got.Params.Env["RSYNC_RSH"] != "ssh" {
		t.Errorf("env did not survive round trip: %v", got.Params.Env)
	}
	if got.Result == nil || got.Result.Stdout != "sent 1024 bytes" {
		t.Errorf("result did not survive round trip: %+v", got.Result)
	}
	if got.StartedAt == nil || got.CompletedAt == nil {
		t.Fatal("timestamps did not survive round trip")
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
	}
}

func TestSQLiteStoreNilResult(t *testing.T) {
	s := newTestSQLiteStore(t)

	if err := s.CreateJob(sampleJob("job-1", models.JobStatusPending)); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}

	got, err := s.GetJob("job-1")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.Result != nil {
		t.Errorf("Result = %+v, want nil", got.Result)
	}
	if got.StartedAt != nil || got.CompletedAt != nil {
		t.Error("nil timestamps came back non-nil")
	}
}

func TestSQLiteStoreGetMissing(t *testing.T) {
	s := newTestSQLiteStore(t)

	if _, err := s.GetJob("nope"); err != ErrJobNotFound {
		t.Errorf("err = %v, want ErrJobNotFound", err)
	}
}

func TestSQLiteStoreUpdate(t *testing.T) {
	s := newTestSQLiteStore(t)

	job := sampleJob("job-1", models.JobStatusPending)
	if err := s.CreateJob(job); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}

	job.Status = models.JobStatusError
	job.Attempts = 3
	job.LastError = "executable not found"
	job.LastErrorKind = models.KindNotFound
	if err := s.UpdateJob(job); err != nil {
		t.Fatalf("UpdateJob failed: %v", err)
	}

	got, err := s.GetJob("job-1")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.Status != models.JobStatusError || got.Attempts != 3 {
		t.Errorf("got %s/%d, want error/3", got.Status, got.Attempts)
	}
	if got.LastError != "executable not found" || got.LastErrorKind != models.KindNotFound {
		t.Errorf("last error did not persist: %q/%s", got.LastError, got.LastErrorKind)
	}
}

func TestSQLiteStoreUpdateMissing(t *testing.T) {
	s := newTestSQLiteStore(t)

	if err := s.UpdateJob(sampleJob("ghost", models.JobStatusPending)); err != ErrJobNotFound {
		t.Errorf("err = %v, want ErrJobNotFound", err)
	}
}

func TestSQLiteStoreGetJobsInStatus(t *testing.T) {
	s := newTestSQLiteStore(t)

	for _, j := range []*models.Job{
		sampleJob("a", models.JobStatusRunning),
		sampleJob("b", models.JobStatusRunning),
		sampleJob("c", models.JobStatusCompleted),
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
}

func TestSQLiteStoreHealthCheck(t *testing.T) {
	s := newTestSQLiteStore(t)

	if err := s.HealthCheck(); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
}

func TestNewStoreFactory(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"memory", Config{Type: "memory"}, false},
		{"sqlite", Config{Type: "sqlite", Path: filepath.Join(t.TempDir(), "f.db")}, false},
		{"unknown", Config{Type: "etcd"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewStore(tt.config)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewStore error = %v, wantErr %v", err, tt.wantErr)
			}
			if s != nil {
				s.Close()
			}
		})
	}
}
