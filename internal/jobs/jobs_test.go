package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestValidateCron(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"*/5 * * * *", false},
		{"0 9 * * 1-5", false},
		{"* * * *", true},
		{"every minute", true},
		{"0 0 * * * *", true},
	}
	for _, tt := range tests {
		if err := ValidateCron(tt.expr); (err != nil) != tt.wantErr {
			t.Errorf("ValidateCron(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
		}
	}
}

func TestNextRun(t *testing.T) {
	from := time.Date(2026, 3, 1, 10, 7, 0, 0, time.UTC)
	next, err := NextRun("*/15 * * * *", from)
	if err != nil {
		t.Fatalf("NextRun failed: %v", err)
	}
	if want := time.Date(2026, 3, 1, 10, 15, 0, 0, time.UTC); !next.Equal(want) {
		t.Errorf("Expected %v, got %v", want, next)
	}
}

func TestMaintenanceJob(t *testing.T) {
	var gotIdle time.Duration
	sessionsEvicted := false
	job := NewMaintenanceJob(Maintenance{
		PruneGuard:    func() int { return 3 },
		EvictRunners:  func(idle time.Duration) int { gotIdle = idle; return 1 },
		EvictSessions: func() { sessionsEvicted = true },
	}, time.Minute)

	before := job.GetNextRunTime()
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if gotIdle != 10*time.Minute || !sessionsEvicted {
		t.Errorf("Expected every sweep to run, idle=%v sessions=%v", gotIdle, sessionsEvicted)
	}
	if next := job.GetNextRunTime(); next.Before(before) {
		t.Errorf("Next run %v should not precede %v", next, before)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := job.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

type countingJob struct {
	runs atomic.Int32
	err  error
}

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	return j.err
}

func (j *countingJob) GetNextRunTime() time.Time {
	return time.Now().Add(10 * time.Millisecond)
}

type panickingJob struct{}

func (panickingJob) Run(ctx context.Context) error { panic("boom") }
func (panickingJob) GetNextRunTime() time.Time     { return time.Now().Add(time.Hour) }

func TestJobScheduler(t *testing.T) {
	s := NewJobScheduler()
	job := &countingJob{err: errors.New("flaky")}
	s.Register("count", job)
	s.Register("panic", panickingJob{})

	s.Start()
	deadline := time.Now().Add(2 * time.Second)
	for job.runs.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()

	if job.runs.Load() < 2 {
		t.Fatalf("Expected job to be rescheduled, ran %d times", job.runs.Load())
	}

	status := s.GetStatus()
	if len(status) != 2 || status[0].Name != "count" || status[0].LastError != "flaky" {
		t.Errorf("Unexpected status: %+v", status)
	}

	if err := s.RunNow("panic"); err == nil {
		t.Error("Expected panic to be converted to an error")
	}
	if err := s.RunNow("missing"); err == nil {
		t.Error("Expected error for unknown job")
	}
}

type fakeResumer struct {
	calls atomic.Int32
	n     int
	err   error
}

func (r *fakeResumer) ResumeStalled(ctx context.Context) (int, error) {
	r.calls.Add(1)
	return r.n, r.err
}

type fakeLocker struct {
	mu       sync.Mutex
	held     bool
	released int
}

func (l *fakeLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return false, nil
	}
	l.held = true
	return true, nil
}

func (l *fakeLocker) Release(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = false
	l.released++
	return true, nil
}

func TestResumeSweepLock(t *testing.T) {
	resumer := &fakeResumer{n: 2}
	lock := &fakeLocker{}
	s, err := NewResumeScheduler(resumer, lock)
	if err != nil {
		t.Fatalf("NewResumeScheduler failed: %v", err)
	}
	defer s.Stop()

	s.Sweep()
	if resumer.calls.Load() != 1 || lock.released != 1 {
		t.Errorf("Expected one locked sweep, calls=%d released=%d", resumer.calls.Load(), lock.released)
	}

	lock.held = true // another instance owns the lock
	s.Sweep()
	if resumer.calls.Load() != 1 {
		t.Error("Sweep must be skipped while another instance holds the lock")
	}
}

func TestResumeSchedule(t *testing.T) {
	s, err := NewResumeScheduler(&fakeResumer{}, nil)
	if err != nil {
		t.Fatalf("NewResumeScheduler failed: %v", err)
	}
	defer s.Stop()

	if err := s.Schedule("not a cron"); err == nil {
		t.Error("Expected invalid expression to be rejected")
	}
	if err := s.Schedule("*/5 * * * *"); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if err := s.Schedule("*/10 * * * *"); err != nil {
		t.Fatalf("Reschedule failed: %v", err)
	}
	if got := len(s.scheduler.Jobs()); got != 1 {
		t.Errorf("Expected exactly one job after reschedule, got %d", got)
	}
	if err := s.Schedule(""); err != nil {
		t.Fatalf("Disable failed: %v", err)
	}
	if got := len(s.scheduler.Jobs()); got != 0 {
		t.Errorf("Expected no jobs after disable, got %d", got)
	}
}
