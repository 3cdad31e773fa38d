package jobs

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/robfig/cron/v3"
)

const resumeLockKey = "magabot:resume-lock"

// Resumer re-advances stalled cases
type Resumer interface {
	ResumeStalled(ctx context.Context) (int, error)
}

// ValidateCron checks a standard five-field cron expression
func ValidateCron(expr string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// NextRun returns the next activation of expr after t
func NextRun(expr string, t time.Time) (time.Time, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return sched.Next(t), nil
}

// ResumeScheduler runs the stalled-case sweep on a cron schedule. With a
// Locker only one instance sweeps per activation.
type ResumeScheduler struct {
	scheduler gocron.Scheduler
	resumer   Resumer
	lock      Locker
	timeout   time.Duration

	mu   sync.Mutex
	job  gocron.Job
	expr string
}

// NewResumeScheduler creates the scheduler. lock may be nil.
func NewResumeScheduler(resumer Resumer, lock Locker) (*ResumeScheduler, error) {
	s, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	return &ResumeScheduler{scheduler: s, resumer: resumer, lock: lock, timeout: 5 * time.Minute}, nil
}

// Schedule installs or replaces the cron job. An empty expression removes it.
func (s *ResumeScheduler) Schedule(expr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if expr == s.expr && (s.job != nil || expr == "") {
		return nil
	}
	if expr != "" {
		if err := ValidateCron(expr); err != nil {
			return err
		}
	}
	if s.job != nil {
		if err := s.scheduler.RemoveJob(s.job.ID()); err != nil {
			log.Printf("⚠️ [RESUME] Failed to remove previous job: %v", err)
		}
		s.job = nil
	}
	s.expr = expr
	if expr == "" {
		log.Println("⏸️ [RESUME] Stalled-case sweep disabled")
		return nil
	}

	job, err := s.scheduler.NewJob(
		gocron.CronJob(expr, false),
		gocron.NewTask(s.Sweep),
		gocron.WithName("resume-stalled"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule resume job: %w", err)
	}
	s.job = job
	log.Printf("✅ [RESUME] Stalled-case sweep scheduled (%s)", expr)
	return nil
}

// Sweep resumes stalled cases once, holding the distributed lock if configured
func (s *ResumeScheduler) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if s.lock != nil {
		acquired, err := s.lock.Acquire(ctx, resumeLockKey, s.timeout)
		if err != nil {
			log.Printf("❌ [RESUME] Failed to acquire lock: %v", err)
			return
		}
		if !acquired {
			log.Println("⏭️ [RESUME] Sweep already running on another instance")
			return
		}
		defer func() {
			if _, err := s.lock.Release(context.Background(), resumeLockKey); err != nil {
				log.Printf("⚠️ [RESUME] Failed to release lock: %v", err)
			}
		}()
	}

	n, err := s.resumer.ResumeStalled(ctx)
	if err != nil {
		log.Printf("❌ [RESUME] Sweep failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("▶️ [RESUME] Re-queued %d stalled case(s)", n)
	}
}

// Start starts the underlying scheduler
func (s *ResumeScheduler) Start() {
	s.scheduler.Start()
}

// Stop shuts the scheduler down and waits for a running sweep
func (s *ResumeScheduler) Stop() error {
	return s.scheduler.Shutdown()
}
