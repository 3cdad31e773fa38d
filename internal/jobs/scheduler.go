package jobs

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
)

// Job is a periodic in-process task
type Job interface {
	Run(ctx context.Context) error
	GetNextRunTime() time.Time
}

// JobScheduler runs each registered job on its own timer
type JobScheduler struct {
	jobs    map[string]Job
	timers  map[string]*time.Timer
	lastErr map[string]error
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewJobScheduler creates an empty scheduler
func NewJobScheduler() *JobScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &JobScheduler{
		jobs:    make(map[string]Job),
		timers:  make(map[string]*time.Timer),
		lastErr: make(map[string]error),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Register adds a job. Jobs registered after Start are scheduled at once.
func (s *JobScheduler) Register(name string, job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[name] = job
	if s.running {
		s.scheduleJob(name, job)
	}
	log.Printf("✅ [SCHEDULER] Registered job: %s", name)
}

// Start schedules every registered job
func (s *JobScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true
	log.Printf("🚀 [SCHEDULER] Starting job scheduler with %d jobs", len(s.jobs))
	for name, job := range s.jobs {
		s.scheduleJob(name, job)
	}
}

// scheduleJob must be called with mu held
func (s *JobScheduler) scheduleJob(name string, job Job) {
	delay := time.Until(job.GetNextRunTime())
	if delay < 0 {
		delay = 0
	}
	s.timers[name] = time.AfterFunc(delay, func() {
		s.runJob(name, job)
	})
}

func (s *JobScheduler) runJob(name string, job Job) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	err := s.safeRun(job)
	if err != nil {
		log.Printf("❌ [SCHEDULER] Job '%s' failed: %v", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr[name] = err
	if s.running {
		s.scheduleJob(name, job)
	}
}

func (s *JobScheduler) safeRun(job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return job.Run(s.ctx)
}

// Stop cancels the timers and waits for running jobs
func (s *JobScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	log.Println("🛑 [SCHEDULER] Stopping job scheduler...")
	s.running = false
	for _, timer := range s.timers {
		timer.Stop()
	}
	s.timers = make(map[string]*time.Timer)
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	log.Println("✅ [SCHEDULER] Job scheduler stopped")
}

// RunNow runs a job synchronously outside its schedule
func (s *JobScheduler) RunNow(name string) error {
	s.mu.Lock()
	job, exists := s.jobs[name]
	s.mu.Unlock()

	if !exists {
		return fmt.Errorf("job %q not registered", name)
	}
	return s.safeRun(job)
}

// JobStatus describes one registered job
type JobStatus struct {
	Name        string    `json:"name"`
	NextRunTime time.Time `json:"next_run_time"`
	LastError   string    `json:"last_error,omitempty"`
}

// GetStatus returns the status of every job sorted by name
func (s *JobScheduler) GetStatus() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := make([]JobStatus, 0, len(s.jobs))
	for name, job := range s.jobs {
		st := JobStatus{Name: name, NextRunTime: job.GetNextRunTime()}
		if err := s.lastErr[name]; err != nil {
			st.LastError = err.Error()
		}
		status = append(status, st)
	}
	sort.Slice(status, func(i, j int) bool { return status[i].Name < status[j].Name })
	return status
}
