package jobs

import (
	"context"
	"log"
	"time"
)

// Maintenance is what the maintenance job sweeps
type Maintenance struct {
	PruneGuard    func() int              // drops expired guard windows
	EvictRunners  func(time.Duration) int // stops idle case runners
	EvictSessions func()                  // drops idle sessions
	RunnerIdle    time.Duration
}

// MaintenanceJob periodically releases in-memory state that is no longer needed
type MaintenanceJob struct {
	m        Maintenance
	interval time.Duration
	lastRun  time.Time
	now      func() time.Time
}

// NewMaintenanceJob creates the maintenance job
func NewMaintenanceJob(m Maintenance, interval time.Duration) *MaintenanceJob {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if m.RunnerIdle <= 0 {
		m.RunnerIdle = 10 * time.Minute
	}
	return &MaintenanceJob{m: m, interval: interval, now: time.Now}
}

// Run executes one sweep
func (j *MaintenanceJob) Run(ctx context.Context) error {
	j.lastRun = j.now()
	if err := ctx.Err(); err != nil {
		return err
	}

	var pruned, evicted int
	if j.m.PruneGuard != nil {
		pruned = j.m.PruneGuard()
	}
	if j.m.EvictRunners != nil {
		evicted = j.m.EvictRunners(j.m.RunnerIdle)
	}
	if j.m.EvictSessions != nil {
		j.m.EvictSessions()
	}

	if pruned > 0 || evicted > 0 {
		log.Printf("🧹 [MAINTENANCE] Pruned %d guard windows, stopped %d idle runners", pruned, evicted)
	}
	return nil
}

// GetNextRunTime returns when the next sweep should run
func (j *MaintenanceJob) GetNextRunTime() time.Time {
	if j.lastRun.IsZero() {
		return j.now().Add(j.interval)
	}
	return j.lastRun.Add(j.interval)
}
