package autopilot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"magabot/internal/capability"
	"magabot/internal/config"
	"magabot/internal/guard"
	"magabot/internal/models"
	"magabot/internal/negotiation"
	"magabot/internal/store"
)

// NoticeKind classifies a message the machine sends to the case owner
type NoticeKind string

const (
	NoticeProgress  NoticeKind = "progress"
	NoticeRetryable NoticeKind = "retryable"
	NoticeFailed    NoticeKind = "failed"
	NoticeThrottled NoticeKind = "throttled"
	NoticeDone      NoticeKind = "done"
	NoticeStatus    NoticeKind = "status"
	NoticeInfo      NoticeKind = "info"
)

// Notice is one user-facing message about a case
type Notice struct {
	Kind NoticeKind
	Text string
}

// Notifier delivers case notices to the chat that owns the case
type Notifier interface {
	NotifyCase(ctx context.Context, c *models.Case, n Notice)
}

// Guard is the rate check consulted before each stage
type Guard interface {
	Check(ctx context.Context, userID string, class models.LatencyClass) guard.Decision
}

// Negotiator runs the concurrent strategy evaluation for the Negotiate stage
type Negotiator interface {
	Negotiate(ctx context.Context, req negotiation.Request, cp negotiation.CounterParty) (*models.NegotiationOutcome, error)
}

// SessionLinker keeps the owning session's active case pointer in sync
type SessionLinker interface {
	LinkCase(ctx context.Context, userID, caseID string) error
	UnlinkCase(ctx context.Context, userID, caseID string)
}

// TransitionObserver is told about every accepted stage move
type TransitionObserver interface {
	ObserveTransition(from, to string)
}

// Deps are the collaborators of the machine. Guard, Sessions and Observer are optional.
type Deps struct {
	Invoker    capability.Invoker
	Negotiator Negotiator
	Guard      Guard
	Repo       store.Repository
	Notifier   Notifier
	Sessions   SessionLinker
	Observer   TransitionObserver
}

// Settings are the reloadable knobs of the machine
type Settings struct {
	MaxAttempts        map[models.Stage]int
	DefaultMaxAttempts int
	AutoAdvance        bool
	QueueSize          int
	StallAfter         time.Duration
}

// SettingsFromConfig converts the auto-pilot config section
func SettingsFromConfig(cfg config.AutoPilotConfig) Settings {
	s := Settings{
		MaxAttempts:        make(map[models.Stage]int, len(cfg.MaxAttempts)),
		DefaultMaxAttempts: cfg.DefaultMaxAttempts,
		AutoAdvance:        cfg.ShouldAutoAdvance(),
		QueueSize:          cfg.QueueSize,
		StallAfter:         cfg.StallAfter,
	}
	for stage, n := range cfg.MaxAttempts {
		s.MaxAttempts[models.Stage(stage)] = n
	}
	return s.withDefaults()
}

// CriteriaFromConfig converts the default job-search criteria
func CriteriaFromConfig(c config.CriteriaConfig) models.Criteria {
	return models.Criteria{
		TargetRole:      c.TargetRole,
		Keywords:        append([]string(nil), c.Keywords...),
		Locations:       append([]string(nil), c.Locations...),
		TargetCompanies: append([]string(nil), c.TargetCompanies...),
		MinSalary:       c.MinSalary,
		TargetSalary:    c.TargetSalary,
		Currency:        c.Currency,
		MaxApplyPerDay:  c.MaxApplyPerDay,
		MaxPostings:     c.MaxPostings,
		MinMatchScore:   c.MinMatchScore,
	}
}

// ProfileFromConfig converts the applicant profile
func ProfileFromConfig(p config.ProfileConfig) models.Profile {
	profile := models.Profile(p)
	profile.Skills = append([]string(nil), p.Skills...)
	return profile
}

func (s Settings) withDefaults() Settings {
	if s.DefaultMaxAttempts <= 0 {
		s.DefaultMaxAttempts = 3
	}
	if s.QueueSize <= 0 {
		s.QueueSize = 32
	}
	if s.StallAfter <= 0 {
		s.StallAfter = 10 * time.Minute
	}
	if s.MaxAttempts == nil {
		s.MaxAttempts = map[models.Stage]int{}
	}
	return s
}

// MaxAttemptsFor returns the retry budget of a stage
func (s Settings) MaxAttemptsFor(stage models.Stage) int {
	if n, ok := s.MaxAttempts[stage]; ok && n > 0 {
		return n
	}
	return s.DefaultMaxAttempts
}

// StartRequest describes a new case
type StartRequest struct {
	UserID   string
	ChatID   string
	Criteria models.Criteria
	Profile  models.Profile
	// Seed postings skip the job-search invocation of Discover
	Seed []models.Posting
}

// Machine drives automation cases through their stages. Events for one case
// are handled one at a time by that case's runner; cases run concurrently.
type Machine struct {
	deps     Deps
	settings atomic.Pointer[Settings]
	now      func() time.Time
	newID    func() string

	baseCtx context.Context
	stop    context.CancelFunc

	mu      sync.Mutex
	runners map[string]*runner
	closed  bool
	wg      sync.WaitGroup
}

// NewMachine creates a machine. Call Shutdown to stop its runners.
func NewMachine(deps Deps, settings Settings) *Machine {
	ctx, stop := context.WithCancel(context.Background())
	m := &Machine{
		deps:    deps,
		now:     time.Now,
		newID:   uuid.NewString,
		baseCtx: ctx,
		stop:    stop,
		runners: make(map[string]*runner),
	}
	m.Reconfigure(settings)
	return m
}

// Reconfigure swaps the settings. Queue size applies to runners created afterwards.
func (m *Machine) Reconfigure(settings Settings) {
	s := settings.withDefaults()
	m.settings.Store(&s)
}

// Settings returns the current settings
func (m *Machine) Settings() Settings {
	return *m.settings.Load()
}

// Create persists a new case in Discover without running it
func (m *Machine) Create(ctx context.Context, req StartRequest) (*models.Case, error) {
	if req.UserID == "" {
		return nil, fmt.Errorf("start case: missing user id")
	}
	c := models.NewCase(m.newID(), req.UserID, req.ChatID, req.Criteria, req.Profile, m.now())
	if len(req.Seed) > 0 {
		c.Artifacts.Postings = FilterPostings(req.Seed, req.Criteria, req.Profile)
	}
	if err := m.deps.Repo.SaveCase(ctx, c); err != nil {
		return nil, fmt.Errorf("save new case: %w", err)
	}
	if m.deps.Observer != nil {
		m.deps.Observer.ObserveTransition("", string(models.StageDiscover))
	}
	log.Printf("🚀 [AUTOPILOT] Case %s created for user %s (%d seeded postings)", c.ID, c.UserID, len(c.Artifacts.Postings))
	return c.Clone(), nil
}

// Start creates a case and queues its first stage
func (m *Machine) Start(ctx context.Context, req StartRequest) (*models.Case, error) {
	c, err := m.Create(ctx, req)
	if err != nil {
		return nil, err
	}
	err = m.Submit(models.CaseEvent{CaseID: c.ID, UserID: c.UserID, ChatID: c.ChatID, Kind: models.CaseEventStart})
	return c, err
}

// Get loads a case
func (m *Machine) Get(ctx context.Context, caseID string) (*models.Case, error) {
	c, err := m.deps.Repo.GetCase(ctx, caseID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrCaseNotFound, caseID)
	}
	return c, err
}

// Status renders the status summary of a case
func (m *Machine) Status(ctx context.Context, caseID string) (string, error) {
	c, err := m.Get(ctx, caseID)
	if err != nil {
		return "", err
	}
	return StatusText(c, m.Settings()), nil
}

// Submit queues an event for its case and returns immediately. A cancel
// interrupts the in-flight stage before it is queued.
func (m *Machine) Submit(ev models.CaseEvent) error {
	for i := 0; i < 2; i++ {
		r, err := m.runnerFor(ev.CaseID)
		if err != nil {
			return err
		}
		if ev.Kind == models.CaseEventCancel {
			r.interrupt()
		}
		err = r.enqueue(ev)
		if errors.Is(err, errRunnerClosed) {
			// evicted between lookup and enqueue
			continue
		}
		if err != nil && ev.Kind == models.CaseEventCancel {
			r.clearCancel()
		}
		return err
	}
	return ErrQueueFull
}

// Process handles an event synchronously, in order with queued events of the same case
func (m *Machine) Process(ctx context.Context, ev models.CaseEvent) error {
	r, err := m.runnerFor(ev.CaseID)
	if err != nil {
		return err
	}
	if ev.Kind == models.CaseEventCancel {
		r.interrupt()
	}
	return m.handle(ctx, r, ev)
}

// ResumeStalled re-queues active cases that have not moved for StallAfter and
// have no work pending. It returns the number of cases queued.
func (m *Machine) ResumeStalled(ctx context.Context) (int, error) {
	cases, err := m.deps.Repo.ListActiveCases(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active cases: %w", err)
	}
	stall := m.Settings().StallAfter
	now := m.now()
	resumed := 0
	for _, c := range cases {
		if now.Sub(c.UpdatedAt) < stall {
			continue
		}
		if r := m.peekRunner(c.ID); r != nil && r.pending() {
			continue
		}
		err := m.Submit(models.CaseEvent{
			CaseID:  c.ID,
			UserID:  c.UserID,
			ChatID:  c.ChatID,
			Kind:    models.CaseEventAdvance,
			Stage:   c.Stage,
			EventID: resumeEventID,
		})
		if err != nil {
			log.Printf("⚠️ [AUTOPILOT] Failed to resume case %s: %v", c.ID, err)
			continue
		}
		resumed++
	}
	return resumed, nil
}

// EvictIdle stops runners that have been idle longer than idle
func (m *Machine) EvictIdle(idle time.Duration) int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	evicted := 0
	for id, r := range m.runners {
		if r.closeIfIdle(now, idle) {
			delete(m.runners, id)
			evicted++
		}
	}
	return evicted
}

// Runners returns the number of live case runners
func (m *Machine) Runners() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.runners)
}

// Shutdown stops accepting events, cancels in-flight stages and waits for runners to exit
func (m *Machine) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	for id, r := range m.runners {
		r.close()
		delete(m.runners, id)
	}
	m.mu.Unlock()
	m.stop()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Printf("✅ [AUTOPILOT] All case runners stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Machine) runnerFor(caseID string) (*runner, error) {
	if caseID == "" {
		return nil, fmt.Errorf("%w: empty case id", ErrCaseNotFound)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrShuttingDown
	}
	if r, ok := m.runners[caseID]; ok {
		return r, nil
	}
	r := newRunner(caseID, m.Settings().QueueSize, m.now)
	m.runners[caseID] = r
	m.wg.Add(1)
	go m.loop(r)
	return r, nil
}

func (m *Machine) peekRunner(caseID string) *runner {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runners[caseID]
}

func (m *Machine) loop(r *runner) {
	defer m.wg.Done()
	for ev := range r.queue {
		if m.baseCtx.Err() != nil {
			return
		}
		if err := m.handle(m.baseCtx, r, ev); err != nil {
			switch {
			case errors.Is(err, ErrStageFailure), errors.Is(err, guard.ErrThrottled), errors.Is(err, ErrNotRetryable):
				// already reported to the user
			case errors.Is(err, context.Canceled) && m.baseCtx.Err() != nil:
			default:
				log.Printf("❌ [AUTOPILOT] Case %s event %s failed: %v", ev.CaseID, ev.Kind, err)
			}
		}
	}
}

func (m *Machine) notify(ctx context.Context, c *models.Case, kind NoticeKind, text string) {
	if m.deps.Notifier == nil {
		return
	}
	m.deps.Notifier.NotifyCase(ctx, c.Clone(), Notice{Kind: kind, Text: text})
}

func (m *Machine) save(ctx context.Context, c *models.Case) error {
	c.UpdatedAt = m.now()
	if err := m.deps.Repo.SaveCase(ctx, c); err != nil {
		return fmt.Errorf("save case %s: %w", c.ID, err)
	}
	return nil
}

func (m *Machine) unlink(ctx context.Context, c *models.Case) {
	if m.deps.Sessions != nil {
		m.deps.Sessions.UnlinkCase(ctx, c.UserID, c.ID)
	}
}
