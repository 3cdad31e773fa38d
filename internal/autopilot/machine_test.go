package autopilot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"magabot/internal/capability"
	"magabot/internal/config"
	"magabot/internal/guard"
	"magabot/internal/models"
	"magabot/internal/negotiation"
	"magabot/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeInvoker struct {
	mu       sync.Mutex
	handlers map[models.CapabilityKind]capability.Handler
	calls    map[models.CapabilityKind]int
}

func newFakeInvoker() *fakeInvoker {
	return &fakeInvoker{
		handlers: make(map[models.CapabilityKind]capability.Handler),
		calls:    make(map[models.CapabilityKind]int),
	}
}

func (f *fakeInvoker) set(kind models.CapabilityKind, h capability.Handler) {
	f.mu.Lock()
	f.handlers[kind] = h
	f.mu.Unlock()
}

func (f *fakeInvoker) Invoke(ctx context.Context, inv models.Invocation) (*models.Result, error) {
	f.mu.Lock()
	f.calls[inv.Kind]++
	h, ok := f.handlers[inv.Kind]
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", capability.ErrUnavailable, inv.Kind)
	}
	return h(ctx, inv.Payload)
}

func (f *fakeInvoker) Class(models.CapabilityKind) models.LatencyClass { return models.ClassSlow }

func (f *fakeInvoker) count(kind models.CapabilityKind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[kind]
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []Notice
}

func (n *recordingNotifier) NotifyCase(_ context.Context, _ *models.Case, notice Notice) {
	n.mu.Lock()
	n.notices = append(n.notices, notice)
	n.mu.Unlock()
}

func (n *recordingNotifier) kinds() []NoticeKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]NoticeKind, 0, len(n.notices))
	for _, x := range n.notices {
		out = append(out, x.Kind)
	}
	return out
}

func (n *recordingNotifier) countKind(kind NoticeKind) int {
	c := 0
	for _, k := range n.kinds() {
		if k == kind {
			c++
		}
	}
	return c
}

type recordingLinker struct {
	mu       sync.Mutex
	active   map[string]string
	unlinked int
}

func (l *recordingLinker) LinkCase(_ context.Context, userID, caseID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active == nil {
		l.active = make(map[string]string)
	}
	if cur := l.active[userID]; cur != "" && cur != caseID {
		return errors.New("another case is active")
	}
	l.active[userID] = caseID
	return nil
}

func (l *recordingLinker) UnlinkCase(_ context.Context, userID, caseID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active[userID] == caseID {
		delete(l.active, userID)
	}
	l.unlinked++
}

func (l *recordingLinker) activeCase(userID string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active[userID]
}

type denyingGuard struct{}

func (denyingGuard) Check(context.Context, string, models.LatencyClass) guard.Decision {
	return guard.Decision{Reason: guard.ReasonPerUser, RetryAfter: 30 * time.Second}
}

type harness struct {
	m        *Machine
	repo     *store.MemoryRepository
	invoker  *fakeInvoker
	notifier *recordingNotifier
	linker   *recordingLinker
}

func newHarness(t *testing.T, autoAdvance bool) *harness {
	t.Helper()
	h := &harness{
		repo:     store.NewMemoryRepository(),
		invoker:  newFakeInvoker(),
		notifier: &recordingNotifier{},
		linker:   &recordingLinker{},
	}
	h.m = NewMachine(Deps{
		Invoker:    h.invoker,
		Negotiator: negotiation.NewEngine(config.NegotiationConfig{PerRunTimeout: 2 * time.Second}, nil),
		Repo:       h.repo,
		Notifier:   h.notifier,
		Sessions:   h.linker,
	}, Settings{
		MaxAttempts:        map[models.Stage]int{models.StageDiscover: 2},
		DefaultMaxAttempts: 3,
		AutoAdvance:        autoAdvance,
		QueueSize:          8,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, h.m.Shutdown(ctx))
	})
	return h
}

func (h *harness) create(t *testing.T, seed ...models.Posting) *models.Case {
	t.Helper()
	c, err := h.m.Create(context.Background(), StartRequest{
		UserID:   "u1",
		ChatID:   "c1",
		Criteria: testCriteria(),
		Profile:  models.Profile{Name: "Ivan", Email: "ivan@example.com"},
		Seed:     seed,
	})
	require.NoError(t, err)
	require.NoError(t, h.linker.LinkCase(context.Background(), c.UserID, c.ID))
	return c
}

func (h *harness) load(t *testing.T, id string) *models.Case {
	t.Helper()
	c, err := h.repo.GetCase(context.Background(), id)
	require.NoError(t, err)
	return c
}

func (h *harness) process(c *models.Case, kind models.CaseEventKind) error {
	return h.m.Process(context.Background(), models.CaseEvent{CaseID: c.ID, UserID: c.UserID, ChatID: c.ChatID, Kind: kind})
}

func testCriteria() models.Criteria {
	return models.Criteria{
		TargetRole:   "Go Developer",
		Keywords:     []string{"go"},
		MinSalary:    150000,
		TargetSalary: 250000,
		Currency:     "RUR",
	}
}

func testPostings() []models.Posting {
	return []models.Posting{
		{ID: "p1", Title: "Senior Go Developer", Company: "Acme", SalaryFrom: 200000, SalaryTo: 300000},
		{ID: "p2", Title: "Go Engineer", Company: "Globex", SalaryTo: 260000},
	}
}

func (h *harness) happyPath() {
	h.invoker.set(models.CapJobSearch, func(context.Context, models.Payload) (*models.Result, error) {
		return &models.Result{Postings: testPostings()}, nil
	})
	h.invoker.set(models.CapApply, func(_ context.Context, p models.Payload) (*models.Result, error) {
		return &models.Result{Application: &models.Application{PostingID: p.Posting.ID, Company: p.Posting.Company, Title: p.Posting.Title, Success: true}}, nil
	})
	h.invoker.set(models.CapInterviewPrep, func(_ context.Context, p models.Payload) (*models.Result, error) {
		return &models.Result{Text: "Prepare for " + p.Posting.Company}, nil
	})
	h.invoker.set(models.CapNegotiate, negotiation.NewSimulatedEmployer(250000).Handler())
	h.invoker.set(models.CapFinalize, func(_ context.Context, p models.Payload) (*models.Result, error) {
		return &models.Result{Text: fmt.Sprintf("Accepting %d", p.Outcome.Winner.FinalOffer)}, nil
	})
}

func TestDiscover_TimeoutConsumesOneAttempt(t *testing.T) {
	h := newHarness(t, false)
	h.invoker.set(models.CapJobSearch, func(context.Context, models.Payload) (*models.Result, error) {
		return nil, fmt.Errorf("%w: job-search", capability.ErrTimeout)
	})
	c := h.create(t)

	err := h.process(c, models.CaseEventStart)
	assert.ErrorIs(t, err, ErrStageFailure)
	assert.ErrorIs(t, err, capability.ErrTimeout)

	got := h.load(t, c.ID)
	assert.Equal(t, models.StageDiscover, got.Stage)
	assert.Equal(t, 1, got.Attempts[models.StageDiscover])
	assert.Equal(t, []NoticeKind{NoticeRetryable}, h.notifier.kinds())
	assert.Contains(t, h.notifier.notices[0].Text, "did not respond in time")
}

func TestStage_ExhaustedAttemptsFailThenRetryResumes(t *testing.T) {
	h := newHarness(t, false)
	h.invoker.set(models.CapJobSearch, func(context.Context, models.Payload) (*models.Result, error) {
		return &models.Result{}, nil
	})
	c := h.create(t)

	require.ErrorIs(t, h.process(c, models.CaseEventStart), ErrStageFailure)
	require.ErrorIs(t, h.process(c, models.CaseEventAdvance), ErrStageFailure)

	got := h.load(t, c.ID)
	assert.Equal(t, models.StageFailed, got.Stage)
	assert.Equal(t, models.StageDiscover, got.FailedStage)
	assert.Equal(t, "no matching postings found", got.FailureReason)
	assert.Equal(t, 1, h.notifier.countKind(NoticeRetryable))
	assert.Equal(t, 1, h.notifier.countKind(NoticeFailed))
	assert.Empty(t, h.linker.activeCase("u1"))

	// advancing a failed case does nothing
	require.NoError(t, h.process(c, models.CaseEventAdvance))
	assert.Equal(t, 1, h.notifier.countKind(NoticeFailed))

	h.happyPath()
	require.NoError(t, h.process(c, models.CaseEventRetry))

	got = h.load(t, c.ID)
	assert.Equal(t, models.StageApply, got.Stage)
	assert.Len(t, got.Artifacts.Postings, 2)
	assert.Equal(t, c.ID, h.linker.activeCase("u1"))
	assert.Zero(t, got.Attempts[models.StageDiscover])
}

func TestStart_SeededPostingsSkipSearch(t *testing.T) {
	h := newHarness(t, false)
	c := h.create(t, testPostings()...)

	require.NoError(t, h.process(c, models.CaseEventStart))

	got := h.load(t, c.ID)
	assert.Equal(t, models.StageApply, got.Stage)
	assert.Zero(t, h.invoker.count(models.CapJobSearch))
	assert.Equal(t, []NoticeKind{NoticeProgress}, h.notifier.kinds())
}

func TestAutoPilot_RunsToDone(t *testing.T) {
	h := newHarness(t, true)
	h.happyPath()

	c, err := h.m.Start(context.Background(), StartRequest{UserID: "u1", ChatID: "c1", Criteria: testCriteria()})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := h.repo.GetCase(context.Background(), c.ID)
		return err == nil && got.Stage == models.StageDone && h.notifier.countKind(NoticeDone) == 1
	}, 5*time.Second, 10*time.Millisecond)

	got := h.load(t, c.ID)
	var visited []models.Stage
	for _, v := range got.History {
		visited = append(visited, v.Stage)
	}
	assert.Equal(t, models.StageOrder, visited)

	require.NotNil(t, got.Artifacts.Negotiation)
	assert.Equal(t, "hard_professional", got.Artifacts.Negotiation.Winner.StrategyID)
	assert.Equal(t, 275000, got.Artifacts.Negotiation.Winner.FinalOffer)
	require.NotNil(t, got.Artifacts.Close)
	assert.Equal(t, "Acme", got.Artifacts.Close.Company)
	assert.Equal(t, "Accepting 275000", got.Artifacts.Close.Letter)
	assert.Len(t, got.Artifacts.Briefs, 1)

	assert.Equal(t, 1, h.notifier.countKind(NoticeDone))
	assert.Zero(t, h.notifier.countKind(NoticeFailed))
}

func TestCancel_DiscardsLateResult(t *testing.T) {
	h := newHarness(t, false)
	entered := make(chan struct{})
	release := make(chan struct{})
	h.invoker.set(models.CapJobSearch, func(context.Context, models.Payload) (*models.Result, error) {
		close(entered)
		<-release
		return &models.Result{Postings: testPostings()}, nil
	})
	c := h.create(t)

	require.NoError(t, h.m.Submit(models.CaseEvent{CaseID: c.ID, Kind: models.CaseEventStart}))
	<-entered
	require.NoError(t, h.m.Submit(models.CaseEvent{CaseID: c.ID, Kind: models.CaseEventCancel}))
	close(release)

	require.Eventually(t, func() bool {
		got, err := h.repo.GetCase(context.Background(), c.ID)
		return err == nil && got.Stage == models.StageFailed && h.notifier.countKind(NoticeFailed) == 1
	}, 5*time.Second, 10*time.Millisecond)

	got := h.load(t, c.ID)
	assert.True(t, got.Cancelled)
	assert.Equal(t, models.StageDiscover, got.FailedStage)
	assert.Empty(t, got.Artifacts.Postings)
	assert.Equal(t, []NoticeKind{NoticeFailed}, h.notifier.kinds())

	assert.ErrorIs(t, h.process(c, models.CaseEventRetry), ErrNotRetryable)
	assert.Equal(t, models.StageFailed, h.load(t, c.ID).Stage)
}

func TestGuardDeny_LeavesStageAndAttempts(t *testing.T) {
	h := newHarness(t, false)
	h.happyPath()
	h.m.deps.Guard = denyingGuard{}
	c := h.create(t)

	err := h.process(c, models.CaseEventStart)
	assert.ErrorIs(t, err, guard.ErrThrottled)

	got := h.load(t, c.ID)
	assert.Equal(t, models.StageDiscover, got.Stage)
	assert.Zero(t, got.Attempts[models.StageDiscover])
	assert.Zero(t, h.invoker.count(models.CapJobSearch))
	assert.Equal(t, []NoticeKind{NoticeThrottled}, h.notifier.kinds())
}

// countingGuard allows the first allow checks and denies the rest
type countingGuard struct {
	mu     sync.Mutex
	allow  int
	checks int
}

func (g *countingGuard) Check(context.Context, string, models.LatencyClass) guard.Decision {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.checks++
	if g.allow >= 0 && g.checks > g.allow {
		return guard.Decision{Reason: guard.ReasonPerUser, RetryAfter: 10 * time.Second}
	}
	return guard.Decision{Allowed: true}
}

func (g *countingGuard) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.checks
}

func fivePostings() []models.Posting {
	var out []models.Posting
	for i := 1; i <= 5; i++ {
		out = append(out, models.Posting{ID: fmt.Sprintf("p%d", i), Title: "Go Developer", Company: fmt.Sprintf("Company %d", i)})
	}
	return out
}

func TestApply_GuardChecksEveryInvocation(t *testing.T) {
	h := newHarness(t, false)
	h.happyPath()
	g := &countingGuard{allow: -1}
	h.m.deps.Guard = g
	c := h.create(t, fivePostings()...)

	require.NoError(t, h.process(c, models.CaseEventStart))
	require.NoError(t, h.process(c, models.CaseEventAdvance))

	assert.Equal(t, 5, h.invoker.count(models.CapApply))
	assert.Equal(t, 5, g.count())
	assert.Equal(t, models.StageInterview, h.load(t, c.ID).Stage)
}

func TestApply_GuardDenyMidStagePausesAndKeepsProgress(t *testing.T) {
	h := newHarness(t, false)
	h.happyPath()
	c := h.create(t, fivePostings()...)
	require.NoError(t, h.process(c, models.CaseEventStart))

	h.m.deps.Guard = &countingGuard{allow: 2}
	err := h.process(c, models.CaseEventAdvance)
	assert.ErrorIs(t, err, guard.ErrThrottled)

	got := h.load(t, c.ID)
	assert.Equal(t, models.StageApply, got.Stage)
	assert.Zero(t, got.Attempts[models.StageApply])
	assert.Len(t, got.Artifacts.SuccessfulApplications(), 2)
	assert.Equal(t, 2, h.invoker.count(models.CapApply))
	assert.Equal(t, NoticeThrottled, h.notifier.kinds()[len(h.notifier.kinds())-1])

	h.m.deps.Guard = &countingGuard{allow: -1}
	require.NoError(t, h.process(c, models.CaseEventAdvance))
	got = h.load(t, c.ID)
	assert.Equal(t, models.StageInterview, got.Stage)
	assert.Len(t, got.Artifacts.SuccessfulApplications(), 5)
	assert.Equal(t, 5, h.invoker.count(models.CapApply))
}

func TestNegotiate_GuardChecksEveryRound(t *testing.T) {
	h := newHarness(t, false)
	h.happyPath()
	c := h.create(t, testPostings()...)
	require.NoError(t, h.process(c, models.CaseEventStart))
	require.NoError(t, h.process(c, models.CaseEventAdvance))
	require.NoError(t, h.process(c, models.CaseEventAdvance))
	require.Equal(t, models.StageNegotiate, h.load(t, c.ID).Stage)

	g := &countingGuard{allow: -1}
	h.m.deps.Guard = g
	require.NoError(t, h.process(c, models.CaseEventAdvance))
	assert.Equal(t, models.StageClose, h.load(t, c.ID).Stage)
	assert.Positive(t, h.invoker.count(models.CapNegotiate))
	assert.Equal(t, h.invoker.count(models.CapNegotiate), g.count())
}

func TestNegotiate_GuardDenyPausesWithoutOutcome(t *testing.T) {
	h := newHarness(t, false)
	h.happyPath()
	c := h.create(t, testPostings()...)
	require.NoError(t, h.process(c, models.CaseEventStart))
	require.NoError(t, h.process(c, models.CaseEventAdvance))
	require.NoError(t, h.process(c, models.CaseEventAdvance))

	h.m.deps.Guard = &countingGuard{allow: 1}
	assert.ErrorIs(t, h.process(c, models.CaseEventAdvance), guard.ErrThrottled)

	got := h.load(t, c.ID)
	assert.Equal(t, models.StageNegotiate, got.Stage)
	assert.Zero(t, got.Attempts[models.StageNegotiate])
	assert.Nil(t, got.Artifacts.Negotiation)
}

func TestApply_DailyCap(t *testing.T) {
	h := newHarness(t, false)
	h.happyPath()
	criteria := testCriteria()
	criteria.MaxApplyPerDay = 1
	c, err := h.m.Create(context.Background(), StartRequest{UserID: "u1", Criteria: criteria, Seed: testPostings()})
	require.NoError(t, err)

	require.NoError(t, h.process(c, models.CaseEventStart))
	require.NoError(t, h.process(c, models.CaseEventAdvance))

	got := h.load(t, c.ID)
	assert.Equal(t, models.StageInterview, got.Stage)
	assert.Len(t, got.Artifacts.Applications, 1)
	assert.Equal(t, 1, got.AppliedToday)
}

func TestApply_CapReachedWithoutSuccessPauses(t *testing.T) {
	h := newHarness(t, false)
	h.happyPath()
	criteria := testCriteria()
	criteria.MaxApplyPerDay = 1
	c, err := h.m.Create(context.Background(), StartRequest{UserID: "u1", Criteria: criteria, Seed: testPostings()})
	require.NoError(t, err)

	stored := h.load(t, c.ID)
	stored.Stage = models.StageApply
	stored.AppliedDay = time.Now().Format("2006-01-02")
	stored.AppliedToday = 1
	require.NoError(t, h.repo.SaveCase(context.Background(), stored))

	require.NoError(t, h.process(c, models.CaseEventAdvance))

	got := h.load(t, c.ID)
	assert.Equal(t, models.StageApply, got.Stage)
	assert.Zero(t, got.Attempts[models.StageApply])
	assert.Zero(t, h.invoker.count(models.CapApply))
	assert.Equal(t, []NoticeKind{NoticeThrottled}, h.notifier.kinds())
}

func TestApply_AllFailedIsStageFailure(t *testing.T) {
	h := newHarness(t, false)
	h.invoker.set(models.CapApply, func(context.Context, models.Payload) (*models.Result, error) {
		return nil, fmt.Errorf("%w: form rejected", capability.ErrFailed)
	})
	c := h.create(t, testPostings()...)
	require.NoError(t, h.process(c, models.CaseEventStart))

	err := h.process(c, models.CaseEventAdvance)
	assert.ErrorIs(t, err, ErrStageFailure)

	got := h.load(t, c.ID)
	assert.Equal(t, models.StageApply, got.Stage)
	assert.Equal(t, 1, got.Attempts[models.StageApply])
	assert.Len(t, got.Artifacts.Applications, 2)
}

func TestAdvance_StaleEventIsDropped(t *testing.T) {
	h := newHarness(t, false)
	c := h.create(t, testPostings()...)
	require.NoError(t, h.process(c, models.CaseEventStart))

	err := h.m.Process(context.Background(), models.CaseEvent{CaseID: c.ID, Kind: models.CaseEventAdvance, Stage: models.StageDiscover})
	require.NoError(t, err)
	assert.Zero(t, h.invoker.count(models.CapApply))
	assert.Equal(t, models.StageApply, h.load(t, c.ID).Stage)
}

func TestStatusAndInput(t *testing.T) {
	h := newHarness(t, false)
	c := h.create(t, testPostings()...)

	require.NoError(t, h.process(c, models.CaseEventStatus))
	require.NoError(t, h.m.Process(context.Background(), models.CaseEvent{CaseID: c.ID, Kind: models.CaseEventInput, Text: "prefer remote"}))

	assert.Equal(t, []NoticeKind{NoticeStatus, NoticeInfo}, h.notifier.kinds())
	assert.Contains(t, h.notifier.notices[0].Text, "Stage: Discover")
	assert.Equal(t, []string{"prefer remote"}, h.load(t, c.ID).Artifacts.Notes)

	text, err := h.m.Status(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Contains(t, text, "Postings: 2")

	_, err = h.m.Status(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrCaseNotFound)
}

func TestResumeStalled(t *testing.T) {
	h := newHarness(t, false)
	h.happyPath()
	c := h.create(t, testPostings()...)

	n, err := h.m.ResumeStalled(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	h.m.now = func() time.Time { return time.Now().Add(time.Hour) }
	n, err = h.m.ResumeStalled(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Eventually(t, func() bool {
		got, err := h.repo.GetCase(context.Background(), c.ID)
		return err == nil && got.Stage == models.StageApply
	}, 5*time.Second, 10*time.Millisecond)
}

func TestEvictIdleAndShutdown(t *testing.T) {
	h := newHarness(t, false)
	c := h.create(t)
	require.NoError(t, h.process(c, models.CaseEventStatus))
	assert.Equal(t, 1, h.m.Runners())

	assert.Zero(t, h.m.EvictIdle(time.Hour))
	assert.Equal(t, 1, h.m.EvictIdle(0))
	assert.Zero(t, h.m.Runners())

	require.NoError(t, h.m.Shutdown(context.Background()))
	assert.ErrorIs(t, h.m.Submit(models.CaseEvent{CaseID: c.ID, Kind: models.CaseEventStatus}), ErrShuttingDown)
}

func TestCanTransition(t *testing.T) {
	c := &models.Case{Stage: models.StageDiscover}
	assert.True(t, canTransition(c, models.StageApply))
	assert.True(t, canTransition(c, models.StageFailed))
	assert.False(t, canTransition(c, models.StageInterview))
	assert.False(t, canTransition(c, models.StageDone))

	c = &models.Case{Stage: models.StageFailed, FailedStage: models.StageNegotiate}
	assert.True(t, canTransition(c, models.StageNegotiate))
	assert.False(t, canTransition(c, models.StageDiscover))

	assert.False(t, canTransition(&models.Case{Stage: models.StageDone}, models.StageDiscover))
}

func TestFilterPostings(t *testing.T) {
	postings := []models.Posting{
		{ID: "1", Title: "Go Developer", Company: "Acme", SalaryTo: 300000},
		{ID: "2", Title: "go developer ", Company: "ACME"},
		{ID: "3", Title: "Java Developer", Company: "Initech"},
		{ID: "4", Title: "Go Engineer", Company: "Globex", SalaryTo: 100000},
		{ID: "5", Title: "Backend Engineer", Company: "Umbrella", Description: "We write Go"},
		{ID: "6", Title: "Golang Lead", Company: "Hooli"},
	}

	tests := []struct {
		name     string
		criteria models.Criteria
		want     []string
	}{
		{"dedup only", models.Criteria{}, []string{"1", "3", "4", "5", "6"}},
		{"keywords", models.Criteria{Keywords: []string{"go"}}, []string{"1", "4", "5", "6"}},
		{"min salary keeps unknown", models.Criteria{Keywords: []string{"go"}, MinSalary: 150000}, []string{"1", "5", "6"}},
		{"target companies", models.Criteria{TargetCompanies: []string{"acme", "Hooli"}}, []string{"1", "6"}},
		{"max postings", models.Criteria{MaxPostings: 2}, []string{"1", "3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, p := range FilterPostings(postings, tt.criteria, models.Profile{}) {
				got = append(got, p.ID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatchScore(t *testing.T) {
	posting := models.Posting{Title: "Senior Go Developer", Description: "We use Go, PostgreSQL and Kubernetes."}
	goCriteria := models.Criteria{Keywords: []string{"go"}}

	tests := []struct {
		name     string
		posting  models.Posting
		criteria models.Criteria
		profile  models.Profile
		want     float64
	}{
		{"full match with synonyms", posting, goCriteria,
			models.Profile{Skills: []string{"golang", "postgres", "Kubernetes"}, Level: "Senior"}, 1},
		{"no skills or level", posting, goCriteria, models.Profile{}, 0.56},
		{"nothing matches", models.Posting{Title: "Junior Java Developer"}, models.Criteria{Keywords: []string{"go", "backend"}},
			models.Profile{Skills: []string{"go"}, Level: "senior"}, 0},
		{"words are matched whole", models.Posting{Title: "Good international developer"}, models.Criteria{},
			models.Profile{Skills: []string{"go"}, Level: "junior"}, 0.72},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, MatchScore(tt.posting, tt.criteria, tt.profile), 0.001)
		})
	}
}

func TestFilterPostings_MinMatchScore(t *testing.T) {
	postings := []models.Posting{
		{ID: "a", Title: "Senior Go Developer"},
		{ID: "b", Title: "Go Developer", Description: "Java and Kubernetes"},
		{ID: "c", Title: "Junior Go Developer", Description: "Python, Java, Kubernetes"},
	}
	criteria := models.Criteria{Keywords: []string{"go"}, MinMatchScore: 0.6}
	profile := models.Profile{Skills: []string{"go"}, Level: "senior"}

	got := FilterPostings(postings, criteria, profile)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.InDelta(t, 1, got[0].MatchScore, 0.001)
	assert.Equal(t, "b", got[1].ID)
	assert.InDelta(t, 0.67, got[1].MatchScore, 0.001)

	criteria.MinMatchScore = 0
	assert.Len(t, FilterPostings(postings, criteria, profile), 3)
}

func TestApply_RecordsMatchScore(t *testing.T) {
	h := newHarness(t, false)
	h.happyPath()
	c := h.create(t, testPostings()...)
	require.NoError(t, h.process(c, models.CaseEventStart))
	require.NoError(t, h.process(c, models.CaseEventAdvance))

	got := h.load(t, c.ID)
	require.Len(t, got.Artifacts.Applications, 2)
	for i, app := range got.Artifacts.Applications {
		assert.Positive(t, got.Artifacts.Postings[i].MatchScore)
		assert.Equal(t, got.Artifacts.Postings[i].MatchScore, app.MatchScore)
	}
}

func TestSettingsFromConfig(t *testing.T) {
	off := false
	s := SettingsFromConfig(config.AutoPilotConfig{
		MaxAttempts: map[string]int{"apply": 5},
		AutoAdvance: &off,
	})
	assert.Equal(t, 5, s.MaxAttemptsFor(models.StageApply))
	assert.Equal(t, 3, s.MaxAttemptsFor(models.StageClose))
	assert.False(t, s.AutoAdvance)
	assert.Equal(t, 32, s.QueueSize)
	assert.Equal(t, 10*time.Minute, s.StallAfter)
}

func TestUserReason(t *testing.T) {
	assert.Equal(t, "the service is unavailable right now", userReason(stageFailure(models.StageApply, "x", capability.ErrUnavailable)))
	assert.Equal(t, "no negotiation strategy produced an offer", userReason(fmt.Errorf("wrap: %w", negotiation.ErrExhausted)))
	assert.Equal(t, "no target", userReason(stageFailure(models.StageNegotiate, "no target", nil)))
	assert.Equal(t, "negotiation failed", userReason(stageFailure(models.StageNegotiate, "negotiation failed", errors.New("boom"))))
}
