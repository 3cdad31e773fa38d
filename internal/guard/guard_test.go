package guard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"magabot/internal/config"
	"magabot/internal/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type denialCounter struct {
	mu      sync.Mutex
	reasons map[string]int
}

func (d *denialCounter) ObserveDenial(reason string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.reasons == nil {
		d.reasons = make(map[string]int)
	}
	d.reasons[reason]++
}

func newTestGuard(perUser, global int) (*Guard, *fakeClock, *denialCounter) {
	clock := &fakeClock{now: time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)}
	observer := &denialCounter{}
	g := New(NewMemoryBackend(), Limits{
		Window:  time.Minute,
		PerUser: map[models.LatencyClass]int{models.ClassFast: perUser, models.ClassSlow: 1},
		Global:  map[models.LatencyClass]int{models.ClassFast: global, models.ClassSlow: 100},
	}, observer)
	g.now = clock.Now
	return g, clock, observer
}

func TestGuard_PerUserBoundary(t *testing.T) {
	g, _, observer := newTestGuard(3, 100)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		d := g.Check(ctx, "alice", models.ClassFast)
		require.Truef(t, d.Allowed, "request %d should be allowed", i)
	}

	d := g.Check(ctx, "alice", models.ClassFast)
	require.False(t, d.Allowed)
	assert.Equal(t, ReasonPerUser, d.Reason)
	assert.Equal(t, time.Minute, d.RetryAfter)
	assert.True(t, errors.Is(d.Err(), ErrThrottled))
	assert.Equal(t, 1, observer.reasons["per-user"])

	// Other users are unaffected
	assert.True(t, g.Check(ctx, "bob", models.ClassFast).Allowed)
}

func TestGuard_GlobalCeiling(t *testing.T) {
	g, _, _ := newTestGuard(10, 4)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.True(t, g.Check(ctx, fmt.Sprintf("user-%d", i), models.ClassFast).Allowed)
	}

	d := g.Check(ctx, "fresh-user", models.ClassFast)
	require.False(t, d.Allowed)
	assert.Equal(t, ReasonGlobal, d.Reason)
}

func TestGuard_DeniedRequestsAreNotCounted(t *testing.T) {
	g, clock, _ := newTestGuard(2, 100)
	ctx := context.Background()

	require.True(t, g.Check(ctx, "alice", models.ClassFast).Allowed)
	clock.Advance(30 * time.Second)
	require.True(t, g.Check(ctx, "alice", models.ClassFast).Allowed)

	// Hammering while throttled must not extend the window
	for i := 0; i < 20; i++ {
		require.False(t, g.Check(ctx, "alice", models.ClassFast).Allowed)
	}

	clock.Advance(30*time.Second + time.Millisecond)
	assert.True(t, g.Check(ctx, "alice", models.ClassFast).Allowed, "first entry expired, a slot is free")
	assert.False(t, g.Check(ctx, "alice", models.ClassFast).Allowed)
}

func TestGuard_ClassesHaveSeparateWindows(t *testing.T) {
	g, _, _ := newTestGuard(1, 100)
	ctx := context.Background()

	require.True(t, g.Check(ctx, "alice", models.ClassFast).Allowed)
	require.False(t, g.Check(ctx, "alice", models.ClassFast).Allowed)
	assert.True(t, g.Check(ctx, "alice", models.ClassSlow).Allowed)
	assert.False(t, g.Check(ctx, "alice", models.ClassSlow).Allowed)
}

func TestGuard_SlidingWindowExpiry(t *testing.T) {
	g, clock, _ := newTestGuard(1, 100)
	ctx := context.Background()

	require.True(t, g.Check(ctx, "alice", models.ClassFast).Allowed)
	clock.Advance(59 * time.Second)
	d := g.Check(ctx, "alice", models.ClassFast)
	require.False(t, d.Allowed)
	assert.Equal(t, time.Second, d.RetryAfter)

	clock.Advance(time.Second)
	assert.True(t, g.Check(ctx, "alice", models.ClassFast).Allowed)
}

func TestGuard_UnlimitedClass(t *testing.T) {
	clockless := New(NewMemoryBackend(), Limits{Window: time.Minute}, nil)
	for i := 0; i < 1000; i++ {
		require.True(t, clockless.Check(context.Background(), "alice", models.ClassFast).Allowed)
	}
}

func TestGuard_ConcurrentChecksRespectCeiling(t *testing.T) {
	g, _, _ := newTestGuard(50, 1000)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.Check(ctx, "alice", models.ClassFast).Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, allowed)
}

func TestGuard_Prune(t *testing.T) {
	g, clock, _ := newTestGuard(5, 100)
	ctx := context.Background()
	g.Check(ctx, "alice", models.ClassFast)
	g.Check(ctx, "bob", models.ClassFast)

	assert.Equal(t, 0, g.Prune())
	clock.Advance(2 * time.Minute)
	assert.Equal(t, 2, g.Prune())
}

type failingBackend struct{}

func (failingBackend) Check(context.Context, string, models.LatencyClass, Limits, time.Time) (Decision, error) {
	return Decision{}, errors.New("connection refused")
}

func TestGuard_BackendErrorFailsOpen(t *testing.T) {
	g := New(failingBackend{}, Limits{Window: time.Minute}, nil)
	assert.True(t, g.Check(context.Background(), "alice", models.ClassFast).Allowed)
}

func TestLimitsFromConfig(t *testing.T) {
	l := LimitsFromConfig(config.DefaultAssistant().Guard)
	assert.Equal(t, time.Minute, l.Window)
	assert.Equal(t, 10, l.PerUser[models.ClassFast])
	assert.Equal(t, 4, l.PerUser[models.ClassSlow])
	assert.Equal(t, 600, l.Global[models.ClassFast])
}

func TestRedisBackend_KeysShareHashSlot(t *testing.T) {
	r := NewRedisBackend(nil, "")
	userKey, globalKey := r.Keys("42", models.ClassSlow)
	assert.Equal(t, "{magabot:guard}:slow:user:42", userKey)
	assert.Equal(t, "{magabot:guard}:slow:global", globalKey)
}

func TestDecodeScriptReply(t *testing.T) {
	d, err := decodeScriptReply(0, 0)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = decodeScriptReply(1, 1500)
	require.NoError(t, err)
	assert.Equal(t, ReasonPerUser, d.Reason)
	assert.Equal(t, 1500*time.Millisecond, d.RetryAfter)

	d, err = decodeScriptReply(2, 10)
	require.NoError(t, err)
	assert.Equal(t, ReasonGlobal, d.Reason)

	_, err = decodeScriptReply(7, 0)
	assert.Error(t, err)
}
