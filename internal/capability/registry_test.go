package capability

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"magabot/internal/models"
)

func blockUntilDone(ctx context.Context, _ models.Payload) (*models.Result, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func echo(text string) Handler {
	return func(ctx context.Context, p models.Payload) (*models.Result, error) {
		return &models.Result{Text: text + ":" + p.Text}, nil
	}
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *recordingObserver) ObserveInvocation(kind models.CapabilityKind, outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, string(kind)+"/"+outcome)
}

func TestRegistry_Register(t *testing.T) {
	reg := NewRegistry(nil, nil)

	if err := reg.Register(Spec{Kind: "teleport", Primary: echo("x")}); err == nil {
		t.Error("expected error for kind outside the closed set")
	}
	if err := reg.Register(Spec{Kind: models.CapOCR}); err == nil {
		t.Error("expected error for missing primary handler")
	}
	if err := reg.Register(Spec{Kind: models.CapOCR, Primary: echo("ocr")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := reg.Register(Spec{Kind: models.CapOCR, Primary: echo("ocr")}); err == nil {
		t.Error("expected error for duplicate registration")
	}
	if reg.Count() != 1 {
		t.Errorf("expected 1 capability, got %d", reg.Count())
	}
	if reg.Class(models.CapOCR) != models.ClassFast {
		t.Errorf("unset class should default to fast, got %s", reg.Class(models.CapOCR))
	}
}

func TestRegistry_InvokeUnavailable(t *testing.T) {
	reg := NewRegistry(nil, nil)

	_, err := reg.Invoke(context.Background(), models.Invocation{Kind: models.CapJobSearch})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if CategoryOf(err) != CategoryUnavailable {
		t.Errorf("expected unavailable category, got %s", CategoryOf(err))
	}
}

func TestRegistry_InvokeSuccess(t *testing.T) {
	obs := &recordingObserver{}
	reg := NewRegistry(nil, obs)
	_ = reg.Register(Spec{Kind: models.CapTextGenerate, Primary: echo("primary"), Fallback: echo("fallback")})

	res, err := reg.Invoke(context.Background(), models.Invocation{
		Kind:    models.CapTextGenerate,
		Payload: models.Payload{Text: "hi"},
		Timeout: time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != "primary:hi" {
		t.Errorf("expected primary result, got %q", res.Text)
	}
	if len(obs.outcomes) != 1 || obs.outcomes[0] != "text-generate/success" {
		t.Errorf("unexpected observations: %v", obs.outcomes)
	}
}

func TestRegistry_TimeoutRetriesFallbackOnce(t *testing.T) {
	var fallbackPayload string
	reg := NewRegistry(nil, nil)
	_ = reg.Register(Spec{
		Kind:    models.CapJobSearch,
		Primary: blockUntilDone,
		Fallback: func(ctx context.Context, p models.Payload) (*models.Result, error) {
			fallbackPayload = p.Text
			return &models.Result{Text: "from fallback"}, nil
		},
	})

	res, err := reg.Invoke(context.Background(), models.Invocation{
		Kind:    models.CapJobSearch,
		Payload: models.Payload{Text: "golang"},
		Timeout: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != "from fallback" {
		t.Errorf("expected fallback result, got %q", res.Text)
	}
	if fallbackPayload != "golang" {
		t.Errorf("fallback must receive the same payload, got %q", fallbackPayload)
	}
}

func TestRegistry_PrimaryAndFallbackTimeout(t *testing.T) {
	var calls atomic.Int32
	counting := func(ctx context.Context, p models.Payload) (*models.Result, error) {
		calls.Add(1)
		return blockUntilDone(ctx, p)
	}

	reg := NewRegistry(nil, nil)
	_ = reg.Register(Spec{Kind: models.CapJobSearch, Primary: counting, Fallback: counting})

	_, err := reg.Invoke(context.Background(), models.Invocation{Kind: models.CapJobSearch, Timeout: 20 * time.Millisecond})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected exactly 2 handler calls (primary + one fallback), got %d", calls.Load())
	}

	var capErr *Error
	if !errors.As(err, &capErr) || capErr.Attempts != 2 {
		t.Errorf("expected 2 recorded attempts, got %+v", capErr)
	}
}

func TestRegistry_TimeoutWithoutFallback(t *testing.T) {
	reg := NewRegistry(nil, nil)
	_ = reg.Register(Spec{Kind: models.CapOCR, Primary: blockUntilDone, Timeout: 20 * time.Millisecond})

	_, err := reg.Invoke(context.Background(), models.Invocation{Kind: models.CapOCR})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout from declared timeout, got %v", err)
	}
}

func TestRegistry_HandlerIgnoringContextStillTimesOut(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	reg := NewRegistry(nil, nil)
	_ = reg.Register(Spec{Kind: models.CapOCR, Primary: func(ctx context.Context, p models.Payload) (*models.Result, error) {
		<-release
		return &models.Result{}, nil
	}})

	start := time.Now()
	_, err := reg.Invoke(context.Background(), models.Invocation{Kind: models.CapOCR, Timeout: 30 * time.Millisecond})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("invoke should return at the timeout, not when the handler finishes")
	}
}

func TestRegistry_NonTimeoutErrorIsNotRetried(t *testing.T) {
	var fallbackCalled atomic.Bool
	reg := NewRegistry(nil, nil)
	_ = reg.Register(Spec{
		Kind: models.CapApply,
		Primary: func(ctx context.Context, p models.Payload) (*models.Result, error) {
			return nil, errors.New("form rejected")
		},
		Fallback: func(ctx context.Context, p models.Payload) (*models.Result, error) {
			fallbackCalled.Store(true)
			return &models.Result{}, nil
		},
	})

	_, err := reg.Invoke(context.Background(), models.Invocation{Kind: models.CapApply, Timeout: time.Second})
	if !errors.Is(err, ErrFailed) {
		t.Fatalf("expected ErrFailed, got %v", err)
	}
	if fallbackCalled.Load() {
		t.Error("fallback must only be used on timeout")
	}
}

func TestRegistry_CancelledContext(t *testing.T) {
	reg := NewRegistry(nil, nil)
	_ = reg.Register(Spec{Kind: models.CapApply, Primary: blockUntilDone, Fallback: blockUntilDone})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := reg.Invoke(ctx, models.Invocation{Kind: models.CapApply, Timeout: time.Second})
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
}

func TestRegistry_PanicBecomesFailure(t *testing.T) {
	reg := NewRegistry(nil, nil)
	_ = reg.Register(Spec{Kind: models.CapFinalize, Primary: func(ctx context.Context, p models.Payload) (*models.Result, error) {
		panic("boom")
	}})

	_, err := reg.Invoke(context.Background(), models.Invocation{Kind: models.CapFinalize, Timeout: time.Second})
	if !errors.Is(err, ErrFailed) {
		t.Fatalf("expected ErrFailed after panic, got %v", err)
	}
}

func TestRegistry_OpenCircuitGoesToFallback(t *testing.T) {
	var primaryCalls atomic.Int32
	reg := NewRegistry(NewCircuitBreaker(2, time.Hour), nil)
	_ = reg.Register(Spec{
		Kind: models.CapTextGenerate,
		Primary: func(ctx context.Context, p models.Payload) (*models.Result, error) {
			primaryCalls.Add(1)
			return nil, errors.New("503 upstream")
		},
		Fallback: echo("fallback"),
	})

	inv := models.Invocation{Kind: models.CapTextGenerate, Timeout: time.Second}
	for i := 0; i < 2; i++ {
		if _, err := reg.Invoke(context.Background(), inv); !errors.Is(err, ErrFailed) {
			t.Fatalf("call %d: expected ErrFailed, got %v", i, err)
		}
	}

	res, err := reg.Invoke(context.Background(), inv)
	if err != nil {
		t.Fatalf("expected fallback success once circuit is open, got %v", err)
	}
	if res.Text != "fallback:" {
		t.Errorf("unexpected result %q", res.Text)
	}
	if primaryCalls.Load() != 2 {
		t.Errorf("primary should be skipped while tripped, called %d times", primaryCalls.Load())
	}
}
