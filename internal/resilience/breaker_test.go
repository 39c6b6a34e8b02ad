package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	apperr "github.com/GriffinCanCode/hotpath/internal/errors"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(cfg BreakerConfig) (*Breaker, *clock) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	b := New("detect", cfg)
	b.now = c.now
	return b, c
}

func TestBreakerStartsClosed(t *testing.T) {
	b := New("detect", BreakerConfig{})
	if b.State() != Closed {
		t.Errorf("State() = %v, want closed", b.State())
	}
	if b.cfg.Threshold != defaultThreshold || b.cfg.Cooldown != defaultCooldown || b.cfg.TrialSuccess != defaultTrialSuccess {
		t.Errorf("zero config not defaulted: %+v", b.cfg)
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{Threshold: 3, Cooldown: time.Second, TrialSuccess: 1})

	b.Failure()
	b.Failure()
	b.Success()
	b.Failure()
	b.Failure()
	if b.State() != Closed {
		t.Fatalf("State() = %v, want closed: a success resets the run", b.State())
	}
	b.Failure()
	if b.State() != Open {
		t.Errorf("State() = %v, want open", b.State())
	}
}

func TestBreakerRejectsDuringCooldown(t *testing.T) {
	b, c := newTestBreaker(BreakerConfig{Threshold: 1, Cooldown: time.Second, TrialSuccess: 1})
	b.Failure()

	c.advance(999 * time.Millisecond)
	err := b.Allow()
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("Allow() = %v, want ErrOpen", err)
	}
	if !apperr.IsCode(err, apperr.CodeUnavailable) {
		t.Errorf("Allow() code = %v, want unavailable", err)
	}
	if got := b.Counts().Rejected; got != 1 {
		t.Errorf("Rejected = %d, want 1", got)
	}
}

func TestBreakerTrialsThenCloses(t *testing.T) {
	b, c := newTestBreaker(BreakerConfig{Threshold: 1, Cooldown: time.Second, TrialSuccess: 2})
	b.Failure()
	c.advance(time.Second)

	if err := b.Allow(); err != nil {
		t.Fatalf("Allow() after cooldown = %v", err)
	}
	if b.State() != HalfOpen {
		t.Fatalf("State() = %v, want half-open", b.State())
	}
	b.Success()
	if b.State() != HalfOpen {
		t.Fatalf("State() = %v after one trial, want half-open", b.State())
	}
	b.Success()
	if b.State() != Closed {
		t.Errorf("State() = %v, want closed", b.State())
	}
}

func TestBreakerReopensOnFailedTrial(t *testing.T) {
	b, c := newTestBreaker(BreakerConfig{Threshold: 1, Cooldown: time.Second, TrialSuccess: 3})
	b.Failure()
	c.advance(time.Second)
	_ = b.Allow()

	b.Failure()
	if b.State() != Open {
		t.Fatalf("State() = %v, want open", b.State())
	}
	if err := b.Allow(); !errors.Is(err, ErrOpen) {
		t.Errorf("Allow() right after reopening = %v, want ErrOpen", err)
	}
}

func TestBreakerExecute(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{Threshold: 2, Cooldown: time.Hour, TrialSuccess: 1})
	ctx := context.Background()

	if err := b.Execute(ctx, func(context.Context) error { return nil }); err != nil {
		t.Errorf("Execute success = %v", err)
	}

	sidecarErr := errors.New("sidecar gone")
	for i := 0; i < 2; i++ {
		if err := b.Execute(ctx, func(context.Context) error { return sidecarErr }); !errors.Is(err, sidecarErr) {
			t.Errorf("Execute failure = %v, want %v", err, sidecarErr)
		}
	}

	called := false
	err := b.Execute(ctx, func(context.Context) error { called = true; return nil })
	if !errors.Is(err, ErrOpen) || called {
		t.Errorf("Execute while open = %v (called=%v), want ErrOpen without a call", err, called)
	}
}

func TestBreakerIgnoresCancelledCalls(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{Threshold: 1, Cooldown: time.Hour, TrialSuccess: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Execute(ctx, func(ctx context.Context) error { return ctx.Err() })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Execute = %v, want context.Canceled", err)
	}
	if b.State() != Closed {
		t.Errorf("State() = %v, want closed", b.State())
	}
}

func TestBreakerHook(t *testing.T) {
	b, c := newTestBreaker(BreakerConfig{Threshold: 1, Cooldown: time.Second, TrialSuccess: 1})
	var seen []State
	b.WithHook(func(_, to State) { seen = append(seen, to) })

	b.Failure()
	c.advance(time.Second)
	_ = b.Allow()
	b.Success()

	want := []State{Open, HalfOpen, Closed}
	if len(seen) != len(want) {
		t.Fatalf("transitions = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("transition %d = %v, want %v", i, seen[i], want[i])
		}
	}
}

func TestBreakerReset(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{Threshold: 1, Cooldown: time.Hour, TrialSuccess: 1})
	b.Failure()
	b.Reset()
	if b.State() != Closed {
		t.Errorf("State() = %v, want closed", b.State())
	}
	if err := b.Allow(); err != nil {
		t.Errorf("Allow() after reset = %v", err)
	}
}

func TestBreakerConcurrentUse(t *testing.T) {
	b := New("recognize", BreakerConfig{Threshold: 100, Cooldown: time.Second, TrialSuccess: 10})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = b.Allow()
				if (i+j)%2 == 0 {
					b.Success()
				} else {
					b.Failure()
				}
			}
		}(i)
	}
	wg.Wait()
	_ = b.Counts()
}

func TestStateString(t *testing.T) {
	tests := map[State]string{Closed: "closed", Open: "open", HalfOpen: "half-open", State(9): "unknown"}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}
