// Package resilience guards calls that leave the process: a circuit breaker
// for per-frame inference calls and retry with backoff for setup calls.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	apperr "github.com/GriffinCanCode/hotpath/internal/errors"
)

// State is a breaker position.
type State uint32

const (
	Closed State = iota
	Open
	HalfOpen
)

var stateNames = [...]string{Closed: "closed", Open: "open", HalfOpen: "half-open"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// ErrOpen is the cause of every rejection.
var ErrOpen = errors.New("circuit open")

// Counts is a snapshot of breaker counters.
type Counts struct {
	State    State  `json:"state"`
	Failures int32  `json:"failures"`
	Trials   int32  `json:"trials"`
	Rejected uint64 `json:"rejected"`
}

// Breaker opens after Threshold consecutive failures, rejects calls for
// Cooldown, then admits callers half-open until TrialSuccess of them succeed.
// A failure while half-open reopens it.
type Breaker struct {
	name     string
	cfg      BreakerConfig
	now      func() time.Time
	onChange func(from, to State)

	state    atomic.Uint32
	failures atomic.Int32
	trials   atomic.Int32
	rejected atomic.Uint64
	openedAt atomic.Int64 // unix nanos
}

// New creates a closed breaker.
func New(name string, cfg BreakerConfig) *Breaker {
	return &Breaker{name: name, cfg: cfg.withDefaults(), now: time.Now}
}

// WithHook registers fn to run after every state change.
func (b *Breaker) WithHook(fn func(from, to State)) *Breaker {
	b.onChange = fn
	return b
}

func (b *Breaker) Name() string { return b.name }

func (b *Breaker) State() State { return State(b.state.Load()) }

// Allow admits or rejects one call. Rejections are CodeUnavailable errors
// wrapping ErrOpen.
func (b *Breaker) Allow() error {
	if b.State() != Open {
		return nil
	}
	if b.now().Sub(time.Unix(0, b.openedAt.Load())) < b.cfg.Cooldown {
		b.rejected.Add(1)
		return apperr.Wrapf(ErrOpen, apperr.CodeUnavailable, "%s circuit open", b.name).
			WithMetadata("breaker", b.name)
	}
	if b.state.CompareAndSwap(uint32(Open), uint32(HalfOpen)) {
		b.trials.Store(0)
		b.changed(Open, HalfOpen)
	}
	return nil
}

// Success records a completed call.
func (b *Breaker) Success() {
	switch b.State() {
	case Closed:
		b.failures.Store(0)
	case HalfOpen:
		if b.trials.Add(1) >= int32(b.cfg.TrialSuccess) {
			b.moveTo(Closed)
		}
	}
}

// Failure records a failed call.
func (b *Breaker) Failure() {
	switch b.State() {
	case Closed:
		if b.failures.Add(1) >= int32(b.cfg.Threshold) {
			b.moveTo(Open)
		}
	case HalfOpen:
		b.moveTo(Open)
	}
}

// Reset closes the breaker.
func (b *Breaker) Reset() { b.moveTo(Closed) }

func (b *Breaker) Counts() Counts {
	return Counts{
		State:    b.State(),
		Failures: b.failures.Load(),
		Trials:   b.trials.Load(),
		Rejected: b.rejected.Load(),
	}
}

// Execute runs fn if the breaker admits it. A failure caused by ctx ending
// is not held against the callee.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := b.Allow(); err != nil {
		return err
	}
	err := fn(ctx)
	switch {
	case err == nil:
		b.Success()
	case ctx.Err() == nil:
		b.Failure()
	}
	return err
}

func (b *Breaker) moveTo(to State) {
	if to == Open {
		// Set before publishing Open so Allow never sees a stale timestamp.
		b.openedAt.Store(b.now().UnixNano())
	}
	from := State(b.state.Swap(uint32(to)))
	if from == to {
		return
	}
	failures := b.failures.Load()
	b.failures.Store(0)
	b.trials.Store(0)
	if to == Open {
		slog.Warn("circuit opened", "breaker", b.name, "failures", failures, "cooldown", b.cfg.Cooldown)
	}
	b.changed(from, to)
}

func (b *Breaker) changed(from, to State) {
	slog.Debug("circuit state", "breaker", b.name, "from", from, "to", to)
	if b.onChange != nil {
		b.onChange(from, to)
	}
}
