package resilience

import (
	"math/rand/v2"
	"time"

	apperr "github.com/GriffinCanCode/hotpath/internal/errors"
)

// BreakerConfig tunes a Breaker.
type BreakerConfig struct {
	Threshold    int           // consecutive failures that open the circuit
	Cooldown     time.Duration // time spent open before a trial call is admitted
	TrialSuccess int           // half-open successes needed to close
}

const (
	defaultThreshold    = 5
	defaultCooldown     = 30 * time.Second
	defaultTrialSuccess = 3
)

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.Threshold <= 0 {
		c.Threshold = defaultThreshold
	}
	if c.Cooldown <= 0 {
		c.Cooldown = defaultCooldown
	}
	if c.TrialSuccess <= 0 {
		c.TrialSuccess = defaultTrialSuccess
	}
	return c
}

// Backoff doubles from Base up to Max. Jitter spreads each delay by up to
// ±Jitter/2 of itself; zero gives a fixed schedule.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64
}

// Delay returns the wait before retry number attempt (0-based).
func (b Backoff) Delay(attempt int) time.Duration {
	d := b.Base << min(max(attempt, 0), 30)
	if d > b.Max || d <= 0 {
		d = b.Max
	}
	if b.Jitter > 0 {
		d += time.Duration(float64(d) * b.Jitter * (rand.Float64() - 0.5))
	}
	return d
}

// RetryConfig tunes Retry. Attempts counts the first call.
type RetryConfig struct {
	Attempts  int
	Backoff   Backoff
	Retryable func(error) bool
}

func (c RetryConfig) withDefaults() RetryConfig {
	c.Attempts = max(c.Attempts, 1)
	if c.Backoff.Base <= 0 {
		c.Backoff.Base = 100 * time.Millisecond
	}
	c.Backoff.Max = max(c.Backoff.Max, c.Backoff.Base)
	c.Backoff.Jitter = min(max(c.Backoff.Jitter, 0), 1)
	if c.Retryable == nil {
		c.Retryable = IsTransient
	}
	return c
}

// Tuning for the inference sidecar and compositor transactions.
const (
	InferenceThreshold    = 3
	InferenceCooldown     = 5 * time.Second
	InferenceTrialSuccess = 2

	ModelLoadAttempts = 6
	TransactionTries  = 3
)

// InferenceBreaker fails per-frame sidecar calls fast so a stalled sidecar
// cannot hold up the frame loop.
func InferenceBreaker() BreakerConfig {
	return BreakerConfig{
		Threshold:    InferenceThreshold,
		Cooldown:     InferenceCooldown,
		TrialSuccess: InferenceTrialSuccess,
	}
}

// ModelLoadRetry waits out a sidecar that is still starting up.
func ModelLoadRetry() RetryConfig {
	return RetryConfig{
		Attempts:  ModelLoadAttempts,
		Backoff:   Backoff{Base: 500 * time.Millisecond, Max: 10 * time.Second, Jitter: 0.2},
		Retryable: IsTransient,
	}
}

// TransactionRetry re-applies a display transaction the compositor turned
// away with a transient status.
func TransactionRetry() RetryConfig {
	return RetryConfig{
		Attempts:  TransactionTries,
		Backoff:   Backoff{Base: 2 * time.Millisecond, Max: 20 * time.Millisecond, Jitter: 0.2},
		Retryable: apperr.IsRetryable,
	}
}
