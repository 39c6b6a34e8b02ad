package resilience

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	apperr "github.com/GriffinCanCode/hotpath/internal/errors"
)

// Retry calls fn until it succeeds, fails with an error cfg.Retryable
// rejects, or runs out of attempts. It returns the last error, or ctx's
// error if ctx ends while waiting.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	cfg = cfg.withDefaults()
	var err error
	for attempt := range cfg.Attempts {
		if attempt > 0 {
			d := cfg.Backoff.Delay(attempt - 1)
			slog.Debug("retrying", "attempt", attempt+1, "of", cfg.Attempts, "delay", d, "error", err)
			if werr := wait(ctx, d); werr != nil {
				return werr
			}
		} else if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if err = fn(); err == nil || !cfg.Retryable(err) {
			return err
		}
	}
	return err
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// IsTransient reports whether err is a retryable AppError or one of the
// gRPC statuses a restarting sidecar produces. Context errors never are.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var ae *apperr.AppError
	if errors.As(err, &ae) {
		return apperr.IsRetryable(ae)
	}
	s, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch s.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return true
	}
	return false
}
