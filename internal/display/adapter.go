// Package display binds a producer surface to a compositor virtual display.
package display

import (
	"context"
	"log/slog"

	apperr "github.com/GriffinCanCode/hotpath/internal/errors"
	"github.com/GriffinCanCode/hotpath/internal/platform"
	"github.com/GriffinCanCode/hotpath/internal/resilience"
)

// Rotation is the compositor's ui::Rotation.
type Rotation int32

const (
	Rotation0 Rotation = iota
	Rotation90
	Rotation180
	Rotation270
)

// Rect mirrors android::Rect (exclusive right/bottom).
type Rect struct {
	Left, Top, Right, Bottom int32
}

// SizeRect returns a rect anchored at the origin.
func SizeRect(w, h uint32) Rect { return Rect{Right: int32(w), Bottom: int32(h)} }

// Empty reports whether the rect has no area.
func (r Rect) Empty() bool { return r.Right <= r.Left || r.Bottom <= r.Top }

// Transactions is the compositor transaction API.
type Transactions interface {
	Open() (platform.Handle, error)
	SetDisplaySurface(tx, token, target platform.Handle) error
	SetDisplayProjection(tx, token platform.Handle, rot Rotation, source, dest Rect) error
	Apply(tx platform.Handle) error
	Close(tx platform.Handle)
}

// Adapter performs the bind/unbind transactions for a virtual display.
type Adapter struct {
	tx    Transactions
	retry resilience.RetryConfig
}

// NewAdapter creates an adapter. Transient apply failures are retried a few
// times with a short backoff.
func NewAdapter(tx Transactions) *Adapter {
	return &Adapter{
		tx:    tx,
		retry: resilience.TransactionRetry(),
	}
}

// Bind routes the display identified by token into target, projecting the
// full source rect onto the full destination rect.
func (a *Adapter) Bind(ctx context.Context, token, target platform.Handle, src, dst Rect) error {
	if token.IsNil() {
		return apperr.New(apperr.CodeInvalidArgument, "nil display token")
	}
	if target.IsNil() {
		return apperr.New(apperr.CodeInvalidArgument, "nil compositor target")
	}
	if src.Empty() || dst.Empty() {
		return apperr.Newf(apperr.CodeInvalidArgument, "empty projection %v -> %v", src, dst)
	}
	return a.run(ctx, func(tx platform.Handle) error {
		if err := a.tx.SetDisplaySurface(tx, token, target); err != nil {
			return err
		}
		return a.tx.SetDisplayProjection(tx, token, Rotation0, src, dst)
	})
}

// Unbind clears the display's surface binding.
func (a *Adapter) Unbind(ctx context.Context, token platform.Handle) error {
	if token.IsNil() {
		return nil
	}
	return a.run(ctx, func(tx platform.Handle) error {
		return a.tx.SetDisplaySurface(tx, token, platform.Handle{})
	})
}

// run opens a fresh transaction per attempt, fills it, and applies it.
func (a *Adapter) run(ctx context.Context, fill func(tx platform.Handle) error) error {
	return resilience.Retry(ctx, a.retry, func() error {
		tx, err := a.tx.Open()
		if err != nil {
			return apperr.Wrap(err, apperr.CodeInternal, "open transaction")
		}
		defer a.tx.Close(tx)

		if err := fill(tx); err != nil {
			return err
		}
		if err := a.tx.Apply(tx); err != nil {
			slog.Debug("transaction apply failed", "error", err)
			return err
		}
		return nil
	})
}
