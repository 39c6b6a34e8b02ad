// Package capture owns the buffer queue behind a virtual display and turns
// compositor output into GPU external-texture frames.
package capture

import (
	"errors"

	"github.com/GriffinCanCode/hotpath/internal/platform"
)

// ErrNoBuffer is returned by Native.UpdateTexImage when the queue holds no
// buffer yet. The pipeline reports it as "no new frame", not a failure.
var ErrNoBuffer = errors.New("capture: no buffer queued")

// Native is the platform side of the pipeline: the buffer queue, the GL
// consumer wrapping its consumer end, and the optional producer Surface.
type Native interface {
	// Load resolves entry points. It fails with CodeSymbolMissing only when
	// the queue cannot be created or the texture cannot be updated.
	Load() error

	CreateBufferQueue() (producer, consumer platform.Handle, err error)
	ReleaseQueue(producer, consumer platform.Handle)

	NewGLConsumer(consumer platform.Handle, texture uint32) (platform.Handle, error)
	ReleaseGLConsumer(glc platform.Handle)
	UpdateTexImage(glc platform.Handle) error
	TransformMatrix(glc platform.Handle) [16]float32
	Timestamp(glc platform.Handle) int64

	// SetFrameListener installs fn as the frame-available callback and
	// reports whether the platform supports it.
	SetFrameListener(glc platform.Handle, fn func()) bool
	ClearFrameListener(glc platform.Handle)

	// CanCreateSurface reports whether Surface ctor and dtor both resolved.
	CanCreateSurface() bool
	NewSurface(producer platform.Handle) (platform.Handle, error)
	DestroySurface(surface platform.Handle)

	Close() error
}

// GLContext is the slice of the GPU context the pipeline needs.
type GLContext interface {
	ValidateThread() error
	GenExternalTexture() (uint32, error)
	DeleteTexture(id uint32)
}
