package frames

import (
	"context"
	"log/slog"

	"github.com/GriffinCanCode/hotpath/internal/capture"
	"github.com/GriffinCanCode/hotpath/internal/display"
	apperr "github.com/GriffinCanCode/hotpath/internal/errors"
	"github.com/GriffinCanCode/hotpath/internal/gles"
	"github.com/GriffinCanCode/hotpath/internal/gpu"
	"github.com/GriffinCanCode/hotpath/internal/gui"
	"github.com/GriffinCanCode/hotpath/internal/hwbuffer"
	"github.com/GriffinCanCode/hotpath/internal/platform"
)

// GPUOptions configures OpenGPU.
type GPUOptions struct {
	Config
	APILevel      int
	Width         uint32
	Height        uint32
	SharedContext bool
}

// OpenGPU builds the on-device stack on the calling goroutine, which stays
// locked to its OS thread until Close: EGL context, buffer queue capture,
// NDK buffers and compute preprocessor.
func OpenGPU(o GPUOptions) (src *GPUSource, err error) {
	var undo []func()
	defer func() {
		if err != nil {
			for i := len(undo) - 1; i >= 0; i-- {
				undo[i]()
			}
		}
	}()

	drv, err := gles.Open(o.APILevel)
	if err != nil {
		return nil, err
	}
	undo = append(undo, func() { _ = drv.Close() })

	var glc *gpu.Context
	if o.SharedContext {
		glc, err = gpu.AttachContext(drv)
	} else {
		glc, err = gpu.NewContext(drv)
	}
	if err != nil {
		return nil, err
	}
	undo = append(undo, glc.Close)

	bindings, err := gui.Open(o.APILevel)
	if err != nil {
		return nil, err
	}
	pipe := capture.New(bindings, glc, display.NewAdapter(bindings.Transactions()))
	if err := pipe.Initialize(o.Width, o.Height); err != nil {
		_ = bindings.Close()
		return nil, err
	}
	undo = append(undo, func() { pipe.Shutdown(context.Background()) })

	nw, err := platform.OpenFirst(hwbuffer.NativeWindowPaths...)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeSymbolMissing, "open native window library")
	}
	undo = append(undo, func() { _ = nw.Close() })
	alloc, err := hwbuffer.NewNDKAllocator(platform.NewResolver(nw, o.APILevel))
	if err != nil {
		return nil, err
	}

	pre := gpu.NewPreprocessor(glc, alloc)
	if err := pre.Initialize(); err != nil {
		return nil, err
	}
	undo = append(undo, pre.Release)
	if !pre.SupportsExternal() {
		return nil, apperr.New(apperr.CodeInternal, "external texture kernel unavailable")
	}
	if !pre.SupportsROI() {
		slog.Warn("roi kernel unavailable, ocr regions disabled")
	}

	src, err = NewGPUSource(pipe, pre, o.Config)
	if err != nil {
		return nil, err
	}
	src.closers = []func(){glc.Close, func() { _ = nw.Close() }, func() { _ = drv.Close() }}
	return src, nil
}
