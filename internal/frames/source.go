// Package frames turns captured screens into RGBA images for the perception
// loop. GPUSource reads the compositor buffer queue through the compute
// preprocessor; HostSource decodes screenshots and runs the CPU
// preprocessor.
package frames

import (
	"context"
	"image"
	"time"

	"github.com/GriffinCanCode/hotpath/internal/gpu"
	"github.com/GriffinCanCode/hotpath/internal/rules"
)

// Frame is one preprocessed capture. Image may view a source buffer in
// place, so it must not be used after Release.
type Frame struct {
	Index       uint64
	TimestampNs int64
	Image       *image.RGBA

	release func()
}

// Release hands the frame's buffer back to its source. It must run on the
// source's goroutine and is a no-op for frames that own their pixels.
func (f Frame) Release() {
	if f.release != nil {
		f.release()
	}
}

// Source yields frames. All methods must be called from the goroutine that
// created the source.
type Source interface {
	// Next waits up to timeout for a new frame. ok is false when none
	// arrived in time.
	Next(ctx context.Context, timeout time.Duration) (f Frame, ok bool, err error)
	// Region crops roi out of the most recent frame at OCR resolution. The
	// crop may be overwritten by the next Region call.
	Region(roi rules.ROI) (*image.RGBA, error)
	Close(ctx context.Context)
}

// Config sizes the preprocessed outputs.
type Config struct {
	Mode         gpu.ResizeMode
	OCRWidth     uint32
	OCRHeight    uint32
	FenceTimeout time.Duration
}

// DefaultConfig matches the recognizer input of the bundled OCR models.
func DefaultConfig() Config {
	return Config{
		Mode:         gpu.ResizeHalf,
		OCRWidth:     320,
		OCRHeight:    48,
		FenceTimeout: 100 * time.Millisecond,
	}
}

// gpuROI converts a rule ROI, trimming float32 rounding past the frame
// edge.
func gpuROI(r rules.ROI) gpu.ROI {
	x := max(0, float64(r.X))
	y := max(0, float64(r.Y))
	return gpu.ROI{
		X: x,
		Y: y,
		W: min(float64(r.Width), 1-x),
		H: min(float64(r.Height), 1-y),
	}
}

// identity is the column-major identity transform.
var identity = [16]float32{
	1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, 1, 0,
	0, 0, 0, 1,
}
