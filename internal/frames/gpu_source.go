package frames

import (
	"context"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/GriffinCanCode/hotpath/internal/capture"
	apperr "github.com/GriffinCanCode/hotpath/internal/errors"
	"github.com/GriffinCanCode/hotpath/internal/gpu"
	"github.com/GriffinCanCode/hotpath/internal/hwbuffer"
	"github.com/GriffinCanCode/hotpath/internal/platform"
	"github.com/GriffinCanCode/hotpath/internal/rules"
)

// Capture is the slice of capture.Pipeline a GPUSource drives.
type Capture interface {
	AcquireFrameTimeout(timeout time.Duration) (capture.Frame, bool, error)
	Size() (uint32, uint32)
	Shutdown(ctx context.Context)
}

// Preprocessor is the slice of gpu.Preprocessor a GPUSource drives.
type Preprocessor interface {
	AllocateOutputBuffer(srcW, srcH uint32, mode gpu.ResizeMode) (*hwbuffer.Buffer, error)
	AllocateOCRBuffer(w, h uint32) (*hwbuffer.Buffer, error)
	ProcessExternalTexture(src gpu.External, out *hwbuffer.Buffer) (gpu.Result, error)
	ProcessROI(src gpu.External, roi gpu.ROI, out *hwbuffer.Buffer) (gpu.Result, error)
	Release()
}

var (
	_ Capture      = (*capture.Pipeline)(nil)
	_ Preprocessor = (*gpu.Preprocessor)(nil)
)

// GPUSource reads frames from the capture pipeline's external texture.
type GPUSource struct {
	capture Capture
	pre     Preprocessor
	cfg     Config

	full *hwbuffer.Buffer
	ocr  *hwbuffer.Buffer

	current gpu.External
	has     bool
	closed  bool

	closers []func()
}

// NewGPUSource allocates the detection and OCR output buffers. capture must
// already be initialized.
func NewGPUSource(c Capture, pre Preprocessor, cfg Config) (*GPUSource, error) {
	w, h := c.Size()
	if w == 0 || h == 0 {
		return nil, apperr.New(apperr.CodeNotInitialized, "capture pipeline not initialized")
	}
	full, err := pre.AllocateOutputBuffer(w, h, cfg.Mode)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "allocate frame buffer")
	}
	ocr, err := pre.AllocateOCRBuffer(cfg.OCRWidth, cfg.OCRHeight)
	if err != nil {
		full.Release()
		return nil, apperr.Wrap(err, apperr.CodeInternal, "allocate ocr buffer")
	}
	return &GPUSource{capture: c, pre: pre, cfg: cfg, full: full, ocr: ocr}, nil
}

// Next acquires the newest compositor buffer and converts it. The frame
// views the output buffer in place; a frame not yet released when Next runs
// again makes the source render into a fresh buffer.
func (s *GPUSource) Next(_ context.Context, timeout time.Duration) (Frame, bool, error) {
	f, ok, err := s.capture.AcquireFrameTimeout(timeout)
	if err != nil || !ok {
		return Frame{}, false, err
	}
	w, h := s.capture.Size()
	s.current = gpu.External{Texture: f.TextureID, Transform: f.Transform, Width: w, Height: h}
	s.has = true

	if err := s.ensureFull(); err != nil {
		return Frame{}, false, err
	}
	res, err := s.pre.ProcessExternalTexture(s.current, s.full)
	if err != nil {
		return Frame{}, false, err
	}
	defer res.Fence.Close()

	owned := hwbuffer.New(s.full.Allocator())
	owned.Wrap(s.full.Detach())
	img, err := gpu.LockedImage(owned, res.Fence, s.cfg.FenceTimeout)
	if err != nil {
		s.recycle(owned)
		return Frame{}, false, err
	}
	return Frame{
		Index:       f.Index,
		TimestampNs: f.TimestampNs,
		Image:       img,
		release:     sync.OnceFunc(func() { s.recycle(owned) }),
	}, true, nil
}

// ensureFull gives the source a frame buffer when the last one is still
// held by an unreleased frame.
func (s *GPUSource) ensureFull() error {
	if s.full.Valid() {
		return nil
	}
	w, h := s.capture.Size()
	buf, err := s.pre.AllocateOutputBuffer(w, h, s.cfg.Mode)
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "allocate frame buffer")
	}
	s.full.Wrap(buf.Detach())
	return nil
}

// recycle takes back a frame's buffer. It becomes the next render target
// when the source has none, otherwise it is freed.
func (s *GPUSource) recycle(b *hwbuffer.Buffer) {
	unlock(b)
	if s.closed || s.full.Valid() {
		b.Release()
		return
	}
	s.full.Wrap(b.Detach())
}

// Region crops roi from the current external texture. The crop views the
// OCR buffer and is valid until the next Region call.
func (s *GPUSource) Region(roi rules.ROI) (*image.RGBA, error) {
	if !s.has {
		return nil, apperr.New(apperr.CodeInvalidState, "no frame acquired")
	}
	unlock(s.ocr)
	res, err := s.pre.ProcessROI(s.current, gpuROI(roi), s.ocr)
	if err != nil {
		return nil, err
	}
	defer res.Fence.Close()
	return gpu.LockedImage(s.ocr, res.Fence, s.cfg.FenceTimeout)
}

func unlock(b *hwbuffer.Buffer) {
	fd, err := b.Unlock()
	if err != nil {
		slog.Warn("unlock frame buffer", "error", err)
		return
	}
	gpu.NewFence(fd).Close()
}

// Close releases buffers and shuts the pipeline down.
func (s *GPUSource) Close(ctx context.Context) {
	s.closed = true
	s.full.Release()
	s.ocr.Release()
	s.pre.Release()
	s.capture.Shutdown(ctx)
	for _, c := range s.closers {
		c()
	}
	s.closers = nil
}

type connector interface {
	ConnectToDisplay(ctx context.Context, token platform.Handle, srcW, srcH uint32) error
	DisconnectFromDisplay(ctx context.Context)
}

// Connect routes a virtual display into the capture pipeline. Unlike the
// other methods it may be called from any goroutine.
func (s *GPUSource) Connect(ctx context.Context, token platform.Handle, srcW, srcH uint32) error {
	c, ok := s.capture.(connector)
	if !ok {
		return apperr.New(apperr.CodeUnavailable, "capture does not support display routing")
	}
	return c.ConnectToDisplay(ctx, token, srcW, srcH)
}

// Disconnect clears the display routing.
func (s *GPUSource) Disconnect(ctx context.Context) {
	if c, ok := s.capture.(connector); ok {
		c.DisconnectFromDisplay(ctx)
	}
}
