package frames

import (
	"bytes"
	"context"
	"image"
	_ "image/jpeg" // screencapture fallbacks
	_ "image/png"
	"time"

	apperr "github.com/GriffinCanCode/hotpath/internal/errors"
	"github.com/GriffinCanCode/hotpath/internal/gpu"
	"github.com/GriffinCanCode/hotpath/internal/hwbuffer"
	"github.com/GriffinCanCode/hotpath/internal/rules"
	"github.com/GriffinCanCode/hotpath/internal/screen"
)

// HostPollInterval is how often HostSource re-runs the screenshot tool.
const HostPollInterval = 250 * time.Millisecond

// HostSource polls a screen.Capturer and runs the CPU preprocessor.
type HostSource struct {
	capturer screen.Capturer
	pre      *gpu.CPUPreprocessor
	cfg      Config
	poll     time.Duration

	in    *hwbuffer.Buffer
	full  *hwbuffer.Buffer
	ocr   *hwbuffer.Buffer
	index uint64
	now   func() time.Time
}

// NewHostSource wraps c. Buffers are sized on the first frame.
func NewHostSource(c screen.Capturer, alloc hwbuffer.Allocator, cfg Config) (*HostSource, error) {
	pre := gpu.NewCPUPreprocessor(alloc)
	ocr, err := pre.AllocateOCRBuffer(cfg.OCRWidth, cfg.OCRHeight)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "allocate ocr buffer")
	}
	return &HostSource{
		capturer: c,
		pre:      pre,
		cfg:      cfg,
		poll:     HostPollInterval,
		in:       hwbuffer.New(alloc),
		full:     hwbuffer.New(alloc),
		ocr:      ocr,
		now:      time.Now,
	}, nil
}

// Next captures until the screen changes or timeout elapses.
func (s *HostSource) Next(ctx context.Context, timeout time.Duration) (Frame, bool, error) {
	deadline := s.now().Add(timeout)
	for {
		data, changed, err := s.capturer.Capture(ctx)
		if err != nil {
			return Frame{}, false, err
		}
		if changed {
			return s.decode(data)
		}
		remaining := deadline.Sub(s.now())
		if remaining <= 0 {
			return Frame{}, false, nil
		}
		select {
		case <-ctx.Done():
			return Frame{}, false, ctx.Err()
		case <-time.After(min(s.poll, remaining)):
		}
	}
}

func (s *HostSource) decode(data []byte) (Frame, bool, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Frame{}, false, apperr.Wrap(err, apperr.CodeInternal, "decode screenshot")
	}
	if err := s.ensureBuffers(img.Bounds().Dx(), img.Bounds().Dy()); err != nil {
		return Frame{}, false, err
	}
	if err := gpu.FillBuffer(s.in, img); err != nil {
		return Frame{}, false, err
	}
	res, err := s.pre.ProcessTransformed(s.in, identity, s.full)
	if err != nil {
		return Frame{}, false, err
	}
	out, err := gpu.BufferImage(res.Output, res.Fence, s.cfg.FenceTimeout)
	if err != nil {
		return Frame{}, false, err
	}
	s.index++
	return Frame{Index: s.index, TimestampNs: s.now().UnixNano(), Image: out}, true, nil
}

// ensureBuffers reallocates the input and frame buffers when the screen
// size changes.
func (s *HostSource) ensureBuffers(w, h int) error {
	if w <= 0 || h <= 0 {
		return apperr.Newf(apperr.CodeInvalidArgument, "screenshot %dx%d", w, h)
	}
	d := s.in.Desc()
	if s.in.Valid() && d.Width == uint32(w) && d.Height == uint32(h) {
		return nil
	}
	s.in.Release()
	s.full.Release()
	if err := s.in.Allocate(uint32(w), uint32(h), hwbuffer.FormatRGBA8888, hwbuffer.UsageCPUReadOften|hwbuffer.UsageCPUWriteOften); err != nil {
		return err
	}
	full, err := s.pre.AllocateOutputBuffer(uint32(w), uint32(h), s.cfg.Mode)
	if err != nil {
		return err
	}
	s.full = full
	return nil
}

// Region crops roi from the last screenshot.
func (s *HostSource) Region(roi rules.ROI) (*image.RGBA, error) {
	if !s.in.Valid() {
		return nil, apperr.New(apperr.CodeInvalidState, "no frame captured")
	}
	res, err := s.pre.ProcessROI(s.in, identity, gpuROI(roi), s.ocr)
	if err != nil {
		return nil, err
	}
	return gpu.BufferImage(res.Output, res.Fence, s.cfg.FenceTimeout)
}

// Close releases buffers and the capturer.
func (s *HostSource) Close(context.Context) {
	s.in.Release()
	s.full.Release()
	s.ocr.Release()
	s.capturer.Close()
}
