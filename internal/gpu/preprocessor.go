package gpu

import (
	"log/slog"
	"time"

	apperr "github.com/GriffinCanCode/hotpath/internal/errors"
	"github.com/GriffinCanCode/hotpath/internal/hwbuffer"
)

// Result is one preprocessed buffer. Output is borrowed from the caller;
// Fence is owned by the caller and nil when the driver could only flush.
type Result struct {
	Output      *hwbuffer.Buffer
	Fence       *Fence
	Width       uint32
	Height      uint32
	ProcessTime time.Duration
}

// External is a frame held in a GL external texture.
type External struct {
	Texture   uint32
	Transform [16]float32 // column-major
	Width     uint32
	Height    uint32
}

// Preprocessor runs the compute kernels. All calls must come from the
// context's thread.
type Preprocessor struct {
	ctx   *Context
	alloc hwbuffer.Allocator

	regular  *kernel
	external *kernel
	roi      *kernel

	now func() time.Time
}

// NewPreprocessor creates a preprocessor on ctx allocating from alloc.
func NewPreprocessor(ctx *Context, alloc hwbuffer.Allocator) *Preprocessor {
	return &Preprocessor{
		ctx:      ctx,
		alloc:    alloc,
		regular:  newKernel("regular", regularShader),
		external: newKernel("external", externalShader),
		roi:      newKernel("roi", roiShader),
		now:      time.Now,
	}
}

// Initialize compiles the regular kernel, which every mode needs. The
// external and ROI kernels compile on first use.
func (p *Preprocessor) Initialize() error {
	if err := p.ctx.ValidateThread(); err != nil {
		return err
	}
	if _, err := p.regular.program(p.ctx.drv); err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "compile regular kernel")
	}
	return nil
}

// SupportsExternal reports whether the external-texture kernel compiles.
func (p *Preprocessor) SupportsExternal() bool {
	_, err := p.external.program(p.ctx.drv)
	return err == nil
}

// SupportsROI reports whether the ROI kernel compiles.
func (p *Preprocessor) SupportsROI() bool {
	_, err := p.roi.program(p.ctx.drv)
	return err == nil
}

// AllocateOutputBuffer allocates an RGBA buffer sized for mode over a
// srcW×srcH input.
func (p *Preprocessor) AllocateOutputBuffer(srcW, srcH uint32, mode ResizeMode) (*hwbuffer.Buffer, error) {
	w, h := mode.OutputSize(srcW, srcH)
	return allocateOutput(p.alloc, w, h)
}

// AllocateOCRBuffer allocates an RGBA buffer of exactly w×h.
func (p *Preprocessor) AllocateOCRBuffer(w, h uint32) (*hwbuffer.Buffer, error) {
	return allocateOutput(p.alloc, w, h)
}

func allocateOutput(alloc hwbuffer.Allocator, w, h uint32) (*hwbuffer.Buffer, error) {
	b := hwbuffer.New(alloc)
	if err := b.Allocate(w, h, hwbuffer.FormatRGBA8888, hwbuffer.ComputeOutputUsage); err != nil {
		return nil, err
	}
	return b, nil
}

// Process converts a standalone buffer into out, downscaling by mode.
func (p *Preprocessor) Process(in, out *hwbuffer.Buffer, mode ResizeMode) (Result, error) {
	start := p.now()
	if err := p.check(out); err != nil {
		return Result{}, err
	}
	if !in.Valid() {
		return Result{}, apperr.New(apperr.CodeInvalidArgument, "input buffer not allocated")
	}
	prog, err := p.regular.program(p.ctx.drv)
	if err != nil {
		return Result{}, apperr.Wrap(err, apperr.CodeNotInitialized, "regular kernel")
	}

	inDesc := in.Desc()
	outDesc := out.Desc()
	inTex, err := p.importTexture(in, false)
	if err != nil {
		return Result{}, err
	}
	defer p.ctx.drv.DeleteTexture(inTex)

	drv := p.ctx.drv
	drv.UseProgram(prog)
	drv.BindTexture(0, Texture2D, inTex)
	drv.UniformFloat(prog, "uInputSize", float32(inDesc.Width), float32(inDesc.Height))
	drv.UniformFloat(prog, "uResizeFactor", float32(mode.Factor()))
	return p.dispatch(prog, out, outDesc, start)
}

// ProcessExternalTexture samples the capture texture through its transform
// into out.
func (p *Preprocessor) ProcessExternalTexture(src External, out *hwbuffer.Buffer) (Result, error) {
	start := p.now()
	if err := p.check(out); err != nil {
		return Result{}, err
	}
	if src.Texture == 0 {
		return Result{}, apperr.New(apperr.CodeInvalidArgument, "no external texture")
	}
	prog, err := p.external.program(p.ctx.drv)
	if err != nil {
		return Result{}, apperr.Wrap(err, apperr.CodeNotInitialized, "external kernel unavailable")
	}

	drv := p.ctx.drv
	drv.UseProgram(prog)
	drv.BindTexture(0, TextureExternalOES, src.Texture)
	drv.UniformMatrix4(prog, "uTransform", src.Transform)
	return p.dispatch(prog, out, out.Desc(), start)
}

// ProcessROI crops roi out of the capture texture into out, letterboxing
// with mid-gray when the aspect ratios differ.
func (p *Preprocessor) ProcessROI(src External, roi ROI, out *hwbuffer.Buffer) (Result, error) {
	start := p.now()
	if err := p.check(out); err != nil {
		return Result{}, err
	}
	if err := roi.Validate(); err != nil {
		return Result{}, err
	}
	if src.Texture == 0 || src.Width == 0 || src.Height == 0 {
		return Result{}, apperr.New(apperr.CodeInvalidArgument, "no external texture")
	}
	prog, err := p.roi.program(p.ctx.drv)
	if err != nil {
		return Result{}, apperr.Wrap(err, apperr.CodeNotInitialized, "roi kernel unavailable")
	}

	outDesc := out.Desc()
	c := Letterbox(ROIAspect(roi, src.Width, src.Height), outDesc.Width, outDesc.Height)

	drv := p.ctx.drv
	drv.UseProgram(prog)
	drv.BindTexture(0, TextureExternalOES, src.Texture)
	drv.UniformMatrix4(prog, "uTransform", src.Transform)
	drv.UniformFloat(prog, "uROI", float32(roi.X), float32(roi.Y), float32(roi.W), float32(roi.H))
	drv.UniformFloat(prog, "uContent", float32(c.OffsetX), float32(c.OffsetY), float32(c.ScaleX), float32(c.ScaleY))
	return p.dispatch(prog, out, outDesc, start)
}

func (p *Preprocessor) check(out *hwbuffer.Buffer) error {
	if err := p.ctx.ValidateThread(); err != nil {
		return err
	}
	if out == nil || !out.Valid() {
		return apperr.New(apperr.CodeInvalidArgument, "output buffer not allocated")
	}
	return nil
}

// scratchUnit is used for image imports so unit 0 keeps the sampled input.
const scratchUnit = 1

// importTexture binds buffer storage to a fresh texture through a transient
// EGLImage. The texture keeps the buffer alive; the image is destroyed here.
func (p *Preprocessor) importTexture(b *hwbuffer.Buffer, storage bool) (uint32, error) {
	drv := p.ctx.drv
	img, err := drv.CreateImage(b.Handle())
	if err != nil {
		return 0, apperr.Wrap(err, apperr.CodeInternal, "create egl image")
	}
	defer drv.DestroyImage(img)

	tex, err := drv.GenTexture(Texture2D)
	if err != nil {
		return 0, apperr.Wrap(err, apperr.CodeInternal, "gen texture")
	}
	drv.BindTexture(scratchUnit, Texture2D, tex)
	if err := drv.ImageTexture(Texture2D, img, storage); err != nil {
		drv.DeleteTexture(tex)
		return 0, apperr.Wrap(err, apperr.CodeInternal, "bind egl image")
	}
	return tex, nil
}

func (p *Preprocessor) dispatch(prog uint32, out *hwbuffer.Buffer, desc hwbuffer.Desc, start time.Time) (Result, error) {
	drv := p.ctx.drv
	outTex, err := p.importTexture(out, true)
	if err != nil {
		return Result{}, err
	}
	defer drv.DeleteTexture(outTex)

	drv.UseProgram(prog)
	drv.BindImageTexture(0, outTex, WriteOnly, FormatRGBA8)
	drv.UniformInt(prog, "uOutputSize", int32(desc.Width), int32(desc.Height))
	drv.Dispatch(groups(desc.Width), groups(desc.Height), 1)
	drv.MemoryBarrier(ShaderImageAccessBarrierBit)

	return Result{
		Output:      out,
		Fence:       p.exportFence(),
		Width:       desc.Width,
		Height:      desc.Height,
		ProcessTime: p.now().Sub(start),
	}, nil
}

// exportFence returns a native fence for the queued work, or nil after a
// plain flush when native fences are unavailable.
func (p *Preprocessor) exportFence() *Fence {
	drv := p.ctx.drv
	if drv.NativeFence() {
		fd, err := drv.ExportFence()
		if err == nil && fd >= 0 {
			return NewFence(fd)
		}
		slog.Debug("native fence export failed, flushing", "error", err)
	}
	drv.Flush()
	return nil
}

// Release deletes compiled programs.
func (p *Preprocessor) Release() {
	for _, k := range []*kernel{p.regular, p.external, p.roi} {
		k.release(p.ctx.drv)
	}
}
