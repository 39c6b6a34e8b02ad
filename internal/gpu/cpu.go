package gpu

import (
	"image"
	"image/color"
	"time"

	"golang.org/x/image/draw"
	"gonum.org/v1/gonum/mat"

	apperr "github.com/GriffinCanCode/hotpath/internal/errors"
	"github.com/GriffinCanCode/hotpath/internal/hwbuffer"
)

// midGray is the letterbox padding, the 8-bit rendering of 0.5.
var midGray = color.RGBA{R: 128, G: 128, B: 128, A: 255}

// CPUPreprocessor mirrors Preprocessor on CPU-mapped buffers. It serves
// hosts without GLES and returns results without fences.
type CPUPreprocessor struct {
	alloc hwbuffer.Allocator
	now   func() time.Time
}

// NewCPUPreprocessor creates a CPU preprocessor allocating from alloc.
func NewCPUPreprocessor(alloc hwbuffer.Allocator) *CPUPreprocessor {
	return &CPUPreprocessor{alloc: alloc, now: time.Now}
}

// AllocateOutputBuffer allocates an RGBA buffer sized for mode.
func (c *CPUPreprocessor) AllocateOutputBuffer(srcW, srcH uint32, mode ResizeMode) (*hwbuffer.Buffer, error) {
	w, h := mode.OutputSize(srcW, srcH)
	return allocateOutput(c.alloc, w, h)
}

// AllocateOCRBuffer allocates an RGBA buffer of exactly w×h.
func (c *CPUPreprocessor) AllocateOCRBuffer(w, h uint32) (*hwbuffer.Buffer, error) {
	return allocateOutput(c.alloc, w, h)
}

// Process scales in into out with bilinear filtering and forces alpha to 1.
func (c *CPUPreprocessor) Process(in, out *hwbuffer.Buffer, mode ResizeMode) (Result, error) {
	start := c.now()
	err := withImages(in, out, func(src, dst *image.RGBA) {
		draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
		opaque(dst)
	})
	if err != nil {
		return Result{}, err
	}
	return c.result(out, start), nil
}

// ProcessTransformed samples in through a 4×4 texture transform, the CPU
// analogue of the external-texture kernel.
func (c *CPUPreprocessor) ProcessTransformed(in *hwbuffer.Buffer, transform [16]float32, out *hwbuffer.Buffer) (Result, error) {
	return c.ProcessROI(in, transform, FullFrame, out)
}

// ProcessROI crops roi out of in through transform into out, letterboxing
// with mid-gray.
func (c *CPUPreprocessor) ProcessROI(in *hwbuffer.Buffer, transform [16]float32, roi ROI, out *hwbuffer.Buffer) (Result, error) {
	start := c.now()
	if err := roi.Validate(); err != nil {
		return Result{}, err
	}
	inDesc := in.Desc()
	outDesc := out.Desc()
	content := Letterbox(ROIAspect(roi, inDesc.Width, inDesc.Height), outDesc.Width, outDesc.Height)
	xf := newAffine(transform)

	err := withImages(in, out, func(src, dst *image.RGBA) {
		sw, sh := float64(src.Rect.Dx()), float64(src.Rect.Dy())
		ow, oh := float64(dst.Rect.Dx()), float64(dst.Rect.Dy())
		for y := 0; y < dst.Rect.Dy(); y++ {
			v := (float64(y) + 0.5) / oh
			for x := 0; x < dst.Rect.Dx(); x++ {
				u := (float64(x) + 0.5) / ow
				lu := (u - content.OffsetX) / content.ScaleX
				lv := (v - content.OffsetY) / content.ScaleY
				if lu < 0 || lu > 1 || lv < 0 || lv > 1 {
					dst.SetRGBA(x, y, midGray)
					continue
				}
				tu, tv := xf.apply(roi.X+lu*roi.W, roi.Y+lv*roi.H)
				sx := clampInt(int(tu*sw), 0, src.Rect.Dx()-1)
				sy := clampInt(int(tv*sh), 0, src.Rect.Dy()-1)
				p := src.RGBAAt(sx, sy)
				p.A = 255
				dst.SetRGBA(x, y, p)
			}
		}
	})
	if err != nil {
		return Result{}, err
	}
	return c.result(out, start), nil
}

func (c *CPUPreprocessor) result(out *hwbuffer.Buffer, start time.Time) Result {
	d := out.Desc()
	return Result{Output: out, Width: d.Width, Height: d.Height, ProcessTime: c.now().Sub(start)}
}

// affine holds the rows of a texture transform that map (u, v, 0, 1) to
// texture coordinates.
type affine struct {
	a, b, c float64 // s = a*u + b*v + c
	d, e, f float64 // t = d*u + e*v + f
}

// newAffine reduces a column-major 4×4 matrix to its 2D affine part by
// multiplying it against the basis {u, v, 1}.
func newAffine(m [16]float32) affine {
	rowMajor := make([]float64, 16)
	for col := 0; col < 4; col++ {
		for row := 0; row < 4; row++ {
			rowMajor[row*4+col] = float64(m[col*4+row])
		}
	}
	t := mat.NewDense(4, 4, rowMajor)
	basis := mat.NewDense(4, 3, []float64{
		1, 0, 0,
		0, 1, 0,
		0, 0, 0,
		0, 0, 1,
	})
	var r mat.Dense
	r.Mul(t, basis)
	return affine{
		a: r.At(0, 0), b: r.At(0, 1), c: r.At(0, 2),
		d: r.At(1, 0), e: r.At(1, 1), f: r.At(1, 2),
	}
}

func (a affine) apply(u, v float64) (float64, float64) {
	return a.a*u + a.b*v + a.c, a.d*u + a.e*v + a.f
}

// withImages locks both buffers and views them as RGBA images.
func withImages(in, out *hwbuffer.Buffer, fn func(src, dst *image.RGBA)) error {
	if in == nil || !in.Valid() || out == nil || !out.Valid() {
		return apperr.New(apperr.CodeInvalidArgument, "buffer not allocated")
	}
	for _, b := range []*hwbuffer.Buffer{in, out} {
		if f := b.Desc().Format; f != hwbuffer.FormatRGBA8888 && f != hwbuffer.FormatRGBX8888 {
			return apperr.Newf(apperr.CodeInvalidArgument, "cpu path needs RGBA, got format %d", f)
		}
	}

	src, err := lockRGBA(in)
	if err != nil {
		return err
	}
	defer in.Unlock()

	dst, err := lockRGBA(out)
	if err != nil {
		return err
	}
	defer out.Unlock()

	fn(src, dst)
	return nil
}

// lockRGBA locks b and wraps its pixels without copying.
func lockRGBA(b *hwbuffer.Buffer) (*image.RGBA, error) {
	data, stride, err := b.LockWithStride(NoFence)
	if err != nil {
		return nil, err
	}
	d := b.Desc()
	return &image.RGBA{
		Pix:    data,
		Stride: int(stride) * 4,
		Rect:   image.Rect(0, 0, int(d.Width), int(d.Height)),
	}, nil
}

// BufferImage copies a locked RGBA buffer into a standalone image after
// waiting on fence.
func BufferImage(b *hwbuffer.Buffer, fence *Fence, timeout time.Duration) (*image.RGBA, error) {
	if err := fence.Wait(timeout); err != nil {
		return nil, err
	}
	view, err := lockRGBA(b)
	if err != nil {
		return nil, err
	}
	defer b.Unlock()

	img := image.NewRGBA(view.Rect)
	draw.Copy(img, image.Point{}, view, view.Rect, draw.Src, nil)
	return img, nil
}

// LockedImage waits on fence and views b's pixels in place. b stays locked
// until the caller unlocks it.
func LockedImage(b *hwbuffer.Buffer, fence *Fence, timeout time.Duration) (*image.RGBA, error) {
	if err := fence.Wait(timeout); err != nil {
		return nil, err
	}
	return lockRGBA(b)
}

// FillBuffer copies img into b, scaling when sizes differ.
func FillBuffer(b *hwbuffer.Buffer, img image.Image) error {
	dst, err := lockRGBA(b)
	if err != nil {
		return err
	}
	defer b.Unlock()

	if img.Bounds().Size() == dst.Rect.Size() {
		draw.Copy(dst, image.Point{}, img, img.Bounds(), draw.Src, nil)
	} else {
		draw.ApproxBiLinear.Scale(dst, dst.Rect, img, img.Bounds(), draw.Src, nil)
	}
	opaque(dst)
	return nil
}

func opaque(img *image.RGBA) {
	for y := 0; y < img.Rect.Dy(); y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+img.Rect.Dx()*4]
		for i := 3; i < len(row); i += 4 {
			row[i] = 255
		}
	}
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
