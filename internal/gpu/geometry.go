package gpu

import (
	"fmt"
	"strings"

	apperr "github.com/GriffinCanCode/hotpath/internal/errors"
)

// ResizeMode selects a power-of-two downscale.
type ResizeMode int

const (
	ResizeFull ResizeMode = iota
	ResizeHalf
	ResizeQuarter
)

// Factor returns the divisor applied to each dimension.
func (m ResizeMode) Factor() uint32 {
	switch m {
	case ResizeHalf:
		return 2
	case ResizeQuarter:
		return 4
	default:
		return 1
	}
}

func (m ResizeMode) String() string {
	switch m {
	case ResizeHalf:
		return "half"
	case ResizeQuarter:
		return "quarter"
	default:
		return "full"
	}
}

// ParseResizeMode accepts "full", "half" or "quarter".
func ParseResizeMode(s string) (ResizeMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "full":
		return ResizeFull, nil
	case "half":
		return ResizeHalf, nil
	case "quarter":
		return ResizeQuarter, nil
	default:
		return ResizeFull, apperr.Newf(apperr.CodeInvalidArgument, "unknown resize mode %q", s)
	}
}

// OutputSize returns the scaled size, never smaller than 1×1.
func (m ResizeMode) OutputSize(w, h uint32) (uint32, uint32) {
	f := m.Factor()
	return max(w/f, 1), max(h/f, 1)
}

// ROI is a normalized region of the source frame.
type ROI struct {
	X, Y, W, H float64
}

// FullFrame covers the whole source.
var FullFrame = ROI{W: 1, H: 1}

// Validate checks the ROI lies inside [0,1] with positive area.
func (r ROI) Validate() error {
	if r.W <= 0 || r.H <= 0 {
		return apperr.Newf(apperr.CodeInvalidArgument, "roi %v has no area", r)
	}
	if r.X < 0 || r.Y < 0 || r.X+r.W > 1 || r.Y+r.H > 1 {
		return apperr.Newf(apperr.CodeInvalidArgument, "roi %v outside [0,1]", r)
	}
	return nil
}

func (r ROI) String() string {
	return fmt.Sprintf("(%.4f,%.4f %.4fx%.4f)", r.X, r.Y, r.W, r.H)
}

// Content is the letterboxed content rectangle in normalized output space.
type Content struct {
	OffsetX, OffsetY float64
	ScaleX, ScaleY   float64
}

// Padded reports whether the content leaves any padding.
func (c Content) Padded() bool { return c.ScaleX < 1 || c.ScaleY < 1 }

// Letterbox fits content of the given aspect ratio (width/height) into an
// outW×outH output, centered. A wider aspect pads top and bottom; a narrower
// one pads left and right.
func Letterbox(aspect float64, outW, outH uint32) Content {
	if aspect <= 0 || outW == 0 || outH == 0 {
		return Content{ScaleX: 1, ScaleY: 1}
	}
	outAspect := float64(outW) / float64(outH)
	switch {
	case aspect > outAspect:
		s := outAspect / aspect
		return Content{OffsetY: (1 - s) / 2, ScaleX: 1, ScaleY: s}
	case aspect < outAspect:
		s := aspect / outAspect
		return Content{OffsetX: (1 - s) / 2, ScaleX: s, ScaleY: 1}
	default:
		return Content{ScaleX: 1, ScaleY: 1}
	}
}

// ROIAspect returns the pixel aspect ratio of roi over a srcW×srcH frame.
func ROIAspect(roi ROI, srcW, srcH uint32) float64 {
	h := roi.H * float64(srcH)
	if h <= 0 {
		return 0
	}
	return roi.W * float64(srcW) / h
}
