// Package ocr turns RGBA frames into recognized text and class detections
// through an accelerator-backed detector/recognizer pair.
package ocr

import (
	"fmt"
	"image"
	"strings"

	apperr "github.com/GriffinCanCode/hotpath/internal/errors"
)

// RotatedRect is a detection box. Units are pixels from the detector and
// normalized [0,1] once handed to the router.
type RotatedRect struct {
	CenterX    float32 `json:"center_x"`
	CenterY    float32 `json:"center_y"`
	Width      float32 `json:"width"`
	Height     float32 `json:"height"`
	Angle      float32 `json:"angle"`
	Confidence float32 `json:"confidence"`
	ClassID    int32   `json:"class_id"`
}

// NewRotatedRect builds a box with confidence clamped to [0,1].
func NewRotatedRect(cx, cy, w, h, angle, conf float32, classID int32) RotatedRect {
	return RotatedRect{
		CenterX:    cx,
		CenterY:    cy,
		Width:      w,
		Height:     h,
		Angle:      angle,
		Confidence: clamp01(conf),
		ClassID:    classID,
	}
}

// Area is the box area in its own units.
func (r RotatedRect) Area() float32 { return r.Width * r.Height }

// Normalize divides pixel coordinates by the frame size.
func (r RotatedRect) Normalize(w, h int) RotatedRect {
	if w <= 0 || h <= 0 {
		return r
	}
	fw, fh := float32(w), float32(h)
	r.CenterX /= fw
	r.CenterY /= fh
	r.Width /= fw
	r.Height /= fh
	return r
}

// Bounds returns the axis-aligned pixel rectangle enclosing an unrotated box,
// clipped to frame.
func (r RotatedRect) Bounds(frame image.Rectangle) image.Rectangle {
	x0 := int(r.CenterX - r.Width/2)
	y0 := int(r.CenterY - r.Height/2)
	return image.Rect(x0, y0, x0+int(r.Width+0.5), y0+int(r.Height+0.5)).Intersect(frame)
}

func clamp01(v float32) float32 {
	switch {
	case v < 0 || v != v:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// Result is one recognized text region.
type Result struct {
	Text       string      `json:"text"`
	Confidence float32     `json:"confidence"`
	Box        RotatedRect `json:"box"`
}

// Accelerator selects the runtime backend.
type Accelerator int

const (
	AcceleratorCPU Accelerator = iota
	AcceleratorGPU
	AcceleratorNPU
)

func (a Accelerator) String() string {
	switch a {
	case AcceleratorGPU:
		return "gpu"
	case AcceleratorNPU:
		return "npu"
	case AcceleratorCPU:
		return "cpu"
	default:
		return fmt.Sprintf("accelerator(%d)", int(a))
	}
}

// ParseAccelerator accepts "cpu", "gpu" or "npu".
func ParseAccelerator(s string) (Accelerator, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cpu":
		return AcceleratorCPU, nil
	case "", "gpu":
		return AcceleratorGPU, nil
	case "npu":
		return AcceleratorNPU, nil
	default:
		return AcceleratorCPU, apperr.Newf(apperr.CodeInvalidArgument, "unknown accelerator %q", s)
	}
}

// fallbackChain is tried in order from the preferred accelerator's index.
var fallbackChain = []Accelerator{AcceleratorGPU, AcceleratorCPU}

// chainFrom returns the accelerators to try for a preference. NPU starts at
// GPU: the models ship FP16 weights the NPU does not accelerate.
func chainFrom(preferred Accelerator) []Accelerator {
	start := 0
	if preferred == AcceleratorCPU {
		start = 1
	}
	return fallbackChain[start:]
}
