package grpcclient

import (
	"image"

	"github.com/GriffinCanCode/hotpath/internal/ocr"
)

// Frame is a tightly packed RGBA image.
type Frame struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Pixels []byte `json:"pixels"`
}

// NewFrame packs the pixels of r out of img. An empty r packs all of img.
func NewFrame(img *image.RGBA, r image.Rectangle) Frame {
	if r.Empty() {
		r = img.Rect
	}
	r = r.Intersect(img.Rect)
	w, h := r.Dx(), r.Dy()
	px := make([]byte, 0, w*h*4)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		off := img.PixOffset(r.Min.X, y)
		px = append(px, img.Pix[off:off+w*4]...)
	}
	return Frame{Width: w, Height: h, Pixels: px}
}

// LoadModelRequest asks the sidecar to load a model on an accelerator.
type LoadModelRequest struct {
	Model       string   `json:"model"`
	Accelerator string   `json:"accelerator"`
	Keys        []string `json:"keys,omitempty"`
}

// LoadModelResponse names the loaded model instance.
type LoadModelResponse struct {
	Handle      string `json:"handle"`
	Accelerator string `json:"accelerator"`
}

// DetectRequest runs a detector over a frame.
type DetectRequest struct {
	Handle string `json:"handle,omitempty"`
	Frame  Frame  `json:"frame"`
}

// DetectResponse carries pixel-unit boxes.
type DetectResponse struct {
	Boxes []ocr.RotatedRect `json:"boxes"`
}

// RecognizeRequest reads one cropped box.
type RecognizeRequest struct {
	Handle string          `json:"handle"`
	Crop   Frame           `json:"crop"`
	Box    ocr.RotatedRect `json:"box"`
}

// RecognizeResponse holds decoded text, or raw CTC indices when the sidecar
// leaves decoding to the caller.
type RecognizeResponse struct {
	Text       string    `json:"text,omitempty"`
	Confidence float32   `json:"confidence,omitempty"`
	Indices    []int     `json:"indices,omitempty"`
	Scores     []float32 `json:"scores,omitempty"`
}

// ReleaseRequest unloads a model instance.
type ReleaseRequest struct {
	Handle string `json:"handle"`
}

// ReleaseResponse is empty.
type ReleaseResponse struct{}
