package grpcclient

import (
	"context"
	"image"

	"github.com/GriffinCanCode/hotpath/internal/ocr"
)

var (
	_ ocr.Backend        = (*Backend)(nil)
	_ ocr.ObjectDetector = (*Backend)(nil)
)

// Backend runs the OCR models in the sidecar.
type Backend struct {
	c *Client
}

// NewBackend adapts c to ocr.Backend.
func NewBackend(c *Client) *Backend { return &Backend{c: c} }

func (b *Backend) NewDetector(ctx context.Context, model string, acc ocr.Accelerator) (ocr.Detector, error) {
	h, err := b.c.LoadDetector(ctx, model, acc)
	if err != nil {
		return nil, err
	}
	return &detector{c: b.c, handle: h}, nil
}

func (b *Backend) NewRecognizer(ctx context.Context, model string, keys []string, acc ocr.Accelerator) (ocr.Recognizer, error) {
	h, err := b.c.LoadRecognizer(ctx, model, keys, acc)
	if err != nil {
		return nil, err
	}
	return &recognizer{c: b.c, handle: h, keys: keys}, nil
}

// DetectObjects runs the sidecar's object detector.
func (b *Backend) DetectObjects(ctx context.Context, img *image.RGBA) ([]ocr.RotatedRect, error) {
	return b.c.DetectObjects(ctx, img)
}

type detector struct {
	c      *Client
	handle string
}

func (d *detector) Detect(ctx context.Context, img *image.RGBA) ([]ocr.RotatedRect, error) {
	return d.c.Detect(ctx, d.handle, img)
}

func (d *detector) Close() error { return d.c.Release(context.Background(), d.handle) }

type recognizer struct {
	c      *Client
	handle string
	keys   []string
}

func (r *recognizer) Recognize(ctx context.Context, img *image.RGBA, box ocr.RotatedRect) (string, float32, error) {
	resp, err := r.c.Recognize(ctx, r.handle, img, box)
	if err != nil {
		return "", 0, err
	}
	if resp.Text == "" && len(resp.Indices) > 0 {
		text, conf := ocr.DecodeCTC(resp.Indices, resp.Scores, r.keys)
		return text, conf, nil
	}
	return resp.Text, resp.Confidence, nil
}

func (r *recognizer) Close() error { return r.c.Release(context.Background(), r.handle) }
