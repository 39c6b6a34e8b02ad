package ocr

import (
	"context"
	"image"
)

// Backend constructs model runners on an accelerator.
type Backend interface {
	NewDetector(ctx context.Context, model string, acc Accelerator) (Detector, error)
	NewRecognizer(ctx context.Context, model string, keys []string, acc Accelerator) (Recognizer, error)
}

// Detector finds text boxes in pixel units.
type Detector interface {
	Detect(ctx context.Context, img *image.RGBA) ([]RotatedRect, error)
	Close() error
}

// Recognizer reads the text inside one box.
type Recognizer interface {
	Recognize(ctx context.Context, img *image.RGBA, box RotatedRect) (string, float32, error)
	Close() error
}

// ObjectDetector finds class-id detections for detection rules.
type ObjectDetector interface {
	DetectObjects(ctx context.Context, img *image.RGBA) ([]RotatedRect, error)
}
