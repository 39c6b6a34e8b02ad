// Package perception runs detection and OCR over captured frames, reusing
// OCR results for regions whose crop has not visibly changed.
package perception

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"log/slog"
	"strings"
	"sync"

	"github.com/corona10/goimagehash"
	"golang.org/x/image/draw"

	apperr "github.com/GriffinCanCode/hotpath/internal/errors"
	"github.com/GriffinCanCode/hotpath/internal/ocr"
	"github.com/GriffinCanCode/hotpath/internal/rules"
)

// TextReader extracts text lines from an image.
type TextReader interface {
	Process(ctx context.Context, img *image.RGBA) ([]ocr.Result, error)
}

// Vision describes an image in natural language.
type Vision interface {
	Describe(ctx context.Context, img *image.RGBA) (string, error)
}

// Config tunes similar-frame skipping.
type Config struct {
	SkipSimilar     bool
	MaxHashDistance int
}

type region struct {
	hash    *goimagehash.ImageHash
	results []ocr.Result
}

// Processor runs perception for one frame source.
type Processor struct {
	text    TextReader
	objects ocr.ObjectDetector
	vision  Vision
	cfg     Config

	mu      sync.RWMutex
	regions map[rules.ROI]*region
	frame   *image.RGBA
	skipped uint64
	read    uint64
}

// NewProcessor creates a processor. objects and vision may be nil.
func NewProcessor(text TextReader, objects ocr.ObjectDetector, vision Vision, cfg Config) *Processor {
	if cfg.MaxHashDistance <= 0 {
		cfg.MaxHashDistance = DefaultMaxHashDistance
	}
	return &Processor{
		text:    text,
		objects: objects,
		vision:  vision,
		cfg:     cfg,
		regions: make(map[rules.ROI]*region),
	}
}

// Store makes frame the latest frame. The processor reads it only under its
// lock, so the caller may recycle the previous frame once Store returns.
func (p *Processor) Store(frame *image.RGBA) {
	p.mu.Lock()
	p.frame = frame
	p.mu.Unlock()
}

// Retain swaps the latest frame for a private copy so it outlives the
// capture buffer it views.
func (p *Processor) Retain() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.frame != nil {
		p.frame = cloneRGBA(p.frame)
	}
}

func cloneRGBA(src *image.RGBA) *image.RGBA {
	dst := image.NewRGBA(src.Rect)
	draw.Copy(dst, src.Rect.Min, src, src.Rect, draw.Src, nil)
	return dst
}

// Detect runs the object detector over frame and returns boxes normalized
// to [0,1]. Without a detector it returns nothing.
func (p *Processor) Detect(ctx context.Context, frame *image.RGBA) ([]ocr.RotatedRect, error) {
	if p.objects == nil {
		return nil, nil
	}
	boxes, err := p.objects.DetectObjects(ctx, frame)
	if err != nil {
		return nil, err
	}
	w, h := frame.Rect.Dx(), frame.Rect.Dy()
	for i := range boxes {
		boxes[i] = boxes[i].Normalize(w, h)
	}
	return boxes, nil
}

// Read recognizes text in the crop of roi. When the crop's perceptual hash
// is within the configured distance of the previous crop for the same ROI,
// the previous results are returned without running OCR.
func (p *Processor) Read(ctx context.Context, roi rules.ROI, crop *image.RGBA) ([]ocr.Result, error) {
	var hash *goimagehash.ImageHash
	if p.cfg.SkipSimilar {
		h, err := goimagehash.PerceptionHash(crop)
		if err == nil {
			hash = h
		}
		if cached, ok := p.similar(roi, hash); ok {
			return cached, nil
		}
	}

	results, err := p.text.Process(ctx, crop)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.regions[roi] = &region{hash: hash, results: results}
	p.read++
	p.mu.Unlock()
	return results, nil
}

func (p *Processor) similar(roi rules.ROI, hash *goimagehash.ImageHash) ([]ocr.Result, bool) {
	if hash == nil {
		return nil, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	prev, ok := p.regions[roi]
	if !ok || prev.hash == nil {
		return nil, false
	}
	dist, err := prev.hash.Distance(hash)
	if err != nil || dist > p.cfg.MaxHashDistance {
		return nil, false
	}
	p.skipped++
	slog.Debug("skipping OCR for similar region", "roi", roi, "distance", dist)
	return prev.results, true
}

// Forget drops cached regions, e.g. after the rule set changes.
func (p *Processor) Forget() {
	p.mu.Lock()
	defer p.mu.Unlock()
	clear(p.regions)
}

// Text returns the latest recognized text of every region, one line per
// result.
func (p *Processor) Text() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var lines []string
	for _, r := range p.regions {
		for _, res := range r.results {
			lines = append(lines, res.Text)
		}
	}
	return strings.Join(lines, "\n")
}

// Image returns the latest frame encoded as PNG, or nil before the first
// frame.
func (p *Processor) Image() []byte {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.frame == nil {
		return nil
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, p.frame); err != nil {
		slog.Warn("encode frame", "error", err)
		return nil
	}
	return buf.Bytes()
}

// Describe asks the vision backend about the latest frame. It fails with
// CodeVisionUnavailable when no backend is configured instead of silently
// returning nothing.
func (p *Processor) Describe(ctx context.Context) (string, error) {
	if p.vision == nil {
		return "", apperr.New(apperr.CodeVisionUnavailable, "no vision backend configured")
	}
	p.mu.RLock()
	var frame *image.RGBA
	if p.frame != nil {
		frame = cloneRGBA(p.frame)
	}
	p.mu.RUnlock()
	if frame == nil {
		return "", apperr.New(apperr.CodeInvalidState, "no frame captured")
	}
	return p.vision.Describe(ctx, frame)
}

// Stats reports how many region reads ran OCR and how many were skipped.
func (p *Processor) Stats() (read, skipped uint64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.read, p.skipped
}
