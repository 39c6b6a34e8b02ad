package ocr

import (
	"context"
	"errors"
	"image"
	"image/color"
	"log/slog"
	"sort"
	"sync"
	"time"

	apperr "github.com/GriffinCanCode/hotpath/internal/errors"
)

// Processing limits.
const (
	MinBoxArea      = 64
	MaxBoxes        = 50
	WarmupPasses    = 3
	WarmupSize      = 320
	DefaultMinScore = 0.5
)

// Config names the model assets and accelerator preference.
type Config struct {
	DetModel      string
	RecModel      string
	Keys          string
	Accelerator   Accelerator
	MinConfidence float32
}

// Engine pairs a detector and recognizer built on the same accelerator.
type Engine struct {
	det Detector
	rec Recognizer
	acc Accelerator
	cfg Config

	mu    sync.Mutex
	bench *benchmark
	now   func() time.Time
}

// Create walks the accelerator chain from cfg.Accelerator and adopts the
// first one on which both models construct. It fails only when every
// accelerator failed, with all causes joined.
func Create(ctx context.Context, backend Backend, cfg Config) (*Engine, error) {
	var keys []string
	if cfg.Keys != "" {
		var err error
		if keys, err = LoadKeys(cfg.Keys); err != nil {
			return nil, err
		}
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = DefaultMinScore
	}

	var errs []error
	for _, acc := range chainFrom(cfg.Accelerator) {
		det, rec, err := build(ctx, backend, cfg, keys, acc)
		if err != nil {
			slog.Warn("ocr accelerator unavailable", "accelerator", acc, "error", err)
			errs = append(errs, err)
			continue
		}
		e := &Engine{det: det, rec: rec, acc: acc, cfg: cfg, bench: newBenchmark(benchWindow), now: time.Now}
		e.warmup(ctx)
		slog.Info("ocr engine ready", "accelerator", acc, "preferred", cfg.Accelerator, "keys", len(keys))
		return e, nil
	}
	return nil, apperr.Wrap(errors.Join(errs...), apperr.CodeOCRInitFailed, "no accelerator could run both models")
}

func build(ctx context.Context, backend Backend, cfg Config, keys []string, acc Accelerator) (Detector, Recognizer, error) {
	det, err := backend.NewDetector(ctx, cfg.DetModel, acc)
	if err != nil {
		return nil, nil, apperr.Wrapf(err, apperr.CodeOCRInitFailed, "detector on %s", acc)
	}
	rec, err := backend.NewRecognizer(ctx, cfg.RecModel, keys, acc)
	if err != nil {
		_ = det.Close()
		return nil, nil, apperr.Wrapf(err, apperr.CodeOCRInitFailed, "recognizer on %s", acc)
	}
	return det, rec, nil
}

// warmup runs detection over synthetic frames so the first real frame does
// not pay for lazy kernel setup.
func (e *Engine) warmup(ctx context.Context) {
	img := image.NewRGBA(image.Rect(0, 0, WarmupSize, WarmupSize))
	for y := 0; y < WarmupSize; y++ {
		for x := 0; x < WarmupSize; x++ {
			v := uint8((x ^ y) & 0xff)
			img.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	for i := 0; i < WarmupPasses; i++ {
		if _, err := e.det.Detect(ctx, img); err != nil {
			slog.Debug("ocr warmup pass failed", "pass", i, "error", err)
		}
	}
}

// Accelerator returns the accelerator the engine runs on.
func (e *Engine) Accelerator() Accelerator { return e.acc }

// Process detects, filters and recognizes text in img.
func (e *Engine) Process(ctx context.Context, img *image.RGBA) ([]Result, error) {
	if img == nil || img.Rect.Empty() {
		return nil, apperr.New(apperr.CodeInvalidArgument, "empty image")
	}
	start := e.now()
	boxes, err := e.det.Detect(ctx, img)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeOCRExtractFailed, "detect")
	}
	detected := e.now()

	boxes = selectBoxes(boxes)
	results := make([]Result, 0, len(boxes))
	var failed int
	var lastErr error
	for _, b := range boxes {
		text, conf, err := e.rec.Recognize(ctx, img, b)
		if err != nil {
			failed++
			lastErr = err
			continue
		}
		conf = clamp01(conf)
		if text == "" || conf < e.cfg.MinConfidence {
			continue
		}
		results = append(results, Result{Text: text, Confidence: conf, Box: b})
	}
	if failed > 0 {
		slog.Warn("recognition failed, boxes skipped", "failed", failed, "boxes", len(boxes), "error", lastErr)
	}

	end := e.now()
	e.mu.Lock()
	e.bench.record(detected.Sub(start), end.Sub(detected), end.Sub(start))
	e.mu.Unlock()
	return results, nil
}

// selectBoxes drops boxes under MinBoxArea, keeps the first MaxBoxes in
// detector order and sorts those largest first.
func selectBoxes(boxes []RotatedRect) []RotatedRect {
	kept := boxes[:0:0]
	for _, b := range boxes {
		if b.Area() >= MinBoxArea {
			kept = append(kept, b)
		}
	}
	if len(kept) > MaxBoxes {
		kept = kept[:MaxBoxes]
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Area() > kept[j].Area() })
	return kept
}

// Benchmark returns timing statistics over recent calls.
func (e *Engine) Benchmark() Benchmark {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bench.snapshot()
}

// Close releases both models.
func (e *Engine) Close() error {
	return errors.Join(e.det.Close(), e.rec.Close())
}
