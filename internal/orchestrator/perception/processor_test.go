package perception

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	apperr "github.com/GriffinCanCode/hotpath/internal/errors"
	"github.com/GriffinCanCode/hotpath/internal/ocr"
	"github.com/GriffinCanCode/hotpath/internal/rules"
)

type mockReader struct {
	results []ocr.Result
	err     error
	calls   int
}

func (m *mockReader) Process(_ context.Context, _ *image.RGBA) ([]ocr.Result, error) {
	m.calls++
	return m.results, m.err
}

type mockDetector struct {
	boxes []ocr.RotatedRect
	err   error
}

func (m *mockDetector) DetectObjects(_ context.Context, _ *image.RGBA) ([]ocr.RotatedRect, error) {
	out := make([]ocr.RotatedRect, len(m.boxes))
	copy(out, m.boxes)
	return out, m.err
}

type mockVision struct{ text string }

func (m *mockVision) Describe(_ context.Context, _ *image.RGBA) (string, error) { return m.text, nil }

// makePattern creates test images with distinct patterns for pHash testing.
func makePattern(pattern int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			var c color.RGBA
			switch pattern {
			case 0:
				if (x/8+y/8)%2 == 0 {
					c = color.RGBA{255, 255, 255, 255}
				} else {
					c = color.RGBA{0, 0, 0, 255}
				}
			case 1:
				if x < 32 {
					c = color.RGBA{255, 255, 255, 255}
				} else {
					c = color.RGBA{0, 0, 0, 255}
				}
			default:
				v := uint8(x * 4)
				c = color.RGBA{v, v, v, 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

var roi = rules.ROI{X: 0.1, Y: 0.2, Width: 0.3, Height: 0.1}

func TestReadSkipsSimilarRegion(t *testing.T) {
	r := &mockReader{results: []ocr.Result{{Text: "Start", Confidence: 0.9}}}
	p := NewProcessor(r, nil, nil, Config{SkipSimilar: true})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := p.Read(ctx, roi, makePattern(0))
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if len(got) != 1 || got[0].Text != "Start" {
			t.Fatalf("Read() = %+v", got)
		}
	}
	if r.calls != 1 {
		t.Errorf("OCR calls = %d, want 1", r.calls)
	}
	read, skipped := p.Stats()
	if read != 1 || skipped != 2 {
		t.Errorf("Stats() = %d, %d, want 1, 2", read, skipped)
	}
}

func TestReadRunsOnChangedRegion(t *testing.T) {
	r := &mockReader{}
	p := NewProcessor(r, nil, nil, Config{SkipSimilar: true})
	ctx := context.Background()

	if _, err := p.Read(ctx, roi, makePattern(0)); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Read(ctx, roi, makePattern(1)); err != nil {
		t.Fatal(err)
	}
	if r.calls != 2 {
		t.Errorf("OCR calls = %d, want 2", r.calls)
	}
}

func TestReadCachesPerRegion(t *testing.T) {
	r := &mockReader{}
	p := NewProcessor(r, nil, nil, Config{SkipSimilar: true})
	ctx := context.Background()
	other := rules.ROI{X: 0.5, Y: 0.5, Width: 0.2, Height: 0.2}

	for _, reg := range []rules.ROI{roi, other, roi, other} {
		if _, err := p.Read(ctx, reg, makePattern(0)); err != nil {
			t.Fatal(err)
		}
	}
	if r.calls != 2 {
		t.Errorf("OCR calls = %d, want 2", r.calls)
	}
}

func TestReadWithoutSkipping(t *testing.T) {
	r := &mockReader{}
	p := NewProcessor(r, nil, nil, Config{})
	for i := 0; i < 3; i++ {
		if _, err := p.Read(context.Background(), roi, makePattern(0)); err != nil {
			t.Fatal(err)
		}
	}
	if r.calls != 3 {
		t.Errorf("OCR calls = %d, want 3", r.calls)
	}
}

func TestReadErrorNotCached(t *testing.T) {
	r := &mockReader{err: errors.New("boom")}
	p := NewProcessor(r, nil, nil, Config{SkipSimilar: true})
	ctx := context.Background()

	if _, err := p.Read(ctx, roi, makePattern(0)); err == nil {
		t.Fatal("expected error")
	}
	r.err = nil
	if _, err := p.Read(ctx, roi, makePattern(0)); err != nil {
		t.Fatal(err)
	}
	if r.calls != 2 {
		t.Errorf("OCR calls = %d, want 2", r.calls)
	}
}

func TestForgetDropsCache(t *testing.T) {
	r := &mockReader{}
	p := NewProcessor(r, nil, nil, Config{SkipSimilar: true})
	ctx := context.Background()

	_, _ = p.Read(ctx, roi, makePattern(0))
	p.Forget()
	_, _ = p.Read(ctx, roi, makePattern(0))
	if r.calls != 2 {
		t.Errorf("OCR calls = %d, want 2", r.calls)
	}
}

func TestDetectNormalizes(t *testing.T) {
	d := &mockDetector{boxes: []ocr.RotatedRect{{CenterX: 32, CenterY: 16, Width: 8, Height: 8, Confidence: 0.8, ClassID: 3}}}
	p := NewProcessor(&mockReader{}, d, nil, Config{})

	got, err := p.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 64, 32)))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].CenterX != 0.5 || got[0].CenterY != 0.5 || got[0].Width != 0.125 || got[0].Height != 0.25 {
		t.Errorf("Detect() = %+v", got[0])
	}
	if got[0].ClassID != 3 {
		t.Errorf("ClassID = %d, want 3", got[0].ClassID)
	}
}

func TestDetectWithoutDetector(t *testing.T) {
	p := NewProcessor(&mockReader{}, nil, nil, Config{})
	got, err := p.Detect(context.Background(), makePattern(0))
	if err != nil || got != nil {
		t.Errorf("Detect() = %v, %v, want nil, nil", got, err)
	}
	if p.Image() != nil {
		t.Error("Detect should not store the frame")
	}
}

func TestRetainCopiesFrame(t *testing.T) {
	p := NewProcessor(&mockReader{}, nil, nil, Config{})
	p.Retain()
	if p.Image() != nil {
		t.Error("Retain before the first frame should keep nothing")
	}

	frame := makePattern(1)
	p.Store(frame)
	p.Retain()
	for i := range frame.Pix {
		frame.Pix[i] = 0
	}

	img, err := png.Decode(bytes.NewReader(p.Image()))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, _, _, a := img.At(0, 0).RGBA(); a == 0 {
		t.Error("retained frame should not see writes to the capture buffer")
	}
}

func TestText(t *testing.T) {
	r := &mockReader{results: []ocr.Result{{Text: "Level 3"}}}
	p := NewProcessor(r, nil, nil, Config{})
	if p.Text() != "" {
		t.Errorf("Text() = %q before reads", p.Text())
	}
	_, _ = p.Read(context.Background(), roi, makePattern(0))
	if p.Text() != "Level 3" {
		t.Errorf("Text() = %q, want %q", p.Text(), "Level 3")
	}
}

func TestImage(t *testing.T) {
	p := NewProcessor(&mockReader{}, nil, nil, Config{})
	if p.Image() != nil {
		t.Error("Image() should be nil before the first frame")
	}
	p.Store(makePattern(2))

	img, err := png.Decode(bytes.NewReader(p.Image()))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Bounds().Dx() != 64 {
		t.Errorf("width = %d, want 64", img.Bounds().Dx())
	}
}

func TestDescribe(t *testing.T) {
	ctx := context.Background()

	p := NewProcessor(&mockReader{}, nil, nil, Config{})
	if _, err := p.Describe(ctx); !apperr.IsCode(err, apperr.CodeVisionUnavailable) {
		t.Errorf("Describe() without backend = %v, want VisionUnavailable", err)
	}

	p = NewProcessor(&mockReader{}, nil, &mockVision{text: "a menu"}, Config{})
	if _, err := p.Describe(ctx); !apperr.IsCode(err, apperr.CodeInvalidState) {
		t.Errorf("Describe() before frame = %v, want InvalidState", err)
	}
	p.Store(makePattern(0))
	got, err := p.Describe(ctx)
	if err != nil || got != "a menu" {
		t.Errorf("Describe() = %q, %v", got, err)
	}
}

func TestDefaultDistance(t *testing.T) {
	p := NewProcessor(&mockReader{}, nil, nil, Config{SkipSimilar: true, MaxHashDistance: -1})
	if p.cfg.MaxHashDistance != DefaultMaxHashDistance {
		t.Errorf("MaxHashDistance = %d, want %d", p.cfg.MaxHashDistance, DefaultMaxHashDistance)
	}
}
