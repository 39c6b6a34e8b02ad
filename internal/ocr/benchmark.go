package ocr

import (
	"time"

	"gonum.org/v1/gonum/stat"
)

const benchWindow = 64

// Benchmark summarizes recent Process timings. It is for introspection only.
type Benchmark struct {
	Detection   time.Duration `json:"detection"`
	Recognition time.Duration `json:"recognition"`
	Total       time.Duration `json:"total"`
	FPS         float64       `json:"fps"`
	MeanMs      float64       `json:"mean_ms"`
	StdDevMs    float64       `json:"stddev_ms"`
	Samples     int           `json:"samples"`
}

type benchmark struct {
	last   Benchmark
	totals []float64 // ring of total ms
	next   int
}

func newBenchmark(window int) *benchmark {
	return &benchmark{totals: make([]float64, 0, window)}
}

func (b *benchmark) record(det, rec, total time.Duration) {
	b.last.Detection, b.last.Recognition, b.last.Total = det, rec, total
	ms := float64(total) / float64(time.Millisecond)
	if len(b.totals) < cap(b.totals) {
		b.totals = append(b.totals, ms)
	} else {
		b.totals[b.next] = ms
		b.next = (b.next + 1) % len(b.totals)
	}
}

func (b *benchmark) snapshot() Benchmark {
	out := b.last
	out.Samples = len(b.totals)
	if out.Samples == 0 {
		return out
	}
	out.MeanMs, out.StdDevMs = stat.MeanStdDev(b.totals, nil)
	if out.Samples == 1 {
		out.StdDevMs = 0
	}
	if out.MeanMs > 0 {
		out.FPS = 1000 / out.MeanMs
	}
	return out
}
