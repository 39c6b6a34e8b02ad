package ocr

import "strings"

// DecodeCTC greedily collapses a per-timestep argmax sequence: repeats merge,
// blanks (index 0) separate, and out-of-range indices are dropped. The
// confidence is the mean score of the emitted symbols.
func DecodeCTC(indices []int, scores []float32, keys []string) (string, float32) {
	var sb strings.Builder
	var sum float32
	var n int
	prev := 0
	for i, idx := range indices {
		if idx != 0 && idx != prev && idx < len(keys) {
			sb.WriteString(keys[idx])
			if i < len(scores) {
				sum += scores[i]
			}
			n++
		}
		prev = idx
	}
	if n == 0 {
		return "", 0
	}
	return sb.String(), clamp01(sum / float32(n))
}
