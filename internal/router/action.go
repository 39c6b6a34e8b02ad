package router

import "github.com/GriffinCanCode/hotpath/internal/rules"

// Action is what the router asks the input injector to perform. Coordinates
// are screen pixels. X2/Y2 are the swipe end for swipes, equal to X1/Y1 for
// taps, and zero for wait and complete.
type Action struct {
	Type              rules.ActionType `json:"action"`
	X1                int32            `json:"x1"`
	Y1                int32            `json:"y1"`
	X2                int32            `json:"x2"`
	Y2                int32            `json:"y2"`
	DurationMs        int32            `json:"duration_ms"`
	MatchedClassID    int32            `json:"matched_class_id"`
	MatchedConfidence float32          `json:"matched_confidence"`
	MatchedText       string           `json:"matched_text,omitempty"`
	RuleIndex         int              `json:"rule_index"`
	Timestamp         int64            `json:"timestamp_ms"`
}

// Screen is the target display size in pixels.
type Screen struct {
	Width  int32
	Height int32
}

// swipeFraction is the default swipe length as a share of screen height.
const swipeFraction = 0.2

// build computes the pixel geometry for rule r firing at the normalized
// point (x, y).
func build(r rules.Rule, x, y float32, screen Screen) Action {
	x = clamp01(x + r.TapOffsetX)
	y = clamp01(y + r.TapOffsetY)
	a := Action{
		Type: r.Action,
		X1:   scale(x, screen.Width),
		Y1:   scale(y, screen.Height),
	}
	switch r.Action {
	case rules.ActionTap:
		a.X2, a.Y2 = a.X1, a.Y1
	case rules.ActionSwipe:
		if r.HasSwipeEnd {
			a.X2 = scale(clamp01(r.SwipeEndX), screen.Width)
			a.Y2 = scale(clamp01(r.SwipeEndY), screen.Height)
		} else {
			a.X2 = a.X1
			a.Y2 = scale(clamp01(y+swipeFraction), screen.Height)
		}
		a.DurationMs = r.SwipeDurationMs
	}
	return a
}

func scale(v float32, size int32) int32 {
	return int32(v*float32(size) + 0.5)
}

func clamp01(v float32) float32 {
	return max(0, min(v, 1))
}
