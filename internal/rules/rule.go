// Package rules defines the declarative automation rules and their JSON wire
// format. Array order is priority order.
package rules

import (
	"fmt"
	"strings"

	apperr "github.com/GriffinCanCode/hotpath/internal/errors"
)

// Type tags a rule as matching object detections or recognized text.
type Type int

const (
	TypeDetection Type = iota
	TypeOCR
)

func (t Type) String() string {
	switch t {
	case TypeDetection:
		return "detection"
	case TypeOCR:
		return "ocr"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

// ActionType is what a firing rule asks the input injector to do.
type ActionType int

const (
	ActionTap ActionType = iota
	ActionSwipe
	ActionWait
	ActionComplete
)

func (a ActionType) String() string {
	switch a {
	case ActionTap:
		return "tap"
	case ActionSwipe:
		return "swipe"
	case ActionWait:
		return "wait"
	case ActionComplete:
		return "complete"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// ParseActionType maps an action name, case-insensitively, to its type.
func ParseActionType(s string) (ActionType, error) {
	for a := ActionTap; a <= ActionComplete; a++ {
		if strings.EqualFold(s, a.String()) {
			return a, nil
		}
	}
	return ActionTap, apperr.Newf(apperr.CodeInvalidArgument, "unknown action %q", s)
}

// MarshalText renders the action name.
func (a ActionType) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// ROI is a normalized screen rectangle.
type ROI struct {
	X      float32
	Y      float32
	Width  float32
	Height float32
}

// Center returns the ROI's midpoint.
func (r ROI) Center() (float32, float32) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// Defaults applied to fields a rule omits.
const (
	DefaultMinConfidence   = 0.5
	DefaultMinIntervalMs   = 1000
	DefaultSwipeDurationMs = 300
)

// roiEpsilon absorbs float32 rounding in x+width sums such as 0.7+0.3.
const roiEpsilon = 1e-6

// Rule is one automation rule. Detection rules use ClassID and
// MinConfidence; OCR rules use ROI, Target, the match flags and the
// optional tap point.
type Rule struct {
	Type Type

	ClassID       int32
	MinConfidence float32

	ROI           ROI
	Target        string
	ExactMatch    bool
	CaseSensitive bool
	HasTapPoint   bool
	TapX          float32
	TapY          float32

	Action          ActionType
	TapOffsetX      float32
	TapOffsetY      float32
	MinIntervalMs   int64
	HasSwipeEnd     bool
	SwipeEndX       float32
	SwipeEndY       float32
	SwipeDurationMs int32
}

// New returns a rule of type t carrying the defaults.
func New(t Type) Rule {
	return Rule{
		Type:            t,
		MinConfidence:   DefaultMinConfidence,
		MinIntervalMs:   DefaultMinIntervalMs,
		SwipeDurationMs: DefaultSwipeDurationMs,
	}
}

// Validate rejects rules the router cannot evaluate safely.
func Validate(r Rule) error {
	switch r.Type {
	case TypeDetection:
		if r.ClassID < 0 {
			return apperr.Newf(apperr.CodeRuleInvalid, "negative class_id %d", r.ClassID)
		}
		if r.MinConfidence < 0 || r.MinConfidence > 1 {
			return apperr.Newf(apperr.CodeRuleInvalid, "min_confidence %g outside [0,1]", r.MinConfidence)
		}
	case TypeOCR:
		if r.Target == "" {
			return apperr.New(apperr.CodeRuleInvalid, "ocr rule has empty target")
		}
		roi := r.ROI
		if roi.Width <= 0 || roi.Height <= 0 {
			return apperr.Newf(apperr.CodeRuleInvalid, "roi %gx%g has no area", roi.Width, roi.Height)
		}
		if roi.X < 0 || roi.Y < 0 || roi.X+roi.Width > 1+roiEpsilon || roi.Y+roi.Height > 1+roiEpsilon {
			return apperr.Newf(apperr.CodeRuleInvalid, "roi (%g,%g %gx%g) outside [0,1]", roi.X, roi.Y, roi.Width, roi.Height)
		}
	default:
		return apperr.Newf(apperr.CodeRuleInvalid, "unknown rule type %d", int(r.Type))
	}
	if r.Action < ActionTap || r.Action > ActionComplete {
		return apperr.Newf(apperr.CodeRuleInvalid, "unknown action %d", int(r.Action))
	}
	if r.MinIntervalMs < 0 {
		return apperr.Newf(apperr.CodeRuleInvalid, "negative min_interval_ms %d", r.MinIntervalMs)
	}
	return nil
}
