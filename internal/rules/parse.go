package rules

import (
	"log/slog"
	"math"
	"strings"

	apperr "github.com/GriffinCanCode/hotpath/internal/errors"
)

// Parse reads a rules document. Rules that fail validation are dropped and
// reported in warnings; a syntactically malformed document fails as a whole
// with no rules returned.
func Parse(data []byte) ([]Rule, []error, error) {
	r := &reader{data: data}
	if r.peek() != '[' {
		return nil, nil, r.errorf("rules document must be a JSON array")
	}
	r.pos++

	var (
		out      []Rule
		warnings []error
	)
	for i, first := 0, true; ; i, first = i+1, false {
		ok, err := r.more(']', first)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			break
		}
		rule, invalid, err := r.readRule()
		if err != nil {
			return nil, nil, apperr.Wrapf(err, apperr.CodeRuleParse, "rule %d malformed", i)
		}
		if invalid == nil {
			invalid = Validate(rule)
		}
		if invalid != nil {
			slog.Warn("invalid rule dropped", "index", i, "error", invalid)
			warnings = append(warnings, apperr.Wrapf(invalid, apperr.CodeRuleInvalid, "rule %d dropped", i))
			continue
		}
		out = append(out, rule)
	}
	if r.peek() != 0 {
		return nil, nil, r.errorf("trailing data after rules array")
	}
	return out, warnings, nil
}

// readRule decodes one rule object. invalid reports a well-formed rule with
// unusable field values; err reports malformed JSON.
func (r *reader) readRule() (rule Rule, invalid, err error) {
	if r.peek() != '{' {
		return Rule{}, nil, r.errorf("rule must be an object")
	}
	r.pos++

	rule = New(TypeDetection)
	typed := false
	var tapX, tapY bool
	for first := true; ; first = false {
		ok, err := r.more('}', first)
		if err != nil {
			return Rule{}, nil, err
		}
		if !ok {
			break
		}
		key, err := r.readString()
		if err != nil {
			return Rule{}, nil, err
		}
		if err := r.expect(':'); err != nil {
			return Rule{}, nil, err
		}

		if key == "roi" {
			if r.readLiteral("null") {
				continue
			}
			roi, ferr, err := r.readROI()
			if err != nil {
				return Rule{}, nil, err
			}
			rule.ROI = roi
			invalid = firstErr(invalid, ferr)
			continue
		}
		if !knownScalar(key) {
			if err := r.skipValue(); err != nil {
				return Rule{}, nil, err
			}
			continue
		}
		v, err := r.readScalar()
		if err != nil {
			return Rule{}, nil, err
		}
		if v.kind == 'z' {
			continue
		}
		switch key {
		case "type":
			typed = true
		case "tap_x":
			tapX = true
		case "tap_y":
			tapY = true
		}
		invalid = firstErr(invalid, rule.set(key, v))
	}
	// A half-given tap point takes the missing axis from the ROI center.
	if tapX != tapY {
		cx, cy := rule.ROI.Center()
		if !tapX {
			rule.TapX = cx
		} else {
			rule.TapY = cy
		}
	}
	if !typed {
		invalid = firstErr(invalid, apperr.New(apperr.CodeRuleInvalid, "rule has no type"))
	}
	return rule, invalid, nil
}

func (r *reader) readROI() (roi ROI, invalid, err error) {
	if r.peek() != '{' {
		return ROI{}, nil, r.errorf("roi must be an object")
	}
	r.pos++
	for first := true; ; first = false {
		ok, err := r.more('}', first)
		if err != nil {
			return ROI{}, nil, err
		}
		if !ok {
			return roi, invalid, nil
		}
		key, err := r.readString()
		if err != nil {
			return ROI{}, nil, err
		}
		if err := r.expect(':'); err != nil {
			return ROI{}, nil, err
		}
		var dst *float32
		switch key {
		case "x":
			dst = &roi.X
		case "y":
			dst = &roi.Y
		case "width":
			dst = &roi.Width
		case "height":
			dst = &roi.Height
		default:
			if err := r.skipValue(); err != nil {
				return ROI{}, nil, err
			}
			continue
		}
		v, err := r.readScalar()
		if err != nil {
			return ROI{}, nil, err
		}
		f, ferr := v.float("roi." + key)
		*dst = f
		invalid = firstErr(invalid, ferr)
	}
}

var scalarFields = map[string]bool{
	"type": true, "action": true, "class_id": true, "min_confidence": true,
	"target": true, "exact_match": true, "case_sensitive": true,
	"tap_x": true, "tap_y": true, "tap_offset_x": true, "tap_offset_y": true,
	"min_interval_ms": true, "swipe_end_x": true, "swipe_end_y": true,
	"swipe_duration_ms": true,
}

func knownScalar(key string) bool { return scalarFields[key] }

// set assigns one decoded field, returning a validation error for values of
// the wrong shape.
func (rule *Rule) set(key string, v scalar) error {
	var err error
	switch key {
	case "type":
		rule.Type, err = v.ruleType()
	case "action":
		rule.Action, err = v.action()
	case "class_id":
		var n int64
		n, err = v.integer(key)
		rule.ClassID = int32(n)
	case "min_confidence":
		rule.MinConfidence, err = v.float(key)
	case "target":
		if v.kind != 's' {
			return apperr.New(apperr.CodeRuleInvalid, "target must be a string")
		}
		rule.Target = v.str
	case "exact_match":
		rule.ExactMatch, err = v.boolean(key)
	case "case_sensitive":
		rule.CaseSensitive, err = v.boolean(key)
	case "tap_x":
		rule.TapX, err = v.float(key)
		rule.HasTapPoint = true
	case "tap_y":
		rule.TapY, err = v.float(key)
		rule.HasTapPoint = true
	case "tap_offset_x":
		rule.TapOffsetX, err = v.float(key)
	case "tap_offset_y":
		rule.TapOffsetY, err = v.float(key)
	case "min_interval_ms":
		rule.MinIntervalMs, err = v.integer(key)
	case "swipe_end_x":
		rule.SwipeEndX, err = v.float(key)
		rule.HasSwipeEnd = true
	case "swipe_end_y":
		rule.SwipeEndY, err = v.float(key)
		rule.HasSwipeEnd = true
	case "swipe_duration_ms":
		var n int64
		n, err = v.integer(key)
		rule.SwipeDurationMs = int32(n)
	}
	return err
}

func (v scalar) float(key string) (float32, error) {
	if v.kind != 'n' {
		return 0, apperr.Newf(apperr.CodeRuleInvalid, "%s must be a number", key)
	}
	return float32(v.num), nil
}

func (v scalar) integer(key string) (int64, error) {
	if v.kind != 'n' || v.num != math.Trunc(v.num) || math.Abs(v.num) > math.MaxInt32 {
		return 0, apperr.Newf(apperr.CodeRuleInvalid, "%s must be an integer", key)
	}
	return int64(v.num), nil
}

// boolean accepts JSON booleans and the legacy 0/1 and "true"/"false" forms.
func (v scalar) boolean(key string) (bool, error) {
	switch v.kind {
	case 'b':
		return v.b, nil
	case 'n':
		if v.num == 0 || v.num == 1 {
			return v.num == 1, nil
		}
	case 's':
		switch strings.ToLower(v.str) {
		case "true", "1":
			return true, nil
		case "false", "0":
			return false, nil
		}
	}
	return false, apperr.Newf(apperr.CodeRuleInvalid, "%s must be a boolean", key)
}

func (v scalar) ruleType() (Type, error) {
	switch v.kind {
	case 's':
		switch strings.ToLower(v.str) {
		case "detection":
			return TypeDetection, nil
		case "ocr":
			return TypeOCR, nil
		}
	case 'n':
		if v.num == float64(TypeDetection) || v.num == float64(TypeOCR) {
			return Type(v.num), nil
		}
	}
	return TypeDetection, apperr.Newf(apperr.CodeRuleInvalid, "unknown rule type %s", v)
}

func (v scalar) action() (ActionType, error) {
	switch v.kind {
	case 's':
		if a, err := ParseActionType(v.str); err == nil {
			return a, nil
		}
	case 'n':
		if v.num == math.Trunc(v.num) && v.num >= float64(ActionTap) && v.num <= float64(ActionComplete) {
			return ActionType(v.num), nil
		}
	}
	return ActionTap, apperr.Newf(apperr.CodeRuleInvalid, "unknown action %s", v)
}

func (v scalar) String() string {
	switch v.kind {
	case 's':
		return `"` + v.str + `"`
	case 'n':
		return formatFloat(v.num, 64)
	case 'b':
		if v.b {
			return "true"
		}
		return "false"
	default:
		return "null"
	}
}

func firstErr(a, b error) error {
	if a != nil {
		return a
	}
	return b
}
