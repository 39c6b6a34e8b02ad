// Package router is the hot-path decision engine. It matches detections and
// recognized text against a priority-ordered rule list and emits at most one
// debounced Action per evaluation.
package router

import (
	"hash/fnv"
	"log/slog"
	"math"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/GriffinCanCode/hotpath/internal/ocr"
	"github.com/GriffinCanCode/hotpath/internal/rules"
)

// ROITolerance is the per-axis slack between a rule's ROI and the ROI that
// was actually scanned.
const ROITolerance = 0.01

// key identifies a debounce slot: a class id for detection rules, a hash of
// ROI and target for OCR rules.
type key struct {
	ocr bool
	id  uint64
}

// Router evaluates rules. Evaluate, EvaluateOCR, LoadRules and Reset may be
// called from different goroutines.
type Router struct {
	mu       sync.Mutex
	rules    []rules.Rule
	lastFire map[key]int64

	complete atomic.Bool
}

// New returns a router with no rules.
func New() *Router {
	return &Router{lastFire: make(map[key]int64)}
}

// LoadRules parses data and installs the result. On a malformed document
// the current rule set is left untouched. warnings lists dropped rules.
func (r *Router) LoadRules(data []byte) (warnings []error, err error) {
	parsed, warnings, err := rules.Parse(data)
	if err != nil {
		return nil, err
	}
	r.SetRules(parsed)
	slog.Info("rules loaded", "count", len(parsed), "dropped", len(warnings))
	return warnings, nil
}

// SetRules installs an already validated rule set and clears session state.
func (r *Router) SetRules(rs []rules.Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = slices.Clone(rs)
	clear(r.lastFire)
	r.complete.Store(false)
}

// Rules returns a copy of the loaded rules in priority order.
func (r *Router) Rules() []rules.Rule {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.rules)
}

// Reset clears debounce history and the complete latch, keeping the rules.
func (r *Router) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.lastFire)
	r.complete.Store(false)
}

// IsComplete reports whether a complete action has fired. It does not lock.
func (r *Router) IsComplete() bool { return r.complete.Load() }

// RegionText is the OCR output for one scanned ROI.
type RegionText struct {
	ROI     rules.ROI
	Results []ocr.Result
}

// Observation is everything perceived in one frame: normalized detections
// and the text read from each scanned region.
type Observation struct {
	Detections []ocr.RotatedRect
	Regions    []RegionText
}

func (o Observation) empty() bool {
	if len(o.Detections) > 0 {
		return false
	}
	for _, reg := range o.Regions {
		if len(reg.Results) > 0 {
			return false
		}
	}
	return true
}

// EvaluateFrame walks the rules once in priority order against everything
// seen in a frame. The first rule that matches and is not debounced fires,
// whatever its type.
func (r *Router) EvaluateFrame(obs Observation, screen Screen, nowMs int64) (Action, bool) {
	if r.complete.Load() || obs.empty() {
		return Action{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.complete.Load() {
		return Action{}, false
	}

	for i, rule := range r.rules {
		var (
			a  Action
			k  key
			ok bool
		)
		switch rule.Type {
		case rules.TypeDetection:
			a, k, ok = matchDetection(rule, obs.Detections, screen)
		case rules.TypeOCR:
			for _, reg := range obs.Regions {
				if ROIMatches(rule.ROI, reg.ROI) {
					a, k, ok = matchText(rule, reg.Results, screen)
					break
				}
			}
		}
		if !ok || r.debounced(k, rule.MinIntervalMs, nowMs) {
			continue
		}
		return r.fire(i, k, a, nowMs), true
	}
	return Action{}, false
}

// Evaluate matches normalized detections against the detection rules. For
// each rule in order it picks the most confident matching detection; the
// first rule that matches and is not debounced fires.
func (r *Router) Evaluate(dets []ocr.RotatedRect, screen Screen, nowMs int64) (Action, bool) {
	return r.EvaluateFrame(Observation{Detections: dets}, screen, nowMs)
}

// EvaluateOCR matches recognized text from the ROI scanned against OCR
// rules declaring that ROI.
func (r *Router) EvaluateOCR(results []ocr.Result, scanned rules.ROI, screen Screen, nowMs int64) (Action, bool) {
	return r.EvaluateFrame(Observation{Regions: []RegionText{{ROI: scanned, Results: results}}}, screen, nowMs)
}

// matchDetection picks the most confident detection satisfying rule.
func matchDetection(rule rules.Rule, dets []ocr.RotatedRect, screen Screen) (Action, key, bool) {
	best := -1
	for j, d := range dets {
		if d.ClassID != rule.ClassID || d.Confidence < rule.MinConfidence {
			continue
		}
		if best < 0 || d.Confidence > dets[best].Confidence {
			best = j
		}
	}
	if best < 0 {
		return Action{}, key{}, false
	}
	d := dets[best]
	a := build(rule, d.CenterX, d.CenterY, screen)
	a.MatchedClassID = d.ClassID
	a.MatchedConfidence = d.Confidence
	return a, key{id: uint64(rule.ClassID)}, true
}

// matchText picks the most confident result whose text satisfies rule.
func matchText(rule rules.Rule, results []ocr.Result, screen Screen) (Action, key, bool) {
	best := -1
	for j, res := range results {
		if !TextMatches(rule, res.Text) {
			continue
		}
		if best < 0 || res.Confidence > results[best].Confidence {
			best = j
		}
	}
	if best < 0 {
		return Action{}, key{}, false
	}
	x, y := rule.ROI.Center()
	if rule.HasTapPoint {
		x, y = rule.TapX, rule.TapY
	}
	res := results[best]
	a := build(rule, x, y, screen)
	a.MatchedClassID = -1
	a.MatchedConfidence = res.Confidence
	a.MatchedText = res.Text
	return a, ocrKey(rule), true
}

// OCRRegions returns the distinct ROIs the OCR rules want scanned, in
// priority order.
func (r *Router) OCRRegions() []rules.ROI {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []rules.ROI
	for _, rule := range r.rules {
		if rule.Type != rules.TypeOCR {
			continue
		}
		dup := slices.ContainsFunc(out, func(roi rules.ROI) bool { return ROIMatches(roi, rule.ROI) })
		if !dup {
			out = append(out, rule.ROI)
		}
	}
	return out
}

func (r *Router) debounced(k key, intervalMs, nowMs int64) bool {
	last, ok := r.lastFire[k]
	return ok && nowMs-last < intervalMs
}

func (r *Router) fire(i int, k key, a Action, nowMs int64) Action {
	r.lastFire[k] = nowMs
	a.RuleIndex = i
	a.Timestamp = nowMs
	if a.Type == rules.ActionComplete {
		r.complete.Store(true)
		slog.Info("automation complete", "rule", i)
	}
	return a
}

// ROIMatches reports whether two ROIs agree within ROITolerance on every
// axis.
func ROIMatches(declared, scanned rules.ROI) bool {
	near := func(a, b float32) bool { return math.Abs(float64(a-b)) <= ROITolerance }
	return near(declared.X, scanned.X) && near(declared.Y, scanned.Y) &&
		near(declared.Width, scanned.Width) && near(declared.Height, scanned.Height)
}

// TextMatches applies the rule's exact or substring policy, folding case
// unless the rule is case sensitive.
func TextMatches(rule rules.Rule, text string) bool {
	target := rule.Target
	if !rule.CaseSensitive {
		target = strings.ToLower(target)
		text = strings.ToLower(text)
	}
	if rule.ExactMatch {
		return text == target
	}
	return strings.Contains(text, target)
}

// ocrKey hashes the ROI bits and target with FNV-1a.
func ocrKey(rule rules.Rule) key {
	h := fnv.New64a()
	var buf [16]byte
	for i, v := range []float32{rule.ROI.X, rule.ROI.Y, rule.ROI.Width, rule.ROI.Height} {
		bits := math.Float32bits(v)
		buf[i*4] = byte(bits)
		buf[i*4+1] = byte(bits >> 8)
		buf[i*4+2] = byte(bits >> 16)
		buf[i*4+3] = byte(bits >> 24)
	}
	h.Write(buf[:])
	h.Write([]byte(rule.Target))
	return key{ocr: true, id: h.Sum64()}
}
