// Package orchestrator runs the perception-to-action loop: frames from a
// source go through detection and OCR, the router turns matches into
// actions, and actions fan out to the history, the action log and the
// injector mailbox.
package orchestrator

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	apperr "github.com/GriffinCanCode/hotpath/internal/errors"
	"github.com/GriffinCanCode/hotpath/internal/frames"
	"github.com/GriffinCanCode/hotpath/internal/ocr"
	"github.com/GriffinCanCode/hotpath/internal/orchestrator/batch"
	"github.com/GriffinCanCode/hotpath/internal/orchestrator/history"
	"github.com/GriffinCanCode/hotpath/internal/orchestrator/perception"
	"github.com/GriffinCanCode/hotpath/internal/platform"
	"github.com/GriffinCanCode/hotpath/internal/router"
	"github.com/GriffinCanCode/hotpath/internal/rules"
	"github.com/GriffinCanCode/hotpath/internal/syncx"
	"github.com/GriffinCanCode/hotpath/internal/trace"
)

// SourceFunc opens the frame source. It is called on the loop goroutine
// after it locks its OS thread, so GL contexts made current there stay put.
type SourceFunc func(ctx context.Context) (frames.Source, error)

// ActionLog persists fired actions grouped by rule session.
type ActionLog interface {
	batch.Sink
	StartSession(ctx context.Context, rs []rules.Rule) (uuid.UUID, error)
}

type displayConnector interface {
	Connect(ctx context.Context, token platform.Handle, srcW, srcH uint32) error
	Disconnect(ctx context.Context)
}

// Config tunes the loop.
type Config struct {
	// Screen is the device resolution actions are scaled to. When zero the
	// frame size is used.
	Screen       router.Screen
	FrameTimeout time.Duration
}

// Deps are the collaborators of a Manager. Log and Benchmark may be nil.
type Deps struct {
	Router     *router.Router
	Perception *perception.Processor
	Log        ActionLog
	Benchmark  func() ocr.Benchmark
	Open       SourceFunc
}

// Manager coordinates the loop.
type Manager struct {
	cfg     Config
	router  *router.Router
	percept *perception.Processor
	bench   func() ocr.Benchmark
	log     ActionLog
	history *history.MemoryStore
	batcher *batch.Batcher
	actions *syncx.Mailbox[router.Action]
	open    SourceFunc
	now     func() time.Time

	src *syncx.Guard[frames.Source]

	running  atomic.Bool
	frames   atomic.Uint64
	fired    atomic.Uint64
	failures atomic.Uint64
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// New creates a manager.
func New(cfg Config, deps Deps) *Manager {
	if cfg.FrameTimeout <= 0 {
		cfg.FrameTimeout = DefaultFrameTimeout
	}
	m := &Manager{
		cfg:     cfg,
		router:  deps.Router,
		percept: deps.Perception,
		bench:   deps.Benchmark,
		log:     deps.Log,
		history: history.NewStore(HistoryMaxEntries, HistoryEventBuffer),
		actions: syncx.NewMailbox[router.Action](),
		src:     syncx.NewGuard[frames.Source](nil),
		open:    deps.Open,
		now:     time.Now,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	if deps.Log != nil {
		m.batcher = batch.NewBatcher(deps.Log, ActionBatchMaxSize, ActionBatchFlushDelay)
	}
	return m
}

// LoadRules replaces the rule set from JSON and starts a new action-log
// session. Dropped rules come back as warnings; a malformed document keeps
// the previous rules.
func (m *Manager) LoadRules(ctx context.Context, data []byte) ([]error, error) {
	ctx, span := trace.StartSpan(ctx, "load_rules")
	defer span.End()

	warnings, err := m.router.LoadRules(data)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	m.percept.Forget()

	rs := m.router.Rules()
	span.SetAttr("rules", len(rs))
	span.SetAttr("dropped", len(warnings))
	log := trace.Logger(ctx)
	if m.log != nil {
		id, err := m.log.StartSession(ctx, rs)
		if err != nil {
			log.Warn("action log session not started", "error", err)
		} else {
			span.SetAttr("session", id.String())
		}
	}
	log.Info("rules loaded", "rules", len(rs), "dropped", len(warnings))
	return warnings, nil
}

// Rules returns the active rule set.
func (m *Manager) Rules() []rules.Rule { return m.router.Rules() }

// Reset clears debounce state and the completion latch.
func (m *Manager) Reset() {
	m.router.Reset()
	m.percept.Forget()
}

// Run opens the source and processes frames until ctx ends or Stop is
// called. It owns its OS thread for the whole run.
func (m *Manager) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return apperr.New(apperr.CodeInvalidState, "loop already running")
	}
	defer close(m.done)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	log := trace.Logger(ctx)
	src, err := m.open(ctx)
	if err != nil {
		return apperr.Wrap(err, apperr.CodeNotInitialized, "open frame source")
	}
	m.src.Set(src)

	// held is the frame perception currently points at. It goes back to the
	// source only after the next frame has replaced it.
	var held frames.Frame
	defer func() {
		m.percept.Retain()
		held.Release()
		m.src.Set(nil)
		src.Close(context.Background())
	}()

	log.Info("perception loop started", "frame_timeout", m.cfg.FrameTimeout)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.stopCh:
			return nil
		default:
		}

		f, ok, err := src.Next(ctx, m.cfg.FrameTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			m.failures.Add(1)
			log.Warn("frame acquire failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-m.stopCh:
				return nil
			case <-time.After(AcquireErrorBackoff):
			}
			continue
		}
		if !ok {
			continue
		}
		m.perceive(ctx, src, f)
		held.Release()
		held = f
	}
}

// perceive runs detection and every OCR region on a frame, then lets the
// router pick the highest-priority match. At most one action fires per frame.
func (m *Manager) perceive(ctx context.Context, src frames.Source, f frames.Frame) {
	ctx, span := trace.StartSpan(ctx, "perceive_frame")
	defer span.End()
	span.SetAttr("frame", f.Index)
	m.frames.Add(1)
	m.percept.Store(f.Image)

	log := trace.Logger(ctx)
	if m.router.IsComplete() {
		log.Debug("automation complete, frame ignored")
		return
	}

	screen := m.screen(f)
	nowMs := m.now().UnixMilli()

	var obs router.Observation
	start := time.Now()
	dets, err := m.percept.Detect(ctx, f.Image)
	span.SetAttr("detect_ms", time.Since(start).Milliseconds())
	if err != nil {
		span.RecordError(err)
		log.Warn("detection failed", "error", err)
	}
	obs.Detections = dets

	start = time.Now()
	for _, roi := range m.router.OCRRegions() {
		crop, err := src.Region(roi)
		if err != nil {
			log.Warn("region crop failed", "roi", roi, "error", err)
			continue
		}
		results, err := m.percept.Read(ctx, roi, crop)
		if err != nil {
			span.RecordError(err)
			log.Warn("ocr failed", "roi", roi, "error", err)
			continue
		}
		obs.Regions = append(obs.Regions, router.RegionText{ROI: roi, Results: results})
	}
	span.SetAttr("ocr_ms", time.Since(start).Milliseconds())

	a, ok := m.router.EvaluateFrame(obs, screen, nowMs)
	if !ok {
		log.Debug("no rule matched")
		return
	}
	source := SourceDetection
	if a.MatchedClassID < 0 {
		source = SourceOCR
	}
	m.emit(ctx, a, source)
}

func (m *Manager) screen(f frames.Frame) router.Screen {
	if m.cfg.Screen.Width > 0 && m.cfg.Screen.Height > 0 {
		return m.cfg.Screen
	}
	if f.Image == nil {
		return router.Screen{}
	}
	return router.Screen{Width: int32(f.Image.Rect.Dx()), Height: int32(f.Image.Rect.Dy())}
}

func (m *Manager) emit(ctx context.Context, a router.Action, source string) {
	m.fired.Add(1)
	m.history.Add(a, source)
	m.history.Emit(history.Event{Action: a, Source: source})
	if m.batcher != nil {
		m.batcher.Add(a)
	}
	m.actions.Put(a)
	trace.Logger(ctx).Info("action fired",
		"action", a.Type, "rule", a.RuleIndex, "source", source, "x", a.X1, "y", a.Y1)
}

// NextAction blocks until the injector can take an action. Only the most
// recent unconsumed action is kept.
func (m *Manager) NextAction(ctx context.Context) (router.Action, bool) {
	return m.actions.Take(ctx)
}

// ActionEvents returns the channel of fired actions for the live feed.
func (m *Manager) ActionEvents() <-chan history.Event {
	return m.history.Events()
}

// RecentActions returns actions fired within window; zero means all kept.
func (m *Manager) RecentActions(window time.Duration) []history.Entry {
	return m.history.Recent(window)
}

// ConnectDisplay routes a virtual display into the running source.
func (m *Manager) ConnectDisplay(ctx context.Context, token platform.Handle, srcW, srcH uint32) error {
	c, err := m.connector()
	if err != nil {
		return err
	}
	if err := c.Connect(ctx, token, srcW, srcH); err != nil {
		return err
	}
	m.router.Reset()
	trace.Logger(ctx).Info("display connected", "width", srcW, "height", srcH)
	return nil
}

// DisconnectDisplay clears the display routing.
func (m *Manager) DisconnectDisplay(ctx context.Context) error {
	c, err := m.connector()
	if err != nil {
		return err
	}
	c.Disconnect(ctx)
	return nil
}

func (m *Manager) connector() (displayConnector, error) {
	src := m.src.Get()
	if src == nil {
		return nil, apperr.New(apperr.CodeNotInitialized, "frame source not running")
	}
	c, ok := src.(displayConnector)
	if !ok {
		return nil, apperr.New(apperr.CodeUnavailable, "frame source cannot route displays")
	}
	return c, nil
}

// ScreenText returns the latest OCR text.
func (m *Manager) ScreenText() string { return m.percept.Text() }

// ScreenImage returns the latest frame as PNG.
func (m *Manager) ScreenImage() []byte { return m.percept.Image() }

// Describe asks the vision backend about the latest frame.
func (m *Manager) Describe(ctx context.Context) (string, error) {
	ctx, span := trace.StartSpan(ctx, "describe_frame")
	defer span.End()
	text, err := m.percept.Describe(ctx)
	if err != nil {
		span.RecordError(err)
		trace.Logger(ctx).Debug("describe unavailable", "error", err)
	}
	return text, err
}

// Status is a snapshot of loop counters.
type Status struct {
	Running    bool               `json:"running"`
	Complete   bool               `json:"complete"`
	Rules      int                `json:"rules"`
	Frames     uint64             `json:"frames"`
	Fired      uint64             `json:"fired"`
	Failures   uint64             `json:"acquire_failures"`
	OCRReads   uint64             `json:"ocr_reads"`
	OCRSkipped uint64             `json:"ocr_skipped"`
	Mailbox    syncx.MailboxStats `json:"mailbox"`
	OCR        *ocr.Benchmark     `json:"ocr,omitempty"`
}

// Status returns loop counters.
func (m *Manager) Status() Status {
	reads, skipped := m.percept.Stats()
	s := Status{
		Running:    m.running.Load() && !m.stopped(),
		Complete:   m.router.IsComplete(),
		Rules:      len(m.router.Rules()),
		Frames:     m.frames.Load(),
		Fired:      m.fired.Load(),
		Failures:   m.failures.Load(),
		OCRReads:   reads,
		OCRSkipped: skipped,
		Mailbox:    m.actions.Stats(),
	}
	if m.bench != nil {
		b := m.bench()
		s.OCR = &b
	}
	return s
}

func (m *Manager) stopped() bool {
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}

// Stop ends the loop, flushes the action log and wakes the injector.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		if m.running.Load() {
			<-m.done
		}
		if m.batcher != nil {
			m.batcher.Stop()
		}
		m.actions.Close()
	})
}
