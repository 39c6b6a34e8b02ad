package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/hotpath/internal/display"
	apperr "github.com/GriffinCanCode/hotpath/internal/errors"
	"github.com/GriffinCanCode/hotpath/internal/platform"
	"github.com/GriffinCanCode/hotpath/internal/resilience"
)

// State is the pipeline lifecycle.
type State int32

const (
	StateUninitialized State = iota
	StateInitialized
	StateConnected
	StateDisconnected
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateShutdown:
		return "shutdown"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Polling backoff for AcquireFrameTimeout.
const (
	MinPollInterval = time.Millisecond
	MaxPollInterval = 16 * time.Millisecond
)

// Frame is one acquired compositor buffer, valid until the next acquire.
type Frame struct {
	TextureID   uint32
	TimestampNs int64
	Transform   [16]float32 // column-major
	Index       uint64
}

// Stats is a snapshot of pipeline counters.
type Stats struct {
	State          State
	FramesAcquired uint64
	EmptyPolls     uint64
	LastTimestamp  int64
	Callback       bool
	Surface        bool
}

// Pipeline is the buffer-queue capture pipeline. It must be driven from the
// goroutine that holds the GL context.
type Pipeline struct {
	native  Native
	gl      GLContext
	display *display.Adapter

	mu        sync.Mutex
	state     State
	width     uint32
	height    uint32
	producer  platform.Handle
	consumer  platform.Handle
	glc       platform.Handle
	surface   platform.Handle
	texture   uint32
	token     platform.Handle
	callback  bool
	lastTS    int64
	hasFrame  bool
	index     uint64
	transform [16]float32
	xformOK   bool

	pending atomic.Bool
	wake    chan struct{}

	acquired atomic.Uint64
	empty    atomic.Uint64

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

// New creates an uninitialized pipeline.
func New(native Native, gl GLContext, adapter *display.Adapter) *Pipeline {
	return &Pipeline{
		native:  native,
		gl:      gl,
		display: adapter,
		wake:    make(chan struct{}, 1),
		now:     time.Now,
		after:   time.After,
	}
}

// Initialize creates the queue, the external texture, the GL consumer and,
// when possible, a producer Surface.
func (p *Pipeline) Initialize(width, height uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateUninitialized {
		return apperr.Newf(apperr.CodeInvalidState, "initialize in state %s", p.state)
	}
	if width == 0 || height == 0 {
		return apperr.Newf(apperr.CodeInvalidArgument, "capture size %dx%d", width, height)
	}
	if err := p.gl.ValidateThread(); err != nil {
		return err
	}
	if err := p.native.Load(); err != nil {
		return err
	}

	producer, consumer, err := p.native.CreateBufferQueue()
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "create buffer queue")
	}

	tex, err := p.gl.GenExternalTexture()
	if err != nil {
		p.native.ReleaseQueue(producer, consumer)
		return apperr.Wrap(err, apperr.CodeInternal, "create external texture")
	}

	glc, err := p.native.NewGLConsumer(consumer, tex)
	if err != nil {
		p.gl.DeleteTexture(tex)
		p.native.ReleaseQueue(producer, consumer)
		return apperr.Wrap(err, apperr.CodeInternal, "create gl consumer")
	}

	p.width, p.height = width, height
	p.producer, p.consumer, p.glc, p.texture = producer, consumer, glc, tex

	if p.native.CanCreateSurface() {
		s, err := p.native.NewSurface(producer)
		if err != nil {
			slog.Warn("surface construction failed, using producer directly", "error", err)
		} else {
			p.surface = s
		}
	} else {
		slog.Info("surface symbols unavailable, using producer directly")
	}

	p.callback = p.native.SetFrameListener(glc, p.onFrameAvailable)
	if !p.callback {
		slog.Debug("frame-available callback unavailable, polling only")
	}

	p.state = StateInitialized
	slog.Info("capture pipeline initialized",
		"width", width, "height", height, "texture", tex,
		"surface", !p.surface.IsNil(), "callback", p.callback)
	return nil
}

func (p *Pipeline) onFrameAvailable() {
	p.pending.Store(true)
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// target is the compositor-facing handle: the Surface when one exists,
// otherwise the raw producer.
func (p *Pipeline) target() platform.Handle {
	if !p.surface.IsNil() {
		return p.surface
	}
	return p.producer
}

// ConnectToDisplay routes the virtual display identified by token into the
// pipeline, projecting srcW×srcH source pixels onto the capture buffer.
func (p *Pipeline) ConnectToDisplay(ctx context.Context, token platform.Handle, srcW, srcH uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case StateInitialized, StateDisconnected:
	case StateConnected:
		if p.token == token {
			return nil
		}
		p.disconnectLocked(ctx)
	default:
		return apperr.Newf(apperr.CodeNotInitialized, "connect in state %s", p.state)
	}

	if token.IsNil() {
		return apperr.New(apperr.CodeInvalidArgument, "nil display token")
	}
	if srcW == 0 || srcH == 0 {
		return apperr.Newf(apperr.CodeInvalidArgument, "source size %dx%d", srcW, srcH)
	}

	src := display.SizeRect(srcW, srcH)
	dst := display.SizeRect(p.width, p.height)
	if err := p.display.Bind(ctx, token, p.target(), src, dst); err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "bind display")
	}

	p.token = token
	p.state = StateConnected
	slog.Info("connected to display", "token", token, "source_w", srcW, "source_h", srcH)
	return nil
}

// DisconnectFromDisplay clears the compositor binding. Local state is
// cleared even when the transaction fails.
func (p *Pipeline) DisconnectFromDisplay(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disconnectLocked(ctx)
}

func (p *Pipeline) disconnectLocked(ctx context.Context) {
	if p.state != StateConnected {
		return
	}
	if !p.token.IsNil() {
		if err := p.display.Unbind(ctx, p.token); err != nil {
			slog.Warn("display unbind failed", "token", p.token, "error", err)
		}
	}
	p.token = platform.Handle{}
	p.state = StateDisconnected
}

// AcquireFrame latches the newest queued buffer into the external texture.
// ok is false when no new frame is ready, which is the common case between
// compositor updates.
func (p *Pipeline) AcquireFrame() (Frame, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acquireLocked()
}

func (p *Pipeline) acquireLocked() (Frame, bool, error) {
	switch p.state {
	case StateInitialized, StateConnected, StateDisconnected:
	default:
		return Frame{}, false, apperr.Newf(apperr.CodeNotInitialized, "acquire in state %s", p.state)
	}
	if err := p.gl.ValidateThread(); err != nil {
		return Frame{}, false, err
	}

	p.pending.Store(false)
	if err := p.native.UpdateTexImage(p.glc); err != nil {
		if errors.Is(err, ErrNoBuffer) {
			p.empty.Add(1)
			return Frame{}, false, nil
		}
		return Frame{}, false, apperr.Wrap(err, apperr.CodeInternal, "update tex image")
	}

	ts := p.native.Timestamp(p.glc)
	if p.hasFrame && ts == p.lastTS {
		p.empty.Add(1)
		return Frame{}, false, nil
	}

	p.hasFrame = true
	p.lastTS = ts
	p.xformOK = false
	p.index++
	p.acquired.Add(1)

	return Frame{
		TextureID:   p.texture,
		TimestampNs: ts,
		Transform:   p.transformLocked(),
		Index:       p.index,
	}, true, nil
}

// AcquireFrameTimeout polls AcquireFrame with exponential backoff until a
// frame arrives or timeout elapses. A frame-available callback cuts the
// current sleep short.
func (p *Pipeline) AcquireFrameTimeout(timeout time.Duration) (Frame, bool, error) {
	deadline := p.now().Add(timeout)
	poll := resilience.Backoff{Base: MinPollInterval, Max: MaxPollInterval}

	for attempt := 0; ; attempt++ {
		f, ok, err := p.AcquireFrame()
		if err != nil || ok {
			return f, ok, err
		}

		remaining := deadline.Sub(p.now())
		if remaining <= 0 {
			return Frame{}, false, nil
		}
		if p.pending.Load() {
			continue
		}

		select {
		case <-p.wake:
		case <-p.after(min(poll.Delay(attempt), remaining)):
		}
	}
}

// Transform returns the consumer transform for the current frame, computing
// it at most once per acquired frame.
func (p *Pipeline) Transform() [16]float32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.transformLocked()
}

func (p *Pipeline) transformLocked() [16]float32 {
	if !p.xformOK && !p.glc.IsNil() {
		p.transform = p.native.TransformMatrix(p.glc)
		p.xformOK = true
	}
	return p.transform
}

// Timestamp returns the timestamp of the current frame in nanoseconds.
func (p *Pipeline) Timestamp() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastTS
}

// Size returns the fixed capture buffer size.
func (p *Pipeline) Size() (uint32, uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.width, p.height
}

// Texture returns the external texture bound to the consumer.
func (p *Pipeline) Texture() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.texture
}

// State returns the lifecycle state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Stats returns a counter snapshot.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		State:          p.state,
		FramesAcquired: p.acquired.Load(),
		EmptyPolls:     p.empty.Load(),
		LastTimestamp:  p.lastTS,
		Callback:       p.callback,
		Surface:        !p.surface.IsNil(),
	}
}

// Shutdown releases every native resource. It is safe to call repeatedly.
func (p *Pipeline) Shutdown(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateShutdown {
		return
	}
	p.disconnectLocked(ctx)

	if p.callback {
		p.native.ClearFrameListener(p.glc)
		p.callback = false
	}
	if !p.glc.IsNil() {
		p.native.ReleaseGLConsumer(p.glc)
	}
	p.glc = platform.Handle{}

	if !p.surface.IsNil() {
		p.native.DestroySurface(p.surface)
		p.surface = platform.Handle{}
	}
	if p.texture != 0 {
		if err := p.gl.ValidateThread(); err != nil {
			slog.Warn("texture left to the GL context", "texture", p.texture, "error", err)
		} else {
			p.gl.DeleteTexture(p.texture)
		}
		p.texture = 0
	}
	if !p.producer.IsNil() || !p.consumer.IsNil() {
		p.native.ReleaseQueue(p.producer, p.consumer)
		p.producer, p.consumer = platform.Handle{}, platform.Handle{}
	}
	if err := p.native.Close(); err != nil {
		slog.Warn("close platform library", "error", err)
	}

	p.state = StateShutdown
	slog.Info("capture pipeline shut down", "frames", p.acquired.Load())
}
