package capture

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/hotpath/internal/display"
	apperr "github.com/GriffinCanCode/hotpath/internal/errors"
	"github.com/GriffinCanCode/hotpath/internal/platform"
)

type fakeNative struct {
	mu sync.Mutex

	loadErr     error
	surfaceOK   bool
	listenerOK  bool
	listener    func()
	timestamps  []int64 // consumed one per UpdateTexImage; empty means no buffer
	current     int64
	xformCalls  int
	released    []string
	closeCalls  int
	surfaceMade bool
}

func (f *fakeNative) Load() error { return f.loadErr }

func (f *fakeNative) CreateBufferQueue() (platform.Handle, platform.Handle, error) {
	return platform.NewHandle(platform.KindProducer, 0x100), platform.NewHandle(platform.KindConsumer, 0x200), nil
}

func (f *fakeNative) ReleaseQueue(producer, consumer platform.Handle) {
	f.released = append(f.released, "queue")
}

func (f *fakeNative) NewGLConsumer(consumer platform.Handle, texture uint32) (platform.Handle, error) {
	return platform.NewHandle(platform.KindGLConsumer, 0x300), nil
}

func (f *fakeNative) ReleaseGLConsumer(glc platform.Handle) {
	f.released = append(f.released, "glconsumer")
}

func (f *fakeNative) UpdateTexImage(glc platform.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.timestamps) == 0 {
		if f.current == 0 {
			return ErrNoBuffer
		}
		return nil
	}
	f.current = f.timestamps[0]
	f.timestamps = f.timestamps[1:]
	return nil
}

func (f *fakeNative) push(ts ...int64) {
	f.mu.Lock()
	f.timestamps = append(f.timestamps, ts...)
	f.mu.Unlock()
}

func (f *fakeNative) TransformMatrix(glc platform.Handle) [16]float32 {
	f.xformCalls++
	return [16]float32{1, 0, 0, 0, 0, -1, 0, 0, 0, 0, 1, 0, 0, 1, 0, 1}
}

func (f *fakeNative) Timestamp(glc platform.Handle) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *fakeNative) SetFrameListener(glc platform.Handle, fn func()) bool {
	if !f.listenerOK {
		return false
	}
	f.listener = fn
	return true
}

func (f *fakeNative) ClearFrameListener(glc platform.Handle) {
	f.released = append(f.released, "listener")
}

func (f *fakeNative) CanCreateSurface() bool { return f.surfaceOK }

func (f *fakeNative) NewSurface(producer platform.Handle) (platform.Handle, error) {
	f.surfaceMade = true
	return platform.NewHandle(platform.KindSurface, 0x400), nil
}

func (f *fakeNative) DestroySurface(surface platform.Handle) {
	f.released = append(f.released, "surface")
}

func (f *fakeNative) Close() error {
	f.closeCalls++
	return nil
}

type fakeGL struct {
	deleted   []uint32
	threadErr error
}

func (g *fakeGL) ValidateThread() error               { return g.threadErr }
func (g *fakeGL) GenExternalTexture() (uint32, error) { return 7, nil }
func (g *fakeGL) DeleteTexture(id uint32)             { g.deleted = append(g.deleted, id) }

type txCall struct {
	op     string
	token  platform.Handle
	target platform.Handle
	src    display.Rect
	dst    display.Rect
}

type fakeTx struct {
	calls    []txCall
	applyErr error
}

func (f *fakeTx) Open() (platform.Handle, error) {
	return platform.NewHandle(platform.KindTransaction, 0x900), nil
}

func (f *fakeTx) SetDisplaySurface(tx, token, target platform.Handle) error {
	f.calls = append(f.calls, txCall{op: "surface", token: token, target: target})
	return nil
}

func (f *fakeTx) SetDisplayProjection(tx, token platform.Handle, rot display.Rotation, source, dest display.Rect) error {
	f.calls = append(f.calls, txCall{op: "projection", token: token, src: source, dst: dest})
	return nil
}

func (f *fakeTx) Apply(tx platform.Handle) error { return f.applyErr }
func (f *fakeTx) Close(tx platform.Handle)       {}

func newTestPipeline(t *testing.T, n *fakeNative) (*Pipeline, *fakeTx, *fakeGL) {
	t.Helper()
	tx := &fakeTx{}
	gl := &fakeGL{}
	p := New(n, gl, display.NewAdapter(tx))
	return p, tx, gl
}

func token(addr uintptr) platform.Handle { return platform.NewHandle(platform.KindDisplayToken, addr) }

func TestInitializeRejectsZeroSize(t *testing.T) {
	p, _, _ := newTestPipeline(t, &fakeNative{})

	err := p.Initialize(0, 720)
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidArgument))
	assert.Equal(t, StateUninitialized, p.State())
}

func TestInitializeMissingRequiredSymbols(t *testing.T) {
	n := &fakeNative{loadErr: apperr.New(apperr.CodeSymbolMissing, "no candidate resolved for create_buffer_queue")}
	p, _, _ := newTestPipeline(t, n)

	err := p.Initialize(720, 1280)
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeSymbolMissing))
}

func TestConnectUsesSurfaceWhenAvailable(t *testing.T) {
	n := &fakeNative{surfaceOK: true}
	p, tx, _ := newTestPipeline(t, n)
	require.NoError(t, p.Initialize(720, 1280))

	require.NoError(t, p.ConnectToDisplay(context.Background(), token(1), 1080, 1920))

	require.Len(t, tx.calls, 2)
	assert.Equal(t, platform.KindSurface, tx.calls[0].target.Kind())
	assert.Equal(t, display.Rect{Right: 1080, Bottom: 1920}, tx.calls[1].src)
	assert.Equal(t, display.Rect{Right: 720, Bottom: 1280}, tx.calls[1].dst)
	assert.Equal(t, StateConnected, p.State())
}

func TestConnectFallsBackToProducer(t *testing.T) {
	p, tx, _ := newTestPipeline(t, &fakeNative{})
	require.NoError(t, p.Initialize(720, 1280))

	require.NoError(t, p.ConnectToDisplay(context.Background(), token(1), 1080, 1920))
	assert.Equal(t, platform.KindProducer, tx.calls[0].target.Kind())
	assert.False(t, p.Stats().Surface)
}

func TestConnectSameTokenIsNoop(t *testing.T) {
	p, tx, _ := newTestPipeline(t, &fakeNative{})
	require.NoError(t, p.Initialize(720, 1280))

	ctx := context.Background()
	require.NoError(t, p.ConnectToDisplay(ctx, token(1), 1080, 1920))
	require.NoError(t, p.ConnectToDisplay(ctx, token(1), 1080, 1920))

	assert.Len(t, tx.calls, 2)
}

func TestReconnectDifferentTokenDisconnectsFirst(t *testing.T) {
	p, tx, _ := newTestPipeline(t, &fakeNative{})
	require.NoError(t, p.Initialize(720, 1280))

	ctx := context.Background()
	require.NoError(t, p.ConnectToDisplay(ctx, token(1), 1080, 1920))
	require.NoError(t, p.ConnectToDisplay(ctx, token(2), 1080, 1920))

	require.Len(t, tx.calls, 5)
	assert.Equal(t, "surface", tx.calls[2].op)
	assert.Equal(t, token(1), tx.calls[2].token)
	assert.True(t, tx.calls[2].target.IsNil())
	assert.Equal(t, token(2), tx.calls[3].token)
}

func TestConnectBeforeInitialize(t *testing.T) {
	p, _, _ := newTestPipeline(t, &fakeNative{})

	err := p.ConnectToDisplay(context.Background(), token(1), 1080, 1920)
	assert.True(t, apperr.IsCode(err, apperr.CodeNotInitialized))
}

func TestDisconnectClearsStateOnFailure(t *testing.T) {
	p, tx, _ := newTestPipeline(t, &fakeNative{})
	require.NoError(t, p.Initialize(720, 1280))
	require.NoError(t, p.ConnectToDisplay(context.Background(), token(1), 1080, 1920))

	tx.applyErr = apperr.New(apperr.CodeInternal, "apply failed")
	p.DisconnectFromDisplay(context.Background())

	assert.Equal(t, StateDisconnected, p.State())
}

func TestAcquireFrame(t *testing.T) {
	n := &fakeNative{}
	p, _, _ := newTestPipeline(t, n)
	require.NoError(t, p.Initialize(720, 1280))

	_, ok, err := p.AcquireFrame()
	require.NoError(t, err)
	assert.False(t, ok, "empty queue is not a frame")

	n.push(1000)
	f, ok, err := p.AcquireFrame()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(7), f.TextureID)
	assert.Equal(t, int64(1000), f.TimestampNs)
	assert.Equal(t, uint64(1), f.Index)
	assert.Equal(t, float32(-1), f.Transform[5])

	_, ok, err = p.AcquireFrame()
	require.NoError(t, err)
	assert.False(t, ok, "same timestamp is not a new frame")

	n.push(2000)
	f, ok, _ = p.AcquireFrame()
	require.True(t, ok)
	assert.Equal(t, uint64(2), f.Index)

	st := p.Stats()
	assert.Equal(t, uint64(2), st.FramesAcquired)
	assert.Equal(t, uint64(2), st.EmptyPolls)
	assert.Equal(t, int64(2000), st.LastTimestamp)
}

func TestTransformCachedPerFrame(t *testing.T) {
	n := &fakeNative{}
	p, _, _ := newTestPipeline(t, n)
	require.NoError(t, p.Initialize(720, 1280))

	n.push(1000)
	_, ok, _ := p.AcquireFrame()
	require.True(t, ok)
	_ = p.Transform()
	_ = p.Transform()
	assert.Equal(t, 1, n.xformCalls)

	n.push(2000)
	_, _, _ = p.AcquireFrame()
	assert.Equal(t, 2, n.xformCalls)
}

func TestAcquireFrameTimeoutExpires(t *testing.T) {
	p, _, _ := newTestPipeline(t, &fakeNative{})
	require.NoError(t, p.Initialize(720, 1280))

	var waits []time.Duration
	p.after = func(d time.Duration) <-chan time.Time {
		waits = append(waits, d)
		return time.After(d)
	}

	start := time.Now()
	_, ok, err := p.AcquireFrameTimeout(40 * time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)

	require.GreaterOrEqual(t, len(waits), 3)
	assert.Equal(t, time.Millisecond, waits[0])
	assert.Equal(t, 2*time.Millisecond, waits[1])
	assert.Equal(t, 4*time.Millisecond, waits[2])
	for _, w := range waits {
		assert.LessOrEqual(t, w, MaxPollInterval)
	}
}

func TestAcquireFrameTimeoutGetsLateFrame(t *testing.T) {
	n := &fakeNative{}
	p, _, _ := newTestPipeline(t, n)
	require.NoError(t, p.Initialize(720, 1280))

	go func() {
		time.Sleep(10 * time.Millisecond)
		n.push(5000)
	}()

	f, ok, err := p.AcquireFrameTimeout(time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(5000), f.TimestampNs)
}

func TestFrameCallbackShortCircuitsSleep(t *testing.T) {
	n := &fakeNative{listenerOK: true}
	p, _, _ := newTestPipeline(t, n)
	require.NoError(t, p.Initialize(720, 1280))
	require.NotNil(t, n.listener)

	block := make(chan time.Time)
	p.after = func(time.Duration) <-chan time.Time { return block }

	go func() {
		time.Sleep(10 * time.Millisecond)
		n.push(9000)
		n.listener()
	}()

	done := make(chan struct{})
	var ok bool
	go func() {
		_, ok, _ = p.AcquireFrameTimeout(5 * time.Second)
		close(done)
	}()

	select {
	case <-done:
		assert.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("callback did not wake the polling loop")
	}
}

func TestAcquireBeforeInitialize(t *testing.T) {
	p, _, _ := newTestPipeline(t, &fakeNative{})

	_, _, err := p.AcquireFrame()
	assert.True(t, apperr.IsCode(err, apperr.CodeNotInitialized))
}

func TestUpdateTexImageFailure(t *testing.T) {
	n := &failingNative{fakeNative: &fakeNative{}}
	p := New(n, &fakeGL{}, display.NewAdapter(&fakeTx{}))
	require.NoError(t, p.Initialize(720, 1280))

	_, ok, err := p.AcquireFrame()
	assert.False(t, ok)
	assert.True(t, apperr.IsCode(err, apperr.CodeInternal))
}

type failingNative struct{ *fakeNative }

func (f *failingNative) UpdateTexImage(platform.Handle) error { return errors.New("-ENODEV") }

func TestShutdownIdempotent(t *testing.T) {
	n := &fakeNative{surfaceOK: true, listenerOK: true}
	p, _, gl := newTestPipeline(t, n)
	require.NoError(t, p.Initialize(720, 1280))
	require.NoError(t, p.ConnectToDisplay(context.Background(), token(1), 1080, 1920))

	p.Shutdown(context.Background())
	p.Shutdown(context.Background())

	assert.Equal(t, StateShutdown, p.State())
	assert.Equal(t, []string{"listener", "glconsumer", "surface", "queue"}, n.released)
	assert.Equal(t, []uint32{7}, gl.deleted)
	assert.Equal(t, 1, n.closeCalls)

	_, _, err := p.AcquireFrame()
	assert.Error(t, err)
}

func TestGLCallsCheckThread(t *testing.T) {
	n := &fakeNative{}
	p, _, gl := newTestPipeline(t, n)
	require.NoError(t, p.Initialize(720, 1280))
	n.push(1000)

	gl.threadErr = apperr.New(apperr.CodeInvalidState, "gl call off the owning thread")
	_, ok, err := p.AcquireFrame()
	assert.False(t, ok)
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidState))
	assert.Equal(t, uint64(0), p.Stats().FramesAcquired)

	p.Shutdown(context.Background())
	assert.Empty(t, gl.deleted, "texture is not deleted from a foreign thread")
	assert.Equal(t, StateShutdown, p.State())
}
