package gpu

import (
	"log/slog"
	"runtime"
	"sync"

	apperr "github.com/GriffinCanCode/hotpath/internal/errors"
)

// Context is the GL context shared by capture and preprocessing. It is
// created once and passed to each stage; it is bound to one OS thread.
type Context struct {
	drv    Driver
	egl    EGLHandles
	shared bool
	tid    int

	mu     sync.Mutex
	closed bool
}

// NewContext creates and owns a GLES context. The calling goroutine is
// locked to its OS thread until Close.
func NewContext(drv Driver) (*Context, error) {
	runtime.LockOSThread()
	h, err := drv.CreateContext()
	if err != nil {
		runtime.UnlockOSThread()
		return nil, apperr.Wrap(err, apperr.CodeInternal, "create gl context")
	}
	slog.Info("gl context created", "thread", threadID())
	return &Context{drv: drv, egl: h, tid: threadID()}, nil
}

// AttachContext adopts the context already current on the calling thread.
func AttachContext(drv Driver) (*Context, error) {
	h, ok := drv.CurrentContext()
	if !ok {
		return nil, apperr.New(apperr.CodeInvalidState, "no gl context current on this thread")
	}
	runtime.LockOSThread()
	slog.Info("attached to shared gl context", "thread", threadID())
	return &Context{drv: drv, egl: h, shared: true, tid: threadID()}, nil
}

// Driver returns the underlying driver.
func (c *Context) Driver() Driver { return c.drv }

// Shared reports whether the context belongs to the caller.
func (c *Context) Shared() bool { return c.shared }

// ValidateThread fails unless called on the owning thread, or the shared
// context is current on the calling thread.
func (c *Context) ValidateThread() error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return apperr.New(apperr.CodeNotInitialized, "gl context closed")
	}
	if c.shared {
		if cur, ok := c.drv.CurrentContext(); ok && cur.Context == c.egl.Context {
			return nil
		}
	}
	if tid := threadID(); tid != c.tid {
		return apperr.Newf(apperr.CodeInvalidState, "gl call from thread %d, context owned by %d", tid, c.tid)
	}
	return nil
}

// MakeCurrent binds the context to the calling thread and takes ownership
// of it.
func (c *Context) MakeCurrent() error {
	if err := c.drv.MakeCurrent(c.egl); err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "make current")
	}
	runtime.LockOSThread()
	c.mu.Lock()
	c.tid = threadID()
	c.mu.Unlock()
	return nil
}

// ReleaseCurrent unbinds the context so another thread can MakeCurrent.
func (c *Context) ReleaseCurrent() error {
	if err := c.ValidateThread(); err != nil {
		return err
	}
	if err := c.drv.ReleaseCurrent(c.egl); err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "release current")
	}
	runtime.UnlockOSThread()
	return nil
}

// GenExternalTexture creates a texture for a GL consumer.
func (c *Context) GenExternalTexture() (uint32, error) {
	if err := c.ValidateThread(); err != nil {
		return 0, err
	}
	id, err := c.drv.GenTexture(TextureExternalOES)
	if err != nil {
		return 0, apperr.Wrap(err, apperr.CodeInternal, "gen external texture")
	}
	return id, nil
}

// DeleteTexture deletes a texture.
func (c *Context) DeleteTexture(id uint32) {
	if id != 0 {
		c.drv.DeleteTexture(id)
	}
}

// Close destroys an owned context. Shared contexts are left to their owner.
func (c *Context) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	if !c.shared {
		c.drv.DestroyContext(c.egl)
	}
	runtime.UnlockOSThread()
}
