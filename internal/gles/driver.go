//go:build linux || darwin

package gles

import (
	"log/slog"
	"runtime"
	"sync"
	"unsafe"

	apperr "github.com/GriffinCanCode/hotpath/internal/errors"
	"github.com/GriffinCanCode/hotpath/internal/gpu"
	"github.com/GriffinCanCode/hotpath/internal/platform"
)

var _ gpu.Driver = (*Driver)(nil)

// Driver calls EGL and GLES through symbols resolved at runtime. Like any
// GL binding it must be used from the thread the context is current on.
type Driver struct {
	egl  *platform.Resolver
	gl   *platform.Resolver
	libs []platform.Library

	fn  map[string]platform.Symbol
	ext map[string]platform.Symbol

	display    uintptr
	extensions string

	mu       sync.Mutex
	uniforms map[uniformKey]int32
}

type uniformKey struct {
	prog uint32
	name string
}

// Open loads libEGL and libGLESv3 and resolves the core entry points.
func Open(apiLevel int) (*Driver, error) {
	eglLib, err := platform.OpenFirst(EGLPaths...)
	if err != nil {
		return nil, err
	}
	glLib, err := platform.OpenFirst(GLESPaths...)
	if err != nil {
		_ = eglLib.Close()
		return nil, err
	}
	d, err := New(platform.NewResolver(eglLib, apiLevel), platform.NewResolver(glLib, apiLevel), eglLib, glLib)
	if err != nil {
		_ = eglLib.Close()
		_ = glLib.Close()
		return nil, err
	}
	return d, nil
}

// New resolves the core entry points from already-opened resolvers. libs are
// closed by Close.
func New(egl, gl *platform.Resolver, libs ...platform.Library) (*Driver, error) {
	d := &Driver{
		egl:      egl,
		gl:       gl,
		libs:     libs,
		fn:       make(map[string]platform.Symbol, len(eglEntries)+len(glEntries)),
		ext:      make(map[string]platform.Symbol, len(extEntries)),
		uniforms: make(map[uniformKey]int32),
	}
	for _, name := range eglEntries {
		sym, err := egl.Require(name, core(name))
		if err != nil {
			return nil, err
		}
		d.fn[name] = sym
	}
	for _, name := range glEntries {
		sym, err := gl.Require(name, core(name))
		if err != nil {
			return nil, err
		}
		d.fn[name] = sym
	}
	return d, nil
}

func (d *Driver) call(name string, args ...uintptr) uintptr {
	return d.fn[name].Call(args...)
}

// resolveExtensions looks up extension entry points once a display exists.
func (d *Driver) resolveExtensions() {
	for _, e := range extEntries {
		name := cstr(e.name)
		addr := d.call("eglGetProcAddress", ptr(name))
		runtime.KeepAlive(name)
		if addr == 0 {
			slog.Debug("egl extension entry missing", "name", e.name)
			continue
		}
		d.ext[e.capability] = platform.Symbol{Capability: e.capability, Name: e.name, Addr: addr, Variant: platform.VariantDefault}
	}
}

func (d *Driver) hasExt(capability string) bool {
	return d.ext[capability].Valid()
}

func (d *Driver) eglError(op string) error {
	code := uint32(d.call("eglGetError"))
	if code == eglSuccess {
		return apperr.Newf(apperr.CodeInternal, "%s failed", op)
	}
	return apperr.Newf(apperr.CodeInternal, "%s: %s", op, eglErrorString(code))
}

func (d *Driver) glError(op string) error {
	if code := uint32(d.call("glGetError")); code != glNoError {
		return apperr.Newf(apperr.CodeInternal, "%s: gl error %#x", op, code)
	}
	return nil
}

// CreateContext initializes the default display and makes a GLES 3.1
// context current on a 1×1 pbuffer.
func (d *Driver) CreateContext() (gpu.EGLHandles, error) {
	dpy := d.call("eglGetDisplay", 0)
	if dpy == 0 {
		return gpu.EGLHandles{}, apperr.New(apperr.CodeUnavailable, "no egl display")
	}
	var major, minor int32
	if d.call("eglInitialize", dpy, uintptr(unsafe.Pointer(&major)), uintptr(unsafe.Pointer(&minor))) != eglTrue {
		return gpu.EGLHandles{}, d.eglError("eglInitialize")
	}
	d.display = dpy
	d.call("eglBindAPI", eglOpenGLESAPI)

	cfgAttr := configAttribs()
	var cfg uintptr
	var n int32
	ok := d.call("eglChooseConfig", dpy, ints(cfgAttr), uintptr(unsafe.Pointer(&cfg)), 1, uintptr(unsafe.Pointer(&n)))
	runtime.KeepAlive(cfgAttr)
	if ok != eglTrue || n == 0 {
		return gpu.EGLHandles{}, apperr.New(apperr.CodeUnavailable, "no GLES 3 pbuffer config")
	}

	ctxAttr := contextAttribs()
	ctx := d.call("eglCreateContext", dpy, cfg, 0, ints(ctxAttr))
	runtime.KeepAlive(ctxAttr)
	if ctx == 0 {
		return gpu.EGLHandles{}, d.eglError("eglCreateContext")
	}

	pbAttr := pbufferAttribs()
	surf := d.call("eglCreatePbufferSurface", dpy, cfg, ints(pbAttr))
	runtime.KeepAlive(pbAttr)
	if surf == 0 {
		d.call("eglDestroyContext", dpy, ctx)
		return gpu.EGLHandles{}, d.eglError("eglCreatePbufferSurface")
	}

	h := gpu.EGLHandles{Display: dpy, Context: ctx, Surface: surf}
	if err := d.MakeCurrent(h); err != nil {
		d.call("eglDestroySurface", dpy, surf)
		d.call("eglDestroyContext", dpy, ctx)
		return gpu.EGLHandles{}, err
	}
	d.loadDisplay(dpy)
	slog.Info("egl context created", "egl_major", major, "egl_minor", minor, "native_fence", d.NativeFence())
	return h, nil
}

func (d *Driver) loadDisplay(dpy uintptr) {
	d.display = dpy
	if s := d.call("eglQueryString", dpy, eglExtensions); s != 0 {
		d.extensions = goString(s)
	}
	d.resolveExtensions()
}

// CurrentContext reports the context current on the calling thread.
func (d *Driver) CurrentContext() (gpu.EGLHandles, bool) {
	ctx := d.call("eglGetCurrentContext")
	if ctx == 0 {
		return gpu.EGLHandles{}, false
	}
	dpy := d.call("eglGetCurrentDisplay")
	if d.display == 0 {
		d.loadDisplay(dpy)
	}
	return gpu.EGLHandles{Display: dpy, Context: ctx, Surface: d.call("eglGetCurrentSurface", eglDraw)}, true
}

func (d *Driver) MakeCurrent(h gpu.EGLHandles) error {
	if d.call("eglMakeCurrent", h.Display, h.Surface, h.Surface, h.Context) != eglTrue {
		return d.eglError("eglMakeCurrent")
	}
	return nil
}

func (d *Driver) ReleaseCurrent(h gpu.EGLHandles) error {
	if d.call("eglMakeCurrent", h.Display, 0, 0, 0) != eglTrue {
		return d.eglError("eglMakeCurrent(none)")
	}
	return nil
}

// DestroyContext releases and destroys h. The display stays initialized;
// other clients in the process may share it.
func (d *Driver) DestroyContext(h gpu.EGLHandles) {
	_ = d.ReleaseCurrent(h)
	if h.Surface != 0 {
		d.call("eglDestroySurface", h.Display, h.Surface)
	}
	if h.Context != 0 {
		d.call("eglDestroyContext", h.Display, h.Context)
	}
}

func (d *Driver) GenTexture(target uint32) (uint32, error) {
	var id uint32
	d.call("glGenTextures", 1, uintptr(unsafe.Pointer(&id)))
	if id == 0 {
		return 0, d.glError("glGenTextures")
	}
	t := uintptr(target)
	d.call("glBindTexture", t, uintptr(id))
	d.call("glTexParameteri", t, glTextureMinFilter, glLinear)
	d.call("glTexParameteri", t, glTextureMagFilter, glLinear)
	d.call("glTexParameteri", t, glTextureWrapS, glClampToEdge)
	d.call("glTexParameteri", t, glTextureWrapT, glClampToEdge)
	return id, d.glError("texture parameters")
}

func (d *Driver) DeleteTexture(id uint32) {
	d.call("glDeleteTextures", 1, uintptr(unsafe.Pointer(&id)))
}

func (d *Driver) BindTexture(unit int, target, id uint32) {
	d.call("glActiveTexture", uintptr(glTexture0+unit))
	d.call("glBindTexture", uintptr(target), uintptr(id))
}

// CompileCompute compiles and links a compute program.
func (d *Driver) CompileCompute(src string) (uint32, error) {
	sh := d.call("glCreateShader", glComputeShader)
	if sh == 0 {
		return 0, d.glError("glCreateShader")
	}
	defer d.call("glDeleteShader", sh)

	text := cstr(src)
	srcs := []uintptr{ptr(text)}
	d.call("glShaderSource", sh, 1, uintptr(unsafe.Pointer(&srcs[0])), 0)
	runtime.KeepAlive(text)
	runtime.KeepAlive(srcs)

	d.call("glCompileShader", sh)
	if !d.status("glGetShaderiv", sh, glCompileStatus) {
		return 0, apperr.Newf(apperr.CodeInternal, "compile compute shader: %s", d.infoLog("glGetShaderiv", "glGetShaderInfoLog", sh))
	}

	prog := d.call("glCreateProgram")
	d.call("glAttachShader", prog, sh)
	d.call("glLinkProgram", prog)
	if !d.status("glGetProgramiv", prog, glLinkStatus) {
		log := d.infoLog("glGetProgramiv", "glGetProgramInfoLog", prog)
		d.call("glDeleteProgram", prog)
		return 0, apperr.Newf(apperr.CodeInternal, "link compute program: %s", log)
	}
	return uint32(prog), nil
}

func (d *Driver) status(getter string, obj uintptr, pname uintptr) bool {
	var v int32
	d.call(getter, obj, pname, uintptr(unsafe.Pointer(&v)))
	return v != glFalse
}

func (d *Driver) infoLog(getter, logger string, obj uintptr) string {
	var n int32
	d.call(getter, obj, glInfoLogLength, uintptr(unsafe.Pointer(&n)))
	if n <= 1 {
		return "no info log"
	}
	buf := make([]byte, n)
	var written int32
	d.call(logger, obj, uintptr(n), uintptr(unsafe.Pointer(&written)), ptr(buf))
	return string(buf[:max(written, 0)])
}

func (d *Driver) DeleteProgram(prog uint32) {
	d.call("glDeleteProgram", uintptr(prog))
	d.mu.Lock()
	for k := range d.uniforms {
		if k.prog == prog {
			delete(d.uniforms, k)
		}
	}
	d.mu.Unlock()
}

func (d *Driver) UseProgram(prog uint32) { d.call("glUseProgram", uintptr(prog)) }

// location caches uniform locations per program; -1 means absent, which GL
// ignores on upload.
func (d *Driver) location(prog uint32, name string) int32 {
	key := uniformKey{prog, name}
	d.mu.Lock()
	defer d.mu.Unlock()
	if loc, ok := d.uniforms[key]; ok {
		return loc
	}
	s := cstr(name)
	loc := int32(d.call("glGetUniformLocation", uintptr(prog), ptr(s)))
	runtime.KeepAlive(s)
	d.uniforms[key] = loc
	return loc
}

func (d *Driver) UniformInt(prog uint32, name string, v ...int32) {
	entry, err := uniformEntry("i", len(v))
	if err != nil {
		slog.Warn("uniform dropped", "name", name, "error", err)
		return
	}
	d.call(entry, uintptr(d.location(prog, name)), 1, uintptr(unsafe.Pointer(&v[0])))
}

func (d *Driver) UniformFloat(prog uint32, name string, v ...float32) {
	entry, err := uniformEntry("f", len(v))
	if err != nil {
		slog.Warn("uniform dropped", "name", name, "error", err)
		return
	}
	d.call(entry, uintptr(d.location(prog, name)), 1, uintptr(unsafe.Pointer(&v[0])))
}

func (d *Driver) UniformMatrix4(prog uint32, name string, m [16]float32) {
	d.call("glUniformMatrix4fv", uintptr(d.location(prog, name)), 1, glFalse, uintptr(unsafe.Pointer(&m[0])))
}

// CreateImage wraps an AHardwareBuffer in an EGLImage.
func (d *Driver) CreateImage(buffer platform.Handle) (platform.Handle, error) {
	if !d.hasExt(CapClientBuffer) || !d.hasExt(CapCreateImage) {
		return platform.Handle{}, apperr.Newf(apperr.CodeUnavailable, "%s unsupported", extImageNativeBuf)
	}
	if buffer.IsNil() {
		return platform.Handle{}, apperr.New(apperr.CodeInvalidArgument, "nil hardware buffer")
	}
	client := d.ext[CapClientBuffer].Call(buffer.Addr())
	if client == 0 {
		return platform.Handle{}, d.eglError("eglGetNativeClientBufferANDROID")
	}
	attr := imageAttribs()
	img := d.ext[CapCreateImage].Call(d.display, 0, eglNativeBufferAndroid, client, ints(attr))
	runtime.KeepAlive(attr)
	if img == 0 {
		return platform.Handle{}, d.eglError("eglCreateImageKHR")
	}
	return platform.NewHandle(platform.KindEGLImage, img), nil
}

func (d *Driver) DestroyImage(image platform.Handle) {
	if !image.IsNil() && d.hasExt(CapDestroyImage) {
		d.ext[CapDestroyImage].Call(d.display, image.Addr())
	}
}

// ImageTexture attaches image storage to the bound texture. Storage binding
// yields immutable storage usable with glBindImageTexture; drivers without
// it fall back to the OES target call.
func (d *Driver) ImageTexture(target uint32, image platform.Handle, storage bool) error {
	switch {
	case storage && d.hasExt(CapImageStorage):
		d.ext[CapImageStorage].Call(uintptr(target), image.Addr(), 0)
	case d.hasExt(CapImageTexture2D):
		d.ext[CapImageTexture2D].Call(uintptr(target), image.Addr())
	default:
		return apperr.New(apperr.CodeUnavailable, "no EGLImage texture target entry")
	}
	return d.glError("egl image target")
}

func (d *Driver) BindImageTexture(unit int, tex uint32, access, format uint32) {
	d.call("glBindImageTexture", uintptr(unit), uintptr(tex), 0, glFalse, 0, uintptr(access), uintptr(format))
}

func (d *Driver) Dispatch(x, y, z uint32) {
	d.call("glDispatchCompute", uintptr(x), uintptr(y), uintptr(z))
}

func (d *Driver) MemoryBarrier(bits uint32) { d.call("glMemoryBarrier", uintptr(bits)) }
func (d *Driver) Flush()                    { d.call("glFlush") }

func (d *Driver) NativeFence() bool {
	return hasExtension(d.extensions, extNativeFenceSync) &&
		d.hasExt(CapCreateSync) && d.hasExt(CapDestroySync) && d.hasExt(CapDupFence)
}

// ExportFence inserts a native fence sync after the queued commands and
// returns its dup'ed fd.
func (d *Driver) ExportFence() (int, error) {
	if !d.NativeFence() {
		return gpu.NoFence, apperr.Newf(apperr.CodeUnavailable, "%s unsupported", extNativeFenceSync)
	}
	attr := fenceAttribs()
	fence := d.ext[CapCreateSync].Call(d.display, eglSyncNativeFence, ints(attr))
	runtime.KeepAlive(attr)
	if fence == 0 {
		return gpu.NoFence, d.eglError("eglCreateSyncKHR")
	}
	defer d.ext[CapDestroySync].Call(d.display, fence)

	d.Flush()
	fd := int32(d.ext[CapDupFence].Call(d.display, fence))
	if fd < 0 {
		return gpu.NoFence, d.eglError("eglDupNativeFenceFDANDROID")
	}
	return int(fd), nil
}

// Capabilities lists the resolved core and extension entry points.
func (d *Driver) Capabilities() []platform.Symbol {
	caps := append(d.egl.Capabilities(), d.gl.Capabilities()...)
	for _, e := range extEntries {
		if s, ok := d.ext[e.capability]; ok {
			caps = append(caps, s)
		}
	}
	return caps
}

// Close releases the libraries.
func (d *Driver) Close() error {
	var first error
	for _, l := range d.libs {
		if err := l.Close(); err != nil && first == nil {
			first = err
		}
	}
	d.libs = nil
	return first
}

func cstr(s string) []byte {
	b := make([]byte, len(s)+1)
	copy(b, s)
	return b
}

func ptr(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}

func ints(v []int32) uintptr {
	return uintptr(unsafe.Pointer(&v[0]))
}

// goString copies a NUL-terminated native string.
func goString(addr uintptr) string {
	var n int
	for platform.Bytes(addr+uintptr(n), 1)[0] != 0 {
		n++
	}
	return string(platform.Bytes(addr, n))
}
