package gpu

import (
	"errors"
	"strings"
	"sync"

	"github.com/GriffinCanCode/hotpath/internal/platform"
)

// fakeDriver records GL calls without a GPU.
type fakeDriver struct {
	mu sync.Mutex

	current     bool
	failCompile map[string]bool // keyed by a substring of the shader source
	nativeFence bool
	fenceFD     int

	nextID     uint32
	compiled   []string
	deleted    []uint32
	dispatches [][3]uint32
	barriers   []uint32
	images     int
	destroyed  int
	flushes    int
	uniforms   map[string][]float32
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{failCompile: map[string]bool{}, uniforms: map[string][]float32{}, nextID: 10}
}

var testHandles = EGLHandles{Display: 1, Context: 2, Surface: 3}

func (f *fakeDriver) CreateContext() (EGLHandles, error) {
	f.current = true
	return testHandles, nil
}

func (f *fakeDriver) CurrentContext() (EGLHandles, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.current {
		return EGLHandles{}, false
	}
	return testHandles, true
}

func (f *fakeDriver) MakeCurrent(EGLHandles) error    { f.current = true; return nil }
func (f *fakeDriver) ReleaseCurrent(EGLHandles) error { f.current = false; return nil }
func (f *fakeDriver) DestroyContext(EGLHandles)       { f.current = false }

func (f *fakeDriver) GenTexture(uint32) (uint32, error) {
	f.nextID++
	return f.nextID, nil
}

func (f *fakeDriver) DeleteTexture(id uint32)         { f.deleted = append(f.deleted, id) }
func (f *fakeDriver) BindTexture(int, uint32, uint32) {}

func (f *fakeDriver) CompileCompute(src string) (uint32, error) {
	for key := range f.failCompile {
		if strings.Contains(src, key) {
			return 0, errors.New("compile failed: " + key)
		}
	}
	f.compiled = append(f.compiled, src)
	f.nextID++
	return f.nextID, nil
}

func (f *fakeDriver) DeleteProgram(uint32) {}
func (f *fakeDriver) UseProgram(uint32)    {}

func (f *fakeDriver) UniformInt(_ uint32, name string, v ...int32) {
	vals := make([]float32, len(v))
	for i, x := range v {
		vals[i] = float32(x)
	}
	f.uniforms[name] = vals
}

func (f *fakeDriver) UniformFloat(_ uint32, name string, v ...float32) {
	f.uniforms[name] = append([]float32(nil), v...)
}

func (f *fakeDriver) UniformMatrix4(_ uint32, name string, m [16]float32) {
	f.uniforms[name] = m[:]
}

func (f *fakeDriver) CreateImage(buffer platform.Handle) (platform.Handle, error) {
	f.images++
	return platform.NewHandle(platform.KindEGLImage, 0xe0+uintptr(f.images)), nil
}

func (f *fakeDriver) DestroyImage(platform.Handle) { f.destroyed++ }

func (f *fakeDriver) ImageTexture(uint32, platform.Handle, bool) error { return nil }
func (f *fakeDriver) BindImageTexture(int, uint32, uint32, uint32)     {}

func (f *fakeDriver) Dispatch(x, y, z uint32) {
	f.dispatches = append(f.dispatches, [3]uint32{x, y, z})
}

func (f *fakeDriver) MemoryBarrier(bits uint32) { f.barriers = append(f.barriers, bits) }
func (f *fakeDriver) Flush()                    { f.flushes++ }
func (f *fakeDriver) NativeFence() bool         { return f.nativeFence }
func (f *fakeDriver) ExportFence() (int, error) { return f.fenceFD, nil }
