// Package gpu converts, crops and resizes captured frames with GLES compute
// shaders, handing results downstream behind native fences.
package gpu

import "github.com/GriffinCanCode/hotpath/internal/platform"

// GL enums used by the preprocessor.
const (
	Texture2D                   = 0x0DE1
	TextureExternalOES          = 0x8D65
	WriteOnly                   = 0x88B9
	FormatRGBA8                 = 0x8058
	ShaderImageAccessBarrierBit = 0x00000020
)

// EGLHandles identifies an EGL display/context/surface triple.
type EGLHandles struct {
	Display uintptr
	Context uintptr
	Surface uintptr
}

// Driver is the EGL/GLES surface the preprocessor drives. The production
// implementation lives in internal/gles.
type Driver interface {
	// CreateContext makes a new GLES 3.1 context current on the calling thread.
	CreateContext() (EGLHandles, error)
	// CurrentContext returns the context current on the calling thread.
	CurrentContext() (EGLHandles, bool)
	MakeCurrent(h EGLHandles) error
	ReleaseCurrent(h EGLHandles) error
	DestroyContext(h EGLHandles)

	GenTexture(target uint32) (uint32, error)
	DeleteTexture(id uint32)
	BindTexture(unit int, target, id uint32)

	CompileCompute(src string) (uint32, error)
	DeleteProgram(prog uint32)
	UseProgram(prog uint32)
	UniformInt(prog uint32, name string, v ...int32)
	UniformFloat(prog uint32, name string, v ...float32)
	UniformMatrix4(prog uint32, name string, m [16]float32)

	// CreateImage wraps a hardware buffer in an EGLImage.
	CreateImage(buffer platform.Handle) (platform.Handle, error)
	DestroyImage(image platform.Handle)
	// ImageTexture attaches image storage to the texture bound to target.
	ImageTexture(target uint32, image platform.Handle, storage bool) error
	BindImageTexture(unit int, tex uint32, access, format uint32)

	Dispatch(x, y, z uint32)
	MemoryBarrier(bits uint32)
	Flush()

	// NativeFence reports whether EGL_ANDROID_native_fence_sync is usable.
	NativeFence() bool
	// ExportFence inserts a native fence sync and returns a dup'ed fd.
	ExportFence() (int, error)
}
