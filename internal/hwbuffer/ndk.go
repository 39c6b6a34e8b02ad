package hwbuffer

import (
	apperr "github.com/GriffinCanCode/hotpath/internal/errors"
	"github.com/GriffinCanCode/hotpath/internal/platform"
)

// NativeWindowPaths locate the NDK AHardwareBuffer implementation.
var NativeWindowPaths = []string{"libnativewindow.so", "libandroid.so"}

// ahbDesc mirrors AHardwareBuffer_Desc.
type ahbDesc struct {
	Width  uint32
	Height uint32
	Layers uint32
	Format uint32
	Usage  uint64
	Stride uint32
	Rfu0   uint32
	Rfu1   uint64
}

// NDKAllocator calls the AHardwareBuffer NDK API.
type NDKAllocator struct {
	allocate func(desc *ahbDesc, out *uintptr) int32
	describe func(buf uintptr, out *ahbDesc)
	lock     func(buf uintptr, usage uint64, fence int32, rect uintptr, out *uintptr) int32
	unlock   func(buf uintptr, fence *int32) int32
	acquire  func(buf uintptr)
	release  func(buf uintptr)
}

// NewNDKAllocator resolves the AHardwareBuffer entry points. All are
// required; the API has been stable since API 26.
func NewNDKAllocator(r *platform.Resolver) (*NDKAllocator, error) {
	a := &NDKAllocator{}
	binds := []struct {
		name string
		fptr any
	}{
		{"AHardwareBuffer_allocate", &a.allocate},
		{"AHardwareBuffer_describe", &a.describe},
		{"AHardwareBuffer_lock", &a.lock},
		{"AHardwareBuffer_unlock", &a.unlock},
		{"AHardwareBuffer_acquire", &a.acquire},
		{"AHardwareBuffer_release", &a.release},
	}
	for _, b := range binds {
		sym, err := r.Require(b.name, platform.Candidate{Name: b.name, Variant: platform.VariantDefault, MinAPI: 26})
		if err != nil {
			return nil, err
		}
		sym.Bind(b.fptr)
	}
	return a, nil
}

func (a *NDKAllocator) Allocate(desc Desc) (platform.Handle, error) {
	d := ahbDesc{
		Width:  desc.Width,
		Height: desc.Height,
		Layers: max(desc.Layers, 1),
		Format: uint32(desc.Format),
		Usage:  uint64(desc.Usage),
	}
	var out uintptr
	if rc := a.allocate(&d, &out); rc != 0 || out == 0 {
		return platform.Handle{}, apperr.Newf(apperr.CodeInternal, "AHardwareBuffer_allocate rc=%d", rc)
	}
	return platform.NewHandle(platform.KindHardwareBuffer, out), nil
}

func (a *NDKAllocator) Describe(h platform.Handle) Desc {
	var d ahbDesc
	a.describe(h.Addr(), &d)
	return Desc{
		Width:  d.Width,
		Height: d.Height,
		Layers: d.Layers,
		Format: Format(d.Format),
		Usage:  Usage(d.Usage),
		Stride: d.Stride,
	}
}

func (a *NDKAllocator) Lock(h platform.Handle, usage Usage, fence int) ([]byte, error) {
	var addr uintptr
	if rc := a.lock(h.Addr(), uint64(usage), int32(fence), 0, &addr); rc != 0 || addr == 0 {
		return nil, apperr.Newf(apperr.CodeInternal, "AHardwareBuffer_lock rc=%d", rc)
	}
	return platform.Bytes(addr, a.Describe(h).Size()), nil
}

func (a *NDKAllocator) Unlock(h platform.Handle) (int, error) {
	fence := int32(noFence)
	if rc := a.unlock(h.Addr(), &fence); rc != 0 {
		return noFence, apperr.Newf(apperr.CodeInternal, "AHardwareBuffer_unlock rc=%d", rc)
	}
	return int(fence), nil
}

func (a *NDKAllocator) Acquire(h platform.Handle) { a.acquire(h.Addr()) }

func (a *NDKAllocator) Release(h platform.Handle) { a.release(h.Addr()) }
