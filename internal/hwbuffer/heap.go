package hwbuffer

import (
	"sync"

	apperr "github.com/GriffinCanCode/hotpath/internal/errors"
	"github.com/GriffinCanCode/hotpath/internal/platform"
)

// HeapAllocator backs buffers with Go memory. Handles are synthetic ids.
// Align rounds the stride up to a pixel multiple, mimicking gralloc padding.
type HeapAllocator struct {
	Align int

	mu   sync.Mutex
	next uintptr
	bufs map[uintptr]*heapBuf
}

type heapBuf struct {
	desc   Desc
	data   []byte
	refs   int
	locked bool
}

// NewHeapAllocator creates an allocator with the given stride alignment.
func NewHeapAllocator(align int) *HeapAllocator {
	if align <= 0 {
		align = 1
	}
	return &HeapAllocator{Align: align, next: 0x1000, bufs: make(map[uintptr]*heapBuf)}
}

func (a *HeapAllocator) Allocate(desc Desc) (platform.Handle, error) {
	bpp := desc.Format.BytesPerPixel()
	if bpp == 0 {
		return platform.Handle{}, apperr.Newf(apperr.CodeInvalidArgument, "unsupported format %d", desc.Format)
	}
	align := uint32(a.Align)
	if align == 0 {
		align = 1
	}
	desc.Stride = (desc.Width + align - 1) / align * align
	if desc.Layers == 0 {
		desc.Layers = 1
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.bufs == nil {
		a.bufs = make(map[uintptr]*heapBuf)
		a.next = 0x1000
	}
	a.next += 0x10
	id := a.next
	a.bufs[id] = &heapBuf{desc: desc, data: make([]byte, int(desc.Stride)*int(desc.Height)*bpp), refs: 1}
	return platform.NewHandle(platform.KindHardwareBuffer, id), nil
}

func (a *HeapAllocator) get(h platform.Handle) *heapBuf {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bufs[h.Addr()]
}

func (a *HeapAllocator) Describe(h platform.Handle) Desc {
	if b := a.get(h); b != nil {
		return b.desc
	}
	return Desc{}
}

func (a *HeapAllocator) Lock(h platform.Handle, _ Usage, _ int) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b := a.bufs[h.Addr()]
	if b == nil {
		return nil, apperr.Newf(apperr.CodeNotFound, "unknown buffer %s", h)
	}
	if b.locked {
		return nil, apperr.New(apperr.CodeInvalidState, "already locked")
	}
	b.locked = true
	return b.data, nil
}

func (a *HeapAllocator) Unlock(h platform.Handle) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b := a.bufs[h.Addr()]
	if b == nil {
		return noFence, apperr.Newf(apperr.CodeNotFound, "unknown buffer %s", h)
	}
	b.locked = false
	return noFence, nil
}

func (a *HeapAllocator) Acquire(h platform.Handle) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if b := a.bufs[h.Addr()]; b != nil {
		b.refs++
	}
}

func (a *HeapAllocator) Release(h platform.Handle) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b := a.bufs[h.Addr()]
	if b == nil {
		return
	}
	b.refs--
	if b.refs <= 0 {
		delete(a.bufs, h.Addr())
	}
}

// Live returns the number of buffers still referenced.
func (a *HeapAllocator) Live() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.bufs)
}
