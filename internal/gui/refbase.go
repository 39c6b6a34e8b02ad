package gui

import (
	"encoding/binary"

	"github.com/GriffinCanCode/hotpath/internal/display"
	"github.com/GriffinCanCode/hotpath/internal/platform"
)

// vbaseOffsetSlot is the vtable index (relative to the address point) of the
// offset to the first virtual base in the Itanium C++ ABI.
const vbaseOffsetSlot = -3

// refBaseOf returns the RefBase subobject of obj. Classes deriving from
// RefBase virtually (IInterface, ConsumerBase) store its offset in the
// vtable; with virtual == false the object itself is the RefBase.
func refBaseOf(obj uintptr, virtual bool) uintptr {
	if !virtual || obj == 0 {
		return obj
	}
	vptr := platform.ReadWord(obj)
	off := int64(platform.ReadWord(uintptr(int64(vptr) + vbaseOffsetSlot*8)))
	return uintptr(int64(obj) + off)
}

func (b *Bindings) incRef(obj uintptr, virtual bool) {
	if obj == 0 {
		return
	}
	b.incStrong.Call(refBaseOf(obj, virtual), obj)
}

func (b *Bindings) decRef(obj uintptr, virtual bool) {
	if obj == 0 {
		return
	}
	b.decStrong.Call(refBaseOf(obj, virtual), obj)
}

// newSlot allocates an empty sp<T> slot.
func (b *Bindings) newSlot(kind platform.Kind) (platform.Handle, error) {
	h, err := b.mem.Alloc(spSlotSize)
	if err != nil {
		return platform.Handle{}, err
	}
	return platform.NewHandle(kind, h.Addr()), nil
}

// releaseSlot drops the strong reference held by an sp<T> slot and frees it.
func (b *Bindings) releaseSlot(slot platform.Handle, virtual bool) {
	if slot.IsNil() {
		return
	}
	b.decRef(platform.ReadWord(slot.Addr()), virtual)
	platform.WriteWord(slot.Addr(), 0)
	b.mem.Free(platform.NewHandle(platform.KindMemory, slot.Addr()))
}

// encodeRect writes an android::Rect (left, top, right, bottom int32).
func encodeRect(dst []byte, r display.Rect) {
	binary.LittleEndian.PutUint32(dst[0:], uint32(r.Left))
	binary.LittleEndian.PutUint32(dst[4:], uint32(r.Top))
	binary.LittleEndian.PutUint32(dst[8:], uint32(r.Right))
	binary.LittleEndian.PutUint32(dst[12:], uint32(r.Bottom))
}

func boolArg(v bool) uintptr {
	if v {
		return 1
	}
	return 0
}
