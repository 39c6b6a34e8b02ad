package gui

import (
	"encoding/binary"
	"math"

	"github.com/GriffinCanCode/hotpath/internal/capture"
	apperr "github.com/GriffinCanCode/hotpath/internal/errors"
	"github.com/GriffinCanCode/hotpath/internal/platform"
)

var _ capture.Native = (*Bindings)(nil)

// CreateBufferQueue creates the producer/consumer pair. Both handles are
// sp<> slots owning one strong reference each.
func (b *Bindings) CreateBufferQueue() (platform.Handle, platform.Handle, error) {
	producer, err := b.newSlot(platform.KindProducer)
	if err != nil {
		return platform.Handle{}, platform.Handle{}, err
	}
	consumer, err := b.newSlot(platform.KindConsumer)
	if err != nil {
		b.mem.Free(producer)
		return platform.Handle{}, platform.Handle{}, err
	}

	switch b.createBufferQueue.Variant {
	case platform.VariantAllocator:
		b.createBufferQueue.Call(producer.Addr(), consumer.Addr(), boolArg(false))
	default:
		b.createBufferQueue.Call(producer.Addr(), consumer.Addr())
	}

	if platform.ReadWord(producer.Addr()) == 0 || platform.ReadWord(consumer.Addr()) == 0 {
		b.ReleaseQueue(producer, consumer)
		return platform.Handle{}, platform.Handle{}, apperr.New(apperr.CodeInternal, "createBufferQueue returned null endpoints")
	}
	return producer, consumer, nil
}

// ReleaseQueue drops both endpoint references.
func (b *Bindings) ReleaseQueue(producer, consumer platform.Handle) {
	b.releaseSlot(producer, true)
	b.releaseSlot(consumer, true)
}

// NewGLConsumer constructs a GLConsumer in native memory bound to texture.
// The returned handle holds one strong reference.
func (b *Bindings) NewGLConsumer(consumer platform.Handle, texture uint32) (platform.Handle, error) {
	mem, err := b.mem.Alloc(glConsumerAllocSize)
	if err != nil {
		return platform.Handle{}, err
	}
	obj := mem.Addr()
	b.glConsumerCtor.Call(obj, consumer.Addr(), uintptr(texture), textureExternalOES, boolArg(true), boolArg(false))
	if platform.ReadWord(obj) == 0 {
		b.mem.Free(mem)
		return platform.Handle{}, apperr.New(apperr.CodeInternal, "GLConsumer ctor left no vtable")
	}
	b.incRef(obj, true)
	return platform.NewHandle(platform.KindGLConsumer, obj), nil
}

// ReleaseGLConsumer abandons the consumer and drops its reference; the last
// reference frees the object.
func (b *Bindings) ReleaseGLConsumer(glc platform.Handle) {
	if glc.IsNil() {
		return
	}
	if b.abandon.Valid() {
		b.abandon.Call(glc.Addr())
	}
	b.decRef(glc.Addr(), true)
}

// UpdateTexImage latches the newest queued buffer into the texture.
func (b *Bindings) UpdateTexImage(glc platform.Handle) error {
	st := int32(b.updateTexImage.Call(glc.Addr()))
	switch st {
	case statusOK:
		return nil
	case noBufferAvailable, statusWouldBlock:
		return capture.ErrNoBuffer
	default:
		return statusError("updateTexImage", st)
	}
}

// TransformMatrix returns the consumer's texture transform, or identity when
// the entry point is missing.
func (b *Bindings) TransformMatrix(glc platform.Handle) [16]float32 {
	var m [16]float32
	if !b.transformMatrix.Valid() {
		m[0], m[5], m[10], m[15] = 1, 1, 1, 1
		return m
	}
	buf, err := b.mem.Alloc(len(m) * 4)
	if err != nil {
		m[0], m[5], m[10], m[15] = 1, 1, 1, 1
		return m
	}
	defer b.mem.Free(buf)

	b.transformMatrix.Call(glc.Addr(), buf.Addr())
	raw := platform.Bytes(buf.Addr(), len(m)*4)
	for i := range m {
		m[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return m
}

// Timestamp returns the current buffer's timestamp in nanoseconds.
func (b *Bindings) Timestamp(glc platform.Handle) int64 {
	return int64(b.timestamp.Call(glc.Addr()))
}

// SetFrameListener reports false. setFrameAvailableListener takes a
// wp<FrameAvailableListener>, a C++ object with virtual RefBase inheritance
// that these bindings do not synthesize, so capture on a device always polls.
func (b *Bindings) SetFrameListener(glc platform.Handle, fn func()) bool {
	return false
}

// ClearFrameListener is a no-op; see SetFrameListener.
func (b *Bindings) ClearFrameListener(glc platform.Handle) {}

// NewSurface constructs a Surface over the producer. The Surface is owned
// directly (not reference counted) and freed by DestroySurface.
func (b *Bindings) NewSurface(producer platform.Handle) (platform.Handle, error) {
	if !b.CanCreateSurface() {
		return platform.Handle{}, apperr.New(apperr.CodeSymbolMissing, "surface ctor/dtor unavailable")
	}
	mem, err := b.mem.Alloc(surfaceAllocSize)
	if err != nil {
		return platform.Handle{}, err
	}
	obj := mem.Addr()

	switch b.surfaceCtor.Variant {
	case platform.VariantControlHandle:
		nullBinder, err := b.mem.Alloc(spSlotSize)
		if err != nil {
			b.mem.Free(mem)
			return platform.Handle{}, err
		}
		b.surfaceCtor.Call(obj, producer.Addr(), boolArg(false), nullBinder.Addr())
		b.mem.Free(nullBinder)
	default:
		b.surfaceCtor.Call(obj, producer.Addr(), boolArg(false))
	}

	if platform.ReadWord(obj) == 0 {
		b.mem.Free(mem)
		return platform.Handle{}, apperr.New(apperr.CodeInternal, "Surface ctor left no vtable")
	}

	b.mu.Lock()
	b.surfaceProducer[obj] = producer.Addr()
	b.mu.Unlock()
	return platform.NewHandle(platform.KindSurface, obj), nil
}

// DestroySurface runs the Surface destructor and frees its memory.
func (b *Bindings) DestroySurface(surface platform.Handle) {
	if surface.IsNil() {
		return
	}
	b.mu.Lock()
	delete(b.surfaceProducer, surface.Addr())
	b.mu.Unlock()

	b.surfaceDtor.Call(surface.Addr())
	b.mem.Free(platform.NewHandle(platform.KindMemory, surface.Addr()))
}

// producerSlot resolves a compositor target to the sp<IGraphicBufferProducer>
// slot the transaction expects.
func (b *Bindings) producerSlot(target platform.Handle) uintptr {
	if target.Kind() != platform.KindSurface {
		return target.Addr()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.surfaceProducer[target.Addr()]
}
