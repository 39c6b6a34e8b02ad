// Package hwbuffer owns GPU/CPU shared image buffers.
package hwbuffer

import (
	"log/slog"

	apperr "github.com/GriffinCanCode/hotpath/internal/errors"
	"github.com/GriffinCanCode/hotpath/internal/platform"
)

// Format is an AHardwareBuffer pixel format.
type Format uint32

const (
	FormatRGBA8888 Format = 1
	FormatRGBX8888 Format = 2
	FormatRGB888   Format = 3
	FormatRGB565   Format = 4
	FormatRGBAFP16 Format = 0x16
	FormatBlob     Format = 0x21
)

// BytesPerPixel returns the packed pixel size, or 0 for opaque formats.
func (f Format) BytesPerPixel() int {
	switch f {
	case FormatRGBA8888, FormatRGBX8888:
		return 4
	case FormatRGB888:
		return 3
	case FormatRGB565:
		return 2
	case FormatRGBAFP16:
		return 8
	case FormatBlob:
		return 1
	default:
		return 0
	}
}

// Usage is an AHardwareBuffer usage bit set.
type Usage uint64

const (
	UsageCPUReadRarely   Usage = 2
	UsageCPUReadOften    Usage = 3
	UsageCPUWriteRarely  Usage = 2 << 4
	UsageCPUWriteOften   Usage = 3 << 4
	UsageGPUSampledImage Usage = 1 << 8
	UsageGPUColorOutput  Usage = 1 << 9
	UsageGPUDataBuffer   Usage = 1 << 24

	DefaultUsage       = UsageGPUSampledImage | UsageCPUReadOften
	ComputeOutputUsage = UsageGPUSampledImage | UsageCPUReadOften | UsageGPUColorOutput
)

const (
	noFence       = -1
	defaultLayers = 1

	cpuReadMask Usage = 0xf
)

// Desc describes an allocated buffer. Stride is in pixels.
type Desc struct {
	Width  uint32
	Height uint32
	Layers uint32
	Format Format
	Usage  Usage
	Stride uint32
}

// RowBytes returns the byte length of one row including padding.
func (d Desc) RowBytes() int { return int(d.Stride) * d.Format.BytesPerPixel() }

// Size returns the byte length of the mapped image.
func (d Desc) Size() int { return d.RowBytes() * int(d.Height) }

// Allocator is the native buffer API.
type Allocator interface {
	Allocate(desc Desc) (platform.Handle, error)
	Describe(h platform.Handle) Desc
	Lock(h platform.Handle, usage Usage, fence int) ([]byte, error)
	Unlock(h platform.Handle) (fence int, err error)
	Acquire(h platform.Handle)
	Release(h platform.Handle)
}

// noCopy marks Buffer as move-only for go vet's copylocks check.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Buffer exclusively owns one native buffer. Pass it by pointer; hand the
// native handle to another owner with Detach.
type Buffer struct {
	_ noCopy

	alloc  Allocator
	handle platform.Handle
	desc   Desc
	locked bool
}

// New returns an empty buffer bound to an allocator.
func New(alloc Allocator) *Buffer {
	return &Buffer{alloc: alloc}
}

// Allocate replaces any held buffer with a new one.
func (b *Buffer) Allocate(width, height uint32, format Format, usage Usage) error {
	if width == 0 || height == 0 {
		return apperr.Newf(apperr.CodeInvalidArgument, "invalid buffer size %dx%d", width, height)
	}
	if b.alloc == nil {
		return apperr.New(apperr.CodeNotInitialized, "no allocator")
	}
	b.Release()

	h, err := b.alloc.Allocate(Desc{Width: width, Height: height, Layers: defaultLayers, Format: format, Usage: usage})
	if err != nil {
		return apperr.Wrapf(err, apperr.CodeInternal, "allocate %dx%d format=%d", width, height, format)
	}
	b.handle = h
	b.desc = b.alloc.Describe(h)
	return nil
}

// AllocateDefault allocates with GPU-sampled + CPU-read-often usage.
func (b *Buffer) AllocateDefault(width, height uint32, format Format) error {
	return b.Allocate(width, height, format, DefaultUsage)
}

// Release drops the held buffer. Safe on an empty Buffer.
func (b *Buffer) Release() {
	if b.handle.IsNil() {
		return
	}
	if b.locked {
		if _, err := b.Unlock(); err != nil {
			slog.Warn("unlock before release failed", "error", err)
		}
	}
	b.alloc.Release(b.handle)
	b.handle = platform.Handle{}
	b.desc = Desc{}
}

// Lock maps the buffer for CPU reads after fence signals. fence is consumed;
// pass -1 for none.
func (b *Buffer) Lock(fence int) ([]byte, error) {
	data, _, err := b.LockWithStride(fence)
	return data, err
}

// LockWithStride is Lock that also reports the row stride in pixels.
func (b *Buffer) LockWithStride(fence int) ([]byte, uint32, error) {
	if !b.Valid() {
		return nil, 0, apperr.New(apperr.CodeInvalidState, "lock on unallocated buffer")
	}
	if b.locked {
		return nil, 0, apperr.New(apperr.CodeInvalidState, "buffer already locked")
	}
	usage := b.desc.Usage & cpuReadMask
	if usage == 0 {
		usage = UsageCPUReadOften
	}
	data, err := b.alloc.Lock(b.handle, usage, fence)
	if err != nil {
		return nil, 0, apperr.Wrap(err, apperr.CodeInternal, "lock")
	}
	b.locked = true
	return data, b.desc.Stride, nil
}

// Unlock ends CPU access. The returned fence (or -1) is owned by the caller.
func (b *Buffer) Unlock() (int, error) {
	if !b.Valid() {
		return noFence, apperr.New(apperr.CodeInvalidState, "unlock on unallocated buffer")
	}
	if !b.locked {
		return noFence, nil
	}
	fence, err := b.alloc.Unlock(b.handle)
	b.locked = false
	if err != nil {
		return noFence, apperr.Wrap(err, apperr.CodeInternal, "unlock")
	}
	return fence, nil
}

// Wrap takes ownership of an existing native buffer.
func (b *Buffer) Wrap(h platform.Handle) {
	b.Release()
	if h.IsNil() {
		return
	}
	b.handle = h
	b.desc = b.alloc.Describe(h)
}

// Detach transfers ownership of the native buffer to the caller and leaves
// the Buffer empty.
func (b *Buffer) Detach() platform.Handle {
	h := b.handle
	b.handle = platform.Handle{}
	b.desc = Desc{}
	b.locked = false
	return h
}

// Valid reports whether a native buffer is held.
func (b *Buffer) Valid() bool { return !b.handle.IsNil() }

// Desc returns the held buffer's description.
func (b *Buffer) Desc() Desc { return b.desc }

// Handle returns a borrowed reference to the native buffer.
func (b *Buffer) Handle() platform.Handle { return b.handle }

// Allocator returns the allocator backing the buffer.
func (b *Buffer) Allocator() Allocator { return b.alloc }
