package hwbuffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperr "github.com/GriffinCanCode/hotpath/internal/errors"
)

func TestAllocateDescribes(t *testing.T) {
	alloc := NewHeapAllocator(16)
	b := New(alloc)

	require.NoError(t, b.AllocateDefault(100, 48, FormatRGBA8888))
	assert.True(t, b.Valid())

	d := b.Desc()
	assert.Equal(t, uint32(100), d.Width)
	assert.Equal(t, uint32(48), d.Height)
	assert.Equal(t, uint32(112), d.Stride, "stride rounds to alignment")
	assert.Equal(t, DefaultUsage, d.Usage)
	assert.Equal(t, 112*4*48, d.Size())
}

func TestAllocateRejectsZeroSize(t *testing.T) {
	b := New(NewHeapAllocator(1))
	err := b.AllocateDefault(0, 10, FormatRGBA8888)
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidArgument))
	assert.False(t, b.Valid())
}

func TestLockUnallocatedFails(t *testing.T) {
	b := New(NewHeapAllocator(1))
	_, err := b.Lock(-1)
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidState))
}

func TestLockUnlockCycle(t *testing.T) {
	b := New(NewHeapAllocator(1))
	require.NoError(t, b.AllocateDefault(4, 2, FormatRGBA8888))

	data, stride, err := b.LockWithStride(-1)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), stride)
	assert.Len(t, data, 4*2*4)

	_, err = b.Lock(-1)
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidState), "double lock must fail")

	fence, err := b.Unlock()
	require.NoError(t, err)
	assert.Equal(t, -1, fence)
}

func TestDetachTransfersOwnership(t *testing.T) {
	alloc := NewHeapAllocator(1)
	b := New(alloc)
	require.NoError(t, b.AllocateDefault(8, 8, FormatRGBA8888))

	h := b.Detach()
	assert.False(t, h.IsNil())
	assert.False(t, b.Valid())

	b.Release()
	assert.Equal(t, 1, alloc.Live(), "detached buffer must survive Release of the empty wrapper")

	other := New(alloc)
	other.Wrap(h)
	assert.True(t, other.Valid())
	assert.Equal(t, uint32(8), other.Desc().Width)

	other.Release()
	assert.Equal(t, 0, alloc.Live())
}

func TestAllocateReplacesPrevious(t *testing.T) {
	alloc := NewHeapAllocator(1)
	b := New(alloc)
	require.NoError(t, b.AllocateDefault(8, 8, FormatRGBA8888))
	require.NoError(t, b.AllocateDefault(16, 16, FormatRGBA8888))

	assert.Equal(t, 1, alloc.Live())
	assert.Equal(t, uint32(16), b.Desc().Width)
}

func TestReleaseUnlocksFirst(t *testing.T) {
	alloc := NewHeapAllocator(1)
	b := New(alloc)
	require.NoError(t, b.AllocateDefault(2, 2, FormatRGBA8888))
	_, err := b.Lock(-1)
	require.NoError(t, err)

	b.Release()
	assert.False(t, b.Valid())
	assert.Equal(t, 0, alloc.Live())
}

func TestFormatBytesPerPixel(t *testing.T) {
	tests := []struct {
		f    Format
		want int
	}{
		{FormatRGBA8888, 4},
		{FormatRGB888, 3},
		{FormatRGB565, 2},
		{FormatRGBAFP16, 8},
		{Format(0x99), 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.f.BytesPerPixel())
	}
}
