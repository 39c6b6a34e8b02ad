package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperr "github.com/GriffinCanCode/hotpath/internal/errors"
)

var surfaceCandidates = []Candidate{
	{Name: "_ZN7android7SurfaceC1ERKNS_2spINS_22IGraphicBufferProducerEEEbRKNS1_INS_7IBinderEEE", Variant: VariantControlHandle, MinAPI: 31},
	{Name: "_ZN7android7SurfaceC1ERKNS_2spINS_22IGraphicBufferProducerEEEb", Variant: VariantLegacy, MaxAPI: 30},
}

func TestResolvePicksFirstMatchingCandidate(t *testing.T) {
	lib := NewStaticLibrary("libgui.so", map[string]uintptr{
		surfaceCandidates[0].Name: 0x1000,
		surfaceCandidates[1].Name: 0x2000,
	})
	r := NewResolver(lib, 0)

	sym, ok := r.Resolve("surface_ctor", surfaceCandidates...)
	require.True(t, ok)
	assert.Equal(t, uintptr(0x1000), sym.Addr)
	assert.Equal(t, VariantControlHandle, sym.Variant)
}

func TestResolveFiltersByAPILevel(t *testing.T) {
	lib := NewStaticLibrary("libgui.so", map[string]uintptr{
		surfaceCandidates[0].Name: 0x1000,
		surfaceCandidates[1].Name: 0x2000,
	})
	r := NewResolver(lib, 29)

	sym, ok := r.Resolve("surface_ctor", surfaceCandidates...)
	require.True(t, ok)
	assert.Equal(t, VariantLegacy, sym.Variant)
	assert.Equal(t, []string{surfaceCandidates[1].Name}, lib.Lookups(), "API 31+ candidate must not be looked up on API 29")
}

func TestResolveFallsThroughMissingSymbols(t *testing.T) {
	lib := NewStaticLibrary("libgui.so", map[string]uintptr{
		surfaceCandidates[1].Name: 0x2000,
	})
	r := NewResolver(lib, 0)

	sym, ok := r.Resolve("surface_ctor", surfaceCandidates...)
	require.True(t, ok)
	assert.Equal(t, VariantLegacy, sym.Variant)
}

func TestResolveMissRecordsCapability(t *testing.T) {
	r := NewResolver(NewStaticLibrary("libgui.so", nil), 33)

	_, ok := r.Resolve("frame_listener", Candidate{Name: "missing"})
	assert.False(t, ok)

	_, ok = r.Capability("frame_listener")
	assert.False(t, ok)

	caps := r.Capabilities()
	require.Len(t, caps, 1)
	assert.Equal(t, "frame_listener", caps[0].Capability)
	assert.False(t, caps[0].Valid())
}

func TestRequireReturnsSymbolMissing(t *testing.T) {
	r := NewResolver(NewStaticLibrary("libgui.so", nil), 0)

	_, err := r.Require("create_buffer_queue", Candidate{Name: "_ZN7android16BufferQueue17createBufferQueueE"})
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeSymbolMissing))
}

func TestParseAPILevel(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"34\n", 34},
		{" 29 ", 29},
		{"", 0},
		{"abc", 0},
		{"-3", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseAPILevel(tt.in), "parseAPILevel(%q)", tt.in)
	}
}

func TestDetectAPILevelEnvOverride(t *testing.T) {
	t.Setenv(APILevelEnv, "31")
	assert.Equal(t, 31, DetectAPILevel())
}

func TestHandleString(t *testing.T) {
	assert.Equal(t, "surface(nil)", NewHandle(KindSurface, 0).String())
	assert.Equal(t, "producer(0x10)", NewHandle(KindProducer, 0x10).String())
	assert.True(t, Handle{}.IsNil())
}
