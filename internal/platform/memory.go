package platform

import apperr "github.com/GriffinCanCode/hotpath/internal/errors"

// LibcPaths are tried in order when loading the C runtime.
var LibcPaths = []string{"libc.so", "libc.so.6", "/usr/lib/libSystem.B.dylib"}

// Memory allocates native memory for objects constructed in place (C++
// objects whose constructors take `this`, sp<> slots, descriptor structs).
type Memory struct {
	malloc Symbol
	free   Symbol
}

// NewMemory resolves malloc/free from a libc resolver.
func NewMemory(libc *Resolver) (*Memory, error) {
	m, err := libc.Require("malloc", Candidate{Name: "malloc", Variant: VariantDefault})
	if err != nil {
		return nil, err
	}
	f, err := libc.Require("free", Candidate{Name: "free", Variant: VariantDefault})
	if err != nil {
		return nil, err
	}
	return &Memory{malloc: m, free: f}, nil
}

// Alloc returns n zeroed bytes of native memory.
func (m *Memory) Alloc(n int) (Handle, error) {
	if n <= 0 {
		return Handle{}, apperr.Newf(apperr.CodeInvalidArgument, "alloc size %d", n)
	}
	addr := m.malloc.Call(uintptr(n))
	if addr == 0 {
		return Handle{}, apperr.Newf(apperr.CodeInternal, "malloc(%d) failed", n)
	}
	clear(Bytes(addr, n))
	return NewHandle(KindMemory, addr), nil
}

// Free releases memory from Alloc. Nil handles are ignored.
func (m *Memory) Free(h Handle) {
	if h.IsNil() {
		return
	}
	m.free.Call(h.Addr())
}
