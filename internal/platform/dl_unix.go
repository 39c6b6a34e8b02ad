//go:build linux || darwin

package platform

import (
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"

	apperr "github.com/GriffinCanCode/hotpath/internal/errors"
)

// DynamicLibrary is a dlopen-backed Library.
type DynamicLibrary struct {
	name   string
	mu     sync.Mutex
	handle uintptr
}

// Open loads a shared library with RTLD_NOW|RTLD_LOCAL.
func Open(path string) (*DynamicLibrary, error) {
	h, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_LOCAL)
	if err != nil {
		return nil, apperr.Wrapf(err, apperr.CodeUnavailable, "dlopen %s", path)
	}
	return &DynamicLibrary{name: path, handle: h}, nil
}

// OpenFirst tries each path in order and returns the first library that loads.
func OpenFirst(paths ...string) (*DynamicLibrary, error) {
	var lastErr error
	for _, p := range paths {
		lib, err := Open(p)
		if err == nil {
			return lib, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = apperr.New(apperr.CodeInvalidArgument, "no library paths given")
	}
	return nil, lastErr
}

func (l *DynamicLibrary) Name() string { return l.name }

func (l *DynamicLibrary) Lookup(symbol string) (uintptr, error) {
	l.mu.Lock()
	h := l.handle
	l.mu.Unlock()
	if h == 0 {
		return 0, apperr.New(apperr.CodeInvalidState, "library closed")
	}
	addr, err := purego.Dlsym(h, symbol)
	if err != nil {
		return 0, apperr.Wrapf(err, apperr.CodeNotFound, "dlsym %s", symbol)
	}
	return addr, nil
}

func (l *DynamicLibrary) Close() error {
	l.mu.Lock()
	h := l.handle
	l.handle = 0
	l.mu.Unlock()
	if h == 0 {
		return nil
	}
	if err := purego.Dlclose(h); err != nil {
		return apperr.Wrapf(err, apperr.CodeInternal, "dlclose %s", l.name)
	}
	return nil
}

// Call invokes the symbol with integer/pointer arguments and returns r1.
func (s Symbol) Call(args ...uintptr) uintptr {
	r1, _, _ := purego.SyscallN(s.Addr, args...)
	return r1
}

// Bind registers a typed Go function for the symbol; fptr must point to a
// func variable whose signature matches the symbol's variant.
func (s Symbol) Bind(fptr any) {
	purego.RegisterFunc(fptr, s.Addr)
}

// Bytes views n bytes of native memory at addr.
func Bytes(addr uintptr, n int) []byte {
	if addr == 0 || n <= 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), n)
}

// ReadWord reads one pointer-sized word at addr.
func ReadWord(addr uintptr) uintptr {
	return *(*uintptr)(unsafe.Pointer(addr))
}

// WriteWord writes one pointer-sized word at addr.
func WriteWord(addr, v uintptr) {
	*(*uintptr)(unsafe.Pointer(addr)) = v
}
