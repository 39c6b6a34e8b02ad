//go:build !linux && !darwin

package platform

import apperr "github.com/GriffinCanCode/hotpath/internal/errors"

// DynamicLibrary is unavailable on this OS.
type DynamicLibrary struct{ name string }

// Open always fails on this OS.
func Open(path string) (*DynamicLibrary, error) {
	return nil, apperr.Newf(apperr.CodeUnavailable, "dynamic loading unsupported: %s", path)
}

// OpenFirst always fails on this OS.
func OpenFirst(paths ...string) (*DynamicLibrary, error) {
	return nil, apperr.New(apperr.CodeUnavailable, "dynamic loading unsupported")
}

func (l *DynamicLibrary) Name() string { return l.name }

func (l *DynamicLibrary) Lookup(symbol string) (uintptr, error) {
	return 0, apperr.New(apperr.CodeUnavailable, "dynamic loading unsupported")
}

func (l *DynamicLibrary) Close() error { return nil }

// Call is a no-op on this OS.
func (s Symbol) Call(args ...uintptr) uintptr { return 0 }

// Bind is a no-op on this OS.
func (s Symbol) Bind(fptr any) {}

// Bytes is unavailable on this OS.
func Bytes(addr uintptr, n int) []byte { return nil }

// ReadWord is unavailable on this OS.
func ReadWord(addr uintptr) uintptr { return 0 }

// WriteWord is unavailable on this OS.
func WriteWord(addr, v uintptr) {}
