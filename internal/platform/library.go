package platform

import (
	"sync"

	apperr "github.com/GriffinCanCode/hotpath/internal/errors"
)

// Library is a loaded native library.
type Library interface {
	Name() string
	Lookup(symbol string) (uintptr, error)
	Close() error
}

// StaticLibrary serves symbols from a fixed table. It backs tests and hosts
// where the platform library is absent.
type StaticLibrary struct {
	name string

	mu      sync.Mutex
	symbols map[string]uintptr
	lookups []string
	closed  bool
}

// NewStaticLibrary creates a library exposing the given symbols.
func NewStaticLibrary(name string, symbols map[string]uintptr) *StaticLibrary {
	cp := make(map[string]uintptr, len(symbols))
	for k, v := range symbols {
		cp[k] = v
	}
	return &StaticLibrary{name: name, symbols: cp}
}

func (l *StaticLibrary) Name() string { return l.name }

func (l *StaticLibrary) Lookup(symbol string) (uintptr, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lookups = append(l.lookups, symbol)
	if l.closed {
		return 0, apperr.New(apperr.CodeInvalidState, "library closed")
	}
	addr, ok := l.symbols[symbol]
	if !ok {
		return 0, apperr.Newf(apperr.CodeNotFound, "symbol %s not found in %s", symbol, l.name)
	}
	return addr, nil
}

func (l *StaticLibrary) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (l *StaticLibrary) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Lookups returns the symbols looked up so far, in order.
func (l *StaticLibrary) Lookups() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lookups...)
}
