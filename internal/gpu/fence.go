package gpu

import "sync"

// NoFence is the fd value meaning "no fence; the data is already readable".
const NoFence = -1

// Fence owns a native sync fd. It must not be copied; hand it over with
// Detach or pass the pointer.
type Fence struct {
	_  noCopy
	mu sync.Mutex
	fd int
}

type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// NewFence takes ownership of fd. A negative fd yields nil.
func NewFence(fd int) *Fence {
	if fd < 0 {
		return nil
	}
	return &Fence{fd: fd}
}

// FD returns the fd without transferring ownership, or NoFence.
func (f *Fence) FD() int {
	if f == nil {
		return NoFence
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fd
}

// Valid reports whether the fence still owns an fd.
func (f *Fence) Valid() bool { return f.FD() >= 0 }

// Detach hands the fd to the caller, who becomes responsible for closing it.
func (f *Fence) Detach() int {
	if f == nil {
		return NoFence
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	fd := f.fd
	f.fd = NoFence
	return fd
}

// Close closes the fd. It is safe to call repeatedly and on nil.
func (f *Fence) Close() error {
	fd := f.Detach()
	if fd < 0 {
		return nil
	}
	return closeFD(fd)
}
