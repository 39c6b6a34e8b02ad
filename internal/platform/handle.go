package platform

import "fmt"

// Kind tags what a Handle refers to.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindProducer
	KindConsumer
	KindGLConsumer
	KindSurface
	KindTransaction
	KindDisplayToken
	KindHardwareBuffer
	KindClientBuffer
	KindEGLImage
	KindMemory
)

var kindNames = [...]string{
	"unknown", "producer", "consumer", "gl-consumer", "surface",
	"transaction", "display-token", "hardware-buffer", "client-buffer",
	"egl-image", "memory",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Handle is an opaque reference to a native platform object. Only the FFI
// bindings interpret Addr.
type Handle struct {
	kind Kind
	addr uintptr
}

// NewHandle tags a native address.
func NewHandle(kind Kind, addr uintptr) Handle { return Handle{kind: kind, addr: addr} }

// Kind returns the tag.
func (h Handle) Kind() Kind { return h.kind }

// Addr returns the raw native address.
func (h Handle) Addr() uintptr { return h.addr }

// IsNil reports whether the handle refers to nothing.
func (h Handle) IsNil() bool { return h.addr == 0 }

func (h Handle) String() string {
	if h.IsNil() {
		return h.kind.String() + "(nil)"
	}
	return fmt.Sprintf("%s(%#x)", h.kind, h.addr)
}
