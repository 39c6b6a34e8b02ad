package gpu

import (
	"log/slog"
	"sync"
)

// kernel is a compute program compiled on first use. A failed compile is
// remembered and not retried.
type kernel struct {
	name string
	src  string

	once sync.Once
	prog uint32
	err  error
}

func newKernel(name, src string) *kernel {
	return &kernel{name: name, src: src}
}

func (k *kernel) program(drv Driver) (uint32, error) {
	k.once.Do(func() {
		k.prog, k.err = drv.CompileCompute(k.src)
		if k.err != nil {
			slog.Warn("compute kernel unavailable", "kernel", k.name, "error", k.err)
			return
		}
		slog.Debug("compute kernel compiled", "kernel", k.name, "program", k.prog)
	})
	return k.prog, k.err
}

func (k *kernel) release(drv Driver) {
	if k.prog != 0 {
		drv.DeleteProgram(k.prog)
		k.prog = 0
	}
}

func groups(n uint32) uint32 { return (n + LocalSize - 1) / LocalSize }
