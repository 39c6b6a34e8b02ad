//go:build !linux && !darwin

package gpu

import "time"

func closeFD(fd int) error { return nil }

// Wait returns immediately; native fences do not exist on this OS.
func (f *Fence) Wait(timeout time.Duration) error { return nil }
