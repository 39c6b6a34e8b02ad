//go:build linux || darwin

package gpu

import (
	"time"

	"golang.org/x/sys/unix"

	apperr "github.com/GriffinCanCode/hotpath/internal/errors"
)

func closeFD(fd int) error {
	if err := unix.Close(fd); err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "close fence")
	}
	return nil
}

// Wait blocks until the fence signals or timeout elapses. A nil fence is
// already signalled.
func (f *Fence) Wait(timeout time.Duration) error {
	fd := f.FD()
	if fd < 0 {
		return nil
	}
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	deadline := time.Now().Add(timeout)
	for {
		ms := int(time.Until(deadline).Milliseconds())
		if ms < 0 {
			ms = 0
		}
		n, err := unix.Poll(fds, ms)
		switch {
		case err == unix.EINTR || err == unix.EAGAIN:
			continue
		case err != nil:
			return apperr.Wrap(err, apperr.CodeInternal, "poll fence")
		case n == 0:
			return apperr.Newf(apperr.CodeTimeout, "fence not signalled after %s", timeout)
		case fds[0].Revents&(unix.POLLERR|unix.POLLNVAL) != 0:
			return apperr.Newf(apperr.CodeInternal, "fence poll revents %#x", fds[0].Revents)
		default:
			return nil
		}
	}
}
