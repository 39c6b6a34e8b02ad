//go:build !linux && !darwin

package gles

import (
	apperr "github.com/GriffinCanCode/hotpath/internal/errors"
	"github.com/GriffinCanCode/hotpath/internal/gpu"
)

// Driver is unavailable on this OS.
type Driver struct{ gpu.Driver }

// Open always fails on this OS.
func Open(apiLevel int) (*Driver, error) {
	return nil, apperr.New(apperr.CodeUnavailable, "EGL/GLES loading unsupported on this OS")
}

// Close is a no-op.
func (d *Driver) Close() error { return nil }
