//go:build linux || darwin

package gles

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperr "github.com/GriffinCanCode/hotpath/internal/errors"
	"github.com/GriffinCanCode/hotpath/internal/platform"
)

func fullTable(names []string) map[string]uintptr {
	m := make(map[string]uintptr, len(names))
	for i, n := range names {
		m[n] = uintptr(0x1000 + i*0x10)
	}
	return m
}

func TestNewResolvesCoreEntries(t *testing.T) {
	eglLib := platform.NewStaticLibrary("libEGL.so", fullTable(eglEntries))
	glLib := platform.NewStaticLibrary("libGLESv3.so", fullTable(glEntries))

	d, err := New(platform.NewResolver(eglLib, 34), platform.NewResolver(glLib, 34), eglLib, glLib)
	require.NoError(t, err)
	assert.Len(t, d.Capabilities(), len(eglEntries)+len(glEntries))
	assert.False(t, d.NativeFence(), "no extensions before a display exists")

	require.NoError(t, d.Close())
	assert.True(t, eglLib.Closed())
	assert.True(t, glLib.Closed())
}

func TestNewFailsOnMissingGLEntry(t *testing.T) {
	syms := fullTable(glEntries)
	delete(syms, "glDispatchCompute")
	eglLib := platform.NewStaticLibrary("libEGL.so", fullTable(eglEntries))
	glLib := platform.NewStaticLibrary("libGLESv2.so", syms)

	_, err := New(platform.NewResolver(eglLib, 34), platform.NewResolver(glLib, 34))
	assert.True(t, apperr.IsCode(err, apperr.CodeSymbolMissing))
}

func TestCreateImageWithoutExtension(t *testing.T) {
	eglLib := platform.NewStaticLibrary("libEGL.so", fullTable(eglEntries))
	glLib := platform.NewStaticLibrary("libGLESv3.so", fullTable(glEntries))
	d, err := New(platform.NewResolver(eglLib, 34), platform.NewResolver(glLib, 34))
	require.NoError(t, err)

	_, err = d.CreateImage(platform.NewHandle(platform.KindHardwareBuffer, 0x10))
	assert.True(t, apperr.IsCode(err, apperr.CodeUnavailable))

	_, err = d.ExportFence()
	assert.True(t, apperr.IsCode(err, apperr.CodeUnavailable))
}
