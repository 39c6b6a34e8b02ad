package gles

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasExtension(t *testing.T) {
	list := "EGL_KHR_image_base EGL_ANDROID_native_fence_sync  EGL_KHR_fence_sync"
	assert.True(t, hasExtension(list, extNativeFenceSync))
	assert.False(t, hasExtension(list, "EGL_ANDROID_native_fence"), "prefix must not match")
	assert.False(t, hasExtension("", extNativeFenceSync))
}

func TestAttribListsTerminate(t *testing.T) {
	for name, attrs := range map[string][]int32{
		"config":  configAttribs(),
		"context": contextAttribs(),
		"pbuffer": pbufferAttribs(),
		"image":   imageAttribs(),
		"fence":   fenceAttribs(),
	} {
		require.NotEmpty(t, attrs, name)
		assert.Equal(t, int32(eglNone), attrs[len(attrs)-1], name)
		assert.Equal(t, 1, len(attrs)%2, "%s has key/value pairs plus terminator", name)
	}
}

func TestUniformEntry(t *testing.T) {
	name, err := uniformEntry("i", 2)
	require.NoError(t, err)
	assert.Equal(t, "glUniform2iv", name)

	name, err = uniformEntry("f", 4)
	require.NoError(t, err)
	assert.Equal(t, "glUniform4fv", name)
	assert.Contains(t, glEntries, name)

	_, err = uniformEntry("f", 0)
	assert.Error(t, err)
	_, err = uniformEntry("f", 5)
	assert.Error(t, err)
}

func TestEGLErrorString(t *testing.T) {
	assert.Equal(t, "EGL_BAD_MATCH", eglErrorString(0x3009))
	assert.Equal(t, "EGL_ERROR_0x4000", eglErrorString(0x4000))
}
