// Package gles implements gpu.Driver over libEGL and libGLESv3 loaded at
// runtime, with the Android extensions for hardware-buffer images and
// native fence export.
package gles

import (
	"fmt"
	"slices"
	"strings"

	"github.com/GriffinCanCode/hotpath/internal/platform"
)

// Library search paths.
var (
	EGLPaths  = []string{"libEGL.so", "libEGL.so.1"}
	GLESPaths = []string{"libGLESv3.so", "libGLESv2.so", "libGLESv2.so.2"}
)

// EGL enums.
const (
	eglNone                = 0x3038
	eglTrue                = 1
	eglSuccess             = 0x3000
	eglRedSize             = 0x3024
	eglGreenSize           = 0x3023
	eglBlueSize            = 0x3022
	eglAlphaSize           = 0x3021
	eglSurfaceType         = 0x3033
	eglRenderableType      = 0x3040
	eglPbufferBit          = 0x0001
	eglOpenGLES3Bit        = 0x0040
	eglHeight              = 0x3056
	eglWidth               = 0x3057
	eglDraw                = 0x3059
	eglExtensions          = 0x3055
	eglOpenGLESAPI         = 0x30A0
	eglContextMajorVersion = 0x3098
	eglContextMinorVersion = 0x30FB
	eglImagePreserved      = 0x30D2
	eglNativeBufferAndroid = 0x3140
	eglSyncNativeFence     = 0x3144
	eglSyncNativeFenceFD   = 0x3145
	eglNoNativeFenceFD     = -1
)

// GL enums.
const (
	glNoError          = 0
	glFalse            = 0
	glTexture0         = 0x84C0
	glTextureMinFilter = 0x2801
	glTextureMagFilter = 0x2800
	glTextureWrapS     = 0x2802
	glTextureWrapT     = 0x2803
	glLinear           = 0x2601
	glClampToEdge      = 0x812F
	glComputeShader    = 0x91B9
	glCompileStatus    = 0x8B81
	glLinkStatus       = 0x8B82
	glInfoLogLength    = 0x8B84
)

// Extension names checked at context creation.
const (
	extNativeFenceSync = "EGL_ANDROID_native_fence_sync"
	extImageNativeBuf  = "EGL_ANDROID_image_native_buffer"
	extGetClientBuffer = "EGL_ANDROID_get_native_client_buffer"
)

// Capabilities.
const (
	CapClientBuffer   = "egl.client_buffer"
	CapCreateImage    = "egl.create_image"
	CapDestroyImage   = "egl.destroy_image"
	CapCreateSync     = "egl.create_sync"
	CapDestroySync    = "egl.destroy_sync"
	CapDupFence       = "egl.dup_native_fence"
	CapImageTexture2D = "gl.image_target_texture"
	CapImageStorage   = "gl.image_target_storage"
)

// eglEntries are the core EGL 1.4 functions every driver exports.
var eglEntries = []string{
	"eglGetDisplay", "eglInitialize", "eglBindAPI", "eglChooseConfig",
	"eglCreateContext", "eglCreatePbufferSurface", "eglMakeCurrent",
	"eglGetCurrentContext", "eglGetCurrentDisplay", "eglGetCurrentSurface",
	"eglDestroyContext", "eglDestroySurface", "eglGetError",
	"eglQueryString", "eglGetProcAddress",
}

// glEntries are the GLES 3.1 functions the compute path calls.
var glEntries = []string{
	"glGetError", "glGenTextures", "glDeleteTextures", "glActiveTexture",
	"glBindTexture", "glTexParameteri", "glCreateShader", "glShaderSource",
	"glCompileShader", "glGetShaderiv", "glGetShaderInfoLog", "glDeleteShader",
	"glCreateProgram", "glAttachShader", "glLinkProgram", "glGetProgramiv",
	"glGetProgramInfoLog", "glDeleteProgram", "glUseProgram",
	"glGetUniformLocation", "glUniform1iv", "glUniform2iv", "glUniform3iv",
	"glUniform4iv", "glUniform1fv", "glUniform2fv", "glUniform3fv",
	"glUniform4fv", "glUniformMatrix4fv", "glBindImageTexture",
	"glDispatchCompute", "glMemoryBarrier", "glFlush",
}

// extEntries are resolved through eglGetProcAddress.
var extEntries = []struct{ capability, name string }{
	{CapClientBuffer, "eglGetNativeClientBufferANDROID"},
	{CapCreateImage, "eglCreateImageKHR"},
	{CapDestroyImage, "eglDestroyImageKHR"},
	{CapCreateSync, "eglCreateSyncKHR"},
	{CapDestroySync, "eglDestroySyncKHR"},
	{CapDupFence, "eglDupNativeFenceFDANDROID"},
	{CapImageTexture2D, "glEGLImageTargetTexture2DOES"},
	{CapImageStorage, "glEGLImageTargetTexStorageEXT"},
}

func core(name string) platform.Candidate {
	return platform.Candidate{Name: name, Variant: platform.VariantDefault}
}

func hasExtension(list, name string) bool {
	return slices.Contains(strings.Fields(list), name)
}

func configAttribs() []int32 {
	return []int32{
		eglRenderableType, eglOpenGLES3Bit,
		eglSurfaceType, eglPbufferBit,
		eglRedSize, 8, eglGreenSize, 8, eglBlueSize, 8, eglAlphaSize, 8,
		eglNone,
	}
}

func contextAttribs() []int32 {
	return []int32{eglContextMajorVersion, 3, eglContextMinorVersion, 1, eglNone}
}

func pbufferAttribs() []int32 {
	return []int32{eglWidth, 1, eglHeight, 1, eglNone}
}

func imageAttribs() []int32 {
	return []int32{eglImagePreserved, eglTrue, eglNone}
}

func fenceAttribs() []int32 {
	return []int32{eglSyncNativeFenceFD, eglNoNativeFenceFD, eglNone}
}

// uniformEntry picks the vector uniform setter for n components.
func uniformEntry(kind string, n int) (string, error) {
	if n < 1 || n > 4 {
		return "", fmt.Errorf("uniform with %d components", n)
	}
	return fmt.Sprintf("glUniform%d%sv", n, kind), nil
}

var eglErrors = map[uint32]string{
	0x3000: "EGL_SUCCESS",
	0x3001: "EGL_NOT_INITIALIZED",
	0x3002: "EGL_BAD_ACCESS",
	0x3003: "EGL_BAD_ALLOC",
	0x3004: "EGL_BAD_ATTRIBUTE",
	0x3005: "EGL_BAD_CONFIG",
	0x3006: "EGL_BAD_CONTEXT",
	0x3007: "EGL_BAD_CURRENT_SURFACE",
	0x3008: "EGL_BAD_DISPLAY",
	0x3009: "EGL_BAD_MATCH",
	0x300A: "EGL_BAD_NATIVE_PIXMAP",
	0x300B: "EGL_BAD_NATIVE_WINDOW",
	0x300C: "EGL_BAD_PARAMETER",
	0x300D: "EGL_BAD_SURFACE",
	0x300E: "EGL_CONTEXT_LOST",
}

func eglErrorString(code uint32) string {
	if s, ok := eglErrors[code]; ok {
		return s
	}
	return fmt.Sprintf("EGL_ERROR_%#x", code)
}
