package config

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	apperr "github.com/GriffinCanCode/hotpath/internal/errors"
	"github.com/GriffinCanCode/hotpath/internal/gpu"
	"github.com/GriffinCanCode/hotpath/internal/ocr"
)

var envVars = []string{
	"HTTP_ADDR", "INFERENCE_ADDR", "CORS_ORIGINS", "CAPTURE_WIDTH", "CAPTURE_HEIGHT",
	"SOURCE_WIDTH", "SOURCE_HEIGHT", "DISPLAY_TOKEN", "API_LEVEL", "FRAME_TIMEOUT_MS",
	"RESIZE_MODE", "OCR_WIDTH", "OCR_HEIGHT", "SHARED_GL_CONTEXT", "USE_CPU_PREPROCESS",
	"OCR_DET_MODEL", "OCR_REC_MODEL", "OCR_KEYS", "OCR_ACCELERATOR", "OCR_MIN_CONFIDENCE",
	"RULES_PATH", "ACTION_DB_PATH", "SKIP_SIMILAR_FRAMES", "MAX_HASH_DISTANCE", "LOG_LEVEL",
	"INJECT_INPUT", "INPUT_TOOL",
}

func clearEnv(t *testing.T) {
	for _, v := range envVars {
		t.Setenv(v, "")
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	cfg := Load()

	if cfg.HTTPAddr != ":8000" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":8000")
	}
	if cfg.InferenceAddr != "localhost:50051" {
		t.Errorf("InferenceAddr = %q, want %q", cfg.InferenceAddr, "localhost:50051")
	}
	if cfg.CaptureWidth != 1080 || cfg.CaptureHeight != 2400 {
		t.Errorf("capture = %dx%d, want 1080x2400", cfg.CaptureWidth, cfg.CaptureHeight)
	}
	if cfg.FrameTimeout != 100*time.Millisecond {
		t.Errorf("FrameTimeout = %v, want 100ms", cfg.FrameTimeout)
	}
	if cfg.OCRWidth != 320 || cfg.OCRHeight != 48 {
		t.Errorf("ocr = %dx%d, want 320x48", cfg.OCRWidth, cfg.OCRHeight)
	}
	if cfg.DisplayToken != 0 {
		t.Errorf("DisplayToken = %#x, want 0", cfg.DisplayToken)
	}
	if !cfg.SkipSimilarFrames {
		t.Error("SkipSimilarFrames should default to true")
	}
	if cfg.UseCPUPreprocess {
		t.Error("UseCPUPreprocess should default to false")
	}
	if cfg.InjectInput || cfg.InputTool != "input" {
		t.Errorf("inject = %v %q, want disabled with the input tool", cfg.InjectInput, cfg.InputTool)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "*" {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadWithEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("HTTP_ADDR", ":9000")
	t.Setenv("INFERENCE_ADDR", "inference:50051")
	t.Setenv("CORS_ORIGINS", "localhost:3000, example.com")
	t.Setenv("DISPLAY_TOKEN", "0x7f00dead")
	t.Setenv("FRAME_TIMEOUT_MS", "250")
	t.Setenv("RESIZE_MODE", "quarter")
	t.Setenv("OCR_ACCELERATOR", "cpu")
	t.Setenv("OCR_MIN_CONFIDENCE", "0.7")
	t.Setenv("SKIP_SIMILAR_FRAMES", "false")
	t.Setenv("USE_CPU_PREPROCESS", "1")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := Load()

	if cfg.HTTPAddr != ":9000" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":9000")
	}
	if cfg.InferenceAddr != "inference:50051" {
		t.Errorf("InferenceAddr = %q, want %q", cfg.InferenceAddr, "inference:50051")
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "example.com" {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
	if cfg.DisplayToken != 0x7f00dead {
		t.Errorf("DisplayToken = %#x, want 0x7f00dead", cfg.DisplayToken)
	}
	if cfg.FrameTimeout != 250*time.Millisecond {
		t.Errorf("FrameTimeout = %v, want 250ms", cfg.FrameTimeout)
	}
	if cfg.Resize() != gpu.ResizeQuarter {
		t.Errorf("Resize() = %v, want quarter", cfg.Resize())
	}
	if cfg.Accelerator() != ocr.AcceleratorCPU {
		t.Errorf("Accelerator() = %v, want cpu", cfg.Accelerator())
	}
	if cfg.OCRMinConfidence != 0.7 {
		t.Errorf("OCRMinConfidence = %f, want 0.7", cfg.OCRMinConfidence)
	}
	if cfg.SkipSimilarFrames {
		t.Error("SkipSimilarFrames should be false")
	}
	if !cfg.UseCPUPreprocess {
		t.Error("UseCPUPreprocess should be true")
	}
	if cfg.Level() != slog.LevelDebug {
		t.Errorf("Level() = %v, want debug", cfg.Level())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		key    string
	}{
		{"zero capture width", func(c *Config) { c.CaptureWidth = 0 }, "CAPTURE_WIDTH"},
		{"negative ocr height", func(c *Config) { c.OCRHeight = -1 }, "OCR_HEIGHT"},
		{"zero frame timeout", func(c *Config) { c.FrameTimeout = 0 }, "FRAME_TIMEOUT_MS"},
		{"bad resize mode", func(c *Config) { c.ResizeMode = "eighth" }, "RESIZE_MODE"},
		{"bad accelerator", func(c *Config) { c.OCRAccelerator = "tpu" }, "OCR_ACCELERATOR"},
		{"confidence above one", func(c *Config) { c.OCRMinConfidence = 1.5 }, "OCR_MIN_CONFIDENCE"},
		{"hash distance too large", func(c *Config) { c.MaxHashDistance = 65 }, "MAX_HASH_DISTANCE"},
		{"negative api level", func(c *Config) { c.APILevel = -3 }, "API_LEVEL"},
		{"bad log level", func(c *Config) { c.LogLevel = "chatty" }, "LOG_LEVEL"},
	}
	clearEnv(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !apperr.IsCode(err, apperr.CodeConfigInvalid) {
				t.Fatalf("Validate() = %v, want ConfigInvalid", err)
			}
			var ae *apperr.AppError
			if !errors.As(err, &ae) || ae.Metadata["key"] != tt.key {
				t.Errorf("key = %v, want %s", ae, tt.key)
			}
		})
	}
}

func TestParsedFallbacks(t *testing.T) {
	cfg := &Config{ResizeMode: "bogus", OCRAccelerator: "bogus", LogLevel: "bogus"}
	if cfg.Resize() != gpu.ResizeHalf {
		t.Errorf("Resize() = %v, want half", cfg.Resize())
	}
	if cfg.Accelerator() != ocr.AcceleratorGPU {
		t.Errorf("Accelerator() = %v, want gpu", cfg.Accelerator())
	}
	if cfg.Level() != slog.LevelInfo {
		t.Errorf("Level() = %v, want info", cfg.Level())
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_STRING", "hello")
	if v := getEnv("TEST_STRING", "default"); v != "hello" {
		t.Errorf("getEnv = %q, want %q", v, "hello")
	}
	if v := getEnv("NONEXISTENT", "default"); v != "default" {
		t.Errorf("getEnv = %q, want %q", v, "default")
	}

	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_INT_INVALID", "not-a-number")
	if v := getEnvInt("TEST_INT", 0); v != 42 {
		t.Errorf("getEnvInt = %d, want %d", v, 42)
	}
	if v := getEnvInt("TEST_INT_INVALID", 100); v != 100 {
		t.Errorf("getEnvInt with invalid = %d, want %d", v, 100)
	}

	t.Setenv("TEST_UINT", "4096")
	t.Setenv("TEST_UINT_HEX", "0x10")
	if v := getEnvUint("TEST_UINT", 0); v != 4096 {
		t.Errorf("getEnvUint = %d, want 4096", v)
	}
	if v := getEnvUint("TEST_UINT_HEX", 0); v != 16 {
		t.Errorf("getEnvUint hex = %d, want 16", v)
	}

	t.Setenv("TEST_FLOAT", "3.14")
	if v := getEnvFloat("TEST_FLOAT", 0.0); v != 3.14 {
		t.Errorf("getEnvFloat = %f, want %f", v, 3.14)
	}

	t.Setenv("TEST_BOOL_TRUE", "true")
	t.Setenv("TEST_BOOL_ONE", "1")
	t.Setenv("TEST_BOOL_FALSE", "false")
	if !getEnvBool("TEST_BOOL_TRUE", false) {
		t.Error("getEnvBool should return true for 'true'")
	}
	if !getEnvBool("TEST_BOOL_ONE", false) {
		t.Error("getEnvBool should return true for '1'")
	}
	if getEnvBool("TEST_BOOL_FALSE", true) {
		t.Error("getEnvBool should return false for 'false'")
	}
	if !getEnvBool("NONEXISTENT", true) {
		t.Error("getEnvBool should return default true")
	}

	t.Setenv("TEST_LIST", "a, ,b")
	if v := getEnvList("TEST_LIST", nil); len(v) != 2 || v[1] != "b" {
		t.Errorf("getEnvList = %v, want [a b]", v)
	}
}
