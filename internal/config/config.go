// Package config loads daemon settings from the environment.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	apperr "github.com/GriffinCanCode/hotpath/internal/errors"
	"github.com/GriffinCanCode/hotpath/internal/gpu"
	"github.com/GriffinCanCode/hotpath/internal/ocr"
)

type Config struct {
	HTTPAddr      string
	InferenceAddr string
	CORSOrigins   []string

	// Capture surface and the device screen actions are scaled to.
	CaptureWidth  int
	CaptureHeight int
	SourceWidth   int
	SourceHeight  int
	DisplayToken  uint64 // 0 when no display is routed at start
	APILevel      int    // 0 reads ro.build.version.sdk

	FrameTimeout     time.Duration
	ResizeMode       string
	OCRWidth         int
	OCRHeight        int
	SharedGLContext  bool
	UseCPUPreprocess bool

	OCRDetModel      string
	OCRRecModel      string
	OCRKeys          string
	OCRAccelerator   string
	OCRMinConfidence float64

	RulesPath    string
	ActionDBPath string

	SkipSimilarFrames bool
	MaxHashDistance   int

	// InjectInput performs actions with the shell input tool at InputTool.
	InjectInput bool
	InputTool   string

	LogLevel string
}

func Load() *Config {
	return &Config{
		HTTPAddr:          getEnv("HTTP_ADDR", ":8000"),
		InferenceAddr:     getEnv("INFERENCE_ADDR", "localhost:50051"),
		CORSOrigins:       getEnvList("CORS_ORIGINS", []string{"*"}),
		CaptureWidth:      getEnvInt("CAPTURE_WIDTH", 1080),
		CaptureHeight:     getEnvInt("CAPTURE_HEIGHT", 2400),
		SourceWidth:       getEnvInt("SOURCE_WIDTH", 1080),
		SourceHeight:      getEnvInt("SOURCE_HEIGHT", 2400),
		DisplayToken:      getEnvUint("DISPLAY_TOKEN", 0),
		APILevel:          getEnvInt("API_LEVEL", 0),
		FrameTimeout:      time.Duration(getEnvInt("FRAME_TIMEOUT_MS", 100)) * time.Millisecond,
		ResizeMode:        getEnv("RESIZE_MODE", "half"),
		OCRWidth:          getEnvInt("OCR_WIDTH", 320),
		OCRHeight:         getEnvInt("OCR_HEIGHT", 48),
		SharedGLContext:   getEnvBool("SHARED_GL_CONTEXT", false),
		UseCPUPreprocess:  getEnvBool("USE_CPU_PREPROCESS", false),
		OCRDetModel:       getEnv("OCR_DET_MODEL", "models/ocr_det.tflite"),
		OCRRecModel:       getEnv("OCR_REC_MODEL", "models/ocr_rec.tflite"),
		OCRKeys:           getEnv("OCR_KEYS", "models/ocr_keys.txt"),
		OCRAccelerator:    getEnv("OCR_ACCELERATOR", "gpu"),
		OCRMinConfidence:  getEnvFloat("OCR_MIN_CONFIDENCE", ocr.DefaultMinScore),
		RulesPath:         getEnv("RULES_PATH", ""),
		ActionDBPath:      getEnv("ACTION_DB_PATH", "hotpath.db"),
		SkipSimilarFrames: getEnvBool("SKIP_SIMILAR_FRAMES", true),
		MaxHashDistance:   getEnvInt("MAX_HASH_DISTANCE", 5),
		InjectInput:       getEnvBool("INJECT_INPUT", false),
		InputTool:         getEnv("INPUT_TOOL", "input"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
	}
}

// Validate reports the first setting the daemon cannot run with.
func (c *Config) Validate() error {
	positive := []struct {
		key string
		v   int
	}{
		{"CAPTURE_WIDTH", c.CaptureWidth},
		{"CAPTURE_HEIGHT", c.CaptureHeight},
		{"SOURCE_WIDTH", c.SourceWidth},
		{"SOURCE_HEIGHT", c.SourceHeight},
		{"OCR_WIDTH", c.OCRWidth},
		{"OCR_HEIGHT", c.OCRHeight},
	}
	for _, p := range positive {
		if p.v <= 0 {
			return invalid(p.key, "must be positive, got %d", p.v)
		}
	}
	if c.FrameTimeout <= 0 {
		return invalid("FRAME_TIMEOUT_MS", "must be positive, got %v", c.FrameTimeout)
	}
	if _, err := gpu.ParseResizeMode(c.ResizeMode); err != nil {
		return invalid("RESIZE_MODE", "%v", err)
	}
	if _, err := ocr.ParseAccelerator(c.OCRAccelerator); err != nil {
		return invalid("OCR_ACCELERATOR", "%v", err)
	}
	if c.OCRMinConfidence < 0 || c.OCRMinConfidence > 1 {
		return invalid("OCR_MIN_CONFIDENCE", "%g outside [0,1]", c.OCRMinConfidence)
	}
	if c.MaxHashDistance < 0 || c.MaxHashDistance > 64 {
		return invalid("MAX_HASH_DISTANCE", "%d outside [0,64]", c.MaxHashDistance)
	}
	if c.APILevel < 0 {
		return invalid("API_LEVEL", "negative level %d", c.APILevel)
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return invalid("LOG_LEVEL", "unknown level %q", c.LogLevel)
	}
	return nil
}

func invalid(key, format string, args ...any) error {
	return apperr.Newf(apperr.CodeConfigInvalid, key+" "+format, args...).WithMetadata("key", key)
}

// Level returns the configured log level, info when unparseable.
func (c *Config) Level() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Resize returns the parsed resize mode, half when unparseable.
func (c *Config) Resize() gpu.ResizeMode {
	m, err := gpu.ParseResizeMode(c.ResizeMode)
	if err != nil {
		return gpu.ResizeHalf
	}
	return m
}

// Accelerator returns the parsed accelerator, GPU when unparseable.
func (c *Config) Accelerator() ocr.Accelerator {
	a, err := ocr.ParseAccelerator(c.OCRAccelerator)
	if err != nil {
		return ocr.AcceleratorGPU
	}
	return a
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

// getEnvUint accepts decimal or 0x-prefixed hex.
func getEnvUint(key string, def uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		if u, err := strconv.ParseUint(v, 0, 64); err == nil {
			return u
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return def
}

func getEnvList(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if t := strings.TrimSpace(p); t != "" {
				result = append(result, t)
			}
		}
		return result
	}
	return def
}
