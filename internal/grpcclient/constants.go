package grpcclient

import "time"

// Client configuration defaults.
const (
	DefaultKeepaliveTime    = 10 * time.Second
	DefaultKeepaliveTimeout = 3 * time.Second

	DefaultHealthCheckInterval = 5 * time.Second
	HealthCheckTimeout         = 2 * time.Second

	// DefaultCallTimeout bounds one per-frame inference call.
	DefaultCallTimeout = 250 * time.Millisecond
	// DefaultLoadTimeout bounds one model load.
	DefaultLoadTimeout = 30 * time.Second

	// MaxMessageSize fits a full-resolution RGBA frame.
	MaxMessageSize = 64 << 20
)

// Service and method names of the inference sidecar.
const (
	ServiceName = "hotpath.inference.v1.Inference"

	MethodLoadDetector   = "/" + ServiceName + "/LoadDetector"
	MethodLoadRecognizer = "/" + ServiceName + "/LoadRecognizer"
	MethodDetect         = "/" + ServiceName + "/Detect"
	MethodRecognize      = "/" + ServiceName + "/Recognize"
	MethodDetectObjects  = "/" + ServiceName + "/DetectObjects"
	MethodRelease        = "/" + ServiceName + "/Release"
)
