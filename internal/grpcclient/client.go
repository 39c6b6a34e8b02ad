// Package grpcclient talks to the inference sidecar that hosts the OCR and
// object-detection models.
package grpcclient

import (
	"context"
	"image"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"

	apperr "github.com/GriffinCanCode/hotpath/internal/errors"
	"github.com/GriffinCanCode/hotpath/internal/ocr"
	"github.com/GriffinCanCode/hotpath/internal/resilience"
	"github.com/GriffinCanCode/hotpath/internal/trace"
)

// Config holds client settings.
type Config struct {
	KeepaliveTime       time.Duration
	KeepaliveTimeout    time.Duration
	HealthCheckInterval time.Duration
	CallTimeout         time.Duration
	LoadTimeout         time.Duration
	Breaker             resilience.BreakerConfig
	Retry               resilience.RetryConfig
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		KeepaliveTime:       DefaultKeepaliveTime,
		KeepaliveTimeout:    DefaultKeepaliveTimeout,
		HealthCheckInterval: DefaultHealthCheckInterval,
		CallTimeout:         DefaultCallTimeout,
		LoadTimeout:         DefaultLoadTimeout,
		Breaker:             resilience.InferenceBreaker(),
		Retry:               resilience.ModelLoadRetry(),
	}
}

// Client wraps the sidecar connection. Per-frame calls go through a circuit
// breaker; model loads are retried.
type Client struct {
	conn    *grpc.ClientConn
	health  healthpb.HealthClient
	breaker *resilience.Breaker
	cfg     Config
}

// New dials the sidecar at addr.
func New(addr string, cfg Config) (*Client, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                cfg.KeepaliveTime,
			Timeout:             cfg.KeepaliveTimeout,
			PermitWithoutStream: true,
		}),
		grpc.WithUnaryInterceptor(trace.UnaryClientInterceptor()),
		grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(MaxMessageSize), grpc.MaxCallSendMsgSize(MaxMessageSize)),
	)
	if err != nil {
		return nil, apperr.Wrapf(err, apperr.CodeUnavailable, "dial inference sidecar %s", addr)
	}
	return NewWithConn(conn, cfg), nil
}

// NewWithConn wraps an existing connection.
func NewWithConn(conn *grpc.ClientConn, cfg Config) *Client {
	c := &Client{
		conn:   conn,
		health: healthpb.NewHealthClient(conn),
		cfg:    cfg,
	}
	c.breaker = resilience.New("inference", cfg.Breaker).WithHook(func(from, to resilience.State) {
		slog.Warn("inference circuit changed", "from", from, "to", to)
	})
	return c
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Breaker exposes the per-frame circuit breaker.
func (c *Client) Breaker() *resilience.Breaker { return c.breaker }

func (c *Client) invoke(ctx context.Context, timeout time.Duration, method string, req, resp any) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := c.conn.Invoke(ctx, method, req, resp, grpc.CallContentSubtype(CodecName)); err != nil {
		return apperr.FromGRPCError(err).WithMetadata("method", method)
	}
	return nil
}

// call runs a per-frame RPC behind the breaker.
func (c *Client) call(ctx context.Context, method string, req, resp any) error {
	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.invoke(ctx, c.cfg.CallTimeout, method, req, resp)
	})
}

// load runs a model-load RPC with retries.
func (c *Client) load(ctx context.Context, method string, req LoadModelRequest) (string, error) {
	var resp LoadModelResponse
	err := resilience.Retry(ctx, c.cfg.Retry, func() error {
		return c.invoke(ctx, c.cfg.LoadTimeout, method, &req, &resp)
	})
	if err != nil {
		return "", apperr.Wrapf(err, apperr.CodeOCRInitFailed, "load %s on %s", req.Model, req.Accelerator)
	}
	if resp.Handle == "" {
		return "", apperr.Newf(apperr.CodeOCRInitFailed, "sidecar returned no handle for %s", req.Model)
	}
	return resp.Handle, nil
}

// LoadDetector loads a text detector and returns its handle.
func (c *Client) LoadDetector(ctx context.Context, model string, acc ocr.Accelerator) (string, error) {
	return c.load(ctx, MethodLoadDetector, LoadModelRequest{Model: model, Accelerator: acc.String()})
}

// LoadRecognizer loads a text recognizer with its dictionary.
func (c *Client) LoadRecognizer(ctx context.Context, model string, keys []string, acc ocr.Accelerator) (string, error) {
	return c.load(ctx, MethodLoadRecognizer, LoadModelRequest{Model: model, Accelerator: acc.String(), Keys: keys})
}

// Detect returns pixel-unit text boxes.
func (c *Client) Detect(ctx context.Context, handle string, img *image.RGBA) ([]ocr.RotatedRect, error) {
	var resp DetectResponse
	if err := c.call(ctx, MethodDetect, &DetectRequest{Handle: handle, Frame: NewFrame(img, image.Rectangle{})}, &resp); err != nil {
		return nil, err
	}
	return clampBoxes(resp.Boxes), nil
}

// Recognize reads the text inside box, sending only the cropped pixels.
func (c *Client) Recognize(ctx context.Context, handle string, img *image.RGBA, box ocr.RotatedRect) (RecognizeResponse, error) {
	crop := box.Bounds(img.Rect)
	if crop.Empty() {
		return RecognizeResponse{}, nil
	}
	var resp RecognizeResponse
	err := c.call(ctx, MethodRecognize, &RecognizeRequest{Handle: handle, Crop: NewFrame(img, crop), Box: box}, &resp)
	return resp, err
}

// DetectObjects runs the sidecar's object detector; boxes carry class ids.
func (c *Client) DetectObjects(ctx context.Context, img *image.RGBA) ([]ocr.RotatedRect, error) {
	var resp DetectResponse
	if err := c.call(ctx, MethodDetectObjects, &DetectRequest{Frame: NewFrame(img, image.Rectangle{})}, &resp); err != nil {
		return nil, err
	}
	return clampBoxes(resp.Boxes), nil
}

// Release unloads a model instance.
func (c *Client) Release(ctx context.Context, handle string) error {
	return c.invoke(ctx, c.cfg.CallTimeout, MethodRelease, &ReleaseRequest{Handle: handle}, &ReleaseResponse{})
}

// Health checks the sidecar's serving status.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, HealthCheckTimeout)
	defer cancel()
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return apperr.FromGRPCError(err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return apperr.Newf(apperr.CodeUnavailable, "inference sidecar %s", resp.GetStatus())
	}
	return nil
}

// WatchHealth polls Health until ctx ends, reporting transitions to fn.
func (c *Client) WatchHealth(ctx context.Context, fn func(healthy bool)) {
	interval := c.cfg.HealthCheckInterval
	if interval <= 0 {
		interval = DefaultHealthCheckInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := -1
	for {
		healthy := c.Health(ctx) == nil
		if cur := boolInt(healthy); cur != last {
			last = cur
			fn(healthy)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func clampBoxes(boxes []ocr.RotatedRect) []ocr.RotatedRect {
	for i, b := range boxes {
		boxes[i] = ocr.NewRotatedRect(b.CenterX, b.CenterY, b.Width, b.Height, b.Angle, b.Confidence, b.ClassID)
	}
	return boxes
}
