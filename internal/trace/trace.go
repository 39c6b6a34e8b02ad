// Package trace carries W3C trace context through the daemon: per-frame
// spans in the perception loop, HTTP control requests and calls to the
// inference sidecar.
package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
)

// Metadata keys for gRPC and HTTP propagation.
const (
	TraceIDKey      = "x-trace-id"
	SpanIDKey       = "x-span-id"
	ParentSpanIDKey = "x-parent-span-id"
	TraceparentKey  = "traceparent"
)

type ctxKey struct{}

// Context identifies one span within a trace.
type Context struct {
	TraceID      string
	SpanID       string
	ParentSpanID string
}

// New starts a fresh trace.
func New() Context {
	return Context{TraceID: generateTraceID(), SpanID: generateSpanID()}
}

// NewChild starts a span under parent. An empty parent starts a new trace.
func NewChild(parent Context) Context {
	if parent.TraceID == "" {
		return New()
	}
	return Context{
		TraceID:      parent.TraceID,
		SpanID:       generateSpanID(),
		ParentSpanID: parent.SpanID,
	}
}

// Valid reports whether c carries a trace and span id.
func (c Context) Valid() bool { return c.TraceID != "" && c.SpanID != "" }

// FromContext extracts the trace context from ctx.
func FromContext(ctx context.Context) (Context, bool) {
	tc, ok := ctx.Value(ctxKey{}).(Context)
	return tc, ok
}

// WithContext stores tc in ctx.
func WithContext(ctx context.Context, tc Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, tc)
}

// EnsureContext returns the trace context of ctx, creating one if absent.
func EnsureContext(ctx context.Context) (context.Context, Context) {
	if tc, ok := FromContext(ctx); ok {
		return ctx, tc
	}
	tc := New()
	return WithContext(ctx, tc), tc
}

func generateTraceID() string { return randomHex(16) }

func generateSpanID() string { return randomHex(8) }

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Traceparent formats c as a W3C traceparent header value with the sampled
// flag set.
func (c Context) Traceparent() string {
	return fmt.Sprintf("00-%s-%s-01", c.TraceID, c.SpanID)
}

// ParseTraceparent reads a W3C traceparent value. The caller's span becomes
// the parent of a freshly generated span.
func ParseTraceparent(v string) (Context, bool) {
	parts := strings.Split(strings.TrimSpace(v), "-")
	if len(parts) != 4 || len(parts[0]) != 2 || len(parts[1]) != 32 || len(parts[2]) != 16 {
		return Context{}, false
	}
	if !isHex(parts[1]) || !isHex(parts[2]) || strings.Trim(parts[1], "0") == "" {
		return Context{}, false
	}
	return Context{
		TraceID:      strings.ToLower(parts[1]),
		SpanID:       generateSpanID(),
		ParentSpanID: strings.ToLower(parts[2]),
	}, true
}

func isHex(s string) bool {
	_, err := hex.DecodeString(s)
	return err == nil
}

// ToMap exports c for gRPC metadata.
func (c Context) ToMap() map[string]string {
	m := map[string]string{
		TraceIDKey:     c.TraceID,
		SpanIDKey:      c.SpanID,
		TraceparentKey: c.Traceparent(),
	}
	if c.ParentSpanID != "" {
		m[ParentSpanIDKey] = c.ParentSpanID
	}
	return m
}

// FromMap reads propagated metadata, preferring traceparent. The caller's
// span becomes the parent.
func FromMap(m map[string]string) Context {
	if tc, ok := ParseTraceparent(m[TraceparentKey]); ok {
		return tc
	}
	tc := Context{
		TraceID:      m[TraceIDKey],
		SpanID:       generateSpanID(),
		ParentSpanID: m[SpanIDKey],
	}
	if tc.TraceID == "" {
		tc.TraceID = generateTraceID()
	}
	return tc
}

// LogAttrs returns the ids as slog attributes.
func (c Context) LogAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("trace_id", c.TraceID),
		slog.String("span_id", c.SpanID),
	}
	if c.ParentSpanID != "" {
		attrs = append(attrs, slog.String("parent_span_id", c.ParentSpanID))
	}
	return attrs
}

// Logger returns the default logger annotated with the trace ids of ctx.
func Logger(ctx context.Context) *slog.Logger {
	tc, ok := FromContext(ctx)
	if !ok {
		return slog.Default()
	}
	args := make([]any, 0, 3)
	for _, a := range tc.LogAttrs() {
		args = append(args, a)
	}
	return slog.Default().With(args...)
}
