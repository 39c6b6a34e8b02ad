package trace

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

func TestGeneratedIDLengths(t *testing.T) {
	if id := generateTraceID(); len(id) != 32 {
		t.Errorf("trace ID should be 32 chars, got %d", len(id))
	}
	if id := generateSpanID(); len(id) != 16 {
		t.Errorf("span ID should be 16 chars, got %d", len(id))
	}
}

func TestIDsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := generateTraceID()
		if seen[id] {
			t.Error("generated duplicate trace ID")
		}
		seen[id] = true
	}
}

func TestNewChild(t *testing.T) {
	parent := New()
	child := NewChild(parent)

	if child.TraceID != parent.TraceID {
		t.Error("child should inherit trace ID")
	}
	if child.SpanID == parent.SpanID {
		t.Error("child should have new span ID")
	}
	if child.ParentSpanID != parent.SpanID {
		t.Error("child's parent should be parent's span ID")
	}

	orphan := NewChild(Context{})
	if !orphan.Valid() || orphan.ParentSpanID != "" {
		t.Errorf("child of empty context = %+v, want a fresh root", orphan)
	}
}

func TestEnsureContext(t *testing.T) {
	ctx, tc := EnsureContext(context.Background())
	if len(tc.TraceID) != 32 {
		t.Error("should create trace ID")
	}
	_, tc2 := EnsureContext(ctx)
	if tc2.TraceID != tc.TraceID {
		t.Error("should return existing trace")
	}
	if _, ok := FromContext(context.Background()); ok {
		t.Error("should not find trace context in empty context")
	}
}

func TestTraceparentRoundTrip(t *testing.T) {
	tc := New()
	got, ok := ParseTraceparent(tc.Traceparent())
	if !ok {
		t.Fatalf("ParseTraceparent(%q) failed", tc.Traceparent())
	}
	if got.TraceID != tc.TraceID || got.ParentSpanID != tc.SpanID {
		t.Errorf("parsed %+v from %+v", got, tc)
	}
	if got.SpanID == tc.SpanID {
		t.Error("parsed context should get a new span")
	}
}

func TestParseTraceparentRejects(t *testing.T) {
	tests := []string{
		"",
		"00-abc-def-01",
		"00-00000000000000000000000000000000-00f067aa0ba902b7-01",
		"00-4bf92f3577b34da6a3ce929d0e0e473g-00f067aa0ba902b7-01",
		"00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7",
	}
	for _, v := range tests {
		if _, ok := ParseTraceparent(v); ok {
			t.Errorf("ParseTraceparent(%q) should fail", v)
		}
	}
}

func TestMapRoundTrip(t *testing.T) {
	tc := Context{TraceID: strings.Repeat("a", 32), SpanID: strings.Repeat("b", 16), ParentSpanID: "p"}
	m := tc.ToMap()
	if m[ParentSpanIDKey] != "p" {
		t.Error("parent span ID mismatch")
	}

	got := FromMap(m)
	if got.TraceID != tc.TraceID || got.ParentSpanID != tc.SpanID {
		t.Errorf("FromMap() = %+v", got)
	}
}

func TestFromMapLegacyKeys(t *testing.T) {
	tc := FromMap(map[string]string{TraceIDKey: "trace123", SpanIDKey: "span456"})
	if tc.TraceID != "trace123" || tc.ParentSpanID != "span456" {
		t.Errorf("FromMap() = %+v", tc)
	}
	if len(tc.SpanID) != 16 {
		t.Error("should generate new span ID")
	}
	if tc := FromMap(map[string]string{}); len(tc.TraceID) != 32 {
		t.Error("should generate trace ID if missing")
	}
}

func TestSpan(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "perceive_frame")
	if span.Name != "perceive_frame" || span.StartTime.IsZero() {
		t.Fatalf("span = %+v", span)
	}
	if tc, _ := FromContext(ctx); tc.SpanID != span.Ctx.SpanID {
		t.Error("ctx should carry the span")
	}

	span.SetAttr("frame", 7)
	span.RecordError(errors.New("first"))
	span.RecordError(errors.New("second"))
	span.RecordError(nil)
	if span.Duration() != 0 {
		t.Error("duration should be zero before End")
	}
	span.End()
	end := span.EndTime
	span.End()

	if span.EndTime != end {
		t.Error("second End should keep the first end time")
	}
	if v, ok := span.Attr("frame"); !ok || v != 7 {
		t.Errorf("Attr(frame) = %v, %v", v, ok)
	}
	if span.Err() == nil || span.Err().Error() != "first" {
		t.Errorf("Err() = %v, want first", span.Err())
	}
	if !strings.Contains(span.LogValue().String(), "perceive_frame") {
		t.Errorf("LogValue() = %v", span.LogValue())
	}
}

func TestSpanNested(t *testing.T) {
	ctx, parent := StartSpan(context.Background(), "parent")
	_, child := StartSpan(ctx, "child")

	if child.Ctx.TraceID != parent.Ctx.TraceID {
		t.Error("child should inherit trace ID")
	}
	if child.Ctx.ParentSpanID != parent.Ctx.SpanID {
		t.Error("child's parent should be parent's span")
	}
}

func TestLogger(t *testing.T) {
	ctx := WithContext(context.Background(), New())
	Logger(ctx).Info("test message")
	Logger(context.Background()).Info("no trace")
}

func TestMiddleware(t *testing.T) {
	parent := New()
	var got Context
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = FromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(TraceparentKey, parent.Traceparent())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got.TraceID != parent.TraceID || got.ParentSpanID != parent.SpanID {
		t.Errorf("request context = %+v, want child of %+v", got, parent)
	}
	if rec.Header().Get(TraceIDKey) != parent.TraceID {
		t.Errorf("response trace id = %q", rec.Header().Get(TraceIDKey))
	}
}

func TestExtractFromJSON(t *testing.T) {
	tc, ok := ExtractFromJSON([]byte(`{"type":"reset","trace_id":"abc"}`))
	if !ok || tc.TraceID != "abc" {
		t.Errorf("ExtractFromJSON() = %+v, %v", tc, ok)
	}
	if _, ok := ExtractFromJSON([]byte(`{"type":"reset"}`)); ok {
		t.Error("missing trace_id should not be found")
	}
	if _, ok := ExtractFromJSON([]byte(`not json`)); ok {
		t.Error("bad json should not be found")
	}
}

func TestUnaryClientInterceptor(t *testing.T) {
	tc := New()
	ctx := WithContext(context.Background(), tc)

	var md metadata.MD
	invoker := func(ctx context.Context, _ string, _, _ any, _ *grpc.ClientConn, _ ...grpc.CallOption) error {
		md, _ = metadata.FromOutgoingContext(ctx)
		return nil
	}
	if err := UnaryClientInterceptor()(ctx, "/m", nil, nil, nil, invoker); err != nil {
		t.Fatal(err)
	}
	if v := md.Get(TraceIDKey); len(v) != 1 || v[0] != tc.TraceID {
		t.Errorf("%s = %v", TraceIDKey, v)
	}
	if v := md.Get(TraceparentKey); len(v) != 1 || v[0] != tc.Traceparent() {
		t.Errorf("%s = %v", TraceparentKey, v)
	}
}
