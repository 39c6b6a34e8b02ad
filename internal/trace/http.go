package trace

import (
	"encoding/json"
	"net/http"
)

// Middleware attaches a trace context to each request, continuing the
// caller's trace when it sends traceparent or x-trace-id, and echoes the
// trace id in the response.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tc := fromHeaders(r.Header)
		w.Header().Set(TraceIDKey, tc.TraceID)
		next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), tc)))
	})
}

func fromHeaders(h http.Header) Context {
	return FromMap(map[string]string{
		TraceparentKey: h.Get(TraceparentKey),
		TraceIDKey:     h.Get(TraceIDKey),
		SpanIDKey:      h.Get(SpanIDKey),
	})
}

// ExtractFromJSON reads a trace_id field from a websocket message.
func ExtractFromJSON(data []byte) (Context, bool) {
	var msg struct {
		TraceID string `json:"trace_id"`
	}
	if err := json.Unmarshal(data, &msg); err != nil || msg.TraceID == "" {
		return New(), false
	}
	return Context{TraceID: msg.TraceID, SpanID: generateSpanID()}, true
}
