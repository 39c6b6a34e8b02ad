package trace

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Span times one operation, such as perceiving a frame.
type Span struct {
	Name      string
	Ctx       Context
	StartTime time.Time
	EndTime   time.Time

	mu    sync.Mutex
	attrs map[string]any
	err   error
}

// StartSpan begins a span as a child of the span in ctx.
func StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	parent, _ := FromContext(ctx)
	s := &Span{
		Name:      name,
		Ctx:       NewChild(parent),
		StartTime: time.Now(),
		attrs:     make(map[string]any),
	}
	return WithContext(ctx, s.Ctx), s
}

// SetAttr sets an attribute reported when the span ends.
func (s *Span) SetAttr(key string, val any) {
	s.mu.Lock()
	s.attrs[key] = val
	s.mu.Unlock()
}

// Attr returns an attribute value.
func (s *Span) Attr(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.attrs[key]
	return v, ok
}

// RecordError marks the span failed. The first error wins.
func (s *Span) RecordError(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

// Err returns the recorded error.
func (s *Span) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// End stamps the end time and logs the span at debug level. Calling End
// twice keeps the first end time.
func (s *Span) End() {
	s.mu.Lock()
	if !s.EndTime.IsZero() {
		s.mu.Unlock()
		return
	}
	s.EndTime = time.Now()
	s.mu.Unlock()
	slog.Debug("span", "span", s)
}

// Duration returns the span duration, zero until End.
func (s *Span) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.EndTime.IsZero() {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}

// LogValue implements slog.LogValuer.
func (s *Span) LogValue() slog.Value {
	d := s.Duration()
	s.mu.Lock()
	defer s.mu.Unlock()

	attrs := []slog.Attr{slog.String("name", s.Name)}
	attrs = append(attrs, s.Ctx.LogAttrs()...)
	attrs = append(attrs, slog.Duration("duration", d))
	if s.err != nil {
		attrs = append(attrs, slog.String("error", s.err.Error()))
	}
	for k, v := range s.attrs {
		attrs = append(attrs, slog.Any(k, v))
	}
	return slog.GroupValue(attrs...)
}
