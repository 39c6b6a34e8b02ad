package batch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/GriffinCanCode/hotpath/internal/router"
	"github.com/GriffinCanCode/hotpath/internal/rules"
)

type mockSink struct {
	mu    sync.Mutex
	calls [][]router.Action
	err   error
}

func (m *mockSink) RecordBatch(_ context.Context, actions []router.Action) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, actions)
	if m.err != nil {
		return 0, m.err
	}
	return len(actions), nil
}

func (m *mockSink) getCalls() [][]router.Action {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func tap(i int) router.Action {
	return router.Action{Type: rules.ActionTap, RuleIndex: i}
}

func TestBatcher_FlushOnMaxSize(t *testing.T) {
	sink := &mockSink{}
	b := NewBatcher(sink, 3, time.Hour)

	for i := 0; i < 3; i++ {
		b.Add(tap(i))
	}
	b.Stop()

	calls := sink.getCalls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 flush, got %d", len(calls))
	}
	if len(calls[0]) != 3 || calls[0][2].RuleIndex != 2 {
		t.Errorf("flushed %+v", calls[0])
	}
}

func TestBatcher_AddAccumulatesItems(t *testing.T) {
	sink := &mockSink{}
	b := NewBatcher(sink, 100, time.Hour)

	b.Add(tap(0))
	b.Add(tap(1))
	if b.Pending() != 2 {
		t.Errorf("expected 2 pending, got %d", b.Pending())
	}
	if len(sink.getCalls()) != 0 {
		t.Error("nothing should be flushed yet")
	}
	b.Stop()
}

func TestBatcher_FlushAfterDelay(t *testing.T) {
	sink := &mockSink{}
	b := NewBatcher(sink, 100, 10*time.Millisecond)
	b.Add(tap(0))

	deadline := time.Now().Add(2 * time.Second)
	for len(sink.getCalls()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	b.Stop()

	if len(sink.getCalls()) != 1 {
		t.Fatalf("expected 1 timed flush, got %d", len(sink.getCalls()))
	}
}

func TestBatcher_StopFlushesRemaining(t *testing.T) {
	sink := &mockSink{}
	b := NewBatcher(sink, 100, time.Hour)
	b.Add(tap(7))
	b.Stop()

	calls := sink.getCalls()
	if len(calls) != 1 || calls[0][0].RuleIndex != 7 {
		t.Fatalf("Stop() flushed %+v", calls)
	}

	b.Add(tap(8))
	if b.Pending() != 0 {
		t.Error("Add after Stop should be dropped")
	}
}

func TestBatcher_SinkErrorDoesNotBlock(t *testing.T) {
	sink := &mockSink{err: errors.New("disk full")}
	b := NewBatcher(sink, 1, time.Hour)
	b.Add(tap(0))
	b.Add(tap(1))
	b.Stop()

	if len(sink.getCalls()) != 2 {
		t.Errorf("expected 2 attempts, got %d", len(sink.getCalls()))
	}
}

func TestBatcher_Defaults(t *testing.T) {
	b := NewBatcher(&mockSink{}, 0, 0)
	if b.maxSize != DefaultMaxSize || b.flushDelay != DefaultFlushDelay {
		t.Errorf("defaults = %d, %v", b.maxSize, b.flushDelay)
	}
}
