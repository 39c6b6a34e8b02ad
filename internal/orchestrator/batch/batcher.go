// Package batch groups fired actions and writes them to the action log off
// the frame loop.
package batch

import (
	"context"
	"sync"
	"time"

	"github.com/GriffinCanCode/hotpath/internal/router"
	"github.com/GriffinCanCode/hotpath/internal/trace"
)

// Sink persists a batch of actions.
type Sink interface {
	RecordBatch(ctx context.Context, actions []router.Action) (int, error)
}

// Batcher accumulates actions and flushes them when full or after a delay.
type Batcher struct {
	sink       Sink
	maxSize    int
	flushDelay time.Duration

	mu      sync.Mutex
	items   []router.Action
	timer   *time.Timer
	stopped bool
	wg      sync.WaitGroup
}

// NewBatcher creates a batcher writing to sink.
func NewBatcher(sink Sink, maxSize int, flushDelay time.Duration) *Batcher {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if flushDelay <= 0 {
		flushDelay = DefaultFlushDelay
	}
	return &Batcher{
		sink:       sink,
		maxSize:    maxSize,
		flushDelay: flushDelay,
		items:      make([]router.Action, 0, maxSize),
	}
}

// Add queues an action. Actions added after Stop are dropped.
func (b *Batcher) Add(a router.Action) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}

	b.items = append(b.items, a)
	if len(b.items) >= b.maxSize {
		b.flushLocked()
		return
	}

	if b.timer == nil {
		b.timer = time.AfterFunc(b.flushDelay, b.timerFlush)
	} else {
		b.timer.Reset(b.flushDelay)
	}
}

func (b *Batcher) timerFlush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushLocked()
}

func (b *Batcher) flushLocked() {
	if len(b.items) == 0 {
		return
	}
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	items := b.items
	b.items = make([]router.Action, 0, b.maxSize)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ctx, span := trace.StartSpan(context.Background(), "action_batch_flush")
		defer span.End()
		span.SetAttr("count", len(items))

		log := trace.Logger(ctx)
		stored, err := b.sink.RecordBatch(ctx, items)
		if err != nil {
			span.RecordError(err)
			log.Warn("action batch store failed", "error", err, "count", len(items))
			return
		}
		log.Debug("action batch stored", "stored", stored, "submitted", len(items))
	}()
}

// Pending returns the number of queued actions.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Flush forces an immediate flush of pending actions.
func (b *Batcher) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushLocked()
}

// Stop flushes remaining actions and waits for in-flight writes.
func (b *Batcher) Stop() {
	b.mu.Lock()
	b.stopped = true
	b.flushLocked()
	b.mu.Unlock()
	b.wg.Wait()
}
