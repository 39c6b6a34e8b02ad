package syncx

import (
	"context"
	"sync"
)

// Mailbox is a single-slot handoff between one producer and one consumer.
// Put never blocks: an unconsumed value is overwritten and counted as a drop,
// so the consumer always sees the freshest value.
type Mailbox[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	value  T
	full   bool
	closed bool
	seq    uint64
	drops  uint64
}

// NewMailbox creates an empty mailbox.
func NewMailbox[T any]() *Mailbox[T] {
	m := &Mailbox[T]{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Put stores v, replacing any unconsumed value. It reports false once the
// mailbox is closed.
func (m *Mailbox[T]) Put(v T) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	if m.full {
		m.drops++
	}
	m.value = v
	m.full = true
	m.seq++
	m.cond.Signal()
	return true
}

// Take blocks until a value is available, the mailbox closes, or ctx ends.
// ok is false when no value was taken.
func (m *Mailbox[T]) Take(ctx context.Context) (v T, ok bool) {
	stop := context.AfterFunc(ctx, func() {
		m.mu.Lock()
		m.cond.Broadcast()
		m.mu.Unlock()
	})
	defer stop()

	m.mu.Lock()
	defer m.mu.Unlock()
	for !m.full && !m.closed && ctx.Err() == nil {
		m.cond.Wait()
	}
	if !m.full {
		return v, false
	}
	return m.takeLocked(), true
}

// TryTake returns the pending value without blocking.
func (m *Mailbox[T]) TryTake() (v T, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.full {
		return v, false
	}
	return m.takeLocked(), true
}

func (m *Mailbox[T]) takeLocked() T {
	v := m.value
	var zero T
	m.value = zero
	m.full = false
	return v
}

// Close wakes blocked consumers. A pending value can still be taken.
func (m *Mailbox[T]) Close() {
	m.mu.Lock()
	m.closed = true
	m.cond.Broadcast()
	m.mu.Unlock()
}

// MailboxStats is a snapshot of mailbox counters.
type MailboxStats struct {
	Published uint64
	Dropped   uint64
}

// Stats returns how many values were put and how many were overwritten.
func (m *Mailbox[T]) Stats() MailboxStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MailboxStats{Published: m.seq, Dropped: m.drops}
}
