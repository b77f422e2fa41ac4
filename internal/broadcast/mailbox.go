package broadcast

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/karelxkk/svx-dashboard/internal/domain"
)

// Mailbox is a bounded FIFO of events with a drop-oldest overflow policy.
type Mailbox struct {
	mu     sync.Mutex
	buf    []domain.Event
	head   int
	size   int
	notify chan struct{}

	closed    chan struct{}
	closeOnce sync.Once
	dropped   atomic.Uint64
	clock     clockwork.Clock
}

// NewMailbox creates a mailbox holding at most capacity events (minimum 1).
func NewMailbox(capacity int, clock clockwork.Clock) *Mailbox {
	if capacity < 1 {
		capacity = 1
	}
	return &Mailbox{
		buf:    make([]domain.Event, capacity),
		notify: make(chan struct{}, 1),
		closed: make(chan struct{}),
		clock:  clock,
	}
}

// Put enqueues e without blocking. When the mailbox is full the single oldest event is
// discarded first; the newest event is never dropped. It reports whether e was enqueued and
// whether an older event was discarded. Put on a closed mailbox enqueues nothing.
func (m *Mailbox) Put(e domain.Event) (enqueued, dropped bool) {
	if m.Closed() {
		return false, false
	}

	m.mu.Lock()
	if m.size == len(m.buf) {
		m.buf[m.head] = domain.Event{}
		m.head = (m.head + 1) % len(m.buf)
		m.size--
		dropped = true
	}
	m.buf[(m.head+m.size)%len(m.buf)] = e
	m.size++
	m.mu.Unlock()

	if dropped {
		m.dropped.Add(1)
	}

	select {
	case m.notify <- struct{}{}:
	default:
	}
	return true, dropped
}

// Drain returns the next event, waiting at most timeout. It returns false when the timeout
// elapses, ctx is done or the mailbox is closed before an event is available.
func (m *Mailbox) Drain(ctx context.Context, timeout time.Duration) (domain.Event, bool) {
	if e, ok := m.pop(); ok {
		return e, true
	}

	timer := m.clock.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-m.notify:
			if e, ok := m.pop(); ok {
				return e, true
			}
		case <-timer.Chan():
			return m.pop()
		case <-ctx.Done():
			return domain.Event{}, false
		case <-m.closed:
			return domain.Event{}, false
		}
	}
}

// Close marks the mailbox dead. Pending events are discarded by the consumer.
func (m *Mailbox) Close() {
	m.closeOnce.Do(func() { close(m.closed) })
}

// Closed reports whether Close has been called.
func (m *Mailbox) Closed() bool {
	select {
	case <-m.closed:
		return true
	default:
		return false
	}
}

// Len returns the number of queued events.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.size
}

// Dropped returns how many events were discarded by the overflow policy.
func (m *Mailbox) Dropped() uint64 {
	return m.dropped.Load()
}

func (m *Mailbox) pop() (domain.Event, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.size == 0 {
		return domain.Event{}, false
	}
	e := m.buf[m.head]
	m.buf[m.head] = domain.Event{}
	m.head = (m.head + 1) % len(m.buf)
	m.size--
	return e, true
}
