package broadcast

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/karelxkk/svx-dashboard/internal/adapter/metrics"
	"github.com/karelxkk/svx-dashboard/internal/admission"
	"github.com/karelxkk/svx-dashboard/internal/domain"
)

// Admitter grants and returns connection claims per origin.
type Admitter interface {
	Claim(origin string) (bool, admission.Reason)
	Release(origin string)
}

// RejectedError is returned by Register when admission refuses a client.
type RejectedError struct {
	Reason admission.Reason
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s: %s", domain.ErrRejected, e.Reason)
}

func (e *RejectedError) Unwrap() error {
	return domain.ErrRejected
}

// Client is one registered consumer. Its claim is released exactly once.
type Client struct {
	id          uuid.UUID
	origin      string
	mailbox     *Mailbox
	connectedAt time.Time
	alive       atomic.Bool
	release     sync.Once
}

func (c *Client) ID() uuid.UUID     { return c.id }
func (c *Client) Origin() string    { return c.origin }
func (c *Client) Mailbox() *Mailbox { return c.mailbox }
func (c *Client) Alive() bool       { return c.alive.Load() }

// Broker fans events out to every registered client.
type Broker struct {
	mu          sync.Mutex
	clients     map[uuid.UUID]*Client
	admitter    Admitter
	clock       clockwork.Clock
	mailboxSize int
	metrics     *metrics.StreamMetrics

	done      chan struct{}
	closeOnce sync.Once
}

// NewBroker creates a broker. A nil admitter admits everyone; nil metrics disables instrumentation.
func NewBroker(admitter Admitter, clock clockwork.Clock, mailboxSize int, m *metrics.StreamMetrics) *Broker {
	return &Broker{
		clients:     make(map[uuid.UUID]*Client),
		admitter:    admitter,
		clock:       clock,
		mailboxSize: mailboxSize,
		metrics:     m,
		done:        make(chan struct{}),
	}
}

// Register claims a slot for origin and adds a new client with an empty mailbox.
func (b *Broker) Register(origin string) (*Client, error) {
	if b.Closed() {
		return nil, domain.ErrClosed
	}

	if b.admitter != nil {
		if ok, reason := b.admitter.Claim(origin); !ok {
			slog.Warn("Rejecting client", "origin", origin, "reason", string(reason))
			return nil, &RejectedError{Reason: reason}
		}
	}

	c := &Client{
		id:          uuid.New(),
		origin:      origin,
		mailbox:     NewMailbox(b.mailboxSize, b.clock),
		connectedAt: b.clock.Now(),
	}
	c.alive.Store(true)

	b.mu.Lock()
	if b.Closed() {
		b.mu.Unlock()
		b.releaseClaim(c)
		return nil, domain.ErrClosed
	}
	b.clients[c.id] = c
	total := len(b.clients)
	b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.ConnectedClients.Set(float64(total))
	}
	slog.Debug("Client registered", "client_id", c.id.String(), "origin", origin, "total_clients", total)
	return c, nil
}

// Unregister removes c, closes its mailbox and releases its claim. Safe to call repeatedly.
func (b *Broker) Unregister(c *Client) {
	if c == nil {
		return
	}

	b.mu.Lock()
	_, present := b.clients[c.id]
	delete(b.clients, c.id)
	remaining := len(b.clients)
	b.mu.Unlock()

	c.alive.Store(false)
	c.mailbox.Close()
	b.releaseClaim(c)

	if !present {
		return
	}
	if b.metrics != nil {
		b.metrics.ConnectedClients.Set(float64(remaining))
		b.metrics.ConnectionSeconds.Observe(b.clock.Since(c.connectedAt).Seconds())
	}
	slog.Debug("Client unregistered", "client_id", c.id.String(), "origin", c.origin, "remaining_clients", remaining)
}

// Broadcast puts e into the mailbox of every client alive at the time of the call and
// returns how many mailboxes received it. Delivery happens outside the registry lock.
func (b *Broker) Broadcast(e domain.Event) int {
	b.mu.Lock()
	targets := make([]*Client, 0, len(b.clients))
	for _, c := range b.clients {
		targets = append(targets, c)
	}
	b.mu.Unlock()

	delivered, drops := 0, 0
	for _, c := range targets {
		if !c.Alive() {
			continue
		}
		enqueued, dropped := c.mailbox.Put(e)
		if !enqueued {
			continue
		}
		if dropped {
			drops++
		}
		delivered++
	}

	if b.metrics != nil {
		b.metrics.EventsBroadcast.WithLabelValues(e.Type).Inc()
		b.metrics.Deliveries.Add(float64(delivered))
		b.metrics.MailboxDrops.Add(float64(drops))
	}
	if drops > 0 {
		slog.Debug("Mailbox overflow, oldest events dropped", "event", e.Type, "clients", drops)
	}
	return delivered
}

// Count returns the number of registered clients.
func (b *Broker) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Close signals shutdown. Registration fails afterwards and pumps watching Done exit.
func (b *Broker) Close() {
	b.closeOnce.Do(func() {
		close(b.done)
		slog.Info("Broker closed", "clients", b.Count())
	})
}

// Done is closed when the broker shuts down.
func (b *Broker) Done() <-chan struct{} {
	return b.done
}

// Closed reports whether Close has been called.
func (b *Broker) Closed() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

func (b *Broker) releaseClaim(c *Client) {
	c.release.Do(func() {
		if b.admitter != nil {
			b.admitter.Release(c.origin)
		}
	})
}
