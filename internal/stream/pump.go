package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/karelxkk/svx-dashboard/internal/adapter/metrics"
	"github.com/karelxkk/svx-dashboard/internal/broadcast"
	"github.com/karelxkk/svx-dashboard/internal/domain"
)

// State is the lifecycle stage of a Pump.
type State int32

const (
	StateConnecting State = iota
	StateAdmitted
	StateStreaming
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAdmitted:
		return "admitted"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ErrNotAdmitted is returned by Stream when Admit has not succeeded.
var ErrNotAdmitted = errors.New("stream not admitted")

// Registrar is the part of the broker a pump needs.
type Registrar interface {
	Register(origin string) (*broadcast.Client, error)
	Unregister(c *broadcast.Client)
	Done() <-chan struct{}
}

// Options tunes pump timing.
type Options struct {
	HeartbeatInterval time.Duration
	DrainTimeout      time.Duration
	RetryHint         time.Duration
}

// DefaultOptions mirrors the service defaults.
func DefaultOptions() Options {
	return Options{
		HeartbeatInterval: 15 * time.Second,
		DrainTimeout:      500 * time.Millisecond,
		RetryHint:         5 * time.Second,
	}
}

// Pump moves events from one client's mailbox to its transport.
type Pump struct {
	broker  Registrar
	clock   clockwork.Clock
	opts    Options
	metrics *metrics.StreamMetrics

	state     atomic.Int32
	client    *broadcast.Client
	closeOnce sync.Once
}

// NewPump creates a pump in the Connecting state. m may be nil.
func NewPump(broker Registrar, clock clockwork.Clock, opts Options, m *metrics.StreamMetrics) *Pump {
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = DefaultOptions().DrainTimeout
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = DefaultOptions().HeartbeatInterval
	}
	return &Pump{broker: broker, clock: clock, opts: opts, metrics: m}
}

// State returns the current lifecycle state.
func (p *Pump) State() State {
	return State(p.state.Load())
}

// Client returns the registered client, nil before admission.
func (p *Pump) Client() *broadcast.Client {
	return p.client
}

// Admit registers the pump's client with the broker. On rejection the pump is Closed and the
// broker's error is returned unchanged.
func (p *Pump) Admit(origin string) error {
	if !p.state.CompareAndSwap(int32(StateConnecting), int32(StateAdmitted)) {
		return fmt.Errorf("admit in state %s", p.State())
	}

	c, err := p.broker.Register(origin)
	if err != nil {
		p.state.Store(int32(StateClosed))
		return err
	}
	p.client = c
	return nil
}

// Stream writes the preamble and the initial events, then pumps the mailbox until ctx is
// cancelled, the broker shuts down, the mailbox dies or a write fails. Only a write failure
// is returned as an error. The pump is Closed when Stream returns.
func (p *Pump) Stream(ctx context.Context, f Framer, initial ...domain.Event) error {
	if !p.state.CompareAndSwap(int32(StateAdmitted), int32(StateStreaming)) {
		return ErrNotAdmitted
	}
	defer p.Close()

	logger := slog.With("client_id", p.client.ID().String(), "transport", f.Transport())

	if err := f.Open(p.opts.RetryHint); err != nil {
		return p.writeFailed(logger, err)
	}
	for _, e := range initial {
		if err := p.writeEvent(f, e); err != nil {
			return p.writeFailed(logger, err)
		}
	}

	mailbox := p.client.Mailbox()
	lastFrame := p.clock.Now()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("Stream ended", "reason", "context")
			return nil
		case <-p.broker.Done():
			logger.Debug("Stream ended", "reason", "shutdown")
			return nil
		default:
		}

		e, ok := mailbox.Drain(ctx, p.opts.DrainTimeout)
		if ok {
			if err := p.writeEvent(f, e); err != nil {
				return p.writeFailed(logger, err)
			}
			lastFrame = p.clock.Now()
			continue
		}

		if mailbox.Closed() {
			logger.Debug("Stream ended", "reason", "mailbox closed")
			return nil
		}
		if ctx.Err() != nil {
			continue
		}

		if p.clock.Since(lastFrame) >= p.opts.HeartbeatInterval {
			if err := f.Heartbeat(); err != nil {
				return p.writeFailed(logger, err)
			}
			if p.metrics != nil {
				p.metrics.Heartbeats.Inc()
			}
			lastFrame = p.clock.Now()
		}
	}
}

// Close unregisters the client and releases its claim. Idempotent; Closed is terminal.
func (p *Pump) Close() {
	p.closeOnce.Do(func() {
		p.state.Store(int32(StateClosed))
		if p.client != nil {
			p.broker.Unregister(p.client)
		}
	})
}

func (p *Pump) writeEvent(f Framer, e domain.Event) error {
	if err := f.WriteEvent(e); err != nil {
		return err
	}
	if p.metrics != nil {
		p.metrics.FramesWritten.WithLabelValues(f.Transport()).Inc()
	}
	return nil
}

func (p *Pump) writeFailed(logger *slog.Logger, err error) error {
	if p.metrics != nil {
		p.metrics.WriteFailures.Inc()
	}
	logger.Debug("Stream write failed", "error", err)
	return fmt.Errorf("stream write: %w", err)
}
