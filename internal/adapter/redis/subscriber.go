package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/karelxkk/svx-dashboard/internal/adapter/metrics"
	"github.com/karelxkk/svx-dashboard/internal/control"
	"github.com/karelxkk/svx-dashboard/internal/platform/correlation"
	"github.com/karelxkk/svx-dashboard/internal/platform/retry"
)

const (
	resubscribeInitialBackoff = 500 * time.Millisecond
	resubscribeMaxBackoff     = 30 * time.Second
)

// LineHandler consumes one control line.
type LineHandler interface {
	HandleLine(ctx context.Context, source, line string) bool
}

// Subscriber feeds every message on the control channel to a LineHandler.
// A dropped subscription is re-established with capped backoff until ctx is done.
type Subscriber struct {
	rdb     *goredis.Client
	channel string
	handler LineHandler
	clock   clockwork.Clock
	metrics *metrics.RedisMetrics
}

// NewSubscriber creates a subscriber. m may be nil.
func NewSubscriber(rdb *goredis.Client, channel string, h LineHandler, clock clockwork.Clock, m *metrics.RedisMetrics) *Subscriber {
	if channel == "" {
		channel = DefaultControlChannel
	}
	return &Subscriber{rdb: rdb, channel: channel, handler: h, clock: clock, metrics: m}
}

// Run blocks until ctx is cancelled.
func (s *Subscriber) Run(ctx context.Context) error {
	policy := retry.Policy{
		InitialBackoff: resubscribeInitialBackoff,
		MaxBackoff:     resubscribeMaxBackoff,
		Clock:          s.clock,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			slog.Warn("Redis control subscription lost, retrying", "channel", s.channel, "attempt", attempt, "backoff", backoff, "error", err)
			if s.metrics != nil {
				s.metrics.Resubscribes.Inc()
			}
		},
	}

	err := retry.Do(ctx, policy, retry.Transient, s.subscribe)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (s *Subscriber) subscribe(ctx context.Context) error {
	sub := s.rdb.Subscribe(ctx, s.channel)
	defer func() { _ = sub.Close() }()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.channel, err)
	}
	slog.Info("Subscribed to Redis control channel", "channel", s.channel)

	for {
		msg, err := sub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, goredis.ErrClosed) {
				return context.Canceled
			}
			return fmt.Errorf("failed to receive control message: %w", err)
		}
		s.handleMessage(ctx, msg.Payload)
	}
}

func (s *Subscriber) handleMessage(ctx context.Context, payload string) {
	if s.metrics != nil {
		s.metrics.Messages.Inc()
	}
	if payload == "" {
		slog.Debug("Empty control message", "channel", s.channel)
		return
	}
	ctx, _ = correlation.Ensure(ctx)
	s.handler.HandleLine(ctx, control.SourceRedis, payload)
}
