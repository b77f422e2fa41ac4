package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

// DefaultControlChannel is the pub/sub channel control lines travel on.
const DefaultControlChannel = "svx:control"

// Publisher sends control lines to every subscribed instance.
type Publisher struct {
	rdb     goredis.UniversalClient
	channel string
}

func NewPublisher(rdb goredis.UniversalClient, channel string) *Publisher {
	if channel == "" {
		channel = DefaultControlChannel
	}
	return &Publisher{rdb: rdb, channel: channel}
}

// Publish sends line and returns the number of subscribers that received it.
func (p *Publisher) Publish(ctx context.Context, line string) (int64, error) {
	n, err := p.rdb.Publish(ctx, p.channel, line).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to publish control line: %w", err)
	}
	return n, nil
}
