package publisher

import (
	"context"
	"encoding/binary"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/redis/go-redis/v9"
)

// Publisher publishes sync ticks to Redis Streams. Payload is the tick's
// unix time as 8 big-endian bytes.
type Publisher struct {
	pub         message.Publisher
	redisClient redis.UniversalClient
	topic       string
}

// New creates a new Publisher.
func New(redisClient redis.UniversalClient, topic string) (*Publisher, error) {
	logger := watermill.NewSlogLogger(nil)

	pub, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{
			Client: redisClient,
		},
		logger,
	)
	if err != nil {
		return nil, err
	}

	return &Publisher{
		pub:         pub,
		redisClient: redisClient,
		topic:       topic,
	}, nil
}

// PublishTick enqueues one reconciliation tick.
func (p *Publisher) PublishTick(ctx context.Context, tickedAt time.Time) error {
	payload := make([]byte, 8)
	binary.BigEndian.PutUint64(payload, uint64(tickedAt.Unix()))

	msgUUID := watermill.NewUUID()
	msg := message.NewMessage(msgUUID, payload)

	if err := p.pub.Publish(p.topic, msg); err != nil {
		slog.Error("redis publish failed",
			"ticked_at", tickedAt.Unix(),
			"msg_uuid", msgUUID,
			"err", err,
		)
		return err
	}

	slog.Debug("redis publish ok",
		"ticked_at", tickedAt.Unix(),
		"msg_uuid", msgUUID,
	)
	return nil
}

// RunInterval publishes a tick every interval until the context is
// cancelled. A failed publish is logged and retried on the next interval.
func (p *Publisher) RunInterval(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t := <-ticker.C:
			if err := p.PublishTick(ctx, t); err != nil {
				slog.Warn("interval tick publish failed", "err", err)
			}
		}
	}
}

// Close closes the publisher.
func (p *Publisher) Close() error {
	return p.pub.Close()
}

// QueueLength returns the number of messages in the Redis stream.
func (p *Publisher) QueueLength(ctx context.Context) (int64, error) {
	return p.redisClient.XLen(ctx, p.topic).Result()
}

// Topic returns the Redis stream topic name.
func (p *Publisher) Topic() string {
	return p.topic
}
