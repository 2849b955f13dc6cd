package worker

import (
	"context"
	"encoding/binary"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/agentmine-network/agentmine-indexer/internal/reconciler"
	"github.com/redis/go-redis/v9"
)

// Config configures the worker.
type Config struct {
	RedisClient   redis.UniversalClient
	Engine        *reconciler.Engine
	Topic         string
	ConsumerGroup string
}

// QueueStats holds queue statistics.
type QueueStats struct {
	StreamLength int64
	Pending      int64
	Consumers    int64
}

// Worker consumes sync ticks from Redis Streams and runs reconciliation
// passes. The consumer group gives at-most-one-concurrent-tick in the common
// case; overlap is harmless because ticks are idempotent.
type Worker struct {
	router        *message.Router
	engine        *reconciler.Engine
	redisClient   redis.UniversalClient
	topic         string
	consumerGroup string
}

// New creates a new Worker.
func New(cfg Config) (*Worker, error) {
	logger := watermill.NewSlogLogger(nil)

	sub, err := redisstream.NewSubscriber(
		redisstream.SubscriberConfig{
			Client:        cfg.RedisClient,
			ConsumerGroup: cfg.ConsumerGroup,
		},
		logger,
	)
	if err != nil {
		return nil, err
	}

	router, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return nil, err
	}

	w := &Worker{
		router:        router,
		engine:        cfg.Engine,
		redisClient:   cfg.RedisClient,
		topic:         cfg.Topic,
		consumerGroup: cfg.ConsumerGroup,
	}

	router.AddNoPublisherHandler(
		"reconcile-tick",
		cfg.Topic,
		sub,
		w.handleTick,
	)

	return w, nil
}

// handleTick runs one reconciliation pass for a tick message.
func (w *Worker) handleTick(msg *message.Message) error {
	msgUUID := msg.UUID

	if len(msg.Payload) < 8 {
		slog.Warn("worker invalid payload",
			"msg_uuid", msgUUID,
			"len", len(msg.Payload),
		)
		return nil // ack invalid messages to avoid infinite retry
	}

	tickedAt := int64(binary.BigEndian.Uint64(msg.Payload[0:8]))

	slog.Info("worker tick start",
		"ticked_at", tickedAt,
		"msg_uuid", msgUUID,
	)

	ctx := context.Background()
	sum, err := w.engine.Tick(ctx)
	if err != nil {
		slog.Error("worker tick failed",
			"ticked_at", tickedAt,
			"msg_uuid", msgUUID,
			"err", err,
		)
		// Delay before retry to avoid hammering on errors
		time.Sleep(5 * time.Second)
		return err // will be redelivered
	}

	slog.Info("worker tick done",
		"ticked_at", tickedAt,
		"msg_uuid", msgUUID,
		"errors", sum.Errors,
		"duration_ms", sum.DurationMs,
	)
	return nil
}

// Run starts the worker. It blocks until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	return w.router.Run(ctx)
}

// Close closes the worker.
func (w *Worker) Close() error {
	return w.router.Close()
}

// QueueStats returns current queue statistics.
func (w *Worker) QueueStats(ctx context.Context) (QueueStats, error) {
	var stats QueueStats

	length, err := w.redisClient.XLen(ctx, w.topic).Result()
	if err != nil {
		return stats, err
	}
	stats.StreamLength = length

	groups, err := w.redisClient.XInfoGroups(ctx, w.topic).Result()
	if err != nil {
		// Stream might not exist yet
		return stats, nil
	}

	for _, g := range groups {
		if g.Name == w.consumerGroup {
			stats.Pending = g.Pending
			stats.Consumers = g.Consumers
			break
		}
	}

	return stats, nil
}
