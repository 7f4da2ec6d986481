package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	goredis "github.com/go-redis/redis/v8"

	"marketplace-relay/internal/common/logging"
	"marketplace-relay/internal/redis"
)

// DefaultChannel is the Redis channel events are exchanged on
const DefaultChannel = "orders:new"

// RedisBroker relays events between relay instances. Every instance,
// including the publisher, delivers to its local Hub from the subscription.
type RedisBroker struct {
	client  *redis.Client
	channel string
	hub     *Hub
	logger  logging.Logger

	mu     sync.Mutex
	ps     *goredis.PubSub
	done   chan struct{}
	cancel context.CancelFunc
}

// NewRedisBroker creates a broker; Start subscribes
func NewRedisBroker(client *redis.Client, channel string, hub *Hub, logger logging.Logger) *RedisBroker {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &RedisBroker{
		client:  client,
		channel: channel,
		hub:     hub,
		logger:  logger.WithFields(logging.String("component", "redis_broker"), logging.String("channel", channel)),
	}
}

// Start subscribes and forwards received events to the hub until Close
func (b *RedisBroker) Start(ctx context.Context) error {
	ps, err := b.client.Subscribe(ctx, b.channel)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	b.mu.Lock()
	b.ps = ps
	b.cancel = cancel
	b.done = make(chan struct{})
	b.mu.Unlock()

	go b.consume(runCtx, ps.Channel(), b.done)
	b.logger.Info("Subscribed to event channel")
	return nil
}

func (b *RedisBroker) consume(ctx context.Context, messages <-chan *goredis.Message, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			var evt Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				b.logger.Warn("Discarding malformed event", logging.Err(err))
				continue
			}
			b.hub.Broadcast(evt)
		}
	}
}

// Publish sends evt to every subscribed instance
func (b *RedisBroker) Publish(ctx context.Context, evt Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return b.client.Publish(ctx, b.channel, data)
}

// Close stops consuming and drops the subscription
func (b *RedisBroker) Close() error {
	b.mu.Lock()
	ps, cancel, done := b.ps, b.cancel, b.done
	b.ps, b.cancel = nil, nil
	b.mu.Unlock()

	if ps == nil {
		return nil
	}
	cancel()
	err := ps.Close()
	<-done
	return err
}
