package bus

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Message is one bus delivery.
type Message struct {
	Topic   string
	Payload []byte
}

// Handler consumes bus messages. Handlers run on the subscriber goroutine, so
// one message is fully processed before the next is delivered.
type Handler func(ctx context.Context, msg Message)

// Conn is a thin pub/sub wrapper over the Redis client. The broker itself is
// an external collaborator; this type only publishes and subscribes.
type Conn struct {
	client *redis.Client
	logger *zap.Logger
}

// New wraps an established client.
func New(client *redis.Client, logger *zap.Logger) *Conn {
	return &Conn{client: client, logger: logger}
}

// Publish sends payload to a single topic. Best-effort from the caller's
// perspective: there is no retry and no delivery acknowledgement.
func (c *Conn) Publish(ctx context.Context, topic string, payload []byte) error {
	return c.client.Publish(ctx, topic, payload).Err()
}

// Subscribe consumes the given topics until ctx is canceled, invoking handler
// for every delivery. It returns once the subscription is established; the
// consume loop runs on its own goroutine.
func (c *Conn) Subscribe(ctx context.Context, topics []string, handler Handler) error {
	sub := c.client.Subscribe(ctx, topics...)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return err
	}

	ch := sub.Channel()
	go func() {
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					c.logger.Warn("bus subscription channel closed")
					return
				}
				handler(ctx, Message{Topic: msg.Channel, Payload: []byte(msg.Payload)})
			}
		}
	}()

	c.logger.Info("subscribed to bus topics", zap.Strings("topics", topics))
	return nil
}
