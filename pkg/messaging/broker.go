package messaging

import (
	"context"
)

// Message is one record fetched from the bus.
type Message struct {
	Topic string
	Key   []byte
	Value []byte
}

// Handler processes one inbound message. Returning an error leaves the
// message uncommitted so the transport can redeliver it.
type Handler func(ctx context.Context, msg Message) error

// Broker publishes keyed messages to topics. Keys drive partition
// assignment, so all messages with one key are consumed in publish order.
type Broker interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
	Close() error
}

// Consumer runs a consumer group over a topic. Consume blocks until ctx is
// cancelled.
type Consumer interface {
	Consume(ctx context.Context, topic, groupID string, handler Handler) error
	Close() error
}
