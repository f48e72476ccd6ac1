// Package eventlog abstracts the durable, partitioned, at-least-once pub/sub
// substrate the subsystem runs on. Ordering is guaranteed only among events
// sharing a partition key; consumers must be idempotent.
package eventlog

import "context"

// Envelope is one record on a topic.
type Envelope struct {
	Topic string
	// Key is the partition key (task id). Events with the same key are
	// delivered to a group in publish order.
	Key     string
	Payload []byte
}

// Handler processes one delivered envelope. Returning an error triggers
// redelivery; returning nil acknowledges the envelope.
type Handler func(ctx context.Context, env Envelope) error

// Log is the append/consume API for logical topics.
type Log interface {
	// Publish appends payload to topic under the given partition key.
	Publish(ctx context.Context, topic, key string, payload []byte) error

	// Subscribe consumes topic on behalf of group, invoking h for every
	// envelope. Delivery is at-least-once: a handler error leads to
	// redelivery of the same envelope. Subscribe blocks until ctx is done.
	Subscribe(ctx context.Context, topic, group string, h Handler) error
}
