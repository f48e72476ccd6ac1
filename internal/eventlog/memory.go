package eventlog

import (
	"context"
	"log/slog"
	"sync"
)

// Memory is an in-process Log for tests and single-process deployments.
//
// Delivery is synchronous: Publish invokes every group's handler inline, in
// publish order, which preserves per-key ordering by construction. A handler
// error is retried up to the configured attempt budget and then dropped with
// a log line - the consumer layer is expected to dead-letter before ever
// returning an error it wants swallowed.
type Memory struct {
	mu       sync.RWMutex
	handlers map[string]map[string]Handler // topic -> group -> handler
	attempts int
}

// MemoryOption configures a Memory log.
type MemoryOption func(*Memory)

// WithDeliveryAttempts sets how many times a failing handler is retried
// before the envelope is dropped.
func WithDeliveryAttempts(n int) MemoryOption {
	return func(m *Memory) {
		if n > 0 {
			m.attempts = n
		}
	}
}

// NewMemory creates an empty in-memory log.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		handlers: make(map[string]map[string]Handler),
		attempts: 3,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Publish delivers payload to every group subscribed to topic.
func (m *Memory) Publish(ctx context.Context, topic, key string, payload []byte) error {
	env := Envelope{Topic: topic, Key: key, Payload: payload}

	m.mu.RLock()
	groups := make([]Handler, 0, len(m.handlers[topic]))
	names := make([]string, 0, len(m.handlers[topic]))
	for name, h := range m.handlers[topic] {
		groups = append(groups, h)
		names = append(names, name)
	}
	m.mu.RUnlock()

	for i, h := range groups {
		var err error
		for attempt := 1; attempt <= m.attempts; attempt++ {
			if err = h(ctx, env); err == nil {
				break
			}
		}
		if err != nil {
			slog.ErrorContext(ctx, "dropping envelope after exhausted deliveries",
				"topic", topic, "group", names[i], "key", key, "error", err)
		}
	}

	return nil
}

// Subscribe registers h as the handler for (topic, group) and blocks until
// ctx is done. Re-subscribing a group replaces its handler.
func (m *Memory) Subscribe(ctx context.Context, topic, group string, h Handler) error {
	m.mu.Lock()
	if m.handlers[topic] == nil {
		m.handlers[topic] = make(map[string]Handler)
	}
	m.handlers[topic][group] = h
	m.mu.Unlock()

	<-ctx.Done()

	m.mu.Lock()
	delete(m.handlers[topic], group)
	m.mu.Unlock()

	return ctx.Err()
}

// Attach registers h without blocking. Tests use this to wire consumers and
// keep driving the log from the same goroutine.
func (m *Memory) Attach(topic, group string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handlers[topic] == nil {
		m.handlers[topic] = make(map[string]Handler)
	}
	m.handlers[topic][group] = h
}
