package eventlog

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/rueidis"
)

// Redis implements Log on Redis Streams.
//
// Each topic is sharded into a fixed number of streams; a partition key is
// hashed to pick its stream, which gives per-key ordering. Consumer groups
// provide at-least-once delivery: an envelope is XACKed only after the
// handler succeeds, and each subscriber drains its pending backlog before
// reading new entries, so unacked envelopes survive restarts.
type Redis struct {
	client     rueidis.Client
	consumer   string
	partitions int
	batchSize  int64
	block      time.Duration
}

// RedisOption configures a Redis log.
type RedisOption func(*Redis)

// WithPartitions sets the number of streams per topic. All producers and
// consumers of a deployment must agree on this value.
func WithPartitions(n int) RedisOption {
	return func(r *Redis) {
		if n > 0 {
			r.partitions = n
		}
	}
}

// WithConsumerName sets this process's consumer name within its groups.
func WithConsumerName(name string) RedisOption {
	return func(r *Redis) {
		if name != "" {
			r.consumer = name
		}
	}
}

// NewRedis creates a Redis Streams log on an existing client.
func NewRedis(client rueidis.Client, opts ...RedisOption) *Redis {
	r := &Redis{
		client:     client,
		consumer:   "taskpulse-worker",
		partitions: 8,
		batchSize:  16,
		block:      5 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Redis) stream(topic, key string) string {
	h := fnv.New32a()
	h.Write([]byte(key))
	return fmt.Sprintf("eventlog:%s:%d", topic, h.Sum32()%uint32(r.partitions))
}

// Publish appends the payload to the stream its partition key hashes to.
func (r *Redis) Publish(ctx context.Context, topic, key string, payload []byte) error {
	cmd := r.client.B().Xadd().Key(r.stream(topic, key)).Id("*").
		FieldValue().FieldValue("key", key).FieldValue("payload", string(payload)).
		Build()
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// Subscribe consumes every partition of topic on behalf of group until ctx
// is done. One goroutine per partition keeps per-key processing sequential.
func (r *Redis) Subscribe(ctx context.Context, topic, group string, h Handler) error {
	errs := make(chan error, r.partitions)

	for p := 0; p < r.partitions; p++ {
		stream := fmt.Sprintf("eventlog:%s:%d", topic, p)

		if err := r.ensureGroup(ctx, stream, group); err != nil {
			return err
		}

		go func() {
			errs <- r.consumePartition(ctx, stream, topic, group, h)
		}()
	}

	var first error
	for p := 0; p < r.partitions; p++ {
		if err := <-errs; err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (r *Redis) ensureGroup(ctx context.Context, stream, group string) error {
	cmd := r.client.B().XgroupCreate().Key(stream).Group(group).Id("0").Mkstream().Build()
	err := r.client.Do(ctx, cmd).Error()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create group %s on %s: %w", group, stream, err)
	}
	return nil
}

func (r *Redis) consumePartition(ctx context.Context, stream, topic, group string, h Handler) error {
	// Drain this consumer's pending backlog first: entries delivered before
	// a crash but never acked.
	cursor := "0"

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		cmd := r.client.B().Xreadgroup().Group(group, r.consumer).
			Count(r.batchSize).Block(r.block.Milliseconds()).
			Streams().Key(stream).Id(cursor).
			Build()

		resp := r.client.Do(ctx, cmd)
		if err := resp.Error(); err != nil {
			if rueidis.IsRedisNil(err) {
				cursor = ">" // backlog drained, switch to new entries
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.ErrorContext(ctx, "event log read failed", "stream", stream, "error", err)
			time.Sleep(time.Second)
			continue
		}

		entries, err := resp.AsXRead()
		if err != nil {
			return fmt.Errorf("failed to parse stream read: %w", err)
		}

		drained := true
		for _, batch := range entries {
			if len(batch) > 0 {
				drained = false
			}
			for _, entry := range batch {
				r.deliver(ctx, stream, topic, group, entry, h)
			}
		}
		if cursor != ">" && drained {
			cursor = ">"
		}
	}
}

func (r *Redis) deliver(ctx context.Context, stream, topic, group string, entry rueidis.XRangeEntry, h Handler) {
	env := Envelope{
		Topic:   topic,
		Key:     entry.FieldValues["key"],
		Payload: []byte(entry.FieldValues["payload"]),
	}

	if err := h(ctx, env); err != nil {
		// Leave unacked: the entry stays in this consumer's pending list and
		// is redelivered on the next backlog drain.
		slog.WarnContext(ctx, "handler failed, leaving envelope pending",
			"stream", stream, "id", entry.ID, "error", err)
		return
	}

	ack := r.client.B().Xack().Key(stream).Group(group).Id(entry.ID).Build()
	if err := r.client.Do(ctx, ack).Error(); err != nil {
		slog.WarnContext(ctx, "failed to ack envelope, it may be redelivered",
			"stream", stream, "id", entry.ID, "error", err)
	}
}
