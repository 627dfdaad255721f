package bus

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Esoteriker/openTree/internal/common/ids"
	"github.com/Esoteriker/openTree/internal/common/logger"
)

// MemoryEventBus is a per-topic FIFO queue protected by a mutex. Consume pops
// up to count messages; if the topic is empty it suspends the caller for the
// requested block duration (or until a publish arrives, whichever is first)
// then returns whatever it has, possibly empty. Ack is a no-op: messages are
// removed from the queue at consume time, so there is nothing left to
// acknowledge. Groups and consumer names are ignored — this backend is for
// single-process use and tests, never for horizontally scaled workers.
type MemoryEventBus struct {
	mu     sync.Mutex
	queues map[string][]Envelope
	notify map[string]chan struct{}
	logger *logger.Logger
	closed bool
}

// NewMemoryEventBus constructs an empty in-memory bus.
func NewMemoryEventBus(log *logger.Logger) *MemoryEventBus {
	if log == nil {
		log = logger.Default()
	}
	return &MemoryEventBus{
		queues: make(map[string][]Envelope),
		notify: make(map[string]chan struct{}),
		logger: log,
	}
}

func (b *MemoryEventBus) topicNotify(topic string) chan struct{} {
	if ch, ok := b.notify[topic]; ok {
		return ch
	}
	ch := make(chan struct{})
	b.notify[topic] = ch
	return ch
}

// Publish appends payload to the topic's queue and wakes any blocked consumer.
func (b *MemoryEventBus) Publish(_ context.Context, topic string, payload map[string]interface{}, key string) (string, error) {
	b.mu.Lock()
	msg := Envelope{
		MessageID: ids.New("msg"),
		Topic:     topic,
		Key:       key,
		Payload:   payload,
	}
	b.queues[topic] = append(b.queues[topic], msg)
	ch := b.topicNotify(topic)
	b.notify[topic] = make(chan struct{})
	b.mu.Unlock()

	close(ch)

	b.logger.Debug("published event",
		zap.String("topic", topic),
		zap.String("message_id", msg.MessageID),
	)
	return msg.MessageID, nil
}

// Consume pops up to count messages from the topic, blocking up to block if
// the queue is currently empty.
func (b *MemoryEventBus) Consume(ctx context.Context, topic, _, _ string, count int, block time.Duration) ([]Envelope, error) {
	if count <= 0 {
		count = 1
	}

	b.mu.Lock()
	queue := b.queues[topic]
	if len(queue) == 0 {
		ch := b.topicNotify(topic)
		b.mu.Unlock()

		select {
		case <-ch:
		case <-time.After(block):
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		b.mu.Lock()
		queue = b.queues[topic]
	}

	n := count
	if n > len(queue) {
		n = len(queue)
	}
	popped := append([]Envelope(nil), queue[:n]...)
	b.queues[topic] = queue[n:]
	b.mu.Unlock()

	return popped, nil
}

// Ack is a no-op for the in-memory backend: messages are removed at consume time.
func (b *MemoryEventBus) Ack(_ context.Context, _, _ string, _ []string) error {
	return nil
}

// Close marks the bus closed. Safe to call multiple times.
func (b *MemoryEventBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// IsReady reports true until Close is called; there is no external connection to lose.
func (b *MemoryEventBus) IsReady(_ context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.closed
}
