package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/Esoteriker/openTree/internal/common/logger"
)

// JetStreamEventBus implements EventBus over NATS JetStream: one logical
// stream per topic (subject == topic), with a durable pull-consumer per
// (topic, group). Consumer/stream creation is lazy and idempotent — an
// "already exists" response from AddStream/AddConsumer is swallowed, exactly
// as the contract requires. Redelivery of unacked messages after the
// consumer's AckWait is JetStream's responsibility, not the application's.
type JetStreamEventBus struct {
	conn          *nats.Conn
	js            nats.JetStreamContext
	streamPrefix  string
	logger        *logger.Logger

	mu            sync.Mutex
	subscriptions map[string]*nats.Subscription // keyed by topic+"|"+group
	pending       map[string]*nats.Msg          // keyed by topic+"|"+group+"|"+messageID, awaiting Ack
}

// Config carries the subset of connection settings the durable bus needs.
type Config struct {
	URL           string
	ClientID      string
	MaxReconnects int
	StreamPrefix  string
}

// NewJetStreamEventBus connects to NATS and prepares a JetStream context.
func NewJetStreamEventBus(cfg Config, log *logger.Logger) (*JetStreamEventBus, error) {
	if log == nil {
		log = logger.Default()
	}

	opts := []nats.Option{
		nats.Name(cfg.ClientID),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			log.Error("nats error", zap.Error(err), zap.String("subject", subject))
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to acquire JetStream context: %w", err)
	}

	prefix := cfg.StreamPrefix
	if prefix == "" {
		prefix = "opentree"
	}

	log.Info("connected to NATS JetStream", zap.String("url", cfg.URL))

	return &JetStreamEventBus{
		conn:          conn,
		js:            js,
		streamPrefix:  prefix,
		logger:        log,
		subscriptions: make(map[string]*nats.Subscription),
		pending:       make(map[string]*nats.Msg),
	}, nil
}

func (b *JetStreamEventBus) streamName(topic string) string {
	return b.streamPrefix + "_" + strings.ReplaceAll(topic, ".", "_")
}

func (b *JetStreamEventBus) ensureStream(topic string) error {
	name := b.streamName(topic)
	_, err := b.js.StreamInfo(name)
	if err == nil {
		return nil
	}
	_, err = b.js.AddStream(&nats.StreamConfig{
		Name:     name,
		Subjects: []string{topic},
	})
	if err != nil && !isAlreadyExists(err) {
		return fmt.Errorf("failed to create stream %s: %w", name, err)
	}
	return nil
}

func (b *JetStreamEventBus) ensureConsumer(topic, group string) error {
	streamName := b.streamName(topic)
	_, err := b.js.ConsumerInfo(streamName, group)
	if err == nil {
		return nil
	}
	_, err = b.js.AddConsumer(streamName, &nats.ConsumerConfig{
		Durable:       group,
		AckPolicy:     nats.AckExplicitPolicy,
		DeliverPolicy: nats.DeliverAllPolicy,
		AckWait:       30 * time.Second,
	})
	if err != nil && !isAlreadyExists(err) {
		return fmt.Errorf("failed to create consumer %s/%s: %w", streamName, group, err)
	}
	return nil
}

func isAlreadyExists(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "already")
}

// Publish appends payload to topic's stream and returns the stream sequence
// number (stringified) as the message id.
func (b *JetStreamEventBus) Publish(ctx context.Context, topic string, payload map[string]interface{}, key string) (string, error) {
	if err := b.ensureStream(topic); err != nil {
		return "", err
	}

	data, err := json.Marshal(Envelope{Topic: topic, Key: key, Payload: payload})
	if err != nil {
		return "", fmt.Errorf("failed to marshal envelope: %w", err)
	}

	msg := nats.NewMsg(topic)
	msg.Data = data
	if key != "" {
		msg.Header.Set("Key", key)
	}

	ack, err := b.js.PublishMsg(msg, nats.Context(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to publish to %s: %w", topic, err)
	}

	messageID := fmt.Sprintf("%d", ack.Sequence)
	b.logger.Debug("published event", zap.String("topic", topic), zap.String("message_id", messageID))
	return messageID, nil
}

// Consume performs a bounded pull-fetch of up to count messages, creating the
// stream and durable consumer on first use.
func (b *JetStreamEventBus) Consume(ctx context.Context, topic, group, consumer string, count int, block time.Duration) ([]Envelope, error) {
	if err := b.ensureStream(topic); err != nil {
		return nil, err
	}
	if err := b.ensureConsumer(topic, group); err != nil {
		return nil, err
	}

	sub, err := b.pullSubscription(topic, group, consumer)
	if err != nil {
		return nil, err
	}

	if count <= 0 {
		count = 1
	}
	msgs, err := sub.Fetch(count, nats.MaxWait(block), nats.Context(ctx))
	if err != nil && err != nats.ErrTimeout {
		return nil, fmt.Errorf("failed to fetch from %s: %w", topic, err)
	}

	envelopes := make([]Envelope, 0, len(msgs))
	for _, m := range msgs {
		var env Envelope
		if jsonErr := json.Unmarshal(m.Data, &env); jsonErr != nil {
			b.logger.Error("failed to unmarshal envelope", zap.Error(jsonErr), zap.String("topic", topic))
			continue
		}
		meta, metaErr := m.Metadata()
		if metaErr == nil {
			env.MessageID = fmt.Sprintf("%d", meta.Sequence.Stream)
		}
		env.Topic = topic
		envelopes = append(envelopes, env)

		b.mu.Lock()
		b.pending[pendingKey(topic, group, env.MessageID)] = m
		b.mu.Unlock()
	}

	return envelopes, nil
}

func (b *JetStreamEventBus) pullSubscription(topic, group, consumer string) (*nats.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := topic + "|" + group
	if sub, ok := b.subscriptions[key]; ok && sub.IsValid() {
		return sub, nil
	}

	sub, err := b.js.PullSubscribe(topic, group, nats.BindStream(b.streamName(topic)))
	if err != nil {
		return nil, fmt.Errorf("failed to create pull subscription for %s/%s (consumer %s): %w", topic, group, consumer, err)
	}
	b.subscriptions[key] = sub
	return sub, nil
}

func pendingKey(topic, group, messageID string) string {
	return topic + "|" + group + "|" + messageID
}

// Ack acknowledges the listed message ids against (topic, group).
func (b *JetStreamEventBus) Ack(_ context.Context, topic, group string, messageIDs []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, id := range messageIDs {
		key := pendingKey(topic, group, id)
		if m, ok := b.pending[key]; ok {
			if err := m.Ack(); err != nil {
				b.logger.Warn("failed to ack message", zap.Error(err), zap.String("topic", topic), zap.String("message_id", id))
			}
			delete(b.pending, key)
		}
	}
	return nil
}

// Close drains and closes the underlying NATS connection.
func (b *JetStreamEventBus) Close() error {
	if b.conn == nil {
		return nil
	}
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
	}
	return nil
}

// IsReady reports whether the underlying connection is active.
func (b *JetStreamEventBus) IsReady(_ context.Context) bool {
	return b.conn != nil && b.conn.IsConnected()
}
