// Package bus provides the event-bus abstraction shared by all four services:
// a publish/consume/ack contract with an in-memory backend for single-process
// and test use, and a durable consumer-group backend for production.
package bus

import (
	"context"
	"time"
)

// Envelope is one message read off the bus.
type Envelope struct {
	MessageID string                 `json:"message_id"`
	Topic     string                 `json:"topic"`
	Key       string                 `json:"key,omitempty"`
	Payload   map[string]interface{} `json:"payload"`
}

// EventBus is the publish/consume/ack contract. Both backends implement it
// identically from the caller's point of view; only delivery and ordering
// guarantees differ (see package docs on each implementation).
type EventBus interface {
	// Publish appends payload to topic, optionally keyed, and returns the
	// backend-assigned message id.
	Publish(ctx context.Context, topic string, payload map[string]interface{}, key string) (string, error)

	// Consume drains up to count messages from topic for the named consumer
	// group, blocking up to block for messages to arrive if the topic is empty.
	Consume(ctx context.Context, topic, group, consumer string, count int, block time.Duration) ([]Envelope, error)

	// Ack acknowledges the listed message ids against (topic, group).
	Ack(ctx context.Context, topic, group string, messageIDs []string) error

	// Close releases any underlying connection.
	Close() error

	// IsReady reports whether the bus is reachable (used by /ready aggregation).
	IsReady(ctx context.Context) bool
}

// HealthPingTopic names the bus liveness topic. No code publishes to it: the
// /ready handlers report bus readiness through EventBus.IsReady instead.
const HealthPingTopic = "health.ping"

// Well-known topics for the dialogue pipeline.
const (
	TopicTurnIngested  = "turn.ingested"
	TopicTurnProcessed = "turn.processed"
	TopicTurnDeadLetter = "turn.dead_letter"
)
