// Package events wires the configured EventBus implementation for a service.
package events

import (
	"strings"

	"github.com/Esoteriker/openTree/internal/common/config"
	"github.com/Esoteriker/openTree/internal/common/logger"
	"github.com/Esoteriker/openTree/internal/events/bus"
)

// ProvidedBus wraps the active event bus implementation.
type ProvidedBus struct {
	Bus       bus.EventBus
	Memory    *bus.MemoryEventBus
	JetStream *bus.JetStreamEventBus
}

// Provide builds the configured event bus implementation: JetStream when
// NATS.URL is set, in-memory otherwise. If the JetStream connection fails, it
// logs a warning and returns the in-memory bus. In-memory is the default so a fresh
// checkout and the test suite never require a running broker.
func Provide(cfg *config.Config, log *logger.Logger) (*ProvidedBus, func() error, error) {
	if strings.TrimSpace(cfg.NATS.URL) != "" {
		jsBus, err := bus.NewJetStreamEventBus(bus.Config{
			URL:           cfg.NATS.URL,
			ClientID:      cfg.NATS.ClientID,
			MaxReconnects: cfg.NATS.MaxReconnects,
			StreamPrefix:  cfg.NATS.StreamPrefix,
		}, log)
		if err != nil {
			log.Warn("failed to initialize JetStream event bus, falling back to in-memory")
			memBus := bus.NewMemoryEventBus(log)
			return &ProvidedBus{Bus: memBus, Memory: memBus}, func() error { return nil }, nil
		}
		return &ProvidedBus{Bus: jsBus, JetStream: jsBus}, jsBus.Close, nil
	}

	memBus := bus.NewMemoryEventBus(log)
	return &ProvidedBus{Bus: memBus, Memory: memBus}, func() error { return nil }, nil
}
