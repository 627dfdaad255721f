// Package constants provides application-wide constants and timeouts.
package constants

import "time"

// Timeouts for inter-service and readiness operations. Per-pipeline timeouts
// (downstream call budget, retry backoff, job TTL) are operator-configurable
// and live in config.PipelineConfig instead.
const (
	// ReadinessCheckTimeout bounds how long a /ready handler waits on its
	// dependency checks (database ping, event bus connectivity) before
	// reporting not-ready rather than hanging the probe.
	ReadinessCheckTimeout = 3 * time.Second

	// HTTPClientTimeout is the default timeout for outbound calls this
	// service makes to sibling services (parser, graph, suggestion) when a
	// request does not carry its own deadline.
	HTTPClientTimeout = 10 * time.Second

	// ShutdownGracePeriod bounds how long the HTTP server waits for
	// in-flight requests to finish during graceful shutdown.
	ShutdownGracePeriod = 15 * time.Second
)
