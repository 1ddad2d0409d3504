package core

import (
	"time"

	"github.com/go-chi/chi/v5"
)

// MetricsCollector defines the interface for recording API telemetry.
// Implementations record request latency and count metrics to CloudWatch
// or equivalent backends.
type MetricsCollector interface {
	// RecordRequest records API request metrics including latency and count.
	// Uses metric constants MetricAPILatency and MetricAPIRequestCount
	// from the types package.
	RecordRequest(method, endpoint, status string, duration time.Duration)
}

// RouteRegistrar mounts a handler group under /api. Handlers are registered
// by the entry point so core does not import handler packages.
type RouteRegistrar func(r chi.Router)
