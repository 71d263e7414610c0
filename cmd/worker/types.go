package main

import (
	"context"

	"github.com/imrishuroy/go-orderdesk/internal/metrics"
)

// MetricsSink receives the counts derived from one event.
type MetricsSink interface {
	Put(ctx context.Context, data []metrics.Datum) error
}

// sampleEvent is used by RUN_LOCAL when LOCAL_SQS_BODY is unset.
const sampleEvent = `{"event_id":"local-1","type":"order.created","occurred_at":"2024-01-01T00:00:00Z","order_id":"ORD-LOCAL1"}`
