// Package obs wires logging and OpenTelemetry metrics for the streaming
// transport.
package obs

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// StreamMetrics tracks streaming transport activity using OpenTelemetry
// counters. All methods are safe for concurrent use and no-op when the
// global meter provider is not configured.
type StreamMetrics struct {
	streamsStarted  metric.Int64Counter
	chunksDelivered metric.Int64Counter
	streamDuration  metric.Float64Histogram
	tokenFetches    metric.Int64Counter
}

// NewStreamMetrics creates the metric instruments on the global meter.
func NewStreamMetrics() (*StreamMetrics, error) {
	meter := otel.GetMeterProvider().Meter("streamkit")
	sm := &StreamMetrics{}

	var err error
	sm.streamsStarted, err = meter.Int64Counter(
		"stream.started",
		metric.WithDescription("Stream requests issued, by protocol variant"),
		metric.WithUnit("{stream}"),
	)
	if err != nil {
		return nil, err
	}

	sm.chunksDelivered, err = meter.Int64Counter(
		"stream.chunk.delivered",
		metric.WithDescription("Canonical chunks delivered to sinks, by kind"),
		metric.WithUnit("{chunk}"),
	)
	if err != nil {
		return nil, err
	}

	sm.streamDuration, err = meter.Float64Histogram(
		"stream.duration",
		metric.WithDescription("Stream lifetime from request to terminal state"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	sm.tokenFetches, err = meter.Int64Counter(
		"stream.token.fetch",
		metric.WithDescription("Stream token fetch attempts, by outcome"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		return nil, err
	}

	return sm, nil
}

// RecordStreamStarted counts one issued stream request.
func (sm *StreamMetrics) RecordStreamStarted(ctx context.Context, variant string) {
	if sm == nil {
		return
	}
	sm.streamsStarted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("protocol.variant", variant),
	))
}

// RecordChunk counts one delivered chunk.
func (sm *StreamMetrics) RecordChunk(ctx context.Context, kind string) {
	if sm == nil {
		return
	}
	sm.chunksDelivered.Add(ctx, 1, metric.WithAttributes(
		attribute.String("chunk.kind", kind),
	))
}

// RecordStreamDuration records the stream lifetime with its terminal state.
func (sm *StreamMetrics) RecordStreamDuration(ctx context.Context, millis float64, state string) {
	if sm == nil {
		return
	}
	sm.streamDuration.Record(ctx, millis, metric.WithAttributes(
		attribute.String("stream.state", state),
	))
}

// RecordTokenFetch counts a token exchange attempt by outcome
// ("issued", "empty").
func (sm *StreamMetrics) RecordTokenFetch(ctx context.Context, outcome string) {
	if sm == nil {
		return
	}
	sm.tokenFetches.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}
