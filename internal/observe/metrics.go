// Package observe holds the bridge's observability primitives: OpenTelemetry
// metric instruments and the Prometheus-bridged provider behind /metrics.
//
// A package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name for all bridge metrics.
const meterName = "github.com/nextlevelbuilder/bridge-echo"

// Metrics holds the bridge's metric instruments. All fields are safe for
// concurrent use; the underlying OTel types handle their own
// synchronisation.
type Metrics struct {
	// RequestsStarted counts requests taken up by the worker, by channel.
	RequestsStarted metric.Int64Counter

	// RequestsCompleted counts requests the worker finished, by channel.
	RequestsCompleted metric.Int64Counter

	// RequestDuration tracks end-to-end assistant turnaround per request.
	RequestDuration metric.Float64Histogram

	// QueueDepth tracks how many requests are waiting in the queue.
	QueueDepth metric.Int64UpDownCounter

	// InjectionsDetected counts inbound messages that tripped the injection
	// catalogue, by channel.
	InjectionsDetected metric.Int64Counter

	// AlertsSent counts long-running-request notifications delivered to the
	// alert channel.
	AlertsSent metric.Int64Counter

	// AlertsFailed counts notifications whose POST failed. Failed alerts
	// are still marked as sent and never retried, so this counter is the
	// only trace they leave.
	AlertsFailed metric.Int64Counter

	// VoiceInjects counts cross-channel voice deliveries. Use with
	// attribute.String("outcome", "injected"|"failed").
	VoiceInjects metric.Int64Counter

	// SessionResets counts assistant sessions discarded by the idle TTL.
	SessionResets metric.Int64Counter
}

// durationBuckets covers assistant invocations, which run from below a
// second to several minutes.
var durationBuckets = []float64{
	0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.RequestsStarted, err = m.Int64Counter("bridge.requests.started",
		metric.WithDescription("Requests taken up by the worker, by channel."),
	); err != nil {
		return nil, err
	}
	if met.RequestsCompleted, err = m.Int64Counter("bridge.requests.completed",
		metric.WithDescription("Requests completed by the worker, by channel."),
	); err != nil {
		return nil, err
	}
	if met.RequestDuration, err = m.Float64Histogram("bridge.request.duration",
		metric.WithDescription("End-to-end request turnaround."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, err
	}
	if met.QueueDepth, err = m.Int64UpDownCounter("bridge.queue.depth",
		metric.WithDescription("Requests waiting in the queue."),
	); err != nil {
		return nil, err
	}
	if met.InjectionsDetected, err = m.Int64Counter("bridge.injections.detected",
		metric.WithDescription("Messages matching the injection catalogue, by channel."),
	); err != nil {
		return nil, err
	}
	if met.AlertsSent, err = m.Int64Counter("bridge.alerts.sent",
		metric.WithDescription("Long-running-request alerts delivered."),
	); err != nil {
		return nil, err
	}
	if met.AlertsFailed, err = m.Int64Counter("bridge.alerts.failed",
		metric.WithDescription("Long-running-request alerts whose delivery failed."),
	); err != nil {
		return nil, err
	}
	if met.VoiceInjects, err = m.Int64Counter("bridge.voice.injects",
		metric.WithDescription("Cross-channel voice deliveries by outcome."),
	); err != nil {
		return nil, err
	}
	if met.SessionResets, err = m.Int64Counter("bridge.session.resets",
		metric.WithDescription("Assistant sessions discarded by the idle TTL."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it
// on first call from [otel.GetMeterProvider]. Panics if instrument creation
// fails, which cannot happen with the global provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordRequestStarted increments the started counter for channel.
func (m *Metrics) RecordRequestStarted(ctx context.Context, channel string) {
	m.RequestsStarted.Add(ctx, 1, metric.WithAttributes(Attr("channel", channel)))
}

// RecordRequestCompleted increments the completed counter and records the
// request duration for channel.
func (m *Metrics) RecordRequestCompleted(ctx context.Context, channel string, seconds float64) {
	attrs := metric.WithAttributes(Attr("channel", channel))
	m.RequestsCompleted.Add(ctx, 1, attrs)
	m.RequestDuration.Record(ctx, seconds, attrs)
}

// RecordInjectionDetected counts one flagged inbound message for channel.
func (m *Metrics) RecordInjectionDetected(ctx context.Context, channel string) {
	m.InjectionsDetected.Add(ctx, 1, metric.WithAttributes(Attr("channel", channel)))
}

// RecordVoiceInject counts one cross-channel voice delivery attempt.
func (m *Metrics) RecordVoiceInject(ctx context.Context, outcome string) {
	m.VoiceInjects.Add(ctx, 1, metric.WithAttributes(Attr("outcome", outcome)))
}
