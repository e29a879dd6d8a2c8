package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func counterValue(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not an int64 sum", name)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestNewMetricsCreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestRequestCountersAndDuration(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordRequestStarted(ctx, "slack")
	m.RecordRequestStarted(ctx, "discord")
	m.RecordRequestCompleted(ctx, "slack", 1.5)

	rm := collect(t, reader)

	if got := counterValue(t, rm, "bridge.requests.started"); got != 2 {
		t.Errorf("requests started = %d, want 2", got)
	}
	if got := counterValue(t, rm, "bridge.requests.completed"); got != 1 {
		t.Errorf("requests completed = %d, want 1", got)
	}

	met := findMetric(rm, "bridge.request.duration")
	if met == nil {
		t.Fatal("duration metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("duration metric is not a histogram")
	}
	if len(hist.DataPoints) == 0 || hist.DataPoints[0].Count != 1 {
		t.Errorf("duration data points = %+v", hist.DataPoints)
	}
}

func TestQueueDepthUpDown(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.QueueDepth.Add(ctx, 1)
	m.QueueDepth.Add(ctx, 1)
	m.QueueDepth.Add(ctx, -1)

	rm := collect(t, reader)
	if got := counterValue(t, rm, "bridge.queue.depth"); got != 1 {
		t.Errorf("queue depth = %d, want 1", got)
	}
}

func TestVoiceInjectOutcomes(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordVoiceInject(ctx, "injected")
	m.RecordVoiceInject(ctx, "failed")
	m.RecordVoiceInject(ctx, "failed")

	rm := collect(t, reader)
	if got := counterValue(t, rm, "bridge.voice.injects"); got != 3 {
		t.Errorf("voice injects = %d, want 3", got)
	}

	met := findMetric(rm, "bridge.voice.injects")
	sum := met.Data.(metricdata.Sum[int64])
	if len(sum.DataPoints) != 2 {
		t.Errorf("outcome attribute sets = %d, want 2", len(sum.DataPoints))
	}
}

func TestAlertCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.AlertsSent.Add(ctx, 1)
	m.AlertsFailed.Add(ctx, 1)
	m.SessionResets.Add(ctx, 1)

	rm := collect(t, reader)
	for _, name := range []string{"bridge.alerts.sent", "bridge.alerts.failed", "bridge.session.resets"} {
		if got := counterValue(t, rm, name); got != 1 {
			t.Errorf("%s = %d, want 1", name, got)
		}
	}
}

// TestInitProviderServesScrape verifies the Prometheus bridge exposes
// recorded instruments on the returned handler.
func TestInitProviderServesScrape(t *testing.T) {
	handler, shutdown, err := InitProvider(ProviderConfig{ServiceName: "bridge-echo-test"})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	t.Cleanup(func() { _ = shutdown(context.Background()) })

	// InitProvider installed the bridged provider globally.
	m, err := NewMetrics(otel.GetMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.AlertsSent.Add(context.Background(), 1)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("scrape status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "bridge_alerts_sent") {
		t.Errorf("scrape output missing bridge_alerts_sent:\n%s", rec.Body.String())
	}
}
