package observe

import (
	"context"
	"errors"
	"testing"

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

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestRecordSynthesis_CountsErrorPerTier(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordSynthesis(ctx, "primary", 0.4, errors.New("boom"))
	m.RecordSynthesis(ctx, "fallback", 0.1, nil)

	rm := collect(t, reader)
	errMetric := findMetric(rm, "carbot.synthesis.errors")
	if errMetric == nil {
		t.Fatal("carbot.synthesis.errors not found")
	}
	sum, ok := errMetric.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("unexpected data type %T", errMetric.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 1 {
		t.Errorf("error count = %d, want 1", total)
	}

	reqMetric := findMetric(rm, "carbot.synthesis.requests")
	if reqMetric == nil {
		t.Fatal("carbot.synthesis.requests not found")
	}
}

func TestRecordWakeEvent(t *testing.T) {
	m, reader := newTestMetrics(t)
	m.RecordWakeEvent(context.Background(), "simulated")

	rm := collect(t, reader)
	wm := findMetric(rm, "carbot.wake.events")
	if wm == nil {
		t.Fatal("carbot.wake.events not found")
	}
	sum, ok := wm.Data.(metricdata.Sum[int64])
	if !ok || len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 1 {
		t.Fatalf("wake events = %+v, want single datapoint of 1", wm.Data)
	}
}
