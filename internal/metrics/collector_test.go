package metrics

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/wayneeseguin/omnitarget/pkg/types"
)

func TestNewCollector(t *testing.T) {
	c := NewCollector()
	if c == nil {
		t.Fatal("NewCollector() returned nil")
	}
	if m := c.GetMetrics(0, 0); m.ErrorCount != 0 || m.Written != 0 || m.Enqueued != 0 {
		t.Errorf("initial metrics = %+v", m)
	}
}

func TestTrackWritten(t *testing.T) {
	c := NewCollector()

	tests := []struct {
		sev   types.Severity
		count int
	}{
		{types.SeverityDebug, 1},
		{types.SeverityWarning, 5},
		{types.SeverityBlanks, 3},
	}
	for _, tt := range tests {
		for i := 0; i < tt.count; i++ {
			c.TrackWritten(tt.sev)
		}
	}

	m := c.GetMetrics(0, 0)
	if m.Written != 9 {
		t.Errorf("Written = %d, want 9", m.Written)
	}
	if m.WrittenBySeverity["WARNING"] != 5 {
		t.Errorf("WARNING = %d, want 5", m.WrittenBySeverity["WARNING"])
	}
	if m.WrittenBySeverity["BLANKS"] != 3 {
		t.Errorf("BLANKS = %d, want 3", m.WrittenBySeverity["BLANKS"])
	}
}

func TestQueueUtilization(t *testing.T) {
	c := NewCollector()
	m := c.GetMetrics(25, 100)
	if m.QueueUtilization != 0.25 {
		t.Errorf("QueueUtilization = %v, want 0.25", m.QueueUtilization)
	}
	if m := c.GetMetrics(25, 0); m.QueueUtilization != 0 {
		t.Errorf("unbounded utilization = %v", m.QueueUtilization)
	}
}

func TestTrackProcessorAndDiscard(t *testing.T) {
	c := NewCollector()
	c.TrackProcessor(false)
	c.TrackProcessor(true)
	c.TrackDiscarded(7)
	c.TrackDiscarded(0)
	c.TrackDegraded()

	m := c.GetMetrics(0, 0)
	if m.ProcessorRuns != 2 || m.ProcessorFailures != 1 {
		t.Errorf("processor runs/failures = %d/%d", m.ProcessorRuns, m.ProcessorFailures)
	}
	if m.MessagesDiscarded != 7 {
		t.Errorf("MessagesDiscarded = %d", m.MessagesDiscarded)
	}
	if m.DegradedIncidences != 1 {
		t.Errorf("DegradedIncidences = %d", m.DegradedIncidences)
	}
}

func TestTrackWriteTiming(t *testing.T) {
	c := NewCollector()
	c.TrackWrite(100, 10*time.Millisecond)
	c.TrackWrite(50, 30*time.Millisecond)
	c.TrackWrite(0, 5*time.Millisecond)

	m := c.GetMetrics(0, 0)
	if m.BytesWritten != 150 {
		t.Errorf("BytesWritten = %d", m.BytesWritten)
	}
	if m.AverageWriteTime != 15*time.Millisecond {
		t.Errorf("AverageWriteTime = %v", m.AverageWriteTime)
	}
	if m.MaxWriteTime != 30*time.Millisecond {
		t.Errorf("MaxWriteTime = %v", m.MaxWriteTime)
	}
}

func TestTrackLost(t *testing.T) {
	c := NewCollector()
	var p Pending
	for _, sev := range []types.Severity{types.SeverityDebug, types.SeverityDebug, types.SeverityFail} {
		c.TrackWritten(sev)
		p.Add(sev)
	}
	c.TrackWritten(types.SeverityPass)
	if p.Len() != 3 {
		t.Fatalf("pending = %d", p.Len())
	}

	c.TrackLost(&p)
	m := c.GetMetrics(0, 0)
	if m.Written != 1 || m.WrittenBySeverity["PASS"] != 1 || m.MessagesDropped != 3 {
		t.Errorf("written/pass/dropped = %d/%d/%d", m.Written, m.WrittenBySeverity["PASS"], m.MessagesDropped)
	}
	if _, ok := m.WrittenBySeverity["DEBUG"]; ok {
		t.Errorf("DEBUG still counted: %v", m.WrittenBySeverity)
	}
	if p.Len() != 0 {
		t.Errorf("pending not reset: %d", p.Len())
	}

	c.TrackLost(&p)
	if m := c.GetMetrics(0, 0); m.MessagesDropped != 3 {
		t.Errorf("empty TrackLost changed dropped to %d", m.MessagesDropped)
	}
}

func TestConcurrentTracking(t *testing.T) {
	c := NewCollector()

	const (
		numGoroutines = 50
		numOperations = 1000
	)

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(sev int) {
			defer wg.Done()
			for j := 0; j < numOperations; j++ {
				c.TrackEnqueued()
				c.TrackWritten(types.Severity(sev % 7))
				if j%10 == 0 {
					c.TrackMessageDropped()
				}
				if j%20 == 0 {
					c.TrackRotation()
				}
				if j%15 == 0 {
					c.TrackError("concurrent_source")
				}
			}
		}(i)
	}
	wg.Wait()

	m := c.GetMetrics(0, 0)
	if want := uint64(numGoroutines * numOperations); m.Written != want || m.Enqueued != want {
		t.Errorf("Written/Enqueued = %d/%d, want %d", m.Written, m.Enqueued, want)
	}
	if want := uint64(numGoroutines * (numOperations / 10)); m.MessagesDropped != want {
		t.Errorf("MessagesDropped = %d, want %d", m.MessagesDropped, want)
	}
	if want := uint64(numGoroutines * (numOperations / 20)); m.RotationCount != want {
		t.Errorf("RotationCount = %d, want %d", m.RotationCount, want)
	}
	// j%15==0 for j=0,15,...,990 (67 times)
	if want := uint64(numGoroutines * 67); m.ErrorsBySource["concurrent_source"] != want {
		t.Errorf("ErrorsBySource = %d, want %d", m.ErrorsBySource["concurrent_source"], want)
	}
}

func TestRegisterOTel(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	c := NewCollector()
	reg, err := RegisterOTel(provider, c, func() int { return 4 }, attribute.String("target", "app"))
	if err != nil {
		t.Fatalf("RegisterOTel: %v", err)
	}

	c.TrackEnqueued()
	c.TrackEnqueued()
	c.TrackWritten(types.SeverityDebug)
	c.TrackRotation()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}

	got := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					if v, ok := dp.Attributes.Value("target"); !ok || v.AsString() != "app" {
						t.Errorf("%s missing target attribute", m.Name)
					}
					got[m.Name] = dp.Value
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					got[m.Name] = dp.Value
				}
			}
		}
	}
	if got[MetricEnqueued] != 2 || got[MetricWritten] != 1 || got[MetricRotations] != 1 {
		t.Errorf("collected %v", got)
	}
	if got[MetricQueueDepth] != 4 {
		t.Errorf("queue depth = %d, want 4", got[MetricQueueDepth])
	}

	if err := reg.Unregister(); err != nil {
		t.Fatal(err)
	}
	if _, err := RegisterOTel(nil, c, nil); err == nil {
		t.Error("RegisterOTel(nil) succeeded")
	}
}
