package prometheus

import (
	"context"
	"errors"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"

	"github.com/Swind/go-seqworker/core"
)

func TestMetricsExporter_RecordMethods(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("seqworker", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}

	exporter.RecordTaskElapsed("worker-a", 250*time.Millisecond)
	exporter.RecordTaskExecution("worker-a", 50*time.Millisecond)
	exporter.RecordTaskFailed("worker-a")
	exporter.RecordQueueDepth("worker-a", 7)
	exporter.RecordTaskDiscarded("worker-a", core.DiscardWorkerStopped)

	failed := testutil.ToFloat64(exporter.taskFailedTotal.WithLabelValues("worker-a"))
	if failed != 1 {
		t.Fatalf("failed total = %v, want 1", failed)
	}

	queueDepth := testutil.ToFloat64(exporter.queueDepth.WithLabelValues("worker-a"))
	if queueDepth != 7 {
		t.Fatalf("queue depth = %v, want 7", queueDepth)
	}

	discarded := testutil.ToFloat64(exporter.taskDiscardedTotal.WithLabelValues("worker-a", string(core.DiscardWorkerStopped)))
	if discarded != 1 {
		t.Fatalf("discarded total = %v, want 1", discarded)
	}

	for name, vec := range map[string]*prom.HistogramVec{
		"elapsed":   exporter.taskElapsedSeconds,
		"execution": exporter.taskExecutionSeconds,
	} {
		histCount, err := histogramSampleCount(vec.WithLabelValues("worker-a"))
		if err != nil {
			t.Fatalf("histogramSampleCount(%s) failed: %v", name, err)
		}
		if histCount != 1 {
			t.Fatalf("%s sample count = %d, want 1", name, histCount)
		}
	}
}

func TestMetricsExporter_AlreadyRegisteredReuse(t *testing.T) {
	reg := prom.NewRegistry()
	first, err := NewMetricsExporter("seqworker", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("first NewMetricsExporter failed: %v", err)
	}
	second, err := NewMetricsExporter("seqworker", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("second NewMetricsExporter failed: %v", err)
	}

	first.RecordTaskFailed("worker-a")
	second.RecordTaskFailed("worker-a")

	got := testutil.ToFloat64(first.taskFailedTotal.WithLabelValues("worker-a"))
	if got != 2 {
		t.Fatalf("shared failed counter = %v, want 2", got)
	}
}

func TestMetricsExporter_NilSafe(t *testing.T) {
	var exporter *MetricsExporter
	exporter.RecordTaskElapsed("w", time.Second)
	exporter.RecordTaskExecution("w", time.Second)
	exporter.RecordTaskFailed("w")
	exporter.RecordTaskDiscarded("w", core.DiscardStartupFailed)
	exporter.RecordQueueDepth("w", 1)
}

// TestMetricsExporter_WiredIntoWorker verifies a real worker feeds the collectors
func TestMetricsExporter_WiredIntoWorker(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}

	done := make(chan struct{}, 2)
	w := core.NewSequentialWorker(func(_ context.Context, in int) (int, error) {
		if in < 0 {
			return 0, errors.New("negative")
		}
		return in, nil
	}, core.SinkFunc[int](func(core.Result[int]) { done <- struct{}{} }),
		core.WithName("metered"), core.WithMetrics(exporter))

	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	w.Post(1)
	w.Post(-1)
	for range 2 {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("results not delivered")
		}
	}
	w.Stop()
	w.Post(2)

	if got := testutil.ToFloat64(exporter.taskFailedTotal.WithLabelValues("metered")); got != 1 {
		t.Fatalf("failed total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(exporter.taskDiscardedTotal.WithLabelValues("metered", string(core.DiscardSubmittedAfterStop))); got != 1 {
		t.Fatalf("discarded total = %v, want 1", got)
	}
	count, err := histogramSampleCount(exporter.taskElapsedSeconds.WithLabelValues("metered"))
	if err != nil {
		t.Fatalf("histogramSampleCount failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("elapsed sample count = %d, want 2", count)
	}
}

func histogramSampleCount(observer prom.Observer) (uint64, error) {
	collector, ok := observer.(prom.Collector)
	if !ok {
		return 0, nil
	}

	metricCh := make(chan prom.Metric, 1)
	collector.Collect(metricCh)
	close(metricCh)
	for metric := range metricCh {
		msg := &dto.Metric{}
		if err := metric.Write(msg); err != nil {
			return 0, err
		}
		if msg.Histogram != nil {
			return msg.Histogram.GetSampleCount(), nil
		}
	}
	return 0, nil
}
