package prometheus

import (
	"errors"
	"fmt"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/Swind/go-seqworker/core"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
}

// MetricsExporter adapts core.Metrics to Prometheus collectors.
type MetricsExporter struct {
	taskElapsedSeconds   *prom.HistogramVec
	taskExecutionSeconds *prom.HistogramVec
	taskFailedTotal      *prom.CounterVec
	taskDiscardedTotal   *prom.CounterVec
	queueDepth           *prom.GaugeVec
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for core.Metrics.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "seqworker"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = prom.DefBuckets
	}

	elapsedVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "task_elapsed_seconds",
		Help:      "Time from submission to completion, queue wait included, in seconds.",
		Buckets:   buckets,
	}, []string{"worker"})
	executionVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "task_execution_seconds",
		Help:      "Transform execution time in seconds.",
		Buckets:   buckets,
	}, []string{"worker"})
	failedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_failed_total",
		Help:      "Total number of tasks whose transform returned an error or panicked.",
	}, []string{"worker"})
	discardedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_discarded_total",
		Help:      "Total number of tasks dropped without a result.",
	}, []string{"worker", "reason"})
	queueDepthVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Current number of tasks waiting in the live queue.",
	}, []string{"worker"})

	var err error
	if elapsedVec, err = registerCollector(reg, elapsedVec); err != nil {
		return nil, err
	}
	if executionVec, err = registerCollector(reg, executionVec); err != nil {
		return nil, err
	}
	if failedVec, err = registerCollector(reg, failedVec); err != nil {
		return nil, err
	}
	if discardedVec, err = registerCollector(reg, discardedVec); err != nil {
		return nil, err
	}
	if queueDepthVec, err = registerCollector(reg, queueDepthVec); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		taskElapsedSeconds:   elapsedVec,
		taskExecutionSeconds: executionVec,
		taskFailedTotal:      failedVec,
		taskDiscardedTotal:   discardedVec,
		queueDepth:           queueDepthVec,
	}, nil
}

// RecordTaskElapsed records queue wait plus execution time.
func (m *MetricsExporter) RecordTaskElapsed(workerName string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.taskElapsedSeconds.WithLabelValues(normalizeLabel(workerName, "unknown")).Observe(elapsed.Seconds())
}

// RecordTaskExecution records transform execution time.
func (m *MetricsExporter) RecordTaskExecution(workerName string, duration time.Duration) {
	if m == nil {
		return
	}
	m.taskExecutionSeconds.WithLabelValues(normalizeLabel(workerName, "unknown")).Observe(duration.Seconds())
}

// RecordTaskFailed records a failed transform.
func (m *MetricsExporter) RecordTaskFailed(workerName string) {
	if m == nil {
		return
	}
	m.taskFailedTotal.WithLabelValues(normalizeLabel(workerName, "unknown")).Inc()
}

// RecordTaskDiscarded records a task dropped without a result.
func (m *MetricsExporter) RecordTaskDiscarded(workerName string, reason core.DiscardReason) {
	if m == nil {
		return
	}
	m.taskDiscardedTotal.WithLabelValues(normalizeLabel(workerName, "unknown"), normalizeLabel(string(reason), "unknown")).Inc()
}

// RecordQueueDepth records queue depth.
func (m *MetricsExporter) RecordQueueDepth(workerName string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(normalizeLabel(workerName, "unknown")).Set(float64(depth))
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
