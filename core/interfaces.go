package core

import (
	"context"
	"log/slog"
	"time"
)

// =============================================================================
// CompletionSink: hands results back to the control thread
// =============================================================================

// CompletionSink receives every Result the worker produces.
//
// Deliver is called on the worker's goroutine. Implementations are responsible for
// moving the result onto the control thread (see LoopSink) and must keep working,
// without error, after the worker or the control thread has been stopped.
type CompletionSink[Out any] interface {
	Deliver(result Result[Out])
}

// SinkFunc adapts a plain function to CompletionSink.
// The function runs on the worker's goroutine; no thread hop happens.
type SinkFunc[Out any] func(result Result[Out])

// Deliver calls f(result).
func (f SinkFunc[Out]) Deliver(result Result[Out]) {
	f(result)
}

// =============================================================================
// PanicHandler: Interface for handling panics on the control loop
// =============================================================================

// PanicHandler is called when a closure posted to a ControlLoop panics.
//
// Implementations should be thread-safe as they may be called from several loops.
type PanicHandler interface {
	// HandlePanic is called when a posted task panics.
	//
	// Parameters:
	// - ctx: The context of the panicked task
	// - loopName: The name of the control loop where the panic occurred
	// - panicInfo: The panic value recovered from the task
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, loopName string, panicInfo any, stackTrace []byte)
}

// LogPanicHandler logs panics at error level.
type LogPanicHandler struct {
	Logger *slog.Logger
}

// HandlePanic writes the panic and its stack trace to the logger.
func (h *LogPanicHandler) HandlePanic(ctx context.Context, loopName string, panicInfo any, stackTrace []byte) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.ErrorContext(ctx, "control loop task panicked",
		"loop", loopName,
		"panic", panicInfo,
		"stack", string(stackTrace))
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting worker metrics.
// Implementations can send metrics to monitoring systems (see observability/prometheus).
//
// Methods are called on the worker's goroutine and on submitting goroutines,
// so they should be non-blocking, fast and thread-safe.
type Metrics interface {
	// RecordTaskElapsed records queue wait plus execution time of a finished task.
	RecordTaskElapsed(workerName string, elapsed time.Duration)

	// RecordTaskExecution records how long the transform itself ran.
	RecordTaskExecution(workerName string, duration time.Duration)

	// RecordTaskFailed records a transform that returned an error or panicked.
	RecordTaskFailed(workerName string)

	// RecordTaskDiscarded records a task dropped without a Result.
	RecordTaskDiscarded(workerName string, reason DiscardReason)

	// RecordQueueDepth records the number of tasks waiting to run.
	RecordQueueDepth(workerName string, depth int)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

// RecordTaskElapsed is a no-op.
func (m *NilMetrics) RecordTaskElapsed(workerName string, elapsed time.Duration) {}

// RecordTaskExecution is a no-op.
func (m *NilMetrics) RecordTaskExecution(workerName string, duration time.Duration) {}

// RecordTaskFailed is a no-op.
func (m *NilMetrics) RecordTaskFailed(workerName string) {}

// RecordTaskDiscarded is a no-op.
func (m *NilMetrics) RecordTaskDiscarded(workerName string, reason DiscardReason) {}

// RecordQueueDepth is a no-op.
func (m *NilMetrics) RecordQueueDepth(workerName string, depth int) {}
