package seqworker

import (
	"context"

	"github.com/Swind/go-seqworker/core"
)

// Re-export commonly used types from core package for convenience.
// This allows users to import only the seqworker package for most use cases.

// TaskID identifies a task and its Result
type TaskID = core.TaskID

// Task is a unit of work with its submission timestamp
type Task[In any] = core.Task[In]

// Result is the outcome of running a Task
type Result[Out any] = core.Result[Out]

// TransformFunc is the host-supplied work function
type TransformFunc[In, Out any] = core.TransformFunc[In, Out]

// SequentialWorker processes tasks one at a time on a dedicated goroutine
type SequentialWorker[In, Out any] = core.SequentialWorker[In, Out]

// CompletionSink receives results from the worker
type CompletionSink[Out any] = core.CompletionSink[Out]

// SinkFunc adapts a function to CompletionSink
type SinkFunc[Out any] = core.SinkFunc[Out]

// LoopSink delivers results on a ControlLoop
type LoopSink[Out any] = core.LoopSink[Out]

// ControlLoop runs posted closures on one goroutine
type ControlLoop = core.ControlLoop

// WorkerState is the worker lifecycle state
type WorkerState = core.WorkerState

// WorkerStats is a point-in-time snapshot of a worker
type WorkerStats = core.WorkerStats

// ExecutionRecord describes one executed task
type ExecutionRecord = core.ExecutionRecord

// DiscardReason says why a task was dropped
type DiscardReason = core.DiscardReason

// Option and LoopOption configure workers and control loops
type (
	Option     = core.Option
	LoopOption = core.LoopOption
)

// Metrics and PanicHandler are the observability hooks
type (
	Metrics      = core.Metrics
	PanicHandler = core.PanicHandler
)

// TransformError and PanicError describe failed results
type (
	TransformError = core.TransformError
	PanicError     = core.PanicError
)

// Lifecycle states
const (
	StateCreated  = core.StateCreated
	StateStarting = core.StateStarting
	StateReady    = core.StateReady
	StateStopping = core.StateStopping
	StateStopped  = core.StateStopped
)

// Discard reasons
const (
	DiscardSubmittedAfterStop = core.DiscardSubmittedAfterStop
	DiscardWorkerStopped      = core.DiscardWorkerStopped
	DiscardStartupFailed      = core.DiscardStartupFailed
)

// Errors
var (
	ErrAlreadyStarted  = core.ErrAlreadyStarted
	ErrWorkerStopped   = core.ErrWorkerStopped
	ErrTransformFailed = core.ErrTransformFailed
	ErrLoopClosed      = core.ErrLoopClosed
)

// Worker options
var (
	WithName            = core.WithName
	WithLogger          = core.WithLogger
	WithMetrics         = core.WithMetrics
	WithHistoryCapacity = core.WithHistoryCapacity
	WithPrepare         = core.WithPrepare
	WithDiscardHandler  = core.WithDiscardHandler
)

// Control loop options
var (
	WithLoopName     = core.WithLoopName
	WithLoopLogger   = core.WithLoopLogger
	WithPanicHandler = core.WithPanicHandler
)

// Context helpers
var (
	CurrentWorkerName  = core.CurrentWorkerName
	CurrentControlLoop = core.CurrentControlLoop
	IsControlThread    = core.IsControlThread
	NewTaskID          = core.NewTaskID
)

// New creates a SequentialWorker. Call Start to launch it.
func New[In, Out any](transform TransformFunc[In, Out], sink CompletionSink[Out], opts ...Option) *SequentialWorker[In, Out] {
	return core.NewSequentialWorker(transform, sink, opts...)
}

// NewTask creates a task stamped with the current time.
func NewTask[In any](id TaskID, payload In) Task[In] {
	return core.NewTask(id, payload)
}

// NewControlLoop creates and starts a ControlLoop.
func NewControlLoop(opts ...LoopOption) *ControlLoop {
	return core.NewControlLoop(opts...)
}

// NewLoopSink returns a sink that runs handle on loop for every result.
func NewLoopSink[Out any](loop *ControlLoop, handle func(ctx context.Context, result Result[Out])) *LoopSink[Out] {
	return core.NewLoopSink(loop, handle)
}

// RunOnLoop runs fn on loop and waits for its value.
func RunOnLoop[T any](ctx context.Context, loop *ControlLoop, fn func(ctx context.Context) T) (T, error) {
	return core.RunOnLoop(ctx, loop, fn)
}
