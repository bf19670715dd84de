package core

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// SequentialWorker runs a transform over submitted tasks on one dedicated goroutine,
// strictly one task at a time and in submission order, and hands every result to a
// CompletionSink.
//
// Submit never blocks and may be called before Start: until the worker goroutine is
// ready, tasks are kept in a staging buffer that the goroutine drains, in order, into
// its live queue as the first thing it does. Stop is cooperative: a transform that is
// already running finishes and its result is delivered, everything still queued is
// discarded.
//
// There is no per-task timeout. A transform that never returns stalls every task
// queued behind it.
type SequentialWorker[In, Out any] struct {
	name      string
	transform TransformFunc[In, Out]
	sink      CompletionSink[Out]
	opts      workerOptions

	state   stateMachine
	started atomic.Bool

	// mu orders Submit against the staging drain and against Stop.
	mu      sync.Mutex
	ready   bool
	staging *fifoQueue[Task[In]]
	queue   *fifoQueue[Task[In]]
	wake    chan struct{}

	// Lifecycle control
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	history   *executionHistory
	running   atomic.Int32 // atomic guard for single-flight assertion
	delivered atomic.Int64
	failed    atomic.Int64
	discarded atomic.Int64
}

// NewSequentialWorker creates a worker in the Created state. Call Start to launch it.
// It panics if transform or sink is nil.
func NewSequentialWorker[In, Out any](
	transform TransformFunc[In, Out],
	sink CompletionSink[Out],
	opts ...Option,
) *SequentialWorker[In, Out] {
	if transform == nil {
		panic("seqworker: nil transform")
	}
	if sink == nil {
		panic("seqworker: nil completion sink")
	}

	o := defaultWorkerOptions()
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = o.logger.With("worker", o.name)

	ctx, cancel := context.WithCancel(context.Background())
	return &SequentialWorker[In, Out]{
		name:      o.name,
		transform: transform,
		sink:      sink,
		opts:      o,
		staging:   newFIFOQueue[Task[In]](),
		queue:     newFIFOQueue[Task[In]](),
		wake:      make(chan struct{}, 1),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		history:   newExecutionHistory(o.historyCapacity),
	}
}

// Name returns the worker name.
func (w *SequentialWorker[In, Out]) Name() string {
	return w.name
}

// State returns the current lifecycle state.
func (w *SequentialWorker[In, Out]) State() WorkerState {
	return w.state.Load()
}

// IsStopped reports whether Stop has been called (or the worker failed to start).
func (w *SequentialWorker[In, Out]) IsStopped() bool {
	return w.state.Load() >= StateStopping
}

// Start launches the worker goroutine and returns immediately; readiness is reached
// asynchronously. Calling Start twice returns ErrAlreadyStarted, calling it after
// Stop returns ErrWorkerStopped.
func (w *SequentialWorker[In, Out]) Start() error {
	// started is only set by the call that leaves StateCreated, under mu so a
	// concurrent Start or Stop observes it.
	w.mu.Lock()
	moved := w.state.transition(StateCreated, StateStarting)
	wasStarted := w.started.Load()
	if moved {
		w.started.Store(true)
	}
	w.mu.Unlock()

	if !moved {
		if wasStarted {
			w.opts.logger.Error("start called twice", "state", w.State().String())
			return fmt.Errorf("start %s: %w", w.name, ErrAlreadyStarted)
		}
		w.opts.logger.Error("start called after stop", "state", w.State().String())
		return fmt.Errorf("start %s: %w", w.name, ErrWorkerStopped)
	}

	w.opts.logger.Debug("starting worker")
	go w.run()
	return nil
}

// Submit queues a task. It never blocks and never fails from the caller's point of
// view; once the worker is stopping the task is discarded instead.
func (w *SequentialWorker[In, Out]) Submit(task Task[In]) {
	w.mu.Lock()
	if w.state.Load() >= StateStopping {
		w.mu.Unlock()
		w.discard(task, DiscardSubmittedAfterStop)
		return
	}
	if !w.ready {
		w.staging.Push(task)
		w.mu.Unlock()
		return
	}
	depth := w.queue.Push(task)
	w.mu.Unlock()

	w.opts.metrics.RecordQueueDepth(w.name, depth)
	w.signal()
}

// Post wraps payload in a new task, submits it and returns the task id.
func (w *SequentialWorker[In, Out]) Post(payload In) TaskID {
	task := NewTask(NewTaskID(), payload)
	w.Submit(task)
	return task.ID
}

// Stop asks the worker to exit and returns without waiting. Tasks submitted after
// Stop returns are never executed. Calling Stop again is a no-op.
// Use Wait or Done to observe the worker reaching StateStopped.
func (w *SequentialWorker[In, Out]) Stop() {
	w.mu.Lock()
	prev, moved := w.state.advance(StateStopping)
	var staged []Task[In]
	if moved && prev == StateCreated {
		staged = w.staging.Drain()
	}
	w.mu.Unlock()

	if !moved {
		return
	}

	w.opts.logger.Info("stopping worker", "previous_state", prev.String())
	w.cancel()

	// The goroutine was never launched, so nobody else will finish the shutdown.
	if prev == StateCreated {
		for _, task := range staged {
			w.discard(task, DiscardWorkerStopped)
		}
		w.state.advance(StateStopped)
		close(w.done)
	}
}

// Done returns a channel that is closed once the worker is in StateStopped.
func (w *SequentialWorker[In, Out]) Done() <-chan struct{} {
	return w.done
}

// Wait blocks until the worker has fully stopped or ctx is done.
func (w *SequentialWorker[In, Out]) Wait(ctx context.Context) error {
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns a snapshot of the worker's counters.
func (w *SequentialWorker[In, Out]) Stats() WorkerStats {
	stats := WorkerStats{
		Name:      w.name,
		State:     w.state.Load(),
		Staged:    w.staging.Len(),
		Pending:   w.queue.Len(),
		Running:   int(w.running.Load()),
		Delivered: w.delivered.Load(),
		Failed:    w.failed.Load(),
		Discarded: w.discarded.Load(),
	}
	if last, ok := w.history.Last(); ok {
		stats.LastTaskAt = last.FinishedAt
	}
	return stats
}

// RecentExecutions returns up to limit execution records, newest first.
func (w *SequentialWorker[In, Out]) RecentExecutions(limit int) []ExecutionRecord {
	return w.history.Recent(limit)
}

// =============================================================================
// Worker goroutine
// =============================================================================

// run is the core of this worker, it occupies a dedicated goroutine
func (w *SequentialWorker[In, Out]) run() {
	reason := DiscardWorkerStopped
	defer func() { w.finish(reason) }()

	if err := w.runPrepare(); err != nil {
		if w.IsStopped() {
			return
		}
		w.opts.logger.Error("worker startup failed", "error", err)
		reason = DiscardStartupFailed
		return
	}

	if !w.becomeReady() {
		return
	}

	runCtx := context.WithValue(context.Background(), workerNameKey, w.name)
	for {
		task, ok := w.next()
		if !ok {
			return
		}
		w.process(runCtx, task)
	}
}

func (w *SequentialWorker[In, Out]) runPrepare() (err error) {
	if w.opts.prepare == nil {
		return nil
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("prepare panicked: %v", rec)
		}
	}()
	return w.opts.prepare(context.WithValue(w.ctx, workerNameKey, w.name))
}

// becomeReady moves staged tasks into the live queue and publishes readiness.
// Both happen under mu, so a concurrent Submit lands either in the staging buffer
// before the drain or in the live queue after it.
func (w *SequentialWorker[In, Out]) becomeReady() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.state.transition(StateStarting, StateReady) {
		return false
	}

	staged := w.staging.Drain()
	for _, task := range staged {
		w.queue.Push(task)
	}
	w.ready = true

	w.opts.logger.Debug("worker ready", "staged", len(staged))
	return true
}

// next blocks until a task is available or the worker is stopped.
func (w *SequentialWorker[In, Out]) next() (Task[In], bool) {
	for {
		if task, ok := w.queue.Pop(); ok {
			return task, true
		}
		select {
		case <-w.wake:
		case <-w.ctx.Done():
			var zero Task[In]
			return zero, false
		}
	}
}

func (w *SequentialWorker[In, Out]) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *SequentialWorker[In, Out]) process(ctx context.Context, task Task[In]) {
	if w.IsStopped() {
		w.discard(task, DiscardWorkerStopped)
		return
	}

	// Assertion: strictly one transform at a time
	if n := w.running.Add(1); n > 1 {
		panic(fmt.Sprintf("SequentialWorker: concurrent execution detected (count=%d)", n))
	}
	defer w.running.Add(-1)

	startedAt := time.Now()
	out, err := w.invoke(ctx, task)
	finishedAt := time.Now()

	result := newResult(task, out, err, startedAt, finishedAt)
	w.record(result)
	w.deliver(result)
}

// invoke runs the transform and turns errors and panics into a failed result.
func (w *SequentialWorker[In, Out]) invoke(ctx context.Context, task Task[In]) (out Out, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			var zero Out
			out = zero
			err = &PanicError{TaskID: task.ID, Value: rec, StackTrace: debug.Stack()}
		}
	}()

	out, err = w.transform(ctx, task.Payload)
	if err != nil {
		var zero Out
		return zero, &TransformError{TaskID: task.ID, Err: err}
	}
	return out, nil
}

func (w *SequentialWorker[In, Out]) record(result Result[Out]) {
	w.history.Add(ExecutionRecord{
		TaskID:     result.ID,
		WorkerName: w.name,
		EnqueuedAt: result.EnqueuedAt,
		StartedAt:  result.StartedAt,
		FinishedAt: result.FinishedAt,
		QueueWait:  result.QueueWait(),
		Execution:  result.ExecutionTime(),
		Elapsed:    result.Elapsed,
		Failed:     result.Failed(),
	})

	w.opts.metrics.RecordTaskElapsed(w.name, result.Elapsed)
	w.opts.metrics.RecordTaskExecution(w.name, result.ExecutionTime())
	w.opts.metrics.RecordQueueDepth(w.name, w.queue.Len())

	logger := w.opts.logger.With("task_id", result.ID)
	if !result.Failed() {
		logger.Debug("task completed",
			"elapsed_ms", result.ElapsedMillis(),
			"queue_wait_ms", result.QueueWait().Milliseconds())
		return
	}

	w.failed.Add(1)
	w.opts.metrics.RecordTaskFailed(w.name)
	var pe *PanicError
	if errors.As(result.Err, &pe) {
		logger.Error("transform panicked", "panic", pe.Value, "stack", string(pe.StackTrace))
		return
	}
	logger.Warn("transform failed", "error", result.Err, "elapsed_ms", result.ElapsedMillis())
}

func (w *SequentialWorker[In, Out]) deliver(result Result[Out]) {
	defer func() {
		if rec := recover(); rec != nil {
			w.opts.logger.Error("completion sink panicked",
				"task_id", result.ID,
				"panic", rec,
				"stack", string(debug.Stack()))
		}
	}()

	w.delivered.Add(1)
	w.sink.Deliver(result)
}

func (w *SequentialWorker[In, Out]) discard(task Task[In], reason DiscardReason) {
	w.discarded.Add(1)
	w.opts.metrics.RecordTaskDiscarded(w.name, reason)
	w.opts.logger.Debug("task discarded", "task_id", task.ID, "reason", string(reason))
	if w.opts.onDiscard != nil {
		w.opts.onDiscard(task.ID, reason)
	}
}

// finish discards whatever is left and publishes StateStopped.
func (w *SequentialWorker[In, Out]) finish(reason DiscardReason) {
	w.mu.Lock()
	w.state.advance(StateStopping)
	w.ready = false
	leftover := append(w.staging.Drain(), w.queue.Drain()...)
	w.mu.Unlock()

	for _, task := range leftover {
		w.discard(task, reason)
	}

	w.cancel()
	w.state.advance(StateStopped)
	w.opts.metrics.RecordQueueDepth(w.name, 0)
	w.opts.logger.Info("worker stopped",
		"delivered", w.delivered.Load(),
		"failed", w.failed.Load(),
		"discarded", w.discarded.Load())
	close(w.done)
}
