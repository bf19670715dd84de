package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// ErrLoopClosed is returned when work is posted to or awaited on a stopped ControlLoop.
var ErrLoopClosed = errors.New("control loop is closed")

// ControlLoop binds a dedicated goroutine that runs posted closures one after another.
// It stands in for a UI/main thread: host state owned by the loop is only ever touched
// from closures posted to it, so it needs no locks.
//
// PostTask never blocks; the queue is unbounded.
type ControlLoop struct {
	name         string
	logger       *slog.Logger
	panicHandler PanicHandler

	// mu orders PostTask against Shutdown.
	mu    sync.Mutex
	queue *fifoQueue[func(ctx context.Context)]
	wake  chan struct{}

	// Lifecycle control
	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}
	once    sync.Once
	closed  atomic.Bool
}

// NewControlLoop creates and starts a ControlLoop.
// It immediately spawns the goroutine that runs posted tasks.
func NewControlLoop(opts ...LoopOption) *ControlLoop {
	o := loopOptions{
		name:   "control",
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.panicHandler == nil {
		o.panicHandler = &LogPanicHandler{Logger: o.logger}
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &ControlLoop{
		name:         o.name,
		logger:       o.logger.With("loop", o.name),
		panicHandler: o.panicHandler,
		queue:        newFIFOQueue[func(ctx context.Context)](),
		wake:         make(chan struct{}, 1),
		ctx:          ctx,
		cancel:       cancel,
		stopped:      make(chan struct{}),
	}

	go l.runLoop()

	return l
}

// Name returns the name of the loop.
func (l *ControlLoop) Name() string {
	return l.name
}

// PostTask queues task to run on the loop goroutine.
// It returns false, and drops the task, once the loop has been shut down.
func (l *ControlLoop) PostTask(task func(ctx context.Context)) bool {
	l.mu.Lock()
	if l.closed.Load() {
		l.mu.Unlock()
		return false
	}
	l.queue.Push(task)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// IsClosed returns true once Shutdown or Stop has been called.
func (l *ControlLoop) IsClosed() bool {
	return l.closed.Load()
}

// Shutdown marks the loop closed and asks its goroutine to exit after the current task.
// Tasks still queued are dropped. It does not wait, so it is safe to call from a task
// running on the loop itself.
func (l *ControlLoop) Shutdown() {
	l.mu.Lock()
	l.closed.Store(true)
	l.mu.Unlock()
	l.cancel()
}

// Stop shuts the loop down and waits for the running task to complete.
// Do not call Stop from a task running on the same loop; use Shutdown there.
func (l *ControlLoop) Stop() {
	l.once.Do(func() {
		l.Shutdown()
		<-l.stopped
	})
}

// WaitIdle blocks until every task posted before the call has run.
// It posts a barrier task and waits for it.
func (l *ControlLoop) WaitIdle(ctx context.Context) error {
	done := make(chan struct{})
	if !l.PostTask(func(context.Context) { close(done) }) {
		return ErrLoopClosed
	}

	select {
	case <-done:
		return nil
	case <-l.stopped:
		return ErrLoopClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runLoop occupies the loop's dedicated goroutine.
func (l *ControlLoop) runLoop() {
	defer close(l.stopped)

	runCtx := context.WithValue(l.ctx, controlLoopKey, l)

	for {
		if l.ctx.Err() != nil {
			if n := len(l.queue.Drain()); n > 0 {
				l.logger.Debug("dropping tasks on shutdown", "count", n)
			}
			return
		}

		task, ok := l.queue.Pop()
		if !ok {
			select {
			case <-l.wake:
			case <-l.ctx.Done():
			}
			continue
		}

		l.runTask(runCtx, task)
	}
}

func (l *ControlLoop) runTask(ctx context.Context, task func(ctx context.Context)) {
	defer func() {
		if rec := recover(); rec != nil {
			l.panicHandler.HandlePanic(ctx, l.name, rec, debug.Stack())
		}
	}()
	task(ctx)
}

// =============================================================================
// Context Helper
// =============================================================================

type controlLoopKeyType struct{}

var controlLoopKey controlLoopKeyType

// CurrentControlLoop returns the loop running the current task, or nil.
func CurrentControlLoop(ctx context.Context) *ControlLoop {
	if v, ok := ctx.Value(controlLoopKey).(*ControlLoop); ok {
		return v
	}
	return nil
}

// IsControlThread reports whether ctx belongs to a task running on loop.
func IsControlThread(ctx context.Context, loop *ControlLoop) bool {
	return loop != nil && CurrentControlLoop(ctx) == loop
}

// RunOnLoop runs fn on the loop and waits for its return value.
// Do not call it from a task running on the same loop.
func RunOnLoop[T any](ctx context.Context, loop *ControlLoop, fn func(ctx context.Context) T) (T, error) {
	var zero T
	out := make(chan T, 1)
	if !loop.PostTask(func(taskCtx context.Context) { out <- fn(taskCtx) }) {
		return zero, ErrLoopClosed
	}

	select {
	case v := <-out:
		return v, nil
	case <-loop.stopped:
		// The task may have run right before the loop exited.
		select {
		case v := <-out:
			return v, nil
		default:
			return zero, ErrLoopClosed
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
