package core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TaskID identifies a task for the lifetime of a worker. Hosts match results back to
// their own state by this id, so it must be unique per worker instance.
type TaskID = uuid.UUID

// NewTaskID returns a random (v4) task id.
func NewTaskID() TaskID {
	return uuid.New()
}

// TransformFunc is the host-supplied work executed for every task.
// It runs synchronously on the worker's goroutine, one call at a time.
//
// The context is never cancelled by Stop: a transform that is already running is
// allowed to finish. Use CurrentWorkerName to find out which worker is calling.
type TransformFunc[In, Out any] func(ctx context.Context, in In) (Out, error)

// =============================================================================
// Task
// =============================================================================

// Task is one unit of submitted work together with the instant it was submitted.
// A Task is immutable; construct it with NewTask.
type Task[In any] struct {
	ID         TaskID
	Payload    In
	EnqueuedAt time.Time
}

// NewTask creates a task and stamps it with the current time.
// The timestamp is what elapsed time is measured from, so create the task
// at the moment it is handed to the worker.
func NewTask[In any](id TaskID, payload In) Task[In] {
	return Task[In]{
		ID:         id,
		Payload:    payload,
		EnqueuedAt: time.Now(),
	}
}

// SameAs reports whether both tasks carry the same id.
func (t Task[In]) SameAs(other Task[In]) bool {
	return t.ID == other.ID
}

// =============================================================================
// Result
// =============================================================================

// Result is the outcome of executing a Task. It is created exactly once per
// executed task, after the transform returns.
//
// Elapsed spans queue wait and execution: FinishedAt - EnqueuedAt.
type Result[Out any] struct {
	ID         TaskID
	Output     Out
	Err        error
	EnqueuedAt time.Time
	StartedAt  time.Time
	FinishedAt time.Time
	Elapsed    time.Duration
}

func newResult[In, Out any](task Task[In], out Out, err error, startedAt, finishedAt time.Time) Result[Out] {
	return Result[Out]{
		ID:         task.ID,
		Output:     out,
		Err:        err,
		EnqueuedAt: task.EnqueuedAt,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		Elapsed:    max(finishedAt.Sub(task.EnqueuedAt), 0),
	}
}

// ElapsedMillis returns the total elapsed time in whole milliseconds.
func (r Result[Out]) ElapsedMillis() int64 {
	return r.Elapsed.Milliseconds()
}

// QueueWait is the time the task spent waiting before the transform started.
func (r Result[Out]) QueueWait() time.Duration {
	return max(r.StartedAt.Sub(r.EnqueuedAt), 0)
}

// ExecutionTime is the time spent inside the transform.
func (r Result[Out]) ExecutionTime() time.Duration {
	return max(r.FinishedAt.Sub(r.StartedAt), 0)
}

// Failed reports whether the transform returned an error or panicked.
func (r Result[Out]) Failed() bool {
	return r.Err != nil
}

// Matches reports whether r was produced for the given task.
func Matches[In, Out any](r Result[Out], task Task[In]) bool {
	return r.ID == task.ID
}

// =============================================================================
// Context Helper
// =============================================================================

type workerNameKeyType struct{}

var workerNameKey workerNameKeyType

// CurrentWorkerName returns the name of the worker executing the current transform,
// or "" when ctx was not created by a worker.
func CurrentWorkerName(ctx context.Context) string {
	if v, ok := ctx.Value(workerNameKey).(string); ok {
		return v
	}
	return ""
}
