package core

import (
	"errors"
	"fmt"
)

// Usage errors.
var (
	// ErrAlreadyStarted is returned by Start when it is called more than once.
	ErrAlreadyStarted = errors.New("worker already started")

	// ErrWorkerStopped is returned by Start when the worker was stopped first.
	ErrWorkerStopped = errors.New("worker is stopped")
)

// ErrTransformFailed is wrapped by every error a failed Result carries.
var ErrTransformFailed = errors.New("transform failed")

// TransformError is the error of a Result whose transform returned an error.
type TransformError struct {
	TaskID TaskID
	Err    error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("%v: task %s: %v", ErrTransformFailed, e.TaskID, e.Err)
}

func (e *TransformError) Unwrap() []error {
	return []error{ErrTransformFailed, e.Err}
}

// PanicError is the error of a Result whose transform panicked.
type PanicError struct {
	TaskID     TaskID
	Value      any
	StackTrace []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("%v: task %s: panic: %v", ErrTransformFailed, e.TaskID, e.Value)
}

func (e *PanicError) Unwrap() error {
	return ErrTransformFailed
}

// DiscardReason says why a task was dropped without a Result.
type DiscardReason string

const (
	// DiscardSubmittedAfterStop: Submit was called once the worker was stopping or stopped.
	DiscardSubmittedAfterStop DiscardReason = "submitted_after_stop"

	// DiscardWorkerStopped: the task was queued but the worker stopped before running it.
	DiscardWorkerStopped DiscardReason = "worker_stopped"

	// DiscardStartupFailed: the prepare step failed, so the worker never became ready.
	DiscardStartupFailed DiscardReason = "startup_failed"
)
