package core

import "time"

// ExecutionRecord captures one executed task.
type ExecutionRecord struct {
	TaskID     TaskID
	WorkerName string
	EnqueuedAt time.Time
	StartedAt  time.Time
	FinishedAt time.Time
	QueueWait  time.Duration
	Execution  time.Duration
	Elapsed    time.Duration
	Failed     bool
}

// WorkerStats represents runtime observability state for a worker.
type WorkerStats struct {
	Name       string
	State      WorkerState
	Staged     int
	Pending    int
	Running    int
	Delivered  int64
	Failed     int64
	Discarded  int64
	LastTaskAt time.Time
}
