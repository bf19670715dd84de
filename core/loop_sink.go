package core

import (
	"context"
	"sync/atomic"
)

// LoopSink is a CompletionSink that hops every result onto a ControlLoop and
// handles it there. Results delivered after the loop is closed are counted and dropped.
type LoopSink[Out any] struct {
	loop    *ControlLoop
	handle  func(ctx context.Context, result Result[Out])
	dropped atomic.Int64
}

var _ CompletionSink[struct{}] = (*LoopSink[struct{}])(nil)

// NewLoopSink returns a sink that runs handle on loop for every delivered result.
func NewLoopSink[Out any](loop *ControlLoop, handle func(ctx context.Context, result Result[Out])) *LoopSink[Out] {
	return &LoopSink[Out]{loop: loop, handle: handle}
}

// Deliver posts the result to the control loop.
func (s *LoopSink[Out]) Deliver(result Result[Out]) {
	posted := s.loop.PostTask(func(ctx context.Context) {
		s.handle(ctx, result)
	})
	if !posted {
		s.dropped.Add(1)
		s.loop.logger.Debug("result dropped, control loop closed", "task_id", result.ID)
	}
}

// Dropped returns how many results arrived after the loop was closed.
func (s *LoopSink[Out]) Dropped() int64 {
	return s.dropped.Load()
}
