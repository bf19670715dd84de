// Package seqworker runs host-supplied work on a dedicated background goroutine, one
// task at a time and strictly in submission order, and hands each result back to a
// control loop that stands in for a UI/main thread.
//
// The control loop never blocks on the worker: Submit and Post are non-blocking and
// may be called before the worker has finished starting. Tasks submitted early are
// held in a staging buffer and drained, in order, into the live queue as the worker's
// first act once it is ready.
//
// # Key Concepts
//
// SequentialWorker: Owns the background goroutine and the FIFO queue. Exactly one
// transform runs at a time.
//
// Result: Carries the transform output together with the elapsed time measured from
// the moment the task was created, so it includes the time spent waiting in the queue.
//
// CompletionSink: Receives every Result. LoopSink posts results onto a ControlLoop,
// so handlers run on the control thread and may touch host state without locks.
//
// ControlLoop: A dedicated goroutine running posted closures in order. RunOnLoop reads
// loop-owned state from any goroutine.
//
// # Stopping
//
// Stop is non-blocking and idempotent. A transform already running finishes and its
// Result is delivered; queued tasks are discarded. Submissions after Stop are dropped
// silently and reported to the discard handler.
//
// # Example
//
//	import (
//		"context"
//		"fmt"
//
//		seqworker "github.com/Swind/go-seqworker"
//	)
//
//	func main() {
//		ui := seqworker.NewControlLoop()
//		defer ui.Stop()
//
//		done := make(chan struct{})
//		worker := seqworker.New(
//			func(ctx context.Context, in string) (int, error) { return len(in), nil },
//			seqworker.NewLoopSink(ui, func(ctx context.Context, r seqworker.Result[int]) {
//				fmt.Println(r.Output, r.ElapsedMillis())
//				close(done)
//			}),
//		)
//		worker.Post("submitted before start")
//		if err := worker.Start(); err != nil {
//			panic(err)
//		}
//		defer worker.Stop()
//
//		<-done
//	}
package seqworker
