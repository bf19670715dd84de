package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoopSink_DeliversOnControlLoop verifies results hop onto the control loop
// Given: a worker whose sink is a LoopSink
// When: tasks complete
// Then: each handler call runs on the control loop, in submission order
func TestLoopSink_DeliversOnControlLoop(t *testing.T) {
	loop := NewControlLoop(WithLoopName("ui"))
	defer loop.Stop()

	var got []int
	var offLoop int
	sink := NewLoopSink(loop, func(ctx context.Context, r Result[int]) {
		if !IsControlThread(ctx, loop) {
			offLoop++
		}
		got = append(got, r.Output)
	})

	w := NewSequentialWorker(func(_ context.Context, in int) (int, error) { return in * 10, nil }, sink)
	require.NoError(t, w.Start())
	defer w.Stop()

	for i := range 5 {
		w.Post(i)
	}

	require.Eventually(t, func() bool {
		n, err := RunOnLoop(context.Background(), loop, func(context.Context) int { return len(got) })
		return err == nil && n == 5
	}, time.Second, time.Millisecond)

	n, err := RunOnLoop(context.Background(), loop, func(context.Context) int { return offLoop })
	require.NoError(t, err)
	assert.Zero(t, n)

	snapshot, err := RunOnLoop(context.Background(), loop, func(context.Context) []int {
		return append([]int(nil), got...)
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 10, 20, 30, 40}, snapshot)
	assert.Zero(t, sink.Dropped())
}

// TestLoopSink_DropsAfterLoopClosed verifies delivery to a closed loop is silent
// Given: a LoopSink whose loop has been stopped
// When: a result is delivered
// Then: the handler is not called and the drop is counted
func TestLoopSink_DropsAfterLoopClosed(t *testing.T) {
	loop := NewControlLoop()
	sink := NewLoopSink(loop, func(context.Context, Result[string]) {
		t.Error("handler ran after the loop was closed")
	})
	loop.Stop()

	task := NewTask(NewTaskID(), "x")
	sink.Deliver(newResult[string, string](task, "x", nil, task.EnqueuedAt, task.EnqueuedAt))

	assert.EqualValues(t, 1, sink.Dropped())
}
