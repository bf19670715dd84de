package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSink collects delivered results in delivery order.
type recordingSink[Out any] struct {
	mu      sync.Mutex
	results []Result[Out]
	times   []time.Time
}

func (s *recordingSink[Out]) Deliver(r Result[Out]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, r)
	s.times = append(s.times, time.Now())
}

func (s *recordingSink[Out]) Results() []Result[Out] {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Result[Out], len(s.results))
	copy(out, s.results)
	return out
}

func (s *recordingSink[Out]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.results)
}

// discardLog collects discarded task ids.
type discardLog struct {
	mu      sync.Mutex
	ids     []TaskID
	reasons map[TaskID]DiscardReason
}

func newDiscardLog() *discardLog {
	return &discardLog{reasons: make(map[TaskID]DiscardReason)}
}

func (d *discardLog) handle(id TaskID, reason DiscardReason) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids = append(d.ids, id)
	d.reasons[id] = reason
}

func (d *discardLog) Reason(id TaskID) (DiscardReason, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.reasons[id]
	return r, ok
}

func (d *discardLog) IDs() []TaskID {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]TaskID, len(d.ids))
	copy(out, d.ids)
	return out
}

func identity(_ context.Context, in int) (int, error) {
	return in, nil
}

func waitStopped[In, Out any](t *testing.T, w *SequentialWorker[In, Out]) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, w.Wait(ctx))
}

func waitReady[In, Out any](t *testing.T, w *SequentialWorker[In, Out]) {
	t.Helper()
	require.Eventually(t, func() bool { return w.State() == StateReady }, 2*time.Second, time.Millisecond)
}

// TestSequentialWorker_BasicExecution tests basic execution functionality
// Given: a started worker with a doubling transform
// When: a task is submitted
// Then: exactly one result with the transformed output and the task id is delivered
func TestSequentialWorker_BasicExecution(t *testing.T) {
	sink := &recordingSink[int]{}
	w := NewSequentialWorker(func(_ context.Context, in int) (int, error) {
		return in * 2, nil
	}, sink)
	require.NoError(t, w.Start())
	defer w.Stop()

	task := NewTask(NewTaskID(), 21)
	w.Submit(task)

	require.Eventually(t, func() bool { return sink.Len() == 1 }, time.Second, time.Millisecond)

	got := sink.Results()[0]
	assert.Equal(t, task.ID, got.ID)
	assert.True(t, Matches(got, task))
	assert.Equal(t, 42, got.Output)
	assert.NoError(t, got.Err)
	assert.Equal(t, task.EnqueuedAt, got.EnqueuedAt)
}

// TestSequentialWorker_StartupRaceFIFO verifies FIFO across the not-ready -> ready transition
// Given: a worker whose prepare step is held open
// When: N tasks are submitted right after Start, then prepare is released while another
// goroutine keeps submitting
// Then: every task is delivered exactly once, in submission order
func TestSequentialWorker_StartupRaceFIFO(t *testing.T) {
	release := make(chan struct{})
	sink := &recordingSink[int]{}
	w := NewSequentialWorker(identity, sink, WithPrepare(func(ctx context.Context) error {
		<-release
		return nil
	}))

	require.NoError(t, w.Start())
	defer w.Stop()

	const staged = 50
	const live = 50
	for i := range staged {
		w.Submit(NewTask(NewTaskID(), i))
	}

	assert.Equal(t, StateStarting, w.State())
	assert.Equal(t, staged, w.Stats().Staged)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := staged; i < staged+live; i++ {
			w.Submit(NewTask(NewTaskID(), i))
		}
	}()
	close(release)
	wg.Wait()

	require.Eventually(t, func() bool { return sink.Len() == staged+live }, 2*time.Second, time.Millisecond)

	for i, r := range sink.Results() {
		assert.Equal(t, i, r.Output, "result %d out of order", i)
	}
	assert.Equal(t, 0, w.Stats().Staged)
}

// TestSequentialWorker_SubmitBeforeStart verifies that submitting before Start is supported
// Given: a worker that has not been started
// When: tasks are submitted, then Start is called
// Then: nothing runs before Start and every staged task runs afterwards, in order
func TestSequentialWorker_SubmitBeforeStart(t *testing.T) {
	sink := &recordingSink[int]{}
	w := NewSequentialWorker(identity, sink)
	defer w.Stop()

	for i := range 5 {
		w.Submit(NewTask(NewTaskID(), i))
	}

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, sink.Len())
	assert.Equal(t, StateCreated, w.State())

	require.NoError(t, w.Start())
	require.Eventually(t, func() bool { return sink.Len() == 5 }, time.Second, time.Millisecond)

	for i, r := range sink.Results() {
		assert.Equal(t, i, r.Output)
	}
}

// TestSequentialWorker_StartTwice verifies that a second Start is reported
// Given: a started worker
// When: Start is called again, and Start is called on a worker stopped before starting
// Then: ErrAlreadyStarted and ErrWorkerStopped are returned respectively
func TestSequentialWorker_StartTwice(t *testing.T) {
	w := NewSequentialWorker(identity, &recordingSink[int]{})
	require.NoError(t, w.Start())
	defer w.Stop()

	err := w.Start()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAlreadyStarted)

	stoppedFirst := NewSequentialWorker(identity, &recordingSink[int]{})
	stoppedFirst.Stop()
	err = stoppedFirst.Start()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWorkerStopped)
	// It never started, so repeating the call must not report a double start.
	err = stoppedFirst.Start()
	assert.ErrorIs(t, err, ErrWorkerStopped)
	assert.NotErrorIs(t, err, ErrAlreadyStarted)

	// Once started and stopped, a further Start is still a double start.
	w.Stop()
	assert.ErrorIs(t, w.Start(), ErrAlreadyStarted)
}

// TestSequentialWorker_ElapsedIncludesQueueWait verifies elapsed time accounting
// Given: a transform that takes ~50ms
// When: three tasks are submitted back to back
// Then: the third result's queue wait is at least ~100ms and its elapsed time covers
// queue wait plus execution
func TestSequentialWorker_ElapsedIncludesQueueWait(t *testing.T) {
	sink := &recordingSink[int]{}
	w := NewSequentialWorker(func(_ context.Context, in int) (int, error) {
		time.Sleep(50 * time.Millisecond)
		return in, nil
	}, sink)
	require.NoError(t, w.Start())
	defer w.Stop()
	waitReady(t, w)

	submitted := make([]time.Time, 3)
	for i := range 3 {
		task := NewTask(NewTaskID(), i)
		submitted[i] = task.EnqueuedAt
		w.Submit(task)
	}

	require.Eventually(t, func() bool { return sink.Len() == 3 }, 2*time.Second, 5*time.Millisecond)

	results := sink.Results()
	third := results[2]
	assert.GreaterOrEqual(t, third.QueueWait(), 95*time.Millisecond)
	assert.GreaterOrEqual(t, third.Elapsed, 140*time.Millisecond)
	assert.GreaterOrEqual(t, third.ElapsedMillis(), int64(140))
	assert.Equal(t, third.QueueWait()+third.ExecutionTime(), third.Elapsed)

	sink.mu.Lock()
	deliveredAt := append([]time.Time(nil), sink.times...)
	sink.mu.Unlock()
	for i, r := range results {
		assert.LessOrEqual(t, r.Elapsed, deliveredAt[i].Sub(submitted[i]), "result %d", i)
		assert.GreaterOrEqual(t, r.Elapsed, r.ExecutionTime(), "result %d", i)
	}
}

// TestSequentialWorker_PostStopSilence verifies nothing is delivered after Stop
// Given: a ready worker
// When: Stop is called and a task is submitted afterwards
// Then: the sink never sees it and it is discarded as submitted-after-stop
func TestSequentialWorker_PostStopSilence(t *testing.T) {
	sink := &recordingSink[int]{}
	discards := newDiscardLog()
	w := NewSequentialWorker(identity, sink, WithDiscardHandler(discards.handle))
	require.NoError(t, w.Start())
	waitReady(t, w)

	w.Stop()
	assert.True(t, w.IsStopped())

	task := NewTask(NewTaskID(), 1)
	w.Submit(task)
	waitStopped(t, w)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, sink.Len())
	reason, ok := discards.Reason(task.ID)
	require.True(t, ok)
	assert.Equal(t, DiscardSubmittedAfterStop, reason)
	assert.Equal(t, StateStopped, w.State())
}

// TestSequentialWorker_IdempotentStop verifies repeated Stop calls are no-ops
// Given: a started worker and a never-started worker
// When: Stop is called several times on each
// Then: nothing panics and both reach StateStopped
func TestSequentialWorker_IdempotentStop(t *testing.T) {
	started := NewSequentialWorker(identity, &recordingSink[int]{})
	require.NoError(t, started.Start())

	assert.NotPanics(t, func() {
		started.Stop()
		started.Stop()
	})
	waitStopped(t, started)
	assert.NotPanics(t, started.Stop)
	assert.Equal(t, StateStopped, started.State())

	never := NewSequentialWorker(identity, &recordingSink[int]{})
	assert.NotPanics(t, func() {
		never.Stop()
		never.Stop()
	})
	waitStopped(t, never)
	assert.Equal(t, StateStopped, never.State())
}

// TestSequentialWorker_StopBeforeStartDiscardsStaged verifies staged tasks on early stop
// Given: a never-started worker holding staged tasks
// When: Stop is called
// Then: every staged task is discarded as worker-stopped
func TestSequentialWorker_StopBeforeStartDiscardsStaged(t *testing.T) {
	discards := newDiscardLog()
	w := NewSequentialWorker(identity, &recordingSink[int]{}, WithDiscardHandler(discards.handle))

	ids := []TaskID{w.Post(1), w.Post(2), w.Post(3)}
	w.Stop()
	waitStopped(t, w)

	assert.Equal(t, ids, discards.IDs())
	for _, id := range ids {
		reason, _ := discards.Reason(id)
		assert.Equal(t, DiscardWorkerStopped, reason)
	}
	assert.EqualValues(t, 3, w.Stats().Discarded)
}

// TestSequentialWorker_InFlightFinishesOnStop verifies finish-in-flight, drop-the-rest
// Given: a transform blocked on its first task with a second task queued behind it
// When: Stop is called and the first transform is then released
// Then: the first result is delivered and the second task is discarded
func TestSequentialWorker_InFlightFinishesOnStop(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	sink := &recordingSink[int]{}
	discards := newDiscardLog()

	w := NewSequentialWorker(func(_ context.Context, in int) (int, error) {
		if in == 1 {
			close(entered)
			<-release
		}
		return in, nil
	}, sink, WithDiscardHandler(discards.handle))
	require.NoError(t, w.Start())

	first := w.Post(1)
	second := w.Post(2)
	<-entered

	w.Stop()
	close(release)
	waitStopped(t, w)

	results := sink.Results()
	require.Len(t, results, 1)
	assert.Equal(t, first, results[0].ID)

	reason, ok := discards.Reason(second)
	require.True(t, ok)
	assert.Equal(t, DiscardWorkerStopped, reason)
}

// TestSequentialWorker_TransformErrorDeliveredAsFailed verifies the failure policy
// Given: a transform that fails for odd inputs
// When: several tasks are submitted
// Then: failed tasks come back as failed results wrapping ErrTransformFailed and the
// loop keeps processing the rest
func TestSequentialWorker_TransformErrorDeliveredAsFailed(t *testing.T) {
	errOdd := errors.New("odd input")
	sink := &recordingSink[int]{}
	w := NewSequentialWorker(func(_ context.Context, in int) (int, error) {
		if in%2 == 1 {
			return in, errOdd
		}
		return in, nil
	}, sink)
	require.NoError(t, w.Start())
	defer w.Stop()

	for i := range 4 {
		w.Post(i)
	}
	require.Eventually(t, func() bool { return sink.Len() == 4 }, time.Second, time.Millisecond)

	results := sink.Results()
	for i, r := range results {
		if i%2 == 1 {
			require.True(t, r.Failed())
			assert.ErrorIs(t, r.Err, ErrTransformFailed)
			assert.ErrorIs(t, r.Err, errOdd)
			var te *TransformError
			require.ErrorAs(t, r.Err, &te)
			assert.Equal(t, r.ID, te.TaskID)
			assert.Zero(t, r.Output)
		} else {
			assert.False(t, r.Failed())
			assert.Equal(t, i, r.Output)
		}
	}
	assert.EqualValues(t, 2, w.Stats().Failed)
}

// TestSequentialWorker_TransformPanicRecovered verifies panics do not kill the loop
// Given: a transform that panics on its first call
// When: two tasks are submitted
// Then: the first result carries a PanicError and the second runs normally
func TestSequentialWorker_TransformPanicRecovered(t *testing.T) {
	sink := &recordingSink[int]{}
	w := NewSequentialWorker(func(_ context.Context, in int) (int, error) {
		if in == 0 {
			panic("boom")
		}
		return in, nil
	}, sink)
	require.NoError(t, w.Start())
	defer w.Stop()

	w.Post(0)
	w.Post(1)
	require.Eventually(t, func() bool { return sink.Len() == 2 }, time.Second, time.Millisecond)

	results := sink.Results()
	var pe *PanicError
	require.ErrorAs(t, results[0].Err, &pe)
	assert.Equal(t, "boom", pe.Value)
	assert.NotEmpty(t, pe.StackTrace)
	assert.ErrorIs(t, results[0].Err, ErrTransformFailed)

	assert.NoError(t, results[1].Err)
	assert.Equal(t, 1, results[1].Output)
}

// TestSequentialWorker_SinkPanicRecovered verifies a panicking sink does not strand the queue
// Given: a sink that panics on the first delivery
// When: two tasks are submitted
// Then: the second result is still delivered
func TestSequentialWorker_SinkPanicRecovered(t *testing.T) {
	var calls atomic.Int32
	var last atomic.Int64
	w := NewSequentialWorker(identity, SinkFunc[int](func(r Result[int]) {
		if calls.Add(1) == 1 {
			panic("sink exploded")
		}
		last.Store(int64(r.Output))
	}))
	require.NoError(t, w.Start())
	defer w.Stop()

	w.Post(1)
	w.Post(2)

	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, time.Millisecond)
	assert.EqualValues(t, 2, last.Load())
}

// TestSequentialWorker_PrepareFailure verifies startup failure handling
// Given: a worker whose prepare step fails and which holds staged tasks
// When: Start is called
// Then: the worker stops, staged tasks are discarded as startup-failed and later
// submissions are discarded as submitted-after-stop
func TestSequentialWorker_PrepareFailure(t *testing.T) {
	discards := newDiscardLog()
	sink := &recordingSink[int]{}
	w := NewSequentialWorker(identity, sink,
		WithPrepare(func(context.Context) error { return fmt.Errorf("no looper") }),
		WithDiscardHandler(discards.handle))

	staged := w.Post(1)
	require.NoError(t, w.Start())
	waitStopped(t, w)

	reason, ok := discards.Reason(staged)
	require.True(t, ok)
	assert.Equal(t, DiscardStartupFailed, reason)

	late := w.Post(2)
	reason, ok = discards.Reason(late)
	require.True(t, ok)
	assert.Equal(t, DiscardSubmittedAfterStop, reason)
	assert.Equal(t, 0, sink.Len())
}

// TestSequentialWorker_StopDuringPrepare verifies Stop while the worker is still starting
// Given: a prepare step that waits for its context and staged tasks
// When: Stop is called before the worker is ready
// Then: staged tasks are discarded as worker-stopped and the worker reaches StateStopped
func TestSequentialWorker_StopDuringPrepare(t *testing.T) {
	discards := newDiscardLog()
	entered := make(chan struct{})
	w := NewSequentialWorker(identity, &recordingSink[int]{},
		WithPrepare(func(ctx context.Context) error {
			close(entered)
			<-ctx.Done()
			return ctx.Err()
		}),
		WithDiscardHandler(discards.handle))

	require.NoError(t, w.Start())
	<-entered
	id := w.Post(7)
	w.Stop()
	waitStopped(t, w)

	reason, ok := discards.Reason(id)
	require.True(t, ok)
	assert.Equal(t, DiscardWorkerStopped, reason)
}

// TestSequentialWorker_CurrentWorkerName verifies the transform context
// Given: a worker named "cipher"
// When: its transform inspects the context
// Then: CurrentWorkerName returns the worker name and the context is not cancelled
func TestSequentialWorker_CurrentWorkerName(t *testing.T) {
	type seen struct {
		name string
		err  error
	}
	sink := &recordingSink[seen]{}
	w := NewSequentialWorker(func(ctx context.Context, _ int) (seen, error) {
		return seen{name: CurrentWorkerName(ctx), err: ctx.Err()}, nil
	}, sink, WithName("cipher"))
	require.NoError(t, w.Start())
	defer w.Stop()

	w.Post(0)
	require.Eventually(t, func() bool { return sink.Len() == 1 }, time.Second, time.Millisecond)

	got := sink.Results()[0].Output
	assert.Equal(t, "cipher", got.name)
	assert.NoError(t, got.err)
	assert.Equal(t, "cipher", w.Name())
}

// TestSequentialWorker_StatsAndHistory verifies observability state
// Given: a worker that processed three tasks
// When: Stats and RecentExecutions are read
// Then: counters and the newest-first history reflect the executions
func TestSequentialWorker_StatsAndHistory(t *testing.T) {
	sink := &recordingSink[int]{}
	w := NewSequentialWorker(identity, sink, WithName("stats"), WithHistoryCapacity(2))
	require.NoError(t, w.Start())
	defer w.Stop()

	ids := []TaskID{w.Post(1), w.Post(2), w.Post(3)}
	require.Eventually(t, func() bool { return sink.Len() == 3 }, time.Second, time.Millisecond)

	stats := w.Stats()
	assert.Equal(t, "stats", stats.Name)
	assert.Equal(t, StateReady, stats.State)
	assert.EqualValues(t, 3, stats.Delivered)
	assert.Zero(t, stats.Failed)
	assert.Zero(t, stats.Pending)
	assert.False(t, stats.LastTaskAt.IsZero())

	recent := w.RecentExecutions(0)
	require.Len(t, recent, 2)
	assert.Equal(t, ids[2], recent[0].TaskID)
	assert.Equal(t, ids[1], recent[1].TaskID)
	assert.Equal(t, "stats", recent[0].WorkerName)
}

// TestNewSequentialWorker_NilArguments verifies constructor guards
func TestNewSequentialWorker_NilArguments(t *testing.T) {
	assert.Panics(t, func() { NewSequentialWorker[int, int](nil, &recordingSink[int]{}) })
	assert.Panics(t, func() { NewSequentialWorker[int, int](identity, nil) })
}
