package messagelist

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/Swind/go-seqworker/cipher"
	"github.com/Swind/go-seqworker/core"
)

// Observer is notified, on the control loop, whenever the list changes.
type Observer interface {
	EntryInserted(index int, entry Entry)
	EntryChanged(index int, entry Entry)
}

// DefectHandler receives errors that indicate a bug in the host. It runs on the control loop.
type DefectHandler func(ctx context.Context, err error)

// PanicOnDefect is the default DefectHandler. The panic is recovered by the control
// loop and reported through its PanicHandler with a stack trace.
func PanicOnDefect(_ context.Context, err error) {
	panic(err)
}

type nopObserver struct{}

func (nopObserver) EntryInserted(int, Entry) {}
func (nopObserver) EntryChanged(int, Entry)  {}

// Option configures a Host.
type Option func(*hostOptions)

type hostOptions struct {
	logger       *slog.Logger
	observer     Observer
	onDefect     DefectHandler
	panicHandler core.PanicHandler
	workerOpts   []core.Option
}

// WithLogger sets the logger used by the host, its worker and its control loop.
func WithLogger(logger *slog.Logger) Option {
	return func(o *hostOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithObserver registers the list observer.
func WithObserver(observer Observer) Option {
	return func(o *hostOptions) {
		if observer != nil {
			o.observer = observer
		}
	}
}

// WithDefectHandler overrides how lookup failures and duplicate keys are escalated after being logged.
func WithDefectHandler(fn DefectHandler) Option {
	return func(o *hostOptions) {
		if fn != nil {
			o.onDefect = fn
		}
	}
}

// WithPanicHandler sets the control loop's panic handler.
func WithPanicHandler(h core.PanicHandler) Option {
	return func(o *hostOptions) {
		o.panicHandler = h
	}
}

// WithWorkerOptions passes options through to the background worker.
func WithWorkerOptions(opts ...core.Option) Option {
	return func(o *hostOptions) {
		o.workerOpts = append(o.workerOpts, opts...)
	}
}

// Host owns a message list on a control loop and encrypts new entries on a
// sequential background worker.
//
// All list mutations happen on the control loop; Insert refuses to run anywhere else.
type Host struct {
	logger   *slog.Logger
	observer Observer
	onDefect DefectHandler

	loop   *core.ControlLoop
	sink   *core.LoopSink[cipher.Message]
	worker *core.SequentialWorker[cipher.Message, cipher.Message]

	// list is only accessed on loop.
	list List
}

// NewHost builds a host around transform. The control loop starts immediately;
// the worker starts on Start.
func NewHost(transform core.TransformFunc[cipher.Message, cipher.Message], opts ...Option) *Host {
	o := hostOptions{
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		observer: nopObserver{},
		onDefect: PanicOnDefect,
	}
	for _, opt := range opts {
		opt(&o)
	}

	h := &Host{
		logger:   o.logger.With("component", "messagelist"),
		observer: o.observer,
		onDefect: o.onDefect,
	}

	loopOpts := []core.LoopOption{core.WithLoopName("messagelist"), core.WithLoopLogger(o.logger)}
	if o.panicHandler != nil {
		loopOpts = append(loopOpts, core.WithPanicHandler(o.panicHandler))
	}
	h.loop = core.NewControlLoop(loopOpts...)
	h.sink = core.NewLoopSink(h.loop, h.update)

	workerOpts := append([]core.Option{core.WithName("encrypter"), core.WithLogger(o.logger)}, o.workerOpts...)
	h.worker = core.NewSequentialWorker(transform, core.CompletionSink[cipher.Message](h.sink), workerOpts...)

	return h
}

// Start launches the background worker. Messages pushed before Start are staged.
func (h *Host) Start() error {
	if err := h.worker.Start(); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	h.logger.Info("host started")
	return nil
}

// Stop stops the worker and then the control loop. A result still in flight when
// the loop goes away is dropped.
func (h *Host) Stop() {
	h.worker.Stop()
	h.loop.Stop()
	h.logger.Info("host stopped", "dropped_results", h.sink.Dropped())
}

// Wait blocks until the worker has fully stopped.
func (h *Host) Wait(ctx context.Context) error {
	return h.worker.Wait(ctx)
}

// Push generates a random message and inserts it from the control loop.
func (h *Host) Push() (cipher.Message, error) {
	return h.PushText(cipher.Generate().PlainText)
}

// PushText inserts a new message with the given text from the control loop.
// It returns once the insert has been queued, not when it has run.
func (h *Host) PushText(text string) (cipher.Message, error) {
	msg := cipher.NewMessage(text)
	posted := h.loop.PostTask(func(ctx context.Context) {
		if _, err := h.Insert(ctx, msg); err != nil {
			h.logger.ErrorContext(ctx, "insert failed", "key", msg.Key, "error", err)
		}
	})
	if !posted {
		return msg, core.ErrLoopClosed
	}
	return msg, nil
}

// Insert appends a pending entry for msg and submits it for encryption. It must be
// called on the control loop. The task's submission time is taken here.
// A key already in the list is a defect: nothing is submitted and a
// *DuplicateKeyError is logged, passed to the defect handler and returned.
func (h *Host) Insert(ctx context.Context, msg cipher.Message) (int, error) {
	if !core.IsControlThread(ctx, h.loop) {
		return -1, ErrNotOnControlLoop
	}
	if existing := h.list.IndexOf(msg.Key); existing >= 0 {
		err := &DuplicateKeyError{Key: msg.Key, Index: existing}
		h.logger.ErrorContext(ctx, "duplicate message key", "key", msg.Key, "index", existing)
		h.onDefect(ctx, err)
		return -1, err
	}

	entry := Entry{Message: msg, Status: StatusPending}
	idx := h.list.Append(entry)
	h.observer.EntryInserted(idx, entry)

	h.worker.Submit(core.NewTask(msg.Key, msg))
	h.logger.DebugContext(ctx, "message submitted", "key", msg.Key, "index", idx)
	return idx, nil
}

// update applies a worker result to the matching entry. It runs on the control loop.
func (h *Host) update(ctx context.Context, result core.Result[cipher.Message]) {
	idx := h.list.IndexOf(result.ID)
	if idx < 0 {
		err := &LookupError{Key: result.ID}
		h.logger.ErrorContext(ctx, "result for unknown entry", "key", result.ID, "error", err)
		h.onDefect(ctx, err)
		return
	}

	entry := h.list.At(idx)
	entry.ElapsedMillis = result.ElapsedMillis()
	if result.Failed() {
		entry.Status = StatusFailed
		entry.Err = result.Err
	} else {
		entry.Message = result.Output
		entry.Status = StatusEncrypted
	}
	h.list.Set(idx, entry)
	h.observer.EntryChanged(idx, entry)
}

// Snapshot returns a copy of the list, read on the control loop.
func (h *Host) Snapshot(ctx context.Context) ([]Entry, error) {
	return core.RunOnLoop(ctx, h.loop, func(context.Context) []Entry {
		return h.list.Entries()
	})
}

// ClearDone removes finished entries. Pending entries stay so their results still
// find them.
func (h *Host) ClearDone(ctx context.Context) (int, error) {
	return core.RunOnLoop(ctx, h.loop, func(context.Context) int {
		return h.list.RemoveDone()
	})
}

// WaitIdle blocks until every task already posted to the control loop has run.
func (h *Host) WaitIdle(ctx context.Context) error {
	return h.loop.WaitIdle(ctx)
}

// Stats returns the background worker's stats.
func (h *Host) Stats() core.WorkerStats {
	return h.worker.Stats()
}

// RecentExecutions returns the worker's most recent executions, newest first.
func (h *Host) RecentExecutions(limit int) []core.ExecutionRecord {
	return h.worker.RecentExecutions(limit)
}
