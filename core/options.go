package core

import (
	"context"
	"io"
	"log/slog"
)

const defaultWorkerName = "seqworker"

// Option configures a SequentialWorker.
type Option func(*workerOptions)

type workerOptions struct {
	name            string
	logger          *slog.Logger
	metrics         Metrics
	historyCapacity int
	prepare         func(ctx context.Context) error
	onDiscard       func(id TaskID, reason DiscardReason)
}

func defaultWorkerOptions() workerOptions {
	return workerOptions{
		name:            defaultWorkerName,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics:         &NilMetrics{},
		historyCapacity: defaultHistoryCapacity,
	}
}

// WithName sets the worker name used in logs, metrics and CurrentWorkerName.
func WithName(name string) Option {
	return func(o *workerOptions) {
		if name != "" {
			o.name = name
		}
	}
}

// WithLogger sets the structured logger. By default the worker logs nowhere.
func WithLogger(logger *slog.Logger) Option {
	return func(o *workerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder. Defaults to NilMetrics.
func WithMetrics(metrics Metrics) Option {
	return func(o *workerOptions) {
		if metrics != nil {
			o.metrics = metrics
		}
	}
}

// WithHistoryCapacity sets how many executions RecentExecutions remembers.
func WithHistoryCapacity(n int) Option {
	return func(o *workerOptions) {
		o.historyCapacity = n
	}
}

// WithPrepare installs a setup step that runs on the worker goroutine before it
// accepts tasks into its live queue. Tasks submitted meanwhile are staged.
// If prepare returns an error the worker stops and staged tasks are discarded.
func WithPrepare(prepare func(ctx context.Context) error) Option {
	return func(o *workerOptions) {
		o.prepare = prepare
	}
}

// WithDiscardHandler installs a callback invoked for every task dropped without a Result.
// It may run on the worker goroutine or on the goroutine calling Submit or Stop.
func WithDiscardHandler(fn func(id TaskID, reason DiscardReason)) Option {
	return func(o *workerOptions) {
		o.onDiscard = fn
	}
}

// =============================================================================
// ControlLoop options
// =============================================================================

// LoopOption configures a ControlLoop.
type LoopOption func(*loopOptions)

type loopOptions struct {
	name         string
	logger       *slog.Logger
	panicHandler PanicHandler
}

// WithLoopName sets the control loop name.
func WithLoopName(name string) LoopOption {
	return func(o *loopOptions) {
		if name != "" {
			o.name = name
		}
	}
}

// WithLoopLogger sets the loop logger; it is also used by the default panic handler.
func WithLoopLogger(logger *slog.Logger) LoopOption {
	return func(o *loopOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithPanicHandler overrides how panics in posted tasks are reported.
func WithPanicHandler(h PanicHandler) LoopOption {
	return func(o *loopOptions) {
		if h != nil {
			o.panicHandler = h
		}
	}
}
