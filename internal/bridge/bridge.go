package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ygrebnov/errorc"
)

// defaultIdleWait bounds how long the worker parks on an empty queue
// before waking for housekeeping. Facade timeouts are unrelated to this
// granularity: a queued call is picked up as soon as the worker is free.
const defaultIdleWait = 60 * time.Second

// Sentinel errors surfaced by Do. All are degraded conditions for the
// caller, never reasons to fail the worker.
var (
	// ErrNotReady means the engine was never initialized; the call was
	// rejected before touching the queue.
	ErrNotReady = errors.New("backend not initialized")

	// ErrClosed means Close was already called.
	ErrClosed = errors.New("bridge closed")

	// ErrTimeout means the caller's wait budget elapsed. The operation
	// still executes; its result is discarded.
	ErrTimeout = errors.New("operation timed out")
)

// Backend is the lifecycle contract the worker drives. Both methods are
// invoked only from the worker goroutine.
type Backend interface {
	Initialize() error
	Close() error
}

// Operation is one unit of backend work: a name for diagnostics plus
// the call to execute. Immutable once constructed.
type Operation[E Backend] struct {
	Name string
	Fn   func(engine E) (any, error)
}

// pendingCall tracks one in-flight Operation. The submitting goroutine
// owns it until it crosses into the queue; after that only the worker
// writes result and err, exactly once, before closing done.
type pendingCall[E Backend] struct {
	op     Operation[E]
	done   chan struct{}
	result any
	err    error
}

// Bridge owns the single worker goroutine and the dispatch queue.
type Bridge[E Backend] struct {
	construct func() E
	logger    *slog.Logger
	calls     *queue[*pendingCall[E]]
	idleWait  time.Duration

	ready  atomic.Bool
	closed atomic.Bool

	initDone chan struct{}
	initErr  error

	startOnce sync.Once
	closeOnce sync.Once
}

// Option configures a Bridge.
type Option[E Backend] func(*Bridge[E])

// WithIdleWait overrides the worker's empty-queue wake-up interval.
func WithIdleWait[E Backend](d time.Duration) Option[E] {
	return func(b *Bridge[E]) {
		if d > 0 {
			b.idleWait = d
		}
	}
}

// New creates a Bridge around the engine produced by construct. The
// engine is built and initialized lazily, inside the worker goroutine,
// on the first Start.
func New[E Backend](construct func() E, logger *slog.Logger, opts ...Option[E]) *Bridge[E] {
	b := &Bridge[E]{
		construct: construct,
		logger:    logger,
		calls:     newQueue[*pendingCall[E]](),
		idleWait:  defaultIdleWait,
		initDone:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start launches the worker goroutine. Subsequent calls are no-ops.
func (b *Bridge[E]) Start() {
	b.startOnce.Do(func() {
		go b.workerLoop()
	})
}

// Ready reports whether the engine initialized successfully.
func (b *Bridge[E]) Ready() bool {
	return b.ready.Load()
}

// WaitReady blocks until the worker finished its initialization attempt
// or ctx expires. It returns the initialization error, if any.
func (b *Bridge[E]) WaitReady(ctx context.Context) error {
	select {
	case <-b.initDone:
		return b.initErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// QueueDepth reports the number of calls waiting for the worker.
func (b *Bridge[E]) QueueDepth() int {
	return b.calls.len()
}

// Do submits op and waits for its result up to timeout. When the bridge
// is not ready or already closed it fails fast without enqueuing. On
// timeout the call stays queued: the worker executes it anyway and the
// result goes nowhere.
func (b *Bridge[E]) Do(ctx context.Context, op Operation[E], timeout time.Duration) (any, error) {
	if b.closed.Load() {
		operationsTotal.WithLabelValues(op.Name, outcomeClosed).Inc()
		return nil, errorc.With(ErrClosed, errorc.String("operation", op.Name))
	}
	if !b.ready.Load() {
		operationsTotal.WithLabelValues(op.Name, outcomeNotReady).Inc()
		return nil, errorc.With(ErrNotReady, errorc.String("operation", op.Name))
	}

	call := &pendingCall[E]{op: op, done: make(chan struct{})}
	b.calls.enqueue(call)
	queueDepth.Set(float64(b.calls.len()))

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-call.done:
		if call.err != nil {
			operationsTotal.WithLabelValues(op.Name, outcomeError).Inc()
			return nil, call.err
		}
		operationsTotal.WithLabelValues(op.Name, outcomeOK).Inc()
		return call.result, nil
	case <-timer.C:
		b.logger.Warn("bridge operation timed out",
			"operation", op.Name,
			"timeout", timeout,
			"queue_depth", b.calls.len(),
		)
		operationsTotal.WithLabelValues(op.Name, outcomeTimeout).Inc()
		return nil, errorc.With(ErrTimeout, errorc.String("operation", op.Name))
	case <-ctx.Done():
		operationsTotal.WithLabelValues(op.Name, outcomeCanceled).Inc()
		return nil, ctx.Err()
	}
}

// Close requests worker shutdown by enqueuing the poison sentinel. All
// calls queued before it still drain; the engine is closed by the worker
// after the sentinel is consumed. Close is idempotent and safe even if
// the worker never started. Submissions racing Close are rejected with
// ErrClosed once the flag is visible; a submission that wins the race is
// served normally.
func (b *Bridge[E]) Close() {
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		b.calls.enqueue(nil)
	})
}

// workerLoop is the single consumer. It initializes the engine lazily,
// then serves calls until the sentinel arrives. A failing operation
// never terminates the loop; only the sentinel does.
func (b *Bridge[E]) workerLoop() {
	engine := b.construct()

	initErr := engine.Initialize()
	b.initErr = initErr
	if initErr != nil {
		b.logger.Error("engine initialization failed", "error", initErr)
	} else {
		b.ready.Store(true)
		b.logger.Info("engine initialized")
	}
	close(b.initDone)

	defer func() {
		b.ready.Store(false)
		if err := engine.Close(); err != nil {
			b.logger.Error("engine close failed", "error", err)
		}
		b.logger.Info("bridge worker stopped")
	}()

	for {
		call, ok := b.calls.dequeue(b.idleWait)
		if !ok {
			// Idle wake-up: refresh the gauge and keep waiting.
			queueDepth.Set(float64(b.calls.len()))
			continue
		}
		queueDepth.Set(float64(b.calls.len()))

		if call == nil {
			return
		}

		b.serve(engine, call, initErr)
	}
}

// serve executes one call, capturing failures into the call's error
// slot so they reach only the awaiting caller.
func (b *Bridge[E]) serve(engine E, call *pendingCall[E], initErr error) {
	defer close(call.done)
	defer func() {
		if r := recover(); r != nil {
			call.err = fmt.Errorf("%s: panic: %v", call.op.Name, r)
			b.logger.Error("engine operation panicked",
				"operation", call.op.Name,
				"panic", r,
			)
		}
	}()

	if initErr != nil {
		call.err = errorc.With(ErrNotReady, errorc.String("operation", call.op.Name))
		return
	}

	start := time.Now()
	result, err := call.op.Fn(engine)
	operationDuration.WithLabelValues(call.op.Name).Observe(time.Since(start).Seconds())

	if err != nil {
		call.err = fmt.Errorf("%s: %w", call.op.Name, err)
		b.logger.Error("engine operation failed",
			"operation", call.op.Name,
			"error", err,
		)
		return
	}
	call.result = result
}
