// Package bridge serializes access to a single-caller backend engine.
// Any number of goroutines submit operations; a single worker goroutine
// owns the engine and executes them one at a time in FIFO order. Callers
// wait for their own result with a per-operation timeout and are never
// blocked by the scheduler beyond their natural queue position.
//
// A timed-out call is not cancelled: the worker still executes it and
// the result is discarded. One slow backend call degrades only its own
// caller, never the worker or the queue.
package bridge
