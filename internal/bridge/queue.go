package bridge

import (
	"sync"
	"time"
)

// queue is an unbounded FIFO for many producers and a single consumer.
// Producers never block. The consumer waits with a bound so it can
// perform idle housekeeping instead of parking forever.
type queue[T any] struct {
	mu    sync.Mutex
	items []T
	wake  chan struct{}
}

func newQueue[T any]() *queue[T] {
	return &queue[T]{wake: make(chan struct{}, 1)}
}

// enqueue appends item and nudges the consumer. It never blocks.
func (q *queue[T]) enqueue(item T) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// dequeue returns the next item in FIFO order. If the queue stays empty
// for the whole wait duration, it returns ok=false.
func (q *queue[T]) dequeue(wait time.Duration) (item T, ok bool) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item = q.items[0]
			var zero T
			q.items[0] = zero
			q.items = q.items[1:]
			if len(q.items) == 0 {
				q.items = nil
			}
			q.mu.Unlock()
			return item, true
		}
		q.mu.Unlock()

		select {
		case <-q.wake:
		case <-timer.C:
			return item, false
		}
	}
}

// len reports the number of queued items.
func (q *queue[T]) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
