package bridge

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueFIFO(t *testing.T) {
	q := newQueue[int]()
	for i := 0; i < 10; i++ {
		q.enqueue(i)
	}

	for i := 0; i < 10; i++ {
		item, ok := q.dequeue(time.Second)
		require.True(t, ok)
		assert.Equal(t, i, item)
	}
	assert.Equal(t, 0, q.len())
}

func TestQueueDequeueTimeout(t *testing.T) {
	q := newQueue[int]()

	start := time.Now()
	_, ok := q.dequeue(20 * time.Millisecond)
	elapsed := time.Since(start)

	assert.False(t, ok)
	assert.GreaterOrEqual(t, elapsed, 20*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
}

func TestQueueWakesBlockedConsumer(t *testing.T) {
	q := newQueue[string]()

	done := make(chan string, 1)
	go func() {
		item, ok := q.dequeue(5 * time.Second)
		if ok {
			done <- item
		}
	}()

	time.Sleep(20 * time.Millisecond)
	q.enqueue("hello")

	select {
	case item := <-done:
		assert.Equal(t, "hello", item)
	case <-time.After(time.Second):
		t.Fatal("consumer did not wake on enqueue")
	}
}

func TestQueueConcurrentProducers(t *testing.T) {
	q := newQueue[int]()

	const producers = 16
	const perProducer = 50

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.enqueue(i)
			}
		}()
	}
	wg.Wait()

	// Single consumer drains everything without loss.
	seen := 0
	for {
		_, ok := q.dequeue(50 * time.Millisecond)
		if !ok {
			break
		}
		seen++
	}
	assert.Equal(t, producers*perProducer, seen)
}
