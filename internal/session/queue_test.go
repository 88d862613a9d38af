package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueuePushPop(t *testing.T) {
	q := newQueue[int]()

	for i := 1; i <= 3; i++ {
		require.True(t, q.Push(i))
	}
	assert.Equal(t, 3, q.Len())

	for want := 1; want <= 3; want++ {
		got, ok := q.TryPop()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
	_, ok := q.TryPop()
	assert.False(t, ok, "pop from empty queue")
}

func TestQueueDrain(t *testing.T) {
	q := newQueue[string]()

	items, ok := q.Drain()
	assert.True(t, ok)
	assert.Empty(t, items)

	q.Push("a")
	q.Push("b")
	items, ok = q.Drain()
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, items)
	assert.Zero(t, q.Len())

	q.Push("c")
	items, _ = q.Drain()
	assert.Equal(t, []string{"c"}, items)
}

func TestQueueClose(t *testing.T) {
	q := newQueue[int]()
	q.Push(1)
	q.Close()
	q.Close()

	assert.True(t, q.Closed())
	assert.False(t, q.Push(2), "push after close")

	v, ok := q.TryPop()
	require.True(t, ok, "items queued before close remain")
	assert.Equal(t, 1, v)

	_, ok = q.Drain()
	assert.False(t, ok)

	select {
	case <-q.Wait():
	default:
		t.Fatal("wait channel should be closed")
	}
}

func TestQueueWaitSignals(t *testing.T) {
	q := newQueue[int]()
	done := make(chan int)

	go func() {
		for {
			if v, ok := q.TryPop(); ok {
				done <- v
				return
			}
			<-q.Wait()
		}
	}()

	time.Sleep(10 * time.Millisecond)
	q.Push(42)

	select {
	case v := <-done:
		assert.Equal(t, 42, v)
	case <-time.After(time.Second):
		t.Fatal("consumer never woke")
	}
}

func TestQueueConcurrentPush(t *testing.T) {
	q := newQueue[int]()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				q.Push(i)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 800, q.Len())
}
