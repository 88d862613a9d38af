package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeterministicClock(t *testing.T) {
	clock := NewDeterministicClock()
	assert.Zero(t, clock.Current())

	assert.Equal(t, int64(1), clock.Next())
	assert.Equal(t, int64(2), clock.Next())
	assert.Equal(t, int64(2), clock.Current())

	clock.Reset()
	assert.Zero(t, clock.Current())
	assert.Equal(t, int64(1), clock.Next(), "first value after reset")
}

func TestDeterministicClockConcurrent(t *testing.T) {
	clock := NewDeterministicClock()
	const workers, calls = 20, 50

	var (
		mu   sync.Mutex
		seen = make(map[int64]bool)
		wg   sync.WaitGroup
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < calls; j++ {
				v := clock.Next()
				mu.Lock()
				seen[v] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*calls, "every value is unique")
	assert.Equal(t, int64(workers*calls), clock.Current())
}

func TestFixedLabels(t *testing.T) {
	gen := NewFixedLabels("alpha", "beta")
	assert.Equal(t, "alpha", gen.Generate())
	assert.Equal(t, "beta", gen.Generate())
	assert.Equal(t, "beta-3", gen.Generate())

	empty := NewFixedLabels()
	assert.Equal(t, "session-1", empty.Generate())
	assert.Equal(t, "session-2", empty.Generate())
}

func TestBufferLogger(t *testing.T) {
	logger, buf := BufferLogger()
	logger.Debug("hello", "k", "v")
	assert.Contains(t, buf.String(), "msg=hello")
	assert.Contains(t, buf.String(), "k=v")

	DiscardLogger().Error("dropped")
}
