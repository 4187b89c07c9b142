package load

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus_NonBlockingPublish(t *testing.T) {
	bus := NewEventBus()
	slow := bus.Subscribe(1)
	fast := bus.Subscribe(10)

	for i := 1; i <= 3; i++ {
		bus.Publish(Event{Kind: EventUserCompleted, UserID: i})
	}
	assert.Equal(t, int64(2), bus.Dropped())

	bus.Close()
	assert.Equal(t, []Event{{Kind: EventUserCompleted, UserID: 1}}, drain(slow))
	assert.Len(t, drain(fast), 3)

	bus.Publish(Event{Kind: EventTestCompleted})
	bus.Close()
	_, ok := <-bus.Subscribe(1)
	assert.False(t, ok, "subscribing to a closed bus yields a closed channel")
}

func TestEventBus_ConcurrentPublishers(t *testing.T) {
	bus := NewEventBus()
	ch := bus.Subscribe(1000)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				bus.Publish(Event{Kind: EventSystemStress})
			}
		}()
	}
	wg.Wait()
	bus.Close()
	require.Len(t, drain(ch), 500)
	assert.Zero(t, bus.Dropped())
}
