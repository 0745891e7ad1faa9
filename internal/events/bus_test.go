package events

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublishDeliversToSubscribers(t *testing.T) {
	bus := NewBus()

	var got []*Event
	bus.Subscribe(UniverseUpdated, func(e *Event) {
		got = append(got, e)
	})

	bus.Publish(UniverseUpdated, 42)
	bus.Publish(RecommendationUpdated, "ignored by this subscriber")

	assert.Len(t, got, 1)
	assert.Equal(t, UniverseUpdated, got[0].Type)
	assert.Equal(t, 42, got[0].Data)
	assert.False(t, got[0].Timestamp.IsZero())
}

func TestPublishWithoutSubscribersIsNoop(t *testing.T) {
	bus := NewBus()
	assert.NotPanics(t, func() {
		bus.Publish(SnapshotUpdated, nil)
	})
}

func TestMultipleSubscribers(t *testing.T) {
	bus := NewBus()

	count := 0
	bus.Subscribe(SymbolSwitched, func(e *Event) { count++ })
	bus.Subscribe(SymbolSwitched, func(e *Event) { count++ })

	bus.Publish(SymbolSwitched, "ETH")
	assert.Equal(t, 2, count)
}

func TestConcurrentPublishAndSubscribe(t *testing.T) {
	bus := NewBus()

	var mu sync.Mutex
	seen := 0
	bus.Subscribe(UniverseUpdated, func(e *Event) {
		mu.Lock()
		seen++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				bus.Publish(UniverseUpdated, j)
			}
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 800, seen)
}
