package events

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus() *Bus {
	return NewBus(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestBus_FiltersByType(t *testing.T) {
	bus := newTestBus()

	var got []Type
	bus.Subscribe(func(e Event) { got = append(got, e.Type()) }, TypeNodeCreated, TypeNodeDeleted)

	bus.Publish(NodeCreated{})
	bus.Publish(ChangeCreated{})
	bus.Publish(NodeDeleted{NodeID: "n1"})

	assert.Equal(t, []Type{TypeNodeCreated, TypeNodeDeleted}, got)
}

func TestBus_AllTypesWhenNoneGiven(t *testing.T) {
	bus := newTestBus()

	count := 0
	bus.Subscribe(func(Event) { count++ })

	bus.Publish(NodeCreated{})
	bus.Publish(RadarDataUpdated{})

	assert.Equal(t, 2, count)
}

func TestBus_Cancel(t *testing.T) {
	bus := newTestBus()

	count := 0
	cancel := bus.Subscribe(func(Event) { count++ })

	bus.Publish(NodeCreated{})
	cancel()
	cancel()
	bus.Publish(NodeCreated{})

	assert.Equal(t, 1, count)
}

func TestBus_NestedPublishIsQueued(t *testing.T) {
	bus := newTestBus()

	var order []string
	bus.Subscribe(func(e Event) {
		order = append(order, "start:"+string(e.Type()))
		if e.Type() == TypeNodeCreated {
			bus.Publish(RadarDataUpdated{})
		}
		order = append(order, "end:"+string(e.Type()))
	})

	bus.Publish(NodeCreated{})

	assert.Equal(t, []string{
		"start:node_created",
		"end:node_created",
		"start:radar_data_updated",
		"end:radar_data_updated",
	}, order)
}

func TestBus_PanicDoesNotStopDelivery(t *testing.T) {
	bus := newTestBus()

	bus.Subscribe(func(Event) { panic("boom") })
	delivered := false
	bus.Subscribe(func(Event) { delivered = true })

	require.NotPanics(t, func() { bus.Publish(NodeCreated{}) })
	assert.True(t, delivered)
}

func TestBus_ConcurrentPublishDeliversAll(t *testing.T) {
	bus := newTestBus()

	var (
		mu    sync.Mutex
		count int
	)
	bus.Subscribe(func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish(ChangeCreated{})
		}()
	}
	wg.Wait()

	// Все Publish вернулись; последний доставщик опустошил очередь
	bus.mu.Lock()
	delivering := bus.delivering
	bus.mu.Unlock()
	require.False(t, delivering)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 50, count)
}
