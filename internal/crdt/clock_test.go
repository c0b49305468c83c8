package crdt

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLamportClock(t *testing.T) {
	clock := NewLamportClock()

	require.NotNil(t, clock)
	assert.Equal(t, int64(0), clock.Timestamp(), "Initial counter should be 0")
	assert.NotEmpty(t, clock.ReplicaID(), "ReplicaID should not be empty")
}

func TestNewLamportClockWithReplicaID(t *testing.T) {
	clock := NewLamportClockWithReplicaID("replica-1", 41)

	assert.Equal(t, "replica-1", clock.ReplicaID())
	assert.Equal(t, int64(41), clock.Timestamp())
	assert.Equal(t, int64(42), clock.Tick(), "restored clock continues from saved counter")
}

func TestLamportClock_Observe(t *testing.T) {
	tests := []struct {
		name     string
		local    int64
		remote   int64
		expected int64
	}{
		{name: "remote ahead", local: 3, remote: 10, expected: 11},
		{name: "remote behind", local: 10, remote: 3, expected: 11},
		{name: "equal", local: 5, remote: 5, expected: 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := NewLamportClockWithReplicaID("r", tt.local)
			assert.Equal(t, tt.expected, clock.Observe(tt.remote))
			assert.Equal(t, tt.expected, clock.Timestamp())
		})
	}
}

func TestLamportClock_ConcurrentTick(t *testing.T) {
	clock := NewLamportClock()

	const goroutines = 50
	const ticks = 100

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < ticks; j++ {
				clock.Tick()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(goroutines*ticks), clock.Timestamp())
}
