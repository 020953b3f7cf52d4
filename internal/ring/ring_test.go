package ring

import (
	"sync"
	"testing"

	"github.com/aw4Motion/CANopen4Drives/canbus"
	"github.com/stretchr/testify/require"
)

func TestPushPopOrder(t *testing.T) {
	r := New(4)
	require.True(t, r.Push(canbus.Frame{ID: 1}))
	require.True(t, r.Push(canbus.Frame{ID: 2}))

	f, ok := r.Pop()
	require.True(t, ok)
	require.Equal(t, uint16(1), f.ID)

	f, ok = r.Pop()
	require.True(t, ok)
	require.Equal(t, uint16(2), f.ID)

	_, ok = r.Pop()
	require.False(t, ok)
}

func TestPushFullDrops(t *testing.T) {
	r := New(MinCapacity)
	cap := len(r.buf)
	for i := 0; i < cap; i++ {
		require.True(t, r.Push(canbus.Frame{ID: uint16(i)}))
	}
	require.False(t, r.Push(canbus.Frame{ID: 999}))
	require.Equal(t, cap, r.Len())
}

func TestConcurrentProducerConsumer(t *testing.T) {
	r := New(64)
	const n = 10000
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			for !r.Push(canbus.Frame{ID: uint16(i % 0x800)}) {
			}
		}
	}()

	received := 0
	for received < n {
		if _, ok := r.Pop(); ok {
			received++
		}
	}
	wg.Wait()
}
