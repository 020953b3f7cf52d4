package master

import (
	"testing"

	"github.com/aw4Motion/CANopen4Drives/canbus"
	"github.com/stretchr/testify/require"
)

func newTestSyncRouter(t *testing.T) *Router {
	broker := canbus.NewVirtualBroker()
	bus := broker.Open()
	require.NoError(t, bus.Open())
	return NewRouter(bus, 32, nil)
}

func TestSyncEmitsOnlyWhenOperational(t *testing.T) {
	r := newTestSyncRouter(t)
	sync := NewSync(r, 0x7F, 100, 0)

	require.Equal(t, SyncIdle, sync.Update(0))
	sync.SetOperational(true)
	require.Equal(t, SyncSent, sync.Update(0))
	require.Equal(t, SyncIdle, sync.Update(50))
	require.Equal(t, SyncSent, sync.Update(100))
}

func TestProducerHeartbeatIndependentOfSync(t *testing.T) {
	r := newTestSyncRouter(t)
	sync := NewSync(r, 0x7F, 0, 200)

	require.Equal(t, SyncIdle, sync.Update(0))
	require.Equal(t, SyncIdle, sync.Update(200))
}

func TestSendStartNodesBroadcastsToNodeZero(t *testing.T) {
	broker := canbus.NewVirtualBroker()
	bus := broker.Open()
	require.NoError(t, bus.Open())
	peer := broker.Open()
	require.NoError(t, peer.Open())
	var got []canbus.Frame
	peer.SetEventHandler(func(event canbus.Event, frame canbus.Frame) {
		if event == canbus.EventRxComplete {
			got = append(got, frame)
		}
	})

	sync := NewSync(NewRouter(bus, 32, nil), 1, 100, 0)
	ok, err := sync.SendStartNodes()
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 1)
	require.Equal(t, FuncNMT, got[0].ID)
	require.Equal(t, byte(NMTEnterOperational), got[0].Data[0])
	require.Equal(t, byte(0), got[0].Data[1])
}
