package canbus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrameFunctionCodeAndNodeID(t *testing.T) {
	f := Frame{ID: 0x583}
	require.Equal(t, uint16(0x580), f.FunctionCode())
	require.Equal(t, uint8(0x03), f.NodeID())
}

func TestValidBitrate(t *testing.T) {
	require.True(t, ValidBitrate(Bitrate500k))
	require.False(t, ValidBitrate(Bitrate(123456)))
}

func TestVirtualBusSendDeliversToPeers(t *testing.T) {
	broker := NewVirtualBroker()
	a := broker.Open()
	b := broker.Open()
	require.NoError(t, a.Open())
	require.NoError(t, b.Open())

	received := make(chan Frame, 1)
	b.SetEventHandler(func(event Event, frame Frame) {
		if event == EventRxComplete {
			received <- frame
		}
	})

	ok, err := a.Send(Frame{ID: 0x603, Length: 8})
	require.NoError(t, err)
	require.True(t, ok)

	select {
	case frame := <-received:
		require.Equal(t, uint16(0x603), frame.ID)
	default:
		t.Fatal("expected frame to be delivered synchronously")
	}
}

func TestVirtualBusSendWhileBusyFails(t *testing.T) {
	broker := NewVirtualBroker()
	a := broker.Open()
	require.NoError(t, a.Open())
	a.mu.Lock()
	a.busy = true
	a.mu.Unlock()

	ok, err := a.Send(Frame{ID: 0x100})
	require.NoError(t, err)
	require.False(t, ok)
}
