package master

import (
	"testing"

	"github.com/aw4Motion/CANopen4Drives/canbus"
	"github.com/stretchr/testify/require"
)

func TestNewRemoteNodeWiresAllThreeComponents(t *testing.T) {
	broker := canbus.NewVirtualBroker()
	bus := broker.Open()
	require.NoError(t, bus.Open())
	r := NewRouter(bus, 32, nil)

	node, err := NewRemoteNode(r, 3, LivenessConfig{GuardTimeMs: 50, LiveTimeFactor: 3}, nil)
	require.NoError(t, err)
	require.NotNil(t, node.SDO)
	require.NotNil(t, node.Supervisor)
	require.NotNil(t, node.PDO)
	require.Equal(t, NMTStateUnknown, node.Update(0, SyncIdle))
}

func TestRegistryRejectsDuplicateNodeID(t *testing.T) {
	broker := canbus.NewVirtualBroker()
	bus := broker.Open()
	require.NoError(t, bus.Open())
	r := NewRouter(bus, 32, nil)
	reg := NewRegistry(r)

	_, err := reg.Add(4, LivenessConfig{HBProducerTimeMs: 500}, nil)
	require.NoError(t, err)
	_, err = reg.Add(4, LivenessConfig{HBProducerTimeMs: 500}, nil)
	require.ErrorIs(t, err, ErrNodeAlreadyExists)

	reg.Remove(4)
	require.Nil(t, reg.Get(4))
}

func TestRegistryUpdateAllDrivesEveryNode(t *testing.T) {
	broker := canbus.NewVirtualBroker()
	bus := broker.Open()
	require.NoError(t, bus.Open())
	r := NewRouter(bus, 32, nil)
	reg := NewRegistry(r)
	_, err := reg.Add(1, LivenessConfig{GuardTimeMs: 50, LiveTimeFactor: 3}, nil)
	require.NoError(t, err)
	_, err = reg.Add(2, LivenessConfig{GuardTimeMs: 50, LiveTimeFactor: 3}, nil)
	require.NoError(t, err)

	require.NotPanics(t, func() { reg.UpdateAll(0, SyncIdle) })
	require.Len(t, reg.All(), 2)
}
