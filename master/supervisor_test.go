package master

import (
	"testing"

	"github.com/aw4Motion/CANopen4Drives/canbus"
	"github.com/stretchr/testify/require"
)

func newTestSupervisor(t *testing.T, guardTime, factor, hbProducer uint16) (*Supervisor, *Router) {
	broker := canbus.NewVirtualBroker()
	bus := broker.Open()
	require.NoError(t, bus.Open())
	r := NewRouter(bus, 32, nil)
	h, err := r.RegisterNode(7)
	require.NoError(t, err)
	sdo := NewSDOClient(h, nil)
	sup, err := NewSupervisor(h, sdo, guardTime, uint8(factor), hbProducer, nil)
	require.NoError(t, err)
	return sup, r
}

func TestNewSupervisorRejectsBothLivenessModes(t *testing.T) {
	broker := canbus.NewVirtualBroker()
	bus := broker.Open()
	require.NoError(t, bus.Open())
	r := NewRouter(bus, 32, nil)
	h, err := r.RegisterNode(1)
	require.NoError(t, err)
	sdo := NewSDOClient(h, nil)

	_, err = NewSupervisor(h, sdo, 50, 3, 500, nil)
	require.ErrorIs(t, err, ErrLivenessConflict)

	_, err = NewSupervisor(h, sdo, 0, 0, 0, nil)
	require.ErrorIs(t, err, ErrLivenessConflict)
}

func TestSupervisorStartsOffline(t *testing.T) {
	sup, _ := newTestSupervisor(t, 50, 3, 0)
	require.Equal(t, NMTStateUnknown, sup.Update(0))
}

func TestSupervisorBootSequenceReachesPreOp(t *testing.T) {
	sup, _ := newTestSupervisor(t, 50, 3, 0)

	// discovery sends an SDO upload of 0x1000.0; simulate the slave's
	// expedited response directly.
	sup.Update(0)
	sup.sdo.HandleSDOResponse(canbus.Frame{
		ID:     SDOResponseID(7),
		Length: 8,
		Data:   [8]byte{0x43, 0x00, 0x10, 0x00, 0x92, 0x01, 0x02, 0x00},
	})
	require.Equal(t, Done, sup.sdo.drive())
	sup.Update(10)
	require.Equal(t, supWaitForBoot, sup.state)

	sup.HandleGuardFrame(canbus.Frame{ID: GuardID(7), Length: 1, Data: [8]byte{0x00}})
	require.True(t, sup.IsLive())
	state := sup.Update(20)
	require.Equal(t, NMTStateBooting, state)
	sup.Update(30) // Booting -> Reset
	require.Equal(t, supReset, sup.state)

	// drive the liveness-config bulk write to completion by acking
	// each SDO download in turn.
	for i := 0; i < 10 && sup.state == supReset; i++ {
		now := int64(40 + i*5)
		sup.Update(now)
		if !sup.sdo.havePending {
			ack := canbus.Frame{ID: SDOResponseID(7), Length: 8}
			ack.Data[0] = 0x60
			ack.Data[1] = byte(sup.sdo.index)
			ack.Data[2] = byte(sup.sdo.index >> 8)
			ack.Data[3] = sup.sdo.subIndex
			sup.sdo.HandleSDOResponse(ack)
		}
	}
	require.Equal(t, NMTStatePreOperational, sup.NMTState())
}

func TestSupervisorGuardingLossGoesOffline(t *testing.T) {
	sup, _ := newTestSupervisor(t, 50, 0, 0)
	sup.state = supPreOp
	sup.guard = guardExpected
	sup.guardCycleStart = 0

	sup.Update(0) // sends RTR, moves to guardWaiting
	require.Equal(t, guardWaiting, sup.guard)

	sup.Update(60) // exceeds guard_time with no response and factor=0
	require.Equal(t, supOffline, sup.state)
	require.False(t, sup.IsLive())
}

func TestSupervisorHeartbeatLossGoesOffline(t *testing.T) {
	sup, _ := newTestSupervisor(t, 0, 0, 500)
	sup.state = supOperational
	sup.lastHbRx = 0

	sup.Update(100)
	require.Equal(t, supOperational, sup.state)

	sup.Update(700) // > 1.25 * 500
	require.Equal(t, supOffline, sup.state)
}

func TestSupervisorEMCYHistoryRingWraps(t *testing.T) {
	sup, _ := newTestSupervisor(t, 50, 3, 0)
	for i := 0; i < emcyHistoryDepth+3; i++ {
		sup.HandleEMCY(canbus.Frame{Length: 5, Data: [8]byte{byte(i), 0x00, 0x01, 0x00, 0x00}})
	}
	history := sup.EMCYHistory()
	require.Len(t, history, emcyHistoryDepth)
	require.Equal(t, uint16(3), history[0].Code)
}
