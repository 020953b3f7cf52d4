package master

import (
	"testing"

	"github.com/aw4Motion/CANopen4Drives/canbus"
	"github.com/aw4Motion/CANopen4Drives/od"
	"github.com/stretchr/testify/require"
)

func newTestPDOEngine(t *testing.T) (*PDOEngine, *Router) {
	broker := canbus.NewVirtualBroker()
	bus := broker.Open()
	require.NoError(t, bus.Open())
	r := NewRouter(bus, 32, nil)
	h, err := r.RegisterNode(5)
	require.NoError(t, err)
	sdo := NewSDOClient(h, nil)
	return NewPDOEngine(h, sdo, nil), r
}

func TestNewPDOEngineDefaultsInvalid(t *testing.T) {
	e, _ := newTestPDOEngine(t)
	require.False(t, e.rpdo[0].OnWireValid())
	require.Equal(t, RPDOCobID(1, 5), uint16(e.rpdo[0].CobID&0x7FF))
}

func TestConfigurePresetPDOsCompletesAllEight(t *testing.T) {
	e, _ := newTestPDOEngine(t)
	cw := od.NewEntry(0x6040, 0, od.Width2)
	e.PresetRxMapping(1, []PDOMapping{{Entry: cw, WidthBits: 16}})
	e.PresetRxTransmission(1, 1)
	e.PresetRxValid(1, true)

	now := int64(0)
	var state CommState
	for i := 0; i < 200; i++ {
		state = e.ConfigurePresetPDOs(now)
		if state == Done || state == Error {
			break
		}
		if state == Busy && !e.sdo.havePending {
			// ack whatever SDO write is currently outstanding, echoing
			// back the index/sub-index it targeted
			ack := canbus.Frame{Length: 8}
			ack.Data[0] = 0x60
			ack.Data[1] = byte(e.sdo.index)
			ack.Data[2] = byte(e.sdo.index >> 8)
			ack.Data[3] = e.sdo.subIndex
			e.sdo.HandleSDOResponse(ack)
		}
		now++
	}
	require.Equal(t, Done, state)
	require.True(t, e.rpdo[0].OnWireValid())
}

func TestRoundRobinDispatchOnSync(t *testing.T) {
	e, _ := newTestPDOEngine(t)
	cw := od.NewEntry(0x6040, 0, od.Width2)
	require.NoError(t, cw.SetUint16(0x0006))
	e.rpdo[0].Mapping = []PDOMapping{{Entry: cw, WidthBits: 16}}
	e.rpdo[0].TransmissionType = 1
	e.rpdo[0].CobID = uint32(RPDOCobID(1, 5)) // valid

	e.Update(100, true)
	require.Equal(t, 0, e.rpdo[0].pending) // sent immediately since cursor starts at 0
}

func TestTxRPDOsAsyncMatchesEventDrivenMapping(t *testing.T) {
	e, _ := newTestPDOEngine(t)
	cw := od.NewEntry(0x6040, 0, od.Width2)
	e.rpdo[0].Mapping = []PDOMapping{{Entry: cw, WidthBits: 16}}
	e.rpdo[0].TransmissionType = 254

	require.True(t, e.TxRPDOsAsync(cw))
	require.Equal(t, 1, e.rpdo[0].pending)

	other := od.NewEntry(0x6041, 0, od.Width2)
	require.False(t, e.TxRPDOsAsync(other))
}

func TestHandleTPDODecodesMappedEntries(t *testing.T) {
	e, _ := newTestPDOEngine(t)
	pos := od.NewEntry(0x6064, 0, od.Width4)
	e.tpdo[0].Mapping = []PDOMapping{{Entry: pos, WidthBits: 32}}
	e.tpdo[0].CobID = uint32(TPDOCobID(1, 5)) // valid, bit31 clear

	e.HandleTPDO(canbus.Frame{ID: TPDOCobID(1, 5), Length: 4, Data: [8]byte{0x78, 0x56, 0x34, 0x12}})
	v, err := pos.Uint32()
	require.NoError(t, err)
	require.Equal(t, uint32(0x12345678), v)
}

func TestHandleTPDOIgnoredWhenInvalid(t *testing.T) {
	e, _ := newTestPDOEngine(t)
	pos := od.NewEntry(0x6064, 0, od.Width4)
	_ = pos.SetUint32(0xAAAAAAAA)
	e.tpdo[0].Mapping = []PDOMapping{{Entry: pos, WidthBits: 32}}
	// CobID left at its default invalid state from NewPDOEngine.

	e.HandleTPDO(canbus.Frame{ID: TPDOCobID(1, 5), Length: 4, Data: [8]byte{0, 0, 0, 0}})
	v, _ := pos.Uint32()
	require.Equal(t, uint32(0xAAAAAAAA), v)
}
