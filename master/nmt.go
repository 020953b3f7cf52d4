package master

import "github.com/aw4Motion/CANopen4Drives/canbus"

// NMTCommand is one of the five commands a master may broadcast or
// target at a single node, spec §4.2's NMT command issuance. Values
// match CiA 301 exactly, the same encoding the teacher's pkg/nmt.Command
// uses.
type NMTCommand uint8

const (
	NMTEnterOperational    NMTCommand = 1
	NMTEnterStopped        NMTCommand = 2
	NMTEnterPreOperational NMTCommand = 128
	NMTResetNode           NMTCommand = 129
	NMTResetCommunication  NMTCommand = 130
)

// NMTState is the master's model of a remote node's CiA 301 state,
// reported back to the application from Node.Update.
type NMTState uint8

const (
	NMTStateUnknown        NMTState = 0
	NMTStateBooting        NMTState = 1
	NMTStatePreOperational NMTState = 127
	NMTStateOperational    NMTState = 5
	NMTStateStopped        NMTState = 4
)

func (s NMTState) String() string {
	switch s {
	case NMTStateBooting:
		return "BOOTING"
	case NMTStatePreOperational:
		return "PRE-OPERATIONAL"
	case NMTStateOperational:
		return "OPERATIONAL"
	case NMTStateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// nmtFrame builds the 2-byte broadcast/targeted NMT command frame on
// CAN-ID 0x000, payload [command, targetNodeID]. targetNodeID = 0
// addresses every node on the bus.
func nmtFrame(command NMTCommand, targetNodeID uint8) canbus.Frame {
	f := canbus.Frame{ID: FuncNMT, Length: 2}
	f.Data[0] = byte(command)
	f.Data[1] = targetNodeID
	return f
}
