// Package canbus defines the transport boundary between the CANopen
// master stack and a physical or simulated CAN peripheral.
//
// The core protocol engine in package master never talks to hardware
// directly: it owns a Bus, posts Frame values to it, and is notified of
// transmit completion and received frames through an EventHandler. The
// peripheral driver itself — DMA rings, interrupt vectors, bit timing
// registers — is deliberately out of scope; Bus is the seam.
package canbus

import "fmt"

// Frame is a classic 11-bit CAN 2.0A frame. Extended (29-bit) IDs and
// CAN FD payloads are not represented; the master stack only ever
// speaks the pre-defined connection set, which is standard-frame only.
type Frame struct {
	ID     uint16 // 11 bits significant; upper 4 bits are the function code
	Length uint8  // 0..8
	RTR    bool
	Data   [8]byte
}

// FunctionCode returns the upper 4 bits of the identifier.
func (f Frame) FunctionCode() uint16 { return f.ID &^ 0x7F }

// NodeID returns the lower 7 bits of the identifier.
func (f Frame) NodeID() uint8 { return uint8(f.ID & 0x7F) }

func (f Frame) String() string {
	return fmt.Sprintf("ID=x%03X len=%d rtr=%v data=%X", f.ID, f.Length, f.RTR, f.Data[:f.Length])
}

// Bitrate is one of the standard CAN bus speeds the peripheral driver
// is asked to configure.
type Bitrate int

const (
	Bitrate125k  Bitrate = 125_000
	Bitrate250k  Bitrate = 250_000
	Bitrate500k  Bitrate = 500_000
	Bitrate1M    Bitrate = 1_000_000
)

// Event describes an asynchronous notification raised by the CAN
// peripheral driver, delivered through the EventHandler registered with
// SetEventHandler.
type Event int

const (
	EventTxComplete Event = iota
	EventRxComplete
	EventBusWarning
	EventBusOff
	EventBusRecovery
	EventMailboxLost
	EventAborted
	EventChannelError
)

func (e Event) String() string {
	switch e {
	case EventTxComplete:
		return "TxComplete"
	case EventRxComplete:
		return "RxComplete"
	case EventBusWarning:
		return "BusWarning"
	case EventBusOff:
		return "BusOff"
	case EventBusRecovery:
		return "BusRecovery"
	case EventMailboxLost:
		return "MailboxLost"
	case EventAborted:
		return "Aborted"
	case EventChannelError:
		return "ChannelError"
	default:
		return "Unknown"
	}
}

// EventHandler is invoked by the driver for every asynchronous
// notification. For EventRxComplete, frame carries the received frame;
// for all other events frame is the zero value. The driver may invoke
// this from an interrupt-like context — see package internal/ring for
// the only data structure in this module built to tolerate that.
type EventHandler func(event Event, frame Frame)

// Bus is the external collaborator described in spec §6: a frame-level
// transmit/receive transport with completion events. Implementations
// ship for Linux SocketCAN (socketcan_linux.go, real hardware) and an
// in-process loopback (virtual.go, tests and simulation).
type Bus interface {
	// Open prepares the peripheral for use. Must be called before Send.
	Open() error
	// Close releases the peripheral.
	Close() error
	// SetBitrate configures the bus speed. Returns an error for any
	// value other than the four standard rates.
	SetBitrate(rate Bitrate) error
	// Send posts frame for transmission. It returns false, with no
	// side effect, if the peripheral's single transmit mailbox is
	// already busy — the caller (Router) is expected to retry later.
	Send(frame Frame) (bool, error)
	// SetEventHandler installs the callback invoked for driver events,
	// including every received frame. Must be set before Open.
	SetEventHandler(handler EventHandler)
}

// ValidBitrate reports whether rate is one of the four standard speeds.
func ValidBitrate(rate Bitrate) bool {
	switch rate {
	case Bitrate125k, Bitrate250k, Bitrate500k, Bitrate1M:
		return true
	default:
		return false
	}
}
