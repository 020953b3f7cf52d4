//go:build linux

package canbus

import (
	"errors"
	"sync"

	"github.com/brutella/can"
)

// SocketCANBus wraps github.com/brutella/can as a Bus implementation,
// the same third-party dependency and wrapping shape the teacher uses
// in its own socketcan.go: brutella/can owns the netlink/raw-socket
// plumbing, this type only translates frames and serializes the single
// outstanding Send the way the peripheral model in spec §6 expects.
type SocketCANBus struct {
	ifname string

	mu      sync.Mutex
	bus     *can.Bus
	handler EventHandler
	busy    bool
}

// NewSocketCANBus returns a Bus bound to the named Linux network
// interface (e.g. "can0", "vcan0"). The interface's bitrate must
// already be configured at the OS level (ip link set ... type can
// bitrate ...); SetBitrate is a best-effort validation only, since
// SocketCAN does not expose a way to change it from an open socket.
func NewSocketCANBus(ifname string) *SocketCANBus {
	return &SocketCANBus{ifname: ifname}
}

func (s *SocketCANBus) Open() error {
	bus, err := can.NewBusForInterfaceWithName(s.ifname)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.bus = bus
	s.mu.Unlock()
	bus.Subscribe(s)
	go func() {
		_ = bus.ConnectAndPublish()
	}()
	return nil
}

func (s *SocketCANBus) Close() error {
	s.mu.Lock()
	bus := s.bus
	s.mu.Unlock()
	if bus == nil {
		return nil
	}
	return bus.Disconnect()
}

func (s *SocketCANBus) SetBitrate(rate Bitrate) error {
	if !ValidBitrate(rate) {
		return errors.New("canbus: illegal bitrate")
	}
	// SocketCAN bitrate is a link property, not a socket option; the
	// caller is expected to have configured it with `ip link` already.
	return nil
}

func (s *SocketCANBus) SetEventHandler(handler EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

func (s *SocketCANBus) Send(frame Frame) (bool, error) {
	s.mu.Lock()
	if s.bus == nil {
		s.mu.Unlock()
		return false, errors.New("canbus: bus not open")
	}
	if s.busy {
		s.mu.Unlock()
		return false, nil
	}
	s.busy = true
	bus := s.bus
	handler := s.handler
	s.mu.Unlock()

	wireID := uint32(frame.ID)
	if frame.RTR {
		wireID |= 0x40000000
	}
	err := bus.Publish(can.Frame{
		ID:     wireID,
		Length: frame.Length,
		Data:   frame.Data,
	})

	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()

	if err != nil {
		if handler != nil {
			handler(EventChannelError, Frame{})
		}
		return false, err
	}
	if handler != nil {
		handler(EventTxComplete, Frame{})
	}
	return true, nil
}

// Handle implements brutella/can's receive interface; it runs on the
// bus's own read goroutine, which is exactly the "interrupt-like
// context" spec §5 describes — it must do nothing but hand the frame
// to the router's enqueue path via the installed EventHandler.
func (s *SocketCANBus) Handle(frame can.Frame) {
	s.mu.Lock()
	handler := s.handler
	s.mu.Unlock()
	if handler == nil {
		return
	}
	handler(EventRxComplete, Frame{
		ID:     uint16(frame.ID & 0x7FF),
		Length: frame.Length,
		RTR:    frame.ID&0x40000000 != 0,
		Data:   frame.Data,
	})
}
