package master

import (
	"encoding/binary"
	"log/slog"

	"github.com/aw4Motion/CANopen4Drives/canbus"
	"github.com/aw4Motion/CANopen4Drives/od"
)

// supervisorState is the master's model of one remote node, spec
// §4.2's state diagram: Offline -> WaitForBoot -> BootMsgReceived ->
// Booting -> Reset -> PreOp -> {Operational, Stopped}, with any
// liveness failure forcing a return to Offline.
type supervisorState int

const (
	supOffline supervisorState = iota
	supWaitForBoot
	supBootMsgReceived
	supBooting
	supReset
	supPreOp
	supOperational
	supStopped
)

// EMCYRecord is one decoded emergency frame, kept in a per-node
// history ring — a feature original_source/src/CONode.cpp carries
// that the distilled spec dropped; reinstated here (see SPEC_FULL.md).
type EMCYRecord struct {
	Code          uint16
	ErrorRegister byte
	VendorWord    uint16
	ReceivedAt    int64
}

// emcyHistoryDepth is the fixed capacity of a node's EMCY history ring.
const emcyHistoryDepth = 8

type guardPhase int

const (
	guardExpected guardPhase = iota
	guardWaiting
	guardReceivedInTime
	guardTimedOut
)

// SDORequestInterval is the discovery poll period, spec §4.2.
const SDORequestInterval int64 = 200

// DefaultHBThresholdFactor is the multiplier applied to the producer
// heartbeat time to get the consumer silence threshold, spec §4.2
// ("default = 1.25 x producer time").
const DefaultHBThresholdFactor = 1.25

// Supervisor is the per-node NMT command issuer and liveness monitor,
// spec §4.2. Grounded on the teacher's pkg/heartbeat/consumer.go for
// the heartbeat side and the legacy root heartbeat_consumer.go for the
// guarding side, both rewritten as Update(now)-polled state rather
// than goroutines driven by their own timers.
type Supervisor struct {
	handle *NodeHandle
	sdo    *SDOClient
	log    *slog.Logger

	state  supervisorState
	isLive bool
	now    int64

	guardTime       int64 // ms, 0 if heartbeat mode
	liveTimeFactor  int
	hbProducerTime  int64 // ms, 0 if guarding mode
	hbThreshold     int64

	lastDiscoveryAt int64

	guard              guardPhase
	guardExpectedTogl  byte
	guardTimeoutCount  int
	guardCycleStart    int64
	guardResponded     bool
	guardRespToggle    byte
	guardRespState     byte

	lastHbRx int64

	configEntries []*od.Entry
	deviceType    *od.Entry

	errorRegister byte
	emcyHistory   [emcyHistoryDepth]EMCYRecord
	emcyCount     int
	emcyHead      int

	callback func(NMTState)
}

// NewSupervisor validates the liveness configuration (exactly one of
// guardTime/hbProducerTime must be non-zero, spec §3's invariant) and
// returns a Supervisor in the Offline state.
func NewSupervisor(handle *NodeHandle, sdo *SDOClient, guardTimeMs uint16, liveTimeFactor uint8, hbProducerTimeMs uint16, log *slog.Logger) (*Supervisor, error) {
	if (guardTimeMs > 0) == (hbProducerTimeMs > 0) {
		return nil, ErrLivenessConflict
	}
	if log == nil {
		log = slog.Default()
	}
	s := &Supervisor{
		handle:         handle,
		sdo:            sdo,
		log:            log,
		state:          supOffline,
		guardTime:      int64(guardTimeMs),
		liveTimeFactor: int(liveTimeFactor),
		hbProducerTime: int64(hbProducerTimeMs),
		deviceType:     od.NewEntry(0x1000, 0, od.Width4),
	}
	s.lastDiscoveryAt = -SDORequestInterval
	s.hbThreshold = int64(float64(s.hbProducerTime) * DefaultHBThresholdFactor)
	s.configEntries = s.buildLivenessConfigEntries()
	handle.SetGuardSink(s)
	handle.SetEMCYSink(s)
	return s, nil
}

// SetStateChangeCallback installs a callback invoked whenever the
// reported NMTState changes.
func (s *Supervisor) SetStateChangeCallback(cb func(NMTState)) { s.callback = cb }

// IsLive reports whether a bootup frame has been observed for this
// node since it last went offline.
func (s *Supervisor) IsLive() bool { return s.isLive }

// ErrorRegister reports the most recently observed CiA 301 error
// register byte (byte 2 convention shared with EMCY frames).
func (s *Supervisor) ErrorRegister() byte { return s.errorRegister }

// EMCYHistory returns up to emcyHistoryDepth most recent EMCY records,
// oldest first.
func (s *Supervisor) EMCYHistory() []EMCYRecord {
	out := make([]EMCYRecord, 0, s.emcyCount)
	start := (s.emcyHead - s.emcyCount + emcyHistoryDepth) % emcyHistoryDepth
	for i := 0; i < s.emcyCount; i++ {
		out = append(out, s.emcyHistory[(start+i)%emcyHistoryDepth])
	}
	return out
}

func (s *Supervisor) buildLivenessConfigEntries() []*od.Entry {
	if s.guardTime > 0 {
		hbProd := od.NewEntry(0x1017, 0, od.Width2)
		hbCons := od.NewEntry(0x1016, 1, od.Width4)
		guard := od.NewEntry(0x100C, 0, od.Width2)
		factor := od.NewEntry(0x100D, 0, od.Width1)
		_ = hbProd.SetUint16(0)
		_ = hbCons.SetUint32(0)
		_ = guard.SetUint16(uint16(s.guardTime))
		_ = factor.SetUint8(uint8(s.liveTimeFactor))
		return []*od.Entry{hbProd, hbCons, guard, factor}
	}
	hbProd := od.NewEntry(0x1017, 0, od.Width2)
	guard := od.NewEntry(0x100C, 0, od.Width2)
	factor := od.NewEntry(0x100D, 0, od.Width1)
	_ = hbProd.SetUint16(uint16(s.hbProducerTime))
	_ = guard.SetUint16(0)
	_ = factor.SetUint8(0)
	return []*od.Entry{hbProd, guard, factor}
}

func (s *Supervisor) setState(next supervisorState) {
	if s.state == next {
		return
	}
	s.state = next
	if s.callback != nil {
		s.callback(s.NMTState())
	}
}

// NMTState reports the master's current model of this node's CiA 301
// lifecycle state.
func (s *Supervisor) NMTState() NMTState {
	switch s.state {
	case supOffline, supWaitForBoot, supBootMsgReceived, supBooting, supReset:
		if s.state == supOffline {
			return NMTStateUnknown
		}
		return NMTStateBooting
	case supPreOp:
		return NMTStatePreOperational
	case supOperational:
		return NMTStateOperational
	case supStopped:
		return NMTStateStopped
	default:
		return NMTStateUnknown
	}
}

// Update advances discovery, boot detection, liveness configuration
// and guarding/heartbeat supervision by one tick. Returns the node's
// current NMTState.
func (s *Supervisor) Update(now int64) NMTState {
	s.now = now
	switch s.state {
	case supOffline:
		s.updateDiscovery(now)
	case supBootMsgReceived:
		s.setState(supBooting)
	case supBooting:
		s.configEntries = s.buildLivenessConfigEntries()
		s.setState(supReset)
	case supReset:
		s.updateLivenessConfig(now)
	case supPreOp, supOperational:
		s.updateLiveness(now)
	case supStopped:
		s.updateLiveness(now)
	}
	return s.NMTState()
}

func (s *Supervisor) updateDiscovery(now int64) {
	// A new Device Type read starts at most once per interval; a read
	// already in flight is polled every tick.
	if s.sdo.op == opNone {
		if now-s.lastDiscoveryAt < SDORequestInterval {
			return
		}
		s.lastDiscoveryAt = now
	}
	state, _ := s.sdo.Read(now, 0x1000, 0, s.deviceType.Bytes())
	switch state {
	case Done:
		s.sdo.Reset()
		if ok, err := s.handle.Send(nmtFrame(NMTResetNode, s.handle.NodeID())); err == nil && ok {
			s.setState(supWaitForBoot)
		}
	case Error, Timeout:
		s.sdo.Reset()
	}
}

func (s *Supervisor) updateLivenessConfig(now int64) {
	state := s.sdo.WriteObjects(now, s.configEntries)
	switch state {
	case Done:
		s.sdo.Reset()
		s.guard = guardExpected
		s.guardTimeoutCount = 0
		s.guardCycleStart = now
		s.lastHbRx = now
		s.setState(supPreOp)
	case Error, Timeout:
		s.sdo.Reset()
		s.setState(supOffline)
	}
}

func (s *Supervisor) updateLiveness(now int64) {
	if s.guardTime > 0 {
		s.updateGuarding(now)
		return
	}
	if now-s.lastHbRx > s.hbThreshold {
		s.goOffline()
	}
}

func (s *Supervisor) updateGuarding(now int64) {
	switch s.guard {
	case guardExpected:
		frame := canbus.Frame{ID: GuardID(s.handle.NodeID()), RTR: true}
		if ok, err := s.handle.Send(frame); err == nil && ok {
			s.guard = guardWaiting
			s.guardCycleStart = now
			s.guardResponded = false
		}
	case guardWaiting:
		if s.guardResponded {
			expected := s.guardExpectedTogl
			if s.guardRespToggle == expected {
				s.guardExpectedTogl ^= 0x80
				s.guardTimeoutCount = 0
				s.guard = guardReceivedInTime
				s.guardCycleStart = now
			} else {
				s.failGuardCycle(now)
			}
			return
		}
		if now-s.guardCycleStart > s.guardTime {
			s.failGuardCycle(now)
		}
	case guardReceivedInTime:
		if now-s.guardCycleStart > s.guardTime {
			s.guard = guardExpected
		}
	}
}

func (s *Supervisor) failGuardCycle(now int64) {
	s.guardTimeoutCount++
	if s.guardTimeoutCount > s.liveTimeFactor {
		s.goOffline()
		return
	}
	s.guard = guardExpected
	s.guardCycleStart = now
}

func (s *Supervisor) goOffline() {
	s.setState(supOffline)
	s.isLive = false
}

// HandleGuardFrame implements GuardSink: it runs from Router.Poll and
// recognizes three payload shapes sharing CAN-ID 0x700|node-id —
// bootup, guarding reply, heartbeat.
func (s *Supervisor) HandleGuardFrame(frame canbus.Frame) {
	if (s.state == supWaitForBoot || s.state == supBootMsgReceived) && frame.Length == 1 && frame.Data[0] == 0x00 {
		s.isLive = true
		s.setState(supBootMsgReceived)
		return
	}
	if frame.Length == 0 {
		return
	}
	nmtByte := frame.Data[0]
	if s.guardTime > 0 {
		if s.guard == guardWaiting {
			s.guardResponded = true
			s.guardRespToggle = nmtByte & 0x80
			s.guardRespState = nmtByte & 0x7F
		}
		return
	}
	s.lastHbRx = s.now
}

// HandleEMCY implements EMCYSink: decodes an emergency frame and
// pushes it into the node's fixed-depth history ring.
func (s *Supervisor) HandleEMCY(frame canbus.Frame) {
	if frame.Length < 5 {
		return
	}
	rec := EMCYRecord{
		Code:          binary.LittleEndian.Uint16(frame.Data[0:2]),
		ErrorRegister: frame.Data[2],
		VendorWord:    binary.LittleEndian.Uint16(frame.Data[3:5]),
		ReceivedAt:    s.now,
	}
	s.errorRegister = rec.ErrorRegister
	s.emcyHistory[s.emcyHead] = rec
	s.emcyHead = (s.emcyHead + 1) % emcyHistoryDepth
	if s.emcyCount < emcyHistoryDepth {
		s.emcyCount++
	}
}

// SendResetNode issues NMT reset-node and optimistically models the
// node as returning to WaitForBoot.
func (s *Supervisor) SendResetNode(now int64) CommState {
	return s.sendNMT(NMTResetNode, supWaitForBoot)
}

// SendResetCommunication issues NMT reset-communication.
func (s *Supervisor) SendResetCommunication(now int64) CommState {
	return s.sendNMT(NMTResetCommunication, supWaitForBoot)
}

// SendStartNode issues NMT start (enter-operational).
func (s *Supervisor) SendStartNode(now int64) CommState {
	return s.sendNMT(NMTEnterOperational, supOperational)
}

// SendStopNode issues NMT stop.
func (s *Supervisor) SendStopNode(now int64) CommState {
	return s.sendNMT(NMTEnterStopped, supStopped)
}

// SendPreopNode issues NMT enter-pre-operational.
func (s *Supervisor) SendPreopNode(now int64) CommState {
	return s.sendNMT(NMTEnterPreOperational, supPreOp)
}

func (s *Supervisor) sendNMT(command NMTCommand, optimistic supervisorState) CommState {
	ok, err := s.handle.Send(nmtFrame(command, s.handle.NodeID()))
	if err != nil {
		return Error
	}
	if !ok {
		return Retry
	}
	s.setState(optimistic)
	return Done
}
