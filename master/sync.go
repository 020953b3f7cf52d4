package master

import "github.com/aw4Motion/CANopen4Drives/canbus"

// SyncState is the transient output of Sync.Update, consumed by each
// node's PDO engine in the same tick to trigger cyclic-sync PDOs,
// spec §4.5.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncSent
)

// masterLifecycle mirrors the subset of NMT states the Sync Master's
// own heartbeat production needs to report.
type masterLifecycle int

const (
	masterPreOperational masterLifecycle = iota
	masterOperational
)

// Sync is the Sync Master: periodic SYNC emission, master-side
// heartbeat production, and global NMT command issuance, spec §4.5.
// Grounded on the teacher's pkg/sync.SYNC, stripped of its
// time.Timer/goroutine scheduling — here Update(now) is the only
// clock source, called once per tick from the main loop the same way
// Router.Poll and each node's Update are.
type Sync struct {
	bus      *Router
	masterID uint8

	syncIntervalMs int64
	lastSyncAt     int64

	producerHbTimeMs int64
	lastHbAt         int64

	state masterLifecycle
}

// NewSync returns a Sync Master broadcasting on behalf of masterID,
// emitting SYNC every syncIntervalMs and a producer heartbeat every
// producerHbTimeMs. The first SYNC goes out on the first Update after
// the master becomes operational.
func NewSync(bus *Router, masterID uint8, syncIntervalMs, producerHbTimeMs int64) *Sync {
	return &Sync{
		bus:              bus,
		masterID:         masterID,
		syncIntervalMs:   syncIntervalMs,
		lastSyncAt:       -syncIntervalMs,
		producerHbTimeMs: producerHbTimeMs,
		state:            masterPreOperational,
	}
}

// SetOperational toggles whether SYNC emission is active; heartbeat
// production runs in both PreOp and Operational, per spec §4.5.
func (s *Sync) SetOperational(operational bool) {
	if operational {
		s.state = masterOperational
	} else {
		s.state = masterPreOperational
	}
}

// Update emits SYNC and/or the producer heartbeat if their respective
// intervals have elapsed, returning SyncSent exactly on ticks where a
// SYNC frame went out.
func (s *Sync) Update(now int64) SyncState {
	result := SyncIdle
	if s.state == masterOperational && s.syncIntervalMs > 0 && now-s.lastSyncAt >= s.syncIntervalMs {
		if ok, err := s.bus.Send(canbus.Frame{ID: FuncSync, Length: 0}); err == nil && ok {
			s.lastSyncAt = now
			result = SyncSent
		}
	}
	if s.producerHbTimeMs > 0 && now-s.lastHbAt >= s.producerHbTimeMs {
		nmtState := NMTStatePreOperational
		if s.state == masterOperational {
			nmtState = NMTStateOperational
		}
		frame := canbus.Frame{ID: GuardID(s.masterID), Length: 1}
		frame.Data[0] = byte(nmtState)
		if ok, err := s.bus.Send(frame); err == nil && ok {
			s.lastHbAt = now
		}
	}
	return result
}

// SendResetNodes broadcasts NMT reset-node to every node on the bus.
func (s *Sync) SendResetNodes() (bool, error) { return s.bus.Send(nmtFrame(NMTResetNode, 0)) }

// SendStartNodes broadcasts NMT enter-operational to every node.
func (s *Sync) SendStartNodes() (bool, error) { return s.bus.Send(nmtFrame(NMTEnterOperational, 0)) }
