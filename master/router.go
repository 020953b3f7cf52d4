package master

import (
	"log/slog"
	"sync/atomic"

	"github.com/aw4Motion/CANopen4Drives/canbus"
	"github.com/aw4Motion/CANopen4Drives/internal/ring"
)

// SDOSink receives SDO response frames addressed to a registered node.
type SDOSink interface{ HandleSDOResponse(frame canbus.Frame) }

// GuardSink receives NMT error-control frames (bootup, guarding reply,
// heartbeat) addressed to a registered node.
type GuardSink interface{ HandleGuardFrame(frame canbus.Frame) }

// EMCYSink receives emergency frames addressed to a registered node.
type EMCYSink interface{ HandleEMCY(frame canbus.Frame) }

// PDOSink receives TPDO frames addressed to a registered node.
type PDOSink interface{ HandleTPDO(frame canbus.Frame) }

// slot is one registered node's four handler callbacks, the "trait
// object per service" spec §9's design notes call for in place of the
// teacher's flat per-ID listener map in bus_manager.go.
type slot struct {
	nodeID uint8
	inUse  bool
	sdo    SDOSink
	guard  GuardSink
	emcy   EMCYSink
	pdo    PDOSink
}

// NodeHandle is the stable reference RegisterNode hands back; it stays
// valid for the node's lifetime and is what UnregisterNode consumes.
type NodeHandle struct {
	router *Router
	index  int
	nodeID uint8
}

// NodeID reports the handle's node-id.
func (h *NodeHandle) NodeID() uint8 { return h.nodeID }

// SetSDOSink installs the handler invoked for SDO responses on this node.
func (h *NodeHandle) SetSDOSink(s SDOSink) { h.router.slots[h.index].sdo = s }

// SetGuardSink installs the handler invoked for NMT error-control
// frames on this node.
func (h *NodeHandle) SetGuardSink(s GuardSink) { h.router.slots[h.index].guard = s }

// SetEMCYSink installs the handler invoked for emergency frames on
// this node.
func (h *NodeHandle) SetEMCYSink(s EMCYSink) { h.router.slots[h.index].emcy = s }

// SetPDOSink installs the handler invoked for TPDO frames on this node.
func (h *NodeHandle) SetPDOSink(s PDOSink) { h.router.slots[h.index].pdo = s }

// Send posts frame through the owning router, identical to calling
// Router.Send directly; provided so node-side components only need to
// hold a *NodeHandle.
func (h *NodeHandle) Send(frame canbus.Frame) (bool, error) { return h.router.Send(frame) }

// Router owns the single CAN endpoint: it serializes outbound frames
// (Idle/Busy arbitration, spec §4.4), classifies inbound frames by
// function code at enqueue time, and dispatches them to the matching
// node's registered sink from Poll, which runs only in the main loop.
// Grounded on the teacher's BusManager (bus_manager.go) and CANModule,
// rebuilt without its internal mutex-guarded listener map — here the
// slot table is main-loop-only and the ring buffer is the sole
// structure shared with the driver's callback context.
type Router struct {
	bus canbus.Bus
	rx  *ring.Ring

	txBusy      atomic.Bool
	rxOverflows atomic.Uint64
	busOff      atomic.Bool

	slots      []slot
	byNodeID   map[uint8]int
	log        *slog.Logger
}

// NewRouter constructs a Router bound to bus, with an RX ring of the
// given capacity (raised to internal/ring.MinCapacity if smaller).
func NewRouter(bus canbus.Bus, ringCapacity int, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	r := &Router{
		bus:      bus,
		rx:       ring.New(ringCapacity),
		byNodeID: make(map[uint8]int),
		log:      log,
	}
	bus.SetEventHandler(r.handleBusEvent)
	return r
}

// Open opens the underlying CAN peripheral.
func (r *Router) Open() error { return r.bus.Open() }

// Close closes the underlying CAN peripheral.
func (r *Router) Close() error { return r.bus.Close() }

// RegisterNode reserves a slot for nodeID and returns its handle.
// Slots are stable for the node's lifetime, per spec §3's invariant;
// they are only ever reused after UnregisterNode frees them.
func (r *Router) RegisterNode(nodeID uint8) (*NodeHandle, error) {
	if nodeID < 1 || nodeID > 127 {
		return nil, ErrIllegalArgument
	}
	if _, exists := r.byNodeID[nodeID]; exists {
		return nil, ErrNodeAlreadyExists
	}
	for i := range r.slots {
		if !r.slots[i].inUse {
			r.slots[i] = slot{nodeID: nodeID, inUse: true}
			r.byNodeID[nodeID] = i
			return &NodeHandle{router: r, index: i, nodeID: nodeID}, nil
		}
	}
	r.slots = append(r.slots, slot{nodeID: nodeID, inUse: true})
	index := len(r.slots) - 1
	r.byNodeID[nodeID] = index
	return &NodeHandle{router: r, index: index, nodeID: nodeID}, nil
}

// UnregisterNode clears all of the handle's callbacks atomically (with
// respect to the main loop — Poll never observes a partially-cleared
// slot) before releasing the slot for reuse.
func (r *Router) UnregisterNode(h *NodeHandle) {
	if h == nil || h.router != r {
		return
	}
	r.slots[h.index] = slot{}
	delete(r.byNodeID, h.nodeID)
}

// Send posts frame to the CAN peripheral only if the endpoint is
// currently Idle. A successful post moves the endpoint to Busy until
// the driver's TxComplete event returns it to Idle.
func (r *Router) Send(frame canbus.Frame) (bool, error) {
	if r.bus == nil {
		return false, ErrBusNotOpen
	}
	// Claim the mailbox before posting: a transport may raise
	// TxComplete synchronously inside bus.Send, and that event must
	// find the endpoint already Busy so it can return it to Idle.
	if !r.txBusy.CompareAndSwap(false, true) {
		return false, nil
	}
	ok, err := r.bus.Send(frame)
	if err != nil || !ok {
		r.txBusy.Store(false)
		return false, err
	}
	return true, nil
}

// Idle reports whether the single outbound mailbox can accept a frame.
func (r *Router) Idle() bool { return !r.txBusy.Load() }

// RxOverflows counts frames dropped because the RX ring was full when
// the driver delivered them.
func (r *Router) RxOverflows() uint64 { return r.rxOverflows.Load() }

// handleBusEvent is the canbus.EventHandler installed on the transport.
// It runs in whatever context the driver calls back from — possibly
// outside the main loop — so it does nothing but push into the
// lock-free ring (RxComplete) or flip an atomic flag (everything else).
func (r *Router) handleBusEvent(event canbus.Event, frame canbus.Frame) {
	switch event {
	case canbus.EventRxComplete:
		if !r.rx.Push(frame) {
			r.rxOverflows.Add(1)
		}
	case canbus.EventTxComplete, canbus.EventAborted, canbus.EventChannelError:
		r.txBusy.Store(false)
	case canbus.EventBusOff:
		r.busOff.Store(true)
		r.txBusy.Store(false)
	case canbus.EventBusRecovery:
		r.busOff.Store(false)
	}
}

// Poll drains the RX ring and dispatches each frame to its registered
// node's handler, classified by function code per spec §4.4's table.
// This is the only place slot callbacks run, so it is safe for sinks
// to mutate node state freely.
func (r *Router) Poll(now int64) {
	for {
		frame, ok := r.rx.Pop()
		if !ok {
			return
		}
		r.dispatch(frame)
	}
}

func (r *Router) dispatch(frame canbus.Frame) {
	fc := FunctionCode(frame.ID)
	nodeID := NodeID(frame.ID)

	if fc == FuncNMT {
		return // broadcast command frame, not per-node
	}

	index, ok := r.byNodeID[nodeID]
	if !ok {
		return // unregistered node-id, dropped without error
	}
	s := &r.slots[index]

	switch {
	case fc == FuncEMCY && nodeID != 0:
		if s.emcy != nil {
			s.emcy.HandleEMCY(frame)
		}
	case fc == FuncSDOTx:
		if s.sdo != nil {
			s.sdo.HandleSDOResponse(frame)
		}
	case fc == FuncNMTErr:
		if s.guard != nil {
			s.guard.HandleGuardFrame(frame)
		}
	case tpdoDescriptorIndex(frame.ID) >= 0:
		if s.pdo != nil {
			s.pdo.HandleTPDO(frame)
		}
	default:
		r.log.Debug("router: dropped frame with no matching handler", "id", frame.ID, "node", nodeID)
	}
}
