package master

import (
	"log/slog"

	"github.com/aw4Motion/CANopen4Drives/od"
)

// LivenessConfig selects a node's liveness supervision mode. Exactly
// one of GuardTimeMs/HBProducerTimeMs must be non-zero, spec §3's
// invariant.
type LivenessConfig struct {
	GuardTimeMs      uint16
	LiveTimeFactor   uint8
	HBProducerTimeMs uint16
}

// RemoteNode is the composite {Supervisor, SDOClient, PDOEngine} keyed
// by node-id, spec §2's "Dependency leaves first" summary: one record
// per configured node, with its own OD image.
type RemoteNode struct {
	NodeID uint8

	handle     *NodeHandle
	SDO        *SDOClient
	Supervisor *Supervisor
	PDO        *PDOEngine
	OD         *od.Dictionary
}

// NewRemoteNode registers nodeID with router and assembles its SDO
// client, supervisor and PDO engine around the same handle.
func NewRemoteNode(router *Router, nodeID uint8, liveness LivenessConfig, log *slog.Logger) (*RemoteNode, error) {
	handle, err := router.RegisterNode(nodeID)
	if err != nil {
		return nil, err
	}
	sdo := NewSDOClient(handle, log)
	sup, err := NewSupervisor(handle, sdo, liveness.GuardTimeMs, liveness.LiveTimeFactor, liveness.HBProducerTimeMs, log)
	if err != nil {
		router.UnregisterNode(handle)
		return nil, err
	}
	pdo := NewPDOEngine(handle, sdo, log)
	return &RemoteNode{
		NodeID:     nodeID,
		handle:     handle,
		SDO:        sdo,
		Supervisor: sup,
		PDO:        pdo,
		OD:         od.NewDictionary(),
	}, nil
}

// Update advances this node's Supervisor and PDO engine by one tick,
// spec §2's "node.update(now, last_sync_state)" control flow.
func (n *RemoteNode) Update(now int64, sync SyncState) NMTState {
	state := n.Supervisor.Update(now)
	n.PDO.Update(now, sync == SyncSent)
	return state
}

// Close unregisters the node from its router, freeing its slot.
func (n *RemoteNode) Close(router *Router) { router.UnregisterNode(n.handle) }

// Registry keeps the set of RemoteNodes a master is supervising,
// keyed by node-id, and drives them as a group each tick.
type Registry struct {
	router *Router
	nodes  map[uint8]*RemoteNode
}

// NewRegistry returns an empty node registry bound to router.
func NewRegistry(router *Router) *Registry {
	return &Registry{router: router, nodes: make(map[uint8]*RemoteNode)}
}

// Add registers and returns a new RemoteNode for nodeID.
func (r *Registry) Add(nodeID uint8, liveness LivenessConfig, log *slog.Logger) (*RemoteNode, error) {
	if _, exists := r.nodes[nodeID]; exists {
		return nil, ErrNodeAlreadyExists
	}
	node, err := NewRemoteNode(r.router, nodeID, liveness, log)
	if err != nil {
		return nil, err
	}
	r.nodes[nodeID] = node
	return node, nil
}

// Get returns the node registered under nodeID, or nil.
func (r *Registry) Get(nodeID uint8) *RemoteNode { return r.nodes[nodeID] }

// Remove unregisters and drops nodeID from the registry.
func (r *Registry) Remove(nodeID uint8) {
	if node, ok := r.nodes[nodeID]; ok {
		node.Close(r.router)
		delete(r.nodes, nodeID)
	}
}

// All returns every registered node, in no particular order.
func (r *Registry) All() []*RemoteNode {
	out := make([]*RemoteNode, 0, len(r.nodes))
	for _, node := range r.nodes {
		out = append(out, node)
	}
	return out
}

// UpdateAll advances every registered node by one tick.
func (r *Registry) UpdateAll(now int64, sync SyncState) {
	for _, node := range r.nodes {
		node.Update(now, sync)
	}
}
