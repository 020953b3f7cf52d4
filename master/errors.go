// Package master implements the CANopen master-side protocol engine:
// the Bus Router, SDO Client, Node Supervisor, PDO Engine and Sync
// Master components, wired together by RemoteNode. Every stateful
// operation here is a re-entrant step driver — callers poll it from a
// single-threaded loop until it reaches a terminal CommState — grounded
// on the teacher's own preference for synchronous Process(now) methods
// over goroutines-per-node, just without the goroutines: this package
// owns no background threads at all.
package master

import "errors"

// Sentinel errors for programming-level misuse, distinct from the
// protocol-level CommState outcomes a step driver returns.
var (
	ErrIllegalArgument   = errors.New("master: illegal argument")
	ErrNodeAlreadyExists = errors.New("master: node id already registered")
	ErrNodeNotFound      = errors.New("master: node id not registered")
	ErrBusNotOpen        = errors.New("master: bus not open")
	ErrTransactionBusy   = errors.New("master: previous transaction still in progress")
	ErrIllegalBitrate    = errors.New("master: illegal bitrate")
	ErrLivenessConflict  = errors.New("master: guard_time and hb_producer_time are mutually exclusive")
)

// CommState is the outcome a step driver reports on every poll. It
// mirrors spec's five-way split between transient and terminal
// results: Busy/Retry mean "call me again next tick", Done/Error/
// Timeout are terminal and latch until the caller calls Reset.
type CommState int

const (
	Idle CommState = iota
	Busy
	Done
	Error
	Timeout
	Retry
)

func (s CommState) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Busy:
		return "Busy"
	case Done:
		return "Done"
	case Error:
		return "Error"
	case Timeout:
		return "Timeout"
	case Retry:
		return "Retry"
	default:
		return "Unknown"
	}
}

// Terminal reports whether s is one a caller must clear with Reset
// before starting a new transaction.
func (s CommState) Terminal() bool {
	return s == Done || s == Error || s == Timeout
}
