package master

import (
	"encoding/binary"
	"log/slog"

	"github.com/aw4Motion/CANopen4Drives/canbus"
	"github.com/aw4Motion/CANopen4Drives/od"
)

// Command specifiers, spec §4.1's frame-format table.
const (
	csDownloadSegment  byte = 0
	csInitiateDownload byte = 1
	csInitiateUpload   byte = 2
	csUploadSegment     byte = 3
	csAbort            byte = 4

	scsDownloadSegment  byte = 1
	scsInitiateUpload   byte = 2
	scsInitiateDownload byte = 3
	scsUploadSegment    byte = 0
)

const (
	// SDORespTimeout is the request-to-response window, spec §4.1.
	SDORespTimeout int64 = 20
	// DefaultBusyRetryMax bounds Retry outcomes from a busy TX mailbox.
	DefaultBusyRetryMax = 3
	// DefaultTimeoutRetryMax bounds retries from the current step after
	// a response timeout, before surfacing a terminal Timeout.
	DefaultTimeoutRetryMax = 3
)

type sdoStep int

const (
	stepIdle sdoStep = iota
	stepDownloadInitiate
	stepDownloadSegment
	stepUploadInitiate
	stepUploadSegment
)

type sdoOp int

const (
	opNone sdoOp = iota
	opRead
	opWrite
)

// SDOClient is the per-node SDO request/response step driver, spec
// §4.1. Grounded on the shape of the teacher's pkg/sdo/client.go
// (toggle bit tracked as the already-shifted 0x00/0x10 value, command
// bytes composed the same way) but rebuilt as a polled state machine
// with no internal goroutine or blocking channel receive — HandleSDOResponse
// advances the same state that Read/Write poll, since both run in the
// single main-loop context between Router.Poll and Node.Update.
type SDOClient struct {
	handle *NodeHandle
	log    *slog.Logger

	busyRetryMax    int
	timeoutRetryMax int

	op     sdoOp
	step   sdoStep
	result CommState
	abort  AbortCode

	index    uint16
	subIndex uint8

	writeData []byte
	writeDone int

	readBuf   []byte
	readTotal int
	readDone  int

	toggle byte

	lastFrame     canbus.Frame
	havePending   bool
	requestSentAt int64
	busyRetries   int
	timeoutRetries int
	now           int64

	bulk      []*od.Entry
	bulkIndex int
	bulkRead  bool
}

// NewSDOClient returns a client bound to handle, its node's slot in
// the Router.
func NewSDOClient(handle *NodeHandle, log *slog.Logger) *SDOClient {
	if log == nil {
		log = slog.Default()
	}
	c := &SDOClient{
		handle:          handle,
		log:             log,
		busyRetryMax:    DefaultBusyRetryMax,
		timeoutRetryMax: DefaultTimeoutRetryMax,
	}
	handle.SetSDOSink(c)
	return c
}

// Reset clears a latched terminal result, readying the client for a
// new transaction, per spec §4.1's "Done is latched" contract.
func (c *SDOClient) Reset() {
	c.clearTransaction()
	c.bulk = nil
}

// clearTransaction resets single-entry transaction state without
// touching an in-progress bulk vector, so ReadObjects/WriteObjects can
// reuse it to step to the next entry.
func (c *SDOClient) clearTransaction() {
	c.op = opNone
	c.step = stepIdle
	c.result = Idle
	c.havePending = false
}

// AbortCode reports the last SDO abort code received, valid only
// after Read/Write returns Error.
func (c *SDOClient) AbortCode() AbortCode { return c.abort }

// Read requests index.subIndex from the node and copies the response
// into buf. The caller must invoke Read again with the same
// (index, subIndex, buf) every tick until a terminal CommState is
// returned; n is only meaningful once that state is Done.
func (c *SDOClient) Read(now int64, index uint16, subIndex uint8, buf []byte) (CommState, int) {
	c.now = now
	if c.op == opNone {
		c.beginRead(index, subIndex, buf)
	} else if c.op != opRead || c.index != index || c.subIndex != subIndex {
		return Busy, 0 // reject: a different transaction is already in flight
	}
	return c.drive(), c.readDone
}

// Write downloads data to index.subIndex on the node. The caller must
// invoke Write again with the same arguments every tick until a
// terminal CommState is returned.
func (c *SDOClient) Write(now int64, index uint16, subIndex uint8, data []byte) CommState {
	c.now = now
	if c.op == opNone {
		c.beginWrite(index, subIndex, data)
	} else if c.op != opWrite || c.index != index || c.subIndex != subIndex {
		return Busy
	}
	return c.drive()
}

func (c *SDOClient) beginRead(index uint16, subIndex uint8, buf []byte) {
	c.op = opRead
	c.index, c.subIndex = index, subIndex
	c.readBuf = buf
	c.readDone = 0
	c.readTotal = 0
	c.result = Busy
	c.step = stepUploadInitiate
	frame := canbus.Frame{ID: SDORequestID(c.handle.NodeID()), Length: 8}
	frame.Data[0] = csInitiateUpload << 5
	binary.LittleEndian.PutUint16(frame.Data[1:3], index)
	frame.Data[3] = subIndex
	c.attemptSend(frame)
}

func (c *SDOClient) beginWrite(index uint16, subIndex uint8, data []byte) {
	c.op = opWrite
	c.index, c.subIndex = index, subIndex
	c.writeData = data
	c.writeDone = 0
	c.result = Busy
	c.step = stepDownloadInitiate

	frame := canbus.Frame{ID: SDORequestID(c.handle.NodeID()), Length: 8}
	binary.LittleEndian.PutUint16(frame.Data[1:3], index)
	frame.Data[3] = subIndex
	if len(data) <= 4 {
		n := 4 - len(data)
		frame.Data[0] = csInitiateDownload<<5 | byte(n)<<2 | 0x02 | 0x01
		copy(frame.Data[4:4+len(data)], data)
	} else {
		frame.Data[0] = csInitiateDownload<<5 | 0x01
		binary.LittleEndian.PutUint32(frame.Data[4:8], uint32(len(data)))
	}
	c.attemptSend(frame)
}

// drive advances the request phase: resending a frame that was
// deferred by a busy mailbox, or checking the response-timeout window
// on a frame that is in flight.
func (c *SDOClient) drive() CommState {
	if c.result.Terminal() {
		return c.result
	}
	if c.havePending {
		return c.resend(c.lastFrame)
	}
	if c.now-c.requestSentAt > SDORespTimeout {
		c.timeoutRetries++
		if c.timeoutRetries > c.timeoutRetryMax {
			c.result = Timeout
			return Timeout
		}
		return c.resend(c.lastFrame)
	}
	return Busy
}

// attemptSend is the first attempt to put frame on the wire for a new
// step; resend is used for both busy-mailbox and timeout retries of
// the same frame.
func (c *SDOClient) attemptSend(frame canbus.Frame) CommState {
	c.lastFrame = frame
	ok, err := c.handle.Send(frame)
	if err != nil {
		c.result = Error
		return Error
	}
	if !ok {
		c.havePending = true
		return Retry
	}
	c.havePending = false
	c.requestSentAt = c.now
	c.busyRetries = 0
	c.timeoutRetries = 0
	return Busy
}

func (c *SDOClient) resend(frame canbus.Frame) CommState {
	ok, err := c.handle.Send(frame)
	if err != nil {
		c.result = Error
		return Error
	}
	if !ok {
		c.busyRetries++
		if c.busyRetries > c.busyRetryMax {
			c.result = Error
			return Error
		}
		c.havePending = true
		return Retry
	}
	c.havePending = false
	c.requestSentAt = c.now
	return Busy
}

// HandleSDOResponse implements SDOSink. It runs from Router.Poll, in
// the same single-threaded context Read/Write are polled from.
func (c *SDOClient) HandleSDOResponse(frame canbus.Frame) {
	if c.op == opNone || c.result.Terminal() {
		return
	}
	data := frame.Data
	b0 := data[0]

	if b0 == csAbort<<5 {
		c.abort = AbortCode(binary.LittleEndian.Uint32(data[4:8]))
		c.result = Error
		return
	}
	if c.step == stepDownloadInitiate || c.step == stepUploadInitiate {
		if binary.LittleEndian.Uint16(data[1:3]) != c.index || data[3] != c.subIndex {
			c.result = Error
			return
		}
	}

	switch c.step {
	case stepDownloadInitiate:
		if b0 != scsInitiateDownload<<5 {
			c.result = Error
			return
		}
		if len(c.writeData) <= 4 {
			c.result = Done
			return
		}
		c.toggle = 0
		c.sendNextDownloadSegment()

	case stepDownloadSegment:
		if b0&0xEF != scsDownloadSegment<<5 {
			c.result = Error
			return
		}
		if b0&0x10 != c.toggle {
			c.result = Error
			return
		}
		c.toggle ^= 0x10
		if c.writeDone >= len(c.writeData) {
			c.result = Done
			return
		}
		c.sendNextDownloadSegment()

	case stepUploadInitiate:
		e := b0&0x02 != 0
		s := b0&0x01 != 0
		if b0&0xF0 != scsInitiateUpload<<5 {
			c.result = Error
			return
		}
		if e && s {
			n := int((b0 >> 2) & 0x03)
			length := 4 - n
			if length > len(c.readBuf) {
				c.result = Error
				return
			}
			copy(c.readBuf, data[4:4+length])
			c.readDone = length
			c.result = Done
			return
		}
		if !s {
			c.result = Error
			return
		}
		c.readTotal = int(binary.LittleEndian.Uint32(data[4:8]))
		if c.readTotal > len(c.readBuf) {
			c.result = Error
			return
		}
		if c.readTotal == 0 {
			c.result = Done
			return
		}
		c.toggle = 0
		c.step = stepUploadSegment
		c.sendUploadSegmentRequest()

	case stepUploadSegment:
		if b0&0xE0 != scsUploadSegment<<5 {
			c.result = Error
			return
		}
		if b0&0x10 != c.toggle {
			c.result = Error
			return
		}
		n := int((b0 >> 1) & 0x07)
		segLen := 7 - n
		if c.readDone+segLen > len(c.readBuf) {
			c.result = Error
			return
		}
		copy(c.readBuf[c.readDone:], data[1:1+segLen])
		c.readDone += segLen
		more := b0&0x01 == 0
		c.toggle ^= 0x10
		if !more {
			c.result = Done
			return
		}
		c.sendUploadSegmentRequest()
	}
}

func (c *SDOClient) sendNextDownloadSegment() {
	remaining := len(c.writeData) - c.writeDone
	segLen := remaining
	if segLen > 7 {
		segLen = 7
	}
	last := segLen == remaining
	n := 7 - segLen

	frame := canbus.Frame{ID: SDORequestID(c.handle.NodeID()), Length: 8}
	b0 := csDownloadSegment<<5 | c.toggle | byte(n)<<1
	if last {
		b0 |= 0x01
	}
	frame.Data[0] = b0
	copy(frame.Data[1:1+segLen], c.writeData[c.writeDone:c.writeDone+segLen])
	c.writeDone += segLen
	c.step = stepDownloadSegment
	c.attemptSend(frame)
}

func (c *SDOClient) sendUploadSegmentRequest() {
	frame := canbus.Frame{ID: SDORequestID(c.handle.NodeID()), Length: 8}
	frame.Data[0] = csUploadSegment<<5 | c.toggle
	c.attemptSend(frame)
}

// ReadObjects drives entries' OD values through successive Read calls,
// one entry at a time, advancing only after the previous entry's
// transfer terminates Done; each entry's live storage receives the
// bytes read directly. Any per-entry Error aborts the whole vector.
func (c *SDOClient) ReadObjects(now int64, entries []*od.Entry) CommState {
	return c.driveBulk(now, entries, true)
}

// WriteObjects is ReadObjects' write-direction counterpart: each
// entry's live value is sent to the node in turn.
func (c *SDOClient) WriteObjects(now int64, entries []*od.Entry) CommState {
	return c.driveBulk(now, entries, false)
}

func (c *SDOClient) driveBulk(now int64, entries []*od.Entry, isRead bool) CommState {
	if c.bulk == nil {
		if len(entries) == 0 {
			return Done
		}
		c.bulk = entries
		c.bulkIndex = 0
		c.bulkRead = isRead
		c.clearTransaction()
	}
	entry := c.bulk[c.bulkIndex]
	var state CommState
	if isRead {
		// entry.Bytes() is sized to the entry's current length, which
		// for a variable-length entry may be shorter (even zero) than
		// what the node is about to send; read into a buffer sized to
		// the entry's declared capacity instead, then write the
		// received bytes back so the entry's length reflects what was
		// actually read, spec §4.1's "update length on read".
		buf := make([]byte, cap(entry.Bytes()))
		var n int
		state, n = c.Read(now, entry.Index, entry.SubIndex, buf)
		if state == Done {
			if err := entry.WriteBytes(c.readBuf[:n]); err != nil {
				c.bulk = nil
				c.abort = AbortGeneral
				return Error
			}
		}
	} else {
		state = c.Write(now, entry.Index, entry.SubIndex, entry.Bytes())
	}

	switch state {
	case Done:
		c.bulkIndex++
		c.clearTransaction()
		if c.bulkIndex >= len(c.bulk) {
			c.bulk = nil
			return Done
		}
		return Busy
	case Error, Timeout:
		c.bulk = nil
		return state
	default:
		return state
	}
}
