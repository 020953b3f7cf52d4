package master

import (
	"encoding/binary"
	"log/slog"

	"github.com/aw4Motion/CANopen4Drives/canbus"
	"github.com/aw4Motion/CANopen4Drives/od"
)

// cobIDInvalidFlag is bit 31 of a PDO communication parameter's
// sub-1: set means the COB-ID is not valid on the wire, spec §3's
// invariant pairing it with the descriptor's own is_valid flag.
const cobIDInvalidFlag uint32 = 1 << 31

// pdoCommBase/pdoMapBase are the CiA 301 communication- and
// mapping-parameter index bases for RPDO (0x14xx/0x16xx) and TPDO
// (0x18xx/0x1Axx), indexed 0..3 for PDO number 1..4.
const (
	rpdoCommBase uint16 = 0x1400
	rpdoMapBase  uint16 = 0x1600
	tpdoCommBase uint16 = 0x1800
	tpdoMapBase  uint16 = 0x1A00
)

// PDOMapping is one mapped OD entry inside a PDO descriptor: a
// reference (never a copy) to the live value, plus its width on the
// wire. Up to 4 mappings per descriptor, spec §4.3.
type PDOMapping struct {
	Entry     *od.Entry
	WidthBits uint8
}

// PDODescriptor models one RPDO or TPDO slot, spec §4.3's per-PDO data.
type PDODescriptor struct {
	CobID            uint32 // bit 31 = invalid-on-wire flag
	TransmissionType uint8
	InhibitTime      uint16 // 100us units
	EventTimer       uint16 // ms
	Mapping          []PDOMapping
	Valid            bool // local configuration intent

	pending int
	sentAt  int64
}

// OnWireValid reports whether the descriptor's COB-ID, as configured
// on the node, has its invalid flag (bit 31) clear.
func (d *PDODescriptor) OnWireValid() bool { return d.CobID&cobIDInvalidFlag == 0 }

// payloadLength sums the mapped widths in bytes.
func (d *PDODescriptor) payloadLength() int {
	total := 0
	for _, m := range d.Mapping {
		total += int(m.WidthBits) / 8
	}
	return total
}

// PDOEngine is the per-node PDO configuration-by-SDO sequencer and
// runtime dispatcher, spec §4.3. Grounded on the shape of the
// teacher's pkg/pdo/rpdo.go and tpdo.go (Process loop, streamer byte
// packing) and pkg/config/pdo.go (the SDO-driven configuration
// sequence), but with RPDO/TPDO named from the remote node's own
// perspective per spec's COB-ID table rather than the teacher's
// locally-inverted naming (its "RPDO" consumes the remote's TPDO).
type PDOEngine struct {
	handle *NodeHandle
	sdo    *SDOClient
	log    *slog.Logger

	rpdo [4]PDODescriptor
	tpdo [4]PDODescriptor

	configuring   bool
	configPDOIdx  int
	configEntries []*od.Entry

	rrCursor int
}

// NewPDOEngine returns an engine with default (pre-configuration)
// COB-IDs and all descriptors invalid, bound to handle's node.
func NewPDOEngine(handle *NodeHandle, sdo *SDOClient, log *slog.Logger) *PDOEngine {
	if log == nil {
		log = slog.Default()
	}
	e := &PDOEngine{handle: handle, sdo: sdo, log: log}
	for n := 0; n < 4; n++ {
		e.rpdo[n].CobID = uint32(RPDOCobID(n+1, handle.NodeID())) | cobIDInvalidFlag
		e.tpdo[n].CobID = uint32(TPDOCobID(n+1, handle.NodeID())) | cobIDInvalidFlag
	}
	handle.SetPDOSink(e)
	return e
}

// PresetRxMapping configures RPDO number n's (1..4) OD mapping.
func (e *PDOEngine) PresetRxMapping(n int, mapping []PDOMapping) { e.rpdo[n-1].Mapping = mapping }

// PresetTxMapping configures TPDO number n's (1..4) OD mapping.
func (e *PDOEngine) PresetTxMapping(n int, mapping []PDOMapping) { e.tpdo[n-1].Mapping = mapping }

// PresetRxTransmission sets RPDO n's transmission type.
func (e *PDOEngine) PresetRxTransmission(n int, transmissionType uint8) {
	e.rpdo[n-1].TransmissionType = transmissionType
}

// PresetTxTransmission sets TPDO n's transmission type, inhibit time
// and event timer.
func (e *PDOEngine) PresetTxTransmission(n int, transmissionType uint8, inhibitTime, eventTimer uint16) {
	d := &e.tpdo[n-1]
	d.TransmissionType = transmissionType
	d.InhibitTime = inhibitTime
	d.EventTimer = eventTimer
}

// PresetRxValid marks RPDO n valid or invalid for the next
// ConfigurePresetPDOs pass.
func (e *PDOEngine) PresetRxValid(n int, valid bool) { e.rpdo[n-1].Valid = valid }

// PresetTxValid marks TPDO n valid or invalid for the next
// ConfigurePresetPDOs pass.
func (e *PDOEngine) PresetTxValid(n int, valid bool) { e.tpdo[n-1].Valid = valid }

func mappingWord(entry *od.Entry, widthBits uint8) uint32 {
	return uint32(entry.Index)<<16 | uint32(entry.SubIndex)<<8 | uint32(widthBits)
}

// buildConfigEntries constructs the ordered vector of OD writes for
// configuring PDO slot idx (0..3 RPDO1-4, 4..7 TPDO1-4), per spec
// §4.3's seven-step sequence.
func (e *PDOEngine) buildConfigEntries(idx int) []*od.Entry {
	isTPDO := idx >= 4
	n := idx
	var d *PDODescriptor
	var commBase, mapBase uint16
	if isTPDO {
		n = idx - 4
		d = &e.tpdo[n]
		commBase, mapBase = tpdoCommBase, tpdoMapBase
	} else {
		d = &e.rpdo[n]
		commBase, mapBase = rpdoCommBase, rpdoMapBase
	}
	commIndex := commBase + uint16(n)
	mapIndex := mapBase + uint16(n)

	var entries []*od.Entry

	disable := od.NewEntry(commIndex, 1, od.Width4)
	_ = disable.SetUint32(d.CobID | cobIDInvalidFlag)
	entries = append(entries, disable)

	clearCount := od.NewEntry(mapIndex, 0, od.Width1)
	_ = clearCount.SetUint8(0)
	entries = append(entries, clearCount)

	for k, m := range d.Mapping {
		sub := od.NewEntry(mapIndex, uint8(k+1), od.Width4)
		_ = sub.SetUint32(mappingWord(m.Entry, m.WidthBits))
		entries = append(entries, sub)
	}

	setCount := od.NewEntry(mapIndex, 0, od.Width1)
	_ = setCount.SetUint8(uint8(len(d.Mapping)))
	entries = append(entries, setCount)

	txType := od.NewEntry(commIndex, 2, od.Width1)
	_ = txType.SetUint8(d.TransmissionType)
	entries = append(entries, txType)

	if isTPDO {
		inhibit := od.NewEntry(commIndex, 3, od.Width2)
		_ = inhibit.SetUint16(d.InhibitTime)
		event := od.NewEntry(commIndex, 5, od.Width2)
		_ = event.SetUint16(d.EventTimer)
		entries = append(entries, inhibit, event)
	}

	if d.Valid && len(d.Mapping) > 0 {
		enable := od.NewEntry(commIndex, 1, od.Width4)
		baseID := d.CobID &^ cobIDInvalidFlag
		_ = enable.SetUint32(baseID)
		entries = append(entries, enable)
	}

	return entries
}

func (e *PDOEngine) applyConfigResult(idx int) {
	var d *PDODescriptor
	if idx >= 4 {
		d = &e.tpdo[idx-4]
	} else {
		d = &e.rpdo[idx]
	}
	if d.Valid && len(d.Mapping) > 0 {
		d.CobID &^= cobIDInvalidFlag
	} else {
		d.CobID |= cobIDInvalidFlag
	}
}

// ConfigurePresetPDOs drives all 8 PDO descriptors' SDO configuration
// sequences to completion, one at a time, spec §4.3.
func (e *PDOEngine) ConfigurePresetPDOs(now int64) CommState {
	if !e.configuring {
		e.configuring = true
		e.configPDOIdx = 0
		e.configEntries = e.buildConfigEntries(0)
		e.sdo.Reset()
	}
	state := e.sdo.WriteObjects(now, e.configEntries)
	switch state {
	case Done:
		e.applyConfigResult(e.configPDOIdx)
		e.configPDOIdx++
		if e.configPDOIdx >= 8 {
			e.configuring = false
			return Done
		}
		e.configEntries = e.buildConfigEntries(e.configPDOIdx)
		e.sdo.Reset()
		return Busy
	case Error, Timeout:
		e.configuring = false
		return Error
	default:
		return state
	}
}

// Update runs one tick of runtime dispatch: cyclic-sync triggering on
// SyncSent, then a single round-robin RPDO transmission attempt.
func (e *PDOEngine) Update(now int64, syncSent bool) {
	if syncSent {
		for i := range e.rpdo {
			if e.rpdo[i].TransmissionType == 1 {
				e.rpdo[i].pending++
			}
		}
	}
	d := &e.rpdo[e.rrCursor]
	if d.pending > 0 && d.OnWireValid() {
		if e.sendRPDO(d, now) {
			d.pending--
			d.sentAt = now
		}
	}
	e.rrCursor = (e.rrCursor + 1) % 4
}

func (e *PDOEngine) sendRPDO(d *PDODescriptor, now int64) bool {
	frame := canbus.Frame{ID: uint16(d.CobID & 0x7FF), Length: uint8(d.payloadLength())}
	offset := 0
	for _, m := range d.Mapping {
		width := int(m.WidthBits) / 8
		copy(frame.Data[offset:offset+width], m.Entry.Bytes())
		offset += width
	}
	ok, err := e.handle.Send(frame)
	return err == nil && ok
}

// TxRPDOsAsync is called on an application write to an OD entry: any
// RPDO mapping referencing entry with an event-driven transmission
// type (254 or 255) has its pending count bumped. Returns true iff a
// match was found.
func (e *PDOEngine) TxRPDOsAsync(entry *od.Entry) bool {
	found := false
	for i := range e.rpdo {
		d := &e.rpdo[i]
		if d.TransmissionType != 254 && d.TransmissionType != 255 {
			continue
		}
		for _, m := range d.Mapping {
			if m.Entry == entry {
				d.pending++
				found = true
				break
			}
		}
	}
	return found
}

// HandleTPDO implements PDOSink: decodes an incoming TPDO frame into
// its mapped OD entries, spec §4.3's RX-decode rule.
func (e *PDOEngine) HandleTPDO(frame canbus.Frame) {
	idx := tpdoDescriptorIndex(frame.ID)
	if idx < 0 {
		return
	}
	d := &e.tpdo[idx]
	if !d.OnWireValid() || len(d.Mapping) == 0 {
		return
	}
	offset := 0
	for _, m := range d.Mapping {
		width := int(m.WidthBits) / 8
		if offset+width > int(frame.Length) {
			return
		}
		switch width {
		case 1:
			_ = m.Entry.SetUint8(frame.Data[offset])
		case 2:
			_ = m.Entry.SetUint16(binary.LittleEndian.Uint16(frame.Data[offset : offset+2]))
		case 4:
			_ = m.Entry.SetUint32(binary.LittleEndian.Uint32(frame.Data[offset : offset+4]))
		}
		offset += width
	}
}
