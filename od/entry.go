// Package od implements the Object Dictionary primitives spec §3 and
// §9 call for: a typed, externally-visible cell per (index, sub-index)
// that is referenced — never copied — by whatever SDO transfer or PDO
// mapping touches it, so a PDO transmission always reads the latest
// value written by an SDO upload (read) or a previous TPDO decode.
//
// The teacher's pkg/od models a full CiA 301 server-side dictionary
// (ARRAY/RECORD objects, access attributes, EDS-driven construction,
// read/write extensions). A master stack has no server side to expose,
// so this package keeps only what spec §3 actually asks for: index,
// sub-index, a live byte cell, and its width — grounded on the shape
// of the teacher's pkg/od/variable.go minus everything server-specific.
package od

import (
	"encoding/binary"
	"fmt"
)

// Width is the storage width of an Entry. The wire formats in master's
// SDO and PDO codecs only ever deal with these four variants.
type Width uint8

const (
	Width1      Width = 1
	Width2      Width = 2
	Width4      Width = 4
	WidthString Width = 0 // variable length, bounded by cap(data)
)

// Entry is one Object Dictionary slot: index.subIndex holding a live
// value. It is created once with its owning node and thereafter mutated
// in place — by SDOClient on upload (read) responses, by the PDO engine
// when decoding an incoming TPDO — and its storage is handed out by
// reference (Bytes) to PDO mapping tables, never copied.
type Entry struct {
	Index    uint16
	SubIndex uint8
	Name     string // ambient, for logging only
	width    Width
	data     []byte
}

// NewEntry creates a fixed-width entry (width 1, 2 or 4) initialized to
// zero.
func NewEntry(index uint16, subIndex uint8, width Width) *Entry {
	if width != Width1 && width != Width2 && width != Width4 {
		panic(fmt.Sprintf("od: illegal fixed width %d", width))
	}
	return &Entry{Index: index, SubIndex: subIndex, width: width, data: make([]byte, width)}
}

// NewStringEntry creates a variable-length entry with room for at most
// maxLen bytes, initially empty.
func NewStringEntry(index uint16, subIndex uint8, maxLen int) *Entry {
	e := &Entry{Index: index, SubIndex: subIndex, width: WidthString, data: make([]byte, 0, maxLen)}
	return e
}

// Width reports the entry's declared width.
func (e *Entry) Width() Width { return e.width }

// Length returns the current live length in bytes: the fixed width for
// numeric entries, or the current string length.
func (e *Entry) Length() int { return len(e.data) }

// Bytes returns the entry's live storage by reference. Callers — PDO
// mapping tables in particular — must treat this as read-only unless
// they are the designated writer (SDOClient, PDO RX decode); it is the
// same backing array on every call, not a snapshot.
func (e *Entry) Bytes() []byte { return e.data }

// WriteBytes overwrites the entry's live value. For fixed-width
// entries, len(value) must equal the declared width. For string
// entries, len(value) must not exceed the capacity passed to
// NewStringEntry.
func (e *Entry) WriteBytes(value []byte) error {
	switch e.width {
	case WidthString:
		if len(value) > cap(e.data) {
			return fmt.Errorf("od: value of %d bytes exceeds x%04X.%d capacity %d", len(value), e.Index, e.SubIndex, cap(e.data))
		}
		e.data = e.data[:len(value)]
		copy(e.data, value)
	default:
		if len(value) != int(e.width) {
			return fmt.Errorf("od: value of %d bytes does not match x%04X.%d width %d", len(value), e.Index, e.SubIndex, e.width)
		}
		copy(e.data, value)
	}
	return nil
}

// Uint8 reads a 1-byte entry.
func (e *Entry) Uint8() (uint8, error) {
	if e.width != Width1 {
		return 0, fmt.Errorf("od: x%04X.%d is not a 1-byte entry", e.Index, e.SubIndex)
	}
	return e.data[0], nil
}

// Uint16 reads a 2-byte little-endian entry.
func (e *Entry) Uint16() (uint16, error) {
	if e.width != Width2 {
		return 0, fmt.Errorf("od: x%04X.%d is not a 2-byte entry", e.Index, e.SubIndex)
	}
	return binary.LittleEndian.Uint16(e.data), nil
}

// Uint32 reads a 4-byte little-endian entry.
func (e *Entry) Uint32() (uint32, error) {
	if e.width != Width4 {
		return 0, fmt.Errorf("od: x%04X.%d is not a 4-byte entry", e.Index, e.SubIndex)
	}
	return binary.LittleEndian.Uint32(e.data), nil
}

// SetUint8 writes a 1-byte entry.
func (e *Entry) SetUint8(v uint8) error { return e.WriteBytes([]byte{v}) }

// SetUint16 writes a 2-byte little-endian entry.
func (e *Entry) SetUint16(v uint16) error {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, v)
	return e.WriteBytes(buf)
}

// SetUint32 writes a 4-byte little-endian entry.
func (e *Entry) SetUint32(v uint32) error {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, v)
	return e.WriteBytes(buf)
}

// String reads a variable-length string entry.
func (e *Entry) String() (string, error) {
	if e.width != WidthString {
		return "", fmt.Errorf("od: x%04X.%d is not a string entry", e.Index, e.SubIndex)
	}
	return string(e.data), nil
}

// SetString writes a variable-length string entry.
func (e *Entry) SetString(s string) error { return e.WriteBytes([]byte(s)) }

// Dictionary is a per-node table of Entry objects keyed by
// (index, sub-index), the "OD image" spec §3 describes: the values the
// master exposes into PDOs and the targets of SDO transfers.
type Dictionary struct {
	entries map[uint32]*Entry
}

// NewDictionary returns an empty dictionary.
func NewDictionary() *Dictionary {
	return &Dictionary{entries: make(map[uint32]*Entry)}
}

func key(index uint16, subIndex uint8) uint32 {
	return uint32(index)<<8 | uint32(subIndex)
}

// Add registers entry under its own (Index, SubIndex), replacing any
// previous entry at that slot.
func (d *Dictionary) Add(entry *Entry) {
	d.entries[key(entry.Index, entry.SubIndex)] = entry
}

// AddFixed is a convenience wrapper creating and registering a
// fixed-width entry in one call.
func (d *Dictionary) AddFixed(index uint16, subIndex uint8, width Width) *Entry {
	e := NewEntry(index, subIndex, width)
	d.Add(e)
	return e
}

// Find looks up an entry, returning nil if it does not exist.
func (d *Dictionary) Find(index uint16, subIndex uint8) *Entry {
	return d.entries[key(index, subIndex)]
}

// MustFind looks up an entry and panics if absent. Intended for
// bootstrap-time wiring of an OD image built in-process, where a
// missing entry is a programming error, not a runtime condition.
func (d *Dictionary) MustFind(index uint16, subIndex uint8) *Entry {
	e := d.Find(index, subIndex)
	if e == nil {
		panic(fmt.Sprintf("od: entry x%04X.%d not registered", index, subIndex))
	}
	return e
}
