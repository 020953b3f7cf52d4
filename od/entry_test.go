package od

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFixedEntryRoundTrip(t *testing.T) {
	e := NewEntry(0x6040, 0, Width2)
	require.NoError(t, e.SetUint16(0x0006))
	v, err := e.Uint16()
	require.NoError(t, err)
	require.Equal(t, uint16(0x0006), v)
	require.Equal(t, 2, e.Length())
}

func TestFixedEntryRejectsWrongWidth(t *testing.T) {
	e := NewEntry(0x6041, 0, Width2)
	require.Error(t, e.WriteBytes([]byte{1, 2, 3}))
	_, err := e.Uint32()
	require.Error(t, err)
}

func TestStringEntryGrowsWithinCapacity(t *testing.T) {
	e := NewStringEntry(0x1008, 0, 16)
	require.NoError(t, e.SetString("conmaster"))
	s, err := e.String()
	require.NoError(t, err)
	require.Equal(t, "conmaster", s)
	require.Equal(t, len("conmaster"), e.Length())
}

func TestStringEntryRejectsOverflow(t *testing.T) {
	e := NewStringEntry(0x1008, 0, 4)
	require.Error(t, e.SetString("too long"))
}

func TestBytesReferencesLiveStorage(t *testing.T) {
	e := NewEntry(0x6064, 0, Width4)
	ref := e.Bytes()
	require.NoError(t, e.SetUint32(42))
	v, err := e.Uint32()
	require.NoError(t, err)
	require.Equal(t, uint32(42), v)
	// ref observes the same backing array e.data was written into.
	require.Equal(t, e.Bytes(), ref)
}

func TestDictionaryFindAndMustFind(t *testing.T) {
	d := NewDictionary()
	d.AddFixed(0x6040, 0, Width2)
	require.NotNil(t, d.Find(0x6040, 0))
	require.Nil(t, d.Find(0x6041, 0))
	require.Panics(t, func() { d.MustFind(0x6041, 0) })
}
