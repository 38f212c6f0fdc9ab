package sync

import (
	"testing"

	enc "github.com/named-data/ndnd/std/encoding"
	"github.com/stretchr/testify/require"
)

func mustName(t *testing.T, uri string) enc.Name {
	n, err := enc.NameFromStr(uri)
	require.NoError(t, err)
	return n
}

// Empty State round-trips to an empty map and its own bytes.
func TestStateEmptyRoundTrip(t *testing.T) {
	s := NewState()
	encoded := s.Encode()

	decoded, err := DecodeState(encoded)
	require.NoError(t, err)
	require.Empty(t, decoded.Entries())
	require.Equal(t, encoded, decoded.Encode())
}

// Two names with no piggybacked blocks.
func TestStateTwoNamesNoBlocks(t *testing.T) {
	s := NewState()
	s.Add(mustName(t, "/test1"), nil)
	s.Add(mustName(t, "/test2"), nil)

	decoded, err := DecodeState(s.Encode())
	require.NoError(t, err)
	require.True(t, s.Equals(decoded))

	for _, e := range decoded.Entries() {
		require.Nil(t, e.Block)
	}
}

// Piggybacked blocks round-trip byte for byte.
func TestStatePiggyback(t *testing.T) {
	s := NewState()
	s.Add(mustName(t, "/test1"), []byte("data-one"))
	s.Add(mustName(t, "/test2"), []byte("data-two"))

	decoded, err := DecodeState(s.Encode())
	require.NoError(t, err)
	require.True(t, s.Equals(decoded))
	require.Equal(t, []byte("data-one"), decoded.Entries()[0].Block)
	require.Equal(t, []byte("data-two"), decoded.Entries()[1].Block)
}

// Mixed piggyback: some names carry a block, some don't.
func TestStateMixedPiggyback(t *testing.T) {
	s := NewState()
	s.Add(mustName(t, "/test0"), nil)
	s.Add(mustName(t, "/test1"), []byte("d1"))
	s.Add(mustName(t, "/test2"), nil)
	s.Add(mustName(t, "/test3"), []byte("d2"))

	encoded := s.Encode()
	decoded, err := DecodeState(encoded)
	require.NoError(t, err)
	require.True(t, s.Equals(decoded))

	entries := decoded.Entries()
	require.Len(t, entries, 4)
	require.Nil(t, entries[0].Block)
	require.Equal(t, []byte("d1"), entries[1].Block)
	require.Nil(t, entries[2].Block)
	require.Equal(t, []byte("d2"), entries[3].Block)

	// re-encoding an untouched decode is byte-identical.
	require.Equal(t, encoded, decoded.Encode())
	// encode(decode(encode(s))) == encode(s)
	require.Equal(t, s.Encode(), decoded.Encode())
}

// Entries in a decoded State are in ascending name order, regardless
// of insertion order into the original.
func TestStateOrderStability(t *testing.T) {
	s := NewState()
	s.Add(mustName(t, "/zzz"), nil)
	s.Add(mustName(t, "/aaa"), nil)
	s.Add(mustName(t, "/mmm"), nil)

	decoded, err := DecodeState(s.Encode())
	require.NoError(t, err)

	entries := decoded.Entries()
	for i := 1; i < len(entries); i++ {
		require.True(t, entries[i-1].Name.Compare(entries[i].Name) < 0)
	}
}

// Mutating a decoded State invalidates the memoized bytes, so a later
// Add is reflected in the next Encode.
func TestStateMutationInvalidatesMemo(t *testing.T) {
	s := NewState()
	s.Add(mustName(t, "/a"), nil)
	encoded := s.Encode()

	decoded, err := DecodeState(encoded)
	require.NoError(t, err)
	require.Equal(t, encoded, decoded.Encode())

	decoded.Add(mustName(t, "/b"), []byte("x"))
	require.NotEqual(t, encoded, decoded.Encode())
}

// A DataBlock with no preceding Name is malformed.
func TestStateDecodeMalformedBlockBeforeName(t *testing.T) {
	buf := []byte{
		byte(typeContent), 3,
		byte(typeDataBlock), 1, 'x',
	}
	_, err := DecodeState(buf)
	require.Error(t, err)
}

// A nested TLV that is neither a Name nor a DataBlock is malformed.
func TestStateDecodeMalformedInnerType(t *testing.T) {
	buf := []byte{
		byte(typeContent), 2,
		0x55, 0,
	}
	_, err := DecodeState(buf)
	require.Error(t, err)
}

// Wrong outer TLV type is malformed.
func TestStateDecodeWrongOuterType(t *testing.T) {
	buf := []byte{0x99, 0}
	_, err := DecodeState(buf)
	require.Error(t, err)
}

// Multiple consecutive DataBlocks after one Name: the last wins.
func TestStateDecodeMultipleBlocksLastWins(t *testing.T) {
	s := NewState()
	s.Add(mustName(t, "/a"), nil)
	raw := s.Encode()

	// splice in two consecutive DataBlocks after the Name TLV.
	block1 := []byte{byte(typeDataBlock), 1, 'a'}
	block2 := []byte{byte(typeDataBlock), 1, 'b'}
	innerLen := len(raw) - 2 + len(block1) + len(block2) // minus outer T,L header bytes (both 1 byte here)
	buf := append([]byte{byte(typeContent), byte(innerLen)}, raw[2:]...)
	buf = append(buf, block1...)
	buf = append(buf, block2...)

	decoded, err := DecodeState(buf)
	require.NoError(t, err)
	require.Len(t, decoded.Entries(), 1)
	require.Equal(t, []byte("b"), decoded.Entries()[0].Block)
}
