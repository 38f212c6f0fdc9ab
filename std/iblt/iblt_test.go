package iblt

import (
	"testing"

	enc "github.com/named-data/ndnd/std/encoding"
	"github.com/stretchr/testify/require"
)

func TestInsertEraseRoundTrip(t *testing.T) {
	tbl := New(20)
	tbl.Insert(1)
	tbl.Insert(2)
	require.Equal(t, 2, tbl.NumElements())

	tbl.Erase(1)
	require.Equal(t, 1, tbl.NumElements())
}

func TestSubtractDiffDecodesDisjointSets(t *testing.T) {
	a := New(20)
	b := New(20)

	for _, k := range []uint32{1, 2, 3} {
		a.Insert(k)
	}
	for _, k := range []uint32{10, 11} {
		b.Insert(k)
	}

	sub, err := a.Subtract(b)
	require.NoError(t, err)

	diff := sub.ListEntries()
	require.True(t, diff.Decoded)
	require.Len(t, diff.Positive, 3)
	require.Len(t, diff.Negative, 2)
	for _, k := range []uint32{1, 2, 3} {
		_, ok := diff.Positive[k]
		require.True(t, ok)
	}
	for _, k := range []uint32{10, 11} {
		_, ok := diff.Negative[k]
		require.True(t, ok)
	}
}

func TestSubtractWithSharedElementsCancelsOut(t *testing.T) {
	a := New(20)
	b := New(20)

	for _, k := range []uint32{1, 2, 3} {
		a.Insert(k)
		b.Insert(k)
	}
	a.Insert(4) // only a has this one

	sub, err := a.Subtract(b)
	require.NoError(t, err)

	diff := sub.ListEntries()
	require.True(t, diff.Decoded)
	require.Len(t, diff.Positive, 1)
	_, ok := diff.Positive[4]
	require.True(t, ok)
	require.Empty(t, diff.Negative)
}

func TestSubtractSizeMismatch(t *testing.T) {
	a := New(20)
	b := New(40)
	_, err := a.Subtract(b)
	require.Error(t, err)
}

func TestComponentRoundTrip(t *testing.T) {
	tbl := New(10)
	tbl.Insert(42)
	tbl.Insert(99)

	comp := tbl.ToComponent()
	got, err := FromComponent(comp)
	require.NoError(t, err)
	require.Equal(t, tbl.NumElements(), got.NumElements())

	sub, err := tbl.Subtract(got)
	require.NoError(t, err)
	diff := sub.ListEntries()
	require.True(t, diff.Decoded)
	require.Empty(t, diff.Positive)
	require.Empty(t, diff.Negative)
}

func TestFromComponentWrongType(t *testing.T) {
	_, err := FromComponent(enc.NewBytesComponent(0x01, []byte{1, 2, 3}))
	require.Error(t, err)
}
