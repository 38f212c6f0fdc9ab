package sync

import (
	enc "github.com/named-data/ndnd/std/encoding"
	"github.com/named-data/ndnd/std/iblt"
)

// DigestEngine wraps the local IBLT. Every element hash, whether here in
// InsertName/EraseName or in PrefixRegistry and the engine's future-hash
// probe, is computed with iblt.HashName, so the hash function stays a
// single, protocol-fixed choice.
type DigestEngine struct {
	table *iblt.Table
}

// NewDigestEngine constructs a DigestEngine sized for expectedEntries,
// per the shared protocol constant of the same name.
func NewDigestEngine(expectedEntries int) *DigestEngine {
	return &DigestEngine{table: iblt.New(expectedEntries)}
}

// Table returns the underlying table, for PrefixRegistry.Advance's
// direct insert/erase calls and for serialization.
func (d *DigestEngine) Table() *iblt.Table {
	return d.table
}

// InsertName inserts murmur3_32(nameAtSeq.toUri()) into the table.
func (d *DigestEngine) InsertName(name enc.Name) {
	d.table.Insert(iblt.HashName(name))
}

// EraseName removes murmur3_32(nameAtSeq.toUri()) from the table.
func (d *DigestEngine) EraseName(name enc.Name) {
	d.table.Erase(iblt.HashName(name))
}

// NumElements returns the count of elements currently inserted.
func (d *DigestEngine) NumElements() int {
	return d.table.NumElements()
}

// SerializeToNameComponent losslessly serializes the table.
func (d *DigestEngine) SerializeToNameComponent() enc.Component {
	return d.table.ToComponent()
}

// DeserializeFromNameComponent parses a peer's serialized IBLT. It does
// not mutate d; callers diff the result against d.Table() explicitly.
func DeserializeFromNameComponent(c enc.Component) (*iblt.Table, error) {
	return iblt.FromComponent(c)
}

// DiffResult is the outcome of subtracting a peer table from ours.
type DiffResult struct {
	Positive map[uint32]struct{}
	Negative map[uint32]struct{}
	Decoded  bool
}

// Diff computes self - other and attempts peel-decoding.
func (d *DigestEngine) Diff(other *iblt.Table) (DiffResult, error) {
	sub, err := d.table.Subtract(other)
	if err != nil {
		return DiffResult{}, err
	}
	l := sub.ListEntries()
	return DiffResult{Positive: l.Positive, Negative: l.Negative, Decoded: l.Decoded}, nil
}
