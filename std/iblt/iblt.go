// Package iblt implements the Invertible Bloom Lookup Table used by the
// sync engine to discover, without transferring a full name listing,
// which (prefix, seq) pairs two peers disagree on. It is a textbook
// peeling IBLT: each inserted 32-bit element hash is XORed into
// numHashes independently hashed cells, identified by a checksum hash, and
// subtraction is plain per-cell XOR/subtract, so the difference of two
// tables with otherwise identical contents peels down to pure cells.
package iblt

import (
	"encoding/binary"
	"fmt"

	enc "github.com/named-data/ndnd/std/encoding"
	"github.com/spaolacci/murmur3"
)

// cellsPerEntry is the classic IBLT overprovisioning factor: with this
// many cells per expected element, peeling succeeds with high
// probability as long as the true symmetric difference stays well
// below the table's numElements() capacity.
const cellsPerEntry = 3

// numHashes is the number of cells each element is spread across, one
// per seed in hashSeeds; two seeds may land on the same cell. 3 is the
// standard choice for peeling IBLTs.
const numHashes = 3

// NHashCheck is the protocol-fixed MurmurHash3_x86_32 seed for element
// identity hashes, shared with the sync engine's future-hash probe.
// It must agree across all peers.
const NHashCheck uint32 = 11

// cell placement and checksum seeds, distinct from NHashCheck and from
// each other so that cell index and checksum never accidentally
// collide with the future-hash probe.
var hashSeeds = [numHashes]uint32{0x5bd1e995, 0x7ed55d16, 0xc2b2ae35}

const checksumSeed uint32 = 0x165667b1

// cell is one bucket of the table.
type cell struct {
	count    int32
	keySum   uint32
	keyCheck uint32
}

func (c *cell) isEmpty() bool {
	return c.count == 0 && c.keySum == 0 && c.keyCheck == 0
}

func (c *cell) isPure() bool {
	return (c.count == 1 || c.count == -1) && checksum(c.keySum) == c.keyCheck
}

// Table is an Invertible Bloom Lookup Table over 32-bit element hashes.
type Table struct {
	cells  []cell
	nElems int
}

// New constructs an empty Table sized for expectedEntries elements.
func New(expectedEntries int) *Table {
	if expectedEntries <= 0 {
		expectedEntries = 1
	}
	return &Table{
		cells: make([]cell, expectedEntries*cellsPerEntry),
	}
}

// checksum hashes key with the table's fixed checksum seed.
func checksum(key uint32) uint32 {
	return murmur3.Sum32WithSeed(uint32KeyBytes(key), checksumSeed)
}

func uint32KeyBytes(key uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], key)
	return b[:]
}

// HashName computes the protocol's fixed element hash,
// murmur3_32(nameAtSeq.toUri()), seeded with NHashCheck. Every peer must
// derive element identities with this exact seed: it's also what the
// sync engine's future-hash probe hashes candidate names with, so a
// probed hash only matches a table's negative set if both sides agree
// on this seed.
func HashName(name enc.Name) uint32 {
	return murmur3.Sum32WithSeed([]byte(name.String()), NHashCheck)
}

func (t *Table) cellIndices(key uint32) [numHashes]int {
	var idx [numHashes]int
	n := len(t.cells)
	for i, seed := range hashSeeds {
		h := murmur3.Sum32WithSeed(uint32KeyBytes(key), seed)
		idx[i] = int(h) % n
		if idx[i] < 0 {
			idx[i] += n
		}
	}
	return idx
}

func (t *Table) update(key uint32, delta int32) {
	chk := checksum(key)
	for _, idx := range t.cellIndices(key) {
		c := &t.cells[idx]
		c.count += delta
		c.keySum ^= key
		c.keyCheck ^= chk
	}
}

// Insert adds key (an element hash, per HashName) to the table.
func (t *Table) Insert(key uint32) {
	t.update(key, 1)
	t.nElems++
}

// Erase removes key from the table. Erasing a key that was never
// inserted desynchronizes the table from its true contents; callers
// must only erase keys they previously inserted.
func (t *Table) Erase(key uint32) {
	t.update(key, -1)
	t.nElems--
}

// NumElements returns the count of elements inserted, net of erasures.
func (t *Table) NumElements() int {
	if t.nElems < 0 {
		return 0
	}
	return t.nElems
}

// Subtract returns a new Table holding the cell-wise difference t - other.
// Both tables must have been constructed with the same expectedEntries.
func (t *Table) Subtract(other *Table) (*Table, error) {
	if len(t.cells) != len(other.cells) {
		return nil, fmt.Errorf("iblt: size mismatch: %d vs %d cells", len(t.cells), len(other.cells))
	}
	ret := &Table{
		cells:  make([]cell, len(t.cells)),
		nElems: t.nElems - other.nElems,
	}
	for i := range t.cells {
		ret.cells[i] = cell{
			count:    t.cells[i].count - other.cells[i].count,
			keySum:   t.cells[i].keySum ^ other.cells[i].keySum,
			keyCheck: t.cells[i].keyCheck ^ other.cells[i].keyCheck,
		}
	}
	return ret, nil
}

// Diff holds the result of peel-decoding a difference table.
type Diff struct {
	// Positive holds keys present in the minuend but not the subtrahend.
	Positive map[uint32]struct{}
	// Negative holds keys present in the subtrahend but not the minuend.
	Negative map[uint32]struct{}
	// Decoded is false if peeling could not fully empty the table.
	Decoded bool
}

// ListEntries peels t (normally the result of Subtract) down to its
// positive and negative element sets. Decoded is true only if every
// cell reached zero; otherwise Positive/Negative hold whatever was
// recovered before peeling stalled, so callers can still act on a
// partial diff.
func (t *Table) ListEntries() Diff {
	// operate on a scratch copy so repeated diff() calls (retries on
	// publishName, satisfyPending) don't mutate the caller's table.
	work := &Table{cells: make([]cell, len(t.cells))}
	copy(work.cells, t.cells)

	diff := Diff{
		Positive: map[uint32]struct{}{},
		Negative: map[uint32]struct{}{},
	}

	progress := true
	for progress {
		progress = false
		for i := range work.cells {
			c := &work.cells[i]
			if c.isEmpty() {
				continue
			}
			if !c.isPure() {
				continue
			}
			key := c.keySum
			if c.count > 0 {
				diff.Positive[key] = struct{}{}
			} else {
				diff.Negative[key] = struct{}{}
			}
			work.update2(key, -c.count)
			progress = true
		}
	}

	allEmpty := true
	for i := range work.cells {
		if !work.cells[i].isEmpty() {
			allEmpty = false
			break
		}
	}
	diff.Decoded = allEmpty
	return diff
}

// update2 is update without touching nElems, used internally by peeling.
func (t *Table) update2(key uint32, delta int32) {
	chk := checksum(key)
	for _, idx := range t.cellIndices(key) {
		c := &t.cells[idx]
		c.count += delta
		c.keySum ^= key
		c.keyCheck ^= chk
	}
}
