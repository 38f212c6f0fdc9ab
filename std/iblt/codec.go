package iblt

import (
	"encoding/binary"
	"fmt"

	enc "github.com/named-data/ndnd/std/encoding"
)

// TypeIBLTComponent is the name-component TLV type under which a
// serialized Table travels as the last component of a sync Interest.
const TypeIBLTComponent enc.TLNum = 0x90

const cellWireSize = 4 + 4 + 4 // count, keySum, keyCheck

// ToComponent losslessly serializes t into a name component: a header
// of (cell count, element count) followed by each cell's
// (count, keySum, keyCheck) as big-endian words.
func (t *Table) ToComponent() enc.Component {
	buf := make([]byte, 8+len(t.cells)*cellWireSize)
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(t.cells)))
	binary.BigEndian.PutUint32(buf[4:8], uint32(t.nElems))
	p := 8
	for _, c := range t.cells {
		binary.BigEndian.PutUint32(buf[p:], uint32(c.count))
		binary.BigEndian.PutUint32(buf[p+4:], c.keySum)
		binary.BigEndian.PutUint32(buf[p+8:], c.keyCheck)
		p += cellWireSize
	}
	return enc.NewBytesComponent(TypeIBLTComponent, buf)
}

// FromComponent deserializes a Table previously produced by ToComponent.
func FromComponent(c enc.Component) (*Table, error) {
	if c.Typ != TypeIBLTComponent {
		return nil, fmt.Errorf("iblt: wrong component type %d", c.Typ)
	}
	buf := c.Val
	if len(buf) < 8 {
		return nil, fmt.Errorf("iblt: component too short")
	}
	n := int(binary.BigEndian.Uint32(buf[0:4]))
	nElems := int32(binary.BigEndian.Uint32(buf[4:8]))
	if len(buf) != 8+n*cellWireSize {
		return nil, fmt.Errorf("iblt: length mismatch for %d cells", n)
	}
	t := &Table{cells: make([]cell, n), nElems: int(nElems)}
	p := 8
	for i := 0; i < n; i++ {
		count := int32(binary.BigEndian.Uint32(buf[p:]))
		keySum := binary.BigEndian.Uint32(buf[p+4:])
		keyCheck := binary.BigEndian.Uint32(buf[p+8:])
		t.cells[i] = cell{count: count, keySum: keySum, keyCheck: keyCheck}
		p += cellWireSize
	}
	return t, nil
}
