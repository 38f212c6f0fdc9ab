package sync

import (
	"bytes"
	"sort"

	enc "github.com/named-data/ndnd/std/encoding"
)

// typeContent and typeDataBlock are fixed interoperability TLV type
// codes: every implementation of this protocol must use exactly these
// values on the wire.
const (
	typeContent   enc.TLNum = 128
	typeDataBlock enc.TLNum = 129
)

// StateEntry is one (name, optional piggybacked block) pair in a State.
type StateEntry struct {
	Name  enc.Name
	Block []byte // nil means "no piggyback"
}

// State is the reply payload: an ordered set of (name, optional block)
// entries, always kept in ascending name order. A State decoded from
// the wire memoizes its original bytes so that re-encoding without
// mutation reproduces them byte-for-byte.
type State struct {
	entries []StateEntry
	raw     []byte // memoized encoding; nil once mutated
}

// NewState returns an empty, mutable State.
func NewState() *State {
	return &State{}
}

// Entries returns the State's entries in ascending name order. The
// returned slice must not be mutated by the caller.
func (s *State) Entries() []StateEntry {
	return s.entries
}

// Add inserts (name, block) in ascending-name position. Adding a name
// already present replaces its block. Mutating a State invalidates its
// memoized encoding.
func (s *State) Add(name enc.Name, block []byte) {
	i := sort.Search(len(s.entries), func(i int) bool {
		return s.entries[i].Name.Compare(name) >= 0
	})
	if i < len(s.entries) && s.entries[i].Name.Equal(name) {
		s.entries[i].Block = block
	} else {
		s.entries = append(s.entries, StateEntry{})
		copy(s.entries[i+1:], s.entries[i:])
		s.entries[i] = StateEntry{Name: name, Block: block}
	}
	s.raw = nil
}

// Equals compares two States by ordered pairwise name and block
// equality; absent blocks on both sides match, otherwise block bytes
// must match exactly.
func (s *State) Equals(o *State) bool {
	if len(s.entries) != len(o.entries) {
		return false
	}
	for i := range s.entries {
		a, b := s.entries[i], o.entries[i]
		if !a.Name.Equal(b.Name) {
			return false
		}
		if (a.Block == nil) != (b.Block == nil) {
			return false
		}
		if a.Block != nil && !bytes.Equal(a.Block, b.Block) {
			return false
		}
	}
	return true
}

// Encode serializes the State as a CONTENT-TLV. If the State was
// produced by DecodeState and has not been mutated since, the original
// bytes are returned unchanged.
func (s *State) Encode() []byte {
	if s.raw != nil {
		return s.raw
	}

	length := 0
	for _, e := range s.entries {
		length += e.Name.TlvEncodingLength()
		if e.Block != nil {
			length += typeDataBlock.EncodingLength() + enc.TLNum(len(e.Block)).EncodingLength() + len(e.Block)
		}
	}

	total := typeContent.EncodingLength() + enc.TLNum(length).EncodingLength() + length
	buf := make(enc.Buffer, total)
	p := typeContent.EncodeInto(buf)
	p += enc.TLNum(length).EncodeInto(buf[p:])
	for _, e := range s.entries {
		p += e.Name.TlvEncodeInto(buf[p:])
		if e.Block != nil {
			p += typeDataBlock.EncodeInto(buf[p:])
			p += enc.TLNum(len(e.Block)).EncodeInto(buf[p:])
			p += copy(buf[p:], e.Block)
		}
	}

	s.raw = buf
	return s.raw
}

// ErrMalformedStateWire is returned by DecodeState for TLV grammar
// violations: wrong outer type, a DataBlock before any Name, or a
// nested element that is neither a Name nor a DataBlock.
type ErrMalformedStateWire struct {
	Reason string
}

func (e ErrMalformedStateWire) Error() string {
	return "malformed state: " + e.Reason
}

// DecodeState parses a CONTENT-TLV payload into a State. Entries are
// kept in ascending name order whatever their order on the wire, and a
// repeated Name replaces the earlier entry. Multiple consecutive
// DataBlocks following one Name are accepted, with the last one winning.
func DecodeState(buf []byte) (*State, error) {
	r := enc.NewBufferView(buf)

	typ, err := r.ReadTLNum()
	if err != nil {
		return nil, ErrMalformedStateWire{"failed to read outer type: " + err.Error()}
	}
	if typ != typeContent {
		return nil, ErrMalformedStateWire{"wrong outer type"}
	}
	length, err := r.ReadTLNum()
	if err != nil {
		return nil, ErrMalformedStateWire{"failed to read outer length: " + err.Error()}
	}

	end := r.Pos() + int(length)
	s := &State{}

	haveName := false
	var last enc.Name
	for r.Pos() < end {
		inner := r // copy for type peek
		innerTyp, err := inner.ReadTLNum()
		if err != nil {
			return nil, ErrMalformedStateWire{"failed to read inner type: " + err.Error()}
		}

		switch innerTyp {
		case enc.TypeName:
			name, err := r.ReadNameTlv()
			if err != nil {
				return nil, ErrMalformedStateWire{"failed to decode name: " + err.Error()}
			}
			s.Add(name, nil)
			last = name
			haveName = true
		case typeDataBlock:
			if !haveName {
				return nil, ErrMalformedStateWire{"data block before any name"}
			}
			if _, err := r.ReadTLNum(); err != nil { // consume type we already peeked
				return nil, ErrMalformedStateWire{"failed to read block type: " + err.Error()}
			}
			l, err := r.ReadTLNum()
			if err != nil {
				return nil, ErrMalformedStateWire{"failed to read block length: " + err.Error()}
			}
			block, err := r.ReadBuf(int(l))
			if err != nil {
				return nil, ErrMalformedStateWire{"failed to read block value: " + err.Error()}
			}
			s.Add(last, []byte(block))
		default:
			return nil, ErrMalformedStateWire{"unexpected inner TLV type"}
		}
	}
	if r.Pos() != end {
		return nil, ErrMalformedStateWire{"length mismatch"}
	}

	s.raw = buf
	return s, nil
}
