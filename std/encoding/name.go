package encoding

import "strings"

// Name is an ordered sequence of Components. It is the addressing unit
// of the sync protocol: producer prefixes, the sync group prefix, and
// every entry published into the IBLT are all Names.
type Name []Component

// Append returns a new Name with the given components appended.
func (n Name) Append(rest ...Component) Name {
	ret := make(Name, 0, len(n)+len(rest))
	ret = append(ret, n...)
	ret = append(ret, rest...)
	return ret
}

// At returns the component at index i. Negative indices count from the
// end, so At(-1) is the last component.
func (n Name) At(i int) Component {
	if i < 0 {
		i += len(n)
	}
	return n[i]
}

// Prefix returns the first i components of the name. Negative i counts
// from the end, so Prefix(-1) drops the last component.
func (n Name) Prefix(i int) Name {
	if i < 0 {
		i += len(n)
	}
	ret := make(Name, i)
	copy(ret, n[:i])
	return ret
}

// Clone returns a deep copy of the name.
func (n Name) Clone() Name {
	ret := make(Name, len(n))
	for i, c := range n {
		ret[i] = c.Clone()
	}
	return ret
}

// Compare orders two names component-wise, shorter-is-smaller on a
// common prefix, matching NDN canonical name ordering.
func (n Name) Compare(rhs Name) int {
	for i := 0; i < len(n) && i < len(rhs); i++ {
		if c := n[i].Compare(rhs[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(n) < len(rhs):
		return -1
	case len(n) > len(rhs):
		return 1
	}
	return 0
}

// Equal reports whether two names have identical components.
func (n Name) Equal(rhs Name) bool {
	if len(n) != len(rhs) {
		return false
	}
	for i := range n {
		if !n[i].Equal(rhs[i]) {
			return false
		}
	}
	return true
}

// IsPrefix reports whether n is a prefix of rhs (n itself counts).
func (n Name) IsPrefix(rhs Name) bool {
	if len(n) > len(rhs) {
		return false
	}
	for i := range n {
		if !n[i].Equal(rhs[i]) {
			return false
		}
	}
	return true
}

// Hash combines the per-component hashes into a single name hash,
// stable across processes (unlike a pointer-seeded hash), suitable for
// use as a map key surrogate or as IBLT cell input together with a
// sequence number.
func (n Name) Hash() uint64 {
	h := uint64(14695981039346656037) // FNV offset basis, combined with xxhash per component
	for _, c := range n {
		h = (h ^ c.Hash()) * 1099511628211
	}
	return h
}

// String renders the name using '/'-separated components, NDN URI style.
func (n Name) String() string {
	if len(n) == 0 {
		return "/"
	}
	sb := strings.Builder{}
	for _, c := range n {
		sb.WriteRune('/')
		c.WriteTo(&sb)
	}
	return sb.String()
}

// EncodingLength returns the number of bytes needed to encode every
// component back to back, with no outer Name TLV wrapper: names are
// always embedded inside another TLV element (a Content block, or a
// sync Interest's name itself) that supplies the framing.
func (n Name) EncodingLength() int {
	l := 0
	for _, c := range n {
		l += c.EncodingLength()
	}
	return l
}

// EncodeInto writes the components back to back into buf.
func (n Name) EncodeInto(buf Buffer) int {
	p := 0
	for _, c := range n {
		p += c.EncodeInto(buf[p:])
	}
	return p
}

// Bytes encodes the name's components into a freshly allocated buffer.
func (n Name) Bytes() []byte {
	buf := make([]byte, n.EncodingLength())
	n.EncodeInto(buf)
	return buf
}

// BytesInner encodes the name's components with no outer wrapper,
// suitable for use as a store key.
func (n Name) BytesInner() []byte {
	return n.Bytes()
}

// TlvStr returns the name's raw TLV encoding as a string, suitable for
// use as a map key that preserves TLV byte ordering.
func (n Name) TlvStr() string {
	return string(n.Bytes())
}

// NameFromStr parses a '/'-separated URI into a Name.
func NameFromStr(s string) (Name, error) {
	s = strings.Trim(s, "/")
	if s == "" {
		return Name{}, nil
	}
	parts := strings.Split(s, "/")
	ret := make(Name, len(parts))
	for i, p := range parts {
		c, err := ComponentFromStr(p)
		if err != nil {
			return nil, err
		}
		ret[i] = c
	}
	return ret, nil
}

// ReadName reads a Name of the given encoded byte length from the wire,
// stopping once that many bytes have been consumed by whole components.
func (r *WireView) ReadName(length int) (Name, error) {
	end := r.Pos() + length
	ret := Name{}
	for r.Pos() < end {
		c, err := r.ReadComponent()
		if err != nil {
			return nil, err
		}
		ret = append(ret, c)
	}
	if r.Pos() != end {
		return nil, ErrBufferOverflow
	}
	return ret, nil
}

// NameFromBytes decodes a Name occupying the whole of buf.
func NameFromBytes(buf []byte) (Name, error) {
	r := NewBufferView(buf)
	return r.ReadName(len(buf))
}

// TypeName is the standard NDN Name TLV type, used to wrap a Name when
// it is embedded as one element among siblings of other types (as in a
// State's sequence of Name/DataBlock elements) rather than supplying
// the whole of a buffer by itself.
const TypeName TLNum = 0x07

// TlvEncodingLength returns the size of the full Name TLV, type and
// length header included.
func (n Name) TlvEncodingLength() int {
	l := n.EncodingLength()
	return TypeName.EncodingLength() + TLNum(l).EncodingLength() + l
}

// TlvEncodeInto writes the wrapped Name TLV (type 0x07) into buf.
func (n Name) TlvEncodeInto(buf Buffer) int {
	l := n.EncodingLength()
	p1 := TypeName.EncodeInto(buf)
	p2 := TLNum(l).EncodeInto(buf[p1:])
	n.EncodeInto(buf[p1+p2:])
	return p1 + p2 + l
}

// TlvBytes encodes the wrapped Name TLV into a freshly allocated buffer.
func (n Name) TlvBytes() []byte {
	buf := make([]byte, n.TlvEncodingLength())
	n.TlvEncodeInto(buf)
	return buf
}

// ReadNameTlv reads one wrapped Name TLV (type 0x07) from the wire.
func (r *WireView) ReadNameTlv() (Name, error) {
	typ, err := r.ReadTLNum()
	if err != nil {
		return nil, err
	}
	if typ != TypeName {
		return nil, ErrUnrecognizedField{TypeNum: typ}
	}
	l, err := r.ReadTLNum()
	if err != nil {
		return nil, err
	}
	return r.ReadName(int(l))
}
