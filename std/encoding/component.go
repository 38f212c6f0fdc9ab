package encoding

import (
	"bytes"
	"io"
	"slices"
	"strconv"
	"strings"
)

const (
	TypeInvalidComponent                TLNum = 0x00
	TypeImplicitSha256DigestComponent   TLNum = 0x01
	TypeParametersSha256DigestComponent TLNum = 0x02
	TypeGenericNameComponent            TLNum = 0x08
	TypeKeywordNameComponent            TLNum = 0x20
	TypeSegmentNameComponent            TLNum = 0x32
	TypeByteOffsetNameComponent         TLNum = 0x34
	TypeVersionNameComponent            TLNum = 0x36
	TypeTimestampNameComponent          TLNum = 0x38
	TypeSequenceNumNameComponent        TLNum = 0x3a
)

// Component is a single element of a Name: a TLV-typed byte value.
//
// This is a trimmed-down version of the upstream component type: it drops
// the pattern-matching trait and the alternate-URI convention registry,
// neither of which the sync engine needs, and sticks to plain numeric
// "type=value" string rendering.
type Component struct {
	Typ TLNum
	Val []byte
}

// Creates a deep copy of the Component by duplicating its Val slice.
func (c Component) Clone() Component {
	return Component{
		Typ: c.Typ,
		Val: slices.Clone(c.Val),
	}
}

// Returns the length of the component's value as a TLNum for TLV encoding.
func (c Component) Length() TLNum {
	return TLNum(len(c.Val))
}

// Returns the string representation of the component by writing its contents to a strings.Builder.
func (c Component) String() string {
	sb := strings.Builder{}
	c.WriteTo(&sb)
	return sb.String()
}

// WriteTo renders the component as "value" for generic components, or
// "type=value" otherwise, escaping the value as a percent-encoded string
// when it contains non-printable bytes.
func (c Component) WriteTo(sb *strings.Builder) int {
	size := 0
	if c.Typ != TypeGenericNameComponent {
		typ := strconv.FormatUint(uint64(c.Typ), 10)
		sb.WriteString(typ)
		sb.WriteRune('=')
		size += len(typ) + 1
	}
	size += writeCompVal(c.Val, sb)
	return size
}

// CanonicalString is an alias of WriteTo's output, kept distinct from
// String because upstream distinguishes the two when alt-URI is enabled;
// here they always agree.
func (c Component) CanonicalString() string {
	return c.String()
}

func writeCompVal(val []byte, sb *strings.Builder) int {
	n := 0
	for _, b := range val {
		if isPrintableURIByte(b) {
			sb.WriteByte(b)
			n++
		} else {
			sb.WriteByte('%')
			sb.WriteByte(HEX_UPPER_B[b>>4])
			sb.WriteByte(HEX_UPPER_B[b&0xf])
			n += 3
		}
	}
	return n
}

var HEX_UPPER_B = []byte("0123456789ABCDEF")

func isPrintableURIByte(b byte) bool {
	switch {
	case b >= 'A' && b <= 'Z', b >= 'a' && b <= 'z', b >= '0' && b <= '9':
		return true
	case b == '-' || b == '.' || b == '_' || b == '~':
		return true
	}
	return false
}

// Constructs a new Name by appending the specified components to the initial component.
func (c Component) Append(rest ...Component) Name {
	return Name{c}.Append(rest...)
}

// Returns the total number of bytes required to encode the component, summing the encoded lengths of its type, the length of its value, and the value itself.
func (c Component) EncodingLength() int {
	l := len(c.Val)
	return c.Typ.EncodingLength() + TLNum(l).EncodingLength() + l
}

// Encodes the component's type and variable-length value into the provided buffer, returning the total number of bytes written (type encoding + value length encoding + value data).
func (c Component) EncodeInto(buf Buffer) int {
	p1 := c.Typ.EncodeInto(buf)
	p2 := TLNum(len(c.Val)).EncodeInto(buf[p1:])
	copy(buf[p1+p2:], c.Val)
	return p1 + p2 + len(c.Val)
}

// Encodes the component into a byte slice by allocating a buffer of the appropriate size and writing the encoded data into it.
func (c Component) Bytes() []byte {
	buf := make([]byte, c.EncodingLength())
	c.EncodeInto(buf)
	return buf
}

// Compare orders components first by type, then by value length, then
// lexicographically, matching NDN's canonical name ordering.
func (c Component) Compare(rhs Component) int {
	if c.Typ != rhs.Typ {
		if c.Typ < rhs.Typ {
			return -1
		}
		return 1
	}
	if len(c.Val) != len(rhs.Val) {
		if len(c.Val) < len(rhs.Val) {
			return -1
		}
		return 1
	}
	return bytes.Compare(c.Val, rhs.Val)
}

// NumberVal returns the value of the component as a number
func (c Component) NumberVal() uint64 {
	ret := uint64(0)
	for _, v := range c.Val {
		ret = (ret << 8) | uint64(v)
	}
	return ret
}

// TlvStr returns the component's raw TLV encoding as a string, suitable
// for use as a map key that preserves TLV byte ordering.
func (c Component) TlvStr() string {
	return string(c.Bytes())
}

// Hash returns the hash of the component
func (c Component) Hash() uint64 {
	xx := xxHashPool.Get()
	defer xxHashPool.Put(xx)

	size := c.EncodingLength()
	xx.buffer.Grow(size)
	buf := xx.buffer.AvailableBuffer()[:size]
	c.EncodeInto(buf)

	xx.hash.Write(buf)
	return xx.hash.Sum64()
}

// Equal compares two NDN name components for equality by type and value.
func (c Component) Equal(rhs Component) bool {
	if c.Typ != rhs.Typ || len(c.Val) != len(rhs.Val) {
		return false
	}
	return bytes.Equal(c.Val, rhs.Val)
}

// Parses a string into an NDN name Component, returning an error if the input is invalid.
func ComponentFromStr(s string) (Component, error) {
	ret := Component{}
	err := componentFromStrInto(s, &ret)
	if err != nil {
		return Component{}, err
	}
	return ret, nil
}

// Parses a name component from the provided byte slice, returning the decoded component and any error encountered during parsing.
func ComponentFromBytes(buf []byte) (Component, error) {
	r := NewBufferView(buf)
	return r.ReadComponent()
}

// Parses a component from the buffer by reading type and length fields, then extracting the corresponding value, returning the component and the total number of bytes consumed.
func ParseComponent(buf Buffer) (Component, int) {
	typ, p1 := ParseTLNum(buf)
	l, p2 := ParseTLNum(buf[p1:])
	start := p1 + p2
	end := start + int(l)
	return Component{
		Typ: typ,
		Val: buf[start:end],
	}, end
}

// Reads a Component from the wire format by parsing its type, length, and value, returning the component and any error encountered.
func (r *WireView) ReadComponent() (Component, error) {
	typ, err := r.ReadTLNum()
	if err != nil {
		return Component{}, err
	}
	l, err := r.ReadTLNum()
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return Component{}, err
	}
	val, err := r.ReadBuf(int(l))
	if err != nil {
		return Component{}, err
	}
	return Component{
		Typ: typ,
		Val: val,
	}, nil
}

// Parses a string into a Component, allowing an optional numeric type prefix separated by '=';
// value bytes are unescaped from percent-encoding.
func componentFromStrInto(s string, ret *Component) error {
	typStr := ""
	valStr := s
	hasEq := false
	for i, c := range s {
		if c == '=' {
			if hasEq {
				return ErrFormat{"too many '=' in component: " + s}
			}
			typStr, valStr = s[:i], s[i+1:]
			hasEq = true
		}
	}
	ret.Typ = TypeGenericNameComponent
	if hasEq {
		typInt, err := strconv.ParseUint(typStr, 10, 64)
		if err != nil {
			return ErrFormat{"invalid component type: " + typStr}
		}
		ret.Typ = TLNum(typInt)
		if ret.Typ <= TypeInvalidComponent || ret.Typ > 0xffff {
			return ErrFormat{"invalid component type: " + typStr}
		}
	}
	val, err := unescapeCompVal(valStr)
	if err != nil {
		return err
	}
	ret.Val = val
	return nil
}

func unescapeCompVal(s string) ([]byte, error) {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '%' {
			out = append(out, s[i])
			continue
		}
		if i+2 >= len(s) {
			return nil, ErrFormat{"invalid percent-encoding: " + s}
		}
		hi, err1 := hexVal(s[i+1])
		lo, err2 := hexVal(s[i+2])
		if err1 != nil || err2 != nil {
			return nil, ErrFormat{"invalid percent-encoding: " + s}
		}
		out = append(out, hi<<4|lo)
		i += 2
	}
	return out, nil
}

func hexVal(b byte) (byte, error) {
	switch {
	case b >= '0' && b <= '9':
		return b - '0', nil
	case b >= 'a' && b <= 'f':
		return b - 'a' + 10, nil
	case b >= 'A' && b <= 'F':
		return b - 'A' + 10, nil
	}
	return 0, ErrFormat{"invalid hex digit"}
}
