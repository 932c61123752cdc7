package memldap

import (
	"fmt"
	"io"
)

// Upper bound of LDAP INTEGER values, 2^31 - 1
const maxInt = 1<<31 - 1

// BER identifier octet: two class bits, the constructed bit and a tag number.
// LDAP only uses the low tag numbers (< 31), so the identifier fits one octet.
type BerType uint8

// Identifier classes
const (
	BerClassUniversal       = 0x00
	BerClassApplication     = 0x40
	BerClassContextSpecific = 0x80
	BerClassPrivate         = 0xc0
)

const (
	berClassMask   = 0xc0
	berConstructed = 0x20
	berTagMask     = 0x1f
)

// Universal types used by LDAP
const (
	BerTypeBoolean     BerType = 0x01
	BerTypeInteger     BerType = 0x02
	BerTypeOctetString BerType = 0x04
	BerTypeNull        BerType = 0x05
	BerTypeEnumerated  BerType = 0x0a
	BerTypeSequence    BerType = BerClassUniversal | berConstructed | 0x10
	BerTypeSet         BerType = BerClassUniversal | berConstructed | 0x11
)

// Returns the [tag] type of the context-specific class
func BerContextSpecificType(tag uint8, constructed bool) BerType {
	t := BerType(BerClassContextSpecific | tag&berTagMask)
	if constructed {
		t |= berConstructed
	}
	return t
}

func (t BerType) Class() uint8 {
	return uint8(t) & berClassMask
}

func (t BerType) IsConstructed() bool {
	return t&berConstructed != 0
}

func (t BerType) IsPrimitive() bool {
	return !t.IsConstructed()
}

func (t BerType) TagNumber() uint8 {
	return uint8(t) & berTagMask
}

func (t BerType) String() string {
	return fmt.Sprintf("0x%02x", uint8(t))
}

// An element whose content octets have not been decoded
type BerRawElement struct {
	Type BerType
	Data []byte
}

type oneByteReader struct {
	r io.Reader
}

func (o oneByteReader) ReadByte() (byte, error) {
	var b [1]byte
	_, err := io.ReadFull(o.r, b[:])
	return b[0], err
}

func byteReader(r io.Reader) io.ByteReader {
	if br, ok := r.(io.ByteReader); ok {
		return br
	}
	return oneByteReader{r}
}

// Reads a definite length from r.
// Long forms with more than four length octets are refused.
func BerReadSize(r io.Reader) (uint32, error) {
	return readLength(byteReader(r))
}

func readLength(br io.ByteReader) (uint32, error) {
	first, err := br.ReadByte()
	if err != nil {
		return 0, err
	}
	if first&0x80 == 0 {
		return uint32(first), nil
	}
	octets := int(first & 0x7f)
	if octets > 4 {
		return 0, ErrIntegerTooLarge.WithInfo("length octets", octets)
	}
	var size uint32
	for ; octets > 0; octets-- {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		size = size<<8 | uint32(b)
	}
	return size, nil
}

// Reads one complete element from r.
func BerReadElement(r io.Reader) (BerRawElement, error) {
	br := byteReader(r)
	id, err := br.ReadByte()
	if err != nil {
		return BerRawElement{}, err
	}
	size, err := readLength(br)
	if err != nil {
		return BerRawElement{}, err
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return BerRawElement{}, err
	}
	return BerRawElement{Type: BerType(id), Data: data}, nil
}

// Splits the first element off data.
// The element data aliases data.
func nextElement(data []byte) (BerRawElement, []byte, error) {
	if len(data) < 2 {
		return BerRawElement{}, nil, io.ErrUnexpectedEOF
	}
	id, size, pos := BerType(data[0]), int64(data[1]), 2
	if size&0x80 != 0 {
		octets := int(size & 0x7f)
		if octets > 4 {
			return BerRawElement{}, nil, ErrIntegerTooLarge.WithInfo("length octets", octets)
		}
		if len(data) < pos+octets {
			return BerRawElement{}, nil, io.ErrUnexpectedEOF
		}
		size = 0
		for _, b := range data[pos : pos+octets] {
			size = size<<8 | int64(b)
		}
		pos += octets
	}
	if int64(len(data)-pos) < size {
		return BerRawElement{}, nil, io.ErrUnexpectedEOF
	}
	end := pos + int(size)
	return BerRawElement{Type: id, Data: data[pos:end:end]}, data[end:], nil
}

// Splits the content octets of a SEQUENCE or SET into its elements.
func BerGetSequence(data []byte) ([]BerRawElement, error) {
	var elmts []BerRawElement
	for len(data) > 0 {
		var (
			e   BerRawElement
			err error
		)
		if e, data, err = nextElement(data); err != nil {
			return nil, err
		}
		elmts = append(elmts, e)
	}
	return elmts, nil
}

func BerGetBoolean(data []byte) (bool, error) {
	if len(data) != 1 {
		return false, ErrInvalidBoolean.WithInfo("length", len(data))
	}
	return data[0] != 0x00, nil
}

// Decodes a two's complement integer of at most eight octets.
func BerGetInteger(data []byte) (int64, error) {
	if len(data) > 8 {
		return 0, ErrIntegerTooLarge.WithInfo("length", len(data))
	}
	if len(data) == 0 {
		return 0, nil
	}
	n := int64(int8(data[0]))
	for _, b := range data[1:] {
		n = n<<8 | int64(b)
	}
	return n, nil
}

func BerGetEnumerated(data []byte) (int64, error) {
	return BerGetInteger(data)
}

func BerGetOctetString(data []byte) string {
	return string(data)
}

// Appends the identifier, definite length and content of an element.
func appendElement(dst []byte, t BerType, data []byte) []byte {
	dst = append(dst, byte(t))
	dst = appendLength(dst, len(data))
	return append(dst, data...)
}

func appendLength(dst []byte, n int) []byte {
	if n < 0x80 {
		return append(dst, byte(n))
	}
	var buf [8]byte
	i := len(buf)
	for ; n > 0; n >>= 8 {
		i--
		buf[i] = byte(n)
	}
	dst = append(dst, 0x80|byte(len(buf)-i))
	return append(dst, buf[i:]...)
}

func BerEncodeElement(t BerType, data []byte) []byte {
	return appendElement(make([]byte, 0, len(data)+6), t, data)
}

func BerEncodeBoolean(b bool) []byte {
	if b {
		return []byte{byte(BerTypeBoolean), 0x01, 0xff}
	}
	return []byte{byte(BerTypeBoolean), 0x01, 0x00}
}

// Returns the minimal two's complement content octets of i.
func BerEncodeIntegerRaw(i int64) []byte {
	n := 1
	for v := i; v > 127 || v < -128; v >>= 8 {
		n++
	}
	out := make([]byte, n)
	for j := n - 1; j >= 0; j-- {
		out[j] = byte(i)
		i >>= 8
	}
	return out
}

func BerEncodeInteger(i int64) []byte {
	return BerEncodeElement(BerTypeInteger, BerEncodeIntegerRaw(i))
}

func BerEncodeEnumerated(i int64) []byte {
	return BerEncodeElement(BerTypeEnumerated, BerEncodeIntegerRaw(i))
}

func BerEncodeOctetString(s string) []byte {
	return BerEncodeElement(BerTypeOctetString, []byte(s))
}

func BerEncodeSequence(data []byte) []byte {
	return BerEncodeElement(BerTypeSequence, data)
}

func BerEncodeSet(data []byte) []byte {
	return BerEncodeElement(BerTypeSet, data)
}

// Accumulates the elements of a constructed value.
type berBuilder struct {
	buf []byte
}

func (b *berBuilder) add(t BerType, data []byte) {
	b.buf = appendElement(b.buf, t, data)
}

func (b *berBuilder) str(s string) {
	b.add(BerTypeOctetString, []byte(s))
}

// Adds an implicitly tagged string, as used for optional components.
func (b *berBuilder) tagged(t BerType, s string) {
	b.add(t, []byte(s))
}

func (b *berBuilder) integer(i int64) {
	b.add(BerTypeInteger, BerEncodeIntegerRaw(i))
}

func (b *berBuilder) enumerated(i int64) {
	b.add(BerTypeEnumerated, BerEncodeIntegerRaw(i))
}

func (b *berBuilder) boolean(v bool) {
	b.buf = append(b.buf, BerEncodeBoolean(v)...)
}

func (b *berBuilder) bytes() []byte {
	return b.buf
}

// Decoder for the elements of a SEQUENCE or SET.
//
// Accessors never fail on their own: the first error is kept by the
// outermost sequence and every later accessor returns a zero value,
// so a decoder reads all its fields and checks Err once.
type berSequence struct {
	name  string
	elmts []BerRawElement
	root  *berSequence
	err   error
}

func decodeSequence(name string, data []byte) *berSequence {
	s := &berSequence{name: name}
	s.root = s
	s.elmts, s.err = BerGetSequence(data)
	return s
}

func (s *berSequence) Err() error {
	return s.root.err
}

func (s *berSequence) ok() bool {
	return s.root.err == nil
}

func (s *berSequence) fail(err error) {
	if s.root.err == nil {
		s.root.err = err
	}
}

func (s *berSequence) Len() int {
	return len(s.elmts)
}

// Requires between min and max elements.
func (s *berSequence) length(min, max int) *berSequence {
	if s.ok() && (len(s.elmts) < min || len(s.elmts) > max) {
		s.fail(ErrWrongSequenceLength.WithInfo(s.name+" sequence length", len(s.elmts)))
	}
	return s
}

// Reports whether element i exists and is of type t.
func (s *berSequence) is(i int, t BerType) bool {
	return i < len(s.elmts) && s.elmts[i].Type == t
}

func (s *berSequence) raw(i int, field string) BerRawElement {
	if !s.ok() {
		return BerRawElement{}
	}
	if i >= len(s.elmts) {
		s.fail(ErrWrongSequenceLength.WithInfo(s.name+" "+field, "missing"))
		return BerRawElement{}
	}
	return s.elmts[i]
}

func (s *berSequence) data(i int, t BerType, field string) []byte {
	e := s.raw(i, field)
	if !s.ok() {
		return nil
	}
	if e.Type != t {
		s.fail(ErrWrongElementType.WithInfo(s.name+" "+field+" type", e.Type))
		return nil
	}
	return e.Data
}

func (s *berSequence) octetString(i int, field string) string {
	return string(s.data(i, BerTypeOctetString, field))
}

// Reads an implicitly tagged string.
func (s *berSequence) tagged(i int, t BerType, field string) string {
	return string(s.data(i, t, field))
}

func (s *berSequence) boolean(i int, t BerType, field string) bool {
	data := s.data(i, t, field)
	if !s.ok() {
		return false
	}
	b, err := BerGetBoolean(data)
	if err != nil {
		s.fail(err)
	}
	return b
}

func (s *berSequence) integer(i int, field string, min, max int64) int64 {
	return s.number(i, BerTypeInteger, field, min, max)
}

func (s *berSequence) enumerated(i int, field string, min, max int64) int64 {
	return s.number(i, BerTypeEnumerated, field, min, max)
}

func (s *berSequence) number(i int, t BerType, field string, min, max int64) int64 {
	data := s.data(i, t, field)
	if !s.ok() {
		return 0
	}
	n, err := BerGetInteger(data)
	if err == nil && (n < min || n > max) {
		err = ErrIntegerOutOfRange.WithInfo(s.name+" "+field, n)
	}
	if err != nil {
		s.fail(err)
		return 0
	}
	return n
}

// Decodes element i as a nested SEQUENCE or SET of type t.
func (s *berSequence) sequence(i int, t BerType, field string) *berSequence {
	child := &berSequence{name: s.name + " " + field, root: s.root}
	data := s.data(i, t, field)
	if !s.ok() {
		return child
	}
	elmts, err := BerGetSequence(data)
	if err != nil {
		s.fail(err)
		return child
	}
	child.elmts = elmts
	return child
}

// Decodes element i as a SEQUENCE OF or SET OF OCTET STRING.
func (s *berSequence) strings(i int, t BerType, field string) []string {
	seq := s.sequence(i, t, field)
	var out []string
	for j := 0; j < seq.Len() && s.ok(); j++ {
		out = append(out, seq.octetString(j, "value"))
	}
	return out
}
