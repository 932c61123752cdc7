package memldap

import (
	"encoding/hex"
	"sort"
	"strings"
)

// A distinguished name, stored root first: the string form
// "uid=jdoe,dc=example,dc=com" is DN{{dc=com}, {dc=example}, {uid=jdoe}}.
type DN []RDN

// A relative distinguished name; usually a single type and value.
type RDN []RDNAttribute

type RDNAttribute struct {
	Type  string
	Value string
}

// Parses the RFC 4514 string form of a DN.
// Spaces around types and values are ignored. The empty string is the
// empty DN.
func ParseDN(s string) (DN, error) {
	if s == "" {
		return nil, nil
	}
	parts := splitUnescaped(s, ',')
	dn := make(DN, len(parts))
	for i, part := range parts {
		rdn, err := parseRDN(part)
		if err != nil {
			return nil, err
		}
		dn[len(parts)-1-i] = rdn
	}
	return dn, nil
}

func parseRDN(s string) (RDN, error) {
	var rdn RDN
	for _, ava := range splitUnescaped(s, '+') {
		typ, value, ok := strings.Cut(ava, "=")
		typ = strings.TrimSpace(typ)
		if !ok || typ == "" {
			return nil, ErrInvalidDN.WithInfo("RDN", s)
		}
		v, err := decodeValue(trimValue(value))
		if err != nil {
			return nil, err
		}
		rdn = append(rdn, RDNAttribute{Type: typ, Value: v})
	}
	return rdn, nil
}

// Splits s at each sep not preceded by an odd number of backslashes.
func splitUnescaped(s string, sep byte) []string {
	var parts []string
	start, escaped := 0, false
	for i := 0; i < len(s); i++ {
		switch {
		case escaped:
			escaped = false
		case s[i] == '\\':
			escaped = true
		case s[i] == sep:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

// Strips leading spaces and trailing unescaped spaces.
func trimValue(s string) string {
	s = strings.TrimLeft(s, " ")
	for strings.HasSuffix(s, " ") {
		body := s[:len(s)-1]
		if (len(body)-len(strings.TrimRight(body, `\`)))%2 == 1 {
			break
		}
		s = body
	}
	return s
}

// Decodes an attribute value: #<hex BER octet string> or an escaped string.
func decodeValue(s string) (string, error) {
	if strings.HasPrefix(s, "#") {
		ber, err := hex.DecodeString(s[1:])
		if err != nil {
			return "", ErrInvalidDN.WithInfo("hex value", s)
		}
		e, rest, err := nextElement(ber)
		if err != nil {
			return "", ErrInvalidDN.WithInfo("hex value", s)
		}
		if e.Type != BerTypeOctetString || len(rest) > 0 {
			return "", ErrWrongElementType.WithInfo("RDN value type", e.Type)
		}
		return string(e.Data), nil
	}
	if !strings.Contains(s, `\`) {
		return s, nil
	}
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' {
			out = append(out, s[i])
			continue
		}
		if i+1 < len(s) && strings.IndexByte(`"+,;<>\= #`, s[i+1]) >= 0 {
			out = append(out, s[i+1])
			i++
			continue
		}
		if i+2 >= len(s) {
			return "", ErrInvalidDN.WithInfo("escape", s[i:])
		}
		b, err := hex.DecodeString(s[i+1 : i+3])
		if err != nil {
			return "", ErrInvalidDN.WithInfo("escape", s[i:i+3])
		}
		out = append(out, b[0])
		i += 2
	}
	return string(out), nil
}

// Returns the canonical form of a DN string, used to compare DNs.
func NormalizeDN(s string) (string, error) {
	dn, err := ParseDN(s)
	if err != nil {
		return "", err
	}
	return dn.Normalize().String(), nil
}

// Returns a copy of the DN with lower-cased attribute types and values
// and multi-valued RDNs sorted by type.
func (d DN) Normalize() DN {
	n := make(DN, len(d))
	for i, rdn := range d {
		nr := make(RDN, len(rdn))
		for j, attr := range rdn {
			nr[j] = RDNAttribute{
				Type:  strings.ToLower(attr.Type),
				Value: strings.ToLower(attr.Value),
			}
		}
		sort.Slice(nr, func(a, b int) bool { return nr[a].Type < nr[b].Type })
		n[i] = nr
	}
	return n
}

func (d DN) String() string {
	var b strings.Builder
	for i := len(d) - 1; i >= 0; i-- {
		d[i].writeTo(&b)
		if i > 0 {
			b.WriteByte(',')
		}
	}
	return b.String()
}

func (r RDN) String() string {
	var b strings.Builder
	r.writeTo(&b)
	return b.String()
}

func (r RDN) writeTo(b *strings.Builder) {
	for i, attr := range r {
		if i > 0 {
			b.WriteByte('+')
		}
		attr.writeTo(b)
	}
}

func (a RDNAttribute) String() string {
	var b strings.Builder
	a.writeTo(&b)
	return b.String()
}

// Values of attributes named by OID are written in the #hex form.
func (a RDNAttribute) writeTo(b *strings.Builder) {
	b.WriteString(a.Type)
	b.WriteByte('=')
	if OID(a.Type).Validate() == nil {
		b.WriteByte('#')
		b.WriteString(strings.ToUpper(hex.EncodeToString(BerEncodeOctetString(a.Value))))
		return
	}
	v := a.Value
	for i := 0; i < len(v); i++ {
		c := v[i]
		switch {
		case strings.IndexByte(`"+,;<>\=`, c) >= 0,
			c == ' ' && (i == 0 || i == len(v)-1),
			c == '#' && i == 0:
			b.WriteByte('\\')
			b.WriteByte(c)
		case c < 0x20 || c == 0x7f:
			b.WriteByte('\\')
			b.WriteString(strings.ToUpper(hex.EncodeToString([]byte{c})))
		default:
			b.WriteByte(c)
		}
	}
}

func (r RDN) Equal(other RDN) bool {
	if len(r) != len(other) {
		return false
	}
	for i := range r {
		if r[i] != other[i] {
			return false
		}
	}
	return true
}

// Reports whether d starts with all the RDNs of prefix.
func (d DN) hasPrefix(prefix DN) bool {
	if len(prefix) > len(d) {
		return false
	}
	for i := range prefix {
		if !d[i].Equal(prefix[i]) {
			return false
		}
	}
	return true
}

func (d DN) Equal(other DN) bool {
	return len(d) == len(other) && d.hasPrefix(other)
}

// Reports whether d is the immediate superior of child.
func (d DN) IsParent(child DN) bool {
	return len(d)+1 == len(child) && child.hasPrefix(d)
}

func (d DN) IsChild(other DN) bool {
	return other.IsParent(d)
}

// Reports whether other is located anywhere below d.
func (d DN) IsSuperior(other DN) bool {
	return len(d) < len(other) && other.hasPrefix(d)
}

func (d DN) IsSubordinate(other DN) bool {
	return other.IsSuperior(d)
}

// Returns true if d equals other or is located below it.
func (d DN) IsDescendantOrSelf(other DN) bool {
	return d.hasPrefix(other)
}

// Reports whether d and other have the same parent.
func (d DN) IsSibling(other DN) bool {
	if len(d) != len(other) {
		return false
	}
	return len(d) == 0 || other.hasPrefix(d[:len(d)-1])
}

// Returns the longest DN that is a prefix of both; nil if either is empty.
func (d DN) CommonAncestor(other DN) DN {
	if len(d) == 0 || len(other) == 0 {
		return nil
	}
	n := 0
	for n < len(d) && n < len(other) && d[n].Equal(other[n]) {
		n++
	}
	return d[:n]
}

// Returns the parent DN, or nil for an empty or single-RDN DN.
func (d DN) Parent() DN {
	if len(d) <= 1 {
		return nil
	}
	return d[:len(d)-1]
}

// Returns the leftmost RDN, or nil for an empty DN.
func (d DN) RDN() RDN {
	if len(d) == 0 {
		return nil
	}
	return d[len(d)-1]
}
