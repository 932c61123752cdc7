package memldap

import "strings"

// An attribute description with its values.
// On the wire this is a PartialAttribute, so Values may be empty.
type Attribute struct {
	Description string
	Values      []string
}

type AttributeValueAssertion struct {
	Description string
	Value       string
}

//	PartialAttribute ::= SEQUENCE {
//		type       AttributeDescription,
//		vals       SET OF value AttributeValue }
func (s *berSequence) attribute(i int, field string) Attribute {
	seq := s.sequence(i, BerTypeSequence, field).length(2, 2)
	return Attribute{
		Description: seq.octetString(0, "type"),
		Values:      seq.strings(1, BerTypeSet, "vals"),
	}
}

func GetAttributeValueAssertion(data []byte) (*AttributeValueAssertion, error) {
	seq := decodeSequence("AttributeValueAssertion", data).length(2, 2)
	ava := &AttributeValueAssertion{
		Description: seq.octetString(0, "attributeDesc"),
		Value:       seq.octetString(1, "assertionValue"),
	}
	if err := seq.Err(); err != nil {
		return nil, err
	}
	return ava, nil
}

// Returns the encoded PartialAttribute without its SEQUENCE header.
func (a *Attribute) Encode() []byte {
	var vals berBuilder
	for _, v := range a.Values {
		vals.str(v)
	}
	var b berBuilder
	b.str(a.Description)
	b.add(BerTypeSet, vals.bytes())
	return b.bytes()
}

// Index of the first value equal to value ignoring case, or -1
func (a *Attribute) indexOf(value string) int {
	for i, v := range a.Values {
		if strings.EqualFold(v, value) {
			return i
		}
	}
	return -1
}
