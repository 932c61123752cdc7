package memldap

import (
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// Filter types: the context-specific tags of the Filter choice, plus
// the absolute filters of RFC 4526 (an empty and or or).
const (
	FilterTypeAnd             uint8 = 0
	FilterTypeOr              uint8 = 1
	FilterTypeNot             uint8 = 2
	FilterTypeEqual           uint8 = 3
	FilterTypeSubstrings      uint8 = 4
	FilterTypeGreaterOrEqual  uint8 = 5
	FilterTypeLessOrEqual     uint8 = 6
	FilterTypePresent         uint8 = 7
	FilterTypeApproxMatch     uint8 = 8
	FilterTypeExtensibleMatch uint8 = 9
	FilterTypeAbsoluteTrue    uint8 = 0xa0
	FilterTypeAbsoluteFalse   uint8 = 0xa1
)

// A search filter. Data depends on Type:
//   - and, or: []Filter
//   - not: *Filter
//   - equality, ordering and approx: *AttributeValueAssertion
//   - substrings: *SubstringFilter
//   - present: the attribute description as a string
//   - extensible: *MatchingRuleAssertion
//   - absolute true and false: nil
//   - anything else: the *BerRawElement as received
type Filter struct {
	Type uint8
	Data any
}

type SubstringFilter struct {
	Attribute string
	Initial   string
	Any       []string
	Final     string
}

type MatchingRuleAssertion struct {
	MatchingRule string
	Attribute    string
	Value        string
	DNAttributes bool
}

var (
	substringInitial = BerContextSpecificType(0, false)
	substringAny     = BerContextSpecificType(1, false)
	substringFinal   = BerContextSpecificType(2, false)

	mraMatchingRule = BerContextSpecificType(1, false)
	mraType         = BerContextSpecificType(2, false)
	mraMatchValue   = BerContextSpecificType(3, false)
	mraDNAttributes = BerContextSpecificType(4, false)
)

// Decodes a Filter element.
func GetFilter(raw BerRawElement) (*Filter, error) {
	if raw.Type.Class() != BerClassContextSpecific {
		return nil, ErrWrongElementType.WithInfo("Filter type", raw.Type)
	}
	f := &Filter{Type: raw.Type.TagNumber()}
	if raw.Type.IsConstructed() && len(raw.Data) == 0 {
		switch f.Type {
		case FilterTypeAnd:
			f.Type = FilterTypeAbsoluteTrue
			return f, nil
		case FilterTypeOr:
			f.Type = FilterTypeAbsoluteFalse
			return f, nil
		}
	}
	var err error
	switch f.Type {
	case FilterTypeAnd, FilterTypeOr:
		f.Data, err = getFilterSet(raw.Data)
	case FilterTypeNot:
		var inner BerRawElement
		if inner, _, err = nextElement(raw.Data); err == nil {
			f.Data, err = GetFilter(inner)
		}
	case FilterTypeEqual, FilterTypeGreaterOrEqual, FilterTypeLessOrEqual, FilterTypeApproxMatch:
		f.Data, err = GetAttributeValueAssertion(raw.Data)
	case FilterTypeSubstrings:
		f.Data, err = getSubstringFilter(raw.Data)
	case FilterTypePresent:
		f.Data = string(raw.Data)
	case FilterTypeExtensibleMatch:
		f.Data, err = getMatchingRuleAssertion(raw.Data)
	default:
		f.Data = &raw
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func getFilterSet(data []byte) ([]Filter, error) {
	elmts, err := BerGetSequence(data)
	if err != nil {
		return nil, err
	}
	filters := make([]Filter, len(elmts))
	for i, e := range elmts {
		f, err := GetFilter(e)
		if err != nil {
			return nil, err
		}
		filters[i] = *f
	}
	return filters, nil
}

//	SubstringFilter ::= SEQUENCE {
//		type           AttributeDescription,
//		substrings     SEQUENCE SIZE (1..MAX) OF substring CHOICE {
//			initial [0] AssertionValue,  -- can occur at most once
//			any     [1] AssertionValue,
//			final   [2] AssertionValue } -- can occur at most once
//		}
func getSubstringFilter(data []byte) (*SubstringFilter, error) {
	seq := decodeSequence("SubstringFilter", data).length(2, 2)
	sf := &SubstringFilter{Attribute: seq.octetString(0, "type")}
	subs := seq.sequence(1, BerTypeSequence, "substrings")
	for i := 0; i < subs.Len() && seq.ok(); i++ {
		e := subs.elmts[i]
		switch {
		case e.Type == substringInitial && i == 0:
			sf.Initial = string(e.Data)
		case e.Type == substringAny:
			sf.Any = append(sf.Any, string(e.Data))
		case e.Type == substringFinal && i == subs.Len()-1:
			sf.Final = string(e.Data)
		default:
			seq.fail(ErrWrongElementType.WithInfo(fmt.Sprintf("SubstringFilter substring %d type", i), e.Type))
		}
	}
	if err := seq.Err(); err != nil {
		return nil, err
	}
	return sf, nil
}

//	MatchingRuleAssertion ::= SEQUENCE {
//		matchingRule    [1] MatchingRuleId OPTIONAL,
//		type            [2] AttributeDescription OPTIONAL,
//		matchValue      [3] AssertionValue,
//		dnAttributes    [4] BOOLEAN DEFAULT FALSE }
func getMatchingRuleAssertion(data []byte) (*MatchingRuleAssertion, error) {
	seq := decodeSequence("MatchingRuleAssertion", data).length(1, 4)
	m := &MatchingRuleAssertion{}
	i := 0
	if seq.is(i, mraMatchingRule) {
		m.MatchingRule = seq.tagged(i, mraMatchingRule, "matchingRule")
		i++
	}
	if seq.is(i, mraType) {
		m.Attribute = seq.tagged(i, mraType, "type")
		i++
	}
	m.Value = seq.tagged(i, mraMatchValue, "matchValue")
	i++
	if i < seq.Len() {
		m.DNAttributes = seq.boolean(i, mraDNAttributes, "dnAttributes")
		i++
	}
	if seq.ok() && i != seq.Len() {
		seq.fail(ErrWrongSequenceLength.WithInfo("MatchingRuleAssertion sequence length", seq.Len()))
	}
	if err := seq.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

var filterOperators = map[uint8]string{
	FilterTypeEqual:          "=",
	FilterTypeGreaterOrEqual: ">=",
	FilterTypeLessOrEqual:    "<=",
	FilterTypeApproxMatch:    "~=",
}

// Returns the RFC 4515 string form of the filter.
// Unrecognized filter types are written as (?<data>), which is not valid LDAP.
func (f *Filter) String() string {
	var b strings.Builder
	f.writeTo(&b)
	return b.String()
}

func (f *Filter) writeTo(w *strings.Builder) {
	w.WriteByte('(')
	switch f.Type {
	case FilterTypeAnd, FilterTypeOr, FilterTypeAbsoluteTrue, FilterTypeAbsoluteFalse:
		if f.Type == FilterTypeAnd || f.Type == FilterTypeAbsoluteTrue {
			w.WriteByte('&')
		} else {
			w.WriteByte('|')
		}
		subs, _ := f.Data.([]Filter)
		for i := range subs {
			subs[i].writeTo(w)
		}
	case FilterTypeNot:
		w.WriteByte('!')
		f.Data.(*Filter).writeTo(w)
	case FilterTypeEqual, FilterTypeGreaterOrEqual, FilterTypeLessOrEqual, FilterTypeApproxMatch:
		ava := f.Data.(*AttributeValueAssertion)
		w.WriteString(ava.Description)
		w.WriteString(filterOperators[f.Type])
		writeAssertionValue(w, ava.Value)
	case FilterTypeSubstrings:
		sf := f.Data.(*SubstringFilter)
		w.WriteString(sf.Attribute)
		w.WriteByte('=')
		writeAssertionValue(w, sf.Initial)
		w.WriteByte('*')
		for _, part := range sf.Any {
			writeAssertionValue(w, part)
			w.WriteByte('*')
		}
		writeAssertionValue(w, sf.Final)
	case FilterTypePresent:
		w.WriteString(f.Data.(string))
		w.WriteString("=*")
	case FilterTypeExtensibleMatch:
		mra := f.Data.(*MatchingRuleAssertion)
		w.WriteString(mra.Attribute)
		if mra.DNAttributes {
			w.WriteString(":dn")
		}
		if mra.MatchingRule != "" {
			w.WriteByte(':')
			w.WriteString(mra.MatchingRule)
		}
		w.WriteString(":=")
		writeAssertionValue(w, mra.Value)
	default:
		w.WriteByte('?')
		if raw, ok := f.Data.(*BerRawElement); ok {
			writeAssertionValue(w, string(raw.Data))
		}
	}
	w.WriteByte(')')
}

// Writes value with the RFC 4515 escapes
func writeAssertionValue(w *strings.Builder, value string) {
	for i := 0; i < len(value); i++ {
		switch c := value[i]; c {
		case '*', '(', ')', '\\', 0:
			fmt.Fprintf(w, "\\%02x", c)
		default:
			w.WriteByte(c)
		}
	}
}

// Compiles a filter from its RFC 4515 string form.
func ParseFilter(s string) (*Filter, error) {
	packet, err := ldap.CompileFilter(s)
	if err != nil {
		return nil, err
	}
	raw, _, err := nextElement(packet.Bytes())
	if err != nil {
		return nil, err
	}
	return GetFilter(raw)
}
