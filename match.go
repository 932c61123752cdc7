package memldap

import (
	"strconv"
	"strings"
)

// Reports whether the entry matches the filter.
// Values are compared case-insensitively; ordering filters compare
// numerically when both sides are integers.
func (f *Filter) Match(e *Entry) bool {
	switch f.Type {
	case FilterTypeAnd:
		for _, sub := range f.Data.([]Filter) {
			if !sub.Match(e) {
				return false
			}
		}
		return true
	case FilterTypeOr:
		for _, sub := range f.Data.([]Filter) {
			if sub.Match(e) {
				return true
			}
		}
		return false
	case FilterTypeNot:
		return !f.Data.(*Filter).Match(e)
	case FilterTypeEqual, FilterTypeApproxMatch:
		ava := f.Data.(*AttributeValueAssertion)
		return e.HasValue(ava.Description, ava.Value)
	case FilterTypeGreaterOrEqual, FilterTypeLessOrEqual:
		ava := f.Data.(*AttributeValueAssertion)
		for _, v := range e.Values(ava.Description) {
			c := compareValues(v, ava.Value)
			if (f.Type == FilterTypeGreaterOrEqual && c >= 0) || (f.Type == FilterTypeLessOrEqual && c <= 0) {
				return true
			}
		}
		return false
	case FilterTypeSubstrings:
		sf := f.Data.(*SubstringFilter)
		for _, v := range e.Values(sf.Attribute) {
			if sf.matchValue(v) {
				return true
			}
		}
		return false
	case FilterTypePresent:
		desc := f.Data.(string)
		if strings.EqualFold(desc, "objectClass") {
			return true
		}
		return e.HasAttribute(desc)
	case FilterTypeExtensibleMatch:
		mra := f.Data.(*MatchingRuleAssertion)
		if mra.Attribute != "" {
			return e.HasValue(mra.Attribute, mra.Value)
		}
		for _, a := range e.Attributes {
			if a.indexOf(mra.Value) >= 0 {
				return true
			}
		}
		return false
	case FilterTypeAbsoluteTrue:
		return true
	default:
		// absolute false and unrecognized filters are undefined, which never matches
		return false
	}
}

func (sf *SubstringFilter) matchValue(value string) bool {
	v := strings.ToLower(value)
	initial := strings.ToLower(sf.Initial)
	if !strings.HasPrefix(v, initial) {
		return false
	}
	v = v[len(initial):]
	for _, mid := range sf.Any {
		mid = strings.ToLower(mid)
		i := strings.Index(v, mid)
		if i < 0 {
			return false
		}
		v = v[i+len(mid):]
	}
	return strings.HasSuffix(v, strings.ToLower(sf.Final))
}

func compareValues(a, b string) int {
	ai, aerr := strconv.ParseInt(a, 10, 64)
	bi, berr := strconv.ParseInt(b, 10, 64)
	if aerr == nil && berr == nil {
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		}
		return 0
	}
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}
