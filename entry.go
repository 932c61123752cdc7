package memldap

import "strings"

// Entry is a directory entry: a DN and its attributes.
// Attribute descriptions are matched case-insensitively.
type Entry struct {
	DN         string
	Attributes []Attribute
}

// Create an entry from a DN and alternating attribute description/value pairs.
// Repeated descriptions accumulate values.
func NewEntry(dn string, pairs ...string) *Entry {
	e := &Entry{DN: dn}
	for i := 0; i+1 < len(pairs); i += 2 {
		e.AddValues(pairs[i], pairs[i+1])
	}
	return e
}

// Returns the attribute with the given description, or nil
func (e *Entry) Attribute(name string) *Attribute {
	for i := range e.Attributes {
		if strings.EqualFold(e.Attributes[i].Description, name) {
			return &e.Attributes[i]
		}
	}
	return nil
}

// Returns all values of the attribute, or nil
func (e *Entry) Values(name string) []string {
	if a := e.Attribute(name); a != nil {
		return a.Values
	}
	return nil
}

// Returns the first value of the attribute, or ""
func (e *Entry) Value(name string) string {
	if v := e.Values(name); len(v) > 0 {
		return v[0]
	}
	return ""
}

func (e *Entry) HasAttribute(name string) bool {
	return e.Attribute(name) != nil
}

// Returns true if the attribute holds the value (case-insensitive)
func (e *Entry) HasValue(name, value string) bool {
	a := e.Attribute(name)
	return a != nil && a.indexOf(value) >= 0
}

// Appends values to an attribute, creating it if needed.
// Values already present are skipped.
func (e *Entry) AddValues(name string, values ...string) {
	a := e.Attribute(name)
	if a == nil {
		e.Attributes = append(e.Attributes, Attribute{Description: name})
		a = &e.Attributes[len(e.Attributes)-1]
	}
	for _, v := range values {
		if a.indexOf(v) < 0 {
			a.Values = append(a.Values, v)
		}
	}
}

// Replaces all values of an attribute. An empty value list removes it.
func (e *Entry) SetValues(name string, values ...string) {
	if len(values) == 0 {
		e.RemoveAttribute(name)
		return
	}
	if a := e.Attribute(name); a != nil {
		a.Values = append([]string(nil), values...)
		return
	}
	e.Attributes = append(e.Attributes, Attribute{Description: name, Values: append([]string(nil), values...)})
}

func (e *Entry) RemoveAttribute(name string) {
	for i := range e.Attributes {
		if strings.EqualFold(e.Attributes[i].Description, name) {
			e.Attributes = append(e.Attributes[:i], e.Attributes[i+1:]...)
			return
		}
	}
}

// Returns a deep copy of the entry
func (e *Entry) Clone() *Entry {
	c := &Entry{DN: e.DN, Attributes: make([]Attribute, len(e.Attributes))}
	for i, a := range e.Attributes {
		c.Attributes[i] = Attribute{Description: a.Description, Values: append([]string(nil), a.Values...)}
	}
	return c
}

// Operational attributes maintained by the directory
const (
	AttrEntryUUID       = "entryUUID"
	AttrCreateTimestamp = "createTimestamp"
	AttrModifyTimestamp = "modifyTimestamp"
)

var operationalAttributes = map[string]bool{
	"entryuuid":         true,
	"createtimestamp":   true,
	"modifytimestamp":   true,
	"entrydn":           true,
	"subschemasubentry": true,
}

func isOperational(name string) bool {
	return operationalAttributes[strings.ToLower(name)]
}

// Returns a copy of the entry holding only the selected attributes.
//
// No selection or "*" selects all user attributes, "+" all operational
// attributes, "1.1" none. Other names select the attribute regardless of kind.
func (e *Entry) Select(attrs []string, typesOnly bool) *Entry {
	allUser := len(attrs) == 0
	allOperational := false
	named := map[string]bool{}
	for _, a := range attrs {
		switch a {
		case "*":
			allUser = true
		case "+":
			allOperational = true
		case string(OIDNoAttribute):
		default:
			named[strings.ToLower(a)] = true
		}
	}
	out := &Entry{DN: e.DN}
	for _, a := range e.Attributes {
		op := isOperational(a.Description)
		if !(named[strings.ToLower(a.Description)] || (op && allOperational) || (!op && allUser)) {
			continue
		}
		sel := Attribute{Description: a.Description}
		if !typesOnly {
			sel.Values = append([]string(nil), a.Values...)
		}
		out.Attributes = append(out.Attributes, sel)
	}
	return out
}
