package memldap

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Generalized time layout used for timestamps
const generalizedTime = "20060102150405Z"

type storedEntry struct {
	dn    DN
	entry *Entry
}

// In-memory entry store keyed by normalized DN.
// Safe for concurrent use by connection goroutines.
type directory struct {
	mu          sync.RWMutex
	baseDNs     []DN
	entries     map[string]*storedEntry
	operational bool
	now         func() time.Time
}

func newDirectory(baseDNs []DN, operational bool) *directory {
	d := &directory{
		entries:     make(map[string]*storedEntry),
		operational: operational,
		now:         time.Now,
	}
	for _, dn := range baseDNs {
		d.baseDNs = append(d.baseDNs, dn.Normalize())
	}
	return d
}

func parseEntryDN(s string) (DN, string, error) {
	dn, err := ParseDN(s)
	if err != nil {
		return nil, "", &ResultError{Code: LDAPResultInvalidDNSyntax, DiagnosticMessage: err.Error()}
	}
	return dn, dn.Normalize().String(), nil
}

func (d *directory) isBaseDN(norm DN) bool {
	for _, b := range d.baseDNs {
		if b.Equal(norm) {
			return true
		}
	}
	return false
}

func (d *directory) withinBaseDN(norm DN) bool {
	for _, b := range d.baseDNs {
		if norm.IsDescendantOrSelf(b) {
			return true
		}
	}
	return false
}

// Returns the closest existing superior of dn, for matchedDN in results.
// Must be called with the lock held.
func (d *directory) matchedDN(norm DN) string {
	for p := norm.Parent(); len(p) > 0; p = p.Parent() {
		if se, ok := d.entries[p.String()]; ok {
			return se.dn.String()
		}
	}
	return ""
}

func (d *directory) hasChildren(norm DN) bool {
	for _, se := range d.entries {
		if norm.IsParent(se.dn.Normalize()) {
			return true
		}
	}
	return false
}

func (d *directory) timestamp() string {
	return d.now().UTC().Format(generalizedTime)
}

func (d *directory) get(dn string) (*Entry, error) {
	_, key, err := parseEntryDN(dn)
	if err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	se, ok := d.entries[key]
	if !ok {
		return nil, nil
	}
	return se.entry.Clone(), nil
}

func (d *directory) add(e *Entry) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.addLocked(e)
}

func (d *directory) addLocked(e *Entry) error {
	dn, key, err := parseEntryDN(e.DN)
	if err != nil {
		return err
	}
	if len(dn) == 0 {
		return resultErrorf(LDAPResultUnwillingToPerform, "cannot add the root DSE")
	}
	norm := dn.Normalize()
	if !d.withinBaseDN(norm) {
		return resultErrorf(LDAPResultNoSuchObject, "entry %s is not within any base DN", e.DN)
	}
	if _, exists := d.entries[key]; exists {
		return resultErrorf(LDAPResultEntryAlreadyExists, "entry %s already exists", e.DN)
	}
	if !d.isBaseDN(norm) {
		if _, ok := d.entries[norm.Parent().String()]; !ok {
			err := resultErrorf(LDAPResultNoSuchObject, "parent of entry %s does not exist", e.DN)
			err.MatchedDN = d.matchedDN(norm)
			return err
		}
	}
	stored := &Entry{DN: dn.String()}
	for _, a := range e.Attributes {
		if len(a.Values) == 0 {
			continue
		}
		stored.AddValues(a.Description, a.Values...)
	}
	for _, attr := range dn.RDN() {
		stored.AddValues(attr.Type, attr.Value)
	}
	if d.operational {
		now := d.timestamp()
		stored.SetValues(AttrEntryUUID, uuid.NewString())
		stored.SetValues(AttrCreateTimestamp, now)
		stored.SetValues(AttrModifyTimestamp, now)
	}
	d.entries[key] = &storedEntry{dn: dn, entry: stored}
	return nil
}

func (d *directory) delete(dn string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.deleteLocked(dn)
}

func (d *directory) deleteLocked(dn string) error {
	parsed, key, err := parseEntryDN(dn)
	if err != nil {
		return err
	}
	if _, ok := d.entries[key]; !ok {
		err := resultErrorf(LDAPResultNoSuchObject, "entry %s does not exist", dn)
		err.MatchedDN = d.matchedDN(parsed.Normalize())
		return err
	}
	if d.hasChildren(parsed.Normalize()) {
		return resultErrorf(LDAPResultNotAllowedOnNonLeaf, "entry %s has subordinates", dn)
	}
	delete(d.entries, key)
	return nil
}

func (d *directory) modify(dn string, changes []ModifyChange) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.modifyLocked(dn, changes)
}

func (d *directory) modifyLocked(dn string, changes []ModifyChange) error {
	parsed, key, err := parseEntryDN(dn)
	if err != nil {
		return err
	}
	se, ok := d.entries[key]
	if !ok {
		err := resultErrorf(LDAPResultNoSuchObject, "entry %s does not exist", dn)
		err.MatchedDN = d.matchedDN(parsed.Normalize())
		return err
	}
	updated := se.entry.Clone()
	for _, ch := range changes {
		if err := applyChange(updated, ch); err != nil {
			return err
		}
	}
	for _, attr := range se.dn.RDN() {
		if !updated.HasValue(attr.Type, attr.Value) {
			return resultErrorf(LDAPResultNotAllowedOnRDN, "cannot remove RDN value %s=%s", attr.Type, attr.Value)
		}
	}
	if d.operational {
		updated.SetValues(AttrModifyTimestamp, d.timestamp())
	}
	d.entries[key] = &storedEntry{dn: se.dn, entry: updated}
	return nil
}

func applyChange(e *Entry, ch ModifyChange) error {
	name := ch.Modification.Description
	values := ch.Modification.Values
	if isOperational(name) {
		return resultErrorf(LDAPResultUnwillingToPerform, "attribute %s is read-only", name)
	}
	switch ch.Operation {
	case ModifyAdd:
		for _, v := range values {
			if e.HasValue(name, v) {
				return resultErrorf(LDAPResultAttributeOrValueExists, "attribute %s already has value %s", name, v)
			}
		}
		e.AddValues(name, values...)
	case ModifyDelete:
		a := e.Attribute(name)
		if a == nil {
			return resultErrorf(LDAPResultNoSuchAttribute, "attribute %s does not exist", name)
		}
		if len(values) == 0 {
			e.RemoveAttribute(name)
			return nil
		}
		for _, v := range values {
			i := a.indexOf(v)
			if i < 0 {
				return resultErrorf(LDAPResultNoSuchAttribute, "attribute %s has no value %s", name, v)
			}
			a.Values = append(a.Values[:i], a.Values[i+1:]...)
		}
		if len(a.Values) == 0 {
			e.RemoveAttribute(name)
		}
	case ModifyReplace:
		e.SetValues(name, values...)
	default:
		return resultErrorf(LDAPResultProtocolError, "unknown modify operation %d", ch.Operation)
	}
	return nil
}

func (d *directory) modifyDN(req *ModifyDNRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	oldDN, oldKey, err := parseEntryDN(req.Object)
	if err != nil {
		return err
	}
	se, ok := d.entries[oldKey]
	if !ok {
		err := resultErrorf(LDAPResultNoSuchObject, "entry %s does not exist", req.Object)
		err.MatchedDN = d.matchedDN(oldDN.Normalize())
		return err
	}
	newRDN, err := ParseDN(req.NewRDN)
	if err != nil || len(newRDN) != 1 {
		return resultErrorf(LDAPResultInvalidDNSyntax, "invalid new RDN %q", req.NewRDN)
	}
	parent := oldDN.Parent()
	if req.NewSuperior != "" {
		parent, _, err = parseEntryDN(req.NewSuperior)
		if err != nil {
			return err
		}
		if _, ok := d.entries[parent.Normalize().String()]; !ok {
			return resultErrorf(LDAPResultNoSuchObject, "new superior %s does not exist", req.NewSuperior)
		}
	}
	newDN := append(append(DN{}, parent...), newRDN[0])
	newNorm := newDN.Normalize()
	if _, exists := d.entries[newNorm.String()]; exists {
		return resultErrorf(LDAPResultEntryAlreadyExists, "entry %s already exists", newDN)
	}
	if !d.withinBaseDN(newNorm) {
		return resultErrorf(LDAPResultUnwillingToPerform, "entry %s would not be within any base DN", newDN)
	}
	oldNorm := oldDN.Normalize()
	if newNorm.IsDescendantOrSelf(oldNorm) {
		return resultErrorf(LDAPResultUnwillingToPerform, "cannot move entry %s below itself", req.Object)
	}

	renamed := se.entry.Clone()
	if req.DeleteOldRDN {
		for _, attr := range oldDN.RDN() {
			if a := renamed.Attribute(attr.Type); a != nil {
				if i := a.indexOf(attr.Value); i >= 0 {
					a.Values = append(a.Values[:i], a.Values[i+1:]...)
				}
				if len(a.Values) == 0 {
					renamed.RemoveAttribute(attr.Type)
				}
			}
		}
	}
	for _, attr := range newRDN[0] {
		renamed.AddValues(attr.Type, attr.Value)
	}
	if d.operational {
		renamed.SetValues(AttrModifyTimestamp, d.timestamp())
	}

	// Move the subtree: every descendant keeps its relative part below the new DN.
	moved := make(map[string]*storedEntry)
	for key, other := range d.entries {
		if key == oldKey || !other.dn.Normalize().IsDescendantOrSelf(oldNorm) {
			continue
		}
		rel := other.dn[len(oldDN):]
		dn := append(append(DN{}, newDN...), rel...)
		e := other.entry.Clone()
		e.DN = dn.String()
		delete(d.entries, key)
		moved[dn.Normalize().String()] = &storedEntry{dn: dn, entry: e}
	}
	delete(d.entries, oldKey)
	renamed.DN = newDN.String()
	d.entries[newNorm.String()] = &storedEntry{dn: newDN, entry: renamed}
	for key, e := range moved {
		d.entries[key] = e
	}
	return nil
}

func (d *directory) compare(dn, attr, value string) (bool, error) {
	parsed, key, err := parseEntryDN(dn)
	if err != nil {
		return false, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	se, ok := d.entries[key]
	if !ok {
		err := resultErrorf(LDAPResultNoSuchObject, "entry %s does not exist", dn)
		err.MatchedDN = d.matchedDN(parsed.Normalize())
		return false, err
	}
	if !se.entry.HasAttribute(attr) {
		return false, resultErrorf(LDAPResultNoSuchAttribute, "entry %s has no attribute %s", dn, attr)
	}
	return se.entry.HasValue(attr, value), nil
}

// Returns the entries in scope of base matching the filter, parents first.
// A sizeLimit of 0 means no limit; exceeding it returns the entries found so far
// together with a sizeLimitExceeded error.
func (d *directory) search(base string, scope SearchScope, filter *Filter, sizeLimit uint32) ([]*Entry, error) {
	parsed, key, err := parseEntryDN(base)
	if err != nil {
		return nil, err
	}
	baseNorm := parsed.Normalize()
	d.mu.RLock()
	defer d.mu.RUnlock()
	if _, ok := d.entries[key]; !ok {
		err := resultErrorf(LDAPResultNoSuchObject, "base entry %s does not exist", base)
		err.MatchedDN = d.matchedDN(baseNorm)
		return nil, err
	}
	var found []*storedEntry
	for _, se := range d.entries {
		norm := se.dn.Normalize()
		var inScope bool
		switch scope {
		case SearchScopeBaseObject:
			inScope = norm.Equal(baseNorm)
		case SearchScopeSingleLevel:
			inScope = baseNorm.IsParent(norm)
		case SearchScopeWholeSubtree:
			inScope = norm.IsDescendantOrSelf(baseNorm)
		case SearchScopeSubordinateSubtree:
			inScope = baseNorm.IsSuperior(norm)
		}
		if inScope && (filter == nil || filter.Match(se.entry)) {
			found = append(found, se)
		}
	}
	sortStored(found)
	var out []*Entry
	for _, se := range found {
		if sizeLimit > 0 && uint32(len(out)) == sizeLimit {
			return out, resultErrorf(LDAPResultSizeLimitExceeded, "size limit of %d entries exceeded", sizeLimit)
		}
		out = append(out, se.entry.Clone())
	}
	return out, nil
}

// Sorts entries so parents come before their children.
func sortStored(s []*storedEntry) {
	sort.Slice(s, func(i, j int) bool {
		if len(s[i].dn) != len(s[j].dn) {
			return len(s[i].dn) < len(s[j].dn)
		}
		return strings.ToLower(s[i].entry.DN) < strings.ToLower(s[j].entry.DN)
	})
}

func (d *directory) all() []*Entry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	stored := make([]*storedEntry, 0, len(d.entries))
	for _, se := range d.entries {
		stored = append(stored, se)
	}
	sortStored(stored)
	out := make([]*Entry, len(stored))
	for i, se := range stored {
		out[i] = se.entry.Clone()
	}
	return out
}

func (d *directory) count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

func (d *directory) clear() {
	d.mu.Lock()
	d.entries = make(map[string]*storedEntry)
	d.mu.Unlock()
}

// Runs fn with the write lock held; the contents are restored if fn fails.
func (d *directory) atomically(fn func() error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	saved := make(map[string]*storedEntry, len(d.entries))
	for k, v := range d.entries {
		saved[k] = v
	}
	if err := fn(); err != nil {
		d.entries = saved
		return err
	}
	return nil
}
