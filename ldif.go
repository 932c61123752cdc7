package memldap

import (
	"fmt"
	"io"
	"os"

	"github.com/go-ldap/ldap/v3"
	"github.com/go-ldap/ldif"
	"go.uber.org/zap"
)

// Import the LDIF file at path and return the number of records applied.
// See ImportFromLDIFReader.
func (s *DirectoryServer) ImportFromLDIF(clear bool, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	n, err := s.ImportFromLDIFReader(clear, f)
	if err != nil {
		return 0, fmt.Errorf("import %s: %w", path, err)
	}
	s.log.Debug("Imported LDIF", zap.String("path", path), zap.Int("records", n), zap.Bool("clear", clear))
	return n, nil
}

// Import LDIF content and change records from r.
// Content records are added; add, delete and modify change records are applied in order.
// With clear, all existing entries are removed first. The import is atomic:
// if any record fails, the directory is left as it was.
func (s *DirectoryServer) ImportFromLDIFReader(clear bool, r io.Reader) (int, error) {
	l := &ldif.LDIF{}
	if err := ldif.Unmarshal(r, l); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidLDIF, err)
	}
	n := 0
	err := s.dir.atomically(func() error {
		if clear {
			s.dir.entries = make(map[string]*storedEntry)
		}
		for _, rec := range l.Entries {
			if err := s.applyRecord(rec); err != nil {
				return fmt.Errorf("record %d: %w", n+1, err)
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Must be called with the directory lock held.
func (s *DirectoryServer) applyRecord(rec *ldif.Entry) error {
	switch {
	case rec.Entry != nil:
		e := &Entry{DN: rec.Entry.DN}
		for _, a := range rec.Entry.Attributes {
			e.AddValues(a.Name, a.Values...)
		}
		return s.dir.addLocked(e)
	case rec.Add != nil:
		e := &Entry{DN: rec.Add.DN}
		for _, a := range rec.Add.Attributes {
			e.AddValues(a.Type, a.Vals...)
		}
		return s.dir.addLocked(e)
	case rec.Del != nil:
		return s.dir.deleteLocked(rec.Del.DN)
	case rec.Modify != nil:
		changes := make([]ModifyChange, len(rec.Modify.Changes))
		for i, c := range rec.Modify.Changes {
			changes[i] = ModifyChange{
				Operation:    ModifyOperation(c.Operation),
				Modification: Attribute{Description: c.Modification.Type, Values: c.Modification.Vals},
			}
		}
		return s.dir.modifyLocked(rec.Modify.DN, changes)
	}
	return ErrInvalidLDIF.WithInfo("record", "empty")
}

// Write all entries to the file at path, parents first, and return the number written.
func (s *DirectoryServer) ExportToLDIF(path string) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	n, err := s.ExportToLDIFWriter(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("export %s: %w", path, err)
	}
	return n, nil
}

// Write all entries to w as LDIF content records, parents first.
func (s *DirectoryServer) ExportToLDIFWriter(w io.Writer) (int, error) {
	entries := s.dir.all()
	if len(entries) == 0 {
		return 0, nil
	}
	l := &ldif.LDIF{Entries: make([]*ldif.Entry, len(entries))}
	for i, e := range entries {
		le := &ldap.Entry{DN: e.DN}
		for _, a := range e.Attributes {
			le.Attributes = append(le.Attributes, ldap.NewEntryAttribute(a.Description, a.Values))
		}
		l.Entries[i] = &ldif.Entry{Entry: le}
	}
	data, err := ldif.Marshal(l)
	if err != nil {
		return 0, err
	}
	if _, err := io.WriteString(w, data); err != nil {
		return 0, err
	}
	return len(entries), nil
}
