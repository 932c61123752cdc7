package memldap

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DirectoryServer is an in-memory LDAP directory served on one or more listeners.
//
// Entries live only in memory. The server can be started and stopped
// repeatedly; the contents survive a stop and are only removed by Clear
// or a clearing import.
type DirectoryServer struct {
	baseDNs   []DN
	listeners []ListenerConfig
	log       *zap.Logger
	dir       *directory
	handler   *directoryHandler

	mu      sync.Mutex
	running []*runningListener
	group   *errgroup.Group
}

type runningListener struct {
	name     string
	listener net.Listener
	server   *LDAPServer
}

// Create a directory server from cfg.
// The config is copied; later changes to it have no effect.
// Fails if no listener is configured or a fixed port cannot be bound on this host.
func NewDirectoryServer(cfg *Config) (*DirectoryServer, error) {
	if cfg == nil || len(cfg.baseDNs) == 0 {
		return nil, ErrNoBaseDN
	}
	if len(cfg.listeners) == 0 {
		return nil, ErrNoListeners
	}
	for _, l := range cfg.listeners {
		if l.Port == 0 {
			continue
		}
		if err := probePort(l.address()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrPortUnavailable.WithInfo("address", l.address()), err)
		}
	}
	credentials := make(map[string]string, len(cfg.bindCredentials))
	for dn, pw := range cfg.bindCredentials {
		credentials[dn] = pw
	}
	log := cfg.logger()
	s := &DirectoryServer{
		baseDNs:   append([]DN(nil), cfg.baseDNs...),
		listeners: cfg.ListenerConfigs(),
		log:       log,
		dir:       newDirectory(cfg.baseDNs, cfg.GenerateOperationalAttributes),
	}
	s.handler = &directoryHandler{
		BaseHandler: BaseHandler{Logger: log},
		dir:         s.dir,
		credentials: credentials,
		namingCtx:   cfg.BaseDNs(),
	}
	return s, nil
}

func probePort(address string) error {
	l, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	return l.Close()
}

// Returns the base DNs of the directory
func (s *DirectoryServer) BaseDNs() []string {
	out := make([]string, len(s.baseDNs))
	for i, dn := range s.baseDNs {
		out[i] = dn.String()
	}
	return out
}

// Bind all listeners and start accepting connections.
// Either every listener is bound or none is.
func (s *DirectoryServer) StartListening() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running != nil {
		return ErrAlreadyListening
	}
	running := make([]*runningListener, 0, len(s.listeners))
	for _, lc := range s.listeners {
		l, err := net.Listen("tcp", lc.address())
		if err != nil {
			for _, r := range running {
				r.listener.Close()
			}
			return fmt.Errorf("listener %s: %w", lc.Name, err)
		}
		srv := NewLDAPServer(s.handler)
		srv.TLSConfig = lc.TLSConfig
		srv.Logger = s.log.With(zap.String("listener", lc.Name))
		running = append(running, &runningListener{name: lc.Name, listener: l, server: srv})
	}
	group := new(errgroup.Group)
	for _, r := range running {
		r := r
		s.log.Debug("Listening", zap.String("listener", r.name), zap.Stringer("address", r.listener.Addr()))
		group.Go(func() error {
			return r.server.Serve(r.listener)
		})
	}
	s.running = running
	s.group = group
	return nil
}

// Stop accepting connections on all listeners and wait for the accept loops.
// With closeExisting, established client connections are closed as well;
// otherwise they keep being served until the clients disconnect.
// Does nothing if the server is not listening.
func (s *DirectoryServer) ShutDown(closeExisting bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running == nil {
		return nil
	}
	var errs []error
	for _, r := range s.running {
		if err := r.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, fmt.Errorf("listener %s: %w", r.name, err))
		}
	}
	if err := s.group.Wait(); err != nil {
		errs = append(errs, err)
	}
	if closeExisting {
		for _, r := range s.running {
			r.server.CloseConnections()
		}
	}
	s.running = nil
	s.group = nil
	s.log.Debug("Stopped listening", zap.Bool("closeExisting", closeExisting))
	return errors.Join(errs...)
}

// Reports whether the listeners are accepting connections
func (s *DirectoryServer) Listening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running != nil
}

// Returns the port of the first listener, or -1 if the server is not listening
func (s *DirectoryServer) ListenPort() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.running) == 0 {
		return -1
	}
	return portOf(s.running[0].listener)
}

// Returns the port of the named listener, or -1 if it is not listening
func (s *DirectoryServer) ListenPortFor(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.running {
		if r.name == name {
			return portOf(r.listener)
		}
	}
	return -1
}

func portOf(l net.Listener) int {
	if addr, ok := l.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return -1
}

// Returns the entry, or nil if it does not exist.
// Without attrs all attributes are returned, operational ones included;
// otherwise attrs select attributes as in a search request.
func (s *DirectoryServer) GetEntry(dn string, attrs ...string) (*Entry, error) {
	e, err := s.dir.get(dn)
	if err != nil || e == nil {
		return nil, err
	}
	if len(attrs) > 0 {
		return e.Select(attrs, false), nil
	}
	return e, nil
}

// Search the directory with an RFC 4515 filter string.
// attrs select attributes as in GetEntry.
func (s *DirectoryServer) Search(base string, scope SearchScope, filter string, attrs ...string) ([]*Entry, error) {
	f, err := ParseFilter(filter)
	if err != nil {
		return nil, err
	}
	entries, err := s.dir.search(base, scope, f, 0)
	if err != nil {
		return nil, err
	}
	if len(attrs) > 0 {
		for i, e := range entries {
			entries[i] = e.Select(attrs, false)
		}
	}
	return entries, nil
}

// Add an entry. Its parent must exist unless it is a base DN.
func (s *DirectoryServer) Add(e *Entry) error {
	return s.dir.add(e)
}

// Delete a leaf entry
func (s *DirectoryServer) Delete(dn string) error {
	return s.dir.delete(dn)
}

// Apply the changes to an entry; either all of them are applied or none
func (s *DirectoryServer) Modify(dn string, changes ...ModifyChange) error {
	return s.dir.modify(dn, changes)
}

// Rename an entry, moving it and its subordinates below newSuperior if that is not empty.
func (s *DirectoryServer) ModifyDN(dn string, newRDN string, deleteOldRDN bool, newSuperior string) error {
	return s.dir.modifyDN(&ModifyDNRequest{
		Object:       dn,
		NewRDN:       newRDN,
		DeleteOldRDN: deleteOldRDN,
		NewSuperior:  newSuperior,
	})
}

// Reports whether the entry's attribute holds the value
func (s *DirectoryServer) Compare(dn string, attr string, value string) (bool, error) {
	return s.dir.compare(dn, attr, value)
}

func (s *DirectoryServer) EntryCount() int {
	return s.dir.count()
}

// Returns copies of all entries, parents first
func (s *DirectoryServer) Entries() []*Entry {
	return s.dir.all()
}

// Remove all entries
func (s *DirectoryServer) Clear() {
	s.dir.clear()
	s.log.Debug("Cleared entries")
}
