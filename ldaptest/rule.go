package ldaptest

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"testing"

	"github.com/merlinz01/memldap"
	"go.uber.org/zap"
)

// Server operations driven by a Rule
type lifecycle interface {
	ImportFromLDIF(clear bool, path string) (int, error)
	StartListening() error
	ListenPort() int
	ShutDown(closeExisting bool) error
	Clear()
}

// Rule runs a directory server around tests.
type Rule struct {
	server *memldap.DirectoryServer
	ctl    lifecycle
	files  []string
	log    *zap.Logger
}

func newRule(server *memldap.DirectoryServer, files []string, log *zap.Logger) *Rule {
	return &Rule{server: server, ctl: server, files: files, log: log}
}

// Returns the directory server, for direct access to its entries
func (r *Rule) Server() *memldap.DirectoryServer {
	return r.server
}

// Returns the port of the first listener, or -1 outside of a test
func (r *Rule) Port() int {
	return r.ctl.ListenPort()
}

// Returns the LDAP URL of the first listener, or "" outside of a test
func (r *Rule) URL() string {
	port := r.Port()
	if port < 0 {
		return ""
	}
	return "ldap://" + net.JoinHostPort(memldap.DefaultListenAddress, strconv.Itoa(port))
}

// Seed and start the server, run body and stop and clear the server again.
//
// Seed and start errors are returned without running body. Otherwise the
// server is stopped even if body fails or panics; the error of body is
// returned as is, joined with the teardown error if stopping fails.
func (r *Rule) Evaluate(name string, body func() error) (err error) {
	log := r.log.With(zap.String("test", name))
	if err := r.setUp(log); err != nil {
		return err
	}
	defer func() {
		if terr := r.tearDown(log); terr != nil {
			if p := recover(); p != nil {
				log.Error("Teardown failed while panicking", zap.Error(terr))
				panic(p)
			}
			err = errors.Join(err, terr)
		}
	}()
	return body()
}

// Run body inside t with the server seeded and started.
// Seed and start failures end the test with t.Fatal; a teardown failure is
// reported with t.Error, also when body already failed the test.
func (r *Rule) Run(t testing.TB, body func(t testing.TB)) {
	t.Helper()
	log := r.log.With(zap.String("test", t.Name()))
	if err := r.setUp(log); err != nil {
		t.Fatal(err)
	}
	defer func() {
		if err := r.tearDown(log); err != nil {
			t.Error(err)
		}
	}()
	body(t)
}

// Seed and start the server now and stop it when t completes.
func (r *Rule) Start(t testing.TB) {
	t.Helper()
	log := r.log.With(zap.String("test", t.Name()))
	if err := r.setUp(log); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := r.tearDown(log); err != nil {
			t.Error(err)
		}
	})
}

func (r *Rule) setUp(log *zap.Logger) error {
	for i, path := range r.files {
		log.Debug("Loading seed file", zap.String("path", path), zap.Bool("clear", i == 0))
		n, err := r.ctl.ImportFromLDIF(i == 0, path)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrSeed, err)
		}
		log.Debug("Loaded seed file", zap.String("path", path), zap.Int("records", n))
	}
	log.Debug("Starting server")
	if err := r.ctl.StartListening(); err != nil {
		return fmt.Errorf("%w: %w", ErrStart, err)
	}
	log.Debug("Started server", zap.Int("port", r.ctl.ListenPort()))
	return nil
}

func (r *Rule) tearDown(log *zap.Logger) error {
	log.Debug("Stopping server")
	err := r.ctl.ShutDown(true)
	r.ctl.Clear()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTeardown, err)
	}
	log.Debug("Stopped server")
	return nil
}
