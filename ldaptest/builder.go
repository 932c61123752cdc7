package ldaptest

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/merlinz01/memldap"
	"go.uber.org/zap"
)

// Directory searched for resources unless other roots are added
const DefaultResourceRoot = "testdata"

// Builder accumulates the configuration of a Rule.
//
// The first failing call is recorded; later calls are ignored and Build
// returns the recorded error. Err reports it immediately.
type Builder struct {
	config    *memldap.Config
	listeners []memldap.ListenerConfig
	files     []string
	roots     []string
	logger    *zap.Logger
	built     bool
	err       error
}

// Start a configuration for a directory with the given base DNs.
func NewBuilder(baseDNs ...string) *Builder {
	b := &Builder{roots: []string{DefaultResourceRoot}}
	cfg, err := memldap.NewConfig(baseDNs...)
	if err != nil {
		b.err = fmt.Errorf("%w: %w", ErrConfiguration, err)
		return b
	}
	b.config = cfg
	return b
}

// Returns the first error recorded by a builder call
func (b *Builder) Err() error {
	return b.err
}

// ListenerName returns the name given to the listener added by the n-th Listen call, counting from zero.
func ListenerName(n int) string {
	return fmt.Sprintf("LISTENER-%d", n)
}

// Add a listener on the given port of the loopback interface; 0 picks a free port.
// Listeners are named LISTENER-0, LISTENER-1, ... in the order they are added.
func (b *Builder) Listen(port int) *Builder {
	if b.err != nil {
		return b
	}
	l := memldap.NewLDAPListenerConfig(ListenerName(len(b.listeners)), port)
	listeners := append(slices.Clone(b.listeners), l)
	if err := b.config.SetListenerConfigs(listeners...); err != nil {
		b.err = fmt.Errorf("%w: %w", ErrConfiguration, err)
		return b
	}
	b.listeners = listeners
	return b
}

// Add an LDIF seed file. The file is not checked until it is imported.
func (b *Builder) File(path string) *Builder {
	if b.err != nil {
		return b
	}
	b.files = append(b.files, path)
	return b
}

// Add a directory searched by Resource, after the ones already added.
func (b *Builder) ResourceRoot(dir string) *Builder {
	if b.err != nil {
		return b
	}
	b.roots = append(b.roots, dir)
	return b
}

// Add an LDIF seed file by resource name, a slash-separated path relative
// to one of the resource roots. The first root holding the file wins.
func (b *Builder) Resource(name string) *Builder {
	if b.err != nil {
		return b
	}
	path, err := b.resolve(name)
	if err != nil {
		b.err = err
		return b
	}
	return b.File(path)
}

func (b *Builder) resolve(name string) (string, error) {
	rel := filepath.FromSlash(name)
	if name == "" || filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: %q", ErrResourceNotFound, name)
	}
	for _, root := range b.roots {
		candidate := filepath.Join(root, rel)
		info, err := os.Stat(candidate)
		if err != nil || info.IsDir() {
			continue
		}
		abs, err := filepath.Abs(candidate)
		if err != nil {
			return "", fmt.Errorf("ldaptest: resource %s: %w", name, err)
		}
		return abs, nil
	}
	return "", fmt.Errorf("%w: %s (searched %v)", ErrResourceNotFound, name, b.roots)
}

// Accept simple binds as dn with the given password.
func (b *Builder) BindCredentials(dn, password string) *Builder {
	if b.err != nil {
		return b
	}
	if err := b.config.AddAdditionalBindCredentials(dn, password); err != nil {
		b.err = fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return b
}

// Set the logger of the rule and its server.
func (b *Builder) Logger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// Create the rule and its directory server.
// Fails if a builder call failed, no listener was added or a port is unavailable.
// A builder can only be built once.
func (b *Builder) Build() (*Rule, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.built {
		return nil, fmt.Errorf("%w: builder already used", ErrConfiguration)
	}
	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	b.config.Logger = logger
	server, err := memldap.NewDirectoryServer(b.config)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	b.built = true
	return newRule(server, slices.Clone(b.files), logger), nil
}

// Like Build but panics on error.
func (b *Builder) MustBuild() *Rule {
	r, err := b.Build()
	if err != nil {
		panic(err)
	}
	return r
}
