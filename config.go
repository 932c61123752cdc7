package memldap

import (
	"crypto/tls"
	"net"
	"strconv"

	"go.uber.org/zap"
)

// Default address listeners bind to when ListenerConfig.Address is empty
const DefaultListenAddress = "127.0.0.1"

// ListenerConfig describes one network endpoint of a DirectoryServer.
type ListenerConfig struct {
	// Unique name of the listener
	Name string
	// Host or IP to bind, DefaultListenAddress if empty
	Address string
	// TCP port, 0 for an ephemeral port
	Port int
	// Optional TLS config offered to clients through StartTLS
	TLSConfig *tls.Config
}

// Create a plain LDAP listener config bound to DefaultListenAddress.
func NewLDAPListenerConfig(name string, port int) ListenerConfig {
	return ListenerConfig{Name: name, Port: port}
}

func (l ListenerConfig) address() string {
	host := l.Address
	if host == "" {
		host = DefaultListenAddress
	}
	return net.JoinHostPort(host, strconv.Itoa(l.Port))
}

// Config holds the settings of a DirectoryServer.
// It is mutable until passed to NewDirectoryServer.
type Config struct {
	baseDNs   []DN
	listeners []ListenerConfig
	// DN/password pairs accepted by simple binds in addition to entry passwords
	bindCredentials map[string]string

	// Maintain entryUUID, createTimestamp and modifyTimestamp on entries
	GenerateOperationalAttributes bool
	// Logger for the server and its connections; nil disables logging
	Logger *zap.Logger
}

// Create a config for a directory holding the given naming contexts.
func NewConfig(baseDNs ...string) (*Config, error) {
	if len(baseDNs) == 0 {
		return nil, ErrNoBaseDN
	}
	c := &Config{
		bindCredentials:               make(map[string]string),
		GenerateOperationalAttributes: true,
	}
	seen := make(map[string]bool)
	for _, s := range baseDNs {
		dn, err := ParseDN(s)
		if err != nil {
			return nil, err
		}
		if len(dn) == 0 {
			return nil, ErrInvalidDN.WithInfo("base DN", s)
		}
		key := dn.Normalize().String()
		if seen[key] {
			return nil, ErrInvalidDN.WithInfo("duplicate base DN", s)
		}
		seen[key] = true
		c.baseDNs = append(c.baseDNs, dn)
	}
	return c, nil
}

// Returns the configured base DNs in their original form
func (c *Config) BaseDNs() []string {
	out := make([]string, len(c.baseDNs))
	for i, dn := range c.baseDNs {
		out[i] = dn.String()
	}
	return out
}

// Returns a copy of the listener configs
func (c *Config) ListenerConfigs() []ListenerConfig {
	return append([]ListenerConfig(nil), c.listeners...)
}

// Replace the listener configs.
// The previous list is kept if the new one is invalid.
func (c *Config) SetListenerConfigs(listeners ...ListenerConfig) error {
	names := make(map[string]bool)
	ports := make(map[string]bool)
	for _, l := range listeners {
		if l.Port < 0 || l.Port > 65535 {
			return ErrInvalidPort.WithInfo("port", l.Port)
		}
		if names[l.Name] {
			return ErrDuplicateListener.WithInfo("name", l.Name)
		}
		names[l.Name] = true
		if l.Port == 0 {
			continue
		}
		if ports[l.address()] {
			return ErrDuplicatePort.WithInfo("port", l.Port)
		}
		ports[l.address()] = true
	}
	c.listeners = append([]ListenerConfig(nil), listeners...)
	return nil
}

// Allow simple binds as dn with the given password.
func (c *Config) AddAdditionalBindCredentials(dn string, password string) error {
	key, err := NormalizeDN(dn)
	if err != nil {
		return err
	}
	if key == "" {
		return ErrInvalidDN.WithInfo("bind DN", dn)
	}
	c.bindCredentials[key] = password
	return nil
}

func (c *Config) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}
