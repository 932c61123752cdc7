package memldap_test

import (
	"testing"

	"github.com/merlinz01/memldap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig(t *testing.T) {
	_, err := memldap.NewConfig()
	assert.ErrorIs(t, err, memldap.ErrNoBaseDN)
	_, err = memldap.NewConfig("dc=example,dc=com", "not a dn")
	assert.ErrorIs(t, err, memldap.ErrInvalidDN)
	_, err = memldap.NewConfig("")
	assert.ErrorIs(t, err, memldap.ErrInvalidDN)
	_, err = memldap.NewConfig("dc=example,dc=com", "DC=Example, DC=Com")
	assert.ErrorIs(t, err, memldap.ErrInvalidDN)

	cfg, err := memldap.NewConfig("dc=example,dc=com", "o=test")
	require.NoError(t, err)
	assert.Equal(t, []string{"dc=example,dc=com", "o=test"}, cfg.BaseDNs())
	assert.True(t, cfg.GenerateOperationalAttributes)
	assert.Empty(t, cfg.ListenerConfigs())
}

func TestSetListenerConfigs(t *testing.T) {
	cfg, err := memldap.NewConfig("dc=example,dc=com")
	require.NoError(t, err)
	first := []memldap.ListenerConfig{
		memldap.NewLDAPListenerConfig("LISTENER-0", 0),
		memldap.NewLDAPListenerConfig("LISTENER-1", 0),
	}
	require.NoError(t, cfg.SetListenerConfigs(first...))

	tests := []struct {
		name      string
		listeners []memldap.ListenerConfig
		err       error
	}{
		{"negative port", []memldap.ListenerConfig{memldap.NewLDAPListenerConfig("a", -1)}, memldap.ErrInvalidPort},
		{"port too large", []memldap.ListenerConfig{memldap.NewLDAPListenerConfig("a", 65536)}, memldap.ErrInvalidPort},
		{"duplicate name", []memldap.ListenerConfig{
			memldap.NewLDAPListenerConfig("a", 0),
			memldap.NewLDAPListenerConfig("a", 0),
		}, memldap.ErrDuplicateListener},
		{"duplicate port", []memldap.ListenerConfig{
			memldap.NewLDAPListenerConfig("a", 10389),
			memldap.NewLDAPListenerConfig("b", 10389),
		}, memldap.ErrDuplicatePort},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, cfg.SetListenerConfigs(tt.listeners...), tt.err)
			assert.Equal(t, first, cfg.ListenerConfigs())
		})
	}

	// The same port on different addresses is allowed.
	require.NoError(t, cfg.SetListenerConfigs(
		memldap.ListenerConfig{Name: "a", Address: "127.0.0.1", Port: 10389},
		memldap.ListenerConfig{Name: "b", Address: "127.0.0.2", Port: 10389},
	))
	assert.Len(t, cfg.ListenerConfigs(), 2)

	// The returned slice is a copy.
	cfg.ListenerConfigs()[0].Name = "changed"
	assert.Equal(t, "a", cfg.ListenerConfigs()[0].Name)
}

func TestAddAdditionalBindCredentials(t *testing.T) {
	cfg, err := memldap.NewConfig("dc=example,dc=com")
	require.NoError(t, err)
	assert.NoError(t, cfg.AddAdditionalBindCredentials("cn=Directory Manager", "password"))
	assert.ErrorIs(t, cfg.AddAdditionalBindCredentials("", "password"), memldap.ErrInvalidDN)
	assert.ErrorIs(t, cfg.AddAdditionalBindCredentials("manager", "password"), memldap.ErrInvalidDN)
}
