package memldap_test

import (
	"fmt"
	"net"
	"sort"
	"testing"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/merlinz01/memldap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func startTestServer(t *testing.T) (*memldap.DirectoryServer, *ldap.Conn) {
	t.Helper()
	s := newTestServer(t, true)
	require.NoError(t, s.StartListening())
	t.Cleanup(func() {
		assert.NoError(t, s.ShutDown(true))
	})
	conn, err := ldap.DialURL(fmt.Sprintf("ldap://127.0.0.1:%d", s.ListenPort()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return s, conn
}

func searchDNs(t *testing.T, conn *ldap.Conn, base string, filter string, attrs ...string) []string {
	t.Helper()
	res, err := conn.Search(ldap.NewSearchRequest(base, ldap.ScopeWholeSubtree, ldap.NeverDerefAliases,
		0, 0, false, filter, attrs, nil))
	require.NoError(t, err)
	var out []string
	for _, e := range res.Entries {
		out = append(out, e.DN)
	}
	sort.Strings(out)
	return out
}

func TestNewDirectoryServerErrors(t *testing.T) {
	_, err := memldap.NewDirectoryServer(nil)
	assert.ErrorIs(t, err, memldap.ErrNoBaseDN)

	cfg, err := memldap.NewConfig("dc=example,dc=com")
	require.NoError(t, err)
	_, err = memldap.NewDirectoryServer(cfg)
	assert.ErrorIs(t, err, memldap.ErrNoListeners)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, cfg.SetListenerConfigs(memldap.NewLDAPListenerConfig("busy", port)))
	_, err = memldap.NewDirectoryServer(cfg)
	assert.ErrorIs(t, err, memldap.ErrPortUnavailable)
}

func TestListenerLifecycle(t *testing.T) {
	cfg, err := memldap.NewConfig("dc=example,dc=com")
	require.NoError(t, err)
	require.NoError(t, cfg.SetListenerConfigs(
		memldap.NewLDAPListenerConfig("LISTENER-0", 0),
		memldap.NewLDAPListenerConfig("LISTENER-1", 0),
	))
	cfg.Logger = zaptest.NewLogger(t)
	s, err := memldap.NewDirectoryServer(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"dc=example,dc=com"}, s.BaseDNs())

	assert.False(t, s.Listening())
	assert.Equal(t, -1, s.ListenPort())
	assert.NoError(t, s.ShutDown(true))

	require.NoError(t, s.StartListening())
	assert.True(t, s.Listening())
	assert.ErrorIs(t, s.StartListening(), memldap.ErrAlreadyListening)
	p0, p1 := s.ListenPortFor("LISTENER-0"), s.ListenPortFor("LISTENER-1")
	assert.Equal(t, p0, s.ListenPort())
	assert.Positive(t, p1)
	assert.NotEqual(t, p0, p1)
	assert.Equal(t, -1, s.ListenPortFor("LISTENER-2"))

	for _, port := range []int{p0, p1} {
		conn, err := ldap.DialURL(fmt.Sprintf("ldap://127.0.0.1:%d", port))
		require.NoError(t, err)
		assert.NoError(t, conn.UnauthenticatedBind(""))
		conn.Close()
	}

	require.NoError(t, s.ShutDown(true))
	assert.False(t, s.Listening())
	assert.Equal(t, -1, s.ListenPortFor("LISTENER-0"))
	_, err = net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", p0), time.Second)
	assert.Error(t, err)

	// The server can be started again.
	require.NoError(t, s.StartListening())
	assert.Positive(t, s.ListenPort())
	require.NoError(t, s.ShutDown(true))
}

func TestStartListeningIsAllOrNothing(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	cfg, err := memldap.NewConfig("dc=example,dc=com")
	require.NoError(t, err)
	require.NoError(t, cfg.SetListenerConfigs(
		memldap.NewLDAPListenerConfig("free", 0),
		memldap.NewLDAPListenerConfig("taken", port),
	))
	s, err := memldap.NewDirectoryServer(cfg)
	require.NoError(t, err)

	l, err = net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	defer l.Close()
	err = s.StartListening()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listener taken")
	assert.False(t, s.Listening())
}

func TestShutDownClosesConnections(t *testing.T) {
	s, conn := startTestServer(t)
	require.NoError(t, conn.Bind(alice, "alice-secret"))
	require.NoError(t, s.ShutDown(true))
	require.Eventually(t, conn.IsClosing, 5*time.Second, 10*time.Millisecond)
}

func TestShutDownKeepsConnections(t *testing.T) {
	s, conn := startTestServer(t)
	require.NoError(t, s.ShutDown(false))
	assert.Equal(t, []string{alice}, searchDNs(t, conn, "dc=example,dc=com", "(uid=alice)", "1.1"))
}

func TestBind(t *testing.T) {
	_, conn := startTestServer(t)
	assert.NoError(t, conn.Bind(alice, "alice-secret"))
	assert.NoError(t, conn.Bind("CN=Directory Manager", "password"))
	assert.NoError(t, conn.UnauthenticatedBind(""))

	tests := []struct {
		name, dn, password string
		code               uint16
	}{
		{"wrong password", alice, "wrong", ldap.LDAPResultInvalidCredentials},
		{"no password attribute", bob, "secret", ldap.LDAPResultInvalidCredentials},
		{"unknown entry", "uid=nobody,dc=example,dc=com", "secret", ldap.LDAPResultInvalidCredentials},
		{"wrong manager password", "cn=Directory Manager", "wrong", ldap.LDAPResultInvalidCredentials},
	}
	for _, tt := range tests {
		err := conn.Bind(tt.dn, tt.password)
		assert.True(t, ldap.IsErrorWithCode(err, tt.code), "%s: got %v", tt.name, err)
	}
	err := conn.UnauthenticatedBind(alice)
	assert.True(t, ldap.IsErrorWithCode(err, ldap.LDAPResultUnwillingToPerform), "got %v", err)
}

func TestSearchOverNetwork(t *testing.T) {
	_, conn := startTestServer(t)

	assert.Equal(t, []string{alice, bob}, searchDNs(t, conn, people, "(objectClass=inetOrgPerson)"))
	assert.Equal(t, []string{bob}, searchDNs(t, conn, "dc=example,dc=com", "(&(sn=B*)(!(employeeNumber<=10)))"))
	assert.Empty(t, searchDNs(t, conn, "dc=example,dc=com", "(cn=nobody)"))

	res, err := conn.Search(ldap.NewSearchRequest(bob, ldap.ScopeBaseObject, ldap.NeverDerefAliases,
		0, 0, false, "(objectClass=*)", []string{"cn", "entryUUID"}, nil))
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, "Bob Baker", res.Entries[0].GetAttributeValue("cn"))
	assert.Len(t, res.Entries[0].GetAttributeValue("entryUUID"), 36)
	assert.Empty(t, res.Entries[0].GetAttributeValue("sn"))

	res, err = conn.Search(ldap.NewSearchRequest(bob, ldap.ScopeBaseObject, ldap.NeverDerefAliases,
		0, 0, false, "(objectClass=*)", nil, nil))
	require.NoError(t, err)
	assert.Equal(t, "élève", res.Entries[0].GetAttributeValue("description"))
	assert.Empty(t, res.Entries[0].GetAttributeValue("entryUUID"))

	_, err = conn.Search(ldap.NewSearchRequest("ou=missing,dc=example,dc=com", ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases, 0, 0, false, "(objectClass=*)", nil, nil))
	assert.True(t, ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject), "got %v", err)
}

func TestSearchSizeLimit(t *testing.T) {
	_, conn := startTestServer(t)
	res, err := conn.Search(ldap.NewSearchRequest("dc=example,dc=com", ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases, 2, 0, false, "(objectClass=*)", []string{"1.1"}, nil))
	assert.True(t, ldap.IsErrorWithCode(err, ldap.LDAPResultSizeLimitExceeded), "got %v", err)
	require.NotNil(t, res)
	assert.Len(t, res.Entries, 2)
}

func TestRootDSE(t *testing.T) {
	_, conn := startTestServer(t)
	res, err := conn.Search(ldap.NewSearchRequest("", ldap.ScopeBaseObject, ldap.NeverDerefAliases,
		0, 0, false, "(objectClass=*)", []string{"namingContexts", "supportedLDAPVersion"}, nil))
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, []string{"dc=example,dc=com"}, res.Entries[0].GetAttributeValues("namingContexts"))
	assert.Equal(t, "3", res.Entries[0].GetAttributeValue("supportedLDAPVersion"))
}

func TestUpdatesOverNetwork(t *testing.T) {
	s, conn := startTestServer(t)

	add := ldap.NewAddRequest("uid=carol,ou=people,dc=example,dc=com", nil)
	add.Attribute("objectClass", []string{"inetOrgPerson"})
	add.Attribute("cn", []string{"Carol Cooper"})
	add.Attribute("sn", []string{"Cooper"})
	require.NoError(t, conn.Add(add))
	err := conn.Add(add)
	assert.True(t, ldap.IsErrorWithCode(err, ldap.LDAPResultEntryAlreadyExists), "got %v", err)

	mod := ldap.NewModifyRequest(alice, nil)
	mod.Replace("cn", []string{"Alice Abbott"})
	mod.Add("telephoneNumber", []string{"+1 555 0100"})
	require.NoError(t, conn.Modify(mod))
	e, err := s.GetEntry(alice)
	require.NoError(t, err)
	assert.Equal(t, "Alice Abbott", e.Value("cn"))
	assert.Equal(t, "+1 555 0100", e.Value("telephoneNumber"))

	ok, err := conn.Compare(alice, "cn", "alice abbott")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = conn.Compare(alice, "sn", "Baker")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, conn.ModifyDN(ldap.NewModifyDNRequest(people, "ou=staff", true, "")))
	assert.Equal(t, []string{
		"ou=staff,dc=example,dc=com",
		"uid=alice,ou=staff,dc=example,dc=com",
		"uid=bob,ou=staff,dc=example,dc=com",
		"uid=carol,ou=staff,dc=example,dc=com",
	}, searchDNs(t, conn, "ou=staff,dc=example,dc=com", "(objectClass=*)", "1.1"))

	err = conn.Del(ldap.NewDelRequest("ou=staff,dc=example,dc=com", nil))
	assert.True(t, ldap.IsErrorWithCode(err, ldap.LDAPResultNotAllowedOnNonLeaf), "got %v", err)
	require.NoError(t, conn.Del(ldap.NewDelRequest("uid=carol,ou=staff,dc=example,dc=com", nil)))
	assert.Equal(t, 6, s.EntryCount())
}
