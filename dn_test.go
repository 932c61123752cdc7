package memldap_test

import (
	"testing"

	"github.com/merlinz01/memldap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParseDN(t *testing.T, s string) memldap.DN {
	t.Helper()
	dn, err := memldap.ParseDN(s)
	require.NoError(t, err, s)
	return dn
}

func TestEncodeDN(t *testing.T) {
	tests := []struct {
		dnStr string
		dn    memldap.DN
	}{
		{"uid=jdoe,ou=users,dc=example,dc=com",
			memldap.DN{{{"dc", "com"}}, {{"dc", "example"}}, {{"ou", "users"}}, {{"uid", "jdoe"}}}},
		{"CN=J.  Smith+OU=Sales,DC=example,DC=net",
			memldap.DN{{{"DC", "net"}}, {{"DC", "example"}}, {{"CN", "J.  Smith"}, {"OU", "Sales"}}}},
		{"CN=James \\\"Jim\\\" Smith,DC=example,DC=net",
			memldap.DN{{{"DC", "net"}}, {{"DC", "example"}}, {{"CN", "James \"Jim\" Smith"}}}},
		{"CN=Before\\0DAfter,DC=example,DC=net",
			memldap.DN{{{"DC", "net"}}, {{"DC", "example"}}, {{"CN", "Before\rAfter"}}}},
		{"1.3.6.1.4.1.1466.0=#04024869",
			memldap.DN{{{"1.3.6.1.4.1.1466.0", "\x48\x69"}}}},
		{"uid=jdoe,ou=C\\+\\+ Developers,dc=example,dc=com",
			memldap.DN{{{"dc", "com"}}, {{"dc", "example"}}, {{"ou", "C++ Developers"}}, {{"uid", "jdoe"}}}},
		{"cn=John Doe\\, Jr.,ou=Developers,dc=example,dc=com",
			memldap.DN{{{"dc", "com"}}, {{"dc", "example"}}, {{"ou", "Developers"}}, {{"cn", "John Doe, Jr."}}}},
		{"cn=\\ padded\\ ,dc=com",
			memldap.DN{{{"dc", "com"}}, {{"cn", " padded "}}}},
	}
	for _, tt := range tests {
		dn := mustParseDN(t, tt.dnStr)
		assert.True(t, dn.Equal(tt.dn), "parsed %s, want %s", dn, tt.dn)
		assert.Equal(t, tt.dnStr, dn.String())
	}
}

func TestParseDNTrimsSpaces(t *testing.T) {
	dn := mustParseDN(t, " uid = jdoe , ou=users ,dc=example")
	assert.Equal(t, "uid=jdoe,ou=users,dc=example", dn.String())
}

func TestParseDNRejectsMalformed(t *testing.T) {
	for _, s := range []string{
		"example",
		"dc=example,com",
		"=value,dc=com",
		"dc=example,,dc=com",
		"cn=a+,dc=com",
		"1.3.6.1.4.1.1466.0=#0402486",
		"1.3.6.1.4.1.1466.0=#zz",
		`cn=a\zz,dc=com`,
		`cn=a\`,
	} {
		_, err := memldap.ParseDN(s)
		assert.Error(t, err, s)
	}
	_, err := memldap.ParseDN("example")
	assert.ErrorIs(t, err, memldap.ErrInvalidDN)
}

func TestNormalizeDN(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"DC=Example,DC=COM", "dc=example,dc=com"},
		{"uid=JDoe, ou=Users , dc=example,dc=com", "uid=jdoe,ou=users,dc=example,dc=com"},
		{"SN=Doe+CN=John,dc=com", "cn=john+sn=doe,dc=com"},
	}
	for _, tt := range tests {
		got, err := memldap.NormalizeDN(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestDNNavigation(t *testing.T) {
	dn := mustParseDN(t, "uid=jdoe,ou=users,dc=example,dc=com")
	assert.Equal(t, "ou=users,dc=example,dc=com", dn.Parent().String())
	assert.Equal(t, "uid=jdoe", dn.RDN().String())
	assert.Nil(t, mustParseDN(t, "dc=com").Parent())
	assert.Nil(t, memldap.DN{}.RDN())
}

func TestDNRelations(t *testing.T) {
	tests := []struct {
		a, b                                             string
		parent, child, superior, subordinate, descendant bool
	}{
		{"ou=users,dc=example,dc=com", "uid=jdoe,ou=users,dc=example,dc=com", true, false, true, false, false},
		{"uid=jdoe,ou=users,dc=example,dc=com", "ou=users,dc=example,dc=com", false, true, false, true, true},
		{"dc=com", "uid=jdoe,ou=users,dc=example,dc=com", false, false, true, false, false},
		{"", "dc=com", true, false, true, false, false},
		{"dc=com", "", false, true, false, true, true},
		{"", "", false, false, false, false, true},
		{"uid=jdoe,ou=users,dc=example,dc=com", "uid=jdoe,ou=users,dc=example,dc=com", false, false, false, false, true},
		{"ou=users,dc=example,dc=com", "uid=jdoe,ou=users,dc=example,dc=org", false, false, false, false, false},
	}
	for _, tt := range tests {
		a, b := mustParseDN(t, tt.a), mustParseDN(t, tt.b)
		assert.Equal(t, tt.parent, a.IsParent(b), "%q parent of %q", tt.a, tt.b)
		assert.Equal(t, tt.child, a.IsChild(b), "%q child of %q", tt.a, tt.b)
		assert.Equal(t, tt.superior, a.IsSuperior(b), "%q superior of %q", tt.a, tt.b)
		assert.Equal(t, tt.subordinate, a.IsSubordinate(b), "%q subordinate of %q", tt.a, tt.b)
		assert.Equal(t, tt.descendant, a.IsDescendantOrSelf(b), "%q descendant of %q", tt.a, tt.b)
	}
}

func TestDNSiblingsAndAncestors(t *testing.T) {
	tests := []struct {
		a, b    string
		sibling bool
		common  string
	}{
		{"uid=jdoe,ou=users,dc=example,dc=com", "ou=users,dc=example,dc=com", false, "ou=users,dc=example,dc=com"},
		{"ou=printers,dc=example,dc=com", "ou=users,dc=example,dc=com", true, "dc=example,dc=com"},
		{"ou=users,dc=example,dc=com", "ou=users,dc=example,dc=org", false, ""},
		{"dc=com", "dc=org", true, ""},
		{"", "", true, ""},
	}
	for _, tt := range tests {
		a, b := mustParseDN(t, tt.a), mustParseDN(t, tt.b)
		assert.Equal(t, tt.sibling, a.IsSibling(b), "%q sibling of %q", tt.a, tt.b)
		assert.Equal(t, tt.common, a.CommonAncestor(b).String(), "common ancestor of %q and %q", tt.a, tt.b)
	}
}
