package ldaptest_test

import (
	"path/filepath"
	"testing"

	"github.com/merlinz01/memldap/ldaptest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestLoadFile(t *testing.T) {
	b, err := ldaptest.LoadFile(filepath.Join("testdata", "fixture.yaml"))
	require.NoError(t, err)
	rule, err := b.Logger(zaptest.NewLogger(t)).Build()
	require.NoError(t, err)

	rule.Run(t, func(t testing.TB) {
		assert.Greater(t, rule.Server().ListenPortFor(ldaptest.ListenerName(1)), 0)
		assert.Equal(t, 6, rule.Server().EntryCount())
		e, err := rule.Server().GetEntry("cn=admins,ou=groups,dc=example,dc=com")
		require.NoError(t, err)
		require.NotNil(t, e)
		assert.Equal(t, []string{alice}, e.Values("member"))
	})
}

func TestLoadFileErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
		target  error
	}{
		{"syntax", "baseDNs: [", ldaptest.ErrConfiguration},
		{"no base DN", "listen: [0]\n", ldaptest.ErrConfiguration},
		{"bad port", "baseDNs: [dc=example,dc=com]\nlisten: [70000]\n", ldaptest.ErrConfiguration},
		{"missing resource", "baseDNs: [dc=example,dc=com]\nresources: [nope.ldif]\n", ldaptest.ErrResourceNotFound},
		{"bad bind DN", "baseDNs: [dc=example,dc=com]\nbindCredentials:\n  - dn: nonsense\n    password: x\n", ldaptest.ErrConfiguration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, "fixture.yaml")
			writeFile(t, path, tt.content)
			_, err := ldaptest.LoadFile(path)
			assert.ErrorIs(t, err, tt.target)
		})
	}

	_, err := ldaptest.LoadFile(filepath.Join(dir, "absent.yaml"))
	assert.Error(t, err)
}

func TestFileRelativePaths(t *testing.T) {
	f := &ldaptest.File{
		BaseDNs: []string{"dc=example,dc=com"},
		Listen:  []int{0},
		LDIF:    []string{"people.ldif", filepath.Join(t.TempDir(), "absent.ldif")},
	}
	b, err := f.Builder("testdata")
	require.NoError(t, err)
	rule := b.MustBuild()
	err = rule.Evaluate(t.Name(), func() error { return nil })
	// people.ldif resolved against testdata, the absolute path was kept as is
	require.ErrorIs(t, err, ldaptest.ErrSeed)
	assert.Contains(t, err.Error(), "absent.ldif")
	assert.Equal(t, 4, rule.Server().EntryCount())
}
