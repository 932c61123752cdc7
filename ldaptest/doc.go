// Package ldaptest runs an in-memory LDAP directory around a test.
//
// A Builder collects base DNs, listener ports and LDIF seed files and
// builds a Rule. For every test the Rule imports the seed files (the first
// one replacing the directory contents, the others adding to them), starts
// the listeners, runs the test and then stops the server, closing client
// connections, and removes all entries, even if the test failed or panicked.
//
//	rule := ldaptest.NewBuilder("dc=example,dc=com").
//		Listen(0).
//		Resource("people.ldif").
//		MustBuild()
//
//	func TestLookup(t *testing.T) {
//		rule.Run(t, func(t testing.TB) {
//			conn, err := ldap.DialURL(rule.URL())
//			...
//		})
//	}
//
// A Rule drives one test at a time; tests sharing a Rule must not run in parallel.
package ldaptest
