package ldaptest_test

import (
	"fmt"

	"github.com/go-ldap/ldap/v3"
	"github.com/merlinz01/memldap/ldaptest"
)

func ExampleRule_Evaluate() {
	rule := ldaptest.NewBuilder("dc=example,dc=com").
		Listen(0).
		Resource("people.ldif").
		MustBuild()

	err := rule.Evaluate("example", func() error {
		conn, err := ldap.DialURL(rule.URL())
		if err != nil {
			return err
		}
		defer conn.Close()
		if err := conn.Bind("uid=alice,ou=people,dc=example,dc=com", "alice-secret"); err != nil {
			return err
		}
		res, err := conn.Search(ldap.NewSearchRequest(
			"dc=example,dc=com", ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
			"(sn=B*)", []string{"cn"}, nil))
		if err != nil {
			return err
		}
		for _, e := range res.Entries {
			fmt.Println(e.DN, e.GetAttributeValue("cn"))
		}
		return nil
	})
	fmt.Println(err, rule.Server().EntryCount())
	// Output:
	// uid=bob,ou=people,dc=example,dc=com Bob Baker
	// <nil> 0
}
