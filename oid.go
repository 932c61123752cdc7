package memldap

import "strings"

// Dotted-decimal object identifier (numericoid of RFC 4512)
type OID string

const (
	OIDNoAttribute           OID = "1.1"
	OIDNoticeOfDisconnection OID = "1.3.6.1.4.1.1466.20036"
	OIDStartTLS              OID = "1.3.6.1.4.1.1466.20037"
)

// Returns ErrInvalidOID unless oid is one or more dot-separated numbers.
func (oid OID) Validate() error {
	for _, arc := range strings.Split(string(oid), ".") {
		if arc == "" || strings.Trim(arc, "0123456789") != "" {
			return ErrInvalidOID.WithInfo("oid", oid)
		}
	}
	return nil
}
