package memldap

import "fmt"

// Error of the protocol codec or the server configuration.
// Errors compare equal under errors.Is when their messages match, so the
// Err* values below can be used as targets even after WithInfo.
type LDAPError struct {
	message  string
	infoKey  string
	infoData string
}

func (e *LDAPError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.infoKey == "" {
		return e.message
	}
	return fmt.Sprintf("%s: %s = %s", e.message, e.infoKey, e.infoData)
}

func (e *LDAPError) Is(other error) bool {
	le, ok := other.(*LDAPError)
	return ok && le.message == e.message
}

// Returns a copy of e carrying key = value as detail
func (e *LDAPError) WithInfo(key string, value any) *LDAPError {
	return &LDAPError{message: e.message, infoKey: key, infoData: fmt.Sprint(value)}
}

// Codec errors
var (
	ErrIntegerOutOfRange   = &LDAPError{message: "integer out of range"}
	ErrIntegerTooLarge     = &LDAPError{message: "integer too large"}
	ErrInvalidBoolean      = &LDAPError{message: "invalid boolean data"}
	ErrInvalidDN           = &LDAPError{message: "invalid DN"}
	ErrInvalidOID          = &LDAPError{message: "invalid OID"}
	ErrUnexpectedTLS       = &LDAPError{message: "TLS handshake on a plain LDAP connection"}
	ErrWrongElementType    = &LDAPError{message: "wrong element type"}
	ErrWrongSequenceLength = &LDAPError{message: "wrong sequence length"}
)

// Connection errors
var (
	ErrTLSAlreadySetUp = &LDAPError{message: "TLS already set up"}
	ErrTLSNotAvailable = &LDAPError{message: "TLS not available"}
)

// Configuration and lifecycle errors of the directory server
var (
	ErrNoBaseDN          = &LDAPError{message: "at least one base DN is required"}
	ErrInvalidPort       = &LDAPError{message: "invalid port"}
	ErrDuplicatePort     = &LDAPError{message: "port already configured"}
	ErrDuplicateListener = &LDAPError{message: "listener name already configured"}
	ErrNoListeners       = &LDAPError{message: "no listeners configured"}
	ErrPortUnavailable   = &LDAPError{message: "port unavailable"}
	ErrAlreadyListening  = &LDAPError{message: "server is already listening"}
	ErrNilListener       = &LDAPError{message: "nil listener"}
	ErrInvalidLDIF       = &LDAPError{message: "invalid LDIF"}
)

// ResultError is returned by directory operations.
// errors.Is matches on the result code only, so the predefined
// ErrNoSuchObject etc. can be used as targets.
type ResultError struct {
	Code              LDAPResultCode
	MatchedDN         string
	DiagnosticMessage string
}

func (e *ResultError) Error() string {
	if e.DiagnosticMessage == "" {
		return e.Code.String()
	}
	return e.Code.String() + ": " + e.DiagnosticMessage
}

func (e *ResultError) Is(other error) bool {
	re, ok := other.(*ResultError)
	return ok && re.Code == e.Code
}

// Returns the LDAPResult to send for this error
func (e *ResultError) Result() *Result {
	return &Result{
		ResultCode:        e.Code,
		MatchedDN:         e.MatchedDN,
		DiagnosticMessage: e.DiagnosticMessage,
	}
}

func resultErrorf(code LDAPResultCode, format string, args ...any) *ResultError {
	return &ResultError{Code: code, DiagnosticMessage: fmt.Sprintf(format, args...)}
}

var ErrNoSuchObject = &ResultError{Code: LDAPResultNoSuchObject}
var ErrEntryAlreadyExists = &ResultError{Code: LDAPResultEntryAlreadyExists}
var ErrNotAllowedOnNonLeaf = &ResultError{Code: LDAPResultNotAllowedOnNonLeaf}
var ErrNotAllowedOnRDN = &ResultError{Code: LDAPResultNotAllowedOnRDN}
var ErrNoSuchAttribute = &ResultError{Code: LDAPResultNoSuchAttribute}
var ErrAttributeOrValueExists = &ResultError{Code: LDAPResultAttributeOrValueExists}
var ErrInvalidDNSyntax = &ResultError{Code: LDAPResultInvalidDNSyntax}
var ErrUnwillingToPerform = &ResultError{Code: LDAPResultUnwillingToPerform}
var ErrInvalidCredentials = &ResultError{Code: LDAPResultInvalidCredentials}
