package memldap

import "fmt"

// LDAP result code
type LDAPResultCode uint32

// Defined result codes
const (
	ResultSuccess                  LDAPResultCode = 0
	LDAPResultOperationsError      LDAPResultCode = 1
	LDAPResultProtocolError        LDAPResultCode = 2
	LDAPResultTimeLimitExceeded    LDAPResultCode = 3
	LDAPResultSizeLimitExceeded    LDAPResultCode = 4
	LDAPResultCompareFalse         LDAPResultCode = 5
	LDAPResultCompareTrue          LDAPResultCode = 6
	ResultAuthMethodNotSupported   LDAPResultCode = 7
	LDAPResultStrongerAuthRequired LDAPResultCode = 8
	// 9 reserved
	LDAPResultReferral                     LDAPResultCode = 10
	LDAPResultAdminLimitExceeded           LDAPResultCode = 11
	LDAPResultUnavailableCriticalExtension LDAPResultCode = 12
	LDAPResultConfidentialityRequired      LDAPResultCode = 13
	LDAPResultSaslBindInProgress           LDAPResultCode = 14
	// 15 ???
	LDAPResultNoSuchAttribute        LDAPResultCode = 16
	LDAPResultUndefinedAttributeType LDAPResultCode = 17
	LDAPResultInappropriateMatching  LDAPResultCode = 18
	LDAPResultConstraintViolation    LDAPResultCode = 19
	LDAPResultAttributeOrValueExists LDAPResultCode = 20
	LDAPResultInvalidAttributeSyntax LDAPResultCode = 21
	// 22-31 unused
	LDAPResultNoSuchObject    LDAPResultCode = 32
	LDAPResultAliasProblem    LDAPResultCode = 33
	LDAPResultInvalidDNSyntax LDAPResultCode = 34
	// 35 reserved
	LDAPResultAliasDereferencingProblem LDAPResultCode = 36
	// 37-47 unused
	LDAPResultInappropriateAuthentication LDAPResultCode = 48
	LDAPResultInvalidCredentials          LDAPResultCode = 49
	LDAPResultInsufficientAccessRights    LDAPResultCode = 50
	LDAPResultBusy                        LDAPResultCode = 51
	LDAPResultUnavailable                 LDAPResultCode = 52
	LDAPResultUnwillingToPerform          LDAPResultCode = 53
	LDAPResultLoopDetect                  LDAPResultCode = 54
	// 55-63 unused
	LDAPResultNamingViolation           LDAPResultCode = 64
	LDAPResultObjectClassViolation      LDAPResultCode = 65
	LDAPResultNotAllowedOnNonLeaf       LDAPResultCode = 66
	LDAPResultNotAllowedOnRDN           LDAPResultCode = 67
	LDAPResultEntryAlreadyExists        LDAPResultCode = 68
	LDAPResultObjectClassModsProhibited LDAPResultCode = 69
	// 70 reserved
	LDAPResultAffectsMultipleDSAs LDAPResultCode = 71
	// 72-79 unused
	LDAPResultOther LDAPResultCode = 80
	// extensible, more codes possible
)

// LDAPResult, the body of most responses
type Result struct {
	ResultCode        LDAPResultCode
	MatchedDN         string
	DiagnosticMessage string
	Referral          []string
}

var referralType = BerContextSpecificType(3, true)

//	LDAPResult ::= SEQUENCE {
//		resultCode         ENUMERATED,
//		matchedDN          LDAPDN,
//		diagnosticMessage  LDAPString,
//		referral           [3] Referral OPTIONAL }
func GetResult(data []byte) (*Result, error) {
	seq := decodeSequence("LDAPResult", data).length(3, 4)
	res := &Result{
		ResultCode:        LDAPResultCode(seq.enumerated(0, "resultCode", 0, maxInt)),
		MatchedDN:         seq.octetString(1, "matchedDN"),
		DiagnosticMessage: seq.octetString(2, "diagnosticMessage"),
	}
	if seq.Len() == 4 {
		res.Referral = seq.strings(3, referralType, "referral")
	}
	if err := seq.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// Returns the encoded result without its SEQUENCE header.
func (r *Result) Encode() []byte {
	var b berBuilder
	r.appendTo(&b)
	return b.bytes()
}

func (r *Result) appendTo(b *berBuilder) {
	b.enumerated(int64(r.ResultCode))
	b.str(r.MatchedDN)
	b.str(r.DiagnosticMessage)
	if len(r.Referral) > 0 {
		var refs berBuilder
		for _, ref := range r.Referral {
			refs.str(ref)
		}
		b.add(referralType, refs.bytes())
	}
}

// BindResponse, an LDAPResult with optional SASL credentials [7]
type BindResult struct {
	Result
	ServerSASLCredentials string
}

func (r *BindResult) Encode() []byte {
	var b berBuilder
	r.Result.appendTo(&b)
	if r.ServerSASLCredentials != "" {
		b.tagged(BerContextSpecificType(7, false), r.ServerSASLCredentials)
	}
	return b.bytes()
}

// ExtendedResponse, an LDAPResult with an optional responseName [10]
// and responseValue [11]
type ExtendedResult struct {
	Result
	ResponseName  OID
	ResponseValue string
}

func (r *ExtendedResult) Encode() []byte {
	var b berBuilder
	r.Result.appendTo(&b)
	if r.ResponseName != "" {
		b.tagged(BerContextSpecificType(10, false), string(r.ResponseName))
	}
	if r.ResponseValue != "" {
		b.tagged(BerContextSpecificType(11, false), r.ResponseValue)
	}
	return b.bytes()
}

//	SearchResultEntry ::= [APPLICATION 4] SEQUENCE {
//		objectName      LDAPDN,
//		attributes      PartialAttributeList }
type SearchResultEntry struct {
	ObjectName string
	Attributes []Attribute
}

func (s *SearchResultEntry) Encode() []byte {
	var attrs berBuilder
	for i := range s.Attributes {
		attrs.add(BerTypeSequence, s.Attributes[i].Encode())
	}
	var b berBuilder
	b.str(s.ObjectName)
	b.add(BerTypeSequence, attrs.bytes())
	return b.bytes()
}

var resultCodeNames = map[LDAPResultCode]string{
	ResultSuccess:                          "success",
	LDAPResultOperationsError:              "operationsError",
	LDAPResultProtocolError:                "protocolError",
	LDAPResultTimeLimitExceeded:            "timeLimitExceeded",
	LDAPResultSizeLimitExceeded:            "sizeLimitExceeded",
	LDAPResultCompareFalse:                 "compareFalse",
	LDAPResultCompareTrue:                  "compareTrue",
	ResultAuthMethodNotSupported:           "authMethodNotSupported",
	LDAPResultStrongerAuthRequired:         "strongerAuthRequired",
	LDAPResultReferral:                     "referral",
	LDAPResultAdminLimitExceeded:           "adminLimitExceeded",
	LDAPResultUnavailableCriticalExtension: "unavailableCriticalExtension",
	LDAPResultConfidentialityRequired:      "confidentialityRequired",
	LDAPResultSaslBindInProgress:           "saslBindInProgress",
	LDAPResultNoSuchAttribute:              "noSuchAttribute",
	LDAPResultUndefinedAttributeType:       "undefinedAttributeType",
	LDAPResultInappropriateMatching:        "inappropriateMatching",
	LDAPResultConstraintViolation:          "constraintViolation",
	LDAPResultAttributeOrValueExists:       "attributeOrValueExists",
	LDAPResultInvalidAttributeSyntax:       "invalidAttributeSyntax",
	LDAPResultNoSuchObject:                 "noSuchObject",
	LDAPResultAliasProblem:                 "aliasProblem",
	LDAPResultInvalidDNSyntax:              "invalidDNSyntax",
	LDAPResultAliasDereferencingProblem:    "aliasDereferencingProblem",
	LDAPResultInappropriateAuthentication:  "inappropriateAuthentication",
	LDAPResultInvalidCredentials:           "invalidCredentials",
	LDAPResultInsufficientAccessRights:     "insufficientAccessRights",
	LDAPResultBusy:                         "busy",
	LDAPResultUnavailable:                  "unavailable",
	LDAPResultUnwillingToPerform:           "unwillingToPerform",
	LDAPResultLoopDetect:                   "loopDetect",
	LDAPResultNamingViolation:              "namingViolation",
	LDAPResultObjectClassViolation:         "objectClassViolation",
	LDAPResultNotAllowedOnNonLeaf:          "notAllowedOnNonLeaf",
	LDAPResultNotAllowedOnRDN:              "notAllowedOnRDN",
	LDAPResultEntryAlreadyExists:           "entryAlreadyExists",
	LDAPResultObjectClassModsProhibited:    "objectClassModsProhibited",
	LDAPResultAffectsMultipleDSAs:          "affectsMultipleDSAs",
	LDAPResultOther:                        "other",
}

// Returns the RFC 4511 name of the result code
func (r LDAPResultCode) String() string {
	if name, ok := resultCodeNames[r]; ok {
		return name
	}
	return fmt.Sprintf("resultCode(%d)", uint32(r))
}

// Returns a result with code r and the given diagnostic message
func (r LDAPResultCode) AsResult(diagnosticMessage string) *Result {
	return &Result{ResultCode: r, DiagnosticMessage: diagnosticMessage}
}

// Sent for requests that cannot be decoded
var ProtocolError = &Result{
	ResultCode:        LDAPResultProtocolError,
	DiagnosticMessage: "the server could not understand the request",
}

// Sent by BaseHandler for operations it does not implement
var UnsupportedOperation = &Result{
	ResultCode:        LDAPResultUnwillingToPerform,
	DiagnosticMessage: "the operation requested is not supported by the server",
}
