package memldap

// Decoders for the request operations a client may send.
// Each takes the content octets of the protocolOp element.

type AuthenticationType uint8

// AuthenticationChoice tags; 1 and 2 are reserved
const (
	AuthenticationTypeSimple AuthenticationType = 0
	AuthenticationTypeSASL   AuthenticationType = 3
)

type SASLCredentials struct {
	Mechanism   string
	Credentials string
}

//	BindRequest ::= [APPLICATION 0] SEQUENCE {
//		version         INTEGER (1 ..  127),
//		name            LDAPDN,
//		authentication  AuthenticationChoice }
type BindRequest struct {
	Version  uint8
	Name     string
	AuthType AuthenticationType
	// The password for simple binds, a *SASLCredentials for SASL
	// binds and nil for other choices
	Credentials any
}

func GetBindRequest(data []byte) (*BindRequest, error) {
	seq := decodeSequence("BindRequest", data).length(3, 3)
	req := &BindRequest{
		Version: uint8(seq.integer(0, "version", 1, 127)),
		Name:    seq.octetString(1, "name"),
	}
	auth := seq.raw(2, "authentication")
	if err := seq.Err(); err != nil {
		return nil, err
	}
	if auth.Type.Class() != BerClassContextSpecific {
		return nil, ErrWrongElementType.WithInfo("BindRequest authentication type", auth.Type)
	}
	req.AuthType = AuthenticationType(auth.Type.TagNumber())
	switch req.AuthType {
	case AuthenticationTypeSimple:
		req.Credentials = string(auth.Data)
	case AuthenticationTypeSASL:
		sasl := decodeSequence("SaslCredentials", auth.Data).length(1, 2)
		creds := &SASLCredentials{Mechanism: sasl.octetString(0, "mechanism")}
		if sasl.Len() == 2 {
			creds.Credentials = sasl.octetString(1, "credentials")
		}
		if err := sasl.Err(); err != nil {
			return nil, err
		}
		req.Credentials = creds
	}
	return req, nil
}

type SearchScope uint8

const (
	SearchScopeBaseObject   SearchScope = 0
	SearchScopeSingleLevel  SearchScope = 1
	SearchScopeWholeSubtree SearchScope = 2
	// From draft-sermersheim-ldap-subordinate-scope
	SearchScopeSubordinateSubtree SearchScope = 3
)

type AliasDerefType uint8

const (
	AliasDerefNever          AliasDerefType = 0
	AliasDerefInSearching    AliasDerefType = 1
	AliasDerefFindingBaseObj AliasDerefType = 2
	AliasDerefAlways         AliasDerefType = 3
)

//	SearchRequest ::= [APPLICATION 3] SEQUENCE {
//		baseObject      LDAPDN,
//		scope           ENUMERATED,
//		derefAliases    ENUMERATED,
//		sizeLimit       INTEGER (0 ..  maxInt),
//		timeLimit       INTEGER (0 ..  maxInt),
//		typesOnly       BOOLEAN,
//		filter          Filter,
//		attributes      AttributeSelection }
type SearchRequest struct {
	BaseObject   string
	Scope        SearchScope
	DerefAliases AliasDerefType
	SizeLimit    uint32
	TimeLimit    uint32
	TypesOnly    bool
	Filter       *Filter
	Attributes   []string
}

func GetSearchRequest(data []byte) (*SearchRequest, error) {
	seq := decodeSequence("SearchRequest", data).length(8, 8)
	req := &SearchRequest{
		BaseObject:   seq.octetString(0, "baseObject"),
		Scope:        SearchScope(seq.enumerated(1, "scope", 0, 255)),
		DerefAliases: AliasDerefType(seq.enumerated(2, "derefAliases", 0, 3)),
		SizeLimit:    uint32(seq.integer(3, "sizeLimit", 0, maxInt)),
		TimeLimit:    uint32(seq.integer(4, "timeLimit", 0, maxInt)),
		TypesOnly:    seq.boolean(5, BerTypeBoolean, "typesOnly"),
	}
	filter := seq.raw(6, "filter")
	req.Attributes = seq.strings(7, BerTypeSequence, "attributes")
	if err := seq.Err(); err != nil {
		return nil, err
	}
	var err error
	if req.Filter, err = GetFilter(filter); err != nil {
		return nil, err
	}
	return req, nil
}

type ModifyOperation uint8

const (
	ModifyAdd     ModifyOperation = 0
	ModifyDelete  ModifyOperation = 1
	ModifyReplace ModifyOperation = 2
)

// One change of a ModifyRequest; the modification may have no values
type ModifyChange struct {
	Operation    ModifyOperation
	Modification Attribute
}

//	ModifyRequest ::= [APPLICATION 6] SEQUENCE {
//		object   LDAPDN,
//		changes  SEQUENCE OF change SEQUENCE {
//			operation     ENUMERATED,
//			modification  PartialAttribute } }
type ModifyRequest struct {
	Object  string
	Changes []ModifyChange
}

func GetModifyRequest(data []byte) (*ModifyRequest, error) {
	seq := decodeSequence("ModifyRequest", data).length(2, 2)
	req := &ModifyRequest{Object: seq.octetString(0, "object")}
	changes := seq.sequence(1, BerTypeSequence, "changes")
	for i := 0; i < changes.Len() && seq.ok(); i++ {
		change := changes.sequence(i, BerTypeSequence, "change").length(2, 2)
		req.Changes = append(req.Changes, ModifyChange{
			Operation:    ModifyOperation(change.enumerated(0, "operation", 0, 255)),
			Modification: change.attribute(1, "modification"),
		})
	}
	if err := seq.Err(); err != nil {
		return nil, err
	}
	return req, nil
}

//	AddRequest ::= [APPLICATION 8] SEQUENCE {
//		entry           LDAPDN,
//		attributes      SEQUENCE OF attribute Attribute }
type AddRequest struct {
	Entry      string
	Attributes []Attribute
}

func GetAddRequest(data []byte) (*AddRequest, error) {
	seq := decodeSequence("AddRequest", data).length(2, 2)
	req := &AddRequest{Entry: seq.octetString(0, "entry")}
	attrs := seq.sequence(1, BerTypeSequence, "attributes")
	for i := 0; i < attrs.Len() && seq.ok(); i++ {
		req.Attributes = append(req.Attributes, attrs.attribute(i, "attribute"))
	}
	if err := seq.Err(); err != nil {
		return nil, err
	}
	return req, nil
}

// DelRequest ::= [APPLICATION 10] LDAPDN
func GetDeleteRequest(data []byte) (string, error) {
	return string(data), nil
}

var newSuperiorType = BerContextSpecificType(0, false)

//	ModifyDNRequest ::= [APPLICATION 12] SEQUENCE {
//		entry        LDAPDN,
//		newrdn       RelativeLDAPDN,
//		deleteoldrdn BOOLEAN,
//		newSuperior  [0] LDAPDN OPTIONAL }
type ModifyDNRequest struct {
	Object       string
	NewRDN       string
	DeleteOldRDN bool
	NewSuperior  string
}

func GetModifyDNRequest(data []byte) (*ModifyDNRequest, error) {
	seq := decodeSequence("ModifyDNRequest", data).length(3, 4)
	req := &ModifyDNRequest{
		Object:       seq.octetString(0, "entry"),
		NewRDN:       seq.octetString(1, "newrdn"),
		DeleteOldRDN: seq.boolean(2, BerTypeBoolean, "deleteoldrdn"),
	}
	if seq.Len() == 4 {
		req.NewSuperior = seq.tagged(3, newSuperiorType, "newSuperior")
	}
	if err := seq.Err(); err != nil {
		return nil, err
	}
	return req, nil
}

//	CompareRequest ::= [APPLICATION 14] SEQUENCE {
//		entry   LDAPDN,
//		ava     AttributeValueAssertion }
type CompareRequest struct {
	Object    string
	Attribute string
	Value     string
}

func GetCompareRequest(data []byte) (*CompareRequest, error) {
	seq := decodeSequence("CompareRequest", data).length(2, 2)
	req := &CompareRequest{Object: seq.octetString(0, "entry")}
	ava := seq.sequence(1, BerTypeSequence, "ava").length(2, 2)
	req.Attribute = ava.octetString(0, "attributeDesc")
	req.Value = ava.octetString(1, "assertionValue")
	if err := seq.Err(); err != nil {
		return nil, err
	}
	return req, nil
}

// AbandonRequest ::= [APPLICATION 16] MessageID
func GetAbandonRequest(data []byte) (MessageID, error) {
	id, err := BerGetInteger(data)
	if err != nil {
		return 0, err
	}
	if id < 0 || id > maxInt {
		return 0, ErrIntegerOutOfRange.WithInfo("AbandonRequest messageID", id)
	}
	return MessageID(id), nil
}

var (
	requestNameType  = BerContextSpecificType(0, false)
	requestValueType = BerContextSpecificType(1, false)
)

//	ExtendedRequest ::= [APPLICATION 23] SEQUENCE {
//		requestName      [0] LDAPOID,
//		requestValue     [1] OCTET STRING OPTIONAL }
type ExtendedRequest struct {
	Name  OID
	Value string
}

func GetExtendedRequest(data []byte) (*ExtendedRequest, error) {
	seq := decodeSequence("ExtendedRequest", data).length(1, 2)
	req := &ExtendedRequest{Name: OID(seq.tagged(0, requestNameType, "requestName"))}
	if seq.Len() == 2 {
		req.Value = seq.tagged(1, requestValueType, "requestValue")
	}
	if err := seq.Err(); err != nil {
		return nil, err
	}
	if err := req.Name.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}
