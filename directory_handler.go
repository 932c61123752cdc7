package memldap

import (
	"errors"

	"go.uber.org/zap"
)

// Handler serving LDAP requests from a directory.
type directoryHandler struct {
	BaseHandler
	dir         *directory
	credentials map[string]string
	namingCtx   []string
}

func resultFor(err error) *Result {
	if err == nil {
		return &Result{ResultCode: ResultSuccess}
	}
	var re *ResultError
	if errors.As(err, &re) {
		return re.Result()
	}
	return LDAPResultOther.AsResult(err.Error())
}

func (h *directoryHandler) Bind(conn *Conn, msg *Message, req *BindRequest) {
	res := &BindResult{}
	if req.Version != 3 {
		res.ResultCode = LDAPResultProtocolError
		res.DiagnosticMessage = "the protocol version received is not supported"
		conn.SendResult(msg.MessageID, nil, TypeBindResponseOp, res)
		return
	}
	switch req.AuthType {
	case AuthenticationTypeSimple:
		password, _ := req.Credentials.(string)
		res.Result = *resultFor(h.checkSimpleBind(req.Name, password))
		if res.ResultCode == ResultSuccess {
			conn.Authentication = req.Name
		} else {
			conn.Authentication = nil
		}
	default:
		conn.Authentication = nil
		res.ResultCode = ResultAuthMethodNotSupported
		res.DiagnosticMessage = "only simple authentication is supported"
	}
	conn.SendResult(msg.MessageID, nil, TypeBindResponseOp, res)
}

func (h *directoryHandler) checkSimpleBind(name, password string) error {
	if name == "" && password == "" {
		return nil
	}
	if password == "" {
		return resultErrorf(LDAPResultUnwillingToPerform, "unauthenticated binds are not allowed")
	}
	key, err := NormalizeDN(name)
	if err != nil {
		return resultErrorf(LDAPResultInvalidDNSyntax, "%v", err)
	}
	if expected, ok := h.credentials[key]; ok {
		if expected == password {
			return nil
		}
		return ErrInvalidCredentials
	}
	e, err := h.dir.get(name)
	if err != nil {
		return err
	}
	if e != nil && e.HasAttribute("userPassword") {
		for _, v := range e.Values("userPassword") {
			if v == password {
				return nil
			}
		}
	}
	return ErrInvalidCredentials
}

func (h *directoryHandler) Add(conn *Conn, msg *Message, req *AddRequest) {
	err := h.dir.add(&Entry{DN: req.Entry, Attributes: req.Attributes})
	conn.SendResult(msg.MessageID, nil, TypeAddResponseOp, resultFor(err))
}

func (h *directoryHandler) Delete(conn *Conn, msg *Message, dn string) {
	err := h.dir.delete(dn)
	conn.SendResult(msg.MessageID, nil, TypeDeleteResponseOp, resultFor(err))
}

func (h *directoryHandler) Modify(conn *Conn, msg *Message, req *ModifyRequest) {
	err := h.dir.modify(req.Object, req.Changes)
	conn.SendResult(msg.MessageID, nil, TypeModifyResponseOp, resultFor(err))
}

func (h *directoryHandler) ModifyDN(conn *Conn, msg *Message, req *ModifyDNRequest) {
	err := h.dir.modifyDN(req)
	conn.SendResult(msg.MessageID, nil, TypeModifyDNResponseOp, resultFor(err))
}

func (h *directoryHandler) Compare(conn *Conn, msg *Message, req *CompareRequest) {
	match, err := h.dir.compare(req.Object, req.Attribute, req.Value)
	res := resultFor(err)
	if err == nil {
		res.ResultCode = LDAPResultCompareFalse
		if match {
			res.ResultCode = LDAPResultCompareTrue
		}
	}
	conn.SendResult(msg.MessageID, nil, TypeCompareResponseOp, res)
}

func (h *directoryHandler) Search(conn *Conn, msg *Message, req *SearchRequest) {
	log := conn.Logger().With(zap.String("base", req.BaseObject), zap.Stringer("filter", req.Filter))
	if req.BaseObject == "" && req.Scope == SearchScopeBaseObject {
		h.searchRootDSE(conn, msg, req)
		return
	}
	entries, err := h.dir.search(req.BaseObject, req.Scope, req.Filter, req.SizeLimit)
	for _, e := range entries {
		sel := e.Select(req.Attributes, req.TypesOnly)
		res := &SearchResultEntry{ObjectName: sel.DN, Attributes: sel.Attributes}
		if err := conn.SendResult(msg.MessageID, nil, TypeSearchResultEntryOp, res); err != nil {
			log.Debug("Error sending search result entry", zap.Error(err))
			return
		}
	}
	log.Debug("Search done", zap.Int("entries", len(entries)), zap.Error(err))
	conn.SendResult(msg.MessageID, nil, TypeSearchResultDoneOp, resultFor(err))
}

func (h *directoryHandler) searchRootDSE(conn *Conn, msg *Message, req *SearchRequest) {
	dse := NewEntry("", "objectClass", "top", "supportedLDAPVersion", "3")
	dse.AddValues("namingContexts", h.namingCtx...)
	dse.AddValues("supportedExtension", string(OIDStartTLS))
	if req.Filter == nil || req.Filter.Match(dse) {
		sel := dse.Select(req.Attributes, req.TypesOnly)
		conn.SendResult(msg.MessageID, nil, TypeSearchResultEntryOp, &SearchResultEntry{Attributes: sel.Attributes})
	}
	conn.SendResult(msg.MessageID, nil, TypeSearchResultDoneOp, &Result{ResultCode: ResultSuccess})
}
