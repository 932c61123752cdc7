package memldap

import (
	"errors"

	"go.uber.org/zap"
)

// Serves the decoded requests of an LDAPServer.
// Implementations usually embed BaseHandler and override what they support.
type Handler interface {
	Abandon(*Conn, *Message, MessageID)
	Add(*Conn, *Message, *AddRequest)
	Bind(*Conn, *Message, *BindRequest)
	Compare(*Conn, *Message, *CompareRequest)
	Delete(*Conn, *Message, string)
	Extended(*Conn, *Message, *ExtendedRequest)
	Modify(*Conn, *Message, *ModifyRequest)
	ModifyDN(*Conn, *Message, *ModifyDNRequest)
	Search(*Conn, *Message, *SearchRequest)
	// Called for protocol operations the server does not know
	Other(*Conn, *Message)
}

// Handler that answers UnsupportedOperation to everything except
// StartTLS, and ignores abandons.
type BaseHandler struct {
	// nil disables logging
	Logger *zap.Logger
}

func (h *BaseHandler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

func (h *BaseHandler) unsupported(conn *Conn, msg *Message, rtype BerType) {
	h.logger().Debug("Unsupported operation", zap.Stringer("type", msg.ProtocolOp.Type))
	conn.SendResult(msg.MessageID, nil, rtype, UnsupportedOperation)
}

func (*BaseHandler) Abandon(*Conn, *Message, MessageID) {}

func (h *BaseHandler) Add(conn *Conn, msg *Message, _ *AddRequest) {
	h.unsupported(conn, msg, TypeAddResponseOp)
}

func (h *BaseHandler) Bind(conn *Conn, msg *Message, _ *BindRequest) {
	h.unsupported(conn, msg, TypeBindResponseOp)
}

func (h *BaseHandler) Compare(conn *Conn, msg *Message, _ *CompareRequest) {
	h.unsupported(conn, msg, TypeCompareResponseOp)
}

func (h *BaseHandler) Delete(conn *Conn, msg *Message, _ string) {
	h.unsupported(conn, msg, TypeDeleteResponseOp)
}

func (h *BaseHandler) Modify(conn *Conn, msg *Message, _ *ModifyRequest) {
	h.unsupported(conn, msg, TypeModifyResponseOp)
}

func (h *BaseHandler) ModifyDN(conn *Conn, msg *Message, _ *ModifyDNRequest) {
	h.unsupported(conn, msg, TypeModifyDNResponseOp)
}

func (h *BaseHandler) Search(conn *Conn, msg *Message, _ *SearchRequest) {
	h.unsupported(conn, msg, TypeSearchResultDoneOp)
}

func (h *BaseHandler) Other(conn *Conn, msg *Message) {
	h.unsupported(conn, msg, BerTypeSequence)
}

// Serves StartTLS; other extended operations get a protocolError.
// Handlers supporting more operations fall back to this method.
func (h *BaseHandler) Extended(conn *Conn, msg *Message, req *ExtendedRequest) {
	if req.Name == OIDStartTLS {
		h.StartTLS(conn, msg)
		return
	}
	h.logger().Debug("Unknown extended request", zap.String("oid", string(req.Name)))
	conn.SendResult(msg.MessageID, nil, TypeExtendedResponseOp, &ExtendedResult{
		Result: *LDAPResultProtocolError.AsResult("the requested Extended operation is not supported"),
	})
}

// Answers a StartTLS request, then performs the handshake.
func (h *BaseHandler) StartTLS(conn *Conn, msg *Message) {
	res := &ExtendedResult{ResponseName: OIDStartTLS}
	err := conn.tlsAvailable()
	switch {
	case err == nil:
		res.ResultCode = ResultSuccess
	case errors.Is(err, ErrTLSNotAvailable):
		res.Result = *LDAPResultUnwillingToPerform.AsResult("TLS is not available for StartTLS")
	default:
		res.Result = *LDAPResultOperationsError.AsResult("TLS is already set up on this connection")
	}
	if sendErr := conn.SendResult(msg.MessageID, nil, TypeExtendedResponseOp, res); sendErr != nil || err != nil {
		h.logger().Debug("StartTLS refused", zap.Error(err), zap.NamedError("sendError", sendErr))
		return
	}
	if err := conn.StartTLS(); err != nil {
		h.logger().Warn("StartTLS failed, closing connection", zap.Error(err))
		conn.Close()
	}
}
