package memldap

import (
	"crypto/tls"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	// How long a client may take to complete a StartTLS handshake
	handshakeTimeout = 10 * time.Second
	// How long a forced disconnect waits to deliver its notice
	noticeTimeout = time.Second
)

// Anything that can be sent as the body of a response
type Encodable interface {
	Encode() []byte
}

// A client connection served by an LDAPServer.
type Conn struct {
	// Underlying network connection, replaced by StartTLS
	Conn net.Conn
	// Set by the bind handler; nil for anonymous connections
	Authentication any

	closed    atomic.Bool
	isTLS     bool
	tlsConfig *tls.Config
	// Held while StartTLS swaps Conn
	tlsStarting sync.Mutex
	// Guards Conn for Close, which may run during StartTLS
	connMu  sync.Mutex
	sending sync.Mutex
	// Operations in progress; a bind waits for them
	asyncOperations sync.WaitGroup
	logger          *zap.Logger
}

// Closes the connection; the server stops reading from it.
func (c *Conn) Close() {
	if !c.closed.Swap(true) {
		c.netConn().Close()
	}
}

func (c *Conn) netConn() net.Conn {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.Conn
}

func (c *Conn) Logger() *zap.Logger {
	if c.logger == nil {
		return zap.NewNop()
	}
	return c.logger
}

func (c *Conn) ReadMessage() (*Message, error) {
	return ReadLDAPMessage(c.Conn)
}

// Writes msg to the client. Safe for concurrent use.
func (c *Conn) SendMessage(msg *Message) error {
	c.tlsStarting.Lock()
	defer c.tlsStarting.Unlock()
	return c.write(msg)
}

// Callers hold tlsStarting.
func (c *Conn) write(msg *Message) error {
	data := msg.EncodeWithHeader()
	c.sending.Lock()
	defer c.sending.Unlock()
	_, err := c.Conn.Write(data)
	return err
}

// Sends res as a protocolOp of type rtype.
func (c *Conn) SendResult(messageID MessageID, controls []Control, rtype BerType, res Encodable) error {
	return c.SendMessage(&Message{
		MessageID:  messageID,
		ProtocolOp: BerRawElement{Type: rtype, Data: res.Encode()},
		Controls:   controls,
	})
}

// Sends an unsolicited notification, an extended response with message ID 0.
func (c *Conn) SendUnsolicitedNotification(resultCode LDAPResultCode, oid OID, respValue string) error {
	return c.SendResult(0, nil, TypeExtendedResponseOp, &ExtendedResult{
		Result:        Result{ResultCode: resultCode},
		ResponseName:  oid,
		ResponseValue: respValue,
	})
}

// Tells the client the server is about to close the connection.
func (c *Conn) NotifyDisconnect(resultCode LDAPResultCode) error {
	return c.SendUnsolicitedNotification(resultCode, OIDNoticeOfDisconnection, "")
}

// Closes the connection, sending a notice of disconnection first unless
// a StartTLS handshake is in progress.
func (c *Conn) disconnect(resultCode LDAPResultCode) {
	if c.tlsStarting.TryLock() {
		c.Conn.SetWriteDeadline(time.Now().Add(noticeTimeout))
		err := c.write(&Message{
			ProtocolOp: BerRawElement{Type: TypeExtendedResponseOp, Data: (&ExtendedResult{
				Result:       Result{ResultCode: resultCode},
				ResponseName: OIDNoticeOfDisconnection,
			}).Encode()},
		})
		c.tlsStarting.Unlock()
		if err != nil {
			c.Logger().Debug("Could not send notice of disconnection", zap.Error(err))
		}
	}
	c.Close()
}

func (c *Conn) tlsAvailable() error {
	switch {
	case c.isTLS:
		return ErrTLSAlreadySetUp
	case c.tlsConfig == nil:
		return ErrTLSNotAvailable
	}
	return nil
}

// Performs the server side of a TLS handshake on the connection.
func (c *Conn) StartTLS() error {
	c.tlsStarting.Lock()
	defer c.tlsStarting.Unlock()
	if err := c.tlsAvailable(); err != nil {
		return err
	}
	tlsConn := tls.Server(c.Conn, c.tlsConfig)
	c.Conn.SetDeadline(time.Now().Add(handshakeTimeout))
	if err := tlsConn.Handshake(); err != nil {
		return err
	}
	c.Conn.SetDeadline(time.Time{})
	c.connMu.Lock()
	c.Conn, c.isTLS = tlsConn, true
	c.connMu.Unlock()
	return nil
}
