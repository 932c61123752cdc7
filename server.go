package memldap

import (
	"crypto/tls"
	"errors"
	"io"
	"net"
	"sync"

	"go.uber.org/zap"
)

// Accepts LDAP connections and passes their requests to a Handler.
type LDAPServer struct {
	// BaseHandler when nil
	Handler Handler
	// Used by StartTLS and ListenAndServeTLS
	TLSConfig *tls.Config
	// nil disables logging
	Logger *zap.Logger

	mu sync.Mutex
	// Listener for new connections
	listener net.Listener
	// Closed when the accept loop has returned
	done chan struct{}
	// Open connections, closed by CloseConnections
	conns map[*Conn]struct{}
	// Tracks connection goroutines
	connWG sync.WaitGroup
}

// Returns a server passing requests to handler.
func NewLDAPServer(handler Handler) *LDAPServer {
	return &LDAPServer{
		Handler: handler,
		conns:   make(map[*Conn]struct{}),
	}
}

// Loads a PEM certificate and key pair as the server's TLS config.
func (s *LDAPServer) SetupTLS(certFile, keyFile string) error {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return err
	}
	s.TLSConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
	return nil
}

// Serves plain LDAP on address. StartTLS is offered when TLSConfig is set.
func (s *LDAPServer) ListenAndServe(address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	return s.Serve(listener)
}

// Serves LDAPS on address.
func (s *LDAPServer) ListenAndServeTLS(address string) error {
	if s.TLSConfig == nil {
		return ErrTLSNotAvailable
	}
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	return s.Serve(tls.NewListener(listener, s.TLSConfig))
}

func (s *LDAPServer) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

// Run a LDAP server using the specified listener.
// Returns nil once the listener is closed, or the first permanent accept error.
// Should not be called more than once on the same server object.
func (s *LDAPServer) Serve(listener net.Listener) error {
	if listener == nil {
		return ErrNilListener
	}
	if s.Handler == nil {
		s.Handler = &BaseHandler{Logger: s.Logger}
	}
	s.mu.Lock()
	if s.listener != nil {
		s.mu.Unlock()
		return ErrAlreadyListening
	}
	if s.conns == nil {
		s.conns = make(map[*Conn]struct{})
	}
	s.listener = listener
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()
	defer close(done)

	log := s.logger().With(zap.Stringer("address", listener.Addr()))
	log.Debug("Serving LDAP")
	for {
		c, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				log.Debug("Listener closed")
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				log.Warn("Accept error", zap.Error(err))
				continue
			}
			return err
		}
		go s.handleConnection(s.track(c))
	}
}

// Register a new connection so CloseConnections can reach it.
func (s *LDAPServer) track(c net.Conn) *Conn {
	ldapConn := &Conn{
		Conn:      c,
		tlsConfig: s.TLSConfig,
		logger:    s.logger().With(zap.Stringer("remote", c.RemoteAddr())),
	}
	s.connWG.Add(1)
	s.mu.Lock()
	s.conns[ldapConn] = struct{}{}
	s.mu.Unlock()
	return ldapConn
}

// Signal the server to shut down and wait for it to stop.
// With closeConnections, open client connections are closed too.
func (s *LDAPServer) Shutdown(closeConnections bool) error {
	s.mu.Lock()
	listener, done := s.listener, s.done
	s.mu.Unlock()
	if listener == nil {
		return nil
	}
	err := listener.Close()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	<-done
	if closeConnections {
		s.CloseConnections()
	}
	return err
}

// Close all open client connections and wait for their goroutines to finish.
// Clients are sent a notice of disconnection first, except during a StartTLS handshake.
func (s *LDAPServer) CloseConnections() {
	s.mu.Lock()
	for c := range s.conns {
		c.disconnect(LDAPResultUnavailable)
	}
	s.mu.Unlock()
	s.connWG.Wait()
}

// Reads and dispatches messages until the connection closes.
func (s *LDAPServer) handleConnection(conn *Conn) {
	defer s.connWG.Done()
	log := conn.Logger()
	log.Debug("Connection opened")
	defer func() {
		conn.Close()
		conn.asyncOperations.Wait()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		log.Debug("Connection closed")
	}()
	for !conn.closed.Load() {
		msg, err := conn.ReadMessage()
		if err != nil {
			if !conn.closed.Load() && !errors.Is(err, io.EOF) {
				log.Debug("Error reading message, closing connection", zap.Error(err))
			}
			return
		}
		s.handleMessage(conn, msg)
	}
}

// How a request operation is decoded and handed to the Handler
type operation struct {
	name string
	// Response type used to answer requests that fail to decode
	respType BerType
	serve    func(h Handler, conn *Conn, msg *Message) error
}

// Abandon requests get no response
const noResponse BerType = 0

func operationOf[R any](name string, respType BerType, decode func([]byte) (R, error), handle func(Handler, *Conn, *Message, R)) operation {
	return operation{name, respType, func(h Handler, conn *Conn, msg *Message) error {
		req, err := decode(msg.ProtocolOp.Data)
		if err != nil {
			return err
		}
		handle(h, conn, msg, req)
		return nil
	}}
}

var operations = map[BerType]operation{
	TypeAbandonRequestOp:  operationOf("Abandon", noResponse, GetAbandonRequest, Handler.Abandon),
	TypeAddRequestOp:      operationOf("Add", TypeAddResponseOp, GetAddRequest, Handler.Add),
	TypeBindRequestOp:     operationOf("Bind", TypeBindResponseOp, GetBindRequest, Handler.Bind),
	TypeCompareRequestOp:  operationOf("Compare", TypeCompareResponseOp, GetCompareRequest, Handler.Compare),
	TypeDeleteRequestOp:   operationOf("Delete", TypeDeleteResponseOp, GetDeleteRequest, Handler.Delete),
	TypeExtendedRequestOp: operationOf("Extended", TypeExtendedResponseOp, GetExtendedRequest, Handler.Extended),
	TypeModifyRequestOp:   operationOf("Modify", TypeModifyResponseOp, GetModifyRequest, Handler.Modify),
	TypeModifyDNRequestOp: operationOf("ModifyDN", TypeModifyDNResponseOp, GetModifyDNRequest, Handler.ModifyDN),
	TypeSearchRequestOp:   operationOf("Search", TypeSearchResultDoneOp, GetSearchRequest, Handler.Search),
}

// Dispatches a message read from the connection.
// Searches run concurrently; a bind waits until no other operation is in progress.
func (s *LDAPServer) handleMessage(conn *Conn, msg *Message) {
	log := conn.Logger().With(zap.Uint32("messageID", uint32(msg.MessageID)))
	if msg.ProtocolOp.Type == TypeUnbindRequestOp {
		log.Debug("Unbind request")
		conn.Close()
		return
	}
	op, ok := operations[msg.ProtocolOp.Type]
	if !ok {
		log.Debug("Unknown operation type", zap.Stringer("type", msg.ProtocolOp.Type))
		s.Handler.Other(conn, msg)
		return
	}
	log = log.With(zap.String("op", op.name))
	log.Debug("Request")
	switch msg.ProtocolOp.Type {
	case TypeBindRequestOp:
		conn.asyncOperations.Wait()
		s.serve(conn, msg, op, log)
	case TypeSearchRequestOp:
		conn.asyncOperations.Add(1)
		go func() {
			defer conn.asyncOperations.Done()
			s.serve(conn, msg, op, log)
		}()
	default:
		conn.asyncOperations.Add(1)
		defer conn.asyncOperations.Done()
		s.serve(conn, msg, op, log)
	}
}

func (s *LDAPServer) serve(conn *Conn, msg *Message, op operation, log *zap.Logger) {
	err := op.serve(s.Handler, conn, msg)
	if err == nil || op.respType == noResponse {
		return
	}
	log.Debug("Malformed request", zap.Error(err))
	var res Encodable = ProtocolError
	if op.respType == TypeExtendedResponseOp {
		res = &ExtendedResult{Result: *ProtocolError}
	}
	conn.SendResult(msg.MessageID, nil, op.respType, res)
}
