package server

import (
	"net"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/McuMirror/ModbusLib/modbus"
)

// Acceptor is the listening-socket abstraction a TCPServer drains pending
// connections from. NextPendingConnection must never block; it returns nil
// when no socket is waiting.
type Acceptor interface {
	Open() modbus.StatusCode
	Close() modbus.StatusCode
	IsOpen() bool
	NextPendingConnection() net.Conn
	LastErrorText() string
}

// TCPServer accepts TCP sockets and serves each one with its own child
// Resource over an MBAP-framed port, all driven cooperatively from Process.
// It exclusively owns the acceptor and the child resources; dropping a
// child closes its port and socket.
//
// Child signals bubble up: every signal a child emits is re-emitted on the
// server with the child's source identifier (its peer address).
type TCPServer struct {
	base

	settings Settings
	acceptor Acceptor
	cmdClose bool
	wasOpen  bool

	children []*Resource
	byName   *xsync.MapOf[string, *Resource]

	// newChildPort wraps an accepted socket into a port; replaced in tests.
	newChildPort func(conn net.Conn) modbus.Port

	newConnection   []modbus.ConnectionHandler
	closeConnection []modbus.ConnectionHandler
}

// NewTCPServer creates a TCP server dispatching to the device with the
// given settings.
func NewTCPServer(device modbus.Device, settings Settings, opts ...Option) (*TCPServer, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if settings.MaxConnections < 1 {
		settings.MaxConnections = 1
	}
	s := &TCPServer{
		base:     newBase(settings.ObjectName, device),
		settings: settings,
		byName:   xsync.NewMapOf[string, *Resource](),
	}
	s.broadcastEnabled = settings.BroadcastEnabled
	s.SetUnitMapString(settings.UnitMap)
	for _, opt := range opts {
		if err := opt.apply(&s.base); err != nil {
			return nil, err
		}
	}
	if s.name == "" {
		s.name = "tcp-server"
	}
	s.newChildPort = func(conn net.Conn) modbus.Port {
		port := modbus.NewTCPPortWithConn(conn, false)
		port.SetTimeout(s.settings.Timeout)
		port.SetLogger(s.logger)
		return port
	}
	return s, nil
}

// Type returns TCP.
func (s *TCPServer) Type() modbus.ProtocolType { return modbus.TCP }

// IsTCPServer returns true.
func (s *TCPServer) IsTCPServer() bool { return true }

// Settings returns the current configuration.
func (s *TCPServer) Settings() Settings { return s.settings }

// Host returns the bind address.
func (s *TCPServer) Host() string { return s.settings.Host }

// SetHost sets the bind address; effective at the next Open.
func (s *TCPServer) SetHost(host string) { s.settings.Host = host }

// Port returns the listening TCP port.
func (s *TCPServer) Port() uint16 { return s.settings.Port }

// SetPort sets the listening TCP port; effective at the next Open.
func (s *TCPServer) SetPort(port uint16) { s.settings.Port = port }

// Timeout returns the child frame completion timeout.
func (s *TCPServer) Timeout() time.Duration { return s.settings.Timeout }

// SetTimeout sets the frame completion timeout of newly accepted
// connections.
func (s *TCPServer) SetTimeout(timeout time.Duration) { s.settings.Timeout = timeout }

// MaxConnections returns the concurrent connection cap.
func (s *TCPServer) MaxConnections() int { return s.settings.MaxConnections }

// SetMaxConnections sets the concurrent connection cap. Zero is coerced to
// one.
func (s *TCPServer) SetMaxConnections(limit int) {
	if limit < 1 {
		limit = 1
	}
	s.settings.MaxConnections = limit
}

// ConnectNewConnection subscribes to the NewConnection event.
func (s *TCPServer) ConnectNewConnection(h modbus.ConnectionHandler) {
	s.newConnection = append(s.newConnection, h)
}

// ConnectCloseConnection subscribes to the CloseConnection event.
func (s *TCPServer) ConnectCloseConnection(h modbus.ConnectionHandler) {
	s.closeConnection = append(s.closeConnection, h)
}

// IsOpen reports whether the acceptor is listening.
func (s *TCPServer) IsOpen() bool { return s.acceptor != nil && s.acceptor.IsOpen() }

// ConnectionCount returns the number of currently served sockets.
func (s *TCPServer) ConnectionCount() int { return len(s.children) }

// Connection returns the child resource serving the named peer, or nil.
func (s *TCPServer) Connection(source string) *Resource {
	child, _ := s.byName.Load(source)
	return child
}

// ListenAddr returns the bound listener address, useful when the
// configured port is 0 (ephemeral).
func (s *TCPServer) ListenAddr() string {
	if a, ok := s.acceptor.(*modbus.TCPAcceptor); ok && a != nil {
		return a.Addr()
	}
	return ""
}

// SetAcceptor replaces the listening-socket implementation. Intended for
// alternative transports and tests; the default is a TCPAcceptor bound to
// the configured endpoint.
func (s *TCPServer) SetAcceptor(a Acceptor) { s.acceptor = a }

// Open starts listening on the configured endpoint.
func (s *TCPServer) Open() modbus.StatusCode {
	s.cmdClose = false
	if s.IsOpen() {
		return modbus.StatusGood
	}
	if s.acceptor == nil {
		s.acceptor = modbus.NewTCPAcceptor(s.settings.Host, s.settings.Port)
	}
	st := s.acceptor.Open()
	if st.IsBad() {
		s.setError(st, s.acceptor.LastErrorText())
		s.RaiseError(s.name, st, s.lastErrorText)
		return s.setStatus(st)
	}
	s.wasOpen = true
	s.RaiseOpened(s.name)
	return s.setStatus(modbus.StatusGood)
}

// Close stops listening and requests every child to drain. Closed is
// emitted once the last child is gone; with no children it fires here.
func (s *TCPServer) Close() modbus.StatusCode {
	s.cmdClose = true
	if s.acceptor != nil {
		_ = s.acceptor.Close()
	}
	for _, child := range s.children {
		child.Close()
	}
	if len(s.children) == 0 {
		s.raiseClosedOnce()
	}
	return modbus.StatusGood
}

// Process performs one server tick: accept pending sockets, then advance
// every child. It returns StatusProcessing while the server has work to
// do and StatusGood once closed and drained.
func (s *TCPServer) Process() modbus.StatusCode {
	if !s.cmdClose {
		if !s.IsOpen() {
			if st := s.Open(); st.IsBad() {
				return st
			}
		}
		s.acceptPending()
	}
	s.processChildren()
	if s.cmdClose {
		if len(s.children) == 0 {
			s.raiseClosedOnce()
			return s.setStatus(modbus.StatusGood)
		}
		return modbus.StatusProcessing
	}
	return modbus.StatusProcessing
}

func (s *TCPServer) acceptPending() {
	for {
		conn := s.acceptor.NextPendingConnection()
		if conn == nil {
			return
		}
		if len(s.children) >= s.settings.MaxConnections {
			s.logger.Warn("connection refused: limit reached",
				"object", s.name, "peer", conn.RemoteAddr().String(),
				"max_connections", s.settings.MaxConnections)
			_ = conn.Close()
			continue
		}
		name := conn.RemoteAddr().String()
		child, err := NewResource(s.newChildPort(conn), s.device,
			WithObjectName(name), WithLogger(s.logger),
			WithBroadcastEnabled(s.broadcastEnabled))
		if err != nil {
			_ = conn.Close()
			continue
		}
		child.SetUnitMap(s.unitMap)
		s.bubbleSignals(child)
		s.children = append(s.children, child)
		s.byName.Store(name, child)
		s.logger.Info("connection accepted", "object", s.name, "peer", name)
		s.raiseNewConnection(name)
	}
}

func (s *TCPServer) processChildren() {
	remaining := s.children[:0]
	for _, child := range s.children {
		child.Process()
		if child.IsStateClosed() {
			name := child.ObjectName()
			s.byName.Delete(name)
			s.logger.Info("connection closed", "object", s.name, "peer", name)
			s.raiseCloseConnection(name)
			continue
		}
		remaining = append(remaining, child)
	}
	s.children = remaining
}

// bubbleSignals re-emits every child signal on the server, keyed by the
// child's source identifier.
func (s *TCPServer) bubbleSignals(child *Resource) {
	child.ConnectOpened(func(source string) { s.RaiseOpened(source) })
	child.ConnectClosed(func(source string) { s.RaiseClosed(source) })
	child.ConnectTx(func(source string, data []byte) { s.RaiseTx(source, data) })
	child.ConnectRx(func(source string, data []byte) { s.RaiseRx(source, data) })
	child.ConnectError(func(source string, status modbus.StatusCode, text string) {
		s.RaiseError(source, status, text)
	})
	child.ConnectCompleted(func(source string, status modbus.StatusCode) {
		s.RaiseCompleted(source, status)
	})
}

func (s *TCPServer) raiseClosedOnce() {
	if s.wasOpen {
		s.wasOpen = false
		s.RaiseClosed(s.name)
	}
}

func (s *TCPServer) raiseNewConnection(source string) {
	for _, h := range s.newConnection {
		h(source)
	}
}

func (s *TCPServer) raiseCloseConnection(source string) {
	for _, h := range s.closeConnection {
		h(source)
	}
}
