package modbus

import (
	"fmt"
	"net"
	"time"

	"github.com/McuMirror/ModbusLib/logger"
)

// TCPAcceptor is the listening side of the Modbus TCP transport: a
// non-blocking wrapper over a TCP listener that hands out pending sockets
// one at a time, for the TCP server to drain on each tick.
type TCPAcceptor struct {
	host   string
	port   uint16
	logger logger.Logger

	listener      *net.TCPListener
	lastErrorText string
}

// NewTCPAcceptor creates an acceptor binding host:port. An empty host binds
// all interfaces; port 0 binds an ephemeral port, reachable via Addr.
func NewTCPAcceptor(host string, port uint16) *TCPAcceptor {
	return &TCPAcceptor{
		host:   host,
		port:   port,
		logger: logger.GetLogger(),
	}
}

// SetLogger sets the logger used for transport diagnostics.
func (a *TCPAcceptor) SetLogger(l logger.Logger) { a.logger = l }

// Addr returns the bound listener address, or the configured endpoint when
// not listening.
func (a *TCPAcceptor) Addr() string {
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return net.JoinHostPort(a.host, fmt.Sprintf("%d", a.port))
}

// IsOpen reports whether the acceptor is listening.
func (a *TCPAcceptor) IsOpen() bool { return a.listener != nil }

// LastErrorText returns a description of the last transport error.
func (a *TCPAcceptor) LastErrorText() string { return a.lastErrorText }

// Open starts listening on the configured endpoint.
func (a *TCPAcceptor) Open() StatusCode {
	if a.listener != nil {
		return StatusGood
	}
	addr := net.JoinHostPort(a.host, fmt.Sprintf("%d", a.port))
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		a.lastErrorText = fmt.Sprintf("tcp: resolve %s: %v", addr, err)
		return StatusBadTcpDisconnect
	}
	listener, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		a.lastErrorText = fmt.Sprintf("tcp: listen on %s: %v", addr, err)
		return StatusBadTcpDisconnect
	}
	a.listener = listener
	a.logger.Debug("tcp acceptor listening", "addr", listener.Addr().String())
	return StatusGood
}

// Close stops listening. Accepted sockets are unaffected.
func (a *TCPAcceptor) Close() StatusCode {
	if a.listener != nil {
		_ = a.listener.Close()
		a.listener = nil
		a.logger.Debug("tcp acceptor closed")
	}
	return StatusGood
}

// NextPendingConnection returns one pending socket, or nil when none is
// waiting. It waits at most one poll interval.
func (a *TCPAcceptor) NextPendingConnection() net.Conn {
	if a.listener == nil {
		return nil
	}
	// A deadline already in the past fails Accept before it looks at the
	// backlog, so allow one poll interval.
	_ = a.listener.SetDeadline(time.Now().Add(pollInterval))
	conn, err := a.listener.Accept()
	if err != nil {
		if !isTimeout(err) {
			a.lastErrorText = fmt.Sprintf("tcp: accept: %v", err)
			a.logger.Debug("tcp accept failed", "error", err)
		}
		return nil
	}
	return conn
}
