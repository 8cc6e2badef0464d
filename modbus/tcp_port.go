package modbus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/McuMirror/ModbusLib/logger"
)

// MBAP envelope constants. The envelope prepends transactionId:u16,
// protocolId:u16 (always 0), length:u16 and unit:u8 to the PDU; the length
// field covers unit + function + body.
const (
	mbapHeaderSize = 7
	mbapProtocolID = 0

	// maxADUSize is the largest TCP frame: the envelope plus function code
	// and body. It equals BufferCapacity, so a maximum-size frame fits the
	// port buffers exactly.
	maxADUSize = mbapHeaderSize + 1 + MaxPDUBodySize
)

// Compile-time check: a maximum-size ADU fits the port buffers.
const _ = uint(BufferCapacity - maxADUSize)

// pollInterval is the per-step I/O deadline of a non-blocking port: long
// enough to avoid spinning the scheduler, short enough to keep the
// cooperative loop responsive.
const pollInterval = time.Millisecond

// DefaultTCPTimeout is the default response/request completion timeout of a
// TCPPort. Zero disables the timeout.
const DefaultTCPTimeout = 3 * time.Second

// TCPPort is a Port over a TCP stream with MBAP framing.
//
// In client mode the port generates a fresh transaction id per staged
// request and discards inbound frames whose id does not match. In server
// mode it remembers the id of the last received request and echoes it on
// the response.
//
// A blocking port completes each Read/Write step before returning; a
// non-blocking port returns StatusProcessing and must be stepped again.
type TCPPort struct {
	host     string
	port     uint16
	blocking bool
	timeout  time.Duration
	logger   logger.Logger

	conn       net.Conn
	serverMode bool

	// Inbound frame assembly.
	readBuf   [BufferCapacity]byte
	readLen   int
	frameLen  int // total ADU length, 0 while the header is incomplete
	readSince time.Time
	hasFrame  bool

	// Outbound frame.
	writeBuf   [BufferCapacity]byte
	writeLen   int
	written    int
	writeSince time.Time

	transactionID uint16 // client mode: id of the staged request
	requestID     uint16 // server mode: id of the last received request

	lastErrorText string
}

var _ Port = (*TCPPort)(nil)

// NewTCPPort creates a client-side TCP port that dials host:port on Open.
func NewTCPPort(host string, port uint16, blocking bool) *TCPPort {
	if port == 0 {
		port = StandardTCPPort
	}
	return &TCPPort{
		host:     host,
		port:     port,
		blocking: blocking,
		timeout:  DefaultTCPTimeout,
		logger:   logger.GetLogger(),
	}
}

// NewTCPPortWithConn wraps an already established connection, typically a
// socket accepted by a TCP server. The port starts open.
func NewTCPPortWithConn(conn net.Conn, blocking bool) *TCPPort {
	return &TCPPort{
		blocking: blocking,
		timeout:  DefaultTCPTimeout,
		logger:   logger.GetLogger(),
		conn:     conn,
	}
}

// SetTimeout sets the frame completion timeout. Zero disables it.
func (p *TCPPort) SetTimeout(timeout time.Duration) { p.timeout = timeout }

// Timeout returns the frame completion timeout.
func (p *TCPPort) Timeout() time.Duration { return p.timeout }

// SetLogger sets the logger used for transport diagnostics.
func (p *TCPPort) SetLogger(l logger.Logger) { p.logger = l }

// RemoteAddr returns the peer address, or an empty string when closed.
func (p *TCPPort) RemoteAddr() string {
	if p.conn == nil {
		return ""
	}
	return p.conn.RemoteAddr().String()
}

// Type returns TCP.
func (p *TCPPort) Type() ProtocolType { return TCP }

// SetServerMode selects between client and server envelope handling.
func (p *TCPPort) SetServerMode(enable bool) { p.serverMode = enable }

// IsServerMode reports the current envelope mode.
func (p *TCPPort) IsServerMode() bool { return p.serverMode }

// IsOpen reports whether the connection is usable.
func (p *TCPPort) IsOpen() bool { return p.conn != nil }

// LastErrorText returns a description of the last transport error.
func (p *TCPPort) LastErrorText() string { return p.lastErrorText }

// Open dials the configured endpoint. Wrapped connections are already open.
func (p *TCPPort) Open() StatusCode {
	if p.conn != nil {
		return StatusGood
	}
	if p.host == "" {
		return p.setError(StatusBadPortClosed, "tcp: socket is gone and the port has no endpoint to redial")
	}
	addr := net.JoinHostPort(p.host, fmt.Sprintf("%d", p.port))
	conn, err := net.DialTimeout("tcp", addr, p.timeoutOrDefault())
	if err != nil {
		return p.setError(StatusBadTcpDisconnect, fmt.Sprintf("tcp: connect to %s: %v", addr, err))
	}
	p.conn = conn
	p.resetRead()
	p.logger.Debug("tcp port opened", "addr", addr)
	return StatusGood
}

// Close shuts the connection down.
func (p *TCPPort) Close() StatusCode {
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
		p.logger.Debug("tcp port closed")
	}
	p.resetRead()
	p.written = 0
	return StatusGood
}

// WriteBuffer stages one outbound ADU. The staged frame survives completed
// Write steps so a retrying caller can retransmit without restaging.
func (p *TCPPort) WriteBuffer(unit byte, function byte, body []byte) StatusCode {
	if len(body) > MaxPDUBodySize {
		return p.setError(StatusBadWriteBufferOverflow,
			fmt.Sprintf("tcp: PDU body of %d bytes overflows the write buffer", len(body)))
	}
	id := p.requestID
	if !p.serverMode {
		p.transactionID++
		id = p.transactionID
	}
	binary.BigEndian.PutUint16(p.writeBuf[0:], id)
	binary.BigEndian.PutUint16(p.writeBuf[2:], mbapProtocolID)
	binary.BigEndian.PutUint16(p.writeBuf[4:], uint16(2+len(body)))
	p.writeBuf[6] = unit
	p.writeBuf[7] = function
	copy(p.writeBuf[8:], body)
	p.writeLen = mbapHeaderSize + 1 + len(body)
	p.written = 0
	p.writeSince = time.Time{}
	return StatusGood
}

// WriteBufferData returns the staged outbound frame bytes.
func (p *TCPPort) WriteBufferData() []byte {
	return p.writeBuf[:p.writeLen]
}

// Write drains the staged frame. After StatusGood the same frame may be
// written again; the next WriteBuffer replaces it.
func (p *TCPPort) Write() StatusCode {
	if p.conn == nil {
		return p.setError(StatusBadPortClosed, "tcp: write on closed port")
	}
	if p.writeLen == 0 {
		return p.setError(StatusBadWriteBufferOverflow, "tcp: no frame staged for write")
	}
	if p.writeSince.IsZero() {
		p.writeSince = time.Now()
	}
	for {
		_ = p.conn.SetWriteDeadline(p.writeDeadline())
		n, err := p.conn.Write(p.writeBuf[p.written:p.writeLen])
		p.written += n
		if p.written == p.writeLen {
			// Keep the frame staged for possible retransmission.
			p.written = 0
			p.writeSince = time.Time{}
			return StatusGood
		}
		if err != nil {
			if isTimeout(err) {
				if p.timedOut(p.writeSince) {
					p.dropConn()
					return p.setError(StatusBadTcpWrite, "tcp: write timeout")
				}
				if !p.blocking {
					return StatusProcessing
				}
				continue
			}
			p.dropConn()
			return p.setError(StatusBadTcpWrite, fmt.Sprintf("tcp: write: %v", err))
		}
	}
}

// Read assembles one inbound ADU. Frames with a foreign protocol id are
// rejected; in client mode frames with a stale transaction id are skipped.
func (p *TCPPort) Read() StatusCode {
	if p.conn == nil {
		return p.setError(StatusBadPortClosed, "tcp: read on closed port")
	}
	// A fresh Read step invalidates the previous frame.
	if p.hasFrame {
		p.resetRead()
	}
	for {
		target := mbapHeaderSize
		if p.frameLen > 0 {
			target = p.frameLen
		}
		if p.readLen >= target && p.frameLen > 0 {
			st := p.finishFrame()
			if st != StatusProcessing {
				return st
			}
			continue // stale transaction id, keep reading
		}

		if p.readStarted() && p.timedOut(p.readSince) {
			p.dropConn()
			return p.setError(StatusBadTcpDisconnect, "tcp: frame completion timeout")
		}

		_ = p.conn.SetReadDeadline(p.readDeadline())
		n, err := p.conn.Read(p.readBuf[p.readLen:target])
		if n > 0 {
			if p.readSince.IsZero() {
				p.readSince = time.Now()
			}
			p.readLen += n
			if p.frameLen == 0 && p.readLen >= mbapHeaderSize {
				if st := p.parseHeader(); st.IsBad() {
					return st
				}
			}
			continue
		}
		if err != nil {
			if isTimeout(err) {
				if !p.blocking {
					return StatusProcessing
				}
				continue
			}
			p.dropConn()
			return p.setError(StatusBadTcpDisconnect, fmt.Sprintf("tcp: read: %v", err))
		}
	}
}

// ReadBuffer parses the completed inbound frame.
func (p *TCPPort) ReadBuffer() (unit byte, function byte, body []byte, status StatusCode) {
	if !p.hasFrame {
		return 0, 0, nil, StatusBadNotCorrectRequest
	}
	return p.readBuf[6], p.readBuf[7], p.readBuf[8:p.frameLen], StatusGood
}

// ReadBufferData returns the raw bytes of the completed inbound frame.
func (p *TCPPort) ReadBufferData() []byte {
	if !p.hasFrame {
		return nil
	}
	return p.readBuf[:p.frameLen]
}

func (p *TCPPort) parseHeader() StatusCode {
	if binary.BigEndian.Uint16(p.readBuf[2:]) != mbapProtocolID {
		p.resetRead()
		return p.setError(StatusBadNotCorrectRequest, "tcp: frame with foreign protocol id")
	}
	length := int(binary.BigEndian.Uint16(p.readBuf[4:]))
	if length < 2 || mbapHeaderSize-1+length > maxADUSize {
		p.resetRead()
		return p.setError(StatusBadNotCorrectRequest, fmt.Sprintf("tcp: frame length %d out of range", length))
	}
	p.frameLen = mbapHeaderSize - 1 + length
	return StatusGood
}

// finishFrame accepts or skips the assembled frame. StatusProcessing means
// the frame was stale and assembly restarts.
func (p *TCPPort) finishFrame() StatusCode {
	id := binary.BigEndian.Uint16(p.readBuf[0:])
	if p.serverMode {
		p.requestID = id
	} else if id != p.transactionID {
		p.logger.Debug("tcp: skip frame with stale transaction id", "got", id, "want", p.transactionID)
		p.resetRead()
		return StatusProcessing
	}
	p.hasFrame = true
	return StatusGood
}

// readStarted reports whether frame assembly is under way. In server mode
// an idle socket with no inbound bytes never times out; in client mode the
// response timer runs from the first Read step.
func (p *TCPPort) readStarted() bool {
	if p.serverMode {
		return p.readLen > 0 && !p.readSince.IsZero()
	}
	if p.readSince.IsZero() {
		p.readSince = time.Now()
	}
	return true
}

func (p *TCPPort) resetRead() {
	p.readLen = 0
	p.frameLen = 0
	p.hasFrame = false
	p.readSince = time.Time{}
}

func (p *TCPPort) dropConn() {
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
	p.resetRead()
}

func (p *TCPPort) setError(status StatusCode, text string) StatusCode {
	p.lastErrorText = text
	return status
}

func (p *TCPPort) timeoutOrDefault() time.Duration {
	if p.timeout > 0 {
		return p.timeout
	}
	return DefaultTCPTimeout
}

func (p *TCPPort) timedOut(since time.Time) bool {
	return p.timeout > 0 && !since.IsZero() && time.Since(since) > p.timeout
}

func (p *TCPPort) readDeadline() time.Time {
	if p.blocking && p.timeout > 0 {
		return p.readSinceOrNow().Add(p.timeout)
	}
	return time.Now().Add(pollInterval)
}

func (p *TCPPort) writeDeadline() time.Time {
	if p.blocking && p.timeout > 0 {
		return p.writeSince.Add(p.timeout)
	}
	return time.Now().Add(pollInterval)
}

func (p *TCPPort) readSinceOrNow() time.Time {
	if p.readSince.IsZero() {
		return time.Now()
	}
	return p.readSince
}

func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, os.ErrDeadlineExceeded)
}
