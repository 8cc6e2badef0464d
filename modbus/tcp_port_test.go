package modbus

import (
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// tcpPair returns a connected client port and the raw peer side of the
// connection.
func tcpPair(t *testing.T, blocking bool) (*TCPPort, net.Conn) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := listener.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	addr := listener.Addr().(*net.TCPAddr)
	port := NewTCPPort("127.0.0.1", uint16(addr.Port), blocking)
	port.SetTimeout(time.Second)
	require.Equal(t, StatusGood, port.Open())
	t.Cleanup(func() { port.Close() })

	peer := <-accepted
	t.Cleanup(func() { _ = peer.Close() })
	return port, peer
}

func readADU(t *testing.T, conn net.Conn) []byte {
	t.Helper()
	header := make([]byte, 7)
	_, err := io.ReadFull(conn, header)
	require.NoError(t, err)
	length := int(binary.BigEndian.Uint16(header[4:]))
	rest := make([]byte, length-1)
	_, err = io.ReadFull(conn, rest)
	require.NoError(t, err)
	return append(header, rest...)
}

func TestTCPPortClientExchange(t *testing.T) {
	require := require.New(t)

	port, peer := tcpPair(t, true)
	require.True(port.IsOpen())
	require.Equal(TCP, port.Type())

	reqBody := []byte{0x00, 0x00, 0x00, 0x0A}
	require.Equal(StatusGood, port.WriteBuffer(1, FuncReadHoldingRegisters, reqBody))
	require.Equal(StatusGood, port.Write())

	// The peer sees a well-formed MBAP envelope.
	adu := readADU(t, peer)
	txID := binary.BigEndian.Uint16(adu[0:])
	require.Equal(uint16(0), binary.BigEndian.Uint16(adu[2:])) // protocol id
	require.Equal(uint16(6), binary.BigEndian.Uint16(adu[4:])) // unit+fn+body
	require.Equal(byte(1), adu[6])
	require.Equal(FuncReadHoldingRegisters, adu[7])
	require.Equal(reqBody, adu[8:])

	// Reply with the same transaction id.
	respBody := []byte{0x02, 0x00, 0x2A}
	resp := make([]byte, 7, 7+1+len(respBody))
	binary.BigEndian.PutUint16(resp[0:], txID)
	binary.BigEndian.PutUint16(resp[4:], uint16(2+len(respBody)))
	resp[6] = 1
	resp = append(resp, FuncReadHoldingRegisters)
	resp = append(resp, respBody...)
	_, err := peer.Write(resp)
	require.NoError(err)

	require.Equal(StatusGood, port.Read())
	unit, function, body, st := port.ReadBuffer()
	require.Equal(StatusGood, st)
	require.Equal(byte(1), unit)
	require.Equal(FuncReadHoldingRegisters, function)
	require.Equal(respBody, body)
	require.Equal(resp, port.ReadBufferData())
}

func TestTCPPortStaleTransactionSkipped(t *testing.T) {
	require := require.New(t)

	port, peer := tcpPair(t, true)

	require.Equal(StatusGood, port.WriteBuffer(1, FuncReadCoils, []byte{0, 0, 0, 1}))
	require.Equal(StatusGood, port.Write())
	adu := readADU(t, peer)
	txID := binary.BigEndian.Uint16(adu[0:])

	buildResp := func(id uint16) []byte {
		resp := make([]byte, 10)
		binary.BigEndian.PutUint16(resp[0:], id)
		binary.BigEndian.PutUint16(resp[4:], 4)
		resp[6] = 1
		resp[7] = FuncReadCoils
		resp[8] = 0x01
		resp[9] = 0xFF
		return resp
	}

	// A stale response is discarded; the matching one is delivered.
	_, err := peer.Write(buildResp(txID + 100))
	require.NoError(err)
	_, err = peer.Write(buildResp(txID))
	require.NoError(err)

	require.Equal(StatusGood, port.Read())
	unit, function, body, st := port.ReadBuffer()
	require.Equal(StatusGood, st)
	require.Equal(byte(1), unit)
	require.Equal(FuncReadCoils, function)
	require.Equal([]byte{0x01, 0xFF}, body)
}

func TestTCPPortServerModeEchoesTransactionID(t *testing.T) {
	require := require.New(t)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(err)
	defer listener.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := listener.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	addr := listener.Addr().String()
	peer, err := net.Dial("tcp", addr)
	require.NoError(err)
	defer peer.Close()

	port := NewTCPPortWithConn(<-accepted, true)
	port.SetServerMode(true)
	port.SetTimeout(time.Second)
	require.True(port.IsServerMode())
	require.True(port.IsOpen())
	defer port.Close()

	// Send a request with a chosen transaction id.
	req := []byte{0x12, 0x34, 0x00, 0x00, 0x00, 0x06, 0x01, 0x03, 0x00, 0x00, 0x00, 0x01}
	_, err = peer.Write(req)
	require.NoError(err)

	require.Equal(StatusGood, port.Read())
	unit, function, body, st := port.ReadBuffer()
	require.Equal(StatusGood, st)
	require.Equal(byte(1), unit)
	require.Equal(FuncReadHoldingRegisters, function)
	require.Equal([]byte{0x00, 0x00, 0x00, 0x01}, body)

	// The response reuses the request's transaction id.
	require.Equal(StatusGood, port.WriteBuffer(1, FuncReadHoldingRegisters, []byte{0x02, 0x00, 0x07}))
	require.Equal(StatusGood, port.Write())

	resp := readADU(t, peer)
	require.Equal(req[0:2], resp[0:2])
	require.Equal(byte(1), resp[6])
	require.Equal(FuncReadHoldingRegisters, resp[7])
}

func TestTCPPortReadTimeout(t *testing.T) {
	require := require.New(t)

	port, _ := tcpPair(t, true)
	port.SetTimeout(50 * time.Millisecond)

	require.Equal(StatusGood, port.WriteBuffer(1, FuncReadCoils, []byte{0, 0, 0, 1}))
	require.Equal(StatusGood, port.Write())

	st := port.Read()
	require.Equal(StatusBadTcpDisconnect, st)
	require.False(port.IsOpen())
	require.NotEmpty(port.LastErrorText())
}

func TestTCPPortNonBlocking(t *testing.T) {
	require := require.New(t)

	port, peer := tcpPair(t, false)

	require.Equal(StatusGood, port.WriteBuffer(1, FuncReadCoils, []byte{0, 0, 0, 1}))
	for {
		st := port.Write()
		if st.IsGood() {
			break
		}
		require.True(st.IsProcessing())
	}
	adu := readADU(t, peer)

	// Nothing to read yet: the port reports Processing, not a failure.
	require.True(port.Read().IsProcessing())

	resp := make([]byte, 10)
	copy(resp[0:2], adu[0:2])
	binary.BigEndian.PutUint16(resp[4:], 4)
	resp[6] = 1
	resp[7] = FuncReadCoils
	resp[8] = 0x01
	resp[9] = 0x01
	_, err := peer.Write(resp)
	require.NoError(err)

	deadline := time.Now().Add(time.Second)
	for {
		st := port.Read()
		if st.IsGood() {
			break
		}
		require.True(st.IsProcessing())
		require.True(time.Now().Before(deadline), "read did not complete in time")
	}
	_, function, body, st := port.ReadBuffer()
	require.Equal(StatusGood, st)
	require.Equal(FuncReadCoils, function)
	require.Equal([]byte{0x01, 0x01}, body)
}

func TestTCPPortWriteBufferOverflow(t *testing.T) {
	require := require.New(t)

	port := NewTCPPort("127.0.0.1", 1502, true)
	st := port.WriteBuffer(1, FuncReadCoils, make([]byte, MaxPDUBodySize+1))
	require.Equal(StatusBadWriteBufferOverflow, st)
	require.NotEmpty(port.LastErrorText())
}

func TestTCPPortMaxSizeFrames(t *testing.T) {
	require := require.New(t)

	port, peer := tcpPair(t, true)

	// A maximum-size body is accepted and fills the ADU to exactly the
	// buffer capacity.
	body := make([]byte, MaxPDUBodySize)
	for i := range body {
		body[i] = byte(i)
	}
	require.Equal(StatusGood, port.WriteBuffer(1, FuncReportServerID, body))
	require.Len(port.WriteBufferData(), BufferCapacity)
	require.Equal(StatusGood, port.Write())

	adu := readADU(t, peer)
	require.Len(adu, BufferCapacity)
	require.Equal(uint16(2+len(body)), binary.BigEndian.Uint16(adu[4:]))
	require.Equal(body, adu[8:])

	// A maximum-size response assembles without overrunning the read buffer.
	resp := make([]byte, 0, BufferCapacity)
	resp = append(resp, adu[0], adu[1], 0x00, 0x00, 0x00, 0xFE, 1, FuncReportServerID)
	resp = append(resp, body...)
	_, err := peer.Write(resp)
	require.NoError(err)

	require.Equal(StatusGood, port.Read())
	unit, function, respBody, st := port.ReadBuffer()
	require.Equal(StatusGood, st)
	require.Equal(byte(1), unit)
	require.Equal(FuncReportServerID, function)
	require.Equal(body, respBody)
}

func TestTCPPortOversizeInboundFrameRejected(t *testing.T) {
	require := require.New(t)

	port, peer := tcpPair(t, true)

	// A length field one past the buffer capacity is a framing failure,
	// not a crash.
	header := []byte{0x00, 0x01, 0x00, 0x00, 0x00, 0xFF, 0x01}
	_, err := peer.Write(header)
	require.NoError(err)

	st := port.Read()
	require.Equal(StatusBadNotCorrectRequest, st)
	require.NotEmpty(port.LastErrorText())
}

func TestTCPPortClosedOperations(t *testing.T) {
	require := require.New(t)

	port := NewTCPPortWithConn(nil, true)
	require.False(port.IsOpen())
	require.Equal(StatusBadPortClosed, port.Read())
	port.writeLen = 8
	require.Equal(StatusBadPortClosed, port.Write())
}
