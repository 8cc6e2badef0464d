package server

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/McuMirror/ModbusLib/modbus"
)

type signalCounter struct {
	open, closed, tx, rx, errs, completed int

	lastCompleted modbus.StatusCode
	lastError     modbus.StatusCode
}

func (c *signalCounter) connect(events interface {
	ConnectOpened(modbus.OpenedHandler)
	ConnectClosed(modbus.ClosedHandler)
	ConnectTx(modbus.TxHandler)
	ConnectRx(modbus.RxHandler)
	ConnectError(modbus.ErrorHandler)
	ConnectCompleted(modbus.CompletedHandler)
}) {
	events.ConnectOpened(func(string) { c.open++ })
	events.ConnectClosed(func(string) { c.closed++ })
	events.ConnectTx(func(string, []byte) { c.tx++ })
	events.ConnectRx(func(string, []byte) { c.rx++ })
	events.ConnectError(func(_ string, status modbus.StatusCode, _ string) {
		c.errs++
		c.lastError = status
	})
	events.ConnectCompleted(func(_ string, status modbus.StatusCode) {
		c.completed++
		c.lastCompleted = status
	})
}

func newTestResource(t *testing.T) (*Resource, *modbus.MockPort, *modbus.MockDevice) {
	t.Helper()
	port := modbus.NewMockPort()
	port.On("SetServerMode", true).Once()
	device := modbus.NewMockDevice()
	r, err := NewResource(port, device)
	require.NoError(t, err)
	return r, port, device
}

// expectTransaction stubs one full read-dispatch-write cycle on the port.
func expectTransaction(port *modbus.MockPort, unit byte, function byte, reqBody []byte, respFunction byte, respBody []byte) {
	port.On("IsOpen").Return(true).Once()
	port.On("Read").Return(modbus.StatusGood).Once()
	port.On("ReadBufferData").Return(append([]byte{unit, function}, reqBody...)).Once()
	port.On("ReadBuffer").Return(unit, function, reqBody, modbus.StatusGood).Once()
	port.On("WriteBuffer", unit, respFunction, respBody).Return(modbus.StatusGood).Once()
	port.On("Write").Return(modbus.StatusGood).Once()
	port.On("WriteBufferData").Return(append([]byte{unit, respFunction}, respBody...)).Once()
}

func TestResourceConstruction(t *testing.T) {
	require := require.New(t)

	r, port, _ := newTestResource(t)
	require.Same(port, r.Port())
	require.False(r.IsTCPServer())

	port.On("Type").Return(modbus.TCP).Once()
	require.Equal(modbus.TCP, r.Type())

	port.On("IsOpen").Return(true).Once()
	require.True(r.IsOpen())

	require.Equal(modbus.StatusGood, r.Open())
	require.Equal(modbus.StatusGood, r.Close())

	require.True(r.IsBroadcastEnabled())
	require.Equal(modbus.StatusUncertain, r.LastStatus())

	port.AssertExpectations(t)
}

// TestResourceSignalLedger drives one resource through the canonical
// sequence of transactions and checks the exact signal counts after every
// step.
func TestResourceSignalLedger(t *testing.T) {
	require := require.New(t)

	r, port, device := newTestResource(t)
	var counter signalCounter
	counter.connect(r)

	unit := byte(1)
	function := modbus.FuncReadHoldingRegisters
	reqBody := modbus.EncodeReadRequest(0, 16)
	values := make([]uint16, 16)
	for i := range values {
		values[i] = uint16(i)
	}
	respBody := modbus.EncodeRegistersResponse(values)

	// Step 1: successful transaction; the machine opens the port first.
	port.On("IsOpen").Return(false).Once()
	port.On("Open").Return(modbus.StatusGood).Once()
	expectTransaction(port, unit, function, reqBody, function, respBody)
	device.On("ReadHoldingRegisters", unit, uint16(0), uint16(16)).Return(values, modbus.StatusGood).Once()

	st := r.Process()
	require.True(st.IsGood())
	require.Equal(1, counter.open)
	require.Equal(0, counter.closed)
	require.Equal(1, counter.rx)
	require.Equal(1, counter.tx)
	require.Equal(0, counter.errs)
	require.Equal(1, counter.completed)

	// Step 2: transport failure on read.
	port.On("IsOpen").Return(true).Once()
	port.On("Read").Return(modbus.StatusBadSerialReadTimeout).Once()
	port.On("LastErrorText").Return("read timeout").Once()

	st = r.Process()
	require.True(st.IsBad())
	require.Equal(1, counter.open)
	require.Equal(0, counter.closed)
	require.Equal(1, counter.rx)
	require.Equal(1, counter.tx)
	require.Equal(1, counter.errs)
	require.Equal(2, counter.completed)
	require.Equal(modbus.StatusBadSerialReadTimeout, r.LastErrorStatus())

	// Step 3: the read completed but the frame failed to parse.
	port.On("IsOpen").Return(true).Once()
	port.On("Read").Return(modbus.StatusGood).Once()
	port.On("ReadBufferData").Return([]byte{0xFF}).Once()
	port.On("ReadBuffer").Return(byte(0), byte(0), []byte(nil), modbus.StatusBadCrc).Once()
	port.On("LastErrorText").Return("crc mismatch").Once()

	st = r.Process()
	require.True(st.IsBad())
	require.Equal(2, counter.rx)
	require.Equal(1, counter.tx)
	require.Equal(2, counter.errs)
	require.Equal(3, counter.completed)

	// Step 4: device fails with a generic status; the server answers with a
	// ServerDeviceFailure exception.
	port.On("IsOpen").Return(true).Once()
	port.On("Read").Return(modbus.StatusGood).Once()
	port.On("ReadBufferData").Return(append([]byte{unit, function}, reqBody...)).Once()
	port.On("ReadBuffer").Return(unit, function, reqBody, modbus.StatusGood).Once()
	device.On("ReadHoldingRegisters", unit, uint16(0), uint16(16)).Return([]uint16(nil), modbus.StatusBad).Once()
	port.On("WriteBuffer", unit, function|modbus.ExceptionBit, []byte{0x04}).Return(modbus.StatusGood).Once()
	port.On("Write").Return(modbus.StatusGood).Once()
	port.On("WriteBufferData").Return([]byte{unit, function | modbus.ExceptionBit, 0x04}).Once()

	st = r.Process()
	require.True(st.IsBad())
	require.Equal(3, counter.rx)
	require.Equal(2, counter.tx)
	require.Equal(3, counter.errs)
	require.Equal(4, counter.completed)

	// Step 5: device returns a standard exception.
	port.On("IsOpen").Return(true).Once()
	port.On("Read").Return(modbus.StatusGood).Once()
	port.On("ReadBufferData").Return(append([]byte{unit, function}, reqBody...)).Once()
	port.On("ReadBuffer").Return(unit, function, reqBody, modbus.StatusGood).Once()
	device.On("ReadHoldingRegisters", unit, uint16(0), uint16(16)).
		Return([]uint16(nil), modbus.StatusBadIllegalDataAddress).Once()
	port.On("WriteBuffer", unit, function|modbus.ExceptionBit, []byte{0x02}).Return(modbus.StatusGood).Once()
	port.On("Write").Return(modbus.StatusGood).Once()
	port.On("WriteBufferData").Return([]byte{unit, function | modbus.ExceptionBit, 0x02}).Once()

	st = r.Process()
	require.Equal(modbus.StatusBadIllegalDataAddress, st)
	require.Equal(4, counter.rx)
	require.Equal(3, counter.tx)
	require.Equal(4, counter.errs)
	require.Equal(5, counter.completed)

	// Step 6: gateway path unavailable suppresses the response entirely.
	port.On("IsOpen").Return(true).Once()
	port.On("Read").Return(modbus.StatusGood).Once()
	port.On("ReadBufferData").Return(append([]byte{unit, function}, reqBody...)).Once()
	port.On("ReadBuffer").Return(unit, function, reqBody, modbus.StatusGood).Once()
	device.On("ReadHoldingRegisters", unit, uint16(0), uint16(16)).
		Return([]uint16(nil), modbus.StatusBadGatewayPathUnavailable).Once()

	st = r.Process()
	require.True(st.IsGood())
	require.Equal(5, counter.rx)
	require.Equal(3, counter.tx) // no response was sent
	require.Equal(4, counter.errs)
	require.Equal(6, counter.completed)
	require.Equal(modbus.StatusGood, counter.lastCompleted)

	// Step 7: a followup transaction still works.
	expectTransaction(port, unit, function, reqBody, function, respBody)
	device.On("ReadHoldingRegisters", unit, uint16(0), uint16(16)).Return(values, modbus.StatusGood).Once()

	st = r.Process()
	require.True(st.IsGood())
	require.Equal(6, counter.rx)
	require.Equal(4, counter.tx)
	require.Equal(7, counter.completed)

	// Step 8: the link dropped; the machine closes and signals it.
	port.On("IsOpen").Return(false).Once()
	port.On("Close").Return(modbus.StatusGood).Once()

	st = r.Process()
	require.True(st.IsGood())
	require.Equal(1, counter.open)
	require.Equal(1, counter.closed)
	require.Equal(6, counter.rx)
	require.Equal(4, counter.tx)
	require.Equal(4, counter.errs)
	require.Equal(8, counter.completed)
	require.True(r.IsStateClosed())

	port.AssertExpectations(t)
	device.AssertExpectations(t)
}

func TestResourceReadCoils(t *testing.T) {
	require := require.New(t)

	r, port, device := newTestResource(t)

	// Scenario S1: fifteen coils, device pattern AA AA.
	reqBody := []byte{0x00, 0x00, 0x00, 0x0F}
	expectTransaction(port, 1, modbus.FuncReadCoils, reqBody, modbus.FuncReadCoils, []byte{0x02, 0xAA, 0xAA})
	device.On("ReadCoils", byte(1), uint16(0), uint16(15)).Return([]byte{0xAA, 0xAA}, modbus.StatusGood).Once()
	port.On("IsOpen").Return(true).Once() // initial state probe

	require.True(r.Process().IsGood())
	port.AssertExpectations(t)
	device.AssertExpectations(t)
}

func TestResourceReadCoilsIllegalCount(t *testing.T) {
	require := require.New(t)

	r, port, device := newTestResource(t)
	var counter signalCounter
	counter.connect(r)

	// Scenario S2: count beyond MaxDiscrets yields wire exception 0x03.
	reqBody := []byte{0x00, 0x00, 0x07, 0xF9}
	port.On("IsOpen").Return(true).Twice()
	port.On("Read").Return(modbus.StatusGood).Once()
	port.On("ReadBufferData").Return(append([]byte{1, modbus.FuncReadCoils}, reqBody...)).Once()
	port.On("ReadBuffer").Return(byte(1), modbus.FuncReadCoils, reqBody, modbus.StatusGood).Once()
	port.On("WriteBuffer", byte(1), byte(0x81), []byte{0x03}).Return(modbus.StatusGood).Once()
	port.On("Write").Return(modbus.StatusGood).Once()
	port.On("WriteBufferData").Return([]byte{1, 0x81, 0x03}).Once()

	st := r.Process()
	require.Equal(modbus.StatusBadIllegalDataValue, st)
	require.Equal(1, counter.tx)
	require.Equal(1, counter.errs)
	require.Equal(1, counter.completed)
	device.AssertNotCalled(t, "ReadCoils")
	port.AssertExpectations(t)
}

func TestResourceWriteSingleCoilInvalidValue(t *testing.T) {
	require := require.New(t)

	r, port, device := newTestResource(t)
	var counter signalCounter
	counter.connect(r)

	// Scenario S3: an invalid coil value is a framing failure with no wire
	// response at all.
	reqBody := []byte{0x00, 0x0A, 0xAA, 0xAA}
	port.On("IsOpen").Return(true).Twice()
	port.On("Read").Return(modbus.StatusGood).Once()
	port.On("ReadBufferData").Return(append([]byte{1, modbus.FuncWriteSingleCoil}, reqBody...)).Once()
	port.On("ReadBuffer").Return(byte(1), modbus.FuncWriteSingleCoil, reqBody, modbus.StatusGood).Once()

	st := r.Process()
	require.Equal(modbus.StatusBadNotCorrectRequest, st)
	require.Equal(0, counter.tx)
	require.Equal(1, counter.errs)
	require.Equal(1, counter.completed)
	device.AssertNotCalled(t, "WriteSingleCoil")
	port.AssertNotCalled(t, "WriteBuffer")
	port.AssertExpectations(t)
}

func TestResourceWriteMultipleRegistersMismatch(t *testing.T) {
	require := require.New(t)

	r, port, device := newTestResource(t)
	var counter signalCounter
	counter.connect(r)

	// Scenario S4: count=3 but byteCount=5; framing check fires first.
	reqBody := []byte{0x00, 0x00, 0x00, 0x03, 0x05, 0x01, 0x02, 0x03, 0x04, 0x05}
	port.On("IsOpen").Return(true).Twice()
	port.On("Read").Return(modbus.StatusGood).Once()
	port.On("ReadBufferData").Return(append([]byte{1, modbus.FuncWriteMultipleRegisters}, reqBody...)).Once()
	port.On("ReadBuffer").Return(byte(1), modbus.FuncWriteMultipleRegisters, reqBody, modbus.StatusGood).Once()

	st := r.Process()
	require.Equal(modbus.StatusBadNotCorrectRequest, st)
	require.Equal(0, counter.tx)
	device.AssertNotCalled(t, "WriteMultipleRegisters")
	port.AssertNotCalled(t, "WriteBuffer")
	port.AssertExpectations(t)
}

func TestResourceMaskWriteRegisterEcho(t *testing.T) {
	require := require.New(t)

	r, port, device := newTestResource(t)

	// Scenario S5: the response body equals the request body.
	reqBody := []byte{0x00, 0x04, 0xF2, 0xFF, 0x00, 0x25}
	port.On("IsOpen").Return(true).Once()
	expectTransaction(port, 1, modbus.FuncMaskWriteRegister, reqBody, modbus.FuncMaskWriteRegister, reqBody)
	device.On("MaskWriteRegister", byte(1), uint16(4), uint16(0xF2FF), uint16(0x0025)).
		Return(modbus.StatusGood).Once()

	require.True(r.Process().IsGood())
	port.AssertExpectations(t)
	device.AssertExpectations(t)
}

func TestResourceUnknownFunction(t *testing.T) {
	require := require.New(t)

	r, port, _ := newTestResource(t)

	port.On("IsOpen").Return(true).Twice()
	port.On("Read").Return(modbus.StatusGood).Once()
	port.On("ReadBufferData").Return([]byte{1, 0x55}).Once()
	port.On("ReadBuffer").Return(byte(1), byte(0x55), []byte(nil), modbus.StatusGood).Once()
	port.On("WriteBuffer", byte(1), byte(0xD5), []byte{0x01}).Return(modbus.StatusGood).Once()
	port.On("Write").Return(modbus.StatusGood).Once()
	port.On("WriteBufferData").Return([]byte{1, 0xD5, 0x01}).Once()

	st := r.Process()
	require.Equal(modbus.StatusBadIllegalFunction, st)
	port.AssertExpectations(t)
}

func TestResourceUnitFiltering(t *testing.T) {
	require := require.New(t)

	t.Run("disabled unit is skipped silently", func(t *testing.T) {
		r, port, device := newTestResource(t)
		r.SetUnitMapString("1-5")
		var counter signalCounter
		counter.connect(r)

		reqBody := modbus.EncodeReadRequest(0, 1)
		port.On("IsOpen").Return(true).Times(3)
		port.On("Read").Return(modbus.StatusGood).Once()
		port.On("ReadBufferData").Return(append([]byte{9, modbus.FuncReadCoils}, reqBody...)).Once()
		port.On("ReadBuffer").Return(byte(9), modbus.FuncReadCoils, reqBody, modbus.StatusGood).Once()
		// The machine goes straight back to reading.
		port.On("Read").Return(modbus.StatusProcessing).Once()

		st := r.Process()
		require.True(st.IsProcessing())
		require.Equal(0, counter.completed)
		device.AssertNotCalled(t, "ReadCoils")
		port.AssertExpectations(t)
	})

	t.Run("broadcast accepted regardless of map", func(t *testing.T) {
		r, port, device := newTestResource(t)
		r.SetUnitMapString("1-5")
		var counter signalCounter
		counter.connect(r)

		reqBody := modbus.EncodeWriteSingleRegisterRequest(0x0064, 0x1234)
		port.On("IsOpen").Return(true).Twice()
		port.On("Read").Return(modbus.StatusGood).Once()
		port.On("ReadBufferData").Return(append([]byte{0, modbus.FuncWriteSingleRegister}, reqBody...)).Once()
		port.On("ReadBuffer").Return(byte(0), modbus.FuncWriteSingleRegister, reqBody, modbus.StatusGood).Once()
		device.On("WriteSingleRegister", byte(0), uint16(0x0064), uint16(0x1234)).
			Return(modbus.StatusGood).Once()

		// Broadcast requests are dispatched but never answered.
		st := r.Process()
		require.True(st.IsGood())
		require.Equal(0, counter.tx)
		require.Equal(1, counter.completed)
		port.AssertNotCalled(t, "WriteBuffer")
		port.AssertExpectations(t)
		device.AssertExpectations(t)
	})
}

func TestResourceOpenFailure(t *testing.T) {
	require := require.New(t)

	r, port, _ := newTestResource(t)
	var counter signalCounter
	counter.connect(r)

	port.On("IsOpen").Return(false).Once()
	port.On("Open").Return(modbus.StatusBadSerialOpen).Once()
	port.On("LastErrorText").Return("open failed").Once()

	st := r.Process()
	require.Equal(modbus.StatusBadSerialOpen, st)
	require.Equal(1, counter.errs)
	require.Equal(1, counter.completed)
	require.True(r.IsStateClosed())
	port.AssertExpectations(t)
}

func TestResourceNonBlockingSteps(t *testing.T) {
	require := require.New(t)

	r, port, device := newTestResource(t)

	unit := byte(2)
	reqBody := modbus.EncodeReadRequest(5, 3)
	values := []uint16{0x1234, 0x5678, 0x9ABC}
	respBody := modbus.EncodeRegistersResponse(values)

	// Tick 1: nothing to read yet.
	port.On("IsOpen").Return(true).Twice()
	port.On("Read").Return(modbus.StatusProcessing).Once()
	require.True(r.Process().IsProcessing())

	// Tick 2: request arrives, response write stays in progress.
	port.On("IsOpen").Return(true).Once()
	port.On("Read").Return(modbus.StatusGood).Once()
	port.On("ReadBufferData").Return(append([]byte{unit, modbus.FuncReadInputRegisters}, reqBody...)).Once()
	port.On("ReadBuffer").Return(unit, modbus.FuncReadInputRegisters, reqBody, modbus.StatusGood).Once()
	device.On("ReadInputRegisters", unit, uint16(5), uint16(3)).Return(values, modbus.StatusGood).Once()
	port.On("WriteBuffer", unit, modbus.FuncReadInputRegisters, respBody).Return(modbus.StatusGood).Once()
	port.On("Write").Return(modbus.StatusProcessing).Once()
	require.True(r.Process().IsProcessing())

	// Tick 3: the write drains and the transaction completes.
	port.On("Write").Return(modbus.StatusGood).Once()
	port.On("WriteBufferData").Return(append([]byte{unit, modbus.FuncReadInputRegisters}, respBody...)).Once()
	require.True(r.Process().IsGood())

	port.AssertExpectations(t)
	device.AssertExpectations(t)
}

func TestResourceCloseCommand(t *testing.T) {
	require := require.New(t)

	r, port, _ := newTestResource(t)
	var counter signalCounter
	counter.connect(r)

	// Open and park the machine mid-read.
	port.On("IsOpen").Return(true).Twice()
	port.On("Read").Return(modbus.StatusProcessing).Once()
	require.True(r.Process().IsProcessing())

	// The close request is honored at the next state transition.
	r.Close()
	port.On("Close").Return(modbus.StatusGood).Once()
	st := r.Process()
	require.True(st.IsGood())
	require.Equal(1, counter.closed)
	require.Equal(1, counter.completed)
	require.True(r.IsStateClosed())

	// Reopening resets the machine.
	require.Equal(modbus.StatusGood, r.Open())
	require.False(r.IsStateClosed())
	port.AssertExpectations(t)
}
