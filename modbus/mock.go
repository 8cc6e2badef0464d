package modbus

import (
	"github.com/stretchr/testify/mock"
)

// MockPort is a testify mock of the Port contract, used by the server and
// client state machine tests to script port step outcomes.
type MockPort struct {
	mock.Mock
}

var _ Port = (*MockPort)(nil)

func NewMockPort() *MockPort {
	return &MockPort{}
}

func (m *MockPort) Open() StatusCode {
	args := m.Called()
	return args.Get(0).(StatusCode)
}

func (m *MockPort) Close() StatusCode {
	args := m.Called()
	return args.Get(0).(StatusCode)
}

func (m *MockPort) IsOpen() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockPort) Read() StatusCode {
	args := m.Called()
	return args.Get(0).(StatusCode)
}

func (m *MockPort) Write() StatusCode {
	args := m.Called()
	return args.Get(0).(StatusCode)
}

func (m *MockPort) ReadBuffer() (byte, byte, []byte, StatusCode) {
	args := m.Called()
	body, _ := args.Get(2).([]byte)
	return args.Get(0).(byte), args.Get(1).(byte), body, args.Get(3).(StatusCode)
}

func (m *MockPort) ReadBufferData() []byte {
	args := m.Called()
	data, _ := args.Get(0).([]byte)
	return data
}

func (m *MockPort) WriteBuffer(unit byte, function byte, body []byte) StatusCode {
	args := m.Called(unit, function, body)
	return args.Get(0).(StatusCode)
}

func (m *MockPort) WriteBufferData() []byte {
	args := m.Called()
	data, _ := args.Get(0).([]byte)
	return data
}

func (m *MockPort) SetServerMode(enable bool) {
	m.Called(enable)
}

func (m *MockPort) IsServerMode() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockPort) Type() ProtocolType {
	args := m.Called()
	return args.Get(0).(ProtocolType)
}

func (m *MockPort) LastErrorText() string {
	args := m.Called()
	return args.String(0)
}

// MockDevice is a testify mock of the Device contract.
type MockDevice struct {
	mock.Mock
}

var _ Device = (*MockDevice)(nil)

func NewMockDevice() *MockDevice {
	return &MockDevice{}
}

func (m *MockDevice) ReadCoils(unit byte, offset uint16, count uint16) ([]byte, StatusCode) {
	args := m.Called(unit, offset, count)
	values, _ := args.Get(0).([]byte)
	return values, args.Get(1).(StatusCode)
}

func (m *MockDevice) ReadDiscreteInputs(unit byte, offset uint16, count uint16) ([]byte, StatusCode) {
	args := m.Called(unit, offset, count)
	values, _ := args.Get(0).([]byte)
	return values, args.Get(1).(StatusCode)
}

func (m *MockDevice) ReadHoldingRegisters(unit byte, offset uint16, count uint16) ([]uint16, StatusCode) {
	args := m.Called(unit, offset, count)
	values, _ := args.Get(0).([]uint16)
	return values, args.Get(1).(StatusCode)
}

func (m *MockDevice) ReadInputRegisters(unit byte, offset uint16, count uint16) ([]uint16, StatusCode) {
	args := m.Called(unit, offset, count)
	values, _ := args.Get(0).([]uint16)
	return values, args.Get(1).(StatusCode)
}

func (m *MockDevice) WriteSingleCoil(unit byte, offset uint16, value bool) StatusCode {
	args := m.Called(unit, offset, value)
	return args.Get(0).(StatusCode)
}

func (m *MockDevice) WriteSingleRegister(unit byte, offset uint16, value uint16) StatusCode {
	args := m.Called(unit, offset, value)
	return args.Get(0).(StatusCode)
}

func (m *MockDevice) ReadExceptionStatus(unit byte) (byte, StatusCode) {
	args := m.Called(unit)
	return args.Get(0).(byte), args.Get(1).(StatusCode)
}

func (m *MockDevice) Diagnostics(unit byte, subfunc uint16, inData []byte) ([]byte, StatusCode) {
	args := m.Called(unit, subfunc, inData)
	outData, _ := args.Get(0).([]byte)
	return outData, args.Get(1).(StatusCode)
}

func (m *MockDevice) GetCommEventCounter(unit byte) (uint16, uint16, StatusCode) {
	args := m.Called(unit)
	return args.Get(0).(uint16), args.Get(1).(uint16), args.Get(2).(StatusCode)
}

func (m *MockDevice) GetCommEventLog(unit byte) (uint16, uint16, uint16, []byte, StatusCode) {
	args := m.Called(unit)
	events, _ := args.Get(3).([]byte)
	return args.Get(0).(uint16), args.Get(1).(uint16), args.Get(2).(uint16), events, args.Get(4).(StatusCode)
}

func (m *MockDevice) WriteMultipleCoils(unit byte, offset uint16, count uint16, values []byte) StatusCode {
	args := m.Called(unit, offset, count, values)
	return args.Get(0).(StatusCode)
}

func (m *MockDevice) WriteMultipleRegisters(unit byte, offset uint16, values []uint16) StatusCode {
	args := m.Called(unit, offset, values)
	return args.Get(0).(StatusCode)
}

func (m *MockDevice) ReportServerID(unit byte) ([]byte, StatusCode) {
	args := m.Called(unit)
	data, _ := args.Get(0).([]byte)
	return data, args.Get(1).(StatusCode)
}

func (m *MockDevice) MaskWriteRegister(unit byte, offset uint16, andMask uint16, orMask uint16) StatusCode {
	args := m.Called(unit, offset, andMask, orMask)
	return args.Get(0).(StatusCode)
}

func (m *MockDevice) ReadWriteMultipleRegisters(unit byte, readOffset uint16, readCount uint16, writeOffset uint16, writeValues []uint16) ([]uint16, StatusCode) {
	args := m.Called(unit, readOffset, readCount, writeOffset, writeValues)
	values, _ := args.Get(0).([]uint16)
	return values, args.Get(1).(StatusCode)
}

func (m *MockDevice) ReadFIFOQueue(unit byte, fifoAddr uint16) ([]uint16, StatusCode) {
	args := m.Called(unit, fifoAddr)
	values, _ := args.Get(0).([]uint16)
	return values, args.Get(1).(StatusCode)
}
