package modbus

// Device is the application back-end a server dispatches decoded requests
// to. One method per supported function code; every method returns a
// StatusCode.
//
// Returning a standard exception status (e.g. StatusBadIllegalDataAddress)
// makes the server send the matching exception response. Any other Bad
// status is reported as ServerDeviceFailure. StatusBadGatewayPathUnavailable
// is special: the server sends no response at all.
//
// Bit values are packed little-endian within each byte: logical bit k maps
// to bit (k mod 8) of byte k/8. Register values are host-native; the codec
// owns the big-endian wire conversion.
type Device interface {
	ReadCoils(unit byte, offset uint16, count uint16) (values []byte, status StatusCode)
	ReadDiscreteInputs(unit byte, offset uint16, count uint16) (values []byte, status StatusCode)
	ReadHoldingRegisters(unit byte, offset uint16, count uint16) (values []uint16, status StatusCode)
	ReadInputRegisters(unit byte, offset uint16, count uint16) (values []uint16, status StatusCode)
	WriteSingleCoil(unit byte, offset uint16, value bool) StatusCode
	WriteSingleRegister(unit byte, offset uint16, value uint16) StatusCode
	ReadExceptionStatus(unit byte) (status byte, st StatusCode)
	Diagnostics(unit byte, subfunc uint16, inData []byte) (outData []byte, status StatusCode)
	GetCommEventCounter(unit byte) (status uint16, eventCount uint16, st StatusCode)
	GetCommEventLog(unit byte) (status uint16, eventCount uint16, messageCount uint16, events []byte, st StatusCode)
	WriteMultipleCoils(unit byte, offset uint16, count uint16, values []byte) StatusCode
	WriteMultipleRegisters(unit byte, offset uint16, values []uint16) StatusCode
	ReportServerID(unit byte) (data []byte, status StatusCode)
	MaskWriteRegister(unit byte, offset uint16, andMask uint16, orMask uint16) StatusCode
	ReadWriteMultipleRegisters(unit byte, readOffset uint16, readCount uint16, writeOffset uint16, writeValues []uint16) (readValues []uint16, status StatusCode)
	ReadFIFOQueue(unit byte, fifoAddr uint16) (values []uint16, status StatusCode)
}
