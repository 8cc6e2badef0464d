package modbus

import "encoding/binary"

// This file is the request/response codec: the exact big-endian wire layout
// of every function-specific PDU body, with per-function size validation on
// the server side and response sanity checks on the client side.
//
// Validation ordering is part of the contract: size and byte-count
// consistency checks run first and fail with StatusBadNotCorrectRequest
// (a framing failure, no wire response), quantity bound checks run second
// and fail with StatusBadIllegalDataValue (a wire exception 0x03).

func putUint16(b []byte, v uint16) { binary.BigEndian.PutUint16(b, v) }

func getUint16(b []byte) uint16 { return binary.BigEndian.Uint16(b) }

// --- Read Coils / Discrete Inputs / Holding Registers / Input Registers ---

// EncodeReadRequest encodes the common read request body: offset and count.
func EncodeReadRequest(offset uint16, count uint16) []byte {
	body := make([]byte, 4)
	putUint16(body[0:], offset)
	putUint16(body[2:], count)
	return body
}

// DecodeReadRequest decodes and validates a read request body against the
// given quantity bound.
func DecodeReadRequest(body []byte, maxCount uint16) (offset uint16, count uint16, status StatusCode) {
	if len(body) != 4 {
		return 0, 0, StatusBadNotCorrectRequest
	}
	offset = getUint16(body[0:])
	count = getUint16(body[2:])
	if count == 0 || count > maxCount {
		return offset, count, StatusBadIllegalDataValue
	}
	return offset, count, StatusGood
}

// EncodeBitsResponse encodes a packed-bit read response: byte count then
// the packed bit payload.
func EncodeBitsResponse(values []byte) []byte {
	body := make([]byte, 1+len(values))
	body[0] = byte(len(values))
	copy(body[1:], values)
	return body
}

// DecodeBitsResponse decodes a packed-bit read response and checks the byte
// count against the requested quantity.
func DecodeBitsResponse(body []byte, count uint16) ([]byte, StatusCode) {
	bc := BitsByteCount(count)
	if len(body) != 1+bc || int(body[0]) != bc {
		return nil, StatusBadNotCorrectResponse
	}
	values := make([]byte, bc)
	copy(values, body[1:])
	return values, StatusGood
}

// EncodeRegistersResponse encodes a register read response: byte count then
// the registers in big-endian order.
func EncodeRegistersResponse(values []uint16) []byte {
	body := make([]byte, 1+2*len(values))
	body[0] = byte(2 * len(values))
	copy(body[1:], RegistersToBytes(values))
	return body
}

// DecodeRegistersResponse decodes a register read response and checks the
// byte count against the requested quantity.
func DecodeRegistersResponse(body []byte, count uint16) ([]uint16, StatusCode) {
	bc := 2 * int(count)
	if len(body) != 1+bc || int(body[0]) != bc {
		return nil, StatusBadNotCorrectResponse
	}
	return BytesToRegisters(body[1:]), StatusGood
}

// --- Write Single Coil / Register ---

// CoilOnValue is the wire encoding of an asserted coil in WriteSingleCoil.
const CoilOnValue uint16 = 0xFF00

// EncodeWriteSingleCoilRequest encodes offset and the 0xFF00/0x0000 value.
func EncodeWriteSingleCoilRequest(offset uint16, value bool) []byte {
	body := make([]byte, 4)
	putUint16(body[0:], offset)
	if value {
		putUint16(body[2:], CoilOnValue)
	}
	return body
}

// DecodeWriteSingleCoilRequest decodes a WriteSingleCoil request. Any value
// other than 0x0000 or 0xFF00 is a framing failure.
func DecodeWriteSingleCoilRequest(body []byte) (offset uint16, value bool, status StatusCode) {
	if len(body) != 4 {
		return 0, false, StatusBadNotCorrectRequest
	}
	offset = getUint16(body[0:])
	switch getUint16(body[2:]) {
	case 0x0000:
		return offset, false, StatusGood
	case CoilOnValue:
		return offset, true, StatusGood
	default:
		return offset, false, StatusBadNotCorrectRequest
	}
}

// EncodeWriteSingleRegisterRequest encodes offset and value.
func EncodeWriteSingleRegisterRequest(offset uint16, value uint16) []byte {
	body := make([]byte, 4)
	putUint16(body[0:], offset)
	putUint16(body[2:], value)
	return body
}

// DecodeWriteSingleRegisterRequest decodes a WriteSingleRegister request.
func DecodeWriteSingleRegisterRequest(body []byte) (offset uint16, value uint16, status StatusCode) {
	if len(body) != 4 {
		return 0, 0, StatusBadNotCorrectRequest
	}
	return getUint16(body[0:]), getUint16(body[2:]), StatusGood
}

// DecodeEchoResponse checks a response that must echo the request body
// byte-for-byte (WriteSingleCoil, WriteSingleRegister, MaskWriteRegister).
func DecodeEchoResponse(body []byte, request []byte) StatusCode {
	if len(body) != len(request) {
		return StatusBadNotCorrectResponse
	}
	for i := range body {
		if body[i] != request[i] {
			return StatusBadNotCorrectResponse
		}
	}
	return StatusGood
}

// --- Empty-body requests (0x07, 0x0B, 0x0C, 0x11) ---

// DecodeEmptyRequest validates a request whose body must be empty.
func DecodeEmptyRequest(body []byte) StatusCode {
	if len(body) != 0 {
		return StatusBadNotCorrectRequest
	}
	return StatusGood
}

// EncodeExceptionStatusResponse encodes the one-byte exception status.
func EncodeExceptionStatusResponse(status byte) []byte {
	return []byte{status}
}

// DecodeExceptionStatusResponse decodes a ReadExceptionStatus response.
func DecodeExceptionStatusResponse(body []byte) (byte, StatusCode) {
	if len(body) != 1 {
		return 0, StatusBadNotCorrectResponse
	}
	return body[0], StatusGood
}

// --- Diagnostics (0x08) ---

// EncodeDiagnosticsRequest encodes the sub-function and its data. The
// response shares the layout, so this encodes responses as well.
func EncodeDiagnosticsRequest(subfunc uint16, data []byte) []byte {
	body := make([]byte, 2+len(data))
	putUint16(body[0:], subfunc)
	copy(body[2:], data)
	return body
}

// DecodeDiagnosticsRequest decodes a Diagnostics request body.
func DecodeDiagnosticsRequest(body []byte) (subfunc uint16, data []byte, status StatusCode) {
	if len(body) < 2 {
		return 0, nil, StatusBadNotCorrectRequest
	}
	data = make([]byte, len(body)-2)
	copy(data, body[2:])
	return getUint16(body[0:]), data, StatusGood
}

// DecodeDiagnosticsResponse decodes a Diagnostics response body.
func DecodeDiagnosticsResponse(body []byte) (subfunc uint16, data []byte, status StatusCode) {
	subfunc, data, st := DecodeDiagnosticsRequest(body)
	if st.IsBad() {
		return 0, nil, StatusBadNotCorrectResponse
	}
	return subfunc, data, StatusGood
}

// --- Get Comm Event Counter (0x0B) / Get Comm Event Log (0x0C) ---

// EncodeCommEventCounterResponse encodes the status word and event count.
func EncodeCommEventCounterResponse(status uint16, eventCount uint16) []byte {
	body := make([]byte, 4)
	putUint16(body[0:], status)
	putUint16(body[2:], eventCount)
	return body
}

// DecodeCommEventCounterResponse decodes a GetCommEventCounter response.
func DecodeCommEventCounterResponse(body []byte) (status uint16, eventCount uint16, st StatusCode) {
	if len(body) != 4 {
		return 0, 0, StatusBadNotCorrectResponse
	}
	return getUint16(body[0:]), getUint16(body[2:]), StatusGood
}

// EncodeCommEventLogResponse encodes the event log: byte count covers the
// status word, both counters and the event bytes.
func EncodeCommEventLogResponse(status uint16, eventCount uint16, messageCount uint16, events []byte) []byte {
	body := make([]byte, 7+len(events))
	body[0] = byte(6 + len(events))
	putUint16(body[1:], status)
	putUint16(body[3:], eventCount)
	putUint16(body[5:], messageCount)
	copy(body[7:], events)
	return body
}

// DecodeCommEventLogResponse decodes a GetCommEventLog response.
func DecodeCommEventLogResponse(body []byte) (status uint16, eventCount uint16, messageCount uint16, events []byte, st StatusCode) {
	if len(body) < 7 || int(body[0]) != len(body)-1 {
		return 0, 0, 0, nil, StatusBadNotCorrectResponse
	}
	events = make([]byte, len(body)-7)
	copy(events, body[7:])
	return getUint16(body[1:]), getUint16(body[3:]), getUint16(body[5:]), events, StatusGood
}

// --- Write Multiple Coils (0x0F) / Registers (0x10) ---

// EncodeWriteMultipleCoilsRequest encodes offset, count, byte count and the
// packed coil payload.
func EncodeWriteMultipleCoilsRequest(offset uint16, count uint16, values []byte) []byte {
	bc := BitsByteCount(count)
	body := make([]byte, 5+bc)
	putUint16(body[0:], offset)
	putUint16(body[2:], count)
	body[4] = byte(bc)
	copy(body[5:], values)
	return body
}

// DecodeWriteMultipleCoilsRequest decodes and validates a WriteMultipleCoils
// request. Byte-count consistency fails before the quantity bound.
func DecodeWriteMultipleCoilsRequest(body []byte) (offset uint16, count uint16, values []byte, status StatusCode) {
	if len(body) < 5 {
		return 0, 0, nil, StatusBadNotCorrectRequest
	}
	offset = getUint16(body[0:])
	count = getUint16(body[2:])
	bc := int(body[4])
	if len(body) != 5+bc || bc != BitsByteCount(count) {
		return offset, count, nil, StatusBadNotCorrectRequest
	}
	if count == 0 || count > MaxWriteDiscrets {
		return offset, count, nil, StatusBadIllegalDataValue
	}
	values = make([]byte, bc)
	copy(values, body[5:])
	return offset, count, values, StatusGood
}

// EncodeWriteMultipleRegistersRequest encodes offset, count, byte count and
// the registers.
func EncodeWriteMultipleRegistersRequest(offset uint16, values []uint16) []byte {
	body := make([]byte, 5+2*len(values))
	putUint16(body[0:], offset)
	putUint16(body[2:], uint16(len(values)))
	body[4] = byte(2 * len(values))
	copy(body[5:], RegistersToBytes(values))
	return body
}

// DecodeWriteMultipleRegistersRequest decodes and validates a
// WriteMultipleRegisters request. Byte-count consistency fails before the
// quantity bound.
func DecodeWriteMultipleRegistersRequest(body []byte) (offset uint16, values []uint16, status StatusCode) {
	if len(body) < 5 {
		return 0, nil, StatusBadNotCorrectRequest
	}
	offset = getUint16(body[0:])
	count := getUint16(body[2:])
	bc := int(body[4])
	if len(body) != 5+bc || bc != 2*int(count) {
		return offset, nil, StatusBadNotCorrectRequest
	}
	if count == 0 || count > MaxWriteRegisters {
		return offset, nil, StatusBadIllegalDataValue
	}
	return offset, BytesToRegisters(body[5:]), StatusGood
}

// EncodeWriteMultipleResponse encodes the offset/count echo of a multiple
// write response.
func EncodeWriteMultipleResponse(offset uint16, count uint16) []byte {
	body := make([]byte, 4)
	putUint16(body[0:], offset)
	putUint16(body[2:], count)
	return body
}

// DecodeWriteMultipleResponse checks the offset/count echo of a multiple
// write response.
func DecodeWriteMultipleResponse(body []byte, offset uint16, count uint16) StatusCode {
	if len(body) != 4 || getUint16(body[0:]) != offset || getUint16(body[2:]) != count {
		return StatusBadNotCorrectResponse
	}
	return StatusGood
}

// --- Report Server Id (0x11) ---

// EncodeReportServerIDResponse encodes the byte count and server id data.
func EncodeReportServerIDResponse(data []byte) []byte {
	body := make([]byte, 1+len(data))
	body[0] = byte(len(data))
	copy(body[1:], data)
	return body
}

// DecodeReportServerIDResponse decodes a ReportServerId response.
func DecodeReportServerIDResponse(body []byte) ([]byte, StatusCode) {
	if len(body) < 1 || int(body[0]) != len(body)-1 {
		return nil, StatusBadNotCorrectResponse
	}
	data := make([]byte, len(body)-1)
	copy(data, body[1:])
	return data, StatusGood
}

// --- Mask Write Register (0x16) ---

// EncodeMaskWriteRegisterRequest encodes offset, AND mask and OR mask.
func EncodeMaskWriteRegisterRequest(offset uint16, andMask uint16, orMask uint16) []byte {
	body := make([]byte, 6)
	putUint16(body[0:], offset)
	putUint16(body[2:], andMask)
	putUint16(body[4:], orMask)
	return body
}

// DecodeMaskWriteRegisterRequest decodes a MaskWriteRegister request.
func DecodeMaskWriteRegisterRequest(body []byte) (offset uint16, andMask uint16, orMask uint16, status StatusCode) {
	if len(body) != 6 {
		return 0, 0, 0, StatusBadNotCorrectRequest
	}
	return getUint16(body[0:]), getUint16(body[2:]), getUint16(body[4:]), StatusGood
}

// --- Read/Write Multiple Registers (0x17) ---

// EncodeReadWriteMultipleRegistersRequest encodes the combined read window
// and write payload.
func EncodeReadWriteMultipleRegistersRequest(readOffset uint16, readCount uint16, writeOffset uint16, writeValues []uint16) []byte {
	body := make([]byte, 9+2*len(writeValues))
	putUint16(body[0:], readOffset)
	putUint16(body[2:], readCount)
	putUint16(body[4:], writeOffset)
	putUint16(body[6:], uint16(len(writeValues)))
	body[8] = byte(2 * len(writeValues))
	copy(body[9:], RegistersToBytes(writeValues))
	return body
}

// DecodeReadWriteMultipleRegistersRequest decodes and validates a
// ReadWriteMultipleRegisters request. Byte-count consistency fails before
// either quantity bound.
func DecodeReadWriteMultipleRegistersRequest(body []byte) (readOffset uint16, readCount uint16, writeOffset uint16, writeValues []uint16, status StatusCode) {
	if len(body) < 9 {
		return 0, 0, 0, nil, StatusBadNotCorrectRequest
	}
	readOffset = getUint16(body[0:])
	readCount = getUint16(body[2:])
	writeOffset = getUint16(body[4:])
	writeCount := getUint16(body[6:])
	bc := int(body[8])
	if len(body) != 9+bc || bc != 2*int(writeCount) {
		return readOffset, readCount, writeOffset, nil, StatusBadNotCorrectRequest
	}
	if readCount == 0 || readCount > MaxReadWriteReadRegisters ||
		writeCount == 0 || writeCount > MaxReadWriteWriteRegisters {
		return readOffset, readCount, writeOffset, nil, StatusBadIllegalDataValue
	}
	return readOffset, readCount, writeOffset, BytesToRegisters(body[9:]), StatusGood
}

// --- Read FIFO Queue (0x18) ---

// EncodeReadFIFOQueueRequest encodes the FIFO pointer address.
func EncodeReadFIFOQueueRequest(fifoAddr uint16) []byte {
	body := make([]byte, 2)
	putUint16(body, fifoAddr)
	return body
}

// DecodeReadFIFOQueueRequest decodes a ReadFIFOQueue request.
func DecodeReadFIFOQueueRequest(body []byte) (fifoAddr uint16, status StatusCode) {
	if len(body) != 2 {
		return 0, StatusBadNotCorrectRequest
	}
	return getUint16(body), StatusGood
}

// EncodeReadFIFOQueueResponse encodes the two-byte byte count, the FIFO
// count and the queued registers.
func EncodeReadFIFOQueueResponse(values []uint16) []byte {
	body := make([]byte, 4+2*len(values))
	putUint16(body[0:], uint16(2+2*len(values)))
	putUint16(body[2:], uint16(len(values)))
	copy(body[4:], RegistersToBytes(values))
	return body
}

// DecodeReadFIFOQueueResponse decodes a ReadFIFOQueue response.
func DecodeReadFIFOQueueResponse(body []byte) ([]uint16, StatusCode) {
	if len(body) < 4 {
		return nil, StatusBadNotCorrectResponse
	}
	bc := getUint16(body[0:])
	count := getUint16(body[2:])
	if int(bc) != len(body)-2 || bc != 2+2*count || count > MaxFIFOCount {
		return nil, StatusBadNotCorrectResponse
	}
	return BytesToRegisters(body[4:]), StatusGood
}

// --- Exception responses ---

// ExceptionPDU builds the wire exception response for a request function:
// the function with the exception bit set and a one-byte exception code.
func ExceptionPDU(function byte, status StatusCode) (fn byte, body []byte) {
	code := status.ExceptionCode()
	if code == 0 {
		// Non-exception device failures surface as ServerDeviceFailure.
		code = StatusBadServerDeviceFailure.ExceptionCode()
	}
	return function | ExceptionBit, []byte{code}
}
