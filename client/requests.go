package client

import (
	"github.com/McuMirror/ModbusLib/modbus"
)

// Transaction helpers. Each encodes the request, claims the port and drives
// the transaction; results are valid only when the returned status is Good.
// Broadcast requests (unit 0 with broadcast enabled) return Good right
// after the request is sent and leave any outputs zero.

// ReadCoils reads count coils starting at offset. Values are packed, bit k
// of the result is coil offset+k.
func (p *Port) ReadCoils(unit byte, offset uint16, count uint16) ([]byte, modbus.StatusCode) {
	st := p.request(p, nil, unit, modbus.FuncReadCoils,
		modbus.EncodeReadRequest(offset, count), p.decodeBits(count))
	return p.bitsResult(st)
}

// ReadCoilsBools reads count coils as a bool slice.
func (p *Port) ReadCoilsBools(unit byte, offset uint16, count uint16) ([]bool, modbus.StatusCode) {
	values, st := p.ReadCoils(unit, offset, count)
	if !st.IsGood() || values == nil {
		return nil, st
	}
	return modbus.UnpackBits(values, count), st
}

// ReadDiscreteInputs reads count discrete inputs starting at offset.
func (p *Port) ReadDiscreteInputs(unit byte, offset uint16, count uint16) ([]byte, modbus.StatusCode) {
	st := p.request(p, nil, unit, modbus.FuncReadDiscreteInputs,
		modbus.EncodeReadRequest(offset, count), p.decodeBits(count))
	return p.bitsResult(st)
}

// ReadDiscreteInputsBools reads count discrete inputs as a bool slice.
func (p *Port) ReadDiscreteInputsBools(unit byte, offset uint16, count uint16) ([]bool, modbus.StatusCode) {
	values, st := p.ReadDiscreteInputs(unit, offset, count)
	if !st.IsGood() || values == nil {
		return nil, st
	}
	return modbus.UnpackBits(values, count), st
}

// ReadHoldingRegisters reads count holding registers starting at offset.
func (p *Port) ReadHoldingRegisters(unit byte, offset uint16, count uint16) ([]uint16, modbus.StatusCode) {
	st := p.request(p, nil, unit, modbus.FuncReadHoldingRegisters,
		modbus.EncodeReadRequest(offset, count), p.decodeRegisters(count))
	return p.registersResult(st)
}

// ReadInputRegisters reads count input registers starting at offset.
func (p *Port) ReadInputRegisters(unit byte, offset uint16, count uint16) ([]uint16, modbus.StatusCode) {
	st := p.request(p, nil, unit, modbus.FuncReadInputRegisters,
		modbus.EncodeReadRequest(offset, count), p.decodeRegisters(count))
	return p.registersResult(st)
}

// WriteSingleCoil writes one coil at offset.
func (p *Port) WriteSingleCoil(unit byte, offset uint16, value bool) modbus.StatusCode {
	return p.request(p, nil, unit, modbus.FuncWriteSingleCoil,
		modbus.EncodeWriteSingleCoilRequest(offset, value), p.decodeEcho())
}

// WriteSingleRegister writes one register at offset.
func (p *Port) WriteSingleRegister(unit byte, offset uint16, value uint16) modbus.StatusCode {
	return p.request(p, nil, unit, modbus.FuncWriteSingleRegister,
		modbus.EncodeWriteSingleRegisterRequest(offset, value), p.decodeEcho())
}

// ReadExceptionStatus reads the device's eight exception status bits.
func (p *Port) ReadExceptionStatus(unit byte) (byte, modbus.StatusCode) {
	st := p.request(p, nil, unit, modbus.FuncReadExceptionStatus, nil,
		func(body []byte) modbus.StatusCode {
			value, dst := modbus.DecodeExceptionStatusResponse(body)
			if dst.IsGood() {
				p.state.result = value
			}
			return dst
		})
	if !st.IsGood() {
		return 0, st
	}
	value, _ := p.state.result.(byte)
	return value, st
}

// Diagnostics exchanges one diagnostics sub-function with the device and
// returns the response data.
func (p *Port) Diagnostics(unit byte, subfunc uint16, data []byte) (uint16, []byte, modbus.StatusCode) {
	type diagResult struct {
		subfunc uint16
		data    []byte
	}
	st := p.request(p, nil, unit, modbus.FuncDiagnostics,
		modbus.EncodeDiagnosticsRequest(subfunc, data),
		func(body []byte) modbus.StatusCode {
			outSubfunc, outData, dst := modbus.DecodeDiagnosticsResponse(body)
			if dst.IsGood() {
				p.state.result = diagResult{outSubfunc, outData}
			}
			return dst
		})
	if !st.IsGood() {
		return 0, nil, st
	}
	result, _ := p.state.result.(diagResult)
	return result.subfunc, result.data, st
}

// GetCommEventCounter reads the device's status word and event counter.
func (p *Port) GetCommEventCounter(unit byte) (status uint16, eventCount uint16, st modbus.StatusCode) {
	st = p.request(p, nil, unit, modbus.FuncGetCommEventCounter, nil,
		func(body []byte) modbus.StatusCode {
			s, c, dst := modbus.DecodeCommEventCounterResponse(body)
			if dst.IsGood() {
				p.state.result = [2]uint16{s, c}
			}
			return dst
		})
	if !st.IsGood() {
		return 0, 0, st
	}
	result, _ := p.state.result.([2]uint16)
	return result[0], result[1], st
}

// GetCommEventLog reads the device's event log.
func (p *Port) GetCommEventLog(unit byte) (status uint16, eventCount uint16, messageCount uint16, events []byte, st modbus.StatusCode) {
	type logResult struct {
		status, eventCount, messageCount uint16
		events                           []byte
	}
	st = p.request(p, nil, unit, modbus.FuncGetCommEventLog, nil,
		func(body []byte) modbus.StatusCode {
			s, ec, mc, ev, dst := modbus.DecodeCommEventLogResponse(body)
			if dst.IsGood() {
				p.state.result = logResult{s, ec, mc, ev}
			}
			return dst
		})
	if !st.IsGood() {
		return 0, 0, 0, nil, st
	}
	result, _ := p.state.result.(logResult)
	return result.status, result.eventCount, result.messageCount, result.events, st
}

// WriteMultipleCoils writes count coils starting at offset from the packed
// values.
func (p *Port) WriteMultipleCoils(unit byte, offset uint16, count uint16, values []byte) modbus.StatusCode {
	return p.request(p, nil, unit, modbus.FuncWriteMultipleCoils,
		modbus.EncodeWriteMultipleCoilsRequest(offset, count, values),
		func(body []byte) modbus.StatusCode {
			return modbus.DecodeWriteMultipleResponse(body, offset, count)
		})
}

// WriteMultipleCoilsBools writes coils from a bool slice.
func (p *Port) WriteMultipleCoilsBools(unit byte, offset uint16, values []bool) modbus.StatusCode {
	return p.WriteMultipleCoils(unit, offset, uint16(len(values)), modbus.PackBits(values))
}

// WriteMultipleRegisters writes the registers starting at offset.
func (p *Port) WriteMultipleRegisters(unit byte, offset uint16, values []uint16) modbus.StatusCode {
	count := uint16(len(values))
	return p.request(p, nil, unit, modbus.FuncWriteMultipleRegisters,
		modbus.EncodeWriteMultipleRegistersRequest(offset, values),
		func(body []byte) modbus.StatusCode {
			return modbus.DecodeWriteMultipleResponse(body, offset, count)
		})
}

// ReportServerID reads the device identification data.
func (p *Port) ReportServerID(unit byte) ([]byte, modbus.StatusCode) {
	st := p.request(p, nil, unit, modbus.FuncReportServerID, nil,
		func(body []byte) modbus.StatusCode {
			data, dst := modbus.DecodeReportServerIDResponse(body)
			if dst.IsGood() {
				p.state.result = data
			}
			return dst
		})
	return p.bitsResult(st)
}

// MaskWriteRegister applies the AND and OR masks to the register at offset.
func (p *Port) MaskWriteRegister(unit byte, offset uint16, andMask uint16, orMask uint16) modbus.StatusCode {
	return p.request(p, nil, unit, modbus.FuncMaskWriteRegister,
		modbus.EncodeMaskWriteRegisterRequest(offset, andMask, orMask), p.decodeEcho())
}

// ReadWriteMultipleRegisters writes writeValues at writeOffset and reads
// readCount registers at readOffset in one transaction.
func (p *Port) ReadWriteMultipleRegisters(unit byte, readOffset uint16, readCount uint16,
	writeOffset uint16, writeValues []uint16,
) ([]uint16, modbus.StatusCode) {
	st := p.request(p, nil, unit, modbus.FuncReadWriteMultipleRegisters,
		modbus.EncodeReadWriteMultipleRegistersRequest(readOffset, readCount, writeOffset, writeValues),
		p.decodeRegisters(readCount))
	return p.registersResult(st)
}

// ReadFIFOQueue reads the FIFO queue at the given pointer address.
func (p *Port) ReadFIFOQueue(unit byte, fifoAddr uint16) ([]uint16, modbus.StatusCode) {
	st := p.request(p, nil, unit, modbus.FuncReadFIFOQueue,
		modbus.EncodeReadFIFOQueueRequest(fifoAddr),
		func(body []byte) modbus.StatusCode {
			values, dst := modbus.DecodeReadFIFOQueueResponse(body)
			if dst.IsGood() {
				p.state.result = values
			}
			return dst
		})
	return p.registersResult(st)
}

// --- shared decode closures and result extraction ---

func (p *Port) decodeBits(count uint16) func([]byte) modbus.StatusCode {
	return func(body []byte) modbus.StatusCode {
		values, dst := modbus.DecodeBitsResponse(body, count)
		if dst.IsGood() {
			p.state.result = values
		}
		return dst
	}
}

func (p *Port) decodeRegisters(count uint16) func([]byte) modbus.StatusCode {
	return func(body []byte) modbus.StatusCode {
		values, dst := modbus.DecodeRegistersResponse(body, count)
		if dst.IsGood() {
			p.state.result = values
		}
		return dst
	}
}

// decodeEcho checks that the response echoes the request body.
func (p *Port) decodeEcho() func([]byte) modbus.StatusCode {
	return func(body []byte) modbus.StatusCode {
		return modbus.DecodeEchoResponse(body, p.state.requestBody)
	}
}

func (p *Port) bitsResult(st modbus.StatusCode) ([]byte, modbus.StatusCode) {
	if !st.IsGood() {
		return nil, st
	}
	values, _ := p.state.result.([]byte)
	return values, st
}

func (p *Port) registersResult(st modbus.StatusCode) ([]uint16, modbus.StatusCode) {
	if !st.IsGood() {
		return nil, st
	}
	values, _ := p.state.result.([]uint16)
	return values, st
}
