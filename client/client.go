package client

import (
	"github.com/McuMirror/ModbusLib/modbus"
)

// Client is a logical Modbus client bound to one unit address, sharing a
// Port with any number of sibling clients. The back reference to the port
// is non-owning: the port outlives its clients.
//
// Each helper claims the shared port for the duration of one transaction;
// while another client owns the port the helper returns StatusProcessing
// without side effects, so callers poll until ownership rotates to them.
type Client struct {
	unit byte
	port *Port
}

// NewClient creates a client for the unit address over the shared port.
func NewClient(unit byte, port *Port) *Client {
	return &Client{unit: unit, port: port}
}

// Unit returns the unit address the client is bound to.
func (c *Client) Unit() byte { return c.unit }

// SetUnit rebinds the client to another unit address.
func (c *Client) SetUnit(unit byte) { c.unit = unit }

// Port returns the shared client port.
func (c *Client) Port() *Port { return c.port }

// IsCurrent reports whether this client owns the in-flight transaction.
func (c *Client) IsCurrent() bool { return c.port.CurrentClient() == c }

// LastStatus returns the port's last transaction status.
func (c *Client) LastStatus() modbus.StatusCode { return c.port.LastStatus() }

// LastErrorStatus returns the port's last error status.
func (c *Client) LastErrorStatus() modbus.StatusCode { return c.port.LastErrorStatus() }

// LastErrorText returns the port's last error text.
func (c *Client) LastErrorText() string { return c.port.LastErrorText() }

// ReadCoils reads count coils starting at offset.
func (c *Client) ReadCoils(offset uint16, count uint16) ([]byte, modbus.StatusCode) {
	st := c.port.request(c, c, c.unit, modbus.FuncReadCoils,
		modbus.EncodeReadRequest(offset, count), c.port.decodeBits(count))
	return c.port.bitsResult(st)
}

// ReadCoilsBools reads count coils as a bool slice.
func (c *Client) ReadCoilsBools(offset uint16, count uint16) ([]bool, modbus.StatusCode) {
	values, st := c.ReadCoils(offset, count)
	if !st.IsGood() || values == nil {
		return nil, st
	}
	return modbus.UnpackBits(values, count), st
}

// ReadDiscreteInputs reads count discrete inputs starting at offset.
func (c *Client) ReadDiscreteInputs(offset uint16, count uint16) ([]byte, modbus.StatusCode) {
	st := c.port.request(c, c, c.unit, modbus.FuncReadDiscreteInputs,
		modbus.EncodeReadRequest(offset, count), c.port.decodeBits(count))
	return c.port.bitsResult(st)
}

// ReadHoldingRegisters reads count holding registers starting at offset.
func (c *Client) ReadHoldingRegisters(offset uint16, count uint16) ([]uint16, modbus.StatusCode) {
	st := c.port.request(c, c, c.unit, modbus.FuncReadHoldingRegisters,
		modbus.EncodeReadRequest(offset, count), c.port.decodeRegisters(count))
	return c.port.registersResult(st)
}

// ReadInputRegisters reads count input registers starting at offset.
func (c *Client) ReadInputRegisters(offset uint16, count uint16) ([]uint16, modbus.StatusCode) {
	st := c.port.request(c, c, c.unit, modbus.FuncReadInputRegisters,
		modbus.EncodeReadRequest(offset, count), c.port.decodeRegisters(count))
	return c.port.registersResult(st)
}

// WriteSingleCoil writes one coil at offset.
func (c *Client) WriteSingleCoil(offset uint16, value bool) modbus.StatusCode {
	return c.port.request(c, c, c.unit, modbus.FuncWriteSingleCoil,
		modbus.EncodeWriteSingleCoilRequest(offset, value), c.port.decodeEcho())
}

// WriteSingleRegister writes one register at offset.
func (c *Client) WriteSingleRegister(offset uint16, value uint16) modbus.StatusCode {
	return c.port.request(c, c, c.unit, modbus.FuncWriteSingleRegister,
		modbus.EncodeWriteSingleRegisterRequest(offset, value), c.port.decodeEcho())
}

// WriteMultipleCoils writes count coils starting at offset from the packed
// values.
func (c *Client) WriteMultipleCoils(offset uint16, count uint16, values []byte) modbus.StatusCode {
	return c.port.request(c, c, c.unit, modbus.FuncWriteMultipleCoils,
		modbus.EncodeWriteMultipleCoilsRequest(offset, count, values),
		func(body []byte) modbus.StatusCode {
			return modbus.DecodeWriteMultipleResponse(body, offset, count)
		})
}

// WriteMultipleRegisters writes the registers starting at offset.
func (c *Client) WriteMultipleRegisters(offset uint16, values []uint16) modbus.StatusCode {
	count := uint16(len(values))
	return c.port.request(c, c, c.unit, modbus.FuncWriteMultipleRegisters,
		modbus.EncodeWriteMultipleRegistersRequest(offset, values),
		func(body []byte) modbus.StatusCode {
			return modbus.DecodeWriteMultipleResponse(body, offset, count)
		})
}

// MaskWriteRegister applies the AND and OR masks to the register at offset.
func (c *Client) MaskWriteRegister(offset uint16, andMask uint16, orMask uint16) modbus.StatusCode {
	return c.port.request(c, c, c.unit, modbus.FuncMaskWriteRegister,
		modbus.EncodeMaskWriteRegisterRequest(offset, andMask, orMask), c.port.decodeEcho())
}

// ReadWriteMultipleRegisters writes writeValues at writeOffset and reads
// readCount registers at readOffset in one transaction.
func (c *Client) ReadWriteMultipleRegisters(readOffset uint16, readCount uint16,
	writeOffset uint16, writeValues []uint16,
) ([]uint16, modbus.StatusCode) {
	st := c.port.request(c, c, c.unit, modbus.FuncReadWriteMultipleRegisters,
		modbus.EncodeReadWriteMultipleRegistersRequest(readOffset, readCount, writeOffset, writeValues),
		c.port.decodeRegisters(readCount))
	return c.port.registersResult(st)
}

// ReadFIFOQueue reads the FIFO queue at the given pointer address.
func (c *Client) ReadFIFOQueue(fifoAddr uint16) ([]uint16, modbus.StatusCode) {
	st := c.port.request(c, c, c.unit, modbus.FuncReadFIFOQueue,
		modbus.EncodeReadFIFOQueueRequest(fifoAddr),
		func(body []byte) modbus.StatusCode {
			values, dst := modbus.DecodeReadFIFOQueueResponse(body)
			if dst.IsGood() {
				c.port.state.result = values
			}
			return dst
		})
	return c.port.registersResult(st)
}

// ReadExceptionStatus reads the device's eight exception status bits.
func (c *Client) ReadExceptionStatus() (byte, modbus.StatusCode) {
	st := c.port.request(c, c, c.unit, modbus.FuncReadExceptionStatus, nil,
		func(body []byte) modbus.StatusCode {
			value, dst := modbus.DecodeExceptionStatusResponse(body)
			if dst.IsGood() {
				c.port.state.result = value
			}
			return dst
		})
	if !st.IsGood() {
		return 0, st
	}
	value, _ := c.port.state.result.(byte)
	return value, st
}

// Diagnostics exchanges one diagnostics sub-function with the device.
func (c *Client) Diagnostics(subfunc uint16, data []byte) (uint16, []byte, modbus.StatusCode) {
	type diagResult struct {
		subfunc uint16
		data    []byte
	}
	st := c.port.request(c, c, c.unit, modbus.FuncDiagnostics,
		modbus.EncodeDiagnosticsRequest(subfunc, data),
		func(body []byte) modbus.StatusCode {
			outSubfunc, outData, dst := modbus.DecodeDiagnosticsResponse(body)
			if dst.IsGood() {
				c.port.state.result = diagResult{outSubfunc, outData}
			}
			return dst
		})
	if !st.IsGood() {
		return 0, nil, st
	}
	result, _ := c.port.state.result.(diagResult)
	return result.subfunc, result.data, st
}

// GetCommEventCounter reads the device's status word and event counter.
func (c *Client) GetCommEventCounter() (status uint16, eventCount uint16, st modbus.StatusCode) {
	st = c.port.request(c, c, c.unit, modbus.FuncGetCommEventCounter, nil,
		func(body []byte) modbus.StatusCode {
			s, count, dst := modbus.DecodeCommEventCounterResponse(body)
			if dst.IsGood() {
				c.port.state.result = [2]uint16{s, count}
			}
			return dst
		})
	if !st.IsGood() {
		return 0, 0, st
	}
	result, _ := c.port.state.result.([2]uint16)
	return result[0], result[1], st
}

// GetCommEventLog reads the device's event log.
func (c *Client) GetCommEventLog() (status uint16, eventCount uint16, messageCount uint16, events []byte, st modbus.StatusCode) {
	type logResult struct {
		status, eventCount, messageCount uint16
		events                           []byte
	}
	st = c.port.request(c, c, c.unit, modbus.FuncGetCommEventLog, nil,
		func(body []byte) modbus.StatusCode {
			s, ec, mc, ev, dst := modbus.DecodeCommEventLogResponse(body)
			if dst.IsGood() {
				c.port.state.result = logResult{s, ec, mc, ev}
			}
			return dst
		})
	if !st.IsGood() {
		return 0, 0, 0, nil, st
	}
	result, _ := c.port.state.result.(logResult)
	return result.status, result.eventCount, result.messageCount, result.events, st
}

// ReportServerID reads the device identification data.
func (c *Client) ReportServerID() ([]byte, modbus.StatusCode) {
	st := c.port.request(c, c, c.unit, modbus.FuncReportServerID, nil,
		func(body []byte) modbus.StatusCode {
			data, dst := modbus.DecodeReportServerIDResponse(body)
			if dst.IsGood() {
				c.port.state.result = data
			}
			return dst
		})
	return c.port.bitsResult(st)
}
