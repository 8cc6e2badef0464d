package server

import (
	"fmt"

	"github.com/McuMirror/ModbusLib/logger"
	"github.com/McuMirror/ModbusLib/modbus"
)

// Resource is the per-port server state machine. It exclusively owns its
// port and drives one connection through the request / device-dispatch /
// response cycle, synthesizing exception responses and emitting lifecycle
// signals along the way.
//
// Resource is passive: call Process repeatedly to make progress. With a
// blocking port one Process call completes a whole transaction; with a
// non-blocking port Process returns StatusProcessing between port steps.
type Resource struct {
	base

	port     modbus.Port
	state    resourceState
	cmdClose bool

	// In-flight transaction.
	unit      byte
	function  byte
	broadcast bool
	body      []byte

	respFunction byte
	respBody     []byte
	final        modbus.StatusCode
}

// NewResource creates a server state machine over the port, dispatching to
// the device. The port is switched into server mode and owned by the
// resource from now on.
func NewResource(port modbus.Port, device modbus.Device, opts ...Option) (*Resource, error) {
	r := &Resource{
		base: newBase("resource", device),
		port: port,
	}
	for _, opt := range opts {
		if err := opt.apply(&r.base); err != nil {
			return nil, err
		}
	}
	port.SetServerMode(true)
	return r, nil
}

// Port returns the owned port.
func (r *Resource) Port() modbus.Port { return r.port }

// Type returns the framing family of the owned port.
func (r *Resource) Type() modbus.ProtocolType { return r.port.Type() }

// IsTCPServer returns false; a Resource serves exactly one connection.
func (r *Resource) IsTCPServer() bool { return false }

// IsOpen reports whether the owned port is open.
func (r *Resource) IsOpen() bool { return r.port.IsOpen() }

// IsStateClosed reports whether the machine is in a terminal closed state.
func (r *Resource) IsStateClosed() bool {
	return r.state == stateClosed || r.state == stateTimeout
}

// Open requests the machine to (re)open its port on subsequent Process
// calls.
func (r *Resource) Open() modbus.StatusCode {
	r.cmdClose = false
	if r.IsStateClosed() {
		r.state = stateUnknown
	}
	return modbus.StatusGood
}

// Close requests the machine to close. The request is honored at the next
// state transition after the in-flight port step completes.
func (r *Resource) Close() modbus.StatusCode {
	r.cmdClose = true
	return modbus.StatusGood
}

// Process advances the state machine. It returns the terminal status of the
// last completed transaction, or StatusProcessing mid-flight.
func (r *Resource) Process() modbus.StatusCode {
	for {
		switch r.state {
		case stateUnknown, stateClosed:
			if r.cmdClose {
				return modbus.StatusGood
			}
			if r.port.IsOpen() {
				r.RaiseOpened(r.name)
				r.state = stateBeginRead
			} else {
				r.state = stateBeginOpen
			}

		case stateBeginOpen, stateWaitForOpen:
			if r.cmdClose {
				r.state = stateClosed
				return modbus.StatusGood
			}
			st := r.port.Open()
			switch {
			case st.IsProcessing():
				r.state = stateWaitForOpen
				return st
			case st.IsBad():
				r.setError(st, r.port.LastErrorText())
				r.RaiseError(r.name, st, r.lastErrorText)
				r.RaiseCompleted(r.name, st)
				r.state = stateClosed
				return r.setStatus(st)
			default:
				r.RaiseOpened(r.name)
				r.state = stateBeginRead
			}

		case stateOpened:
			r.state = stateBeginRead

		case stateBeginRead, stateRead:
			if r.cmdClose || !r.port.IsOpen() {
				return r.beginClose()
			}
			st := r.port.Read()
			switch {
			case st.IsProcessing():
				r.state = stateRead
				return st
			case st.IsBad():
				return r.raiseTransactionError(st, r.port.LastErrorText())
			}
			rxData := r.port.ReadBufferData()
			r.RaiseRx(r.name, rxData)
			r.logger.Debug("frame received", "object", r.name, "frame", logger.Frame(rxData))
			unit, function, body, rst := r.port.ReadBuffer()
			if rst.IsBad() {
				return r.raiseTransactionError(rst, r.port.LastErrorText())
			}
			if !r.IsUnitEnabled(unit) {
				r.logger.Debug("request for disabled unit skipped",
					"object", r.name, "unit", unit, "function", function)
				r.state = stateBeginRead
				continue
			}
			r.unit = unit
			r.function = function
			r.body = body
			r.broadcast = r.isBroadcast(unit)
			switch st := r.validateRequest(); {
			case st == modbus.StatusBadNotCorrectRequest:
				return r.raiseTransactionError(st,
					fmt.Sprintf("incorrect request for function %#02x", function))
			case st.IsBad():
				// Quantity bound violation or unsupported function: answer
				// with the exception without touching the device.
				r.setError(st, fmt.Sprintf("%s request rejected: %s",
					modbus.FunctionName(function), st))
				r.RaiseError(r.name, st, r.lastErrorText)
				r.respFunction, r.respBody = modbus.ExceptionPDU(function, st)
				r.final = st
				r.state = stateBeginWrite
			default:
				r.state = stateProcessDevice
			}

		case stateProcessDevice:
			st := r.processDevice()
			if st == modbus.StatusBadGatewayPathUnavailable {
				// Mimic a silent gateway: no response at all.
				r.state = stateBeginRead
				r.RaiseCompleted(r.name, modbus.StatusGood)
				return r.setStatus(modbus.StatusGood)
			}
			r.final = st
			if st.IsBad() {
				r.setError(st, fmt.Sprintf("%s device failure: %s",
					modbus.FunctionName(r.function), st))
				r.RaiseError(r.name, st, r.lastErrorText)
				r.respFunction, r.respBody = modbus.ExceptionPDU(r.function, st)
			}
			if r.broadcast {
				// Broadcast requests never get a response.
				r.state = stateBeginRead
				r.RaiseCompleted(r.name, st)
				return r.setStatus(st)
			}
			r.state = stateBeginWrite

		case stateBeginWrite:
			st := r.port.WriteBuffer(r.unit, r.respFunction, r.respBody)
			if st.IsBad() {
				return r.raiseTransactionError(st, r.port.LastErrorText())
			}
			r.state = stateWrite

		case stateWrite:
			st := r.port.Write()
			switch {
			case st.IsProcessing():
				return st
			case st.IsBad():
				return r.raiseTransactionError(st, r.port.LastErrorText())
			}
			txData := r.port.WriteBufferData()
			r.RaiseTx(r.name, txData)
			r.logger.Debug("frame sent", "object", r.name, "frame", logger.Frame(txData))
			r.state = stateBeginRead
			r.RaiseCompleted(r.name, r.final)
			return r.setStatus(r.final)

		case stateWaitForClose:
			return r.beginClose()

		case stateTimeout:
			r.state = stateClosed

		default:
			r.state = stateUnknown
		}
	}
}

// beginClose drives the port shutdown and emits the Closed signal once the
// port reports a terminal status.
func (r *Resource) beginClose() modbus.StatusCode {
	st := r.port.Close()
	if st.IsProcessing() {
		r.state = stateWaitForClose
		return st
	}
	r.state = stateClosed
	r.cmdClose = false
	r.RaiseClosed(r.name)
	r.RaiseCompleted(r.name, modbus.StatusGood)
	return r.setStatus(modbus.StatusGood)
}

// raiseTransactionError reports a failed transaction: Error then Completed,
// and the machine returns to reading the next request.
func (r *Resource) raiseTransactionError(status modbus.StatusCode, text string) modbus.StatusCode {
	r.setError(status, text)
	r.RaiseError(r.name, status, text)
	r.state = stateBeginRead
	r.RaiseCompleted(r.name, status)
	return r.setStatus(status)
}

// validateRequest runs the pre-dispatch checks of the inbound request:
// framing (size and byte-count consistency) first, quantity bounds second.
func (r *Resource) validateRequest() modbus.StatusCode {
	body := r.body
	switch r.function {
	case modbus.FuncReadCoils, modbus.FuncReadDiscreteInputs:
		_, _, st := modbus.DecodeReadRequest(body, modbus.MaxDiscrets)
		return st
	case modbus.FuncReadHoldingRegisters, modbus.FuncReadInputRegisters:
		_, _, st := modbus.DecodeReadRequest(body, modbus.MaxRegisters)
		return st
	case modbus.FuncWriteSingleCoil:
		_, _, st := modbus.DecodeWriteSingleCoilRequest(body)
		return st
	case modbus.FuncWriteSingleRegister:
		_, _, st := modbus.DecodeWriteSingleRegisterRequest(body)
		return st
	case modbus.FuncReadExceptionStatus, modbus.FuncGetCommEventCounter,
		modbus.FuncGetCommEventLog, modbus.FuncReportServerID:
		return modbus.DecodeEmptyRequest(body)
	case modbus.FuncDiagnostics:
		_, _, st := modbus.DecodeDiagnosticsRequest(body)
		return st
	case modbus.FuncWriteMultipleCoils:
		_, _, _, st := modbus.DecodeWriteMultipleCoilsRequest(body)
		return st
	case modbus.FuncWriteMultipleRegisters:
		_, _, st := modbus.DecodeWriteMultipleRegistersRequest(body)
		return st
	case modbus.FuncMaskWriteRegister:
		_, _, _, st := modbus.DecodeMaskWriteRegisterRequest(body)
		return st
	case modbus.FuncReadWriteMultipleRegisters:
		_, _, _, _, st := modbus.DecodeReadWriteMultipleRegistersRequest(body)
		return st
	case modbus.FuncReadFIFOQueue:
		_, st := modbus.DecodeReadFIFOQueueRequest(body)
		return st
	default:
		return modbus.StatusBadIllegalFunction
	}
}

// processDevice dispatches the validated request to the device and builds
// the success response. The returned status is the transaction outcome.
func (r *Resource) processDevice() modbus.StatusCode {
	r.respFunction = r.function
	body := r.body
	switch r.function {
	case modbus.FuncReadCoils:
		offset, count, _ := modbus.DecodeReadRequest(body, modbus.MaxDiscrets)
		values, st := r.device.ReadCoils(r.unit, offset, count)
		if !st.IsGood() {
			return st
		}
		r.respBody = modbus.EncodeBitsResponse(clampBytes(values, modbus.BitsByteCount(count)))

	case modbus.FuncReadDiscreteInputs:
		offset, count, _ := modbus.DecodeReadRequest(body, modbus.MaxDiscrets)
		values, st := r.device.ReadDiscreteInputs(r.unit, offset, count)
		if !st.IsGood() {
			return st
		}
		r.respBody = modbus.EncodeBitsResponse(clampBytes(values, modbus.BitsByteCount(count)))

	case modbus.FuncReadHoldingRegisters:
		offset, count, _ := modbus.DecodeReadRequest(body, modbus.MaxRegisters)
		values, st := r.device.ReadHoldingRegisters(r.unit, offset, count)
		if !st.IsGood() {
			return st
		}
		r.respBody = modbus.EncodeRegistersResponse(clampRegisters(values, int(count)))

	case modbus.FuncReadInputRegisters:
		offset, count, _ := modbus.DecodeReadRequest(body, modbus.MaxRegisters)
		values, st := r.device.ReadInputRegisters(r.unit, offset, count)
		if !st.IsGood() {
			return st
		}
		r.respBody = modbus.EncodeRegistersResponse(clampRegisters(values, int(count)))

	case modbus.FuncWriteSingleCoil:
		offset, value, _ := modbus.DecodeWriteSingleCoilRequest(body)
		if st := r.device.WriteSingleCoil(r.unit, offset, value); !st.IsGood() {
			return st
		}
		r.respBody = echo(body)

	case modbus.FuncWriteSingleRegister:
		offset, value, _ := modbus.DecodeWriteSingleRegisterRequest(body)
		if st := r.device.WriteSingleRegister(r.unit, offset, value); !st.IsGood() {
			return st
		}
		r.respBody = echo(body)

	case modbus.FuncReadExceptionStatus:
		status, st := r.device.ReadExceptionStatus(r.unit)
		if !st.IsGood() {
			return st
		}
		r.respBody = modbus.EncodeExceptionStatusResponse(status)

	case modbus.FuncDiagnostics:
		subfunc, inData, _ := modbus.DecodeDiagnosticsRequest(body)
		outData, st := r.device.Diagnostics(r.unit, subfunc, inData)
		if !st.IsGood() {
			return st
		}
		r.respBody = modbus.EncodeDiagnosticsRequest(subfunc, outData)

	case modbus.FuncGetCommEventCounter:
		status, count, st := r.device.GetCommEventCounter(r.unit)
		if !st.IsGood() {
			return st
		}
		r.respBody = modbus.EncodeCommEventCounterResponse(status, count)

	case modbus.FuncGetCommEventLog:
		status, eventCount, messageCount, events, st := r.device.GetCommEventLog(r.unit)
		if !st.IsGood() {
			return st
		}
		r.respBody = modbus.EncodeCommEventLogResponse(status, eventCount, messageCount, events)

	case modbus.FuncWriteMultipleCoils:
		offset, count, values, _ := modbus.DecodeWriteMultipleCoilsRequest(body)
		if st := r.device.WriteMultipleCoils(r.unit, offset, count, values); !st.IsGood() {
			return st
		}
		r.respBody = modbus.EncodeWriteMultipleResponse(offset, count)

	case modbus.FuncWriteMultipleRegisters:
		offset, values, _ := modbus.DecodeWriteMultipleRegistersRequest(body)
		if st := r.device.WriteMultipleRegisters(r.unit, offset, values); !st.IsGood() {
			return st
		}
		r.respBody = modbus.EncodeWriteMultipleResponse(offset, uint16(len(values)))

	case modbus.FuncReportServerID:
		data, st := r.device.ReportServerID(r.unit)
		if !st.IsGood() {
			return st
		}
		r.respBody = modbus.EncodeReportServerIDResponse(data)

	case modbus.FuncMaskWriteRegister:
		offset, andMask, orMask, _ := modbus.DecodeMaskWriteRegisterRequest(body)
		if st := r.device.MaskWriteRegister(r.unit, offset, andMask, orMask); !st.IsGood() {
			return st
		}
		r.respBody = echo(body)

	case modbus.FuncReadWriteMultipleRegisters:
		readOffset, readCount, writeOffset, writeValues, _ := modbus.DecodeReadWriteMultipleRegistersRequest(body)
		values, st := r.device.ReadWriteMultipleRegisters(r.unit, readOffset, readCount, writeOffset, writeValues)
		if !st.IsGood() {
			return st
		}
		r.respBody = modbus.EncodeRegistersResponse(clampRegisters(values, int(readCount)))

	case modbus.FuncReadFIFOQueue:
		fifoAddr, _ := modbus.DecodeReadFIFOQueueRequest(body)
		values, st := r.device.ReadFIFOQueue(r.unit, fifoAddr)
		if !st.IsGood() {
			return st
		}
		if len(values) > int(modbus.MaxFIFOCount) {
			values = values[:modbus.MaxFIFOCount]
		}
		r.respBody = modbus.EncodeReadFIFOQueueResponse(values)
	}
	return modbus.StatusGood
}

// clampBytes forces the device payload to exactly n bytes, padding with
// zeroes if the device returned less.
func clampBytes(values []byte, n int) []byte {
	if len(values) == n {
		return values
	}
	out := make([]byte, n)
	copy(out, values)
	return out
}

// clampRegisters forces the device payload to exactly n registers.
func clampRegisters(values []uint16, n int) []uint16 {
	if len(values) == n {
		return values
	}
	out := make([]uint16, n)
	copy(out, values)
	return out
}

func echo(body []byte) []byte {
	out := make([]byte, len(body))
	copy(out, body)
	return out
}
