// Package modbus implements the transport-independent core of the Modbus
// protocol engine: status codes, the function-code catalogue, the PDU
// request/response codec, the port and device contracts, unit maps and the
// lifecycle event fan-out shared by the server and client state machines.
package modbus

// Function codes supported by the engine.
const (
	FuncReadCoils                  byte = 0x01
	FuncReadDiscreteInputs         byte = 0x02
	FuncReadHoldingRegisters       byte = 0x03
	FuncReadInputRegisters         byte = 0x04
	FuncWriteSingleCoil            byte = 0x05
	FuncWriteSingleRegister        byte = 0x06
	FuncReadExceptionStatus        byte = 0x07
	FuncDiagnostics                byte = 0x08
	FuncGetCommEventCounter        byte = 0x0B
	FuncGetCommEventLog            byte = 0x0C
	FuncWriteMultipleCoils         byte = 0x0F
	FuncWriteMultipleRegisters     byte = 0x10
	FuncReportServerID             byte = 0x11
	FuncMaskWriteRegister          byte = 0x16
	FuncReadWriteMultipleRegisters byte = 0x17
	FuncReadFIFOQueue              byte = 0x18
)

// ExceptionBit marks a response PDU as an exception response when set on
// the function code byte.
const ExceptionBit byte = 0x80

// Quantity bounds for the bounded-quantity functions.
const (
	// MaxDiscrets is the maximum coil/discrete-input quantity of a single
	// read request (functions 0x01 and 0x02).
	MaxDiscrets uint16 = 2000

	// MaxRegisters is the maximum register quantity of a single read
	// request (functions 0x03 and 0x04).
	MaxRegisters uint16 = 125

	// MaxWriteDiscrets is the maximum coil quantity of a single
	// WriteMultipleCoils request (function 0x0F).
	MaxWriteDiscrets uint16 = 1968

	// MaxWriteRegisters is the maximum register quantity of a single
	// WriteMultipleRegisters request (function 0x10).
	MaxWriteRegisters uint16 = 123

	// MaxReadWriteReadRegisters and MaxReadWriteWriteRegisters bound the
	// two quantities of a ReadWriteMultipleRegisters request (function 0x17).
	MaxReadWriteReadRegisters  uint16 = 123
	MaxReadWriteWriteRegisters uint16 = 121

	// MaxFIFOCount is the maximum register count of a ReadFIFOQueue response.
	MaxFIFOCount uint16 = 31
)

// MaxPDUBodySize is the maximum size of the function-specific PDU body.
// The full PDU adds one function-code byte on top of it, for 253 bytes,
// so a maximum-size TCP ADU (7-byte MBAP header plus PDU) exactly fills a
// BufferCapacity frame buffer.
const MaxPDUBodySize = 252

// BufferCapacity is the minimum frame buffer capacity a Port must provide.
// It covers the largest PDU plus any per-transport envelope.
const BufferCapacity = 260

// StandardTCPPort is the IANA-assigned TCP port for Modbus.
const StandardTCPPort uint16 = 502

// ProtocolType tags the framing family a port implements.
type ProtocolType int

const (
	// ASC is the Modbus ASCII framing.
	ASC ProtocolType = iota
	// RTU is the Modbus RTU framing.
	RTU
	// TCP is the Modbus TCP (MBAP) framing.
	TCP
)

// String returns the conventional name of the protocol type.
func (t ProtocolType) String() string {
	switch t {
	case ASC:
		return "ASC"
	case RTU:
		return "RTU"
	case TCP:
		return "TCP"
	default:
		return "Unknown"
	}
}

// FunctionName returns the conventional name of a function code, with the
// exception bit masked off. Unknown codes format as an empty string.
func FunctionName(function byte) string {
	switch function &^ ExceptionBit {
	case FuncReadCoils:
		return "ReadCoils"
	case FuncReadDiscreteInputs:
		return "ReadDiscreteInputs"
	case FuncReadHoldingRegisters:
		return "ReadHoldingRegisters"
	case FuncReadInputRegisters:
		return "ReadInputRegisters"
	case FuncWriteSingleCoil:
		return "WriteSingleCoil"
	case FuncWriteSingleRegister:
		return "WriteSingleRegister"
	case FuncReadExceptionStatus:
		return "ReadExceptionStatus"
	case FuncDiagnostics:
		return "Diagnostics"
	case FuncGetCommEventCounter:
		return "GetCommEventCounter"
	case FuncGetCommEventLog:
		return "GetCommEventLog"
	case FuncWriteMultipleCoils:
		return "WriteMultipleCoils"
	case FuncWriteMultipleRegisters:
		return "WriteMultipleRegisters"
	case FuncReportServerID:
		return "ReportServerId"
	case FuncMaskWriteRegister:
		return "MaskWriteRegister"
	case FuncReadWriteMultipleRegisters:
		return "ReadWriteMultipleRegisters"
	case FuncReadFIFOQueue:
		return "ReadFIFOQueue"
	default:
		return ""
	}
}
