package modbus

// Port is the duplex byte port abstraction the server and client state
// machines are built on. A port owns two frame buffers (inbound and
// outbound) of at least BufferCapacity bytes and frames PDUs according to
// its ProtocolType.
//
// Open, Close, Read and Write are step functions: in non-blocking mode each
// returns StatusProcessing while the operation is in progress and must be
// called again to make progress; in blocking mode they return only terminal
// statuses. While a step function has returned StatusProcessing the port
// retains buffer ownership: the caller must neither mutate buffers nor step
// the opposite direction until a terminal status is returned.
//
// Additional invariants every implementation promises:
//
//   - Once Read returns StatusGood the inbound buffer stays valid until the
//     next Read call.
//   - WriteBuffer must be called exactly once per outbound frame, before the
//     first Write step. The staged frame stays valid until the next
//     WriteBuffer call, so a completed Write may be stepped again to
//     retransmit the same frame.
//   - IsOpen may turn false asynchronously on link loss; state machines
//     detect it via a returned Bad status or a subsequent IsOpen poll.
type Port interface {
	// Open establishes the underlying link.
	Open() StatusCode
	// Close shuts the underlying link down.
	Close() StatusCode
	// IsOpen reports whether the link is currently usable.
	IsOpen() bool

	// Read attempts to complete one inbound frame into the read buffer.
	// It returns StatusGood when a full frame is available, StatusProcessing
	// while waiting, or a transport Bad status on failure.
	Read() StatusCode
	// Write drains the currently staged outbound frame.
	Write() StatusCode

	// ReadBuffer parses the completed inbound frame header and returns the
	// unit, function and PDU body. Valid only after Read returned StatusGood.
	// The body slice aliases the port's internal buffer.
	ReadBuffer() (unit byte, function byte, body []byte, status StatusCode)
	// ReadBufferData returns the raw bytes of the completed inbound frame,
	// for event reporting.
	ReadBufferData() []byte

	// WriteBuffer stages one outbound frame for the next Write.
	WriteBuffer(unit byte, function byte, body []byte) StatusCode
	// WriteBufferData returns the raw bytes of the staged outbound frame,
	// for event reporting.
	WriteBufferData() []byte

	// SetServerMode tells the port whether incoming frames carry server-mode
	// headers. Affects envelope handling, e.g. MBAP transaction IDs.
	SetServerMode(enable bool)
	// IsServerMode reports the current mode.
	IsServerMode() bool

	// Type returns the framing family of the port.
	Type() ProtocolType

	// LastErrorText returns a human readable description of the last
	// transport error, for event reporting.
	LastErrorText() string
}
