package modbus

// Handler types for the lifecycle events emitted by the server and client
// state machines. The source argument identifies the emitting object by
// name; for TCP server children it is derived from the peer address.
type (
	// OpenedHandler is invoked when a port has been opened.
	OpenedHandler func(source string)
	// ClosedHandler is invoked when a port has been closed.
	ClosedHandler func(source string)
	// TxHandler is invoked with the raw frame bytes after a successful write.
	TxHandler func(source string, data []byte)
	// RxHandler is invoked with the raw frame bytes after a successful read.
	RxHandler func(source string, data []byte)
	// ErrorHandler is invoked when an operation fails.
	ErrorHandler func(source string, status StatusCode, text string)
	// CompletedHandler is invoked exactly once per transaction, last.
	CompletedHandler func(source string, status StatusCode)
	// ConnectionHandler is invoked by the TCP server when a child connection
	// is accepted or dropped.
	ConnectionHandler func(source string)
)

// Events is the per-object signal fan-out. Delivery is synchronous on the
// emitting goroutine in subscription order; the engine is single-threaded
// by design, so subscription and emission must happen on the same
// goroutine. Handlers must not re-enter the emitting state machine's step
// function mid-signal; they may record state and issue follow-up calls
// after the step returns. Handlers of a shared client port may start a new
// transaction from a Completed signal: state is consistent by then.
type Events struct {
	opened    []OpenedHandler
	closed    []ClosedHandler
	tx        []TxHandler
	rx        []RxHandler
	errors    []ErrorHandler
	completed []CompletedHandler
}

// ConnectOpened subscribes to the Opened event.
func (e *Events) ConnectOpened(h OpenedHandler) { e.opened = append(e.opened, h) }

// ConnectClosed subscribes to the Closed event.
func (e *Events) ConnectClosed(h ClosedHandler) { e.closed = append(e.closed, h) }

// ConnectTx subscribes to the Tx event.
func (e *Events) ConnectTx(h TxHandler) { e.tx = append(e.tx, h) }

// ConnectRx subscribes to the Rx event.
func (e *Events) ConnectRx(h RxHandler) { e.rx = append(e.rx, h) }

// ConnectError subscribes to the Error event.
func (e *Events) ConnectError(h ErrorHandler) { e.errors = append(e.errors, h) }

// ConnectCompleted subscribes to the Completed event.
func (e *Events) ConnectCompleted(h CompletedHandler) { e.completed = append(e.completed, h) }

// RaiseOpened emits the Opened event. For state machine use.
func (e *Events) RaiseOpened(source string) {
	for _, h := range e.opened {
		h(source)
	}
}

// RaiseClosed emits the Closed event. For state machine use.
func (e *Events) RaiseClosed(source string) {
	for _, h := range e.closed {
		h(source)
	}
}

// RaiseTx emits the Tx event. For state machine use.
func (e *Events) RaiseTx(source string, data []byte) {
	for _, h := range e.tx {
		h(source, data)
	}
}

// RaiseRx emits the Rx event. For state machine use.
func (e *Events) RaiseRx(source string, data []byte) {
	for _, h := range e.rx {
		h(source, data)
	}
}

// RaiseError emits the Error event. For state machine use.
func (e *Events) RaiseError(source string, status StatusCode, text string) {
	for _, h := range e.errors {
		h(source, status, text)
	}
}

// RaiseCompleted emits the Completed event. For state machine use.
func (e *Events) RaiseCompleted(source string, status StatusCode) {
	for _, h := range e.completed {
		h(source, status)
	}
}
