// Package client implements the host-side Modbus engine: a Port state
// machine that fairly shares one transport port among several logical
// clients, with at most one in-flight transaction per port, and the Client
// facade bound to a single unit address.
//
// Every transaction helper is a step function. With a blocking transport
// port a helper completes the whole transaction in one call; with a
// non-blocking port it returns StatusProcessing and must be called again
// with the same arguments until a terminal status comes back. Helper calls
// from anyone but the current transaction owner return StatusProcessing
// without touching the port.
package client

import (
	"errors"
	"fmt"
	"time"

	"github.com/McuMirror/ModbusLib/logger"
	"github.com/McuMirror/ModbusLib/modbus"
)

// clientState is the lifecycle state of the in-flight transaction.
type clientState int

const (
	stateIdle clientState = iota
	stateBeginOpen
	stateWaitForOpen
	stateBeginWrite
	stateWrite
	stateRead
)

func (s clientState) String() string {
	switch s {
	case stateIdle:
		return "Idle"
	case stateBeginOpen:
		return "BeginOpen"
	case stateWaitForOpen:
		return "WaitForOpen"
	case stateBeginWrite:
		return "BeginWrite"
	case stateWrite:
		return "Write"
	case stateRead:
		return "Read"
	default:
		return "Invalid"
	}
}

// Port drives transactions over one transport port shared by any number of
// logical clients. Ownership rotates round-robin: when the current owner's
// transaction terminates the slot is cleared and the next helper call from
// any caller claims it.
type Port struct {
	modbus.Events

	name             string
	port             modbus.Port
	logger           logger.Logger
	tries            int
	broadcastEnabled bool

	state transactionState

	lastStatus          modbus.StatusCode
	lastStatusTimestamp time.Time
	lastErrorStatus     modbus.StatusCode
	lastErrorText       string
}

// transactionState groups the in-flight transaction slots so a completed
// transaction can be reset in one assignment.
type transactionState struct {
	state         clientState
	owner         any
	currentClient *Client

	unit        byte
	function    byte
	requestBody []byte
	decode      func(body []byte) modbus.StatusCode
	broadcast   bool
	attempt     int
	result      any

	lastTries int
}

// NewPort creates a client port over the transport port. The transport is
// switched into client mode and owned by the created Port.
func NewPort(port modbus.Port, opts ...Option) (*Port, error) {
	p := &Port{
		name:             "client",
		port:             port,
		logger:           logger.GetLogger(),
		tries:            1,
		broadcastEnabled: true,
		lastStatus:       modbus.StatusUncertain,
		lastErrorStatus:  modbus.StatusUncertain,
	}
	for _, opt := range opts {
		if err := opt.apply(p); err != nil {
			return nil, err
		}
	}
	port.SetServerMode(false)
	return p, nil
}

// ObjectName returns the name used as the source of emitted signals.
func (p *Port) ObjectName() string { return p.name }

// SetObjectName sets the name used as the source of emitted signals.
func (p *Port) SetObjectName(name string) { p.name = name }

// Port returns the owned transport port.
func (p *Port) Port() modbus.Port { return p.port }

// SetPort replaces the transport port. Only allowed while no transaction is
// in flight.
func (p *Port) SetPort(port modbus.Port) error {
	if p.state.owner != nil {
		return errors.New("client: cannot replace the port mid-transaction")
	}
	p.port = port
	port.SetServerMode(false)
	return nil
}

// Type returns the framing family of the owned port.
func (p *Port) Type() modbus.ProtocolType { return p.port.Type() }

// IsOpen reports whether the owned port is open.
func (p *Port) IsOpen() bool { return p.port.IsOpen() }

// Close closes the transport port immediately and emits Closed if the port
// had been open.
func (p *Port) Close() modbus.StatusCode {
	wasOpen := p.port.IsOpen()
	st := p.port.Close()
	if wasOpen && !st.IsProcessing() {
		p.RaiseClosed(p.name)
	}
	return st
}

// Tries returns how many times a transaction is attempted before giving up.
func (p *Port) Tries() int { return p.tries }

// SetTries sets the attempt count. Values below one are coerced to one.
func (p *Port) SetTries(tries int) {
	if tries < 1 {
		tries = 1
	}
	p.tries = tries
}

// RepeatCount is a synonym of Tries.
func (p *Port) RepeatCount() int { return p.tries }

// SetRepeatCount is a synonym of SetTries.
func (p *Port) SetRepeatCount(count int) { p.SetTries(count) }

// LastTries returns the attempt count the last transaction used.
func (p *Port) LastTries() int { return p.state.lastTries }

// IsBroadcastEnabled reports whether unit 0 requests use the send-and-forget
// broadcast shortcut.
func (p *Port) IsBroadcastEnabled() bool { return p.broadcastEnabled }

// SetBroadcastEnabled enables or disables the broadcast shortcut.
func (p *Port) SetBroadcastEnabled(enable bool) { p.broadcastEnabled = enable }

// CurrentClient returns the client owning the in-flight transaction, or nil
// when the port is free or the transaction was issued port-level.
func (p *Port) CurrentClient() *Client { return p.state.currentClient }

// LastStatus returns the terminal status of the last completed transaction.
func (p *Port) LastStatus() modbus.StatusCode { return p.lastStatus }

// LastStatusTimestamp returns the time the last status was recorded.
func (p *Port) LastStatusTimestamp() time.Time { return p.lastStatusTimestamp }

// LastErrorStatus returns the status of the last error.
func (p *Port) LastErrorStatus() modbus.StatusCode { return p.lastErrorStatus }

// LastErrorText returns a human readable description of the last error.
func (p *Port) LastErrorText() string { return p.lastErrorText }

// SetLogger sets the logger used for engine diagnostics.
func (p *Port) SetLogger(l logger.Logger) { p.logger = l }

// request starts or continues a transaction on behalf of owner. A non-owner
// observes StatusProcessing until ownership rotates.
func (p *Port) request(owner any, client *Client, unit byte, function byte,
	body []byte, decode func([]byte) modbus.StatusCode,
) modbus.StatusCode {
	s := &p.state
	if s.owner != nil {
		if s.owner != owner {
			return modbus.StatusProcessing
		}
		// The owner polling a different operation than the one in flight is
		// another logical caller sharing the port-level token; let the
		// in-flight operation finish first.
		if unit != s.unit || function != s.function {
			return modbus.StatusProcessing
		}
	}
	if s.owner == nil {
		s.owner = owner
		s.currentClient = client
		s.unit = unit
		s.function = function
		s.requestBody = body
		s.decode = decode
		s.broadcast = unit == 0 && p.broadcastEnabled
		s.attempt = 1
		s.result = nil
		if p.port.IsOpen() {
			s.state = stateBeginWrite
		} else {
			s.state = stateBeginOpen
		}
		p.logger.Debug("transaction started", "object", p.name,
			"unit", unit, "function", modbus.FunctionName(function))
	}
	return p.process()
}

// process advances the in-flight transaction by as many steps as the port
// allows without blocking.
func (p *Port) process() modbus.StatusCode {
	s := &p.state
	for {
		switch s.state {
		case stateBeginOpen, stateWaitForOpen:
			st := p.port.Open()
			switch {
			case st.IsProcessing():
				s.state = stateWaitForOpen
				return st
			case st.IsBad():
				return p.completeError(st, p.port.LastErrorText())
			}
			if !p.port.IsOpen() {
				return p.completeError(modbus.StatusBadPortClosed, "port did not open")
			}
			p.RaiseOpened(p.name)
			s.state = stateBeginWrite

		case stateBeginWrite:
			st := p.port.WriteBuffer(s.unit, s.function, s.requestBody)
			if st.IsBad() {
				return p.completeError(st, p.port.LastErrorText())
			}
			s.state = stateWrite

		case stateWrite:
			st := p.port.Write()
			switch {
			case st.IsProcessing():
				return st
			case st.IsBad():
				return p.completeError(st, p.port.LastErrorText())
			}
			txData := p.port.WriteBufferData()
			p.RaiseTx(p.name, txData)
			p.logger.Debug("frame sent", "object", p.name, "frame", logger.Frame(txData))
			if s.broadcast {
				// Send-and-forget: a broadcast has no response to wait for.
				return p.completeGood()
			}
			s.state = stateRead

		case stateRead:
			st := p.port.Read()
			switch {
			case st.IsProcessing():
				return st
			case st.IsBad():
				if s.attempt < p.tries {
					// Restage the request and send it again.
					s.attempt++
					s.state = stateBeginWrite
					continue
				}
				return p.completeError(st, p.port.LastErrorText())
			}
			rxData := p.port.ReadBufferData()
			p.RaiseRx(p.name, rxData)
			p.logger.Debug("frame received", "object", p.name, "frame", logger.Frame(rxData))
			return p.processResponse()

		default:
			return p.completeError(modbus.StatusBad,
				fmt.Sprintf("invalid transaction state %v", s.state))
		}
	}
}

// processResponse validates and decodes the frame the port completed.
func (p *Port) processResponse() modbus.StatusCode {
	s := &p.state
	unit, function, body, st := p.port.ReadBuffer()
	if st.IsBad() {
		return p.completeError(st, p.port.LastErrorText())
	}
	if unit != s.unit {
		return p.completeError(modbus.StatusBadNotCorrectResponse,
			fmt.Sprintf("response unit %d does not match request unit %d", unit, s.unit))
	}
	if function == s.function|modbus.ExceptionBit {
		if len(body) != 1 {
			return p.completeError(modbus.StatusBadNotCorrectResponse,
				"malformed exception response")
		}
		est := modbus.StatusFromExceptionCode(body[0])
		return p.completeError(est,
			fmt.Sprintf("%s exception response: %s", modbus.FunctionName(s.function), est))
	}
	if function != s.function {
		return p.completeError(modbus.StatusBadNotCorrectResponse,
			fmt.Sprintf("response function %#02x does not match request %#02x", function, s.function))
	}
	if dst := s.decode(body); dst.IsBad() {
		return p.completeError(dst,
			fmt.Sprintf("%s response failed validation", modbus.FunctionName(s.function)))
	}
	return p.completeGood()
}

// completeGood finishes the transaction successfully. Ownership is released
// before Completed fires so a handler may start a follow-up transaction.
func (p *Port) completeGood() modbus.StatusCode {
	s := &p.state
	s.lastTries = s.attempt
	s.owner = nil
	s.currentClient = nil
	s.state = stateIdle
	p.setStatus(modbus.StatusGood)
	p.RaiseCompleted(p.name, modbus.StatusGood)
	p.checkLinkDown(modbus.StatusGood)
	return modbus.StatusGood
}

// completeError finishes the transaction with a failure: Error fires at the
// point of raise, Completed fires last.
func (p *Port) completeError(status modbus.StatusCode, text string) modbus.StatusCode {
	s := &p.state
	s.lastTries = s.attempt
	p.lastErrorStatus = status
	p.lastErrorText = text
	p.RaiseError(p.name, status, text)
	s.owner = nil
	s.currentClient = nil
	s.state = stateIdle
	p.setStatus(status)
	p.RaiseCompleted(p.name, status)
	p.checkLinkDown(status)
	return status
}

// checkLinkDown emits Closed when the link dropped out from under a
// completed transaction.
func (p *Port) checkLinkDown(status modbus.StatusCode) {
	if status == modbus.StatusBadPortClosed || p.port.IsOpen() {
		return
	}
	_ = p.port.Close()
	p.RaiseClosed(p.name)
}

func (p *Port) setStatus(status modbus.StatusCode) {
	p.lastStatus = status
	p.lastStatusTimestamp = time.Now()
}

// Option configures a Port at construction time.
type Option interface {
	apply(*Port) error
}

type optFunc func(*Port) error

func (f optFunc) apply(p *Port) error { return f(p) }

// WithObjectName sets the signal source name.
func WithObjectName(name string) Option {
	return optFunc(func(p *Port) error {
		p.name = name
		return nil
	})
}

// WithLogger sets the logger for the engine.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(p *Port) error {
		if l == nil {
			return errors.New("client: logger must not be nil")
		}
		p.logger = l
		return nil
	})
}

// WithTries sets how many times a transaction is attempted before giving
// up. Values below one are coerced to one.
func WithTries(tries int) Option {
	return optFunc(func(p *Port) error {
		if tries < 1 {
			tries = 1
		}
		p.tries = tries
		return nil
	})
}

// WithBroadcastEnabled enables or disables the unit-0 broadcast shortcut.
// Enabled by default.
func WithBroadcastEnabled(enable bool) Option {
	return optFunc(func(p *Port) error {
		p.broadcastEnabled = enable
		return nil
	})
}
