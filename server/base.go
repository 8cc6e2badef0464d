// Package server implements the device-side Modbus engines: the per-port
// Resource state machine that drives one connection through its
// read/dispatch/write cycle, and the TCPServer that accepts sockets and
// runs one Resource per connection.
//
// Both engines are passive: nothing happens until Process is called, and a
// Process call never blocks longer than the underlying port does. With a
// non-blocking port each call advances the machine until a port step
// reports it is still in progress, and then returns StatusProcessing.
package server

import (
	"errors"
	"time"

	"github.com/McuMirror/ModbusLib/logger"
	"github.com/McuMirror/ModbusLib/modbus"
)

// base carries the state shared by Resource and TCPServer: identity, unit
// acceptance settings, last-status bookkeeping and the signal fan-out.
type base struct {
	modbus.Events

	name             string
	device           modbus.Device
	broadcastEnabled bool
	unitMap          *modbus.UnitMap
	logger           logger.Logger

	lastStatus          modbus.StatusCode
	lastStatusTimestamp time.Time
	lastErrorStatus     modbus.StatusCode
	lastErrorText       string
}

func newBase(name string, device modbus.Device) base {
	return base{
		name:             name,
		device:           device,
		broadcastEnabled: true,
		logger:           logger.GetLogger(),
		lastStatus:       modbus.StatusUncertain,
		lastErrorStatus:  modbus.StatusUncertain,
	}
}

// ObjectName returns the name used as the source of emitted signals.
func (b *base) ObjectName() string { return b.name }

// SetObjectName sets the name used as the source of emitted signals.
func (b *base) SetObjectName(name string) { b.name = name }

// Device returns the application back-end requests are dispatched to.
func (b *base) Device() modbus.Device { return b.device }

// SetDevice replaces the application back-end.
func (b *base) SetDevice(device modbus.Device) { b.device = device }

// SetLogger sets the logger used for engine diagnostics.
func (b *base) SetLogger(l logger.Logger) { b.logger = l }

// IsBroadcastEnabled reports whether unit 0 is treated as broadcast.
func (b *base) IsBroadcastEnabled() bool { return b.broadcastEnabled }

// SetBroadcastEnabled enables or disables broadcast handling for unit 0.
func (b *base) SetBroadcastEnabled(enable bool) { b.broadcastEnabled = enable }

// UnitMap returns the accepted-unit bitset, or nil when all units are
// accepted.
func (b *base) UnitMap() *modbus.UnitMap { return b.unitMap }

// SetUnitMap replaces the accepted-unit bitset. The map is copied; nil
// means "accept all".
func (b *base) SetUnitMap(m *modbus.UnitMap) {
	if m == nil {
		b.unitMap = nil
		return
	}
	clone := *m
	b.unitMap = &clone
}

// UnitMapString returns the textual form of the unit map, empty when nil.
func (b *base) UnitMapString() string {
	if b.unitMap == nil {
		return ""
	}
	return b.unitMap.String()
}

// SetUnitMapString parses the textual range form and installs the map.
// An empty string clears the map; malformed input keeps the old map.
func (b *base) SetUnitMapString(s string) {
	if s == "" {
		b.unitMap = nil
		return
	}
	if m, ok := modbus.ParseUnitMap(s); ok {
		b.unitMap = m
	}
}

// IsUnitEnabled reports whether the server accepts requests for the unit.
// Broadcast is always accepted regardless of the map.
func (b *base) IsUnitEnabled(unit byte) bool {
	if b.unitMap == nil || b.isBroadcast(unit) {
		return true
	}
	return b.unitMap.Get(unit)
}

// SetUnitEnabled enables or disables one unit id, materializing an empty
// map on first use.
func (b *base) SetUnitEnabled(unit byte, enable bool) {
	if b.unitMap == nil {
		b.unitMap = &modbus.UnitMap{}
	}
	b.unitMap.Set(unit, enable)
}

// LastStatus returns the terminal status of the last completed transaction.
func (b *base) LastStatus() modbus.StatusCode { return b.lastStatus }

// LastStatusTimestamp returns the time the last status was recorded.
func (b *base) LastStatusTimestamp() time.Time { return b.lastStatusTimestamp }

// LastErrorStatus returns the status of the last error.
func (b *base) LastErrorStatus() modbus.StatusCode { return b.lastErrorStatus }

// LastErrorText returns a human readable description of the last error.
func (b *base) LastErrorText() string { return b.lastErrorText }

func (b *base) isBroadcast(unit byte) bool {
	return unit == 0 && b.broadcastEnabled
}

func (b *base) setStatus(status modbus.StatusCode) modbus.StatusCode {
	b.lastStatus = status
	b.lastStatusTimestamp = time.Now()
	return status
}

func (b *base) setError(status modbus.StatusCode, text string) modbus.StatusCode {
	b.lastErrorStatus = status
	b.lastErrorText = text
	return status
}

// Option configures a Resource or TCPServer at construction time.
type Option interface {
	apply(*base) error
}

type optFunc func(*base) error

func (f optFunc) apply(b *base) error { return f(b) }

// WithObjectName sets the signal source name.
func WithObjectName(name string) Option {
	return optFunc(func(b *base) error {
		b.name = name
		return nil
	})
}

// WithLogger sets the logger for the engine.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(b *base) error {
		if l == nil {
			return errors.New("server: logger must not be nil")
		}
		b.logger = l
		return nil
	})
}

// WithBroadcastEnabled enables or disables broadcast handling for unit 0.
// Enabled by default.
func WithBroadcastEnabled(enable bool) Option {
	return optFunc(func(b *base) error {
		b.broadcastEnabled = enable
		return nil
	})
}

// WithUnitMap installs an accepted-unit bitset in its textual range form.
func WithUnitMap(s string) Option {
	return optFunc(func(b *base) error {
		if s == "" {
			b.unitMap = nil
			return nil
		}
		m, ok := modbus.ParseUnitMap(s)
		if !ok {
			return errors.New("server: malformed unit map " + s)
		}
		b.unitMap = m
		return nil
	})
}
