package modbus

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

// Engine orchestrates Modbus operations on one bus: it validates
// parameters before any I/O, drives the Transport, maps failures to the
// typed error kinds, and serializes bus access.
//
// RS-485 is half-duplex, so only one exchange may be in flight per bus.
// Concurrent callers queue on the bus mutex; there is no pipelining and
// no reordering. The lock is released on every terminal outcome,
// including timeouts, so a stalled slave never wedges the bus. The
// Engine never retries internally; retry policy belongs to the caller.
type Engine struct {
	transport Transport
	logger    io.Writer

	mu    sync.Mutex // bus lock: one exchange in flight
	state atomic.Int32
}

// NewEngine creates an Engine over a Transport selected once at
// construction; the Engine never inspects which variant it got. A nil
// logger silences the engine.
func NewEngine(transport Transport, logger io.Writer) *Engine {
	e := &Engine{transport: transport, logger: logger}
	e.state.Store(int32(StateIdle))
	return e
}

// State returns the state of the most recent exchange. AwaitingResponse
// is only ever observed while another caller holds the bus.
func (e *Engine) State() ExchangeState {
	return ExchangeState(e.state.Load())
}

func (e *Engine) logf(format string, args ...any) {
	if e.logger != nil {
		fmt.Fprintf(e.logger, format+"\n", args...)
	}
}

// exchange runs op while holding the bus lock and records the terminal
// state of the round trip.
func (e *Engine) exchange(op func() error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state.Store(int32(StateAwaitingResponse))
	err := op()
	switch {
	case errors.Is(err, ErrTimeout) || errors.Is(err, ErrDeviceNotFound):
		e.state.Store(int32(StateTimeout))
	case errors.Is(err, ErrCRCMismatch):
		e.state.Store(int32(StateCRCMismatch))
	default:
		e.state.Store(int32(StateComplete))
	}
	return err
}

func validateSlaveID(slaveID uint8) error {
	if slaveID < MinSlaveID || slaveID > MaxSlaveID {
		return fmt.Errorf("%w: slave ID %d (must be 1-247)", ErrInvalidParameter, slaveID)
	}
	return nil
}

func validateQuantity(quantity uint16, max int, what string) error {
	if quantity < 1 || int(quantity) > max {
		return fmt.Errorf("%w: %s count %d (must be 1-%d)", ErrInvalidParameter, what, quantity, max)
	}
	return nil
}

// validateRange rejects runs that would wrap past the top of a 0-65535
// address space.
func validateRange(address, quantity uint16) error {
	if uint32(address)+uint32(quantity) > 0x10000 {
		return fmt.Errorf("%w: address %d + count %d exceeds address space", ErrInvalidParameter, address, quantity)
	}
	return nil
}

// ReadCoils reads quantity coil states starting at address.
func (e *Engine) ReadCoils(slaveID uint8, address, quantity uint16) ([]bool, error) {
	if err := validateSlaveID(slaveID); err != nil {
		return nil, err
	}
	if err := validateQuantity(quantity, MaxBitQuantity, "coil"); err != nil {
		return nil, err
	}
	if err := validateRange(address, quantity); err != nil {
		return nil, err
	}
	var bits []bool
	err := e.exchange(func() error {
		var err error
		bits, err = e.transport.ReadCoils(slaveID, address, quantity)
		return err
	})
	if err != nil {
		e.logf("modbus: read coils failed (slave %d, address %d): %v", slaveID, address, err)
		return nil, err
	}
	return bits, nil
}

// ReadDiscreteInputs reads quantity discrete input states starting at address.
func (e *Engine) ReadDiscreteInputs(slaveID uint8, address, quantity uint16) ([]bool, error) {
	if err := validateSlaveID(slaveID); err != nil {
		return nil, err
	}
	if err := validateQuantity(quantity, MaxBitQuantity, "discrete input"); err != nil {
		return nil, err
	}
	if err := validateRange(address, quantity); err != nil {
		return nil, err
	}
	var bits []bool
	err := e.exchange(func() error {
		var err error
		bits, err = e.transport.ReadDiscreteInputs(slaveID, address, quantity)
		return err
	})
	if err != nil {
		e.logf("modbus: read discrete inputs failed (slave %d, address %d): %v", slaveID, address, err)
		return nil, err
	}
	return bits, nil
}

// ReadHoldingRegisters reads quantity holding registers starting at address.
func (e *Engine) ReadHoldingRegisters(slaveID uint8, address, quantity uint16) ([]uint16, error) {
	if err := validateSlaveID(slaveID); err != nil {
		return nil, err
	}
	if err := validateQuantity(quantity, MaxRegisterQuantity, "register"); err != nil {
		return nil, err
	}
	if err := validateRange(address, quantity); err != nil {
		return nil, err
	}
	var words []uint16
	err := e.exchange(func() error {
		var err error
		words, err = e.transport.ReadHoldingRegisters(slaveID, address, quantity)
		return err
	})
	if err != nil {
		e.logf("modbus: read holding registers failed (slave %d, address %d): %v", slaveID, address, err)
		return nil, err
	}
	return words, nil
}

// ReadInputRegisters reads quantity input registers starting at address.
func (e *Engine) ReadInputRegisters(slaveID uint8, address, quantity uint16) ([]uint16, error) {
	if err := validateSlaveID(slaveID); err != nil {
		return nil, err
	}
	if err := validateQuantity(quantity, MaxRegisterQuantity, "register"); err != nil {
		return nil, err
	}
	if err := validateRange(address, quantity); err != nil {
		return nil, err
	}
	var words []uint16
	err := e.exchange(func() error {
		var err error
		words, err = e.transport.ReadInputRegisters(slaveID, address, quantity)
		return err
	})
	if err != nil {
		e.logf("modbus: read input registers failed (slave %d, address %d): %v", slaveID, address, err)
		return nil, err
	}
	return words, nil
}

// WriteSingleCoil writes one coil.
func (e *Engine) WriteSingleCoil(slaveID uint8, address uint16, value bool) error {
	if err := validateSlaveID(slaveID); err != nil {
		return err
	}
	err := e.exchange(func() error {
		return e.transport.WriteSingleCoil(slaveID, address, value)
	})
	if err != nil {
		e.logf("modbus: write single coil failed (slave %d, address %d, value %v): %v", slaveID, address, value, err)
	}
	return err
}

// WriteSingleRegister writes one holding register.
func (e *Engine) WriteSingleRegister(slaveID uint8, address, value uint16) error {
	if err := validateSlaveID(slaveID); err != nil {
		return err
	}
	err := e.exchange(func() error {
		return e.transport.WriteSingleRegister(slaveID, address, value)
	})
	if err != nil {
		e.logf("modbus: write single register failed (slave %d, address %d, value %d): %v", slaveID, address, value, err)
	}
	return err
}

// WriteMultipleCoils writes a run of coils starting at address.
func (e *Engine) WriteMultipleCoils(slaveID uint8, address uint16, values []bool) error {
	if err := validateSlaveID(slaveID); err != nil {
		return err
	}
	if len(values) < 1 || len(values) > MaxWriteCoilQuantity {
		return fmt.Errorf("%w: coil count %d (must be 1-%d)", ErrInvalidParameter, len(values), MaxWriteCoilQuantity)
	}
	if err := validateRange(address, uint16(len(values))); err != nil {
		return err
	}
	err := e.exchange(func() error {
		return e.transport.WriteMultipleCoils(slaveID, address, values)
	})
	if err != nil {
		e.logf("modbus: write multiple coils failed (slave %d, address %d, quantity %d): %v", slaveID, address, len(values), err)
	}
	return err
}

// WriteMultipleRegisters writes a run of holding registers starting at address.
func (e *Engine) WriteMultipleRegisters(slaveID uint8, address uint16, values []uint16) error {
	if err := validateSlaveID(slaveID); err != nil {
		return err
	}
	if len(values) < 1 || len(values) > MaxWriteRegisterQuantity {
		return fmt.Errorf("%w: register count %d (must be 1-%d)", ErrInvalidParameter, len(values), MaxWriteRegisterQuantity)
	}
	if err := validateRange(address, uint16(len(values))); err != nil {
		return err
	}
	err := e.exchange(func() error {
		return e.transport.WriteMultipleRegisters(slaveID, address, values)
	})
	if err != nil {
		e.logf("modbus: write multiple registers failed (slave %d, address %d, quantity %d): %v", slaveID, address, len(values), err)
	}
	return err
}

// Close shuts the transport down. Simulated device state is discarded
// with it; nothing is persisted.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.transport.Close()
}
