package modbus

import (
	"errors"
	"fmt"
)

// Failure kinds returned by the Engine, the Transport variants, and the
// DeviceRegistry. Callers match them with errors.Is; none of them is ever
// downgraded to a default value.
var (
	// ErrInvalidParameter marks malformed input caught before any bus I/O.
	ErrInvalidParameter = errors.New("modbus: invalid parameter")

	// ErrDeviceNotFound means the addressed slave does not exist on the bus.
	ErrDeviceNotFound = errors.New("modbus: device not found")

	// ErrTimeout means no valid response arrived within the bus timeout.
	ErrTimeout = errors.New("modbus: timeout")

	// ErrCRCMismatch means response bytes arrived but their checksum is
	// invalid; the payload is discarded.
	ErrCRCMismatch = errors.New("modbus: crc mismatch")

	// ErrUnsupportedFunction means the decoder cannot interpret the
	// function code in the response.
	ErrUnsupportedFunction = errors.New("modbus: unsupported function")

	// ErrWriteToReadOnly means a write targeted a read-only address space.
	ErrWriteToReadOnly = errors.New("modbus: write to read-only space")

	// ErrInvalidFrame means the response is too short or structurally
	// broken to be a Modbus RTU frame.
	ErrInvalidFrame = errors.New("modbus: invalid frame")
)

// ModbusError is a Modbus exception response returned by a slave device.
type ModbusError struct {
	FunctionCode  uint8 // original function code, exception flag stripped
	ExceptionCode uint8
}

func (e *ModbusError) Error() string {
	return fmt.Sprintf("modbus: exception response func %02X code 0x%02X - %s",
		e.FunctionCode, e.ExceptionCode, getExceptionMessage(e.ExceptionCode))
}

// getExceptionMessage returns a human-readable message for a Modbus exception code.
func getExceptionMessage(exceptionCode uint8) string {
	switch exceptionCode {
	case 0x01:
		return "Illegal function"
	case 0x02:
		return "Illegal data address"
	case 0x03:
		return "Illegal data value"
	case 0x04:
		return "Slave device failure"
	case 0x05:
		return "Acknowledge"
	case 0x06:
		return "Slave device busy"
	case 0x08:
		return "Memory parity error"
	case 0x0A:
		return "Gateway path unavailable"
	case 0x0B:
		return "Gateway target device failed to respond"
	default:
		return "Unknown exception code"
	}
}
