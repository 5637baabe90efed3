// Copyright (C) 2025  wwhai
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License along
// with this program; if not, see <https://www.gnu.org/licenses/>.

package modbus

// Modbus function codes supported by this engine.
const (
	FuncCodeReadCoils              uint8 = 0x01
	FuncCodeReadDiscreteInputs     uint8 = 0x02
	FuncCodeReadHoldingRegisters   uint8 = 0x03
	FuncCodeReadInputRegisters     uint8 = 0x04
	FuncCodeWriteSingleCoil        uint8 = 0x05
	FuncCodeWriteSingleRegister    uint8 = 0x06
	FuncCodeWriteMultipleCoils     uint8 = 0x0F
	FuncCodeWriteMultipleRegisters uint8 = 0x10
)

// exceptionFlag is OR-ed into the function code of an exception response.
const exceptionFlag uint8 = 0x80

// Protocol limits per the Modbus application protocol.
const (
	MinSlaveID               uint8 = 1
	MaxSlaveID               uint8 = 247
	MaxBitQuantity                 = 2000 // read coils / discrete inputs
	MaxRegisterQuantity            = 125  // read holding / input registers
	MaxWriteCoilQuantity           = 1968 // write multiple coils
	MaxWriteRegisterQuantity       = 123  // write multiple registers
	MaxPDULength                   = 253
	minFrameLength                 = 5 // slave + function + 1 payload byte + CRC
)

// RegisterSpace identifies one of the four independent address spaces a
// slave device owns.
type RegisterSpace uint8

const (
	SpaceCoils RegisterSpace = iota
	SpaceDiscreteInputs
	SpaceHoldingRegisters
	SpaceInputRegisters
)

// ReadOnly reports whether writes to the space are rejected.
func (s RegisterSpace) ReadOnly() bool {
	return s == SpaceDiscreteInputs || s == SpaceInputRegisters
}

// Bits reports whether the space holds single-bit values.
func (s RegisterSpace) Bits() bool {
	return s == SpaceCoils || s == SpaceDiscreteInputs
}

func (s RegisterSpace) String() string {
	switch s {
	case SpaceCoils:
		return "coils"
	case SpaceDiscreteInputs:
		return "discrete_inputs"
	case SpaceHoldingRegisters:
		return "holding_registers"
	case SpaceInputRegisters:
		return "input_registers"
	default:
		return "unknown"
	}
}

// ExchangeState tracks one request/response exchange on the bus.
// AwaitingResponse is only ever entered while the bus lock is held.
type ExchangeState int32

const (
	StateIdle ExchangeState = iota
	StateAwaitingResponse
	StateComplete
	StateTimeout
	StateCRCMismatch
)

func (s ExchangeState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateAwaitingResponse:
		return "AwaitingResponse"
	case StateComplete:
		return "Complete"
	case StateTimeout:
		return "Timeout"
	case StateCRCMismatch:
		return "CrcMismatch"
	default:
		return "unknown"
	}
}

// Transport is the bus-side capability the Engine drives. The hardware
// variant frames requests onto a serial port; the simulated variant
// resolves them against a DeviceRegistry without byte-level framing.
// Implementations need not be safe for concurrent use: the Engine
// serializes access per bus.
type Transport interface {
	ReadCoils(slaveID uint8, address, quantity uint16) ([]bool, error)
	ReadDiscreteInputs(slaveID uint8, address, quantity uint16) ([]bool, error)
	ReadHoldingRegisters(slaveID uint8, address, quantity uint16) ([]uint16, error)
	ReadInputRegisters(slaveID uint8, address, quantity uint16) ([]uint16, error)
	WriteSingleCoil(slaveID uint8, address uint16, value bool) error
	WriteSingleRegister(slaveID uint8, address, value uint16) error
	WriteMultipleCoils(slaveID uint8, address uint16, values []bool) error
	WriteMultipleRegisters(slaveID uint8, address uint16, values []uint16) error
	Close() error
}
