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

// WriteHook runs after a successful write to a device, letting a
// simulated device mirror plant behavior (a start coil raising a running
// status input, a setpoint dragging an actual-value register). It runs
// with the registry lock held and must only touch the device it is
// attached to.
type WriteHook func(d *SlaveDevice, space RegisterSpace, address uint16, value uint16)

// SlaveDevice is one simulated device on the bus. It owns four
// independent sparse address spaces; reads of unpopulated addresses yield
// the space default (false / 0) rather than failing.
type SlaveDevice struct {
	SlaveID uint8
	Name    string

	// Nominal is the device-declared nominal magnitude jitter bounds are
	// derived from. Zero disables jitter for the device.
	Nominal uint16

	OnWrite WriteHook

	coils          map[uint16]bool
	discreteInputs map[uint16]bool
	holdingRegs    map[uint16]uint16
	inputRegs      map[uint16]uint16
}

// NewSlaveDevice creates an empty device with the given slave ID and name.
func NewSlaveDevice(slaveID uint8, name string) *SlaveDevice {
	return &SlaveDevice{
		SlaveID:        slaveID,
		Name:           name,
		coils:          make(map[uint16]bool),
		discreteInputs: make(map[uint16]bool),
		holdingRegs:    make(map[uint16]uint16),
		inputRegs:      make(map[uint16]uint16),
	}
}

// PutCoil sets a coil value.
func (d *SlaveDevice) PutCoil(address uint16, value bool) {
	d.coils[address] = value
}

// PutDiscreteInput sets a discrete input value.
func (d *SlaveDevice) PutDiscreteInput(address uint16, value bool) {
	d.discreteInputs[address] = value
}

// PutHoldingReg sets a holding register value.
func (d *SlaveDevice) PutHoldingReg(address uint16, value uint16) {
	d.holdingRegs[address] = value
}

// PutInputReg sets an input register value.
func (d *SlaveDevice) PutInputReg(address uint16, value uint16) {
	d.inputRegs[address] = value
}

// bit returns the bit value at address in a bit space.
func (d *SlaveDevice) bit(space RegisterSpace, address uint16) bool {
	switch space {
	case SpaceCoils:
		return d.coils[address]
	case SpaceDiscreteInputs:
		return d.discreteInputs[address]
	}
	return false
}

// word returns the register value at address in a word space.
func (d *SlaveDevice) word(space RegisterSpace, address uint16) uint16 {
	switch space {
	case SpaceHoldingRegisters:
		return d.holdingRegs[address]
	case SpaceInputRegisters:
		return d.inputRegs[address]
	}
	return 0
}

// DeviceInfo summarizes a simulated device for diagnostics.
type DeviceInfo struct {
	SlaveID          uint8  `json:"slaveId"`
	Name             string `json:"name"`
	Coils            int    `json:"coils"`
	DiscreteInputs   int    `json:"discreteInputs"`
	HoldingRegisters int    `json:"holdingRegisters"`
	InputRegisters   int    `json:"inputRegisters"`
}

// Info returns the populated point counts per space.
func (d *SlaveDevice) Info() DeviceInfo {
	return DeviceInfo{
		SlaveID:          d.SlaveID,
		Name:             d.Name,
		Coils:            len(d.coils),
		DiscreteInputs:   len(d.discreteInputs),
		HoldingRegisters: len(d.holdingRegs),
		InputRegisters:   len(d.inputRegs),
	}
}
