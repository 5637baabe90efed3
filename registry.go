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

import (
	"fmt"
	"math/rand"
	"sync"
)

// DeviceRegistry is the simulator backend: an owned table of slave
// devices keyed by slave ID. It is only ever reached through a
// SimulatedTransport driven by the Engine; it is never handed out for
// direct external mutation.
//
// Register reads may apply bounded jitter: the returned value is
// perturbed by at most jitterPercent of the device's declared nominal
// magnitude, drawn from the injected random source. The source is
// seedable so identical seeds reproduce identical read sequences. A nil
// source disables jitter entirely.
type DeviceRegistry struct {
	mu            sync.Mutex
	devices       map[uint8]*SlaveDevice
	rng           *rand.Rand
	jitterPercent float64
}

// NewDeviceRegistry creates an empty registry without jitter.
func NewDeviceRegistry() *DeviceRegistry {
	return &DeviceRegistry{
		devices: make(map[uint8]*SlaveDevice),
	}
}

// SetJitter enables read jitter drawn from rng. The perturbation bound
// for a device is percent * device.Nominal, saturated at the uint16
// range. Passing a nil rng disables jitter.
func (r *DeviceRegistry) SetJitter(rng *rand.Rand, percent float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rng = rng
	r.jitterPercent = percent
}

// AddDevice registers a device under its slave ID, replacing any previous
// device with the same ID.
func (r *DeviceRegistry) AddDevice(d *SlaveDevice) error {
	if d.SlaveID < MinSlaveID || d.SlaveID > MaxSlaveID {
		return fmt.Errorf("%w: slave ID %d (must be 1-247)", ErrInvalidParameter, d.SlaveID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices[d.SlaveID] = d
	return nil
}

// SlaveIDs returns the registered slave IDs in unspecified order.
func (r *DeviceRegistry) SlaveIDs() []uint8 {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]uint8, 0, len(r.devices))
	for id := range r.devices {
		ids = append(ids, id)
	}
	return ids
}

// Info returns diagnostic information for one device.
func (r *DeviceRegistry) Info(slaveID uint8) (DeviceInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[slaveID]
	if !ok {
		return DeviceInfo{}, fmt.Errorf("%w: slave %d", ErrDeviceNotFound, slaveID)
	}
	return d.Info(), nil
}

// ReadBits reads quantity bit values from a bit space starting at address.
func (r *DeviceRegistry) ReadBits(slaveID uint8, space RegisterSpace, address, quantity uint16) ([]bool, error) {
	if !space.Bits() {
		return nil, fmt.Errorf("%w: %s is not a bit space", ErrInvalidParameter, space)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[slaveID]
	if !ok {
		return nil, fmt.Errorf("%w: slave %d", ErrDeviceNotFound, slaveID)
	}
	bits := make([]bool, quantity)
	for i := range bits {
		bits[i] = d.bit(space, address+uint16(i))
	}
	return bits, nil
}

// ReadWords reads quantity register values from a word space starting at
// address, applying jitter when enabled for the device.
func (r *DeviceRegistry) ReadWords(slaveID uint8, space RegisterSpace, address, quantity uint16) ([]uint16, error) {
	if space.Bits() {
		return nil, fmt.Errorf("%w: %s is not a register space", ErrInvalidParameter, space)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[slaveID]
	if !ok {
		return nil, fmt.Errorf("%w: slave %d", ErrDeviceNotFound, slaveID)
	}
	words := make([]uint16, quantity)
	for i := range words {
		words[i] = r.perturb(d, d.word(space, address+uint16(i)))
	}
	return words, nil
}

// perturb applies the bounded jitter to a register value. Arithmetic that
// leaves the uint16 range saturates, it never wraps.
func (r *DeviceRegistry) perturb(d *SlaveDevice, value uint16) uint16 {
	if r.rng == nil || r.jitterPercent <= 0 || d.Nominal == 0 {
		return value
	}
	bound := int(r.jitterPercent * float64(d.Nominal))
	if bound <= 0 {
		return value
	}
	delta := r.rng.Intn(2*bound+1) - bound
	return clampUint16(int(value) + delta)
}

// WriteBit writes a single coil. Discrete inputs are read-only.
func (r *DeviceRegistry) WriteBit(slaveID uint8, space RegisterSpace, address uint16, value bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[slaveID]
	if !ok {
		return fmt.Errorf("%w: slave %d", ErrDeviceNotFound, slaveID)
	}
	if space.ReadOnly() {
		return fmt.Errorf("%w: %s", ErrWriteToReadOnly, space)
	}
	if space != SpaceCoils {
		return fmt.Errorf("%w: %s is not a bit space", ErrInvalidParameter, space)
	}
	d.coils[address] = value
	if d.OnWrite != nil {
		bit := uint16(0)
		if value {
			bit = 1
		}
		d.OnWrite(d, space, address, bit)
	}
	return nil
}

// WriteWords writes one or more holding registers. Input registers are
// read-only; the check happens before any mutation so a rejected write
// leaves every address untouched.
func (r *DeviceRegistry) WriteWords(slaveID uint8, space RegisterSpace, address uint16, values []uint16) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[slaveID]
	if !ok {
		return fmt.Errorf("%w: slave %d", ErrDeviceNotFound, slaveID)
	}
	if space.ReadOnly() {
		return fmt.Errorf("%w: %s", ErrWriteToReadOnly, space)
	}
	if space != SpaceHoldingRegisters {
		return fmt.Errorf("%w: %s is not a writable register space", ErrInvalidParameter, space)
	}
	for i, v := range values {
		d.holdingRegs[address+uint16(i)] = v
	}
	if d.OnWrite != nil {
		for i, v := range values {
			d.OnWrite(d, space, address+uint16(i), v)
		}
	}
	return nil
}

// clampUint16 saturates v to the uint16 range.
func clampUint16(v int) uint16 {
	if v < 0 {
		return 0
	}
	if v > 0xFFFF {
		return 0xFFFF
	}
	return uint16(v)
}
