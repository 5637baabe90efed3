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
)

// RTUPackager handles RTU frame packing/unpacking with CRC validation.
type RTUPackager struct {
	crcTable [256]uint16 // Pre-calculated CRC table for the hot path
}

// NewRTUPackager creates a new RTU packager with a pre-calculated CRC table.
func NewRTUPackager() *RTUPackager {
	p := &RTUPackager{}
	p.initCRCTable()
	return p
}

// initCRCTable initializes the CRC-16 lookup table (polynomial 0xA001).
func (p *RTUPackager) initCRCTable() {
	const polynomial = 0xA001

	for i := 0; i < 256; i++ {
		crc := uint16(i)
		for j := 0; j < 8; j++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ polynomial
			} else {
				crc >>= 1
			}
		}
		p.crcTable[i] = crc
	}
}

// calculateCRC calculates CRC-16 for data using the lookup table.
// Must agree with CRC16 for every input.
func (p *RTUPackager) calculateCRC(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		tableIndex := uint8(crc) ^ b
		crc = (crc >> 8) ^ p.crcTable[tableIndex]
	}
	return crc
}

// Pack creates an RTU frame: slave ID + PDU + CRC (little-endian).
func (p *RTUPackager) Pack(slaveID uint8, pdu []byte) ([]byte, error) {
	if slaveID < MinSlaveID || slaveID > MaxSlaveID {
		return nil, fmt.Errorf("%w: slave ID %d (must be 1-247)", ErrInvalidParameter, slaveID)
	}
	if len(pdu) == 0 {
		return nil, fmt.Errorf("%w: empty PDU", ErrInvalidParameter)
	}
	if len(pdu) > MaxPDULength {
		return nil, fmt.Errorf("%w: PDU too long: %d bytes (max %d)", ErrInvalidParameter, len(pdu), MaxPDULength)
	}

	frameLen := 1 + len(pdu) + 2
	frame := make([]byte, frameLen)
	frame[0] = slaveID
	copy(frame[1:], pdu)

	crc := p.calculateCRC(frame[:frameLen-2])
	frame[frameLen-2] = byte(crc & 0xFF)        // Low byte first
	frame[frameLen-1] = byte((crc >> 8) & 0xFF) // High byte second

	return frame, nil
}

// Unpack extracts slave ID and PDU from an RTU frame after validating the
// CRC. On a checksum mismatch the payload is never returned.
func (p *RTUPackager) Unpack(frame []byte) (uint8, []byte, error) {
	if len(frame) < minFrameLength {
		return 0, nil, fmt.Errorf("%w: %d bytes (minimum %d)", ErrInvalidFrame, len(frame), minFrameLength)
	}

	if !p.VerifyCRC(frame) {
		calculated, received := p.crcPair(frame)
		return 0, nil, fmt.Errorf("%w: calculated=0x%04X, received=0x%04X", ErrCRCMismatch, calculated, received)
	}

	slaveID := frame[0]
	pdu := make([]byte, len(frame)-3)
	copy(pdu, frame[1:len(frame)-2])

	return slaveID, pdu, nil
}

// VerifyCRC verifies the trailing CRC of an RTU frame.
func (p *RTUPackager) VerifyCRC(frame []byte) bool {
	if len(frame) < 4 {
		return false
	}
	calculated, received := p.crcPair(frame)
	return calculated == received
}

func (p *RTUPackager) crcPair(frame []byte) (calculated, received uint16) {
	dataLen := len(frame) - 2
	calculated = p.calculateCRC(frame[:dataLen])
	received = uint16(frame[dataLen]) | (uint16(frame[dataLen+1]) << 8)
	return
}

// CRCBytes returns the CRC of data as it would appear on the wire.
func (p *RTUPackager) CRCBytes(data []byte) []byte {
	crc := p.calculateCRC(data)
	return []byte{byte(crc & 0xFF), byte((crc >> 8) & 0xFF)}
}

// ValidateFrame performs structural validation of a received frame.
func (p *RTUPackager) ValidateFrame(frame []byte) error {
	if len(frame) < minFrameLength {
		return fmt.Errorf("%w: %d bytes (minimum %d)", ErrInvalidFrame, len(frame), minFrameLength)
	}
	if len(frame) > MaxPDULength+3 {
		return fmt.Errorf("%w: %d bytes (maximum %d)", ErrInvalidFrame, len(frame), MaxPDULength+3)
	}
	if frame[0] > MaxSlaveID {
		return fmt.Errorf("%w: slave ID %d", ErrInvalidFrame, frame[0])
	}
	if frame[1] == 0 {
		return fmt.Errorf("%w: function code 0", ErrInvalidFrame)
	}
	if !p.VerifyCRC(frame) {
		calculated, received := p.crcPair(frame)
		return fmt.Errorf("%w: calculated=0x%04X, received=0x%04X", ErrCRCMismatch, calculated, received)
	}
	return nil
}
