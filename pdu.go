package modbus

import (
	"encoding/binary"
	"fmt"
)

// buildRequestPDU constructs a Modbus request PDU from a function code and
// its data payload.
func buildRequestPDU(functionCode uint8, data []byte) []byte {
	pdu := make([]byte, 1+len(data))
	pdu[0] = functionCode
	copy(pdu[1:], data)
	return pdu
}

// buildReadRequestPDU builds the PDU shared by function codes 0x01-0x04:
// start address and quantity, both big-endian.
func buildReadRequestPDU(functionCode uint8, address, quantity uint16) []byte {
	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data[0:2], address)
	binary.BigEndian.PutUint16(data[2:4], quantity)
	return buildRequestPDU(functionCode, data)
}

// buildWriteSingleCoilPDU builds a 0x05 PDU. The on-wire value is 0xFF00
// for true and 0x0000 for false.
func buildWriteSingleCoilPDU(address uint16, value bool) []byte {
	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data[0:2], address)
	if value {
		binary.BigEndian.PutUint16(data[2:4], 0xFF00)
	} else {
		binary.BigEndian.PutUint16(data[2:4], 0x0000)
	}
	return buildRequestPDU(FuncCodeWriteSingleCoil, data)
}

// buildWriteSingleRegisterPDU builds a 0x06 PDU.
func buildWriteSingleRegisterPDU(address, value uint16) []byte {
	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data[0:2], address)
	binary.BigEndian.PutUint16(data[2:4], value)
	return buildRequestPDU(FuncCodeWriteSingleRegister, data)
}

// buildWriteMultipleCoilsPDU builds a 0x0F PDU: start address, quantity,
// byte count, then the coil states packed LSB-first.
func buildWriteMultipleCoilsPDU(address uint16, values []bool) []byte {
	quantity := uint16(len(values))
	byteCount := (quantity + 7) / 8

	data := make([]byte, 5+byteCount)
	binary.BigEndian.PutUint16(data[0:2], address)
	binary.BigEndian.PutUint16(data[2:4], quantity)
	data[4] = byte(byteCount)

	for i := 0; i < int(quantity); i++ {
		if values[i] {
			data[5+i/8] |= 1 << (i % 8)
		}
	}
	return buildRequestPDU(FuncCodeWriteMultipleCoils, data)
}

// buildWriteMultipleRegistersPDU builds a 0x10 PDU: start address,
// quantity, byte count, then each value big-endian.
func buildWriteMultipleRegistersPDU(address uint16, values []uint16) []byte {
	quantity := uint16(len(values))
	byteCount := quantity * 2

	data := make([]byte, 5+byteCount)
	binary.BigEndian.PutUint16(data[0:2], address)
	binary.BigEndian.PutUint16(data[2:4], quantity)
	data[4] = byte(byteCount)

	for i, val := range values {
		binary.BigEndian.PutUint16(data[5+2*i:5+2*i+2], val)
	}
	return buildRequestPDU(FuncCodeWriteMultipleRegisters, data)
}

// checkResponsePDU validates a response PDU against the request function
// code. Exception responses are surfaced as *ModbusError; a function code
// that matches neither the request nor its exception form is a protocol
// error, never a silent substitution.
func checkResponsePDU(respPDU []byte, functionCode uint8) error {
	if len(respPDU) == 0 {
		return fmt.Errorf("%w: empty response PDU", ErrInvalidFrame)
	}
	if respPDU[0] == functionCode|exceptionFlag {
		exceptionCode := uint8(0)
		if len(respPDU) > 1 {
			exceptionCode = respPDU[1]
		}
		return &ModbusError{
			FunctionCode:  respPDU[0] & 0x7F,
			ExceptionCode: exceptionCode,
		}
	}
	if respPDU[0] != functionCode {
		return fmt.Errorf("%w: response func %02X, request func %02X",
			ErrUnsupportedFunction, respPDU[0], functionCode)
	}
	return nil
}

// parseBitsResponse unpacks the byte-count-prefixed, bit-packed payload of
// a 0x01/0x02 response. Bit i of the logical result is bit (i mod 8) of
// byte (i div 8), least-significant bit first; padding bits beyond the
// requested quantity are discarded.
func parseBitsResponse(respPDU []byte, quantity uint16) ([]bool, error) {
	if len(respPDU) < 2 {
		return nil, fmt.Errorf("%w: response PDU %d bytes, need at least 2", ErrInvalidFrame, len(respPDU))
	}
	byteCount := int(respPDU[1])
	if len(respPDU) != 2+byteCount {
		return nil, fmt.Errorf("%w: byte count %d, payload %d bytes", ErrInvalidFrame, byteCount, len(respPDU)-2)
	}
	if byteCount < (int(quantity)+7)/8 {
		return nil, fmt.Errorf("%w: byte count %d too small for %d bits", ErrInvalidFrame, byteCount, quantity)
	}

	data := respPDU[2:]
	bits := make([]bool, quantity)
	for i := 0; i < int(quantity); i++ {
		bits[i] = data[i/8]&(1<<(i%8)) != 0
	}
	return bits, nil
}

// parseRegistersResponse unpacks the byte-count-prefixed payload of a
// 0x03/0x04 response into big-endian 16-bit values.
func parseRegistersResponse(respPDU []byte, quantity uint16) ([]uint16, error) {
	if len(respPDU) < 2 {
		return nil, fmt.Errorf("%w: response PDU %d bytes, need at least 2", ErrInvalidFrame, len(respPDU))
	}
	byteCount := int(respPDU[1])
	if len(respPDU) != 2+byteCount {
		return nil, fmt.Errorf("%w: byte count %d, payload %d bytes", ErrInvalidFrame, byteCount, len(respPDU)-2)
	}
	if byteCount != int(quantity)*2 {
		return nil, fmt.Errorf("%w: byte count %d for %d registers", ErrInvalidFrame, byteCount, quantity)
	}

	data := respPDU[2:]
	registers := make([]uint16, quantity)
	for i := range registers {
		registers[i] = binary.BigEndian.Uint16(data[2*i : 2*i+2])
	}
	return registers, nil
}

// parseWriteEchoResponse validates the fixed 5-byte echo of a write
// response (0x05/0x06/0x0F/0x10) and returns its address and value fields.
func parseWriteEchoResponse(respPDU []byte) (address, value uint16, err error) {
	if len(respPDU) != 5 {
		return 0, 0, fmt.Errorf("%w: write echo %d bytes, expected 5", ErrInvalidFrame, len(respPDU))
	}
	address = binary.BigEndian.Uint16(respPDU[1:3])
	value = binary.BigEndian.Uint16(respPDU[3:5])
	return address, value, nil
}
