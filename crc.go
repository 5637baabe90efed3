package modbus

// CRC16 calculates the Modbus CRC16 checksum over data.
// The accumulator starts at 0xFFFF; each byte is XOR-ed into the low
// bits, followed by eight shift/0xA001 rounds. The result is transmitted
// little-endian, low byte first, trailing the frame it protects.
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if (crc & 0x0001) != 0 {
				crc >>= 1
				crc ^= 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

// AppendCRC appends the CRC16 of data to data, low byte first.
func AppendCRC(data []byte) []byte {
	crc := CRC16(data)
	return append(data, byte(crc&0xFF), byte(crc>>8))
}
