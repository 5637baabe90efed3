package modbus

import (
	"fmt"
	"io"
	"time"
)

// SerialTransport is the hardware Transport variant: it frames request
// PDUs onto a half-duplex serial channel and decodes the raw response
// bytes. The port only has to expose blocking Read/Write; framing,
// checksum, and echo validation all happen here.
type SerialTransport struct {
	port     io.ReadWriteCloser
	packager *RTUPackager
	timeout  time.Duration
	logger   io.Writer
}

// NewSerialTransport wraps an open serial port. timeout bounds one full
// request/response round trip. logger may be nil.
func NewSerialTransport(port io.ReadWriteCloser, timeout time.Duration, logger io.Writer) *SerialTransport {
	if timeout <= 0 {
		timeout = DefaultConfig().Timeout()
	}
	return &SerialTransport{
		port:     port,
		packager: NewRTUPackager(),
		timeout:  timeout,
		logger:   logger,
	}
}

// SetTimeout updates the round-trip timeout.
func (t *SerialTransport) SetTimeout(timeout time.Duration) {
	t.timeout = timeout
}

func (t *SerialTransport) logf(format string, args ...any) {
	if t.logger != nil {
		fmt.Fprintf(t.logger, format+"\n", args...)
	}
}

// send packs and writes one request frame.
func (t *SerialTransport) send(slaveID uint8, reqPDU []byte) error {
	frame, err := t.packager.Pack(slaveID, reqPDU)
	if err != nil {
		return err
	}
	t.logf("modbus rtu: request slave %d: % X", slaveID, frame)
	written := 0
	for written < len(frame) {
		n, err := t.port.Write(frame[written:])
		if err != nil {
			return fmt.Errorf("modbus: write failed after %d bytes: %w", written, err)
		}
		written += n
	}
	return nil
}

// receive reads one response frame of expectedLen bytes. An exception
// response arrives as a fixed 5-byte frame instead, recognized by the
// exception flag in the function code. No bytes within the timeout is a
// Timeout; a device that does not exist on the bus looks exactly the
// same from here.
func (t *SerialTransport) receive(expectedLen int) ([]byte, error) {
	type result struct {
		frame []byte
		err   error
	}
	done := make(chan result, 1)

	go func() {
		header := make([]byte, 2)
		if _, err := io.ReadFull(t.port, header); err != nil {
			done <- result{nil, err}
			return
		}
		rest := expectedLen - 2
		if header[1]&exceptionFlag != 0 {
			rest = 3 // exception code + CRC
		}
		frame := make([]byte, 2+rest)
		copy(frame, header)
		if _, err := io.ReadFull(t.port, frame[2:]); err != nil {
			done <- result{nil, err}
			return
		}
		done <- result{frame, nil}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, res.err)
		}
		return res.frame, nil
	case <-time.After(t.timeout):
		return nil, fmt.Errorf("%w: no response within %v", ErrTimeout, t.timeout)
	}
}

// exchange runs one full encode-send-receive-decode round trip and
// returns the response PDU. The response slave ID and function code must
// echo the request; a mismatch is a protocol error, never a silent
// substitution.
func (t *SerialTransport) exchange(slaveID uint8, reqPDU []byte, expectedFrameLen int) ([]byte, error) {
	if err := t.send(slaveID, reqPDU); err != nil {
		return nil, err
	}

	frame, err := t.receive(expectedFrameLen)
	if err != nil {
		t.logf("modbus rtu: receive failed (slave %d): %v", slaveID, err)
		return nil, err
	}

	respSlaveID, respPDU, err := t.packager.Unpack(frame)
	if err != nil {
		t.logf("modbus rtu: unpack failed (slave %d): %v", slaveID, err)
		return nil, err
	}
	if respSlaveID != slaveID {
		return nil, fmt.Errorf("%w: response slave ID %d, request slave ID %d",
			ErrInvalidFrame, respSlaveID, slaveID)
	}
	if err := checkResponsePDU(respPDU, reqPDU[0]); err != nil {
		return nil, err
	}
	t.logf("modbus rtu: response slave %d: % X", respSlaveID, respPDU)
	return respPDU, nil
}

func (t *SerialTransport) readBits(functionCode uint8, slaveID uint8, address, quantity uint16) ([]bool, error) {
	reqPDU := buildReadRequestPDU(functionCode, address, quantity)
	expected := 5 + (int(quantity)+7)/8 // slave + fc + byte count + data + CRC
	respPDU, err := t.exchange(slaveID, reqPDU, expected)
	if err != nil {
		return nil, err
	}
	return parseBitsResponse(respPDU, quantity)
}

func (t *SerialTransport) readWords(functionCode uint8, slaveID uint8, address, quantity uint16) ([]uint16, error) {
	reqPDU := buildReadRequestPDU(functionCode, address, quantity)
	expected := 5 + 2*int(quantity)
	respPDU, err := t.exchange(slaveID, reqPDU, expected)
	if err != nil {
		return nil, err
	}
	return parseRegistersResponse(respPDU, quantity)
}

// writeEcho sends a write request and validates the fixed echo response.
func (t *SerialTransport) writeEcho(slaveID uint8, reqPDU []byte, wantAddress, wantValue uint16) error {
	respPDU, err := t.exchange(slaveID, reqPDU, 8)
	if err != nil {
		return err
	}
	echoAddress, echoValue, err := parseWriteEchoResponse(respPDU)
	if err != nil {
		return err
	}
	if echoAddress != wantAddress {
		return fmt.Errorf("%w: echo address %d, expected %d", ErrInvalidFrame, echoAddress, wantAddress)
	}
	if echoValue != wantValue {
		return fmt.Errorf("%w: echo value 0x%04X, expected 0x%04X", ErrInvalidFrame, echoValue, wantValue)
	}
	return nil
}

func (t *SerialTransport) ReadCoils(slaveID uint8, address, quantity uint16) ([]bool, error) {
	return t.readBits(FuncCodeReadCoils, slaveID, address, quantity)
}

func (t *SerialTransport) ReadDiscreteInputs(slaveID uint8, address, quantity uint16) ([]bool, error) {
	return t.readBits(FuncCodeReadDiscreteInputs, slaveID, address, quantity)
}

func (t *SerialTransport) ReadHoldingRegisters(slaveID uint8, address, quantity uint16) ([]uint16, error) {
	return t.readWords(FuncCodeReadHoldingRegisters, slaveID, address, quantity)
}

func (t *SerialTransport) ReadInputRegisters(slaveID uint8, address, quantity uint16) ([]uint16, error) {
	return t.readWords(FuncCodeReadInputRegisters, slaveID, address, quantity)
}

func (t *SerialTransport) WriteSingleCoil(slaveID uint8, address uint16, value bool) error {
	wantValue := uint16(0x0000)
	if value {
		wantValue = 0xFF00
	}
	return t.writeEcho(slaveID, buildWriteSingleCoilPDU(address, value), address, wantValue)
}

func (t *SerialTransport) WriteSingleRegister(slaveID uint8, address, value uint16) error {
	return t.writeEcho(slaveID, buildWriteSingleRegisterPDU(address, value), address, value)
}

func (t *SerialTransport) WriteMultipleCoils(slaveID uint8, address uint16, values []bool) error {
	// Echo carries start address and quantity.
	return t.writeEcho(slaveID, buildWriteMultipleCoilsPDU(address, values), address, uint16(len(values)))
}

func (t *SerialTransport) WriteMultipleRegisters(slaveID uint8, address uint16, values []uint16) error {
	return t.writeEcho(slaveID, buildWriteMultipleRegistersPDU(address, values), address, uint16(len(values)))
}

// Close closes the underlying serial port.
func (t *SerialTransport) Close() error {
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	return err
}
