package modbus

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

// mockSerialPort replays a canned response frame and captures whatever
// the transport writes.
type mockSerialPort struct {
	response bytes.Buffer
	sent     bytes.Buffer
	closed   bool
}

func newMockSerialPort(response []byte) *mockSerialPort {
	p := &mockSerialPort{}
	p.response.Write(response)
	return p
}

func (p *mockSerialPort) Read(b []byte) (int, error)  { return p.response.Read(b) }
func (p *mockSerialPort) Write(b []byte) (int, error) { return p.sent.Write(b) }
func (p *mockSerialPort) Close() error                { p.closed = true; return nil }

// blockingPort never delivers a byte; Read parks until the test ends.
type blockingPort struct {
	unblock chan struct{}
}

func (p *blockingPort) Read(b []byte) (int, error)  { <-p.unblock; return 0, nil }
func (p *blockingPort) Write(b []byte) (int, error) { return len(b), nil }
func (p *blockingPort) Close() error                { return nil }

func TestSerialTransportReadCoils(t *testing.T) {
	port := newMockSerialPort([]byte{0x01, 0x01, 0x01, 0x05, 0x91, 0x8B})
	tr := NewSerialTransport(port, time.Second, nil)

	bits, err := tr.ReadCoils(1, 0, 3)
	if err != nil {
		t.Fatalf("ReadCoils failed: %v", err)
	}
	assertBoolEqual(t, []bool{true, false, true}, bits)
	assertBytesEqual(t, []byte{0x01, 0x01, 0x00, 0x00, 0x00, 0x03, 0x7C, 0x0B}, port.sent.Bytes())
}

func TestSerialTransportReadDiscreteInputs(t *testing.T) {
	port := newMockSerialPort([]byte{0x01, 0x02, 0x01, 0x03, 0xE1, 0x89})
	tr := NewSerialTransport(port, time.Second, nil)

	bits, err := tr.ReadDiscreteInputs(1, 0, 2)
	if err != nil {
		t.Fatalf("ReadDiscreteInputs failed: %v", err)
	}
	assertBoolEqual(t, []bool{true, true}, bits)
}

func TestSerialTransportReadHoldingRegisters(t *testing.T) {
	port := newMockSerialPort([]byte{0x01, 0x03, 0x02, 0x00, 0xFA, 0x38, 0x07})
	tr := NewSerialTransport(port, time.Second, nil)

	words, err := tr.ReadHoldingRegisters(1, 0, 1)
	if err != nil {
		t.Fatalf("ReadHoldingRegisters failed: %v", err)
	}
	assertUint16Equal(t, []uint16{250}, words)
	assertBytesEqual(t, []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01, 0x84, 0x0A}, port.sent.Bytes())
}

func TestSerialTransportReadInputRegisters(t *testing.T) {
	port := newMockSerialPort([]byte{0x01, 0x04, 0x02, 0x03, 0xF5, 0x79, 0x87})
	tr := NewSerialTransport(port, time.Second, nil)

	words, err := tr.ReadInputRegisters(1, 0, 1)
	if err != nil {
		t.Fatalf("ReadInputRegisters failed: %v", err)
	}
	assertUint16Equal(t, []uint16{1013}, words)
}

func TestSerialTransportWriteSingleCoil(t *testing.T) {
	// The slave echoes the request frame byte for byte.
	echo := []byte{0x01, 0x05, 0x00, 0x0A, 0xFF, 0x00, 0xAC, 0x38}
	port := newMockSerialPort(echo)
	tr := NewSerialTransport(port, time.Second, nil)

	if err := tr.WriteSingleCoil(1, 10, true); err != nil {
		t.Fatalf("WriteSingleCoil failed: %v", err)
	}
	assertBytesEqual(t, echo, port.sent.Bytes())
}

func TestSerialTransportWriteSingleRegister(t *testing.T) {
	echo := []byte{0x01, 0x06, 0x00, 0x05, 0x01, 0x00, 0x98, 0x5B}
	port := newMockSerialPort(echo)
	tr := NewSerialTransport(port, time.Second, nil)

	if err := tr.WriteSingleRegister(1, 5, 0x0100); err != nil {
		t.Fatalf("WriteSingleRegister failed: %v", err)
	}
	assertBytesEqual(t, echo, port.sent.Bytes())
}

func TestSerialTransportCRCMismatch(t *testing.T) {
	resp := []byte{0x01, 0x03, 0x02, 0x00, 0xFA, 0x38, 0x07}
	resp[3] ^= 0x40 // corrupt the payload, keep the stale CRC
	port := newMockSerialPort(resp)
	tr := NewSerialTransport(port, time.Second, nil)

	if _, err := tr.ReadHoldingRegisters(1, 0, 1); !errors.Is(err, ErrCRCMismatch) {
		t.Fatalf("got %v, expected ErrCRCMismatch", err)
	}
}

func TestSerialTransportExceptionResponse(t *testing.T) {
	// Illegal data address: function 0x03 with the exception flag set.
	port := newMockSerialPort([]byte{0x01, 0x83, 0x02, 0xC0, 0xF1})
	tr := NewSerialTransport(port, time.Second, nil)

	_, err := tr.ReadHoldingRegisters(1, 0, 1)
	var mbErr *ModbusError
	if !errors.As(err, &mbErr) {
		t.Fatalf("got %v, expected *ModbusError", err)
	}
	if mbErr.FunctionCode != 0x03 || mbErr.ExceptionCode != 0x02 {
		t.Errorf("exception fields: func %02X code %02X", mbErr.FunctionCode, mbErr.ExceptionCode)
	}
}

func TestSerialTransportSlaveMismatch(t *testing.T) {
	// Slave 2 answers a request addressed to slave 1.
	port := newMockSerialPort([]byte{0x02, 0x03, 0x02, 0x00, 0xFA, 0x7C, 0x07})
	tr := NewSerialTransport(port, time.Second, nil)

	if _, err := tr.ReadHoldingRegisters(1, 0, 1); !errors.Is(err, ErrInvalidFrame) {
		t.Fatalf("got %v, expected ErrInvalidFrame", err)
	}
}

func TestSerialTransportEmptyResponse(t *testing.T) {
	// A drained buffer reads EOF immediately, which the transport treats
	// the same as a device that never answered.
	port := newMockSerialPort(nil)
	tr := NewSerialTransport(port, time.Second, nil)

	if _, err := tr.ReadHoldingRegisters(1, 0, 1); !errors.Is(err, ErrTimeout) {
		t.Fatalf("got %v, expected ErrTimeout", err)
	}
}

func TestSerialTransportTimeout(t *testing.T) {
	port := &blockingPort{unblock: make(chan struct{})}
	defer close(port.unblock)
	tr := NewSerialTransport(port, 20*time.Millisecond, nil)

	start := time.Now()
	_, err := tr.ReadHoldingRegisters(1, 0, 1)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("got %v, expected ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("timeout took %v", elapsed)
	}
}

func TestSerialTransportClose(t *testing.T) {
	port := newMockSerialPort(nil)
	tr := NewSerialTransport(port, time.Second, nil)

	if err := tr.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !port.closed {
		t.Error("port was not closed")
	}
	// Second close is a no-op.
	if err := tr.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}
