package modbus

import (
	"fmt"
	"io"
	"time"

	serial "github.com/hootrhino/goserial"
)

// OpenSerialTransport opens the serial port described by cfg and wraps
// it in a SerialTransport. The port read timeout is kept shorter than
// the bus round-trip timeout so partial frames surface before the
// exchange deadline.
func OpenSerialTransport(cfg BusConfig, logger io.Writer) (*SerialTransport, error) {
	portTimeout := cfg.Timeout() / 2
	if portTimeout < 50*time.Millisecond {
		portTimeout = 50 * time.Millisecond
	}
	port, err := serial.Open(&serial.Config{
		Address:  cfg.Port,
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		StopBits: cfg.StopBits,
		Parity:   cfg.Parity,
		Timeout:  portTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("modbus: failed to open serial port %s: %w", cfg.Port, err)
	}
	return NewSerialTransport(port, cfg.Timeout(), logger), nil
}
